package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrProtoBadRequest,
		ErrInvalidAmount,
		ErrSupplyExhausted,
		ErrInsufficientPayment,
		ErrPresaleNotActive,
		ErrSaleNotActive,
		ErrNotWhitelisted,
		ErrAllPrizesClaimed,
		ErrAlreadyClaimed,
		ErrThresholdNotMet,
		ErrGemNotFound,
		ErrGemAlreadyUsed,
		ErrDuplicateFinish,
		ErrNotOwner,
		ErrRegistryDenied,
		ErrUnauthorized,
		ErrReentry,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}
