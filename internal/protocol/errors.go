package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Mint gating.
	ErrInvalidAmount       = "E_INVALID_AMOUNT"
	ErrSupplyExhausted     = "E_SUPPLY_EXHAUSTED"
	ErrInsufficientPayment = "E_INSUFFICIENT_PAYMENT"
	ErrPresaleNotActive    = "E_PRESALE_NOT_ACTIVE"
	ErrSaleNotActive       = "E_SALE_NOT_ACTIVE"
	ErrNotWhitelisted      = "E_NOT_WHITELISTED"

	// Jackpot claims.
	ErrAllPrizesClaimed = "E_ALL_PRIZES_CLAIMED"
	ErrAlreadyClaimed   = "E_ALREADY_CLAIMED"
	ErrThresholdNotMet  = "E_THRESHOLD_NOT_MET"
	ErrGemNotFound      = "E_GEM_NOT_FOUND"
	ErrGemAlreadyUsed   = "E_GEM_ALREADY_USED"
	ErrDuplicateFinish  = "E_DUPLICATE_FINISH"
	ErrNotOwner         = "E_NOT_OWNER"

	// Registry ops.
	ErrRegistryDenied = "E_REGISTRY_DENIED"

	// Operator ops and guards.
	ErrUnauthorized = "E_UNAUTHORIZED"
	ErrReentry      = "E_REENTRY"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:     {},
	ErrInvalidAmount:       {},
	ErrSupplyExhausted:     {},
	ErrInsufficientPayment: {},
	ErrPresaleNotActive:    {},
	ErrSaleNotActive:       {},
	ErrNotWhitelisted:      {},
	ErrAllPrizesClaimed:    {},
	ErrAlreadyClaimed:      {},
	ErrThresholdNotMet:     {},
	ErrGemNotFound:         {},
	ErrGemAlreadyUsed:      {},
	ErrDuplicateFinish:     {},
	ErrNotOwner:            {},
	ErrRegistryDenied:      {},
	ErrUnauthorized:        {},
	ErrReentry:             {},
	ErrInternal:            {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
