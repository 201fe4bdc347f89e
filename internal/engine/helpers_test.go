package engine_test

import (
	"testing"

	"gemdrop.xyz/internal/drop"
	"gemdrop.xyz/internal/droptest"
	"gemdrop.xyz/internal/protocol"
)

// mintFinish mints exactly one gem of the wanted finish to the session's
// address by steering the deterministic entropy source: the offset is set to
// the start of the finish's remaining interval.
func mintFinish(t *testing.T, h *droptest.Harness, sess string, want drop.Finish) uint32 {
	t.Helper()

	state := h.State(sess)
	var offset uint64
	for f := drop.Finish(0); f < want; f++ {
		offset += uint64(int(drop.PoolCaps[f]) - state.IssuedByFinish[f])
	}
	if int(drop.PoolCaps[want]) == state.IssuedByFinish[want] {
		t.Fatalf("pool %s already exhausted", want)
	}

	h.E.SetEntropy(&drop.SeqSource{Seq: []uint64{offset}})
	res := h.MustAccept(sess, protocol.InstantReq{
		Type:     protocol.InstPublicMint,
		Amount:   1,
		ValueWei: "1000",
	})
	h.E.SetEntropy(&drop.SeqSource{})

	if len(res.Minted) != 1 {
		t.Fatalf("minted %d gems, want 1", len(res.Minted))
	}
	if res.Minted[0].Finish != want.String() {
		t.Fatalf("minted %s, want %s", res.Minted[0].Finish, want)
	}
	return res.Minted[0].GemID
}

// mintSet mints one gem of every finish to the session and returns the six
// ids in canonical finish order.
func mintSet(t *testing.T, h *droptest.Harness, sess string) []uint32 {
	t.Helper()
	ids := make([]uint32, 0, drop.FinishCount)
	for f := drop.Finish(0); f < drop.FinishCount; f++ {
		ids = append(ids, mintFinish(t, h, sess, f))
	}
	return ids
}

// fillTo mints filler gems (zero-offset entropy walks the cheapest
// non-empty pool) until total issuance reaches the target.
func fillTo(t *testing.T, h *droptest.Harness, sess string, target int) {
	t.Helper()
	h.E.SetEntropy(&drop.SeqSource{})
	for {
		state := h.State(sess)
		gap := target - state.TotalIssued
		if gap <= 0 {
			return
		}
		n := gap
		if n > 3 {
			n = 3
		}
		h.MustAccept(sess, protocol.InstantReq{
			Type:     protocol.InstPublicMint,
			Amount:   n,
			ValueWei: "3000",
		})
	}
}
