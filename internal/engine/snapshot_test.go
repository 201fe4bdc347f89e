package engine_test

import (
	"io"
	"log"
	"path/filepath"
	"reflect"
	"testing"

	"gemdrop.xyz/internal/drop"
	"gemdrop.xyz/internal/droptest"
	"gemdrop.xyz/internal/engine"
	"gemdrop.xyz/internal/persistence/snapshot"
	"gemdrop.xyz/internal/protocol"
)

func TestSnapshotRoundTrip(t *testing.T) {
	h := droptest.NewHarness(t, droptest.DefaultConfig())
	h.OpenPhase(drop.PhaseOpen)

	claimant := h.Join(droptest.Addr(1))
	filler := h.Join(droptest.Addr(2))
	ids := mintSet(t, h, claimant)
	fillTo(t, h, filler, 333)
	h.MustAccept(claimant, protocol.InstantReq{Type: protocol.InstClaim, GemIDs: ids})
	h.MustAccept(claimant, protocol.InstantReq{
		Type:  protocol.InstTransfer,
		GemID: ids[0],
		From:  droptest.Addr(1).Hex(),
		To:    droptest.Addr(3).Hex(),
	})

	snap := h.E.ExportSnapshot()

	// Through the file format and back.
	path := filepath.Join(t.TempDir(), "drop.snap.zst")
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	loaded, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if !reflect.DeepEqual(snap, loaded) {
		t.Fatalf("snapshot changed across the file round trip")
	}

	// Into a fresh engine.
	e2 := engine.New(droptest.DefaultConfig(), log.New(io.Discard, "", 0))
	if err := e2.ImportSnapshot(loaded); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	e2.SetEntropy(&drop.SeqSource{})
	h2 := droptest.NewHarnessWithEngine(t, e2)
	sess2 := h2.Join(droptest.Addr(1))

	if got, want := h2.State(sess2), h.State(claimant); !reflect.DeepEqual(got, want) {
		t.Fatalf("restored state differs:\n got %+v\nwant %+v", got, want)
	}
	for _, id := range ids {
		before := h.MustAccept(claimant, protocol.InstantReq{Type: protocol.InstGetGem, GemID: id}).Gem
		after := h2.MustAccept(sess2, protocol.InstantReq{Type: protocol.InstGetGem, GemID: id}).Gem
		if !reflect.DeepEqual(before, after) {
			t.Fatalf("gem %d differs after restore:\n got %+v\nwant %+v", id, after, before)
		}
	}

	// The restored engine keeps enforcing one-claim-per-wallet.
	fresh := mintSet(t, h2, sess2)
	h2.MustReject(sess2, protocol.InstantReq{Type: protocol.InstClaim, GemIDs: fresh}, protocol.ErrAlreadyClaimed)
}

func TestImportSnapshotRejectsInconsistency(t *testing.T) {
	base := nearFullSnapshot()

	cases := []struct {
		name   string
		mutate func(*snapshot.SnapshotV1)
	}{
		{"bad version", func(s *snapshot.SnapshotV1) { s.Header.Version = 9 }},
		{"total over max supply", func(s *snapshot.SnapshotV1) { s.TotalIssued = 1000 }},
		{"pool sum mismatch", func(s *snapshot.SnapshotV1) { s.IssuedByFinish[0]++ }},
		// Sums to 997 like the base, but DIAMOND claims 4 issued against its
		// cap of 3. Accepting this would make the ledger's remaining count
		// wrap below zero and hand the assigner a bottomless pool.
		{"pool over cap", func(s *snapshot.SnapshotV1) {
			s.IssuedByFinish = [6]uint16{587, 200, 200, 3, 3, 4}
		}},
		// Counters stay within caps and sum correctly, but no longer agree
		// with the per-finish tally of the gem rows themselves.
		{"counters disagree with rows", func(s *snapshot.SnapshotV1) {
			s.IssuedByFinish = [6]uint16{589, 200, 200, 3, 3, 2}
		}},
		{"duplicate gem id", func(s *snapshot.SnapshotV1) { s.Gems[1].ID = s.Gems[0].ID }},
		{"gem count mismatch", func(s *snapshot.SnapshotV1) { s.Gems = s.Gems[:len(s.Gems)-1] }},
		{"bad finish", func(s *snapshot.SnapshotV1) { s.Gems[0].Finish = 6 }},
		{"bad owner", func(s *snapshot.SnapshotV1) { s.Gems[0].Owner = "nobody" }},
		{"bad phase", func(s *snapshot.SnapshotV1) { s.Phase = "HALFOPEN" }},
		{"bad vault", func(s *snapshot.SnapshotV1) { s.VaultWei = "-3" }},
		{"bad digest", func(s *snapshot.SnapshotV1) { s.OpDigest = "0x1234" }},
		{"bad claimant", func(s *snapshot.SnapshotV1) { s.Claimants = []string{"not-an-address"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := base
			snap.Gems = append([]snapshot.GemV1(nil), base.Gems...)
			tc.mutate(&snap)
			e := engine.New(droptest.DefaultConfig(), log.New(io.Discard, "", 0))
			if err := e.ImportSnapshot(snap); err == nil {
				t.Fatalf("import accepted an inconsistent snapshot")
			}
		})
	}
}

func TestImportSnapshotFailureLeavesEngineFresh(t *testing.T) {
	bad := nearFullSnapshot()
	bad.Claimants = []string{"not-an-address"}

	e := engine.New(droptest.DefaultConfig(), log.New(io.Discard, "", 0))
	if err := e.ImportSnapshot(bad); err == nil {
		t.Fatalf("import accepted a bad claimant")
	}

	// The failed import must not count as traffic; a clean snapshot still
	// loads, and the state matches it exactly.
	if err := e.ImportSnapshot(nearFullSnapshot()); err != nil {
		t.Fatalf("import after failed import: %v", err)
	}
	if got := e.TotalIssued(); got != 997 {
		t.Fatalf("issued %d after import, want 997", got)
	}
}

func TestImportSnapshotRefusesUsedEngine(t *testing.T) {
	h := droptest.NewHarness(t, droptest.DefaultConfig())
	h.OpenPhase(drop.PhaseOpen)
	sess := h.Join(droptest.Addr(1))
	h.MustAccept(sess, protocol.InstantReq{Type: protocol.InstPublicMint, Amount: 1, ValueWei: "1000"})

	if err := h.E.ImportSnapshot(nearFullSnapshot()); err == nil {
		t.Fatalf("import into a used engine succeeded")
	}
}
