package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"gemdrop.xyz/internal/drop"
	"gemdrop.xyz/internal/persistence/snapshot"
	"gemdrop.xyz/internal/registry"
)

// ExportSnapshot captures the full engine state. Runs on the engine
// goroutine; rows are sorted so equal states export byte-identically.
func (e *Engine) ExportSnapshot() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header:         snapshot.Header{Version: 1, OpSeq: e.opSeq},
		OpDigest:       hexDigest(e.opDigest),
		Phase:          e.phase.String(),
		AllowlistRoot:  hexDigest(e.allowRoot),
		TotalIssued:    e.ledger.TotalIssued(),
		IssuedByFinish: e.ledger.IssuedByFinish(),
		Jackpots:       e.jackpots,
		VaultWei:       e.vault.Dec(),
	}

	snap.Gems = make([]snapshot.GemV1, 0, len(e.gems))
	for id, g := range e.gems {
		row := snapshot.GemV1{ID: uint32(id), Finish: uint8(g.Finish), Used: g.Used}
		if owner, ok := e.owners.OwnerOf(id); ok {
			row.Owner = owner.Hex()
		}
		snap.Gems = append(snap.Gems, row)
	}
	sort.Slice(snap.Gems, func(i, j int) bool { return snap.Gems[i].ID < snap.Gems[j].ID })

	for addr := range e.claimed {
		snap.Claimants = append(snap.Claimants, addr.Hex())
	}
	sort.Strings(snap.Claimants)
	return snap
}

// ImportSnapshot replaces engine state wholesale. Only valid on a fresh
// engine before any traffic.
func (e *Engine) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != 1 {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	if e.opSeq != 0 || len(e.gems) != 0 {
		return fmt.Errorf("import into a used engine")
	}

	digest, err := parseDigest(snap.OpDigest)
	if err != nil {
		return fmt.Errorf("op_digest: %w", err)
	}
	root, err := parseDigest(snap.AllowlistRoot)
	if err != nil {
		return fmt.Errorf("allowlist_root: %w", err)
	}
	phase, ok := drop.ParsePhase(snap.Phase)
	if !ok {
		return fmt.Errorf("unknown phase %q", snap.Phase)
	}
	vault, err := uint256.FromDecimal(strings.TrimSpace(snap.VaultWei))
	if err != nil {
		return fmt.Errorf("vault_wei: %w", err)
	}

	if snap.TotalIssued > drop.MaxSupply {
		return fmt.Errorf("total issued %d exceeds max supply %d", snap.TotalIssued, drop.MaxSupply)
	}
	var sum uint16
	for f := drop.Finish(0); f < drop.FinishCount; f++ {
		if snap.IssuedByFinish[f] > drop.PoolCaps[f] {
			return fmt.Errorf("pool %s: issued %d exceeds cap %d", f, snap.IssuedByFinish[f], drop.PoolCaps[f])
		}
		sum += snap.IssuedByFinish[f]
	}
	if sum != snap.TotalIssued || int(snap.TotalIssued) != len(snap.Gems) {
		return fmt.Errorf("snapshot ledger mismatch: total %d, pool sum %d, %d gems",
			snap.TotalIssued, sum, len(snap.Gems))
	}

	// Validate every row before touching engine state, so a bad snapshot
	// leaves the engine as fresh as it started.
	gems := make(map[drop.GemID]*drop.Gem, len(snap.Gems))
	owners := make(map[drop.GemID]common.Address, len(snap.Gems))
	var perFinish [drop.FinishCount]uint16
	for _, row := range snap.Gems {
		f := drop.Finish(row.Finish)
		if !f.Valid() {
			return fmt.Errorf("gem %d: bad finish %d", row.ID, row.Finish)
		}
		if !common.IsHexAddress(row.Owner) {
			return fmt.Errorf("gem %d: bad owner %q", row.ID, row.Owner)
		}
		id := drop.GemID(row.ID)
		if _, dup := gems[id]; dup {
			return fmt.Errorf("gem %d: duplicate id", row.ID)
		}
		gems[id] = &drop.Gem{ID: id, Finish: f, Used: row.Used}
		owners[id] = common.HexToAddress(row.Owner)
		perFinish[f]++
	}
	if perFinish != snap.IssuedByFinish {
		return fmt.Errorf("gem rows disagree with issued counters: rows %v, counters %v",
			perFinish, snap.IssuedByFinish)
	}
	claimed := make(map[common.Address]bool, len(snap.Claimants))
	for _, a := range snap.Claimants {
		if !common.IsHexAddress(a) {
			return fmt.Errorf("bad claimant address %q", a)
		}
		claimed[common.HexToAddress(a)] = true
	}

	e.opSeq = snap.Header.OpSeq
	e.opDigest = digest
	e.phase = phase
	e.allowRoot = root
	e.gems = gems
	e.ledger.Restore(snap.TotalIssued, snap.IssuedByFinish)
	e.jackpots = snap.Jackpots
	e.vault.Set(vault)
	e.claimed = claimed

	book := registry.NewBook()
	book.Restore(owners)
	e.book = book
	e.owners = book
	e.sink = book
	return nil
}
