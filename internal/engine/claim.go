package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"gemdrop.xyz/internal/drop"
	"gemdrop.xyz/internal/protocol"
)

// ClaimJackpot surrenders one gem of each finish for the jackpot payout.
// The six ids are validated in full before anything is written; any
// rejection leaves every gem unused, the claim registry untouched, and the
// vault intact.
func (e *Engine) ClaimJackpot(caller common.Address, ids [drop.FinishCount]drop.GemID) (*uint256.Int, error) {
	if e.busy {
		return nil, reject(protocol.ErrReentry, "operation in progress")
	}
	e.busy = true
	defer func() { e.busy = false }()

	if e.jackpots >= MaxJackpots {
		return nil, reject(protocol.ErrAllPrizesClaimed, "all %d jackpots awarded", MaxJackpots)
	}
	// Already-claimed is checked before any per-gem state so a repeat
	// submission fails the same way whether or not its gems were consumed.
	if e.claimed[caller] {
		return nil, reject(protocol.ErrAlreadyClaimed, "%s already claimed", caller.Hex())
	}
	need := uint16(JackpotStep * (e.jackpots + 1))
	if e.ledger.TotalIssued() < need {
		return nil, reject(protocol.ErrThresholdNotMet, "jackpot %d unlocks at %d issued, have %d",
			e.jackpots+1, need, e.ledger.TotalIssued())
	}

	var seen [drop.FinishCount]bool
	var gems [drop.FinishCount]*drop.Gem
	for i, id := range ids {
		g, ok := e.gems[id]
		if !ok {
			return nil, reject(protocol.ErrGemNotFound, "gem %d was never issued", id)
		}
		if g.Used {
			return nil, reject(protocol.ErrGemAlreadyUsed, "gem %d already consumed by a claim", id)
		}
		if seen[g.Finish] {
			return nil, reject(protocol.ErrDuplicateFinish, "gem %d duplicates finish %s", id, g.Finish)
		}
		owner, ok := e.owners.OwnerOf(id)
		if !ok || owner != caller {
			return nil, reject(protocol.ErrNotOwner, "gem %d is not held by %s", id, caller.Hex())
		}
		seen[g.Finish] = true
		gems[i] = g
	}

	payout := new(uint256.Int).Set(e.cfg.Jackpot)
	if e.vault.Lt(payout) {
		// Should not happen with sane pricing; refuse rather than award an
		// unpayable prize, and leave all claim state untouched.
		return nil, reject(protocol.ErrInternal, "vault holds %s wei, jackpot is %s", e.vault.Dec(), payout.Dec())
	}

	// Commit point: every check passed, mutate everything together.
	for _, g := range gems {
		g.Used = true
	}
	e.jackpots++
	e.claimed[caller] = true
	e.vault.Sub(&e.vault, payout)

	idList := make([]uint32, len(ids))
	for i, id := range ids {
		idList[i] = uint32(id)
	}
	e.advanceDigest("CLAIM", caller, uint32sBytes(idList))
	e.logOp(OpLogEntry{
		Kind:     "CLAIM",
		Address:  caller.Hex(),
		GemIDs:   idList,
		ValueWei: payout.Dec(),
	})
	e.logAudit(caller, "CLAIM", "", "", true)
	e.broadcastEvent(protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Event:           protocol.EventJackpot,
		OpSeq:           e.opSeq,
		Address:         caller.Hex(),
		GemIDs:          idList,
		PayoutWei:       payout.Dec(),
	})
	return payout, nil
}

func uint32sBytes(ids []uint32) []byte {
	out := make([]byte, 0, len(ids)*4)
	for _, id := range ids {
		out = append(out, byte(id>>24), byte(id>>16), byte(id>>8), byte(id))
	}
	return out
}
