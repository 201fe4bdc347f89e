package engine

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"gemdrop.xyz/internal/drop"
	"gemdrop.xyz/internal/merkle"
	"gemdrop.xyz/internal/protocol"
)

// PresaleMint mints during the allow-listed phase. Membership is proven
// against the current commitment; swapping the commitment mid-phase changes
// eligibility immediately, with nothing carried over for callers verified
// under the old root.
func (e *Engine) PresaleMint(caller common.Address, amount int, proof [][32]byte, value *uint256.Int) ([]protocol.MintedGem, error) {
	if e.busy {
		return nil, reject(protocol.ErrReentry, "operation in progress")
	}
	e.busy = true
	defer func() { e.busy = false }()

	if e.phase != drop.PhasePresale {
		return nil, reject(protocol.ErrPresaleNotActive, "phase is %s", e.phase)
	}
	if !merkle.Verify(caller, proof, e.allowRoot) {
		return nil, reject(protocol.ErrNotWhitelisted, "%s is not on the allow list", caller.Hex())
	}
	return e.mint(caller, amount, value)
}

// PublicMint mints during the open phase.
func (e *Engine) PublicMint(caller common.Address, amount int, value *uint256.Int) ([]protocol.MintedGem, error) {
	if e.busy {
		return nil, reject(protocol.ErrReentry, "operation in progress")
	}
	e.busy = true
	defer func() { e.busy = false }()

	if e.phase != drop.PhaseOpen {
		return nil, reject(protocol.ErrSaleNotActive, "phase is %s", e.phase)
	}
	return e.mint(caller, amount, value)
}

// mint is the shared path. All validation precedes all mutation; once the
// vault is credited and the reserve loop starts, nothing in the loop can
// fail, so a call either mints every unit or none.
func (e *Engine) mint(caller common.Address, amount int, value *uint256.Int) ([]protocol.MintedGem, error) {
	if amount < 1 || amount > MaxPerCall {
		return nil, reject(protocol.ErrInvalidAmount, "amount %d outside 1..%d", amount, MaxPerCall)
	}
	if int(e.ledger.Remaining()) < amount {
		return nil, reject(protocol.ErrSupplyExhausted, "%d remaining, %d requested", e.ledger.Remaining(), amount)
	}
	cost := new(uint256.Int).Mul(e.cfg.UnitPrice, uint256.NewInt(uint64(amount)))
	if value == nil || value.Lt(cost) {
		return nil, reject(protocol.ErrInsufficientPayment, "need %s wei, got %s", cost.Dec(), valueDec(value))
	}

	// Overpayment is kept, not refunded.
	e.vault.Add(&e.vault, value)

	minted := make([]protocol.MintedGem, 0, amount)
	ids := make([]uint32, 0, amount)
	finishes := make([]string, 0, amount)
	for i := 0; i < amount; i++ {
		// The counter value for this unit is fixed before the entropy draw
		// so consecutive units of one batch decorrelate.
		next := drop.GemID(e.ledger.TotalIssued() + 1)
		ent := e.entropy.Draw(caller, next)
		f, err := drop.Pick(e.ledger.RemainingByFinish(), ent)
		if err != nil {
			return nil, reject(protocol.ErrInternal, "assign: %v", err)
		}
		id, err := e.ledger.ReserveNext(f)
		if err != nil {
			return nil, reject(protocol.ErrInternal, "reserve: %v", err)
		}
		e.gems[id] = &drop.Gem{ID: id, Finish: f}

		// External call, one per unit. The busy flag is still set here, so a
		// sink that calls back in gets E_REENTRY instead of fresh supply.
		e.sink.NotifyMint(caller, id)

		minted = append(minted, protocol.MintedGem{GemID: uint32(id), Finish: f.String()})
		ids = append(ids, uint32(id))
		finishes = append(finishes, f.String())
	}

	var payload [8]byte
	binary.BigEndian.PutUint64(payload[:], uint64(e.ledger.TotalIssued()))
	e.advanceDigest("MINT", caller, payload[:])
	e.logOp(OpLogEntry{
		Kind:     "MINT",
		Address:  caller.Hex(),
		GemIDs:   ids,
		Finishes: finishes,
		ValueWei: value.Dec(),
	})
	e.logAudit(caller, "MINT", "", "", true)
	e.broadcastEvent(protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Event:           protocol.EventMinted,
		OpSeq:           e.opSeq,
		Address:         caller.Hex(),
		Minted:          minted,
	})
	return minted, nil
}

func valueDec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
