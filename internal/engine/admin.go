package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"gemdrop.xyz/internal/drop"
	"gemdrop.xyz/internal/protocol"
)

// SetPhase is the operator toggle over the sale gate. Any phase is
// reachable from any phase; there is no lifecycle to enforce.
func (e *Engine) SetPhase(caller common.Address, phase drop.Phase) error {
	if e.busy {
		return reject(protocol.ErrReentry, "operation in progress")
	}
	e.busy = true
	defer func() { e.busy = false }()

	if err := e.requireOperator(caller); err != nil {
		return err
	}
	if !phase.Valid() {
		return reject(protocol.ErrProtoBadRequest, "unknown phase")
	}
	e.phase = phase
	e.advanceDigest("SET_PHASE", caller, []byte(phase.String()))
	e.logOp(OpLogEntry{Kind: "SET_PHASE", Address: caller.Hex(), Phase: phase.String()})
	e.logAudit(caller, "SET_PHASE", "", phase.String(), true)
	e.broadcastEvent(protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Event:           protocol.EventPhase,
		OpSeq:           e.opSeq,
		Phase:           phase.String(),
	})
	return nil
}

// SetAllowlistRoot replaces the membership commitment. Takes effect for the
// very next presale mint; nothing verified under the old root carries over.
func (e *Engine) SetAllowlistRoot(caller common.Address, root [32]byte) error {
	if e.busy {
		return reject(protocol.ErrReentry, "operation in progress")
	}
	e.busy = true
	defer func() { e.busy = false }()

	if err := e.requireOperator(caller); err != nil {
		return err
	}
	e.allowRoot = root
	e.advanceDigest("SET_ROOT", caller, root[:])
	e.logOp(OpLogEntry{Kind: "SET_ROOT", Address: caller.Hex(), Root: hexDigest(root)})
	e.logAudit(caller, "SET_ROOT", "", hexDigest(root), true)
	return nil
}

// Withdraw sweeps the full vault balance to the operator. The transfer
// itself is the payment collaborator's problem; the engine just zeroes the
// custody balance and records the sweep.
func (e *Engine) Withdraw(caller common.Address) (*uint256.Int, error) {
	if e.busy {
		return nil, reject(protocol.ErrReentry, "operation in progress")
	}
	e.busy = true
	defer func() { e.busy = false }()

	if err := e.requireOperator(caller); err != nil {
		return nil, err
	}
	swept := new(uint256.Int).Set(&e.vault)
	e.vault.Clear()
	e.advanceDigest("WITHDRAW", caller, swept.Bytes())
	e.logOp(OpLogEntry{Kind: "WITHDRAW", Address: caller.Hex(), ValueWei: swept.Dec()})
	e.logAudit(caller, "WITHDRAW", "", swept.Dec(), true)
	return swept, nil
}

func (e *Engine) requireOperator(caller common.Address) error {
	if e.cfg.Operator == (common.Address{}) || caller != e.cfg.Operator {
		return reject(protocol.ErrUnauthorized, "%s is not the operator", caller.Hex())
	}
	return nil
}
