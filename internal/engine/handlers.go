package engine

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"gemdrop.xyz/internal/drop"
	"gemdrop.xyz/internal/protocol"
	"gemdrop.xyz/internal/registry"
)

func (e *Engine) handleAct(env ActionEnvelope) {
	cs := e.sessions[env.SessionID]
	if cs == nil {
		return
	}
	for _, inst := range env.Act.Instants {
		res := e.applyInstant(cs, inst)
		res.Type = protocol.TypeResult
		res.ProtocolVersion = protocol.Version
		res.ResultFor = inst.ID
		if !res.Accepted {
			e.logAudit(cs.Address, inst.Type, res.Code, res.Message, false)
		}
		e.send(cs, res)
	}
}

func (e *Engine) send(cs *clientState, res protocol.ResultMsg) {
	if cs.Out == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	select {
	case cs.Out <- b:
	default:
		if e.logger != nil {
			e.logger.Printf("dropping RESULT for slow session (%s)", res.ResultFor)
		}
	}
}

func (e *Engine) applyInstant(cs *clientState, inst protocol.InstantReq) protocol.ResultMsg {
	switch inst.Type {
	case protocol.InstPresaleMint:
		value, err := parseValue(inst.ValueWei)
		if err != nil {
			return rejected(protocol.ErrProtoBadRequest, "value_wei: "+err.Error())
		}
		proof, err := parseProof(inst.Proof)
		if err != nil {
			// Malformed sibling digests are just a failed membership check.
			return rejected(protocol.ErrNotWhitelisted, "malformed proof")
		}
		minted, mintErr := e.PresaleMint(cs.Address, inst.Amount, proof, value)
		if mintErr != nil {
			return rejectedErr(mintErr)
		}
		return protocol.ResultMsg{Accepted: true, Minted: minted}

	case protocol.InstPublicMint:
		value, err := parseValue(inst.ValueWei)
		if err != nil {
			return rejected(protocol.ErrProtoBadRequest, "value_wei: "+err.Error())
		}
		minted, mintErr := e.PublicMint(cs.Address, inst.Amount, value)
		if mintErr != nil {
			return rejectedErr(mintErr)
		}
		return protocol.ResultMsg{Accepted: true, Minted: minted}

	case protocol.InstClaim:
		// Arity is a protocol matter: anything but exactly six ids never
		// reaches the business checks.
		if len(inst.GemIDs) != drop.FinishCount {
			return rejected(protocol.ErrProtoBadRequest, "claim needs exactly 6 gem ids")
		}
		var ids [drop.FinishCount]drop.GemID
		for i, id := range inst.GemIDs {
			ids[i] = drop.GemID(id)
		}
		payout, err := e.ClaimJackpot(cs.Address, ids)
		if err != nil {
			return rejectedErr(err)
		}
		return protocol.ResultMsg{Accepted: true, PayoutWei: payout.Dec()}

	case protocol.InstTransfer:
		from, ok := parseAddr(inst.From)
		if !ok {
			return rejected(protocol.ErrProtoBadRequest, "from: bad address")
		}
		to, ok := parseAddr(inst.To)
		if !ok {
			return rejected(protocol.ErrProtoBadRequest, "to: bad address")
		}
		if err := e.book.TransferFrom(cs.Address, from, to, drop.GemID(inst.GemID)); err != nil {
			return rejected(registryCode(err), err.Error())
		}
		e.advanceDigest("TRANSFER", cs.Address, uint32sBytes([]uint32{inst.GemID}))
		e.logOp(OpLogEntry{Kind: "TRANSFER", Address: cs.Address.Hex(), GemIDs: []uint32{inst.GemID}})
		return protocol.ResultMsg{Accepted: true}

	case protocol.InstApprove:
		to, ok := parseAddr(inst.To)
		if !ok {
			return rejected(protocol.ErrProtoBadRequest, "to: bad address")
		}
		if err := e.book.Approve(cs.Address, to, drop.GemID(inst.GemID)); err != nil {
			return rejected(registryCode(err), err.Error())
		}
		return protocol.ResultMsg{Accepted: true}

	case protocol.InstSetPhase:
		phase, ok := drop.ParsePhase(inst.Phase)
		if !ok {
			return rejected(protocol.ErrProtoBadRequest, "unknown phase")
		}
		if err := e.opGuard(cs, func() error { return e.SetPhase(cs.Address, phase) }); err != nil {
			return rejectedErr(err)
		}
		return protocol.ResultMsg{Accepted: true}

	case protocol.InstSetRoot:
		root, err := parseDigest(inst.Root)
		if err != nil {
			return rejected(protocol.ErrProtoBadRequest, "root: "+err.Error())
		}
		if err := e.opGuard(cs, func() error { return e.SetAllowlistRoot(cs.Address, root) }); err != nil {
			return rejectedErr(err)
		}
		return protocol.ResultMsg{Accepted: true}

	case protocol.InstWithdraw:
		var swept *uint256.Int
		err := e.opGuard(cs, func() error {
			var werr error
			swept, werr = e.Withdraw(cs.Address)
			return werr
		})
		if err != nil {
			return rejectedErr(err)
		}
		return protocol.ResultMsg{Accepted: true, PayoutWei: swept.Dec()}

	case protocol.InstGetState:
		state := e.stateObs()
		return protocol.ResultMsg{Accepted: true, State: &state}

	case protocol.InstGetGem:
		obs, ok := e.GemObs(drop.GemID(inst.GemID))
		if !ok {
			return rejected(protocol.ErrGemNotFound, "gem was never issued")
		}
		return protocol.ResultMsg{Accepted: true, Gem: &obs}

	case protocol.InstGetFinish:
		f, ok := drop.ParseFinish(inst.Finish)
		if !ok {
			return rejected(protocol.ErrProtoBadRequest, "unknown finish")
		}
		meta, _ := e.FinishMeta(f)
		return protocol.ResultMsg{Accepted: true, Meta: &meta}

	default:
		return rejected(protocol.ErrProtoBadRequest, "unknown instant type")
	}
}

// opGuard pre-rejects operator instants from non-operator sessions so the
// token requirement cannot be bypassed by knowing the operator address.
func (e *Engine) opGuard(cs *clientState, f func() error) error {
	if !cs.Operator {
		return reject(protocol.ErrUnauthorized, "session lacks operator auth")
	}
	return f()
}

func rejected(code, msg string) protocol.ResultMsg {
	return protocol.ResultMsg{Accepted: false, Code: code, Message: msg}
}

func rejectedErr(err error) protocol.ResultMsg {
	var r *Reject
	if errors.As(err, &r) {
		return rejected(r.Code, r.Msg)
	}
	return rejected(protocol.ErrInternal, err.Error())
}

func registryCode(err error) string {
	switch {
	case errors.Is(err, registry.ErrUnknownGem):
		return protocol.ErrGemNotFound
	case errors.Is(err, registry.ErrNotOwner):
		return protocol.ErrNotOwner
	default:
		return protocol.ErrRegistryDenied
	}
}

func parseAddr(s string) (common.Address, bool) {
	if !common.IsHexAddress(strings.TrimSpace(s)) {
		return common.Address{}, false
	}
	return common.HexToAddress(strings.TrimSpace(s)), true
}

func parseValue(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uint256.NewInt(0), nil
	}
	return uint256.FromDecimal(s)
}

func parseProof(hexes []string) ([][32]byte, error) {
	if len(hexes) == 0 {
		return nil, nil
	}
	out := make([][32]byte, len(hexes))
	for i, h := range hexes {
		d, err := parseDigest(h)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}
