package engine

import (
	"encoding/hex"
	"encoding/json"

	"github.com/holiman/uint256"

	"gemdrop.xyz/internal/drop"
	"gemdrop.xyz/internal/protocol"
)

// Read-only views. These run on the engine goroutine like everything else;
// the http transport asks for them through the inbox-adjacent Query channel
// in transport/httpapi.

func (e *Engine) Phase() drop.Phase       { return e.phase }
func (e *Engine) Jackpots() int           { return e.jackpots }
func (e *Engine) TotalIssued() uint16     { return e.ledger.TotalIssued() }
func (e *Engine) VaultWei() *uint256.Int  { return new(uint256.Int).Set(&e.vault) }
func (e *Engine) OpSeq() uint64           { return e.opSeq }
func (e *Engine) AllowlistRoot() [32]byte { return e.allowRoot }

func (e *Engine) dropParams() protocol.DropParams {
	finishes := make([]string, drop.FinishCount)
	caps := make([]int, drop.FinishCount)
	for f := drop.Finish(0); f < drop.FinishCount; f++ {
		finishes[f] = f.String()
		caps[f] = int(drop.PoolCaps[f])
	}
	return protocol.DropParams{
		MaxSupply:    drop.MaxSupply,
		Finishes:     finishes,
		PoolCaps:     caps,
		UnitPriceWei: e.cfg.UnitPrice.Dec(),
		JackpotWei:   e.cfg.Jackpot.Dec(),
		MaxPerCall:   MaxPerCall,
		MaxJackpots:  MaxJackpots,
	}
}

func (e *Engine) stateObs() protocol.StateObs {
	issued := make([]int, drop.FinishCount)
	for f := drop.Finish(0); f < drop.FinishCount; f++ {
		issued[f] = int(e.ledger.Issued(f))
	}
	return protocol.StateObs{
		Phase:           e.phase.String(),
		TotalIssued:     int(e.ledger.TotalIssued()),
		Remaining:       int(e.ledger.Remaining()),
		IssuedByFinish:  issued,
		JackpotsAwarded: e.jackpots,
		AllowlistRoot:   hexDigest(e.allowRoot),
		VaultWei:        e.vault.Dec(),
		OpSeq:           e.opSeq,
		OpDigest:        hexDigest(e.opDigest),
	}
}

// StateObs is the exported read-model view.
func (e *Engine) StateObs() protocol.StateObs { return e.stateObs() }

// GemObs reports a gem's core record plus its registry owner, or false if
// the id was never issued.
func (e *Engine) GemObs(id drop.GemID) (protocol.GemObs, bool) {
	g, ok := e.gems[id]
	if !ok {
		return protocol.GemObs{}, false
	}
	obs := protocol.GemObs{
		GemID:  uint32(g.ID),
		Finish: g.Finish.String(),
		Used:   g.Used,
	}
	if owner, ok := e.owners.OwnerOf(id); ok {
		obs.Owner = owner.Hex()
	}
	return obs, true
}

// FinishMeta resolves one finish to its cap, live count, and the static
// metadata reference from config.
func (e *Engine) FinishMeta(f drop.Finish) (protocol.FinishMeta, bool) {
	if !f.Valid() {
		return protocol.FinishMeta{}, false
	}
	return protocol.FinishMeta{
		Finish: f.String(),
		Cap:    int(drop.PoolCaps[f]),
		Issued: int(e.ledger.Issued(f)),
		Ref:    e.cfg.FinishRefs[f],
	}, true
}

func (e *Engine) broadcastEvent(ev protocol.EventMsg) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	for _, cs := range e.sessions {
		if cs.Out == nil {
			continue
		}
		select {
		case cs.Out <- b:
		default:
			// Slow consumer: drop the event rather than stall the engine.
		}
	}
}

func hexDigest(d [32]byte) string { return "0x" + hex.EncodeToString(d[:]) }
