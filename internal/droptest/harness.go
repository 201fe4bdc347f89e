// Package droptest is a black-box test helper for driving an engine through
// its exported surface only:
//   - Join() issues JoinRequest via StepOnce()
//   - Act()/ActOne() issue ACT via StepOnce()
//   - per-session Out channels carry RESULT and EVENT JSON
//
// It deliberately avoids engine internals so tests can live outside the
// engine package.
package droptest

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"gemdrop.xyz/internal/drop"
	"gemdrop.xyz/internal/engine"
	"gemdrop.xyz/internal/protocol"
)

type Harness struct {
	T *testing.T
	E *engine.Engine

	sessions map[string]*session
}

type session struct {
	ID      string
	Address common.Address
	Out     chan []byte

	results []protocol.ResultMsg
	events  []protocol.EventMsg
}

// Addr derives a distinct test address from a single byte.
func Addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	a[0] = 0xd0
	return a
}

// Operator is the operator address used by DefaultConfig.
var Operator = Addr(0xee)

const OperatorToken = "test-operator-token"

// DefaultConfig prices one unit at 1000 wei with a 5000 wei jackpot and
// starts CLOSED; tests open phases through operator instants.
func DefaultConfig() engine.Config {
	return engine.Config{
		UnitPrice:     uint256.NewInt(1000),
		Jackpot:       uint256.NewInt(5000),
		Operator:      Operator,
		OperatorToken: OperatorToken,
		StartPhase:    drop.PhaseClosed,
	}
}

func NewHarness(t *testing.T, cfg engine.Config) *Harness {
	t.Helper()
	e := engine.New(cfg, log.New(io.Discard, "", 0))
	// Deterministic finishes unless a test swaps the source back.
	e.SetEntropy(&drop.SeqSource{})
	return NewHarnessWithEngine(t, e)
}

// NewHarnessWithEngine wraps an already-constructed engine, e.g. one that
// imported a snapshot before any traffic.
func NewHarnessWithEngine(t *testing.T, e *engine.Engine) *Harness {
	t.Helper()
	if e == nil {
		t.Fatalf("NewHarnessWithEngine: nil engine")
	}
	return &Harness{T: t, E: e, sessions: map[string]*session{}}
}

func (h *Harness) Join(addr common.Address) string {
	return h.join(addr, "")
}

func (h *Harness) JoinOperator() string {
	return h.join(Operator, OperatorToken)
}

func (h *Harness) join(addr common.Address, token string) string {
	h.T.Helper()

	out := make(chan []byte, 64)
	resp := make(chan engine.JoinResponse, 1)
	h.E.StepOnce([]engine.JoinRequest{{
		Address:       addr,
		OperatorToken: token,
		Out:           out,
		Resp:          resp,
	}}, nil, nil)
	jr := <-resp
	if jr.SessionID == "" {
		h.T.Fatalf("join returned empty session id")
	}
	h.sessions[jr.SessionID] = &session{ID: jr.SessionID, Address: addr, Out: out}
	return jr.SessionID
}

func (h *Harness) Welcome(addr common.Address) protocol.WelcomeMsg {
	h.T.Helper()

	out := make(chan []byte, 64)
	resp := make(chan engine.JoinResponse, 1)
	h.E.StepOnce([]engine.JoinRequest{{Address: addr, Out: out, Resp: resp}}, nil, nil)
	jr := <-resp
	h.sessions[jr.SessionID] = &session{ID: jr.SessionID, Address: addr, Out: out}
	return jr.Welcome
}

func (h *Harness) Leave(sessionID string) {
	h.T.Helper()
	h.E.StepOnce(nil, []string{sessionID}, nil)
	delete(h.sessions, sessionID)
}

// Act submits one ACT with the given instants and returns one RESULT per
// instant, in order.
func (h *Harness) Act(sessionID string, instants ...protocol.InstantReq) []protocol.ResultMsg {
	h.T.Helper()
	s := h.sessions[sessionID]
	if s == nil {
		h.T.Fatalf("unknown session id: %q", sessionID)
	}
	for i := range instants {
		if instants[i].ID == "" {
			instants[i].ID = fmt.Sprintf("i%d", i)
		}
	}
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Instants:        instants,
	}
	h.E.StepOnce(nil, nil, []engine.ActionEnvelope{{SessionID: sessionID, Act: act}})
	h.drainAll()

	if len(s.results) < len(instants) {
		h.T.Fatalf("expected %d results, got %d", len(instants), len(s.results))
	}
	res := s.results[len(s.results)-len(instants):]
	s.results = s.results[:len(s.results)-len(instants)]
	return res
}

func (h *Harness) ActOne(sessionID string, inst protocol.InstantReq) protocol.ResultMsg {
	h.T.Helper()
	return h.Act(sessionID, inst)[0]
}

// MustAccept fails the test unless the instant is accepted.
func (h *Harness) MustAccept(sessionID string, inst protocol.InstantReq) protocol.ResultMsg {
	h.T.Helper()
	res := h.ActOne(sessionID, inst)
	if !res.Accepted {
		h.T.Fatalf("%s rejected: %s %s", inst.Type, res.Code, res.Message)
	}
	return res
}

// MustReject fails the test unless the instant is rejected with the code.
func (h *Harness) MustReject(sessionID string, inst protocol.InstantReq, code string) protocol.ResultMsg {
	h.T.Helper()
	res := h.ActOne(sessionID, inst)
	if res.Accepted {
		h.T.Fatalf("%s accepted, wanted rejection %s", inst.Type, code)
	}
	if res.Code != code {
		h.T.Fatalf("%s rejected with %s (%s), wanted %s", inst.Type, res.Code, res.Message, code)
	}
	return res
}

// Events returns and clears the events received by a session so far.
func (h *Harness) Events(sessionID string) []protocol.EventMsg {
	h.T.Helper()
	h.drainAll()
	s := h.sessions[sessionID]
	if s == nil {
		h.T.Fatalf("unknown session id: %q", sessionID)
	}
	ev := s.events
	s.events = nil
	return ev
}

// OpenPhase drives SET_PHASE through a fresh operator session.
func (h *Harness) OpenPhase(phase drop.Phase) {
	h.T.Helper()
	op := h.JoinOperator()
	h.MustAccept(op, protocol.InstantReq{Type: protocol.InstSetPhase, Phase: phase.String()})
	h.Leave(op)
}

// SetRoot drives SET_ALLOWLIST_ROOT through a fresh operator session.
func (h *Harness) SetRoot(root [32]byte) {
	h.T.Helper()
	op := h.JoinOperator()
	h.MustAccept(op, protocol.InstantReq{Type: protocol.InstSetRoot, Root: hexDigest(root)})
	h.Leave(op)
}

func (h *Harness) State(sessionID string) protocol.StateObs {
	h.T.Helper()
	res := h.MustAccept(sessionID, protocol.InstantReq{Type: protocol.InstGetState})
	if res.State == nil {
		h.T.Fatalf("GET_STATE returned no state")
	}
	return *res.State
}

func (h *Harness) drainAll() {
	h.T.Helper()
	for _, s := range h.sessions {
		h.drainOne(s)
	}
}

func (h *Harness) drainOne(s *session) {
	h.T.Helper()
	for {
		select {
		case b := <-s.Out:
			base, err := protocol.DecodeBase(b)
			if err != nil {
				h.T.Fatalf("decode message: %v", err)
			}
			switch base.Type {
			case protocol.TypeResult:
				var res protocol.ResultMsg
				if err := json.Unmarshal(b, &res); err != nil {
					h.T.Fatalf("unmarshal RESULT: %v", err)
				}
				s.results = append(s.results, res)
			case protocol.TypeEvent:
				var ev protocol.EventMsg
				if err := json.Unmarshal(b, &ev); err != nil {
					h.T.Fatalf("unmarshal EVENT: %v", err)
				}
				s.events = append(s.events, ev)
			}
			continue
		default:
		}
		return
	}
}

func hexDigest(d [32]byte) string {
	const hexits = "0123456789abcdef"
	out := make([]byte, 2, 66)
	out[0], out[1] = '0', 'x'
	for _, b := range d {
		out = append(out, hexits[b>>4], hexits[b&0x0f])
	}
	return string(out)
}
