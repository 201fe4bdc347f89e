package engine

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"gemdrop.xyz/internal/drop"
	"gemdrop.xyz/internal/persistence/snapshot"
	"gemdrop.xyz/internal/protocol"
	"gemdrop.xyz/internal/registry"
	"gemdrop.xyz/internal/tuning"
)

const (
	// MaxPerCall caps one mint call, not a wallet's lifetime total: repeat
	// calls can exceed it, which is the documented pricing model.
	MaxPerCall = 3

	// MaxJackpots is the system-wide prize cap.
	MaxJackpots = 3

	// JackpotStep gates the nth jackpot behind n*step total issuance.
	JackpotStep = drop.MaxSupply / 3
)

type Config struct {
	UnitPrice     *uint256.Int
	Jackpot       *uint256.Int
	Operator      common.Address
	OperatorToken string
	AllowlistRoot [32]byte
	StartPhase    drop.Phase
	FinishRefs    [drop.FinishCount]string
}

// ConfigFromTuning resolves the yaml tuning into engine config.
func ConfigFromTuning(t tuning.Tuning) (Config, error) {
	var cfg Config
	var err error
	cfg.UnitPrice, err = uint256.FromDecimal(strings.TrimSpace(t.UnitPriceWei))
	if err != nil {
		return cfg, fmt.Errorf("unit_price_wei: %w", err)
	}
	cfg.Jackpot, err = uint256.FromDecimal(strings.TrimSpace(t.JackpotWei))
	if err != nil {
		return cfg, fmt.Errorf("jackpot_wei: %w", err)
	}
	if op := strings.TrimSpace(t.Operator); op != "" {
		if !common.IsHexAddress(op) {
			return cfg, fmt.Errorf("operator: not a hex address: %q", op)
		}
		cfg.Operator = common.HexToAddress(op)
	}
	cfg.OperatorToken = t.OperatorToken
	if r := strings.TrimSpace(t.AllowlistRoot); r != "" {
		root, err := parseDigest(r)
		if err != nil {
			return cfg, fmt.Errorf("allowlist_root: %w", err)
		}
		cfg.AllowlistRoot = root
	}
	phase, ok := drop.ParsePhase(t.StartPhase)
	if !ok {
		return cfg, fmt.Errorf("start_phase: unknown phase %q", t.StartPhase)
	}
	cfg.StartPhase = phase
	for f := drop.Finish(0); f < drop.FinishCount; f++ {
		cfg.FinishRefs[f] = t.FinishRefs[f.String()]
	}
	return cfg, nil
}

type JoinRequest struct {
	Address       common.Address
	OperatorToken string
	Out           chan []byte
	Resp          chan JoinResponse
}

type JoinResponse struct {
	SessionID string
	Welcome   protocol.WelcomeMsg
}

type ActionEnvelope struct {
	SessionID string
	Act       protocol.ActMsg
}

// OpLogger records every accepted state-changing operation, in order, with
// the digest chain. Implemented in internal/persistence.
type OpLogger interface {
	WriteOp(entry OpLogEntry) error
}

// AuditLogger records accepted and rejected requests alike.
type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type OpLogEntry struct {
	Seq      uint64   `json:"seq"`
	Kind     string   `json:"kind"` // MINT, CLAIM, SET_PHASE, SET_ROOT, WITHDRAW, TRANSFER, APPROVE
	Address  string   `json:"address"`
	GemIDs   []uint32 `json:"gem_ids,omitempty"`
	Finishes []string `json:"finishes,omitempty"`
	ValueWei string   `json:"value_wei,omitempty"`
	Phase    string   `json:"phase,omitempty"`
	Root     string   `json:"root,omitempty"`
	Digest   string   `json:"digest"`
}

type AuditEntry struct {
	Seq      uint64 `json:"seq"`
	Actor    string `json:"actor"`
	Action   string `json:"action"`
	Code     string `json:"code,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Accepted bool   `json:"accepted"`
}

type clientState struct {
	Address  common.Address
	Operator bool
	Out      chan []byte
}

// Engine owns every mutable piece of drop state and runs all operations on
// one goroutine. Transports only ever talk to it through the join/leave/
// inbox channels; tests drive it through StepOnce. Nothing outside this
// package writes the ledger, the gem records, or the claim registry.
type Engine struct {
	cfg    Config
	logger *log.Logger

	ledger *drop.Ledger
	gems   map[drop.GemID]*drop.Gem

	phase     drop.Phase
	allowRoot [32]byte

	claimed  map[common.Address]bool
	jackpots int

	vault uint256.Int

	book    *registry.Book
	owners  registry.Owners
	sink    registry.MintSink
	entropy drop.Source

	// Re-entry guard: set for the duration of any mutating operation. The
	// mint notification and the payout are synchronous external calls, so a
	// hostile collaborator can call straight back in; the flag, not the call
	// stack, is what stops it.
	busy bool

	opSeq    uint64
	opDigest [32]byte

	sessions map[string]*clientState
	nextSess uint64

	inbox chan ActionEnvelope
	join  chan JoinRequest
	leave chan string
	query chan chan protocol.StateObs
	stop  chan struct{}

	opLogger    OpLogger
	auditLogger AuditLogger

	snapshotEvery uint64
	snapshotSink  chan<- snapshot.SnapshotV1

	newSessionID func() string
}

func New(cfg Config, logger *log.Logger) *Engine {
	book := registry.NewBook()
	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		ledger:    drop.NewLedger(),
		gems:      map[drop.GemID]*drop.Gem{},
		phase:     cfg.StartPhase,
		allowRoot: cfg.AllowlistRoot,
		claimed:   map[common.Address]bool{},
		book:      book,
		owners:    book,
		sink:      book,
		sessions:  map[string]*clientState{},
		inbox:     make(chan ActionEnvelope, 256),
		join:      make(chan JoinRequest, 64),
		leave:     make(chan string, 64),
		query:     make(chan chan protocol.StateObs, 64),
		stop:      make(chan struct{}),
	}
	e.entropy = &drop.WeakSource{Tip: e.tip}
	return e
}

// SetEntropy swaps the entropy source (tests use a deterministic sequence).
func (e *Engine) SetEntropy(src drop.Source) { e.entropy = src }

// SetMintSink swaps the mint-notification target. The default is the
// in-process registry book; tests substitute hostile sinks.
func (e *Engine) SetMintSink(s registry.MintSink) { e.sink = s }

func (e *Engine) SetOpLogger(l OpLogger)       { e.opLogger = l }
func (e *Engine) SetAuditLogger(l AuditLogger) { e.auditLogger = l }

func (e *Engine) SetSnapshotSink(every uint64, ch chan<- snapshot.SnapshotV1) {
	e.snapshotEvery = every
	e.snapshotSink = ch
}

// Book exposes the in-process registry for read-model indexing.
func (e *Engine) Book() *registry.Book { return e.book }

func (e *Engine) Inbox() chan<- ActionEnvelope { return e.inbox }
func (e *Engine) Join() chan<- JoinRequest     { return e.join }
func (e *Engine) Leave() chan<- string         { return e.leave }

func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stop:
			return nil
		case req := <-e.join:
			e.handleJoin(req)
		case id := <-e.leave:
			delete(e.sessions, id)
		case env := <-e.inbox:
			e.handleAct(env)
		case ch := <-e.query:
			ch <- e.stateObs()
		}
	}
}

func (e *Engine) Stop() { close(e.stop) }

// QueryState fetches the live state view through the engine goroutine, so
// out-of-band readers (the HTTP API) never race the Run loop.
func (e *Engine) QueryState(ctx context.Context) (protocol.StateObs, error) {
	ch := make(chan protocol.StateObs, 1)
	select {
	case e.query <- ch:
	case <-ctx.Done():
		return protocol.StateObs{}, ctx.Err()
	}
	select {
	case obs := <-ch:
		return obs, nil
	case <-ctx.Done():
		return protocol.StateObs{}, ctx.Err()
	}
}

// StepOnce drives the engine synchronously: joins, then leaves, then acts.
// Test-facing mirror of one pass of the Run loop.
func (e *Engine) StepOnce(joins []JoinRequest, leaves []string, acts []ActionEnvelope) {
	for _, j := range joins {
		e.handleJoin(j)
	}
	for _, id := range leaves {
		delete(e.sessions, id)
	}
	for _, env := range acts {
		e.handleAct(env)
	}
}

func (e *Engine) handleJoin(req JoinRequest) {
	e.nextSess++
	id := e.sessionID()
	isOp := req.Address == e.cfg.Operator && e.cfg.Operator != (common.Address{})
	if isOp && e.cfg.OperatorToken != "" && req.OperatorToken != e.cfg.OperatorToken {
		isOp = false
	}
	cs := &clientState{Address: req.Address, Operator: isOp, Out: req.Out}
	e.sessions[id] = cs

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       id,
		Address:         req.Address.Hex(),
		Operator:        isOp,
		Drop:            e.dropParams(),
		State:           e.stateObs(),
	}
	if req.Resp != nil {
		req.Resp <- JoinResponse{SessionID: id, Welcome: welcome}
	}
}

func (e *Engine) sessionID() string {
	if e.newSessionID != nil {
		return e.newSessionID()
	}
	return fmt.Sprintf("S%d", e.nextSess)
}

// SetSessionIDFunc overrides session id generation (the ws transport plugs
// in uuids; the default counter keeps tests readable).
func (e *Engine) SetSessionIDFunc(f func() string) { e.newSessionID = f }

// tip is the rolling digest over accepted operations, the entropy source's
// block-hash analogue.
func (e *Engine) tip() [32]byte { return e.opDigest }

// advanceDigest folds an accepted op into the digest chain and bumps the
// sequence number.
func (e *Engine) advanceDigest(kind string, addr common.Address, payload []byte) {
	e.opSeq++
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], e.opSeq)
	var out [32]byte
	copy(out[:], crypto.Keccak256(e.opDigest[:], seq[:], []byte(kind), addr.Bytes(), payload))
	e.opDigest = out
}

func (e *Engine) logOp(entry OpLogEntry) {
	entry.Seq = e.opSeq
	entry.Digest = hex.EncodeToString(e.opDigest[:])
	if e.opLogger != nil {
		if err := e.opLogger.WriteOp(entry); err != nil && e.logger != nil {
			e.logger.Printf("op log write failed: %v", err)
		}
	}
	e.maybeSnapshot()
}

func (e *Engine) logAudit(actor common.Address, action, code, detail string, accepted bool) {
	if e.auditLogger == nil {
		return
	}
	err := e.auditLogger.WriteAudit(AuditEntry{
		Seq:      e.opSeq,
		Actor:    actor.Hex(),
		Action:   action,
		Code:     code,
		Detail:   detail,
		Accepted: accepted,
	})
	if err != nil && e.logger != nil {
		e.logger.Printf("audit write failed: %v", err)
	}
}

func (e *Engine) maybeSnapshot() {
	if e.snapshotSink == nil || e.snapshotEvery == 0 || e.opSeq%e.snapshotEvery != 0 {
		return
	}
	select {
	case e.snapshotSink <- e.ExportSnapshot():
	default:
		if e.logger != nil {
			e.logger.Printf("snapshot sink full; skipping snapshot at seq %d", e.opSeq)
		}
	}
}

func parseDigest(s string) ([32]byte, error) {
	var out [32]byte
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("digest must be 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
