// Package indexdb maintains a sqlite read-model index over the op and
// audit streams. It is strictly secondary: the JSONL logs and snapshots
// are the source of truth, and the index may drop writes under pressure
// rather than stall the engine.
package indexdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"gemdrop.xyz/internal/engine"
	"gemdrop.xyz/internal/persistence/snapshot"
)

type SQLiteIndex struct {
	db   *sql.DB
	path string

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders writers against Close: writers hold the read lock across
	// the closed check and the channel send, so Close cannot close the
	// channel between the two.
	mu     sync.RWMutex
	closed bool
}

type reqKind int

const (
	reqOp reqKind = iota + 1
	reqAudit
	reqSnapshot
)

type req struct {
	kind reqKind

	op       engine.OpLogEntry
	audit    engine.AuditEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	OpSeq    uint64
	Path     string
	Total    int
	Gems     int
	Jackpots int
	VaultWei string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:   db,
		path: path,
		ch:   make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ops (
			seq INTEGER PRIMARY KEY,
			kind TEXT NOT NULL,
			address TEXT NOT NULL,
			gem_ids TEXT,
			value_wei TEXT,
			phase TEXT,
			root TEXT,
			digest TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ops_address ON ops(address, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_ops_kind ON ops(kind, seq);`,
		`CREATE TABLE IF NOT EXISTS audits (
			rowid_seq INTEGER PRIMARY KEY AUTOINCREMENT,
			op_seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			code TEXT,
			accepted INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor ON audits(actor, op_seq);`,
		`CREATE TABLE IF NOT EXISTS gems (
			id INTEGER PRIMARY KEY,
			finish TEXT NOT NULL,
			owner TEXT NOT NULL,
			used INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_gems_owner ON gems(owner);`,
		`CREATE INDEX IF NOT EXISTS idx_gems_finish ON gems(finish);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			op_seq INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			total_issued INTEGER NOT NULL,
			gems INTEGER NOT NULL,
			jackpots INTEGER NOT NULL,
			vault_wei TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the database file location.
func (s *SQLiteIndex) Path() string { return s.path }

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// enqueue hands one request to the writer goroutine, or drops it if the
// index is closed or the writer has fallen behind; JSONL logs remain the
// source of truth either way.
func (s *SQLiteIndex) enqueue(r req) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- r:
	default:
	}
}

func (s *SQLiteIndex) WriteOp(entry engine.OpLogEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqOp, op: entry})
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry engine.AuditEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqAudit, audit: entry})
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		OpSeq:    snap.Header.OpSeq,
		Path:     path,
		Total:    int(snap.TotalIssued),
		Gems:     len(snap.Gems),
		Jackpots: snap.Jackpots,
		VaultWei: snap.VaultWei,
	}})
}

func (s *SQLiteIndex) loop() {
	for r := range s.ch {
		switch r.kind {
		case reqOp:
			s.applyOp(r.op)
		case reqAudit:
			s.applyAudit(r.audit)
		case reqSnapshot:
			s.applySnapshot(r.snapshot)
		}
	}
}

func (s *SQLiteIndex) applyOp(entry engine.OpLogEntry) {
	raw, _ := json.Marshal(entry)
	ids, _ := json.Marshal(entry.GemIDs)
	_, _ = s.db.Exec(
		`INSERT OR REPLACE INTO ops (seq, kind, address, gem_ids, value_wei, phase, root, digest, raw_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Seq, entry.Kind, entry.Address, string(ids), entry.ValueWei, entry.Phase, entry.Root, entry.Digest, string(raw),
	)

	// Project the op onto the gems read model.
	switch entry.Kind {
	case "MINT":
		for i, id := range entry.GemIDs {
			finish := ""
			if i < len(entry.Finishes) {
				finish = entry.Finishes[i]
			}
			_, _ = s.db.Exec(
				`INSERT OR IGNORE INTO gems (id, finish, owner, used) VALUES (?, ?, ?, 0)`,
				id, finish, entry.Address,
			)
		}
	case "CLAIM":
		for _, id := range entry.GemIDs {
			_, _ = s.db.Exec(`UPDATE gems SET used = 1 WHERE id = ?`, id)
		}
	case "TRANSFER":
		// The op records the caller; ownership truth stays with the engine,
		// so re-resolve lazily: the snapshot projection corrects any drift.
	}
}

func (s *SQLiteIndex) applyAudit(entry engine.AuditEntry) {
	raw, _ := json.Marshal(entry)
	accepted := 0
	if entry.Accepted {
		accepted = 1
	}
	_, _ = s.db.Exec(
		`INSERT INTO audits (op_seq, actor, action, code, accepted, raw_json) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Seq, entry.Actor, entry.Action, entry.Code, accepted, string(raw),
	)
}

func (s *SQLiteIndex) applySnapshot(r snapshotRow) {
	_, _ = s.db.Exec(
		`INSERT OR REPLACE INTO snapshots (op_seq, path, total_issued, gems, jackpots, vault_wei)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.OpSeq, r.Path, r.Total, r.Gems, r.Jackpots, r.VaultWei,
	)
}

// ReconcileGems overwrites the gems projection from a snapshot, fixing any
// drift accumulated from dropped writes or transfers.
func (s *SQLiteIndex) ReconcileGems(snap snapshot.SnapshotV1) error {
	if s == nil {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM gems`); err != nil {
		return err
	}
	for _, g := range snap.Gems {
		used := 0
		if g.Used {
			used = 1
		}
		if _, err := tx.Exec(
			`INSERT INTO gems (id, finish, owner, used) VALUES (?, ?, ?, ?)`,
			g.ID, finishName(g.Finish), g.Owner, used,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type GemRow struct {
	ID     uint32 `json:"id"`
	Finish string `json:"finish"`
	Owner  string `json:"owner"`
	Used   bool   `json:"used"`
}

func (s *SQLiteIndex) GemByID(id uint32) (GemRow, bool, error) {
	var g GemRow
	var used int
	err := s.db.QueryRow(`SELECT id, finish, owner, used FROM gems WHERE id = ?`, id).
		Scan(&g.ID, &g.Finish, &g.Owner, &used)
	if err == sql.ErrNoRows {
		return g, false, nil
	}
	if err != nil {
		return g, false, err
	}
	g.Used = used != 0
	return g, true, nil
}

func (s *SQLiteIndex) GemsByOwner(owner string) ([]GemRow, error) {
	rows, err := s.db.Query(`SELECT id, finish, owner, used FROM gems WHERE owner = ? ORDER BY id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GemRow
	for rows.Next() {
		var g GemRow
		var used int
		if err := rows.Scan(&g.ID, &g.Finish, &g.Owner, &used); err != nil {
			return nil, err
		}
		g.Used = used != 0
		out = append(out, g)
	}
	return out, rows.Err()
}

// RecentOps returns the newest ops first, raw JSON per row.
func (s *SQLiteIndex) RecentOps(limit int) ([]json.RawMessage, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT raw_json FROM ops ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, json.RawMessage(raw))
	}
	return out, rows.Err()
}

// LatestSnapshotPath returns the most recent recorded snapshot file, or ""
// if none has been taken yet.
func (s *SQLiteIndex) LatestSnapshotPath() (string, error) {
	var path string
	err := s.db.QueryRow(`SELECT path FROM snapshots ORDER BY op_seq DESC LIMIT 1`).Scan(&path)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return path, err
}

func finishName(f uint8) string {
	names := [...]string{"COMMON", "BLACK", "WHITE", "SILVER", "GOLD", "DIAMOND"}
	if int(f) < len(names) {
		return names[f]
	}
	return "INVALID"
}
