package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version int    `json:"version"`
	OpSeq   uint64 `json:"op_seq"`
}

// SnapshotV1 is the full engine state at an op boundary. Rows are plain
// values (hex strings for addresses and digests) so the format stays
// decodable without the domain packages.
type SnapshotV1 struct {
	Header Header `json:"header"`

	OpDigest      string `json:"op_digest"`
	Phase         string `json:"phase"`
	AllowlistRoot string `json:"allowlist_root"`

	TotalIssued    uint16    `json:"total_issued"`
	IssuedByFinish [6]uint16 `json:"issued_by_finish"`

	Gems      []GemV1  `json:"gems"`
	Claimants []string `json:"claimants"`
	Jackpots  int      `json:"jackpots"`
	VaultWei  string   `json:"vault_wei"`
}

type GemV1 struct {
	ID     uint32 `json:"id"`
	Finish uint8  `json:"finish"`
	Used   bool   `json:"used"`
	Owner  string `json:"owner"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Header line is advisory; gob carries it too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
