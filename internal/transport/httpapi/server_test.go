package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"gemdrop.xyz/internal/engine"
	"gemdrop.xyz/internal/persistence/indexdb"
	"gemdrop.xyz/internal/protocol"
)

func startAPI(t *testing.T, idx *indexdb.SQLiteIndex) *httptest.Server {
	t.Helper()
	logger := log.New(io.Discard, "", 0)

	e := engine.New(engine.Config{}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = e.Run(ctx) }()
	t.Cleanup(cancel)

	mux := http.NewServeMux()
	NewServer(e, idx, logger).Routes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func TestHealthAndState(t *testing.T) {
	ts := startAPI(t, nil)

	resp, _ := get(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}

	resp, body := get(t, ts.URL+"/v1/state")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state status %d", resp.StatusCode)
	}
	var obs protocol.StateObs
	if err := json.Unmarshal(body, &obs); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if obs.Phase != "CLOSED" || obs.TotalIssued != 0 || obs.Remaining != 999 {
		t.Fatalf("fresh state %+v", obs)
	}
}

func TestGemLookups(t *testing.T) {
	// Same checksummed form the engine writes into op entries.
	owner := common.HexToAddress("0xd000000000000000000000000000000000000001").Hex()

	idx, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_ = idx.WriteOp(engine.OpLogEntry{
		Seq: 1, Kind: "MINT", Address: owner,
		GemIDs: []uint32{7}, Finishes: []string{"GOLD"}, ValueWei: "1000", Digest: "aa",
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	idx, err = indexdb.OpenSQLite(idx.Path())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })

	ts := startAPI(t, idx)

	resp, body := get(t, ts.URL+"/v1/gems/7")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("gem status %d", resp.StatusCode)
	}
	var row indexdb.GemRow
	if err := json.Unmarshal(body, &row); err != nil {
		t.Fatalf("unmarshal gem: %v", err)
	}
	if row.Finish != "GOLD" || row.Owner != owner {
		t.Fatalf("gem row %+v", row)
	}

	resp, _ = get(t, ts.URL+"/v1/gems/8")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing gem status %d", resp.StatusCode)
	}
	resp, _ = get(t, ts.URL+"/v1/gems/banana")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id status %d", resp.StatusCode)
	}

	resp, body = get(t, ts.URL+"/v1/owners/"+owner+"/gems")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner status %d", resp.StatusCode)
	}
	var rows []indexdb.GemRow
	if err := json.Unmarshal(body, &rows); err != nil {
		t.Fatalf("unmarshal rows: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != 7 {
		t.Fatalf("owner rows %+v", rows)
	}

	resp, body = get(t, ts.URL+"/v1/ops?limit=10")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ops status %d", resp.StatusCode)
	}
	var ops []json.RawMessage
	if err := json.Unmarshal(body, &ops); err != nil {
		t.Fatalf("unmarshal ops: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("ops rows %d", len(ops))
	}

	// Unparseable limits are the caller's error, not a silent default.
	resp, _ = get(t, ts.URL+"/v1/ops?limit=banana")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status %d", resp.StatusCode)
	}
}
