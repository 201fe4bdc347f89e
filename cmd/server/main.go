package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"gemdrop.xyz/internal/engine"
	"gemdrop.xyz/internal/persistence/indexdb"
	persistlog "gemdrop.xyz/internal/persistence/log"
	"gemdrop.xyz/internal/persistence/snapshot"
	"gemdrop.xyz/internal/transport/httpapi"
	"gemdrop.xyz/internal/transport/ws"
	"gemdrop.xyz/internal/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/drop.yaml", "path to drop.yaml")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read-model index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	_ = os.MkdirAll(*dataDir, 0o755)

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(*dataDir)
	}

	// Tuning is required for a fresh drop; a snapshot resume can fall back to
	// defaults since the snapshot carries the live state.
	tune, tuneErr := tuning.Load(*tuningPath)
	if tuneErr != nil {
		if snapshotToLoad == "" || !os.IsNotExist(tuneErr) {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	cfg, err := engine.ConfigFromTuning(tune)
	if err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	e := engine.New(cfg, logger)
	e.SetSessionIDFunc(func() string { return uuid.NewString() })

	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := e.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		if idx != nil {
			if err := idx.ReconcileGems(snap); err != nil {
				logger.Printf("index reconcile: %v", err)
			}
		}
		logger.Printf("resumed from snapshot=%s op_seq=%d issued=%d",
			filepath.Base(snapshotToLoad), e.OpSeq(), e.TotalIssued())
	}

	ctx, cancel := signalContext()
	defer cancel()

	opLog := persistlog.NewOpLogger(*dataDir)
	auditLog := persistlog.NewAuditLogger(*dataDir)
	defer opLog.Close()
	defer auditLog.Close()
	e.SetOpLogger(multiOpLogger{a: opLog, b: idx})
	e.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	e.SetSnapshotSink(tune.SnapshotEveryOps, snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(*dataDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.OpSeq))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
					if err := idx.ReconcileGems(snap); err != nil {
						logger.Printf("index reconcile: %v", err)
					}
				}
			}
		}
	}()

	go func() {
		if err := e.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("engine stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	httpapi.NewServer(e, idx, logger).Routes(mux)
	mux.HandleFunc("/metrics", metricsHandler(e))
	if envBool("GD_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(e, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func metricsHandler(e *engine.Engine) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		obs, err := e.QueryState(ctx)
		if err != nil {
			http.Error(rw, "engine unavailable", http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP gemdrop_total_issued Gems issued so far.\n")
		fmt.Fprintf(rw, "# TYPE gemdrop_total_issued gauge\n")
		fmt.Fprintf(rw, "gemdrop_total_issued %d\n", obs.TotalIssued)

		fmt.Fprintf(rw, "# HELP gemdrop_remaining Gems still mintable.\n")
		fmt.Fprintf(rw, "# TYPE gemdrop_remaining gauge\n")
		fmt.Fprintf(rw, "gemdrop_remaining %d\n", obs.Remaining)

		fmt.Fprintf(rw, "# HELP gemdrop_issued_by_finish Gems issued per finish.\n")
		fmt.Fprintf(rw, "# TYPE gemdrop_issued_by_finish gauge\n")
		finishes := []string{"COMMON", "BLACK", "WHITE", "SILVER", "GOLD", "DIAMOND"}
		for i, n := range obs.IssuedByFinish {
			fmt.Fprintf(rw, "gemdrop_issued_by_finish{finish=%q} %d\n", finishes[i], n)
		}

		fmt.Fprintf(rw, "# HELP gemdrop_jackpots_awarded Jackpots awarded.\n")
		fmt.Fprintf(rw, "# TYPE gemdrop_jackpots_awarded gauge\n")
		fmt.Fprintf(rw, "gemdrop_jackpots_awarded %d\n", obs.JackpotsAwarded)

		fmt.Fprintf(rw, "# HELP gemdrop_op_seq Accepted operation sequence number.\n")
		fmt.Fprintf(rw, "# TYPE gemdrop_op_seq counter\n")
		fmt.Fprintf(rw, "gemdrop_op_seq %d\n", obs.OpSeq)

		fmt.Fprintf(rw, "# HELP gemdrop_phase Sale phase (0 closed, 1 presale, 2 open).\n")
		fmt.Fprintf(rw, "# TYPE gemdrop_phase gauge\n")
		fmt.Fprintf(rw, "gemdrop_phase %d\n", phaseGauge(obs.Phase))
	}
}

func phaseGauge(phase string) int {
	switch phase {
	case "PRESALE":
		return 1
	case "OPEN":
		return 2
	default:
		return 0
	}
}

// multiOpLogger fans op entries out to the JSONL log and the sqlite index.
type multiOpLogger struct {
	a engine.OpLogger
	b *indexdb.SQLiteIndex
}

func (m multiOpLogger) WriteOp(entry engine.OpLogEntry) error {
	err := m.a.WriteOp(entry)
	if m.b != nil {
		_ = m.b.WriteOp(entry)
	}
	return err
}

type multiAuditLogger struct {
	a engine.AuditLogger
	b *indexdb.SQLiteIndex
}

func (m multiAuditLogger) WriteAudit(entry engine.AuditEntry) error {
	err := m.a.WriteAudit(entry)
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return err
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(dataDir string) string {
	dir := filepath.Join(dataDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	type cand struct {
		seq  uint64
		path string
	}
	var cands []cand
	for _, ent := range ents {
		name := ent.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		cands = append(cands, cand{seq: seq, path: filepath.Join(dir, name)})
	}
	if len(cands) == 0 {
		return ""
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].seq > cands[j].seq })
	return cands[0].path
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
