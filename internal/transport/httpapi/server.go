// Package httpapi serves the read-only REST mirror of the drop state. Live
// state comes from the engine goroutine via QueryState; gem and op lookups
// come from the sqlite read model, which may lag slightly behind.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"gemdrop.xyz/internal/engine"
	"gemdrop.xyz/internal/persistence/indexdb"
)

type Server struct {
	eng   *engine.Engine
	index *indexdb.SQLiteIndex
	log   *log.Logger
}

func NewServer(eng *engine.Engine, index *indexdb.SQLiteIndex, logger *log.Logger) *Server {
	return &Server{eng: eng, index: index, log: logger}
}

func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/state", s.handleState)
	mux.HandleFunc("GET /v1/gems/{id}", s.handleGem)
	mux.HandleFunc("GET /v1/owners/{address}/gems", s.handleOwnerGems)
	mux.HandleFunc("GET /v1/ops", s.handleOps)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	obs, err := s.eng.QueryState(ctx)
	if err != nil {
		http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

func (s *Server) handleGem(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		http.Error(w, "index disabled", http.StatusNotImplemented)
		return
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		http.Error(w, "bad gem id", http.StatusBadRequest)
		return
	}
	row, ok, err := s.index.GemByID(uint32(id))
	if err != nil {
		s.log.Printf("gem lookup failed: %v", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "gem not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleOwnerGems(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		http.Error(w, "index disabled", http.StatusNotImplemented)
		return
	}
	addr := strings.TrimSpace(r.PathValue("address"))
	if !common.IsHexAddress(addr) {
		http.Error(w, "bad address", http.StatusBadRequest)
		return
	}
	rows, err := s.index.GemsByOwner(common.HexToAddress(addr).Hex())
	if err != nil {
		s.log.Printf("owner lookup failed: %v", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []indexdb.GemRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleOps(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		http.Error(w, "index disabled", http.StatusNotImplemented)
		return
	}
	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	ops, err := s.index.RecentOps(limit)
	if err != nil {
		s.log.Printf("ops lookup failed: %v", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if ops == nil {
		ops = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, ops)
}

func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
