package agent

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dusk-indust/inquest/internal/ctxstore"
)

// Server hosts one Adapter on HTTP so a remote orchestrator can drive it.
type Server struct {
	adapter Adapter
	http    *http.Server
}

// NewServer creates a Server for the given adapter.
func NewServer(adapter Adapter) *Server {
	return &Server{adapter: adapter}
}

// Handler returns the HTTP handler serving the card and run routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /card", s.handleCard)
	mux.HandleFunc("POST /run", s.handleRun)
	return mux
}

// Start begins serving on addr. It returns immediately after starting the
// server in a background goroutine.
func (s *Server) Start(_ context.Context, addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.Handler()}
	go s.http.ListenAndServe()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cardResponse{Kind: s.adapter.Kind()}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRunError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}

	snap := ctxstore.Rehydrate(req.SnapshotVersion, req.SnapshotPhase, req.Entries)
	result, err := s.adapter.Run(r.Context(), snap)
	if err != nil {
		writeRunError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(runResponse{Result: result})
}

func writeRunError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(runResponse{Error: msg})
}
