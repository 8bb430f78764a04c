// Package server exposes the engine over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/notegraph/notegraph/internal/bus"
	ngerrors "github.com/notegraph/notegraph/internal/errors"
	"github.com/notegraph/notegraph/internal/link"
	"github.com/notegraph/notegraph/internal/search"
	"github.com/notegraph/notegraph/internal/store"
	"github.com/notegraph/notegraph/internal/synthesis"
	"github.com/notegraph/notegraph/internal/workflow"
)

// Timeouts for the HTTP listener.
const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Options carries the component wiring for the server.
type Options struct {
	Store     *store.Store
	Searcher  *search.Searcher
	Assembler *synthesis.Assembler
	Linker    *link.Engine
	Workflows *workflow.Engine
	Bus       *bus.Bus
}

// Server is the HTTP API surface.
type Server struct {
	store     *store.Store
	searcher  *search.Searcher
	assembler *synthesis.Assembler
	linker    *link.Engine
	workflows *workflow.Engine
	bus       *bus.Bus

	http *http.Server
}

// New creates a server bound to addr.
func New(addr string, opts Options) *Server {
	s := &Server{
		store:     opts.Store,
		searcher:  opts.Searcher,
		assembler: opts.Assembler,
		linker:    opts.Linker,
		workflows: opts.Workflows,
		bus:       opts.Bus,
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /answer", s.handleAnswer)
	mux.HandleFunc("GET /facets", s.handleFacets)
	mux.HandleFunc("GET /stats", s.handleStats)

	mux.HandleFunc("GET /links/pending", s.handlePendingList)
	mux.HandleFunc("POST /links/pending/{id}/approve", s.handlePendingApprove)
	mux.HandleFunc("POST /links/pending/{id}/reject", s.handlePendingReject)

	mux.HandleFunc("POST /workflows", s.handleWorkflowCreate)
	mux.HandleFunc("GET /workflows", s.handleWorkflowList)
	mux.HandleFunc("GET /workflows/{id}", s.handleWorkflowStatus)
	mux.HandleFunc("POST /workflows/{id}/start", s.handleWorkflowStart)
	mux.HandleFunc("POST /workflows/{id}/cancel", s.handleWorkflowCancel)
	return mux
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return ngerrors.Wrap(ngerrors.KindDependency, "bind "+s.http.Addr, err)
	}
	slog.Info("http server listening", slog.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// writeJSON emits a success envelope. The payload map is extended with the
// success flag.
func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	payload["success"] = true
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("response encode failed", slog.String("error", err.Error()))
	}
}

// writeError maps the error kind to an HTTP status and emits a failure
// envelope.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch ngerrors.KindOf(err) {
	case ngerrors.KindNotFound:
		status = http.StatusNotFound
	case ngerrors.KindInvalidInput:
		status = http.StatusBadRequest
	case ngerrors.KindConflict:
		status = http.StatusConflict
	case ngerrors.KindTimeout:
		status = http.StatusGatewayTimeout
	case ngerrors.KindDependency:
		status = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{}
	if s.bus != nil {
		payload["bus"] = s.bus.GetStats()
	}
	if s.store != nil {
		if stats, err := s.store.Statistics(r.Context()); err == nil {
			payload["links"] = stats
		}
	}
	writeJSON(w, http.StatusOK, payload)
}
