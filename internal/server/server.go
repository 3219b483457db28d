// Package server exposes the simulation over HTTP and WebSocket.
//
// The server is an optional front end: the interactive CLI drives the same
// [Simulation] surface directly. Routes:
//
//   - GET  /healthz          — liveness probe.
//   - GET  /readyz           — readiness probe (engine and provider checks).
//   - GET  /metrics          — Prometheus metrics scrape endpoint.
//   - GET  /api/status       — current simulation snapshot as JSON.
//   - POST /api/turn         — execute the next character turn.
//   - POST /api/intervention — apply an operator intervention command.
//   - POST /api/end          — end the scene and run long-term updates.
//   - GET  /ws               — status snapshot stream over WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/dramaturg/internal/engine"
	"github.com/MrWong99/dramaturg/internal/health"
	"github.com/MrWong99/dramaturg/internal/observe"
)

// Simulation is the surface the HTTP front end drives. It is implemented by
// [github.com/MrWong99/dramaturg/internal/app.App], which serialises access
// to the underlying engine and publishes status snapshots to subscribers.
type Simulation interface {
	// Status returns the current simulation snapshot.
	Status() engine.Status

	// Step executes the next character turn. The bool reports whether the
	// scene completed as a result.
	Step(ctx context.Context) (bool, error)

	// Intervene parses and applies an operator command. The bool reports
	// success; the string is operator feedback either way.
	Intervene(ctx context.Context, command string) (bool, string)

	// EndScene ends the scene, running long-term updates for all
	// participants.
	EndScene(ctx context.Context) error

	// Subscribe registers a status listener. The returned cancel function
	// must be called when the listener is done.
	Subscribe() (<-chan engine.Status, func())
}

// Server serves the HTTP and WebSocket API for a running simulation.
type Server struct {
	sim     Simulation
	logger  *slog.Logger
	handler http.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds a Server around sim. Requests pass through the observability
// middleware, which records duration metrics and propagates trace context.
// The extra checkers are evaluated by the readiness probe in addition to the
// built-in engine state check.
func New(sim Simulation, m *observe.Metrics, checkers []health.Checker, opts ...Option) *Server {
	s := &Server{
		sim:    sim,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	all := append([]health.Checker{{
		Name: "engine",
		Check: func(context.Context) error {
			if st := sim.Status(); st.State == engine.StateError {
				return errors.New("engine is in error state")
			}
			return nil
		},
	}}, checkers...)

	mux := http.NewServeMux()
	health.New(all).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/turn", s.handleTurn)
	mux.HandleFunc("POST /api/intervention", s.handleIntervention)
	mux.HandleFunc("POST /api/end", s.handleEnd)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.handler = observe.Middleware(m)(mux)
	return s
}

// Handler returns the root [http.Handler] with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// turnResponse is the body returned by POST /api/turn.
type turnResponse struct {
	Completed bool          `json:"completed"`
	Status    engine.Status `json:"status"`
}

// interventionRequest is the body accepted by POST /api/intervention.
type interventionRequest struct {
	Command string `json:"command"`
}

// interventionResponse is the body returned by POST /api/intervention.
type interventionResponse struct {
	OK      bool          `json:"ok"`
	Message string        `json:"message"`
	Status  engine.Status `json:"status"`
}

// errorResponse is the body returned for failed requests.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.Status())
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	completed, err := s.sim.Step(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrNotRunning) {
			status = http.StatusConflict
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{Completed: completed, Status: s.sim.Status()})
}

func (s *Server) handleIntervention(w http.ResponseWriter, r *http.Request) {
	var req interventionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if req.Command == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "command is required"})
		return
	}

	ok, msg := s.sim.Intervene(r.Context(), req.Command)
	status := http.StatusOK
	if !ok {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, interventionResponse{OK: ok, Message: msg, Status: s.sim.Status()})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if err := s.sim.EndScene(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrNotRunning) {
			status = http.StatusConflict
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.sim.Status())
}

// handleWS streams status snapshots to the client. The current snapshot is
// sent immediately on connect, then one message per update until the client
// disconnects. Slow clients are disconnected rather than allowed to block
// the publisher.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "server closing")

	ctx := r.Context()
	updates, cancel := s.sim.Subscribe()
	defer cancel()

	if err := writeWS(ctx, conn, s.sim.Status()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return
		case st, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "stream closed")
				return
			}
			if err := writeWS(ctx, conn, st); err != nil {
				s.logger.Debug("websocket write failed, dropping client", "err", err)
				return
			}
		}
	}
}

// writeWS marshals v and writes it as a single text message.
func writeWS(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
