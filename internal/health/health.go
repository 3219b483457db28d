// Package health serves the liveness and readiness probes of the simulation
// server.
//
//   - GET /healthz reports liveness; a process that answers HTTP is alive.
//   - GET /readyz evaluates every registered [Checker] (engine state, scene
//     log directory, ...) and reports 200 only when all of them pass.
//
// The readiness body is a JSON object with a top-level "status" of "ok" or
// "fail" and a "checks" map holding each checker's outcome.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// defaultCheckTimeout bounds a single readiness check.
const defaultCheckTimeout = 5 * time.Second

// Checker probes one dependency of the running simulation. Check returns nil
// when the dependency is usable and an error naming the problem otherwise.
type Checker struct {
	// Name keys this check in the readiness response, e.g. "engine" or
	// "scene_log".
	Name string

	// Check must honour context cancellation.
	Check func(ctx context.Context) error
}

type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler evaluates a fixed set of checkers per readiness request. Checks run
// concurrently; the slowest one bounds the response time.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
}

// Option configures a [Handler].
type Option func(*Handler)

// WithTimeout overrides the per-check deadline.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New creates a [Handler] over the given checkers.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{
		checkers: append([]Checker(nil), checkers...),
		timeout:  defaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz runs every checker with a deadline derived from the request context
// and answers 503 if any of them fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	type outcome struct {
		name string
		err  error
	}

	outcomes := make([]outcome, len(h.checkers))
	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
			defer cancel()
			outcomes[i] = outcome{name: c.Name, err: c.Check(ctx)}
		}()
	}
	wg.Wait()

	res := response{Status: "ok", Checks: make(map[string]string, len(outcomes))}
	code := http.StatusOK
	for _, o := range outcomes {
		if o.err != nil {
			res.Checks[o.name] = "fail: " + o.err.Error()
			res.Status = "fail"
			code = http.StatusServiceUnavailable
		} else {
			res.Checks[o.name] = "ok"
		}
	}

	writeJSON(w, code, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
