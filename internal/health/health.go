// Package health serves the liveness and readiness probes of the voice
// front end.
//
//   - /healthz reports that the process is up, plus a snapshot of pipeline
//     info such as the current orchestrator state.
//   - /readyz returns 200 only when every [Checker] passes. The capture
//     pipeline marks itself ready through a [Gate] once the microphone and
//     wake-word model are open.
//
// Bodies are JSON objects with a "status" field ("ok" or "fail").
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 2 * time.Second

// ErrNotReady is returned by [Gate.Check] while the gate is closed.
var ErrNotReady = errors.New("health: not ready")

// Checker is a named readiness check. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Info   map[string]string `json:"info,omitempty"`
}

// Option configures a [Handler].
type Option func(*Handler)

// WithChecker adds a readiness check.
func WithChecker(name string, check func(ctx context.Context) error) Option {
	return func(h *Handler) { h.checkers = append(h.checkers, Checker{Name: name, Check: check}) }
}

// WithInfo sets a function whose result is included in /healthz bodies.
func WithInfo(fn func() map[string]string) Option {
	return func(h *Handler) { h.info = fn }
}

// Handler serves /healthz and /readyz. It is safe for concurrent use.
type Handler struct {
	checkers []Checker
	info     func() map[string]string
	started  time.Time
}

// New creates a [Handler].
func New(opts ...Option) *Handler {
	h := &Handler{started: time.Now()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz always returns 200 while the process can serve HTTP.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	info := map[string]string{"uptime": time.Since(h.started).Truncate(time.Second).String()}
	if h.info != nil {
		for k, v := range h.info() {
			info[k] = v
		}
	}
	writeJSON(w, http.StatusOK, result{Status: "ok", Info: info})
}

// Readyz runs all checks concurrently, each bounded by checkTimeout, and
// returns 503 if any of them fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		allOK  = true
	)
	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				allOK = false
			} else {
				checks[c.Name] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ─── Gate ────────────────────────────────────────────────────────────────────

// Gate is a readiness flag flipped by the component that owns a resource.
// The zero value is closed with no reason.
type Gate struct {
	mu     sync.RWMutex
	ready  bool
	reason string
}

// Open marks the gate ready.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ready, g.reason = true, ""
}

// Close marks the gate not ready, recording why.
func (g *Gate) Close(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ready, g.reason = false, reason
}

// Check implements a [Checker] function.
func (g *Gate) Check(context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.ready {
		return nil
	}
	if g.reason == "" {
		return ErrNotReady
	}
	return errors.Join(ErrNotReady, errors.New(g.reason))
}
