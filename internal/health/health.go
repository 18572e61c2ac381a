// Package health serves the liveness and readiness probes.
//
// GET /healthz answers 200 for as long as the process serves HTTP and reports
// its uptime. GET /readyz runs every [Checker] concurrently and answers 503
// when any of them fails, listing each result by name:
//
//	{"status":"fail","checks":{"recognition":"fail: load model: ...","translator":"ok"}}
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lingualive/internal/resilience"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

const (
	statusOK   = "ok"
	statusFail = "fail"
)

// Checker probes one dependency. Check returns nil while the dependency is
// usable and must respect context cancellation.
type Checker struct {
	// Name keys the result in the /readyz body.
	Name  string
	Check func(ctx context.Context) error
}

// report is the probe response body.
type report struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probes. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
	started  time.Time
	now      func() time.Time
}

// New returns a Handler that evaluates checkers on every /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{
		checkers: slices.Clone(checkers),
		started:  time.Now(),
		now:      time.Now,
	}
}

// Register mounts GET /healthz and GET /readyz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, report{
		Status: statusOK,
		Uptime: h.now().Sub(h.started).Round(time.Second).String(),
	})
}

// Readyz is the readiness probe. Each check gets its own [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	errs := h.run(r.Context())

	rep := report{Status: statusOK, Checks: make(map[string]string, len(h.checkers))}
	code := http.StatusOK
	for i, c := range h.checkers {
		if errs[i] == nil {
			rep.Checks[c.Name] = statusOK
			continue
		}
		rep.Checks[c.Name] = statusFail + ": " + errs[i].Error()
		rep.Status = statusFail
		code = http.StatusServiceUnavailable
	}
	respond(w, code, rep)
}

// run evaluates all checkers concurrently. Results are stored per checker so
// one failure does not cancel the rest.
func (h *Handler) run(ctx context.Context) []error {
	errs := make([]error, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			errs[i] = c.Check(cctx)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// BreakerCheck fails while b is open. A half-open breaker counts as ready
// because it admits a probe.
func BreakerCheck(name string, b *resilience.Breaker) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if s := b.State(); s == resilience.StateOpen {
				return fmt.Errorf("circuit %s", s)
			}
			return nil
		},
	}
}

// ErrorCheck fails with whatever last reports.
func ErrorCheck(name string, last func() error) Checker {
	return Checker{
		Name:  name,
		Check: func(context.Context) error { return last() },
	}
}

func respond(w http.ResponseWriter, code int, rep report) {
	body, err := json.Marshal(rep)
	if err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(append(body, '\n'))
}
