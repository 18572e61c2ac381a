package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [Group] failed or was
// skipped because its breaker is open.
var ErrAllFailed = errors.New("all providers failed")

type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group holds a primary provider and ordered fallbacks of the same type,
// each behind its own [Breaker].
//
// Members are added during setup; [Group.Add] must not race with [Do].
type Group[T any] struct {
	cfg     Config
	members []member[T]
}

// NewGroup returns a Group whose first member is primary. cfg is the
// template for every member's breaker; its Name is replaced by the member
// name.
func NewGroup[T any](primaryName string, primary T, cfg Config) *Group[T] {
	g := &Group[T]{cfg: cfg}
	g.Add(primaryName, primary)
	return g
}

// Add appends a fallback. Fallbacks are tried in insertion order.
func (g *Group[T]) Add(name string, value T) {
	cfg := g.cfg
	cfg.Name = name
	g.members = append(g.members, member[T]{name: name, value: value, breaker: NewBreaker(cfg)})
}

// Names returns member names in try order.
func (g *Group[T]) Names() []string {
	names := make([]string, len(g.members))
	for i, m := range g.members {
		names[i] = m.name
	}
	return names
}

// Len returns the number of members.
func (g *Group[T]) Len() int { return len(g.members) }

// Do calls fn against each member in order until one succeeds and returns
// that result with the member's name. When all fail the error wraps
// [ErrAllFailed] and every member error.
func Do[T, R any](g *Group[T], fn func(T) (R, error)) (R, string, error) {
	var (
		zero R
		errs []error
	)
	logger := g.cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for i := range g.members {
		m := &g.members[i]
		var result R
		err := m.breaker.Execute(func() error {
			var err error
			result, err = fn(m.value)
			return err
		})
		if err == nil {
			return result, m.name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
		if errors.Is(err, ErrCircuitOpen) {
			logger.Debug("skipping provider, circuit open", "provider", m.name)
			continue
		}
		if i < len(g.members)-1 {
			logger.Warn("provider failed, trying next", "provider", m.name, "err", err)
		}
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
