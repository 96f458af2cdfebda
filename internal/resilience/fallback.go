package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrAllFailed is returned when every entry of a [FallbackGroup] failed or
	// had an open breaker. It wraps the last entry's error.
	ErrAllFailed = errors.New("resilience: all providers failed")

	// ErrNoEntries is returned when a [FallbackGroup] has nothing to try.
	ErrNoEntries = errors.New("resilience: no providers registered")
)

// FallbackConfig is the breaker template applied to every entry of a
// [FallbackGroup]. Name is replaced by the entry name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type entry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds instances of one provider type in priority order, each
// behind its own [CircuitBreaker]. Entries are added during setup; calls
// after that are safe for concurrent use.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	entries []entry[T]
}

// NewFallbackGroup returns an empty group.
func NewFallbackGroup[T any](cfg FallbackConfig) *FallbackGroup[T] {
	return &FallbackGroup[T]{cfg: cfg}
}

// Add appends v under name. The first entry added is the primary.
func (g *FallbackGroup[T]) Add(name string, v T) {
	cb := g.cfg.CircuitBreaker
	cb.Name = name
	g.entries = append(g.entries, entry[T]{name: name, value: v, breaker: NewCircuitBreaker(cb)})
}

// Len returns the number of entries.
func (g *FallbackGroup[T]) Len() int { return len(g.entries) }

// Names returns the entry names in priority order.
func (g *FallbackGroup[T]) Names() []string {
	names := make([]string, len(g.entries))
	for i, e := range g.entries {
		names[i] = e.name
	}
	return names
}

// Primary returns the first entry. ok is false for an empty group.
func (g *FallbackGroup[T]) Primary() (v T, ok bool) {
	if len(g.entries) == 0 {
		return v, false
	}
	return g.entries[0].value, true
}

// Breaker returns the breaker guarding the entry called name, or nil.
func (g *FallbackGroup[T]) Breaker(name string) *CircuitBreaker {
	for _, e := range g.entries {
		if e.name == name {
			return e.breaker
		}
	}
	return nil
}

// Execute calls fn on each entry in order until one succeeds. Entries with an
// open breaker are skipped. Once ctx ends no further entry is tried and the
// context error is returned.
func (g *FallbackGroup[T]) Execute(ctx context.Context, fn func(context.Context, T) error) error {
	_, err := Do(ctx, g, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	})
	return err
}

// Do is [FallbackGroup.Execute] for calls that return a value. It is a
// function because methods cannot declare type parameters.
func Do[T, R any](ctx context.Context, g *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	var zero R
	if len(g.entries) == 0 {
		return zero, ErrNoEntries
	}

	var lastErr error
	for i := range g.entries {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		e := &g.entries[i]
		var out R
		err := e.breaker.Execute(func() error {
			var err error
			out, err = fn(ctx, e.value)
			return err
		})
		if err == nil {
			if i > 0 {
				slog.Info("resilience: served by fallback", "provider", e.name)
			}
			return out, nil
		}
		lastErr = err
		switch {
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("resilience: skipping provider with open circuit", "provider", e.name)
		case ctx.Err() != nil:
			return zero, ctx.Err()
		default:
			slog.Warn("resilience: provider failed", "provider", e.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
