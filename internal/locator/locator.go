// Package locator implements the bounded "wait until it shows up" poll
// every page-dependent step is built on.
package locator

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a probe never succeeds within its budget.
var ErrNotFound = errors.New("locator: not found within retry budget")

// Default budget: five probes, 100ms apart.
const (
	DefaultAttempts = 5
	DefaultInterval = 100 * time.Millisecond
)

// SleepFunc pauses between probes. It must return early with ctx.Err()
// when ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy bounds a poll. Zero Attempts means DefaultAttempts.
type Policy struct {
	Attempts int
	Interval time.Duration
	Sleep    SleepFunc // nil uses a real timer
}

// DefaultPolicy returns the standard five-by-100ms budget.
func DefaultPolicy() Policy {
	return Policy{Attempts: DefaultAttempts, Interval: DefaultInterval}
}

// WithAttempts returns a copy of p with a different attempt budget.
func (p Policy) WithAttempts(n int) Policy {
	p.Attempts = n
	return p
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.Interval < 0 {
		p.Interval = 0
	}
	if p.Sleep == nil {
		p.Sleep = Sleep
	}
	return p
}

// Probe looks for something once. found=false means "try again"; a
// non-nil error aborts the poll.
type Probe[T any] func(ctx context.Context) (v T, found bool, err error)

// Poll runs probe up to p.Attempts times, sleeping p.Interval after each
// miss, and returns the first hit. It keeps no state between calls.
func Poll[T any](ctx context.Context, p Policy, probe Probe[T]) (T, error) {
	p = p.normalized()
	var zero T

	for attempt := 0; attempt < p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, found, err := probe(ctx)
		if err != nil {
			return zero, err
		}
		if found {
			return v, nil
		}
		if err := p.Sleep(ctx, p.Interval); err != nil {
			return zero, err
		}
	}
	return zero, ErrNotFound
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
