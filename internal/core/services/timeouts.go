package services

import (
	"context"
	"time"
)

// Timeouts bounds each external call made by the services.
type Timeouts struct {
	Embed      time.Duration
	Completion time.Duration
	Blob       time.Duration
	Query      time.Duration
	Retrieval  time.Duration
}

// DefaultTimeouts returns the standard bounds.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Embed:      30 * time.Second,
		Completion: 120 * time.Second,
		Blob:       30 * time.Second,
		Query:      10 * time.Second,
		Retrieval:  15 * time.Second,
	}
}

// withDefaults replaces unset durations with the defaults.
func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Embed <= 0 {
		t.Embed = d.Embed
	}
	if t.Completion <= 0 {
		t.Completion = d.Completion
	}
	if t.Blob <= 0 {
		t.Blob = d.Blob
	}
	if t.Query <= 0 {
		t.Query = d.Query
	}
	if t.Retrieval <= 0 {
		t.Retrieval = d.Retrieval
	}
	return t
}

// bounded runs fn under a derived context with the given timeout.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
