package vosaka

import "context"

type ctxKey struct{}

// WithContext stores a Scheduler in ctx and returns the derived context.
func WithContext(ctx context.Context, s *Scheduler) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext retrieves the Scheduler stored in ctx. If none is found, it
// builds and returns a fresh default Scheduler.
func FromContext(ctx context.Context) *Scheduler {
	if s, ok := ctx.Value(ctxKey{}).(*Scheduler); ok {
		return s
	}
	return NewScheduler()
}
