package dremio

import (
	"context"
	"time"
)

const (
	// DefaultPollInterval is the fixed delay before every status request.
	DefaultPollInterval = time.Second

	// DefaultMaxPollAttempts bounds polling to roughly ten minutes at the
	// default interval.
	DefaultMaxPollAttempts = 600
)

// PollPolicy controls the status polling loop. A job that is still running
// when either bound is reached fails with *PollingTimeoutError. Setting both
// MaxAttempts and MaxElapsed to zero polls until a terminal state.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	MaxElapsed  time.Duration
}

// DefaultPollPolicy returns a 1s interval bounded to 600 attempts.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    DefaultPollInterval,
		MaxAttempts: DefaultMaxPollAttempts,
	}
}

// Unbounded reports whether the policy never gives up.
func (p PollPolicy) Unbounded() bool {
	return p.MaxAttempts <= 0 && p.MaxElapsed <= 0
}

// exhausted reports whether another status request would exceed the policy.
func (p PollPolicy) exhausted(attempts int, elapsed time.Duration) bool {
	if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
		return true
	}
	return p.MaxElapsed > 0 && elapsed >= p.MaxElapsed
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StateObserver is called after every status request with the 1-based attempt
// number and the state the server reported.
type StateObserver func(jobID string, attempt int, state JobStatus)

type stateObserverKey struct{}

// WithStateObserver returns a context that reports job state changes of
// queries executed with it to fn.
func WithStateObserver(ctx context.Context, fn StateObserver) context.Context {
	return context.WithValue(ctx, stateObserverKey{}, fn)
}

// StateObserverFromContext returns the observer attached with
// WithStateObserver, or nil.
func StateObserverFromContext(ctx context.Context) StateObserver {
	fn, _ := ctx.Value(stateObserverKey{}).(StateObserver)
	return fn
}
