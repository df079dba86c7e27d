package core

import (
	"context"
	"math"
	"time"
)

// Defaults for BackoffPolicy.
const (
	DefaultMaxAttempts       = 5
	DefaultInitialBackoff    = 200 * time.Millisecond
	DefaultBackoffMultiplier = 1.5
)

// BackoffPolicy bounds the number of insert rounds and the wait between them.
type BackoffPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	// MaxInterval caps a single wait. Zero means no cap.
	MaxInterval time.Duration
}

// DefaultBackoffPolicy returns the policy used when none is configured.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialBackoff,
		Multiplier:      DefaultBackoffMultiplier,
	}
}

// normalized replaces unset fields with defaults.
func (p BackoffPolicy) normalized() BackoffPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialInterval < 0 {
		p.InitialInterval = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultBackoffMultiplier
	}
	return p
}

// Delay returns how long to wait after the given attempt (1-based) failed.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}

	d := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxInterval > 0 && d > float64(p.MaxInterval) {
		return p.MaxInterval
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Exhausted reports whether no attempt remains after the given one.
func (p BackoffPolicy) Exhausted(attempt int) bool {
	return attempt >= p.normalized().MaxAttempts
}

// retryState is a node of the insert state machine.
type retryState int

const (
	stateAttempting retryState = iota
	stateBackingOff
	stateSucceeded
	stateExhausted
)

func (s retryState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateBackingOff:
		return "backing off"
	case stateSucceeded:
		return "succeeded"
	case stateExhausted:
		return "exhausted"
	}
	return "unknown"
}

// nextState decides where a finished round leads.
func (p BackoffPolicy) nextState(attempt, failed int) retryState {
	switch {
	case failed == 0:
		return stateSucceeded
	case p.Exhausted(attempt):
		return stateExhausted
	default:
		return stateBackingOff
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
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
