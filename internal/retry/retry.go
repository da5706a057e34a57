// Package retry wraps provider calls with bounded exponential backoff and
// the daily budget guard.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/colmena-dev/colmena/internal/budget"
)

// Policy describes the backoff schedule for one wrapped call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      bool
}

// Backoff returns the delay before attempt n (0-based: the delay after the
// first failure is Backoff(0)). Pure so the schedule is testable without
// wall-clock waits.
func (p Policy) Backoff(attempt int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt)))
}

// Manager executes operations under a Policy, consuming one unit of the
// daily budget per attempt. Failed attempts consume budget too: they cost
// quota upstream regardless of outcome.
type Manager struct {
	policy Policy
	budget *budget.Tracker
	sleep  func(ctx context.Context, d time.Duration) error
	randFn func() float64
}

// NewManager creates a Manager. The budget tracker is required; every
// attempt is spent against it before any network I/O.
func NewManager(policy Policy, tracker *budget.Tracker) *Manager {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 500 * time.Millisecond
	}
	return &Manager{
		policy: policy,
		budget: tracker,
		sleep:  sleepCtx,
		randFn: rand.Float64,
	}
}

// WithSleep overrides the sleep primitive, used by tests.
func (m *Manager) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Manager {
	m.sleep = sleep
	return m
}

// Do runs op up to MaxAttempts times. Transient failures (timeouts, 5xx,
// rate limits) are retried after backoff; fatal failures (bad credentials,
// malformed requests) abort immediately. Budget exhaustion before an attempt
// short-circuits with budget.ErrExhausted and no outbound call.
func (m *Manager) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := range m.policy.MaxAttempts {
		if err := m.budget.Spend(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if !Transient(err) {
			return err
		}
		lastErr = err

		if attempt < m.policy.MaxAttempts-1 {
			delay := m.policy.Backoff(attempt)
			if m.policy.Jitter {
				delay += time.Duration(m.randFn() * float64(m.policy.BaseDelay))
			}
			if err := m.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", m.policy.MaxAttempts, lastErr)
}

// retryable is implemented by errors that know whether another attempt can
// help, e.g. provider.APIError.
type retryable interface {
	Retryable() bool
}

// Transient reports whether err is worth retrying: explicit retryable
// errors, network timeouts, and deadline expiry qualify.
func Transient(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
