// Package breaker implements a three-state circuit breaker used to guard
// calls to the payment gateway.
//
// The failure counter is only reset by a successful half-open probe. A
// success while CLOSED does not clear it, so failures interleaved with
// unrelated successes still accumulate toward the threshold.
package breaker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arinellipar/laossuicide-sub000/internal/apperr"
)

// State is the breaker's current mode.
type State int

const (
	// StateClosed lets calls pass through.
	StateClosed State = iota
	// StateOpen fails calls fast without invoking the operation.
	StateOpen
	// StateHalfOpen allows a trial call after the reset timeout.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config holds the breaker parameters.
type Config struct {
	// Threshold is the failure count at which the breaker opens.
	Threshold int
	// ResetTimeout is how long the breaker stays open before allowing
	// a trial call.
	ResetTimeout time.Duration
}

// DefaultConfig opens after 5 failures and probes again after a minute.
func DefaultConfig() Config {
	return Config{Threshold: 5, ResetTimeout: time.Minute}
}

// Breaker is a process-wide guard shared by all checkout attempts.
// Construct one at startup and inject it; it is safe for concurrent use.
type Breaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time

	now func() time.Time
}

func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, now: time.Now}
}

// Execute runs op through the breaker. While OPEN it fails fast with a
// retryable payment-gateway error without invoking op. Operation errors are
// re-raised unchanged; the breaker never swallows them.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.before(ctx); err != nil {
		return err
	}
	err := op(ctx)
	b.after(ctx, err)
	return err
}

// Do is Execute for operations that return a value.
func Do[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = op(ctx)
		return opErr
	})
	return out, err
}

// State reports the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) before(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		// HALF_OPEN exists only while its probe is in flight; everyone
		// else fails fast until the probe reports back.
		return apperr.PaymentGateway("payment gateway temporarily unavailable", nil)
	}
	if b.now().Sub(b.lastFailure) > b.cfg.ResetTimeout {
		b.transition(ctx, StateHalfOpen)
		return nil
	}
	return apperr.PaymentGateway("payment gateway temporarily unavailable", nil)
}

func (b *Breaker) after(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		// Only a successful half-open probe clears the counter.
		if b.state == StateHalfOpen {
			b.failures = 0
			b.transition(ctx, StateClosed)
		}
		return
	}

	b.failures++
	b.lastFailure = b.now()
	if b.failures >= b.cfg.Threshold || b.state == StateHalfOpen {
		b.transition(ctx, StateOpen)
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(ctx context.Context, to State) {
	if b.state == to {
		return
	}
	slog.InfoContext(ctx, "circuit breaker state change",
		"from", b.state.String(),
		"to", to.String(),
		"failures", b.failures,
	)
	b.state = to
}
