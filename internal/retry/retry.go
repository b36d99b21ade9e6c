// Package retry implements the exponential-backoff retry loop described in
// spec §4.1: classify, consult the breaker, sleep with jitter, retry up to a
// bounded attempt count.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/agentmail-core/agentmail/internal/breaker"
	"github.com/agentmail-core/agentmail/internal/errs"
	"go.uber.org/zap"
)

// Policy configures the backoff schedule. Defaults match spec §4.1: base
// 50ms, cap 8s, 7 retries (8 total attempts), ±25% jitter, 10ms floor.
type Policy struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries int
	Jitter     float64 // fraction, e.g. 0.25 for ±25%
	MinDelay   time.Duration
}

// DefaultPolicy returns the spec's nominal schedule.
func DefaultPolicy() Policy {
	return Policy{
		Base:       50 * time.Millisecond,
		Cap:        8 * time.Second,
		MaxRetries: 7,
		Jitter:     0.25,
		MinDelay:   10 * time.Millisecond,
	}
}

// NominalDelay returns the pre-jitter delay for the given zero-based attempt
// index, i.e. min(base*2^attempt, cap).
func (p Policy) NominalDelay(attempt int) time.Duration {
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		d = p.Cap
	}
	return d
}

func (p Policy) jittered(nominal time.Duration, rng *rand.Rand) time.Duration {
	if nominal <= 0 {
		return p.MinDelay
	}
	// uniform in [nominal*(1-jitter), nominal*(1+jitter)]
	spread := float64(nominal) * p.Jitter
	delta := (rng.Float64()*2 - 1) * spread
	d := time.Duration(float64(nominal) + delta)
	if d < p.MinDelay {
		d = p.MinDelay
	}
	return d
}

// Loop runs fn with retry + breaker consultation, per spec §4.1/§9. fn
// should return a classified *errs.Error (use errs.ClassifyStoreError or a
// pre-built *errs.Error) so retryability is known without string sniffing at
// this layer.
type Loop struct {
	policy  Policy
	breaker *breaker.Breaker
	logger  *zap.Logger
	rng     *rand.Rand
}

// New builds a retry loop bound to a single breaker (one of the four
// subsystems).
func New(policy Policy, b *breaker.Breaker, logger *zap.Logger) *Loop {
	return &Loop{
		policy:  policy,
		breaker: b,
		logger:  logger.With(zap.String("subsystem", b.Name())),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // jitter only
	}
}

// Do executes fn, retrying on retryable failures and consulting the breaker
// before every attempt. The breaker check happens first: an already-open
// breaker means fn is invoked zero times.
func (l *Loop) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errs.New(errs.CodeCancelled, "operation cancelled").WithCause(err)
		}

		if err := l.breaker.Allow(); err != nil {
			return err
		}

		callErr := fn(ctx)
		if callErr == nil {
			l.breaker.RecordSuccess()
			return nil
		}

		classified := classify(callErr)
		if !classified.Retryable {
			return classified
		}
		l.breaker.RecordFailure()

		if attempt >= l.policy.MaxRetries {
			return classified
		}

		delay := l.policy.jittered(l.policy.NominalDelay(attempt), l.rng)
		l.logger.Debug("retrying after failure",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.String("code", string(classified.Code)),
		)

		select {
		case <-ctx.Done():
			return errs.New(errs.CodeCancelled, "operation cancelled during backoff").WithCause(ctx.Err())
		case <-time.After(delay):
		}
	}
}

// classify normalises any error returned by fn into an *errs.Error: an
// existing *errs.Error is returned as is, anything else goes through
// errs.ClassifyStoreError, which marks known transient store failures
// retryable.
func classify(err error) *errs.Error {
	var e *errs.Error
	if errs.As(err, &e) {
		return e
	}
	return errs.ClassifyStoreError(err)
}
