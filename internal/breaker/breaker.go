// Package breaker implements the per-subsystem circuit breaker fabric
// (spec §4.1): four independent breakers — store, archive, signal, model —
// each a three-state machine (closed / open / half_open) with lock-free
// atomic state reads, a consecutive-failure threshold, and a half-open
// probe rate limit of one call per 5-second window.
package breaker

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/agentmail-core/agentmail/internal/clock"
	"github.com/agentmail-core/agentmail/internal/errs"
	"go.uber.org/zap"
)

// State is one of the three breaker states.
type State int32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// probeWindow bounds half-open probes to at most one per window, per spec.
const probeWindow = 5 * time.Second

// halfOpenSuccessesToClose is the number of consecutive half-open
// successes required to close the breaker, per spec.
const halfOpenSuccessesToClose = 3

// Config configures a single breaker instance.
type Config struct {
	Threshold    int           // consecutive failures before opening
	ResetTimeout time.Duration // time spent open before probing half-open
}

// Breaker is one subsystem's failure-isolation gate. All state is held in
// atomics; there is no mutex, matching spec §5's "linearisable per breaker"
// requirement without serialising unrelated subsystems.
type Breaker struct {
	name   string
	cfg    Config
	clock  clock.Clock
	logger *zap.Logger

	state               atomic.Int32 // State
	consecutiveFailures atomic.Int32
	halfOpenSuccesses   atomic.Int32
	resetDeadlineMicros atomic.Int64 // wall-clock micros; valid while Open/HalfOpen
	lastProbeMicros     atomic.Int64 // wall-clock micros of last half-open probe grant
}

// New creates a Breaker named for one subsystem, starting Closed.
func New(name string, cfg Config, clk clock.Clock, logger *zap.Logger) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		clock:  clk,
		logger: logger.With(zap.String("breaker", name)),
	}
}

// Name returns the subsystem name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the breaker's current state. Reading Open while the reset
// deadline has already elapsed promotes the visible state to HalfOpen, but
// does not itself consume a probe slot — Allow does that.
func (b *Breaker) State() State {
	s := State(b.state.Load())
	if s == Open && b.deadlineElapsed() {
		return HalfOpen
	}
	return s
}

func (b *Breaker) deadlineElapsed() bool {
	deadline := b.resetDeadlineMicros.Load()
	return b.clock.NowMicros() >= deadline
}

// Allow reports whether a call may proceed right now, and performs any state
// transition implied by the check (Open -> HalfOpen once the deadline has
// elapsed). Returns a CIRCUIT_BREAKER_OPEN error when the call must be
// rejected.
func (b *Breaker) Allow() error {
	switch State(b.state.Load()) {
	case Closed:
		return nil

	case Open:
		if !b.deadlineElapsed() {
			remaining := b.remainingSeconds()
			return errs.CircuitOpen(b.name, remaining, false)
		}
		// Transition to HalfOpen. CAS so only one goroutine logs the flip.
		if b.state.CompareAndSwap(int32(Open), int32(HalfOpen)) {
			b.halfOpenSuccesses.Store(0)
			b.lastProbeMicros.Store(0)
			b.logger.Info("breaker entering half-open")
		}
		return b.allowHalfOpenProbe()

	case HalfOpen:
		return b.allowHalfOpenProbe()

	default:
		return errs.Internal(fmt.Sprintf("breaker %q in unknown state", b.name))
	}
}

// allowHalfOpenProbe rate-limits half-open probes to one per probeWindow,
// using a CAS on the last-probe timestamp so concurrent callers don't both
// win the same window (wall-clock comparison, no sleeping — spec §9).
func (b *Breaker) allowHalfOpenProbe() error {
	now := b.clock.NowMicros()
	last := b.lastProbeMicros.Load()
	windowMicros := probeWindow.Microseconds()

	if last != 0 && now-last < windowMicros {
		nextIn := float64(windowMicros-(now-last)) / 1e6
		return errs.CircuitOpen(b.name, nextIn, true)
	}
	if !b.lastProbeMicros.CompareAndSwap(last, now) {
		// Lost the race; the winner's probe covers this window.
		nextIn := float64(windowMicros) / 1e6
		return errs.CircuitOpen(b.name, nextIn, true)
	}
	return nil
}

func (b *Breaker) remainingSeconds() float64 {
	deadline := b.resetDeadlineMicros.Load()
	now := b.clock.NowMicros()
	if deadline <= now {
		return 0
	}
	return float64(deadline-now) / 1e6
}

// RecordSuccess reports a successful call to the breaker.
func (b *Breaker) RecordSuccess() {
	switch State(b.state.Load()) {
	case Closed:
		b.consecutiveFailures.Store(0)

	case HalfOpen:
		successes := b.halfOpenSuccesses.Add(1)
		if successes >= halfOpenSuccessesToClose {
			if b.state.CompareAndSwap(int32(HalfOpen), int32(Closed)) {
				b.consecutiveFailures.Store(0)
				b.halfOpenSuccesses.Store(0)
				b.logger.Info("breaker closed")
			}
		}
	}
}

// RecordFailure reports a failed call to the breaker.
func (b *Breaker) RecordFailure() {
	switch State(b.state.Load()) {
	case Closed:
		failures := b.consecutiveFailures.Add(1)
		if int(failures) >= b.cfg.Threshold {
			b.trip()
		}

	case HalfOpen:
		b.trip()
	}
}

// trip opens the breaker and (re)sets the reset deadline.
func (b *Breaker) trip() {
	deadline := b.clock.NowMicros() + b.cfg.ResetTimeout.Microseconds()
	b.resetDeadlineMicros.Store(deadline)
	b.halfOpenSuccesses.Store(0)
	if b.state.Swap(int32(Open)) != int32(Open) {
		b.logger.Warn("breaker opened", zap.Duration("reset_timeout", b.cfg.ResetTimeout))
	}
}

// Reset manually forces the breaker back to Closed. This is an operator
// action, not a regular recovery path (spec §4.1).
func (b *Breaker) Reset() {
	b.state.Store(int32(Closed))
	b.consecutiveFailures.Store(0)
	b.halfOpenSuccesses.Store(0)
	b.resetDeadlineMicros.Store(0)
	b.lastProbeMicros.Store(0)
	b.logger.Info("breaker manually reset")
}

// Snapshot is a read-only view of one breaker's health, per spec §4.1.
type Snapshot struct {
	Subsystem           string        `json:"subsystem"`
	State               string        `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	Threshold           int           `json:"threshold"`
	ResetTimeout        time.Duration `json:"reset_timeout"`
	HalfOpenSuccesses   int           `json:"half_open_successes"`
	Remediation         string        `json:"remediation,omitempty"`
}

// Snapshot returns the current health snapshot for this breaker.
func (b *Breaker) Snapshot() Snapshot {
	s := b.State()
	snap := Snapshot{
		Subsystem:           b.name,
		State:               s.String(),
		ConsecutiveFailures: int(b.consecutiveFailures.Load()),
		Threshold:           b.cfg.Threshold,
		ResetTimeout:        b.cfg.ResetTimeout,
		HalfOpenSuccesses:   int(b.halfOpenSuccesses.Load()),
	}
	if s == Open {
		snap.Remediation = fmt.Sprintf(
			"subsystem %q is unavailable; retry in %.1fs or investigate the underlying failure",
			b.name, b.remainingSeconds())
	}
	return snap
}
