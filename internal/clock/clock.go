// Package clock is the single authority for timestamps and expirations
// across the coordination core (spec §2 "Time source"). Every component
// that needs "now" takes a Clock instead of calling time.Now directly, so
// breaker/retry/reservation tests can inject deterministic time.
package clock

import "time"

// Clock provides wall-clock and monotonic readings.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
	// NowMicros returns the current wall-clock time as signed microseconds
	// since the Unix epoch, the unit every persisted timestamp uses.
	NowMicros() int64
	// Monotonic returns a monotonic instant suitable for measuring elapsed
	// durations (breaker windows, backoff sleeps).
	Monotonic() time.Time
}

// System is the production Clock backed by the real wall clock.
type System struct{}

func (System) Now() time.Time       { return time.Now() }
func (System) NowMicros() int64     { return time.Now().UnixMicro() }
func (System) Monotonic() time.Time { return time.Now() }

// New returns the production system clock.
func New() Clock { return System{} }

// ToMicros converts a time.Time to the signed-microseconds representation
// used throughout the data model.
func ToMicros(t time.Time) int64 { return t.UnixMicro() }

// FromMicros converts a signed-microseconds timestamp back to a time.Time in
// UTC.
func FromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }
