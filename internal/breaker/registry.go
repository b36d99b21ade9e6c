package breaker

import (
	"os"
	"strconv"
	"time"

	"github.com/agentmail-core/agentmail/internal/clock"
	"go.uber.org/zap"
)

// Subsystem names the four independent breakers named in spec §4.1.
type Subsystem string

const (
	Store   Subsystem = "store"
	Archive Subsystem = "archive"
	Signal  Subsystem = "signal"
	Model   Subsystem = "model"
)

var allSubsystems = []Subsystem{Store, Archive, Signal, Model}

// Registry holds the four process-global breaker instances. Breakers never
// reference each other, so forcing one open never affects another (spec §9
// "no cyclic references").
type Registry struct {
	breakers map[Subsystem]*Breaker
}

// defaultConfigs mirrors spec §6's environment variable defaults:
// CIRCUIT_DB_* (5/30), CIRCUIT_GIT_* (8/45), CIRCUIT_SIGNAL_* (5/30),
// CIRCUIT_LLM_* (3/60).
func defaultConfigs() map[Subsystem]Config {
	return map[Subsystem]Config{
		Store:   {Threshold: 5, ResetTimeout: 30 * time.Second},
		Archive: {Threshold: 8, ResetTimeout: 45 * time.Second},
		Signal:  {Threshold: 5, ResetTimeout: 30 * time.Second},
		Model:   {Threshold: 3, ResetTimeout: 60 * time.Second},
	}
}

// envPrefix maps each subsystem to its CIRCUIT_* env var prefix.
var envPrefix = map[Subsystem]string{
	Store:   "CIRCUIT_DB",
	Archive: "CIRCUIT_GIT",
	Signal:  "CIRCUIT_SIGNAL",
	Model:   "CIRCUIT_LLM",
}

// NewRegistry builds the four breakers, applying CIRCUIT_*_THRESHOLD and
// CIRCUIT_*_RESET_SECS environment overrides on top of the defaults.
func NewRegistry(clk clock.Clock, logger *zap.Logger) *Registry {
	cfgs := defaultConfigs()
	r := &Registry{breakers: make(map[Subsystem]*Breaker, len(allSubsystems))}

	for _, sub := range allSubsystems {
		cfg := cfgs[sub]
		prefix := envPrefix[sub]
		if v, ok := os.LookupEnv(prefix + "_THRESHOLD"); ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				cfg.Threshold = n
			}
		}
		if v, ok := os.LookupEnv(prefix + "_RESET_SECS"); ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				cfg.ResetTimeout = time.Duration(n) * time.Second
			}
		}
		r.breakers[sub] = New(string(sub), cfg, clk, logger)
	}
	return r
}

// Get returns the breaker for a subsystem. Panics on an unknown subsystem,
// since the four subsystems are a closed, compile-time-known set.
func (r *Registry) Get(sub Subsystem) *Breaker {
	b, ok := r.breakers[sub]
	if !ok {
		panic("breaker: unknown subsystem " + string(sub))
	}
	return b
}

// Health returns the health snapshot of all four breakers, per spec §4.1.
func (r *Registry) Health() []Snapshot {
	snaps := make([]Snapshot, 0, len(allSubsystems))
	for _, sub := range allSubsystems {
		snaps = append(snaps, r.breakers[sub].Snapshot())
	}
	return snaps
}

// ResetAll forces every breaker closed. Operator action only.
func (r *Registry) ResetAll() {
	for _, sub := range allSubsystems {
		r.breakers[sub].Reset()
	}
}
