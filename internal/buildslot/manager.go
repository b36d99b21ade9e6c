package buildslot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentmail-core/agentmail/internal/clock"
	"github.com/agentmail-core/agentmail/internal/errs"
	"go.uber.org/zap"
)

// Identity names the (agent, branch) pair a claim is made on behalf of.
type Identity struct {
	Slug       string
	ProjectUID string
	Slot       string
	Branch     string
	Agent      string
}

// Conflict is one sibling lease that collides with a claim.
type Conflict struct {
	Agent     string `json:"agent"`
	Branch    string `json:"branch"`
	ExpiresTS int64  `json:"expires_ts"`
}

// Manager writes and scans lease files under BaseDir/<slug>/<slot>/.
type Manager struct {
	BaseDir string
	Clock   clock.Clock
	Logger  *zap.Logger
}

// NewManager builds a Manager rooted at baseDir.
func NewManager(baseDir string, clk clock.Clock, logger *zap.Logger) *Manager {
	return &Manager{BaseDir: baseDir, Clock: clk, Logger: logger.With(zap.String("component", "buildslot"))}
}

func (m *Manager) slotDir(id Identity) string {
	return filepath.Join(m.BaseDir, SanitizeComponent(id.Slug), SanitizeComponent(id.Slot))
}

func (m *Manager) leasePath(id Identity) string {
	return filepath.Join(m.slotDir(id), LeaseFileName(id.Agent, id.Branch))
}

// ScanConflicts reads every sibling lease file in id's slot directory and
// reports each one that is exclusive, belongs to a different (agent,
// branch), and isn't expired — unless the caller itself is requesting a
// shared lease, in which case nothing conflicts (spec §4.5's conflict
// detection rule). Unparseable or missing sibling files are skipped, not
// treated as errors.
func (m *Manager) ScanConflicts(id Identity, shared bool) ([]Conflict, error) {
	dir := m.slotDir(id)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := m.Clock.NowMicros()
	var conflicts []Conflict
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		lease, err := readLease(filepath.Join(dir, entry.Name()))
		if err != nil {
			m.Logger.Warn("skipping unreadable lease file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		if !lease.IsActive(now) {
			continue
		}
		if lease.SameHolder(id.Agent, id.Branch) {
			continue
		}
		if shared {
			continue
		}
		if !lease.Exclusive {
			continue
		}
		conflicts = append(conflicts, Conflict{Agent: lease.Agent, Branch: lease.Branch, ExpiresTS: lease.ExpiresTS})
	}
	return conflicts, nil
}

// AcquireOptions controls one Acquire call.
type AcquireOptions struct {
	TTLSeconds       int64
	Shared           bool
	BlockOnConflicts bool
}

// Acquire scans for conflicts, optionally refuses on conflict, then writes
// the lease file and returns it plus the environment variables spec §4.5's
// handoff names.
func (m *Manager) Acquire(id Identity, opts AcquireOptions) (*Lease, []Conflict, error) {
	conflicts, err := m.ScanConflicts(id, opts.Shared)
	if err != nil {
		return nil, nil, err
	}
	if len(conflicts) > 0 {
		if opts.BlockOnConflicts {
			return nil, conflicts, conflictError(conflicts)
		}
		for _, c := range conflicts {
			m.Logger.Warn("build-slot conflict", zap.String("agent", c.Agent), zap.String("branch", c.Branch), zap.Int64("expires_ts", c.ExpiresTS))
		}
	}

	ttl := opts.TTLSeconds
	if ttl < 60 {
		ttl = 60
	}
	now := m.Clock.NowMicros()
	lease := Lease{
		Slug: id.Slug, ProjectUID: id.ProjectUID, Slot: id.Slot, Branch: id.Branch, Agent: id.Agent,
		CacheKey: CacheKey(id.ProjectUID, id.Agent, id.Branch), Exclusive: !opts.Shared,
		AcquiredTS: now, ExpiresTS: now + ttl*1_000_000,
	}
	if err := m.writeLease(id, lease); err != nil {
		return nil, conflicts, err
	}
	return &lease, conflicts, nil
}

// Renew rewrites id's lease with a fresh expiry, max(60, intervalSeconds)
// seconds in the future. If the lease file is missing, Renew is a no-op —
// the caller's renewal loop simply retries on its next cycle.
func (m *Manager) Renew(id Identity, intervalSeconds int64) error {
	lease, err := readLease(m.leasePath(id))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if intervalSeconds < 60 {
		intervalSeconds = 60
	}
	lease.ExpiresTS = m.Clock.NowMicros() + intervalSeconds*1_000_000
	return m.writeLease(id, lease)
}

// Release reads the lease back and marks it released, setting both
// ReleasedTS and ExpiresTS to now. A missing or unreadable file is skipped,
// not an error — release is best-effort on a resource the kernel will
// reclaim on process exit regardless.
func (m *Manager) Release(id Identity) error {
	lease, err := readLease(m.leasePath(id))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		m.Logger.Warn("skipping release of unreadable lease", zap.String("agent", id.Agent), zap.String("branch", id.Branch), zap.Error(err))
		return nil
	}
	now := m.Clock.NowMicros()
	lease.ReleasedTS = &now
	lease.ExpiresTS = now
	return m.writeLease(id, lease)
}

// Env builds the environment-variable handoff a leased child process
// receives (spec §4.5): AM_SLOT, SLUG, PROJECT_UID, BRANCH, AGENT, CACHE_KEY.
func Env(id Identity, lease Lease) []string {
	return []string{
		"AM_SLOT=" + id.Slot,
		"SLUG=" + id.Slug,
		"PROJECT_UID=" + id.ProjectUID,
		"BRANCH=" + id.Branch,
		"AGENT=" + id.Agent,
		"CACHE_KEY=" + lease.CacheKey,
	}
}

func (m *Manager) writeLease(id Identity, lease Lease) error {
	dir := m.slotDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(lease, "", "  ")
	if err != nil {
		return err
	}

	path := m.leasePath(id)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

func readLease(path string) (Lease, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Lease{}, err
	}
	var lease Lease
	if err := json.Unmarshal(data, &lease); err != nil {
		return Lease{}, err
	}
	return lease, nil
}

func conflictError(conflicts []Conflict) *errs.Error {
	details := make([]map[string]any, len(conflicts))
	for i, c := range conflicts {
		details[i] = map[string]any{"agent": c.Agent, "branch": c.Branch, "expires_ts": c.ExpiresTS}
	}
	return errs.InvalidArgument("build slot conflicts with an active lease").WithDetail("conflicts", details)
}

// Renewer runs Renew on a fixed interval in the background until Stop is
// called or ctx is cancelled, mirroring spec §4.5's "sleeps for max(60,
// ttl/2) seconds, then rewrites... ends when the child process exits or a
// stop flag is set". Renewal failures are logged, never fatal — the next
// cycle retries.
type Renewer struct {
	manager  *Manager
	id       Identity
	interval time.Duration

	stop    chan struct{}
	done    chan struct{}
	stopped sync.Once
}

// StartRenewer launches the background renewal loop and returns it; call
// Stop when the child process exits.
func StartRenewer(ctx context.Context, manager *Manager, id Identity, ttlSeconds int64) *Renewer {
	interval := ttlSeconds / 2
	if interval < 60 {
		interval = 60
	}
	r := &Renewer{manager: manager, id: id, interval: time.Duration(interval) * time.Second, stop: make(chan struct{}), done: make(chan struct{})}
	go r.run(ctx)
	return r
}

func (r *Renewer) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			if err := r.manager.Renew(r.id, int64(r.interval/time.Second)); err != nil {
				r.manager.Logger.Warn("build-slot renewal failed, will retry next cycle",
					zap.String("agent", r.id.Agent), zap.String("branch", r.id.Branch), zap.Error(err))
			}
		}
	}
}

// Stop signals the renewal loop to end and waits for it to exit.
func (r *Renewer) Stop() {
	r.stopped.Do(func() { close(r.stop) })
	<-r.done
}
