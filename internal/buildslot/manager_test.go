package buildslot

import (
	"context"
	"testing"
	"time"

	"github.com/agentmail-core/agentmail/internal/clock"
	"github.com/agentmail-core/agentmail/internal/errs"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) (*Manager, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock(time.Unix(1_700_000_000, 0))
	return NewManager(t.TempDir(), mock, zap.NewNop()), mock
}

func TestSanitizeComponent_ReplacesUnsafeCharsAndEmptyBecomesUnknown(t *testing.T) {
	require.Equal(t, "feature_fix", SanitizeComponent("feature/fix"))
	require.Equal(t, "a_b_c", SanitizeComponent("a:b*c"))
	require.Equal(t, "unknown", SanitizeComponent(""))
}

func TestCacheKey_FormatsWithSanitizedComponents(t *testing.T) {
	require.Equal(t, "am-cache-proj1-RedHawk-feature_x", CacheKey("proj1", "RedHawk", "feature/x"))
}

func TestAcquire_WritesLeaseFileAndReturnsEnv(t *testing.T) {
	m, mock := newTestManager(t)
	id := Identity{Slug: "acme-web", ProjectUID: "proj1", Slot: "ci", Branch: "main", Agent: "RedHawk"}

	lease, conflicts, err := m.Acquire(id, AcquireOptions{TTLSeconds: 120})
	require.NoError(t, err)
	require.Empty(t, conflicts)
	require.Equal(t, "RedHawk", lease.Agent)
	require.True(t, lease.Exclusive)
	require.Equal(t, mock.NowMicros()+120_000_000, lease.ExpiresTS)

	env := Env(id, *lease)
	require.Contains(t, env, "AM_SLOT=ci")
	require.Contains(t, env, "AGENT=RedHawk")
	require.Contains(t, env, "CACHE_KEY="+lease.CacheKey)
}

func TestAcquire_TTLBelowMinimumClampedToSixty(t *testing.T) {
	m, mock := newTestManager(t)
	id := Identity{Slug: "acme-web", ProjectUID: "proj1", Slot: "ci", Branch: "main", Agent: "RedHawk"}

	lease, _, err := m.Acquire(id, AcquireOptions{TTLSeconds: 5})
	require.NoError(t, err)
	require.Equal(t, mock.NowMicros()+60_000_000, lease.ExpiresTS)
}

func TestAcquire_ExclusiveConflictBlockedWhenRequested(t *testing.T) {
	m, _ := newTestManager(t)
	holder := Identity{Slug: "acme-web", ProjectUID: "proj1", Slot: "ci", Branch: "main", Agent: "RedHawk"}
	other := Identity{Slug: "acme-web", ProjectUID: "proj1", Slot: "ci", Branch: "main", Agent: "BlueLake"}

	_, _, err := m.Acquire(holder, AcquireOptions{TTLSeconds: 120})
	require.NoError(t, err)

	_, conflicts, err := m.Acquire(other, AcquireOptions{TTLSeconds: 120, BlockOnConflicts: true})
	require.Error(t, err)
	require.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))
	require.Len(t, conflicts, 1)
	require.Equal(t, "RedHawk", conflicts[0].Agent)
}

func TestAcquire_WarnModeProceedsDespiteConflict(t *testing.T) {
	m, _ := newTestManager(t)
	holder := Identity{Slug: "acme-web", ProjectUID: "proj1", Slot: "ci", Branch: "main", Agent: "RedHawk"}
	other := Identity{Slug: "acme-web", ProjectUID: "proj1", Slot: "ci", Branch: "main", Agent: "BlueLake"}

	_, _, err := m.Acquire(holder, AcquireOptions{TTLSeconds: 120})
	require.NoError(t, err)

	lease, conflicts, err := m.Acquire(other, AcquireOptions{TTLSeconds: 120})
	require.NoError(t, err)
	require.NotNil(t, lease)
	require.Len(t, conflicts, 1)
}

func TestAcquire_SharedLeasesNeverConflict(t *testing.T) {
	m, _ := newTestManager(t)
	holder := Identity{Slug: "acme-web", ProjectUID: "proj1", Slot: "ci", Branch: "main", Agent: "RedHawk"}
	other := Identity{Slug: "acme-web", ProjectUID: "proj1", Slot: "ci", Branch: "main", Agent: "BlueLake"}

	_, _, err := m.Acquire(holder, AcquireOptions{TTLSeconds: 120, Shared: true})
	require.NoError(t, err)

	_, conflicts, err := m.Acquire(other, AcquireOptions{TTLSeconds: 120, Shared: true})
	require.NoError(t, err)
	require.Empty(t, conflicts)
}

func TestAcquire_DifferentBranchesNeverConflict(t *testing.T) {
	m, _ := newTestManager(t)
	holder := Identity{Slug: "acme-web", ProjectUID: "proj1", Slot: "ci", Branch: "main", Agent: "RedHawk"}
	other := Identity{Slug: "acme-web", ProjectUID: "proj1", Slot: "ci", Branch: "feature-x", Agent: "RedHawk"}

	_, _, err := m.Acquire(holder, AcquireOptions{TTLSeconds: 120})
	require.NoError(t, err)

	_, conflicts, err := m.Acquire(other, AcquireOptions{TTLSeconds: 120})
	require.NoError(t, err)
	require.Empty(t, conflicts)
}

func TestAcquire_ExpiredLeaseNoLongerConflicts(t *testing.T) {
	m, mock := newTestManager(t)
	holder := Identity{Slug: "acme-web", ProjectUID: "proj1", Slot: "ci", Branch: "main", Agent: "RedHawk"}
	other := Identity{Slug: "acme-web", ProjectUID: "proj1", Slot: "ci", Branch: "main", Agent: "BlueLake"}

	_, _, err := m.Acquire(holder, AcquireOptions{TTLSeconds: 60})
	require.NoError(t, err)

	mock.Advance(2 * time.Minute)

	_, conflicts, err := m.Acquire(other, AcquireOptions{TTLSeconds: 120})
	require.NoError(t, err)
	require.Empty(t, conflicts)
}

func TestRenew_ExtendsExpiryAndIsNoOpWhenLeaseMissing(t *testing.T) {
	m, mock := newTestManager(t)
	id := Identity{Slug: "acme-web", ProjectUID: "proj1", Slot: "ci", Branch: "main", Agent: "RedHawk"}

	require.NoError(t, m.Renew(id, 90))

	lease, _, err := m.Acquire(id, AcquireOptions{TTLSeconds: 90})
	require.NoError(t, err)
	require.Equal(t, mock.NowMicros()+90_000_000, lease.ExpiresTS)

	mock.Advance(30 * time.Second)
	require.NoError(t, m.Renew(id, 90))

	reread, err := readLease(m.leasePath(id))
	require.NoError(t, err)
	require.Equal(t, mock.NowMicros()+90_000_000, reread.ExpiresTS)
}

func TestRelease_MarksLeaseInactiveAndIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	holder := Identity{Slug: "acme-web", ProjectUID: "proj1", Slot: "ci", Branch: "main", Agent: "RedHawk"}
	other := Identity{Slug: "acme-web", ProjectUID: "proj1", Slot: "ci", Branch: "main", Agent: "BlueLake"}

	_, _, err := m.Acquire(holder, AcquireOptions{TTLSeconds: 120})
	require.NoError(t, err)

	require.NoError(t, m.Release(holder))
	require.NoError(t, m.Release(holder))

	_, conflicts, err := m.Acquire(other, AcquireOptions{TTLSeconds: 120})
	require.NoError(t, err)
	require.Empty(t, conflicts)
}

func TestRelease_MissingLeaseFileIsNotAnError(t *testing.T) {
	m, _ := newTestManager(t)
	id := Identity{Slug: "acme-web", ProjectUID: "proj1", Slot: "ci", Branch: "ghost", Agent: "Nobody"}
	require.NoError(t, m.Release(id))
}

func TestRenewer_StopWaitsForLoopExit(t *testing.T) {
	m, _ := newTestManager(t)
	id := Identity{Slug: "acme-web", ProjectUID: "proj1", Slot: "ci", Branch: "main", Agent: "RedHawk"}
	_, _, err := m.Acquire(id, AcquireOptions{TTLSeconds: 120})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	renewer := StartRenewer(ctx, m, id, 120)
	renewer.Stop()
}
