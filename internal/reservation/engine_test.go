package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/agentmail-core/agentmail/internal/breaker"
	"github.com/agentmail-core/agentmail/internal/clock"
	"github.com/agentmail-core/agentmail/internal/errs"
	"github.com/agentmail-core/agentmail/internal/retry"
	"github.com/agentmail-core/agentmail/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, mode EnforcementMode) (*Engine, *store.Store, int64, int64, int64) {
	t.Helper()
	cfg := store.DefaultPoolConfig(t.TempDir() + "/reservation_test.db")
	cfg.HealthCheckInterval = 0
	pool, err := store.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	require.NoError(t, store.Migrate(pool, zap.NewNop()))

	mock := clock.NewMock(time.Unix(1_700_000_000, 0))
	b := breaker.New("test_store", breaker.Config{Threshold: 100, ResetTimeout: time.Minute}, mock, zap.NewNop())
	policy := retry.Policy{Base: time.Millisecond, Cap: time.Millisecond, MaxRetries: 1, Jitter: 0, MinDelay: time.Millisecond}
	st := store.New(pool, b, policy, mock, zap.NewNop())

	ctx := context.Background()
	p, err := st.GetOrCreateProject(ctx, "acme-web", "acme")
	require.NoError(t, err)
	a1, err := st.RegisterAgent(ctx, p.ID, "RedHawk", "claude-code", "", "")
	require.NoError(t, err)
	a2, err := st.RegisterAgent(ctx, p.ID, "BlueLake", "claude-code", "", "")
	require.NoError(t, err)

	return NewEngine(st, mode, zap.NewNop()), st, p.ID, a1.ID, a2.ID
}

func TestEngine_Acquire_BlockModeRejectsConflict(t *testing.T) {
	e, _, projectID, holder1, holder2 := newTestEngine(t, ModeBlock)
	ctx := context.Background()

	_, err := e.Acquire(ctx, projectID, Claim{HolderID: holder1, Pattern: "src/**", Exclusive: true}, "working", 120)
	require.NoError(t, err)

	_, err = e.Acquire(ctx, projectID, Claim{HolderID: holder2, Pattern: "src/main.go", Exclusive: false}, "also working", 120)
	require.Error(t, err)
	require.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))
}

func TestEngine_Acquire_WarnModeProceedsWithWarnings(t *testing.T) {
	e, _, projectID, holder1, holder2 := newTestEngine(t, ModeWarn)
	ctx := context.Background()

	_, err := e.Acquire(ctx, projectID, Claim{HolderID: holder1, Pattern: "src/**", Exclusive: true}, "working", 120)
	require.NoError(t, err)

	result, err := e.Acquire(ctx, projectID, Claim{HolderID: holder2, Pattern: "src/main.go", Exclusive: false}, "also working", 120)
	require.NoError(t, err)
	require.NotNil(t, result.Reservation)
	require.Len(t, result.Warnings, 1)
}

func TestEngine_Acquire_NonOverlappingClaimsNeverConflict(t *testing.T) {
	e, _, projectID, holder1, holder2 := newTestEngine(t, ModeBlock)
	ctx := context.Background()

	_, err := e.Acquire(ctx, projectID, Claim{HolderID: holder1, Pattern: "frontend/**", Exclusive: true}, "working", 120)
	require.NoError(t, err)

	result, err := e.Acquire(ctx, projectID, Claim{HolderID: holder2, Pattern: "backend/main.go", Exclusive: true}, "also working", 120)
	require.NoError(t, err)
	require.Empty(t, result.Warnings)
}

func TestEngine_ReleaseThenListActive_ExcludesReleased(t *testing.T) {
	e, _, projectID, holder1, _ := newTestEngine(t, ModeBlock)
	ctx := context.Background()

	result, err := e.Acquire(ctx, projectID, Claim{HolderID: holder1, Pattern: "src/**", Exclusive: true}, "working", 120)
	require.NoError(t, err)

	require.NoError(t, e.Release(ctx, result.Reservation.ID, holder1))

	active, err := e.ListActive(ctx, projectID)
	require.NoError(t, err)
	require.Empty(t, active)
}
