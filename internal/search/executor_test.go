package search

import (
	"context"
	"testing"
	"time"

	"github.com/agentmail-core/agentmail/internal/breaker"
	"github.com/agentmail-core/agentmail/internal/clock"
	"github.com/agentmail-core/agentmail/internal/model"
	"github.com/agentmail-core/agentmail/internal/retry"
	"github.com/agentmail-core/agentmail/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestExecutor(t *testing.T) (*Executor, *store.Store, *clock.Mock) {
	t.Helper()
	cfg := store.DefaultPoolConfig(t.TempDir() + "/search_test.db")
	cfg.HealthCheckInterval = 0
	pool, err := store.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	require.NoError(t, store.Migrate(pool, zap.NewNop()))

	mock := clock.NewMock(time.Unix(1_700_000_000, 0))
	b := breaker.New("test_store", breaker.Config{Threshold: 100, ResetTimeout: time.Minute}, mock, zap.NewNop())
	policy := retry.Policy{Base: time.Millisecond, Cap: time.Millisecond, MaxRetries: 1, Jitter: 0, MinDelay: time.Millisecond}
	st := store.New(pool, b, policy, mock, zap.NewNop())
	return NewExecutor(st, zap.NewNop()), st, mock
}

func TestExecutor_FilterOnlySearch_FindsSeededMessages(t *testing.T) {
	e, st, _ := newTestExecutor(t)
	ctx := context.Background()

	p, err := st.GetOrCreateProject(ctx, "acme-web", "acme")
	require.NoError(t, err)
	sender, err := st.RegisterAgent(ctx, p.ID, "RedHawk", "claude-code", "", "")
	require.NoError(t, err)
	recip, err := st.RegisterAgent(ctx, p.ID, "BlueLake", "claude-code", "", "")
	require.NoError(t, err)

	_, err = st.SendMessage(ctx, store.SendMessageInput{
		ProjectID: p.ID, SenderID: sender.ID, Subject: "deploy status", BodyMD: "shipping to prod",
		Importance: model.ImportanceHigh,
		Recipients: []store.RecipientSpec{{AgentID: recip.ID, Role: model.RolePrimary}},
	})
	require.NoError(t, err)

	resp, err := e.Execute(ctx, Query{DocKind: DocMessage, ProjectID: &p.ID, Ranking: RankingRecency})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.Equal(t, "deploy status", resp.Results[0].Title)
}

func TestExecutor_ZeroResults_ProducesGuidance(t *testing.T) {
	e, st, _ := newTestExecutor(t)
	ctx := context.Background()
	p, err := st.GetOrCreateProject(ctx, "acme-web", "acme")
	require.NoError(t, err)

	resp, err := e.Execute(ctx, Query{DocKind: DocMessage, ProjectID: &p.ID, Ranking: RankingRecency})
	require.NoError(t, err)
	require.Empty(t, resp.Results)
	require.NotNil(t, resp.Guidance)
}

func TestExecutor_CallerScopedRedaction_HidesOtherProject(t *testing.T) {
	e, st, _ := newTestExecutor(t)
	ctx := context.Background()

	pA, err := st.GetOrCreateProject(ctx, "project-a", "A")
	require.NoError(t, err)
	pB, err := st.GetOrCreateProject(ctx, "project-b", "B")
	require.NoError(t, err)

	agentA, err := st.RegisterAgent(ctx, pA.ID, "RedHawk", "claude-code", "", "")
	require.NoError(t, err)
	recipA, err := st.RegisterAgent(ctx, pA.ID, "BlueLake", "claude-code", "", "")
	require.NoError(t, err)
	agentB, err := st.RegisterAgent(ctx, pB.ID, "GreenField", "claude-code", "", "")
	require.NoError(t, err)
	recipB, err := st.RegisterAgent(ctx, pB.ID, "Violet", "claude-code", "", "")
	require.NoError(t, err)

	_, err = st.SendMessage(ctx, store.SendMessageInput{
		ProjectID: pA.ID, SenderID: agentA.ID, Subject: "status A", BodyMD: "deploy complete",
		Importance: model.ImportanceNormal,
		Recipients: []store.RecipientSpec{{AgentID: recipA.ID, Role: model.RolePrimary}},
	})
	require.NoError(t, err)
	_, err = st.SendMessage(ctx, store.SendMessageInput{
		ProjectID: pB.ID, SenderID: agentB.ID, Subject: "status B", BodyMD: "deploy complete too",
		Importance: model.ImportanceNormal,
		Recipients: []store.RecipientSpec{{AgentID: recipB.ID, Role: model.RolePrimary}},
	})
	require.NoError(t, err)

	redaction := ContactBlocked()
	resp, err := e.Execute(ctx, Query{
		DocKind: DocMessage, Text: "deploy",
		Scope:     CallerScoped("RedHawk"),
		Redaction: &redaction,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	var sawRedacted bool
	for _, r := range resp.Results {
		if r.Redacted {
			sawRedacted = true
			require.Equal(t, redaction.Placeholder, r.Body)
			require.Nil(t, r.ThreadID)
		}
	}
	require.True(t, sawRedacted)
	require.Len(t, resp.Audit, 1)
	require.Equal(t, AuditRedacted, resp.Audit[0].Action)
}
