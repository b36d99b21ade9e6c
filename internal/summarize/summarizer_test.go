package summarize

import (
	"context"
	"errors"
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

func newTestSummarizer(t *testing.T, refiner ModelRefiner) (*Summarizer, *store.Store) {
	t.Helper()
	cfg := store.DefaultPoolConfig(t.TempDir() + "/summarize_test.db")
	cfg.HealthCheckInterval = 0
	pool, err := store.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	require.NoError(t, store.Migrate(pool, zap.NewNop()))

	mock := clock.NewMock(time.Unix(1_700_000_000, 0))
	b := breaker.New("test_store", breaker.Config{Threshold: 100, ResetTimeout: time.Minute}, mock, zap.NewNop())
	policy := retry.Policy{Base: time.Millisecond, Cap: time.Millisecond, MaxRetries: 1, Jitter: 0, MinDelay: time.Millisecond}
	st := store.New(pool, b, policy, mock, zap.NewNop())
	return NewSummarizer(st, refiner, zap.NewNop()), st
}

func seedThread(t *testing.T, st *store.Store, threadID string) int64 {
	t.Helper()
	ctx := context.Background()
	p, err := st.GetOrCreateProject(ctx, "acme-web", "acme")
	require.NoError(t, err)
	a1, err := st.RegisterAgent(ctx, p.ID, "RedHawk", "claude-code", "", "")
	require.NoError(t, err)
	a2, err := st.RegisterAgent(ctx, p.ID, "BlueLake", "claude-code", "", "")
	require.NoError(t, err)

	_, err = st.SendMessage(ctx, store.SendMessageInput{
		ProjectID: p.ID, SenderID: a1.ID, Subject: "kickoff", BodyMD: "cc @Bob please\n- first point",
		Importance: model.ImportanceNormal, ThreadID: threadID,
		Recipients: []store.RecipientSpec{{AgentID: a2.ID, Role: model.RolePrimary}},
	})
	require.NoError(t, err)
	_, err = st.SendMessage(ctx, store.SendMessageInput{
		ProjectID: p.ID, SenderID: a2.ID, Subject: "re: kickoff", BodyMD: "@Bob @Dave\n- [ ] open item",
		Importance: model.ImportanceNormal, ThreadID: threadID,
		Recipients: []store.RecipientSpec{{AgentID: a1.ID, Role: model.RolePrimary}},
	})
	require.NoError(t, err)
	return p.ID
}

func TestSummarizer_SingleThread_ProducesBaseline(t *testing.T) {
	s, st := newTestSummarizer(t, nil)
	projectID := seedThread(t, st, "thread-1")

	summary, err := s.SingleThread(context.Background(), projectID, "thread-1", "", "")
	require.NoError(t, err)
	require.Equal(t, 2, summary.TotalMessages)
	require.Len(t, summary.Mentions, 2)
	require.Equal(t, Mention{Name: "Bob", Count: 2}, summary.Mentions[0])
	require.False(t, summary.ModelRefined)
}

func TestSummarizer_UnknownThreadYieldsEmptySummary(t *testing.T) {
	s, st := newTestSummarizer(t, nil)
	projectID := seedThread(t, st, "thread-1")

	summary, err := s.SingleThread(context.Background(), projectID, "no-such-thread", "", "")
	require.NoError(t, err)
	require.Equal(t, 0, summary.TotalMessages)
}

type stubRefiner struct {
	response []byte
	err      error
}

func (r stubRefiner) Refine(ctx context.Context, systemPrompt, userPrompt string) ([]byte, error) {
	return r.response, r.err
}

func TestSummarizer_ModelRefinementMerges(t *testing.T) {
	refiner := stubRefiner{response: []byte(`{"key_points": ["first point", "model-added point"]}`)}
	s, st := newTestSummarizer(t, refiner)
	projectID := seedThread(t, st, "thread-1")

	summary, err := s.SingleThread(context.Background(), projectID, "thread-1", "sys", "user")
	require.NoError(t, err)
	require.True(t, summary.ModelRefined)
	require.Contains(t, summary.KeyPoints, "model-added point")
}

func TestSummarizer_ModelRefinementFailureKeepsBaseline(t *testing.T) {
	refiner := stubRefiner{err: errors.New("model unavailable")}
	s, st := newTestSummarizer(t, refiner)
	projectID := seedThread(t, st, "thread-1")

	summary, err := s.SingleThread(context.Background(), projectID, "thread-1", "sys", "user")
	require.NoError(t, err)
	require.False(t, summary.ModelRefined)
	require.Len(t, summary.Mentions, 2)
}

func TestSummarizer_MultiThread_FanOutPreservesOrder(t *testing.T) {
	s, st := newTestSummarizer(t, nil)
	ctx := context.Background()

	threadIDs := make([]string, 20)
	for i := range threadIDs {
		id := "thread-" + string(rune('a'+i))
		threadIDs[i] = id
	}
	var projectID int64
	for _, id := range threadIDs {
		projectID = seedThread(t, st, id)
	}

	summaries, _, err := s.MultiThread(ctx, projectID, threadIDs, "", "")
	require.NoError(t, err)
	require.Len(t, summaries, len(threadIDs))
	for i, id := range threadIDs {
		require.Equal(t, id, summaries[i].ThreadID, "summary at index %d should match sorted thread order", i)
	}
}

func TestSummarizer_MultiThread_AggregatesAcrossThreads(t *testing.T) {
	s, st := newTestSummarizer(t, nil)
	projectID := seedThread(t, st, "thread-1")
	ctx := context.Background()
	a1, err := st.RegisterAgent(ctx, projectID, "RedHawk", "claude-code", "", "")
	require.NoError(t, err)
	a2, err := st.RegisterAgent(ctx, projectID, "BlueLake", "claude-code", "", "")
	require.NoError(t, err)
	_, err = st.SendMessage(ctx, store.SendMessageInput{
		ProjectID: projectID, SenderID: a1.ID, Subject: "other", BodyMD: "@Bob again",
		Importance: model.ImportanceNormal, ThreadID: "thread-2",
		Recipients: []store.RecipientSpec{{AgentID: a2.ID, Role: model.RolePrimary}},
	})
	require.NoError(t, err)

	summaries, agg, err := s.MultiThread(ctx, projectID, []string{"thread-1", "thread-2"}, "", "")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.NotEmpty(t, agg.TopMentions)

	var total int
	for _, m := range agg.TopMentions {
		if m.Name == "Bob" {
			total = m.Count
		}
	}
	require.Equal(t, 3, total)
}
