package boundary

import (
	"context"
	"testing"
	"time"

	"github.com/agentmail-core/agentmail/internal/breaker"
	"github.com/agentmail-core/agentmail/internal/clock"
	"github.com/agentmail-core/agentmail/internal/eventstream"
	"github.com/agentmail-core/agentmail/internal/model"
	"github.com/agentmail-core/agentmail/internal/reservation"
	"github.com/agentmail-core/agentmail/internal/retry"
	"github.com/agentmail-core/agentmail/internal/search"
	"github.com/agentmail-core/agentmail/internal/store"
	"github.com/agentmail-core/agentmail/internal/summarize"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubRefiner struct{}

func (stubRefiner) Refine(ctx context.Context, systemPrompt, userPrompt string) ([]byte, error) {
	return nil, context.DeadlineExceeded
}

func newTestDeps(t *testing.T) (*Deps, *store.Store, *clock.Mock) {
	t.Helper()
	cfg := store.DefaultPoolConfig(t.TempDir() + "/boundary_test.db")
	cfg.HealthCheckInterval = 0
	pool, err := store.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	require.NoError(t, store.Migrate(pool, zap.NewNop()))

	mock := clock.NewMock(time.Unix(1_700_000_000, 0))
	storeBreaker := breaker.New("store", breaker.Config{Threshold: 100, ResetTimeout: time.Minute}, mock, zap.NewNop())
	policy := retry.Policy{Base: time.Millisecond, Cap: time.Millisecond, MaxRetries: 1, Jitter: 0, MinDelay: time.Millisecond}
	st := store.New(pool, storeBreaker, policy, mock, zap.NewNop())

	modelBreaker := breaker.New("model", breaker.Config{Threshold: 3, ResetTimeout: time.Minute}, mock, zap.NewNop())

	deps := &Deps{
		Store:        st,
		Search:       search.NewExecutor(st, zap.NewNop()),
		Summarizer:   summarize.NewSummarizer(st, stubRefiner{}, zap.NewNop()),
		Reservations: reservation.NewEngine(st, reservation.ModeBlock, zap.NewNop()),
		Events:       eventstream.New(128, mock),
		Breakers:     map[string]*breaker.Breaker{"store": storeBreaker, "model": modelBreaker},
		Logger:       zap.NewNop(),
	}
	return deps, st, mock
}

func seedMessage(t *testing.T, st *store.Store, projectID, senderID, recipientID int64, threadID, subject, body string) {
	t.Helper()
	_, err := st.SendMessage(context.Background(), store.SendMessageInput{
		ProjectID: projectID, SenderID: senderID, Subject: subject, BodyMD: body,
		Importance: model.ImportanceNormal, ThreadID: threadID,
		Recipients: []store.RecipientSpec{{AgentID: recipientID, Role: model.RolePrimary}},
	})
	require.NoError(t, err)
}

func TestDispatch_UnknownOperationIsInvalidArgument(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	reg := NewRegistry(deps)

	_, operr := reg.Dispatch(context.Background(), "nonexistent_op", nil)
	require.NotNil(t, operr)
	require.Equal(t, "INVALID_ARGUMENT", string(operr.Code))
}

func TestDispatch_SearchMessages_ResolvesProjectAndReturnsResults(t *testing.T) {
	deps, st, _ := newTestDeps(t)
	reg := NewRegistry(deps)
	ctx := context.Background()

	project, err := st.GetOrCreateProject(ctx, "acme-web", "acme")
	require.NoError(t, err)
	agent, err := st.RegisterAgent(ctx, project.ID, "RedHawk", "claude-code", "", "")
	require.NoError(t, err)
	recip, err := st.RegisterAgent(ctx, project.ID, "BlueLake", "claude-code", "", "")
	require.NoError(t, err)
	seedMessage(t, st, project.ID, agent.ID, recip.ID, "thread-1", "deploy window", "discussing the deploy window")

	params := []byte(`{"project_key":"acme-web","query":"deploy"}`)
	result, operr := reg.Dispatch(ctx, "search_messages", params)
	require.Nil(t, operr)
	resp, ok := result.(*search.Response)
	require.True(t, ok)
	require.Len(t, resp.Results, 1)
}

func TestDispatch_SearchMessages_ConflictingAliasIsRejected(t *testing.T) {
	deps, st, _ := newTestDeps(t)
	reg := NewRegistry(deps)
	ctx := context.Background()
	_, err := st.GetOrCreateProject(ctx, "acme-web", "acme")
	require.NoError(t, err)

	params := []byte(`{"project_key":"acme-web","from_agent":"RedHawk","sender_name":"BlueLake"}`)
	_, operr := reg.Dispatch(ctx, "search_messages", params)
	require.NotNil(t, operr)
	require.Equal(t, "INVALID_ARGUMENT", string(operr.Code))
}

func TestDispatch_SummarizeThread_SingleThreadShape(t *testing.T) {
	deps, st, _ := newTestDeps(t)
	reg := NewRegistry(deps)
	ctx := context.Background()

	project, err := st.GetOrCreateProject(ctx, "acme-web", "acme")
	require.NoError(t, err)
	agent, err := st.RegisterAgent(ctx, project.ID, "RedHawk", "claude-code", "", "")
	require.NoError(t, err)
	recip, err := st.RegisterAgent(ctx, project.ID, "BlueLake", "claude-code", "", "")
	require.NoError(t, err)
	seedMessage(t, st, project.ID, agent.ID, recip.ID, "thread-1", "subj", "- key point one\n- [ ] todo item")

	params := []byte(`{"project_key":"acme-web","thread_id":"thread-1"}`)
	result, operr := reg.Dispatch(ctx, "summarize_thread", params)
	require.Nil(t, operr)
	resp, ok := result.(singleThreadResponse)
	require.True(t, ok)
	require.Equal(t, "thread-1", resp.ThreadID)
}

func TestDispatch_SummarizeThread_MultiThreadShape(t *testing.T) {
	deps, st, _ := newTestDeps(t)
	reg := NewRegistry(deps)
	ctx := context.Background()

	project, err := st.GetOrCreateProject(ctx, "acme-web", "acme")
	require.NoError(t, err)
	agent, err := st.RegisterAgent(ctx, project.ID, "RedHawk", "claude-code", "", "")
	require.NoError(t, err)
	recip, err := st.RegisterAgent(ctx, project.ID, "BlueLake", "claude-code", "", "")
	require.NoError(t, err)
	seedMessage(t, st, project.ID, agent.ID, recip.ID, "thread-1", "s1", "body one")
	seedMessage(t, st, project.ID, agent.ID, recip.ID, "thread-2", "s2", "body two")

	params := []byte(`{"project_key":"acme-web","thread_id":"thread-1,thread-2"}`)
	result, operr := reg.Dispatch(ctx, "summarize_thread", params)
	require.Nil(t, operr)
	resp, ok := result.(multiThreadResponse)
	require.True(t, ok)
	require.Len(t, resp.Threads, 2)
}

func TestDispatch_ListReservations_ReturnsSpecShapeRows(t *testing.T) {
	deps, st, _ := newTestDeps(t)
	reg := NewRegistry(deps)
	ctx := context.Background()

	project, err := st.GetOrCreateProject(ctx, "acme-web", "acme")
	require.NoError(t, err)
	agent, err := st.RegisterAgent(ctx, project.ID, "RedHawk", "claude-code", "", "")
	require.NoError(t, err)
	_, err = deps.Reservations.Acquire(ctx, project.ID, reservation.Claim{HolderID: agent.ID, Pattern: "src/**", Exclusive: true}, "working", 3600)
	require.NoError(t, err)

	params := []byte(`{"project_key":"acme-web"}`)
	result, operr := reg.Dispatch(ctx, "list_reservations", params)
	require.Nil(t, operr)
	rows, ok := result.([]reservationRow)
	require.True(t, ok)
	require.Len(t, rows, 1)
	require.Equal(t, "src/**", rows[0].Pattern)
}

func TestDispatch_AdminResetProject_ClearsMessages(t *testing.T) {
	deps, st, _ := newTestDeps(t)
	reg := NewRegistry(deps)
	ctx := context.Background()

	project, err := st.GetOrCreateProject(ctx, "acme-web", "acme")
	require.NoError(t, err)
	agent, err := st.RegisterAgent(ctx, project.ID, "RedHawk", "claude-code", "", "")
	require.NoError(t, err)
	recip, err := st.RegisterAgent(ctx, project.ID, "BlueLake", "claude-code", "", "")
	require.NoError(t, err)
	seedMessage(t, st, project.ID, agent.ID, recip.ID, "thread-1", "subj", "body")

	_, operr := reg.Dispatch(ctx, "admin_reset_project", []byte(`{"project_key":"acme-web"}`))
	require.Nil(t, operr)

	msgs, err := st.ThreadMessages(ctx, project.ID, "thread-1")
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestDispatch_AdminResetBreaker_ResetsNamedBreaker(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	reg := NewRegistry(deps)
	b := deps.Breakers["model"]
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	result, operr := reg.Dispatch(context.Background(), "admin_reset_breaker", []byte(`{"subsystem":"model"}`))
	require.Nil(t, operr)
	body, ok := result.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "model", body["subsystem"])
}

func TestDispatch_AdminResetBreaker_UnknownSubsystemIsInvalidArgument(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	reg := NewRegistry(deps)

	_, operr := reg.Dispatch(context.Background(), "admin_reset_breaker", []byte(`{"subsystem":"nope"}`))
	require.NotNil(t, operr)
	require.Equal(t, "INVALID_ARGUMENT", string(operr.Code))
}

func TestDispatch_ListEvents_ReturnsPublishedEvents(t *testing.T) {
	deps, st, _ := newTestDeps(t)
	reg := NewRegistry(deps)
	ctx := context.Background()

	project, err := st.GetOrCreateProject(ctx, "acme-web", "acme")
	require.NoError(t, err)
	_, err = deps.Events.Source("test").Publish("seed_event", project.ID, map[string]any{"k": "v"})
	require.NoError(t, err)

	result, operr := reg.Dispatch(ctx, "list_events", []byte(`{"since_seq":-1}`))
	require.Nil(t, operr)
	resp, ok := result.(listEventsResponse)
	require.True(t, ok)
	events, ok := resp.Events.([]eventstream.Event)
	require.True(t, ok)
	require.Len(t, events, 1)
}
