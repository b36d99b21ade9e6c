package boundary

import (
	"context"
	"encoding/json"

	"github.com/agentmail-core/agentmail/internal/errs"
)

// adminResetProjectRequest drops a project's mutable coordination state
// (messages, recipients, inbox rows, file reservations). Added in
// SPEC_FULL §5 as the explicit administrative reset named but never given
// an operation in spec §3/§9.
type adminResetProjectRequest struct {
	ProjectKey string `json:"project_key"`
}

func handleAdminResetProject(ctx context.Context, deps *Deps, params json.RawMessage) (any, *errs.Error) {
	var req adminResetProjectRequest
	if derr := decodeParams(params, &req); derr != nil {
		return nil, derr
	}
	if req.ProjectKey == "" {
		return nil, errs.InvalidArgument("project_key is required")
	}
	project, serr := deps.Store.GetOrCreateProject(ctx, req.ProjectKey, req.ProjectKey)
	if serr != nil {
		return nil, asErrsError(serr)
	}
	if err := deps.Store.ResetProject(ctx, project.ID); err != nil {
		return nil, asErrsError(err)
	}
	if deps.Events != nil {
		_, _ = deps.Events.Source("admin").Publish("admin_reset_project", project.ID, nil)
	}
	return map[string]any{"project_key": req.ProjectKey, "reset": true}, nil
}

// adminResetBreakerRequest manually resets one named circuit breaker
// (store, archive, signal, model) to closed, per spec §4.1.
type adminResetBreakerRequest struct {
	Subsystem string `json:"subsystem"`
}

func handleAdminResetBreaker(ctx context.Context, deps *Deps, params json.RawMessage) (any, *errs.Error) {
	var req adminResetBreakerRequest
	if derr := decodeParams(params, &req); derr != nil {
		return nil, derr
	}
	b, ok := deps.Breakers[req.Subsystem]
	if !ok {
		return nil, errs.InvalidArgument("unknown breaker subsystem: " + req.Subsystem)
	}
	b.Reset()
	return map[string]any{"subsystem": req.Subsystem, "state": b.State().String()}, nil
}

// listEventsRequest is the events_since operation added in SPEC_FULL §5
// for spec §5's "readers may request events since seq N".
type listEventsRequest struct {
	SinceSeq int64 `json:"since_seq"`
	Limit    int   `json:"limit"`
}

type listEventsResponse struct {
	Events            any   `json:"events"`
	LowestRetainedSeq int64 `json:"lowest_retained_seq"`
	NextSeq           int64 `json:"next_seq"`
	Dropped           int64 `json:"dropped"`
}

func handleListEvents(ctx context.Context, deps *Deps, params json.RawMessage) (any, *errs.Error) {
	var req listEventsRequest
	if derr := decodeParams(params, &req); derr != nil {
		return nil, derr
	}
	if deps.Events == nil {
		return listEventsResponse{Events: []any{}}, nil
	}
	events, lowest, next := deps.Events.Since(req.SinceSeq, req.Limit)
	return listEventsResponse{
		Events: events, LowestRetainedSeq: lowest, NextSeq: next, Dropped: deps.Events.Dropped(),
	}, nil
}
