package search

import (
	"context"
	"database/sql"

	"github.com/agentmail-core/agentmail/internal/model"
	"github.com/agentmail-core/agentmail/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Executor runs a Plan against the store and applies post-execution
// visibility, redaction, and guidance (spec §4.2's "scoped executor").
type Executor struct {
	store  *store.Store
	logger *zap.Logger
}

// NewExecutor builds an Executor bound to the store facade, so every raw
// query it issues still passes through the store breaker and retry loop.
func NewExecutor(st *store.Store, logger *zap.Logger) *Executor {
	return &Executor{store: st, logger: logger.With(zap.String("component", "search_executor"))}
}

// Execute plans q, runs it, and applies visibility/redaction/guidance.
func (e *Executor) Execute(ctx context.Context, q Query) (*Response, error) {
	plan := PlanSearch(q)

	var rawResults []Result
	diag := &Diagnostics{}
	if plan.Method != MethodEmpty {
		var err error
		rawResults, err = e.runPlan(ctx, q.DocKind, plan)
		if err != nil {
			return nil, err
		}
	}
	if plan.Method == MethodLike {
		diag.Degraded = true
		diag.FallbackMode = string(MethodLike)
		diag.RemediationHints = append(diag.RemediationHints, "full-text index unavailable for this query; results were found via substring scan")
	}

	var audit []AuditEntry
	results := rawResults
	if q.Scope.IsRestricted() {
		vctx, err := e.resolveVisibilityContext(ctx, q)
		if err != nil {
			return nil, err
		}
		results, audit = ApplyVisibility(rawResults, vctx)
	}

	// Pagination cursor for the next page, derived from the last surviving
	// result (post-visibility, so a caller never gets a cursor into a
	// project they can't see).
	var nextCursor *string
	if len(results) > 0 {
		last := results[len(results)-1]
		if last.Score != nil {
			tok := Cursor{Score: *last.Score, ID: last.ID}.Encode()
			nextCursor = &tok
		}
	}

	resp := &Response{Results: results, NextCursor: nextCursor, Audit: audit}

	if len(results) == 0 {
		resp.Guidance = BuildGuidance(q, plan)
	}

	if q.Explain {
		ex := plan.Explain()
		ex.DeniedCount = countAction(audit, AuditDenied)
		ex.RedactedCount = countAction(audit, AuditRedacted)
		resp.Explain = &ex
	}

	if diag.Degraded {
		resp.Diagnostics = diag
	}
	return resp, nil
}

func countAction(audit []AuditEntry, action AuditAction) int {
	n := 0
	for _, a := range audit {
		if a.Action == action {
			n++
		}
	}
	return n
}

func (e *Executor) resolveVisibilityContext(ctx context.Context, q Query) (VisibilityContext, error) {
	redaction := RedactionConfig{}
	if q.Redaction != nil {
		redaction = *q.Redaction
	}
	vctx := VisibilityContext{Policy: q.Scope, Redaction: redaction}

	if q.Scope.Kind != ScopeCallerScoped {
		// project_set is already enforced by the planner's IN predicate;
		// every returned row belongs to an allowed project.
		vctx.CallerProjectIDs = q.Scope.AllowedProjectIDs
		return vctx, nil
	}

	var caller *model.Agent
	var err error
	if q.ProjectID != nil {
		caller, err = e.store.ResolveAgentByName(ctx, *q.ProjectID, q.Scope.CallerAgent)
	} else {
		caller, err = e.store.ResolveAgentByNameAnyProject(ctx, q.Scope.CallerAgent)
	}
	if err != nil {
		// Unknown caller: treat as having no visible projects rather than
		// failing the search outright.
		return vctx, nil
	}
	projects, err := e.store.ProjectsForAgent(ctx, caller.ID)
	if err != nil {
		return vctx, err
	}
	contacts, err := e.store.ApprovedContacts(ctx, caller.ID)
	if err != nil {
		return vctx, err
	}
	vctx.CallerProjectIDs = projects
	vctx.ApprovedAgentIDs = contacts
	return vctx, nil
}

// runPlan executes plan.SQL/Params through the store's retry loop and scans
// rows into Results according to the requested doc kind's column shape.
func (e *Executor) runPlan(ctx context.Context, kind DocKind, plan Plan) ([]Result, error) {
	var results []Result
	err := e.store.RunRetried(ctx, "search_"+string(kind), func(db *gorm.DB) error {
		rows, err := db.Raw(plan.SQL, Args(plan.Params)...).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()

		switch kind {
		case DocAgent:
			results, err = scanAgentRows(rows)
		case DocProject:
			results, err = scanProjectRows(rows)
		default:
			results, err = scanMessageRows(rows)
		}
		return err
	})
	return results, err
}

func scanMessageRows(rows *sql.Rows) ([]Result, error) {
	var out []Result
	for rows.Next() {
		var (
			id, ackRequired, createdTS, projectID int64
			subject, importance, threadID, fromName, bodyMD string
			score                                            float64
		)
		if err := rows.Scan(&id, &subject, &importance, &ackRequired, &createdTS, &threadID, &fromName, &bodyMD, &projectID, &score); err != nil {
			return nil, err
		}
		ack := ackRequired != 0
		out = append(out, Result{
			DocKind: DocMessage, ID: id, ProjectID: &projectID, Title: subject, Body: bodyMD,
			Score: &score, Importance: &importance, AckRequired: &ack, CreatedTS: &createdTS,
			ThreadID: &threadID, FromAgent: &fromName,
		})
	}
	return out, rows.Err()
}

func scanAgentRows(rows *sql.Rows) ([]Result, error) {
	var out []Result
	for rows.Next() {
		var (
			id, projectID              int64
			name, taskDescription string
			score                 float64
		)
		if err := rows.Scan(&id, &name, &taskDescription, &projectID, &score); err != nil {
			return nil, err
		}
		out = append(out, Result{DocKind: DocAgent, ID: id, ProjectID: &projectID, Title: name, Body: taskDescription, Score: &score})
	}
	return out, rows.Err()
}

func scanProjectRows(rows *sql.Rows) ([]Result, error) {
	var out []Result
	for rows.Next() {
		var (
			id          int64
			slug, human string
			score       float64
		)
		if err := rows.Scan(&id, &slug, &human, &score); err != nil {
			return nil, err
		}
		out = append(out, Result{DocKind: DocProject, ID: id, Title: slug, Body: human, Score: &score})
	}
	return out, rows.Err()
}
