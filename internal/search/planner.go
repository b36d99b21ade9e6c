package search

import (
	"fmt"
	"strings"
)

// PlanMethod is the strategy the planner chose.
type PlanMethod string

const (
	MethodFTS        PlanMethod = "fts5"
	MethodLike       PlanMethod = "like_fallback"
	MethodFilterOnly PlanMethod = "filter_only"
	MethodEmpty      PlanMethod = "empty"
)

// ParamKind tags a Plan parameter's SQL type.
type ParamKind int

const (
	ParamInt ParamKind = iota
	ParamText
	ParamFloat
)

// Param is one positional parameter bound to a Plan's SQL.
type Param struct {
	Kind ParamKind
	Int  int64
	Text string
	Float float64
}

func intParam(v int64) Param    { return Param{Kind: ParamInt, Int: v} }
func textParam(v string) Param  { return Param{Kind: ParamText, Text: v} }
func floatParam(v float64) Param { return Param{Kind: ParamFloat, Float: v} }

// Args renders params as a slice suitable for gorm/database-sql's variadic
// placeholder binding.
func Args(params []Param) []any {
	out := make([]any, len(params))
	for i, p := range params {
		switch p.Kind {
		case ParamInt:
			out[i] = p.Int
		case ParamText:
			out[i] = p.Text
		case ParamFloat:
			out[i] = p.Float
		}
	}
	return out
}

// Plan is the pure output of the planner: SQL, parameters, and metadata
// for the explain trace. It never touches the store.
type Plan struct {
	SQL             string
	Params          []Param
	Method          PlanMethod
	NormalizedQuery *string
	FacetsApplied   []string
	ScopeEnforced   bool
	ScopeLabel      string
}

func scopePolicyLabel(p ScopePolicy) string {
	switch p.Kind {
	case ScopeCallerScoped:
		return "caller_scoped"
	case ScopeProjectSet:
		return "project_set"
	default:
		return "unrestricted"
	}
}

func emptyPlan(scopeLabel string) Plan {
	return Plan{Method: MethodEmpty, ScopeLabel: scopeLabel}
}

// Plan converts a structured query into a Plan. Pure: no store access.
func PlanSearch(q Query) Plan {
	var plan Plan
	switch q.DocKind {
	case DocMessage, DocThread, "":
		plan = planMessageSearch(q)
	case DocAgent:
		plan = planAgentSearch(q)
	case DocProject:
		plan = planProjectSearch(q)
	default:
		plan = planMessageSearch(q)
	}

	// The contract promises non-empty SQL for non-empty-text queries even
	// when nothing in the plan could search anything (hostile input); the
	// caller executes a deterministic zero-row query rather than erroring.
	if plan.Method == MethodEmpty && q.Text != "" && plan.SQL == "" {
		plan.SQL = emptyPlanSQL(q.DocKind)
	}
	return plan
}

func emptyPlanSQL(kind DocKind) string {
	switch kind {
	case DocAgent:
		return `SELECT 0 AS id, '' AS name, '' AS task_description, 0 AS project_id, 0.0 AS score WHERE 0`
	case DocProject:
		return `SELECT 0 AS id, '' AS slug, '' AS human_key, 0.0 AS score WHERE 0`
	default:
		return `SELECT 0 AS id, '' AS subject, '' AS importance, 0 AS ack_required, 0 AS created_ts, ` +
			`'' AS thread_id, '' AS from_name, '' AS body_md, 0 AS project_id, 0.0 AS score WHERE 0`
	}
}

func hasAnyMessageFacet(q Query) bool {
	return len(q.Importance) > 0 ||
		q.Direction != nil ||
		q.AgentName != nil ||
		q.ThreadID != nil ||
		q.AckRequired != nil ||
		!q.TimeRange.IsEmpty() ||
		q.ProjectID != nil ||
		q.ProductID != nil
}

func planMessageSearch(q Query) Plan {
	limit := q.EffectiveLimit()
	scopeLabel := scopePolicyLabel(q.Scope)

	var normalized *string
	var sanitized string
	hasText := false
	if q.Text != "" {
		if n, ok := sanitizeFTSQuery(q.Text); ok {
			sanitized = n
			normalized = &n
			hasText = true
		}
	}

	var method PlanMethod
	var likeTerms []string
	switch {
	case hasText:
		method = MethodFTS
	case q.Text != "":
		likeTerms = extractLikeTerms(q.Text, 5)
		if len(likeTerms) == 0 {
			method = MethodEmpty
		} else {
			method = MethodLike
		}
	case hasAnyMessageFacet(q):
		method = MethodFilterOnly
	default:
		method = MethodEmpty
	}

	if method == MethodEmpty {
		return emptyPlan(scopeLabel)
	}

	var params []Param
	var where []string
	var facetsApplied []string

	var selectCols, fromClause, orderClause string
	switch method {
	case MethodFTS:
		where = append(where, "fts_messages MATCH ?")
		params = append(params, textParam(sanitized))
		selectCols = "m.id, m.subject, m.importance, m.ack_required, m.created_ts, " +
			"m.thread_id, a.name AS from_name, m.body_md, m.project_id, " +
			"bm25(fts_messages, 10.0, 1.0) AS score"
		fromClause = "fts_messages JOIN messages m ON m.id = fts_messages.rowid JOIN agents a ON a.id = m.sender_id"
		orderClause = "ORDER BY score ASC, m.id ASC"

	case MethodLike:
		var likeParts []string
		for _, term := range likeTerms {
			pattern := escapeLikePattern(term)
			likeParts = append(likeParts, "(m.subject LIKE ? ESCAPE '\\' OR m.body_md LIKE ? ESCAPE '\\')")
			params = append(params, textParam(pattern), textParam(pattern))
		}
		where = append(where, strings.Join(likeParts, " AND "))
		selectCols = "m.id, m.subject, m.importance, m.ack_required, m.created_ts, " +
			"m.thread_id, a.name AS from_name, m.body_md, m.project_id, 0.0 AS score"
		fromClause = "messages m JOIN agents a ON a.id = m.sender_id"
		orderClause = "ORDER BY m.created_ts DESC, m.id ASC"

	case MethodFilterOnly:
		selectCols = "m.id, m.subject, m.importance, m.ack_required, m.created_ts, " +
			"m.thread_id, a.name AS from_name, m.body_md, m.project_id, 0.0 AS score"
		fromClause = "messages m JOIN agents a ON a.id = m.sender_id"
		orderClause = "ORDER BY m.created_ts DESC, m.id ASC"
	}

	scopeEnforced := false
	if q.ProjectID != nil {
		where = append(where, "m.project_id = ?")
		params = append(params, intParam(*q.ProjectID))
		facetsApplied = append(facetsApplied, "project_id")
	} else if q.ProductID != nil {
		where = append(where, "m.project_id IN (SELECT project_id FROM product_project_links WHERE product_id = ?)")
		params = append(params, intParam(*q.ProductID))
		facetsApplied = append(facetsApplied, "product_id")
	}

	if q.Scope.Kind == ScopeProjectSet && len(q.Scope.AllowedProjectIDs) > 0 {
		where = append(where, "m.project_id IN ("+placeholders(len(q.Scope.AllowedProjectIDs))+")")
		for _, pid := range q.Scope.AllowedProjectIDs {
			params = append(params, intParam(pid))
		}
		facetsApplied = append(facetsApplied, "scope_project_set")
		scopeEnforced = true
	}

	if len(q.Importance) > 0 {
		where = append(where, "m.importance IN ("+placeholders(len(q.Importance))+")")
		for _, imp := range q.Importance {
			params = append(params, textParam(string(imp)))
		}
		facetsApplied = append(facetsApplied, "importance")
	}

	if q.ThreadID != nil {
		where = append(where, "m.thread_id = ?")
		params = append(params, textParam(*q.ThreadID))
		facetsApplied = append(facetsApplied, "thread_id")
	}

	if q.AckRequired != nil {
		v := int64(0)
		if *q.AckRequired {
			v = 1
		}
		where = append(where, "m.ack_required = ?")
		params = append(params, intParam(v))
		facetsApplied = append(facetsApplied, "ack_required")
	}

	if q.TimeRange.MinTS != nil {
		where = append(where, "m.created_ts >= ?")
		params = append(params, intParam(*q.TimeRange.MinTS))
		facetsApplied = append(facetsApplied, "time_range_min")
	}
	if q.TimeRange.MaxTS != nil {
		where = append(where, "m.created_ts <= ?")
		params = append(params, intParam(*q.TimeRange.MaxTS))
		facetsApplied = append(facetsApplied, "time_range_max")
	}

	switch {
	case q.Direction != nil && q.AgentName != nil:
		switch *q.Direction {
		case DirectionOutbox:
			where = append(where, "a.name = ?")
			params = append(params, textParam(*q.AgentName))
		case DirectionInbox:
			where = append(where, "m.id IN (SELECT mr.message_id FROM message_recipients mr "+
				"JOIN agents ra ON ra.id = mr.agent_id WHERE ra.name = ?)")
			params = append(params, textParam(*q.AgentName))
		}
		facetsApplied = append(facetsApplied, "direction")

	case q.AgentName != nil:
		where = append(where, "(a.name = ? OR m.id IN (SELECT mr.message_id FROM message_recipients mr "+
			"JOIN agents ra ON ra.id = mr.agent_id WHERE ra.name = ?))")
		params = append(params, textParam(*q.AgentName), textParam(*q.AgentName))
		facetsApplied = append(facetsApplied, "agent_name")
	}

	if q.Cursor != "" {
		if cur, ok := DecodeCursor(q.Cursor); ok {
			where = append(where, "(score > ? OR (score = ? AND m.id > ?))")
			params = append(params, floatParam(cur.Score), floatParam(cur.Score), intParam(cur.ID))
			facetsApplied = append(facetsApplied, "cursor")
		}
	}

	sql := assembleSQL(selectCols, fromClause, where, orderClause)
	params = append(params, intParam(int64(limit)))

	return Plan{
		SQL: sql, Params: params, Method: method, NormalizedQuery: normalized,
		FacetsApplied: facetsApplied, ScopeEnforced: scopeEnforced, ScopeLabel: scopeLabel,
	}
}

// planAgentSearch always uses the LIKE fallback: the agent-name identity
// FTS index is dropped at runtime (spec §4.2).
func planAgentSearch(q Query) Plan {
	return planIdentitySearch(q, "a.id, a.name, a.task_description, a.project_id, 0.0 AS score",
		"agents a", "ORDER BY a.id ASC",
		[2]string{"a.name", "a.task_description"}, "a.project_id", true)
}

// planProjectSearch always uses the LIKE fallback for the same reason.
// Projects have no project_id facet of their own — only scope enforcement.
func planProjectSearch(q Query) Plan {
	return planIdentitySearch(q, "p.id, p.slug, p.human_key, 0.0 AS score",
		"projects p", "ORDER BY p.id ASC",
		[2]string{"p.slug", "p.human_key"}, "p.id", false)
}

func planIdentitySearch(q Query, selectCols, fromClause, orderClause string, likeCols [2]string, projectIDCol string, supportsProjectIDFacet bool) Plan {
	limit := q.EffectiveLimit()
	scopeLabel := scopePolicyLabel(q.Scope)

	terms := extractLikeTerms(q.Text, 5)
	if q.Text == "" || len(terms) == 0 {
		return emptyPlan(scopeLabel)
	}

	var params []Param
	var where []string
	var facetsApplied []string
	scopeEnforced := false

	var likeParts []string
	for _, term := range terms {
		pattern := escapeLikePattern(term)
		likeParts = append(likeParts, fmt.Sprintf("(%s LIKE ? ESCAPE '\\' OR %s LIKE ? ESCAPE '\\')", likeCols[0], likeCols[1]))
		params = append(params, textParam(pattern), textParam(pattern))
	}
	where = append(where, strings.Join(likeParts, " AND "))

	if supportsProjectIDFacet && q.ProjectID != nil {
		where = append(where, projectIDCol+" = ?")
		params = append(params, intParam(*q.ProjectID))
		facetsApplied = append(facetsApplied, "project_id")
	}

	if q.Scope.Kind == ScopeProjectSet && len(q.Scope.AllowedProjectIDs) > 0 {
		where = append(where, projectIDCol+" IN ("+placeholders(len(q.Scope.AllowedProjectIDs))+")")
		for _, pid := range q.Scope.AllowedProjectIDs {
			params = append(params, intParam(pid))
		}
		facetsApplied = append(facetsApplied, "scope_project_set")
		scopeEnforced = true
	}

	sql := assembleSQL(selectCols, fromClause, where, orderClause)
	params = append(params, intParam(int64(limit)))

	return Plan{
		SQL: sql, Params: params, Method: MethodLike, FacetsApplied: facetsApplied,
		ScopeEnforced: scopeEnforced, ScopeLabel: scopeLabel,
	}
}

func assembleSQL(selectCols, fromClause string, where []string, orderClause string) string {
	whereStr := ""
	if len(where) > 0 {
		whereStr = " WHERE " + strings.Join(where, " AND ")
	}
	return fmt.Sprintf("SELECT %s FROM %s%s %s LIMIT ?", selectCols, fromClause, whereStr, orderClause)
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ", ")
}

// Explain builds the explain trace for a Plan.
func (p Plan) Explain() Explain {
	return Explain{
		Method:           string(p.Method),
		NormalizedQuery:  p.NormalizedQuery,
		UsedLikeFallback: p.Method == MethodLike,
		FacetCount:       len(p.FacetsApplied),
		FacetsApplied:    p.FacetsApplied,
		SQL:              p.SQL,
		ScopePolicy:      p.ScopeLabel,
	}
}
