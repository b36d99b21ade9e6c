package boundary

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/agentmail-core/agentmail/internal/errs"
	"github.com/agentmail-core/agentmail/internal/search"
)

// searchMessagesRequest mirrors spec §6's search_messages input row,
// including every alias spec §6 names.
type searchMessagesRequest struct {
	ProjectKey string `json:"project_key"`
	Query      string `json:"query"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
	Cursor     string `json:"cursor"`
	Ranking    string `json:"ranking"`

	FromAgent  *string `json:"from_agent"`
	SenderName *string `json:"sender_name"`

	Importance string  `json:"importance"`
	ThreadID   *string `json:"thread_id"`

	DateStart *string `json:"date_start"`
	DateEnd   *string `json:"date_end"`
	DateFrom  *string `json:"date_from"`
	DateTo    *string `json:"date_to"`
	After     *string `json:"after"`
	Before    *string `json:"before"`
	Since     *string `json:"since"`
	Until     *string `json:"until"`

	Explain bool `json:"explain"`
}

func handleSearchMessages(ctx context.Context, deps *Deps, params json.RawMessage) (any, *errs.Error) {
	var req searchMessagesRequest
	if derr := decodeParams(params, &req); derr != nil {
		return nil, derr
	}

	sender, aerr := resolveTextAlias("sender", "from_agent", req.FromAgent, "sender_name", req.SenderName)
	if aerr != nil {
		return nil, aerr
	}

	startText, aerr := resolveTextTimestampAlias("date_start", req.DateStart, []namedText{
		{"date_from", req.DateFrom}, {"after", req.After}, {"since", req.Since},
	})
	if aerr != nil {
		return nil, aerr
	}
	endText, aerr := resolveTextTimestampAlias("date_end", req.DateEnd, []namedText{
		{"date_to", req.DateTo}, {"before", req.Before}, {"until", req.Until},
	})
	if aerr != nil {
		return nil, aerr
	}

	var timeRange search.TimeRange
	if startText != nil {
		micros, ok := parseTimestampField(*startText, false)
		if !ok {
			return nil, errs.InvalidArgument("date_start is not a recognised timestamp: " + *startText)
		}
		timeRange.MinTS = &micros
	}
	if endText != nil {
		micros, ok := parseTimestampField(*endText, true)
		if !ok {
			return nil, errs.InvalidArgument("date_end is not a recognised timestamp: " + *endText)
		}
		timeRange.MaxTS = &micros
	}

	project, serr := deps.Store.GetOrCreateProject(ctx, req.ProjectKey, req.ProjectKey)
	if serr != nil {
		return nil, asErrsError(serr)
	}

	q := search.Query{
		Text:      req.Query,
		DocKind:   search.DocMessage,
		ProjectID: &project.ID,
		AgentName: sender,
		ThreadID:  req.ThreadID,
		TimeRange: timeRange,
		Ranking:   rankingMode(req.Ranking),
		Limit:     req.Limit,
		Cursor:    req.Cursor,
		Explain:   req.Explain,
		Scope:     search.Unrestricted(),
	}
	if req.Importance != "" {
		for _, tok := range strings.Split(req.Importance, ",") {
			tok = strings.TrimSpace(tok)
			if tok != "" {
				q.Importance = append(q.Importance, search.Importance(tok))
			}
		}
	}

	resp, err := deps.Search.Execute(ctx, q)
	if err != nil {
		return nil, asErrsError(err)
	}

	if deps.Events != nil {
		_, _ = deps.Events.Source("search").Publish("search_messages", project.ID, map[string]any{
			"query": req.Query, "result_count": len(resp.Results),
		})
	}
	return resp, nil
}

func rankingMode(s string) search.RankingMode {
	switch s {
	case string(search.RankingRecency):
		return search.RankingRecency
	default:
		return search.RankingRelevance
	}
}

// namedText is the text-field analogue of namedTimestamp.
type namedText struct {
	name  string
	value *string
}

// resolveTextTimestampAlias folds a canonical date/time field and its
// aliases to one raw text value. Per spec §6, timestamp fields (unlike
// plain text fields) must match exactly rather than case-insensitively, so
// this compares raw strings directly rather than going through
// resolveTextAlias.
func resolveTextTimestampAlias(canonicalName string, canonical *string, aliases []namedText) (*string, *errs.Error) {
	var fromAlias *string
	for _, a := range aliases {
		if canonical != nil && a.value != nil && *canonical != *a.value {
			return nil, errs.AliasConflict(canonicalName, canonicalName, *canonical, a.name, *a.value)
		}
		if canonical == nil && fromAlias == nil {
			fromAlias = a.value
		}
	}
	if canonical != nil {
		return canonical, nil
	}
	return fromAlias, nil
}

func asErrsError(err error) *errs.Error {
	var e *errs.Error
	if errs.As(err, &e) {
		return e
	}
	return errs.Internal(err.Error()).WithCause(err)
}
