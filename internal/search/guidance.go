package search

import "fmt"

// BuildGuidance synthesises zero-result recovery guidance from query facets
// only — never from restricted data (spec §4.2).
func BuildGuidance(q Query, plan Plan) *ZeroResultGuidance {
	var suggestions []RecoverySuggestion

	if plan.Method == MethodLike || plan.Method == MethodEmpty {
		suggestions = append(suggestions, RecoverySuggestion{
			Kind: "switch_mode", Label: "Try fewer, simpler search terms",
		})
	}

	if !q.TimeRange.IsEmpty() {
		suggestions = append(suggestions, RecoverySuggestion{
			Kind: "broaden_date_range", Label: "Widen or remove the date range filter",
		})
	}

	if len(q.Importance) > 0 {
		suggestions = append(suggestions, RecoverySuggestion{
			Kind: "drop_filter", Label: "Remove the importance filter",
		})
	}

	if q.ThreadID != nil {
		detail := fmt.Sprintf("no messages were found in thread %q", *q.ThreadID)
		suggestions = append(suggestions, RecoverySuggestion{
			Kind: "drop_filter", Label: "Remove the thread filter", Detail: &detail,
		})
	}

	if q.AgentName != nil {
		suggestions = append(suggestions, RecoverySuggestion{
			Kind: "drop_filter", Label: "Remove the agent filter or check the agent name spelling",
		})
	}

	if q.Cursor != "" {
		suggestions = append(suggestions, RecoverySuggestion{
			Kind: "drop_filter", Label: "Start from the first page instead of continuing from the cursor",
		})
	}

	summary := "No results matched this query."
	if plan.Method == MethodEmpty {
		summary = "The query produced no searchable terms or facets."
	}

	return &ZeroResultGuidance{Summary: summary, Suggestions: suggestions}
}
