package summarize

import (
	"encoding/json"
	"sort"

	"github.com/agentmail-core/agentmail/internal/errs"
)

// ValidateThreadIDs enforces spec §8's 128-thread cap on a single
// summarize_thread call.
func ValidateThreadIDs(ids []string) error {
	if len(ids) <= MaxThreadIDs {
		return nil
	}
	return errs.InvalidArgument("too many thread ids in one summarize_thread call").
		WithDetail("field", "thread_id").
		WithDetail("provided_count", len(ids)).
		WithDetail("limit", MaxThreadIDs)
}

// ParseRevision attempts to decode a model response into a Revision. A
// parsing failure is swallowed (returns nil) per spec §4.3 — the
// baseline is used unchanged rather than surfacing the error to the caller.
func ParseRevision(raw []byte) *Revision {
	var rev Revision
	if err := json.Unmarshal(raw, &rev); err != nil {
		return nil
	}
	return &rev
}

// BuildAggregate rolls up a set of per-thread summaries into the cross-thread
// view spec §4.3 describes: mentions summed, key points and action items
// concatenated, capped at 10/25/25.
func BuildAggregate(summaries []Summary) Aggregate {
	counts := map[string]int{}
	var keyPoints []string
	var actionItems []ActionItem

	for _, s := range summaries {
		for _, m := range s.Mentions {
			counts[m.Name] += m.Count
		}
		keyPoints = append(keyPoints, s.KeyPoints...)
		actionItems = append(actionItems, s.ActionItems...)
	}

	if len(keyPoints) > aggregateKeyCap {
		keyPoints = keyPoints[:aggregateKeyCap]
	}
	if len(actionItems) > aggregateActionCap {
		actionItems = actionItems[:aggregateActionCap]
	}

	return Aggregate{
		TopMentions: topMentions(counts, aggregateMentionCap),
		KeyPoints:   keyPoints,
		ActionItems: actionItems,
	}
}

// sortedThreadIDs is a small helper so multi-thread responses present threads
// in a stable order regardless of map iteration or store query order.
func sortedThreadIDs(ids []string) []string {
	out := append([]string{}, ids...)
	sort.Strings(out)
	return out
}
