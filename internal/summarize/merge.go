package summarize

import (
	"encoding/json"
	"sort"
)

// Revision is the shape an external model's JSON response is parsed into.
// Mentions accepts either a bare string list or {name, count} objects (spec
// §4.3's untagged union) via RawMentions; resolveMentions normalizes it.
type Revision struct {
	KeyPoints   []string     `json:"key_points,omitempty"`
	ActionItems []ActionItem `json:"action_items,omitempty"`
	Mentions    *RawMentions `json:"mentions,omitempty"`
}

// RawMentions accepts the model response's untagged mentions shape: either
// ["Bob", "Dave"] or [{"name":"Bob","count":2}].
type RawMentions struct {
	Names    []string
	Weighted []Mention
}

// UnmarshalJSON tries the weighted shape first, falling back to a bare name
// list, since json.Unmarshal into a []string fails loudly on objects.
func (m *RawMentions) UnmarshalJSON(data []byte) error {
	var weighted []Mention
	if err := json.Unmarshal(data, &weighted); err == nil {
		m.Weighted = weighted
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	m.Names = names
	return nil
}

// Merge applies a parsed Revision onto a baseline Summary. Merge is additive
// and conservative: key points and action items extend the baseline
// (deduplicated), mentions may be overwritten wholesale if present, and any
// field the revision omits keeps its baseline value. A nil revision (e.g.
// because the model response failed to parse) is a no-op.
func Merge(base Summary, rev *Revision) Summary {
	out := base
	if rev == nil {
		return out
	}
	out.ModelRefined = true

	if len(rev.KeyPoints) > 0 {
		out.KeyPoints = dedupeAppend(out.KeyPoints, rev.KeyPoints, maxKeyPoints)
	}
	if len(rev.ActionItems) > 0 {
		seen := map[string]bool{}
		merged := append([]ActionItem{}, out.ActionItems...)
		for _, a := range merged {
			seen[a.Text] = true
		}
		for _, a := range rev.ActionItems {
			if seen[a.Text] {
				continue
			}
			seen[a.Text] = true
			merged = append(merged, a)
			if len(merged) >= maxActionItems {
				break
			}
		}
		out.ActionItems = merged
		out.OpenCount, out.DoneCount = 0, 0
		for _, a := range out.ActionItems {
			if a.Done {
				out.DoneCount++
			} else {
				out.OpenCount++
			}
		}
	}
	if rev.Mentions != nil {
		out.Mentions = resolveMentions(*rev.Mentions)
	}
	return out
}

func resolveMentions(raw RawMentions) []Mention {
	if len(raw.Weighted) > 0 {
		out := append([]Mention{}, raw.Weighted...)
		sort.Slice(out, func(i, j int) bool {
			if out[i].Count != out[j].Count {
				return out[i].Count > out[j].Count
			}
			return out[i].Name < out[j].Name
		})
		if len(out) > maxMentions {
			out = out[:maxMentions]
		}
		return out
	}
	counts := map[string]int{}
	for _, name := range raw.Names {
		counts[name]++
	}
	return topMentions(counts, maxMentions)
}

func dedupeAppend(base, extra []string, limit int) []string {
	seen := map[string]bool{}
	out := append([]string{}, base...)
	for _, s := range out {
		seen[s] = true
	}
	for _, s := range extra {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) >= limit {
			break
		}
	}
	return out
}
