// Package buildslot implements the build-slot lease (spec §4.5): a
// filesystem-backed mutual-exclusion lease per (project slug, slot name,
// agent, branch), with conflict detection, background renewal, and the
// environment-variable handoff a leased child process receives.
package buildslot

import "strings"

// Lease is the JSON record written to one (agent, branch) file under a
// project/slot directory.
type Lease struct {
	Slug       string `json:"slug"`
	ProjectUID string `json:"project_uid"`
	Slot       string `json:"slot"`
	Branch     string `json:"branch"`
	Agent      string `json:"agent"`
	CacheKey   string `json:"cache_key"`
	Exclusive  bool   `json:"exclusive"`
	AcquiredTS int64  `json:"acquired_ts"`
	ExpiresTS  int64  `json:"expires_ts"`
	ReleasedTS *int64 `json:"released_ts"`
}

// sanitizedChars are replaced with '_' when building a filesystem-safe lease
// file name component, per spec §4.5's representation rule.
const sanitizedChars = `/\:*?"<>| `

// SanitizeComponent replaces filesystem-unsafe characters with '_' and maps
// an empty result to "unknown".
func SanitizeComponent(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(sanitizedChars, r) {
			b.WriteRune('_')
		} else {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		return "unknown"
	}
	return out
}

// CacheKey computes the deterministic cache key a leased run uses:
// am-cache-<uid>-<agent>-<branch>.
func CacheKey(projectUID, agent, branch string) string {
	return "am-cache-" + projectUID + "-" + SanitizeComponent(agent) + "-" + SanitizeComponent(branch)
}

// LeaseFileName derives the per-(agent, branch) lease file name from
// sanitised components.
func LeaseFileName(agent, branch string) string {
	return SanitizeComponent(agent) + "__" + SanitizeComponent(branch) + ".json"
}

// IsActive reports whether the lease has not been released and has not
// expired as of nowMicros.
func (l Lease) IsActive(nowMicros int64) bool {
	return l.ReleasedTS == nil && l.ExpiresTS > nowMicros
}

// SameHolder reports whether l belongs to the same (agent, branch) pair as
// the given identity.
func (l Lease) SameHolder(agent, branch string) bool {
	return l.Agent == agent && l.Branch == branch
}
