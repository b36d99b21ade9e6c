// Package reservation implements the file reservation engine (spec §4.4):
// conflict detection over active reservations via symmetric glob pattern
// overlap, enforcement modes, and the list/active/soon/by-holder query
// surface built on top of the store's reservation CRUD.
package reservation

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// PatternsOverlap reports whether there exists any path matched by both a
// and b (spec §4.4's "symmetric glob overlap"). `**` matches any number of
// path segments, including zero, and including dot-prefixed names — there is
// no dotfile-exclusion special case, unlike shell globbing.
//
// No reference implementation of this survived into original_source (the
// Rust crates kept after distillation cover the search planner and TUI, not
// the reservation engine), so this is built directly from the spec's
// conflict-rule prose.
func PatternsOverlap(a, b string) bool {
	return segmentsOverlap(splitPattern(a), splitPattern(b))
}

// splitPattern normalizes a glob pattern into path segments. A trailing
// slash means "everything under this directory", equivalent to appending
// "**"; repeated slashes collapse.
func splitPattern(pattern string) []string {
	pattern = strings.TrimPrefix(pattern, "./")
	trailingSlash := strings.HasSuffix(pattern, "/") && pattern != "/"
	var segs []string
	for _, s := range strings.Split(pattern, "/") {
		if s == "" {
			continue
		}
		segs = append(segs, s)
	}
	if trailingSlash {
		segs = append(segs, "**")
	}
	if len(segs) == 0 {
		segs = []string{"**"}
	}
	return segs
}

// segmentsOverlap is a sequence-level wildcard-overlap DP: dp[i][j] holds
// when some segment sequence simultaneously satisfies a[:i] and b[:j]. A
// "**" segment behaves like a star that can absorb zero or more whole
// segments from either side; any other segment pairing must itself overlap
// at the character level (segmentOverlap).
func segmentsOverlap(a, b []string) bool {
	n, m := len(a), len(b)
	dp := make([][]bool, n+1)
	for i := range dp {
		dp[i] = make([]bool, m+1)
	}
	dp[0][0] = true
	for i := 1; i <= n; i++ {
		dp[i][0] = dp[i-1][0] && a[i-1] == "**"
	}
	for j := 1; j <= m; j++ {
		dp[0][j] = dp[0][j-1] && b[j-1] == "**"
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			aStar := a[i-1] == "**"
			bStar := b[j-1] == "**"
			switch {
			case aStar && bStar:
				dp[i][j] = dp[i-1][j] || dp[i][j-1] || dp[i-1][j-1]
			case aStar:
				dp[i][j] = dp[i-1][j] || dp[i][j-1]
			case bStar:
				dp[i][j] = dp[i][j-1] || dp[i-1][j]
			default:
				dp[i][j] = dp[i-1][j-1] && segmentOverlap(a[i-1], b[j-1])
			}
		}
	}
	return dp[n][m]
}

// segmentOverlap is the same wildcard-overlap DP applied at the character
// level within a single path segment, supporting `*` (any run of
// characters) and `?` (any single character).
func segmentOverlap(a, b string) bool {
	n, m := len(a), len(b)
	dp := make([][]bool, n+1)
	for i := range dp {
		dp[i] = make([]bool, m+1)
	}
	dp[0][0] = true
	for i := 1; i <= n; i++ {
		dp[i][0] = dp[i-1][0] && a[i-1] == '*'
	}
	for j := 1; j <= m; j++ {
		dp[0][j] = dp[0][j-1] && b[j-1] == '*'
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			aStar := a[i-1] == '*'
			bStar := b[j-1] == '*'
			switch {
			case aStar && bStar:
				dp[i][j] = dp[i-1][j] || dp[i][j-1] || dp[i-1][j-1]
			case aStar:
				dp[i][j] = dp[i-1][j] || dp[i][j-1]
			case bStar:
				dp[i][j] = dp[i][j-1] || dp[i-1][j]
			default:
				match := a[i-1] == b[j-1] || a[i-1] == '?' || b[j-1] == '?'
				dp[i][j] = dp[i-1][j-1] && match
			}
		}
	}
	return dp[n][m]
}

// MatchesPath reports whether a concrete path matches pattern, delegating to
// doublestar's glob engine rather than reusing the overlap DP — overlap
// answers "do two patterns share any match", this answers "does this one
// concrete path match this one pattern", a different and simpler question
// doublestar already solves correctly.
func MatchesPath(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}
