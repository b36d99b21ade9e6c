package search

import (
	"strings"
)

// booleanOperators are bare tokens that, unquoted, would make an FTS5 MATCH
// expression ambiguous or empty; their presence rejects the sanitised form.
var booleanOperators = map[string]bool{
	"AND": true, "OR": true, "NOT": true, "NEAR": true,
}

// sanitizeFTSQuery normalises free text into an FTS5 MATCH expression:
// leading wildcards are stripped, hyphenated tokens are quoted so the
// hyphen isn't read as a column filter, and a query reduced to nothing (or
// to only bare boolean operators) yields "", causing the caller to fall
// back to the LIKE scan.
func sanitizeFTSQuery(text string) (normalized string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}

	var terms []string
	for _, f := range fields {
		f = strings.TrimLeft(f, "*")
		f = strings.Trim(f, `"`)
		if f == "" {
			continue
		}
		if booleanOperators[strings.ToUpper(f)] {
			continue
		}
		if strings.Contains(f, "-") {
			f = `"` + f + `"`
		}
		terms = append(terms, f)
	}
	if len(terms) == 0 {
		return "", false
	}
	return strings.Join(terms, " "), true
}

// extractLikeTerms splits text into at most maxTerms whitespace-delimited
// terms for the LIKE fallback, dropping bare boolean operators.
func extractLikeTerms(text string, maxTerms int) []string {
	fields := strings.Fields(text)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if booleanOperators[strings.ToUpper(f)] {
			continue
		}
		terms = append(terms, f)
		if len(terms) == maxTerms {
			break
		}
	}
	return terms
}

// escapeLikePattern escapes LIKE metacharacters so user text is matched
// literally, then wraps it for a substring match.
func escapeLikePattern(term string) string {
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(term)
	return "%" + escaped + "%"
}
