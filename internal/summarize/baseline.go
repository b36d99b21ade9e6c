package summarize

import (
	"regexp"
	"sort"
	"strings"
)

var (
	bulletLine    = regexp.MustCompile(`^\s*(?:[-*+]|[1-5]\.)\s+(.*)$`)
	checkboxLine  = regexp.MustCompile(`^\s*[-*+]\s*\[([ xX])\]\s*(.*)$`)
	mentionToken  = regexp.MustCompile(`@[^\s]+`)
	codeRefSpan   = regexp.MustCompile("`([^`]{1,120})`")
	actionKeyword = regexp.MustCompile(`(?i)\b(TODO|ACTION|FIXME|NEXT|BLOCKED)\b`)

	mentionTrim = ".,:;()[]{}\"'"
)

var codeRefExtensions = []string{".rs", ".py", ".ts", ".md"}

// Baseline builds the deterministic summary for one thread's ordered
// messages. An empty slice yields an all-zero Summary, never an error.
func Baseline(threadID string, messages []MessageInput) Summary {
	s := Summary{ThreadID: threadID, TotalMessages: len(messages)}
	if len(messages) == 0 {
		return s
	}

	participants := map[string]struct{}{}
	mentionCounts := map[string]int{}
	var keyPoints []string
	var actionItems []ActionItem
	codeRefs := map[string]struct{}{}

	for _, m := range messages {
		participants[m.SenderName] = struct{}{}

		for _, line := range strings.Split(m.BodyMD, "\n") {
			for _, tok := range mentionToken.FindAllString(line, -1) {
				name := strings.Trim(tok[1:], mentionTrim)
				if name == "" {
					continue
				}
				mentionCounts[name]++
			}

			if cb := checkboxLine.FindStringSubmatch(line); cb != nil {
				done := cb[1] == "x" || cb[1] == "X"
				text := strings.TrimSpace(cb[2])
				if len(keyPoints) < maxKeyPoints {
					keyPoints = append(keyPoints, text)
				}
				if len(actionItems) < maxActionItems {
					actionItems = append(actionItems, ActionItem{Text: text, Done: done})
				}
				continue
			}

			if bp := bulletLine.FindStringSubmatch(line); bp != nil {
				text := strings.TrimSpace(bp[1])
				if len(keyPoints) < maxKeyPoints {
					keyPoints = append(keyPoints, text)
				}
			}

			if actionKeyword.MatchString(line) && len(actionItems) < maxActionItems {
				actionItems = append(actionItems, ActionItem{Text: strings.TrimSpace(line), Done: false})
			}
		}

		for _, ref := range codeRefSpan.FindAllStringSubmatch(m.BodyMD, -1) {
			content := ref[1]
			if strings.Contains(content, "/") || hasAnyExtension(content) {
				codeRefs[content] = struct{}{}
			}
		}
	}

	for name := range participants {
		s.Participants = append(s.Participants, name)
	}
	sort.Strings(s.Participants)

	s.Mentions = topMentions(mentionCounts, maxMentions)
	s.KeyPoints = keyPoints
	s.ActionItems = actionItems
	for _, a := range actionItems {
		if a.Done {
			s.DoneCount++
		} else {
			s.OpenCount++
		}
	}

	if len(codeRefs) > 0 {
		var refs []string
		for r := range codeRefs {
			refs = append(refs, r)
		}
		sort.Strings(refs)
		if len(refs) > maxCodeRefs {
			refs = refs[:maxCodeRefs]
		}
		s.CodeReferences = refs
	}

	return s
}

func hasAnyExtension(s string) bool {
	for _, ext := range codeRefExtensions {
		if strings.HasSuffix(s, ext) {
			return true
		}
	}
	return false
}

func topMentions(counts map[string]int, limit int) []Mention {
	mentions := make([]Mention, 0, len(counts))
	for name, count := range counts {
		mentions = append(mentions, Mention{Name: name, Count: count})
	}
	sort.Slice(mentions, func(i, j int) bool {
		if mentions[i].Count != mentions[j].Count {
			return mentions[i].Count > mentions[j].Count
		}
		return mentions[i].Name < mentions[j].Name
	})
	if len(mentions) > limit {
		mentions = mentions[:limit]
	}
	return mentions
}

