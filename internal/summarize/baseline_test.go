package summarize

import (
	"testing"

	"github.com/agentmail-core/agentmail/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseline_EmptyThreadYieldsZeroTotals(t *testing.T) {
	s := Baseline("t1", nil)
	assert.Equal(t, 0, s.TotalMessages)
	assert.Empty(t, s.Participants)
	assert.Empty(t, s.Mentions)
	assert.Empty(t, s.KeyPoints)
	assert.Empty(t, s.ActionItems)
	assert.Empty(t, s.CodeReferences)
}

func TestBaseline_MentionsCountedAndSorted(t *testing.T) {
	messages := []MessageInput{
		{SenderName: "RedHawk", BodyMD: "cc @Bob please"},
		{SenderName: "BlueLake", BodyMD: "@Bob @Dave"},
	}
	s := Baseline("t1", messages)
	require.Len(t, s.Mentions, 2)
	assert.Equal(t, Mention{Name: "Bob", Count: 2}, s.Mentions[0])
	assert.Equal(t, Mention{Name: "Dave", Count: 1}, s.Mentions[1])
	assert.Equal(t, 2, s.TotalMessages)
	assert.Empty(t, s.CodeReferences)
}

func TestBaseline_MentionTrimsTrailingPunctuation(t *testing.T) {
	s := Baseline("t1", []MessageInput{{SenderName: "A", BodyMD: "ping @Bob, and @Dave."}})
	names := []string{}
	for _, m := range s.Mentions {
		names = append(names, m.Name)
	}
	assert.ElementsMatch(t, []string{"Bob", "Dave"}, names)
}

func TestBaseline_KeyPointsFromBulletsAndNumberedLines(t *testing.T) {
	body := "- first point\n* second point\n1. numbered point\nnot a bullet line"
	s := Baseline("t1", []MessageInput{{SenderName: "A", BodyMD: body}})
	assert.Equal(t, []string{"first point", "second point", "numbered point"}, s.KeyPoints)
}

func TestBaseline_ActionItemsFromCheckboxesAndKeywords(t *testing.T) {
	body := "- [ ] open task\n- [x] done task\nTODO: remember this"
	s := Baseline("t1", []MessageInput{{SenderName: "A", BodyMD: body}})
	require.Len(t, s.ActionItems, 3)
	assert.Equal(t, 2, s.OpenCount)
	assert.Equal(t, 1, s.DoneCount)
	assert.False(t, s.ActionItems[0].Done)
	assert.True(t, s.ActionItems[1].Done)
}

func TestBaseline_CodeReferencesRequireSlashOrKnownExtension(t *testing.T) {
	body := "see `internal/search/planner.go` and `main.rs` but not `justAWord`"
	s := Baseline("t1", []MessageInput{{SenderName: "A", BodyMD: body}})
	assert.Equal(t, []string{"internal/search/planner.go", "main.rs"}, s.CodeReferences)
}

func TestBaseline_ParticipantsDedupedAndSorted(t *testing.T) {
	s := Baseline("t1", []MessageInput{
		{SenderName: "BlueLake", BodyMD: "hi"},
		{SenderName: "RedHawk", BodyMD: "hi"},
		{SenderName: "BlueLake", BodyMD: "hi again"},
	})
	assert.Equal(t, []string{"BlueLake", "RedHawk"}, s.Participants)
}

func TestValidateThreadIDs_RejectsOverLimit(t *testing.T) {
	ids := make([]string, 150)
	for i := range ids {
		ids[i] = "t"
	}
	err := ValidateThreadIDs(ids)
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))

	var e *errs.Error
	require.True(t, errs.As(err, &e))
	assert.Equal(t, "thread_id", e.Detail["field"])
	assert.Equal(t, 150, e.Detail["provided_count"])
	assert.Equal(t, 128, e.Detail["limit"])
}

func TestBuildAggregate_SumsMentionsConcatenatesAndCaps(t *testing.T) {
	s1 := Summary{Mentions: []Mention{{Name: "Bob", Count: 3}}, KeyPoints: []string{"a"}}
	s2 := Summary{Mentions: []Mention{{Name: "Bob", Count: 2}, {Name: "Dave", Count: 1}}, KeyPoints: []string{"b"}}
	agg := BuildAggregate([]Summary{s1, s2})
	require.Len(t, agg.TopMentions, 2)
	assert.Equal(t, Mention{Name: "Bob", Count: 5}, agg.TopMentions[0])
	assert.Equal(t, []string{"a", "b"}, agg.KeyPoints)
}
