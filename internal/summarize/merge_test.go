package summarize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRevision_MalformedJSONReturnsNil(t *testing.T) {
	rev := ParseRevision([]byte("not json"))
	assert.Nil(t, rev)
}

func TestMerge_NilRevisionIsNoOp(t *testing.T) {
	base := Baseline("t1", []MessageInput{{SenderName: "A", BodyMD: "- a point"}})
	out := Merge(base, nil)
	assert.Equal(t, base, out)
}

func TestMerge_KeyPointsExtendWithoutOverwriting(t *testing.T) {
	base := Baseline("t1", []MessageInput{{SenderName: "A", BodyMD: "- original point"}})
	rev := &Revision{KeyPoints: []string{"original point", "new point from model"}}
	out := Merge(base, rev)
	assert.Equal(t, []string{"original point", "new point from model"}, out.KeyPoints)
	assert.True(t, out.ModelRefined)
}

func TestMerge_MentionsAcceptsBareStringList(t *testing.T) {
	base := Summary{Mentions: []Mention{{Name: "Bob", Count: 1}}}
	rev := ParseRevision([]byte(`{"mentions": ["Bob", "Bob", "Dave"]}`))
	require.NotNil(t, rev)
	out := Merge(base, rev)
	require.Len(t, out.Mentions, 2)
	assert.Equal(t, Mention{Name: "Bob", Count: 2}, out.Mentions[0])
}

func TestMerge_MentionsAcceptsWeightedObjects(t *testing.T) {
	base := Summary{}
	rev := ParseRevision([]byte(`{"mentions": [{"name": "Carol", "count": 4}]}`))
	require.NotNil(t, rev)
	out := Merge(base, rev)
	require.Len(t, out.Mentions, 1)
	assert.Equal(t, Mention{Name: "Carol", Count: 4}, out.Mentions[0])
}

func TestMerge_OmittedFieldsRetainBaseline(t *testing.T) {
	base := Baseline("t1", []MessageInput{{SenderName: "A", BodyMD: "@Bob hi\n- a point"}})
	rev := &Revision{}
	out := Merge(base, rev)
	assert.Equal(t, base.Mentions, out.Mentions)
	assert.Equal(t, base.KeyPoints, out.KeyPoints)
	assert.True(t, out.ModelRefined)
}
