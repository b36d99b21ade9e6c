package search

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestCursor_RoundTrip_ExactIncludingZeroAndNegative(t *testing.T) {
	cases := []Cursor{
		{Score: 0, ID: 0},
		{Score: -1.5, ID: 42},
		{Score: 3.14159265, ID: 9223372036854775807},
		{Score: -0.0, ID: -5},
	}
	for _, c := range cases {
		decoded, ok := DecodeCursor(c.Encode())
		assert.True(t, ok)
		assert.Equal(t, c.Score, decoded.Score)
		assert.Equal(t, c.ID, decoded.ID)
	}
}

func TestCursor_MalformedTokenYieldsNotOK(t *testing.T) {
	for _, tok := range []string{"", "garbage", "s123", "s123:iabc", ":i5"} {
		_, ok := DecodeCursor(tok)
		assert.False(t, ok, "token %q", tok)
	}
}

func TestCursor_RoundTrip_Property(t *testing.T) {
	props := gopter.NewProperties(nil)
	props.Property("encode/decode recovers exact score and id", prop.ForAll(
		func(score float64, id int64) bool {
			c := Cursor{Score: score, ID: id}
			decoded, ok := DecodeCursor(c.Encode())
			return ok && math.Float64bits(decoded.Score) == math.Float64bits(score) && decoded.ID == id
		},
		gen.Float64(),
		gen.Int64(),
	))
	props.TestingRun(t)
}
