package search

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cursor encodes the last-seen (score, id) pair for stable pagination.
type Cursor struct {
	Score float64
	ID    int64
}

// Encode renders the cursor as the opaque token `s<hex64>:i<id>`, where
// hex64 is the IEEE-754 bit pattern of Score. Exact and lossless.
func (c Cursor) Encode() string {
	return fmt.Sprintf("s%016x:i%d", math.Float64bits(c.Score), c.ID)
}

// DecodeCursor parses a token produced by Encode. Malformed tokens are
// reported via ok=false, never an error — callers treat a bad cursor as
// "no cursor", not a failure (spec §4.2).
func DecodeCursor(token string) (c Cursor, ok bool) {
	scorePart, idPart, found := strings.Cut(token, ":i")
	if !found {
		return Cursor{}, false
	}
	hex, found := strings.CutPrefix(scorePart, "s")
	if !found {
		return Cursor{}, false
	}
	bits, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return Cursor{}, false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return Cursor{}, false
	}
	return Cursor{Score: math.Float64frombits(bits), ID: id}, true
}
