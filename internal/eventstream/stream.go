// Package eventstream implements the sequenced event log (spec §5): a
// bounded ring buffer with a single process-wide monotonic sequence
// counter, one producer per source locking only on push, and many readers
// taking snapshots by sequence number. The boundary's search_messages,
// summarize_thread and admin_reset_project operations publish here; the
// boundary's `list_events` operation and the dashboard's websocket push
// both read from the same Stream.
package eventstream

import (
	"encoding/json"
	"sync"

	"github.com/agentmail-core/agentmail/internal/clock"
)

// Event is one published occurrence. Seq is assigned by the Stream at
// publish time and is strictly increasing within one process.
type Event struct {
	Seq       int64           `json:"seq"`
	Source    string          `json:"source"`
	Kind      string          `json:"kind"`
	ProjectID int64           `json:"project_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Ts        int64           `json:"ts"`
}

// Stream is a bounded, sequenced ring buffer. Push takes the write lock;
// Since takes only a read lock, so concurrent readers never block each
// other or stall behind a slow producer longer than one append.
type Stream struct {
	mu      sync.RWMutex
	clock   clock.Clock
	cap     int
	buf     []Event
	nextSeq int64
	// dropped counts every event evicted from the full ring, whether or
	// not a reader had already observed it.
	dropped int64
}

// New builds a Stream holding at most capacity events in memory.
func New(capacity int, clk clock.Clock) *Stream {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Stream{cap: capacity, clock: clk, buf: make([]Event, 0, capacity)}
}

// Publish appends a new event under source, assigning it the next
// sequence number, and returns the stored copy (with Seq and Ts filled in).
func (s *Stream) Publish(source, kind string, projectID int64, payload any) (Event, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		raw = data
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ev := Event{
		Seq:       s.nextSeq,
		Source:    source,
		Kind:      kind,
		ProjectID: projectID,
		Payload:   raw,
		Ts:        s.clock.NowMicros(),
	}
	s.nextSeq++

	if len(s.buf) == s.cap {
		s.buf = append(s.buf[1:], ev)
		s.dropped++
	} else {
		s.buf = append(s.buf, ev)
	}
	return ev, nil
}

// Since returns up to limit events with Seq > sinceSeq, oldest first, plus
// the lowest sequence number still retained in the buffer (so a caller
// whose sinceSeq has already been evicted can detect the gap). A limit of
// 0 or less means "no limit".
func (s *Stream) Since(sinceSeq int64, limit int) (events []Event, lowestRetainedSeq int64, nextSeq int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.buf) > 0 {
		lowestRetainedSeq = s.buf[0].Seq
	} else {
		lowestRetainedSeq = s.nextSeq
	}

	start := 0
	for start < len(s.buf) && s.buf[start].Seq <= sinceSeq {
		start++
	}
	remaining := s.buf[start:]
	if limit > 0 && len(remaining) > limit {
		remaining = remaining[:limit]
	}

	out := make([]Event, len(remaining))
	copy(out, remaining)
	return out, lowestRetainedSeq, s.nextSeq
}

// Dropped returns the number of events evicted from the ring so far,
// whether or not a Since call had observed them.
func (s *Stream) Dropped() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

// Source returns a Producer scoped to a fixed source tag, for components
// that always publish under their own name (e.g. "reservation", "message",
// "breaker").
func (s *Stream) Source(name string) Producer {
	return Producer{stream: s, source: name}
}

// Producer publishes events under one fixed source tag.
type Producer struct {
	stream *Stream
	source string
}

// Publish appends an event under the producer's source.
func (p Producer) Publish(kind string, projectID int64, payload any) (Event, error) {
	return p.stream.Publish(p.source, kind, projectID, payload)
}
