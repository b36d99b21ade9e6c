package eventstream

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// pollInterval is how often a connected dashboard is polled for new
// events between its own reads; there is no server-side push signal
// backing Stream.Publish, so the websocket loop is poll-then-push rather
// than purely event-driven.
const pollInterval = 250 * time.Millisecond

// WSHandler upgrades a request to a websocket and streams events after
// the client's last-seen sequence (from the `since_seq` query parameter;
// without it, from the oldest retained event) until the connection closes. It is the push companion to
// the polled `list_events` boundary operation named in spec §5.
type WSHandler struct {
	Stream *Stream
	Logger *zap.Logger
}

// NewWSHandler builds a handler bound to stream.
func NewWSHandler(stream *Stream, logger *zap.Logger) *WSHandler {
	return &WSHandler{Stream: stream, Logger: logger.With(zap.String("component", "eventstream_ws"))}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.Logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	since := int64(-1)
	if raw := r.URL.Query().Get("since_seq"); raw != "" {
		since = parseSinceSeq(raw)
	}
	ctx := r.Context()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		events, _, nextSeq := h.Stream.Since(since, 0)
		for _, ev := range events {
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				h.Logger.Debug("websocket write failed, closing", zap.Error(err))
				conn.Close(websocket.StatusNormalClosure, "write failed")
				return
			}
			since = ev.Seq
		}
		if len(events) == 0 {
			since = max64(since, nextSeq-1)
		}

		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client disconnected")
			return
		case <-ticker.C:
		}
	}
}

func parseSinceSeq(raw string) int64 {
	if raw == "" {
		return 0
	}
	var n int64
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int64(c-'0')
	}
	return n
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
