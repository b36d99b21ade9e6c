package boundary

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/agentmail-core/agentmail/internal/ctxkeys"
	"github.com/agentmail-core/agentmail/internal/errs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// stdioRequest is one line of the stdio-framed RPC: newline-delimited JSON,
// one request or response per line. The original implementation's stdio
// transport (mcp_agent_mail_server::run_stdio) lives in a crate that isn't
// part of the retrieved source, so this framing is designed directly from
// spec §6's "each operation is a named procedure taking a JSON record and
// returning a JSON record" — the simplest framing that satisfies it and
// composes with concurrent callers sharing one process's stdin/stdout.
type stdioRequest struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

type stdioResponse struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  *errInfo        `json:"error,omitempty"`
}

// StdioServer serves the Registry over a pair of line-delimited streams.
// One goroutine reads requests and dispatches them synchronously, in
// arrival order — spec §6 does not ask for out-of-order completion, and
// serialising keeps one client's requests from interleaving with another's
// on a shared stdout.
type StdioServer struct {
	Registry *Registry
	Logger   *zap.Logger

	writeMu sync.Mutex
}

func NewStdioServer(registry *Registry, logger *zap.Logger) *StdioServer {
	return &StdioServer{Registry: registry, Logger: logger}
}

// Serve reads newline-delimited requests from r and writes newline-
// delimited responses to w until r is exhausted or ctx is cancelled. A
// malformed line yields an INVALID_ARGUMENT response carrying a null id
// rather than terminating the session — one bad line should not kill a
// long-lived stdio connection.
func (s *StdioServer) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req stdioRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, stdioResponse{
				Error: &errInfo{Code: string(errs.CodeInvalidArgument), Message: "malformed request line"},
			})
			continue
		}

		lineCtx := ctxkeys.WithRunID(ctx, uuid.NewString())
		result, operr := s.Registry.Dispatch(lineCtx, req.Op, req.Params)
		resp := stdioResponse{ID: req.ID}
		if operr != nil {
			resp.Error = &errInfo{Code: string(operr.Code), Message: operr.Message, Retryable: operr.Retryable}
			if s.Logger != nil {
				s.Logger.Warn("stdio operation error", zap.String("op", req.Op), zap.String("code", string(operr.Code)))
			}
		} else {
			resp.Result = result
		}
		s.writeResponse(w, resp)
	}
	return scanner.Err()
}

// writeResponse serialises resp as one JSON line. Serialised behind
// writeMu: Serve is single-threaded today, but a future concurrent
// dispatch mode (one goroutine per request, still one shared stdout) must
// not interleave partial lines.
func (s *StdioServer) writeResponse(w io.Writer, resp stdioResponse) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = w.Write(data)
}
