package boundary

import (
	"encoding/json"
	"mime"
	"net/http"
	"time"

	"github.com/agentmail-core/agentmail/internal/ctxkeys"
	"github.com/agentmail-core/agentmail/internal/errs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// envelope is the HTTP/JSON transport's response shape, grounded on the
// teacher's api.Response/ErrorInfo envelope but carrying *errs.Error
// instead of the teacher's types.Error.
type envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *errInfo  `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

type errInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// HTTPHandler serves every boundary operation under one path, taking the
// operation name from the URL and the request body as params — spec §6's
// "two boundary protocols... expose the same surface" means this and
// StdioServer call the exact same Registry.
type HTTPHandler struct {
	Registry *Registry
	Logger   *zap.Logger
}

func NewHTTPHandler(registry *Registry, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{Registry: registry, Logger: logger}
}

// ServeOperation handles one operation, assuming r.PathValue("op") (or an
// equivalent router) has already extracted the operation name — callers
// wire this per-route, e.g. mux.HandleFunc("/ops/{op}", h.ServeOperation).
func (h *HTTPHandler) ServeOperation(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	if r.Method != http.MethodPost {
		h.writeError(w, requestID, errs.InvalidArgument("only POST is supported"))
		return
	}
	if !h.validateContentType(w, r, requestID) {
		return
	}

	op := r.PathValue("op")
	if op == "" {
		h.writeError(w, requestID, errs.InvalidArgument("missing operation name"))
		return
	}

	params, derr := h.decodeBody(w, r, requestID)
	if derr {
		return
	}

	ctx := ctxkeys.WithRunID(r.Context(), requestID)
	result, operr := h.Registry.Dispatch(ctx, op, params)
	if operr != nil {
		h.writeError(w, requestID, operr)
		return
	}
	h.writeSuccess(w, requestID, result)
}

// decodeBody reads the request body into a json.RawMessage, limited to 1MB
// per the teacher's DecodeJSONBody convention. Returns (nil, true) if an
// error was already written to w.
func (h *HTTPHandler) decodeBody(w http.ResponseWriter, r *http.Request, requestID string) (json.RawMessage, bool) {
	if r.Body == nil {
		return json.RawMessage("{}"), false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var raw json.RawMessage
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&raw); err != nil {
		if err.Error() == "EOF" {
			return json.RawMessage("{}"), false
		}
		h.writeError(w, requestID, errs.InvalidArgument("invalid JSON body").WithCause(err))
		return nil, true
	}
	return raw, false
}

func (h *HTTPHandler) validateContentType(w http.ResponseWriter, r *http.Request, requestID string) bool {
	if r.ContentLength == 0 {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		h.writeError(w, requestID, errs.InvalidArgument("Content-Type must be application/json"))
		return false
	}
	return true
}

func (h *HTTPHandler) writeSuccess(w http.ResponseWriter, requestID string, data any) {
	h.writeJSON(w, http.StatusOK, envelope{
		Success: true, Data: data, Timestamp: time.Now().UTC(), RequestID: requestID,
	})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, requestID string, err *errs.Error) {
	if h.Logger != nil {
		h.Logger.Warn("boundary operation error",
			zap.String("code", string(err.Code)), zap.String("message", err.Message), zap.Bool("retryable", err.Retryable))
	}
	h.writeJSON(w, mapErrorCodeToHTTPStatus(err.Code), envelope{
		Success:   false,
		Error:     &errInfo{Code: string(err.Code), Message: err.Message, Retryable: err.Retryable},
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	})
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// mapErrorCodeToHTTPStatus mirrors the teacher's mapErrorCodeToHTTPStatus,
// adapted to this module's errs.Code taxonomy.
func mapErrorCodeToHTTPStatus(code errs.Code) int {
	switch code {
	case errs.CodeInvalidArgument:
		return http.StatusBadRequest
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeCancelled:
		return http.StatusRequestTimeout
	case errs.CodeCircuitOpen, errs.CodeResourceBusy, errs.CodePoolExhausted, errs.CodeModelUnavailable:
		return http.StatusServiceUnavailable
	case errs.CodeSQLite, errs.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
