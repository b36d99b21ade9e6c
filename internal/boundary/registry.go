package boundary

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/agentmail-core/agentmail/internal/breaker"
	"github.com/agentmail-core/agentmail/internal/errs"
	"github.com/agentmail-core/agentmail/internal/eventstream"
	"github.com/agentmail-core/agentmail/internal/reservation"
	"github.com/agentmail-core/agentmail/internal/search"
	"github.com/agentmail-core/agentmail/internal/store"
	"github.com/agentmail-core/agentmail/internal/summarize"
	"go.uber.org/zap"
)

// Deps collects the core components a boundary operation is wired against.
// Both transports share one Deps instance; nothing here is transport-
// specific.
type Deps struct {
	Store        *store.Store
	Search       *search.Executor
	Summarizer   *summarize.Summarizer
	Reservations *reservation.Engine
	Events       *eventstream.Stream
	Breakers     map[string]*breaker.Breaker
	Logger       *zap.Logger
}

// Operation handles one decoded JSON request and returns the value to
// encode as the success payload, or a structured error.
type Operation func(ctx context.Context, deps *Deps, params json.RawMessage) (any, *errs.Error)

// Registry maps operation names (spec §6's table, plus the admin and
// list_events operations added in SPEC_FULL §5) to their handler.
type Registry struct {
	deps *Deps
	ops  map[string]Operation
}

// NewRegistry builds the registry both transports dispatch through.
func NewRegistry(deps *Deps) *Registry {
	r := &Registry{deps: deps, ops: map[string]Operation{}}
	r.register("search_messages", handleSearchMessages)
	r.register("summarize_thread", handleSummarizeThread)
	r.register("list_reservations", handleListReservations)
	r.register("list_reservations.active", handleListReservationsActive)
	r.register("list_reservations.soon", handleListReservationsSoon)
	r.register("admin_reset_project", handleAdminResetProject)
	r.register("admin_reset_breaker", handleAdminResetBreaker)
	r.register("list_events", handleListEvents)
	return r
}

func (r *Registry) register(name string, op Operation) {
	r.ops[name] = op
}

// Dispatch looks up op by name and runs it against params, which must be a
// JSON object (or null for operations that take no parameters).
func (r *Registry) Dispatch(ctx context.Context, op string, params json.RawMessage) (any, *errs.Error) {
	handler, ok := r.ops[op]
	if !ok {
		return nil, errs.InvalidArgument("unknown operation: " + op)
	}
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	return handler(ctx, r.deps, params)
}

// Names returns every registered operation name, for introspection (e.g. a
// /ops listing endpoint) and tests.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	return names
}

func decodeParams(raw json.RawMessage, dst any) *errs.Error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.InvalidArgument("invalid request parameters").WithCause(err)
	}
	return nil
}
