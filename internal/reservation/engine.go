package reservation

import (
	"context"

	"github.com/agentmail-core/agentmail/internal/model"
	"github.com/agentmail-core/agentmail/internal/store"
	"go.uber.org/zap"
)

// Engine layers conflict detection and enforcement onto the store's
// reservation CRUD (spec §4.4). Release and the raw query surface delegate
// straight to the store, which already implements idempotent release and
// the active/soon/by-holder predicates.
type Engine struct {
	store  *store.Store
	mode   EnforcementMode
	logger *zap.Logger
}

// NewEngine builds an Engine with the given default enforcement mode.
func NewEngine(st *store.Store, mode EnforcementMode, logger *zap.Logger) *Engine {
	if mode == "" {
		mode = ModeBlock
	}
	return &Engine{store: st, mode: mode, logger: logger.With(zap.String("component", "reservation_engine"))}
}

// AcquireResult reports what happened to a claim: either it was granted (with
// any advisory/warn-mode conflicts attached as warnings) or it was blocked.
type AcquireResult struct {
	Reservation *model.FileReservation
	Warnings    []Conflict
}

// Acquire evaluates claim against the project's active reservations under
// the engine's enforcement mode, then creates the reservation if not
// blocked. In block mode a conflict aborts the claim entirely (no row is
// created) and returns a structured error listing every conflict; in
// warn/advisory mode conflicts are attached to the result as warnings and the
// claim proceeds.
func (e *Engine) Acquire(ctx context.Context, projectID int64, claim Claim, reason string, ttlSeconds int64) (*AcquireResult, error) {
	active, err := e.store.ActiveReservations(ctx, projectID)
	if err != nil {
		return nil, err
	}
	conflicts := FindConflicts(active, claim)

	if len(conflicts) > 0 {
		if e.mode == ModeBlock {
			return nil, ConflictError(conflicts)
		}
		e.logger.Warn("reservation claim proceeding despite conflicts",
			zap.Int64("project_id", projectID), zap.String("pattern", claim.Pattern), zap.Int("conflict_count", len(conflicts)))
	}

	res, err := e.store.CreateReservation(ctx, projectID, claim.HolderID, claim.Pattern, claim.Exclusive, reason, ttlSeconds)
	if err != nil {
		return nil, err
	}
	return &AcquireResult{Reservation: res, Warnings: conflicts}, nil
}

// Release delegates to the store's idempotent, holder-or-admin-checked
// release.
func (e *Engine) Release(ctx context.Context, reservationID, callerID int64) error {
	return e.store.ReleaseReservation(ctx, reservationID, callerID)
}

// ListActive, ListAll, ListByHolder, and ListExpiringSoon are the query
// surface spec §4.4 names; each is a thin pass-through to the store, kept
// here so callers depend on one package for the reservation feature rather
// than reaching into the store directly.
func (e *Engine) ListActive(ctx context.Context, projectID int64) ([]model.FileReservation, error) {
	return e.store.ActiveReservations(ctx, projectID)
}

func (e *Engine) ListAll(ctx context.Context, projectID int64) ([]model.FileReservation, error) {
	return e.store.AllReservations(ctx, projectID)
}

func (e *Engine) ListByHolder(ctx context.Context, projectID, holderID int64) ([]model.FileReservation, error) {
	return e.store.ReservationsByHolder(ctx, projectID, holderID)
}

func (e *Engine) ListExpiringSoon(ctx context.Context, projectID int64, horizonMicros int64) ([]model.FileReservation, error) {
	return e.store.ExpiringSoon(ctx, projectID, horizonMicros)
}
