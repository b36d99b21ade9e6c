package boundary

import (
	"context"
	"encoding/json"

	"github.com/agentmail-core/agentmail/internal/errs"
	"github.com/agentmail-core/agentmail/internal/model"
)

// reservationRow is the per-row output shape spec §6 names for
// list_reservations/active/soon: {id, pattern, agent, expires, reason, exclusive}.
type reservationRow struct {
	ID        int64  `json:"id"`
	Pattern   string `json:"pattern"`
	Agent     int64  `json:"agent"`
	Expires   int64  `json:"expires"`
	Reason    string `json:"reason"`
	Exclusive bool   `json:"exclusive"`
}

func toReservationRows(rows []model.FileReservation) []reservationRow {
	out := make([]reservationRow, len(rows))
	for i, r := range rows {
		out[i] = reservationRow{
			ID: r.ID, Pattern: r.PathPattern, Agent: r.HolderID,
			Expires: r.ExpiresTS, Reason: r.Reason, Exclusive: r.Exclusive,
		}
	}
	return out
}

type listReservationsRequest struct {
	ProjectKey     string `json:"project_key"`
	HorizonSeconds int64  `json:"horizon_seconds"`
}

func handleListReservations(ctx context.Context, deps *Deps, params json.RawMessage) (any, *errs.Error) {
	var req listReservationsRequest
	if derr := decodeParams(params, &req); derr != nil {
		return nil, derr
	}
	project, serr := deps.Store.GetOrCreateProject(ctx, req.ProjectKey, req.ProjectKey)
	if serr != nil {
		return nil, asErrsError(serr)
	}
	rows, err := deps.Reservations.ListAll(ctx, project.ID)
	if err != nil {
		return nil, asErrsError(err)
	}
	return toReservationRows(rows), nil
}

func handleListReservationsActive(ctx context.Context, deps *Deps, params json.RawMessage) (any, *errs.Error) {
	var req listReservationsRequest
	if derr := decodeParams(params, &req); derr != nil {
		return nil, derr
	}
	project, serr := deps.Store.GetOrCreateProject(ctx, req.ProjectKey, req.ProjectKey)
	if serr != nil {
		return nil, asErrsError(serr)
	}
	rows, err := deps.Reservations.ListActive(ctx, project.ID)
	if err != nil {
		return nil, asErrsError(err)
	}
	return toReservationRows(rows), nil
}

func handleListReservationsSoon(ctx context.Context, deps *Deps, params json.RawMessage) (any, *errs.Error) {
	var req listReservationsRequest
	if derr := decodeParams(params, &req); derr != nil {
		return nil, derr
	}
	project, serr := deps.Store.GetOrCreateProject(ctx, req.ProjectKey, req.ProjectKey)
	if serr != nil {
		return nil, asErrsError(serr)
	}
	horizon := req.HorizonSeconds
	if horizon <= 0 {
		horizon = 900
	}
	rows, err := deps.Reservations.ListExpiringSoon(ctx, project.ID, horizon*1_000_000)
	if err != nil {
		return nil, asErrsError(err)
	}
	return toReservationRows(rows), nil
}
