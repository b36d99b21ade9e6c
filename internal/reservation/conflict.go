package reservation

import (
	"github.com/agentmail-core/agentmail/internal/errs"
	"github.com/agentmail-core/agentmail/internal/model"
)

// EnforcementMode controls what a conflicting claim does (spec §4.4).
type EnforcementMode string

const (
	ModeBlock    EnforcementMode = "block"
	ModeWarn     EnforcementMode = "warn"
	ModeAdvisory EnforcementMode = "advisory"
)

// Claim is the reservation a caller is attempting to make.
type Claim struct {
	HolderID  int64
	Pattern   string
	Exclusive bool
}

// Conflict describes one existing reservation that blocks or warns against a
// claim.
type Conflict struct {
	ReservationID int64  `json:"reservation_id"`
	Pattern       string `json:"pattern"`
	HolderID      int64  `json:"holder_id"`
	ExpiresTS     int64  `json:"expires_ts"`
}

// FindConflicts applies spec §4.4's conflict rule: active is assumed to
// already be filtered to the same project and to unreleased, unexpired
// reservations (the store's ActiveReservations predicate). A reservation
// conflicts with claim when its holder differs, its pattern overlaps the
// claim's pattern, and either side is exclusive.
func FindConflicts(active []model.FileReservation, claim Claim) []Conflict {
	var conflicts []Conflict
	for _, r := range active {
		if r.HolderID == claim.HolderID {
			continue
		}
		if !r.Exclusive && !claim.Exclusive {
			continue
		}
		if !PatternsOverlap(r.PathPattern, claim.Pattern) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			ReservationID: r.ID, Pattern: r.PathPattern, HolderID: r.HolderID, ExpiresTS: r.ExpiresTS,
		})
	}
	return conflicts
}

// ConflictError builds the structured INVALID_ARGUMENT error block mode
// returns, listing every conflicting reservation.
func ConflictError(conflicts []Conflict) *errs.Error {
	details := make([]map[string]any, len(conflicts))
	for i, c := range conflicts {
		details[i] = map[string]any{
			"reservation_id": c.ReservationID, "pattern": c.Pattern,
			"holder_id": c.HolderID, "expires_ts": c.ExpiresTS,
		}
	}
	return errs.InvalidArgument("claim conflicts with an active reservation").
		WithDetail("conflicts", details)
}
