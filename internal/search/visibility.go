package search

// VisibilityContext carries what the pure planner cannot see: the caller's
// resolved project memberships and approved contact targets, consulted by
// the caller_scoped policy after execution.
type VisibilityContext struct {
	CallerProjectIDs []int64
	ApprovedAgentIDs []int64
	Policy           ScopePolicy
	Redaction        RedactionConfig
}

func (c VisibilityContext) projectVisible(projectID *int64) bool {
	if projectID == nil {
		return true
	}
	for _, id := range c.CallerProjectIDs {
		if id == *projectID {
			return true
		}
	}
	return false
}

// ApplyVisibility filters and redacts results per spec §4.2's
// apply_visibility: unrestricted scope passes everything through
// unchanged; a restricted scope either drops invisible results (denied,
// when redaction is inactive) or redacts them in place (when active).
func ApplyVisibility(results []Result, ctx VisibilityContext) ([]Result, []AuditEntry) {
	if ctx.Policy.Kind == ScopeUnrestricted {
		return results, nil
	}

	policyLabel := scopePolicyLabel(ctx.Policy)
	var out []Result
	var audit []AuditEntry

	for _, r := range results {
		if ctx.projectVisible(r.ProjectID) {
			out = append(out, r)
			continue
		}

		if !ctx.Redaction.IsActive() {
			audit = append(audit, AuditEntry{
				Action: AuditDenied, DocKind: r.DocKind, DocID: r.ID, ProjectID: r.ProjectID,
				Reason: "caller does not have visibility into this project", Policy: policyLabel,
			})
			continue
		}

		redacted := redactResult(r, ctx.Redaction)
		out = append(out, redacted)
		audit = append(audit, AuditEntry{
			Action: AuditRedacted, DocKind: r.DocKind, DocID: r.ID, ProjectID: r.ProjectID,
			Reason: "visible-but-restricted under contact policy", Policy: policyLabel,
		})
	}
	return out, audit
}

func redactResult(r Result, cfg RedactionConfig) Result {
	r.Redacted = true
	reason := "redacted per scope policy"
	r.RedactionReason = &reason

	if cfg.RedactBody {
		r.Body = cfg.Placeholder
		r.Title = cfg.Placeholder
	}
	if cfg.RedactAgentNames {
		ph := cfg.Placeholder
		r.FromAgent = &ph
	}
	if cfg.RedactThreadIDs {
		r.ThreadID = nil
	}
	return r
}
