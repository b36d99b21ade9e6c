// Package boundary implements the shared operation dispatcher consumed by
// both the stdio-framed RPC transport and the HTTP/JSON transport (spec
// §6: "two boundary protocols... expose the same surface"). Every named
// operation is registered once, in the Registry, and both transports do
// nothing but decode a request envelope, call Dispatch, and encode the
// response envelope.
package boundary

import (
	"strings"

	"github.com/agentmail-core/agentmail/internal/errs"
)

// resolveTextAlias applies spec §6's alias rule to a pair of text fields:
// if both are set they must match case-insensitively, else the alias
// conflict is a structured INVALID_ARGUMENT error. Returns whichever value
// was provided (preferring canonical) and nil detail on agreement.
func resolveTextAlias(field string, canonicalName string, canonical *string, aliasName string, alias *string) (*string, *errs.Error) {
	if canonical == nil {
		return alias, nil
	}
	if alias == nil {
		return canonical, nil
	}
	if !strings.EqualFold(*canonical, *alias) {
		return nil, errs.AliasConflict(field, canonicalName, *canonical, aliasName, *alias)
	}
	return canonical, nil
}

// resolveTimestampAlias is the same rule for timestamp fields, which must
// match exactly rather than case-insensitively.
func resolveTimestampAlias(field string, canonicalName string, canonical *int64, aliasName string, alias *int64) (*int64, *errs.Error) {
	if canonical == nil {
		return alias, nil
	}
	if alias == nil {
		return canonical, nil
	}
	if *canonical != *alias {
		return nil, errs.AliasConflict(field, canonicalName, *canonical, aliasName, *alias)
	}
	return canonical, nil
}

// namedTimestamp pairs an alias's field name with its value, so callers can
// hand firstNonNilTimestamp an ordered list instead of a map — alias
// resolution order must be deterministic even though spec §6 only defines
// the pairwise canonical-vs-alias conflict rule.
type namedTimestamp struct {
	name  string
	value *int64
}

// firstNonNilTimestamp folds a canonical field and an ordered list of
// aliases down to a single value. Each alias is checked against the
// canonical field only (not against other aliases) — spec §6 defines the
// conflict rule in terms of "the canonical field and an alias", not
// alias-to-alias agreement.
func firstNonNilTimestamp(field, canonicalName string, canonical *int64, aliases []namedTimestamp) (*int64, *errs.Error) {
	var fromAlias *int64
	for _, a := range aliases {
		if _, aerr := resolveTimestampAlias(field, canonicalName, canonical, a.name, a.value); aerr != nil {
			return nil, aerr
		}
		if canonical == nil && fromAlias == nil {
			fromAlias = a.value
		}
	}
	if canonical != nil {
		return canonical, nil
	}
	return fromAlias, nil
}
