package permission

import (
	"reflect"
	"strings"
)

// Grant is a candidate permission held by a subject, evaluated by
// FindBestMatch against a required permission string.
type Grant struct {
	// ID identifies the underlying permission record. Used by callers to
	// correlate the winning grant back to its source role.
	ID string

	Resource string
	Action   string
	Scope    string

	// Conditions are ABAC attribute-equality constraints. Every key must be
	// present in the request context attributes with a deeply-equal value.
	Conditions map[string]any
}

// Pattern returns the grant in permission-string form.
func (g Grant) Pattern() string {
	s := g.Resource + DefaultSeparator + g.Action
	if g.Scope != "" {
		s += DefaultSeparator + g.Scope
	}
	return s
}

// Context carries request-time attributes used for scope and condition
// evaluation.
type Context struct {
	UserID          string
	ResourceOwnerID string
	OrganizationID  string
	Attributes      map[string]any
}

// Specificity scores a grant for ranking competing matches. Concrete
// segments outrank wildcards, and conditioned grants outrank unconditioned
// ones at the same shape.
func Specificity(g Grant) int {
	score := 0
	if g.Resource != Wildcard {
		score += 10
	}
	if g.Action != Wildcard {
		score += 10
	}
	if g.Scope != "" && g.Scope != Wildcard {
		score += 5
	}
	if len(g.Conditions) > 0 {
		score += 3
	}
	return score
}

// FindBestMatch returns the most specific grant that satisfies the required
// permission string under the given context, and whether any grant matched.
//
// Among equally specific grants the first seen wins; callers needing a
// deterministic tie-break must order the grants slice themselves.
func (m *Matcher) FindBestMatch(required string, grants []Grant, ctx Context) (Grant, bool) {
	req := m.Parse(required)

	var (
		best      Grant
		bestScore = -1
	)

	for _, g := range grants {
		if !m.grantMatches(g, req) {
			continue
		}
		if !scopeSatisfied(req.Scope, g.Scope, ctx) {
			continue
		}
		if !conditionsSatisfied(g.Conditions, ctx.Attributes) {
			continue
		}
		if score := Specificity(g); score > bestScore {
			best = g
			bestScore = score
		}
	}

	if bestScore < 0 {
		return Grant{}, false
	}
	return best, true
}

// FindBestMatch is a shorthand using the default Matcher.
func FindBestMatch(required string, grants []Grant, ctx Context) (Grant, bool) {
	return defaultMatcher.FindBestMatch(required, grants, ctx)
}

// grantMatches checks resource and action only; scope is evaluated
// separately because ownership scopes depend on the request context, not on
// string equality.
func (m *Matcher) grantMatches(g Grant, req Parsed) bool {
	resource, action := g.Resource, g.Action
	if !m.caseSensitive {
		resource = strings.ToLower(resource)
		action = strings.ToLower(action)
	}

	if resource == Globstar {
		return true
	}
	if resource != Wildcard && resource != req.Resource {
		return false
	}
	if action != Wildcard && action != req.Action {
		return false
	}
	return true
}

// scopeSatisfied implements the ownership-scope rules:
//
//   - no required scope: always satisfied
//   - grant scope "*": satisfied
//   - required "own" + grant "own": satisfied only when the context user is
//     the resource owner (both IDs must be present)
//   - required "own" + grant "all": satisfied, the broader grant subsumes
//     the narrower requirement
//   - otherwise the scopes must match exactly
func scopeSatisfied(required, grant string, ctx Context) bool {
	if required == "" {
		return true
	}
	if grant == Wildcard {
		return true
	}

	if required == ScopeOwn {
		switch grant {
		case ScopeOwn:
			return ctx.UserID != "" && ctx.ResourceOwnerID != "" && ctx.UserID == ctx.ResourceOwnerID
		case ScopeAll:
			return true
		}
	}

	return grant == required
}

// conditionsSatisfied checks that every condition key has a deeply-equal
// counterpart in the context attributes. An absent conditions map always
// satisfies. This is deliberately a minimal equality-only ABAC, not a rules
// engine.
func conditionsSatisfied(conditions map[string]any, attributes map[string]any) bool {
	if len(conditions) == 0 {
		return true
	}
	for key, want := range conditions {
		got, ok := attributes[key]
		if !ok || !reflect.DeepEqual(want, got) {
			return false
		}
	}
	return true
}
