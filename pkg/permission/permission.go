package permission

import "strings"

const (
	// DefaultSeparator separates permission segments (e.g. "posts:read:own").
	DefaultSeparator = ":"

	// Wildcard matches a single segment (resource or action).
	Wildcard = "*"

	// Globstar, as the entire permission string, matches everything.
	Globstar = "**"

	// ScopeOwn restricts a grant to resources owned by the requesting user.
	ScopeOwn = "own"

	// ScopeAll grants access regardless of ownership and subsumes ScopeOwn.
	ScopeAll = "all"
)

// Parsed is the structured form of a permission string.
type Parsed struct {
	Resource string
	Action   string
	Scope    string

	IsResourceWildcard bool
	IsActionWildcard   bool
	IsScopeWildcard    bool
	IsGlobstar         bool
	HasWildcard        bool
}

// String reassembles the permission into its canonical string form.
func (p Parsed) String() string {
	if p.IsGlobstar {
		return Globstar
	}
	if p.Scope != "" {
		return p.Resource + DefaultSeparator + p.Action + DefaultSeparator + p.Scope
	}
	return p.Resource + DefaultSeparator + p.Action
}

// Matcher parses and matches permission strings. The zero value is not
// usable; construct one with New. All methods are safe for concurrent use
// since a Matcher is immutable after construction.
type Matcher struct {
	separator     string
	caseSensitive bool
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithSeparator overrides the segment separator (default ":").
func WithSeparator(sep string) Option {
	return func(m *Matcher) {
		if sep != "" {
			m.separator = sep
		}
	}
}

// WithCaseSensitive disables the default lowercase normalization.
func WithCaseSensitive() Option {
	return func(m *Matcher) {
		m.caseSensitive = true
	}
}

// New creates a Matcher with the given options.
func New(opts ...Option) *Matcher {
	m := &Matcher{separator: DefaultSeparator}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// defaultMatcher backs the package-level convenience functions.
var defaultMatcher = New()

// Parse splits a permission string into its structured form.
//
// A missing action defaults to the wildcard, so "posts" is equivalent to
// "posts:*". Segments beyond the third are ignored; use Validate to reject
// malformed input strictly. Parse never fails: matching a malformed string
// simply never succeeds.
func (m *Matcher) Parse(s string) Parsed {
	if !m.caseSensitive {
		s = strings.ToLower(s)
	}
	s = strings.TrimSpace(s)

	if s == Globstar {
		return Parsed{IsGlobstar: true, HasWildcard: true}
	}

	parts := strings.Split(s, m.separator)

	p := Parsed{Resource: parts[0], Action: Wildcard}
	if len(parts) > 1 && parts[1] != "" {
		p.Action = parts[1]
	}
	if len(parts) > 2 {
		p.Scope = parts[2]
	}

	p.IsResourceWildcard = p.Resource == Wildcard
	p.IsActionWildcard = p.Action == Wildcard
	p.IsScopeWildcard = p.Scope == Wildcard
	p.HasWildcard = p.IsResourceWildcard || p.IsActionWildcard || p.IsScopeWildcard

	return p
}

// Matches reports whether pattern grants the required permission string.
//
// The globstar pattern grants everything. Otherwise resource and action must
// be equal segment-wise or wildcarded in the pattern, and a concrete pattern
// scope must be matched exactly by the required scope. Ownership semantics
// for the "own"/"all" scopes are handled by FindBestMatch, which evaluates
// the request context; Matches is purely structural.
func (m *Matcher) Matches(pattern, required string) bool {
	p := m.Parse(pattern)
	if p.IsGlobstar {
		return true
	}

	r := m.Parse(required)

	if !p.IsResourceWildcard && p.Resource != r.Resource {
		return false
	}
	if !p.IsActionWildcard && p.Action != r.Action {
		return false
	}
	if p.Scope != "" && !p.IsScopeWildcard && p.Scope != r.Scope {
		return false
	}

	return true
}

// Parse is a shorthand using the default Matcher (":" separator,
// case-insensitive).
func Parse(s string) Parsed { return defaultMatcher.Parse(s) }

// Matches is a shorthand using the default Matcher.
func Matches(pattern, required string) bool { return defaultMatcher.Matches(pattern, required) }
