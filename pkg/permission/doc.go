// Package permission implements parsing and wildcard matching of permission
// strings used by the authorization engine.
//
// Permission strings have two or three colon-separated segments:
//
//	resource:action
//	resource:action:scope
//
// plus the special globstar token "**" which matches every permission
// unconditionally. The "*" wildcard stands in for a whole resource or action
// segment, so "posts:*" grants every action on posts and "*:read" grants
// reading of every resource.
//
// # Parsing and matching
//
//	p := permission.Parse("posts:read:own")
//	// p.Resource == "posts", p.Action == "read", p.Scope == "own"
//
//	permission.Matches("posts:*", "posts:read")   // true
//	permission.Matches("*:read", "posts:read")    // true
//	permission.Matches("**", "anything:at:all")   // true
//
// Matching is case-insensitive by default; strings are normalized to
// lowercase before comparison. Use a custom Matcher to change that:
//
//	m := permission.New(permission.WithCaseSensitive())
//
// # Ranking competing grants
//
// FindBestMatch evaluates a set of candidate grants against a required
// permission and a request context, and returns the most specific grant that
// satisfies it. Specificity prefers concrete segments over wildcards and
// conditioned grants over unconditioned ones. Ties are resolved by input
// order: the first grant seen wins.
//
//	grants := []permission.Grant{
//	    {ID: "p1", Resource: "posts", Action: "*"},
//	    {ID: "p2", Resource: "posts", Action: "update", Scope: "own"},
//	}
//	g, ok := permission.FindBestMatch("posts:update:own", grants, permission.Context{
//	    UserID:          "u1",
//	    ResourceOwnerID: "u1",
//	})
//	// ok == true, g.ID == "p2"
//
// # Scopes
//
// The optional third segment carries ownership semantics. A required "own"
// scope is satisfied by an "own" grant only when the context user is the
// resource owner, and by an "all" grant unconditionally, since the broader
// grant subsumes the narrower requirement. Any other scope pair must match
// exactly.
//
// # Conditions
//
// A grant may carry attribute-equality conditions. Every condition key must
// be present in Context.Attributes with a deeply-equal value for the grant
// to apply. This is a deliberately minimal ABAC model, not a rules engine.
//
// # Validation
//
// Parse and Matches never fail on malformed input; a malformed pattern just
// never matches. Validate is the strict entry point and reports the first
// problem via the package sentinel errors, matchable with errors.Is:
//
//	if err := permission.Validate("posts::own"); err != nil {
//	    // errors.Is(err, permission.ErrEmptySegment) == true
//	}
package permission
