package permission

import (
	"errors"
	"fmt"
	"strings"
)

// maxSegments is the largest number of colon-separated parts a permission
// string may carry: resource, action and scope.
const maxSegments = 3

// Validate strictly checks a permission string and returns a structured
// error describing the first problem found. Unlike Parse it rejects extra
// segments, empty segments and disallowed characters.
//
// Legal segments consist of [A-Za-z0-9_-] characters, the single-segment
// wildcard "*", or the literal "**" as the entire permission string.
func (m *Matcher) Validate(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return ErrEmptyPermission
	}
	if s == Globstar {
		return nil
	}

	parts := strings.Split(s, m.separator)
	if len(parts) > maxSegments {
		return errors.Join(ErrTooManyParts, fmt.Errorf("got %d segments in %q", len(parts), s))
	}

	for i, part := range parts {
		if part == "" {
			return errors.Join(ErrEmptySegment, fmt.Errorf("segment %d of %q is empty", i+1, s))
		}
		if part == Wildcard {
			continue
		}
		if !validSegment(part) {
			return errors.Join(ErrInvalidCharacter, fmt.Errorf("segment %q in %q", part, s))
		}
	}

	return nil
}

// Validate is a shorthand using the default Matcher.
func Validate(s string) error { return defaultMatcher.Validate(s) }

func validSegment(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}
