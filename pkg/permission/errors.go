package permission

import "errors"

var (
	// ErrEmptyPermission is returned when validating an empty string.
	ErrEmptyPermission = errors.New("permission: empty permission string")

	// ErrTooManyParts is returned when a permission has more than three segments.
	ErrTooManyParts = errors.New("permission: more than three segments")

	// ErrEmptySegment is returned when a segment between separators is empty.
	ErrEmptySegment = errors.New("permission: empty segment")

	// ErrInvalidCharacter is returned when a segment contains characters
	// outside [A-Za-z0-9_-] and is not a wildcard.
	ErrInvalidCharacter = errors.New("permission: invalid character in segment")
)
