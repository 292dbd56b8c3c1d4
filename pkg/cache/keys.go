package cache

import "strings"

const (
	// DefaultPrefix namespaces authorization cache keys.
	DefaultPrefix = "rbac"

	// DefaultKeySeparator joins key parts.
	DefaultKeySeparator = ":"
)

// KeyBuilder assembles structured cache keys with a configurable prefix and
// separator, so multiple engine instances can share one backing store
// without collisions.
type KeyBuilder struct {
	prefix    string
	separator string
}

// NewKeyBuilder creates a KeyBuilder. Empty arguments fall back to the
// defaults ("rbac" and ":").
func NewKeyBuilder(prefix, separator string) KeyBuilder {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if separator == "" {
		separator = DefaultKeySeparator
	}
	return KeyBuilder{prefix: prefix, separator: separator}
}

// Build joins the parts under the builder's prefix.
func (b KeyBuilder) Build(parts ...string) string {
	return b.prefix + b.separator + strings.Join(parts, b.separator)
}

// Pattern builds a glob pattern matching every key under the given parts.
func (b KeyBuilder) Pattern(parts ...string) string {
	return b.Build(parts...) + b.separator + "*"
}

// Prefix returns the builder's prefix.
func (b KeyBuilder) Prefix() string { return b.prefix }
