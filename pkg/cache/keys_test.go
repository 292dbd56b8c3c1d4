package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/authzkit/authzkit/pkg/cache"
)

func TestKeyBuilder(t *testing.T) {
	t.Parallel()

	kb := cache.NewKeyBuilder("", "")
	assert.Equal(t, "rbac", kb.Prefix())
	assert.Equal(t, "rbac:user:u1:org1", kb.Build("user", "u1", "org1"))
	assert.Equal(t, "rbac:user:u1:*", kb.Pattern("user", "u1"))

	custom := cache.NewKeyBuilder("authz", "/")
	assert.Equal(t, "authz/role/r1", custom.Build("role", "r1"))
}
