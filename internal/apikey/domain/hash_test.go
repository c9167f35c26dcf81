package domain

import (
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyID(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	keyID := NewKeyID(node.Generate())
	assert.True(t, strings.HasPrefix(keyID, "key_"))
	assert.Equal(t, strings.ToUpper(keyID), keyID)
}

func TestGenerateKey(t *testing.T) {
	plain, hash, err := GenerateKey("key_ABC123")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plain, KeyPrefix))
	assert.Contains(t, plain, "ABC123_")
	assert.Equal(t, HashAPIKey(plain), hash)
	assert.NotContains(t, hash, plain)

	// A second mint for the same key ID must produce a fresh secret.
	other, _, err := GenerateKey("key_ABC123")
	require.NoError(t, err)
	assert.NotEqual(t, plain, other)
}

func TestHashAPIKey_Deterministic(t *testing.T) {
	assert.Equal(t, HashAPIKey("cl_live_key_x"), HashAPIKey("cl_live_key_x"))
	assert.NotEqual(t, HashAPIKey("cl_live_key_x"), HashAPIKey("cl_live_key_y"))
	assert.Len(t, HashAPIKey("anything"), 64)
}

func TestHasScope(t *testing.T) {
	key := &APIKey{Scopes: []string{ScopeEventsWrite, ScopeLedgerRead}}
	assert.True(t, key.HasScope(ScopeEventsWrite))
	assert.False(t, key.HasScope(ScopeKeysAdmin))
}
