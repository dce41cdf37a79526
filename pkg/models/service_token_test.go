package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(TokenTypeAgent)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, "compass-agent-token-"))

	// Tokens are unique
	other, err := GenerateToken(TokenTypeAgent)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestHashToken(t *testing.T) {
	hash := HashToken("compass-api-token-test")

	// SHA-256 hex is 64 characters and stable
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashToken("compass-api-token-test"))
	assert.NotEqual(t, hash, HashToken("compass-api-token-other"))
}

func TestServiceToken_CreateAndLookup(t *testing.T) {
	db := setupTestDB(t)

	plaintext, err := GenerateToken(TokenTypeAPI)
	require.NoError(t, err)

	token := &ServiceToken{TokenType: TokenTypeAPI, Description: "test client"}
	require.NoError(t, token.Create(db, plaintext))

	// Plaintext is never stored
	assert.NotContains(t, token.TokenHash, plaintext)

	var found ServiceToken
	require.NoError(t, found.GetByToken(db, plaintext))
	assert.Equal(t, token.ID, found.ID)
	assert.True(t, found.IsValid())
}

func TestServiceToken_Revoke(t *testing.T) {
	db := setupTestDB(t)

	plaintext, err := GenerateToken(TokenTypeOperator)
	require.NoError(t, err)

	token := &ServiceToken{TokenType: TokenTypeOperator}
	require.NoError(t, token.Create(db, plaintext))
	require.NoError(t, token.Revoke(db, "rotated"))

	var found ServiceToken
	require.NoError(t, found.GetByToken(db, plaintext))
	assert.False(t, found.IsValid())
	assert.Equal(t, "rotated", found.RevokedReason)
}

func TestServiceToken_Expiration(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	expired := &ServiceToken{ExpiresAt: &past}
	assert.False(t, expired.IsValid())

	future := time.Now().Add(time.Hour)
	live := &ServiceToken{ExpiresAt: &future}
	assert.True(t, live.IsValid())

	forever := &ServiceToken{}
	assert.True(t, forever.IsValid())
}

func TestServiceTokens_FindValid(t *testing.T) {
	db := setupTestDB(t)

	for _, tt := range []struct {
		tokenType string
		revoke    bool
	}{
		{TokenTypeAPI, false},
		{TokenTypeAgent, false},
		{TokenTypeOperator, true},
	} {
		plaintext, err := GenerateToken(tt.tokenType)
		require.NoError(t, err)

		token := &ServiceToken{TokenType: tt.tokenType}
		require.NoError(t, token.Create(db, plaintext))
		if tt.revoke {
			require.NoError(t, token.Revoke(db, "test"))
		}
	}

	var valid ServiceTokens
	require.NoError(t, valid.FindValid(db))
	assert.Len(t, valid, 2)
}
