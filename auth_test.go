package orbit

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestIdentityFromTokenUserIDClaim(t *testing.T) {
	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signToken(t, TokenClaims{
		UserID: 42,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})

	id, exp, err := IdentityFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.True(t, exp.Equal(expires), "expiry should round-trip through the claim")
}

func TestIdentityFromTokenSubjectFallback(t *testing.T) {
	token := signToken(t, jwt.RegisteredClaims{Subject: "9"})

	id, exp, err := IdentityFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.True(t, exp.IsZero(), "no expiry claim means zero time")
}

func TestIdentityFromTokenNoIdentity(t *testing.T) {
	token := signToken(t, jwt.RegisteredClaims{Issuer: "orbit"})

	_, _, err := IdentityFromToken(token)
	assert.Error(t, err)
}

func TestIdentityFromTokenGarbage(t *testing.T) {
	_, _, err := IdentityFromToken("not.a.jwt")
	assert.Error(t, err)
}
