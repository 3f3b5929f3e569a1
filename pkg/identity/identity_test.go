package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, subject, name string, expiry time.Duration) string {
	t.Helper()
	c := claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTProvider_VerifyToken_Success(t *testing.T) {
	p := NewJWTProvider("shh")
	token := signToken(t, "shh", "user-a", "Alice", time.Hour)

	user, ok, err := p.VerifyToken(context.Background(), token, "user-a")

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "user-a", user.UserID)
	assert.Equal(t, "Alice", user.Username)
}

func TestJWTProvider_VerifyToken_WrongSecretRejected(t *testing.T) {
	p := NewJWTProvider("shh")
	token := signToken(t, "different-secret", "user-a", "Alice", time.Hour)

	_, ok, err := p.VerifyToken(context.Background(), token, "user-a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJWTProvider_VerifyToken_ExpiredRejected(t *testing.T) {
	p := NewJWTProvider("shh")
	token := signToken(t, "shh", "user-a", "Alice", -time.Hour)

	_, ok, err := p.VerifyToken(context.Background(), token, "user-a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJWTProvider_VerifyToken_SubjectMismatchRejected(t *testing.T) {
	p := NewJWTProvider("shh")
	token := signToken(t, "shh", "user-a", "Alice", time.Hour)

	_, ok, err := p.VerifyToken(context.Background(), token, "user-b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJWTProvider_VerifyToken_MissingNameFallsBackToSubject(t *testing.T) {
	p := NewJWTProvider("shh")
	token := signToken(t, "shh", "user-a", "", time.Hour)

	user, ok, err := p.VerifyToken(context.Background(), token, "user-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "user-a", user.Username)
}

func TestJWTProvider_VerifyToken_GarbageTokenRejected(t *testing.T) {
	p := NewJWTProvider("shh")
	_, ok, err := p.VerifyToken(context.Background(), "not-a-jwt", "user-a")
	require.NoError(t, err)
	assert.False(t, ok)
}
