package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	verifier := NewJWTVerifier("secret")

	token, err := issuer.Issue("hr@acme.test")
	require.NoError(t, err)

	principal, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "hr@acme.test", principal.Email)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	verifier := NewJWTVerifier("secret")
	ctx := context.Background()

	_, err := verifier.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = verifier.Verify(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongKey, err := NewIssuer("other", time.Hour).Issue("hr@acme.test")
	require.NoError(t, err)
	_, err = verifier.Verify(ctx, wrongKey)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewIssuer("secret", -time.Minute).Issue("hr@acme.test")
	require.NoError(t, err)
	_, err = verifier.Verify(ctx, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noEmail := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "someone",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := noEmail.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = verifier.Verify(ctx, signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyNormalizesEmail(t *testing.T) {
	token, err := NewIssuer("secret", time.Hour).Issue(" NewHR@Example.COM ")
	require.NoError(t, err)

	principal, err := NewJWTVerifier("secret").Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "newhr@example.com", principal.Email)
}
