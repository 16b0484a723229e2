package main

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokensRoundTrip(t *testing.T) {
	tk := newTokens("secret", time.Hour)
	id := uuid.New()

	raw, exp, err := tk.Issue(id)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	got, err := tk.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestTokensRejectExpired(t *testing.T) {
	tk := newTokens("secret", time.Minute)
	tk.now = func() time.Time { return time.Now().Add(-time.Hour) }
	raw, _, err := tk.Issue(uuid.New())
	require.NoError(t, err)

	tk.now = time.Now
	_, err = tk.Verify(raw)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestTokensRejectForeignSignatures(t *testing.T) {
	raw, _, err := newTokens("other", time.Hour).Issue(uuid.New())
	require.NoError(t, err)
	_, err = newTokens("secret", time.Hour).Verify(raw)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		Issuer:    tokenIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = newTokens("secret", time.Hour).Verify(unsigned)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = newTokens("secret", time.Hour).Verify("garbage")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
