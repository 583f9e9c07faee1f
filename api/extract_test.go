package api

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACVerifier(t *testing.T) {
	secret := []byte("verifier-secret")
	v, err := NewHMACVerifier(secret)
	require.NoError(t, err)

	t.Run("RoundTrip", func(t *testing.T) {
		cred, err := SignCredential(Claims{AccountID: "user@example.com", Generation: 7}, secret)
		require.NoError(t, err)

		claims, err := v.Verify(t.Context(), cred)
		require.NoError(t, err)
		assert.Equal(t, "user@example.com", claims.AccountID)
		assert.Equal(t, uint64(7), claims.Generation)
	})

	t.Run("TamperedPayload", func(t *testing.T) {
		cred, err := SignCredential(Claims{AccountID: "user@example.com"}, secret)
		require.NoError(t, err)

		payload, sig, found := strings.Cut(cred, ".")
		require.True(t, found)
		other, err := SignCredential(Claims{AccountID: "mallory@example.com"}, secret)
		require.NoError(t, err)
		otherPayload, _, _ := strings.Cut(other, ".")

		_, err = v.Verify(t.Context(), otherPayload+"."+sig)
		assert.ErrorIs(t, err, ErrInvalidCredential)

		_, err = v.Verify(t.Context(), payload+"."+sig)
		assert.NoError(t, err)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		cred, err := SignCredential(Claims{AccountID: "user@example.com"}, []byte("other"))
		require.NoError(t, err)

		_, err = v.Verify(t.Context(), cred)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("Malformed", func(t *testing.T) {
		for _, cred := range []string{"", "nodot", "a.b.c", "!!!.###"} {
			_, err := v.Verify(t.Context(), cred)
			assert.ErrorIs(t, err, ErrInvalidCredential, "credential %q", cred)
		}
	})

	t.Run("EmptyAccountID", func(t *testing.T) {
		cred, err := SignCredential(Claims{Generation: 3}, secret)
		require.NoError(t, err)

		_, err = v.Verify(t.Context(), cred)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})
}

func TestNewHMACVerifierEmptySecret(t *testing.T) {
	_, err := NewHMACVerifier(nil)
	assert.Error(t, err)

	_, err = SignCredential(Claims{AccountID: "user@example.com"}, nil)
	assert.Error(t, err)
}
