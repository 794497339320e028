package crypto

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken()
	require.NoError(t, err)

	token2, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)

	// 32 bytes raw base64 is 43 chars with no padding
	assert.Len(t, token, 43)
	assert.NotContains(t, token, "=")
}

func TestSignData(t *testing.T) {
	key := []byte("signing-key")
	sig := SignData("payload", key)

	assert.True(t, ValidateSignedData("payload", sig, key))
	assert.False(t, ValidateSignedData("payload2", sig, key))
	assert.False(t, ValidateSignedData("payload", sig, []byte("other-key")))
	assert.False(t, ValidateSignedData("payload", "not base64!", key))
}

func TestDeriveKey(t *testing.T) {
	secret := []byte("a-configured-secret-of-some-length")

	state, err := DeriveKey(secret, PurposeState)
	require.NoError(t, err)
	binding, err := DeriveKey(secret, PurposeBinding)
	require.NoError(t, err)
	again, err := DeriveKey(secret, PurposeState)
	require.NoError(t, err)

	assert.Len(t, state, 32)
	assert.Equal(t, state, again)
	assert.NotEqual(t, state, binding)

	_, err = DeriveKey(nil, PurposeState)
	assert.Error(t, err)
}

type statePayload struct {
	Nonce string `json:"n"`
}

func TestTokenSigner(t *testing.T) {
	signer := NewTokenSigner([]byte("key"), time.Minute)

	token, err := signer.Sign(statePayload{Nonce: "abc"})
	require.NoError(t, err)

	var got statePayload
	require.NoError(t, signer.Verify(token, &got))
	assert.Equal(t, "abc", got.Nonce)

	t.Run("tampered payload", func(t *testing.T) {
		forged, err := signer.Sign(statePayload{Nonce: "evil"})
		require.NoError(t, err)
		mixed := strings.Split(forged, ".")[0] + "." + strings.Split(token, ".")[1]
		err = signer.Verify(mixed, &got)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("other key", func(t *testing.T) {
		other := NewTokenSigner([]byte("other"), time.Minute)
		assert.ErrorIs(t, other.Verify(token, &got), ErrInvalidToken)
	})

	t.Run("malformed", func(t *testing.T) {
		assert.ErrorIs(t, signer.Verify("garbage", &got), ErrInvalidToken)
		assert.ErrorIs(t, signer.Verify("", &got), ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		short := NewTokenSigner([]byte("key"), time.Millisecond)
		token, err := short.Sign(statePayload{Nonce: "abc"})
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
		assert.ErrorIs(t, short.Verify(token, &got), ErrTokenExpired)
	})
}

func TestCSRFProtection(t *testing.T) {
	csrf := NewCSRFProtection([]byte("key"), time.Minute)

	token, err := csrf.Generate()
	require.NoError(t, err)
	assert.True(t, csrf.Validate(token))

	assert.False(t, csrf.Validate(token+"x"))
	assert.False(t, csrf.Validate("a:b"))

	other := NewCSRFProtection([]byte("other"), time.Minute)
	assert.False(t, other.Validate(token))

	expired := NewCSRFProtection([]byte("key"), -time.Second)
	assert.False(t, expired.Validate(token))
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint("a"), Fingerprint("a"))
	assert.NotEqual(t, Fingerprint("a"), Fingerprint("b"))
}
