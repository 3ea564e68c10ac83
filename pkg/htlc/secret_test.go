package htlc

import (
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)
	require.Len(t, secret.Preimage, 32)

	expected := sha256.Sum256(secret.Preimage)
	require.Equal(t, expected, secret.Hash)
	require.Len(t, secret.HashHex(), 64)

	// Two secrets must never collide
	other, err := GenerateSecret()
	require.NoError(t, err)
	require.NotEqual(t, secret.Preimage, other.Preimage)
}

func TestSecretFromPreimage(t *testing.T) {
	preimage := make([]byte, 32)
	_, err := rand.Read(preimage)
	require.NoError(t, err)

	secret, err := SecretFromPreimage(preimage)
	require.NoError(t, err)
	require.Equal(t, sha256.Sum256(preimage), secret.Hash)

	_, err = SecretFromPreimage([]byte("too short"))
	require.Error(t, err)
}

func TestVerify(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)

	require.True(t, Verify(secret.Preimage, secret.Hash[:]))
	require.True(t, VerifyHex(secret.Preimage, secret.HashHex()))

	// Any other preimage must fail against the same hash
	wrong := make([]byte, 32)
	copy(wrong, secret.Preimage)
	wrong[0] ^= 0xff
	require.False(t, Verify(wrong, secret.Hash[:]))
	require.False(t, VerifyHex(wrong, secret.HashHex()))

	// Malformed inputs never verify
	require.False(t, Verify(secret.Preimage, []byte("short")))
	require.False(t, VerifyHex(secret.Preimage, "not-hex"))
}
