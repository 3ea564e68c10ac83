package htlc

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const secretLen = 32

// Secret is an HTLC preimage and its SHA-256 hash. The preimage is owned
// exclusively by the initiating party until a claim reveals it on-chain.
type Secret struct {
	Preimage []byte
	Hash     [sha256.Size]byte
}

// GenerateSecret draws a 32-byte preimage from the system entropy source.
// It fails only if the entropy source does, which is fatal for the caller.
func GenerateSecret() (*Secret, error) {
	preimage := make([]byte, secretLen)
	if _, err := rand.Read(preimage); err != nil {
		return nil, fmt.Errorf("failed to read entropy source: %w", err)
	}
	return &Secret{
		Preimage: preimage,
		Hash:     sha256.Sum256(preimage),
	}, nil
}

// SecretFromPreimage rebuilds the secret pair from an existing preimage.
func SecretFromPreimage(preimage []byte) (*Secret, error) {
	if len(preimage) != secretLen {
		return nil, fmt.Errorf("preimage must be %d bytes, got %d", secretLen, len(preimage))
	}
	return &Secret{
		Preimage: preimage,
		Hash:     sha256.Sum256(preimage),
	}, nil
}

// HashHex returns the hashlock as it travels on the wire.
func (s *Secret) HashHex() string {
	return hex.EncodeToString(s.Hash[:])
}

// Verify checks a preimage against a hashlock in constant time.
func Verify(preimage, hash []byte) bool {
	if len(hash) != sha256.Size {
		return false
	}
	sum := sha256.Sum256(preimage)
	return subtle.ConstantTimeCompare(sum[:], hash) == 1
}

// VerifyHex checks a preimage against a hex-encoded hashlock.
func VerifyHex(preimage []byte, hashHex string) bool {
	hash, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}
	return Verify(preimage, hash)
}
