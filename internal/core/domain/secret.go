package domain

import "context"

// SecretRepository keeps swap preimages in a dedicated store, separate from
// the public swap metadata and with a narrower lifetime: the secret is
// deleted as soon as its swap reaches a terminal, non-claimable state.
type SecretRepository interface {
	// Add stores the preimage for a swap
	Add(ctx context.Context, swapId string, secret []byte) error

	// Get retrieves the preimage for a swap
	Get(ctx context.Context, swapId string) ([]byte, error)

	// Delete removes the preimage for a swap
	Delete(ctx context.Context, swapId string) error

	// Close closes the repository
	Close()
}
