package ports

import (
	"context"

	"github.com/hashlocked/swapd/internal/core/domain"
)

// Credentials carries the signing material for a single chain call. Keys are
// provisioned by an external wallet collaborator and passed through per
// call; the engine never generates or stores them.
type Credentials struct {
	// PrivateKey is hex-encoded for the account chain and WIF-encoded for
	// the UTXO chain.
	PrivateKey string
}

// LockResult is the outcome of a confirmed lock transaction.
type LockResult struct {
	ContractId string
	TxRef      string
}

// ClaimResult is the outcome of a claim transaction.
type ClaimResult struct {
	TxRef string
}

// RefundResult is the outcome of a refund transaction.
type RefundResult struct {
	TxRef string
}

// ContractState is the on-chain view of an HTLC, as reported by QueryStatus.
type ContractState struct {
	Amount        uint64
	Hashlock      string
	Timelock      int64
	Withdrawn     bool
	Refunded      bool
	Confirmations uint64

	// Preimage is the revealed secret, populated once Withdrawn is true.
	Preimage []byte
}

// ChainAdapter is the uniform capability set over one chain. Failures are
// classified into the domain error taxonomy before returning; claim and
// refund are idempotent so resolver retries converge instead of erroring.
type ChainAdapter interface {
	// Chain identifies which side of a swap this adapter serves.
	Chain() domain.Chain

	// CreateLock funds a new HTLC with the given parameters.
	CreateLock(ctx context.Context, params domain.HTLCParameters, creds Credentials) (*LockResult, error)

	// Claim spends the hashlock branch with the preimage. Claiming an
	// already-claimed contract is a no-op success.
	Claim(ctx context.Context, contractId string, preimage []byte, creds Credentials) (*ClaimResult, error)

	// Refund spends the timelock branch back to the sender. Refunding an
	// already-refunded contract is a no-op success.
	Refund(ctx context.Context, contractId string, creds Credentials) (*RefundResult, error)

	// QueryStatus reads the current contract state. It fails only with
	// NetworkError.
	QueryStatus(ctx context.Context, contractId string) (*ContractState, error)

	// Connected verifies chain endpoint reachability.
	Connected(ctx context.Context) error

	// SignerBalance reports the spendable balance of the signing key.
	SignerBalance(ctx context.Context, creds Credentials) (uint64, error)
}
