package domain

import (
	"errors"
	"fmt"
)

// Chain adapter failures are classified into this taxonomy before they reach
// the coordinator. Only NetworkError is retried automatically; everything
// else needs either new input or a state transition (refund instead of
// claim).

// ValidationError reports malformed or out-of-range input. Not retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// InsufficientFundsError reports a signer balance below amount plus fee.
// Surfaced to the caller, not retried automatically.
type InsufficientFundsError struct {
	Token     string
	Required  uint64
	Available uint64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf(
		"insufficient %s funds: required %d, available %d",
		e.Token, e.Required, e.Available,
	)
}

// HashlockMismatchError reports a claim attempt with the wrong preimage.
// Fatal for that attempt.
type HashlockMismatchError struct {
	Expected string
	Got      string
}

func (e *HashlockMismatchError) Error() string {
	return fmt.Sprintf("hashlock mismatch: expected %s, got %s", e.Expected, e.Got)
}

// TimelockExpiredError signals that the claim window closed and the refund
// path opened. Not a bug.
type TimelockExpiredError struct {
	ContractId string
	Timelock   int64
	Now        int64
}

func (e *TimelockExpiredError) Error() string {
	return fmt.Sprintf(
		"timelock expired for contract %s: expiry %d, now %d; refund available",
		e.ContractId, e.Timelock, e.Now,
	)
}

// TimelockNotExpiredError reports a refund attempted before the timelock.
type TimelockNotExpiredError struct {
	ContractId string
	Timelock   int64
	Now        int64
}

func (e *TimelockNotExpiredError) Error() string {
	return fmt.Sprintf(
		"contract %s not yet refundable: expiry %d, now %d",
		e.ContractId, e.Timelock, e.Now,
	)
}

// PartialFillError reports a fill rejected by the ledger. The caller may
// retry with the available amount.
type PartialFillError struct {
	SwapId    string
	Requested uint64
	Available uint64
	Reason    string
}

func (e *PartialFillError) Error() string {
	return fmt.Sprintf(
		"fill rejected for swap %s: %s (requested %d, available %d)",
		e.SwapId, e.Reason, e.Requested, e.Available,
	)
}

// NetworkError reports an unreachable or timed-out chain endpoint.
// Transient: the resolver retries it with bounded backoff.
type NetworkError struct {
	Chain Chain
	Op    string
	Err   error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Chain, e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ContractNotDeployedError blocks all operations on a chain until the HTLC
// contract address is configured.
type ContractNotDeployedError struct {
	Chain Chain
}

func (e *ContractNotDeployedError) Error() string {
	return fmt.Sprintf("htlc contract not deployed on %s chain", e.Chain)
}

// ErrSwapNotFound is returned by the application layer for unknown swap ids.
var ErrSwapNotFound = errors.New("swap not found")

// ErrInvalidTransition is returned when an operation is attempted from the
// wrong phase. The state machine only moves forward.
var ErrInvalidTransition = errors.New("invalid swap phase transition")

// IsRetryable reports whether the resolver should retry the operation on the
// next poll instead of surfacing it.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
