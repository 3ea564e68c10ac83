package domain

import (
	"fmt"
	"time"
)

type ContractStatus int

const (
	ContractPending ContractStatus = iota
	ContractClaimed
	ContractRefunded
	ContractExpired
)

func (s ContractStatus) String() string {
	switch s {
	case ContractPending:
		return "pending"
	case ContractClaimed:
		return "claimed"
	case ContractRefunded:
		return "refunded"
	case ContractExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// HTLCParameters describes one leg of a swap. Addresses are chain-specific,
// the amount is in the chain's native smallest unit, the hashlock is the
// hex-encoded SHA-256 hash and the timelock a unix-epoch expiry.
type HTLCParameters struct {
	Sender   string
	Receiver string
	Amount   uint64
	Hashlock string
	Timelock int64
	Chain    Chain
}

func (p HTLCParameters) Validate(now time.Time) error {
	if p.Sender == "" || p.Receiver == "" {
		return fmt.Errorf("sender and receiver are required")
	}
	if p.Amount == 0 {
		return fmt.Errorf("amount must be greater than 0")
	}
	if len(p.Hashlock) != 64 {
		return fmt.Errorf("hashlock must be a hex-encoded 32-byte hash")
	}
	if p.Timelock <= now.Unix() {
		return fmt.Errorf("timelock must be in the future")
	}
	return nil
}

// IsExpired reports whether the timelock passed and the refund branch opened.
func (p HTLCParameters) IsExpired(now time.Time) bool {
	return now.Unix() >= p.Timelock
}

// TimeRemaining returns the seconds left until the timelock expires.
func (p HTLCParameters) TimeRemaining(now time.Time) int64 {
	remaining := p.Timelock - now.Unix()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HTLCContract is an on-chain lock tracked by the registry. It is created
// when the lock transaction confirms and becomes immutable once claimed or
// refunded.
type HTLCContract struct {
	ContractId string
	Params     HTLCParameters
	Status     ContractStatus
	CreationTx string
	ClaimTx    string
	RefundTx   string
}

// Claimed finalizes the contract with a claim transaction. A contract
// already claimed keeps its original claim tx; resolver retries are no-ops.
func (c *HTLCContract) Claimed(txid string) {
	if c.Status == ContractClaimed || c.Status == ContractRefunded {
		return
	}
	c.ClaimTx = txid
	c.Status = ContractClaimed
}

// Refunded finalizes the contract with a refund transaction.
func (c *HTLCContract) Refunded(txid string) {
	if c.Status == ContractClaimed || c.Status == ContractRefunded {
		return
	}
	c.RefundTx = txid
	c.Status = ContractRefunded
}
