package domain

import (
	"context"
	"time"
)

type Chain int

const (
	// ChainEVM is the account-based chain. HTLCs live in a smart contract.
	ChainEVM Chain = iota
	// ChainUTXO is the UTXO-based chain. HTLCs are P2SH locking scripts.
	ChainUTXO
)

func (c Chain) String() string {
	switch c {
	case ChainEVM:
		return "evm"
	case ChainUTXO:
		return "utxo"
	default:
		return "unknown"
	}
}

type SwapDirection int

const (
	DirectionEVMToUTXO SwapDirection = iota
	DirectionUTXOToEVM
)

func (d SwapDirection) String() string {
	if d == DirectionUTXOToEVM {
		return "utxo_to_evm"
	}
	return "evm_to_utxo"
}

// SwapStatus is the order lifecycle, driven by fills and expiry.
type SwapStatus int

const (
	SwapPending SwapStatus = iota
	SwapPartiallyFilled
	SwapCompleted
	SwapExpired
	SwapFailed
	SwapCancelled
)

func (s SwapStatus) String() string {
	switch s {
	case SwapPending:
		return "pending"
	case SwapPartiallyFilled:
		return "partially_filled"
	case SwapCompleted:
		return "completed"
	case SwapExpired:
		return "expired"
	case SwapFailed:
		return "failed"
	case SwapCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// SwapPhase is the HTLC state machine. Transitions are forward-only.
type SwapPhase int

const (
	// Pending phases
	PhaseInitiated SwapPhase = iota
	PhasePartyALocked
	PhaseBothLocked
	PhaseClaimedA

	// Terminal phases
	PhaseCompleted
	PhaseRefundedA
	PhaseRefundedB
	PhaseExpired
	PhaseFailed
)

func (p SwapPhase) String() string {
	switch p {
	case PhaseInitiated:
		return "initiated"
	case PhasePartyALocked:
		return "party_a_locked"
	case PhaseBothLocked:
		return "both_locked"
	case PhaseClaimedA:
		return "claimed_a"
	case PhaseCompleted:
		return "completed"
	case PhaseRefundedA:
		return "refunded_a"
	case PhaseRefundedB:
		return "refunded_b"
	case PhaseExpired:
		return "expired"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Swap is a cross-chain HTLC swap order. Leg A is the account chain: it
// carries the longer timelock and is claimed first, revealing the secret.
// Leg B is the UTXO chain, expiring safety-margin earlier.
type Swap struct {
	Id        string
	Direction SwapDirection

	FromChain Chain
	ToChain   Chain
	FromToken string
	ToToken   string

	// Amount is the order size in leg A native units, the target of fills.
	// CounterAmount is the matching leg B amount.
	Amount        uint64
	CounterAmount uint64
	FilledAmount  uint64

	Status SwapStatus
	Phase  SwapPhase

	SecretHash string
	TimelockA  int64
	TimelockB  int64

	PartialFillsEnabled bool

	ParamsA HTLCParameters
	ParamsB HTLCParameters

	ContractA *HTLCContract
	ContractB *HTLCContract

	CreatedAt    int64
	UpdatedAt    int64
	CompletedAt  int64
	ErrorMessage string
}

// IsTerminal returns true if the swap reached a terminal phase.
func (s *Swap) IsTerminal() bool {
	switch s.Phase {
	case PhaseCompleted, PhaseExpired, PhaseFailed:
		return true
	}
	return false
}

// IsClaimable returns true while some side could still be claimed with the
// secret. The secret store keeps the preimage only as long as this holds.
func (s *Swap) IsClaimable(now time.Time) bool {
	if s.IsTerminal() {
		return false
	}
	ts := now.Unix()
	return ts < s.TimelockA || ts < s.TimelockB
}

// IsExpired returns true once leg B's timelock passed, the earliest point at
// which a side becomes refundable.
func (s *Swap) IsExpired(now time.Time) bool {
	return now.Unix() >= s.TimelockB
}

// RemainingAmount is the unfilled portion of the order.
func (s *Swap) RemainingAmount() uint64 {
	if s.FilledAmount >= s.Amount {
		return 0
	}
	return s.Amount - s.FilledAmount
}

// FillPercentage reports fill progress in percent.
func (s *Swap) FillPercentage() float64 {
	if s.Amount == 0 {
		return 0
	}
	return float64(s.FilledAmount) / float64(s.Amount) * 100
}

// Fillable returns true if the order accepts fills right now.
func (s *Swap) Fillable(now time.Time) bool {
	if !s.PartialFillsEnabled {
		return false
	}
	if s.Status != SwapPending && s.Status != SwapPartiallyFilled {
		return false
	}
	return !s.IsExpired(now)
}

// RecordFill increments the filled amount and recomputes the order status.
// Callers serialize per swap id; see PartialFillLedger.
func (s *Swap) RecordFill(amount uint64, now time.Time) {
	s.FilledAmount += amount
	if s.FilledAmount >= s.Amount {
		s.Status = SwapCompleted
		s.CompletedAt = now.Unix()
	} else {
		s.Status = SwapPartiallyFilled
	}
	s.UpdatedAt = now.Unix()
}

// PartyALocked moves the swap forward when the leg A lock confirms.
func (s *Swap) PartyALocked(contract *HTLCContract, now time.Time) {
	s.ContractA = contract
	s.Phase = PhasePartyALocked
	s.UpdatedAt = now.Unix()
}

// BothLocked moves the swap forward when the leg B lock confirms.
func (s *Swap) BothLocked(contract *HTLCContract, now time.Time) {
	s.ContractB = contract
	s.Phase = PhaseBothLocked
	s.UpdatedAt = now.Unix()
}

// ClaimedA records the leg A claim. The preimage is public from this point.
func (s *Swap) ClaimedA(txid string, now time.Time) {
	if s.ContractA != nil {
		s.ContractA.Claimed(txid)
	}
	s.Phase = PhaseClaimedA
	s.UpdatedAt = now.Unix()
}

// Completed records the leg B claim, the final protocol step.
func (s *Swap) Completed(txid string, now time.Time) {
	if s.ContractB != nil {
		s.ContractB.Claimed(txid)
	}
	s.Phase = PhaseCompleted
	s.Status = SwapCompleted
	if s.CompletedAt == 0 {
		s.CompletedAt = now.Unix()
	}
	s.UpdatedAt = now.Unix()
}

// RefundedA records a refund of the leg A lock.
func (s *Swap) RefundedA(txid string, now time.Time) {
	if s.ContractA != nil {
		s.ContractA.Refunded(txid)
	}
	s.Phase = PhaseRefundedA
	s.UpdatedAt = now.Unix()
	s.markSettledOutcome(now)
}

// RefundedB records a refund of the leg B lock.
func (s *Swap) RefundedB(txid string, now time.Time) {
	if s.ContractB != nil {
		s.ContractB.Refunded(txid)
	}
	s.Phase = PhaseRefundedB
	s.UpdatedAt = now.Unix()
	s.markSettledOutcome(now)
}

// Expire marks a swap that timed out with nothing locked on either side.
func (s *Swap) Expire(now time.Time) {
	s.Phase = PhaseExpired
	s.Status = SwapExpired
	s.UpdatedAt = now.Unix()
}

// Fail marks the swap as failed with a reason.
func (s *Swap) Fail(reason string, now time.Time) {
	s.Phase = PhaseFailed
	s.Status = SwapFailed
	s.ErrorMessage = reason
	s.UpdatedAt = now.Unix()
}

// markSettledOutcome collapses the overall order once every locked side has
// been settled. Refunds on both sides mean the order expired; a claim on one
// side paired with a refund on the other left the counterparties uneven and
// is recorded as a failure.
func (s *Swap) markSettledOutcome(now time.Time) {
	aSettled := s.ContractA == nil || s.ContractA.Status != ContractPending
	bSettled := s.ContractB == nil || s.ContractB.Status != ContractPending
	if !aSettled || !bSettled {
		return
	}
	aClaimed := s.ContractA != nil && s.ContractA.Status == ContractClaimed
	bClaimed := s.ContractB != nil && s.ContractB.Status == ContractClaimed
	if aClaimed || bClaimed {
		s.Fail("one leg claimed while the other was refunded", now)
		return
	}
	s.Phase = PhaseExpired
	s.Status = SwapExpired
	s.UpdatedAt = now.Unix()
}

// SwapRepository stores the swap orders owned by the registry
type SwapRepository interface {
	// Add creates a new swap record
	Add(ctx context.Context, swap Swap) error

	// Get retrieves a swap by ID
	Get(ctx context.Context, swapId string) (*Swap, error)

	// GetAll retrieves all swaps
	GetAll(ctx context.Context) ([]Swap, error)

	// GetByPhase retrieves swaps filtered by phase
	GetByPhase(ctx context.Context, phases ...SwapPhase) ([]Swap, error)

	// Update updates an existing swap
	Update(ctx context.Context, swap Swap) error

	// Delete removes a swap (retention sweeps only)
	Delete(ctx context.Context, swapId string) error

	// Close closes the repository
	Close()
}
