package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashlocked/swapd/internal/core/domain"
	"github.com/hashlocked/swapd/internal/core/ports"
	"github.com/hashlocked/swapd/pkg/htlc"
	log "github.com/sirupsen/logrus"
)

// SwapRequest is the user-facing order to open a new swap.
type SwapRequest struct {
	Direction     domain.SwapDirection
	FromToken     string
	ToToken       string
	Amount        uint64
	CounterAmount uint64

	// SenderA/ReceiverA are the account-chain addresses, SenderB/ReceiverB
	// the UTXO-chain ones.
	SenderA   string
	ReceiverA string
	SenderB   string
	ReceiverB string

	// TimelockDuration is how long the account-chain lock stays claimable.
	TimelockDuration time.Duration

	PartialFillsEnabled bool
}

// SwapCoordinator drives the swap state machine. Every transition runs under
// the per-swap lock and is persisted before the method returns, so a restart
// resumes from the last recorded phase.
type SwapCoordinator struct {
	repoMgr  ports.RepoManager
	adapters map[domain.Chain]ports.ChainAdapter
	locker   *swapLocker

	safetyMargin time.Duration
	minAmount    uint64
	maxAmount    uint64
	minTimelock  time.Duration
	maxTimelock  time.Duration

	// now is the coordinator's clock, replaceable in tests.
	now func() time.Time
}

func NewSwapCoordinator(
	repoMgr ports.RepoManager,
	adapters map[domain.Chain]ports.ChainAdapter,
	safetyMargin time.Duration,
	minAmount, maxAmount uint64,
	minTimelock, maxTimelock time.Duration,
) (*SwapCoordinator, error) {
	if safetyMargin <= 0 {
		return nil, fmt.Errorf("safety margin must be positive")
	}
	if minTimelock <= safetyMargin {
		return nil, fmt.Errorf(
			"min timelock %s must exceed safety margin %s", minTimelock, safetyMargin,
		)
	}
	for _, chain := range []domain.Chain{domain.ChainEVM, domain.ChainUTXO} {
		if _, ok := adapters[chain]; !ok {
			return nil, fmt.Errorf("missing %s chain adapter", chain)
		}
	}
	return &SwapCoordinator{
		repoMgr:      repoMgr,
		adapters:     adapters,
		locker:       newSwapLocker(),
		safetyMargin: safetyMargin,
		minAmount:    minAmount,
		maxAmount:    maxAmount,
		minTimelock:  minTimelock,
		maxTimelock:  maxTimelock,
		now:          time.Now,
	}, nil
}

// SafetyMargin returns the gap between the two legs' timelocks.
func (c *SwapCoordinator) SafetyMargin() time.Duration {
	return c.safetyMargin
}

// Initiate creates a new swap order: it generates the secret, derives both
// legs' HTLC parameters and persists the order in the initiated phase. The
// preimage goes to the secret store, never into the swap record.
func (c *SwapCoordinator) Initiate(ctx context.Context, req SwapRequest) (*domain.Swap, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, err
	}

	secret, err := htlc.GenerateSecret()
	if err != nil {
		return nil, err
	}

	now := c.now()
	timelockA := now.Add(req.TimelockDuration).Unix()
	timelockB := now.Add(req.TimelockDuration - c.safetyMargin).Unix()

	fromChain, toChain := domain.ChainEVM, domain.ChainUTXO
	if req.Direction == domain.DirectionUTXOToEVM {
		fromChain, toChain = domain.ChainUTXO, domain.ChainEVM
	}

	swap := domain.Swap{
		Id:                  uuid.NewString(),
		Direction:           req.Direction,
		FromChain:           fromChain,
		ToChain:             toChain,
		FromToken:           req.FromToken,
		ToToken:             req.ToToken,
		Amount:              req.Amount,
		CounterAmount:       req.CounterAmount,
		Status:              domain.SwapPending,
		Phase:               domain.PhaseInitiated,
		SecretHash:          secret.HashHex(),
		TimelockA:           timelockA,
		TimelockB:           timelockB,
		PartialFillsEnabled: req.PartialFillsEnabled,
		ParamsA: domain.HTLCParameters{
			Sender:   req.SenderA,
			Receiver: req.ReceiverA,
			Amount:   c.legAAmount(req),
			Hashlock: secret.HashHex(),
			Timelock: timelockA,
			Chain:    domain.ChainEVM,
		},
		ParamsB: domain.HTLCParameters{
			Sender:   req.SenderB,
			Receiver: req.ReceiverB,
			Amount:   c.legBAmount(req),
			Hashlock: secret.HashHex(),
			Timelock: timelockB,
			Chain:    domain.ChainUTXO,
		},
		CreatedAt: now.Unix(),
		UpdatedAt: now.Unix(),
	}

	if err := swap.ParamsA.Validate(now); err != nil {
		return nil, &domain.ValidationError{Field: "params_a", Reason: err.Error()}
	}
	if err := swap.ParamsB.Validate(now); err != nil {
		return nil, &domain.ValidationError{Field: "params_b", Reason: err.Error()}
	}

	if err := c.repoMgr.Secrets().Add(ctx, swap.Id, secret.Preimage); err != nil {
		return nil, fmt.Errorf("failed to store swap secret: %w", err)
	}
	if err := c.repoMgr.Swaps().Add(ctx, swap); err != nil {
		// nolint:all
		c.repoMgr.Secrets().Delete(ctx, swap.Id)
		return nil, fmt.Errorf("failed to store swap: %w", err)
	}

	log.WithFields(log.Fields{
		"swap":       swap.Id,
		"direction":  swap.Direction,
		"amount":     swap.Amount,
		"timelock_a": timelockA,
		"timelock_b": timelockB,
	}).Info("swap initiated")

	return &swap, nil
}

// LockA funds the account-chain HTLC, the first lock of the protocol.
func (c *SwapCoordinator) LockA(
	ctx context.Context, swapId string, creds ports.Credentials,
) (*domain.Swap, error) {
	unlock := c.locker.lock(swapId)
	defer unlock()

	swap, err := c.repoMgr.Swaps().Get(ctx, swapId)
	if err != nil {
		return nil, err
	}
	if swap.Phase != domain.PhaseInitiated {
		return nil, fmt.Errorf(
			"%w: cannot lock leg A from phase %s", domain.ErrInvalidTransition, swap.Phase,
		)
	}

	now := c.now()
	if swap.ParamsA.IsExpired(now) {
		return nil, &domain.TimelockExpiredError{
			Timelock: swap.TimelockA, Now: now.Unix(),
		}
	}

	result, err := c.adapters[domain.ChainEVM].CreateLock(ctx, swap.ParamsA, creds)
	if err != nil {
		return nil, err
	}

	swap.PartyALocked(&domain.HTLCContract{
		ContractId: result.ContractId,
		Params:     swap.ParamsA,
		Status:     domain.ContractPending,
		CreationTx: result.TxRef,
	}, now)
	if err := c.repoMgr.Swaps().Update(ctx, *swap); err != nil {
		return nil, fmt.Errorf("failed to persist leg A lock: %w", err)
	}

	log.WithFields(log.Fields{
		"swap":     swap.Id,
		"contract": result.ContractId,
		"tx":       result.TxRef,
	}).Info("leg A locked")

	return swap, nil
}

// LockB funds the UTXO-chain HTLC once leg A is locked. Its timelock sits a
// safety margin before leg A's, so the resolver can always claim B after the
// secret shows up on A.
func (c *SwapCoordinator) LockB(
	ctx context.Context, swapId string, creds ports.Credentials,
) (*domain.Swap, error) {
	unlock := c.locker.lock(swapId)
	defer unlock()

	swap, err := c.repoMgr.Swaps().Get(ctx, swapId)
	if err != nil {
		return nil, err
	}
	if swap.Phase != domain.PhasePartyALocked {
		return nil, fmt.Errorf(
			"%w: cannot lock leg B from phase %s", domain.ErrInvalidTransition, swap.Phase,
		)
	}

	now := c.now()
	if swap.ParamsB.IsExpired(now) {
		return nil, &domain.TimelockExpiredError{
			Timelock: swap.TimelockB, Now: now.Unix(),
		}
	}

	result, err := c.adapters[domain.ChainUTXO].CreateLock(ctx, swap.ParamsB, creds)
	if err != nil {
		return nil, err
	}

	swap.BothLocked(&domain.HTLCContract{
		ContractId: result.ContractId,
		Params:     swap.ParamsB,
		Status:     domain.ContractPending,
		CreationTx: result.TxRef,
	}, now)
	if err := c.repoMgr.Swaps().Update(ctx, *swap); err != nil {
		return nil, fmt.Errorf("failed to persist leg B lock: %w", err)
	}

	log.WithFields(log.Fields{
		"swap":     swap.Id,
		"contract": result.ContractId,
		"tx":       result.TxRef,
	}).Info("leg B locked, both sides funded")

	return swap, nil
}

// ClaimA spends the account-chain HTLC with the stored preimage, revealing
// the secret on-chain. From here the counterparty can complete leg B.
func (c *SwapCoordinator) ClaimA(
	ctx context.Context, swapId string, creds ports.Credentials,
) (*domain.Swap, error) {
	unlock := c.locker.lock(swapId)
	defer unlock()

	swap, err := c.repoMgr.Swaps().Get(ctx, swapId)
	if err != nil {
		return nil, err
	}
	if swap.Phase != domain.PhaseBothLocked {
		return nil, fmt.Errorf(
			"%w: cannot claim leg A from phase %s", domain.ErrInvalidTransition, swap.Phase,
		)
	}

	now := c.now()
	if swap.ParamsA.IsExpired(now) {
		return nil, &domain.TimelockExpiredError{
			ContractId: swap.ContractA.ContractId,
			Timelock:   swap.TimelockA,
			Now:        now.Unix(),
		}
	}

	preimage, err := c.repoMgr.Secrets().Get(ctx, swapId)
	if err != nil {
		return nil, fmt.Errorf("failed to load swap secret: %w", err)
	}
	if !htlc.VerifyHex(preimage, swap.SecretHash) {
		return nil, &domain.HashlockMismatchError{Expected: swap.SecretHash}
	}

	result, err := c.adapters[domain.ChainEVM].Claim(
		ctx, swap.ContractA.ContractId, preimage, creds,
	)
	if err != nil {
		return nil, err
	}

	swap.ClaimedA(result.TxRef, now)
	if err := c.repoMgr.Swaps().Update(ctx, *swap); err != nil {
		return nil, fmt.Errorf("failed to persist leg A claim: %w", err)
	}

	log.WithFields(log.Fields{
		"swap": swap.Id,
		"tx":   result.TxRef,
	}).Info("leg A claimed, secret revealed")

	return swap, nil
}

// ClaimB spends the UTXO-chain HTLC with a preimage learned from the leg A
// claim. The caller supplies the preimage because the claimer here is the
// counterparty, who never had access to the secret store.
func (c *SwapCoordinator) ClaimB(
	ctx context.Context, swapId string, preimage []byte, creds ports.Credentials,
) (*domain.Swap, error) {
	unlock := c.locker.lock(swapId)
	defer unlock()

	swap, err := c.repoMgr.Swaps().Get(ctx, swapId)
	if err != nil {
		return nil, err
	}
	if swap.Phase != domain.PhaseClaimedA {
		return nil, fmt.Errorf(
			"%w: cannot claim leg B from phase %s", domain.ErrInvalidTransition, swap.Phase,
		)
	}

	now := c.now()
	if swap.ParamsB.IsExpired(now) {
		return nil, &domain.TimelockExpiredError{
			ContractId: swap.ContractB.ContractId,
			Timelock:   swap.TimelockB,
			Now:        now.Unix(),
		}
	}
	if !htlc.VerifyHex(preimage, swap.SecretHash) {
		return nil, &domain.HashlockMismatchError{Expected: swap.SecretHash}
	}

	result, err := c.adapters[domain.ChainUTXO].Claim(
		ctx, swap.ContractB.ContractId, preimage, creds,
	)
	if err != nil {
		return nil, err
	}

	swap.Completed(result.TxRef, now)
	if err := c.repoMgr.Swaps().Update(ctx, *swap); err != nil {
		return nil, fmt.Errorf("failed to persist leg B claim: %w", err)
	}
	c.dropSecretIfDone(ctx, swap, now)

	log.WithFields(log.Fields{
		"swap": swap.Id,
		"tx":   result.TxRef,
	}).Info("swap completed")

	return swap, nil
}

// RefundA returns the account-chain lock to its sender after the timelock.
func (c *SwapCoordinator) RefundA(
	ctx context.Context, swapId string, creds ports.Credentials,
) (*domain.Swap, error) {
	return c.refund(ctx, swapId, domain.ChainEVM, creds)
}

// RefundB returns the UTXO-chain lock to its sender after the timelock.
func (c *SwapCoordinator) RefundB(
	ctx context.Context, swapId string, creds ports.Credentials,
) (*domain.Swap, error) {
	return c.refund(ctx, swapId, domain.ChainUTXO, creds)
}

func (c *SwapCoordinator) refund(
	ctx context.Context, swapId string, chain domain.Chain, creds ports.Credentials,
) (*domain.Swap, error) {
	unlock := c.locker.lock(swapId)
	defer unlock()

	swap, err := c.repoMgr.Swaps().Get(ctx, swapId)
	if err != nil {
		return nil, err
	}
	if swap.IsTerminal() {
		return nil, fmt.Errorf(
			"%w: cannot refund from phase %s", domain.ErrInvalidTransition, swap.Phase,
		)
	}

	contract := swap.ContractA
	timelock := swap.TimelockA
	if chain == domain.ChainUTXO {
		contract = swap.ContractB
		timelock = swap.TimelockB
	}
	if contract == nil {
		return nil, fmt.Errorf("no %s lock to refund for swap %s", chain, swapId)
	}
	if contract.Status == domain.ContractClaimed {
		return nil, fmt.Errorf(
			"%w: %s lock already claimed", domain.ErrInvalidTransition, chain,
		)
	}

	now := c.now()
	if now.Unix() < timelock {
		return nil, &domain.TimelockNotExpiredError{
			ContractId: contract.ContractId,
			Timelock:   timelock,
			Now:        now.Unix(),
		}
	}

	result, err := c.adapters[chain].Refund(ctx, contract.ContractId, creds)
	if err != nil {
		return nil, err
	}

	if chain == domain.ChainEVM {
		swap.RefundedA(result.TxRef, now)
	} else {
		swap.RefundedB(result.TxRef, now)
	}
	if err := c.repoMgr.Swaps().Update(ctx, *swap); err != nil {
		return nil, fmt.Errorf("failed to persist %s refund: %w", chain, err)
	}
	c.dropSecretIfDone(ctx, swap, now)

	log.WithFields(log.Fields{
		"swap":  swap.Id,
		"chain": chain,
		"tx":    result.TxRef,
	}).Info("lock refunded")

	return swap, nil
}

// dropSecretIfDone removes the preimage once no side can be claimed anymore.
func (c *SwapCoordinator) dropSecretIfDone(ctx context.Context, swap *domain.Swap, now time.Time) {
	if !swap.IsTerminal() && swap.IsClaimable(now) {
		return
	}
	if err := c.repoMgr.Secrets().Delete(ctx, swap.Id); err != nil {
		log.WithError(err).WithField("swap", swap.Id).Warn("failed to drop swap secret")
	}
}

func (c *SwapCoordinator) validateRequest(req SwapRequest) error {
	if req.Amount == 0 {
		return &domain.ValidationError{Field: "amount", Reason: "must be greater than 0"}
	}
	if req.CounterAmount == 0 {
		return &domain.ValidationError{Field: "counter_amount", Reason: "must be greater than 0"}
	}
	if c.minAmount > 0 && req.Amount < c.minAmount {
		return &domain.ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("below minimum %d", c.minAmount),
		}
	}
	if c.maxAmount > 0 && req.Amount > c.maxAmount {
		return &domain.ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("above maximum %d", c.maxAmount),
		}
	}
	if req.TimelockDuration < c.minTimelock || req.TimelockDuration > c.maxTimelock {
		return &domain.ValidationError{
			Field: "timelock_duration",
			Reason: fmt.Sprintf(
				"must be between %s and %s", c.minTimelock, c.maxTimelock,
			),
		}
	}
	if req.SenderA == "" || req.ReceiverA == "" || req.SenderB == "" || req.ReceiverB == "" {
		return &domain.ValidationError{
			Field: "addresses", Reason: "all four addresses are required",
		}
	}
	return nil
}

func (c *SwapCoordinator) legAAmount(req SwapRequest) uint64 {
	if req.Direction == domain.DirectionEVMToUTXO {
		return req.Amount
	}
	return req.CounterAmount
}

func (c *SwapCoordinator) legBAmount(req SwapRequest) uint64 {
	if req.Direction == domain.DirectionEVMToUTXO {
		return req.CounterAmount
	}
	return req.Amount
}
