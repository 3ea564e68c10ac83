package application

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashlocked/swapd/internal/core/domain"
	"github.com/hashlocked/swapd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// PartialFillLedger tracks fill progress against swap orders. Fills for the
// same swap are serialized through the coordinator's per-swap lock, so the
// filled amount only ever grows and never crosses the order size.
type PartialFillLedger struct {
	repoMgr ports.RepoManager
	locker  *swapLocker
	now     func() time.Time
}

func NewPartialFillLedger(repoMgr ports.RepoManager, coordinator *SwapCoordinator) *PartialFillLedger {
	return &PartialFillLedger{
		repoMgr: repoMgr,
		locker:  coordinator.locker,
		now:     coordinator.now,
	}
}

// Fill records a fill of amount against the swap. It rejects fills that
// overshoot the remaining amount instead of clamping them; the error carries
// the available amount so the caller can retry with it.
func (l *PartialFillLedger) Fill(
	ctx context.Context, swapId string, amount uint64, txRef string,
) (*domain.PartialFill, *domain.Swap, error) {
	if amount == 0 {
		return nil, nil, &domain.ValidationError{
			Field: "amount", Reason: "must be greater than 0",
		}
	}

	unlock := l.locker.lock(swapId)
	defer unlock()

	swap, err := l.repoMgr.Swaps().Get(ctx, swapId)
	if err != nil {
		return nil, nil, err
	}

	now := l.now()
	remaining := swap.RemainingAmount()
	switch {
	case swap.Status != domain.SwapPending && swap.Status != domain.SwapPartiallyFilled:
		return nil, nil, &domain.PartialFillError{
			SwapId:    swapId,
			Requested: amount,
			Available: 0,
			Reason:    "order is " + swap.Status.String(),
		}
	case swap.IsExpired(now):
		return nil, nil, &domain.PartialFillError{
			SwapId:    swapId,
			Requested: amount,
			Available: 0,
			Reason:    "order expired",
		}
	case !swap.PartialFillsEnabled && amount != remaining:
		return nil, nil, &domain.PartialFillError{
			SwapId:    swapId,
			Requested: amount,
			Available: remaining,
			Reason:    "partial fills disabled, only a full fill is accepted",
		}
	case amount > remaining:
		return nil, nil, &domain.PartialFillError{
			SwapId:    swapId,
			Requested: amount,
			Available: remaining,
			Reason:    "fill exceeds remaining amount",
		}
	}

	fill := domain.PartialFill{
		Id:        uuid.NewString(),
		SwapId:    swapId,
		Amount:    amount,
		Timestamp: now.Unix(),
		TxRef:     txRef,
	}

	swap.RecordFill(amount, now)
	if err := l.repoMgr.Swaps().Update(ctx, *swap); err != nil {
		return nil, nil, err
	}
	if err := l.repoMgr.Fills().Add(ctx, fill); err != nil {
		return nil, nil, err
	}

	log.WithFields(log.Fields{
		"swap":   swapId,
		"fill":   fill.Id,
		"amount": amount,
		"filled": swap.FilledAmount,
		"total":  swap.Amount,
	}).Info("fill recorded")

	return &fill, swap, nil
}

// Fills returns the fill history of a swap, oldest first.
func (l *PartialFillLedger) Fills(ctx context.Context, swapId string) ([]domain.PartialFill, error) {
	if _, err := l.repoMgr.Swaps().Get(ctx, swapId); err != nil {
		return nil, err
	}
	fills, err := l.repoMgr.Fills().GetBySwap(ctx, swapId)
	if err != nil {
		return nil, err
	}
	sort.Slice(fills, func(i, j int) bool {
		return fills[i].Timestamp < fills[j].Timestamp
	})
	return fills, nil
}
