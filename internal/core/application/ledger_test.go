package application

import (
	"sync"
	"testing"
	"time"

	"github.com/hashlocked/swapd/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestFillLifecycle(t *testing.T) {
	env := newTestEnv(t)

	req := testRequest()
	req.PartialFillsEnabled = true
	swap, err := env.coordinator.Initiate(ctx, req)
	require.NoError(t, err)

	fill, updated, err := env.ledger.Fill(ctx, swap.Id, 400, "0xfill1")
	require.NoError(t, err)
	require.Equal(t, uint64(400), fill.Amount)
	require.Equal(t, uint64(400), updated.FilledAmount)
	require.Equal(t, domain.SwapPartiallyFilled, updated.Status)
	require.Equal(t, uint64(600), updated.RemainingAmount())
	require.InDelta(t, 40.0, updated.FillPercentage(), 0.01)

	// overshooting is rejected, not clamped
	_, _, err = env.ledger.Fill(ctx, swap.Id, 700, "0xfill2")
	var fillErr *domain.PartialFillError
	require.ErrorAs(t, err, &fillErr)
	require.Equal(t, uint64(700), fillErr.Requested)
	require.Equal(t, uint64(600), fillErr.Available)

	// retrying with the advertised available amount completes the order
	_, updated, err = env.ledger.Fill(ctx, swap.Id, fillErr.Available, "0xfill3")
	require.NoError(t, err)
	require.Equal(t, swap.Amount, updated.FilledAmount)
	require.Equal(t, domain.SwapCompleted, updated.Status)
	require.NotZero(t, updated.CompletedAt)

	// a completed order accepts no more fills
	_, _, err = env.ledger.Fill(ctx, swap.Id, 1, "0xfill4")
	require.ErrorAs(t, err, &fillErr)
	require.Zero(t, fillErr.Available)

	fills, err := env.ledger.Fills(ctx, swap.Id)
	require.NoError(t, err)
	require.Len(t, fills, 2)
}

func TestFillValidation(t *testing.T) {
	env := newTestEnv(t)

	req := testRequest()
	req.PartialFillsEnabled = true
	swap, err := env.coordinator.Initiate(ctx, req)
	require.NoError(t, err)

	_, _, err = env.ledger.Fill(ctx, swap.Id, 0, "0xfill")
	var valErr *domain.ValidationError
	require.ErrorAs(t, err, &valErr)

	_, _, err = env.ledger.Fill(ctx, "missing", 10, "0xfill")
	require.ErrorIs(t, err, domain.ErrSwapNotFound)

	// an expired order rejects fills
	env.advance(5 * time.Hour)
	_, _, err = env.ledger.Fill(ctx, swap.Id, 10, "0xfill")
	var fillErr *domain.PartialFillError
	require.ErrorAs(t, err, &fillErr)
	require.Contains(t, fillErr.Reason, "expired")
}

func TestFillDisabledRequiresFullAmount(t *testing.T) {
	env := newTestEnv(t)

	swap, err := env.coordinator.Initiate(ctx, testRequest())
	require.NoError(t, err)

	_, _, err = env.ledger.Fill(ctx, swap.Id, 500, "0xfill")
	var fillErr *domain.PartialFillError
	require.ErrorAs(t, err, &fillErr)
	require.Equal(t, swap.Amount, fillErr.Available)

	_, updated, err := env.ledger.Fill(ctx, swap.Id, swap.Amount, "0xfill")
	require.NoError(t, err)
	require.Equal(t, domain.SwapCompleted, updated.Status)
}

func TestConcurrentFills(t *testing.T) {
	env := newTestEnv(t)

	req := testRequest()
	req.PartialFillsEnabled = true
	swap, err := env.coordinator.Initiate(ctx, req)
	require.NoError(t, err)

	// 20 workers race to fill 100 each against an order of 1000
	const workers = 20
	const fillAmount = 100

	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := env.ledger.Fill(ctx, swap.Id, fillAmount, "0xfill"); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	require.Equal(t, 10, count)

	got, err := env.repoMgr.Swaps().Get(ctx, swap.Id)
	require.NoError(t, err)
	require.Equal(t, swap.Amount, got.FilledAmount)
	require.Equal(t, domain.SwapCompleted, got.Status)

	fills, err := env.ledger.Fills(ctx, swap.Id)
	require.NoError(t, err)
	require.Len(t, fills, 10)

	var total uint64
	for _, fill := range fills {
		total += fill.Amount
	}
	require.Equal(t, swap.Amount, total)
}
