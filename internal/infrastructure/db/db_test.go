package db_test

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashlocked/swapd/internal/core/domain"
	"github.com/hashlocked/swapd/internal/core/ports"
	"github.com/hashlocked/swapd/internal/infrastructure/db"
	"github.com/stretchr/testify/require"
)

var (
	ctx = context.Background()

	testSwap   = makeSwap()
	secondSwap = makeSwap()

	testSecret = makePreimage()
)

func TestRepoManager(t *testing.T) {
	tests := []struct {
		name   string
		config db.ServiceConfig
	}{
		{
			name: "badger",
			config: db.ServiceConfig{
				DbType:   "badger",
				DbConfig: []any{"", nil},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := db.NewService(tt.config)
			require.NoError(t, err)
			defer svc.Close()

			testSwapRepository(t, svc)
			testFillRepository(t, svc)
			testSecretRepository(t, svc)
		})
	}
}

func TestRepoManagerUnsupportedType(t *testing.T) {
	svc, err := db.NewService(db.ServiceConfig{
		DbType:   "postgres",
		DbConfig: []any{"", nil},
	})
	require.Error(t, err)
	require.Nil(t, svc)
}

func testSwapRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("swap repository", func(t *testing.T) {
		repo := svc.Swaps()

		err := repo.Add(ctx, testSwap)
		require.NoError(t, err)

		err = repo.Add(ctx, secondSwap)
		require.NoError(t, err)

		got, err := repo.Get(ctx, testSwap.Id)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, testSwap.Id, got.Id)
		require.Equal(t, testSwap.Amount, got.Amount)
		require.Equal(t, testSwap.SecretHash, got.SecretHash)
		require.Equal(t, testSwap.TimelockA, got.TimelockA)
		require.Equal(t, testSwap.TimelockB, got.TimelockB)
		require.Equal(t, domain.PhaseInitiated, got.Phase)

		_, err = repo.Get(ctx, "unknown")
		require.ErrorIs(t, err, domain.ErrSwapNotFound)

		all, err := repo.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)

		now := time.Now()
		got.PartyALocked(&domain.HTLCContract{
			ContractId: "0xcontract",
			Params:     got.ParamsA,
			CreationTx: "0xlocktx",
		}, now)
		err = repo.Update(ctx, *got)
		require.NoError(t, err)

		updated, err := repo.Get(ctx, testSwap.Id)
		require.NoError(t, err)
		require.Equal(t, domain.PhasePartyALocked, updated.Phase)
		require.NotNil(t, updated.ContractA)
		require.Equal(t, "0xcontract", updated.ContractA.ContractId)
		require.Nil(t, updated.ContractB)

		byPhase, err := repo.GetByPhase(ctx, domain.PhasePartyALocked)
		require.NoError(t, err)
		require.Len(t, byPhase, 1)
		require.Equal(t, testSwap.Id, byPhase[0].Id)

		byPhase, err = repo.GetByPhase(
			ctx, domain.PhaseInitiated, domain.PhasePartyALocked,
		)
		require.NoError(t, err)
		require.Len(t, byPhase, 2)

		byPhase, err = repo.GetByPhase(ctx, domain.PhaseCompleted)
		require.NoError(t, err)
		require.Empty(t, byPhase)

		err = repo.Delete(ctx, secondSwap.Id)
		require.NoError(t, err)

		all, err = repo.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
	})
}

func testFillRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("fill repository", func(t *testing.T) {
		repo := svc.Fills()

		fills := []domain.PartialFill{
			{
				Id:        uuid.NewString(),
				SwapId:    testSwap.Id,
				Amount:    250,
				Timestamp: time.Now().Unix(),
				TxRef:     "0xfill1",
			},
			{
				Id:        uuid.NewString(),
				SwapId:    testSwap.Id,
				Amount:    750,
				Timestamp: time.Now().Unix(),
				TxRef:     "0xfill2",
			},
			{
				Id:        uuid.NewString(),
				SwapId:    secondSwap.Id,
				Amount:    100,
				Timestamp: time.Now().Unix(),
				TxRef:     "0xother",
			},
		}
		for _, fill := range fills {
			err := repo.Add(ctx, fill)
			require.NoError(t, err)
		}

		got, err := repo.Get(ctx, fills[0].Id)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, fills[0].Amount, got.Amount)
		require.Equal(t, fills[0].TxRef, got.TxRef)

		bySwap, err := repo.GetBySwap(ctx, testSwap.Id)
		require.NoError(t, err)
		require.Len(t, bySwap, 2)

		var total uint64
		for _, fill := range bySwap {
			total += fill.Amount
		}
		require.Equal(t, uint64(1000), total)

		err = repo.DeleteBySwap(ctx, testSwap.Id)
		require.NoError(t, err)

		bySwap, err = repo.GetBySwap(ctx, testSwap.Id)
		require.NoError(t, err)
		require.Empty(t, bySwap)

		bySwap, err = repo.GetBySwap(ctx, secondSwap.Id)
		require.NoError(t, err)
		require.Len(t, bySwap, 1)
	})
}

func testSecretRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("secret repository", func(t *testing.T) {
		repo := svc.Secrets()

		err := repo.Add(ctx, testSwap.Id, testSecret)
		require.NoError(t, err)

		got, err := repo.Get(ctx, testSwap.Id)
		require.NoError(t, err)
		require.Equal(t, testSecret, got)

		_, err = repo.Get(ctx, "unknown")
		require.Error(t, err)

		err = repo.Delete(ctx, testSwap.Id)
		require.NoError(t, err)

		_, err = repo.Get(ctx, testSwap.Id)
		require.Error(t, err)

		// deleting twice must not fail
		err = repo.Delete(ctx, testSwap.Id)
		require.NoError(t, err)
	})
}

func makeSwap() domain.Swap {
	preimage := makePreimage()
	hash := sha256.Sum256(preimage)
	now := time.Now()
	timelockA := now.Add(2 * time.Hour).Unix()
	timelockB := now.Add(time.Hour).Unix()
	return domain.Swap{
		Id:        uuid.NewString(),
		Direction: domain.DirectionEVMToUTXO,
		FromChain: domain.ChainEVM,
		ToChain:   domain.ChainUTXO,
		FromToken: "ETH",
		ToToken:   "DOGE",
		Amount:              1000,
		CounterAmount:       420000,
		Status:              domain.SwapPending,
		Phase:               domain.PhaseInitiated,
		SecretHash:          hex.EncodeToString(hash[:]),
		TimelockA:           timelockA,
		TimelockB:           timelockB,
		PartialFillsEnabled: true,
		ParamsA: domain.HTLCParameters{
			Sender:   "0xsender",
			Receiver: "0xreceiver",
			Amount:   1000,
			Hashlock: hex.EncodeToString(hash[:]),
			Timelock: timelockA,
			Chain:    domain.ChainEVM,
		},
		ParamsB: domain.HTLCParameters{
			Sender:   "DSenderAddr",
			Receiver: "DReceiverAddr",
			Amount:   420000,
			Hashlock: hex.EncodeToString(hash[:]),
			Timelock: timelockB,
			Chain:    domain.ChainUTXO,
		},
		CreatedAt: now.Unix(),
		UpdatedAt: now.Unix(),
	}
}

func makePreimage() []byte {
	buf := make([]byte, 32)
	// nolint:all
	rand.Read(buf)
	return buf
}
