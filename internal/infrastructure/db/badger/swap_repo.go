package badgerdb

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/hashlocked/swapd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const swapDir = "swaps"

type swapRepository struct {
	store *badgerhold.Store
}

func NewSwapRepository(baseDir string, logger badger.Logger) (domain.SwapRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, swapDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open swap store: %s", err)
	}
	return &swapRepository{store}, nil
}

func (r *swapRepository) Add(ctx context.Context, swap domain.Swap) error {
	return r.store.Insert(swap.Id, toSwapData(swap))
}

func (r *swapRepository) Get(ctx context.Context, swapId string) (*domain.Swap, error) {
	var data swapData
	err := r.store.Get(swapId, &data)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("swap with id %s: %w", swapId, domain.ErrSwapNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get swap: %w", err)
	}

	swap := data.toSwap()
	return &swap, nil
}

func (r *swapRepository) GetAll(ctx context.Context) ([]domain.Swap, error) {
	var dataList []swapData
	if err := r.store.Find(&dataList, nil); err != nil {
		return nil, fmt.Errorf("failed to get all swaps: %w", err)
	}

	swaps := make([]domain.Swap, 0, len(dataList))
	for _, data := range dataList {
		swaps = append(swaps, data.toSwap())
	}
	return swaps, nil
}

func (r *swapRepository) GetByPhase(
	ctx context.Context, phases ...domain.SwapPhase,
) ([]domain.Swap, error) {
	values := make([]interface{}, 0, len(phases))
	for _, phase := range phases {
		values = append(values, int(phase))
	}

	var dataList []swapData
	err := r.store.Find(&dataList, badgerhold.Where("Phase").In(values...))
	if err != nil {
		return nil, fmt.Errorf("failed to get swaps by phase: %w", err)
	}

	swaps := make([]domain.Swap, 0, len(dataList))
	for _, data := range dataList {
		swaps = append(swaps, data.toSwap())
	}
	return swaps, nil
}

func (r *swapRepository) Update(ctx context.Context, swap domain.Swap) error {
	return r.store.Update(swap.Id, toSwapData(swap))
}

func (r *swapRepository) Delete(ctx context.Context, swapId string) error {
	return r.store.Delete(swapId, swapData{})
}

func (r *swapRepository) Close() {
	// nolint:all
	r.store.Close()
}

type contractData struct {
	ContractId string
	Sender     string
	Receiver   string
	Amount     uint64
	Hashlock   string
	Timelock   int64
	Chain      int
	Status     int
	CreationTx string
	ClaimTx    string
	RefundTx   string
}

type swapData struct {
	Id                  string
	Direction           int
	FromChain           int
	ToChain             int
	FromToken           string
	ToToken             string
	Amount              uint64
	CounterAmount       uint64
	FilledAmount        uint64
	Status              int
	Phase               int
	SecretHash          string
	TimelockA           int64
	TimelockB           int64
	PartialFillsEnabled bool
	ParamsA             contractParamsData
	ParamsB             contractParamsData
	ContractA           *contractData
	ContractB           *contractData
	CreatedAt           int64
	UpdatedAt           int64
	CompletedAt         int64
	ErrorMessage        string
}

type contractParamsData struct {
	Sender   string
	Receiver string
	Amount   uint64
	Hashlock string
	Timelock int64
	Chain    int
}

func toParamsData(p domain.HTLCParameters) contractParamsData {
	return contractParamsData{
		Sender:   p.Sender,
		Receiver: p.Receiver,
		Amount:   p.Amount,
		Hashlock: p.Hashlock,
		Timelock: p.Timelock,
		Chain:    int(p.Chain),
	}
}

func (d contractParamsData) toParams() domain.HTLCParameters {
	return domain.HTLCParameters{
		Sender:   d.Sender,
		Receiver: d.Receiver,
		Amount:   d.Amount,
		Hashlock: d.Hashlock,
		Timelock: d.Timelock,
		Chain:    domain.Chain(d.Chain),
	}
}

func toContractData(c *domain.HTLCContract) *contractData {
	if c == nil {
		return nil
	}
	return &contractData{
		ContractId: c.ContractId,
		Sender:     c.Params.Sender,
		Receiver:   c.Params.Receiver,
		Amount:     c.Params.Amount,
		Hashlock:   c.Params.Hashlock,
		Timelock:   c.Params.Timelock,
		Chain:      int(c.Params.Chain),
		Status:     int(c.Status),
		CreationTx: c.CreationTx,
		ClaimTx:    c.ClaimTx,
		RefundTx:   c.RefundTx,
	}
}

func (d *contractData) toContract() *domain.HTLCContract {
	if d == nil {
		return nil
	}
	return &domain.HTLCContract{
		ContractId: d.ContractId,
		Params: domain.HTLCParameters{
			Sender:   d.Sender,
			Receiver: d.Receiver,
			Amount:   d.Amount,
			Hashlock: d.Hashlock,
			Timelock: d.Timelock,
			Chain:    domain.Chain(d.Chain),
		},
		Status:     domain.ContractStatus(d.Status),
		CreationTx: d.CreationTx,
		ClaimTx:    d.ClaimTx,
		RefundTx:   d.RefundTx,
	}
}

func toSwapData(swap domain.Swap) swapData {
	return swapData{
		Id:                  swap.Id,
		Direction:           int(swap.Direction),
		FromChain:           int(swap.FromChain),
		ToChain:             int(swap.ToChain),
		FromToken:           swap.FromToken,
		ToToken:             swap.ToToken,
		Amount:              swap.Amount,
		CounterAmount:       swap.CounterAmount,
		FilledAmount:        swap.FilledAmount,
		Status:              int(swap.Status),
		Phase:               int(swap.Phase),
		SecretHash:          swap.SecretHash,
		TimelockA:           swap.TimelockA,
		TimelockB:           swap.TimelockB,
		PartialFillsEnabled: swap.PartialFillsEnabled,
		ParamsA:             toParamsData(swap.ParamsA),
		ParamsB:             toParamsData(swap.ParamsB),
		ContractA:           toContractData(swap.ContractA),
		ContractB:           toContractData(swap.ContractB),
		CreatedAt:           swap.CreatedAt,
		UpdatedAt:           swap.UpdatedAt,
		CompletedAt:         swap.CompletedAt,
		ErrorMessage:        swap.ErrorMessage,
	}
}

func (d swapData) toSwap() domain.Swap {
	return domain.Swap{
		Id:                  d.Id,
		Direction:           domain.SwapDirection(d.Direction),
		FromChain:           domain.Chain(d.FromChain),
		ToChain:             domain.Chain(d.ToChain),
		FromToken:           d.FromToken,
		ToToken:             d.ToToken,
		Amount:              d.Amount,
		CounterAmount:       d.CounterAmount,
		FilledAmount:        d.FilledAmount,
		Status:              domain.SwapStatus(d.Status),
		Phase:               domain.SwapPhase(d.Phase),
		SecretHash:          d.SecretHash,
		TimelockA:           d.TimelockA,
		TimelockB:           d.TimelockB,
		PartialFillsEnabled: d.PartialFillsEnabled,
		ParamsA:             d.ParamsA.toParams(),
		ParamsB:             d.ParamsB.toParams(),
		ContractA:           d.ContractA.toContract(),
		ContractB:           d.ContractB.toContract(),
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
		CompletedAt:         d.CompletedAt,
		ErrorMessage:        d.ErrorMessage,
	}
}
