package badgerdb

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/hashlocked/swapd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const fillDir = "fills"

type fillRepository struct {
	store *badgerhold.Store
}

func NewFillRepository(baseDir string, logger badger.Logger) (domain.FillRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, fillDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open fill store: %s", err)
	}
	return &fillRepository{store}, nil
}

func (r *fillRepository) Add(ctx context.Context, fill domain.PartialFill) error {
	return r.store.Insert(fill.Id, toFillData(fill))
}

func (r *fillRepository) Get(ctx context.Context, fillId string) (*domain.PartialFill, error) {
	var data fillData
	err := r.store.Get(fillId, &data)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("fill with id %s not found", fillId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fill: %w", err)
	}

	fill := data.toFill()
	return &fill, nil
}

func (r *fillRepository) GetBySwap(ctx context.Context, swapId string) ([]domain.PartialFill, error) {
	var dataList []fillData
	err := r.store.Find(&dataList, badgerhold.Where("SwapId").Eq(swapId))
	if err != nil {
		return nil, fmt.Errorf("failed to get fills for swap %s: %w", swapId, err)
	}

	fills := make([]domain.PartialFill, 0, len(dataList))
	for _, data := range dataList {
		fills = append(fills, data.toFill())
	}
	return fills, nil
}

func (r *fillRepository) DeleteBySwap(ctx context.Context, swapId string) error {
	return r.store.DeleteMatching(fillData{}, badgerhold.Where("SwapId").Eq(swapId))
}

func (r *fillRepository) Close() {
	// nolint:all
	r.store.Close()
}

type fillData struct {
	Id        string
	SwapId    string
	Amount    uint64
	Timestamp int64
	TxRef     string
}

func toFillData(fill domain.PartialFill) fillData {
	return fillData{
		Id:        fill.Id,
		SwapId:    fill.SwapId,
		Amount:    fill.Amount,
		Timestamp: fill.Timestamp,
		TxRef:     fill.TxRef,
	}
}

func (d fillData) toFill() domain.PartialFill {
	return domain.PartialFill{
		Id:        d.Id,
		SwapId:    d.SwapId,
		Amount:    d.Amount,
		Timestamp: d.Timestamp,
		TxRef:     d.TxRef,
	}
}
