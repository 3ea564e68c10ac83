package domain

import "context"

// PartialFill is an immutable record of a single fill against a swap order.
// It is created atomically with the order's filled-amount increment.
type PartialFill struct {
	Id        string
	SwapId    string
	Amount    uint64
	Timestamp int64
	TxRef     string
}

// FillRepository stores the fill history of every swap
type FillRepository interface {
	// Add appends a fill record
	Add(ctx context.Context, fill PartialFill) error

	// Get retrieves a fill by ID
	Get(ctx context.Context, fillId string) (*PartialFill, error)

	// GetBySwap retrieves all fills recorded for a swap
	GetBySwap(ctx context.Context, swapId string) ([]PartialFill, error)

	// DeleteBySwap removes the fill history of a swap (retention sweeps only)
	DeleteBySwap(ctx context.Context, swapId string) error

	// Close closes the repository
	Close()
}
