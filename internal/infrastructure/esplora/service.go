package esplora

import "context"

// UTXO is a spendable output of an address.
type UTXO struct {
	Txid        string
	Vout        uint32
	Value       uint64
	Confirmed   bool
	BlockHeight int64
}

// Outspend reports whether and how an output was spent.
type Outspend struct {
	Spent bool
	Txid  string
	Vin   uint32
}

// TxStatus is the confirmation status of a transaction.
type TxStatus struct {
	Confirmed   bool
	BlockHeight int64
}

// Service is a block explorer client for the UTXO chain, following the
// Esplora REST API shape.
type Service interface {
	// GetBlockHeight returns the current tip height
	GetBlockHeight(ctx context.Context) (int64, error)

	// GetUTXOs returns the unspent outputs of an address
	GetUTXOs(ctx context.Context, address string) ([]UTXO, error)

	// GetOutspend reports the spend status of a single output
	GetOutspend(ctx context.Context, txid string, vout uint32) (*Outspend, error)

	// GetTxStatus returns the confirmation status of a transaction
	GetTxStatus(ctx context.Context, txid string) (*TxStatus, error)

	// GetTxHex returns the raw transaction, hex-encoded
	GetTxHex(ctx context.Context, txid string) (string, error)

	// Broadcast publishes a raw transaction and returns its txid
	Broadcast(ctx context.Context, txHex string) (string, error)

	// Close releases any resources held by the client
	Close() error
}
