// Package evm implements the account-chain adapter on top of a deployed
// HTLC smart contract. All amounts are in wei; contract ids are the bytes32
// ids assigned by the contract, hex-encoded with a 0x prefix.
package evm

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hashlocked/swapd/internal/core/domain"
	"github.com/hashlocked/swapd/internal/core/ports"
)

const htlcABI = `[
	{"type":"function","name":"newContract","stateMutability":"payable","inputs":[{"name":"receiver","type":"address"},{"name":"hashlock","type":"bytes32"},{"name":"timelock","type":"uint256"}],"outputs":[{"name":"contractId","type":"bytes32"}]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"},{"name":"preimage","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"refund","stateMutability":"nonpayable","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getContract","stateMutability":"view","inputs":[{"name":"contractId","type":"bytes32"}],"outputs":[{"name":"sender","type":"address"},{"name":"receiver","type":"address"},{"name":"amount","type":"uint256"},{"name":"hashlock","type":"bytes32"},{"name":"timelock","type":"uint256"},{"name":"withdrawn","type":"bool"},{"name":"refunded","type":"bool"},{"name":"preimage","type":"bytes32"}]},
	{"type":"event","name":"LogHTLCNew","inputs":[{"name":"contractId","type":"bytes32","indexed":true},{"name":"sender","type":"address","indexed":true},{"name":"receiver","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false},{"name":"hashlock","type":"bytes32","indexed":false},{"name":"timelock","type":"uint256","indexed":false}]}
]`

type Config struct {
	RPCURL       string
	ContractAddr string
	ChainID      int64
	RPCTimeout   time.Duration
}

type Adapter struct {
	client       *ethclient.Client
	bound        *bind.BoundContract
	contractAddr common.Address
	chainID      *big.Int
	rpcTimeout   time.Duration
	deployed     bool
}

func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("missing evm rpc url")
	}
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial evm rpc: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(htlcABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse htlc abi: %w", err)
	}

	a := &Adapter{
		client:     client,
		chainID:    big.NewInt(cfg.ChainID),
		rpcTimeout: cfg.RPCTimeout,
	}
	if a.rpcTimeout <= 0 {
		a.rpcTimeout = 30 * time.Second
	}
	if cfg.ContractAddr != "" {
		a.contractAddr = common.HexToAddress(cfg.ContractAddr)
		a.bound = bind.NewBoundContract(a.contractAddr, parsed, client, client, client)
		a.deployed = true
	}
	return a, nil
}

func (a *Adapter) Close() {
	a.client.Close()
}

func (a *Adapter) Chain() domain.Chain {
	return domain.ChainEVM
}

func (a *Adapter) CreateLock(
	ctx context.Context, params domain.HTLCParameters, creds ports.Credentials,
) (*ports.LockResult, error) {
	if !a.deployed {
		return nil, &domain.ContractNotDeployedError{Chain: domain.ChainEVM}
	}
	hashlock, err := hashlockBytes(params.Hashlock)
	if err != nil {
		return nil, &domain.ValidationError{Field: "hashlock", Reason: err.Error()}
	}
	if !common.IsHexAddress(params.Receiver) {
		return nil, &domain.ValidationError{Field: "receiver", Reason: "not a valid address"}
	}

	ctx, cancel := context.WithTimeout(ctx, a.rpcTimeout)
	defer cancel()

	auth, sender, err := a.transactor(ctx, creds)
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).SetUint64(params.Amount)

	balance, err := a.client.BalanceAt(ctx, sender, nil)
	if err != nil {
		return nil, a.netErr("balance query", err)
	}
	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, a.netErr("gas price query", err)
	}
	required := requiredWithGas(amount, gasPrice)
	if balance.Cmp(required) < 0 {
		return nil, &domain.InsufficientFundsError{
			Token:     "wei",
			Required:  required.Uint64(),
			Available: balance.Uint64(),
		}
	}
	auth.Value = amount

	tx, err := a.bound.Transact(
		auth, "newContract",
		common.HexToAddress(params.Receiver), hashlock, big.NewInt(params.Timelock),
	)
	if err != nil {
		return nil, a.classify("new contract", err)
	}

	receipt, err := bind.WaitMined(ctx, a.client, tx)
	if err != nil {
		return nil, a.netErr("wait mined", err)
	}
	if receipt.Status == 0 {
		return nil, fmt.Errorf("lock transaction %s reverted", tx.Hash().Hex())
	}

	contractId, err := contractIdFromReceipt(receipt.Logs)
	if err != nil {
		return nil, err
	}

	return &ports.LockResult{
		ContractId: contractId,
		TxRef:      tx.Hash().Hex(),
	}, nil
}

func (a *Adapter) Claim(
	ctx context.Context, contractId string, preimage []byte, creds ports.Credentials,
) (*ports.ClaimResult, error) {
	if !a.deployed {
		return nil, &domain.ContractNotDeployedError{Chain: domain.ChainEVM}
	}
	id, err := contractIdBytes(contractId)
	if err != nil {
		return nil, &domain.ValidationError{Field: "contract_id", Reason: err.Error()}
	}
	if len(preimage) != 32 {
		return nil, &domain.ValidationError{Field: "preimage", Reason: "must be 32 bytes"}
	}

	ctx, cancel := context.WithTimeout(ctx, a.rpcTimeout)
	defer cancel()

	state, err := a.QueryStatus(ctx, contractId)
	if err != nil {
		return nil, err
	}
	if state.Withdrawn {
		return &ports.ClaimResult{}, nil
	}
	if state.Refunded {
		return nil, fmt.Errorf("contract %s already refunded", contractId)
	}
	if now := time.Now().Unix(); now >= state.Timelock {
		return nil, &domain.TimelockExpiredError{
			ContractId: contractId,
			Timelock:   state.Timelock,
			Now:        now,
		}
	}

	var preimage32 [32]byte
	copy(preimage32[:], preimage)

	auth, _, err := a.transactor(ctx, creds)
	if err != nil {
		return nil, err
	}
	tx, err := a.bound.Transact(auth, "withdraw", id, preimage32)
	if err != nil {
		return nil, a.classify("withdraw", err)
	}
	receipt, err := bind.WaitMined(ctx, a.client, tx)
	if err != nil {
		return nil, a.netErr("wait mined", err)
	}
	if receipt.Status == 0 {
		return nil, &domain.HashlockMismatchError{
			Expected: state.Hashlock,
			Got:      hex.EncodeToString(preimage),
		}
	}

	return &ports.ClaimResult{TxRef: tx.Hash().Hex()}, nil
}

func (a *Adapter) Refund(
	ctx context.Context, contractId string, creds ports.Credentials,
) (*ports.RefundResult, error) {
	if !a.deployed {
		return nil, &domain.ContractNotDeployedError{Chain: domain.ChainEVM}
	}
	id, err := contractIdBytes(contractId)
	if err != nil {
		return nil, &domain.ValidationError{Field: "contract_id", Reason: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, a.rpcTimeout)
	defer cancel()

	state, err := a.QueryStatus(ctx, contractId)
	if err != nil {
		return nil, err
	}
	if state.Refunded {
		return &ports.RefundResult{}, nil
	}
	if state.Withdrawn {
		return nil, fmt.Errorf("contract %s already claimed", contractId)
	}
	if now := time.Now().Unix(); now < state.Timelock {
		return nil, &domain.TimelockNotExpiredError{
			ContractId: contractId,
			Timelock:   state.Timelock,
			Now:        now,
		}
	}

	auth, _, err := a.transactor(ctx, creds)
	if err != nil {
		return nil, err
	}
	tx, err := a.bound.Transact(auth, "refund", id)
	if err != nil {
		return nil, a.classify("refund", err)
	}
	receipt, err := bind.WaitMined(ctx, a.client, tx)
	if err != nil {
		return nil, a.netErr("wait mined", err)
	}
	if receipt.Status == 0 {
		return nil, fmt.Errorf("refund transaction %s reverted", tx.Hash().Hex())
	}

	return &ports.RefundResult{TxRef: tx.Hash().Hex()}, nil
}

func (a *Adapter) QueryStatus(
	ctx context.Context, contractId string,
) (*ports.ContractState, error) {
	if !a.deployed {
		return nil, &domain.ContractNotDeployedError{Chain: domain.ChainEVM}
	}
	id, err := contractIdBytes(contractId)
	if err != nil {
		return nil, &domain.ValidationError{Field: "contract_id", Reason: err.Error()}
	}

	var out []any
	if err := a.bound.Call(&bind.CallOpts{Context: ctx}, &out, "getContract", id); err != nil {
		return nil, a.netErr("get contract", err)
	}
	if len(out) != 8 {
		return nil, fmt.Errorf("unexpected getContract response of %d values", len(out))
	}

	amount := out[2].(*big.Int)
	hashlock := out[3].([32]byte)
	timelock := out[4].(*big.Int)
	withdrawn := out[5].(bool)
	refunded := out[6].(bool)
	preimage := out[7].([32]byte)

	state := &ports.ContractState{
		Amount:    amount.Uint64(),
		Hashlock:  hex.EncodeToString(hashlock[:]),
		Timelock:  timelock.Int64(),
		Withdrawn: withdrawn,
		Refunded:  refunded,
	}
	// a mined contract is final enough on the account chain
	state.Confirmations = 1
	if withdrawn {
		state.Preimage = append([]byte(nil), preimage[:]...)
	}
	return state, nil
}

func (a *Adapter) Connected(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.rpcTimeout)
	defer cancel()
	if _, err := a.client.BlockNumber(ctx); err != nil {
		return a.netErr("block number", err)
	}
	return nil
}

func (a *Adapter) SignerBalance(
	ctx context.Context, creds ports.Credentials,
) (uint64, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(creds.PrivateKey, "0x"))
	if err != nil {
		return 0, &domain.ValidationError{Field: "private_key", Reason: "not a valid hex key"}
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	ctx, cancel := context.WithTimeout(ctx, a.rpcTimeout)
	defer cancel()
	balance, err := a.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return 0, a.netErr("balance query", err)
	}
	return balance.Uint64(), nil
}

func (a *Adapter) transactor(
	ctx context.Context, creds ports.Credentials,
) (*bind.TransactOpts, common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(creds.PrivateKey, "0x"))
	if err != nil {
		return nil, common.Address{}, &domain.ValidationError{
			Field: "private_key", Reason: "not a valid hex key",
		}
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, a.chainID)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to build transactor: %w", err)
	}
	auth.Context = ctx
	return auth, crypto.PubkeyToAddress(key.PublicKey), nil
}

// classify folds raw rpc failures into the error taxonomy.
func (a *Adapter) classify(op string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return &domain.InsufficientFundsError{Token: "wei"}
	case strings.Contains(msg, "hashlock"):
		return &domain.HashlockMismatchError{}
	case strings.Contains(msg, "timelock"):
		return &domain.TimelockExpiredError{Now: time.Now().Unix()}
	case strings.Contains(msg, "execution reverted"):
		return fmt.Errorf("%s reverted: %w", op, err)
	default:
		return a.netErr(op, err)
	}
}

func (a *Adapter) netErr(op string, err error) error {
	return &domain.NetworkError{Chain: domain.ChainEVM, Op: op, Err: err}
}

// lockGasLimit bounds the gas a newContract call can burn; the pre-flight
// funds check reserves this much on top of the locked amount.
const lockGasLimit = 200_000

func requiredWithGas(amount, gasPrice *big.Int) *big.Int {
	gas := new(big.Int).Mul(gasPrice, big.NewInt(lockGasLimit))
	return gas.Add(gas, amount)
}

func hashlockBytes(hashlock string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(hashlock)
	if err != nil || len(raw) != 32 {
		return out, fmt.Errorf("must be a hex-encoded 32-byte hash")
	}
	copy(out[:], raw)
	return out, nil
}

func contractIdBytes(contractId string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(contractId, "0x"))
	if err != nil || len(raw) != 32 {
		return out, fmt.Errorf("must be a hex-encoded bytes32 id")
	}
	copy(out[:], raw)
	return out, nil
}

// contractIdFromReceipt pulls the contract id out of the LogHTLCNew event.
var logHTLCNewTopic = crypto.Keccak256Hash(
	[]byte("LogHTLCNew(bytes32,address,address,uint256,bytes32,uint256)"),
)

func contractIdFromReceipt(logs []*types.Log) (string, error) {
	for _, l := range logs {
		if len(l.Topics) >= 2 && l.Topics[0] == logHTLCNewTopic {
			return l.Topics[1].Hex(), nil
		}
	}
	return "", fmt.Errorf("lock transaction emitted no htlc event")
}
