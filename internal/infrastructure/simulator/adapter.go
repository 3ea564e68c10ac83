// Package simulator provides an in-memory chain adapter. It honors the same
// timelock, idempotence and error-classification contract as the real
// adapters and backs the "simulator" chain mode and the test suites. It
// never touches a network.
package simulator

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashlocked/swapd/internal/core/domain"
	"github.com/hashlocked/swapd/internal/core/ports"
	"github.com/hashlocked/swapd/pkg/htlc"
)

const defaultBalance = 1_000_000_000

type contract struct {
	params    domain.HTLCParameters
	creation  string
	claimTx   string
	refundTx  string
	withdrawn bool
	refunded  bool
	preimage  []byte
}

type Adapter struct {
	chain domain.Chain

	mtx       sync.Mutex
	contracts map[string]*contract
	balance   uint64
	offline   bool

	// Now is the adapter's clock, replaceable for expiry scenarios.
	Now func() time.Time
}

func NewAdapter(chain domain.Chain) *Adapter {
	return &Adapter{
		chain:     chain,
		contracts: make(map[string]*contract),
		balance:   defaultBalance,
		Now:       time.Now,
	}
}

// SetBalance overrides the signer balance.
func (a *Adapter) SetBalance(balance uint64) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.balance = balance
}

// SetOffline makes every call fail with a network error until cleared.
func (a *Adapter) SetOffline(offline bool) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.offline = offline
}

func (a *Adapter) Chain() domain.Chain {
	return a.chain
}

func (a *Adapter) CreateLock(
	ctx context.Context, params domain.HTLCParameters, creds ports.Credentials,
) (*ports.LockResult, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.offline {
		return nil, a.netErr("create lock")
	}
	if err := params.Validate(a.Now()); err != nil {
		return nil, &domain.ValidationError{Reason: err.Error()}
	}
	if params.Amount > a.balance {
		return nil, &domain.InsufficientFundsError{
			Token:     a.chain.String(),
			Required:  params.Amount,
			Available: a.balance,
		}
	}

	contractId := fmt.Sprintf("sim-%s-%s", a.chain, uuid.NewString())
	txRef := fmt.Sprintf("simtx-%s", uuid.NewString())
	a.contracts[contractId] = &contract{params: params, creation: txRef}
	a.balance -= params.Amount

	return &ports.LockResult{ContractId: contractId, TxRef: txRef}, nil
}

func (a *Adapter) Claim(
	ctx context.Context, contractId string, preimage []byte, creds ports.Credentials,
) (*ports.ClaimResult, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.offline {
		return nil, a.netErr("claim")
	}
	c, ok := a.contracts[contractId]
	if !ok {
		return nil, fmt.Errorf("unknown contract %s", contractId)
	}
	if c.withdrawn {
		return &ports.ClaimResult{TxRef: c.claimTx}, nil
	}
	if c.refunded {
		return nil, fmt.Errorf("contract %s already refunded", contractId)
	}

	now := a.Now()
	if c.params.IsExpired(now) {
		return nil, &domain.TimelockExpiredError{
			ContractId: contractId,
			Timelock:   c.params.Timelock,
			Now:        now.Unix(),
		}
	}
	if !htlc.VerifyHex(preimage, c.params.Hashlock) {
		return nil, &domain.HashlockMismatchError{
			Expected: c.params.Hashlock,
			Got:      hex.EncodeToString(preimage),
		}
	}

	c.withdrawn = true
	c.preimage = append([]byte(nil), preimage...)
	c.claimTx = fmt.Sprintf("simtx-%s", uuid.NewString())
	return &ports.ClaimResult{TxRef: c.claimTx}, nil
}

func (a *Adapter) Refund(
	ctx context.Context, contractId string, creds ports.Credentials,
) (*ports.RefundResult, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.offline {
		return nil, a.netErr("refund")
	}
	c, ok := a.contracts[contractId]
	if !ok {
		return nil, fmt.Errorf("unknown contract %s", contractId)
	}
	if c.refunded {
		return &ports.RefundResult{TxRef: c.refundTx}, nil
	}
	if c.withdrawn {
		return nil, fmt.Errorf("contract %s already claimed", contractId)
	}

	now := a.Now()
	if !c.params.IsExpired(now) {
		return nil, &domain.TimelockNotExpiredError{
			ContractId: contractId,
			Timelock:   c.params.Timelock,
			Now:        now.Unix(),
		}
	}

	c.refunded = true
	c.refundTx = fmt.Sprintf("simtx-%s", uuid.NewString())
	return &ports.RefundResult{TxRef: c.refundTx}, nil
}

func (a *Adapter) QueryStatus(
	ctx context.Context, contractId string,
) (*ports.ContractState, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.offline {
		return nil, a.netErr("query status")
	}
	c, ok := a.contracts[contractId]
	if !ok {
		return nil, a.netErr("query status")
	}
	return &ports.ContractState{
		Amount:        c.params.Amount,
		Hashlock:      c.params.Hashlock,
		Timelock:      c.params.Timelock,
		Withdrawn:     c.withdrawn,
		Refunded:      c.refunded,
		Confirmations: 6,
		Preimage:      append([]byte(nil), c.preimage...),
	}, nil
}

func (a *Adapter) Connected(ctx context.Context) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.offline {
		return a.netErr("ping")
	}
	return nil
}

func (a *Adapter) SignerBalance(
	ctx context.Context, creds ports.Credentials,
) (uint64, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.offline {
		return 0, a.netErr("balance")
	}
	return a.balance, nil
}

func (a *Adapter) netErr(op string) error {
	return &domain.NetworkError{
		Chain: a.chain,
		Op:    op,
		Err:   fmt.Errorf("simulated endpoint unreachable"),
	}
}
