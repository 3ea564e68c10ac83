package evm

import (
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hashlocked/swapd/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestContractIdBytes(t *testing.T) {
	id := strings.Repeat("ab", 32)

	got, err := contractIdBytes(id)
	require.NoError(t, err)
	require.Equal(t, byte(0xab), got[0])

	// the 0x prefix is accepted
	_, err = contractIdBytes("0x" + id)
	require.NoError(t, err)

	_, err = contractIdBytes("abcd")
	require.Error(t, err)

	_, err = contractIdBytes("zz" + id[2:])
	require.Error(t, err)
}

func TestHashlockBytes(t *testing.T) {
	_, err := hashlockBytes(strings.Repeat("00", 32))
	require.NoError(t, err)

	_, err = hashlockBytes("deadbeef")
	require.Error(t, err)
}

func TestContractIdFromReceipt(t *testing.T) {
	wantId := common.HexToHash("0x" + strings.Repeat("11", 32))
	logs := []*types.Log{
		{Topics: []common.Hash{common.HexToHash("0xdead")}},
		{Topics: []common.Hash{logHTLCNewTopic, wantId}},
	}

	got, err := contractIdFromReceipt(logs)
	require.NoError(t, err)
	require.Equal(t, wantId.Hex(), got)

	_, err = contractIdFromReceipt(nil)
	require.Error(t, err)
}

func TestClassify(t *testing.T) {
	a := &Adapter{}

	tests := []struct {
		name string
		err  error
		want func(t *testing.T, err error)
	}{
		{
			name: "insufficient funds",
			err:  fmt.Errorf("insufficient funds for gas * price + value"),
			want: func(t *testing.T, err error) {
				var e *domain.InsufficientFundsError
				require.ErrorAs(t, err, &e)
			},
		},
		{
			name: "hashlock revert",
			err:  fmt.Errorf("execution reverted: hashlock hash does not match"),
			want: func(t *testing.T, err error) {
				var e *domain.HashlockMismatchError
				require.ErrorAs(t, err, &e)
			},
		},
		{
			name: "timelock revert",
			err:  fmt.Errorf("execution reverted: timelock not yet passed"),
			want: func(t *testing.T, err error) {
				var e *domain.TimelockExpiredError
				require.ErrorAs(t, err, &e)
			},
		},
		{
			name: "connection refused",
			err:  fmt.Errorf("dial tcp 127.0.0.1:8545: connection refused"),
			want: func(t *testing.T, err error) {
				require.True(t, domain.IsRetryable(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.want(t, a.classify("op", tt.err))
		})
	}
}

func TestRequiredWithGas(t *testing.T) {
	amount := big.NewInt(1_000_000)
	gasPrice := big.NewInt(10)

	required := requiredWithGas(amount, gasPrice)
	require.Equal(t, int64(1_000_000+10*lockGasLimit), required.Int64())

	// the input amount is never mutated
	require.Equal(t, int64(1_000_000), amount.Int64())

	// a sender holding exactly the lock amount cannot pay for gas
	require.Equal(t, 1, required.Cmp(amount))
}
