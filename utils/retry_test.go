package utils_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hashlocked/swapd/utils"
	"github.com/stretchr/testify/require"
)

func TestRetry(t *testing.T) {
	t.Run("succeeds once fn is done", func(t *testing.T) {
		calls := 0
		err := utils.Retry(
			context.Background(), time.Millisecond,
			func(ctx context.Context) (bool, error) {
				calls++
				return calls >= 3, nil
			},
		)
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("propagates fn error", func(t *testing.T) {
		wantErr := fmt.Errorf("boom")
		err := utils.Retry(
			context.Background(), time.Millisecond,
			func(ctx context.Context) (bool, error) {
				return false, wantErr
			},
		)
		require.ErrorIs(t, err, wantErr)
	})

	t.Run("times out", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := utils.Retry(ctx, time.Millisecond, func(ctx context.Context) (bool, error) {
			return false, nil
		})
		require.EqualError(t, err, "timed out")
	})
}
