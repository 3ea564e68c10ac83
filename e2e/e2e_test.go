package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashlocked/swapd/internal/core/application"
	"github.com/hashlocked/swapd/internal/core/domain"
	"github.com/hashlocked/swapd/internal/core/ports"
	"github.com/hashlocked/swapd/internal/infrastructure/db"
	scheduler "github.com/hashlocked/swapd/internal/infrastructure/scheduler/gocron"
	"github.com/hashlocked/swapd/internal/infrastructure/simulator"
	"github.com/hashlocked/swapd/internal/interface/web"
	"github.com/hashlocked/swapd/utils"
	"github.com/stretchr/testify/require"
)

// The full stack runs in-process: on-disk badger store, simulated chains,
// the real gocron scheduler with a tight poll interval and the gin router
// served over a test listener. The resolver is expected to complete leg B
// on its own once the user claims leg A, exactly as in a deployment.

const pollInterval = 50 * time.Millisecond

func TestSwapEndToEnd(t *testing.T) {
	baseURL, stop := startStack(t)
	defer stop()

	swapId := createSwap(t, baseURL)

	signed := map[string]any{"private_key": "e2e-user-key"}
	postOK(t, baseURL+"/v1/swaps/"+swapId+"/lock", signed)

	// the resolver funds leg B on its own once party A has locked
	ctxLock, cancelLock := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelLock()
	err := utils.Retry(ctxLock, pollInterval, func(ctx context.Context) (bool, error) {
		return getPhase(t, baseURL, swapId) == "both_locked", nil
	})
	require.NoError(t, err)

	postOK(t, baseURL+"/v1/swaps/"+swapId+"/claim", signed)

	// The resolver picks up the revealed secret and settles leg B.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = utils.Retry(ctx, pollInterval, func(ctx context.Context) (bool, error) {
		return getPhase(t, baseURL, swapId) == "completed", nil
	})
	require.NoError(t, err)

	swap := getSwap(t, baseURL, swapId)
	require.Equal(t, "completed", swap["status"])
	require.NotEmpty(t, swap["contract_a"])
	require.NotEmpty(t, swap["contract_b"])
}

func startStack(t *testing.T) (string, func()) {
	dbSvc, err := db.NewService(db.ServiceConfig{
		DbType:   "badger",
		DbConfig: []any{t.TempDir(), nil},
	})
	require.NoError(t, err)

	adapters := map[domain.Chain]ports.ChainAdapter{
		domain.ChainEVM:  simulator.NewAdapter(domain.ChainEVM),
		domain.ChainUTXO: simulator.NewAdapter(domain.ChainUTXO),
	}

	coordinator, err := application.NewSwapCoordinator(
		dbSvc, adapters, time.Hour, 100, 10_000_000, 2*time.Hour, 48*time.Hour,
	)
	require.NoError(t, err)
	ledger := application.NewPartialFillLedger(dbSvc, coordinator)

	schedulerSvc := scheduler.NewScheduler()
	monitor := application.NewResolverMonitor(
		dbSvc, adapters, coordinator, schedulerSvc,
		application.ResolverOptions{
			PollInterval: pollInterval,
			Credentials: map[domain.Chain]ports.Credentials{
				domain.ChainEVM:  {PrivateKey: "e2e-resolver-evm"},
				domain.ChainUTXO: {PrivateKey: "e2e-resolver-utxo"},
			},
		},
	)

	svc := application.NewService(
		application.BuildInfo{Version: "e2e"}, dbSvc, adapters, coordinator, ledger, monitor,
	)
	require.NoError(t, svc.Start(context.Background()))

	srv := httptest.NewServer(web.NewServer(svc, 0).Router())
	return srv.URL, func() {
		srv.Close()
		svc.Stop()
	}
}

func createSwap(t *testing.T, baseURL string) string {
	body := map[string]any{
		"direction":        "evm_to_utxo",
		"from_token":       "ETH",
		"to_token":         "DOGE",
		"amount":           1000,
		"counter_amount":   420000,
		"sender_a":         "party-a",
		"receiver_a":       "party-b",
		"sender_b":         "party-b",
		"receiver_b":       "party-a",
		"timelock_seconds": 4 * 3600,
	}
	resp := postOK(t, baseURL+"/v1/swaps", body)
	data, ok := resp["data"].(map[string]any)
	require.True(t, ok)
	id, ok := data["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)
	return id
}

func postOK(t *testing.T, url string, body any) map[string]any {
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Less(t, resp.StatusCode, 300, "unexpected response: %v", out)
	return out
}

func getSwap(t *testing.T, baseURL, swapId string) map[string]any {
	resp, err := http.Get(fmt.Sprintf("%s/v1/swaps/%s", baseURL, swapId))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	data, ok := out["data"].(map[string]any)
	require.True(t, ok)
	swap, ok := data["swap"].(map[string]any)
	require.True(t, ok)
	return swap
}

func getPhase(t *testing.T, baseURL, swapId string) string {
	phase, _ := getSwap(t, baseURL, swapId)["phase"].(string)
	return phase
}
