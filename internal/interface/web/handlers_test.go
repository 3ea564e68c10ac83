package web_test

import (
	"bytes"
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
	"github.com/hashlocked/swapd/internal/infrastructure/simulator"
	"github.com/hashlocked/swapd/internal/interface/web"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	repoMgr, err := db.NewService(db.ServiceConfig{
		DbType:   "badger",
		DbConfig: []any{"", nil},
	})
	require.NoError(t, err)
	t.Cleanup(repoMgr.Close)

	adapters := map[domain.Chain]ports.ChainAdapter{
		domain.ChainEVM:  simulator.NewAdapter(domain.ChainEVM),
		domain.ChainUTXO: simulator.NewAdapter(domain.ChainUTXO),
	}
	coordinator, err := application.NewSwapCoordinator(
		repoMgr, adapters, time.Hour, 100, 10_000_000, 2*time.Hour, 48*time.Hour,
	)
	require.NoError(t, err)
	ledger := application.NewPartialFillLedger(repoMgr, coordinator)
	monitor := application.NewResolverMonitor(
		repoMgr, adapters, coordinator, nil, application.ResolverOptions{},
	)
	svc := application.NewService(
		application.BuildInfo{Version: "test"},
		repoMgr, adapters, coordinator, ledger, monitor,
	)

	return web.NewServer(svc, 0).Router()
}

func doRequest(
	t *testing.T, router http.Handler, method, path string, body any,
) (int, *envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, &resp
}

func createSwapBody() map[string]any {
	return map[string]any{
		"direction":             "evm_to_utxo",
		"from_token":            "ETH",
		"to_token":              "DOGE",
		"amount":                1000,
		"counter_amount":        420000,
		"sender_a":              "0xalice",
		"receiver_a":            "0xbob",
		"sender_b":              "DBobAddr",
		"receiver_b":            "DAliceAddr",
		"timelock_seconds":      4 * 3600,
		"partial_fills_enabled": true,
	}
}

func TestCreateAndGetSwap(t *testing.T) {
	router := newTestRouter(t)

	code, resp := doRequest(t, router, http.MethodPost, "/v1/swaps", createSwapBody())
	require.Equal(t, http.StatusCreated, code)
	require.True(t, resp.Success)

	var created struct {
		Id         string `json:"id"`
		Phase      string `json:"phase"`
		SecretHash string `json:"secret_hash"`
		TimelockA  int64  `json:"timelock_a"`
		TimelockB  int64  `json:"timelock_b"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	require.NotEmpty(t, created.Id)
	require.Equal(t, "initiated", created.Phase)
	require.Len(t, created.SecretHash, 64)
	require.Equal(t, int64(3600), created.TimelockA-created.TimelockB)

	code, resp = doRequest(t, router, http.MethodGet, "/v1/swaps/"+created.Id, nil)
	require.Equal(t, http.StatusOK, code)
	require.True(t, resp.Success)

	code, resp = doRequest(t, router, http.MethodGet, "/v1/swaps/missing", nil)
	require.Equal(t, http.StatusNotFound, code)
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "not found")
}

func TestCreateSwapValidation(t *testing.T) {
	router := newTestRouter(t)

	body := createSwapBody()
	body["direction"] = "sideways"
	code, resp := doRequest(t, router, http.MethodPost, "/v1/swaps", body)
	require.Equal(t, http.StatusBadRequest, code)
	require.False(t, resp.Success)

	body = createSwapBody()
	delete(body, "amount")
	code, _ = doRequest(t, router, http.MethodPost, "/v1/swaps", body)
	require.Equal(t, http.StatusBadRequest, code)

	body = createSwapBody()
	body["timelock_seconds"] = 60
	code, resp = doRequest(t, router, http.MethodPost, "/v1/swaps", body)
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, resp.Error, "timelock")
}

func TestSwapLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	code, resp := doRequest(t, router, http.MethodPost, "/v1/swaps", createSwapBody())
	require.Equal(t, http.StatusCreated, code)
	var created struct {
		Id string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))

	lockBody := map[string]any{"private_key": "k"}

	// first lock funds leg A, the second leg B
	code, resp = doRequest(t, router, http.MethodPost, "/v1/swaps/"+created.Id+"/lock", lockBody)
	require.Equal(t, http.StatusOK, code)
	var state struct {
		Phase string `json:"phase"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &state))
	require.Equal(t, "party_a_locked", state.Phase)

	code, resp = doRequest(t, router, http.MethodPost, "/v1/swaps/"+created.Id+"/lock", lockBody)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &state))
	require.Equal(t, "both_locked", state.Phase)

	// a third lock has nothing left to fund
	code, resp = doRequest(t, router, http.MethodPost, "/v1/swaps/"+created.Id+"/lock", lockBody)
	require.Equal(t, http.StatusConflict, code)
	require.False(t, resp.Success)

	code, resp = doRequest(t, router, http.MethodPost, "/v1/swaps/"+created.Id+"/claim", lockBody)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &state))
	require.Equal(t, "claimed_a", state.Phase)

	// refunding a claimable leg is rejected
	refundBody := map[string]any{"private_key": "k", "chain": "utxo"}
	code, _ = doRequest(t, router, http.MethodPost, "/v1/swaps/"+created.Id+"/refund", refundBody)
	require.Equal(t, http.StatusConflict, code)
}

func TestFillsOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	code, resp := doRequest(t, router, http.MethodPost, "/v1/swaps", createSwapBody())
	require.Equal(t, http.StatusCreated, code)
	var created struct {
		Id string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))

	code, resp = doRequest(
		t, router, http.MethodPost,
		fmt.Sprintf("/v1/swaps/%s/fills", created.Id),
		map[string]any{"amount": 400, "tx_ref": "0xfill"},
	)
	require.Equal(t, http.StatusCreated, code)
	require.True(t, resp.Success)

	var fillData struct {
		Swap struct {
			FilledAmount   uint64  `json:"filled_amount"`
			FillPercentage float64 `json:"fill_percentage"`
			Status         string  `json:"status"`
		} `json:"swap"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &fillData))
	require.Equal(t, uint64(400), fillData.Swap.FilledAmount)
	require.Equal(t, "partially_filled", fillData.Swap.Status)

	// overshooting yields a conflict carrying the available amount
	code, resp = doRequest(
		t, router, http.MethodPost,
		fmt.Sprintf("/v1/swaps/%s/fills", created.Id),
		map[string]any{"amount": 700},
	)
	require.Equal(t, http.StatusConflict, code)
	require.Contains(t, resp.Error, "available 600")
}

func TestGetInfo(t *testing.T) {
	router := newTestRouter(t)

	code, resp := doRequest(t, router, http.MethodGet, "/v1/info", nil)
	require.Equal(t, http.StatusOK, code)
	require.True(t, resp.Success)

	var info struct {
		Version          string `json:"version"`
		SafetyMarginSecs int64  `json:"safety_margin_secs"`
		Chains           []struct {
			Chain     string `json:"chain"`
			Connected bool   `json:"connected"`
		} `json:"chains"`
		Resolver struct {
			Running          bool  `json:"running"`
			PollIntervalSecs int64 `json:"poll_interval_secs"`
			Jobs             []struct {
				Name     string `json:"name"`
				Failures int    `json:"failures"`
				SkipLeft int    `json:"skip_left"`
			} `json:"jobs"`
		} `json:"resolver"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &info))
	require.Equal(t, "test", info.Version)
	require.Equal(t, int64(3600), info.SafetyMarginSecs)
	require.Len(t, info.Chains, 2)
	for _, chain := range info.Chains {
		require.True(t, chain.Connected)
	}
	require.False(t, info.Resolver.Running)
	require.NotEmpty(t, info.Resolver.Jobs)
	for _, job := range info.Resolver.Jobs {
		require.NotEmpty(t, job.Name)
		require.Zero(t, job.Failures)
		require.Zero(t, job.SkipLeft)
	}
}
