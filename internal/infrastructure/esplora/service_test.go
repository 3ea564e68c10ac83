package esplora_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashlocked/swapd/internal/infrastructure/esplora"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func newTestServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		body, ok := routes[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			// nolint:all
			w.Write([]byte("not found"))
			return
		}
		// nolint:all
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetBlockHeight(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"GET /blocks/tip/height": "512345\n",
	})
	svc := esplora.NewHTTPService(srv.URL, time.Second)

	height, err := svc.GetBlockHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(512345), height)
}

func TestGetUTXOs(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"GET /address/DAddr/utxo": `[
			{"txid":"aa11","vout":0,"value":500000,"status":{"confirmed":true,"block_height":100}},
			{"txid":"bb22","vout":1,"value":250000,"status":{"confirmed":false}}
		]`,
	})
	svc := esplora.NewHTTPService(srv.URL, time.Second)

	utxos, err := svc.GetUTXOs(ctx, "DAddr")
	require.NoError(t, err)
	require.Len(t, utxos, 2)
	require.Equal(t, "aa11", utxos[0].Txid)
	require.Equal(t, uint64(500000), utxos[0].Value)
	require.True(t, utxos[0].Confirmed)
	require.Equal(t, int64(100), utxos[0].BlockHeight)
	require.False(t, utxos[1].Confirmed)
}

func TestGetOutspend(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"GET /tx/aa11/outspend/0": `{"spent":true,"txid":"cc33","vin":0}`,
		"GET /tx/aa11/outspend/1": `{"spent":false}`,
	})
	svc := esplora.NewHTTPService(srv.URL, time.Second)

	spend, err := svc.GetOutspend(ctx, "aa11", 0)
	require.NoError(t, err)
	require.True(t, spend.Spent)
	require.Equal(t, "cc33", spend.Txid)

	spend, err = svc.GetOutspend(ctx, "aa11", 1)
	require.NoError(t, err)
	require.False(t, spend.Spent)
}

func TestBroadcast(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"POST /tx": "dd44",
	})
	svc := esplora.NewHTTPService(srv.URL, time.Second)

	txid, err := svc.Broadcast(ctx, "0200000001...")
	require.NoError(t, err)
	require.Equal(t, "dd44", txid)
}

func TestErrorStatus(t *testing.T) {
	srv := newTestServer(t, map[string]string{})
	svc := esplora.NewHTTPService(srv.URL, time.Second)

	_, err := svc.GetBlockHeight(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}
