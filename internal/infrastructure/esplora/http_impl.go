package esplora

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// httpService implements the Service interface using HTTP REST API (Esplora)
type httpService struct {
	baseURL string
	client  *http.Client
}

// NewHTTPService creates a new HTTP-based block explorer client (Esplora)
func NewHTTPService(url string, timeout time.Duration) Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpService{
		baseURL: strings.TrimRight(url, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *httpService) GetBlockHeight(ctx context.Context) (int64, error) {
	body, err := s.get(ctx, "/blocks/tip/height", 64)
	if err != nil {
		return 0, fmt.Errorf("get height: %w", err)
	}

	n, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse height: %w", err)
	}
	return n, nil
}

func (s *httpService) GetUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	body, err := s.get(ctx, "/address/"+address+"/utxo", 1<<20)
	if err != nil {
		return nil, fmt.Errorf("get utxos: %w", err)
	}

	var utxos []struct {
		Txid   string `json:"txid"`
		Vout   uint32 `json:"vout"`
		Value  uint64 `json:"value"`
		Status struct {
			Confirmed   bool  `json:"confirmed"`
			BlockHeight int64 `json:"block_height"`
		} `json:"status"`
	}
	if err := json.Unmarshal(body, &utxos); err != nil {
		return nil, fmt.Errorf("failed to parse utxos: %w", err)
	}

	out := make([]UTXO, len(utxos))
	for i, u := range utxos {
		out[i] = UTXO{
			Txid:        u.Txid,
			Vout:        u.Vout,
			Value:       u.Value,
			Confirmed:   u.Status.Confirmed,
			BlockHeight: u.Status.BlockHeight,
		}
	}
	return out, nil
}

func (s *httpService) GetOutspend(ctx context.Context, txid string, vout uint32) (*Outspend, error) {
	body, err := s.get(ctx, fmt.Sprintf("/tx/%s/outspend/%d", txid, vout), 4096)
	if err != nil {
		return nil, fmt.Errorf("get outspend: %w", err)
	}

	var spend struct {
		Spent bool   `json:"spent"`
		Txid  string `json:"txid"`
		Vin   uint32 `json:"vin"`
	}
	if err := json.Unmarshal(body, &spend); err != nil {
		return nil, fmt.Errorf("failed to parse outspend: %w", err)
	}
	return &Outspend{Spent: spend.Spent, Txid: spend.Txid, Vin: spend.Vin}, nil
}

func (s *httpService) GetTxStatus(ctx context.Context, txid string) (*TxStatus, error) {
	body, err := s.get(ctx, "/tx/"+txid+"/status", 4096)
	if err != nil {
		return nil, fmt.Errorf("get tx status: %w", err)
	}

	var status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to parse tx status: %w", err)
	}
	return &TxStatus{Confirmed: status.Confirmed, BlockHeight: status.BlockHeight}, nil
}

func (s *httpService) GetTxHex(ctx context.Context, txid string) (string, error) {
	body, err := s.get(ctx, "/tx/"+txid+"/hex", 1<<22)
	if err != nil {
		return "", fmt.Errorf("get tx hex: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}

func (s *httpService) Broadcast(ctx context.Context, txHex string) (string, error) {
	url := s.baseURL + "/tx"
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, url, strings.NewReader(txHex),
	)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("broadcast: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf(
			"unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)),
		)
	}
	return strings.TrimSpace(string(body)), nil
}

// Close closes any resources (no-op for HTTP)
func (s *httpService) Close() error {
	return nil
}

func (s *httpService) get(ctx context.Context, path string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)),
		)
	}
	return body, nil
}
