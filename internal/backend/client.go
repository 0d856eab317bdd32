// internal/backend/client.go
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const defaultRequestTimeout = 10 * time.Second

// APIError is any non-2xx answer from the ledger.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// IsAPIError reports whether err is a ledger error and extracts it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// Client talks to the position ledger over HTTPS/JSON. It never mutates
// ledger records directly: every write here is a proposal the backend
// acknowledges or refuses.
type Client struct {
	client  *http.Client
	logger  *zap.Logger
	baseURL string
}

// NewClient constructs a ledger client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:  logger.Named("ledger-client"),
		baseURL: baseURL,
	}
}

// CheckUser fetches the deployment record for a wallet.
func (c *Client) CheckUser(ctx context.Context, walletID string) (*DeploymentRecord, error) {
	var record DeploymentRecord
	query := url.Values{"wallet_id": {walletID}}
	if err := c.get(ctx, "/api/check-user", query, &record); err != nil {
		return nil, err
	}
	record.WalletID = walletID
	return &record, nil
}

// UpdateUserContract persists a freshly deployed proxy contract address.
func (c *Client) UpdateUserContract(ctx context.Context, walletID, contractAddress string) error {
	body := map[string]string{
		"wallet_id":        walletID,
		"contract_address": contractAddress,
	}
	return c.post(ctx, "/api/update-user-contract", body, nil)
}

// CreatePosition materializes an intent into a Pending position record and
// returns the transaction data for the loop_liquidity bundle.
func (c *Client) CreatePosition(ctx context.Context, walletID, tokenSymbol string, amount, multiplier float64) (*OpenPositionData, error) {
	body := map[string]interface{}{
		"wallet_id":    walletID,
		"token_symbol": tokenSymbol,
		"amount":       amount,
		"multiplier":   multiplier,
	}
	var data OpenPositionData
	if err := c.post(ctx, "/api/create-position", body, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// OpenPosition transitions a Pending record to Open, attaching the confirmed
// transaction hash. Idempotent: safe to retry with the same pair.
func (c *Client) OpenPosition(ctx context.Context, positionID PositionID, txHash string) error {
	query := url.Values{
		"position_id":      {positionID.String()},
		"transaction_hash": {txHash},
	}
	return c.get(ctx, "/api/open-position", query, nil)
}

// ClosePosition transitions an Open record to Closed.
func (c *Client) ClosePosition(ctx context.Context, positionID PositionID, txHash string) error {
	query := url.Values{
		"position_id":      {positionID.String()},
		"transaction_hash": {txHash},
	}
	return c.get(ctx, "/api/close-position", query, nil)
}

// CheckPosition reports whether the wallet has an open position.
func (c *Client) CheckPosition(ctx context.Context, walletID string) (*PositionCheck, error) {
	var check PositionCheck
	query := url.Values{"wallet_id": {walletID}}
	if err := c.get(ctx, "/api/check-position", query, &check); err != nil {
		return nil, err
	}
	return &check, nil
}

// GetRepayData fetches the close_position calldata for the wallet's open
// position.
func (c *Client) GetRepayData(ctx context.Context, walletID string) (*RepayData, error) {
	var data RepayData
	query := url.Values{"wallet_id": {walletID}}
	if err := c.get(ctx, "/api/get-repay-data", query, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// AddExtraDeposit records an extra deposit against an open position.
func (c *Client) AddExtraDeposit(ctx context.Context, req ExtraDepositRequest) error {
	path := fmt.Sprintf("/api/add-extra-deposit/%s", req.PositionID)
	return c.post(ctx, path, req, nil)
}

// GetMultipliers fetches the platform's per-token multiplier ceilings.
func (c *Client) GetMultipliers(ctx context.Context) (map[string]float64, error) {
	var response struct {
		Multipliers map[string]float64 `json:"multipliers"`
	}
	if err := c.get(ctx, "/api/get-multipliers", nil, &response); err != nil {
		return nil, err
	}
	return response.Multipliers, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("ledger request completed",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    readErrorMessage(resp.Body),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readErrorMessage extracts a human-readable message from an error body. The
// backend wraps errors as {"detail": ...} or {"message": ...}; anything else
// is passed through truncated.
func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "no response body"
	}
	var wrapped struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if wrapped.Detail != "" {
			return wrapped.Detail
		}
		if wrapped.Message != "" {
			return wrapped.Message
		}
	}
	return string(raw)
}
