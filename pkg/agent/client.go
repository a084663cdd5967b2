// Package agent is the client for the pricing/wallet-agent service:
// per-network minimum and fee settings, token-to-token conversion
// quotes, and custodial payout submission.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const DefaultTimeout = 10 * time.Second

// Config holds the numeric settings the wallet agent reports for one
// network. Amounts are USD-denominated decimal strings.
type Config struct {
	DepositMin  string `json:"depositMin"`
	WithdrawMin string `json:"withdrawMin"`
	Fee         string `json:"fee"` // percent, e.g. "1" for 1%
}

// ConversionQuery asks how much of ToToken an Amount of FromToken buys.
type ConversionQuery struct {
	Network   string `json:"network"`
	FromToken string `json:"fromToken"`
	ToToken   string `json:"toToken"`
	Amount    string `json:"amount"`
	Identity  string `json:"identity"`
}

// ConversionResponse is the quote result.
type ConversionResponse struct {
	Success    bool `json:"success"`
	Conversion struct {
		ToAmount string `json:"toAmount"`
	} `json:"conversion"`
}

// BalanceResponse reports the custodial balance of one token.
type BalanceResponse struct {
	Balance string `json:"balance"`
}

// WithdrawalRequest asks the wallet agent to pay out from the custodial
// balance to a chain wallet. Fee and Payout are pre-computed by the
// caller so the user sees the exact split before submitting.
type WithdrawalRequest struct {
	Network      string `json:"network"`
	TokenAddress string `json:"tokenAddress"`
	Amount       string `json:"amount"`
	Fee          string `json:"fee"`
	Payout       string `json:"payout"`
	ToAddress    string `json:"toAddress"`
	Identity     string `json:"identity"`
}

// WithdrawalResponse is the payout submission result.
type WithdrawalResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash"`
	Error   string `json:"error"`
}

// Service is the surface the pipelines consume. Satisfied by Client and
// by test fakes.
type Service interface {
	GetConfig(ctx context.Context, network string) (*Config, error)
	GetTokenConversion(ctx context.Context, q ConversionQuery) (*ConversionResponse, error)
}

// Payer submits custodial payouts. Split from Service so the pricing
// pipelines never see the mutating call.
type Payer interface {
	RequestWithdrawal(ctx context.Context, r WithdrawalRequest) (*WithdrawalResponse, error)
}

// Client talks to the wallet-agent HTTP API.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
}

// NewClient creates a wallet-agent client. A zero timeout falls back to
// DefaultTimeout; a hung pricing call must never block the flow forever.
func NewClient(baseURL, authToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:   baseURL,
		authToken: authToken,
		http:      &http.Client{Timeout: timeout},
	}
}

// GetConfig fetches the minimum/fee settings for a network.
func (c *Client) GetConfig(ctx context.Context, network string) (*Config, error) {
	endpoint := fmt.Sprintf("%s/v1/wallet-agent/config?network=%s", c.baseURL, url.QueryEscape(network))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build config request: %w", err)
	}
	c.authorize(req)

	var cfg Config
	if err := c.do(req, &cfg); err != nil {
		return nil, fmt.Errorf("failed to get wallet-agent config: %w", err)
	}
	return &cfg, nil
}

// GetTokenConversion fetches a live conversion quote.
func (c *Client) GetTokenConversion(ctx context.Context, q ConversionQuery) (*ConversionResponse, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversion query: %w", err)
	}

	endpoint := c.baseURL + "/v1/wallet-agent/convert"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build conversion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	var resp ConversionResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("failed to get token conversion: %w", err)
	}
	return &resp, nil
}

// GetBalance reads the custodial game balance for one token.
func (c *Client) GetBalance(ctx context.Context, network, tokenAddress, identity string) (*BalanceResponse, error) {
	q := url.Values{}
	q.Set("network", network)
	q.Set("token", tokenAddress)
	q.Set("identity", identity)
	endpoint := c.baseURL + "/v1/wallet-agent/balance?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build balance request: %w", err)
	}
	c.authorize(req)

	var resp BalanceResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &resp, nil
}

// RequestWithdrawal submits a custodial payout. A 2xx response with
// Success false carries the rejection reason in Error.
func (c *Client) RequestWithdrawal(ctx context.Context, r WithdrawalRequest) (*WithdrawalResponse, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal withdrawal request: %w", err)
	}

	endpoint := c.baseURL + "/v1/wallet-agent/withdraw"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build withdrawal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	var resp WithdrawalResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("failed to request withdrawal: %w", err)
	}
	return &resp, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

func (c *Client) do(req *http.Request, out interface{}) error {
	httpResp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return apiError(httpResp)
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// apiError extracts the service's error message from a non-2xx body.
func apiError(resp *http.Response) error {
	bodyBytes, readErr := io.ReadAll(resp.Body)
	if readErr == nil && len(bodyBytes) > 0 {
		var errorResp map[string]interface{}
		if jsonErr := json.Unmarshal(bodyBytes, &errorResp); jsonErr == nil {
			if message, ok := errorResp["message"].(string); ok {
				return fmt.Errorf("API error (status %d): %s", resp.StatusCode, message)
			}
		}
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}
	return fmt.Errorf("API returned status code %d", resp.StatusCode)
}
