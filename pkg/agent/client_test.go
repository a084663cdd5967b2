package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/wallet-agent/config", r.URL.Path)
		require.Equal(t, "arbitrum", r.URL.Query().Get("network"))
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"depositMin":"10","withdrawMin":"20","fee":"1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", 0)
	cfg, err := c.GetConfig(context.Background(), "arbitrum")
	require.NoError(t, err)
	require.Equal(t, "10", cfg.DepositMin)
	require.Equal(t, "20", cfg.WithdrawMin)
	require.Equal(t, "1", cfg.Fee)
}

func TestGetTokenConversion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/wallet-agent/convert", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"success":true,"conversion":{"toAmount":"0.0043"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", 0)
	resp, err := c.GetTokenConversion(context.Background(), ConversionQuery{
		Network:   "arbitrum",
		FromToken: "0xusdc",
		ToToken:   "0xweth",
		Amount:    "10",
		Identity:  "alice",
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, "0.0043", resp.Conversion.ToAmount)
}

func TestGetBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/wallet-agent/balance", r.URL.Path)
		require.Equal(t, "solana", r.URL.Query().Get("network"))
		require.Equal(t, "alice", r.URL.Query().Get("identity"))
		w.Write([]byte(`{"balance":"123.45"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", 0)
	resp, err := c.GetBalance(context.Background(), "solana", "So11111", "alice")
	require.NoError(t, err)
	require.Equal(t, "123.45", resp.Balance)
}

func TestRequestWithdrawal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/wallet-agent/withdraw", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req WithdrawalRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "100", req.Amount)
		require.Equal(t, "1", req.Fee)
		require.Equal(t, "99", req.Payout)

		w.Write([]byte(`{"success":true,"txHash":"0xdead"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", 0)
	resp, err := c.RequestWithdrawal(context.Background(), WithdrawalRequest{
		Network:      "arbitrum",
		TokenAddress: "0xusdt",
		Amount:       "100",
		Fee:          "1",
		Payout:       "99",
		ToAddress:    "0xwallet",
		Identity:     "alice",
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, "0xdead", resp.TxHash)
}

func TestRequestWithdrawalRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"balance hold in effect"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", 0)
	resp, err := c.RequestWithdrawal(context.Background(), WithdrawalRequest{Amount: "5"})
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, "balance hold in effect", resp.Error)
}

func TestErrorBodyMessageSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"unsupported network"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0)
	_, err := c.GetConfig(context.Background(), "nope")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported network")
	require.Contains(t, err.Error(), "400")
}

func TestTimeoutReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 20*time.Millisecond)
	_, err := c.GetConfig(context.Background(), "arbitrum")
	require.Error(t, err)
}
