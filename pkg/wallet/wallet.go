// Package wallet is the connected-wallet boundary: signing and
// broadcasting transactions, reading balances and exposing
// block-explorer links for the networks the cashier supports.
package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"cashier/config"
)

// SwapParams describes an on-chain swap request. Amount is a main-unit
// decimal string; the connector converts to base units.
type SwapParams struct {
	Network           string // network id as string
	FromTokenAddress  string
	ToTokenAddress    string
	FromTokenDecimals int
	Amount            string
	WalletAddress     string
	SlippagePercent   decimal.Decimal
}

// SwapResult is the structured outcome of a swap broadcast. Err carries
// the connector's message verbatim; it is never swallowed.
type SwapResult struct {
	Success bool
	TxHash  string
	Err     string
}

// TransferParams describes a plain token transfer. An empty
// TokenAddress means the network's native asset.
type TransferParams struct {
	TokenAddress string
	Decimals     int
	To           string
	Amount       string
}

// Connector signs and broadcasts through a connected wallet on one
// network.
type Connector interface {
	Address() (string, error)
	ExecuteSwap(ctx context.Context, p SwapParams) SwapResult
	Transfer(ctx context.Context, p TransferParams) (string, error)
	Balance(ctx context.Context, tokenAddress string, decimals int) (decimal.Decimal, error)
	BlockExplorerURLs() []string
	Close()
}

// Manager dispatches to the connector for a network and caches
// connections.
type Manager struct {
	cfg config.WalletConfig

	mu         sync.Mutex
	connectors map[string]Connector
}

// NewManager creates a wallet manager over the configured networks.
func NewManager(cfg config.WalletConfig) *Manager {
	return &Manager{
		cfg:        cfg,
		connectors: make(map[string]Connector),
	}
}

// Enabled reports whether a connector is configured for the network.
func (m *Manager) Enabled(network string) bool {
	network = strings.ToLower(network)
	if network == "solana" {
		return m.cfg.Solana.Enabled
	}
	_, ok := m.cfg.EVM.Networks[network]
	return ok
}

// ForNetwork returns the connector for a network, creating it on first
// use.
func (m *Manager) ForNetwork(network string) (Connector, error) {
	network = strings.ToLower(network)

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.connectors[network]; ok {
		return c, nil
	}

	var (
		c   Connector
		err error
	)
	switch {
	case network == "solana":
		if !m.cfg.Solana.Enabled {
			return nil, fmt.Errorf("solana wallet is not enabled")
		}
		c, err = NewSolanaConnector(m.cfg.Solana)
	default:
		c, err = NewEVMConnector(m.cfg.EVM, network)
	}
	if err != nil {
		return nil, err
	}

	m.connectors[network] = c
	return c, nil
}

// SupportedNetworks lists the networks a connector exists for.
func (m *Manager) SupportedNetworks() []string {
	supported := make([]string, 0, len(m.cfg.EVM.Networks)+1)
	for name := range m.cfg.EVM.Networks {
		supported = append(supported, name)
	}
	if m.cfg.Solana.Enabled {
		supported = append(supported, "solana")
	}
	return supported
}

// Close shuts down all cached connectors.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.connectors {
		c.Close()
	}
	m.connectors = make(map[string]Connector)
}
