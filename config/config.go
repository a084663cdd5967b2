package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// TokenConfig describes one token the cashier can move on a network.
// An empty address means the network's native asset.
type TokenConfig struct {
	Symbol   string   `mapstructure:"symbol"`
	Address  string   `mapstructure:"address"`
	Decimals int      `mapstructure:"decimals"`
	Tags     []string `mapstructure:"tags"`
}

// EVMNetwork holds per-network settings for EVM chains.
type EVMNetwork struct {
	RPCUrl         string        `mapstructure:"rpc_url"`
	ChainID        int64         `mapstructure:"chain_id"`
	PrivateKey     string        `mapstructure:"private_key"`
	GasLimit       *uint64       `mapstructure:"gas_limit"`
	GasPrice       *int64        `mapstructure:"gas_price"`
	SwapRouter     string        `mapstructure:"swap_router"`
	DepositAddress string        `mapstructure:"deposit_address"`
	ExplorerURLs   []string      `mapstructure:"explorer_urls"`
	Tokens         []TokenConfig `mapstructure:"tokens"`
}

// EVMConfig groups all configured EVM networks.
type EVMConfig struct {
	Networks map[string]EVMNetwork `mapstructure:"networks"`
}

// SolanaConfig holds Solana wallet settings.
type SolanaConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	RPCUrl        string        `mapstructure:"rpc_url"`
	PrivateKey    string        `mapstructure:"private_key"`
	Commitment    string        `mapstructure:"commitment"`
	SkipPreflight bool          `mapstructure:"skip_preflight"`
	HouseVault    string        `mapstructure:"house_vault"`
	ExplorerURLs  []string      `mapstructure:"explorer_urls"`
	Tokens        []TokenConfig `mapstructure:"tokens"`
}

// WalletConfig groups connector settings per chain family.
type WalletConfig struct {
	EVM    EVMConfig    `mapstructure:"evm"`
	Solana SolanaConfig `mapstructure:"solana"`
}

// TokensFor returns the configured token list for a network.
func (w WalletConfig) TokensFor(network string) []TokenConfig {
	if network == "solana" {
		return w.Solana.Tokens
	}
	return w.EVM.Networks[network].Tokens
}

// DepositAddressFor returns the house account that receives deposits
// on a network.
func (w WalletConfig) DepositAddressFor(network string) string {
	if network == "solana" {
		return w.Solana.HouseVault
	}
	return w.EVM.Networks[network].DepositAddress
}

// ChainIDFor returns the chain id for an EVM network, zero otherwise.
func (w WalletConfig) ChainIDFor(network string) int64 {
	return w.EVM.Networks[network].ChainID
}

// Config holds the application configuration
type Config struct {
	AgentBaseURL string
	AuthToken    string

	SettlementTokenAddress string
	SettlementNetwork      string
	StableSymbols          []string

	RequestTimeout    time.Duration
	DepositDebounce   time.Duration
	WithdrawDebounce  time.Duration
	SettleDelay       time.Duration
	ConfirmCountdown  time.Duration
	MaxAmountDecimals int

	SessionFile string
	AutoConfirm bool

	Wallet WalletConfig
}

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".cashier")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	// Set default values
	viper.SetDefault("agent_base_url", "https://agent.example-cashier.io")
	viper.SetDefault("stable_symbols", []string{"USDT", "USDC", "DAI"})
	viper.SetDefault("request_timeout_seconds", 10)
	viper.SetDefault("deposit_debounce_ms", 500)
	viper.SetDefault("withdraw_debounce_ms", 300)
	viper.SetDefault("settle_delay_seconds", 3)
	viper.SetDefault("confirm_countdown_seconds", 90)
	viper.SetDefault("max_amount_decimals", 8)

	// Read from environment variables
	viper.SetEnvPrefix("CASHIER")
	viper.AutomaticEnv()

	// Read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		AgentBaseURL:           viper.GetString("agent_base_url"),
		AuthToken:              viper.GetString("auth_token"),
		SettlementTokenAddress: viper.GetString("settlement_token_address"),
		SettlementNetwork:      viper.GetString("settlement_network"),
		StableSymbols:          viper.GetStringSlice("stable_symbols"),
		RequestTimeout:         time.Duration(viper.GetInt("request_timeout_seconds")) * time.Second,
		DepositDebounce:        time.Duration(viper.GetInt("deposit_debounce_ms")) * time.Millisecond,
		WithdrawDebounce:       time.Duration(viper.GetInt("withdraw_debounce_ms")) * time.Millisecond,
		SettleDelay:            time.Duration(viper.GetInt("settle_delay_seconds")) * time.Second,
		ConfirmCountdown:       time.Duration(viper.GetInt("confirm_countdown_seconds")) * time.Second,
		MaxAmountDecimals:      viper.GetInt("max_amount_decimals"),
		SessionFile:            viper.GetString("session_file"),
		AutoConfirm:            viper.GetBool("auto_confirm"),
	}

	if err := viper.UnmarshalKey("wallet", &cfg.Wallet); err != nil {
		return nil, fmt.Errorf("invalid wallet configuration: %w", err)
	}

	// Validate auth token
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("auth token not found. Please set CASHIER_AUTH_TOKEN environment variable or create a .cashier.yaml config file")
	}
	if cfg.SettlementTokenAddress == "" {
		return nil, fmt.Errorf("settlement token address is required (settlement_token_address)")
	}

	globalConfig = cfg
	return cfg, nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
