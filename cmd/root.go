package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"cashier/config"
	"cashier/pkg/agent"
	"cashier/pkg/session"
	"cashier/pkg/types"
	"cashier/pkg/wallet"
)

var rootCmd = &cobra.Command{
	Use:   "cashier",
	Short: "A CLI for moving funds between your game balance and chain wallets",
	Long: `cashier moves funds between your custodial game balance and your own
chain wallets: deposit into the balance, withdraw out of it, or swap
between supported tokens.

Examples:
  cashier login alice
  cashier network arbitrum
  cashier deposit 25 USDT
  cashier withdraw 100 USDT
  cashier swap 10 USDT to WETH
  cashier transactions --watch`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolP("yes", "y", false, "Skip confirmation prompts")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

// app bundles the collaborators every flow command wires up.
type app struct {
	cfg     *config.Config
	store   *session.Store
	agent   *agent.Client
	wallets *wallet.Manager
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	store, err := session.NewStore(cfg.SessionFile)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		store:   store,
		agent:   agent.NewClient(cfg.AgentBaseURL, cfg.AuthToken, cfg.RequestTimeout),
		wallets: wallet.NewManager(cfg.Wallet),
	}, nil
}

func (a *app) close() {
	a.wallets.Close()
}

// identity returns the logged-in username or an error telling the user
// how to log in.
func (a *app) identity() (string, error) {
	id := a.store.Identity()
	if id == "" {
		return "", fmt.Errorf("not logged in. Run: cashier login <username>")
	}
	return id, nil
}

// network resolves the network for a command: the flag when given,
// otherwise the session's selection.
func (a *app) network(flagValue string) (string, error) {
	if flagValue != "" {
		return strings.ToLower(flagValue), nil
	}
	name, _ := a.store.Network()
	if name == "" {
		return "", fmt.Errorf("no network selected. Run: cashier network <name> or pass --network")
	}
	return name, nil
}

func (a *app) settlement() types.SwapInfo {
	return types.SwapInfo{
		TokenAddress: a.cfg.SettlementTokenAddress,
		Network:      a.cfg.SettlementNetwork,
	}
}

// settlementToken is the settlement asset as a conversion target. USD
// display values are quoted against it.
func (a *app) settlementToken() *types.Token {
	return &types.Token{
		Symbol:  "USD",
		Address: a.cfg.SettlementTokenAddress,
		Network: a.cfg.SettlementNetwork,
		ChainID: a.cfg.Wallet.ChainIDFor(a.cfg.SettlementNetwork),
	}
}

// token loads a configured token by symbol along with its live wallet
// balance.
func (a *app) token(network, symbol string) (*types.Token, error) {
	for _, tc := range a.cfg.Wallet.TokensFor(network) {
		if !strings.EqualFold(tc.Symbol, symbol) {
			continue
		}
		t := &types.Token{
			Symbol:   tc.Symbol,
			Address:  tc.Address,
			Network:  network,
			ChainID:  a.cfg.Wallet.ChainIDFor(network),
			Decimals: tc.Decimals,
			Tags:     tc.Tags,
		}
		conn, err := a.wallets.ForNetwork(network)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout)
		defer cancel()
		balance, err := conn.Balance(ctx, t.Address, t.Decimals)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s balance: %w", t.Symbol, err)
		}
		t.Balance = balance
		return t, nil
	}
	return nil, fmt.Errorf("token %s is not configured for %s", symbol, network)
}

func newSpinner(suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + suffix
	return s
}

func confirmPrompt(question string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", question)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// skipConfirm reports whether prompts are suppressed for this run.
func skipConfirm(cmd *cobra.Command, cfg *config.Config) bool {
	yes, _ := cmd.Flags().GetBool("yes")
	return yes || cfg.AutoConfirm
}
