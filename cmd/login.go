package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cashier/config"
	"cashier/pkg/session"
)

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Set the account the cashier operates on",
	Args:  cobra.ExactArgs(1),
	Run:   runLogin,
}

var networkCmd = &cobra.Command{
	Use:   "network <name>",
	Short: "Select the active network",
	Long: `Select the network used by deposit, withdraw and swap when --network
is not passed.

Examples:
  cashier network arbitrum
  cashier network solana`,
	Args: cobra.ExactArgs(1),
	Run:  runNetwork,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(networkCmd)
}

func runLogin(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	store, err := session.NewStore(cfg.SessionFile)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if err := store.SetIdentity(args[0]); err != nil {
		printError(err)
		os.Exit(1)
	}
	color.Green("\nLogged in as %s\n", args[0])
}

func runNetwork(cmd *cobra.Command, args []string) {
	app, err := newApp()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer app.close()

	name := strings.ToLower(args[0])
	if !app.wallets.Enabled(name) {
		printError(fmt.Errorf("network %s is not configured. Configured networks: %v", name, app.wallets.SupportedNetworks()))
		os.Exit(1)
	}

	if err := app.store.SetNetwork(name, app.cfg.Wallet.ChainIDFor(name)); err != nil {
		printError(err)
		os.Exit(1)
	}
	color.Green("\nActive network set to %s\n", name)
}
