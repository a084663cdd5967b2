package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"cashier/pkg/amount"
	"cashier/pkg/executor"
	"cashier/pkg/notify"
	"cashier/pkg/pipeline"
	"cashier/pkg/types"
)

var depositNetwork string

var depositCmd = &cobra.Command{
	Use:   "deposit [amount] <token>",
	Short: "Deposit tokens from your wallet into your game balance",
	Long: `Deposit tokens from your connected wallet into your custodial game
balance. With no amount the command prompts interactively and shows a
live USD quote as you type.

Examples:
  cashier deposit 25 USDT
  cashier deposit USDT
  cashier deposit 0.5 WETH --network arbitrum --yes`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runDeposit,
}

func init() {
	rootCmd.AddCommand(depositCmd)

	depositCmd.Flags().StringVar(&depositNetwork, "network", "", "Network to deposit from (defaults to the session's network)")
}

func runDeposit(cmd *cobra.Command, args []string) {
	app, err := newApp()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer app.close()

	jsonOutput, _ := cmd.Flags().GetBool("json")

	identity, err := app.identity()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	network, err := app.network(depositNetwork)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	symbol := args[len(args)-1]
	s := newSpinner("Loading token...")
	if !jsonOutput {
		s.Start()
	}
	tok, err := app.token(network, symbol)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	console := notify.NewConsole()
	resolver := pipeline.NewMinimumResolver(app.agent, console, app.settlement(), app.cfg.StableSymbols)
	engine := pipeline.NewConversionEngine(app.agent, console, app.settlement(), app.cfg.StableSymbols)

	var amt string
	if len(args) == 2 {
		amt = amount.Sanitize(args[0], app.cfg.MaxAmountDecimals)
	} else {
		amt = promptAmount(app, engine, tok, network, identity, app.cfg.DepositDebounce)
	}
	if !amount.Positive(amt) {
		printError(fmt.Errorf("amount must be greater than zero"))
		os.Exit(1)
	}

	s = newSpinner("Fetching minimum deposit...")
	if !jsonOutput {
		s.Start()
	}
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.RequestTimeout)
	min, hasMin := resolver.Resolve(ctx, tok, network, identity, types.TxDeposit)
	usd := engine.Convert(ctx, tok, app.settlementToken(), amt, network, identity)
	cancel()
	if !jsonOutput {
		s.Stop()
	}

	if hasMin && amount.Parse(amt).LessThan(min) {
		printError(fmt.Errorf("amount %s %s is below the minimum deposit of %s %s", amt, tok.Symbol, min.String(), tok.Symbol))
		os.Exit(1)
	}

	if !jsonOutput {
		displayDepositSummary(tok, amt, min, hasMin, usd, network)
		if !skipConfirm(cmd, app.cfg) && !confirmPrompt("Proceed with deposit?") {
			fmt.Println("\nDeposit cancelled.")
			os.Exit(0)
		}
	}

	conn, err := app.wallets.ForNetwork(network)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ex := executor.New(executor.Options{
		Connector:   conn,
		Store:       app.store,
		Notifier:    console,
		SettleDelay: app.cfg.SettleDelay,
	})

	s = newSpinner("Broadcasting deposit...")
	if !jsonOutput {
		s.Start()
	}
	res := ex.Execute(context.Background(), executor.Request{
		Kind:           types.TxDeposit,
		Network:        network,
		From:           tok,
		Amount:         amt,
		Identity:       identity,
		DepositAddress: app.cfg.Wallet.DepositAddressFor(network),
	})
	if !jsonOutput {
		s.Stop()
	}

	if jsonOutput {
		out := map[string]interface{}{
			"kind":    "deposit",
			"network": network,
			"token":   tok.Symbol,
			"amount":  amt,
			"success": res.Success,
			"tx_hash": res.TxHash,
			"error":   res.Err,
		}
		raw, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(raw))
		if !res.Success {
			os.Exit(1)
		}
		return
	}

	if !res.Success {
		os.Exit(1)
	}

	color.Green("\nDeposit broadcast!")
	fmt.Printf("  Tx Hash: %s\n", color.CyanString(res.TxHash))
	tracker := executor.NewTracker(app.store, conn, res.TxHash, app.cfg.ConfirmCountdown)
	if url := tracker.ExplorerURL(); url != "" {
		fmt.Printf("  Explorer: %s\n", url)
	}
	fmt.Println("\nTrack the confirmation with:")
	color.Cyan("  cashier transactions %s --watch\n", res.TxHash)
}

// promptAmount reads the amount interactively. Every entry is debounced
// into a live USD quote; an empty line accepts the last entry.
func promptAmount(app *app, engine *pipeline.ConversionEngine, tok *types.Token, network, identity string, window time.Duration) string {
	deb := pipeline.NewDebouncer(window, func(v string) {
		if v == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), app.cfg.RequestTimeout)
		defer cancel()
		res := engine.Convert(ctx, tok, app.settlementToken(), v, network, identity)
		if res.Success && res.ToAmount.IsPositive() {
			fmt.Printf("  ~ %s USD\n", res.ToAmount.String())
		}
	})
	defer deb.Stop()

	reader := bufio.NewReader(os.Stdin)
	var last string
	for {
		if last == "" {
			fmt.Printf("Amount of %s: ", tok.Symbol)
		} else {
			fmt.Printf("Amount of %s (empty to accept %s): ", tok.Symbol, last)
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return last
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return last
		}
		last = amount.Sanitize(line, app.cfg.MaxAmountDecimals)
		deb.Set(last)
	}
}

func displayDepositSummary(tok *types.Token, amt string, min decimal.Decimal, hasMin bool, usd types.ConversionResult, network string) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                    DEPOSIT SUMMARY")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Network:  %s\n", network)
	fmt.Printf("  Amount:   %s %s\n", amt, color.YellowString(tok.Symbol))
	if usd.Success && usd.ToAmount.IsPositive() {
		fmt.Printf("  Value:    ~%s USD\n", usd.ToAmount.String())
	}
	if hasMin {
		fmt.Printf("  Minimum:  %s %s\n", min.String(), tok.Symbol)
	}
	fmt.Printf("  Balance:  %s %s\n", tok.Balance.String(), tok.Symbol)

	fmt.Println("\n" + strings.Repeat("=", 60))
}
