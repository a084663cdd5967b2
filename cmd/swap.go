package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cashier/pkg/amount"
	"cashier/pkg/executor"
	"cashier/pkg/notify"
	"cashier/pkg/pipeline"
	"cashier/pkg/types"
)

var (
	swapNetwork  string
	swapSlippage string
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <from-token> to <to-token>",
	Short: "Swap between supported tokens",
	Long: `Swap one supported token for another. The quote shown before
confirmation is the live conversion rate; the swap settles against the
house.

Examples:
  cashier swap 10 USDT to WETH
  cashier swap 0.5 WETH to USDC --slippage 0.5
  cashier swap 10 USDT to WETH --network arbitrum --yes`,
	Args: cobra.ExactArgs(4),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVar(&swapNetwork, "network", "", "Network to swap on (defaults to the session's network)")
	swapCmd.Flags().StringVar(&swapSlippage, "slippage", "Auto", "Slippage tolerance in percent, or Auto for 1%")
}

func runSwap(cmd *cobra.Command, args []string) {
	if !strings.EqualFold(args[2], "to") {
		printError(fmt.Errorf("usage: cashier swap <amount> <from-token> to <to-token>"))
		os.Exit(1)
	}

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
	network, err := app.network(swapNetwork)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	amt := amount.Sanitize(args[0], app.cfg.MaxAmountDecimals)
	if !amount.Positive(amt) {
		printError(fmt.Errorf("amount must be greater than zero"))
		os.Exit(1)
	}

	s := newSpinner("Loading tokens...")
	if !jsonOutput {
		s.Start()
	}
	from, err := app.token(network, args[1])
	var to *types.Token
	if err == nil {
		to, err = app.token(network, args[3])
	}
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	console := notify.NewConsole()
	engine := pipeline.NewConversionEngine(app.agent, console, app.settlement(), app.cfg.StableSymbols)

	s = newSpinner("Fetching quote...")
	if !jsonOutput {
		s.Start()
	}
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.RequestTimeout)
	quote := engine.Convert(ctx, from, to, amt, network, identity)
	cancel()
	if !jsonOutput {
		s.Stop()
	}
	if !quote.Success {
		printError(fmt.Errorf("could not fetch a quote: %s", quote.ErrorReason))
		os.Exit(1)
	}

	if !jsonOutput {
		displaySwapQuote(from, to, amt, quote, network)
		if !skipConfirm(cmd, app.cfg) && !confirmPrompt("Proceed with swap?") {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	conn := mustConnector(app, network)
	ex := executor.New(executor.Options{
		Connector:   conn,
		Store:       app.store,
		Notifier:    console,
		SettleDelay: app.cfg.SettleDelay,
	})

	s = newSpinner("Broadcasting swap...")
	if !jsonOutput {
		s.Start()
	}
	res := ex.Execute(context.Background(), executor.Request{
		Kind:     types.TxSwap,
		Network:  network,
		From:     from,
		To:       to,
		Amount:   amt,
		Slippage: swapSlippage,
		Identity: identity,
	})
	if !jsonOutput {
		s.Stop()
	}

	if jsonOutput {
		out := map[string]interface{}{
			"kind":       "swap",
			"network":    network,
			"from_token": from.Symbol,
			"to_token":   to.Symbol,
			"amount":     amt,
			"quote":      quote.ToAmount.String(),
			"success":    res.Success,
			"tx_hash":    res.TxHash,
			"error":      res.Err,
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

	color.Green("\nSwap broadcast!")
	fmt.Printf("  Tx Hash: %s\n", color.CyanString(res.TxHash))
	tracker := executor.NewTracker(app.store, conn, res.TxHash, app.cfg.ConfirmCountdown)
	if url := tracker.ExplorerURL(); url != "" {
		fmt.Printf("  Explorer: %s\n", url)
	}
	fmt.Println("\nTrack the confirmation with:")
	color.Cyan("  cashier transactions %s --watch\n", res.TxHash)
}

func displaySwapQuote(from, to *types.Token, amt string, quote types.ConversionResult, network string) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                      SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Network:  %s\n", network)
	fmt.Printf("  From:     %s %s\n", amt, color.YellowString(from.Symbol))
	fmt.Printf("  To:       ~%s %s\n", quote.ToAmount.String(), color.YellowString(to.Symbol))
	fmt.Printf("  Balance:  %s %s\n", from.Balance.String(), from.Symbol)

	fmt.Println("\n" + strings.Repeat("=", 60))
}
