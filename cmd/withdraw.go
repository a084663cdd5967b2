package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"cashier/pkg/amount"
	"cashier/pkg/executor"
	"cashier/pkg/notify"
	"cashier/pkg/pipeline"
	"cashier/pkg/types"
	"cashier/pkg/wallet"
)

var withdrawNetwork string

var withdrawCmd = &cobra.Command{
	Use:   "withdraw [amount] <token>",
	Short: "Withdraw tokens from your game balance to your wallet",
	Long: `Withdraw tokens from your custodial game balance to your connected
wallet. The payout is the amount minus the network's withdrawal fee;
both figures are shown before you confirm.

Examples:
  cashier withdraw 100 USDT
  cashier withdraw USDT
  cashier withdraw 50 USDC --network solana --yes`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runWithdraw,
}

func init() {
	rootCmd.AddCommand(withdrawCmd)

	withdrawCmd.Flags().StringVar(&withdrawNetwork, "network", "", "Network to withdraw to (defaults to the session's network)")
}

func runWithdraw(cmd *cobra.Command, args []string) {
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
	network, err := app.network(withdrawNetwork)
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
	if err == nil {
		// withdrawals draw on the game balance, not the chain balance
		ctx, cancel := context.WithTimeout(context.Background(), app.cfg.RequestTimeout)
		bal, balErr := app.agent.GetBalance(ctx, network, tok.Address, identity)
		cancel()
		if balErr != nil {
			err = balErr
		} else {
			tok.Balance = amount.Parse(bal.Balance)
		}
	}
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
		amt = promptAmount(app, engine, tok, network, identity, app.cfg.WithdrawDebounce)
	}
	if !amount.Positive(amt) {
		printError(fmt.Errorf("amount must be greater than zero"))
		os.Exit(1)
	}

	s = newSpinner("Fetching withdrawal settings...")
	if !jsonOutput {
		s.Start()
	}
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.RequestTimeout)
	min, hasMin := resolver.Resolve(ctx, tok, network, identity, types.TxWithdraw)
	cancel()
	if !jsonOutput {
		s.Stop()
	}

	if hasMin && amount.Parse(amt).LessThan(min) {
		printError(fmt.Errorf("amount %s %s is below the minimum withdrawal of %s %s", amt, tok.Symbol, min.String(), tok.Symbol))
		os.Exit(1)
	}

	// The fee setting rides along with the minimum resolution's config
	// fetch; no second config call.
	feePercent, hasFee := resolver.FeePercent()
	if !hasFee {
		printError(fmt.Errorf("could not fetch the withdrawal fee for %s", network))
		os.Exit(1)
	}

	ex := executor.New(executor.Options{
		Connector:   mustConnector(app, network),
		Payer:       app.agent,
		Store:       app.store,
		Notifier:    console,
		FeePercent:  feePercent,
		SettleDelay: app.cfg.SettleDelay,
	})
	fee, payout := ex.FeeSplit(amt)

	if !jsonOutput {
		displayWithdrawSummary(tok, amt, fee, payout, feePercent, network)
		if !skipConfirm(cmd, app.cfg) && !confirmPrompt("Proceed with withdrawal?") {
			fmt.Println("\nWithdrawal cancelled.")
			os.Exit(0)
		}
	}

	s = newSpinner("Submitting withdrawal...")
	if !jsonOutput {
		s.Start()
	}
	res := ex.Execute(context.Background(), executor.Request{
		Kind:     types.TxWithdraw,
		Network:  network,
		From:     tok,
		Amount:   amt,
		Identity: identity,
	})
	if !jsonOutput {
		s.Stop()
	}

	if jsonOutput {
		out := map[string]interface{}{
			"kind":    "withdraw",
			"network": network,
			"token":   tok.Symbol,
			"amount":  amt,
			"fee":     fee.String(),
			"payout":  payout.String(),
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

	color.Green("\nWithdrawal submitted!")
	fmt.Printf("  Payout:  %s %s\n", payout.String(), tok.Symbol)
	fmt.Printf("  Tx Hash: %s\n", color.CyanString(res.TxHash))
	fmt.Println("\nTrack the confirmation with:")
	color.Cyan("  cashier transactions %s --watch\n", res.TxHash)
}

func mustConnector(app *app, network string) wallet.Connector {
	c, err := app.wallets.ForNetwork(network)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return c
}

func displayWithdrawSummary(tok *types.Token, amt string, fee, payout, feePercent decimal.Decimal, network string) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                   WITHDRAWAL SUMMARY")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Network:  %s\n", network)
	fmt.Printf("  Amount:   %s %s\n", amt, color.YellowString(tok.Symbol))
	fmt.Printf("  Fee:      %s %s (%s%%)\n", fee.String(), tok.Symbol, feePercent.String())
	fmt.Printf("  Payout:   %s %s\n", payout.String(), color.YellowString(tok.Symbol))
	fmt.Printf("  Balance:  %s %s\n", tok.Balance.String(), tok.Symbol)

	fmt.Println("\n" + strings.Repeat("=", 60))
}
