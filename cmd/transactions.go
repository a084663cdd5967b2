package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cashier/pkg/executor"
	"cashier/pkg/session"
	"cashier/pkg/types"
)

var (
	watchStatus   bool
	watchInterval int
)

var transactionsCmd = &cobra.Command{
	Use:     "transactions [tx-hash]",
	Aliases: []string{"txs"},
	Short:   "List session transactions or track one by hash",
	Long: `List the transactions recorded this session, or show one transaction's
confirmation status by hash.

Examples:
  cashier transactions
  cashier transactions 0x1234...abcd
  cashier transactions 0x1234...abcd --watch
  cashier transactions 0x1234...abcd --watch --interval 10`,
	Args: cobra.MaximumNArgs(1),
	Run:  runTransactions,
}

func init() {
	rootCmd.AddCommand(transactionsCmd)

	transactionsCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	transactionsCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runTransactions(cmd *cobra.Command, args []string) {
	app, err := newApp()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer app.close()

	jsonOutput, _ := cmd.Flags().GetBool("json")

	if len(args) == 0 {
		listTransactions(app, jsonOutput)
		return
	}

	hash := args[0]
	if watchStatus {
		if jsonOutput {
			fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
			os.Exit(1)
		}
		watchTransaction(app, hash)
		return
	}
	showTransaction(app, hash, jsonOutput)
}

func listTransactions(app *app, jsonOutput bool) {
	records := app.store.Records()

	if jsonOutput {
		raw, _ := json.MarshalIndent(records, "", "  ")
		fmt.Println(string(raw))
		return
	}

	if len(records) == 0 {
		fmt.Println("\nNo transactions recorded this session.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 78))
	color.Green("                           SESSION TRANSACTIONS")
	fmt.Println(strings.Repeat("=", 78))
	fmt.Println()

	for _, r := range records {
		hash := r.Hash
		if len(hash) > 18 {
			hash = hash[:15] + "..."
		}
		fmt.Printf("  %-9s %10s %-6s %-9s %s  %s\n",
			r.Kind,
			r.Amount,
			color.YellowString(r.TokenSymbol),
			r.Network,
			coloredStatus(r.Status),
			color.HiBlackString(hash))
	}

	fmt.Println("\n" + strings.Repeat("=", 78))
	fmt.Printf("\nTotal: %d transactions\n\n", len(records))
}

func showTransaction(app *app, hash string, jsonOutput bool) {
	rec, ok := app.store.Record(hash)
	if !ok {
		printError(fmt.Errorf("transaction %s not found in this session", hash))
		os.Exit(1)
	}

	if jsonOutput {
		raw, _ := json.MarshalIndent(rec, "", "  ")
		fmt.Println(string(raw))
		return
	}

	conn, err := app.wallets.ForNetwork(rec.Network)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	tracker := executor.NewTracker(app.store, conn, hash, app.cfg.ConfirmCountdown)
	displayTransaction(rec, tracker)
}

// watchTransaction polls until the record reaches a terminal state. The
// session file is reopened each tick because the confirmation watcher
// updates it from another process.
func watchTransaction(app *app, hash string) {
	rec, ok := app.store.Record(hash)
	if !ok {
		printError(fmt.Errorf("transaction %s not found in this session", hash))
		os.Exit(1)
	}

	conn, err := app.wallets.ForNetwork(rec.Network)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	fmt.Printf("\nWatching transaction %s\n", color.CyanString(hash))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	for {
		store, err := session.NewStore(app.cfg.SessionFile)
		if err == nil {
			if fresh, ok := store.Record(hash); ok {
				rec = fresh
			}
		}
		tracker := executor.NewTracker(app.store, conn, hash, app.cfg.ConfirmCountdown)
		displayTransaction(rec, tracker)

		if rec.Terminal() {
			return
		}
		<-ticker.C
	}
}

func displayTransaction(rec types.TransactionRecord, tracker *executor.ConfirmationTracker) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                       TRANSACTION STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Hash:     %s\n", color.CyanString(rec.Hash))
	fmt.Printf("  Kind:     %s\n", rec.Kind)
	fmt.Printf("  Amount:   %s %s\n", rec.Amount, color.YellowString(rec.TokenSymbol))
	if rec.Kind == types.TxSwap {
		fmt.Printf("  Route:    %s -> %s\n", rec.FromToken, rec.ToToken)
	}
	fmt.Printf("  Network:  %s\n", rec.Network)
	fmt.Printf("  Status:   %s\n", coloredStatus(rec.Status))
	fmt.Printf("  Created:  %s\n", rec.Created.Format("2006-01-02 15:04:05"))

	if !rec.Terminal() {
		if left := tracker.Remaining(time.Now()); left > 0 {
			fmt.Printf("  ETA:      ~%s\n", left.Round(time.Second))
		}
	}
	if url := tracker.ExplorerURL(); url != "" {
		fmt.Printf("  Explorer: %s\n", url)
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
}

func coloredStatus(status types.TxStatus) string {
	switch status {
	case types.TxConfirmed:
		return color.GreenString(strings.ToUpper(string(status)))
	case types.TxPending:
		return color.YellowString(strings.ToUpper(string(status)))
	case types.TxFailed:
		return color.RedString(strings.ToUpper(string(status)))
	default:
		return string(status)
	}
}
