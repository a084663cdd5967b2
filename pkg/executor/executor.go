// Package executor validates, submits and records transactions. One
// executor instance drives one flow; deposit, withdraw and swap share
// the same shape with a Kind discriminant.
package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cashier/pkg/agent"
	"cashier/pkg/amount"
	"cashier/pkg/notify"
	"cashier/pkg/session"
	"cashier/pkg/types"
	"cashier/pkg/wallet"
)

// State is the executor's lifecycle position. It never moves backwards
// except through Reset.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateSubmitting State = "submitting"
	StatePending    State = "pending"
)

// DefaultSettleDelay is how long to wait after broadcast before
// refreshing balances. Injectable for tests.
const DefaultSettleDelay = 3 * time.Second

// Request describes one transaction to run.
type Request struct {
	Kind    types.TxKind
	Network string
	From    *types.Token
	To      *types.Token // swap destination, nil otherwise
	Amount  string
	// Slippage is a percent string; "Auto" (or empty) maps to 1%.
	Slippage string
	Identity string
	// DepositAddress is the house account that receives deposits.
	DepositAddress string
}

// Result is the structured outcome of Execute. Err carries the failure
// reason; callers surface it, they never need to unwrap anything.
type Result struct {
	Success bool
	TxHash  string
	Err     string
}

// Completed snapshots the submitted transaction so it can be shown
// after the input form resets.
type Completed struct {
	Kind       types.TxKind
	Hash       string
	Amount     string
	FromSymbol string
	ToSymbol   string
	Fee        decimal.Decimal
	Payout     decimal.Decimal
}

// Options wires the executor's collaborators.
type Options struct {
	Connector wallet.Connector
	Payer     agent.Payer // withdraw payouts; nil for deposit/swap executors
	Store     *session.Store
	Notifier  notify.Notifier
	// FeePercent applies to withdrawals, e.g. 1 for 1%.
	FeePercent  decimal.Decimal
	SettleDelay time.Duration
	OnComplete  func(Result)
}

// TransactionExecutor runs one transaction at a time. A second Execute
// while one is in flight fails immediately without touching the
// connector.
type TransactionExecutor struct {
	connector   wallet.Connector
	payer       agent.Payer
	store       *session.Store
	notifier    notify.Notifier
	feePercent  decimal.Decimal
	settleDelay time.Duration
	onComplete  func(Result)

	mu        sync.Mutex
	state     State
	inFlight  bool
	completed *Completed
}

// New creates an executor in the idle state.
func New(opts Options) *TransactionExecutor {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewConsole()
	}
	return &TransactionExecutor{
		connector:   opts.Connector,
		payer:       opts.Payer,
		store:       opts.Store,
		notifier:    opts.Notifier,
		feePercent:  opts.FeePercent,
		settleDelay: opts.SettleDelay,
		onComplete:  opts.OnComplete,
		state:       StateIdle,
	}
}

// State returns the current lifecycle position.
func (e *TransactionExecutor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Completed returns the snapshot of the last submitted transaction.
func (e *TransactionExecutor) Completed() (Completed, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.completed == nil {
		return Completed{}, false
	}
	return *e.completed, true
}

// Validate checks a request without submitting it. Fails closed.
func (e *TransactionExecutor) Validate(r Request) error {
	if r.From == nil {
		return fmt.Errorf("no token selected")
	}
	if r.Kind == types.TxSwap && r.To == nil {
		return fmt.Errorf("no destination token selected")
	}
	amt := amount.Parse(r.Amount)
	if !amt.IsPositive() {
		return fmt.Errorf("amount must be greater than zero")
	}
	if amt.GreaterThan(r.From.Balance) {
		return fmt.Errorf("amount exceeds available balance of %s %s", r.From.Balance.String(), r.From.Symbol)
	}
	if r.Kind == types.TxSwap && r.From.SameAs(r.To) {
		return fmt.Errorf("source and destination token are the same")
	}
	return nil
}

// FeeSplit returns the withdrawal fee and payout for an amount at the
// configured fee percent. Amounts pass through unchanged for other
// kinds.
func (e *TransactionExecutor) FeeSplit(amt string) (fee, payout decimal.Decimal) {
	total := amount.Parse(amt)
	fee = total.Mul(e.feePercent).Div(decimal.NewFromInt(100))
	payout = total.Sub(fee)
	return fee, payout
}

// Execute re-validates the request, submits it through the connector
// (or the custodial payer for withdrawals) and records the pending
// transaction. It blocks through the settle delay so the balance
// refresh fires before it returns.
func (e *TransactionExecutor) Execute(ctx context.Context, r Request) Result {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return Result{Err: "a transaction is already in progress"}
	}
	e.inFlight = true
	e.state = StateValidating
	e.mu.Unlock()

	if err := e.Validate(r); err != nil {
		e.abort()
		return Result{Err: err.Error()}
	}

	address, err := e.connector.Address()
	if err != nil || address == "" {
		e.abort()
		return Result{Err: "no wallet connected: connect a wallet before submitting"}
	}

	e.setState(StateSubmitting)

	var res Result
	switch r.Kind {
	case types.TxSwap:
		res = e.submitSwap(ctx, r, address)
	case types.TxDeposit:
		res = e.submitDeposit(ctx, r)
	case types.TxWithdraw:
		res = e.submitWithdraw(ctx, r, address)
	default:
		res = Result{Err: fmt.Sprintf("unknown transaction kind %q", r.Kind)}
	}

	if !res.Success {
		e.notifier.Error("Transaction failed: %s", res.Err)
		e.abort()
		return res
	}

	rec := types.TransactionRecord{
		Hash:        res.TxHash,
		Kind:        r.Kind,
		Amount:      r.Amount,
		TokenSymbol: r.From.Symbol,
		Network:     r.Network,
		Status:      types.TxPending,
	}
	snapshot := Completed{
		Kind:       r.Kind,
		Hash:       res.TxHash,
		Amount:     r.Amount,
		FromSymbol: r.From.Symbol,
	}
	if r.Kind == types.TxSwap {
		rec.FromToken = r.From.Symbol
		rec.ToToken = r.To.Symbol
		snapshot.ToSymbol = r.To.Symbol
	}
	if r.Kind == types.TxWithdraw {
		snapshot.Fee, snapshot.Payout = e.FeeSplit(r.Amount)
	}

	if e.store != nil {
		if _, err := e.store.Append(rec); err != nil {
			e.notifier.Warn("Could not record the transaction locally: %v", err)
		}
	}

	e.mu.Lock()
	e.completed = &snapshot
	e.state = StatePending
	e.mu.Unlock()

	e.settle(ctx)
	if e.onComplete != nil {
		e.onComplete(res)
	}
	return res
}

func (e *TransactionExecutor) submitSwap(ctx context.Context, r Request, address string) Result {
	slippage := decimal.NewFromInt(1)
	if s := strings.TrimSpace(r.Slippage); s != "" && !strings.EqualFold(s, "auto") {
		parsed, err := decimal.NewFromString(s)
		if err != nil || !parsed.IsPositive() {
			return Result{Err: fmt.Sprintf("invalid slippage %q", r.Slippage)}
		}
		slippage = parsed
	}

	out := e.connector.ExecuteSwap(ctx, wallet.SwapParams{
		Network:           r.Network,
		FromTokenAddress:  r.From.Address,
		ToTokenAddress:    r.To.Address,
		FromTokenDecimals: r.From.Decimals,
		Amount:            r.Amount,
		WalletAddress:     address,
		SlippagePercent:   slippage,
	})
	if !out.Success {
		return Result{Err: out.Err}
	}
	return Result{Success: true, TxHash: out.TxHash}
}

func (e *TransactionExecutor) submitDeposit(ctx context.Context, r Request) Result {
	if r.DepositAddress == "" {
		return Result{Err: "no deposit address configured for " + r.Network}
	}
	hash, err := e.connector.Transfer(ctx, wallet.TransferParams{
		TokenAddress: r.From.Address,
		Decimals:     r.From.Decimals,
		To:           r.DepositAddress,
		Amount:       r.Amount,
	})
	if err != nil {
		return Result{Err: err.Error()}
	}
	return Result{Success: true, TxHash: hash}
}

func (e *TransactionExecutor) submitWithdraw(ctx context.Context, r Request, address string) Result {
	if e.payer == nil {
		return Result{Err: "withdrawals are not available: no payout service configured"}
	}
	fee, payout := e.FeeSplit(r.Amount)
	resp, err := e.payer.RequestWithdrawal(ctx, agent.WithdrawalRequest{
		Network:      r.Network,
		TokenAddress: r.From.Address,
		Amount:       r.Amount,
		Fee:          fee.String(),
		Payout:       payout.String(),
		ToAddress:    address,
		Identity:     r.Identity,
	})
	if err != nil {
		return Result{Err: err.Error()}
	}
	if !resp.Success {
		return Result{Err: resp.Error}
	}
	return Result{Success: true, TxHash: resp.TxHash}
}

// settle waits out the configured delay, then triggers the balance
// refetch. Context cancellation skips the remaining wait but still
// refreshes.
func (e *TransactionExecutor) settle(ctx context.Context) {
	timer := time.NewTimer(e.settleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	if e.store != nil {
		e.store.RequestBalanceRefresh()
	}
}

func (e *TransactionExecutor) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// abort clears the in-flight flags after a failure. The caller's form
// input is untouched so the request can be corrected and resubmitted.
func (e *TransactionExecutor) abort() {
	e.mu.Lock()
	e.inFlight = false
	e.state = StateIdle
	e.mu.Unlock()
}

// Reset returns the executor to idle after a completed transaction,
// clearing the completed snapshot.
func (e *TransactionExecutor) Reset() {
	e.mu.Lock()
	e.inFlight = false
	e.state = StateIdle
	e.completed = nil
	e.mu.Unlock()
}
