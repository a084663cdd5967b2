package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"cashier/pkg/agent"
	"cashier/pkg/amount"
	"cashier/pkg/notify"
	"cashier/pkg/types"
)

// ConversionEngine converts an input amount between two tokens with a
// live quote. It powers the USD-equivalent display on deposit and the
// fee/payout arithmetic on withdraw.
//
// Stable-pegged ↔ settlement pairs short-circuit 1:1 so the common
// stablecoin case costs no network round trip. Failures collapse to a
// zero result: a zero display undersells, a stale figure lies.
type ConversionEngine struct {
	svc        agent.Service
	notifier   notify.Notifier
	settlement types.SwapInfo
	stable     map[string]struct{}
	dedup      RequestDeduplicator

	mu         sync.Mutex
	state      State
	currentKey string
	last       types.ConversionResult
	loading    bool
}

// NewConversionEngine wires a conversion engine against the
// wallet-agent service.
func NewConversionEngine(svc agent.Service, notifier notify.Notifier, settlement types.SwapInfo, stableSymbols []string) *ConversionEngine {
	stable := make(map[string]struct{}, len(stableSymbols))
	for _, s := range stableSymbols {
		stable[strings.ToUpper(s)] = struct{}{}
	}
	return &ConversionEngine{
		svc:        svc,
		notifier:   notifier,
		settlement: settlement,
		stable:     stable,
		state:      StateIdle,
	}
}

// Convert resolves how much of to an amt of from buys. amt is a
// sanitized decimal string.
func (e *ConversionEngine) Convert(ctx context.Context, from, to *types.Token, amt, network, identity string) types.ConversionResult {
	in := amount.Parse(amt)
	if from == nil || to == nil || network == "" || identity == "" || !in.IsPositive() {
		return types.ConversionResult{ToAmount: decimal.Zero, Success: true}
	}

	if e.pegged(from, to) {
		return types.ConversionResult{ToAmount: in, Success: true}
	}

	key := types.CalculationRequest{
		Network:   network,
		FromToken: from.Address,
		ToToken:   to.Address,
		Amount:    in.String(),
		Identity:  identity,
	}.Key()

	if !e.dedup.ShouldDispatch(key) {
		return e.Last()
	}

	e.mu.Lock()
	e.state = StateResolving
	e.currentKey = key
	e.loading = true
	e.mu.Unlock()

	resp, err := e.svc.GetTokenConversion(ctx, agent.ConversionQuery{
		Network:   network,
		FromToken: from.Address,
		ToToken:   to.Address,
		Amount:    in.String(),
		Identity:  identity,
	})
	if err != nil {
		return e.fail(key, "conversion fetch failed: "+err.Error())
	}
	if !resp.Success {
		return e.fail(key, "conversion rejected")
	}

	out, err := decimal.NewFromString(resp.Conversion.ToAmount)
	if err != nil {
		return e.fail(key, "bad conversion amount "+resp.Conversion.ToAmount)
	}

	return e.apply(key, types.ConversionResult{ToAmount: out, Success: true})
}

// Last returns the most recently committed result.
func (e *ConversionEngine) Last() types.ConversionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Loading reports whether a quote is in flight.
func (e *ConversionEngine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// CurrentState exposes the machine phase.
func (e *ConversionEngine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// pegged reports whether the pair is a stable token against the
// settlement asset in either direction, which is assumed 1:1.
func (e *ConversionEngine) pegged(from, to *types.Token) bool {
	return (e.isStable(from) && e.isSettlement(to)) || (e.isSettlement(from) && e.isStable(to))
}

func (e *ConversionEngine) isStable(token *types.Token) bool {
	if token.HasTag("stable") {
		return true
	}
	_, ok := e.stable[strings.ToUpper(token.Symbol)]
	return ok
}

func (e *ConversionEngine) isSettlement(token *types.Token) bool {
	return strings.EqualFold(token.Address, e.settlement.TokenAddress)
}

func (e *ConversionEngine) apply(key string, res types.ConversionResult) types.ConversionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentKey != key {
		return e.last
	}
	e.last = res
	e.state = StateResolved
	e.loading = false
	return res
}

func (e *ConversionEngine) fail(key, reason string) types.ConversionResult {
	zero := types.ZeroConversion(reason)

	e.mu.Lock()
	if e.currentKey == key {
		e.last = zero
		e.state = StateFailed
		e.loading = false
	}
	out := e.last
	e.mu.Unlock()

	e.dedup.Reset()
	e.notifier.Warn("Conversion unavailable: %s", reason)
	return out
}
