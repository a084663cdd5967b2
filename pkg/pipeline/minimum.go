package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"cashier/pkg/agent"
	"cashier/pkg/notify"
	"cashier/pkg/types"
)

// State names the phases of a calculation machine.
type State string

const (
	StateIdle      State = "idle"
	StateResolving State = "resolving"
	StateResolved  State = "resolved"
	StateFailed    State = "failed"
)

// MinimumResolver determines the minimum transactable amount for the
// selected token/network pair. Stable-pegged tokens take the raw USD
// minimum directly; every other token needs one conversion round trip
// against the settlement asset.
//
// The machine is Idle → Resolving → Resolved/Failed, discriminated by
// the dedup key. A response whose originating key is no longer current
// is discarded, so a superseded token switch can never write into the
// newly selected token's minimum.
type MinimumResolver struct {
	svc        agent.Service
	notifier   notify.Notifier
	settlement types.SwapInfo
	stable     map[string]struct{}
	dedup      RequestDeduplicator

	mu         sync.Mutex
	state      State
	currentKey string
	value      decimal.Decimal
	hasValue   bool
	fee        decimal.Decimal
	hasFee     bool
	loading    bool
}

// NewMinimumResolver wires a resolver against the wallet-agent service.
// stableSymbols are the tokens assumed to trade 1:1 with USD.
func NewMinimumResolver(svc agent.Service, notifier notify.Notifier, settlement types.SwapInfo, stableSymbols []string) *MinimumResolver {
	stable := make(map[string]struct{}, len(stableSymbols))
	for _, s := range stableSymbols {
		stable[strings.ToUpper(s)] = struct{}{}
	}
	return &MinimumResolver{
		svc:        svc,
		notifier:   notifier,
		settlement: settlement,
		stable:     stable,
		state:      StateIdle,
	}
}

// Resolve recomputes the minimum for the given inputs. kind selects the
// deposit or withdraw setting. The boolean is false when no minimum is
// available (incomplete inputs, or nothing resolved yet).
//
// With any input absent, resolution is skipped outright: no network
// call, loading stays false.
func (r *MinimumResolver) Resolve(ctx context.Context, token *types.Token, network, identity string, kind types.TxKind) (decimal.Decimal, bool) {
	if token == nil || network == "" || identity == "" {
		return decimal.Zero, false
	}

	// The deposit and withdraw settings differ, so the kind is part of
	// the key: a withdraw resolution must never be served a deposit
	// minimum out of the dedup cache.
	key := string(kind) + "|" + types.CalculationRequest{
		Network:   network,
		FromToken: r.settlement.TokenAddress,
		ToToken:   fmt.Sprintf("%s@%d", token.Address, token.ChainID),
		Identity:  identity,
	}.Key()

	if !r.dedup.ShouldDispatch(key) {
		return r.Value()
	}

	r.mu.Lock()
	r.state = StateResolving
	r.currentKey = key
	r.loading = true
	r.mu.Unlock()

	usdMin, err := r.fetchUSDMinimum(ctx, network, kind)
	if err != nil {
		return r.fail(key, err)
	}

	if r.isStable(token) {
		// The USD minimum is the token minimum for pegged assets.
		return r.apply(key, usdMin)
	}

	resp, err := r.svc.GetTokenConversion(ctx, agent.ConversionQuery{
		Network:   network,
		FromToken: r.settlement.TokenAddress,
		ToToken:   token.Address,
		Amount:    usdMin.String(),
		Identity:  identity,
	})
	if err != nil {
		return r.fail(key, err)
	}
	if !resp.Success {
		return r.fail(key, fmt.Errorf("conversion rejected for %s", token.Symbol))
	}

	converted, err := decimal.NewFromString(resp.Conversion.ToAmount)
	if err != nil {
		return r.fail(key, fmt.Errorf("bad conversion amount %q: %w", resp.Conversion.ToAmount, err))
	}

	// Financial display convention: truncate, never round up a minimum.
	return r.apply(key, converted.Truncate(2))
}

// Value returns the last resolved minimum, if any.
func (r *MinimumResolver) Value() (decimal.Decimal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, r.hasValue
}

// FeePercent returns the fee setting captured by the last successful
// config fetch, so a withdraw flow that already resolved its minimum
// does not fetch the config a second time.
func (r *MinimumResolver) FeePercent() (decimal.Decimal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fee, r.hasFee
}

// Loading reports whether a resolution is in flight, so callers can
// disable submission while the minimum is unsettled.
func (r *MinimumResolver) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// CurrentState exposes the machine phase.
func (r *MinimumResolver) CurrentState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *MinimumResolver) isStable(token *types.Token) bool {
	if token.HasTag("stable") {
		return true
	}
	_, ok := r.stable[strings.ToUpper(token.Symbol)]
	return ok
}

func (r *MinimumResolver) fetchUSDMinimum(ctx context.Context, network string, kind types.TxKind) (decimal.Decimal, error) {
	cfg, err := r.svc.GetConfig(ctx, network)
	if err != nil {
		return decimal.Zero, err
	}

	if fee, err := decimal.NewFromString(cfg.Fee); err == nil {
		r.mu.Lock()
		r.fee = fee
		r.hasFee = true
		r.mu.Unlock()
	}

	raw := cfg.DepositMin
	if kind == types.TxWithdraw {
		raw = cfg.WithdrawMin
	}
	min, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad minimum setting %q: %w", raw, err)
	}
	return min, nil
}

// apply commits a resolved value unless the key has been superseded
// while the request was in flight.
func (r *MinimumResolver) apply(key string, v decimal.Decimal) (decimal.Decimal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentKey != key {
		// Stale response: a newer key owns the state now.
		return r.value, r.hasValue
	}
	r.value = v
	r.hasValue = true
	r.state = StateResolved
	r.loading = false
	return r.value, true
}

// fail surfaces a warning and leaves the previous value untouched. The
// dedup key is cleared so the next accepted request retries.
func (r *MinimumResolver) fail(key string, err error) (decimal.Decimal, bool) {
	r.mu.Lock()
	if r.currentKey == key {
		r.state = StateFailed
		r.loading = false
	}
	v, ok := r.value, r.hasValue
	r.mu.Unlock()

	r.dedup.Reset()
	r.notifier.Warn("Could not refresh the minimum amount: %v", err)
	return v, ok
}
