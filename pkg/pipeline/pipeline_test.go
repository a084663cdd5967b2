package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"cashier/pkg/agent"
	"cashier/pkg/notify"
	"cashier/pkg/types"
)

// fakeAgent is a call-counting wallet-agent stub.
type fakeAgent struct {
	mu          sync.Mutex
	configCalls int
	convCalls   int

	cfg     agent.Config
	cfgErr  error
	convert func(q agent.ConversionQuery) (*agent.ConversionResponse, error)
}

func (f *fakeAgent) GetConfig(ctx context.Context, network string) (*agent.Config, error) {
	f.mu.Lock()
	f.configCalls++
	f.mu.Unlock()
	if f.cfgErr != nil {
		return nil, f.cfgErr
	}
	cfg := f.cfg
	return &cfg, nil
}

func (f *fakeAgent) GetTokenConversion(ctx context.Context, q agent.ConversionQuery) (*agent.ConversionResponse, error) {
	f.mu.Lock()
	f.convCalls++
	f.mu.Unlock()
	return f.convert(q)
}

func (f *fakeAgent) conversions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convCalls
}

func quoteOK(toAmount string) func(agent.ConversionQuery) (*agent.ConversionResponse, error) {
	return func(agent.ConversionQuery) (*agent.ConversionResponse, error) {
		resp := &agent.ConversionResponse{Success: true}
		resp.Conversion.ToAmount = toAmount
		return resp, nil
	}
}

var settlement = types.SwapInfo{TokenAddress: "0xsettle", Network: "arbitrum"}

func usdt() *types.Token {
	return &types.Token{Symbol: "USDT", Address: "0xusdt", Network: "arbitrum", ChainID: 42161, Decimals: 6}
}

func weth() *types.Token {
	return &types.Token{Symbol: "WETH", Address: "0xweth", Network: "arbitrum", ChainID: 42161, Decimals: 18}
}

func TestDebouncer_CollapsesKeystrokes(t *testing.T) {
	var mu sync.Mutex
	var emitted []string
	d := NewDebouncer(50*time.Millisecond, func(v string) {
		mu.Lock()
		emitted = append(emitted, v)
		mu.Unlock()
	})
	defer d.Stop()

	d.Set("") // initial mount, emitted immediately
	d.Set("1")
	d.Set("12")
	d.Set("123")

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"", "123"}, emitted)
}

func TestDebouncer_EqualValueDoesNotRestart(t *testing.T) {
	var mu sync.Mutex
	count := 0
	d := NewDebouncer(30*time.Millisecond, func(string) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	defer d.Stop()

	d.Set("5")
	d.Set("5")
	d.Set("5")
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("expected 1 emission for repeated equal values, got %d", count)
	}
}

func TestDebouncer_NoEmitAfterStop(t *testing.T) {
	var mu sync.Mutex
	var emitted []string
	d := NewDebouncer(20*time.Millisecond, func(v string) {
		mu.Lock()
		emitted = append(emitted, v)
		mu.Unlock()
	})

	d.Set("a")
	d.Set("b") // pending when Stop lands
	d.Stop()

	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"a"}, emitted)
}

func TestDebouncer_StopWaitsForRunningEmit(t *testing.T) {
	started := make(chan struct{})
	gate := make(chan struct{})
	d := NewDebouncer(10*time.Millisecond, func(v string) {
		if v == "b" {
			close(started)
			<-gate
		}
	})

	d.Set("a")
	d.Set("b")
	<-started

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while an emission was still running")
	case <-time.After(30 * time.Millisecond):
	}

	close(gate)
	<-stopped
}

func TestDeduplicator(t *testing.T) {
	var d RequestDeduplicator
	if !d.ShouldDispatch("a") {
		t.Error("first key must dispatch")
	}
	if d.ShouldDispatch("a") {
		t.Error("repeated key must not dispatch")
	}
	if !d.ShouldDispatch("b") {
		t.Error("changed key must dispatch")
	}
	d.Reset()
	if !d.ShouldDispatch("b") {
		t.Error("reset must allow the same key again")
	}
}

func TestMinimum_StableShortCircuit(t *testing.T) {
	svc := &fakeAgent{cfg: agent.Config{DepositMin: "10", WithdrawMin: "20", Fee: "1"}}
	svc.convert = quoteOK("999") // must never be consulted
	r := NewMinimumResolver(svc, notify.NewRecorder(), settlement, []string{"USDT", "USDC"})

	min, ok := r.Resolve(context.Background(), usdt(), "arbitrum", "alice", types.TxDeposit)
	require.True(t, ok)
	require.True(t, min.Equal(decimal.RequireFromString("10")), "got %s", min)
	require.Equal(t, 0, svc.conversions(), "stable token must not issue a conversion call")
}

func TestMinimum_NonStableTruncatesToTwoDecimals(t *testing.T) {
	svc := &fakeAgent{cfg: agent.Config{DepositMin: "10", WithdrawMin: "20"}}
	svc.convert = quoteOK("0.0043")
	r := NewMinimumResolver(svc, notify.NewRecorder(), settlement, []string{"USDT"})

	min, ok := r.Resolve(context.Background(), weth(), "arbitrum", "alice", types.TxDeposit)
	require.True(t, ok)
	// Truncation, not rounding: 0.0043 → 0.00
	require.Equal(t, "0", min.String())
	require.True(t, min.Equal(decimal.RequireFromString("0.00")))
	require.Equal(t, 1, svc.conversions())
}

func TestMinimum_WithdrawUsesWithdrawSetting(t *testing.T) {
	svc := &fakeAgent{cfg: agent.Config{DepositMin: "10", WithdrawMin: "25"}}
	svc.convert = quoteOK("999")
	r := NewMinimumResolver(svc, notify.NewRecorder(), settlement, []string{"USDT"})

	min, ok := r.Resolve(context.Background(), usdt(), "arbitrum", "alice", types.TxWithdraw)
	require.True(t, ok)
	require.True(t, min.Equal(decimal.RequireFromString("25")))
}

func TestMinimum_WithdrawAfterDepositIsNotCached(t *testing.T) {
	svc := &fakeAgent{cfg: agent.Config{DepositMin: "10", WithdrawMin: "25"}}
	svc.convert = quoteOK("999")
	r := NewMinimumResolver(svc, notify.NewRecorder(), settlement, []string{"USDT"})

	min, ok := r.Resolve(context.Background(), usdt(), "arbitrum", "alice", types.TxDeposit)
	require.True(t, ok)
	require.True(t, min.Equal(decimal.RequireFromString("10")))

	// Same token, same identity: the withdraw setting must still be
	// fetched, not served from the deposit resolution.
	min, ok = r.Resolve(context.Background(), usdt(), "arbitrum", "alice", types.TxWithdraw)
	require.True(t, ok)
	require.True(t, min.Equal(decimal.RequireFromString("25")), "got %s", min)
	require.Equal(t, 2, svc.configCalls)
}

func TestMinimum_ExposesFeeSetting(t *testing.T) {
	svc := &fakeAgent{cfg: agent.Config{WithdrawMin: "25", Fee: "1.5"}}
	svc.convert = quoteOK("999")
	r := NewMinimumResolver(svc, notify.NewRecorder(), settlement, []string{"USDT"})

	_, hasFee := r.FeePercent()
	require.False(t, hasFee, "no fee before the first config fetch")

	_, ok := r.Resolve(context.Background(), usdt(), "arbitrum", "alice", types.TxWithdraw)
	require.True(t, ok)

	// The fee rides along with the config fetch, so callers that need
	// both the minimum and the fee make a single request.
	fee, hasFee := r.FeePercent()
	require.True(t, hasFee)
	require.True(t, fee.Equal(decimal.RequireFromString("1.5")), "got %s", fee)
	require.Equal(t, 1, svc.configCalls)
}

func TestMinimum_SkipsOnIncompleteInputs(t *testing.T) {
	svc := &fakeAgent{cfg: agent.Config{DepositMin: "10"}}
	svc.convert = quoteOK("1")
	r := NewMinimumResolver(svc, notify.NewRecorder(), settlement, nil)

	_, ok := r.Resolve(context.Background(), nil, "arbitrum", "alice", types.TxDeposit)
	require.False(t, ok)
	_, ok = r.Resolve(context.Background(), usdt(), "", "alice", types.TxDeposit)
	require.False(t, ok)
	_, ok = r.Resolve(context.Background(), usdt(), "arbitrum", "", types.TxDeposit)
	require.False(t, ok)

	require.Equal(t, 0, svc.configCalls, "incomplete inputs must not reach the network")
	require.False(t, r.Loading())
}

func TestMinimum_Deduplicates(t *testing.T) {
	svc := &fakeAgent{cfg: agent.Config{DepositMin: "10"}}
	svc.convert = quoteOK("1")
	r := NewMinimumResolver(svc, notify.NewRecorder(), settlement, []string{"USDT"})

	r.Resolve(context.Background(), usdt(), "arbitrum", "alice", types.TxDeposit)
	r.Resolve(context.Background(), usdt(), "arbitrum", "alice", types.TxDeposit)
	require.Equal(t, 1, svc.configCalls, "identical inputs must issue exactly one fetch")

	// A different token is a new key.
	r.Resolve(context.Background(), weth(), "arbitrum", "alice", types.TxDeposit)
	require.Equal(t, 2, svc.configCalls)
}

func TestMinimum_FailureRetainsPreviousValue(t *testing.T) {
	svc := &fakeAgent{cfg: agent.Config{DepositMin: "10"}}
	svc.convert = quoteOK("1")
	rec := notify.NewRecorder()
	r := NewMinimumResolver(svc, rec, settlement, []string{"USDT"})

	min, ok := r.Resolve(context.Background(), usdt(), "arbitrum", "alice", types.TxDeposit)
	require.True(t, ok)
	require.True(t, min.Equal(decimal.RequireFromString("10")))

	svc.cfgErr = errors.New("agent down")
	min, ok = r.Resolve(context.Background(), weth(), "arbitrum", "alice", types.TxDeposit)
	require.True(t, ok, "previous value must survive a failed refresh")
	require.True(t, min.Equal(decimal.RequireFromString("10")))
	require.Equal(t, 1, rec.Count("warn"))
	require.Equal(t, StateFailed, r.CurrentState())
	require.False(t, r.Loading())

	// The failed key must be retryable without an input change.
	svc.cfgErr = nil
	before := svc.configCalls
	r.Resolve(context.Background(), weth(), "arbitrum", "alice", types.TxDeposit)
	require.Equal(t, before+1, svc.configCalls)
}

func TestConvert_ZeroAmountShortCircuit(t *testing.T) {
	svc := &fakeAgent{}
	svc.convert = quoteOK("1")
	e := NewConversionEngine(svc, notify.NewRecorder(), settlement, []string{"USDT"})

	for _, amt := range []string{"", "0", "0.00"} {
		res := e.Convert(context.Background(), weth(), usdt(), amt, "arbitrum", "alice")
		require.True(t, res.Success)
		require.True(t, res.ToAmount.IsZero())
	}
	require.Equal(t, 0, svc.conversions())
}

func TestConvert_PeggedPairIsIdentity(t *testing.T) {
	svc := &fakeAgent{}
	svc.convert = quoteOK("999")
	e := NewConversionEngine(svc, notify.NewRecorder(), settlement, []string{"USDT"})

	settle := &types.Token{Symbol: "HUSD", Address: "0xsettle", Network: "arbitrum", ChainID: 42161}
	res := e.Convert(context.Background(), usdt(), settle, "55.5", "arbitrum", "alice")
	require.True(t, res.Success)
	require.True(t, res.ToAmount.Equal(decimal.RequireFromString("55.5")))
	require.Equal(t, 0, svc.conversions(), "pegged pair must not issue a network call")

	// Reverse direction too.
	res = e.Convert(context.Background(), settle, usdt(), "7", "arbitrum", "alice")
	require.True(t, res.ToAmount.Equal(decimal.RequireFromString("7")))
	require.Equal(t, 0, svc.conversions())
}

func TestConvert_LiveQuote(t *testing.T) {
	svc := &fakeAgent{}
	svc.convert = quoteOK("3421.77")
	e := NewConversionEngine(svc, notify.NewRecorder(), settlement, []string{"USDT"})

	res := e.Convert(context.Background(), weth(), usdt(), "1", "arbitrum", "alice")
	require.True(t, res.Success)
	require.True(t, res.ToAmount.Equal(decimal.RequireFromString("3421.77")))
}

func TestConvert_Deduplicates(t *testing.T) {
	svc := &fakeAgent{}
	svc.convert = quoteOK("3421.77")
	e := NewConversionEngine(svc, notify.NewRecorder(), settlement, []string{"USDT"})

	e.Convert(context.Background(), weth(), usdt(), "1", "arbitrum", "alice")
	e.Convert(context.Background(), weth(), usdt(), "1", "arbitrum", "alice")
	require.Equal(t, 1, svc.conversions())

	e.Convert(context.Background(), weth(), usdt(), "2", "arbitrum", "alice")
	require.Equal(t, 2, svc.conversions())
}

func TestConvert_FailureCollapsesToZero(t *testing.T) {
	svc := &fakeAgent{}
	svc.convert = func(agent.ConversionQuery) (*agent.ConversionResponse, error) {
		return nil, errors.New("quote service down")
	}
	rec := notify.NewRecorder()
	e := NewConversionEngine(svc, rec, settlement, []string{"USDT"})

	res := e.Convert(context.Background(), weth(), usdt(), "1", "arbitrum", "alice")
	require.False(t, res.Success)
	require.True(t, res.ToAmount.IsZero(), "failure must never show a non-zero figure")
	require.Equal(t, 1, rec.Count("warn"))
}

func TestConvert_StaleResponseDiscarded(t *testing.T) {
	// A quote for the first network resolves after the user has already
	// switched networks; the displayed value must belong to the second.
	release := make(chan struct{})
	svc := &fakeAgent{}
	svc.convert = func(q agent.ConversionQuery) (*agent.ConversionResponse, error) {
		resp := &agent.ConversionResponse{Success: true}
		if q.Network == "arbitrum" {
			<-release
			resp.Conversion.ToAmount = "1111"
			return resp, nil
		}
		resp.Conversion.ToAmount = "2222"
		return resp, nil
	}
	e := NewConversionEngine(svc, notify.NewRecorder(), settlement, []string{"USDT"})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.Convert(context.Background(), weth(), usdt(), "1", "arbitrum", "alice")
	}()

	// Let the first request reach the service before switching.
	for svc.conversions() == 0 {
		time.Sleep(time.Millisecond)
	}

	res := e.Convert(context.Background(), weth(), usdt(), "1", "base", "alice")
	require.True(t, res.ToAmount.Equal(decimal.RequireFromString("2222")))

	close(release)
	wg.Wait()

	last := e.Last()
	require.True(t, last.ToAmount.Equal(decimal.RequireFromString("2222")),
		"stale arbitrum quote overwrote the base quote: %s", last.ToAmount)
}
