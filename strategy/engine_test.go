package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haka-quant/optionengine/eventbus"
	"github.com/haka-quant/optionengine/executor"
	"github.com/haka-quant/optionengine/gateway"
	"github.com/haka-quant/optionengine/greeks"
	"github.com/haka-quant/optionengine/indicator"
	"github.com/haka-quant/optionengine/instrument"
	"github.com/haka-quant/optionengine/position"
	"github.com/haka-quant/optionengine/risk"
	"github.com/haka-quant/optionengine/scheduler"
	"github.com/haka-quant/optionengine/sizing"
)

// fakePort is a minimal gateway.Port stub: it records sent orders and
// returns a deterministic order id, never touching a real broker.
type fakePort struct {
	sent []gateway.OrderInstruction
}

func (f *fakePort) Subscribe(string) error   { return nil }
func (f *fakePort) Unsubscribe(string) error { return nil }

func (f *fakePort) SendOrder(instruction gateway.OrderInstruction) ([]string, error) {
	f.sent = append(f.sent, instruction)
	return []string{"order-1"}, nil
}
func (f *fakePort) CancelOrder(string) error    { return nil }
func (f *fakePort) CancelAllOrders() error      { return nil }
func (f *fakePort) ConvertOrderRequest(req gateway.OrderRequest) []gateway.OrderRequest {
	return []gateway.OrderRequest{req}
}

func (f *fakePort) GetTick(string) (gateway.Tick, bool)         { return gateway.Tick{}, false }
func (f *fakePort) GetContract(string) (gateway.Contract, bool) { return gateway.Contract{}, false }
func (f *fakePort) GetAllContracts() []gateway.Contract         { return nil }
func (f *fakePort) GetContractsByProduct(string) []gateway.Contract  { return nil }
func (f *fakePort) GetContractsByExchange(string) []gateway.Contract { return nil }

func (f *fakePort) GetBalance() (gateway.AccountBalance, bool) { return gateway.AccountBalance{}, false }
func (f *fakePort) GetPosition(string, gateway.Direction) (gateway.PositionReport, bool) {
	return gateway.PositionReport{}, false
}
func (f *fakePort) GetAllPositions() []gateway.PositionReport { return nil }

func (f *fakePort) SendQuote(gateway.QuoteRequest) (string, error) { return "", nil }
func (f *fakePort) CancelQuote(string) error                       { return nil }

func (f *fakePort) QueryHistory(string, string, time.Time, time.Time) ([]gateway.HistoryBar, error) {
	return nil, nil
}

func (f *fakePort) OnOrder(func(gateway.OrderUpdate))     {}
func (f *fakePort) OnTrade(func(gateway.TradeEvent))      {}
func (f *fakePort) OnPosition(func(gateway.PositionReport)) {}
func (f *fakePort) OnAccount(func(gateway.AccountUpdate)) {}

func (f *fakePort) Connected() bool { return true }

// scriptedSignal fires an open signal once when armed and never fires a
// close signal, so tests can deterministically drive checkOpens.
type scriptedSignal struct {
	openSignal string
	fired      bool
}

func (s *scriptedSignal) CheckOpenSignal(inst *instrument.Instrument) (string, bool) {
	if s.fired || s.openSignal == "" {
		return "", false
	}
	s.fired = true
	return s.openSignal, true
}

func (s *scriptedSignal) CheckCloseSignal(*instrument.Instrument, *position.Position) (string, bool) {
	return "", false
}

func newTestEngine(t *testing.T, sig *scriptedSignal, port *fakePort) *Engine {
	t.Helper()

	cfg := Config{
		StrategyName:       "test-strategy",
		RolloverHour:       14,
		RolloverMinute:     50,
		MinDaysToExpiry:    1,
		MaxDaysToExpiry:    60,
		DefaultOTMLevel:    1,
		DefaultOpenVolume:  1,
		ContractMultiplier: 10,
		SizingConfig: sizing.Config{
			PerSymbolDailyCap:      10,
			GlobalDailyCap:         10,
			MaxConcurrentPositions: 10,
			PositionRatio:          0,
		},
		OrderTimeout: time.Minute,
		MaxRetries:   1,
	}

	services := ServiceBundle{
		Indicator: indicator.Bundle{},
		Signal:    sig,
		Sizer:     sizing.New(cfg.SizingConfig),
	}

	instruments := instrument.NewAggregate(100)
	positions := position.NewAggregate(true)
	riskAgg := risk.NewAggregator(risk.Thresholds{}, risk.Thresholds{})
	exec := executor.New()
	sched := scheduler.New(1)
	bus := eventbus.New()

	return New(
		cfg, services, instruments, positions, riskAgg, exec, sched, bus, port, nil,
		nil, nil,
		func() sizing.AccountSnapshot { return sizing.AccountSnapshot{Balance: 1_000_000, FreeMargin: 1_000_000} },
	)
}

func TestProcessWindowBarOpensFutureOnSignal(t *testing.T) {
	port := &fakePort{}
	sig := &scriptedSignal{openSignal: "sell_put_divergence_td9"}
	eng := newTestEngine(t, sig, port)

	now := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	bars := map[string]instrument.Bar{
		"IF2408.CFFEX": {DateTime: now, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10},
	}

	eng.ProcessWindowBar(bars, now)

	require.Len(t, port.sent, 1)
	require.Equal(t, "IF2408.CFFEX", port.sent[0].VtSymbol)
	require.Equal(t, gateway.OffsetOpen, port.sent[0].Offset)
	require.Equal(t, 1, eng.OpenPositionCount())
}

func TestProcessWindowBarSkipsOpensWhenPortfolioRiskBreached(t *testing.T) {
	port := &fakePort{}
	sig := &scriptedSignal{openSignal: "sell_put_divergence_td9"}
	eng := newTestEngine(t, sig, port)
	eng.cfg.BlockOpensOnRiskBreach = true

	// Hold an open position whose cached Greeks exceed the portfolio delta
	// limit, so refreshPortfolioRisk keeps the breach latched for this bar.
	eng.riskAgg = risk.NewAggregator(risk.Thresholds{}, risk.Thresholds{Delta: 1})
	eng.positions.CreatePosition("dummy-pos", &position.Position{VtSymbol: "dummy", Volume: 1})
	eng.posGreeks["dummy"] = risk.PositionGreeks{VtSymbol: "dummy", Greeks: greeks.Greeks{Delta: 5}}
	eng.riskAgg.AggregatePortfolioGreeks(eng.positionGreeksSnapshot())
	require.True(t, eng.riskAgg.IsPortfolioBreached())

	now := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	bars := map[string]instrument.Bar{
		"IF2408.CFFEX": {DateTime: now, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10},
	}

	eng.ProcessWindowBar(bars, now)

	require.Empty(t, port.sent, "no orders should be sent while the portfolio risk breach is active")
	require.False(t, sig.fired, "checkOpens must not even consult the signal service once blocked")
}

func TestOpenFutureRejectsZeroSizedVolume(t *testing.T) {
	port := &fakePort{}
	sig := &scriptedSignal{}
	eng := newTestEngine(t, sig, port)
	eng.cfg.SizingConfig.GlobalDailyCap = 0
	eng.services.Sizer = sizing.New(eng.cfg.SizingConfig)

	eng.openFuture("IF2408.CFFEX", "sell_put_divergence_td9", time.Now())

	require.Empty(t, port.sent)
	require.Equal(t, 0, eng.OpenPositionCount())
}

func TestProcessWindowBarRoutesToFutureWhenSignalToOptionTypeUnset(t *testing.T) {
	port := &fakePort{}
	sig := &scriptedSignal{openSignal: "sell_put_divergence_td9"}
	eng := newTestEngine(t, sig, port)
	eng.services.SignalToOptionType = nil

	now := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	bars := map[string]instrument.Bar{
		"IF2408.CFFEX": {DateTime: now, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10},
	}

	eng.ProcessWindowBar(bars, now)

	require.Len(t, port.sent, 1)
	require.Equal(t, gateway.OrderTypeMarket, port.sent[0].OrderType, "no SignalToOptionType falls back to the future open path")
}
