// Package indicator defines the pluggable indicator service port plus a
// built-in TD9-style sequential-count indicator, tracking per-symbol
// detector state across bars.
package indicator

import "github.com/haka-quant/optionengine/instrument"

// Service computes per-bar indicators into the instrument's open indicator
// dictionary. Implementations must be deterministic given the instrument's
// bar history — they read instrument.Bars() and write via
// instrument.SetIndicator, never mutate bars themselves.
type Service interface {
	CalculateBar(inst *instrument.Instrument, bar instrument.Bar)
}

// Bundle lets the strategy engine run several indicator services per bar
// without hardcoding which ones are active — a thin composite.
type Bundle []Service

func (b Bundle) CalculateBar(inst *instrument.Instrument, bar instrument.Bar) {
	for _, svc := range b {
		svc.CalculateBar(inst, bar)
	}
}

// TD9 is a built-in sequential countdown indicator (a simplified TD
// Sequential buy/sell setup counter): it counts consecutive closes lower
// (bearish setup, feeding a future "sell_put" style signal) or higher
// (bullish setup) than the close 4 bars prior, resetting on break.
type TD9 struct {
	Lookback int // classic TD setup compares close[i] to close[i-4]
}

// NewTD9 returns a TD9 indicator with the classic 4-bar lookback.
func NewTD9() *TD9 {
	return &TD9{Lookback: 4}
}

const (
	// IndicatorTD9BuySetup / IndicatorTD9SellSetup are the keys this
	// indicator writes into instrument.Indicators.
	IndicatorTD9BuySetup  = "td9_buy_setup"
	IndicatorTD9SellSetup = "td9_sell_setup"
)

func (t *TD9) CalculateBar(inst *instrument.Instrument, bar instrument.Bar) {
	lookback := t.Lookback
	if lookback <= 0 {
		lookback = 4
	}
	history := inst.BarHistory(lookback + 1)
	if len(history) <= lookback {
		inst.SetIndicator(IndicatorTD9BuySetup, int64(0))
		inst.SetIndicator(IndicatorTD9SellSetup, int64(0))
		return
	}

	reference := history[len(history)-1-lookback]

	prevBuy, _ := inst.IndicatorInt(IndicatorTD9BuySetup)
	prevSell, _ := inst.IndicatorInt(IndicatorTD9SellSetup)

	switch {
	case bar.Close < reference.Close:
		prevBuy++
		prevSell = 0
	case bar.Close > reference.Close:
		prevSell++
		prevBuy = 0
	default:
		prevBuy, prevSell = 0, 0
	}

	if prevBuy > 9 {
		prevBuy = 9
	}
	if prevSell > 9 {
		prevSell = 9
	}

	inst.SetIndicator(IndicatorTD9BuySetup, prevBuy)
	inst.SetIndicator(IndicatorTD9SellSetup, prevSell)
}
