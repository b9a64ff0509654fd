// Package signal defines the pluggable signal service port plus a
// divergence/TD9-based built-in, tracking per-symbol detector state
// across bars. Signals are open-vocabulary strings: the core neither
// parses nor validates them, only tags positions and events with them.
package signal

import (
	"github.com/haka-quant/optionengine/indicator"
	"github.com/haka-quant/optionengine/instrument"
	"github.com/haka-quant/optionengine/position"
)

// Service is the open-signal port. CheckOpenSignal returns ("", false) when
// nothing fires. CheckCloseSignal is evaluated per owning position, so the
// same instrument can emit different close signals for different positions
// (e.g. a stop on one leg, a take-profit on another).
type Service interface {
	CheckOpenSignal(inst *instrument.Instrument) (string, bool)
	CheckCloseSignal(inst *instrument.Instrument, pos *position.Position) (string, bool)
}

// DivergenceTD9 fires an open signal when TD9 setups reach their terminal
// count (9) and closes when the setup that produced the position's signal
// resets to zero on the opposite side — i.e. the divergence that opened the
// trade has unwound.
type DivergenceTD9 struct {
	// MinSetupCount is the TD9 count required to fire an open signal.
	// Defaults to 9 (the classic TD Sequential completion count).
	MinSetupCount int64
}

func NewDivergenceTD9() *DivergenceTD9 {
	return &DivergenceTD9{MinSetupCount: 9}
}

const (
	SignalSellPutDivergenceTD9  = "sell_put_divergence_td9"
	SignalSellCallDivergenceTD9 = "sell_call_divergence_td9"
)

func (d *DivergenceTD9) threshold() int64 {
	if d.MinSetupCount <= 0 {
		return 9
	}
	return d.MinSetupCount
}

// CheckOpenSignal reads the TD9 buy/sell setup counts the indicator service
// wrote into the instrument and fires once a side reaches threshold. A
// buy-setup completion (price repeatedly undercutting its 4-bars-ago
// reference) signals capitulation — we sell puts into it; a sell-setup
// completion signals exhaustion to the upside — we sell calls.
func (d *DivergenceTD9) CheckOpenSignal(inst *instrument.Instrument) (string, bool) {
	buy, _ := inst.IndicatorInt(indicator.IndicatorTD9BuySetup)
	sell, _ := inst.IndicatorInt(indicator.IndicatorTD9SellSetup)

	threshold := d.threshold()
	switch {
	case buy >= threshold:
		return SignalSellPutDivergenceTD9, true
	case sell >= threshold:
		return SignalSellCallDivergenceTD9, true
	default:
		return "", false
	}
}

// CheckCloseSignal closes a position once the setup that produced its
// opening signal has unwound back to zero (the divergence that justified
// the trade no longer holds).
func (d *DivergenceTD9) CheckCloseSignal(inst *instrument.Instrument, pos *position.Position) (string, bool) {
	switch pos.Signal {
	case SignalSellPutDivergenceTD9:
		if buy, ok := inst.IndicatorInt(indicator.IndicatorTD9BuySetup); ok && buy == 0 {
			return "divergence_unwound", true
		}
	case SignalSellCallDivergenceTD9:
		if sell, ok := inst.IndicatorInt(indicator.IndicatorTD9SellSetup); ok && sell == 0 {
			return "divergence_unwound", true
		}
	}
	return "", false
}
