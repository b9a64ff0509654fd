// Package risk implements the Portfolio Risk Aggregator: per-position and
// portfolio-level Greek thresholds, tracking breach state across calls so
// events fire only on transition.
package risk

import (
	"github.com/haka-quant/optionengine/eventbus"
	"github.com/haka-quant/optionengine/greeks"
)

// Thresholds bounds the four Greeks at either position or portfolio scope.
// A zero field means "no limit" for that Greek.
type Thresholds struct {
	Delta float64
	Gamma float64
	Vega  float64
	Theta float64
}

// CheckResult is the per-position risk check's outcome.
type CheckResult struct {
	OK             bool
	BreachedFields []string
}

func exceeds(limit, value float64) bool {
	if limit == 0 {
		return false
	}
	if value < 0 {
		value = -value
	}
	return value > limit
}

// CheckPositionRisk compares g against thresholds and reports which fields
// breached, if any.
func CheckPositionRisk(g greeks.Greeks, thresholds Thresholds) CheckResult {
	var breached []string
	if exceeds(thresholds.Delta, g.Delta) {
		breached = append(breached, "delta")
	}
	if exceeds(thresholds.Gamma, g.Gamma) {
		breached = append(breached, "gamma")
	}
	if exceeds(thresholds.Vega, g.Vega) {
		breached = append(breached, "vega")
	}
	if exceeds(thresholds.Theta, g.Theta) {
		breached = append(breached, "theta")
	}
	return CheckResult{OK: len(breached) == 0, BreachedFields: breached}
}

// PositionGreeks pairs a position with its per-unit Greeks and volume, for
// weighted portfolio aggregation.
type PositionGreeks struct {
	VtSymbol   string
	Greeks     greeks.Greeks
	Volume     float64
	Multiplier float64
}

// PortfolioGreeks is the volume x multiplier weighted sum across positions.
type PortfolioGreeks struct {
	Delta float64
	Gamma float64
	Vega  float64
	Theta float64
}

// Aggregator holds position- and portfolio-level thresholds plus the
// edge-triggered breach state: events fire only on transition from
// ok to breach, not on every evaluation while still breached.
type Aggregator struct {
	PositionThresholds  Thresholds
	PortfolioThresholds Thresholds

	breached map[string]bool // scope key ("portfolio" or vt_symbol) -> currently breached
}

func NewAggregator(position, portfolio Thresholds) *Aggregator {
	return &Aggregator{
		PositionThresholds:  position,
		PortfolioThresholds: portfolio,
		breached:            make(map[string]bool),
	}
}

func weight(multiplier float64) float64 {
	if multiplier == 0 {
		return 1
	}
	return multiplier
}

// AggregatePortfolioGreeks sums per-position Greeks weighted by volume x
// multiplier, runs the position-level and portfolio-level threshold
// checks, and returns breach events for every scope that transitioned
// from ok to breach this call. A scope that was breached and is no longer
// clears silently (no "resolved" event per spec; only a future breach
// fires again, by re-arming below).
func (a *Aggregator) AggregatePortfolioGreeks(positions []PositionGreeks) (PortfolioGreeks, []eventbus.Event) {
	var total PortfolioGreeks
	var events []eventbus.Event

	for _, p := range positions {
		w := p.Volume * weight(p.Multiplier)
		total.Delta += p.Greeks.Delta * w
		total.Gamma += p.Greeks.Gamma * w
		total.Vega += p.Greeks.Vega * w
		total.Theta += p.Greeks.Theta * w

		result := CheckPositionRisk(p.Greeks, a.PositionThresholds)
		if evt, fired := a.transition(p.VtSymbol, !result.OK, result.BreachedFields); fired {
			events = append(events, evt)
		} else if result.OK {
			a.breached[p.VtSymbol] = false
		}
	}

	portfolioResult := CheckPositionRisk(greeks.Greeks{
		Delta: total.Delta, Gamma: total.Gamma, Vega: total.Vega, Theta: total.Theta,
	}, a.PortfolioThresholds)
	if evt, fired := a.transition("portfolio", !portfolioResult.OK, portfolioResult.BreachedFields); fired {
		events = append(events, evt)
	} else if portfolioResult.OK {
		a.breached["portfolio"] = false
	}

	return total, events
}

// transition records scope's new breach state and returns an event only on
// the ok -> breach edge.
func (a *Aggregator) transition(scope string, isBreached bool, fields []string) (eventbus.Event, bool) {
	was := a.breached[scope]
	a.breached[scope] = isBreached
	if isBreached && !was {
		vtSymbol := scope
		if scope == "portfolio" {
			vtSymbol = ""
		}
		return eventbus.Event{
			Type: eventbus.EventGreeksRiskBreach,
			Payload: eventbus.GreeksRiskBreach{
				Scope:          scopeLabel(scope),
				VtSymbol:       vtSymbol,
				BreachedFields: fields,
			},
		}, true
	}
	return eventbus.Event{}, false
}

func scopeLabel(scope string) string {
	if scope == "portfolio" {
		return "portfolio"
	}
	return "position"
}

// IsPortfolioBreached reports the aggregator's current latched portfolio
// breach state, for the strategy engine's "block new opens" gate.
func (a *Aggregator) IsPortfolioBreached() bool {
	return a.breached["portfolio"]
}
