// Package hedge implements Delta Hedging and Gamma Scalping as pure
// functions over (portfolio Greeks, config) — no side effects, no state.
package hedge

import "math"

// Config holds the typed, defaulted configuration both concerns read.
// Missing keys (zero values) fall back to the documented defaults applied
// by WithDefaults.
type Config struct {
	TargetDelta        float64
	HedgingBand        float64
	HedgeUnitDelta     float64 // per-unit delta of the hedge instrument
	HedgeMultiplier    float64
	RebalanceThreshold float64
}

// WithDefaults fills zero-valued fields with documented defaults: target
// delta 0 (delta-neutral), a one-contract hedging band, a futures-style
// hedge instrument (unit delta 1, multiplier 1), and a rebalance threshold
// equal to the hedging band.
func (c Config) WithDefaults() Config {
	if c.HedgeUnitDelta == 0 {
		c.HedgeUnitDelta = 1
	}
	if c.HedgeMultiplier == 0 {
		c.HedgeMultiplier = 1
	}
	if c.HedgingBand == 0 {
		c.HedgingBand = 1
	}
	if c.RebalanceThreshold == 0 {
		c.RebalanceThreshold = c.HedgingBand
	}
	return c
}

// Instruction is a proposed hedge trade. Volume is signed: positive buys
// the hedge instrument, negative sells it. Volume == 0 means no
// instruction should be dispatched.
type Instruction struct {
	Volume int
}

// CalculateDeltaHedge returns the integer hedge quantity driving residual
// delta closest to target, or a zero-volume Instruction if portfolioDelta
// is already within the hedging band of target.
func CalculateDeltaHedge(portfolioDelta float64, cfg Config) Instruction {
	cfg = cfg.WithDefaults()

	residual := portfolioDelta - cfg.TargetDelta
	if math.Abs(residual) <= cfg.HedgingBand {
		return Instruction{Volume: 0}
	}

	perUnit := cfg.HedgeUnitDelta * cfg.HedgeMultiplier
	if perUnit == 0 {
		return Instruction{Volume: 0}
	}

	// We need h such that portfolioDelta + h*perUnit is as close to target
	// as possible, i.e. h = -(residual)/perUnit, rounded to the nearest int.
	h := -residual / perUnit
	qty := int(math.Round(h))
	return Instruction{Volume: qty}
}

// CalculateGammaScalp refuses (returns a zero-volume Instruction) when
// portfolioGamma <= 0, since scalping requires long gamma. Otherwise it
// rebalances delta back toward zero once |portfolioDelta| exceeds the
// configured rebalance threshold.
func CalculateGammaScalp(portfolioDelta, portfolioGamma float64, cfg Config) Instruction {
	cfg = cfg.WithDefaults()

	if portfolioGamma <= 0 {
		return Instruction{Volume: 0}
	}
	if math.Abs(portfolioDelta) <= cfg.RebalanceThreshold {
		return Instruction{Volume: 0}
	}

	perUnit := cfg.HedgeUnitDelta * cfg.HedgeMultiplier
	if perUnit == 0 {
		return Instruction{Volume: 0}
	}
	h := -portfolioDelta / perUnit
	return Instruction{Volume: int(math.Round(h))}
}
