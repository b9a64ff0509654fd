// Package greeks implements Black-Scholes pricing, the Greeks, and the
// implied-volatility solver. Pure math, stdlib only (see DESIGN.md for why
// no third-party numerics library applies here).
package greeks

import (
	"errors"
	"math"
)

// ErrBelowIntrinsic is returned by ImpliedVol when the market price is
// below intrinsic value by more than the configured tolerance.
var ErrBelowIntrinsic = errors.New("greeks: market price below intrinsic value")

// ErrDiverged is returned by ImpliedVol when Newton iteration fails to
// converge within MaxIter.
var ErrDiverged = errors.New("greeks: implied vol solver diverged")

// ErrNonPositiveVol is returned when sigma <= 0 is passed to pricing
// functions that require a strictly positive volatility.
var ErrNonPositiveVol = errors.New("greeks: volatility must be positive")

// Greeks bundles Delta, Gamma, Theta and Vega for one option position.
// Vega is reported per 1.00 change in volatility (not per 0.01) — callers
// scale to whatever convention they report in.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

func d1d2(s, k, t, r, sigma float64) (d1, d2 float64) {
	d1 = (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * math.Sqrt(t))
	d2 = d1 - sigma*math.Sqrt(t)
	return
}

// intrinsic returns the terminal payoff at expiry.
func intrinsic(s, k float64, isCall bool) float64 {
	if isCall {
		return math.Max(s-k, 0)
	}
	return math.Max(k-s, 0)
}

// BSPrice computes the Black-Scholes price. T<=0 returns the intrinsic
// value. sigma<=0 is rejected for T>0.
func BSPrice(s, k, t, r, sigma float64, isCall bool) (float64, error) {
	if t <= 0 {
		return intrinsic(s, k, isCall), nil
	}
	if sigma <= 0 {
		return 0, ErrNonPositiveVol
	}
	d1, d2 := d1d2(s, k, t, r, sigma)
	discK := k * math.Exp(-r*t)
	if isCall {
		return s*normCDF(d1) - discK*normCDF(d2), nil
	}
	return discK*normCDF(-d2) - s*normCDF(-d1), nil
}

// Compute returns the full Greeks bundle. T<=0 returns terminal Greeks:
// Delta in {-1,0,1}, Gamma=Vega=Theta=0.
func Compute(s, k, t, r, sigma float64, isCall bool) (Greeks, error) {
	if t <= 0 {
		return terminalGreeks(s, k, isCall), nil
	}
	if sigma <= 0 {
		return Greeks{}, ErrNonPositiveVol
	}
	d1, d2 := d1d2(s, k, t, r, sigma)
	sqrtT := math.Sqrt(t)
	pdf := normPDF(d1)

	gamma := pdf / (s * sigma * sqrtT)
	vega := s * pdf * sqrtT

	var delta, theta float64
	if isCall {
		delta = normCDF(d1)
		theta = -(s*pdf*sigma)/(2*sqrtT) - r*k*math.Exp(-r*t)*normCDF(d2)
	} else {
		delta = normCDF(d1) - 1
		theta = -(s*pdf*sigma)/(2*sqrtT) + r*k*math.Exp(-r*t)*normCDF(-d2)
	}

	return Greeks{Delta: delta, Gamma: gamma, Theta: theta, Vega: vega}, nil
}

func terminalGreeks(s, k float64, isCall bool) Greeks {
	payoff := intrinsic(s, k, isCall)
	var delta float64
	switch {
	case payoff == 0:
		delta = 0
	case isCall && s > k:
		delta = 1
	case !isCall && s < k:
		delta = -1
	}
	return Greeks{Delta: delta}
}

// IVConfig parameterizes the Newton solver.
type IVConfig struct {
	Tolerance float64
	MaxIter   int
}

// DefaultIVConfig returns the documented Newton-solver defaults, used
// whenever a zero-valued IVConfig is passed in.
func DefaultIVConfig() IVConfig {
	return IVConfig{Tolerance: 1e-6, MaxIter: 100}
}

func (c IVConfig) withDefaults() IVConfig {
	if c.Tolerance <= 0 {
		c.Tolerance = 1e-6
	}
	if c.MaxIter <= 0 {
		c.MaxIter = 100
	}
	return c
}

// brennerSubrahmanyam returns the closed-form initial guess for the Newton
// solver: sigma0 = sqrt(2*pi/T) * price/S.
func brennerSubrahmanyam(price, s, t float64) float64 {
	if t <= 0 || s <= 0 {
		return 0.2
	}
	guess := math.Sqrt(2*math.Pi/t) * price / s
	if guess <= 0 || math.IsNaN(guess) {
		return 0.2
	}
	return guess
}

// ImpliedVol solves for sigma such that BSPrice(s,k,t,r,sigma,isCall) ==
// marketPrice, via Newton iteration bootstrapped from a
// Brenner-Subrahmanyam initial guess. Returns ErrBelowIntrinsic or
// ErrDiverged rather than a silent zero on failure.
func ImpliedVol(marketPrice, s, k, t, r float64, isCall bool, cfg IVConfig) (float64, error) {
	cfg = cfg.withDefaults()

	intr := intrinsic(s, k, isCall)
	if marketPrice < intr-cfg.Tolerance {
		return 0, ErrBelowIntrinsic
	}
	if t <= 0 {
		// At expiry any sigma prices the same intrinsic value; report 0.
		return 0, nil
	}

	sigma := brennerSubrahmanyam(marketPrice, s, t)
	if sigma <= 0 {
		sigma = 0.2
	}

	for i := 0; i < cfg.MaxIter; i++ {
		price, err := BSPrice(s, k, t, r, sigma, isCall)
		if err != nil {
			return 0, err
		}
		diff := price - marketPrice
		if math.Abs(diff) < cfg.Tolerance {
			return sigma, nil
		}
		g, err := Compute(s, k, t, r, sigma, isCall)
		if err != nil {
			return 0, err
		}
		vega := g.Vega
		if vega < 1e-10 {
			return 0, ErrDiverged
		}
		next := sigma - diff/vega
		if next <= 0 || math.IsNaN(next) || math.IsInf(next, 0) {
			// Newton stepped out of domain; halve sigma instead of taking
			// the step, as a simple damping fallback.
			next = sigma / 2
		}
		sigma = next
	}
	return 0, ErrDiverged
}
