package greeks

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutCallParity_S4(t *testing.T) {
	s, k, T, r, sigma := 100.0, 100.0, 0.25, 0.03, 0.20
	c, err := BSPrice(s, k, T, r, sigma, true)
	require.NoError(t, err)
	p, err := BSPrice(s, k, T, r, sigma, false)
	require.NoError(t, err)

	lhs := c - p
	rhs := s - k*math.Exp(-r*T)
	assert.InDelta(t, rhs, lhs, 1e-6)
}

func TestPutCallParity_Random(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		s := 10 + rng.Float64()*990
		k := 10 + rng.Float64()*990
		T := 0.01 + rng.Float64()*2
		r := rng.Float64() * 0.1
		sigma := 0.05 + rng.Float64()*0.95

		c, err := BSPrice(s, k, T, r, sigma, true)
		require.NoError(t, err)
		p, err := BSPrice(s, k, T, r, sigma, false)
		require.NoError(t, err)

		lhs := c - p
		rhs := s - k*math.Exp(-r*T)
		assert.InDelta(t, rhs, lhs, 1e-6, "case %d: s=%v k=%v T=%v r=%v sigma=%v", i, s, k, T, r, sigma)
	}
}

func TestTerminalGreeks(t *testing.T) {
	g, err := Compute(110, 100, 0, 0.03, 0.2, true)
	require.NoError(t, err)
	assert.Equal(t, Greeks{Delta: 1}, g)

	g, err = Compute(90, 100, 0, 0.03, 0.2, true)
	require.NoError(t, err)
	assert.Equal(t, Greeks{Delta: 0}, g)

	g, err = Compute(90, 100, 0, 0.03, 0.2, false)
	require.NoError(t, err)
	assert.Equal(t, Greeks{Delta: -1}, g)
}

func TestGreeksRealForInDomainInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		s := 10 + rng.Float64()*990
		k := 10 + rng.Float64()*990
		T := 0.01 + rng.Float64()*2
		r := rng.Float64() * 0.1
		sigma := 0.05 + rng.Float64()*0.95
		isCall := rng.Intn(2) == 0

		g, err := Compute(s, k, T, r, sigma, isCall)
		require.NoError(t, err)
		assert.False(t, math.IsNaN(g.Delta) || math.IsInf(g.Delta, 0))
		assert.False(t, math.IsNaN(g.Gamma) || math.IsInf(g.Gamma, 0))
		assert.False(t, math.IsNaN(g.Theta) || math.IsInf(g.Theta, 0))
		assert.False(t, math.IsNaN(g.Vega) || math.IsInf(g.Vega, 0))
		assert.GreaterOrEqual(t, g.Gamma, 0.0)
		assert.GreaterOrEqual(t, g.Vega, 0.0)
	}
}

func TestImpliedVolRoundTrip(t *testing.T) {
	cfg := DefaultIVConfig()
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 150; i++ {
		s := 50 + rng.Float64()*500
		k := 50 + rng.Float64()*500
		T := 0.05 + rng.Float64()*1.5
		r := rng.Float64() * 0.08
		sigma := 0.1 + rng.Float64()*0.8
		isCall := rng.Intn(2) == 0

		price, err := BSPrice(s, k, T, r, sigma, isCall)
		require.NoError(t, err)

		iv, err := ImpliedVol(price, s, k, T, r, isCall, cfg)
		require.NoError(t, err, "case %d diverged: s=%v k=%v T=%v r=%v sigma=%v", i, s, k, T, r, sigma)

		roundTripPrice, err := BSPrice(s, k, T, r, iv, isCall)
		require.NoError(t, err)
		assert.InDelta(t, price, roundTripPrice, 1e-4)
	}
}

func TestImpliedVolBelowIntrinsicFails(t *testing.T) {
	// Deep ITM call priced below intrinsic value is never a valid market price.
	s, k, T, r := 200.0, 100.0, 0.5, 0.03
	intrinsicValue := s - k
	_, err := ImpliedVol(intrinsicValue-10, s, k, T, r, true, DefaultIVConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBelowIntrinsic))
}

func TestBSPriceRejectsNonPositiveVol(t *testing.T) {
	_, err := BSPrice(100, 100, 0.25, 0.03, 0, true)
	assert.ErrorIs(t, err, ErrNonPositiveVol)
	_, err = BSPrice(100, 100, 0.25, 0.03, -0.1, true)
	assert.ErrorIs(t, err, ErrNonPositiveVol)
}
