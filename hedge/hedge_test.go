package hedge

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateDeltaHedge_NoOpWithinBand(t *testing.T) {
	cfg := Config{TargetDelta: 0, HedgingBand: 2, HedgeUnitDelta: 1, HedgeMultiplier: 1}
	instr := CalculateDeltaHedge(1.5, cfg)
	assert.Equal(t, 0, instr.Volume)
}

func TestCalculateDeltaHedge_ProducesIntegerQty(t *testing.T) {
	cfg := Config{TargetDelta: 0, HedgingBand: 1, HedgeUnitDelta: 1, HedgeMultiplier: 10}
	instr := CalculateDeltaHedge(55, cfg)
	assert.NotEqual(t, 0, instr.Volume)
}

// Residual after hedging satisfies |Δ + h*δ_hedge*mult - target| <=
// δ_hedge*mult/2.
func TestCalculateDeltaHedge_CorrectnessProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 200; trial++ {
		portfolioDelta := (rng.Float64() - 0.5) * 200
		target := (rng.Float64() - 0.5) * 50
		band := 0.1 + rng.Float64()*5
		unitDelta := 0.1 + rng.Float64()*2
		mult := 1 + rng.Float64()*10

		cfg := Config{TargetDelta: target, HedgingBand: band, HedgeUnitDelta: unitDelta, HedgeMultiplier: mult}
		instr := CalculateDeltaHedge(portfolioDelta, cfg)

		perUnit := unitDelta * mult
		residual := math.Abs(portfolioDelta + float64(instr.Volume)*perUnit - target)

		if math.Abs(portfolioDelta-target) <= band {
			assert.Equal(t, 0, instr.Volume, "trial %d: within band must no-op", trial)
		} else {
			assert.LessOrEqual(t, residual, perUnit/2+1e-9, "trial %d: residual %v exceeds perUnit/2 %v", trial, residual, perUnit/2)
		}
	}
}

func TestCalculateDeltaHedge_ZeroVolumeProducesNoInstruction(t *testing.T) {
	cfg := Config{TargetDelta: 0, HedgingBand: 0.001, HedgeUnitDelta: 1000, HedgeMultiplier: 1}
	instr := CalculateDeltaHedge(0.5, cfg)
	// residual is tiny relative to perUnit, nearest integer rounds to 0.
	assert.Equal(t, 0, instr.Volume)
}

// Gamma scalp refuses for gamma <= 0, over randomized cases.
func TestGammaScalp_RefusalProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	cfg := Config{RebalanceThreshold: 1, HedgeUnitDelta: 1, HedgeMultiplier: 1}
	for trial := 0; trial < 150; trial++ {
		gamma := -rng.Float64() * 100 // always <= 0
		delta := (rng.Float64() - 0.5) * 1000
		instr := CalculateGammaScalp(delta, gamma, cfg)
		assert.Equal(t, 0, instr.Volume, "trial %d: gamma<=0 must never rebalance", trial)
	}
}

func TestGammaScalp_RebalancesWhenDeltaExceedsThreshold(t *testing.T) {
	cfg := Config{RebalanceThreshold: 5, HedgeUnitDelta: 1, HedgeMultiplier: 1}
	instr := CalculateGammaScalp(20, 10, cfg)
	assert.NotEqual(t, 0, instr.Volume)
}

func TestGammaScalp_NoOpWithinThreshold(t *testing.T) {
	cfg := Config{RebalanceThreshold: 5, HedgeUnitDelta: 1, HedgeMultiplier: 1}
	instr := CalculateGammaScalp(3, 10, cfg)
	assert.Equal(t, 0, instr.Volume)
}
