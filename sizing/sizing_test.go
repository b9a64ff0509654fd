package sizing

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/haka-quant/optionengine/position"
)

func TestCalculateOpenVolume_ZeroWhenGlobalCapExceeded(t *testing.T) {
	agg := position.NewAggregate(false)
	agg.RecordOpenUsage("rb2505-C-4000", 9)
	s := New(Config{PerSymbolDailyCap: 20, GlobalDailyCap: 10, MaxConcurrentPositions: 100, PositionRatio: 0})

	got := s.CalculateOpenVolume(5, "rb2505-C-4000", agg, AccountSnapshot{Balance: 1000, FreeMargin: 1000})
	assert.Equal(t, 0, got)
}

func TestCalculateOpenVolume_ZeroWhenMarginInsufficient(t *testing.T) {
	agg := position.NewAggregate(false)
	s := New(Config{PerSymbolDailyCap: 100, GlobalDailyCap: 100, MaxConcurrentPositions: 100, PositionRatio: 0.5})

	got := s.CalculateOpenVolume(1, "rb2505-C-4000", agg, AccountSnapshot{Balance: 1000, FreeMargin: 100})
	assert.Equal(t, 0, got)
}

func TestCalculateOpenVolume_ZeroWhenNonPositiveDesired(t *testing.T) {
	agg := position.NewAggregate(false)
	s := New(Config{PerSymbolDailyCap: 100, GlobalDailyCap: 100, MaxConcurrentPositions: 100, PositionRatio: 0})
	assert.Equal(t, 0, s.CalculateOpenVolume(0, "x", agg, AccountSnapshot{Balance: 1000, FreeMargin: 1000}))
	assert.Equal(t, 0, s.CalculateOpenVolume(-3, "x", agg, AccountSnapshot{Balance: 1000, FreeMargin: 1000}))
}

func TestCalculateOpenVolume_PassesAllChecks(t *testing.T) {
	agg := position.NewAggregate(false)
	s := New(Config{PerSymbolDailyCap: 100, GlobalDailyCap: 100, MaxConcurrentPositions: 100, PositionRatio: 0.1})
	got := s.CalculateOpenVolume(5, "rb2505-C-4000", agg, AccountSnapshot{Balance: 1000, FreeMargin: 500})
	assert.Equal(t, 5, got)
}

// The accepted volume never pushes the daily counters past the
// configured caps, over randomized attempt sequences.
func TestCalculateOpenVolume_NeverExceedsDailyCapProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 100; trial++ {
		cap := 1 + rng.Intn(50)
		agg := position.NewAggregate(false)
		s := New(Config{PerSymbolDailyCap: cap, GlobalDailyCap: cap, MaxConcurrentPositions: 1000, PositionRatio: 0})

		total := 0
		for i := 0; i < 30; i++ {
			want := 1 + rng.Intn(10)
			got := s.CalculateOpenVolume(want, "rb2505-C-4000", agg, AccountSnapshot{Balance: 1000, FreeMargin: 1000})
			if got > 0 {
				agg.RecordOpenUsage("rb2505-C-4000", got)
				total += got
			}
			assert.LessOrEqual(t, total, cap, "trial %d: daily cap exceeded", trial)
		}
	}
}

func TestCalculateExitVolume_ClampsToRemainingVolume(t *testing.T) {
	agg := position.NewAggregate(false)
	pos := &position.Position{VtSymbol: "rb2505-C-4000", Volume: 10}
	agg.CreatePosition("p1", pos)
	agg.RecordCloseSent(pos, 4)

	s := New(Config{})
	assert.Equal(t, 6, s.CalculateExitVolume(20, pos), "clamped to volume - pending close")
	assert.Equal(t, 3, s.CalculateExitVolume(3, pos), "desired already within remaining")
}

func TestCalculateExitVolume_NeverNegative(t *testing.T) {
	agg := position.NewAggregate(false)
	pos := &position.Position{VtSymbol: "rb2505-C-4000", Volume: 2}
	agg.CreatePosition("p1", pos)
	agg.RecordCloseSent(pos, 5) // pending close exceeds tracked volume (race with a fill)

	s := New(Config{})
	assert.Equal(t, 0, s.CalculateExitVolume(5, pos))
}
