package instrument

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendBar_MonotonicityEnforced(t *testing.T) {
	inst := newInstrument("rb2505", 0)
	base := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, inst.AppendBar(Bar{DateTime: base, Close: 100}))
	require.NoError(t, inst.AppendBar(Bar{DateTime: base.Add(time.Minute), Close: 101}))

	err := inst.AppendBar(Bar{DateTime: base, Close: 102})
	assert.Error(t, err, "duplicate timestamp must be rejected")

	err = inst.AppendBar(Bar{DateTime: base.Add(30 * time.Second), Close: 103})
	assert.Error(t, err, "out-of-order timestamp must be rejected")
}

// Property test (>=100 random cases): any sequence of bars accepted by
// the aggregate has strictly increasing datetimes.
func TestAppendBar_MonotonicityProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 150; trial++ {
		inst := newInstrument("TEST", 0)
		cur := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		var accepted []time.Time

		for step := 0; step < 20; step++ {
			// Randomly go forward or attempt to go backward/stay.
			delta := time.Duration(rng.Intn(5)-2) * time.Minute
			candidate := cur.Add(delta)
			err := inst.AppendBar(Bar{DateTime: candidate, Close: rng.Float64() * 100})
			if err == nil {
				accepted = append(accepted, candidate)
				cur = candidate
			}
		}

		for i := 1; i < len(accepted); i++ {
			assert.True(t, accepted[i].After(accepted[i-1]), "trial %d: bar %d not strictly after bar %d", trial, i, i-1)
		}
	}
}

func TestActiveContract_Uniqueness(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	agg := NewAggregate(0)
	candidates := []string{"rb2501", "rb2505", "rb2510"}

	for i := 0; i < 100; i++ {
		agg.SetActiveContract("rb", candidates[rng.Intn(len(candidates))])
	}

	all := agg.GetAllActiveContracts()
	count := 0
	for product := range all {
		if product == "rb" {
			count++
		}
	}
	assert.Equal(t, 1, count, "at most one active contract per product")
}

func TestHasEnoughData(t *testing.T) {
	agg := NewAggregate(0)
	assert.False(t, agg.HasEnoughData("x", 1))
	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, agg.AppendBar("x", Bar{DateTime: base.Add(time.Duration(i) * time.Minute), Close: float64(i)}))
	}
	assert.True(t, agg.HasEnoughData("x", 5))
	assert.False(t, agg.HasEnoughData("x", 6))
}

func TestMaxBarsCap(t *testing.T) {
	inst := newInstrument("X", 3)
	base := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, inst.AppendBar(Bar{DateTime: base.Add(time.Duration(i) * time.Minute), Close: float64(i)}))
	}
	history := inst.BarHistory(100)
	require.Len(t, history, 3)
	assert.Equal(t, 9.0, history[len(history)-1].Close)
}
