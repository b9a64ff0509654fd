package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haka-quant/optionengine/indicator"
	"github.com/haka-quant/optionengine/instrument"
	"github.com/haka-quant/optionengine/position"
)

func feedDescending(t *testing.T, inst *instrument.Instrument, td9 *indicator.TD9, n int) {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < n; i++ {
		bar := instrument.Bar{DateTime: base.Add(time.Duration(i) * time.Minute), Close: price}
		require.NoError(t, inst.AppendBar(bar))
		td9.CalculateBar(inst, bar)
		price -= 1
	}
}

func TestCheckOpenSignal_FiresOnBuySetupCompletion(t *testing.T) {
	agg := instrument.NewAggregate(0)
	inst := agg.GetOrCreate("rb2505")
	td9 := indicator.NewTD9()

	feedDescending(t, inst, td9, 14) // enough strictly-descending closes to complete a 9-count

	svc := NewDivergenceTD9()
	sig, fired := svc.CheckOpenSignal(inst)
	require.True(t, fired)
	assert.Equal(t, SignalSellPutDivergenceTD9, sig)
}

func TestCheckOpenSignal_NoFireBelowThreshold(t *testing.T) {
	agg := instrument.NewAggregate(0)
	inst := agg.GetOrCreate("rb2505")
	td9 := indicator.NewTD9()

	feedDescending(t, inst, td9, 3)

	svc := NewDivergenceTD9()
	_, fired := svc.CheckOpenSignal(inst)
	assert.False(t, fired)
}

func TestCheckCloseSignal_FiresWhenSetupUnwinds(t *testing.T) {
	inst := instrument.NewAggregate(0).GetOrCreate("rb2505")
	td9 := indicator.NewTD9()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// Descend to build a buy setup, then reverse to unwind it to zero.
	price := 100.0
	for i := 0; i < 6; i++ {
		bar := instrument.Bar{DateTime: base.Add(time.Duration(i) * time.Minute), Close: price}
		require.NoError(t, inst.AppendBar(bar))
		td9.CalculateBar(inst, bar)
		price -= 1
	}
	for i := 6; i < 12; i++ {
		bar := instrument.Bar{DateTime: base.Add(time.Duration(i) * time.Minute), Close: price}
		require.NoError(t, inst.AppendBar(bar))
		td9.CalculateBar(inst, bar)
		price += 1
	}

	pos := &position.Position{VtSymbol: "rb2505-P-4000", Signal: SignalSellPutDivergenceTD9}
	svc := NewDivergenceTD9()
	_, fired := svc.CheckCloseSignal(inst, pos)
	assert.True(t, fired)
}

func TestCheckCloseSignal_NoFireForUnrelatedSignal(t *testing.T) {
	inst := instrument.NewAggregate(0).GetOrCreate("rb2505")
	pos := &position.Position{VtSymbol: "rb2505-P-4000", Signal: "manual_entry"}
	svc := NewDivergenceTD9()
	_, fired := svc.CheckCloseSignal(inst, pos)
	assert.False(t, fired)
}
