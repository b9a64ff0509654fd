package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haka-quant/optionengine/eventbus"
)

func TestAdaptivePrice_BiasesTowardTakerSideAndRoundsToTick(t *testing.T) {
	buy := AdaptivePrice(100.0, 0.5, 2, true)
	assert.Equal(t, 101.0, buy, "buy biases up by slippage ticks then rounds aggressively")

	sell := AdaptivePrice(100.0, 0.5, 2, false)
	assert.Equal(t, 99.0, sell, "sell biases down by slippage ticks")
}

func TestSubmitFilled_TerminatesAndUntracks(t *testing.T) {
	e := New()
	o := &ManagedOrder{VtOrderID: "o1", Volume: 1, Deadline: time.Now().Add(time.Hour)}
	e.Submit(o)
	assert.Equal(t, 1, e.PendingCount())

	e.OnFilled("o1")
	_, ok := e.Get("o1")
	assert.False(t, ok)
	assert.Equal(t, 0, e.PendingCount())
}

func TestCheckTimeouts_RetriesWhenBudgetRemains(t *testing.T) {
	e := New()
	now := time.Now()
	o := &ManagedOrder{VtOrderID: "o1", VtSymbol: "rb2505", OriginalPrice: 100, Deadline: now.Add(-time.Second), MaxRetries: 2}
	e.Submit(o)

	decisions, events := e.CheckTimeouts(now, func(o *ManagedOrder) float64 { return o.OriginalPrice + 1 })

	require.Len(t, decisions, 1)
	assert.False(t, decisions[0].Exhausted)
	assert.Equal(t, 101.0, decisions[0].NewPrice)
	assert.Equal(t, StateSubmitted, o.State, "resubmitted order returns to SUBMITTED")
	assert.Equal(t, 1, o.RetryCount)

	require.Len(t, events, 1)
	assert.Equal(t, eventbus.EventOrderTimeout, events[0].Type)

	_, tracked := e.Get("o1")
	assert.True(t, tracked, "resubmitted order remains tracked")
}

func TestCheckTimeouts_ExhaustsAfterMaxRetries(t *testing.T) {
	e := New()
	now := time.Now()
	o := &ManagedOrder{VtOrderID: "o1", VtSymbol: "rb2505", Deadline: now.Add(-time.Second), RetryCount: 2, MaxRetries: 2}
	e.Submit(o)

	decisions, events := e.CheckTimeouts(now, func(o *ManagedOrder) float64 { return o.OriginalPrice })

	require.Len(t, decisions, 1)
	assert.True(t, decisions[0].Exhausted)
	assert.Equal(t, StateExhausted, o.State)

	var sawExhausted bool
	for _, evt := range events {
		if evt.Type == eventbus.EventOrderRetryExhausted {
			sawExhausted = true
		}
	}
	assert.True(t, sawExhausted)

	_, tracked := e.Get("o1")
	assert.False(t, tracked, "exhausted order is untracked")
}

func TestCheckTimeouts_IgnoresOrdersBeforeDeadline(t *testing.T) {
	e := New()
	now := time.Now()
	o := &ManagedOrder{VtOrderID: "o1", Deadline: now.Add(time.Minute)}
	e.Submit(o)

	decisions, events := e.CheckTimeouts(now, func(o *ManagedOrder) float64 { return 0 })
	assert.Empty(t, decisions)
	assert.Empty(t, events)
	assert.Equal(t, StateSubmitted, o.State)
}

func TestOnRejectedOrCancelled_Untracks(t *testing.T) {
	e := New()
	o := &ManagedOrder{VtOrderID: "o1", Deadline: time.Now().Add(time.Hour)}
	e.Submit(o)
	e.OnRejectedOrCancelled("o1")

	_, ok := e.Get("o1")
	assert.False(t, ok)
}
