package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haka-quant/optionengine/eventbus"
)

func TestApplyTrade_ClosesPositionOnZeroVolume(t *testing.T) {
	agg := NewAggregate(false)
	pos := &Position{VtSymbol: "rb2505-C-4000", Volume: 2, Direction: Long}
	agg.CreatePosition("pos-1", pos)

	agg.ApplyTrade(Trade{VtSymbol: pos.VtSymbol, Direction: Long, Offset: Close, Volume: 2})

	assert.True(t, pos.IsClosed)
	assert.Equal(t, 0.0, pos.Volume)

	events := agg.PopDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.EventPositionClosed, events[0].Type)
}

func TestReconcileExternalPosition_DetectsManualClose(t *testing.T) {
	agg := NewAggregate(false)
	pos := &Position{VtSymbol: "rb2505-C-4000", Volume: 5, Direction: Long}
	agg.CreatePosition("pos-1", pos)
	agg.ApplyTrade(Trade{VtSymbol: pos.VtSymbol, Direction: Long, Offset: Open, Volume: 5})

	// Broker now reports only 2 lots though we never recorded a close.
	agg.ReconcileExternalPosition(ExternalPositionReport{VtSymbol: pos.VtSymbol, Direction: Long, Volume: 2})

	events := agg.PopDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.EventManualCloseDetected, events[0].Type)
	assert.True(t, pos.IsManuallyClosed)
}

func TestReconcileExternalPosition_DetectsManualOpen(t *testing.T) {
	agg := NewAggregate(false)
	agg.ReconcileExternalPosition(ExternalPositionReport{VtSymbol: "rb2505-C-4000", Direction: Long, Volume: 3})

	events := agg.PopDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.EventManualOpenDetected, events[0].Type)

	perSymbol, global := agg.DailyOpenCount("rb2505-C-4000")
	assert.Equal(t, 0, perSymbol, "manual opens must not bump counters by default")
	assert.Equal(t, 0, global)
}

func TestReconcileExternalPosition_ManualOpenCanBumpCountersWhenConfigured(t *testing.T) {
	agg := NewAggregate(true)
	agg.ReconcileExternalPosition(ExternalPositionReport{VtSymbol: "rb2505-C-4000", Direction: Long, Volume: 3})

	perSymbol, global := agg.DailyOpenCount("rb2505-C-4000")
	assert.Equal(t, 3, perSymbol)
	assert.Equal(t, 3, global)
}

func TestReconcileExternalPosition_NoDriftMeansNoEvent(t *testing.T) {
	agg := NewAggregate(false)
	pos := &Position{VtSymbol: "rb2505-C-4000", Volume: 5, Direction: Long}
	agg.CreatePosition("pos-1", pos)
	agg.ApplyTrade(Trade{VtSymbol: pos.VtSymbol, Direction: Long, Offset: Open, Volume: 5})

	agg.ReconcileExternalPosition(ExternalPositionReport{VtSymbol: pos.VtSymbol, Direction: Long, Volume: 5})

	assert.Empty(t, agg.PopDomainEvents())
}

// An accepted open never pushes the daily counters past their
// configured caps.
func TestCheckOpenLimit_RespectsPerSymbolAndGlobalCaps(t *testing.T) {
	agg := NewAggregate(false)
	const perSymbolCap, globalCap = 10, 15

	agg.RecordOpenUsage("rb2505-C-4000", 8)
	assert.True(t, agg.CheckOpenLimit("rb2505-C-4000", 2, perSymbolCap, globalCap))
	assert.False(t, agg.CheckOpenLimit("rb2505-C-4000", 3, perSymbolCap, globalCap), "would exceed per-symbol cap")

	agg.RecordOpenUsage("rb2505-C-4200", 6)
	// per-symbol ok (6+1<=10) but global would be 8+6+1=15 <= 15, allowed
	assert.True(t, agg.CheckOpenLimit("rb2505-C-4200", 1, perSymbolCap, globalCap))
	assert.False(t, agg.CheckOpenLimit("rb2505-C-4200", 2, perSymbolCap, globalCap), "would exceed global cap")
}

func TestOnNewTradingDay_ResetsCountersOncePerDay(t *testing.T) {
	agg := NewAggregate(false)
	day1 := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	agg.OnNewTradingDay(day1)
	agg.RecordOpenUsage("rb2505-C-4000", 5)

	agg.OnNewTradingDay(day1.Add(2 * time.Hour)) // still day1
	perSymbol, _ := agg.DailyOpenCount("rb2505-C-4000")
	assert.Equal(t, 5, perSymbol, "same trading day must not reset")

	agg.OnNewTradingDay(day1.Add(24 * time.Hour))
	perSymbol, global := agg.DailyOpenCount("rb2505-C-4000")
	assert.Equal(t, 0, perSymbol)
	assert.Equal(t, 0, global)
}

func TestApplyOrderUpdate_TerminalStatusIsImmutable(t *testing.T) {
	agg := NewAggregate(false)
	agg.RecordOrderSubmitted(&Order{VtOrderID: "o1", Volume: 5, Status: StatusNotTraded})
	agg.ApplyOrderUpdate(Order{VtOrderID: "o1", Volume: 5, Traded: 5, Status: StatusAllTraded})
	// A stray late update must not resurrect or mutate a terminal order.
	agg.ApplyOrderUpdate(Order{VtOrderID: "o1", Volume: 5, Traded: 0, Status: StatusCancelled})

	_, pending := agg.pendingOrders["o1"]
	assert.False(t, pending, "terminal order must be removed from pending tracking")
}

func TestHasPendingClose_TracksRecordCloseSentAndFills(t *testing.T) {
	agg := NewAggregate(false)
	pos := &Position{VtSymbol: "rb2505-C-4000", Volume: 5, Direction: Long}
	agg.CreatePosition("pos-1", pos)
	agg.ApplyTrade(Trade{VtSymbol: pos.VtSymbol, Direction: Long, Offset: Open, Volume: 5})

	assert.False(t, agg.HasPendingClose(pos))
	agg.RecordCloseSent(pos, 5)
	assert.True(t, agg.HasPendingClose(pos))

	agg.ApplyTrade(Trade{VtSymbol: pos.VtSymbol, Direction: Long, Offset: Close, Volume: 5})
	assert.False(t, agg.HasPendingClose(pos))
	assert.True(t, pos.IsClosed)
}
