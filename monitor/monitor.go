// Package monitor implements the Monitor Snapshot Writer: it summarizes
// engine state into the relational store's monitor tables for the
// dashboard. It only writes rows — it never serves HTTP — subscribing to
// the event bus the same way notifications does, but persisting instead
// of delivering outbound.
package monitor

import (
	"log"
	"time"

	"github.com/haka-quant/optionengine/eventbus"
	"github.com/haka-quant/optionengine/persistence"
)

// Writer upserts one monitor_signal_snapshot row per (variant, instance)
// and appends a monitor_signal_event row for every domain event it
// observes on the bus, keyed by persistence.IdempotencyKey.
type Writer struct {
	repo       *persistence.Repository
	variant    string
	instanceID string
}

// New builds a Writer scoped to variant/instanceID — a named instance of
// the strategy, used to scope snapshots and monitor rows.
func New(repo *persistence.Repository, variant, instanceID string) *Writer {
	return &Writer{repo: repo, variant: variant, instanceID: instanceID}
}

// Subscribe registers the writer against every event type the bus knows
// about so every domain fact gets an append-only row, synchronously on
// the publisher's stack per the bus's delivery model.
func (w *Writer) Subscribe(bus *eventbus.Bus) {
	for _, et := range trackedEventTypes {
		et := et
		bus.Subscribe(et, func(evt eventbus.Event) {
			w.appendEvent(evt)
		})
	}
}

var trackedEventTypes = []eventbus.EventType{
	eventbus.EventActiveContractChanged,
	eventbus.EventManualCloseDetected,
	eventbus.EventManualOpenDetected,
	eventbus.EventOrderTimeout,
	eventbus.EventOrderRetryExhausted,
	eventbus.EventGreeksRiskBreach,
	eventbus.EventIcebergComplete,
	eventbus.EventTWAPComplete,
	eventbus.EventVWAPComplete,
	eventbus.EventTimedSplitComplete,
	eventbus.EventClassicIcebergComplete,
	eventbus.EventAdvancedOrderCancelled,
	eventbus.EventPositionOpened,
	eventbus.EventPositionClosed,
	eventbus.EventHedgeExecuted,
}

// vtSymbolOf extracts the vt_symbol a given event payload carries, if any,
// for the monitor_signal_event row's indexed column.
func vtSymbolOf(evt eventbus.Event) string {
	switch p := evt.Payload.(type) {
	case eventbus.ActiveContractChanged:
		return p.NewSymbol
	case eventbus.ManualCloseDetected:
		return p.VtSymbol
	case eventbus.ManualOpenDetected:
		return p.VtSymbol
	case eventbus.OrderTimeout:
		return p.VtSymbol
	case eventbus.OrderRetryExhausted:
		return p.VtSymbol
	case eventbus.GreeksRiskBreach:
		return p.VtSymbol
	case eventbus.PositionOpened:
		return p.VtSymbol
	case eventbus.PositionClosed:
		return p.VtSymbol
	case eventbus.HedgeExecuted:
		return p.VtSymbol
	default:
		return ""
	}
}

func (w *Writer) appendEvent(evt eventbus.Event) {
	barDT := evt.OccurredAt
	if barDT.IsZero() {
		barDT = time.Now().UTC()
	}
	vtSymbol := vtSymbolOf(evt)
	key := persistence.IdempotencyKey(w.variant, w.instanceID, vtSymbol, barDT, string(evt.Type))

	row := persistence.MonitorSignalEvent{
		IdempotencyKey: key,
		Variant:        w.variant,
		InstanceID:     w.instanceID,
		VtSymbol:       vtSymbol,
		EventType:      string(evt.Type),
		BarDateTime:    barDT,
	}
	if err := w.repo.AppendMonitorEvent(row); err != nil {
		log.Printf("monitor: append event %s failed: %v", evt.Type, err)
	}
}

// Snapshot is the read-model payload UpdateSnapshot upserts — a compact
// summary of engine state, independent of strategy_state's full
// persistence snapshot.
type Snapshot struct {
	AsOf             time.Time `json:"as_of"`
	OpenPositions    int       `json:"open_positions"`
	PortfolioDelta   float64   `json:"portfolio_delta"`
	PortfolioGamma   float64   `json:"portfolio_gamma"`
	PortfolioVega    float64   `json:"portfolio_vega"`
	PortfolioTheta   float64   `json:"portfolio_theta"`
	PendingOrders    int       `json:"pending_orders"`
	ActiveAdvanced   int       `json:"active_advanced_orders"`
	PortfolioBreached bool     `json:"portfolio_breached"`
}

// UpdateSnapshot upserts the latest-known-state row. Called by the worker
// on its own cadence (not driven by the event bus — this is a periodic
// poll of current engine state, not a reaction to a single fact).
func (w *Writer) UpdateSnapshot(snap Snapshot) {
	if err := w.repo.UpsertMonitorSnapshot(w.variant, w.instanceID, snap); err != nil {
		log.Printf("monitor: upsert snapshot failed: %v", err)
	}
}
