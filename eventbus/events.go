// Package eventbus implements an in-process, synchronous publish/subscribe
// mechanism: subscribers run on the publisher's own stack, there is no
// cross-thread queuing inside the core.
package eventbus

import "time"

// EventType discriminates the typed event union. Kept as a string (not an
// iota) so new event types can be added without renumbering, matching the
// open-vocabulary philosophy the design notes apply to signals.
type EventType string

const (
	EventActiveContractChanged   EventType = "active_contract_changed"
	EventManualCloseDetected     EventType = "manual_close_detected"
	EventManualOpenDetected      EventType = "manual_open_detected"
	EventOrderTimeout            EventType = "order_timeout"
	EventOrderRetryExhausted     EventType = "order_retry_exhausted"
	EventGreeksRiskBreach        EventType = "greeks_risk_breach"
	EventIcebergComplete         EventType = "iceberg_complete"
	EventTWAPComplete            EventType = "twap_complete"
	EventVWAPComplete            EventType = "vwap_complete"
	EventTimedSplitComplete      EventType = "timed_split_complete"
	EventClassicIcebergComplete  EventType = "classic_iceberg_complete"
	EventAdvancedOrderCancelled  EventType = "advanced_order_cancelled"
	EventPositionOpened          EventType = "position_opened"
	EventPositionClosed          EventType = "position_closed"
	EventHedgeExecuted           EventType = "hedge_executed"
)

// Event is the envelope every domain fact travels in. Payload carries the
// concrete event struct (e.g. ManualCloseDetected); consumers type-assert.
type Event struct {
	Type      EventType
	OccurredAt time.Time
	Payload   interface{}
}

// ActiveContractChanged fires when the rollover check switches the
// dominant future for a product.
type ActiveContractChanged struct {
	Product  string
	OldSymbol string
	NewSymbol string
}

// ManualCloseDetected fires when Position Aggregate observes a broker
// position decrease it cannot attribute to a tracked fill.
type ManualCloseDetected struct {
	VtSymbol    string
	ExpectedVolume float64
	ActualVolume   float64
}

// ManualOpenDetected is the open-side counterpart of ManualCloseDetected.
type ManualOpenDetected struct {
	VtSymbol       string
	ExpectedVolume float64
	ActualVolume   float64
}

// OrderTimeout fires when the smart executor's managed order exceeds its
// deadline.
type OrderTimeout struct {
	VtOrderID string
	VtSymbol  string
	RetryCount int
}

// OrderRetryExhausted fires when a managed order's retries are used up and
// the order moves to EXHAUSTED.
type OrderRetryExhausted struct {
	VtOrderID  string
	VtSymbol   string
	RetryCount int
}

// GreeksRiskBreach fires edge-triggered: only on the ok -> breach
// transition, never on every evaluation while still breached.
type GreeksRiskBreach struct {
	Scope          string // "position" or "portfolio"
	VtSymbol       string // empty for portfolio-level breaches
	BreachedFields []string
}

// AdvancedOrderComplete fires when an advanced order's filled volume
// reaches its total.
type AdvancedOrderComplete struct {
	AdvancedID string
	OrderType  string
	VtSymbol   string
	TotalVolume int
}

// AdvancedOrderCancelled fires when a parent order is cancelled, carrying
// the ids of children that were never submitted.
type AdvancedOrderCancelled struct {
	AdvancedID        string
	UnscheduledChildIDs []string
}

// PositionOpened/PositionClosed are lifecycle events for the monitor writer
// and notification sinks.
type PositionOpened struct {
	VtSymbol string
	Signal   string
	Volume   float64
	Direction string
}

type PositionClosed struct {
	VtSymbol string
	Volume   float64
	Manual   bool
}

// HedgeExecuted fires whenever the delta hedge or gamma scalp engine
// produces a non-zero instruction.
type HedgeExecuted struct {
	Kind       string // "delta" or "gamma"
	VtSymbol   string
	Volume     int
}
