// Package position implements the Position Aggregate: positions, pending
// orders, manual-intervention detection, and daily counters. Exclusively
// owned by the Strategy Engine. Every mutating method is synchronous and
// non-blocking.
package position

import (
	"sync"
	"time"

	"github.com/haka-quant/optionengine/eventbus"
)

type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

type Offset string

const (
	Open  Offset = "open"
	Close Offset = "close"
)

type OrderStatus string

const (
	StatusSubmitting OrderStatus = "submitting"
	StatusNotTraded  OrderStatus = "not_traded"
	StatusPartTraded OrderStatus = "part_traded"
	StatusAllTraded  OrderStatus = "all_traded"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRejected   OrderStatus = "rejected"
)

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusAllTraded, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// Order is the tracked broker order.
type Order struct {
	VtOrderID string
	VtSymbol  string
	Direction Direction
	Offset    Offset
	Volume    float64
	Traded    float64
	Status    OrderStatus
	Price     float64
}

// Trade is a single fill event applied against a tracked Order.
type Trade struct {
	VtOrderID string
	VtSymbol  string
	Direction Direction
	Offset    Offset
	Volume    float64
	Price     float64
}

// Position is one open or closed trading position.
type Position struct {
	VtSymbol            string
	UnderlyingVtSymbol  string
	Signal              string
	Volume              float64
	TargetVolume        float64
	Direction           Direction
	OpenPrice           float64
	CreateTime          time.Time
	OpenTime            time.Time
	CloseTime           *time.Time
	IsClosed            bool
	IsManuallyClosed    bool

	pendingCloseVolume float64
}

// PendingCloseVolume returns the volume currently queued in outstanding
// close orders against this position (used by sizing's exit clamp).
func (p *Position) PendingCloseVolume() float64 { return p.pendingCloseVolume }

// ExternalPositionReport is what the gateway reports for a broker position
// (used by reconciliation / manual intervention detection).
type ExternalPositionReport struct {
	VtSymbol  string
	Direction Direction
	Volume    float64
}

// Aggregate holds every Position plus pending orders and daily counters.
// Owned exclusively by the Strategy Engine.
type Aggregate struct {
	mu sync.Mutex

	positions    map[string]*Position // keyed by vt_symbol+signal+create_time as a synthetic id
	positionSeq  map[string]*Position // keyed by a caller-assigned position id
	pendingOrders map[string]*Order

	expectedVolume map[string]float64 // vt_symbol -> volume we believe the broker should report (signed)

	dailyOpenCountMap  map[string]int
	globalDailyOpenCount int
	lastTradingDate      time.Time

	manualOpenUpdatesCounters bool // see DESIGN.md for the default rationale

	events []eventbus.Event
}

// NewAggregate creates an empty Position Aggregate. manualOpenUpdatesCounters
// controls whether manual-open detection also bumps the daily open
// counters, or only records the position without touching them.
func NewAggregate(manualOpenUpdatesCounters bool) *Aggregate {
	return &Aggregate{
		positions:          make(map[string]*Position),
		positionSeq:        make(map[string]*Position),
		pendingOrders:      make(map[string]*Order),
		expectedVolume:     make(map[string]float64),
		dailyOpenCountMap:  make(map[string]int),
		manualOpenUpdatesCounters: manualOpenUpdatesCounters,
	}
}

func signedVolume(dir Direction, volume float64) float64 {
	if dir == Short {
		return -volume
	}
	return volume
}

// CreatePosition registers a new position, keyed by a caller-supplied id
// (typically the opening order's vt_orderid so later fills can look it up).
func (a *Aggregate) CreatePosition(id string, p *Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positionSeq[id] = p
	a.positions[p.VtSymbol] = p
}

// RecordOrderSubmitted inserts order into pending tracking on send.
func (a *Aggregate) RecordOrderSubmitted(order *Order) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pendingOrders[order.VtOrderID] = order
}

// ApplyOrderUpdate updates a tracked order on every broker event; terminal
// statuses remove it from "pending" and are otherwise immutable.
func (a *Aggregate) ApplyOrderUpdate(update Order) {
	a.mu.Lock()
	defer a.mu.Unlock()
	existing, ok := a.pendingOrders[update.VtOrderID]
	if !ok {
		a.pendingOrders[update.VtOrderID] = &update
		existing = &update
	}
	if existing.Status.IsTerminal() {
		return // terminal status is immutable
	}
	existing.Status = update.Status
	if update.Traded > existing.Traded {
		existing.Traded = update.Traded
	}
	if existing.Traded > existing.Volume {
		existing.Traded = existing.Volume
	}
	if existing.Status.IsTerminal() {
		delete(a.pendingOrders, update.VtOrderID)
	}
}

// ApplyTrade applies a fill: adjusts the matching position's volume and the
// expected-volume ledger used for manual-intervention detection.
func (a *Aggregate) ApplyTrade(trade Trade) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delta := signedVolume(trade.Direction, trade.Volume)
	if trade.Offset == Close {
		delta = -delta
	}
	a.expectedVolume[trade.VtSymbol] += delta

	pos, ok := a.positions[trade.VtSymbol]
	if !ok {
		return
	}

	switch trade.Offset {
	case Open:
		pos.Volume += trade.Volume
	case Close:
		pos.Volume -= trade.Volume
		if pos.pendingCloseVolume > 0 {
			pos.pendingCloseVolume -= trade.Volume
			if pos.pendingCloseVolume < 0 {
				pos.pendingCloseVolume = 0
			}
		}
		if pos.Volume <= 0 {
			pos.Volume = 0
			pos.IsClosed = true
			now := time.Now()
			pos.CloseTime = &now
			a.events = append(a.events, eventbus.Event{
				Type: eventbus.EventPositionClosed,
				Payload: eventbus.PositionClosed{VtSymbol: pos.VtSymbol, Volume: trade.Volume},
			})
		}
	}
}

// ReconcileExternalPosition compares the broker-reported position against
// the expected volume ledger. An unexplained decrease emits
// ManualCloseDetectedEvent; an unexplained increase emits
// ManualOpenDetectedEvent.
func (a *Aggregate) ReconcileExternalPosition(report ExternalPositionReport) {
	a.mu.Lock()
	defer a.mu.Unlock()

	reportedSigned := signedVolume(report.Direction, report.Volume)
	expected := a.expectedVolume[report.VtSymbol]

	switch {
	case reportedSigned < expected:
		a.events = append(a.events, eventbus.Event{
			Type: eventbus.EventManualCloseDetected,
			Payload: eventbus.ManualCloseDetected{
				VtSymbol:       report.VtSymbol,
				ExpectedVolume: expected,
				ActualVolume:   reportedSigned,
			},
		})
		if pos, ok := a.positions[report.VtSymbol]; ok {
			pos.IsManuallyClosed = true
		}
	case reportedSigned > expected:
		a.events = append(a.events, eventbus.Event{
			Type: eventbus.EventManualOpenDetected,
			Payload: eventbus.ManualOpenDetected{
				VtSymbol:       report.VtSymbol,
				ExpectedVolume: expected,
				ActualVolume:   reportedSigned,
			},
		})
		if a.manualOpenUpdatesCounters {
			a.bumpDailyOpen(report.VtSymbol, reportedSigned-expected)
		}
	}
	a.expectedVolume[report.VtSymbol] = reportedSigned
}

// GetPositionsByUnderlying returns every open position on underlyingVtSymbol.
func (a *Aggregate) GetPositionsByUnderlying(underlyingVtSymbol string) []*Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*Position
	for _, p := range a.positions {
		if p.UnderlyingVtSymbol == underlyingVtSymbol && !p.IsClosed {
			out = append(out, p)
		}
	}
	return out
}

// HasPendingClose reports whether position already has an outstanding
// close order.
func (a *Aggregate) HasPendingClose(p *Position) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return p.pendingCloseVolume > 0
}

// RecordCloseSent marks volume as pending-close against position, called
// when the executor/scheduler dispatches a close order.
func (a *Aggregate) RecordCloseSent(p *Position, volume float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p.pendingCloseVolume += volume
}

func (a *Aggregate) bumpDailyOpen(vtSymbol string, volume float64) {
	a.dailyOpenCountMap[vtSymbol] += int(volume)
	a.globalDailyOpenCount += int(volume)
}

// RecordOpenUsage records volume opened against vtSymbol toward the daily
// caps. Must only be called after the open order has actually been sent.
func (a *Aggregate) RecordOpenUsage(vtSymbol string, volume int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dailyOpenCountMap[vtSymbol] += volume
	a.globalDailyOpenCount += volume
}

// CheckOpenLimit reports whether opening volumeWanted more on vtSymbol
// would still respect the caps. Caps of 0 are treated as "unset/no limit"
// by the caller supplying sizing.Config, not here — this just reports the
// current counters for sizing.calculateOpenVolume to apply its own limits.
func (a *Aggregate) CheckOpenLimit(vtSymbol string, volumeWanted, perSymbolCap, globalCap int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.globalDailyOpenCount+volumeWanted > globalCap {
		return false
	}
	if a.dailyOpenCountMap[vtSymbol]+volumeWanted > perSymbolCap {
		return false
	}
	return true
}

// DailyOpenCount returns the current per-symbol and global counters, for
// sizing/reporting.
func (a *Aggregate) DailyOpenCount(vtSymbol string) (perSymbol, global int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dailyOpenCountMap[vtSymbol], a.globalDailyOpenCount
}

// OpenPositionCount returns the number of currently-open (not closed)
// positions, for the sizing cap on concurrent positions.
func (a *Aggregate) OpenPositionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	count := 0
	for _, p := range a.positions {
		if !p.IsClosed {
			count++
		}
	}
	return count
}

// OnNewTradingDay resets daily counters when date is a new trading session
// date (not calendar day — callers pass the trading-session start date).
func (a *Aggregate) OnNewTradingDay(date time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sameDay(date, a.lastTradingDate) {
		return
	}
	a.lastTradingDate = date
	a.dailyOpenCountMap = make(map[string]int)
	a.globalDailyOpenCount = 0
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// PopDomainEvents drains and returns accumulated domain events.
func (a *Aggregate) PopDomainEvents() []eventbus.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.events
	a.events = nil
	return out
}

// AllPositions returns every tracked position (open and closed), for
// persistence snapshotting.
func (a *Aggregate) AllPositions() []*Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, p)
	}
	return out
}
