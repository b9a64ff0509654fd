// Package executor implements the Smart Order Executor: adaptive
// pricing, tick rounding, and the timeout/retry state machine, driven by
// a per-order deadline watch rather than a periodic refresh loop.
package executor

import (
	"time"

	"github.com/haka-quant/optionengine/eventbus"
	"github.com/haka-quant/optionengine/moneymath"
)

type State string

const (
	StateSubmitted State = "SUBMITTED"
	StateFilled    State = "FILLED"
	StateTimedOut  State = "TIMED_OUT"
	StateExhausted State = "EXHAUSTED"
	StateCancelled State = "CANCELLED"
)

// ManagedOrder is the executor's per-order tracking record.
type ManagedOrder struct {
	VtOrderID    string
	VtSymbol     string
	IsBuy        bool
	Volume       float64
	OriginalPrice float64
	SendTime     time.Time
	Deadline     time.Time
	RetryCount   int
	MaxRetries   int
	State        State
}

// AdaptivePrice biases referencePrice toward the taker side by up to
// slippageTicks * pricetick, then rounds to the nearest valid tick with
// direction-aware rounding for the aggressive side.
func AdaptivePrice(referencePrice, pricetick float64, slippageTicks int, isBuy bool) float64 {
	slip := float64(slippageTicks) * pricetick
	biased := referencePrice
	if isBuy {
		biased += slip
	} else {
		biased -= slip
	}
	return moneymath.RoundToTick(biased, pricetick, isBuy, true)
}

// Executor tracks every in-flight managed order and drives its state
// machine: SUBMITTED -> FILLED | TIMED_OUT -> RETRY? -> SUBMITTED |
// EXHAUSTED, and SUBMITTED -> CANCELLED on a broker reject/cancel.
type Executor struct {
	orders map[string]*ManagedOrder
}

func New() *Executor {
	return &Executor{orders: make(map[string]*ManagedOrder)}
}

// Submit registers a freshly sent order.
func (e *Executor) Submit(order *ManagedOrder) {
	order.State = StateSubmitted
	e.orders[order.VtOrderID] = order
}

// OnFilled transitions order to the terminal FILLED state and removes it
// from tracking.
func (e *Executor) OnFilled(vtOrderID string) {
	if o, ok := e.orders[vtOrderID]; ok {
		o.State = StateFilled
		delete(e.orders, vtOrderID)
	}
}

// OnRejectedOrCancelled transitions order to the terminal CANCELLED state.
func (e *Executor) OnRejectedOrCancelled(vtOrderID string) {
	if o, ok := e.orders[vtOrderID]; ok {
		o.State = StateCancelled
		delete(e.orders, vtOrderID)
	}
}

// RetryDecision is what CheckTimeouts tells the caller to do with a timed
// out order: either resubmit with NewPrice, or give up (Exhausted).
type RetryDecision struct {
	Order      *ManagedOrder
	Exhausted  bool
	NewPrice   float64
}

// CheckTimeouts scans tracked orders for deadlines that have passed as of
// now, emits OrderTimeoutEvent for each, and returns a RetryDecision per
// timed-out order: resubmit (incrementing retry_count, new adaptive price
// via priceFn) if retries remain, else EXHAUSTED (emitting
// OrderRetryExhaustedEvent too).
func (e *Executor) CheckTimeouts(now time.Time, priceFn func(order *ManagedOrder) float64) ([]RetryDecision, []eventbus.Event) {
	var decisions []RetryDecision
	var events []eventbus.Event

	for id, o := range e.orders {
		if o.State != StateSubmitted || now.Before(o.Deadline) {
			continue
		}
		o.State = StateTimedOut
		events = append(events, eventbus.Event{
			Type: eventbus.EventOrderTimeout,
			Payload: eventbus.OrderTimeout{VtOrderID: o.VtOrderID, VtSymbol: o.VtSymbol, RetryCount: o.RetryCount},
		})

		if o.RetryCount < o.MaxRetries {
			o.RetryCount++
			newPrice := priceFn(o)
			decisions = append(decisions, RetryDecision{Order: o, NewPrice: newPrice})
			o.State = StateSubmitted
			o.OriginalPrice = newPrice
		} else {
			o.State = StateExhausted
			events = append(events, eventbus.Event{
				Type: eventbus.EventOrderRetryExhausted,
				Payload: eventbus.OrderRetryExhausted{VtOrderID: o.VtOrderID, VtSymbol: o.VtSymbol, RetryCount: o.RetryCount},
			})
			decisions = append(decisions, RetryDecision{Order: o, Exhausted: true})
			delete(e.orders, id)
		}
	}
	return decisions, events
}

// Get returns the tracked managed order, if any.
func (e *Executor) Get(vtOrderID string) (*ManagedOrder, bool) {
	o, ok := e.orders[vtOrderID]
	return o, ok
}

// PendingCount returns the number of orders currently tracked in any
// non-terminal state.
func (e *Executor) PendingCount() int {
	return len(e.orders)
}
