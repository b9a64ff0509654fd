// Package scheduler implements the Advanced Order Scheduler: six
// order-splitting algorithms that emit child orders over time and react
// to fills.
package scheduler

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/haka-quant/optionengine/apperr"
	"github.com/haka-quant/optionengine/eventbus"
	"github.com/haka-quant/optionengine/moneymath"
)

type OrderType string

const (
	Iceberg        OrderType = "ICEBERG"
	ClassicIceberg OrderType = "CLASSIC_ICEBERG"
	TimedSplit     OrderType = "TIMED_SPLIT"
	TWAP           OrderType = "TWAP"
	EnhancedTWAP   OrderType = "ENHANCED_TWAP"
	VWAP           OrderType = "VWAP"
)

type Status string

const (
	Pending   Status = "PENDING"
	Active    Status = "ACTIVE"
	Complete  Status = "COMPLETE"
	Cancelled Status = "CANCELLED"
)

// ChildOrder is one scheduled slice of a parent advanced order.
type ChildOrder struct {
	ID            string
	ScheduledTime time.Time
	Volume        int
	PriceOffset   float64 // in ticks
	VtOrderID     string
	Submitted     bool
	Filled        int
	Cancelled     bool
}

func (c *ChildOrder) isFullyFilled() bool { return c.Filled >= c.Volume }

// AdvancedOrder is the parent split order.
type AdvancedOrder struct {
	AdvancedID   string
	VtSymbol     string
	IsBuy        bool
	Type         OrderType
	Status       Status
	TotalVolume  int
	FilledVolume int
	Children     []*ChildOrder
}

// eventForType maps an order type to its completion EventType.
func eventForType(t OrderType) eventbus.EventType {
	switch t {
	case Iceberg:
		return eventbus.EventIcebergComplete
	case ClassicIceberg:
		return eventbus.EventClassicIcebergComplete
	case TimedSplit:
		return eventbus.EventTimedSplitComplete
	case TWAP, EnhancedTWAP:
		return eventbus.EventTWAPComplete
	case VWAP:
		return eventbus.EventVWAPComplete
	default:
		return eventbus.EventIcebergComplete
	}
}

// Scheduler owns every in-flight advanced order.
type Scheduler struct {
	orders map[string]*AdvancedOrder
	rng    *rand.Rand
}

// New creates a Scheduler. seed fixes the jitter RNG for CLASSIC_ICEBERG —
// pass a time-derived seed in production, a fixed one in tests.
func New(seed int64) *Scheduler {
	return &Scheduler{orders: make(map[string]*AdvancedOrder), rng: rand.New(rand.NewSource(seed))}
}

func newAdvancedID() string { return uuid.NewString() }

// SubmitIceberg splits total into ceil(total/batchSize) equal children
// (last absorbs the remainder). Next child is only released once the
// previous one is fully filled.
func (s *Scheduler) SubmitIceberg(vtSymbol string, isBuy bool, total, batchSize int, start time.Time) (*AdvancedOrder, error) {
	if total <= 0 || batchSize <= 0 {
		return nil, apperr.NewValidationError("total/batch_size", "must be positive")
	}
	n := (total + batchSize - 1) / batchSize
	volumes := make([]int, n)
	for i := 0; i < n-1; i++ {
		volumes[i] = batchSize
	}
	volumes[n-1] = total - batchSize*(n-1)

	order := s.newOrder(vtSymbol, isBuy, Iceberg, total)
	for _, v := range volumes {
		order.Children = append(order.Children, &ChildOrder{ID: uuid.NewString(), ScheduledTime: start, Volume: v})
	}
	s.orders[order.AdvancedID] = order
	return order, nil
}

// SubmitClassicIceberg splits by perOrderVolume with per-child random
// jitter in [1-r, 1+r]*perOrderVolume, adjusted so the sum is exactly
// total, plus a per-child price offset uniform in [-k, +k] ticks.
func (s *Scheduler) SubmitClassicIceberg(vtSymbol string, isBuy bool, total, perOrderVolume int, randomizationRatio float64, offsetTicksK float64, start time.Time) (*AdvancedOrder, error) {
	if total <= 0 || perOrderVolume <= 0 {
		return nil, apperr.NewValidationError("total/per_order_volume", "must be positive")
	}
	if randomizationRatio < 0 || randomizationRatio > 1 {
		return nil, apperr.NewValidationError("randomization_ratio", "must be within [0, 1]")
	}

	n := (total + perOrderVolume - 1) / perOrderVolume
	volumes := make([]int, n)
	for i := 0; i < n; i++ {
		lo := 1 - randomizationRatio
		hi := 1 + randomizationRatio
		factor := lo + s.rng.Float64()*(hi-lo)
		volumes[i] = int(float64(perOrderVolume) * factor)
		if volumes[i] <= 0 {
			volumes[i] = 1
		}
	}
	adjustToSum(volumes, total)

	order := s.newOrder(vtSymbol, isBuy, ClassicIceberg, total)
	for _, v := range volumes {
		offset := (s.rng.Float64()*2 - 1) * offsetTicksK
		order.Children = append(order.Children, &ChildOrder{ID: uuid.NewString(), ScheduledTime: start, Volume: v, PriceOffset: offset})
	}
	s.orders[order.AdvancedID] = order
	return order, nil
}

// adjustToSum forces volumes to sum exactly to total by assigning the
// entire rounding discrepancy to the largest jittered slice, matching the
// spec's "rounding errors assigned to the largest slice" rule (used here
// for classic-iceberg jitter; SubmitVWAP applies the same rule inline).
func adjustToSum(volumes []int, total int) {
	sum := 0
	largest := 0
	for i, v := range volumes {
		sum += v
		if v > volumes[largest] {
			largest = i
		}
	}
	volumes[largest] += total - sum
}

// SubmitTimedSplit splits by perOrderVolume, each child scheduled at
// start + i*intervalSeconds, independent of prior fills.
func (s *Scheduler) SubmitTimedSplit(vtSymbol string, isBuy bool, total, perOrderVolume, intervalSeconds int, start time.Time) (*AdvancedOrder, error) {
	if total <= 0 || perOrderVolume <= 0 {
		return nil, apperr.NewValidationError("total/per_order_volume", "must be positive")
	}
	n := (total + perOrderVolume - 1) / perOrderVolume
	volumes := make([]int, n)
	for i := 0; i < n-1; i++ {
		volumes[i] = perOrderVolume
	}
	volumes[n-1] = total - perOrderVolume*(n-1)

	order := s.newOrder(vtSymbol, isBuy, TimedSplit, total)
	for i, v := range volumes {
		t := start.Add(time.Duration(i*intervalSeconds) * time.Second)
		order.Children = append(order.Children, &ChildOrder{ID: uuid.NewString(), ScheduledTime: t, Volume: v})
	}
	s.orders[order.AdvancedID] = order
	return order, nil
}

// SubmitTWAP divides total into numSlices equal pieces scheduled evenly
// across timeWindowSeconds.
func (s *Scheduler) SubmitTWAP(vtSymbol string, isBuy bool, total, numSlices, timeWindowSeconds int, start time.Time) (*AdvancedOrder, error) {
	return s.submitTWAPLike(vtSymbol, isBuy, total, numSlices, timeWindowSeconds, start, TWAP)
}

// SubmitEnhancedTWAP is TWAP parameterized identically but tagged
// ENHANCED_TWAP for reporting/completion-event purposes.
func (s *Scheduler) SubmitEnhancedTWAP(vtSymbol string, isBuy bool, total, numSlices, timeWindowSeconds int, start time.Time) (*AdvancedOrder, error) {
	return s.submitTWAPLike(vtSymbol, isBuy, total, numSlices, timeWindowSeconds, start, EnhancedTWAP)
}

func (s *Scheduler) submitTWAPLike(vtSymbol string, isBuy bool, total, numSlices, timeWindowSeconds int, start time.Time, kind OrderType) (*AdvancedOrder, error) {
	if total <= 0 || numSlices <= 0 {
		return nil, apperr.NewValidationError("total/num_slices", "must be positive")
	}
	if timeWindowSeconds <= 0 {
		return nil, apperr.NewValidationError("time_window_seconds", "must be positive")
	}

	volumes := moneymath.SplitVolume(total, numSlices)
	order := s.newOrder(vtSymbol, isBuy, kind, total)
	stepSeconds := float64(timeWindowSeconds) / float64(numSlices)
	for i, v := range volumes {
		t := start.Add(time.Duration(float64(i)*stepSeconds) * time.Second)
		order.Children = append(order.Children, &ChildOrder{ID: uuid.NewString(), ScheduledTime: t, Volume: v})
	}
	s.orders[order.AdvancedID] = order
	return order, nil
}

// SubmitVWAP allocates total across slices proportional to volumeProfile
// (must sum to 1, rounding errors assigned to the largest slice),
// scheduled evenly across timeWindowSeconds.
func (s *Scheduler) SubmitVWAP(vtSymbol string, isBuy bool, total int, volumeProfile []float64, timeWindowSeconds int, start time.Time) (*AdvancedOrder, error) {
	if total <= 0 {
		return nil, apperr.NewValidationError("total", "must be positive")
	}
	if len(volumeProfile) == 0 {
		return nil, apperr.NewValidationError("volume_profile", "must not be empty")
	}
	if timeWindowSeconds <= 0 {
		return nil, apperr.NewValidationError("time_window_seconds", "must be positive")
	}

	volumes := make([]int, len(volumeProfile))
	largest := 0
	sum := 0
	for i, w := range volumeProfile {
		volumes[i] = int(w * float64(total))
		sum += volumes[i]
		if volumes[i] > volumes[largest] {
			largest = i
		}
	}
	volumes[largest] += total - sum

	order := s.newOrder(vtSymbol, isBuy, VWAP, total)
	stepSeconds := float64(timeWindowSeconds) / float64(len(volumeProfile))
	for i, v := range volumes {
		t := start.Add(time.Duration(float64(i)*stepSeconds) * time.Second)
		order.Children = append(order.Children, &ChildOrder{ID: uuid.NewString(), ScheduledTime: t, Volume: v})
	}
	s.orders[order.AdvancedID] = order
	return order, nil
}

func (s *Scheduler) newOrder(vtSymbol string, isBuy bool, t OrderType, total int) *AdvancedOrder {
	return &AdvancedOrder{
		AdvancedID:  newAdvancedID(),
		VtSymbol:    vtSymbol,
		IsBuy:       isBuy,
		Type:        t,
		Status:      Pending,
		TotalVolume: total,
	}
}

// GetPendingChildren returns children with scheduled_time <= now that
// haven't been submitted yet, honoring iceberg gating: for
// ICEBERG/CLASSIC_ICEBERG, nothing is returned while any earlier child
// is still outstanding.
func (s *Scheduler) GetPendingChildren(advancedID string, now time.Time) []*ChildOrder {
	order, ok := s.orders[advancedID]
	if !ok || order.Status == Complete || order.Status == Cancelled {
		return nil
	}

	iceberg := order.Type == Iceberg || order.Type == ClassicIceberg
	var ready []*ChildOrder
	for _, c := range order.Children {
		if c.Cancelled || c.isFullyFilled() {
			continue
		}
		if c.Submitted {
			if iceberg {
				return nil // a prior child is still outstanding
			}
			continue
		}
		if c.ScheduledTime.After(now) {
			if iceberg {
				break // scheduled times are non-decreasing; nothing further is ready either
			}
			continue
		}
		ready = append(ready, c)
		if iceberg {
			break // only ever release one child at a time
		}
	}
	if len(ready) > 0 {
		order.Status = Active
		for _, c := range ready {
			c.Submitted = true
		}
	}
	return ready
}

// OnChildFilled records a fill against the child whose ID is childID and
// emits the parent's completion event once every child is fully filled.
func (s *Scheduler) OnChildFilled(advancedID, childID string, filledVolume int) (*eventbus.Event, error) {
	order, ok := s.orders[advancedID]
	if !ok {
		return nil, apperr.NewValidationError("advanced_id", "unknown advanced order")
	}

	for _, c := range order.Children {
		if c.ID == childID {
			c.Filled += filledVolume
			if c.Filled > c.Volume {
				c.Filled = c.Volume
			}
			break
		}
	}

	total := 0
	for _, c := range order.Children {
		total += c.Filled
	}
	order.FilledVolume = total

	if total == order.TotalVolume {
		order.Status = Complete
		evt := eventbus.Event{
			Type: eventForType(order.Type),
			Payload: eventbus.AdvancedOrderComplete{
				AdvancedID:  order.AdvancedID,
				OrderType:   string(order.Type),
				VtSymbol:    order.VtSymbol,
				TotalVolume: order.TotalVolume,
			},
		}
		return &evt, nil
	}
	return nil, nil
}

// CancelOrder marks every remaining (unsubmitted, unfilled) child
// cancelled and returns their ids, emitting AdvancedOrderCancelledEvent.
func (s *Scheduler) CancelOrder(advancedID string) ([]string, eventbus.Event, error) {
	order, ok := s.orders[advancedID]
	if !ok {
		return nil, eventbus.Event{}, apperr.NewValidationError("advanced_id", "unknown advanced order")
	}

	var cancelledIDs []string
	for _, c := range order.Children {
		if c.Submitted || c.isFullyFilled() || c.Cancelled {
			continue
		}
		c.Cancelled = true
		cancelledIDs = append(cancelledIDs, c.ID)
	}
	order.Status = Cancelled

	evt := eventbus.Event{
		Type: eventbus.EventAdvancedOrderCancelled,
		Payload: eventbus.AdvancedOrderCancelled{
			AdvancedID:          order.AdvancedID,
			UnscheduledChildIDs: cancelledIDs,
		},
	}
	return cancelledIDs, evt, nil
}

// Get returns the tracked advanced order, if any.
func (s *Scheduler) Get(advancedID string) (*AdvancedOrder, bool) {
	order, ok := s.orders[advancedID]
	return order, ok
}

// ActiveCount reports the number of advanced orders not yet in a terminal
// state (COMPLETE or CANCELLED), for the monitor snapshot writer.
func (s *Scheduler) ActiveCount() int {
	n := 0
	for _, o := range s.orders {
		if o.Status == Pending || o.Status == Active {
			n++
		}
	}
	return n
}
