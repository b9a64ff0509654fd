// Package instrument implements the Instrument Aggregate: per-symbol bar
// history, an open indicator dictionary, and the active-contract map.
// Exclusively owned by the Strategy Engine; external callers only see it
// through the query methods below, which return copies.
package instrument

import (
	"sync"
	"time"

	"github.com/haka-quant/optionengine/apperr"
)

// Bar is one OHLCV observation (base 1-minute or aggregated window bar).
type Bar struct {
	DateTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	OpenInterest float64
}

// IndicatorValue is the open, type-erased union the design notes call for:
// a mapping from indicator name to {Float | Int | String | Struct}.
// Exactly one of the typed fields is meaningful; Kind says which.
type IndicatorValue struct {
	Kind   IndicatorKind
	Float  float64
	Int    int64
	String string
	Struct interface{}
}

type IndicatorKind int

const (
	KindFloat IndicatorKind = iota
	KindInt
	KindString
	KindStruct
)

func FloatValue(v float64) IndicatorValue  { return IndicatorValue{Kind: KindFloat, Float: v} }
func IntValue(v int64) IndicatorValue      { return IndicatorValue{Kind: KindInt, Int: v} }
func StringValue(v string) IndicatorValue  { return IndicatorValue{Kind: KindString, String: v} }
func StructValue(v interface{}) IndicatorValue { return IndicatorValue{Kind: KindStruct, Struct: v} }

// Instrument is one symbol's market history + indicator state. bars is
// capped at maxBars so history retention never grows unbounded.
type Instrument struct {
	mu              sync.RWMutex
	VtSymbol        string
	bars            []Bar
	maxBars         int
	indicators      map[string]IndicatorValue
	lastUpdateTime  time.Time
}

func newInstrument(vtSymbol string, maxBars int) *Instrument {
	if maxBars <= 0 {
		maxBars = 2000
	}
	return &Instrument{
		VtSymbol:   vtSymbol,
		maxBars:    maxBars,
		indicators: make(map[string]IndicatorValue),
	}
}

// AppendBar enforces strict datetime monotonicity (invariant: bar
// datetimes strictly increase; duplicates at the same timestamp rejected).
func (i *Instrument) AppendBar(bar Bar) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.bars) > 0 {
		last := i.bars[len(i.bars)-1]
		if !bar.DateTime.After(last.DateTime) {
			return apperr.NewValidationErrorWithValue("bar.DateTime", "must strictly increase over the last appended bar", bar.DateTime)
		}
	}

	i.bars = append(i.bars, bar)
	if len(i.bars) > i.maxBars {
		i.bars = i.bars[len(i.bars)-i.maxBars:]
	}
	i.lastUpdateTime = bar.DateTime
	return nil
}

// BarHistory returns up to the last n bars, oldest first, as a copy.
func (i *Instrument) BarHistory(n int) []Bar {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if n <= 0 || n > len(i.bars) {
		n = len(i.bars)
	}
	out := make([]Bar, n)
	copy(out, i.bars[len(i.bars)-n:])
	return out
}

// LatestPrice returns the close of the most recent bar, and false if no
// bars have been appended yet.
func (i *Instrument) LatestPrice() (float64, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if len(i.bars) == 0 {
		return 0, false
	}
	return i.bars[len(i.bars)-1].Close, true
}

// HasEnoughData reports whether at least minLen bars have been appended.
func (i *Instrument) HasEnoughData(minLen int) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.bars) >= minLen
}

// SetIndicator writes value under name; the invariant that indicator
// entries correspond to the last appended bar is the caller's
// responsibility (indicator services run immediately after AppendBar).
func (i *Instrument) SetIndicator(name string, value interface{}) {
	i.mu.Lock()
	defer i.mu.Unlock()
	switch v := value.(type) {
	case float64:
		i.indicators[name] = FloatValue(v)
	case int64:
		i.indicators[name] = IntValue(v)
	case int:
		i.indicators[name] = IntValue(int64(v))
	case string:
		i.indicators[name] = StringValue(v)
	default:
		i.indicators[name] = StructValue(v)
	}
}

// Indicator returns the raw tagged value and whether it was present.
func (i *Instrument) Indicator(name string) (IndicatorValue, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v, ok := i.indicators[name]
	return v, ok
}

// IndicatorFloat is a typed accessor per the design notes' "map to a
// type-erased container with typed accessors per indicator" guidance.
func (i *Instrument) IndicatorFloat(name string) (float64, bool) {
	v, ok := i.Indicator(name)
	if !ok || v.Kind != KindFloat {
		return 0, false
	}
	return v.Float, true
}

func (i *Instrument) IndicatorInt(name string) (int64, bool) {
	v, ok := i.Indicator(name)
	if !ok || v.Kind != KindInt {
		return 0, false
	}
	return v.Int, true
}

func (i *Instrument) IndicatorString(name string) (string, bool) {
	v, ok := i.Indicator(name)
	if !ok || v.Kind != KindString {
		return "", false
	}
	return v.String, true
}

// LastUpdateTime returns the datetime of the most recently appended bar.
func (i *Instrument) LastUpdateTime() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastUpdateTime
}

// Aggregate owns every Instrument plus the active-contract map.
// Exclusively owned by the Strategy Engine.
type Aggregate struct {
	mu               sync.RWMutex
	instruments      map[string]*Instrument
	activeContracts  map[string]string // product -> vt_symbol
	maxBarsPerSymbol int
}

// NewAggregate creates an empty Instrument Aggregate. maxBarsPerSymbol
// bounds per-symbol bar retention (0 uses the package default).
func NewAggregate(maxBarsPerSymbol int) *Aggregate {
	return &Aggregate{
		instruments:     make(map[string]*Instrument),
		activeContracts: make(map[string]string),
		maxBarsPerSymbol: maxBarsPerSymbol,
	}
}

// GetOrCreate returns the Instrument for vtSymbol, creating it on first
// observation.
func (a *Aggregate) GetOrCreate(vtSymbol string) *Instrument {
	a.mu.Lock()
	defer a.mu.Unlock()
	inst, ok := a.instruments[vtSymbol]
	if !ok {
		inst = newInstrument(vtSymbol, a.maxBarsPerSymbol)
		a.instruments[vtSymbol] = inst
	}
	return inst
}

// Get returns the Instrument for vtSymbol if it exists.
func (a *Aggregate) Get(vtSymbol string) (*Instrument, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	inst, ok := a.instruments[vtSymbol]
	return inst, ok
}

// AppendBar is a convenience wrapper over GetOrCreate + AppendBar.
func (a *Aggregate) AppendBar(vtSymbol string, bar Bar) error {
	return a.GetOrCreate(vtSymbol).AppendBar(bar)
}

// GetBarHistory returns up to n bars for vtSymbol, or nil if unknown.
func (a *Aggregate) GetBarHistory(vtSymbol string, n int) []Bar {
	inst, ok := a.Get(vtSymbol)
	if !ok {
		return nil
	}
	return inst.BarHistory(n)
}

// GetLatestPrice returns the latest close for vtSymbol.
func (a *Aggregate) GetLatestPrice(vtSymbol string) (float64, bool) {
	inst, ok := a.Get(vtSymbol)
	if !ok {
		return 0, false
	}
	return inst.LatestPrice()
}

// HasEnoughData reports whether vtSymbol has at least minLen bars.
func (a *Aggregate) HasEnoughData(vtSymbol string, minLen int) bool {
	inst, ok := a.Get(vtSymbol)
	if !ok {
		return false
	}
	return inst.HasEnoughData(minLen)
}

// SetActiveContract records product's currently-traded vt_symbol.
// Invariant: at most one active contract per product (overwriting the map
// entry enforces this trivially since it's keyed by product).
func (a *Aggregate) SetActiveContract(product, vtSymbol string) (changed bool, old string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	old, existed := a.activeContracts[product]
	if existed && old == vtSymbol {
		return false, old
	}
	a.activeContracts[product] = vtSymbol
	return true, old
}

// GetActiveContract returns the currently active vt_symbol for product.
func (a *Aggregate) GetActiveContract(product string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.activeContracts[product]
	return s, ok
}

// GetAllActiveContracts returns a copy of the product -> vt_symbol map.
func (a *Aggregate) GetAllActiveContracts() map[string]string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]string, len(a.activeContracts))
	for k, v := range a.activeContracts {
		out[k] = v
	}
	return out
}

// Symbols returns every vt_symbol currently tracked, for iteration by the
// strategy engine's per-bar flow.
func (a *Aggregate) Symbols() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.instruments))
	for s := range a.instruments {
		out = append(out, s)
	}
	return out
}
