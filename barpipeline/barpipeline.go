// Package barpipeline implements the Bar Pipeline: a pass-through variant
// and a windowed aggregation variant selected at construction, flushing
// on a bar-window boundary rather than a trade-count batch.
package barpipeline

import (
	"time"

	"github.com/haka-quant/optionengine/instrument"
)

// Pipeline accepts 1-minute bars and calls back OnWindowBars once a window
// closes. A bar_window of 1 bypasses aggregation (bars pass through
// unchanged); any other value aggregates OHLCV aligned to clock
// boundaries. When a bar from a later window arrives, or on Flush, the
// bars of every symbol that contributed to the window are emitted
// together with the shared window timestamp. Emission does not wait for
// every subscribed symbol: a symbol with no bar in the window is absent
// from that callback.
type Pipeline struct {
	windowMinutes int
	callback      func(bars map[string]instrument.Bar)

	// accumulating state, keyed by vt_symbol, for the windowed variant.
	current       map[string]*instrument.Bar
	windowStart   time.Time
	subscribed    map[string]bool
}

// New creates a Pipeline. windowMinutes <= 1 selects pass-through.
func New(windowMinutes int, callback func(bars map[string]instrument.Bar)) *Pipeline {
	return &Pipeline{
		windowMinutes: windowMinutes,
		callback:      callback,
		current:       make(map[string]*instrument.Bar),
		subscribed:    make(map[string]bool),
	}
}

// Subscribe records vtSymbol in the subscribed set. Flushing a window
// does not consult this set.
func (p *Pipeline) Subscribe(vtSymbol string) {
	p.subscribed[vtSymbol] = true
}

// Unsubscribe removes vtSymbol from the subscribed set and drops its
// in-progress window bar (e.g. on rollover).
func (p *Pipeline) Unsubscribe(vtSymbol string) {
	delete(p.subscribed, vtSymbol)
	delete(p.current, vtSymbol)
}

func (p *Pipeline) isPassThrough() bool { return p.windowMinutes <= 1 }

func alignToWindow(t time.Time, windowMinutes int) time.Time {
	bucket := t.Truncate(time.Duration(windowMinutes) * time.Minute)
	return bucket
}

// HandleBars feeds one arrival of bars (one per symbol) into the pipeline.
// In pass-through mode it calls back immediately. In windowed mode it
// merges into the in-progress window bar per symbol and flushes (calling
// back with every symbol's accumulated bar) once the window boundary
// advances past the previous accumulation.
func (p *Pipeline) HandleBars(bars map[string]instrument.Bar) {
	if p.isPassThrough() {
		p.callback(bars)
		return
	}

	for vtSymbol, bar := range bars {
		bucket := alignToWindow(bar.DateTime, p.windowMinutes)

		if p.windowStart.IsZero() {
			p.windowStart = bucket
		}
		if bucket.After(p.windowStart) {
			p.flush()
			p.windowStart = bucket
		}

		existing, ok := p.current[vtSymbol]
		if !ok {
			merged := bar
			merged.DateTime = bucket
			p.current[vtSymbol] = &merged
			continue
		}
		existing.High = max(existing.High, bar.High)
		existing.Low = min(existing.Low, bar.Low)
		existing.Close = bar.Close
		existing.Volume += bar.Volume
		existing.OpenInterest = bar.OpenInterest
	}
}

// HandleTick is the tick-driven counterpart, translating a single tick
// into a synthetic bar at its minute bucket before delegating to
// HandleBars. In pass-through mode that bar goes straight to the callback,
// one callback per tick; in windowed mode it merges into the in-progress
// window bar.
func (p *Pipeline) HandleTick(vtSymbol string, tickTime time.Time, price, volume float64) {
	minuteBucket := tickTime.Truncate(time.Minute)
	bar := instrument.Bar{DateTime: minuteBucket, Open: price, High: price, Low: price, Close: price, Volume: volume}
	p.HandleBars(map[string]instrument.Bar{vtSymbol: bar})
}

func (p *Pipeline) flush() {
	if len(p.current) == 0 {
		return
	}
	out := make(map[string]instrument.Bar, len(p.current))
	for vtSymbol, bar := range p.current {
		out[vtSymbol] = *bar
	}
	p.callback(out)
	p.current = make(map[string]*instrument.Bar)
}

// Flush forces emission of any in-progress window bar (e.g. at session
// close), regardless of whether the next window boundary has arrived.
func (p *Pipeline) Flush() {
	if !p.isPassThrough() {
		p.flush()
	}
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
