// Package strategy implements the Strategy Engine: the orchestrator that
// wires the Instrument and Position Aggregates to the indicator, signal,
// selector, risk, sizing, executor, and scheduler services and drives the
// per-window-bar flow.
package strategy

import (
	"log"
	"sync"
	"time"

	"github.com/haka-quant/optionengine/eventbus"
	"github.com/haka-quant/optionengine/executor"
	"github.com/haka-quant/optionengine/gateway"
	"github.com/haka-quant/optionengine/greeks"
	"github.com/haka-quant/optionengine/hedge"
	"github.com/haka-quant/optionengine/indicator"
	"github.com/haka-quant/optionengine/instrument"
	"github.com/haka-quant/optionengine/persistence"
	"github.com/haka-quant/optionengine/position"
	"github.com/haka-quant/optionengine/risk"
	"github.com/haka-quant/optionengine/scheduler"
	"github.com/haka-quant/optionengine/selector"
	"github.com/haka-quant/optionengine/signal"
	"github.com/haka-quant/optionengine/sizing"
)

// ServiceBundle collects the pluggable strategy services the engine is
// constructed with. Indicator, Signal and Sizer are required;
// SignalToOptionType may be nil, in which case every open signal takes the
// future-open path.
type ServiceBundle struct {
	Indicator indicator.Bundle
	Signal    signal.Service
	Sizer     sizing.Sizer

	// SignalToOptionType maps an open-signal string to the option side it
	// should trade. Open-vocabulary per signal's own design — the engine
	// never parses signal names itself.
	SignalToOptionType func(sig string) (selector.OptionType, bool)
}

// Config holds the engine's tunables, sourced from config.TradingConfig /
// config.RiskConfig / config.SchedulerConfig at wiring time.
type Config struct {
	StrategyName string

	Products      []string       // product codes the rollover check manages
	CZCEProducts  map[string]bool // product -> uses the 3-digit CZCE expiry suffix

	RolloverHour   int
	RolloverMinute int

	LiquidityFilter selector.LiquidityFilter
	MinDaysToExpiry int
	MaxDaysToExpiry int
	DefaultOTMLevel int
	DefaultOpenVolume int // desired volume before sizing's clamps apply

	ContractMultiplier float64
	RiskFreeRate       float64
	IVConfig           greeks.IVConfig

	SizingConfig sizing.Config

	OrderTimeout          time.Duration
	MaxRetries            int
	AdaptiveSlippageTicks int

	BlockOpensOnRiskBreach bool
}

// Engine is the Strategy Engine. It owns no broker handles of its own —
// only the gateway touches the broker — and is driven entirely by the
// worker's single-threaded event loop; none of its methods are safe for
// concurrent use.
type Engine struct {
	cfg      Config
	services ServiceBundle

	instruments *instrument.Aggregate
	positions   *position.Aggregate
	riskAgg     *risk.Aggregator
	executor    *executor.Executor
	scheduler   *scheduler.Scheduler
	bus         *eventbus.Bus
	gw          gateway.Port
	repo        *persistence.Repository

	futureCandidates func(product string) []selector.FutureCandidate
	optionChain      func(underlyingVtSymbol string) []selector.OptionQuote
	account          func() sizing.AccountSnapshot

	lastRolloverDate time.Time

	posGreeksMu sync.Mutex
	posGreeks   map[string]risk.PositionGreeks // option vt_symbol -> cached per-unit greeks at open

	lastPortfolioGreeks risk.PortfolioGreeks

	pending []eventbus.Event
}

// New constructs an Engine from its dependencies. futureCandidates and
// optionChain are data-access hooks the worker fills in from gateway
// contract/tick caches (the generic gateway.Port has no chain-scan method
// of its own — see DESIGN.md).
func New(
	cfg Config,
	services ServiceBundle,
	instruments *instrument.Aggregate,
	positions *position.Aggregate,
	riskAgg *risk.Aggregator,
	exec *executor.Executor,
	sched *scheduler.Scheduler,
	bus *eventbus.Bus,
	gw gateway.Port,
	repo *persistence.Repository,
	futureCandidates func(product string) []selector.FutureCandidate,
	optionChain func(underlyingVtSymbol string) []selector.OptionQuote,
	account func() sizing.AccountSnapshot,
) *Engine {
	return &Engine{
		cfg:              cfg,
		services:         services,
		instruments:      instruments,
		positions:        positions,
		riskAgg:          riskAgg,
		executor:         exec,
		scheduler:        sched,
		bus:              bus,
		gw:               gw,
		repo:             repo,
		futureCandidates: futureCandidates,
		optionChain:      optionChain,
		account:          account,
		posGreeks:        make(map[string]risk.PositionGreeks),
	}
}

// ProcessWindowBar runs the full per-bar flow: instrument update,
// indicators, rollover, close signals, open signals, event publication,
// auto-save. Any per-symbol error (e.g. a monotonicity violation) is
// logged and that symbol is skipped for the remainder of this bar —
// runtime errors never propagate past the engine boundary.
func (e *Engine) ProcessWindowBar(bars map[string]instrument.Bar, now time.Time) {
	updated := make([]string, 0, len(bars))
	for vtSymbol, bar := range bars {
		if err := e.instruments.AppendBar(vtSymbol, bar); err != nil {
			log.Printf("strategy: rejecting bar for %s at %s: %v", vtSymbol, bar.DateTime, err)
			continue
		}
		updated = append(updated, vtSymbol)
	}

	for _, vtSymbol := range updated {
		inst, ok := e.instruments.Get(vtSymbol)
		if !ok {
			continue
		}
		bar := bars[vtSymbol]
		e.services.Indicator.CalculateBar(inst, bar)
	}

	e.runRollover(now)
	e.refreshPortfolioRisk()

	for _, vtSymbol := range updated {
		e.checkCloses(vtSymbol, now)
	}

	blocked := e.cfg.BlockOpensOnRiskBreach && e.riskAgg.IsPortfolioBreached()
	if blocked {
		log.Printf("strategy: portfolio risk breached, skipping open checks for this bar")
	} else {
		for _, vtSymbol := range updated {
			e.checkOpens(vtSymbol, now)
		}
	}

	e.pending = append(e.pending, e.positions.PopDomainEvents()...)
	e.bus.PublishAll(e.pending)
	e.pending = nil

	if e.repo != nil {
		snapshot := e.BuildSnapshot(now)
		if err := e.repo.Save(e.cfg.StrategyName, snapshot); err != nil {
			log.Printf("strategy: auto-save failed for %q: %v", e.cfg.StrategyName, err)
		}
	}
}

// RunHedgeCycle runs Delta Hedging / Gamma Scalping against the current
// portfolio Greeks. Called by the worker on its own slower cadence, not
// from ProcessWindowBar: hedgeSymbol is the instrument used to rebalance
// (typically the underlying future itself).
func (e *Engine) RunHedgeCycle(cfg hedge.Config, hedgeSymbol string) {
	total := e.totalPortfolioGreeks()

	deltaInstr := hedge.CalculateDeltaHedge(total.Delta, cfg)
	if deltaInstr.Volume != 0 {
		e.bus.Publish(eventbus.Event{
			Type:    eventbus.EventHedgeExecuted,
			Payload: eventbus.HedgeExecuted{Kind: "delta", VtSymbol: hedgeSymbol, Volume: deltaInstr.Volume},
		})
		e.dispatchHedge(hedgeSymbol, deltaInstr.Volume)
	}

	scalpInstr := hedge.CalculateGammaScalp(total.Delta, total.Gamma, cfg)
	if scalpInstr.Volume != 0 {
		e.bus.Publish(eventbus.Event{
			Type:    eventbus.EventHedgeExecuted,
			Payload: eventbus.HedgeExecuted{Kind: "gamma", VtSymbol: hedgeSymbol, Volume: scalpInstr.Volume},
		})
		e.dispatchHedge(hedgeSymbol, scalpInstr.Volume)
	}
}

func (e *Engine) dispatchHedge(vtSymbol string, signedVolume int) {
	if signedVolume == 0 {
		return
	}
	dir := gateway.DirectionLong
	vol := signedVolume
	if signedVolume < 0 {
		dir = gateway.DirectionShort
		vol = -signedVolume
	}
	_, err := e.gw.SendOrder(gateway.OrderInstruction{
		VtSymbol:  vtSymbol,
		Direction: dir,
		Offset:    gateway.OffsetOpen,
		Volume:    float64(vol),
		OrderType: gateway.OrderTypeMarket,
	})
	if err != nil {
		log.Printf("strategy: hedge dispatch for %s failed: %v", vtSymbol, err)
	}
}

// OnOrderUpdate forwards a broker order event into the Position Aggregate
// and the Smart Executor, wired by the worker to gateway.Port.OnOrder.
func (e *Engine) OnOrderUpdate(u gateway.OrderUpdate) {
	e.positions.ApplyOrderUpdate(position.Order{
		VtOrderID: u.VtOrderID,
		VtSymbol:  u.VtSymbol,
		Status:    position.OrderStatus(u.Status),
		Traded:    u.Traded,
	})
	switch position.OrderStatus(u.Status) {
	case position.StatusAllTraded:
		e.executor.OnFilled(u.VtOrderID)
	case position.StatusCancelled, position.StatusRejected:
		e.executor.OnRejectedOrCancelled(u.VtOrderID)
	}
}

// OnTrade forwards a broker trade event into the Position Aggregate.
func (e *Engine) OnTrade(t gateway.TradeEvent) {
	e.positions.ApplyTrade(position.Trade{
		VtOrderID: t.VtOrderID,
		VtSymbol:  t.VtSymbol,
		Direction: position.Direction(t.Direction),
		Offset:    position.Offset(t.Offset),
		Volume:    t.Volume,
		Price:     t.Price,
	})
}

// OnPositionReport forwards a broker position snapshot into the
// reconciliation path (manual intervention detection).
func (e *Engine) OnPositionReport(p gateway.PositionReport) {
	e.positions.ReconcileExternalPosition(position.ExternalPositionReport{
		VtSymbol:  p.VtSymbol,
		Direction: position.Direction(p.Direction),
		Volume:    p.Volume,
	})
}

// CheckTimeouts drives the executor's timeout/retry state machine, checked
// on every tick of a timer at >= 1Hz. Called by the worker's timer loop,
// independent of bar arrival.
func (e *Engine) CheckTimeouts(now time.Time) {
	decisions, events := e.executor.CheckTimeouts(now, func(o *executor.ManagedOrder) float64 {
		contract, _ := e.gw.GetContract(o.VtSymbol)
		tick, _ := e.instruments.GetLatestPrice(o.VtSymbol)
		ref := tick
		if ref == 0 {
			ref = o.OriginalPrice
		}
		return executor.AdaptivePrice(ref, contract.PriceTick, e.cfg.AdaptiveSlippageTicks, o.IsBuy)
	})
	e.bus.PublishAll(events)

	for _, d := range decisions {
		if d.Exhausted {
			continue
		}
		direction := gateway.DirectionShort
		if d.Order.IsBuy {
			direction = gateway.DirectionLong
		}
		ids, err := e.gw.SendOrder(gateway.OrderInstruction{
			VtSymbol:  d.Order.VtSymbol,
			Direction: direction,
			Volume:    d.Order.Volume,
			Price:     d.NewPrice,
			OrderType: gateway.OrderTypeLimit,
		})
		if err != nil || len(ids) == 0 {
			log.Printf("strategy: retry resubmit for %s failed: %v", d.Order.VtSymbol, err)
			continue
		}
		d.Order.VtOrderID = ids[0]
		e.executor.Submit(d.Order)
	}
}

// runRollover is a daily 14:50-triggered (config), idempotent-per-day check
// that re-derives each managed product's dominant future via the 7-day
// rule and subscribes/unsubscribes on change. Idempotence comes from
// lastRolloverDate: once the check has run for a given trading day it does
// not run again until the date advances, regardless of how many bars
// arrive after the trigger time.
func (e *Engine) runRollover(now time.Time) {
	if sameDay(now, e.lastRolloverDate) {
		return
	}
	triggerMinutes := e.cfg.RolloverHour*60 + e.cfg.RolloverMinute
	nowMinutes := now.Hour()*60 + now.Minute()
	if nowMinutes < triggerMinutes {
		return
	}
	e.lastRolloverDate = now

	for _, product := range e.cfg.Products {
		if e.futureCandidates == nil {
			continue
		}
		candidates := e.futureCandidates(product)
		if len(candidates) == 0 {
			continue
		}
		czce := e.cfg.CZCEProducts[product]
		dominant, ok := selector.SelectDominantFuture(candidates, now, czce)
		if !ok {
			continue
		}

		changed, old := e.instruments.SetActiveContract(product, dominant.VtSymbol)
		if !changed {
			continue
		}
		if old != "" {
			if err := e.gw.Unsubscribe(old); err != nil {
				log.Printf("strategy: rollover unsubscribe %s failed: %v", old, err)
			}
		}
		if err := e.gw.Subscribe(dominant.VtSymbol); err != nil {
			log.Printf("strategy: rollover subscribe %s failed: %v", dominant.VtSymbol, err)
		}
		e.pending = append(e.pending, eventbus.Event{
			Type:       eventbus.EventActiveContractChanged,
			OccurredAt: now,
			Payload: eventbus.ActiveContractChanged{
				Product:   product,
				OldSymbol: old,
				NewSymbol: dominant.VtSymbol,
			},
		})
	}
}

// submitManaged registers a freshly dispatched order with both the
// Position Aggregate's pending-order tracking and the Smart Executor's
// timeout/retry state machine.
func (e *Engine) submitManaged(vtOrderID, vtSymbol string, volume, price float64, isBuy bool, now time.Time) {
	e.executor.Submit(&executor.ManagedOrder{
		VtOrderID:     vtOrderID,
		VtSymbol:      vtSymbol,
		IsBuy:         isBuy,
		Volume:        volume,
		OriginalPrice: price,
		SendTime:      now,
		Deadline:      now.Add(e.cfg.OrderTimeout),
		MaxRetries:    e.cfg.MaxRetries,
	})
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// positionGreeksSnapshot builds the []risk.PositionGreeks the aggregator
// needs from the open positions and their cached per-unit Greeks (cached
// at open time; hedging runs on a slower cadence than Greeks recompute,
// so this repo only refreshes a position's Greeks on open, not every
// bar). Positions without a cache entry (e.g. futures
// legs, which carry no Greeks) are skipped.
func (e *Engine) positionGreeksSnapshot() []risk.PositionGreeks {
	e.posGreeksMu.Lock()
	defer e.posGreeksMu.Unlock()

	var out []risk.PositionGreeks
	for _, pos := range e.positions.AllPositions() {
		if pos.IsClosed {
			continue
		}
		cached, ok := e.posGreeks[pos.VtSymbol]
		if !ok {
			continue
		}
		out = append(out, risk.PositionGreeks{
			VtSymbol:   pos.VtSymbol,
			Greeks:     cached.Greeks,
			Volume:     pos.Volume,
			Multiplier: e.cfg.ContractMultiplier,
		})
	}
	return out
}

// refreshPortfolioRisk runs the Portfolio Risk Aggregator's edge-triggered
// check once per bar, ahead of close/open processing, and caches the
// resulting portfolio Greeks for both the open-side pre-trade check and
// RunHedgeCycle.
func (e *Engine) refreshPortfolioRisk() {
	total, events := e.riskAgg.AggregatePortfolioGreeks(e.positionGreeksSnapshot())
	e.lastPortfolioGreeks = total
	e.pending = append(e.pending, events...)
}

// totalPortfolioGreeks returns the portfolio Greeks computed by this bar's
// refreshPortfolioRisk, for RunHedgeCycle.
func (e *Engine) totalPortfolioGreeks() risk.PortfolioGreeks {
	return e.lastPortfolioGreeks
}

// checkCloses iterates every position owned on vtSymbol, asks the signal
// service for a close signal, and on fire, with no pending close already
// outstanding, sizes the exit and dispatches it via the Smart Executor.
func (e *Engine) checkCloses(vtSymbol string, now time.Time) {
	inst, ok := e.instruments.Get(vtSymbol)
	if !ok {
		return
	}
	for _, pos := range e.positions.GetPositionsByUnderlying(vtSymbol) {
		if e.positions.HasPendingClose(pos) {
			continue
		}
		closeSignal, fired := e.services.Signal.CheckCloseSignal(inst, pos)
		if !fired {
			continue
		}

		volume := e.services.Sizer.CalculateExitVolume(int(pos.Volume), pos)
		if volume <= 0 {
			continue
		}

		direction := gateway.DirectionShort
		if pos.Direction == position.Short {
			direction = gateway.DirectionLong // closing a short is a buy
		}

		ids, err := e.gw.SendOrder(gateway.OrderInstruction{
			VtSymbol:  pos.VtSymbol,
			Direction: direction,
			Offset:    gateway.OffsetClose,
			Volume:    float64(volume),
			OrderType: gateway.OrderTypeLimit,
		})
		if err != nil || len(ids) == 0 {
			log.Printf("strategy: close dispatch for %s (signal %q) failed: %v", pos.VtSymbol, closeSignal, err)
			continue
		}

		order := &position.Order{VtOrderID: ids[0], VtSymbol: pos.VtSymbol, Direction: pos.Direction, Offset: position.Close, Volume: float64(volume), Status: position.StatusSubmitting}
		e.positions.RecordOrderSubmitted(order)
		e.positions.RecordCloseSent(pos, float64(volume))
		e.submitManaged(ids[0], pos.VtSymbol, float64(volume), pos.OpenPrice, direction == gateway.DirectionLong, now)
	}
}

// checkOpens asks the signal service for an open signal; on fire, it
// selects the trade target, gates on liquidity, pre-checks portfolio
// risk, sizes, and dispatches. Daily-usage bookkeeping only runs after a
// successful dispatch.
func (e *Engine) checkOpens(vtSymbol string, now time.Time) {
	inst, ok := e.instruments.Get(vtSymbol)
	if !ok {
		return
	}
	openSignal, fired := e.services.Signal.CheckOpenSignal(inst)
	if !fired {
		return
	}

	optType, isOption := selector.Call, false
	if e.services.SignalToOptionType != nil {
		optType, isOption = e.services.SignalToOptionType(openSignal)
	}

	if isOption {
		e.openOption(vtSymbol, openSignal, optType, now)
		return
	}
	e.openFuture(vtSymbol, openSignal, now)
}

func (e *Engine) openOption(underlyingVtSymbol, openSignal string, optType selector.OptionType, now time.Time) {
	if e.optionChain == nil {
		return
	}
	chain := e.optionChain(underlyingVtSymbol)
	quote, ok := selector.SelectOption(chain, optType, e.cfg.DefaultOTMLevel, e.cfg.LiquidityFilter, e.cfg.MinDaysToExpiry, e.cfg.MaxDaysToExpiry)
	if !ok {
		log.Printf("strategy: no qualifying %s option for %s (signal %q)", optType, underlyingVtSymbol, openSignal)
		return
	}
	if !selector.CheckLiquidity(quote, e.cfg.LiquidityFilter) {
		log.Printf("strategy: liquidity gate failed for %s", quote.VtSymbol)
		return
	}

	isCall := optType == selector.Call
	t := float64(quote.DaysToExpiry) / 365.0
	mid := (quote.BidPrice + quote.AskPrice) / 2
	sigma, err := greeks.ImpliedVol(mid, quote.UnderlyingSpot, quote.Strike, t, e.cfg.RiskFreeRate, isCall, e.cfg.IVConfig)
	if err != nil {
		log.Printf("strategy: IV solve failed for %s: %v", quote.VtSymbol, err)
		return
	}
	g, err := greeks.Compute(quote.UnderlyingSpot, quote.Strike, t, e.cfg.RiskFreeRate, sigma, isCall)
	if err != nil {
		log.Printf("strategy: greeks compute failed for %s: %v", quote.VtSymbol, err)
		return
	}

	result := risk.CheckPositionRisk(g, e.riskAgg.PositionThresholds)
	if !result.OK {
		log.Printf("strategy: pre-trade position risk breach for %s: %v", quote.VtSymbol, result.BreachedFields)
		return
	}
	prospective := e.lastPortfolioGreeks
	w := float64(e.cfg.DefaultOpenVolume) * e.cfg.ContractMultiplier
	prospective.Delta += g.Delta * w
	prospective.Gamma += g.Gamma * w
	prospective.Vega += g.Vega * w
	prospective.Theta += g.Theta * w
	portfolioResult := risk.CheckPositionRisk(greeks.Greeks{Delta: prospective.Delta, Gamma: prospective.Gamma, Vega: prospective.Vega, Theta: prospective.Theta}, e.riskAgg.PortfolioThresholds)
	if !portfolioResult.OK {
		log.Printf("strategy: pre-trade portfolio risk breach opening %s: %v", quote.VtSymbol, portfolioResult.BreachedFields)
		return
	}

	volume := e.services.Sizer.CalculateOpenVolume(e.cfg.DefaultOpenVolume, quote.VtSymbol, e.positions, e.account())
	if volume <= 0 {
		return
	}

	// A short-open against the bid requires the liquidity gate's bid
	// volume to already cover the sized volume, checked again here at
	// the actual send size.
	if quote.BidVolume < volume {
		log.Printf("strategy: liquidity gate failed for %s at sized volume %d", quote.VtSymbol, volume)
		return
	}

	direction := gateway.DirectionShort // selling premium is the default open side for OTM selection
	ids, err := e.gw.SendOrder(gateway.OrderInstruction{
		VtSymbol:  quote.VtSymbol,
		Direction: direction,
		Offset:    gateway.OffsetOpen,
		Volume:    float64(volume),
		Price:     quote.BidPrice,
		OrderType: gateway.OrderTypeLimit,
	})
	if err != nil || len(ids) == 0 {
		log.Printf("strategy: open dispatch for %s (signal %q) failed: %v", quote.VtSymbol, openSignal, err)
		return
	}

	e.positions.RecordOpenUsage(quote.VtSymbol, volume)
	e.positions.CreatePosition(ids[0], &position.Position{
		VtSymbol:           quote.VtSymbol,
		UnderlyingVtSymbol: underlyingVtSymbol,
		Signal:             openSignal,
		Volume:             float64(volume),
		TargetVolume:       float64(volume),
		Direction:          position.Short,
		OpenPrice:          quote.BidPrice,
		CreateTime:         now,
		OpenTime:           now,
	})
	e.positions.RecordOrderSubmitted(&position.Order{VtOrderID: ids[0], VtSymbol: quote.VtSymbol, Direction: position.Short, Offset: position.Open, Volume: float64(volume), Status: position.StatusSubmitting})
	e.submitManaged(ids[0], quote.VtSymbol, float64(volume), quote.BidPrice, false, now)

	e.posGreeksMu.Lock()
	e.posGreeks[quote.VtSymbol] = risk.PositionGreeks{VtSymbol: quote.VtSymbol, Greeks: g, Multiplier: e.cfg.ContractMultiplier}
	e.posGreeksMu.Unlock()

	e.pending = append(e.pending, eventbus.Event{
		Type:       eventbus.EventPositionOpened,
		OccurredAt: now,
		Payload:    eventbus.PositionOpened{VtSymbol: quote.VtSymbol, Signal: openSignal, Volume: float64(volume), Direction: string(position.Short)},
	})
}

func (e *Engine) openFuture(vtSymbol, openSignal string, now time.Time) {
	volume := e.services.Sizer.CalculateOpenVolume(e.cfg.DefaultOpenVolume, vtSymbol, e.positions, e.account())
	if volume <= 0 {
		return
	}

	ids, err := e.gw.SendOrder(gateway.OrderInstruction{
		VtSymbol:  vtSymbol,
		Direction: gateway.DirectionLong,
		Offset:    gateway.OffsetOpen,
		Volume:    float64(volume),
		OrderType: gateway.OrderTypeMarket,
	})
	if err != nil || len(ids) == 0 {
		log.Printf("strategy: future open dispatch for %s (signal %q) failed: %v", vtSymbol, openSignal, err)
		return
	}

	e.positions.RecordOpenUsage(vtSymbol, volume)
	e.positions.CreatePosition(ids[0], &position.Position{
		VtSymbol:           vtSymbol,
		UnderlyingVtSymbol: vtSymbol,
		Signal:             openSignal,
		Volume:             float64(volume),
		TargetVolume:       float64(volume),
		Direction:          position.Long,
		CreateTime:         now,
		OpenTime:           now,
	})
	e.positions.RecordOrderSubmitted(&position.Order{VtOrderID: ids[0], VtSymbol: vtSymbol, Direction: position.Long, Offset: position.Open, Volume: float64(volume), Status: position.StatusSubmitting})
	e.submitManaged(ids[0], vtSymbol, float64(volume), 0, true, now)

	e.pending = append(e.pending, eventbus.Event{
		Type:       eventbus.EventPositionOpened,
		OccurredAt: now,
		Payload:    eventbus.PositionOpened{VtSymbol: vtSymbol, Signal: openSignal, Volume: float64(volume), Direction: string(position.Long)},
	})
}

// BuildSnapshot assembles the persisted Snapshot envelope from the
// current Instrument and Position Aggregates. Positions are encoded as
// __dataframe__ records, active contracts as a flat map and symbols as a
// __set__, matching the typed-marker scheme the serializer package
// implements. Bar history is not included.
func (e *Engine) BuildSnapshot(now time.Time) persistence.Snapshot {
	targetAgg := map[string]interface{}{
		"active_contracts": e.instruments.GetAllActiveContracts(),
		"symbols":          persistence.WrapSet(toInterfaceSlice(e.instruments.Symbols())),
	}

	var posRecords []map[string]interface{}
	for _, pos := range e.positions.AllPositions() {
		posRecords = append(posRecords, map[string]interface{}{
			"vt_symbol":            pos.VtSymbol,
			"underlying_vt_symbol": pos.UnderlyingVtSymbol,
			"signal":               pos.Signal,
			"volume":               pos.Volume,
			"target_volume":        pos.TargetVolume,
			"direction":            persistence.WrapEnum("Direction", string(pos.Direction)),
			"open_price":           pos.OpenPrice,
			"create_time":          persistence.WrapDatetime(pos.CreateTime),
			"open_time":            persistence.WrapDatetime(pos.OpenTime),
			"is_closed":            pos.IsClosed,
			"is_manually_closed":   pos.IsManuallyClosed,
		})
	}
	positionAgg := map[string]interface{}{
		"positions": persistence.WrapDataFrame(posRecords),
	}

	return persistence.Snapshot{
		SchemaVersion:     persistence.CurrentSchemaVersion,
		SavedAt:           now,
		CurrentDT:         now,
		TargetAggregate:   targetAgg,
		PositionAggregate: positionAgg,
	}
}

// PortfolioGreeks exposes the latest aggregated portfolio Greeks for the
// monitor snapshot writer and any other read-only external consumer.
func (e *Engine) PortfolioGreeks() risk.PortfolioGreeks {
	return e.lastPortfolioGreeks
}

// IsPortfolioBreached exposes the risk aggregator's latched portfolio
// breach state.
func (e *Engine) IsPortfolioBreached() bool {
	return e.riskAgg.IsPortfolioBreached()
}

// OpenPositionCount exposes the Position Aggregate's open-position count.
func (e *Engine) OpenPositionCount() int {
	return e.positions.OpenPositionCount()
}

// PendingOrderCount exposes the Smart Executor's in-flight managed order
// count.
func (e *Engine) PendingOrderCount() int {
	return e.executor.PendingCount()
}

// ActiveAdvancedOrderCount exposes the Scheduler's count of advanced
// orders not yet in a terminal state.
func (e *Engine) ActiveAdvancedOrderCount() int {
	return e.scheduler.ActiveCount()
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
