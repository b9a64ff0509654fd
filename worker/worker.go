// Package worker implements the Worker process: it bootstraps the
// database, gateway, and strategy engine, then runs the single-threaded
// event loop that serially delivers broker events into the engine. The
// bootstrap sequence follows the familiar ordered-banner-log,
// context-cancellation graceful shutdown, WaitGroup-joined
// background-goroutine shape.
package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/haka-quant/optionengine/barpipeline"
	"github.com/haka-quant/optionengine/cache"
	"github.com/haka-quant/optionengine/config"
	"github.com/haka-quant/optionengine/dbfactory"
	"github.com/haka-quant/optionengine/eventbus"
	"github.com/haka-quant/optionengine/executor"
	"github.com/haka-quant/optionengine/gateway"
	"github.com/haka-quant/optionengine/hedge"
	"github.com/haka-quant/optionengine/instrument"
	"github.com/haka-quant/optionengine/monitor"
	"github.com/haka-quant/optionengine/notifications"
	"github.com/haka-quant/optionengine/persistence"
	"github.com/haka-quant/optionengine/position"
	"github.com/haka-quant/optionengine/realtime"
	"github.com/haka-quant/optionengine/risk"
	"github.com/haka-quant/optionengine/scheduler"
	"github.com/haka-quant/optionengine/selector"
	"github.com/haka-quant/optionengine/sizing"
	"github.com/haka-quant/optionengine/strategy"
)

// defaultDBConnectTimeout / defaultGatewayTimeout are the startup bounds: gateway connect
// has an overall timeout (default 60s), database connect validation has
// its own timeout (default 5s).
const (
	defaultDBConnectTimeout = 5 * time.Second
	defaultGatewayTimeout   = 60 * time.Second
	defaultTickInterval     = 1 * time.Second // >= 1 Hz
	defaultHedgeInterval    = 5 * time.Minute
	defaultAutoSaveInterval = 30 * time.Second
	defaultMonitorInterval  = 10 * time.Second
)

// Deps bundles the pieces Bootstrap needs beyond what it constructs
// itself: strategy tunables and the signal/indicator/sizing service
// bundle, which are domain choices the worker does not hardcode.
type Deps struct {
	EngineConfig strategy.Config
	Services     strategy.ServiceBundle

	// InstanceID distinguishes multiple workers running the same variant
	// (e.g. one per account), used to scope monitor rows' idempotency key
	// and SSE/webhook fan-out.
	Variant    string
	InstanceID string

	BarWindowMinutes int // forwarded to barpipeline.New; 1 disables aggregation

	WebhookHooks []notifications.Webhook
}

// Worker owns the bootstrapped process: gateway connection, engine, and
// the background loops that drive it.
type Worker struct {
	cfg  *config.Config
	deps Deps

	db       *gorm.DB
	repo     *persistence.Repository
	redis    *cache.RedisClient
	gw       *gateway.WSAdapter
	bus      *eventbus.Bus
	engine   *strategy.Engine
	pipeline *barpipeline.Pipeline
	autosave *persistence.AutoSaver
	monitor  *monitor.Writer
	broker   *realtime.Broker
	notifier *notifications.Manager
	health   *HealthMonitor

	instruments *instrument.Aggregate
	positions   *position.Aggregate

	subscribedMu sync.RWMutex
	subscribed   []string
}

// Bootstrap wires every dependency (database, gateway, cache, strategy
// services) and returns a Worker ready to Run. Any failure here is
// fail-fast — callers must abort the process on a non-nil error.
func Bootstrap(cfg *config.Config, deps Deps) (*Worker, error) {
	log.Println("🗄️  worker: connecting to database...")
	sqlDB, err := dbfactory.ValidateAndConnect(cfg, defaultDBConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("database connect: %w", err)
	}

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("gorm open: %w", err)
	}
	repo := persistence.NewRepository(gdb)
	if err := repo.InitSchema(); err != nil {
		return nil, fmt.Errorf("schema init: %w", err)
	}
	log.Println("✅ worker: database ready")

	var redisClient *cache.RedisClient
	if cfg.RedisHost != "" {
		log.Println("🧠 worker: connecting to redis...")
		redisClient = cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
		if redisClient == nil {
			log.Println("⚠️  worker: redis unavailable, caching disabled")
		}
	}

	log.Println("🔌 worker: connecting gateway...")
	gw := gateway.NewWSAdapter(gateway.Config{
		WSURL: cfg.GatewayWSURL,
		Credentials: gateway.Credentials{
			AccountID: cfg.BrokerAccountID,
			Username:  cfg.BrokerUsername,
			Password:  cfg.BrokerPassword,
		},
	})
	ctx, cancel := context.WithTimeout(context.Background(), defaultGatewayTimeout)
	defer cancel()
	if err := gw.Connect(ctx); err != nil {
		return nil, fmt.Errorf("gateway connect: %w", err)
	}
	log.Println("✅ worker: gateway connected")

	bus := eventbus.New()
	instruments := instrument.NewAggregate(500)
	positions := position.NewAggregate(true)
	riskAgg := risk.NewAggregator(
		risk.Thresholds{
			Delta: cfg.Risk.PositionDeltaLimit,
			Gamma: cfg.Risk.PositionGammaLimit,
			Vega:  cfg.Risk.PositionVegaLimit,
			Theta: cfg.Risk.PositionThetaLimit,
		},
		risk.Thresholds{
			Delta: cfg.Risk.PortfolioDeltaLimit,
			Gamma: cfg.Risk.PortfolioGammaLimit,
			Vega:  cfg.Risk.PortfolioVegaLimit,
			Theta: cfg.Risk.PortfolioThetaLimit,
		},
	)
	exec := executor.New()
	sched := scheduler.New(time.Now().UnixNano())

	eng := strategy.New(
		deps.EngineConfig,
		deps.Services,
		instruments,
		positions,
		riskAgg,
		exec,
		sched,
		bus,
		gw,
		repo,
		futureCandidatesFn(gw),
		optionChainFn(gw),
		accountSnapshotFn(gw),
	)

	pipeline := barpipeline.New(deps.BarWindowMinutes, func(bars map[string]instrument.Bar) {
		eng.ProcessWindowBar(bars, time.Now())
	})

	mon := monitor.New(repo, deps.Variant, deps.InstanceID)
	mon.Subscribe(bus)

	broker := realtime.NewBroker()
	broker.SubscribeAll(bus, monitorEventTypes)

	var notifier *notifications.Manager
	if len(deps.WebhookHooks) > 0 {
		notifier = notifications.NewManager(deps.WebhookHooks, redisClient)
		notifier.Subscribe(bus)
	}

	gw.OnOrder(func(u gateway.OrderUpdate) { eng.OnOrderUpdate(u) })
	gw.OnTrade(func(t gateway.TradeEvent) { eng.OnTrade(t) })
	gw.OnPosition(func(p gateway.PositionReport) { eng.OnPositionReport(p) })

	autosave := persistence.NewAutoSaver(repo, deps.EngineConfig.StrategyName, defaultAutoSaveInterval, func() persistence.Snapshot {
		return eng.BuildSnapshot(time.Now())
	})

	w := &Worker{
		cfg:         cfg,
		deps:        deps,
		db:          gdb,
		repo:        repo,
		redis:       redisClient,
		gw:          gw,
		bus:         bus,
		engine:      eng,
		pipeline:    pipeline,
		autosave:    autosave,
		monitor:     mon,
		broker:      broker,
		notifier:    notifier,
		instruments: instruments,
		positions:   positions,
		health:      NewHealthMonitor(),
	}
	return w, nil
}

var monitorEventTypes = []eventbus.EventType{
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

// futureCandidatesFn/optionChainFn/accountSnapshotFn adapt the generic
// gateway.Port contract cache into the data-access hooks strategy.Engine
// needs; the gateway has no chain-scan method of its own (see DESIGN.md),
// so the worker derives them from GetContractsByProduct/GetTick.
func futureCandidatesFn(gw gateway.Port) func(product string) []selector.FutureCandidate {
	return func(product string) []selector.FutureCandidate {
		contracts := gw.GetContractsByProduct(product)
		out := make([]selector.FutureCandidate, 0, len(contracts))
		for _, c := range contracts {
			out = append(out, selector.FutureCandidate{VtSymbol: c.VtSymbol})
		}
		return out
	}
}

func optionChainFn(gw gateway.Port) func(underlyingVtSymbol string) []selector.OptionQuote {
	return func(underlyingVtSymbol string) []selector.OptionQuote {
		underlying, ok := gw.GetTick(underlyingVtSymbol)
		if !ok {
			return nil
		}
		underlyingContract, ok := gw.GetContract(underlyingVtSymbol)
		if !ok {
			return nil
		}
		contracts := gw.GetContractsByProduct(underlyingContract.Product)
		out := make([]selector.OptionQuote, 0, len(contracts))
		for _, c := range contracts {
			if c.OptionType == "" {
				continue // the underlying future itself, not an option leg
			}
			tick, ok := gw.GetTick(c.VtSymbol)
			if !ok {
				continue
			}
			out = append(out, selector.OptionQuote{
				VtSymbol:       c.VtSymbol,
				Strike:         c.Strike,
				UnderlyingSpot: underlying.LastPrice,
				OptionType:     selector.OptionType(c.OptionType),
				BidVolume:      int(tick.BidVolume1),
				BidPrice:       tick.BidPrice1,
				AskPrice:       tick.AskPrice1,
				TickSize:       c.PriceTick,
				DaysToExpiry:   int(time.Until(c.Expiry).Hours() / 24),
			})
		}
		return out
	}
}

func accountSnapshotFn(gw gateway.Port) func() sizing.AccountSnapshot {
	return func() sizing.AccountSnapshot {
		bal, ok := gw.GetBalance()
		if !ok {
			return sizing.AccountSnapshot{}
		}
		return sizing.AccountSnapshot{Balance: bal.Balance, FreeMargin: bal.FreeMargin}
	}
}

// Run starts every background loop and blocks until ctx is cancelled.
// Order-timeout checks run at >= 1 Hz, hedge cycles at a slower cadence,
// auto-save and monitor snapshots on their own tickers, and tick polling
// (the only way this Port surface delivers quotes, since Port has no push
// callback for ticks) drives the bar pipeline.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	go w.autosave.Run()

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.runTimeoutLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.runHedgeLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.runTickPollLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.runMonitorSnapshotLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.health.Run(ctx)
	}()

	if w.broker != nil {
		go w.broker.Run()
	}

	<-ctx.Done()
	log.Println("🛑 worker: shutdown signal propagated, waiting for loops to drain...")
	wg.Wait()
	w.pipeline.Flush()
	w.autosave.Stop()
	log.Println("✅ worker: shutdown complete")
	return ctx.Err()
}

func (w *Worker) runTimeoutLoop(ctx context.Context) {
	ticker := time.NewTicker(defaultTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.engine.CheckTimeouts(now)
			w.health.Touch()
		}
	}
}

func (w *Worker) runHedgeLoop(ctx context.Context) {
	ticker := time.NewTicker(defaultHedgeInterval)
	defer ticker.Stop()
	cfg := hedgeCfgFrom(w.cfg.Hedge)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, vtSymbol := range w.Subscribed() {
				w.engine.RunHedgeCycle(cfg, vtSymbol)
			}
		}
	}
}

func hedgeCfgFrom(h config.HedgeConfig) hedge.Config {
	return hedge.Config{
		TargetDelta:        h.TargetDelta,
		HedgingBand:        h.HedgingBand,
		HedgeUnitDelta:     h.HedgeInstrumentDelta,
		HedgeMultiplier:    h.HedgeMultiplier,
		RebalanceThreshold: h.GammaRebalanceThreshold,
	}
}

func (w *Worker) runTickPollLoop(ctx context.Context) {
	ticker := time.NewTicker(defaultTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, vtSymbol := range w.Subscribed() {
				tick, ok := w.gw.GetTick(vtSymbol)
				if !ok {
					continue
				}
				w.pipeline.HandleTick(vtSymbol, now, tick.LastPrice, 0)
			}
		}
	}
}

func (w *Worker) runMonitorSnapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(defaultMonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g := w.engine.PortfolioGreeks()
			w.monitor.UpdateSnapshot(monitor.Snapshot{
				AsOf:              now,
				OpenPositions:     w.engine.OpenPositionCount(),
				PortfolioDelta:    g.Delta,
				PortfolioGamma:    g.Gamma,
				PortfolioVega:     g.Vega,
				PortfolioTheta:    g.Theta,
				PendingOrders:     w.engine.PendingOrderCount(),
				ActiveAdvanced:    w.engine.ActiveAdvancedOrderCount(),
				PortfolioBreached: w.engine.IsPortfolioBreached(),
			})
		}
	}
}

// Subscribe registers vtSymbol with both the gateway and the bar
// pipeline's subscribed set.
func (w *Worker) Subscribe(vtSymbol string) error {
	if err := w.gw.Subscribe(vtSymbol); err != nil {
		return err
	}
	w.pipeline.Subscribe(vtSymbol)
	w.subscribedMu.Lock()
	w.subscribed = append(w.subscribed, vtSymbol)
	w.subscribedMu.Unlock()
	return nil
}

func (w *Worker) Subscribed() []string {
	w.subscribedMu.RLock()
	defer w.subscribedMu.RUnlock()
	out := make([]string, len(w.subscribed))
	copy(out, w.subscribed)
	return out
}

// HealthMonitor tracks the time of the last successfully-processed tick,
// so the supervisor (or an external liveness probe) can detect a worker
// that is still running but no longer making progress, via a
// standalone, file-stamped heartbeat.
type HealthMonitor struct {
	mu       sync.Mutex
	lastBeat time.Time
	path     string
}

func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{lastBeat: time.Time{}, path: os.Getenv("WORKER_HEALTH_FILE")}
}

// Touch records a heartbeat and, if WORKER_HEALTH_FILE is configured,
// stamps it to disk so a separate supervisor process can read it without
// shared memory — the two processes only communicate via lifecycle
// signals and files/database.
func (h *HealthMonitor) Touch() {
	h.mu.Lock()
	h.lastBeat = time.Now()
	path := h.path
	h.mu.Unlock()
	if path == "" {
		return
	}
	if err := os.WriteFile(path, []byte(time.Now().UTC().Format(time.RFC3339)), 0o644); err != nil {
		log.Printf("⚠️  worker: health heartbeat write failed: %v", err)
	}
}

// LastBeat returns the time of the most recent Touch.
func (h *HealthMonitor) LastBeat() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastBeat
}

// Run periodically stamps a heartbeat even when idle (e.g. outside
// trading sessions, when no timeout ticks fire new work), so the
// supervisor does not mistake a quiet market for a dead worker.
func (h *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	h.Touch()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Touch()
		}
	}
}
