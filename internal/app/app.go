// Package app wires every component into the running pipeline, following
// the teacher's app.App shape: a New(cfg) constructor, a blocking Start(),
// and a signal-driven gracefulShutdown.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"orderflow-engine/internal/api"
	"orderflow-engine/internal/baseline"
	"orderflow-engine/internal/cache"
	"orderflow-engine/internal/config"
	"orderflow-engine/internal/coordinator"
	"orderflow-engine/internal/detector"
	"orderflow-engine/internal/egress"
	"orderflow-engine/internal/ingest"
	"orderflow-engine/internal/market"
	"orderflow-engine/internal/metrics"
	"orderflow-engine/internal/orderbook"
	"orderflow-engine/internal/preprocess"
	"orderflow-engine/internal/ratelimit"
	"orderflow-engine/internal/storage"
	"orderflow-engine/internal/zone"
)

// App owns the full pipeline: exchange ingest, order-book and zone state,
// detectors, the signal coordinator, and the egress/API surface.
type App struct {
	cfg  *config.Config
	grid market.Grid

	store   *storage.Store
	cache   *cache.Client
	metrics *metrics.Registry
	limiter *ratelimit.Limiter

	book      *orderbook.Book
	zones     *zone.Aggregator
	pre       *preprocess.Preprocessor
	baselines *baseline.Calculator

	detectors   []*detector.Base
	coordinator *coordinator.Coordinator

	broker *egress.Broker
	api    *api.Server

	source ingest.Source
}

// New constructs an App from a validated configuration. Component
// construction happens eagerly here; network/database connections happen
// in Start.
func New(cfg *config.Config, source ingest.Source) *App {
	grid := cfg.OrderBook.Grid

	book := orderbook.New(cfg.OrderBook)
	zones := zone.New(cfg.Zone)
	pre := preprocess.New(preprocess.Config{
		Grid:               grid,
		DepthHalfWidth:     cfg.DepthSnapshotHalfWidth,
		ZoneHalfWidthTicks: cfg.Zone.HalfWidthTicks,
	}, book, zones)

	baselines := baseline.New(cfg.BaselineWindowSize)
	tickSizeF, _ := cfg.TickSize.Float64()

	a := &App{
		cfg:       cfg,
		grid:      grid,
		metrics:   metrics.New(),
		book:      book,
		zones:     zones,
		pre:       pre,
		baselines: baselines,
		broker:    egress.NewBroker(),
		source:    source,
	}

	a.detectors = []*detector.Base{
		detector.NewBase(detector.NewAbsorptionDetector(cfg.Absorption, grid), 2*time.Second),
		detector.NewBase(detector.NewExhaustionDetector(cfg.Exhaustion), 2*time.Second),
		detector.NewBase(detector.NewAccumulationDetector(cfg.Accumulation, grid), 5*time.Second),
		detector.NewBase(detector.NewDistributionDetector(cfg.Distribution, grid), 5*time.Second),
		detector.NewBase(detector.NewDeltaCVDDetector(cfg.CVD), 3*time.Second),
		detector.NewBase(detector.NewSpoofingDetector(cfg.Spoofing, grid), 1*time.Second),
		detector.NewBase(detector.NewHiddenOrderDetector(cfg.Hidden), 1*time.Second),
		detector.NewBase(detector.NewWhaleDetector(cfg.Whale, tickSizeF, baselines), 500*time.Millisecond),
	}

	coordCfg := cfg.Coordinator
	coordCfg.ReferencePrice = func() (market.Ticks, bool) {
		price, err := book.MidPrice()
		return price, err == nil
	}
	coordCfg.ConfirmedDetectors = map[string]bool{
		"accumulation": true,
		"distribution": true,
	}
	a.coordinator = coordinator.New(coordCfg, grid, a.onFinalSignal)

	if cfg.RateLimitPerSecond > 0 {
		a.limiter = ratelimit.NewLimiter(cfg.RateLimitBurst, cfg.RateLimitPerSecond, 10*time.Minute)
	}

	return a
}

// Start connects external dependencies, launches the fan-out and API
// goroutines, and runs the single-threaded ingest/process loop until the
// process receives a shutdown signal.
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Println("🗄️  connecting to storage...")
	store, err := storage.Connect(a.cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("app: storage connect: %w", err)
	}
	a.store = store

	log.Println("🧠 connecting to cache...")
	a.cache = cache.New(a.cfg.RedisAddr, a.cfg.RedisPass)
	if a.cache == nil {
		log.Println("⚠️  cache unavailable, continuing without it")
	} else {
		var prev baseline.Snapshot
		if err := a.cache.Get(ctx, a.statsCacheKey(), &prev); err == nil {
			log.Printf("cache: resuming with last known baseline snapshot (count=%d)", prev.Count)
		}
	}

	a.api = api.New(a.cfg.HTTPAddr, a.broker, a.metrics, a.limiter, a.store, a.cfg.Symbol)

	go a.broker.Run()

	go func() {
		if err := a.api.Start(); err != nil {
			log.Printf("⚠️  api server stopped: %v", err)
		}
	}()

	events := make(chan ingest.Event, 4096)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.source.Run(ctx, events); err != nil && ctx.Err() == nil {
			log.Printf("⚠️  ingest source stopped: %v", err)
		}
		// Run closes events itself before returning (ingest.Source contract).
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.processLoop(ctx, events)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.coordinatorTickLoop(ctx)
	}()

	err = a.gracefulShutdown(cancel)
	wg.Wait()
	return err
}

// processLoop is the pipeline's single-threaded consumer (spec.md §5): it
// owns the order book, zone aggregator, and every detector's state, so no
// locking is needed across trade/depth handling.
func (a *App) processLoop(ctx context.Context, events <-chan ingest.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.handleEvent(ev)
		}
	}
}

func (a *App) handleEvent(ev ingest.Event) {
	switch {
	case ev.Trade != nil:
		a.handleTrade(*ev.Trade)
	case ev.Depth != nil:
		a.handleDepth(ev.Depth.Bids, ev.Depth.Asks, timeFromMs(ev.Depth.EventTimeMs))
	case ev.Snapshot != nil:
		a.handleDepth(ev.Snapshot.Bids, ev.Snapshot.Asks, timeFromMs(ev.Snapshot.EventTimeMs))
	}
}

func (a *App) handleTrade(t ingest.Trade) {
	mt, err := ingest.ToMarketTrade(a.grid, t)
	if err != nil {
		log.Printf("ingest: rejected trade: %v", err)
		return
	}

	enriched, err := a.pre.OnTrade(mt)
	if err != nil {
		log.Printf("preprocess: %v", err)
		return
	}
	a.metrics.TradeIngested()

	a.broker.Publish(egress.MessageTrade, a.tradeView(mt), mt.EventTime)

	for _, d := range a.detectors {
		out := d.Handle(enriched)
		a.emit(out)
		if d.Degraded() {
			a.metrics.DetectorError()
		}
	}

	if a.store != nil {
		if err := a.store.SaveTrade(a.cfg.Symbol, a.grid, mt); err != nil {
			log.Printf("storage: save trade: %v", err)
		}
	}
}

func (a *App) handleDepth(bids, asks []ingest.PriceLevel, eventTime time.Time) {
	updates, rejected := ingest.ToDepthUpdates(a.grid, bids, asks)
	if rejected > 0 {
		log.Printf("ingest: rejected %d malformed depth levels", rejected)
	}
	a.pre.OnDepth(updates, eventTime)
	a.metrics.DepthUpdate()
}

func (a *App) emit(out detector.Emissions) {
	now := time.Now()
	for _, c := range out.Candidates {
		a.coordinator.Submit(c)
	}
	for _, z := range out.ZoneUpdates {
		a.broker.Publish(egress.MessageZoneUpdate, a.zoneUpdateView(z), now)
	}
	for _, z := range out.ZoneSignals {
		a.broker.Publish(egress.MessageZoneSignal, a.zoneSignalView(z), now)
	}
}

func (a *App) onFinalSignal(sig coordinator.Signal) {
	a.metrics.SignalEmitted()
	switch sig.State {
	case coordinator.StateConfirmed:
		a.metrics.SignalConfirmed()
	case coordinator.StateExpired, coordinator.StateInvalidated:
		a.metrics.SignalExpired()
	}

	view := a.signalView(sig)
	a.broker.Publish(egress.MessageSignal, view, sig.Time)

	if a.cache != nil {
		if err := a.cache.Publish(context.Background(), a.signalsChannel(), view); err != nil {
			log.Printf("cache: publish signal: %v", err)
		}
	}

	if a.store != nil {
		if err := a.store.SaveSignal(a.cfg.Symbol, a.grid, sig); err != nil {
			log.Printf("storage: save signal: %v", err)
		}
	}
}

// statsCacheKey and signalsChannel namespace the engine's two Redis
// touchpoints by symbol, following the teacher's cache key convention
// (cache/redis.go's per-symbol prefixing).
func (a *App) statsCacheKey() string  { return "orderflow:stats:" + a.cfg.Symbol }
func (a *App) signalsChannel() string { return "orderflow:signals:" + a.cfg.Symbol }

// coordinatorTickLoop once a second publishes the baseline stats, sweeps
// idle rate-limit buckets, and advances pending confirmations against the
// current mid price (spec.md §4.11 Confirmation).
func (a *App) coordinatorTickLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			snap := a.baselines.Snapshot()
			a.broker.Publish(egress.MessageStats, snap, now)
			if a.cache != nil {
				if err := a.cache.Set(ctx, a.statsCacheKey(), snap, 5*time.Minute); err != nil {
					log.Printf("cache: set stats: %v", err)
				}
			}
			if a.limiter != nil {
				a.limiter.Sweep(now)
			}

			price, err := a.book.MidPrice()
			if err != nil {
				continue
			}
			a.coordinator.Tick(now, price)
		}
	}
}

// gracefulShutdown blocks until an interrupt or SIGTERM is received, then
// cancels the pipeline context and closes external connections with a
// bounded timeout.
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	log.Println("🛑 shutdown signal received, initiating graceful shutdown...")

	cancel()

	done := make(chan struct{})
	go func() {
		if a.store != nil {
			if err := a.store.Close(); err != nil {
				log.Printf("⚠️  storage close: %v", err)
			}
		}
		if a.cache != nil {
			if err := a.cache.Close(); err != nil {
				log.Printf("⚠️  cache close: %v", err)
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Println("⚠️  shutdown timed out, exiting anyway")
	}
	return nil
}

func timeFromMs(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// tradeView renders an internal market.Trade back into the decimal-string
// wire shape used at every other system boundary (spec.md §6), so
// dashboard consumers never see a raw tick index.
type tradeView struct {
	TradeID      int64  `json:"tradeId"`
	EventTime    int64  `json:"eventTimeMs"`
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	BuyerIsMaker bool   `json:"buyerIsMaker"`
	Side         string `json:"side"`
}

func (a *App) tradeView(t market.Trade) tradeView {
	return tradeView{
		TradeID:      t.TradeID,
		EventTime:    t.EventTime.UnixMilli(),
		Price:        a.grid.FromTicks(t.Price).String(),
		Quantity:     t.Quantity.String(),
		BuyerIsMaker: t.BuyerIsMaker,
		Side:         string(t.AggressiveSide()),
	}
}

type zoneUpdateView struct {
	DetectorID   string  `json:"detectorId"`
	UpdateType   string  `json:"updateType"`
	ZoneType     string  `json:"zoneType"`
	PriceCenter  string  `json:"priceCenter"`
	Significance float64 `json:"significance"`
}

func (a *App) zoneUpdateView(z detector.ZoneUpdate) zoneUpdateView {
	return zoneUpdateView{
		DetectorID:   z.DetectorID,
		UpdateType:   string(z.UpdateType),
		ZoneType:     z.ZoneType,
		PriceCenter:  a.grid.FromTicks(z.PriceCenter).String(),
		Significance: z.Significance,
	}
}

type zoneSignalView struct {
	DetectorID        string  `json:"detectorId"`
	SignalType        string  `json:"signalType"`
	PriceCenter       string  `json:"priceCenter"`
	ActionType        string  `json:"actionType"`
	Confidence        float64 `json:"confidence"`
	Urgency           string  `json:"urgency"`
	ExpectedDirection string  `json:"expectedDirection"`
}

func (a *App) zoneSignalView(z detector.ZoneSignal) zoneSignalView {
	return zoneSignalView{
		DetectorID:        z.DetectorID,
		SignalType:        z.SignalType,
		PriceCenter:       a.grid.FromTicks(z.PriceCenter).String(),
		ActionType:        z.ActionType,
		Confidence:        z.Confidence,
		Urgency:           string(z.Urgency),
		ExpectedDirection: string(z.ExpectedDirection),
	}
}

type signalView struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Side       string         `json:"side"`
	Price      string         `json:"price"`
	TakeProfit *string        `json:"takeProfit,omitempty"`
	StopLoss   *string        `json:"stopLoss,omitempty"`
	Confidence float64        `json:"confidence"`
	State      string         `json:"state"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (a *App) signalView(sig coordinator.Signal) signalView {
	v := signalView{
		ID:         sig.ID,
		Type:       sig.Type,
		Side:       string(sig.Side),
		Price:      a.grid.FromTicks(sig.Price).String(),
		Confidence: sig.Confidence,
		State:      string(sig.State),
		Metadata:   sig.Metadata,
	}
	if sig.TakeProfit != nil {
		s := a.grid.FromTicks(*sig.TakeProfit).String()
		v.TakeProfit = &s
	}
	if sig.StopLoss != nil {
		s := a.grid.FromTicks(*sig.StopLoss).String()
		v.StopLoss = &s
	}
	return v
}
