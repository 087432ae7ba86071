// Package engine orchestrates bet placement and session state. It owns
// the price feeds, the ledger, and the monitor's tracking hooks, and is
// the only component that talks to the order gateway.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tapbot/internal/config"
	"github.com/alanyoungcy/tapbot/internal/domain"
	"github.com/alanyoungcy/tapbot/internal/feed"
	"github.com/alanyoungcy/tapbot/internal/grid"
	"github.com/alanyoungcy/tapbot/internal/ledger"
	"github.com/alanyoungcy/tapbot/internal/monitor"
)

// PlacementHandler receives each successfully placed bet.
type PlacementHandler func(domain.TapBet)

// priceFeed is the slice of feed.PriceFeed the engine consumes.
type priceFeed interface {
	Run(ctx context.Context) error
	OnTick(feed.TickHandler)
	OnDisconnect(feed.DownHandler)
	CurrentPrice() float64
	Connected() bool
	Snapshot() domain.FeedSnapshot
	Close()
}

// feedEntry pairs a running feed with its stop function.
type feedEntry struct {
	feed   priceFeed
	cancel context.CancelFunc
}

// TapEngine is the session's single point of mutation for bets. One
// instance per process; it is constructed explicitly and passed by
// handle, never held as a package global.
type TapEngine struct {
	cfg     config.EngineConfig
	assets  map[string]domain.AssetSpec
	gateway domain.OrderGateway
	balance domain.BalanceSource
	ledger  *ledger.BetLedger
	monitor *monitor.BetMonitor
	grid    *grid.Generator
	logger  *slog.Logger

	newFeed func(symbol string) priceFeed

	placing atomic.Bool
	closed  atomic.Bool

	mu              sync.RWMutex
	runCtx          context.Context
	activeAsset     string
	betAmount       float64
	externalBalance float64
	feeds           map[string]*feedEntry

	tickHandlers      []feed.TickHandler
	downHandlers      []feed.DownHandler
	placementHandlers []PlacementHandler
}

// New wires an engine from its collaborators. Run must be called before
// bets can be placed.
func New(
	cfg config.EngineConfig,
	assets []domain.AssetSpec,
	wsURL string,
	gateway domain.OrderGateway,
	balance domain.BalanceSource,
	l *ledger.BetLedger,
	m *monitor.BetMonitor,
	g *grid.Generator,
	logger *slog.Logger,
) *TapEngine {
	lookup := make(map[string]domain.AssetSpec, len(assets))
	for _, a := range assets {
		lookup[a.Symbol] = a
	}
	e := &TapEngine{
		cfg:         cfg,
		assets:      lookup,
		gateway:     gateway,
		balance:     balance,
		ledger:      l,
		monitor:     m,
		grid:        g,
		logger:      logger.With(slog.String("component", "engine")),
		activeAsset: cfg.DefaultAsset,
		betAmount:   cfg.DefaultBetAmount,
		feeds:       make(map[string]*feedEntry),
	}
	e.newFeed = func(symbol string) priceFeed {
		return feed.New(wsURL, symbol, feed.Config{
			ReconnectDelay: cfg.ReconnectDelay.Duration,
			HistorySize:    cfg.HistorySize,
		}, logger)
	}
	// Resolutions free up stake; idle background feeds can then be
	// reaped.
	m.OnResolution(func(domain.Resolution) { e.reapIdleFeeds() })
	return e
}

// OnTick registers a handler for every accepted price tick on any feed
// the engine owns. Register before Run.
func (e *TapEngine) OnTick(h feed.TickHandler) {
	e.tickHandlers = append(e.tickHandlers, h)
}

// OnFeedDown registers a handler for feed disconnects on any feed the
// engine owns. Register before Run.
func (e *TapEngine) OnFeedDown(h feed.DownHandler) {
	e.downHandlers = append(e.downHandlers, h)
}

// OnPlacement registers a handler for successfully placed bets.
// Register before Run.
func (e *TapEngine) OnPlacement(h PlacementHandler) {
	e.placementHandlers = append(e.placementHandlers, h)
}

// Run starts the default asset's feed and the balance refresh loop, and
// blocks until ctx is cancelled.
func (e *TapEngine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.runCtx = ctx
	e.mu.Unlock()

	if err := e.ensureFeed(e.ActiveAsset()); err != nil {
		return fmt.Errorf("engine: start feed: %w", err)
	}

	e.refreshBalance(ctx)

	interval := e.cfg.BalanceRefresh.Duration
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Close()
			return ctx.Err()
		case <-ticker.C:
			e.refreshBalance(ctx)
		}
	}
}

// PlaceBet validates preconditions, submits exactly one market order,
// and records the bet only after the gateway acknowledges. It rejects
// concurrent calls instead of queueing them.
func (e *TapEngine) PlaceBet(ctx context.Context, box domain.GridBox) (domain.TapBet, error) {
	if e.closed.Load() {
		return domain.TapBet{}, domain.ErrEngineClosed
	}
	if !e.placing.CompareAndSwap(false, true) {
		return domain.TapBet{}, domain.ErrPlacementInFlight
	}
	defer e.placing.Store(false)

	asset := e.ActiveAsset()
	spec, ok := e.assets[asset]
	if !ok || !spec.Valid() {
		return domain.TapBet{}, fmt.Errorf("engine: place bet: %w: %q", domain.ErrInvalidAsset, asset)
	}
	if !e.gateway.Connected() {
		return domain.TapBet{}, fmt.Errorf("engine: place bet: gateway: %w", domain.ErrNotConnected)
	}

	f := e.lookupFeed(asset)
	if f == nil || !f.Connected() {
		return domain.TapBet{}, fmt.Errorf("engine: place bet: feed: %w", domain.ErrNotConnected)
	}
	entryPrice := f.CurrentPrice()
	if entryPrice <= 0 {
		return domain.TapBet{}, fmt.Errorf("engine: place bet: no price yet: %w", domain.ErrNotConnected)
	}

	stake := e.BetAmount()
	available := e.ledger.AvailableBalance(e.ExternalBalance())
	if stake > available {
		return domain.TapBet{}, fmt.Errorf("engine: place bet: stake %.2f exceeds available %.2f: %w",
			stake, available, domain.ErrInsufficientBalance)
	}

	betID := uuid.NewString()
	size := positionSize(stake, e.cfg.Leverage, entryPrice, spec.SzDecimals)
	req := domain.MarketOrderRequest{
		AssetIndex: spec.Index,
		IsBuy:      box.Direction == domain.DirectionLong,
		Size:       size,
		Price:      entryPrice,
		ClientID:   betID,
	}

	result, err := e.gateway.SubmitMarketOrder(ctx, req)
	if err != nil {
		return domain.TapBet{}, fmt.Errorf("engine: place bet: submit order: %w", err)
	}
	if !result.Success {
		return domain.TapBet{}, fmt.Errorf("engine: place bet: %w: %s", domain.ErrOrderRejected, result.Message)
	}
	if e.closed.Load() {
		// Teardown raced the submission; the order completed but the
		// session no longer records bets.
		e.logger.Warn("order acknowledged after engine close, dropping bet",
			slog.String("bet_id", betID))
		return domain.TapBet{}, domain.ErrEngineClosed
	}

	now := time.Now()
	bet := domain.TapBet{
		ID:          betID,
		Asset:       asset,
		Direction:   box.Direction,
		Stake:       stake,
		TargetPrice: box.Price,
		EntryPrice:  entryPrice,
		Multiplier:  box.Multiplier,
		PlacedAt:    now,
		ExpiresAt:   now.Add(time.Duration(box.TimeWindow) * time.Second),
		Status:      domain.BetStatusActive,
	}

	if err := e.ledger.Add(bet); err != nil {
		return domain.TapBet{}, fmt.Errorf("engine: place bet: %w", err)
	}
	e.monitor.Track(bet)

	e.logger.Info("bet placed",
		slog.String("bet_id", bet.ID),
		slog.String("asset", bet.Asset),
		slog.String("direction", string(bet.Direction)),
		slog.Float64("stake", bet.Stake),
		slog.Float64("target", bet.TargetPrice),
		slog.Float64("entry", bet.EntryPrice),
		slog.Float64("multiplier", bet.Multiplier),
		slog.String("order_id", result.OrderID),
	)

	for _, h := range e.placementHandlers {
		h(bet)
	}
	return bet, nil
}

// SetBetAmount updates the stake used by subsequent placements.
func (e *TapEngine) SetBetAmount(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("engine: bet amount must be positive, got %v", amount)
	}
	e.mu.Lock()
	e.betAmount = amount
	e.mu.Unlock()
	return nil
}

// SetAsset switches the active asset. A feed for the new asset starts
// if one is not already running. The previous asset's feed keeps
// running while it still has active bets, so those bets resolve against
// their own price path; it is reaped once drained.
func (e *TapEngine) SetAsset(symbol string) error {
	spec, ok := e.assets[symbol]
	if !ok || !spec.Valid() {
		return fmt.Errorf("engine: set asset: %w: %q", domain.ErrInvalidAsset, symbol)
	}

	e.mu.Lock()
	e.activeAsset = symbol
	e.mu.Unlock()

	if err := e.ensureFeed(symbol); err != nil {
		return fmt.Errorf("engine: set asset: %w", err)
	}
	e.reapIdleFeeds()
	return nil
}

// Grid generates the current grid for the active asset.
func (e *TapEngine) Grid() (domain.Grid, error) {
	asset := e.ActiveAsset()
	spec, ok := e.assets[asset]
	if !ok {
		return domain.Grid{}, fmt.Errorf("engine: grid: %w: %q", domain.ErrInvalidAsset, asset)
	}
	f := e.lookupFeed(asset)
	if f == nil {
		return domain.Grid{}, fmt.Errorf("engine: grid: feed: %w", domain.ErrNotConnected)
	}
	price := f.CurrentPrice()
	if price <= 0 {
		return domain.Grid{}, fmt.Errorf("engine: grid: no price yet: %w", domain.ErrNotConnected)
	}
	return e.grid.Generate(price, spec)
}

// State returns a consolidated snapshot of the session.
func (e *TapEngine) State() domain.EngineState {
	asset := e.ActiveAsset()
	external := e.ExternalBalance()

	state := domain.EngineState{
		Asset:            asset,
		BetAmount:        e.BetAmount(),
		ActiveBets:       e.ledger.Active(),
		CompletedBets:    e.ledger.Completed(),
		ExternalBalance:  external,
		AvailableBalance: e.ledger.AvailableBalance(external),
		SessionPnL:       e.ledger.SessionPnL(),
	}
	if f := e.lookupFeed(asset); f != nil {
		snap := f.Snapshot()
		state.CurrentPrice = snap.CurrentPrice
		state.PriceHistory = snap.History
		state.Connected = snap.Connected
	}
	return state
}

// ActiveAsset returns the currently selected asset symbol.
func (e *TapEngine) ActiveAsset() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.activeAsset
}

// BetAmount returns the stake used for the next placement.
func (e *TapEngine) BetAmount() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.betAmount
}

// ExternalBalance returns the last balance read from the account source.
func (e *TapEngine) ExternalBalance() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.externalBalance
}

// Close tears the engine down: all feeds stop and subsequent
// placements are rejected. Idempotent.
func (e *TapEngine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.mu.Lock()
	for symbol, entry := range e.feeds {
		entry.cancel()
		entry.feed.Close()
		delete(e.feeds, symbol)
	}
	e.mu.Unlock()
	e.logger.Info("engine closed")
}

// ensureFeed starts a feed for the symbol if none is running.
func (e *TapEngine) ensureFeed(symbol string) error {
	if e.closed.Load() {
		return domain.ErrEngineClosed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.feeds[symbol]; ok {
		return nil
	}
	if e.runCtx == nil {
		return fmt.Errorf("engine: not running")
	}

	f := e.newFeed(symbol)
	f.OnTick(e.monitor.Observe)
	for _, h := range e.tickHandlers {
		f.OnTick(h)
	}
	for _, h := range e.downHandlers {
		f.OnDisconnect(h)
	}

	ctx, cancel := context.WithCancel(e.runCtx)
	e.feeds[symbol] = &feedEntry{feed: f, cancel: cancel}

	go func() {
		if err := f.Run(ctx); err != nil && ctx.Err() == nil {
			e.logger.Error("feed stopped",
				slog.String("asset", symbol),
				slog.String("error", err.Error()),
			)
		}
	}()
	return nil
}

// reapIdleFeeds stops feeds for assets that are neither active nor
// backing any outstanding bet.
func (e *TapEngine) reapIdleFeeds() {
	needed := map[string]struct{}{e.ActiveAsset(): {}}
	for _, bet := range e.ledger.Active() {
		needed[bet.Asset] = struct{}{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for symbol, entry := range e.feeds {
		if _, ok := needed[symbol]; ok {
			continue
		}
		entry.cancel()
		entry.feed.Close()
		delete(e.feeds, symbol)
		e.logger.Info("background feed reaped", slog.String("asset", symbol))
	}
}

func (e *TapEngine) lookupFeed(symbol string) priceFeed {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.feeds[symbol]
	if !ok {
		return nil
	}
	return entry.feed
}

// refreshBalance re-reads the withdrawable balance. Failures keep the
// previous figure; a stale balance only ever under- or over-states
// available funds until the next successful read.
func (e *TapEngine) refreshBalance(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	balance, err := e.balance.WithdrawableBalance(reqCtx)
	if err != nil {
		e.logger.Warn("balance refresh failed", slog.String("error", err.Error()))
		return
	}
	e.mu.Lock()
	e.externalBalance = balance
	e.mu.Unlock()
}

// positionSize converts stake and leverage into an asset-denominated
// order size at the exchange's precision.
func positionSize(stake, leverage, price float64, szDecimals int) float64 {
	if leverage <= 0 {
		leverage = 1
	}
	size := stake * leverage / price
	pow := math.Pow(10, float64(szDecimals))
	return math.Floor(size*pow) / pow
}
