// Package feed maintains a live current price and a bounded recent-price
// history for one asset over a reconnecting trade stream.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tapbot/internal/domain"
	"github.com/alanyoungcy/tapbot/internal/platform/hyperliquid"
)

// TickHandler is called for each accepted price tick.
type TickHandler func(asset string, p domain.PricePoint)

// DownHandler is called when a connection drops, before the reconnect
// delay starts.
type DownHandler func(asset, reason string)

// Config holds the feed's tunables.
type Config struct {
	// ReconnectDelay is the fixed pause between reconnect attempts.
	ReconnectDelay time.Duration
	// HistorySize bounds the retained price history.
	HistorySize int
}

// PriceFeed subscribes to the trade stream for a single asset, keeps the
// latest price and a bounded history, and reconnects forever on failure.
// Each connection attempt gets a new generation number; ticks delivered
// by a superseded connection are discarded, so teardown races cannot
// apply stale prices.
type PriceFeed struct {
	asset        string
	wsURL        string
	cfg          Config
	handlers     []TickHandler
	downHandlers []DownHandler
	logger       *slog.Logger

	mu        sync.RWMutex
	current   float64
	history   []domain.PricePoint
	connected bool
	lastErr   error
	gen       uint64

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a PriceFeed for the given asset symbol. Handlers must be
// registered with OnTick before Run is called.
func New(wsURL, asset string, cfg Config, logger *slog.Logger) *PriceFeed {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	return &PriceFeed{
		asset:  asset,
		wsURL:  wsURL,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "price_feed"), slog.String("asset", asset)),
		done:   make(chan struct{}),
	}
}

// Asset returns the feed's asset symbol.
func (f *PriceFeed) Asset() string { return f.asset }

// OnTick registers a handler invoked for every accepted tick. Not safe
// to call after Run has started.
func (f *PriceFeed) OnTick(h TickHandler) {
	f.handlers = append(f.handlers, h)
}

// OnDisconnect registers a handler invoked when the stream drops. Not
// safe to call after Run has started.
func (f *PriceFeed) OnDisconnect(h DownHandler) {
	f.downHandlers = append(f.downHandlers, h)
}

// Run connects, subscribes, and keeps the stream alive until ctx is
// cancelled or the feed is closed. Disconnects are never fatal: the feed
// retries after a fixed delay, indefinitely.
func (f *PriceFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		gen := f.nextGeneration()
		err := f.runConnection(ctx, gen)

		f.mu.Lock()
		f.connected = false
		if err != nil {
			f.lastErr = err
		}
		f.mu.Unlock()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-f.done:
			return nil
		default:
		}

		f.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", f.cfg.ReconnectDelay),
		)
		for _, h := range f.downHandlers {
			h(f.asset, errString(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(f.cfg.ReconnectDelay):
		}
	}
}

// runConnection performs one connect/subscribe/read cycle. The returned
// error describes why the connection ended.
func (f *PriceFeed) runConnection(ctx context.Context, gen uint64) error {
	client := hyperliquid.NewWSClient(f.wsURL)
	defer client.Close()

	// The read loop only notices cancellation once the socket closes
	// under it, so teardown must close the connection itself rather
	// than wait for the next server frame.
	watchStop := make(chan struct{})
	defer close(watchStop)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-f.done:
			client.Close()
		case <-watchStop:
		}
	}()

	client.OnTrade(func(t hyperliquid.TradeMessage) {
		f.applyTrade(gen, t)
	})
	client.OnMalformed(func(raw []byte) {
		f.logger.Debug("dropping malformed feed message",
			slog.Int("payload_len", len(raw)),
		)
	})

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := client.Connect(connCtx)
	cancel()
	if err != nil {
		return err
	}

	if err := client.SubscribeTrades(ctx, f.asset); err != nil {
		return err
	}

	f.mu.Lock()
	f.connected = true
	f.lastErr = nil
	f.mu.Unlock()

	f.logger.Info("feed subscribed")

	return client.ReadLoop(ctx)
}

// applyTrade validates a trade and, if it belongs to the live
// connection generation, records it and fans it out to handlers.
func (f *PriceFeed) applyTrade(gen uint64, t hyperliquid.TradeMessage) {
	price, ok := t.Price()
	if !ok {
		f.logger.Debug("dropping trade with invalid price",
			slog.String("px", t.Px),
		)
		return
	}

	point := domain.PricePoint{Time: time.Now(), Price: price}

	f.mu.Lock()
	if gen != f.gen {
		// A newer connection has superseded this one.
		f.mu.Unlock()
		return
	}
	select {
	case <-f.done:
		f.mu.Unlock()
		return
	default:
	}
	f.current = price
	f.history = append(f.history, point)
	if n := len(f.history) - f.cfg.HistorySize; n > 0 {
		f.history = f.history[n:]
	}
	handlers := f.handlers
	f.mu.Unlock()

	for _, h := range handlers {
		h(f.asset, point)
	}
}

// Snapshot returns a consistent copy of the feed state.
func (f *PriceFeed) Snapshot() domain.FeedSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()

	history := make([]domain.PricePoint, len(f.history))
	copy(history, f.history)

	snap := domain.FeedSnapshot{
		Asset:        f.asset,
		CurrentPrice: f.current,
		History:      history,
		Connected:    f.connected,
	}
	if f.lastErr != nil {
		snap.LastError = f.lastErr.Error()
	}
	return snap
}

// CurrentPrice returns the latest accepted price, 0 before the first tick.
func (f *PriceFeed) CurrentPrice() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Connected reports whether the stream is currently up.
func (f *PriceFeed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Close stops the feed. Ticks still in flight from the final connection
// are discarded by the generation guard.
func (f *PriceFeed) Close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.gen++ // invalidate the live connection's ticks
		f.mu.Unlock()
		close(f.done)
	})
}

// nextGeneration invalidates prior connections and returns the new
// generation number.
func (f *PriceFeed) nextGeneration() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	return f.gen
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
