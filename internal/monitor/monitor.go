// Package monitor resolves active bets against the observed price path.
// Resolution looks at the full excursion since placement, not just the
// instantaneous price, so a touch between evaluations still wins.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tapbot/internal/domain"
	"github.com/alanyoungcy/tapbot/internal/ledger"
)

// ResolutionHandler receives each settled bet.
type ResolutionHandler func(domain.Resolution)

// excursion is the running high/low of prices seen since a bet was
// placed, seeded with the entry price.
type excursion struct {
	asset string
	high  float64
	low   float64
}

// BetMonitor evaluates active bets on a fixed cadence. A target touch
// always takes priority over expiry: if the excursion reached the
// target before the window closed, the bet wins even when evaluation
// happens after expiry.
type BetMonitor struct {
	ledger   *ledger.BetLedger
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu         sync.Mutex
	excursions map[string]*excursion

	handlerMu sync.RWMutex
	handlers  []ResolutionHandler
}

// New creates a monitor over the given ledger. interval is the
// evaluation cadence; 100ms is the intended production setting.
func New(l *ledger.BetLedger, interval time.Duration, logger *slog.Logger) *BetMonitor {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &BetMonitor{
		ledger:     l,
		interval:   interval,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "bet_monitor")),
		excursions: make(map[string]*excursion),
	}
}

// SetClock overrides the monitor's time source. Test use only.
func (m *BetMonitor) SetClock(now func() time.Time) { m.now = now }

// OnResolution registers a handler invoked for every settled bet.
func (m *BetMonitor) OnResolution(h ResolutionHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Track begins excursion tracking for a freshly placed bet, seeded
// with its entry price.
func (m *BetMonitor) Track(bet domain.TapBet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.excursions[bet.ID] = &excursion{
		asset: bet.Asset,
		high:  bet.EntryPrice,
		low:   bet.EntryPrice,
	}
}

// Observe folds a new price into the excursion of every tracked bet on
// that asset. Safe to call from feed goroutines.
func (m *BetMonitor) Observe(asset string, p domain.PricePoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.excursions {
		if ex.asset != asset {
			continue
		}
		if p.Price > ex.high {
			ex.high = p.Price
		}
		if p.Price < ex.low {
			ex.low = p.Price
		}
	}
}

// Run evaluates bets on the configured cadence until ctx is cancelled.
func (m *BetMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Evaluate()
		}
	}
}

// Evaluate runs one resolution pass over all active bets and purges
// excursion state for bets that are no longer active.
func (m *BetMonitor) Evaluate() {
	now := m.now()

	for _, bet := range m.ledger.Active() {
		ex, ok := m.snapshotExcursion(bet.ID)
		if !ok {
			// A bet without tracking state can only lose by expiry.
			ex = excursion{asset: bet.Asset, high: bet.EntryPrice, low: bet.EntryPrice}
		}

		won, resolved := decide(bet, ex, now)
		if !resolved {
			continue
		}

		res, err := m.ledger.Resolve(bet.ID, won, now)
		if err != nil {
			if !errors.Is(err, domain.ErrBetResolved) {
				m.logger.Error("bet resolution failed",
					slog.String("bet_id", bet.ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		m.logger.Info("bet resolved",
			slog.String("bet_id", res.Bet.ID),
			slog.String("asset", res.Bet.Asset),
			slog.String("status", string(res.Status)),
			slog.Float64("pnl", res.PnL),
		)
		m.dispatch(res)
	}

	m.purge()
}

// decide applies the resolution rules: target touch wins regardless of
// expiry; expiry without a touch loses; otherwise the bet stays open.
func decide(bet domain.TapBet, ex excursion, now time.Time) (won, resolved bool) {
	switch bet.Direction {
	case domain.DirectionLong:
		if ex.high >= bet.TargetPrice {
			return true, true
		}
	case domain.DirectionShort:
		if ex.low <= bet.TargetPrice {
			return true, true
		}
	}
	if !now.Before(bet.ExpiresAt) {
		return false, true
	}
	return false, false
}

func (m *BetMonitor) snapshotExcursion(id string) (excursion, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ex, ok := m.excursions[id]
	if !ok {
		return excursion{}, false
	}
	return *ex, true
}

// purge drops excursion state for bets no longer in the active set.
func (m *BetMonitor) purge() {
	activeIDs := m.ledger.ActiveIDs()
	active := make(map[string]struct{}, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.excursions {
		if _, ok := active[id]; !ok {
			delete(m.excursions, id)
		}
	}
}

func (m *BetMonitor) dispatch(res domain.Resolution) {
	m.handlerMu.RLock()
	handlers := m.handlers
	m.handlerMu.RUnlock()
	for _, h := range handlers {
		h(res)
	}
}

// TrackedCount reports how many bets have excursion state. Test use.
func (m *BetMonitor) TrackedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.excursions)
}
