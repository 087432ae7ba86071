package monitor

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/tapbot/internal/domain"
	"github.com/alanyoungcy/tapbot/internal/ledger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) (*ledger.BetLedger, *BetMonitor, *fakeClock) {
	t.Helper()
	l := ledger.New()
	m := New(l, 100*time.Millisecond, discardLogger())
	clock := &fakeClock{now: time.Now()}
	m.SetClock(clock.Now)
	return l, m, clock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func placeBet(t *testing.T, l *ledger.BetLedger, m *BetMonitor, clock *fakeClock, dir domain.Direction, target float64) domain.TapBet {
	t.Helper()
	bet := domain.TapBet{
		ID:          "bet-" + string(dir),
		Asset:       "ETH",
		Direction:   dir,
		Stake:       50,
		TargetPrice: target,
		EntryPrice:  100,
		Multiplier:  2.0,
		PlacedAt:    clock.Now(),
		ExpiresAt:   clock.Now().Add(10 * time.Second),
		Status:      domain.BetStatusActive,
	}
	if err := l.Add(bet); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	m.Track(bet)
	return bet
}

func observe(m *BetMonitor, clock *fakeClock, prices ...float64) {
	for _, p := range prices {
		m.Observe("ETH", domain.PricePoint{Time: clock.Now(), Price: p})
	}
}

func TestEvaluate_WinOnTouch(t *testing.T) {
	l, m, clock := newFixture(t)

	var resolutions []domain.Resolution
	m.OnResolution(func(r domain.Resolution) { resolutions = append(resolutions, r) })

	placeBet(t, l, m, clock, domain.DirectionLong, 105)
	observe(m, clock, 101, 103, 106, 104)

	clock.Advance(500 * time.Millisecond)
	m.Evaluate()

	if len(resolutions) != 1 {
		t.Fatalf("got %d resolutions, want 1", len(resolutions))
	}
	res := resolutions[0]
	if res.Status != domain.BetStatusWon {
		t.Errorf("Status = %v, want won", res.Status)
	}
	if res.PnL != 50 {
		t.Errorf("PnL = %v, want 50", res.PnL)
	}
	if l.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", l.ActiveCount())
	}
}

func TestEvaluate_ShortWinOnTouch(t *testing.T) {
	l, m, clock := newFixture(t)

	var resolutions []domain.Resolution
	m.OnResolution(func(r domain.Resolution) { resolutions = append(resolutions, r) })

	placeBet(t, l, m, clock, domain.DirectionShort, 95)
	observe(m, clock, 99, 97, 94.5, 98)

	m.Evaluate()

	if len(resolutions) != 1 || resolutions[0].Status != domain.BetStatusWon {
		t.Fatalf("resolutions = %+v, want one win", resolutions)
	}
}

func TestEvaluate_LossOnExpiry(t *testing.T) {
	l, m, clock := newFixture(t)

	var resolutions []domain.Resolution
	m.OnResolution(func(r domain.Resolution) { resolutions = append(resolutions, r) })

	placeBet(t, l, m, clock, domain.DirectionLong, 105)
	observe(m, clock, 101, 102, 103, 104)

	// Still active before expiry.
	m.Evaluate()
	if len(resolutions) != 0 {
		t.Fatalf("resolved before expiry: %+v", resolutions)
	}

	clock.Advance(11 * time.Second)
	m.Evaluate()

	if len(resolutions) != 1 {
		t.Fatalf("got %d resolutions, want 1", len(resolutions))
	}
	res := resolutions[0]
	if res.Status != domain.BetStatusLost {
		t.Errorf("Status = %v, want lost", res.Status)
	}
	if res.PnL != -50 {
		t.Errorf("PnL = %v, want -50", res.PnL)
	}
}

func TestEvaluate_TouchBeatsExpiry(t *testing.T) {
	l, m, clock := newFixture(t)

	var resolutions []domain.Resolution
	m.OnResolution(func(r domain.Resolution) { resolutions = append(resolutions, r) })

	placeBet(t, l, m, clock, domain.DirectionLong, 105)

	// The touch lands inside the window but evaluation only happens
	// after expiry. The recorded excursion must still win.
	observe(m, clock, 106)
	clock.Advance(time.Minute)
	m.Evaluate()

	if len(resolutions) != 1 || resolutions[0].Status != domain.BetStatusWon {
		t.Fatalf("resolutions = %+v, want one win", resolutions)
	}
}

func TestEvaluate_ExactTouchWins(t *testing.T) {
	l, m, clock := newFixture(t)

	var resolutions []domain.Resolution
	m.OnResolution(func(r domain.Resolution) { resolutions = append(resolutions, r) })

	placeBet(t, l, m, clock, domain.DirectionLong, 105)
	observe(m, clock, 105)
	m.Evaluate()

	if len(resolutions) != 1 || resolutions[0].Status != domain.BetStatusWon {
		t.Fatalf("resolutions = %+v, want one win on exact touch", resolutions)
	}
}

func TestObserve_IgnoresOtherAssets(t *testing.T) {
	l, m, clock := newFixture(t)

	var resolutions []domain.Resolution
	m.OnResolution(func(r domain.Resolution) { resolutions = append(resolutions, r) })

	placeBet(t, l, m, clock, domain.DirectionLong, 105)
	m.Observe("BTC", domain.PricePoint{Time: clock.Now(), Price: 110})
	m.Evaluate()

	if len(resolutions) != 0 {
		t.Fatalf("BTC tick resolved an ETH bet: %+v", resolutions)
	}
}

func TestEvaluate_PurgesResolvedExcursions(t *testing.T) {
	l, m, clock := newFixture(t)

	placeBet(t, l, m, clock, domain.DirectionLong, 105)
	if got := m.TrackedCount(); got != 1 {
		t.Fatalf("TrackedCount() = %d, want 1", got)
	}

	observe(m, clock, 106)
	m.Evaluate()

	if got := m.TrackedCount(); got != 0 {
		t.Errorf("TrackedCount() after resolution = %d, want 0", got)
	}
}

func TestEvaluate_PurgesExternallyRemovedBets(t *testing.T) {
	l, m, clock := newFixture(t)

	bet := placeBet(t, l, m, clock, domain.DirectionLong, 105)

	// Resolve behind the monitor's back; the next pass must drop the
	// stale excursion state.
	if _, err := l.Resolve(bet.ID, false, clock.Now()); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	m.Evaluate()

	if got := m.TrackedCount(); got != 0 {
		t.Errorf("TrackedCount() = %d, want 0", got)
	}
}
