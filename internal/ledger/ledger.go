// Package ledger tracks the session's active and completed bets and
// derives the spendable balance from them.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/tapbot/internal/domain"
)

// BetLedger is the single owner of bet records for a session. Active
// bets live in a set keyed by id; completed bets accumulate in an
// append-only log. All methods are safe for concurrent use.
type BetLedger struct {
	mu        sync.RWMutex
	active    map[string]domain.TapBet
	completed []domain.CompletedBet
}

// New returns an empty ledger.
func New() *BetLedger {
	return &BetLedger{active: make(map[string]domain.TapBet)}
}

// Add records a newly placed bet in the active set.
func (l *BetLedger) Add(bet domain.TapBet) error {
	if bet.Status != domain.BetStatusActive {
		return fmt.Errorf("ledger: add: bet %s is not active", bet.ID)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.active[bet.ID]; ok {
		return fmt.Errorf("ledger: add: duplicate bet id %s", bet.ID)
	}
	l.active[bet.ID] = bet
	return nil
}

// Get returns the active bet with the given id.
func (l *BetLedger) Get(id string) (domain.TapBet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bet, ok := l.active[id]
	if !ok {
		return domain.TapBet{}, fmt.Errorf("ledger: get %s: %w", id, domain.ErrNotFound)
	}
	return bet, nil
}

// Resolve moves an active bet to the completed log with the outcome.
// Resolving a bet that is no longer active returns ErrBetResolved, so
// racing monitors cannot settle the same bet twice.
func (l *BetLedger) Resolve(id string, won bool, at time.Time) (domain.Resolution, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bet, ok := l.active[id]
	if !ok {
		return domain.Resolution{}, fmt.Errorf("ledger: resolve %s: %w", id, domain.ErrBetResolved)
	}
	delete(l.active, id)

	var (
		resolved domain.TapBet
		pnl      float64
	)
	if won {
		resolved, pnl = bet.Win()
	} else {
		resolved, pnl = bet.Lose()
	}

	l.completed = append(l.completed, domain.CompletedBet{
		TapBet:     resolved,
		PnL:        pnl,
		ResolvedAt: at,
	})

	return domain.Resolution{
		Bet:        resolved,
		Status:     resolved.Status,
		PnL:        pnl,
		ResolvedAt: at,
	}, nil
}

// Active returns the active bets, newest first.
func (l *BetLedger) Active() []domain.TapBet {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.TapBet, 0, len(l.active))
	for _, b := range l.active {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.After(out[j].PlacedAt) })
	return out
}

// ActiveIDs returns the ids of all active bets.
func (l *BetLedger) ActiveIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.active))
	for id := range l.active {
		ids = append(ids, id)
	}
	return ids
}

// ActiveCount returns the number of active bets.
func (l *BetLedger) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.active)
}

// Completed returns a copy of the completed-bet log in resolution order.
func (l *BetLedger) Completed() []domain.CompletedBet {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.CompletedBet, len(l.completed))
	copy(out, l.completed)
	return out
}

// StakedTotal sums the stakes currently locked in active bets.
func (l *BetLedger) StakedTotal() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total float64
	for _, b := range l.active {
		total += b.Stake
	}
	return total
}

// AvailableBalance derives spendable balance from an external balance:
// the external figure minus every active stake. The ledger never holds
// a balance of its own.
func (l *BetLedger) AvailableBalance(external float64) float64 {
	return external - l.StakedTotal()
}

// SessionPnL sums realized profit and loss across completed bets.
func (l *BetLedger) SessionPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total float64
	for _, c := range l.completed {
		total += c.PnL
	}
	return total
}
