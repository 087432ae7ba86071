// Package domain defines the core types shared across the tap trading
// engine: price ticks, grid cells, bets, and the interfaces the engine
// consumes (order gateway, balance source, event bus).
package domain

import "time"

// Direction is the side of a tap bet relative to the price at placement.
type Direction string

const (
	DirectionLong  Direction = "long"  // target above entry
	DirectionShort Direction = "short" // target below entry
)

// BetStatus tracks the tap bet lifecycle. A bet is created active and
// reaches exactly one terminal status.
type BetStatus string

const (
	BetStatusActive BetStatus = "active"
	BetStatusWon    BetStatus = "won"
	BetStatusLost   BetStatus = "lost"
)

// Terminal reports whether the status admits no further transitions.
func (s BetStatus) Terminal() bool {
	return s == BetStatusWon || s == BetStatusLost
}

// TapBet is a single wager that price will touch TargetPrice before
// ExpiresAt. Stake and payout are denominated in the account currency.
type TapBet struct {
	ID          string
	Asset       string
	Direction   Direction
	Stake       float64
	TargetPrice float64
	EntryPrice  float64
	Multiplier  float64
	PlacedAt    time.Time
	ExpiresAt   time.Time
	Status      BetStatus
}

// Win returns a copy of the bet in the won state together with its
// realized PnL. It is a pure transition; callers must ensure the bet is
// still active.
func (b TapBet) Win() (TapBet, float64) {
	b.Status = BetStatusWon
	return b, b.Stake * (b.Multiplier - 1)
}

// Lose returns a copy of the bet in the lost state together with its
// realized PnL.
func (b TapBet) Lose() (TapBet, float64) {
	b.Status = BetStatusLost
	return b, -b.Stake
}

// CompletedBet is a resolved bet with its realized PnL, appended to the
// session history in resolution order.
type CompletedBet struct {
	TapBet
	PnL        float64
	ResolvedAt time.Time
}

// Resolution is the event the bet monitor emits when an active bet
// reaches a terminal status.
type Resolution struct {
	Bet        TapBet
	Status     BetStatus
	PnL        float64
	ResolvedAt time.Time
}

// Won is a convenience accessor for feedback sinks.
func (r Resolution) Won() bool { return r.Status == BetStatusWon }
