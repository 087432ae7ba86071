// Package notify delivers session alerts (placements, wins, losses,
// feed outages) to external channels. Delivery is fire-and-forget from
// the engine's perspective; a slow or failing channel never blocks
// trading.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/tapbot/internal/domain"
)

// Event types the notifier can filter on.
const (
	EventBetPlaced = "bet_placed"
	EventBetWon    = "bet_won"
	EventBetLost   = "bet_lost"
	EventFeedDown  = "feed_down"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel (e.g. "telegram").
	Name() string
}

// Notifier fans notifications out to all registered senders, filtered
// by event type. An empty event list allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// BetPlaced announces a newly placed bet.
func (n *Notifier) BetPlaced(ctx context.Context, bet domain.TapBet) {
	msg := fmt.Sprintf("%s %s | stake %.2f @ %.2fx | target %s (entry %s) | window %s",
		bet.Asset, strings.ToUpper(string(bet.Direction)),
		bet.Stake, bet.Multiplier,
		trimFloat(bet.TargetPrice), trimFloat(bet.EntryPrice),
		bet.ExpiresAt.Sub(bet.PlacedAt))
	n.notify(ctx, EventBetPlaced, "Bet placed", msg)
}

// BetResolved announces a settled bet, won or lost.
func (n *Notifier) BetResolved(ctx context.Context, res domain.Resolution) {
	if res.Won() {
		msg := fmt.Sprintf("%s %s touched %s | pnl +%.2f",
			res.Bet.Asset, strings.ToUpper(string(res.Bet.Direction)),
			trimFloat(res.Bet.TargetPrice), res.PnL)
		n.notify(ctx, EventBetWon, "Bet won", msg)
		return
	}
	msg := fmt.Sprintf("%s %s expired without touching %s | pnl %.2f",
		res.Bet.Asset, strings.ToUpper(string(res.Bet.Direction)),
		trimFloat(res.Bet.TargetPrice), res.PnL)
	n.notify(ctx, EventBetLost, "Bet lost", msg)
}

// FeedDown warns that an asset's price stream has been disconnected.
func (n *Notifier) FeedDown(ctx context.Context, asset, reason string) {
	n.notify(ctx, EventFeedDown, "Feed disconnected",
		fmt.Sprintf("%s price feed down: %s", asset, reason))
}

// notify applies the event filter and dispatches. Individual sender
// failures are logged and do not stop delivery to the rest.
func (n *Notifier) notify(ctx context.Context, event, title, message string) {
	if len(n.events) > 0 && !n.events[event] {
		return
	}
	if err := n.dispatch(ctx, title, message); err != nil {
		n.logger.WarnContext(ctx, "notification delivery incomplete",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	return errors.Join(errs...)
}

// trimFloat renders a price without trailing zeros.
func trimFloat(v float64) string {
	s := fmt.Sprintf("%.4f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
