package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/tapbot/internal/domain"
)

type recordedMsg struct {
	title   string
	message string
}

type fakeSender struct {
	name string
	sent []recordedMsg
	err  error
}

func (s *fakeSender) Send(ctx context.Context, title, message string) error {
	s.sent = append(s.sent, recordedMsg{title: title, message: message})
	return s.err
}

func (s *fakeSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleBet() domain.TapBet {
	placed := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	return domain.TapBet{
		ID:          "bet-1",
		Asset:       "BTC",
		Direction:   domain.DirectionLong,
		Stake:       25,
		TargetPrice: 97425,
		EntryPrice:  97400.5,
		Multiplier:  1.85,
		PlacedAt:    placed,
		ExpiresAt:   placed.Add(10 * time.Second),
		Status:      domain.BetStatusActive,
	}
}

func TestBetPlaced_DeliversToAllSenders(t *testing.T) {
	tg := &fakeSender{name: "telegram"}
	dc := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{tg, dc}, nil, testLogger())

	n.BetPlaced(context.Background(), sampleBet())

	for _, s := range []*fakeSender{tg, dc} {
		if len(s.sent) != 1 {
			t.Fatalf("%s sent = %d, want 1", s.name, len(s.sent))
		}
		if s.sent[0].title != "Bet placed" {
			t.Errorf("%s title = %q", s.name, s.sent[0].title)
		}
		for _, want := range []string{"BTC LONG", "stake 25.00", "1.85x", "97425", "10s"} {
			if !strings.Contains(s.sent[0].message, want) {
				t.Errorf("%s message %q missing %q", s.name, s.sent[0].message, want)
			}
		}
	}
}

func TestBetResolved_WonAndLost(t *testing.T) {
	s := &fakeSender{name: "telegram"}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	bet := sampleBet()
	won, pnl := bet.Win()
	n.BetResolved(context.Background(), domain.Resolution{
		Bet: won, Status: domain.BetStatusWon, PnL: pnl, ResolvedAt: time.Now(),
	})
	lost, pnl := bet.Lose()
	n.BetResolved(context.Background(), domain.Resolution{
		Bet: lost, Status: domain.BetStatusLost, PnL: pnl, ResolvedAt: time.Now(),
	})

	if len(s.sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(s.sent))
	}
	if s.sent[0].title != "Bet won" || !strings.Contains(s.sent[0].message, "+21.25") {
		t.Errorf("win notification = %+v", s.sent[0])
	}
	if s.sent[1].title != "Bet lost" || !strings.Contains(s.sent[1].message, "-25.00") {
		t.Errorf("loss notification = %+v", s.sent[1])
	}
}

func TestNotifier_EventFilter(t *testing.T) {
	s := &fakeSender{name: "telegram"}
	n := NewNotifier([]Sender{s}, []string{EventBetWon}, testLogger())

	n.BetPlaced(context.Background(), sampleBet())
	n.FeedDown(context.Background(), "BTC", "read timeout")
	if len(s.sent) != 0 {
		t.Fatalf("filtered events delivered: %+v", s.sent)
	}

	won, pnl := sampleBet().Win()
	n.BetResolved(context.Background(), domain.Resolution{
		Bet: won, Status: domain.BetStatusWon, PnL: pnl,
	})
	if len(s.sent) != 1 {
		t.Fatalf("sent = %d, want 1 after allowed event", len(s.sent))
	}
}

func TestDispatch_FailureDoesNotStopOthers(t *testing.T) {
	bad := &fakeSender{name: "telegram", err: errors.New("api down")}
	good := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	n.FeedDown(context.Background(), "ETH", "connection reset")

	if len(good.sent) != 1 {
		t.Errorf("healthy sender sent = %d, want 1", len(good.sent))
	}
}

func TestTrimFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{97425, "97425"},
		{97400.5, "97400.5"},
		{0.0500, "0.05"},
		{1.2345, "1.2345"},
	}
	for _, tt := range tests {
		if got := trimFloat(tt.in); got != tt.want {
			t.Errorf("trimFloat(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
