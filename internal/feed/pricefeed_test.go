package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/tapbot/internal/domain"
	"github.com/alanyoungcy/tapbot/internal/platform/hyperliquid"
)

func newTestFeed(historySize int) *PriceFeed {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New("ws://unused", "BTC", Config{HistorySize: historySize}, logger)
}

func trade(price float64) hyperliquid.TradeMessage {
	return hyperliquid.TradeMessage{
		Coin: "BTC",
		Px:   strconv.FormatFloat(price, 'f', -1, 64),
	}
}

func TestApplyTrade_RecordsCurrentAndHistory(t *testing.T) {
	f := newTestFeed(100)
	gen := f.nextGeneration()

	for _, p := range []float64{100, 101, 99.5} {
		f.applyTrade(gen, trade(p))
	}

	if got := f.CurrentPrice(); got != 99.5 {
		t.Errorf("CurrentPrice() = %v, want 99.5", got)
	}
	snap := f.Snapshot()
	if len(snap.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(snap.History))
	}
	if snap.History[0].Price != 100 || snap.History[2].Price != 99.5 {
		t.Errorf("history = %v, want oldest-first [100 101 99.5]", snap.History)
	}
}

func TestApplyTrade_TruncatesHistory(t *testing.T) {
	f := newTestFeed(5)
	gen := f.nextGeneration()

	for i := 1; i <= 8; i++ {
		f.applyTrade(gen, trade(float64(i)))
	}

	snap := f.Snapshot()
	if len(snap.History) != 5 {
		t.Fatalf("history length = %d, want 5", len(snap.History))
	}
	// Oldest entries dropped, latest kept.
	if snap.History[0].Price != 4 || snap.History[4].Price != 8 {
		t.Errorf("history = %v, want prices 4..8", snap.History)
	}
}

func TestApplyTrade_DropsStaleGeneration(t *testing.T) {
	f := newTestFeed(100)
	old := f.nextGeneration()
	f.applyTrade(old, trade(100))

	// A reconnect supersedes the old connection; its late ticks must be
	// discarded.
	live := f.nextGeneration()
	f.applyTrade(old, trade(42))

	if got := f.CurrentPrice(); got != 100 {
		t.Errorf("CurrentPrice() = %v, want 100 (stale tick applied)", got)
	}

	f.applyTrade(live, trade(105))
	if got := f.CurrentPrice(); got != 105 {
		t.Errorf("CurrentPrice() = %v, want 105", got)
	}
}

func TestApplyTrade_DropsAfterClose(t *testing.T) {
	f := newTestFeed(100)
	gen := f.nextGeneration()
	f.applyTrade(gen, trade(100))

	f.Close()
	f.applyTrade(gen, trade(200))

	if got := f.CurrentPrice(); got != 100 {
		t.Errorf("CurrentPrice() = %v, want 100 after close", got)
	}
}

func TestApplyTrade_IgnoresInvalidPrice(t *testing.T) {
	f := newTestFeed(100)
	gen := f.nextGeneration()

	f.applyTrade(gen, hyperliquid.TradeMessage{Coin: "BTC", Px: "garbage"})

	if got := f.CurrentPrice(); got != 0 {
		t.Errorf("CurrentPrice() = %v, want 0", got)
	}
	if snap := f.Snapshot(); len(snap.History) != 0 {
		t.Errorf("history length = %d, want 0", len(snap.History))
	}
}

func TestApplyTrade_FansOutToHandlers(t *testing.T) {
	f := newTestFeed(100)

	var got []domain.PricePoint
	var gotAsset string
	f.OnTick(func(asset string, p domain.PricePoint) {
		gotAsset = asset
		got = append(got, p)
	})

	gen := f.nextGeneration()
	f.applyTrade(gen, trade(100))
	f.applyTrade(gen, trade(101))

	if gotAsset != "BTC" {
		t.Errorf("handler asset = %q, want BTC", gotAsset)
	}
	if len(got) != 2 || got[1].Price != 101 {
		t.Errorf("handler ticks = %v, want two ticks ending at 101", got)
	}
}

// quietWSServer upgrades, consumes the subscribe command, then sends
// nothing until the client closes the connection.
func quietWSServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func waitConnected(t *testing.T, f *PriceFeed) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !f.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("feed never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRun_ReturnsOnCancelWhileStreamQuiet(t *testing.T) {
	srv := quietWSServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := New(wsURL, "BTC", Config{ReconnectDelay: time.Hour, HistorySize: 10}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	waitConnected(t, f)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run still blocked after cancellation: connection not closed")
	}
}

func TestRun_ReturnsOnCloseWhileStreamQuiet(t *testing.T) {
	srv := quietWSServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := New(wsURL, "BTC", Config{ReconnectDelay: time.Hour, HistorySize: 10}, logger)

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()

	waitConnected(t, f)
	f.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil after Close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run still blocked after Close: connection not closed")
	}
}

func TestNew_DefaultsApplied(t *testing.T) {
	f := newTestFeed(0)
	if f.cfg.HistorySize != 100 {
		t.Errorf("HistorySize = %d, want 100", f.cfg.HistorySize)
	}
	if f.cfg.ReconnectDelay <= 0 {
		t.Errorf("ReconnectDelay = %v, want positive default", f.cfg.ReconnectDelay)
	}
}
