package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/tapbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	hub := NewHub("paper", discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialHub(t, hub)
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	// First frame is the status hello.
	var hello envelope
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Channel != "status" {
		t.Fatalf("first frame channel = %q, want status", hello.Channel)
	}

	hub.BroadcastJSON(domain.ChannelTicks, map[string]any{"asset": "BTC", "price": 97425.0})

	var ev envelope
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read tick: %v", err)
	}
	if ev.Channel != domain.ChannelTicks {
		t.Errorf("channel = %q, want %q", ev.Channel, domain.ChannelTicks)
	}
	var tick struct {
		Asset string  `json:"asset"`
		Price float64 `json:"price"`
	}
	if err := json.Unmarshal(ev.Payload, &tick); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if tick.Asset != "BTC" || tick.Price != 97425 {
		t.Errorf("tick = %+v, want BTC at 97425", tick)
	}
}

func TestHandleWS_AfterHubStopped(t *testing.T) {
	hub := NewHub("paper", discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(runDone)
	}()
	cancel()
	<-runDone

	// The HTTP server may still be draining connections after the hub
	// loop has exited; the handler must close the socket instead of
	// parking on the register channel.
	conn := dialHub(t, hub)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected the connection to be closed")
	}
	if e, ok := err.(net.Error); ok && e.Timeout() {
		t.Fatal("connection left open after hub stopped")
	}
}
