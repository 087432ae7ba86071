package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/tapbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// handshakeTimeout bounds the WebSocket dial.
	handshakeTimeout = 15 * time.Second
)

// TradeHandler is called for every trade received on a subscribed coin.
type TradeHandler func(TradeMessage)

// WSClient is a single-connection WebSocket client for the trade stream.
// It has no reconnect policy of its own: the owning feed creates a fresh
// client per connection attempt, which keeps stale-connection ticks
// impossible by construction.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	onTrade     TradeHandler
	onMalformed func([]byte)
	handlerMu   sync.RWMutex

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewWSClient creates a WebSocket client for the given endpoint, e.g.
// "wss://api.hyperliquid.xyz/ws".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// OnTrade registers the handler invoked for each trade message. Must be
// called before Connect.
func (w *WSClient) OnTrade(handler TradeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.onTrade = handler
}

// OnMalformed registers a handler invoked with the raw payload of any
// message that fails to parse. Malformed messages never stop the loop.
func (w *WSClient) OnMalformed(handler func([]byte)) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.onMalformed = handler
}

// Connect establishes the WebSocket connection and starts the ping loop.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("hyperliquid/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("hyperliquid/ws: connect: %w", err)
	}

	w.conn = conn

	// Keep-alive via pong deadline extension.
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.pingLoop()

	return nil
}

// SubscribeTrades subscribes to the trade stream for the given coin.
func (w *WSClient) SubscribeTrades(ctx context.Context, coin string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("hyperliquid/ws: not connected")
	}

	cmd := WSCommand{
		Method:       "subscribe",
		Subscription: &Subscription{Type: "trades", Coin: coin},
	}
	if err := w.sendCommand(cmd); err != nil {
		return fmt.Errorf("hyperliquid/ws: subscribe trades %s: %w", coin, err)
	}
	return nil
}

// ReadLoop reads and dispatches messages until the connection fails, the
// client is closed, or ctx is cancelled. It always returns a non-nil
// error describing why the loop ended.
func (w *WSClient) ReadLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return domain.ErrWSDisconnect
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return fmt.Errorf("hyperliquid/ws: not connected")
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return domain.ErrWSDisconnect
			default:
			}
			return fmt.Errorf("hyperliquid/ws: read: %w", err)
		}

		w.handleMessage(message)
	}
}

// Close shuts down the connection. Safe to call more than once.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendCommand sends a JSON command to the WebSocket. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd WSCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// pingLoop sends periodic protocol-level pings to keep the stream alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			conn := w.conn
			if conn == nil {
				w.mu.Unlock()
				return
			}
			err := w.sendCommand(WSCommand{Method: "ping"})
			w.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw WebSocket message and dispatches trades to
// the registered handler. Malformed messages are reported to the
// onMalformed handler and otherwise dropped; they never fail the loop.
func (w *WSClient) handleMessage(raw []byte) {
	var envelope wsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		w.reportMalformed(raw)
		return
	}

	if envelope.Channel != "trades" {
		return
	}

	var trades []TradeMessage
	if err := json.Unmarshal(envelope.Data, &trades); err != nil {
		w.reportMalformed(raw)
		return
	}

	w.handlerMu.RLock()
	handler := w.onTrade
	w.handlerMu.RUnlock()

	if handler == nil {
		return
	}
	for _, t := range trades {
		handler(t)
	}
}

func (w *WSClient) reportMalformed(raw []byte) {
	w.handlerMu.RLock()
	handler := w.onMalformed
	w.handlerMu.RUnlock()
	if handler != nil {
		handler(raw)
	}
}
