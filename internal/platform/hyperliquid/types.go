// Package hyperliquid implements the market-data WebSocket client and the
// signed exchange REST client for the Hyperliquid API.
package hyperliquid

import (
	"encoding/json"
	"strconv"
)

// WSCommand is the subscription envelope sent over the WebSocket.
type WSCommand struct {
	Method       string        `json:"method"` // "subscribe", "unsubscribe", "ping"
	Subscription *Subscription `json:"subscription,omitempty"`
}

// Subscription identifies one feed channel for a coin.
type Subscription struct {
	Type string `json:"type"` // "trades"
	Coin string `json:"coin"`
}

// wsEnvelope is the outer shape of every message from the server.
type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// TradeMessage is a single trade published on the "trades" channel.
// Prices and sizes arrive as decimal strings.
type TradeMessage struct {
	Coin string `json:"coin"`
	Side string `json:"side"` // "A" ask-side (sell), "B" bid-side (buy)
	Px   string `json:"px"`
	Sz   string `json:"sz"`
	Time int64  `json:"time"` // unix ms
	Tid  int64  `json:"tid"`
}

// Price parses the decimal price string. It returns 0 and false when the
// field is not a valid positive number.
func (t TradeMessage) Price() (float64, bool) {
	p, err := strconv.ParseFloat(t.Px, 64)
	if err != nil || p <= 0 {
		return 0, false
	}
	return p, true
}

// --------------------------------------------------------------------------
// Exchange endpoint payloads
// --------------------------------------------------------------------------

// orderWire is one order entry inside an order action, using the
// exchange's compact field names. The msgpack tags must mirror the json
// ones: the action is signed over its msgpack form and submitted in its
// JSON form, and the exchange recomputes the hash from the same fields
// in the same order.
type orderWire struct {
	Asset      int       `json:"a" msgpack:"a"`
	IsBuy      bool      `json:"b" msgpack:"b"`
	LimitPx    string    `json:"p" msgpack:"p"`
	Size       string    `json:"s" msgpack:"s"`
	ReduceOnly bool      `json:"r" msgpack:"r"`
	Type       orderType `json:"t" msgpack:"t"`
	ClientID   string    `json:"c,omitempty" msgpack:"c,omitempty"`
}

type orderType struct {
	Limit *limitType `json:"limit,omitempty" msgpack:"limit,omitempty"`
}

type limitType struct {
	Tif string `json:"tif" msgpack:"tif"` // "Ioc" for market-style orders
}

// orderAction is the signed action submitted to POST /exchange.
type orderAction struct {
	Type     string      `json:"type" msgpack:"type"` // "order"
	Orders   []orderWire `json:"orders" msgpack:"orders"`
	Grouping string      `json:"grouping" msgpack:"grouping"` // "na"
}

// rsvSignature carries the EIP-712 signature components.
type rsvSignature struct {
	R string `json:"r"`
	S string `json:"s"`
	V int    `json:"v"`
}

// exchangeRequest is the full POST /exchange body.
type exchangeRequest struct {
	Action    orderAction  `json:"action"`
	Nonce     int64        `json:"nonce"`
	Signature rsvSignature `json:"signature"`
}

// exchangeResponse is the result envelope from POST /exchange. On
// rejection Status is "err" and Response carries the reason string.
type exchangeResponse struct {
	Status   string          `json:"status"` // "ok" or "err"
	Response json.RawMessage `json:"response"`
}

// statusEntry is one per-order status inside a successful response.
type statusEntry struct {
	Resting *struct {
		Oid int64 `json:"oid"`
	} `json:"resting,omitempty"`
	Filled *struct {
		Oid     int64  `json:"oid"`
		AvgPx   string `json:"avgPx"`
		TotalSz string `json:"totalSz"`
	} `json:"filled,omitempty"`
	Error string `json:"error,omitempty"`
}

// orderResponseData is the decoded Response payload for order actions.
type orderResponseData struct {
	Type string `json:"type"`
	Data struct {
		Statuses []statusEntry `json:"statuses"`
	} `json:"data"`
}

// infoRequest is the POST /info body for account state queries.
type infoRequest struct {
	Type string `json:"type"` // "clearinghouseState"
	User string `json:"user"`
}

// clearinghouseState is the subset of the account snapshot the engine
// consumes.
type clearinghouseState struct {
	Withdrawable string `json:"withdrawable"`
	MarginSummary struct {
		AccountValue string `json:"accountValue"`
	} `json:"marginSummary"`
}
