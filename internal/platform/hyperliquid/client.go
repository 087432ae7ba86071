package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/alanyoungcy/tapbot/internal/crypto"
	"github.com/alanyoungcy/tapbot/internal/domain"
)

// slippageFrac bounds how far the aggressive IoC limit price may cross
// the reference price. 5% is far wider than one tick ever needs; the
// order still fills at the book price.
const slippageFrac = 0.05

// ExchangeClient submits signed order actions to the exchange REST API
// and reads account state from the info endpoint. It implements
// domain.OrderGateway and domain.BalanceSource.
type ExchangeClient struct {
	apiHost string
	signer  *crypto.Signer
	mainnet bool
	client  *http.Client
	logger  *slog.Logger

	// healthy flips false on transport failure and back on any
	// successful call. It backs the Connected precondition check.
	healthy atomic.Bool
}

// NewExchangeClient creates an ExchangeClient for the given API host.
func NewExchangeClient(apiHost string, signer *crypto.Signer, mainnet bool, logger *slog.Logger) *ExchangeClient {
	c := &ExchangeClient{
		apiHost: apiHost,
		signer:  signer,
		mainnet: mainnet,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With(slog.String("component", "exchange_client")),
	}
	c.healthy.Store(true)
	return c
}

// Connected reports whether the last exchange call succeeded at the
// transport level.
func (c *ExchangeClient) Connected() bool {
	return c.healthy.Load()
}

// SubmitMarketOrder places a market-style order: an aggressive
// immediate-or-cancel limit order crossing the book from the reference
// price. Exactly one POST /exchange is made per call.
func (c *ExchangeClient) SubmitMarketOrder(ctx context.Context, req domain.MarketOrderRequest) (domain.OrderResult, error) {
	if req.Size <= 0 || req.Price <= 0 {
		return domain.OrderResult{}, fmt.Errorf("hyperliquid: invalid order request: size=%f price=%f", req.Size, req.Price)
	}

	limitPx := req.Price * (1 + slippageFrac)
	if !req.IsBuy {
		limitPx = req.Price * (1 - slippageFrac)
	}

	wire := orderWire{
		Asset:      req.AssetIndex,
		IsBuy:      req.IsBuy,
		LimitPx:    formatPx(limitPx),
		Size:       formatSz(req.Size),
		ReduceOnly: false,
		Type:       orderType{Limit: &limitType{Tif: "Ioc"}},
		ClientID:   req.ClientID,
	}
	action := orderAction{
		Type:     "order",
		Orders:   []orderWire{wire},
		Grouping: "na",
	}

	actionBytes, err := signingPayload(action)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("hyperliquid: marshal action: %w", err)
	}

	nonce := time.Now().UnixMilli()
	digest := crypto.ActionDigest(actionBytes, nonce)
	r, s, v, err := c.signer.SignAction(digest, c.mainnet)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("hyperliquid: sign action: %w", err)
	}

	body := exchangeRequest{
		Action:    action,
		Nonce:     nonce,
		Signature: rsvSignature{R: r, S: s, V: v},
	}

	var resp exchangeResponse
	if err := c.post(ctx, "/exchange", body, &resp); err != nil {
		return domain.OrderResult{}, err
	}

	if resp.Status != "ok" {
		reason := string(resp.Response)
		var msg string
		if err := json.Unmarshal(resp.Response, &msg); err == nil {
			reason = msg
		}
		return domain.OrderResult{
			Success: false,
			Message: reason,
		}, nil
	}

	var data orderResponseData
	if err := json.Unmarshal(resp.Response, &data); err != nil {
		// Accepted but unparseable detail; treat as success without an id.
		c.logger.Warn("order accepted with unparseable response detail",
			slog.String("client_id", req.ClientID),
		)
		return domain.OrderResult{Success: true, Message: "accepted"}, nil
	}

	for _, st := range data.Data.Statuses {
		if st.Error != "" {
			return domain.OrderResult{Success: false, Message: st.Error}, nil
		}
		if st.Filled != nil {
			return domain.OrderResult{
				Success: true,
				OrderID: strconv.FormatInt(st.Filled.Oid, 10),
				Message: "filled",
			}, nil
		}
		if st.Resting != nil {
			return domain.OrderResult{
				Success: true,
				OrderID: strconv.FormatInt(st.Resting.Oid, 10),
				Message: "resting",
			}, nil
		}
	}

	return domain.OrderResult{Success: true, Message: "accepted"}, nil
}

// WithdrawableBalance reads the account's withdrawable balance from the
// info endpoint.
func (c *ExchangeClient) WithdrawableBalance(ctx context.Context) (float64, error) {
	body := infoRequest{
		Type: "clearinghouseState",
		User: c.signer.Address().Hex(),
	}

	var state clearinghouseState
	if err := c.post(ctx, "/info", body, &state); err != nil {
		return 0, err
	}

	bal, err := strconv.ParseFloat(state.Withdrawable, 64)
	if err != nil {
		return 0, fmt.Errorf("hyperliquid: parse withdrawable %q: %w", state.Withdrawable, err)
	}
	return bal, nil
}

// post sends a JSON POST and decodes the JSON response into out. It
// updates the health flag on transport success/failure.
func (c *ExchangeClient) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("hyperliquid: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiHost+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("hyperliquid: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.healthy.Store(false)
		return fmt.Errorf("hyperliquid: post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.healthy.Store(false)
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("hyperliquid: post %s: unexpected status %d: %s", path, resp.StatusCode, string(respBody))
	}

	c.healthy.Store(true)

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("hyperliquid: decode response: %w", err)
	}
	return nil
}

// signingPayload serializes an action for hashing. The exchange derives
// the action hash from the msgpack encoding, not the JSON body the
// action travels in.
func signingPayload(action any) ([]byte, error) {
	return msgpack.Marshal(action)
}

// formatPx renders a limit price with at most 6 significant decimals,
// trimming trailing zeros the way the API expects.
func formatPx(px float64) string {
	return strconv.FormatFloat(roundTo(px, 6), 'f', -1, 64)
}

// formatSz renders an order size with at most 6 decimals.
func formatSz(sz float64) string {
	return strconv.FormatFloat(roundTo(sz, 6), 'f', -1, 64)
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(v*scale) / scale
}

// Compile-time interface checks.
var (
	_ domain.OrderGateway  = (*ExchangeClient)(nil)
	_ domain.BalanceSource = (*ExchangeClient)(nil)
)
