// Package paper provides a simulated order gateway and balance source
// for running sessions without touching the exchange.
package paper

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tapbot/internal/domain"
)

// Gateway accepts every order and reports a fixed account balance. It
// keeps no positions: in paper mode exposure lives entirely in the bet
// ledger.
type Gateway struct {
	balance float64
	logger  *slog.Logger
}

// NewGateway creates a paper gateway with the given simulated balance.
func NewGateway(balance float64, logger *slog.Logger) *Gateway {
	return &Gateway{
		balance: balance,
		logger:  logger.With(slog.String("component", "paper_gateway")),
	}
}

// SubmitMarketOrder acknowledges the order without submitting anything.
func (g *Gateway) SubmitMarketOrder(ctx context.Context, req domain.MarketOrderRequest) (domain.OrderResult, error) {
	orderID := uuid.NewString()
	g.logger.InfoContext(ctx, "paper order accepted",
		slog.String("order_id", orderID),
		slog.Int("asset_index", req.AssetIndex),
		slog.Bool("is_buy", req.IsBuy),
		slog.Float64("size", req.Size),
		slog.Float64("ref_price", req.Price),
	)
	return domain.OrderResult{Success: true, OrderID: orderID}, nil
}

// Connected always reports true.
func (g *Gateway) Connected() bool { return true }

// WithdrawableBalance returns the configured simulated balance.
func (g *Gateway) WithdrawableBalance(ctx context.Context) (float64, error) {
	return g.balance, nil
}

var (
	_ domain.OrderGateway  = (*Gateway)(nil)
	_ domain.BalanceSource = (*Gateway)(nil)
)
