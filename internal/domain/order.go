package domain

import "context"

// MarketOrderRequest asks the execution gateway to open a position
// sized from a bet's stake and the configured leverage.
type MarketOrderRequest struct {
	AssetIndex int
	IsBuy      bool
	Size       float64
	// Price is the reference price used to bound slippage on the
	// aggressive IoC order the gateway builds.
	Price float64
	// ClientID ties the order back to the bet that produced it.
	ClientID string
}

// OrderResult is the gateway's acknowledgement. Success means the order
// was accepted for execution, not necessarily filled. On failure,
// Message carries the exchange's human-readable reason.
type OrderResult struct {
	Success bool
	OrderID string
	Message string
}

// OrderGateway submits market orders to the exchange. Implementations
// must not block indefinitely; failures surface as errors or an
// unsuccessful result, never panics.
type OrderGateway interface {
	SubmitMarketOrder(ctx context.Context, req MarketOrderRequest) (OrderResult, error)
	// Connected reports whether the gateway can currently accept orders.
	Connected() bool
}

// BalanceSource yields the withdrawable account balance used as the
// external balance figure in available-balance accounting.
type BalanceSource interface {
	WithdrawableBalance(ctx context.Context) (float64, error)
}
