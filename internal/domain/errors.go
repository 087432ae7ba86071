package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotConnected        = errors.New("not connected")
	ErrInvalidAsset        = errors.New("invalid asset")
	ErrPlacementInFlight   = errors.New("placement already in flight")
	ErrOrderRejected       = errors.New("order rejected")
	ErrBetResolved         = errors.New("bet already resolved")
	ErrEngineClosed        = errors.New("engine closed")
	ErrWSDisconnect        = errors.New("websocket disconnected")
)
