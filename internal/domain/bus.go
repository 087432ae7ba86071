package domain

import (
	"context"
	"time"
)

// EventBus is a fire-and-forget pub/sub channel for engine events
// (ticks, placements, resolutions). Implementations are expected to be
// lossy under backpressure; the engine never blocks on publishing.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a receive channel that is closed when ctx is
	// cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// PriceCache mirrors the latest price per asset for external consumers.
// It is an ephemeral cache, not a system of record.
type PriceCache interface {
	SetPrice(ctx context.Context, asset string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, asset string) (float64, time.Time, error)
}

// Bus channel names published by the engine.
const (
	ChannelTicks       = "ticks"
	ChannelPlacements  = "placements"
	ChannelResolutions = "resolutions"
)
