package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tapbot/internal/domain"
	"github.com/alanyoungcy/tapbot/internal/server"
	"github.com/alanyoungcy/tapbot/internal/server/handler"
	"github.com/alanyoungcy/tapbot/internal/server/ws"
)

// notifyTimeout bounds each outbound notification attempt.
const notifyTimeout = 10 * time.Second

// tickEvent is the wire form of a price tick on the event channels.
type tickEvent struct {
	Asset string  `json:"asset"`
	Price float64 `json:"price"`
	Time  string  `json:"time"`
}

// betEvent is the wire form of a placement or resolution event.
type betEvent struct {
	BetID      string  `json:"bet_id"`
	Asset      string  `json:"asset"`
	Direction  string  `json:"direction"`
	Stake      float64 `json:"stake"`
	Target     float64 `json:"target_price"`
	Multiplier float64 `json:"multiplier"`
	Status     string  `json:"status"`
	PnL        float64 `json:"pnl,omitempty"`
}

// SessionMode runs an interactive tap trading session: the engine with
// its price feeds, the resolution monitor, and (when enabled) the HTTP
// and WebSocket API. It blocks until the context is cancelled.
func (a *App) SessionMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting session mode",
		slog.String("asset", a.cfg.Engine.DefaultAsset),
		slog.Bool("server", a.cfg.Server.Enabled),
		slog.Bool("redis", a.cfg.Redis.Enabled),
	)

	g, ctx := errgroup.WithContext(ctx)

	var hub *ws.Hub
	if a.cfg.Server.Enabled {
		hub = ws.NewHub(a.cfg.Mode, a.logger)
	}

	a.wireEvents(ctx, deps, hub)

	g.Go(func() error {
		err := deps.Monitor.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		err := deps.Engine.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	if a.cfg.Server.Enabled {
		g.Go(func() error {
			err := hub.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})

		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		}, server.Handlers{
			Health:   handler.NewHealthHandler(a.cfg.Mode),
			State:    handler.NewStateHandler(deps.Engine),
			Grid:     handler.NewGridHandler(deps.Engine, a.logger),
			Bets:     handler.NewBetHandler(deps.Engine, a.logger),
			Settings: handler.NewSettingsHandler(deps.Engine),
		}, hub, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// wireEvents connects engine and monitor callbacks to the WebSocket
// hub, the optional Redis mirrors, and the notifier. Every consumer is
// fire-and-forget: a slow sink never blocks tick or resolution flow.
func (a *App) wireEvents(ctx context.Context, deps *Dependencies, hub *ws.Hub) {
	deps.Engine.OnTick(func(asset string, p domain.PricePoint) {
		ev := tickEvent{
			Asset: asset,
			Price: p.Price,
			Time:  p.Time.UTC().Format(time.RFC3339Nano),
		}
		if hub != nil {
			hub.BroadcastJSON(domain.ChannelTicks, ev)
		}
		if deps.PriceCache != nil || deps.Bus != nil {
			go a.mirrorTick(ctx, deps, asset, p, ev)
		}
	})

	deps.Engine.OnPlacement(func(bet domain.TapBet) {
		ev := betEvent{
			BetID:      bet.ID,
			Asset:      bet.Asset,
			Direction:  string(bet.Direction),
			Stake:      bet.Stake,
			Target:     bet.TargetPrice,
			Multiplier: bet.Multiplier,
			Status:     string(bet.Status),
		}
		if hub != nil {
			hub.BroadcastJSON(domain.ChannelPlacements, ev)
		}
		a.publishEvent(ctx, deps, domain.ChannelPlacements, ev)
		go a.withNotifyTimeout(ctx, func(nctx context.Context) {
			deps.Notifier.BetPlaced(nctx, bet)
		})
	})

	deps.Monitor.OnResolution(func(res domain.Resolution) {
		ev := betEvent{
			BetID:      res.Bet.ID,
			Asset:      res.Bet.Asset,
			Direction:  string(res.Bet.Direction),
			Stake:      res.Bet.Stake,
			Target:     res.Bet.TargetPrice,
			Multiplier: res.Bet.Multiplier,
			Status:     string(res.Status),
			PnL:        res.PnL,
		}
		if hub != nil {
			hub.BroadcastJSON(domain.ChannelResolutions, ev)
		}
		a.publishEvent(ctx, deps, domain.ChannelResolutions, ev)
		go a.withNotifyTimeout(ctx, func(nctx context.Context) {
			deps.Notifier.BetResolved(nctx, res)
		})
	})

	deps.Engine.OnFeedDown(func(asset, reason string) {
		go a.withNotifyTimeout(ctx, func(nctx context.Context) {
			deps.Notifier.FeedDown(nctx, asset, reason)
		})
	})
}

// mirrorTick pushes a tick into the Redis price cache and event bus.
func (a *App) mirrorTick(ctx context.Context, deps *Dependencies, asset string, p domain.PricePoint, ev tickEvent) {
	mctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if deps.PriceCache != nil {
		if err := deps.PriceCache.SetPrice(mctx, asset, p.Price, p.Time); err != nil {
			a.logger.Debug("price mirror failed", slog.String("error", err.Error()))
		}
	}
	a.publishEvent(mctx, deps, domain.ChannelTicks, ev)
}

// publishEvent marshals v onto the Redis event bus when one is wired.
// Publishing happens on its own goroutine so a slow Redis never blocks
// the caller.
func (a *App) publishEvent(ctx context.Context, deps *Dependencies, channel string, v any) {
	if deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := deps.Bus.Publish(pctx, channel, payload); err != nil {
			a.logger.Debug("event publish failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (a *App) withNotifyTimeout(ctx context.Context, fn func(context.Context)) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	fn(nctx)
}
