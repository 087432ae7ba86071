package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/tapbot/internal/cache/redis"
	"github.com/alanyoungcy/tapbot/internal/config"
	"github.com/alanyoungcy/tapbot/internal/crypto"
	"github.com/alanyoungcy/tapbot/internal/domain"
	"github.com/alanyoungcy/tapbot/internal/engine"
	"github.com/alanyoungcy/tapbot/internal/grid"
	"github.com/alanyoungcy/tapbot/internal/ledger"
	"github.com/alanyoungcy/tapbot/internal/monitor"
	"github.com/alanyoungcy/tapbot/internal/notify"
	"github.com/alanyoungcy/tapbot/internal/platform/hyperliquid"
	"github.com/alanyoungcy/tapbot/internal/platform/paper"
)

// Dependencies bundles everything the session mode needs to run. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Gateway domain.OrderGateway
	Balance domain.BalanceSource

	Ledger  *ledger.BetLedger
	Monitor *monitor.BetMonitor
	Engine  *engine.TapEngine

	// Optional Redis mirrors; nil when Redis is disabled.
	PriceCache domain.PriceCache
	Bus        domain.EventBus

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the
// configuration.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Order gateway and balance source ---
	switch strings.ToLower(cfg.Mode) {
	case "trade":
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load key: %w", err)
		}
		signer, err := crypto.NewSigner(key)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		// Chain 42161 is Arbitrum One; anything else is treated as a
		// testnet for signature purposes.
		mainnet := cfg.Hyperliquid.ChainID == 42161
		exchange := hyperliquid.NewExchangeClient(cfg.Hyperliquid.ApiHost, signer, mainnet, logger)
		deps.Gateway = exchange
		deps.Balance = exchange

		logger.Info("trading wallet loaded",
			slog.String("address", signer.Address().Hex()))
	default:
		gw := paper.NewGateway(cfg.Engine.PaperBalance, logger)
		deps.Gateway = gw
		deps.Balance = gw
	}

	// --- Session state ---
	deps.Ledger = ledger.New()
	deps.Monitor = monitor.New(deps.Ledger, cfg.Engine.PollInterval.Duration, logger)

	gen, err := grid.NewGenerator(grid.Params{
		RowsPerSide:    cfg.Grid.RowsPerSide,
		TimeWindows:    cfg.Grid.TimeWindows,
		MinMultiplier:  cfg.Grid.MinMultiplier,
		MaxMultiplier:  cfg.Grid.MaxMultiplier,
		BaseMultiplier: cfg.Grid.BaseMultiplier,
		DistanceWeight: cfg.Grid.DistanceWeight,
		TimeDecay:      cfg.Grid.TimeDecay,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: grid: %w", err)
	}

	specs := make([]domain.AssetSpec, len(cfg.Assets))
	for i, a := range cfg.Assets {
		specs[i] = a.Spec()
	}
	deps.Engine = engine.New(
		cfg.Engine,
		specs,
		cfg.Hyperliquid.WsHost,
		deps.Gateway,
		deps.Balance,
		deps.Ledger,
		deps.Monitor,
		gen,
		logger,
	)
	closers = append(closers, deps.Engine.Close)

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.Bus = redis.NewEventBus(redisClient)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
