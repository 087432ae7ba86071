package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TAPBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TAPBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "TAPBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "TAPBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "TAPBOT_WALLET_KEY_PASSWORD")

	// ── Hyperliquid ──
	setStr(&cfg.Hyperliquid.ApiHost, "TAPBOT_HYPERLIQUID_API_HOST")
	setStr(&cfg.Hyperliquid.WsHost, "TAPBOT_HYPERLIQUID_WS_HOST")
	setInt(&cfg.Hyperliquid.ChainID, "TAPBOT_HYPERLIQUID_CHAIN_ID")

	// ── Engine ──
	setStr(&cfg.Engine.DefaultAsset, "TAPBOT_ENGINE_DEFAULT_ASSET")
	setFloat64(&cfg.Engine.DefaultBetAmount, "TAPBOT_ENGINE_DEFAULT_BET_AMOUNT")
	setFloat64(&cfg.Engine.Leverage, "TAPBOT_ENGINE_LEVERAGE")
	setDuration(&cfg.Engine.PollInterval, "TAPBOT_ENGINE_POLL_INTERVAL")
	setDuration(&cfg.Engine.ReconnectDelay, "TAPBOT_ENGINE_RECONNECT_DELAY")
	setInt(&cfg.Engine.HistorySize, "TAPBOT_ENGINE_HISTORY_SIZE")
	setDuration(&cfg.Engine.BalanceRefresh, "TAPBOT_ENGINE_BALANCE_REFRESH")
	setFloat64(&cfg.Engine.PaperBalance, "TAPBOT_ENGINE_PAPER_BALANCE")

	// ── Grid ──
	setInt(&cfg.Grid.RowsPerSide, "TAPBOT_GRID_ROWS_PER_SIDE")
	setFloat64(&cfg.Grid.MinMultiplier, "TAPBOT_GRID_MIN_MULTIPLIER")
	setFloat64(&cfg.Grid.MaxMultiplier, "TAPBOT_GRID_MAX_MULTIPLIER")
	setFloat64(&cfg.Grid.BaseMultiplier, "TAPBOT_GRID_BASE_MULTIPLIER")
	setFloat64(&cfg.Grid.DistanceWeight, "TAPBOT_GRID_DISTANCE_WEIGHT")
	setFloat64(&cfg.Grid.TimeDecay, "TAPBOT_GRID_TIME_DECAY")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TAPBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TAPBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TAPBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TAPBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TAPBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TAPBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TAPBOT_REDIS_TLS_ENABLED")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TAPBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TAPBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TAPBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TAPBOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TAPBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TAPBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TAPBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TAPBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TAPBOT_MODE")
	setStr(&cfg.LogLevel, "TAPBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
