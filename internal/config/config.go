// Package config defines the top-level configuration for the tap trading
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/tapbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TAPBOT_* environment variables.
type Config struct {
	Wallet      WalletConfig      `toml:"wallet"`
	Hyperliquid HyperliquidConfig `toml:"hyperliquid"`
	Engine      EngineConfig      `toml:"engine"`
	Grid        GridConfig        `toml:"grid"`
	Assets      []AssetConfig     `toml:"assets"`
	Redis       RedisConfig       `toml:"redis"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials used to sign exchange
// actions.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// HyperliquidConfig holds exchange endpoints and chain parameters.
type HyperliquidConfig struct {
	ApiHost string `toml:"api_host"`
	WsHost  string `toml:"ws_host"`
	ChainID int    `toml:"chain_id"`
}

// EngineConfig holds the tap engine's runtime parameters.
type EngineConfig struct {
	DefaultAsset     string   `toml:"default_asset"`
	DefaultBetAmount float64  `toml:"default_bet_amount"`
	// Leverage multiplies the stake into the position size submitted to
	// the exchange.
	Leverage         float64  `toml:"leverage"`
	PollInterval     duration `toml:"poll_interval"`
	ReconnectDelay   duration `toml:"reconnect_delay"`
	HistorySize      int      `toml:"history_size"`
	// BalanceRefresh is how often the external account balance is re-read.
	BalanceRefresh duration `toml:"balance_refresh"`
	// PaperBalance is the simulated account balance used in paper mode.
	PaperBalance float64 `toml:"paper_balance"`
}

// GridConfig holds the odds-grid layout and multiplier curve parameters.
type GridConfig struct {
	RowsPerSide int `toml:"rows_per_side"`
	// TimeWindows are the column expiries in seconds, ascending.
	TimeWindows   []int   `toml:"time_windows"`
	MinMultiplier float64 `toml:"min_multiplier"`
	MaxMultiplier float64 `toml:"max_multiplier"`
	// BaseMultiplier scales the whole payout surface before clamping.
	BaseMultiplier float64 `toml:"base_multiplier"`
	// DistanceWeight controls how quickly payouts grow with normalized
	// price distance; TimeDecay controls how quickly they shrink as the
	// window lengthens. Both must be positive.
	DistanceWeight float64 `toml:"distance_weight"`
	TimeDecay      float64 `toml:"time_decay"`
}

// AssetConfig maps one tradable asset: its feed symbol, the exchange's
// asset index, the grid price increment, and size precision.
type AssetConfig struct {
	Symbol     string  `toml:"symbol"`
	Index      int     `toml:"index"`
	Increment  float64 `toml:"increment"`
	SzDecimals int     `toml:"sz_decimals"`
}

// Spec converts the config entry to the domain representation.
func (a AssetConfig) Spec() domain.AssetSpec {
	return domain.AssetSpec{
		Symbol:     a.Symbol,
		Index:      a.Index,
		Increment:  a.Increment,
		SzDecimals: a.SzDecimals,
	}
}

// RedisConfig holds Redis connection parameters. Redis is optional; when
// Addr is empty the engine runs without the price cache and event bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ServerConfig holds HTTP server parameters. An empty APIKey disables
// request authentication.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "100ms" or "3s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Hyperliquid: HyperliquidConfig{
			ApiHost: "https://api.hyperliquid.xyz",
			WsHost:  "wss://api.hyperliquid.xyz/ws",
			ChainID: 42161,
		},
		Engine: EngineConfig{
			DefaultAsset:     "BTC",
			DefaultBetAmount: 10.0,
			Leverage:         10.0,
			PollInterval:     duration{100 * time.Millisecond},
			ReconnectDelay:   duration{3 * time.Second},
			HistorySize:      100,
			BalanceRefresh:   duration{10 * time.Second},
			PaperBalance:     10000.0,
		},
		Grid: GridConfig{
			RowsPerSide:    15,
			TimeWindows:    []int{5, 10, 15, 20, 25, 30},
			MinMultiplier:  1.01,
			MaxMultiplier:  25.0,
			BaseMultiplier: 1.0,
			DistanceWeight: 900.0,
			TimeDecay:      0.04,
		},
		Assets: []AssetConfig{
			{Symbol: "BTC", Index: 0, Increment: 25.0, SzDecimals: 5},
			{Symbol: "ETH", Index: 1, Increment: 1.0, SzDecimals: 4},
			{Symbol: "SOL", Index: 5, Increment: 0.05, SzDecimals: 2},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"bet_placed", "bet_won", "bet_lost", "feed_down"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade": true,
	"paper": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, paper)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet: a credential source is required for live trading only.
	if strings.ToLower(c.Mode) == "trade" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode trade")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Hyperliquid endpoints
	if c.Hyperliquid.ApiHost == "" {
		errs = append(errs, "hyperliquid: api_host must not be empty")
	}
	if c.Hyperliquid.WsHost == "" {
		errs = append(errs, "hyperliquid: ws_host must not be empty")
	}
	if c.Hyperliquid.ChainID <= 0 {
		errs = append(errs, "hyperliquid: chain_id must be positive")
	}

	// Engine
	if c.Engine.DefaultBetAmount <= 0 {
		errs = append(errs, "engine: default_bet_amount must be > 0")
	}
	if c.Engine.Leverage <= 0 {
		errs = append(errs, "engine: leverage must be > 0")
	}
	if c.Engine.PollInterval.Duration <= 0 {
		errs = append(errs, "engine: poll_interval must be > 0")
	}
	if c.Engine.ReconnectDelay.Duration <= 0 {
		errs = append(errs, "engine: reconnect_delay must be > 0")
	}
	if c.Engine.HistorySize < 2 {
		errs = append(errs, "engine: history_size must be >= 2")
	}

	// Grid
	if c.Grid.RowsPerSide < 1 {
		errs = append(errs, "grid: rows_per_side must be >= 1")
	}
	if len(c.Grid.TimeWindows) == 0 {
		errs = append(errs, "grid: time_windows must not be empty")
	}
	for i := 1; i < len(c.Grid.TimeWindows); i++ {
		if c.Grid.TimeWindows[i] <= c.Grid.TimeWindows[i-1] {
			errs = append(errs, "grid: time_windows must be strictly ascending")
			break
		}
	}
	if c.Grid.MinMultiplier < 1 {
		errs = append(errs, "grid: min_multiplier must be >= 1")
	}
	if c.Grid.MaxMultiplier <= c.Grid.MinMultiplier {
		errs = append(errs, "grid: max_multiplier must exceed min_multiplier")
	}
	if c.Grid.DistanceWeight <= 0 {
		errs = append(errs, "grid: distance_weight must be > 0")
	}
	if c.Grid.TimeDecay <= 0 {
		errs = append(errs, "grid: time_decay must be > 0")
	}

	// Assets
	if len(c.Assets) == 0 {
		errs = append(errs, "assets: at least one asset must be configured")
	}
	seen := make(map[string]bool, len(c.Assets))
	defaultFound := false
	for _, a := range c.Assets {
		if a.Symbol == "" {
			errs = append(errs, "assets: symbol must not be empty")
			continue
		}
		if seen[a.Symbol] {
			errs = append(errs, fmt.Sprintf("assets: duplicate symbol %q", a.Symbol))
		}
		seen[a.Symbol] = true
		if a.Increment <= 0 {
			errs = append(errs, fmt.Sprintf("assets: %s increment must be > 0", a.Symbol))
		}
		if a.Index < 0 {
			errs = append(errs, fmt.Sprintf("assets: %s index must be >= 0", a.Symbol))
		}
		if a.Symbol == c.Engine.DefaultAsset {
			defaultFound = true
		}
	}
	if c.Engine.DefaultAsset != "" && !defaultFound {
		errs = append(errs, fmt.Sprintf("engine: default_asset %q is not in the assets list", c.Engine.DefaultAsset))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// AssetSpec returns the spec for the given symbol, or false when the
// symbol has no tradable mapping.
func (c *Config) AssetSpec(symbol string) (domain.AssetSpec, bool) {
	for _, a := range c.Assets {
		if a.Symbol == symbol {
			return a.Spec(), true
		}
	}
	return domain.AssetSpec{}, false
}
