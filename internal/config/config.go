// Package config defines the top-level configuration for swapbot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SWAPBOT_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Chain      ChainConfig      `toml:"chain"`
	Assets     AssetsConfig     `toml:"assets"`
	Quote      QuoteConfig      `toml:"quote"`
	MarketData APIConfig        `toml:"market_data"`
	Portfolio  APIConfig        `toml:"portfolio"`
	Intent     APIConfig        `toml:"intent"`
	Subgraph   SubgraphConfig   `toml:"subgraph"`
	Execution  ExecutionConfig  `toml:"execution"`
	LimitOrder LimitOrderConfig `toml:"limit_order"`
	Advisor    AdvisorConfig    `toml:"advisor"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds the trading key. Exactly one source is used; the raw
// key wins over the encrypted file.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds RPC and transaction parameters.
type ChainConfig struct {
	RPCURL        string   `toml:"rpc_url"`
	ChainID       int64    `toml:"chain_id"`
	ExplorerTxURL string   `toml:"explorer_tx_url"`
	PollInterval  duration `toml:"poll_interval"`
	Confirmations int      `toml:"confirmations"`
	GasMultiplier float64  `toml:"gas_multiplier"`
	// Fee caps in gwei; zero defers to the node.
	MaxPriorityFeeGwei float64 `toml:"max_priority_fee_gwei"`
	MaxFeeGwei         float64 `toml:"max_fee_gwei"`
	// CurveAddress is the bonding-curve contract creator assets trade on.
	CurveAddress string `toml:"curve_address"`
	Referrer     string `toml:"referrer"`
}

// AssetEntry describes a well-known asset.
type AssetEntry struct {
	Address  string `toml:"address"`
	Symbol   string `toml:"symbol"`
	Decimals int32  `toml:"decimals"`
	Kind     string `toml:"kind"`
}

// AssetsConfig names the bridge and wrapped-native assets and any other
// assets that should resolve by symbol.
type AssetsConfig struct {
	Bridge        AssetEntry   `toml:"bridge"`
	WrappedNative AssetEntry   `toml:"wrapped_native"`
	Known         []AssetEntry `toml:"known"`
}

// QuoteConfig holds the aggregator quote API parameters.
type QuoteConfig struct {
	BaseURL     string   `toml:"base_url"`
	APIKey      string   `toml:"api_key"`
	SlippageBps int      `toml:"slippage_bps"`
	Timeout     duration `toml:"timeout"`
}

// APIConfig holds a generic HTTP collaborator endpoint.
type APIConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
}

// SubgraphConfig holds the creator-asset GraphQL endpoint.
type SubgraphConfig struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// ExecutionConfig tunes the request pipeline.
type ExecutionConfig struct {
	RequestTimeout  duration `toml:"request_timeout"`
	ConfirmTimeout  duration `toml:"confirm_timeout"`
	SignAttempts    int      `toml:"sign_attempts"`
	ConfirmAttempts int      `toml:"confirm_attempts"`
	RetryDelay      duration `toml:"retry_delay"`
	MaxRetryDelay   duration `toml:"max_retry_delay"`
	LockTTL         duration `toml:"lock_ttl"`
	DedupTTL        duration `toml:"dedup_ttl"`
	PriceTTL        duration `toml:"price_ttl"`
	// Per-caller swap limit; zero disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// LimitOrderConfig toggles limit order intake.
type LimitOrderConfig struct {
	Enabled bool `toml:"enabled"`
}

// AdvisorConfig tunes shortfall advice.
type AdvisorConfig struct {
	MinUSD float64 `toml:"min_usd"`
	TopN   int     `toml:"top_n"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// Per-IP request limit; zero disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials. Events lists the
// progress stages forwarded to chat; empty means summaries only.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID:       8453,
			ExplorerTxURL: "https://basescan.org/tx/",
			PollInterval:  duration{2 * time.Second},
			Confirmations: 1,
			GasMultiplier: 1.2,
		},
		Assets: AssetsConfig{
			WrappedNative: AssetEntry{
				Address:  "0x4200000000000000000000000000000000000006",
				Symbol:   "WETH",
				Decimals: 18,
				Kind:     "token",
			},
		},
		Quote: QuoteConfig{
			BaseURL:     "https://api.0x.org",
			SlippageBps: 100,
			Timeout:     duration{15 * time.Second},
		},
		MarketData: APIConfig{Timeout: duration{10 * time.Second}},
		Portfolio:  APIConfig{Timeout: duration{10 * time.Second}},
		Intent:     APIConfig{Timeout: duration{30 * time.Second}},
		Execution: ExecutionConfig{
			RequestTimeout:  duration{3 * time.Minute},
			ConfirmTimeout:  duration{60 * time.Second},
			SignAttempts:    4,
			ConfirmAttempts: 4,
			RetryDelay:      duration{time.Second},
			MaxRetryDelay:   duration{30 * time.Second},
			LockTTL:         duration{30 * time.Second},
			DedupTTL:        duration{10 * time.Minute},
			PriceTTL:        duration{30 * time.Second},
			RateLimit:       10,
			RateWindow:      duration{time.Minute},
		},
		LimitOrder: LimitOrderConfig{Enabled: true},
		Advisor: AdvisorConfig{
			MinUSD: 1.0,
			TopN:   3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "swapbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10_000,
		},
		S3: S3Config{
			Enabled:        true,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "swapbot",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"summary"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"oneshot": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validKinds = map[string]bool{
	"":        true,
	"token":   true,
	"native":  true,
	"creator": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, oneshot)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.Confirmations < 1 {
		errs = append(errs, "chain: confirmations must be >= 1")
	}
	if c.Chain.CurveAddress != "" && !common.IsHexAddress(c.Chain.CurveAddress) {
		errs = append(errs, fmt.Sprintf("chain: curve_address %q is not an address", c.Chain.CurveAddress))
	}
	if c.Chain.Referrer != "" && !common.IsHexAddress(c.Chain.Referrer) {
		errs = append(errs, fmt.Sprintf("chain: referrer %q is not an address", c.Chain.Referrer))
	}

	// Assets
	errs = append(errs, c.Assets.Bridge.problems("assets.bridge", false)...)
	errs = append(errs, c.Assets.WrappedNative.problems("assets.wrapped_native", true)...)
	for i, a := range c.Assets.Known {
		errs = append(errs, a.problems(fmt.Sprintf("assets.known[%d]", i), true)...)
	}

	// Collaborators
	if c.Quote.BaseURL == "" {
		errs = append(errs, "quote: base_url must not be empty")
	}
	if c.Quote.SlippageBps < 0 || c.Quote.SlippageBps > 5000 {
		errs = append(errs, fmt.Sprintf("quote: slippage_bps must be 0-5000, got %d", c.Quote.SlippageBps))
	}
	if c.MarketData.BaseURL == "" {
		errs = append(errs, "market_data: base_url must not be empty")
	}
	if c.Portfolio.BaseURL == "" {
		errs = append(errs, "portfolio: base_url must not be empty")
	}
	if c.Intent.BaseURL == "" && strings.EqualFold(c.Mode, "server") {
		errs = append(errs, "intent: base_url must not be empty in server mode")
	}
	if c.Chain.CurveAddress != "" && c.Subgraph.URL == "" {
		errs = append(errs, "subgraph: url is required when chain.curve_address is set")
	}

	// Execution
	if c.Execution.RequestTimeout.Duration <= 0 {
		errs = append(errs, "execution: request_timeout must be > 0")
	}
	if c.Execution.ConfirmTimeout.Duration <= 0 {
		errs = append(errs, "execution: confirm_timeout must be > 0")
	}
	if c.Execution.SignAttempts < 1 || c.Execution.ConfirmAttempts < 1 {
		errs = append(errs, "execution: sign_attempts and confirm_attempts must be >= 1")
	}
	if c.Execution.RateLimit < 0 {
		errs = append(errs, "execution: rate_limit must be >= 0")
	}
	if c.Execution.RateLimit > 0 && c.Execution.RateWindow.Duration <= 0 {
		errs = append(errs, "execution: rate_window must be > 0 when rate_limit is set")
	}

	// Advisor
	if c.Advisor.MinUSD < 0 {
		errs = append(errs, "advisor: min_usd must be >= 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Server
	if strings.EqualFold(c.Mode, "server") {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (a AssetEntry) problems(field string, required bool) []string {
	if a.Address == "" {
		if required {
			return []string{field + ": address must not be empty"}
		}
		return nil
	}
	var errs []string
	if !common.IsHexAddress(a.Address) {
		errs = append(errs, fmt.Sprintf("%s: address %q is not an address", field, a.Address))
	}
	if a.Decimals < 0 || a.Decimals > 36 {
		errs = append(errs, fmt.Sprintf("%s: decimals must be 0-36, got %d", field, a.Decimals))
	}
	if !validKinds[strings.ToLower(a.Kind)] {
		errs = append(errs, fmt.Sprintf("%s: unknown kind %q", field, a.Kind))
	}
	return errs
}
