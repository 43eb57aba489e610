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
// built-in defaults, applies SWAPBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known SWAPBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "SWAPBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "SWAPBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "SWAPBOT_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "SWAPBOT_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "SWAPBOT_CHAIN_ID")
	setStr(&cfg.Chain.ExplorerTxURL, "SWAPBOT_CHAIN_EXPLORER_TX_URL")
	setDuration(&cfg.Chain.PollInterval, "SWAPBOT_CHAIN_POLL_INTERVAL")
	setInt(&cfg.Chain.Confirmations, "SWAPBOT_CHAIN_CONFIRMATIONS")
	setFloat64(&cfg.Chain.GasMultiplier, "SWAPBOT_CHAIN_GAS_MULTIPLIER")
	setFloat64(&cfg.Chain.MaxPriorityFeeGwei, "SWAPBOT_CHAIN_MAX_PRIORITY_FEE_GWEI")
	setFloat64(&cfg.Chain.MaxFeeGwei, "SWAPBOT_CHAIN_MAX_FEE_GWEI")
	setStr(&cfg.Chain.CurveAddress, "SWAPBOT_CHAIN_CURVE_ADDRESS")
	setStr(&cfg.Chain.Referrer, "SWAPBOT_CHAIN_REFERRER")

	// ── Collaborators ──
	setStr(&cfg.Quote.BaseURL, "SWAPBOT_QUOTE_BASE_URL")
	setStr(&cfg.Quote.APIKey, "SWAPBOT_QUOTE_API_KEY")
	setInt(&cfg.Quote.SlippageBps, "SWAPBOT_QUOTE_SLIPPAGE_BPS")
	setStr(&cfg.MarketData.BaseURL, "SWAPBOT_MARKET_DATA_BASE_URL")
	setStr(&cfg.MarketData.APIKey, "SWAPBOT_MARKET_DATA_API_KEY")
	setStr(&cfg.Portfolio.BaseURL, "SWAPBOT_PORTFOLIO_BASE_URL")
	setStr(&cfg.Portfolio.APIKey, "SWAPBOT_PORTFOLIO_API_KEY")
	setStr(&cfg.Intent.BaseURL, "SWAPBOT_INTENT_BASE_URL")
	setStr(&cfg.Intent.APIKey, "SWAPBOT_INTENT_API_KEY")
	setStr(&cfg.Subgraph.URL, "SWAPBOT_SUBGRAPH_URL")
	setStr(&cfg.Subgraph.APIKey, "SWAPBOT_SUBGRAPH_API_KEY")

	// ── Execution ──
	setDuration(&cfg.Execution.RequestTimeout, "SWAPBOT_EXECUTION_REQUEST_TIMEOUT")
	setDuration(&cfg.Execution.ConfirmTimeout, "SWAPBOT_EXECUTION_CONFIRM_TIMEOUT")
	setInt(&cfg.Execution.SignAttempts, "SWAPBOT_EXECUTION_SIGN_ATTEMPTS")
	setInt(&cfg.Execution.ConfirmAttempts, "SWAPBOT_EXECUTION_CONFIRM_ATTEMPTS")
	setDuration(&cfg.Execution.LockTTL, "SWAPBOT_EXECUTION_LOCK_TTL")
	setInt(&cfg.Execution.RateLimit, "SWAPBOT_EXECUTION_RATE_LIMIT")
	setDuration(&cfg.Execution.RateWindow, "SWAPBOT_EXECUTION_RATE_WINDOW")
	setBool(&cfg.LimitOrder.Enabled, "SWAPBOT_LIMIT_ORDER_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SWAPBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "SWAPBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SWAPBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SWAPBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SWAPBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SWAPBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SWAPBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SWAPBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SWAPBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SWAPBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SWAPBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SWAPBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SWAPBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SWAPBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SWAPBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SWAPBOT_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "SWAPBOT_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SWAPBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SWAPBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SWAPBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "SWAPBOT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "SWAPBOT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "SWAPBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SWAPBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SWAPBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SWAPBOT_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "SWAPBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SWAPBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SWAPBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SWAPBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SWAPBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SWAPBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SWAPBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SWAPBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SWAPBOT_MODE")
	setStr(&cfg.LogLevel, "SWAPBOT_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
