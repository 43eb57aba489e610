package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/swapbot/internal/advisor"
	s3blob "github.com/alanyoungcy/swapbot/internal/blob/s3"
	"github.com/alanyoungcy/swapbot/internal/cache/redis"
	"github.com/alanyoungcy/swapbot/internal/chain"
	"github.com/alanyoungcy/swapbot/internal/config"
	"github.com/alanyoungcy/swapbot/internal/crypto"
	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/executor"
	"github.com/alanyoungcy/swapbot/internal/lifecycle"
	"github.com/alanyoungcy/swapbot/internal/limitorder"
	"github.com/alanyoungcy/swapbot/internal/notify"
	"github.com/alanyoungcy/swapbot/internal/oracle"
	"github.com/alanyoungcy/swapbot/internal/platform/goldsky"
	"github.com/alanyoungcy/swapbot/internal/platform/httpx"
	"github.com/alanyoungcy/swapbot/internal/platform/intent"
	"github.com/alanyoungcy/swapbot/internal/platform/marketdata"
	"github.com/alanyoungcy/swapbot/internal/platform/portfolio"
	"github.com/alanyoungcy/swapbot/internal/platform/quote"
	"github.com/alanyoungcy/swapbot/internal/progress"
	"github.com/alanyoungcy/swapbot/internal/router"
	"github.com/alanyoungcy/swapbot/internal/server/handler"
	"github.com/alanyoungcy/swapbot/internal/service"
	"github.com/alanyoungcy/swapbot/internal/store/postgres"
)

// Dependencies bundles every dependency the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Signer *crypto.Signer
	Chain  *chain.Client

	// Stores
	LimitOrderStore domain.LimitOrderStore
	AttemptStore    domain.AttemptStore
	AuditStore      domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	AssetCache  domain.AssetCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage; nil when s3 is disabled.
	Receipts *s3blob.Receipts

	Notifier *notify.Notifier
	Executor *executor.Executor
	Swaps    *service.SwapService

	// Health checks keyed by backend name.
	Checks map[string]handler.Check
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- Wallet ---
	signer, err := crypto.LoadSigner(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	}, cfg.Chain.ChainID)
	if err != nil {
		return fail(fmt.Errorf("wire: signer: %w", err))
	}
	deps.Signer = signer

	// --- Chain ---
	chainClient, err := chain.Dial(ctx, cfg.Chain.RPCURL, chain.Options{
		PollInterval: cfg.Chain.PollInterval.Duration,
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: chain: %w", err))
	}
	closers = append(closers, chainClient.Close)
	deps.Chain = chainClient
	deps.Checks["chain"] = func(ctx context.Context) error {
		_, err := chainClient.Backend().BlockNumber(ctx)
		return err
	}

	submitter := chain.NewSubmitter(chainClient.Backend(), signer, chain.SubmitterOptions{
		GasMultiplier:  cfg.Chain.GasMultiplier,
		MaxPriorityFee: gweiToWei(cfg.Chain.MaxPriorityFeeGwei),
		MaxFee:         gweiToWei(cfg.Chain.MaxFeeGwei),
	}, logger)

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: postgres: %w", err))
	}
	closers = append(closers, pgClient.Close)
	deps.Checks["postgres"] = pgClient.Ping

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fail(fmt.Errorf("wire: postgres migrations: %w", err))
		}
	}

	pool := pgClient.Pool()
	deps.LimitOrderStore = postgres.NewLimitOrderStore(pool)
	deps.AttemptStore = postgres.NewAttemptStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: redis: %w", err))
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Checks["redis"] = redisClient.Ping

	deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Execution.PriceTTL.Duration)
	deps.AssetCache = redis.NewAssetCache(redisClient, 0)
	deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Execution.RateLimit, cfg.Execution.RateWindow.Duration)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)

	// --- S3 receipts ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.Receipts = s3blob.NewReceipts(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client))
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

	sinks := progress.Fanout{
		progress.NewLogSink(logger),
		progress.NewBusSink(deps.SignalBus, logger),
	}
	if deps.Notifier.Enabled() {
		ns := progress.NewNotifierSink(deps.Notifier, cfg.Notify.Events)
		closers = append(closers, ns.Wait)
		sinks = append(sinks, ns)
	}

	// --- Collaborators ---
	httpOpts := func(a config.APIConfig) httpx.Options {
		return httpx.Options{
			Timeout:    a.Timeout.Duration,
			RetryDelay: cfg.Execution.RetryDelay.Duration,
			MaxDelay:   cfg.Execution.MaxRetryDelay.Duration,
		}
	}
	quoteSvc := quote.NewClient(quote.Config{
		BaseURL:     cfg.Quote.BaseURL,
		APIKey:      cfg.Quote.APIKey,
		ChainID:     cfg.Chain.ChainID,
		SlippageBps: cfg.Quote.SlippageBps,
		HTTP: httpx.Options{
			Timeout:    cfg.Quote.Timeout.Duration,
			RetryDelay: cfg.Execution.RetryDelay.Duration,
			MaxDelay:   cfg.Execution.MaxRetryDelay.Duration,
		},
	}, logger)
	market := marketdata.NewClient(cfg.MarketData.BaseURL, cfg.MarketData.APIKey, cfg.Chain.ChainID, httpOpts(cfg.MarketData), logger)
	holdings := portfolio.NewClient(cfg.Portfolio.BaseURL, cfg.Portfolio.APIKey, cfg.Chain.ChainID, httpOpts(cfg.Portfolio), logger)
	extractor := intent.NewClient(cfg.Intent.BaseURL, cfg.Intent.APIKey, httpOpts(cfg.Intent), logger)
	index := goldsky.NewClient(cfg.Subgraph.URL, cfg.Subgraph.APIKey)
	if cfg.Subgraph.URL != "" {
		deps.Checks["subgraph"] = func(ctx context.Context) error {
			_, err := index.FetchLatestBlock(ctx)
			return err
		}
	}

	// --- Assets ---
	bridge := assetFrom(cfg.Assets.Bridge, domain.AssetKindToken)
	wrapped := assetFrom(cfg.Assets.WrappedNative, domain.AssetKindToken)
	known := []domain.Asset{wrapped}
	if bridge.Address != "" {
		known = append(known, bridge)
	}
	for _, a := range cfg.Assets.Known {
		known = append(known, assetFrom(a, domain.AssetKindToken))
	}

	// --- Engine ---
	orc := oracle.New(chainClient, market, index, deps.PriceCache, deps.AssetCache, oracle.Config{
		Bridge:     bridge,
		PriceTTL:   cfg.Execution.PriceTTL.Duration,
		RetryDelay: cfg.Execution.RetryDelay.Duration,
		MaxDelay:   cfg.Execution.MaxRetryDelay.Duration,
	}, logger)

	quoters := map[domain.Venue]lifecycle.Quoter{
		domain.VenueAggregator: lifecycle.NewAggregatorQuoter(quoteSvc),
		domain.VenueWrap:       lifecycle.NewWrapQuoter(wrapped),
	}
	if cfg.Chain.CurveAddress != "" {
		curve := lifecycle.NewCurveQuoter(
			chain.NewBondingCurve(chainClient, cfg.Chain.CurveAddress),
			chainClient,
			int64(cfg.Quote.SlippageBps),
			cfg.Chain.Referrer,
		)
		quoters[domain.VenueCurveBuy] = curve
		quoters[domain.VenueCurveSell] = curve
	}

	adv := advisor.New(holdings, advisor.Config{
		MinUSD: decimal.NewFromFloat(cfg.Advisor.MinUSD),
		TopN:   cfg.Advisor.TopN,
	})
	manager := lifecycle.NewManager(quoters, chainClient, adv, deps.AttemptStore, deps.LockManager, lifecycle.Config{
		Confirmations:   uint64(cfg.Chain.Confirmations),
		ConfirmTimeout:  cfg.Execution.ConfirmTimeout.Duration,
		SignAttempts:    cfg.Execution.SignAttempts,
		ConfirmAttempts: cfg.Execution.ConfirmAttempts,
		RetryDelay:      cfg.Execution.RetryDelay.Duration,
		MaxRetryDelay:   cfg.Execution.MaxRetryDelay.Duration,
		LockTTL:         cfg.Execution.LockTTL.Duration,
		ExplorerTxURL:   cfg.Chain.ExplorerTxURL,
	})
	deps.Executor = executor.New(manager, cfg.Execution.DedupTTL.Duration, logger)

	var orders *limitorder.Service
	if cfg.LimitOrder.Enabled {
		orders = limitorder.NewService(deps.LimitOrderStore, deps.SignalBus, deps.AuditStore, logger)
	}

	swaps := service.NewSwapService(
		service.Config{
			Wallet:         signer.Address(),
			RequestTimeout: cfg.Execution.RequestTimeout.Duration,
			RateLimit:      cfg.Execution.RateLimit,
			RateWindow:     cfg.Execution.RateWindow.Duration,
			Assets:         known,
			ExplorerURL:    manager.ExplorerURL,
		},
		extractor,
		orc,
		func(wallet string) service.Session { return orc.NewSession(wallet) },
		router.New(bridge, wrapped),
		deps.Executor,
		orders,
		signer,
		submitter,
		sinks,
		logger,
	).
		WithRateLimiter(deps.RateLimiter).
		WithAudit(deps.AuditStore).
		WithAttempts(deps.AttemptStore).
		WithBus(deps.SignalBus).
		WithAdvisor(adv)
	if deps.Receipts != nil {
		swaps.WithReceipts(deps.Receipts)
	}
	deps.Swaps = swaps

	return deps, cleanup, nil
}

// assetFrom converts a configured asset, defaulting its kind.
func assetFrom(e config.AssetEntry, kind domain.AssetKind) domain.Asset {
	a := domain.Asset{
		Address:  e.Address,
		Symbol:   e.Symbol,
		Decimals: e.Decimals,
		Kind:     kind,
	}
	if e.Kind != "" {
		a.Kind = domain.AssetKind(strings.ToLower(e.Kind))
	}
	return a
}

var weiPerGwei = decimal.New(1, 9)

// gweiToWei returns nil for zero so the node's suggestion is used.
func gweiToWei(gwei float64) *big.Int {
	if gwei <= 0 {
		return nil
	}
	return decimal.NewFromFloat(gwei).Mul(weiPerGwei).BigInt()
}
