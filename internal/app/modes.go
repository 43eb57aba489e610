package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/server"
	"github.com/alanyoungcy/swapbot/internal/server/handler"
	"github.com/alanyoungcy/swapbot/internal/server/ws"
	"github.com/alanyoungcy/swapbot/internal/service"
)

// ServerMode serves the HTTP + WebSocket API until ctx is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Executor.RunJanitor(ctx)
	})

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(deps.Checks, a.logger),
		Status:      handler.NewStatusHandler(a.cfg.Mode, deps.Signer.Address(), a.cfg.Chain.ChainID),
		Swaps:       handler.NewSwapHandler(deps.Swaps, a.logger),
		LimitOrders: handler.NewLimitOrderHandler(deps.Swaps, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		RateLimit:    a.cfg.Server.RateLimit,
		RateWindow:   a.cfg.Server.RateWindow.Duration,
		WriteTimeout: a.cfg.Execution.RequestTimeout.Duration + 30*time.Second,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// oneshotRequest is the JSON file accepted by oneshot mode: either free
// text or a structured trade.
type oneshotRequest struct {
	Caller string               `json:"caller"`
	Text   string               `json:"text,omitempty"`
	Trade  *domain.TradeRequest `json:"trade,omitempty"`
}

// oneshotRunner is the slice of the swap service oneshot mode drives.
type oneshotRunner interface {
	HandleIntent(ctx context.Context, caller, text string) (service.IntentResponse, error)
	Swap(ctx context.Context, caller string, req domain.TradeRequest) (domain.SwapOutcome, error)
}

// OneshotMode executes the configured request file, prints the result as
// JSON and returns.
func (a *App) OneshotMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting oneshot mode", slog.String("request", a.requestPath))

	req, err := loadRequest(a.requestPath)
	if err != nil {
		return err
	}
	return a.runOneshot(ctx, deps.Swaps, req, deps.Signer.Address())
}

func (a *App) runOneshot(ctx context.Context, swaps oneshotRunner, req oneshotRequest, wallet string) error {
	caller := req.Caller
	if caller == "" {
		caller = wallet
	}

	var (
		result any
		runErr error
	)
	if strings.TrimSpace(req.Text) != "" {
		resp, err := swaps.HandleIntent(ctx, caller, req.Text)
		result, runErr = resp, err
	} else {
		out, err := swaps.Swap(ctx, caller, *req.Trade)
		result, runErr = out, err
	}

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("app: oneshot: write result: %w", err)
	}
	if runErr != nil {
		return fmt.Errorf("app: oneshot: %w", runErr)
	}
	return nil
}

func loadRequest(path string) (oneshotRequest, error) {
	var req oneshotRequest
	if path == "" {
		return req, errors.New("app: oneshot: -request is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("app: oneshot: read request: %w", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("app: oneshot: decode request: %w", err)
	}
	if strings.TrimSpace(req.Text) == "" && req.Trade == nil {
		return req, errors.New("app: oneshot: request needs text or trade")
	}
	return req, nil
}
