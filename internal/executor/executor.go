package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// HopRunner executes a single hop.
type HopRunner interface {
	RunHop(ctx context.Context, rc *domain.RequestContext, hop domain.Hop) (domain.HopResult, error)
}

// Executor runs a hop plan strictly in order, feeding each hop's realized
// output into the next. It never rolls back completed hops.
type Executor struct {
	runner HopRunner
	dedup  *Dedup
	logger *slog.Logger

	cleanupInterval time.Duration
}

// New creates an Executor. Request ids seen within dedupTTL are rejected.
func New(runner HopRunner, dedupTTL time.Duration, logger *slog.Logger) *Executor {
	if dedupTTL <= 0 {
		dedupTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		runner:          runner,
		dedup:           NewDedup(dedupTTL),
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 30 * time.Second,
	}
}

// Execute runs plan starting from amounts.Sell. On failure the result lists
// the hops that ran and FailedHop names the one that failed. A DecodeError on
// the final hop returns a Degraded result alongside the error.
func (e *Executor) Execute(ctx context.Context, rc *domain.RequestContext, plan domain.HopPlan, amounts domain.ResolvedAmounts) (domain.ExecutionResult, error) {
	res := domain.ExecutionResult{Plan: plan, FailedHop: -1}
	if plan.Len() == 0 {
		return res, domain.NewError(domain.KindValidation, "executor", "empty plan")
	}
	if amounts.Sell == nil || amounts.Sell.Sign() <= 0 {
		return res, domain.NewError(domain.KindValidation, "executor", "nothing to sell")
	}
	if plan.RequestID != "" && e.dedup.IsDuplicate(plan.RequestID) {
		return res, domain.NewError(domain.KindValidation, "executor",
			fmt.Sprintf("request %s is already being executed", plan.RequestID))
	}

	log := rc.Logger("executor").With(
		slog.String("route", plan.Kind.String()),
		slog.Int("hops", plan.Len()),
	)
	log.InfoContext(ctx, "executing plan", slog.String("sell_amount", amounts.Sell.String()))

	plan.Hops = append([]domain.Hop(nil), plan.Hops...)
	sell := new(big.Int).Set(amounts.Sell)
	last := plan.Len() - 1
	for i, hop := range plan.Hops {
		hop.SellAmount = new(big.Int).Set(sell)
		plan.Hops[i].SellAmount = hop.SellAmount

		hr, err := e.runner.RunHop(ctx, rc, hop)
		res.Hops = append(res.Hops, hr)
		res.Plan = plan
		if err != nil {
			if i == last && domain.IsKind(err, domain.KindDecodeError) {
				res.Degraded = true
				log.WarnContext(ctx, "final hop output could not be decoded",
					slog.String("tx_hash", hr.Attempt.TxHash),
				)
				return res, err
			}
			res.FailedHop = i
			log.WarnContext(ctx, "plan aborted",
				slog.Int("failed_hop", i),
				slog.String("error", err.Error()),
			)
			return res, fmt.Errorf("executor: hop %d: %w", i, err)
		}
		sell = hr.RealizedBuy
	}

	res.FinalBuy = sell
	log.InfoContext(ctx, "plan complete", slog.String("final_buy", sell.String()))
	return res, nil
}

// RunJanitor expires dedup entries until ctx is cancelled.
func (e *Executor) RunJanitor(ctx context.Context) error {
	ticker := time.NewTicker(e.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.dedup.Cleanup()
		}
	}
}
