package limitorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/resolver"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bus channels the trigger watcher listens on.
const (
	ChannelLimitOrders = "limit_orders"
	StreamLimitOrders  = "stream:limit_orders"
)

// Service places and manages limit orders. It never polls prices or
// executes orders; the trigger watcher does.
type Service struct {
	store  domain.LimitOrderStore
	bus    domain.SignalBus  // optional
	audit  domain.AuditStore // optional
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service. bus and audit may be nil.
func NewService(store domain.LimitOrderStore, bus domain.SignalBus, audit domain.AuditStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		bus:    bus,
		audit:  audit,
		logger: logger.With(slog.String("component", "limit_orders")),
		now:    time.Now,
	}
}

// Place resolves quantities, computes the trigger and persists the order.
func (s *Service) Place(ctx context.Context, rc *domain.RequestContext, req domain.LimitOrderRequest, prices resolver.Prices) (domain.LimitOrder, error) {
	if req.Trade.Sell.Equal(req.Trade.Buy) {
		return domain.LimitOrder{}, domain.NewError(domain.KindValidation, "limitorder: place", "sell and buy assets are the same")
	}
	amounts, err := resolver.Resolve(ctx, req.Trade, prices)
	if err != nil {
		return domain.LimitOrder{}, err
	}

	side := req.Price.Side
	if side == "" {
		side = req.Trade.Side
	}
	if side == "" {
		side = domain.TradeSideSell
	}
	triggerAsset := req.Trade.Sell
	if side == domain.TradeSideBuy {
		triggerAsset = req.Trade.Buy
	}

	current := decimal.Zero
	if req.Price.Kind != domain.PriceSpecAbsolute {
		current, err = prices.PriceUSD(ctx, triggerAsset)
		if err != nil {
			return domain.LimitOrder{}, err
		}
	}
	trigger, err := ComputeTrigger(current, req.Price)
	if err != nil {
		return domain.LimitOrder{}, err
	}

	now := s.now().UTC()
	expires, err := ExpiresAt(now, req.Expiry)
	if err != nil {
		return domain.LimitOrder{}, err
	}

	buyAmount, err := s.buyAtTrigger(ctx, req.Trade, amounts, side, trigger, prices)
	if err != nil {
		return domain.LimitOrder{}, err
	}

	order := domain.LimitOrder{
		ID:                uuid.NewString(),
		RequestID:         req.Trade.ID,
		Caller:            rc.Caller(),
		Wallet:            rc.Wallet(),
		Sell:              req.Trade.Sell,
		Buy:               req.Trade.Buy,
		SellAmount:        amounts.Sell,
		BuyAmount:         buyAmount,
		TriggerAsset:      triggerAsset.Address,
		TriggerSide:       side,
		TriggerPriceUSD:   trigger,
		ExpiresAt:         expires,
		PartiallyFillable: req.PartiallyFillable,
		Status:            domain.LimitOrderOpen,
		CreatedAt:         now,
	}
	if err := s.store.Create(ctx, order); err != nil {
		return domain.LimitOrder{}, fmt.Errorf("limitorder: create: %w", err)
	}

	rc.Logger("limit_orders").InfoContext(ctx, "limit order placed",
		slog.String("order_id", order.ID),
		slog.String("trigger_asset", triggerAsset.String()),
		slog.String("trigger_usd", trigger.String()),
		slog.Time("expires_at", expires),
	)
	s.publish(ctx, "limit_order_created", order)
	return order, nil
}

// buyAtTrigger derives the buy amount as if the trigger asset traded at the
// trigger price while the other leg stays at its current price.
func (s *Service) buyAtTrigger(
	ctx context.Context,
	trade domain.TradeRequest,
	amounts domain.ResolvedAmounts,
	side domain.TradeSide,
	trigger decimal.Decimal,
	prices resolver.Prices,
) (*big.Int, error) {
	other := trade.Buy
	if side == domain.TradeSideBuy {
		other = trade.Sell
	}
	otherPrice, err := prices.PriceUSD(ctx, other)
	if err != nil || !otherPrice.IsPositive() {
		if amounts.Buy != nil && amounts.Buy.Sign() > 0 {
			s.logger.WarnContext(ctx, "no price for counter asset, keeping market estimate",
				slog.String("asset", other.String()),
			)
			return amounts.Buy, nil
		}
		if err == nil {
			err = domain.NewError(domain.KindUpstreamError, "limitorder: place",
				fmt.Sprintf("no usd price for %s", other))
		}
		return nil, err
	}

	sellHuman := domain.FromBaseUnits(amounts.Sell, trade.Sell.Decimals)
	var buyHuman decimal.Decimal
	if side == domain.TradeSideBuy {
		buyHuman = sellHuman.Mul(otherPrice).DivRound(trigger, 36)
	} else {
		buyHuman = sellHuman.Mul(trigger).DivRound(otherPrice, 36)
	}
	return domain.ToBaseUnits(buyHuman, trade.Buy.Decimals), nil
}

// Get returns caller's order id.
func (s *Service) Get(ctx context.Context, caller, id string) (domain.LimitOrder, error) {
	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.LimitOrder{}, fmt.Errorf("limitorder: get %s: %w", id, err)
	}
	if caller != "" && !strings.EqualFold(order.Caller, caller) {
		return domain.LimitOrder{}, fmt.Errorf("limitorder: get %s: %w", id, domain.ErrNotFound)
	}
	return order, nil
}

// List returns caller's orders, newest first.
func (s *Service) List(ctx context.Context, caller string, opts domain.ListOpts) ([]domain.LimitOrder, error) {
	orders, err := s.store.ListByCaller(ctx, caller, opts)
	if err != nil {
		return nil, fmt.Errorf("limitorder: list: %w", err)
	}
	return orders, nil
}

// Cancel marks an open order cancelled at the caller's request.
func (s *Service) Cancel(ctx context.Context, caller, id string) (domain.LimitOrder, error) {
	order, err := s.Get(ctx, caller, id)
	if err != nil {
		return domain.LimitOrder{}, err
	}
	if order.Status != domain.LimitOrderOpen {
		return domain.LimitOrder{}, domain.NewError(domain.KindValidation, "limitorder: cancel",
			fmt.Sprintf("order %s is %s", id, order.Status))
	}
	if err := s.store.UpdateStatus(ctx, id, domain.LimitOrderCancelled); err != nil {
		return domain.LimitOrder{}, fmt.Errorf("limitorder: cancel %s: %w", id, err)
	}
	order.Status = domain.LimitOrderCancelled
	s.publish(ctx, "limit_order_cancelled", order)
	return order, nil
}

func (s *Service) publish(ctx context.Context, event string, order domain.LimitOrder) {
	payload, err := json.Marshal(map[string]any{"event": event, "order": order})
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal order event", slog.String("error", err.Error()))
		return
	}
	if s.bus != nil {
		if err := s.bus.Publish(ctx, ChannelLimitOrders, payload); err != nil {
			s.logger.WarnContext(ctx, "publish order event failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, StreamLimitOrders, payload); err != nil {
			s.logger.WarnContext(ctx, "append order stream failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.audit != nil {
		detail := map[string]any{
			"order_id":    order.ID,
			"caller":      order.Caller,
			"sell":        order.Sell.Address,
			"buy":         order.Buy.Address,
			"trigger_usd": order.TriggerPriceUSD.String(),
			"status":      string(order.Status),
		}
		if err := s.audit.Log(ctx, event, detail); err != nil {
			s.logger.WarnContext(ctx, "audit order event failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
