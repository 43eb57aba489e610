package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/server/handler"
	"github.com/alanyoungcy/swapbot/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSwaps struct {
	swapErr   error
	lastReq   domain.TradeRequest
	lastCall  string
	orders    map[string]domain.LimitOrder
	receipts  map[string][]byte
	intentRes service.IntentResponse
}

func newFakeSwaps() *fakeSwaps {
	return &fakeSwaps{orders: map[string]domain.LimitOrder{}, receipts: map[string][]byte{}}
}

func (f *fakeSwaps) HandleIntent(_ context.Context, caller, _ string) (service.IntentResponse, error) {
	f.lastCall = caller
	return f.intentRes, nil
}

func (f *fakeSwaps) Swap(_ context.Context, caller string, req domain.TradeRequest) (domain.SwapOutcome, error) {
	f.lastCall = caller
	f.lastReq = req
	out := domain.SwapOutcome{TraceID: req.ID, Caller: caller, Summary: "done"}
	if f.swapErr != nil {
		out.Error = f.swapErr.Error()
		out.ErrorKind = domain.KindOf(f.swapErr)
	}
	return out, f.swapErr
}

func (f *fakeSwaps) Attempts(context.Context, string) ([]domain.TransactionAttempt, error) {
	return nil, nil
}

func (f *fakeSwaps) Receipt(_ context.Context, id string) ([]byte, error) {
	raw, ok := f.receipts[id]
	if !ok {
		return nil, fmt.Errorf("s3: get: %w", domain.ErrNotFound)
	}
	return raw, nil
}

func (f *fakeSwaps) PlaceLimitOrder(_ context.Context, caller string, req domain.LimitOrderRequest) (domain.LimitOrder, error) {
	o := domain.LimitOrder{ID: "lo-1", Caller: caller, Status: domain.LimitOrderOpen}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeSwaps) GetLimitOrder(_ context.Context, caller, id string) (domain.LimitOrder, error) {
	o, ok := f.orders[id]
	if !ok || o.Caller != caller {
		return domain.LimitOrder{}, domain.ErrNotFound
	}
	return o, nil
}

func (f *fakeSwaps) ListLimitOrders(_ context.Context, caller string, _ domain.ListOpts) ([]domain.LimitOrder, error) {
	var out []domain.LimitOrder
	for _, o := range f.orders {
		if o.Caller == caller {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeSwaps) CancelLimitOrder(ctx context.Context, caller, id string) (domain.LimitOrder, error) {
	o, err := f.GetLimitOrder(ctx, caller, id)
	if err != nil {
		return o, err
	}
	o.Status = domain.LimitOrderCancelled
	f.orders[id] = o
	return o, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }
func (denyLimiter) Wait(context.Context, string) error                            { return nil }

func newTestHandler(cfg Config, swaps *fakeSwaps, checks map[string]handler.Check, limiter domain.RateLimiter) http.Handler {
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	return NewHandler(cfg, Handlers{
		Health:      handler.NewHealthHandler(checks, logger),
		Status:      handler.NewStatusHandler("server", "0xabc", 8453),
		Swaps:       handler.NewSwapHandler(swaps, logger),
		LimitOrders: handler.NewLimitOrderHandler(swaps, logger),
	}, nil, limiter, logger)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const swapBody = `{"sell":{"symbol":"WETH"},"buy":{"symbol":"USDC"},"mode":"sell_qty","value":"1"}`

func TestHealth(t *testing.T) {
	h := newTestHandler(Config{}, newFakeSwaps(), map[string]handler.Check{
		"postgres": func(context.Context) error { return nil },
	}, nil)
	rec := do(t, h, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	h = newTestHandler(Config{}, newFakeSwaps(), map[string]handler.Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}, nil)
	rec = do(t, h, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestSwapSuccessUsesRequestID(t *testing.T) {
	swaps := newFakeSwaps()
	h := newTestHandler(Config{}, swaps, nil, nil)

	rec := do(t, h, http.MethodPost, "/api/swaps", swapBody, map[string]string{
		"X-Caller":     "alice",
		"X-Request-ID": "req-42",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "alice", swaps.lastCall)
	assert.Equal(t, "req-42", swaps.lastReq.ID)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), `"trace_id":"req-42"`)
}

func TestSwapErrorStatuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.NewError(domain.KindValidation, "x", "bad"), http.StatusBadRequest},
		{domain.NewError(domain.KindNoLiquidity, "x", "none"), http.StatusUnprocessableEntity},
		{domain.NewError(domain.KindInsufficientFunds, "x", "short"), http.StatusConflict},
		{domain.NewError(domain.KindConfirmationTimeout, "x", "slow"), http.StatusAccepted},
		{domain.NewError(domain.KindUpstreamError, "x", "down"), http.StatusBadGateway},
		{fmt.Errorf("svc: %w", domain.ErrRateLimited), http.StatusTooManyRequests},
		{domain.NewError(domain.KindTransactionReverted, "x", "reverted"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.want), func(t *testing.T) {
			swaps := newFakeSwaps()
			swaps.swapErr = tc.err
			h := newTestHandler(Config{}, swaps, nil, nil)

			rec := do(t, h, http.MethodPost, "/api/swaps", swapBody, map[string]string{"X-Caller": "alice"})
			assert.Equal(t, tc.want, rec.Code)

			var body struct {
				Outcome domain.SwapOutcome `json:"outcome"`
				Kind    string             `json:"kind"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "done", body.Outcome.Summary)
			assert.Equal(t, string(domain.KindOf(tc.err)), body.Kind)
		})
	}
}

func TestSwapRejectsBadBody(t *testing.T) {
	h := newTestHandler(Config{}, newFakeSwaps(), nil, nil)

	rec := do(t, h, http.MethodPost, "/api/swaps", `{"sell":`, map[string]string{"X-Caller": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/swaps", `{"bogus":1}`, map[string]string{"X-Caller": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/swaps", swapBody, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIntentPrompt(t *testing.T) {
	swaps := newFakeSwaps()
	swaps.intentRes = service.IntentResponse{Status: domain.IntentConfirmationRequired, Prompt: "Sell all of your WETH?"}
	h := newTestHandler(Config{}, swaps, nil, nil)

	rec := do(t, h, http.MethodPost, "/api/intents", `{"text":"sell all weth","caller":"bob"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", swaps.lastCall)

	var resp service.IntentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Sell all of your WETH?", resp.Prompt)
}

func TestLimitOrderRoutes(t *testing.T) {
	swaps := newFakeSwaps()
	h := newTestHandler(Config{}, swaps, nil, nil)
	alice := map[string]string{"X-Caller": "alice"}

	body := `{"trade":{"sell":{"symbol":"WETH"},"buy":{"symbol":"USDC"},"mode":"sell_qty","value":"1"},"price":{"kind":"percent_offset","value":"10"}}`
	rec := do(t, h, http.MethodPost, "/api/limit-orders", body, alice)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/limit-orders", "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"lo-1"`)

	rec = do(t, h, http.MethodGet, "/api/limit-orders/lo-1", "", map[string]string{"X-Caller": "mallory"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/limit-orders/lo-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/limit-orders/lo-1", "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cancelled"`)
}

func TestReceipt(t *testing.T) {
	swaps := newFakeSwaps()
	swaps.receipts["t1"] = []byte(`{"trace_id":"t1"}`)
	h := newTestHandler(Config{}, swaps, nil, nil)

	rec := do(t, h, http.MethodGet, "/api/requests/t1/receipt", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"trace_id":"t1"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/requests/missing/receipt", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/requests/t1/attempts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"attempts":[]}`, rec.Body.String())
}

func TestAuthAndRateLimit(t *testing.T) {
	h := newTestHandler(Config{APIKey: "secret"}, newFakeSwaps(), nil, nil)

	rec := do(t, h, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/status", "", map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	h = newTestHandler(Config{RateLimit: 1, RateWindow: 10 * time.Second}, newFakeSwaps(), nil, denyLimiter{})
	rec = do(t, h, http.MethodGet, "/api/status", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))
}
