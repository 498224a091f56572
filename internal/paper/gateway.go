package paper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pulsetrader-go/internal/execution"
	"pulsetrader-go/internal/signal"
)

// GatewayConfig tunes the simulated fill model.
type GatewayConfig struct {
	SlippageBps   float64 // applied against the taker on market fills
	CommissionBps float64 // charged on filled notional
}

// Gateway is an execution.Gateway backed by a virtual account. Market
// orders fill immediately at the last observed price adjusted for
// slippage; limit and stop orders fill at their own price, which keeps
// the simulation honest enough for strategy work without a matching
// engine.
type Gateway struct {
	account  *Account
	recorder FillRecorder
	cfg      GatewayConfig
	logger   zerolog.Logger

	mu     sync.Mutex
	prices map[string]float64
}

// NewGateway wires a simulated gateway around the supplied account. The
// recorder may be nil.
func NewGateway(account *Account, recorder FillRecorder, cfg GatewayConfig, logger zerolog.Logger) *Gateway {
	return &Gateway{
		account:  account,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger.With().Str("component", "paper-gateway").Logger(),
		prices:   make(map[string]float64),
	}
}

// UpdatePrice records the latest trade price for a symbol. The runner
// feeds this from the market-data stream.
func (g *Gateway) UpdatePrice(symbol string, price float64) {
	if price <= 0 {
		return
	}
	g.mu.Lock()
	g.prices[symbol] = price
	g.mu.Unlock()
}

// Submit fills the request against the virtual account. The returned
// Result is always terminal: FILLED on success, or an error for requests
// the account cannot absorb.
func (g *Gateway) Submit(ctx context.Context, req execution.Request) (execution.Result, error) {
	if err := ctx.Err(); err != nil {
		return execution.Result{}, err
	}

	price := g.fillPrice(req)
	if price <= 0 {
		return execution.Result{}, errors.New("no price observed for " + req.Symbol)
	}

	realized, err := g.account.MarketFill(req.Symbol, req.Side, req.Qty, price)
	if err != nil {
		return execution.Result{Status: execution.StatusRejected}, err
	}

	commission := req.Qty * price * g.cfg.CommissionBps / 10000
	g.account.Deduct(commission)

	ref := uuid.NewString()
	if g.recorder != nil {
		g.recorder.Record(execution.Fill{
			OrderID:    ref,
			Symbol:     req.Symbol,
			Side:       req.Side,
			Qty:        req.Qty,
			Price:      price,
			Commission: commission,
			Ts:         time.Now().UTC(),
		})
	}

	g.logger.Debug().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Float64("qty", req.Qty).
		Float64("price", price).
		Float64("realized", realized).
		Msg("paper fill")

	return execution.Result{
		Status:     execution.StatusFilled,
		FilledQty:  req.Qty,
		AvgPrice:   price,
		Commission: commission,
		Ref:        ref,
	}, nil
}

// Balance reports the virtual account marked at the last seen prices.
func (g *Gateway) Balance(ctx context.Context) (execution.Balance, error) {
	if err := ctx.Err(); err != nil {
		return execution.Balance{}, err
	}

	g.mu.Lock()
	prices := make(map[string]float64, len(g.prices))
	for sym, px := range g.prices {
		prices[sym] = px
	}
	g.mu.Unlock()

	snap := g.account.Snapshot(prices)
	unrealized := 0.0
	for _, pos := range snap.Positions {
		unrealized += pos.Unrealized
	}
	return execution.Balance{
		Available:     snap.Cash,
		Total:         snap.Equity,
		UnrealizedPnL: unrealized,
	}, nil
}

// SetLeverage is a no-op: the paper account is unlevered.
func (g *Gateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return ctx.Err()
}

func (g *Gateway) fillPrice(req execution.Request) float64 {
	if req.Type != execution.Market && req.Price > 0 {
		return req.Price
	}

	g.mu.Lock()
	price := g.prices[req.Symbol]
	g.mu.Unlock()
	if price <= 0 {
		price = req.Price
	}
	if price <= 0 {
		return 0
	}

	slip := price * g.cfg.SlippageBps / 10000
	if req.Side == signal.Buy {
		return price + slip
	}
	return price - slip
}
