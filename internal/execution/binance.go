package execution

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"

	"pulsetrader-go/internal/signal"
)

const (
	defaultCallTimeout = 10 * time.Second
	takerFeeRate       = 0.0004 // used to estimate commission; fills do not carry it
)

// BinanceGateway executes orders against Binance USDT-margined futures.
type BinanceGateway struct {
	client  *futures.Client
	log     zerolog.Logger
	timeout time.Duration
}

// NewBinanceGateway wraps a futures client. Pass testnet clients for dry
// environments; the gateway itself does not distinguish them.
func NewBinanceGateway(client *futures.Client, log zerolog.Logger) *BinanceGateway {
	return &BinanceGateway{client: client, log: log, timeout: defaultCallTimeout}
}

func futuresSide(side signal.Side) futures.SideType {
	if side == signal.Buy {
		return futures.SideTypeBuy
	}
	return futures.SideTypeSell
}

func futuresType(t OrderType) futures.OrderType {
	switch t {
	case Limit:
		return futures.OrderTypeLimit
	case Stop:
		return futures.OrderType(futures.AlgoOrderTypeStopMarket)
	case TakeProfit:
		return futures.OrderType(futures.AlgoOrderTypeTakeProfitMarket)
	default:
		return futures.OrderTypeMarket
	}
}

func mapStatus(s futures.OrderStatusType) Status {
	switch s {
	case futures.OrderStatusTypeFilled:
		return StatusFilled
	case futures.OrderStatusTypePartiallyFilled:
		return StatusPartiallyFilled
	case futures.OrderStatusTypeNew:
		return StatusSubmitted
	case futures.OrderStatusTypeExpired:
		return StatusExpired
	default:
		return StatusRejected
	}
}

// Submit places the order and reports the venue's immediate verdict. Any
// transport or API error is a rejection from the caller's point of view.
func (g *BinanceGateway) Submit(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	svc := g.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futuresSide(req.Side)).
		Type(futuresType(req.Type)).
		Quantity(strconv.FormatFloat(req.Qty, 'f', -1, 64))
	switch req.Type {
	case Limit:
		svc = svc.TimeInForce(futures.TimeInForceTypeGTC).
			Price(strconv.FormatFloat(req.Price, 'f', -1, 64))
	case Stop, TakeProfit:
		svc = svc.StopPrice(strconv.FormatFloat(req.Price, 'f', -1, 64))
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("binance submit %s %s: %w", req.Side, req.Symbol, err)
	}

	filled := parseFloat(resp.ExecutedQuantity)
	avg := parseFloat(resp.AvgPrice)
	cumQuote := parseFloat(resp.CumQuote)
	res := Result{
		Status:     mapStatus(resp.Status),
		FilledQty:  filled,
		AvgPrice:   avg,
		Commission: cumQuote * takerFeeRate,
		Ref:        strconv.FormatInt(resp.OrderID, 10),
	}
	g.log.Debug().
		Str("sym", req.Symbol).
		Str("side", string(req.Side)).
		Str("status", string(res.Status)).
		Float64("filled", filled).
		Msg("binance order response")
	return res, nil
}

// Balance reads the futures account snapshot.
func (g *BinanceGateway) Balance(ctx context.Context) (Balance, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	acct, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return Balance{}, fmt.Errorf("binance account: %w", err)
	}
	return Balance{
		Available:     parseFloat(acct.AvailableBalance),
		Total:         parseFloat(acct.TotalWalletBalance),
		UnrealizedPnL: parseFloat(acct.TotalUnrealizedProfit),
	}, nil
}

// SetLeverage applies the leverage setting for one symbol.
func (g *BinanceGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if _, err := g.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx); err != nil {
		return fmt.Errorf("binance set leverage %s x%d: %w", symbol, leverage, err)
	}
	return nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
