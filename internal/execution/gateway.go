package execution

import (
	"context"

	"pulsetrader-go/internal/signal"
)

// Request is one placement sent to a venue gateway.
type Request struct {
	Symbol string
	Side   signal.Side
	Qty    float64
	Price  float64 // ignored for MARKET orders
	Type   OrderType
}

// Result is the gateway's final word on a placement. Status is one of
// SUBMITTED (accepted, not yet executed), FILLED, PARTIALLY_FILLED,
// REJECTED, or EXPIRED.
type Result struct {
	Status     Status
	FilledQty  float64
	AvgPrice   float64
	Commission float64
	Ref        string // venue-side order reference
}

// Balance is the account snapshot a gateway reports.
type Balance struct {
	Available     float64
	Total         float64
	UnrealizedPnL float64
}

// Gateway abstracts exchange execution. Implementations own their retry and
// backoff policy; callers only distinguish the final outcome. Calls must
// honour the context deadline.
type Gateway interface {
	Submit(ctx context.Context, req Request) (Result, error)
	Balance(ctx context.Context) (Balance, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}
