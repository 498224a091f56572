// Package execution handles order lifecycle state and interaction with
// venue gateways.
package execution

import (
	"fmt"
	"time"

	"pulsetrader-go/internal/signal"
)

// OrderType enumerates the supported order kinds.
type OrderType string

const (
	Market     OrderType = "MARKET"
	Limit      OrderType = "LIMIT"
	Stop       OrderType = "STOP"
	TakeProfit OrderType = "TAKE_PROFIT"
)

// Status is one state of the order lifecycle. PENDING and SUBMITTED are the
// only non-terminal states; every other status is absorbing.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusSubmitted       Status = "SUBMITTED"
	StatusFilled          Status = "FILLED"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusRejected        Status = "REJECTED"
	StatusCancelled       Status = "CANCELLED"
	StatusExpired         Status = "EXPIRED"
)

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool {
	switch s {
	case StatusPending, StatusSubmitted:
		return false
	default:
		return true
	}
}

// nextStates maps each non-terminal status to its legal successors.
var nextStates = map[Status][]Status{
	StatusPending:   {StatusSubmitted, StatusRejected, StatusCancelled},
	StatusSubmitted: {StatusFilled, StatusPartiallyFilled, StatusRejected, StatusCancelled, StatusExpired},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range nextStates[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Order is the order manager's record of one placement. It is owned and
// mutated exclusively by the order manager.
type Order struct {
	ID         string
	Symbol     string
	Side       signal.Side
	Qty        float64
	Price      float64
	Type       OrderType
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
	FilledQty  float64
	AvgPrice   float64
	Commission float64
	SignalID   string
	Strategy   string
	Stop       float64 // 0 when no stop-loss is attached
	Target     float64 // 0 when no take-profit is attached
	Err        string
}

// Transition moves the order to a new status, enforcing the state machine.
func (o *Order) Transition(to Status) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("invalid order transition %s -> %s for %s", o.Status, to, o.ID)
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// ApplyFill records executed quantity and price, moving the order to
// FILLED or PARTIALLY_FILLED. The filled quantity never exceeds Qty.
func (o *Order) ApplyFill(qty, avgPrice, commission float64) error {
	if qty <= 0 || qty > o.Qty+1e-12 {
		return fmt.Errorf("invalid fill qty %.8f for order qty %.8f", qty, o.Qty)
	}
	to := StatusPartiallyFilled
	if qty >= o.Qty-1e-12 {
		qty = o.Qty
		to = StatusFilled
	}
	if err := o.Transition(to); err != nil {
		return err
	}
	o.FilledQty = qty
	o.AvgPrice = avgPrice
	o.Commission = commission
	return nil
}

// Fill captures one executed trade for recording and alerting.
type Fill struct {
	OrderID    string      `json:"order_id"`
	Symbol     string      `json:"symbol"`
	Side       signal.Side `json:"side"`
	Qty        float64     `json:"qty"`
	Price      float64     `json:"price"`
	Commission float64     `json:"commission"`
	Ts         time.Time   `json:"ts"`
}
