// Package paper simulates a derivatives account so the pipeline can run
// end to end without touching a live venue.
package paper

import (
	"errors"
	"math"
	"sync"

	"pulsetrader-go/internal/execution"
	"pulsetrader-go/internal/signal"
)

// FillRecorder captures paper fills for later inspection.
type FillRecorder interface {
	Record(execution.Fill)
}

const epsilon = 1e-9

// positionState holds one symbol's signed exposure: positive is long,
// negative is short.
type positionState struct {
	Qty     float64
	AvgCost float64
}

// Account tracks virtual cash, realized PnL, and signed per-symbol
// positions while trading in paper mode.
type Account struct {
	mu           sync.Mutex
	startingCash float64
	cash         float64
	realizedPnL  float64
	maxPosition  float64 // absolute qty cap per symbol, 0 disables
	positions    map[string]positionState
}

// PositionSnapshot exposes a read-only view of a single symbol position.
type PositionSnapshot struct {
	Qty         float64
	AvgCost     float64
	MarketValue float64
	Unrealized  float64
}

// Snapshot represents a thread-safe view of the account state, marked to
// market using the supplied prices.
type Snapshot struct {
	Cash        float64
	RealizedPnL float64
	Equity      float64
	Positions   map[string]PositionSnapshot
}

// NewAccount constructs an account with starting cash and an optional
// absolute per-symbol position cap.
func NewAccount(startingCash, maxPositionPerSymbol float64) *Account {
	return &Account{
		startingCash: startingCash,
		cash:         startingCash,
		maxPosition:  maxPositionPerSymbol,
		positions:    make(map[string]positionState),
	}
}

// StartingCash returns the initial bankroll used to compute drawdown.
func (a *Account) StartingCash() float64 { return a.startingCash }

// MarketFill executes an order at the provided price, mutating balances.
// Selling with no long opens a short; reducing exposure realizes P&L
// against the average cost. Returns the realized P&L of the fill.
func (a *Account) MarketFill(symbol string, side signal.Side, qty, price float64) (float64, error) {
	if qty <= 0 {
		return 0, errors.New("quantity must be positive")
	}
	if price <= 0 {
		return 0, errors.New("price must be positive")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	delta := qty
	if side == signal.Sell {
		delta = -qty
	}

	state := a.positions[symbol]
	newQty := state.Qty + delta
	if a.maxPosition > 0 && math.Abs(newQty) > a.maxPosition+epsilon {
		return 0, errors.New("position limit exceeded")
	}
	if side == signal.Buy && state.Qty >= 0 && qty*price > a.cash+epsilon {
		return 0, errors.New("insufficient cash for buy")
	}

	var realized float64
	switch {
	case state.Qty == 0 || sameSign(state.Qty, delta):
		// Opening or increasing exposure: blend the average cost.
		total := math.Abs(state.Qty) + qty
		state.AvgCost = (state.AvgCost*math.Abs(state.Qty) + price*qty) / total
		state.Qty = newQty
	case math.Abs(delta) <= math.Abs(state.Qty)+epsilon:
		// Reducing, possibly to flat: realize on the reduced quantity.
		reduced := math.Min(qty, math.Abs(state.Qty))
		realized = (price - state.AvgCost) * reduced * sign(state.Qty)
		state.Qty = newQty
	default:
		// Flipping through zero: realize the whole old position and open
		// the remainder at the fill price.
		realized = (price - state.AvgCost) * math.Abs(state.Qty) * sign(state.Qty)
		state.Qty = newQty
		state.AvgCost = price
	}

	a.realizedPnL += realized
	a.cash -= delta * price
	if math.Abs(state.Qty) <= epsilon {
		delete(a.positions, symbol)
	} else {
		a.positions[symbol] = state
	}
	return realized, nil
}

// Deduct removes commission or fees from cash.
func (a *Account) Deduct(amount float64) {
	if amount <= 0 {
		return
	}
	a.mu.Lock()
	a.cash -= amount
	a.mu.Unlock()
}

// Snapshot returns a copy of balances marked using the supplied prices map.
func (a *Account) Snapshot(prices map[string]float64) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]PositionSnapshot, len(a.positions))
	equity := a.cash
	for sym, pos := range a.positions {
		mark := prices[sym]
		marketValue := pos.Qty * mark
		unrealized := (mark - pos.AvgCost) * pos.Qty
		if mark == 0 {
			marketValue = 0
			unrealized = 0
		}
		positions[sym] = PositionSnapshot{
			Qty:         pos.Qty,
			AvgCost:     pos.AvgCost,
			MarketValue: marketValue,
			Unrealized:  unrealized,
		}
		equity += marketValue
	}

	return Snapshot{
		Cash:        a.cash,
		RealizedPnL: a.realizedPnL,
		Equity:      equity,
		Positions:   positions,
	}
}

// AvailableCash reports free cash that can be deployed into new entries.
func (a *Account) AvailableCash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

// Position returns the signed position size for the supplied symbol.
func (a *Account) Position(symbol string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positions[symbol].Qty
}

// RealizedPnL returns total closed-trade profit and loss.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
