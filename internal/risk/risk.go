// Package risk encodes the pre-trade gate every order must pass before it
// may reach the exchange, plus the per-account daily-loss state.
package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"pulsetrader-go/internal/signal"
)

// Sentinel rejection reasons. Each check failure wraps one of these so
// callers can distinguish the gate that tripped without parsing strings.
var (
	ErrPositionSize = errors.New("position notional exceeds limit")
	ErrDailyLoss    = errors.New("daily loss limit reached")
	ErrOpenOrders   = errors.New("too many open orders")
	ErrBuyHeadroom  = errors.New("insufficient balance headroom for buy")
)

// Limits are the static guard-rails for one account.
type Limits struct {
	MaxPositionNotional float64
	MaxDailyLoss        float64
	MaxOpenOrders       int
	BuyHeadroom         float64 // fraction of available balance usable for buys
}

const defaultBuyHeadroom = 0.9

// State tracks the running daily loss for one account. The loss only grows
// within a UTC day and resets to zero on the first touch after rollover.
type State struct {
	mu        sync.Mutex
	dailyLoss float64
	dayStart  time.Time
	now       func() time.Time
}

// NewState creates a fresh risk state anchored at the current UTC day.
func NewState() *State {
	s := &State{now: time.Now}
	s.dayStart = utcDay(s.now())
	return s
}

func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// rollLocked resets the loss when the UTC day has advanced. Callers hold mu.
func (s *State) rollLocked() {
	if day := utcDay(s.now()); day.After(s.dayStart) {
		s.dayStart = day
		s.dailyLoss = 0
	}
}

// DailyLoss returns the accumulated loss for the current UTC day.
func (s *State) DailyLoss() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollLocked()
	return s.dailyLoss
}

// RecordPnL folds a realized trade result into the daily loss. Profits do
// not reduce the accumulated loss.
func (s *State) RecordPnL(pnl float64) {
	if pnl >= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollLocked()
	s.dailyLoss -= pnl
}

// Gate combines limits with running state and evaluates the pre-trade
// check sequence.
type Gate struct {
	limits Limits
	state  *State
}

// NewGate builds a gate from static limits and shared daily-loss state.
func NewGate(limits Limits, state *State) *Gate {
	if limits.BuyHeadroom <= 0 || limits.BuyHeadroom > 1 {
		limits.BuyHeadroom = defaultBuyHeadroom
	}
	return &Gate{limits: limits, state: state}
}

// Limits returns the configured guard-rails.
func (g *Gate) Limits() Limits { return g.limits }

// State exposes the daily-loss state shared with the order manager.
func (g *Gate) State() *State { return g.state }

// Check runs the full pre-trade sequence for a prospective order. A nil
// return means the order may be submitted. The daily-loss check is against
// the current loss, not a projection of the order's worst case.
func (g *Gate) Check(side signal.Side, notional float64, openOrders int, availableBalance float64) error {
	if g.limits.MaxPositionNotional > 0 && notional > g.limits.MaxPositionNotional {
		return fmt.Errorf("%w: %.2f > %.2f", ErrPositionSize, notional, g.limits.MaxPositionNotional)
	}
	if g.limits.MaxDailyLoss > 0 {
		if loss := g.state.DailyLoss(); loss >= g.limits.MaxDailyLoss {
			return fmt.Errorf("%w: %.2f >= %.2f", ErrDailyLoss, loss, g.limits.MaxDailyLoss)
		}
	}
	if g.limits.MaxOpenOrders > 0 && openOrders >= g.limits.MaxOpenOrders {
		return fmt.Errorf("%w: %d open", ErrOpenOrders, openOrders)
	}
	if side == signal.Buy && notional > g.limits.BuyHeadroom*availableBalance {
		return fmt.Errorf("%w: %.2f > %.0f%% of %.2f", ErrBuyHeadroom, notional, g.limits.BuyHeadroom*100, availableBalance)
	}
	return nil
}

// IsRejection reports whether err is one of the gate's rejection reasons.
func IsRejection(err error) bool {
	return errors.Is(err, ErrPositionSize) ||
		errors.Is(err, ErrDailyLoss) ||
		errors.Is(err, ErrOpenOrders) ||
		errors.Is(err, ErrBuyHeadroom)
}
