package orders

import (
	"context"

	"github.com/google/uuid"

	"pulsetrader-go/internal/execution"
	"pulsetrader-go/internal/metrics"
	"pulsetrader-go/internal/signal"
)

// onTick is the stop-loss/take-profit monitor. Each tick is compared against
// every watched position for the symbol; a breach marks the position closing
// immediately, so consecutive breaching ticks synthesize exactly one close.
func (m *Manager) onTick(ctx context.Context, topic string, event any) {
	tick, ok := event.(signal.Tick)
	if !ok || tick.Price <= 0 {
		return
	}

	type breach struct {
		pos     *position
		trigger string
	}
	var breached []breach

	m.mu.Lock()
	for _, pos := range m.positions {
		if pos.closing || pos.order.Symbol != tick.Symbol {
			continue
		}
		trigger, hit := breachTrigger(pos.order, tick.Price)
		if !hit {
			continue
		}
		pos.closing = true
		breached = append(breached, breach{pos: pos, trigger: trigger})
	}
	m.mu.Unlock()

	for _, b := range breached {
		m.closePosition(ctx, b.pos, tick.Price, b.trigger)
	}
}

// breachTrigger reports whether the price crosses the position's stop or
// target. BUY positions close when price falls to the stop or rises to the
// target; SELL positions mirror that.
func breachTrigger(o *execution.Order, price float64) (string, bool) {
	long := o.Side == signal.Buy
	if o.Stop > 0 {
		if (long && price <= o.Stop) || (!long && price >= o.Stop) {
			return "stop_loss", true
		}
	}
	if o.Target > 0 {
		if (long && price >= o.Target) || (!long && price <= o.Target) {
			return "take_profit", true
		}
	}
	return "", false
}

// closePosition synthesizes an opposite-side MARKET order for the filled
// quantity and settles it through the same risk-check and gateway path as
// signal-driven entries.
func (m *Manager) closePosition(ctx context.Context, pos *position, price float64, trigger string) {
	entry := pos.order
	qty := entry.FilledQty
	side := entry.Side.Opposite()

	closing := &execution.Order{
		ID:        uuid.NewString(),
		Symbol:    entry.Symbol,
		Side:      side,
		Qty:       qty,
		Price:     price,
		Type:      execution.Market,
		Status:    execution.StatusPending,
		CreatedAt: m.now().UTC(),
		UpdatedAt: m.now().UTC(),
		SignalID:  entry.SignalID,
		Strategy:  entry.Strategy,
	}

	// Same check-and-reserve section as signal entries: the slot is taken
	// under the lock so a concurrent entry cannot slip past the gate.
	m.mu.Lock()
	err := m.gate.Check(side, qty*price, len(m.open), m.balance.Available)
	if err == nil {
		m.open[closing.ID] = closing
	}
	m.mu.Unlock()

	if err != nil {
		closing.Err = err.Error()
		_ = closing.Transition(execution.StatusRejected)
		m.finalize(closing)
		m.reopenPosition(pos)
		m.log.Warn().
			Err(err).
			Str("sym", entry.Symbol).
			Str("entry", entry.ID).
			Msg("risk gate blocked closing order")
		return
	}

	m.submit(ctx, closing)

	m.mu.Lock()
	defer m.mu.Unlock()
	if closing.Status != execution.StatusFilled && closing.Status != execution.StatusPartiallyFilled {
		// Close failed terminally; let a later breach try again.
		pos.closing = false
		m.log.Warn().
			Str("sym", entry.Symbol).
			Str("entry", entry.ID).
			Str("status", string(closing.Status)).
			Msg("closing order did not fill")
		return
	}

	pnl := realizedPnL(entry, closing)
	m.realized += pnl
	m.closed++
	if pnl > 0 {
		m.wins++
	}
	m.gate.State().RecordPnL(pnl)
	delete(m.positions, entry.ID)
	metrics.ClosesTotal.WithLabelValues(entry.Symbol, trigger).Inc()
	m.log.Info().
		Str("sym", entry.Symbol).
		Str("trigger", trigger).
		Float64("entry_px", entry.AvgPrice).
		Float64("exit_px", closing.AvgPrice).
		Float64("pnl", pnl).
		Float64("daily_loss", m.gate.State().DailyLoss()).
		Msg("position closed")
}

func (m *Manager) reopenPosition(pos *position) {
	m.mu.Lock()
	pos.closing = false
	m.mu.Unlock()
}

// realizedPnL computes (exit - entry) x qty signed by the entry direction.
func realizedPnL(entry, closing *execution.Order) float64 {
	qty := closing.FilledQty
	if entry.Side == signal.Buy {
		return (closing.AvgPrice - entry.AvgPrice) * qty
	}
	return (entry.AvgPrice - closing.AvgPrice) * qty
}
