// Package report periodically aggregates counters from the strategy engine
// and the order manager into a performance snapshot published on the bus.
// It is read-only: nothing here feeds back into trading state.
package report

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pulsetrader-go/internal/bus"
	"pulsetrader-go/internal/orders"
	"pulsetrader-go/internal/signal"
)

// EngineStats is the slice of the strategy engine the reporter reads.
type EngineStats interface {
	SignalsGenerated() uint64
	SignalsByStrategy() map[string]uint64
}

// OrderStats is the slice of the order manager the reporter reads.
type OrderStats interface {
	Snapshot() orders.Stats
}

// Snapshot is the published performance document.
type Snapshot struct {
	SignalsGenerated  uint64
	SignalsByStrategy map[string]uint64
	OrdersExecuted    uint64
	OrdersFilled      uint64
	OpenOrders        int
	RealizedPnL       float64
	Balance           float64
	UnrealizedPnL     float64
	WinRate           float64 // filled-profitable / closed-total, 0 when nothing closed
	// Approx24hMove estimates each symbol's move since "yesterday" by
	// backing the reference price out of the 24h-change figure. This is an
	// approximation, not ledger-accurate P&L.
	Approx24hMove map[string]float64
	Ts            time.Time
}

const defaultInterval = 5 * time.Minute

// Reporter republishes aggregate counters on a fixed interval.
type Reporter struct {
	log      zerolog.Logger
	bus      *bus.Bus
	engine   EngineStats
	orders   OrderStats
	interval time.Duration

	mu        sync.Mutex
	lastTicks map[string]signal.Tick

	subID  uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a reporter. A non-positive interval falls back to 5 minutes.
func New(log zerolog.Logger, b *bus.Bus, engine EngineStats, orderStats OrderStats, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Reporter{
		log:       log,
		bus:       b,
		engine:    engine,
		orders:    orderStats,
		interval:  interval,
		lastTicks: make(map[string]signal.Tick),
	}
}

// Start subscribes to tick topics (for the 24h-move estimate) and launches
// the reporting loop.
func (r *Reporter) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.subID = r.bus.Subscribe(signal.PatternMarketData, "performance-reporter", r.onTick)
	go r.loop(ctx)
}

// Stop halts the loop after the current iteration.
func (r *Reporter) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.bus.Unsubscribe(r.subID)
}

func (r *Reporter) onTick(ctx context.Context, topic string, event any) {
	tick, ok := event.(signal.Tick)
	if !ok || tick.Symbol == "" {
		return
	}
	r.mu.Lock()
	r.lastTicks[tick.Symbol] = tick
	r.mu.Unlock()
}

func (r *Reporter) loop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Publish()
		}
	}
}

// Publish assembles and emits one snapshot immediately.
func (r *Reporter) Publish() {
	snap := r.build()
	r.bus.Publish(signal.TopicPerformance, snap)
	r.log.Info().
		Uint64("signals", snap.SignalsGenerated).
		Uint64("executed", snap.OrdersExecuted).
		Int("open", snap.OpenOrders).
		Float64("pnl", snap.RealizedPnL).
		Float64("win_rate", snap.WinRate).
		Msg("performance snapshot")
}

func (r *Reporter) build() Snapshot {
	stats := r.orders.Snapshot()
	winRate := 0.0
	if stats.Closed > 0 {
		winRate = float64(stats.Wins) / float64(stats.Closed)
	}

	r.mu.Lock()
	moves := make(map[string]float64, len(r.lastTicks))
	for sym, tick := range r.lastTicks {
		if tick.Change24h > -1 {
			yesterday := tick.Price / (1 + tick.Change24h)
			moves[sym] = tick.Price - yesterday
		}
	}
	r.mu.Unlock()

	return Snapshot{
		SignalsGenerated:  r.engine.SignalsGenerated(),
		SignalsByStrategy: r.engine.SignalsByStrategy(),
		OrdersExecuted:    stats.Executed,
		OrdersFilled:      stats.Filled,
		OpenOrders:        stats.OpenOrders,
		RealizedPnL:       stats.RealizedPnL,
		Balance:           stats.Balance.Total,
		UnrealizedPnL:     stats.Balance.UnrealizedPnL,
		WinRate:           winRate,
		Approx24hMove:     moves,
		Ts:                time.Now().UTC(),
	}
}
