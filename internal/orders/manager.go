// Package orders implements the risk-gated order manager: it converts
// accepted signals into gateway submissions, owns the order state machine,
// and runs the background expiry sweep and stop-loss/take-profit monitor.
package orders

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pulsetrader-go/internal/bus"
	"pulsetrader-go/internal/execution"
	"pulsetrader-go/internal/metrics"
	"pulsetrader-go/internal/risk"
	"pulsetrader-go/internal/signal"
)

// Config bundles the order manager's sizing and housekeeping knobs.
type Config struct {
	Notional          float64       // USD notional per new entry
	ScaleByConfidence bool          // scale notional by signal confidence
	ExpireAfter       time.Duration // SUBMITTED orders older than this expire
	SweepInterval     time.Duration // expiry sweep cadence
	BalanceRefresh    time.Duration // gateway balance poll cadence
}

func (c *Config) defaults() {
	if c.Notional <= 0 {
		c.Notional = 50
	}
	if c.ExpireAfter <= 0 {
		c.ExpireAfter = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.BalanceRefresh <= 0 {
		c.BalanceRefresh = 30 * time.Second
	}
}

// position is a filled entry the TP/SL monitor watches. closing flips the
// moment a breach is detected so rapid ticks cannot double-close it.
type position struct {
	order   *execution.Order
	closing bool
}

// Stats is the manager's counter snapshot consumed by the reporter.
type Stats struct {
	Executed    uint64 // gateway submissions attempted
	Filled      uint64 // orders that reached FILLED or PARTIALLY_FILLED
	Wins        uint64 // closed positions with positive realized P&L
	Closed      uint64 // closed positions total
	OpenOrders  int
	RealizedPnL float64
	Balance     execution.Balance
}

// Manager owns every Order in the pipeline. All mutation happens under one
// mutex; the signal and tick handlers arrive on separate bus workers and
// serialize on it for the short bookkeeping sections around the (unlocked)
// gateway call.
type Manager struct {
	log     zerolog.Logger
	bus     *bus.Bus
	gateway execution.Gateway
	gate    *risk.Gate
	cfg     Config

	mu        sync.Mutex
	open      map[string]*execution.Order
	completed []*execution.Order
	positions map[string]*position // keyed by entry order id
	balance   execution.Balance
	executed  uint64
	filled    uint64
	wins      uint64
	closed    uint64
	realized  float64

	subSignals uint64
	subTicks   uint64
	cancel     context.CancelFunc
	done       chan struct{}
	now        func() time.Time
}

// New wires a manager from its collaborators.
func New(log zerolog.Logger, b *bus.Bus, gw execution.Gateway, gate *risk.Gate, cfg Config) *Manager {
	cfg.defaults()
	return &Manager{
		log:       log,
		bus:       b,
		gateway:   gw,
		gate:      gate,
		cfg:       cfg,
		open:      make(map[string]*execution.Order),
		positions: make(map[string]*position),
		now:       time.Now,
	}
}

// Start subscribes to signal and tick topics and launches the background
// sweeps. The initial balance fetch is synchronous so the first risk check
// never sees a zero balance.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	if bal, err := m.gateway.Balance(ctx); err != nil {
		m.log.Warn().Err(err).Msg("initial balance fetch failed")
	} else {
		m.mu.Lock()
		m.balance = bal
		m.mu.Unlock()
	}

	m.subSignals = m.bus.Subscribe(signal.PatternSignals, "order-manager", m.onSignal)
	m.subTicks = m.bus.Subscribe(signal.PatternMarketData, "tpsl-monitor", m.onTick)
	go m.housekeeping(ctx)
	m.log.Info().
		Float64("notional", m.cfg.Notional).
		Dur("expire_after", m.cfg.ExpireAfter).
		Msg("order manager started")
}

// Stop detaches from the bus, halts the background sweeps, and forces any
// unresolved PENDING order to CANCELLED so nothing lingers in limbo.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.bus.Unsubscribe(m.subSignals)
	m.bus.Unsubscribe(m.subTicks)
	m.cancel()
	<-m.done

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, o := range m.open {
		if o.Status != execution.StatusPending {
			continue
		}
		if err := o.Transition(execution.StatusCancelled); err == nil {
			o.Err = "cancelled on shutdown"
			delete(m.open, id)
			m.completed = append(m.completed, o)
			m.log.Info().Str("order", id).Msg("pending order cancelled on shutdown")
		}
	}
}

// HasOpen reports whether a live order exists for the symbol under the
// given strategy. The engine uses this to suppress re-entry signals.
func (m *Manager) HasOpen(symbol, strategyName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.open {
		if o.Symbol == symbol && o.Strategy == strategyName && !o.Status.Terminal() {
			return true
		}
	}
	return false
}

// Snapshot returns the manager's counters for reporting.
func (m *Manager) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Executed:    m.executed,
		Filled:      m.filled,
		Wins:        m.wins,
		Closed:      m.closed,
		OpenOrders:  len(m.open),
		RealizedPnL: m.realized,
		Balance:     m.balance,
	}
}

// CompletedOrders returns a copy of the terminal-order log.
func (m *Manager) CompletedOrders() []execution.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]execution.Order, 0, len(m.completed))
	for _, o := range m.completed {
		out = append(out, *o)
	}
	return out
}

// onSignal sizes, risk-checks, and submits one order for a signal. Signals
// arrive serially on the manager's bus queue; a slow gateway call delays
// later signals rather than interleaving with them.
func (m *Manager) onSignal(ctx context.Context, topic string, event any) {
	sig, ok := event.(signal.Signal)
	if !ok || sig.Symbol == "" || sig.Price <= 0 {
		return
	}

	notional := m.cfg.Notional
	if m.cfg.ScaleByConfidence {
		notional *= sig.Confidence
	}
	qty := notional / sig.Price

	order := &execution.Order{
		ID:        uuid.NewString(),
		Symbol:    sig.Symbol,
		Side:      sig.Side,
		Qty:       qty,
		Price:     sig.Price,
		Type:      execution.Market,
		Status:    execution.StatusPending,
		CreatedAt: m.now().UTC(),
		UpdatedAt: m.now().UTC(),
		SignalID:  sig.ID,
		Strategy:  sig.Strategy,
		Stop:      sig.Stop,
		Target:    sig.Target,
	}

	// Check and reserve the open slot in one locked section so concurrent
	// signals cannot both pass the max-open-orders gate.
	m.mu.Lock()
	err := m.gate.Check(sig.Side, notional, len(m.open), m.balance.Available)
	if err == nil {
		m.open[order.ID] = order
	}
	m.mu.Unlock()

	if err != nil {
		// Expected outcome, terminal, never retried; the gateway is not
		// contacted and no rate limit is consumed.
		order.Err = err.Error()
		_ = order.Transition(execution.StatusRejected)
		m.finalize(order)
		metrics.RiskRejectionsTotal.WithLabelValues(sig.Symbol).Inc()
		m.log.Info().
			Str("sym", sig.Symbol).
			Str("strategy", sig.Strategy).
			Err(err).
			Msg("risk gate rejected signal")
		return
	}

	m.submit(ctx, order)
}

// submit transitions the order to SUBMITTED, calls the gateway, and settles
// the outcome. The order must already be in the open set.
func (m *Manager) submit(ctx context.Context, order *execution.Order) {
	m.mu.Lock()
	if err := order.Transition(execution.StatusSubmitted); err != nil {
		m.mu.Unlock()
		m.log.Warn().Err(err).Str("order", order.ID).Msg("ignoring submit on settled order")
		return
	}
	m.executed++
	snapshot := *order
	m.mu.Unlock()
	m.publishStatus(snapshot)
	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Side)).Inc()

	res, err := m.gateway.Submit(ctx, execution.Request{
		Symbol: order.Symbol,
		Side:   order.Side,
		Qty:    order.Qty,
		Price:  order.Price,
		Type:   order.Type,
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		order.Err = err.Error()
		_ = order.Transition(execution.StatusRejected)
		m.finalizeLocked(order)
		m.log.Warn().Err(err).Str("order", order.ID).Str("sym", order.Symbol).Msg("gateway rejected order")
		return
	}

	switch res.Status {
	case execution.StatusFilled, execution.StatusPartiallyFilled:
		if err := order.ApplyFill(res.FilledQty, res.AvgPrice, res.Commission); err != nil {
			order.Err = err.Error()
			_ = order.Transition(execution.StatusRejected)
			m.finalizeLocked(order)
			m.log.Warn().Err(err).Str("order", order.ID).Msg("gateway fill rejected")
			return
		}
		m.filled++
		m.finalizeLocked(order)
		if order.FilledQty > 0 && (order.Stop > 0 || order.Target > 0) {
			m.positions[order.ID] = &position{order: order}
		}
		m.log.Info().
			Str("order", order.ID).
			Str("sym", order.Symbol).
			Str("side", string(order.Side)).
			Float64("qty", order.FilledQty).
			Float64("px", order.AvgPrice).
			Msg("order filled")
	case execution.StatusSubmitted:
		// Accepted but not executed; the expiry sweep bounds its lifetime.
		order.UpdatedAt = m.now().UTC()
	default:
		order.Err = "gateway returned " + string(res.Status)
		_ = order.Transition(execution.StatusRejected)
		m.finalizeLocked(order)
		m.log.Warn().Str("order", order.ID).Str("status", string(res.Status)).Msg("gateway declined order")
	}
}

// finalize moves a terminal order out of the open set into the completed
// log and publishes its status.
func (m *Manager) finalize(order *execution.Order) {
	m.mu.Lock()
	m.finalizeLocked(order)
	m.mu.Unlock()
}

func (m *Manager) finalizeLocked(order *execution.Order) {
	delete(m.open, order.ID)
	m.completed = append(m.completed, order)
	go m.publishStatus(*order)
}

// publishStatus emits a snapshot of the order on its status topic.
func (m *Manager) publishStatus(order execution.Order) {
	m.bus.Publish(signal.TopicOrders(order.ID), order)
}

// housekeeping runs the expiry sweep and balance refresh until cancelled.
func (m *Manager) housekeeping(ctx context.Context) {
	defer close(m.done)
	sweep := time.NewTicker(m.cfg.SweepInterval)
	defer sweep.Stop()
	refresh := time.NewTicker(m.cfg.BalanceRefresh)
	defer refresh.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			m.expireStale()
		case <-refresh.C:
			m.refreshBalance(ctx)
		}
	}
}

// expireStale transitions SUBMITTED orders the gateway never acknowledged
// to EXPIRED, bounding resource growth.
func (m *Manager) expireStale() {
	cutoff := m.now().UTC().Add(-m.cfg.ExpireAfter)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, o := range m.open {
		if o.Status != execution.StatusSubmitted || o.UpdatedAt.After(cutoff) {
			continue
		}
		if err := o.Transition(execution.StatusExpired); err != nil {
			continue
		}
		o.Err = "no gateway response"
		m.finalizeLocked(o)
		m.log.Warn().Str("order", id).Str("sym", o.Symbol).Msg("order expired without gateway response")
	}
}

func (m *Manager) refreshBalance(ctx context.Context) {
	bal, err := m.gateway.Balance(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("balance refresh failed")
		return
	}
	m.mu.Lock()
	m.balance = bal
	m.mu.Unlock()
}
