// Package engine runs the strategy evaluation loop: it folds market ticks
// into per-symbol rolling windows, evaluates every enabled strategy on a
// fixed cadence (plus a fast path for violent single-tick moves), and
// publishes scored signals onto the bus.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pulsetrader-go/internal/bus"
	"pulsetrader-go/internal/metrics"
	"pulsetrader-go/internal/scorer"
	"pulsetrader-go/internal/signal"
	"pulsetrader-go/internal/strategy"
)

// LiveOrders answers whether a live (non-terminal) order already exists for
// a symbol under a given strategy. The order manager provides this; the
// engine suppresses re-entry signals through it.
type LiveOrders interface {
	HasOpen(symbol, strategyName string) bool
}

// Config bundles the engine's evaluation knobs.
type Config struct {
	WindowSize   int           // rolling buffer cap per symbol
	MinWindow    int           // minimum points before evaluation
	Cadence      time.Duration // fixed evaluation interval
	Cooldown     time.Duration // per-symbol signal suppression window
	FastPathMove float64       // single-tick move triggering immediate evaluation
	TargetPct    float64       // default take-profit distance when a strategy sets none
	StopPct      float64       // default stop-loss distance when a strategy sets none
}

func (c *Config) defaults() {
	if c.WindowSize <= 0 {
		c.WindowSize = 100
	}
	if c.MinWindow <= 0 {
		c.MinWindow = 20
	}
	if c.Cadence <= 0 {
		c.Cadence = 10 * time.Second
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 300 * time.Second
	}
	if c.FastPathMove <= 0 {
		c.FastPathMove = 0.02
	}
	if c.TargetPct <= 0 {
		c.TargetPct = 0.03
	}
	if c.StopPct <= 0 {
		c.StopPct = 0.02
	}
}

// Engine converts ticks into signals. All cross-component traffic goes over
// the bus; the only direct dependency is the read-only LiveOrders view.
type Engine struct {
	log        zerolog.Logger
	bus        *bus.Bus
	strategies []strategy.Strategy
	scorer     scorer.Scorer
	live       LiveOrders
	cfg        Config

	mu         sync.Mutex
	buffers    map[string][]signal.Tick
	cooldownAt map[string]time.Time
	byStrategy map[string]uint64
	generated  uint64

	subID  uint64
	cancel context.CancelFunc
	done   chan struct{}
	now    func() time.Time
}

// New wires an engine from its collaborators. The scorer may be scorer.Noop
// when no scoring service is configured.
func New(log zerolog.Logger, b *bus.Bus, strategies []strategy.Strategy, sc scorer.Scorer, live LiveOrders, cfg Config) *Engine {
	cfg.defaults()
	return &Engine{
		log:        log,
		bus:        b,
		strategies: strategies,
		scorer:     sc,
		live:       live,
		cfg:        cfg,
		buffers:    make(map[string][]signal.Tick),
		cooldownAt: make(map[string]time.Time),
		byStrategy: make(map[string]uint64),
		now:        time.Now,
	}
}

// Start subscribes to tick topics and launches the cadence loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	e.subID = e.bus.Subscribe(signal.PatternMarketData, "strategy-engine", e.onTick)
	go e.cadenceLoop(ctx)
	e.log.Info().
		Int("strategies", len(e.strategies)).
		Dur("cadence", e.cfg.Cadence).
		Msg("strategy engine started")
}

// Stop halts the cadence loop after its current iteration and detaches from
// the bus.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.bus.Unsubscribe(e.subID)
}

// SignalsGenerated returns the total count of published signals.
func (e *Engine) SignalsGenerated() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generated
}

// SignalsByStrategy returns a copy of the per-strategy publish counters.
func (e *Engine) SignalsByStrategy() map[string]uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]uint64, len(e.byStrategy))
	for k, v := range e.byStrategy {
		out[k] = v
	}
	return out
}

// onTick folds a tick into its symbol buffer and takes the fast path when
// the single-tick move is violent enough.
func (e *Engine) onTick(ctx context.Context, topic string, event any) {
	tick, ok := event.(signal.Tick)
	if !ok || tick.Symbol == "" || tick.Price <= 0 {
		return
	}

	e.mu.Lock()
	buf := e.buffers[tick.Symbol]
	var prevPrice float64
	if len(buf) > 0 {
		prevPrice = buf[len(buf)-1].Price
	}
	buf = append(buf, tick)
	if len(buf) > e.cfg.WindowSize {
		buf = buf[len(buf)-e.cfg.WindowSize:]
	}
	e.buffers[tick.Symbol] = buf
	ready := len(buf) >= e.cfg.MinWindow
	e.mu.Unlock()

	if !ready || prevPrice <= 0 {
		return
	}
	move := (tick.Price - prevPrice) / prevPrice
	if move > e.cfg.FastPathMove || move < -e.cfg.FastPathMove {
		e.log.Debug().Str("sym", tick.Symbol).Float64("move", move).Msg("fast-path evaluation")
		e.evaluateSymbol(ctx, tick.Symbol)
	}
}

func (e *Engine) cadenceLoop(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.cfg.Cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sym := range e.readySymbols() {
				e.evaluateSymbol(ctx, sym)
			}
		}
	}
}

func (e *Engine) readySymbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.buffers))
	for sym, buf := range e.buffers {
		if len(buf) >= e.cfg.MinWindow {
			out = append(out, sym)
		}
	}
	return out
}

// evaluateSymbol runs every strategy over the symbol's window and publishes
// at most one signal, respecting the cooldown and live-order suppression.
func (e *Engine) evaluateSymbol(ctx context.Context, symbol string) {
	e.mu.Lock()
	if until, ok := e.cooldownAt[symbol]; ok && e.now().Before(until) {
		e.mu.Unlock()
		return
	}
	src := e.buffers[symbol]
	window := make([]signal.Tick, len(src))
	copy(window, src)
	e.mu.Unlock()

	if len(window) < e.cfg.MinWindow {
		return
	}

	for _, strat := range e.strategies {
		if e.live != nil && e.live.HasOpen(symbol, strat.Name()) {
			continue
		}
		cand := strat.Evaluate(symbol, window)
		if cand == nil {
			continue
		}
		if e.publish(ctx, symbol, strat.Name(), window, cand) {
			return // one signal per symbol per evaluation, cooldown armed
		}
	}
}

// publish refines the candidate through the scorer (fail-open) and emits the
// signal. Returns false only when a concurrent evaluation won the cooldown.
func (e *Engine) publish(ctx context.Context, symbol, strategyName string, window []signal.Tick, cand *strategy.Candidate) bool {
	confidence := cand.Confidence
	reason := cand.Reason
	if e.scorer != nil {
		res, err := e.scorer.Score(ctx, symbol, window, scorer.Candidate{
			Side:       cand.Side,
			Confidence: cand.Confidence,
			Strategy:   strategyName,
			Reason:     cand.Reason,
		})
		if err != nil {
			e.log.Warn().Err(err).Str("sym", symbol).Msg("scorer unavailable, using strategy confidence")
		} else {
			confidence = res.Confidence
			if res.Reasoning != "" {
				reason = res.Reasoning
			}
		}
	}

	price := window[len(window)-1].Price
	target, stop := cand.Target, cand.Stop
	if target == 0 {
		target = defaultLevel(cand.Side, price, e.cfg.TargetPct, true)
	}
	if stop == 0 {
		stop = defaultLevel(cand.Side, price, e.cfg.StopPct, false)
	}

	now := e.now()
	e.mu.Lock()
	if until, ok := e.cooldownAt[symbol]; ok && now.Before(until) {
		e.mu.Unlock()
		return false
	}
	e.cooldownAt[symbol] = now.Add(e.cfg.Cooldown)
	e.generated++
	e.byStrategy[strategyName]++
	e.mu.Unlock()

	sig := signal.Signal{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Side:       cand.Side,
		Confidence: confidence,
		Strategy:   strategyName,
		Price:      price,
		Target:     target,
		Stop:       stop,
		Reason:     reason,
		Ts:         now,
	}
	e.bus.Publish(signal.TopicSignals(symbol), sig)
	metrics.SignalsTotal.WithLabelValues(symbol, strategyName).Inc()
	e.log.Info().
		Str("sym", symbol).
		Str("side", string(sig.Side)).
		Str("strategy", strategyName).
		Float64("confidence", confidence).
		Str("reason", reason).
		Msg("signal published")
	return true
}

// defaultLevel derives a take-profit (favourable) or stop-loss (adverse)
// price from the reference price and a fractional distance.
func defaultLevel(side signal.Side, price, pct float64, favourable bool) float64 {
	up := side == signal.Buy
	if !favourable {
		up = !up
	}
	if up {
		return price * (1 + pct)
	}
	return price * (1 - pct)
}
