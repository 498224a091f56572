// Binary paper runs the full pipeline against a simulated account. No
// credentials needed; the default stub feed makes it usable offline.
package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pulsetrader-go/internal/bus"
	"pulsetrader-go/internal/config"
	"pulsetrader-go/internal/engine"
	"pulsetrader-go/internal/exchange"
	"pulsetrader-go/internal/metrics"
	"pulsetrader-go/internal/orders"
	"pulsetrader-go/internal/paper"
	"pulsetrader-go/internal/report"
	"pulsetrader-go/internal/risk"
	"pulsetrader-go/internal/scorer"
	"pulsetrader-go/internal/signal"
	"pulsetrader-go/internal/strategy"
	"pulsetrader-go/internal/util"
)

func main() {
	configPath := flag.String("config", "configs/paper.yaml", "path to YAML config")
	flag.Parse()

	_ = godotenv.Load() // best-effort

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := util.NewLogger("info")
		boot.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b := bus.New(log)
	b.Start()

	account := paper.NewAccount(cfg.Paper.StartingCash, cfg.Paper.MaxPositionPerSymbol)
	ledger := paper.NewLedger(256)
	recorder := paper.MultiRecorder{ledger}
	if cfg.Paper.FillsPath != "" {
		jsonl, err := paper.NewJSONLRecorder(cfg.Paper.FillsPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open fills recorder")
		}
		defer jsonl.Close()
		recorder = append(recorder, jsonl)
	}
	gateway := paper.NewGateway(account, recorder, paper.GatewayConfig{
		SlippageBps:   cfg.Paper.SlippageBps,
		CommissionBps: cfg.Paper.CommissionBps,
	}, log)

	gate := risk.NewGate(risk.Limits{
		MaxPositionNotional: cfg.Risk.MaxPositionNotional,
		MaxDailyLoss:        cfg.Risk.MaxDailyLoss,
		MaxOpenOrders:       cfg.Risk.MaxOpenOrders,
		BuyHeadroom:         cfg.Risk.BuyHeadroom,
	}, risk.NewState())

	manager := orders.New(log, b, gateway, gate, orders.Config{
		Notional:          cfg.Orders.Notional,
		ScaleByConfidence: cfg.Orders.ScaleByConfidence,
		ExpireAfter:       time.Duration(cfg.Orders.ExpireAfterSecs) * time.Second,
		SweepInterval:     time.Duration(cfg.Orders.SweepIntervalSecs) * time.Second,
		BalanceRefresh:    time.Duration(cfg.Orders.BalanceRefreshSecs) * time.Second,
	})
	manager.Start(ctx)

	var sc scorer.Scorer = scorer.Noop{}
	if cfg.Scorer.URL != "" {
		sc = scorer.NewHTTPScorer(cfg.Scorer.URL, time.Duration(cfg.Scorer.TimeoutMs)*time.Millisecond)
	}

	eng := engine.New(log, b, buildStrategies(cfg), sc, manager, engine.Config{
		WindowSize:   cfg.Engine.WindowSize,
		MinWindow:    cfg.Engine.MinWindow,
		Cadence:      time.Duration(cfg.Engine.CadenceSecs) * time.Second,
		Cooldown:     time.Duration(cfg.Engine.CooldownSecs) * time.Second,
		FastPathMove: cfg.Engine.FastPathMovePct,
		TargetPct:    cfg.Engine.TargetPct,
		StopPct:      cfg.Engine.StopPct,
	})
	eng.Start(ctx)

	reporter := report.New(log, b, eng, manager, time.Duration(cfg.Report.IntervalSecs)*time.Second)
	reporter.Start(ctx)

	feed := exchange.NewFeed(cfg.Feed.Provider, cfg.Feed.Symbols, log,
		exchange.WithWebsocketURL(cfg.Feed.WebsocketURL))
	ticks := make(chan signal.Tick, 1024)
	go func() {
		if err := feed.Run(ctx, ticks); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("feed stopped")
			cancel()
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tk := <-ticks:
				gateway.UpdatePrice(tk.Symbol, tk.Price)
				b.Publish(signal.TopicMarketData(tk.Symbol), tk)
			}
		}
	}()

	log.Info().Float64("starting_cash", cfg.Paper.StartingCash).Strs("symbols", cfg.Feed.Symbols).Msg("paper trader started")
	<-ctx.Done()

	log.Info().Msg("shutting down")
	reporter.Stop()
	eng.Stop()
	manager.Stop()
	b.Stop()

	final := account.Snapshot(nil)
	log.Info().
		Float64("cash", final.Cash).
		Float64("realized_pnl", final.RealizedPnL).
		Int("open_positions", len(final.Positions)).
		Msg("paper session summary")
	for symbol, activity := range ledger.Activity() {
		log.Info().
			Str("sym", symbol).
			Int("fills", activity.Fills).
			Float64("notional", activity.Notional).
			Float64("commission", activity.Commission).
			Msg("symbol activity")
	}
}

func buildStrategies(cfg *config.Config) []strategy.Strategy {
	return strategy.Build(strategy.Params{
		PumpDumpEnabled:   cfg.Strategies.PumpDump.Enabled,
		PumpThreshold:     cfg.Strategies.PumpDump.PriceThreshold,
		VolumeSpikeMult:   cfg.Strategies.PumpDump.VolumeSpikeMult,
		PumpMinConfidence: cfg.Strategies.PumpDump.MinConfidence,
		MomentumEnabled:   cfg.Strategies.Momentum.Enabled,
		RSIOversold:       cfg.Strategies.Momentum.RSIOversold,
		RSIOverbought:     cfg.Strategies.Momentum.RSIOverbought,
		MomentumMinConf:   cfg.Strategies.Momentum.MinConfidence,
		MeanRevEnabled:    cfg.Strategies.MeanRev.Enabled,
		ZScoreThreshold:   cfg.Strategies.MeanRev.ZScoreThreshold,
		MeanRevMinConf:    cfg.Strategies.MeanRev.MinConfidence,
	})
}
