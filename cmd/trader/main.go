// Binary trader runs the live signal-to-execution pipeline against Binance
// futures.
package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/joho/godotenv"

	"pulsetrader-go/internal/bus"
	"pulsetrader-go/internal/config"
	"pulsetrader-go/internal/engine"
	"pulsetrader-go/internal/exchange"
	"pulsetrader-go/internal/execution"
	"pulsetrader-go/internal/metrics"
	"pulsetrader-go/internal/notify"
	"pulsetrader-go/internal/orders"
	"pulsetrader-go/internal/report"
	"pulsetrader-go/internal/risk"
	"pulsetrader-go/internal/scorer"
	"pulsetrader-go/internal/signal"
	"pulsetrader-go/internal/strategy"
	"pulsetrader-go/internal/util"
)

func main() {
	configPath := flag.String("config", "configs/trader.yaml", "path to YAML config")
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

	apiKey := os.Getenv("BINANCE_API_KEY")
	apiSecret := os.Getenv("BINANCE_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		log.Fatal().Msg("BINANCE_API_KEY and BINANCE_API_SECRET are required")
	}

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b := bus.New(log)
	b.Start()

	if cfg.Exchange.Testnet {
		futures.UseTestnet = true
	}
	client := futures.NewClient(apiKey, apiSecret)
	gateway := execution.NewBinanceGateway(client, log)
	if cfg.Exchange.Leverage > 0 {
		for _, sym := range cfg.Feed.Symbols {
			if err := gateway.SetLeverage(ctx, sym, cfg.Exchange.Leverage); err != nil {
				log.Warn().Err(err).Str("symbol", sym).Msg("set leverage failed")
			}
		}
	}

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

	if cfg.Notify.Enabled {
		token := os.Getenv("TELEGRAM_BOT_TOKEN")
		chatID := cfg.Notify.ChatID
		if env := os.Getenv("TELEGRAM_CHAT_ID"); env != "" {
			if parsed, err := strconv.ParseInt(env, 10, 64); err == nil {
				chatID = parsed
			}
		}
		if token == "" {
			log.Warn().Msg("notify enabled but TELEGRAM_BOT_TOKEN missing, alerts off")
		} else if notifier, err := notify.NewFromToken(log, b, token, chatID); err != nil {
			log.Warn().Err(err).Msg("telegram init failed, alerts off")
		} else {
			notifier.Start()
			defer notifier.Stop()
		}
	}

	feed := exchange.NewFeed(cfg.Feed.Provider, cfg.Feed.Symbols, log,
		exchange.WithWebsocketURL(cfg.Feed.WebsocketURL))
	ticks := make(chan signal.Tick, 1024)
	go func() {
		if err := feed.Run(ctx, ticks); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("feed stopped")
			cancel()
		}
	}()
	go pump(ctx, b, ticks)

	log.Info().Str("env", cfg.App.Env).Strs("symbols", cfg.Feed.Symbols).Msg("trader started")
	<-ctx.Done()

	log.Info().Msg("shutting down")
	reporter.Stop()
	eng.Stop()
	manager.Stop()
	b.Stop()
}

// pump bridges feed ticks onto the event bus.
func pump(ctx context.Context, b *bus.Bus, ticks <-chan signal.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case tk := <-ticks:
			b.Publish(signal.TopicMarketData(tk.Symbol), tk)
		}
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
