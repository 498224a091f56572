package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "pulsetrader-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if len(cfg.Feed.Symbols) != 2 || cfg.Feed.Symbols[0] != "BTCUSDT" {
		t.Fatalf("unexpected symbols: %+v", cfg.Feed.Symbols)
	}
	if cfg.Feed.Provider != "stub" {
		t.Fatalf("unexpected provider: %s", cfg.Feed.Provider)
	}
	if !cfg.Exchange.Testnet || cfg.Exchange.Leverage != 3 {
		t.Fatalf("unexpected exchange settings: %+v", cfg.Exchange)
	}
	if !cfg.Strategies.PumpDump.Enabled || cfg.Strategies.PumpDump.PriceThreshold != 0.03 {
		t.Fatalf("unexpected pump_dump settings: %+v", cfg.Strategies.PumpDump)
	}
	if cfg.Strategies.Momentum.RSIOversold != 30 || cfg.Strategies.Momentum.RSIOverbought != 70 {
		t.Fatalf("unexpected momentum settings: %+v", cfg.Strategies.Momentum)
	}
	if cfg.Strategies.MeanRev.Enabled {
		t.Fatalf("mean_reversion should be disabled in fixture")
	}
	if cfg.Engine.CooldownSecs != 300 || cfg.Engine.FastPathMovePct != 0.02 {
		t.Fatalf("unexpected engine settings: %+v", cfg.Engine)
	}
	if cfg.Scorer.URL == "" || cfg.Scorer.TimeoutMs != 5000 {
		t.Fatalf("unexpected scorer settings: %+v", cfg.Scorer)
	}
	if cfg.Risk.MaxDailyLoss != 50 || cfg.Risk.MaxOpenOrders != 3 {
		t.Fatalf("unexpected risk settings: %+v", cfg.Risk)
	}
	if cfg.Orders.Notional != 50 || cfg.Orders.ScaleByConfidence {
		t.Fatalf("unexpected orders settings: %+v", cfg.Orders)
	}
	if cfg.Report.IntervalSecs != 300 {
		t.Fatalf("unexpected report interval: %d", cfg.Report.IntervalSecs)
	}
	if cfg.Paper.StartingCash != 5000 || cfg.Paper.SlippageBps != 3 {
		t.Fatalf("unexpected paper settings: %+v", cfg.Paper)
	}
	if !cfg.Notify.Enabled || cfg.Notify.ChatID != 123456789 {
		t.Fatalf("unexpected notify settings: %+v", cfg.Notify)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("fixture should validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateRejectsBadKnobs(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(filepath.Join("testdata", "config.yaml"))
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		return cfg
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"no symbols", func(c *Config) { c.Feed.Symbols = nil }, "symbol"},
		{"bad provider", func(c *Config) { c.Feed.Provider = "kraken" }, "provider"},
		{"no strategies", func(c *Config) {
			c.Strategies.PumpDump.Enabled = false
			c.Strategies.Momentum.Enabled = false
			c.Strategies.MeanRev.Enabled = false
		}, "strateg"},
		{"confidence range", func(c *Config) { c.Strategies.PumpDump.MinConfidence = 1.5 }, "min_confidence"},
		{"rsi inverted", func(c *Config) { c.Strategies.Momentum.RSIOversold = 80 }, "rsi"},
		{"fast path range", func(c *Config) { c.Engine.FastPathMovePct = 2 }, "fast_path"},
		{"window inverted", func(c *Config) { c.Engine.MinWindow = 500 }, "min_window"},
		{"negative risk", func(c *Config) { c.Risk.MaxDailyLoss = -1 }, "risk"},
		{"headroom range", func(c *Config) { c.Risk.BuyHeadroom = 1.5 }, "buy_headroom"},
		{"negative notional", func(c *Config) { c.Orders.Notional = -5 }, "notional"},
		{"negative paper", func(c *Config) { c.Paper.SlippageBps = -1 }, "paper"},
		{"notify without chat", func(c *Config) { c.Notify.ChatID = 0 }, "chat_id"},
	}

	for _, tc := range cases {
		cfg := base()
		tc.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.wantSub) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.wantSub)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Save returned error: %v", err)
	}
	if back.App.Name != cfg.App.Name || back.Risk.MaxDailyLoss != cfg.Risk.MaxDailyLoss {
		t.Fatalf("round trip mismatch")
	}
}
