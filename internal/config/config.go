// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Feed describes the market data source.
type Feed struct {
	Provider     string   `yaml:"provider"` // stub|binance
	Symbols      []string `yaml:"symbols"`
	WebsocketURL string   `yaml:"websocket_url"` // optional override
}

// Exchange describes venue connectivity. API credentials come from the
// environment, not this file.
type Exchange struct {
	Testnet  bool `yaml:"testnet"`
	Leverage int  `yaml:"leverage"`
}

// Strategies groups the per-strategy enable flags and thresholds.
type Strategies struct {
	PumpDump PumpDump `yaml:"pump_dump"`
	Momentum Momentum `yaml:"momentum"`
	MeanRev  MeanRev  `yaml:"mean_reversion"`
}

// PumpDump tunes the pump-and-dump detector.
type PumpDump struct {
	Enabled         bool    `yaml:"enabled"`
	PriceThreshold  float64 `yaml:"price_threshold"`   // fractional short-window move
	VolumeSpikeMult float64 `yaml:"volume_spike_mult"` // last volume vs trailing average
	MinConfidence   float64 `yaml:"min_confidence"`
}

// Momentum tunes the RSI/momentum strategy.
type Momentum struct {
	Enabled       bool    `yaml:"enabled"`
	RSIOversold   float64 `yaml:"rsi_oversold"`
	RSIOverbought float64 `yaml:"rsi_overbought"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// MeanRev tunes the mean-reversion strategy.
type MeanRev struct {
	Enabled         bool    `yaml:"enabled"`
	ZScoreThreshold float64 `yaml:"zscore_threshold"`
	MinConfidence   float64 `yaml:"min_confidence"`
}

// Engine controls the evaluation loop.
type Engine struct {
	WindowSize      int     `yaml:"window_size"`
	MinWindow       int     `yaml:"min_window"`
	CadenceSecs     int     `yaml:"cadence_secs"`
	CooldownSecs    int     `yaml:"cooldown_secs"`
	FastPathMovePct float64 `yaml:"fast_path_move_pct"` // fraction, e.g. 0.02
	TargetPct       float64 `yaml:"target_pct"`
	StopPct         float64 `yaml:"stop_pct"`
}

// Scorer points the engine at an external confidence model. Empty URL
// disables scoring and candidates pass through unchanged.
type Scorer struct {
	URL       string `yaml:"url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Risk encodes the guard-rails every entry must clear.
type Risk struct {
	MaxPositionNotional float64 `yaml:"max_position_notional"`
	MaxDailyLoss        float64 `yaml:"max_daily_loss"`
	MaxOpenOrders       int     `yaml:"max_open_orders"`
	BuyHeadroom         float64 `yaml:"buy_headroom"` // fraction of balance usable for buys
}

// Orders controls sizing and lifecycle housekeeping.
type Orders struct {
	Notional           float64 `yaml:"notional"`
	ScaleByConfidence  bool    `yaml:"scale_by_confidence"`
	ExpireAfterSecs    int     `yaml:"expire_after_secs"`
	SweepIntervalSecs  int     `yaml:"sweep_interval_secs"`
	BalanceRefreshSecs int     `yaml:"balance_refresh_secs"`
}

// Report sets the performance snapshot cadence.
type Report struct {
	IntervalSecs int `yaml:"interval_secs"`
}

// Paper captures paper-trading account settings.
type Paper struct {
	StartingCash         float64 `yaml:"starting_cash"`
	MaxPositionPerSymbol float64 `yaml:"max_position_per_symbol"`
	SlippageBps          float64 `yaml:"slippage_bps"`
	CommissionBps        float64 `yaml:"commission_bps"`
	FillsPath            string  `yaml:"fills_path"`
}

// Notify configures execution alerts. The bot token comes from the
// environment; alerts are off unless both token and chat id are present.
type Notify struct {
	Enabled bool  `yaml:"enabled"`
	ChatID  int64 `yaml:"chat_id"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App        App        `yaml:"app"`
	Feed       Feed       `yaml:"feed"`
	Exchange   Exchange   `yaml:"exchange"`
	Strategies Strategies `yaml:"strategies"`
	Engine     Engine     `yaml:"engine"`
	Scorer     Scorer     `yaml:"scorer"`
	Risk       Risk       `yaml:"risk"`
	Orders     Orders     `yaml:"orders"`
	Report     Report     `yaml:"report"`
	Paper      Paper      `yaml:"paper"`
	Notify     Notify     `yaml:"notify"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects out-of-range knobs before the pipeline starts. Zero
// values are allowed where the consuming package applies a default.
func (c *Config) Validate() error {
	if len(c.Feed.Symbols) == 0 {
		return fmt.Errorf("feed: at least one symbol is required")
	}
	switch c.Feed.Provider {
	case "", "stub", "binance":
	default:
		return fmt.Errorf("feed: unknown provider %q", c.Feed.Provider)
	}
	if !c.Strategies.PumpDump.Enabled && !c.Strategies.Momentum.Enabled && !c.Strategies.MeanRev.Enabled {
		return fmt.Errorf("strategies: at least one strategy must be enabled")
	}
	for name, conf := range map[string]float64{
		"pump_dump":      c.Strategies.PumpDump.MinConfidence,
		"momentum":       c.Strategies.Momentum.MinConfidence,
		"mean_reversion": c.Strategies.MeanRev.MinConfidence,
	} {
		if conf < 0 || conf > 1 {
			return fmt.Errorf("strategies: %s min_confidence %.2f outside [0,1]", name, conf)
		}
	}
	if m := c.Strategies.Momentum; m.Enabled && m.RSIOverbought != 0 && m.RSIOversold >= m.RSIOverbought {
		return fmt.Errorf("strategies: momentum rsi_oversold must be below rsi_overbought")
	}
	if c.Engine.FastPathMovePct < 0 || c.Engine.FastPathMovePct > 1 {
		return fmt.Errorf("engine: fast_path_move_pct %.2f outside [0,1]", c.Engine.FastPathMovePct)
	}
	if c.Engine.WindowSize > 0 && c.Engine.MinWindow > c.Engine.WindowSize {
		return fmt.Errorf("engine: min_window %d exceeds window_size %d", c.Engine.MinWindow, c.Engine.WindowSize)
	}
	if c.Risk.MaxPositionNotional < 0 || c.Risk.MaxDailyLoss < 0 || c.Risk.MaxOpenOrders < 0 {
		return fmt.Errorf("risk: limits must be non-negative")
	}
	if c.Risk.BuyHeadroom < 0 || c.Risk.BuyHeadroom > 1 {
		return fmt.Errorf("risk: buy_headroom %.2f outside [0,1]", c.Risk.BuyHeadroom)
	}
	if c.Orders.Notional < 0 {
		return fmt.Errorf("orders: notional must be non-negative")
	}
	if c.Paper.StartingCash < 0 || c.Paper.SlippageBps < 0 || c.Paper.CommissionBps < 0 {
		return fmt.Errorf("paper: negative values are not allowed")
	}
	if c.Notify.Enabled && c.Notify.ChatID == 0 {
		return fmt.Errorf("notify: chat_id is required when alerts are enabled")
	}
	return nil
}
