package strategy

import (
	"fmt"
	"math"

	"pulsetrader-go/internal/signal"
)

const (
	rsiPeriod         = 14
	momentumLookback  = 5
	defaultOversold   = 30.0
	defaultOverbought = 70.0
)

// Momentum combines RSI(14) with short-horizon momentum: an oversold market
// that has started rising is a BUY, an overbought market rolling over a SELL.
type Momentum struct {
	oversold   float64
	overbought float64
	minConf    float64
}

// NewMomentum builds a momentum strategy with RSI band thresholds.
func NewMomentum(oversold, overbought, minConfidence float64) *Momentum {
	if oversold <= 0 || oversold >= 100 {
		oversold = defaultOversold
	}
	if overbought <= oversold || overbought >= 100 {
		overbought = defaultOverbought
	}
	return &Momentum{oversold: oversold, overbought: overbought, minConf: minConfidence}
}

// Name returns the identifier for the strategy implementation.
func (m *Momentum) Name() string { return "momentum" }

// Evaluate requires enough history for the RSI period plus the momentum
// lookback; otherwise it stays silent.
func (m *Momentum) Evaluate(symbol string, window []signal.Tick) *Candidate {
	if len(window) < rsiPeriod+momentumLookback+1 {
		return nil
	}

	value := rsi(window, rsiPeriod)
	mom := pctChange(window[len(window)-momentumLookback:])

	var side signal.Side
	var distance float64
	switch {
	case value <= m.oversold && mom > 0:
		side = signal.Buy
		distance = m.oversold - value
	case value >= m.overbought && mom < 0:
		side = signal.Sell
		distance = value - m.overbought
	default:
		return nil
	}

	conf := clamp01(0.3 + distance/100 + 2*math.Abs(mom))
	if conf < m.minConf {
		return nil
	}
	return &Candidate{
		Side:       side,
		Confidence: conf,
		Reason:     fmt.Sprintf("rsi=%.1f momentum=%.2f%% over %d ticks", value, mom*100, momentumLookback),
	}
}
