package strategy

import (
	"fmt"
	"math"

	"pulsetrader-go/internal/signal"
)

// shortWindow is the number of most recent ticks the pump/dump detector
// measures the spike over.
const shortWindow = 3

// PumpDump detects sudden price spikes backed by a volume surge and bets on
// the reversion: a pump yields a SELL candidate, a dump a BUY.
type PumpDump struct {
	threshold  float64 // fractional move over the short window
	volumeMult float64 // last volume vs trailing average
	minConf    float64
}

// NewPumpDump builds a pump/dump detector using price and volume spike knobs.
func NewPumpDump(threshold, volumeMult, minConfidence float64) *PumpDump {
	if threshold <= 0 {
		threshold = 0.03
	}
	if volumeMult <= 1 {
		volumeMult = 2.0
	}
	return &PumpDump{threshold: threshold, volumeMult: volumeMult, minConf: minConfidence}
}

// Name returns the identifier for the strategy implementation.
func (p *PumpDump) Name() string { return "pump_dump" }

// Evaluate compares the short-window move against the threshold and the last
// tick's volume against its trailing average.
func (p *PumpDump) Evaluate(symbol string, window []signal.Tick) *Candidate {
	if len(window) < shortWindow+1 {
		return nil
	}

	short := window[len(window)-shortWindow:]
	delta := pctChange(short)
	if math.Abs(delta) < p.threshold {
		return nil
	}

	trailing := window[:len(window)-shortWindow]
	var avgVol float64
	for _, tk := range trailing {
		avgVol += tk.Volume
	}
	avgVol /= float64(len(trailing))
	if avgVol <= 0 {
		return nil
	}
	volRatio := short[len(short)-1].Volume / avgVol
	if volRatio < p.volumeMult {
		return nil
	}

	last := short[len(short)-1].Price
	side := signal.Sell // pump: fade the spike
	if delta < 0 {
		side = signal.Buy // dump: buy the panic
	}
	conf := clamp01(0.2 + 3*math.Abs(delta) + 0.02*volRatio)
	if conf < p.minConf {
		return nil
	}
	return &Candidate{
		Side:       side,
		Confidence: conf,
		Reason:     fmt.Sprintf("spike Δ=%.2f%% over %d ticks, volume %.1fx trailing avg", delta*100, shortWindow, volRatio),
		Target:     short[0].Price,       // revert to the pre-spike price
		Stop:       last * (1 + delta/2), // spike keeps running against us
	}
}
