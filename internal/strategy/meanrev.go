package strategy

import (
	"fmt"
	"math"

	"pulsetrader-go/internal/signal"
)

// MeanReversion signals when the latest price sits more than a z-score
// threshold away from the rolling mean, betting on a move back toward it.
type MeanReversion struct {
	zThreshold float64
	minConf    float64
}

// NewMeanReversion builds a mean-reversion strategy with a z-score threshold.
func NewMeanReversion(zThreshold, minConfidence float64) *MeanReversion {
	if zThreshold <= 0 {
		zThreshold = 2.0
	}
	return &MeanReversion{zThreshold: zThreshold, minConf: minConfidence}
}

// Name returns the identifier for the strategy implementation.
func (m *MeanReversion) Name() string { return "mean_reversion" }

// Evaluate computes the rolling mean/stddev and the z-score of the latest
// price against them.
func (m *MeanReversion) Evaluate(symbol string, window []signal.Tick) *Candidate {
	if len(window) < 2 {
		return nil
	}
	mean, std := meanStd(window)
	if std <= 0 {
		return nil
	}
	last := window[len(window)-1].Price
	z := (last - mean) / std
	if math.Abs(z) < m.zThreshold {
		return nil
	}

	side := signal.Sell // stretched above the mean
	if z < 0 {
		side = signal.Buy // stretched below the mean
	}
	conf := clamp01(0.25 + 0.15*(math.Abs(z)-m.zThreshold) + 0.1)
	if conf < m.minConf {
		return nil
	}
	return &Candidate{
		Side:       side,
		Confidence: conf,
		Reason:     fmt.Sprintf("z=%.2f vs mean=%.4f std=%.4f", z, mean, std),
		Target:     mean,
	}
}
