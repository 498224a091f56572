// Package strategy contains the signal generation logic that turns rolling
// tick windows into directional trade candidates.
package strategy

import (
	"pulsetrader-go/internal/signal"
)

// Candidate is a strategy's verdict for one evaluation of one symbol. The
// confidence is provisional until the engine optionally refines it through
// the AI scorer.
type Candidate struct {
	Side       signal.Side
	Confidence float64
	Reason     string
	Target     float64 // 0 when the strategy leaves the default take-profit
	Stop       float64 // 0 when the strategy leaves the default stop-loss
}

// Strategy defines behaviour shared by strategy implementations. Evaluate
// receives the engine's rolling window (oldest first) and returns nil when
// no trade is warranted. Implementations are stateless; all history lives in
// the engine's buffers.
type Strategy interface {
	Evaluate(symbol string, window []signal.Tick) *Candidate
	Name() string
}

// Params expresses tunable knobs required by strategy constructors.
type Params struct {
	PumpDumpEnabled   bool
	PumpThreshold     float64 // fractional short-window move, e.g. 0.03
	VolumeSpikeMult   float64 // last volume vs trailing average
	PumpMinConfidence float64
	MomentumEnabled   bool
	RSIOversold       float64
	RSIOverbought     float64
	MomentumMinConf   float64
	MeanRevEnabled    bool
	ZScoreThreshold   float64
	MeanRevMinConf    float64
}

// Build returns the enabled strategy implementations in a stable order.
func Build(params Params) []Strategy {
	var out []Strategy
	if params.PumpDumpEnabled {
		out = append(out, NewPumpDump(params.PumpThreshold, params.VolumeSpikeMult, params.PumpMinConfidence))
	}
	if params.MomentumEnabled {
		out = append(out, NewMomentum(params.RSIOversold, params.RSIOverbought, params.MomentumMinConf))
	}
	if params.MeanRevEnabled {
		out = append(out, NewMeanReversion(params.ZScoreThreshold, params.MeanRevMinConf))
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
