package strategy

import (
	"math"

	"pulsetrader-go/internal/signal"
)

// rsi computes the relative strength index over the last period+1 ticks
// using the simple-average form. Returns 50 when there is not enough data
// or no movement at all.
func rsi(window []signal.Tick, period int) float64 {
	if len(window) < period+1 {
		return 50
	}
	start := len(window) - period - 1
	var gains, losses float64
	for i := start + 1; i < len(window); i++ {
		delta := window[i].Price - window[i-1].Price
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if gains+losses == 0 {
		return 50
	}
	if losses == 0 {
		return 100
	}
	rs := (gains / float64(period)) / (losses / float64(period))
	return 100 - 100/(1+rs)
}

// meanStd returns the arithmetic mean and population standard deviation of
// the window's prices.
func meanStd(window []signal.Tick) (mean, std float64) {
	if len(window) == 0 {
		return 0, 0
	}
	for _, tk := range window {
		mean += tk.Price
	}
	mean /= float64(len(window))
	var variance float64
	for _, tk := range window {
		d := tk.Price - mean
		variance += d * d
	}
	variance /= float64(len(window))
	return mean, math.Sqrt(variance)
}

// pctChange returns the fractional price change from the first to the last
// tick of the slice, or 0 when it cannot be computed.
func pctChange(window []signal.Tick) float64 {
	if len(window) < 2 || window[0].Price <= 0 {
		return 0
	}
	return (window[len(window)-1].Price - window[0].Price) / window[0].Price
}
