// Package signal standardizes payloads shared between market data, strategy,
// and execution layers.
package signal

import "time"

// Side enumerates trade directions shared by signals and orders.
type Side string

const (
	// Buy indicates a long bias or a long order.
	Buy Side = "BUY"
	// Sell indicates a short bias or a short order.
	Sell Side = "SELL"
)

// Opposite returns the closing direction for a position opened on this side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Tick models the essential pieces of market data consumed by strategies and
// the stop-loss/take-profit monitor.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    float64
	Change24h float64 // fraction, e.g. 0.032 for +3.2% over 24h
	Ts        time.Time
}

// Signal expresses a scored, directional trade recommendation produced by one
// strategy for one symbol. Immutable once published on the bus.
type Signal struct {
	ID         string
	Symbol     string
	Side       Side
	Confidence float64 // [0,1]
	Strategy   string
	Price      float64 // reference price at evaluation time
	Target     float64 // suggested take-profit, 0 when the strategy has none
	Stop       float64 // suggested stop-loss, 0 when the strategy has none
	Reason     string
	Ts         time.Time
}
