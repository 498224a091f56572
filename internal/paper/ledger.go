package paper

import (
	"sync"

	"pulsetrader-go/internal/execution"
)

// Ledger stores paper fills in memory for quick inspection.
type Ledger struct {
	mu    sync.Mutex
	fills []execution.Fill
}

// NewLedger creates an empty ledger optionally pre-sizing storage.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{fills: make([]execution.Fill, 0, capacity)}
}

// Record appends a fill to the ledger.
func (l *Ledger) Record(fill execution.Fill) {
	l.mu.Lock()
	l.fills = append(l.fills, fill)
	l.mu.Unlock()
}

// Snapshot returns a copy of the recorded fills.
func (l *Ledger) Snapshot() []execution.Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]execution.Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// FillsFor returns the recorded fills for one symbol, in record order.
func (l *Ledger) FillsFor(symbol string) []execution.Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []execution.Fill
	for _, f := range l.fills {
		if f.Symbol == symbol {
			out = append(out, f)
		}
	}
	return out
}

// SymbolActivity aggregates the ledger's traffic for one symbol.
type SymbolActivity struct {
	Fills      int
	Qty        float64
	Notional   float64
	Commission float64
}

// Activity rolls the ledger up per symbol for session reporting.
func (l *Ledger) Activity() map[string]SymbolActivity {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]SymbolActivity, 4)
	for _, f := range l.fills {
		a := out[f.Symbol]
		a.Fills++
		a.Qty += f.Qty
		a.Notional += f.Qty * f.Price
		a.Commission += f.Commission
		out[f.Symbol] = a
	}
	return out
}

// Reset clears all stored fills.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.fills = l.fills[:0]
	l.mu.Unlock()
}
