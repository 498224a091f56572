package report

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pulsetrader-go/internal/bus"
	"pulsetrader-go/internal/execution"
	"pulsetrader-go/internal/orders"
	"pulsetrader-go/internal/signal"
)

type stubEngine struct{}

func (stubEngine) SignalsGenerated() uint64 { return 7 }
func (stubEngine) SignalsByStrategy() map[string]uint64 {
	return map[string]uint64{"pump_dump": 4, "momentum": 3}
}

type stubOrders struct{ stats orders.Stats }

func (s stubOrders) Snapshot() orders.Stats { return s.stats }

func TestBuildComputesWinRate(t *testing.T) {
	r := New(zerolog.Nop(), bus.New(zerolog.Nop()), stubEngine{}, stubOrders{stats: orders.Stats{
		Executed: 5,
		Filled:   4,
		Wins:     3,
		Closed:   4,
		Balance:  execution.Balance{Total: 1234, UnrealizedPnL: -5},
	}}, time.Minute)

	snap := r.build()
	if snap.WinRate != 0.75 {
		t.Fatalf("expected win rate 0.75, got %.2f", snap.WinRate)
	}
	if snap.SignalsGenerated != 7 || snap.OrdersExecuted != 5 {
		t.Fatalf("unexpected counters %+v", snap)
	}
	if snap.Balance != 1234 {
		t.Fatalf("unexpected balance %.2f", snap.Balance)
	}
}

func TestBuildWithNothingClosed(t *testing.T) {
	r := New(zerolog.Nop(), bus.New(zerolog.Nop()), stubEngine{}, stubOrders{}, time.Minute)
	if snap := r.build(); snap.WinRate != 0 {
		t.Fatalf("expected win rate 0 with nothing closed, got %.2f", snap.WinRate)
	}
}

func TestApprox24hMoveBacksOutYesterdayPrice(t *testing.T) {
	b := bus.New(zerolog.Nop())
	r := New(zerolog.Nop(), b, stubEngine{}, stubOrders{}, time.Minute)

	// 103.2 after a +3.2% day: yesterday ~100, move ~3.2.
	r.onTick(context.Background(), signal.TopicMarketData("BTCUSDT"),
		signal.Tick{Symbol: "BTCUSDT", Price: 103.2, Change24h: 0.032, Ts: time.Now()})

	snap := r.build()
	move, ok := snap.Approx24hMove["BTCUSDT"]
	if !ok {
		t.Fatalf("expected move entry for BTCUSDT")
	}
	if math.Abs(move-3.2) > 1e-9 {
		t.Fatalf("expected approximate move 3.2, got %.4f", move)
	}
}

func TestPublishEmitsOnPerformanceTopic(t *testing.T) {
	b := bus.New(zerolog.Nop())
	b.Start()
	defer b.Stop()

	var mu sync.Mutex
	var got *Snapshot
	b.Subscribe(signal.TopicPerformance, "collector", func(ctx context.Context, topic string, event any) {
		if snap, ok := event.(Snapshot); ok {
			mu.Lock()
			got = &snap
			mu.Unlock()
		}
	})

	r := New(zerolog.Nop(), b, stubEngine{}, stubOrders{}, time.Minute)
	r.Publish()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := got != nil
		mu.Unlock()
		if done {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no snapshot observed on performance topic")
}
