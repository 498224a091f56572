package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestPublishDeliversToMatchingSubscribers(t *testing.T) {
	b := New(zerolog.Nop())
	b.Start()
	defer b.Stop()

	var exact, wild, other int64
	b.Subscribe("trading:signals:BTCUSDT", "exact", func(ctx context.Context, topic string, event any) {
		atomic.AddInt64(&exact, 1)
	})
	b.Subscribe("trading:signals:*", "wild", func(ctx context.Context, topic string, event any) {
		atomic.AddInt64(&wild, 1)
	})
	b.Subscribe("trading:orders:*", "other", func(ctx context.Context, topic string, event any) {
		atomic.AddInt64(&other, 1)
	})

	b.Publish("trading:signals:BTCUSDT", "payload")

	waitFor(t, time.Second, func() bool {
		return atomic.LoadInt64(&exact) == 1 && atomic.LoadInt64(&wild) == 1
	})
	if atomic.LoadInt64(&other) != 0 {
		t.Fatalf("non-matching subscriber received event")
	}
}

func TestSubscriberSeesEventsInPublishOrder(t *testing.T) {
	b := New(zerolog.Nop(), WithQueueSize(4096))
	b.Start()
	defer b.Stop()

	const n = 2000
	var mu sync.Mutex
	seen := make([]int, 0, n)
	b.Subscribe("trading:market_data:*", "ordered", func(ctx context.Context, topic string, event any) {
		mu.Lock()
		seen = append(seen, event.(int))
		mu.Unlock()
	})

	for i := 0; i < n; i++ {
		b.Publish("trading:market_data:BTCUSDT", i)
	}

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == n
	})
	mu.Lock()
	defer mu.Unlock()
	for i, got := range seen {
		if got != i {
			t.Fatalf("delivery %d out of order: got event %d", i, got)
		}
	}
}

func TestFullQueueDropsOnlyForThatSubscriber(t *testing.T) {
	b := New(zerolog.Nop(), WithQueueSize(8))
	b.Start()

	release := make(chan struct{})
	var slow, fast int64
	b.Subscribe("t:*", "slow", func(ctx context.Context, topic string, event any) {
		atomic.AddInt64(&slow, 1)
		select {
		case <-release:
		case <-ctx.Done():
		}
	})
	b.Subscribe("t:*", "fast", func(ctx context.Context, topic string, event any) {
		atomic.AddInt64(&fast, 1)
	})

	// The slow subscriber can hold at most one in-flight delivery plus a
	// full queue, so at least one of these publishes must be dropped.
	for i := 0; i < 10; i++ {
		b.Publish("t:x", i)
		time.Sleep(time.Millisecond)
	}
	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&fast) == 10 })
	close(release)
	b.Stop()

	if got := atomic.LoadInt64(&slow); got >= 10 {
		t.Fatalf("expected drops for the saturated subscriber, got %d deliveries", got)
	}
}

func TestPanickingHandlerDoesNotAffectOthers(t *testing.T) {
	b := New(zerolog.Nop())
	b.Start()
	defer b.Stop()

	var delivered int64
	b.Subscribe("trading:market_data:*", "boom", func(ctx context.Context, topic string, event any) {
		panic("handler exploded")
	})
	b.Subscribe("trading:market_data:*", "ok", func(ctx context.Context, topic string, event any) {
		atomic.AddInt64(&delivered, 1)
	})

	b.Publish("trading:market_data:ETHUSDT", 1)
	b.Publish("trading:market_data:ETHUSDT", 2)

	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&delivered) == 2 })
}

func TestSlowHandlerDoesNotBlockPublisher(t *testing.T) {
	b := New(zerolog.Nop(), WithDrainTimeout(50*time.Millisecond))
	b.Start()

	release := make(chan struct{})
	b.Subscribe("t:*", "slow", func(ctx context.Context, topic string, event any) {
		select {
		case <-release:
		case <-ctx.Done():
		}
	})

	start := time.Now()
	for i := 0; i < 10; i++ {
		b.Publish("t:x", i)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("publish blocked for %v", elapsed)
	}

	// Stop must return even though the handler never finished on its own.
	stopped := make(chan struct{})
	go func() {
		b.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("Stop did not return after drain timeout")
	}
	close(release)
}

func TestStopDrainsInFlightHandlers(t *testing.T) {
	b := New(zerolog.Nop())
	b.Start()

	var finished int64
	b.Subscribe("t:*", "worker", func(ctx context.Context, topic string, event any) {
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&finished, 1)
	})
	b.Publish("t:a", nil)
	b.Publish("t:b", nil)

	b.Stop()
	if got := atomic.LoadInt64(&finished); got != 2 {
		t.Fatalf("expected 2 handlers drained before Stop returned, got %d", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(zerolog.Nop())
	b.Start()
	defer b.Stop()

	var mu sync.Mutex
	count := 0
	id := b.Subscribe("a:*", "once", func(ctx context.Context, topic string, event any) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.Publish("a:1", nil)
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	b.Unsubscribe(id)
	b.Publish("a:2", nil)
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected no delivery after unsubscribe, got %d", count)
	}
}

func TestPublishOnStoppedBusIsDropped(t *testing.T) {
	b := New(zerolog.Nop())
	var delivered int64
	b.Subscribe("x:*", "sub", func(ctx context.Context, topic string, event any) {
		atomic.AddInt64(&delivered, 1)
	})

	b.Publish("x:1", nil) // never started
	b.Start()
	b.Stop()
	b.Publish("x:2", nil) // stopped

	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt64(&delivered) != 0 {
		t.Fatalf("expected drops outside the bus lifecycle, got %d deliveries", delivered)
	}
}

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"trading:signals:BTCUSDT", "trading:signals:BTCUSDT", true},
		{"trading:signals:BTCUSDT", "trading:signals:ETHUSDT", false},
		{"trading:signals:*", "trading:signals:ETHUSDT", true},
		{"trading:*", "trading:system:performance", true},
		{"trading:orders:*", "trading:signals:BTCUSDT", false},
		{"*", "anything", true},
	}
	for _, tc := range cases {
		if got := matchTopic(tc.pattern, tc.topic); got != tc.want {
			t.Fatalf("matchTopic(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
		}
	}
}
