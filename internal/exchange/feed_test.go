package exchange

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pulsetrader-go/internal/signal"
)

func TestFeedRunEmitsTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewFeed(ProviderStub, []string{"BTCUSDT"}, zerolog.Nop())
	ticks := make(chan signal.Tick, 1)

	go func() {
		_ = feed.Run(ctx, ticks)
	}()

	select {
	case tk := <-ticks:
		if tk.Symbol != "BTCUSDT" {
			t.Fatalf("unexpected symbol %s", tk.Symbol)
		}
		if tk.Volume <= 0 {
			t.Fatalf("expected positive volume")
		}
		cancel()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick")
	}
}

func TestSetSymbolsNormalizes(t *testing.T) {
	feed := NewFeed(ProviderStub, []string{" ethusdt ", "BTCUSDT", "btcusdt", ""}, zerolog.Nop())
	got := feed.snapshotSymbols()
	if len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "ETHUSDT" {
		t.Fatalf("unexpected symbols: %v", got)
	}
}

func TestTickFromTicker(t *testing.T) {
	feed := NewFeed(ProviderBinance, []string{"BTCUSDT"}, zerolog.Nop())

	tick, ok := feed.tickFromTicker(binanceTicker{
		Symbol:        "btcusdt",
		LastPrice:     "103.2",
		Volume:        "2500",
		ChangePercent: "3.200",
		EventTime:     1700000000000,
	})
	if !ok {
		t.Fatalf("expected valid tick")
	}
	if tick.Symbol != "BTCUSDT" {
		t.Fatalf("unexpected symbol %s", tick.Symbol)
	}
	if math.Abs(tick.Change24h-0.032) > 1e-9 {
		t.Fatalf("expected change24h 0.032, got %.6f", tick.Change24h)
	}
	if tick.Volume != 2500 {
		t.Fatalf("unexpected volume %.1f", tick.Volume)
	}

	if _, ok := feed.tickFromTicker(binanceTicker{Symbol: "X", LastPrice: "bogus"}); ok {
		t.Fatalf("expected invalid price to be dropped")
	}
	if _, ok := feed.tickFromTicker(binanceTicker{Symbol: "X", LastPrice: "0"}); ok {
		t.Fatalf("expected zero price to be dropped")
	}
}

func TestRunBinanceEmitsTick(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg := `{"stream":"btcusdt@ticker","data":{"s":"BTCUSDT","c":"103.2","v":"2500","P":"3.200","E":1700000000000}}`
		for {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	feed := NewFeed(ProviderBinance, []string{"BTCUSDT"}, zerolog.Nop(), WithWebsocketURL(wsURL))

	ticks := make(chan signal.Tick, 1)
	errCh := make(chan error, 1)
	go func() {
		if err := feed.Run(ctx, ticks); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case tk := <-ticks:
		if tk.Symbol != "BTCUSDT" || tk.Price != 103.2 {
			t.Fatalf("unexpected tick: %+v", tk)
		}
		cancel()
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatalf("timed out waiting for tick")
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("feed returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("feed did not stop after cancel")
	}
}
