package notify

import (
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"pulsetrader-go/internal/bus"
	"pulsetrader-go/internal/execution"
	"pulsetrader-go/internal/signal"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tgbotapi.MessageConfig, len(f.sent))
	copy(out, f.sent)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestNotifierForwardsTerminalOrders(t *testing.T) {
	b := bus.New(zerolog.Nop())
	b.Start()
	defer b.Stop()

	sender := &fakeSender{}
	n := New(zerolog.Nop(), b, sender, 42)
	n.Start()
	defer n.Stop()

	order := execution.Order{
		ID:        "ord-1",
		Symbol:    "BTCUSDT",
		Side:      signal.Buy,
		Status:    execution.StatusFilled,
		FilledQty: 0.5,
		AvgPrice:  1000,
		Strategy:  "pump_dump",
	}
	b.Publish(signal.TopicOrders(order.ID), order)

	waitFor(t, func() bool { return len(sender.messages()) == 1 })
	got := sender.messages()[0]
	if got.ChatID != 42 {
		t.Fatalf("unexpected chat id %d", got.ChatID)
	}
	if !strings.Contains(got.Text, "BTCUSDT") || !strings.Contains(got.Text, "FILLED") {
		t.Fatalf("unexpected message text: %s", got.Text)
	}
}

func TestNotifierIgnoresNonTerminalOrders(t *testing.T) {
	b := bus.New(zerolog.Nop())
	b.Start()
	defer b.Stop()

	sender := &fakeSender{}
	n := New(zerolog.Nop(), b, sender, 42)
	n.Start()
	defer n.Stop()

	b.Publish(signal.TopicOrders("ord-2"), execution.Order{
		ID: "ord-2", Symbol: "BTCUSDT", Side: signal.Buy, Status: execution.StatusSubmitted,
	})
	b.Publish(signal.TopicOrders("ord-3"), execution.Order{
		ID: "ord-3", Symbol: "BTCUSDT", Side: signal.Sell, Status: execution.StatusRejected, Err: "daily loss limit",
	})

	waitFor(t, func() bool { return len(sender.messages()) == 1 })
	got := sender.messages()[0]
	if !strings.Contains(got.Text, "rejected") || !strings.Contains(got.Text, "daily loss limit") {
		t.Fatalf("unexpected message text: %s", got.Text)
	}
}

func TestFormatOrderExpired(t *testing.T) {
	text := formatOrder(execution.Order{
		Symbol: "ETHUSDT", Side: signal.Buy, Status: execution.StatusExpired,
	})
	if !strings.Contains(text, "EXPIRED") || !strings.Contains(text, "ETHUSDT") {
		t.Fatalf("unexpected text: %s", text)
	}
}
