// Package notify pushes execution alerts to Telegram.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"pulsetrader-go/internal/bus"
	"pulsetrader-go/internal/execution"
	"pulsetrader-go/internal/signal"
)

// Sender is the slice of the Telegram bot API the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier forwards order status changes from the event bus to a chat.
// Only terminal statuses are forwarded; intermediate churn stays in logs.
type Notifier struct {
	log    zerolog.Logger
	bus    *bus.Bus
	sender Sender
	chatID int64
	subID  uint64
}

// New wires a notifier around an authorized bot client.
func New(log zerolog.Logger, b *bus.Bus, sender Sender, chatID int64) *Notifier {
	return &Notifier{
		log:    log.With().Str("component", "notify").Logger(),
		bus:    b,
		sender: sender,
		chatID: chatID,
	}
}

// NewFromToken authorizes against Telegram and returns a notifier, or an
// error when the token is rejected.
func NewFromToken(log zerolog.Logger, b *bus.Bus, token string, chatID int64) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	log.Info().Str("account", bot.Self.UserName).Msg("telegram notifications enabled")
	return New(log, b, bot, chatID), nil
}

// Start subscribes to order status topics.
func (n *Notifier) Start() {
	n.subID = n.bus.Subscribe(signal.PatternOrders, "notify", n.onOrder)
}

// Stop detaches from the bus.
func (n *Notifier) Stop() {
	n.bus.Unsubscribe(n.subID)
}

func (n *Notifier) onOrder(ctx context.Context, topic string, event any) {
	order, ok := event.(execution.Order)
	if !ok {
		return
	}
	if !order.Status.Terminal() {
		return
	}

	msg := tgbotapi.NewMessage(n.chatID, formatOrder(order))
	if _, err := n.sender.Send(msg); err != nil {
		n.log.Warn().Err(err).Str("order_id", order.ID).Msg("telegram send failed")
	}
}

func formatOrder(order execution.Order) string {
	switch order.Status {
	case execution.StatusFilled, execution.StatusPartiallyFilled:
		return fmt.Sprintf("%s %s %s %.6f @ %.4f (%s, %s)",
			statusEmoji(order.Status), order.Side, order.Symbol,
			order.FilledQty, order.AvgPrice, order.Status, order.Strategy)
	case execution.StatusRejected:
		reason := order.Err
		if reason == "" {
			reason = "unknown"
		}
		return fmt.Sprintf("%s %s %s rejected: %s",
			statusEmoji(order.Status), order.Side, order.Symbol, reason)
	default:
		return fmt.Sprintf("%s %s %s %s",
			statusEmoji(order.Status), order.Side, order.Symbol, order.Status)
	}
}

func statusEmoji(status execution.Status) string {
	switch status {
	case execution.StatusFilled:
		return "✅"
	case execution.StatusPartiallyFilled:
		return "🟡"
	case execution.StatusRejected:
		return "🛑"
	case execution.StatusExpired:
		return "⌛"
	default:
		return "ℹ️"
	}
}
