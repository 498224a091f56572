package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"pulsetrader-go/internal/metrics"
	"pulsetrader-go/internal/signal"
)

type binanceEnvelope struct {
	Stream string        `json:"stream"`
	Data   binanceTicker `json:"data"`
}

// binanceTicker is the rolling 24h statistics payload from <symbol>@ticker.
type binanceTicker struct {
	Symbol        string `json:"s"`
	LastPrice     string `json:"c"`
	Volume        string `json:"v"`
	ChangePercent string `json:"P"`
	EventTime     int64  `json:"E"`
}

func (f *Feed) runBinance(ctx context.Context, out chan<- signal.Tick) error {
	symbols := f.snapshotSymbols()
	if len(symbols) == 0 {
		return fmt.Errorf("binance feed requires at least one symbol")
	}

	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		streams[i] = strings.ToLower(sym) + "@ticker"
	}

	url := fmt.Sprintf("%s?streams=%s", f.wsURL, strings.Join(streams, "/"))
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consumeBinanceStream(ctx, url, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Msg("binance feed disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (f *Feed) consumeBinanceStream(ctx context.Context, url string, out chan<- signal.Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Str("provider", ProviderBinance).Strs("symbols", f.snapshotSymbols()).Msg("connected market data feed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env binanceEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			f.log.Warn().Err(err).Msg("failed to decode binance message")
			continue
		}

		tick, ok := f.tickFromTicker(env.Data)
		if !ok {
			continue
		}

		select {
		case out <- tick:
			metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Feed) tickFromTicker(data binanceTicker) (signal.Tick, bool) {
	px, err := strconv.ParseFloat(data.LastPrice, 64)
	if err != nil || px <= 0 {
		f.log.Warn().Str("symbol", data.Symbol).Msg("invalid price from binance")
		return signal.Tick{}, false
	}
	vol, err := strconv.ParseFloat(data.Volume, 64)
	if err != nil {
		f.log.Warn().Str("symbol", data.Symbol).Msg("invalid volume from binance")
		return signal.Tick{}, false
	}
	changePct, err := strconv.ParseFloat(data.ChangePercent, 64)
	if err != nil {
		changePct = 0
	}
	return signal.Tick{
		Symbol:    strings.ToUpper(data.Symbol),
		Price:     px,
		Volume:    vol,
		Change24h: changePct / 100,
		Ts:        time.UnixMilli(data.EventTime),
	}, true
}
