// Package feed streams live trade prices from an exchange WebSocket into a
// channel of price ticks for the trader.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/gridbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// subscribeCommand is the JSON command sent to subscribe to trade updates.
type subscribeCommand struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel"`
	Symbols []string `json:"symbols"`
}

// tradeMessage is the wire shape of one trade update. Exchanges send price as
// a string to avoid float truncation.
type tradeMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Time   string `json:"time"`
}

// TradeFeed connects to an exchange trade WebSocket, subscribes to a single
// symbol, and publishes each trade as a price tick. It reconnects with
// exponential backoff on disconnect.
type TradeFeed struct {
	wsURL   string
	symbol  string
	backoff time.Duration
	out     chan<- domain.PriceTick
	logger  *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewTradeFeed creates a feed publishing ticks for the given symbol to out.
// backoff is the initial reconnect delay; it doubles per failed attempt up to
// a fixed cap.
func NewTradeFeed(wsURL, symbol string, backoff time.Duration, out chan<- domain.PriceTick, logger *slog.Logger) *TradeFeed {
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return &TradeFeed{
		wsURL:   wsURL,
		symbol:  symbol,
		backoff: backoff,
		out:     out,
		logger:  logger.With(slog.String("component", "trade_feed")),
		done:    make(chan struct{}),
	}
}

// Run connects and streams trades until ctx is cancelled or Close is called.
func (f *TradeFeed) Run(ctx context.Context) error {
	delay := f.backoff
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// Close stops the feed.
func (f *TradeFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

// runConnection holds one WebSocket session: dial, subscribe, read until the
// connection drops or the context ends.
func (f *TradeFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	sub := subscribeCommand{Type: "subscribe", Channel: "trades", Symbols: []string{f.symbol}}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("subscribed", slog.String("symbol", f.symbol))

	// Ping loop and context watcher; closing the connection unblocks the
	// read loop below.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-f.done:
				conn.Close()
				return
			case <-stop:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-f.done:
				return nil
			default:
			}
			return fmt.Errorf("feed: read: %w: %v", domain.ErrWSDisconnect, err)
		}

		tick, ok := parseTrade(data)
		if !ok {
			continue
		}
		if tick.Symbol != f.symbol {
			continue
		}

		select {
		case f.out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		}
	}
}

// parseTrade decodes one wire message into a tick. Non-trade messages and
// unparseable prices are skipped.
func parseTrade(data []byte) (domain.PriceTick, bool) {
	var msg tradeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.PriceTick{}, false
	}
	if msg.Type != "trade" || msg.Price == "" {
		return domain.PriceTick{}, false
	}
	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil || price <= 0 {
		return domain.PriceTick{}, false
	}
	ts, err := time.Parse(time.RFC3339, msg.Time)
	if err != nil {
		ts = time.Now().UTC()
	}
	return domain.PriceTick{Symbol: msg.Symbol, Price: price, Ts: ts}, true
}
