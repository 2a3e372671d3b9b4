package bitstamp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"l2-order-book/internal/domain"
	"l2-order-book/internal/exchange"
	"l2-order-book/internal/platform/metrics"
)

const bitstampWebsocketUrl = "wss://ws.bitstamp.net"

type BitstampExchange struct {
	websocketUrl string
	logger       *zap.Logger
	feedLogger   *zap.Logger
}

type subscribeMessage struct {
	Event string        `json:"event"`
	Data  subscribeData `json:"data"`
}

type subscribeData struct {
	Channel string `json:"channel"`
}

type event struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type orderBookData struct {
	Timestamp      string     `json:"timestamp"`
	Microtimestamp string     `json:"microtimestamp"`
	Bids           [][]string `json:"bids"`
	Asks           [][]string `json:"asks"`
}

func New(logger, feedLogger *zap.Logger) *BitstampExchange {
	return NewWithURL(bitstampWebsocketUrl, logger, feedLogger)
}

func NewWithURL(url string, logger, feedLogger *zap.Logger) *BitstampExchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	if feedLogger == nil {
		feedLogger = zap.NewNop()
	}
	return &BitstampExchange{websocketUrl: url, logger: logger, feedLogger: feedLogger}
}

func (b *BitstampExchange) Name() string {
	return domain.Bitstamp.String()
}

// NormalizePair turns "BTC-USD", "btc/usd" or "BTC_USD" into "btcusd".
func NormalizePair(instrument string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '/', '_', ' ':
			return -1
		}
		return r
	}, strings.ToLower(instrument))
}

func (b *BitstampExchange) Subscribe(ctx context.Context, instrument string, w domain.BookWriter) error {
	channel := "order_book_" + NormalizePair(instrument)

	c, _, err := websocket.Dial(ctx, b.websocketUrl, nil)
	if err != nil {
		return b.feedError("dial", err)
	}
	defer c.CloseNow()
	c.SetReadLimit(-1)

	if err := b.send(ctx, c, "bts:subscribe", channel); err != nil {
		return b.feedError("subscribe", err)
	}
	b.logger.Info("Subscribed to Bitstamp order book", zap.String("channel", channel))

	for {
		var ev event
		_, data, err := c.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				b.unsubscribe(c, channel)
				return nil
			}
			return b.feedError("read", err)
		}
		b.feedLogger.Debug("Received message from Bitstamp websocket", zap.ByteString("message", data))
		if err := json.Unmarshal(data, &ev); err != nil {
			return b.feedError("decode", err)
		}

		switch ev.Event {
		case "data":
			if ev.Channel != channel {
				continue
			}
			metrics.FeedMessagesTotal.WithLabelValues(b.Name()).Inc()
			if err := b.handleSnapshot(ev.Data, w); err != nil {
				return b.feedError("book", err)
			}
		case "bts:request_reconnect":
			return exchange.ErrReconnectRequested
		case "bts:subscription_succeeded":
			b.logger.Debug("Bitstamp subscription confirmed", zap.String("channel", ev.Channel))
		case "bts:error":
			return b.feedError("subscribe", fmt.Errorf("venue error: %s", ev.Data))
		}
	}
}

func (b *BitstampExchange) handleSnapshot(data json.RawMessage, w domain.BookWriter) error {
	var book orderBookData
	if err := json.Unmarshal(data, &book); err != nil {
		return err
	}
	bids, err := exchange.ParseStringLevels(domain.Buy, book.Bids)
	if err != nil {
		return fmt.Errorf("bids: %w", err)
	}
	asks, err := exchange.ParseStringLevels(domain.Sell, book.Asks)
	if err != nil {
		return fmt.Errorf("asks: %w", err)
	}
	if err := w.ProcessSnapshot(domain.Snapshot{Bids: bids, Asks: asks}); err != nil {
		if !exchange.IsRejected(err) {
			return err
		}
		b.logger.Warn("Bitstamp snapshot rejected", zap.String("microtimestamp", book.Microtimestamp), zap.Error(err))
	}
	return nil
}

func (b *BitstampExchange) send(ctx context.Context, c *websocket.Conn, event, channel string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(ctx, c, subscribeMessage{Event: event, Data: subscribeData{Channel: channel}})
}

// unsubscribe runs after the session context is gone, so it uses its own.
func (b *BitstampExchange) unsubscribe(c *websocket.Conn, channel string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.send(ctx, c, "bts:unsubscribe", channel); err != nil {
		b.logger.Debug("Bitstamp unsubscribe failed", zap.Error(err))
	} else {
		b.logger.Info("Unsubscribed from Bitstamp order book", zap.String("channel", channel))
	}
	c.Close(websocket.StatusNormalClosure, "")
}

func (b *BitstampExchange) feedError(op string, err error) error {
	return &exchange.FeedError{Provider: b.Name(), Op: op, Err: err}
}
