package deribit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"l2-order-book/internal/domain"
	"l2-order-book/internal/exchange"
	"l2-order-book/internal/platform/metrics"
)

const (
	deribitWebsocketUrl = "wss://www.deribit.com/ws/api/v2"
	heartbeatInterval   = 30
)

type DeribitExchange struct {
	websocketUrl string
	depth        int
	logger       *zap.Logger
	feedLogger   *zap.Logger
	requestID    atomic.Int64
}

func New(depthLimit int, logger, feedLogger *zap.Logger) *DeribitExchange {
	return NewWithURL(deribitWebsocketUrl, depthLimit, logger, feedLogger)
}

func NewWithURL(url string, depthLimit int, logger, feedLogger *zap.Logger) *DeribitExchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	if feedLogger == nil {
		feedLogger = zap.NewNop()
	}
	return &DeribitExchange{websocketUrl: url, depth: depthTier(depthLimit), logger: logger, feedLogger: feedLogger}
}

func (d *DeribitExchange) Name() string {
	return domain.Deribit.String()
}

// depthTier maps a depth limit onto the depths Deribit publishes grouped
// books for: 1, 10 and 20.
func depthTier(limit int) int {
	switch {
	case limit <= 1:
		return 1
	case limit <= 10:
		return 10
	default:
		return 20
	}
}

// bookChannel is the ungrouped, depth-truncated book. Levels that fall off
// the top N are replaced by the venue in the next message.
func bookChannel(instrument string, depth int) string {
	return fmt.Sprintf("book.%s.none.%d.100ms", instrument, depth)
}

func (d *DeribitExchange) Subscribe(ctx context.Context, instrument string, w domain.BookWriter) error {
	c, _, err := websocket.Dial(ctx, d.websocketUrl, nil)
	if err != nil {
		return d.feedError("dial", err)
	}
	defer c.CloseNow()
	c.SetReadLimit(-1)

	if err := d.call(ctx, c, "public/set_heartbeat", map[string]any{"interval": heartbeatInterval}); err != nil {
		return d.feedError("set heartbeat", err)
	}
	channel := bookChannel(instrument, d.depth)
	if err := d.call(ctx, c, "public/subscribe", map[string]any{"channels": []string{channel}}); err != nil {
		return d.feedError("subscribe", err)
	}
	d.logger.Info("Subscribed to Deribit order book", zap.String("channel", channel))

	s := &session{writer: w, logger: d.logger}
	for {
		var msg rpcMessage
		_, data, err := c.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.Close(websocket.StatusNormalClosure, "")
				return nil
			}
			return d.feedError("read", err)
		}
		d.feedLogger.Debug("Received message from Deribit websocket", zap.ByteString("message", data))
		if err := json.Unmarshal(data, &msg); err != nil {
			return d.feedError("decode", err)
		}

		switch {
		case msg.Error != nil:
			return d.feedError("rpc", fmt.Errorf("code %d: %s", msg.Error.Code, msg.Error.Message))
		case msg.Method == "heartbeat":
			var hb heartbeatParams
			if err := json.Unmarshal(msg.Params, &hb); err == nil && hb.Type == "test_request" {
				if err := d.call(ctx, c, "public/test", nil); err != nil {
					return d.feedError("heartbeat", err)
				}
			}
		case msg.Method == "subscription":
			var params subscriptionParams
			if err := json.Unmarshal(msg.Params, &params); err != nil {
				return d.feedError("decode", err)
			}
			if params.Channel != channel {
				continue
			}
			metrics.FeedMessagesTotal.WithLabelValues(d.Name()).Inc()
			if err := s.handleBook(params.Data); err != nil {
				return d.feedError("book", err)
			}
		}
	}
}

func (d *DeribitExchange) call(ctx context.Context, c *websocket.Conn, method string, params any) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      d.requestID.Add(1),
		Method:  method,
		Params:  params,
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(ctx, c, req)
}

func (d *DeribitExchange) feedError(op string, err error) error {
	return &exchange.FeedError{Provider: d.Name(), Op: op, Err: err}
}

// session tracks the last change id applied in one subscription.
type session struct {
	writer       domain.BookWriter
	logger       *zap.Logger
	lastChangeID int64
}

func (s *session) handleBook(data json.RawMessage) error {
	var book bookMessage
	if err := json.Unmarshal(data, &book); err != nil {
		return err
	}
	if s.lastChangeID != 0 && book.ChangeID <= s.lastChangeID {
		s.logger.Debug("Ignoring stale Deribit book", zap.Int64("change_id", book.ChangeID), zap.Int64("last_change_id", s.lastChangeID))
		return nil
	}

	snapshot := domain.Snapshot{
		Bids: entriesToUpdates(domain.Buy, book.Bids),
		Asks: entriesToUpdates(domain.Sell, book.Asks),
	}
	if err := s.writer.ProcessSnapshot(snapshot); err != nil {
		if exchange.IsRejected(err) {
			s.logger.Warn("Deribit book rejected", zap.Int64("change_id", book.ChangeID), zap.Error(err))
			return fmt.Errorf("%w: change %d: %w", exchange.ErrResyncRequired, book.ChangeID, err)
		}
		return err
	}
	s.lastChangeID = book.ChangeID
	return nil
}

func entriesToUpdates(side domain.Side, entries []bookEntry) []domain.Update {
	out := make([]domain.Update, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.Update{Price: e.Price, Quantity: e.Amount, Side: side})
	}
	return out
}
