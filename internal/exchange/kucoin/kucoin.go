package kucoin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Kucoin/kucoin-go-sdk"
	"go.uber.org/zap"

	"l2-order-book/internal/domain"
	"l2-order-book/internal/exchange"
	"l2-order-book/internal/platform/metrics"
)

type KucoinExchange struct {
	apiService *kucoin.ApiService
	depthLimit int
	logger     *zap.Logger
	feedLogger *zap.Logger
}

type depthData struct {
	Asks      [][]string `json:"asks"`
	Bids      [][]string `json:"bids"`
	Timestamp int64      `json:"timestamp"`
}

// New uses KC_* environment variables for the REST endpoint, as the SDK does.
func New(depthLimit int, logger, feedLogger *zap.Logger) *KucoinExchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	if feedLogger == nil {
		feedLogger = zap.NewNop()
	}
	return &KucoinExchange{
		apiService: kucoin.NewApiServiceFromEnv(),
		depthLimit: depthLimit,
		logger:     logger,
		feedLogger: feedLogger,
	}
}

func (k *KucoinExchange) Name() string {
	return domain.Kucoin.String()
}

// DepthTopic picks the smallest depth channel that covers the book.
func DepthTopic(instrument string, depthLimit int) string {
	symbol := strings.ToUpper(instrument)
	if depthLimit <= 5 {
		return "/spotMarket/level2Depth5:" + symbol
	}
	return "/spotMarket/level2Depth50:" + symbol
}

func (k *KucoinExchange) Subscribe(ctx context.Context, instrument string, w domain.BookWriter) error {
	rsp, err := k.apiService.WebSocketPublicToken()
	if err != nil {
		return k.feedError("token", err)
	}
	tk := &kucoin.WebSocketTokenModel{}
	if err := rsp.ReadData(tk); err != nil {
		return k.feedError("token", err)
	}

	c := k.apiService.NewWebSocketClient(tk)
	mc, ec, err := c.Connect()
	if err != nil {
		return k.feedError("connect", err)
	}
	defer c.Stop()

	topic := DepthTopic(instrument, k.depthLimit)
	if err := c.Subscribe(kucoin.NewSubscribeMessage(topic, false)); err != nil {
		return k.feedError("subscribe", err)
	}
	k.logger.Info("Subscribed to KuCoin order book", zap.String("topic", topic))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-ec:
			return k.feedError("read", err)
		case msg, ok := <-mc:
			if !ok {
				return k.feedError("read", errors.New("message channel closed"))
			}
			if msg.Topic != topic {
				continue
			}
			k.feedLogger.Debug("Received message from KuCoin websocket", zap.ByteString("message", msg.RawData))
			metrics.FeedMessagesTotal.WithLabelValues(k.Name()).Inc()
			if err := k.handleDepth(msg.RawData, w); err != nil {
				return k.feedError("book", err)
			}
		}
	}
}

// handleDepth applies one depth message. Each one is a full top-N snapshot.
func (k *KucoinExchange) handleDepth(raw json.RawMessage, w domain.BookWriter) error {
	var data depthData
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}
	bids, err := exchange.ParseStringLevels(domain.Buy, data.Bids)
	if err != nil {
		return fmt.Errorf("bids: %w", err)
	}
	asks, err := exchange.ParseStringLevels(domain.Sell, data.Asks)
	if err != nil {
		return fmt.Errorf("asks: %w", err)
	}
	if err := w.ProcessSnapshot(domain.Snapshot{Bids: bids, Asks: asks}); err != nil {
		if !exchange.IsRejected(err) {
			return err
		}
		k.logger.Warn("KuCoin snapshot rejected", zap.Int64("timestamp", data.Timestamp), zap.Error(err))
	}
	return nil
}

func (k *KucoinExchange) feedError(op string, err error) error {
	return &exchange.FeedError{Provider: k.Name(), Op: op, Err: err}
}
