package luno

import (
	"context"
	"time"

	"github.com/luno/luno-go"
	"go.uber.org/zap"

	"l2-order-book/internal/domain"
	"l2-order-book/internal/exchange"
	"l2-order-book/internal/platform/metrics"
)

type orderBookClient interface {
	GetOrderBook(ctx context.Context, req *luno.GetOrderBookRequest) (*luno.GetOrderBookResponse, error)
}

// LunoExchange polls the REST order book, which Luno serves already grouped
// by price, and hands each response to the book as a snapshot.
type LunoExchange struct {
	lunoClient   orderBookClient
	pollInterval time.Duration
	logger       *zap.Logger
	feedLogger   *zap.Logger
}

func CreateClient(id string, secret string, pollInterval time.Duration, logger, feedLogger *zap.Logger) *LunoExchange {
	lunoClient := luno.NewClient()
	if id != "" && secret != "" {
		lunoClient.SetAuth(id, secret)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if feedLogger == nil {
		feedLogger = zap.NewNop()
	}

	logger.Info("Luno client created", zap.Bool("authenticated", id != ""))

	return &LunoExchange{
		lunoClient:   lunoClient,
		pollInterval: pollInterval,
		logger:       logger,
		feedLogger:   feedLogger,
	}
}

func (lunoExchange *LunoExchange) Name() string {
	return domain.Luno.String()
}

func (lunoExchange *LunoExchange) Subscribe(ctx context.Context, pair string, w domain.BookWriter) error {
	ticker := time.NewTicker(lunoExchange.pollInterval)
	defer ticker.Stop()

	for {
		if err := lunoExchange.poll(ctx, pair, w); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &exchange.FeedError{Provider: lunoExchange.Name(), Op: "get order book", Err: err}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (lunoExchange *LunoExchange) poll(ctx context.Context, pair string, w domain.BookWriter) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := lunoExchange.lunoClient.GetOrderBook(ctx, &luno.GetOrderBookRequest{Pair: pair})
	if err != nil {
		return err
	}
	lunoExchange.feedLogger.Debug("Received Luno order book",
		zap.String("pair", pair), zap.Int("bids", len(res.Bids)), zap.Int("asks", len(res.Asks)))
	metrics.FeedMessagesTotal.WithLabelValues(lunoExchange.Name()).Inc()

	bids := aggregate(domain.Buy, res.Bids)
	asks := aggregate(domain.Sell, res.Asks)
	if err := w.ProcessSnapshot(domain.Snapshot{Bids: bids, Asks: asks}); err != nil {
		if !exchange.IsRejected(err) {
			return err
		}
		lunoExchange.logger.Warn("Luno order book rejected", zap.String("pair", pair), zap.Error(err))
	}
	return nil
}

// aggregate sums volume per price, keeping first-seen price order.
func aggregate(side domain.Side, entries []luno.OrderBookEntry) []domain.Update {
	out := make([]domain.Update, 0, len(entries))
	index := make(map[float64]int, len(entries))
	for _, e := range entries {
		price := e.Price.Float64()
		volume := e.Volume.Float64()
		if i, ok := index[price]; ok {
			out[i].Quantity += volume
			continue
		}
		index[price] = len(out)
		out = append(out, domain.Update{Price: price, Quantity: volume, Side: side})
	}
	return out
}
