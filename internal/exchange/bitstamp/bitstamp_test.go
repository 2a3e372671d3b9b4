package bitstamp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"l2-order-book/internal/exchange"
	"l2-order-book/internal/orderbook"
)

func TestNormalizePair(t *testing.T) {
	assert.Equal(t, "btcusd", NormalizePair("BTC-USD"))
	assert.Equal(t, "ethusd", NormalizePair("eth/usd"))
	assert.Equal(t, "xrpeur", NormalizePair("XRP_EUR"))
	assert.Equal(t, "btcusd", NormalizePair("btcusd"))
}

func TestHandleSnapshot(t *testing.T) {
	book, err := orderbook.NewSharedOrderBook(2, zaptest.NewLogger(t))
	require.NoError(t, err)
	b := New(zaptest.NewLogger(t), nil)

	data := `{"timestamp":"1700000000","microtimestamp":"1700000000000000",
	 "bids":[["100.10","0.5"],["100.20","1.25"],["99.00","3"]],
	 "asks":[["100.30","2"],["100.40","0.1"]]}`
	require.NoError(t, b.handleSnapshot(json.RawMessage(data), book))

	assert.Equal(t, []float64{100.2, 100.1}, book.GetBids())
	assert.Equal(t, []float64{100.3, 100.4}, book.GetAsks())
}

func TestHandleSnapshotBadNumber(t *testing.T) {
	book, err := orderbook.NewSharedOrderBook(10, nil)
	require.NoError(t, err)
	b := New(nil, nil)

	err = b.handleSnapshot(json.RawMessage(`{"bids":[["x","1"]],"asks":[]}`), book)
	assert.Error(t, err)
	assert.Zero(t, book.Sequence())
}

func fakeBitstamp(t *testing.T, subscribed chan<- string, events ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(rw, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx := r.Context()

		var sub subscribeMessage
		if err := wsjson.Read(ctx, c, &sub); err != nil {
			return
		}
		subscribed <- sub.Event + " " + sub.Data.Channel
		for _, ev := range events {
			if err := c.Write(ctx, websocket.MessageText, []byte(ev)); err != nil {
				return
			}
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
	}))
}

func TestSubscribeAppliesSnapshotsUntilReconnectRequest(t *testing.T) {
	subscribed := make(chan string, 1)
	srv := fakeBitstamp(t, subscribed,
		`{"event":"bts:subscription_succeeded","channel":"order_book_btcusd","data":{}}`,
		`{"event":"data","channel":"order_book_btcusd","data":{"bids":[["100","1"]],"asks":[["101","1"]]}}`,
		`{"event":"data","channel":"order_book_ethusd","data":{"bids":[["5","1"]],"asks":[]}}`,
		`{"event":"data","channel":"order_book_btcusd","data":{"bids":[["100.5","2"]],"asks":[["101","1"]]}}`,
		`{"event":"bts:request_reconnect","channel":"","data":""}`,
	)
	defer srv.Close()

	book, err := orderbook.NewSharedOrderBook(10, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b := NewWithURL("ws"+strings.TrimPrefix(srv.URL, "http"), zaptest.NewLogger(t), nil)
	err = b.Subscribe(ctx, "BTC-USD", book)

	assert.ErrorIs(t, err, exchange.ErrReconnectRequested)
	assert.Equal(t, "bts:subscribe order_book_btcusd", <-subscribed)
	assert.Equal(t, []float64{100.5}, book.GetBids())
	assert.Equal(t, uint64(2), book.Sequence())
}
