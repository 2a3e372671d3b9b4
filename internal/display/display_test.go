package display

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"l2-order-book/internal/domain"
	"l2-order-book/internal/orderbook"
)

func newBook(t *testing.T) *orderbook.SharedOrderBook {
	t.Helper()
	book, err := orderbook.NewSharedOrderBook(10, nil)
	require.NoError(t, err)
	return book
}

func TestDrawEmptyBook(t *testing.T) {
	var out bytes.Buffer
	New(newBook(t), &out, false, "deribit BTC-PERPETUAL", 10, time.Second).Draw()

	s := out.String()
	assert.Contains(t, s, "deribit BTC-PERPETUAL")
	assert.Contains(t, s, "updated never")
	assert.NotContains(t, s, "\x1b[")
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	assert.Equal(t, "Ask Price", strings.TrimSpace(lines[len(lines)-1][:columnWidth]))
}

func TestDrawLadder(t *testing.T) {
	book := newBook(t)
	require.NoError(t, book.ProcessSnapshot(domain.Snapshot{
		Bids: []domain.Update{{Price: 100, Quantity: 1}, {Price: 99.5, Quantity: 2}, {Price: 99, Quantity: 3}},
		Asks: []domain.Update{{Price: 101, Quantity: 0.25}},
	}))

	var out bytes.Buffer
	New(book, &out, false, "book", 2, time.Second).Draw()

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	ladder := lines[len(lines)-2:]
	assert.Equal(t, []string{"101", "0.25", "100", "1"}, strings.Fields(ladder[0]))
	assert.Equal(t, []string{"99.5", "2"}, strings.Fields(ladder[1]))
	assert.Contains(t, out.String(), "sequence 1")
	assert.Equal(t, []string{"101", "100", "1"}, strings.Fields(lines[5]))
}

func TestDrawWithColors(t *testing.T) {
	book := newBook(t)
	require.NoError(t, book.ProcessUpdate(domain.Update{Price: 100, Quantity: 1, Side: domain.Buy}))

	var out bytes.Buffer
	New(book, &out, true, "book", 10, time.Second).Draw()

	s := out.String()
	assert.True(t, strings.HasPrefix(s, clearHome))
	assert.Contains(t, s, colorRed+"100")
}

func TestRunStopsOnCancel(t *testing.T) {
	var out bytes.Buffer
	d := New(newBook(t), &out, false, "book", 10, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	assert.Greater(t, strings.Count(out.String(), "Order Book"), 1)
}
