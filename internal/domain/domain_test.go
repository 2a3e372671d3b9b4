package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	for _, in := range []string{"buy", "BID", " bids ", "Buy"} {
		side, err := ParseSide(in)
		require.NoError(t, err, in)
		assert.Equal(t, Buy, side)
	}
	for _, in := range []string{"sell", "Ask", "ASKS"} {
		side, err := ParseSide(in)
		require.NoError(t, err, in)
		assert.Equal(t, Sell, side)
	}
	for _, in := range []string{"", "long", "b"} {
		_, err := ParseSide(in)
		assert.ErrorIs(t, err, ErrInvalidSide, in)
	}
}

func TestSideText(t *testing.T) {
	out, err := json.Marshal(struct{ Side Side }{Sell})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Side":"sell"}`, string(out))

	var in struct{ Side Side }
	require.NoError(t, json.Unmarshal([]byte(`{"Side":"bid"}`), &in))
	assert.Equal(t, Buy, in.Side)

	_, err = Side(4).MarshalText()
	assert.ErrorIs(t, err, ErrInvalidSide)
	assert.Equal(t, "Side(4)", Side(4).String())
}

func TestPriceLevelValidate(t *testing.T) {
	assert.NoError(t, PriceLevel{Price: 100, Quantity: 1}.Validate())
	assert.NoError(t, PriceLevel{Price: 0, Quantity: 0}.Validate())

	for _, l := range []PriceLevel{
		{Price: math.NaN(), Quantity: 1},
		{Price: math.Inf(-1), Quantity: 1},
		{Price: -0.5, Quantity: 1},
		{Price: 1, Quantity: math.NaN()},
		{Price: 1, Quantity: -1},
	} {
		assert.ErrorIs(t, l.Validate(), ErrInvalidLevel)
	}
}

func TestUpdateValidate(t *testing.T) {
	u := Update{Price: 100, Quantity: 2, Side: Sell}
	require.NoError(t, u.Validate())
	assert.Equal(t, PriceLevel{Price: 100, Quantity: 2}, u.Level())

	assert.ErrorIs(t, Update{Price: 100, Quantity: 2, Side: Side(9)}.Validate(), ErrInvalidSide)
	assert.ErrorIs(t, Update{Price: 100, Quantity: -2, Side: Buy}.Validate(), ErrInvalidLevel)
}

func TestSnapshotLen(t *testing.T) {
	snap := Snapshot{Bids: []Update{{Price: 1, Quantity: 1}}, Asks: []Update{{Price: 2, Quantity: 1}, {Price: 3, Quantity: 1}}}
	assert.Equal(t, 3, snap.Len())
	assert.Zero(t, Snapshot{}.Len())
}

func TestTopOfBook(t *testing.T) {
	top := TopOfBook{BestBid: 100, HasBid: true, BestAsk: 100, HasAsk: true}
	assert.True(t, top.Crossed())
	spread, ok := top.Spread()
	assert.True(t, ok)
	assert.Zero(t, spread)

	oneSided := TopOfBook{BestBid: 100, HasBid: true}
	assert.False(t, oneSided.Crossed())
	_, ok = oneSided.Spread()
	assert.False(t, ok)
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider("DERIBIT")
	require.NoError(t, err)
	assert.Equal(t, Deribit, p)

	text, err := Kucoin.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "kucoin", string(text))

	var parsed ProviderEnum
	require.NoError(t, parsed.UnmarshalText([]byte("luno")))
	assert.Equal(t, Luno, parsed)

	_, err = ParseProvider("binance")
	assert.Error(t, err)
	assert.Equal(t, "Provider(9)", ProviderEnum(9).String())
}
