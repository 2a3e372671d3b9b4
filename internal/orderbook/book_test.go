package orderbook

import (
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"l2-order-book/internal/domain"
)

func newTestBook(t *testing.T, depth int) *Book {
	t.Helper()
	b, err := NewBook(depth)
	require.NoError(t, err)
	return b
}

func lv(price, qty float64) domain.PriceLevel {
	return domain.PriceLevel{Price: price, Quantity: qty}
}

func collect(b *Book, side domain.Side) []domain.PriceLevel {
	var out []domain.PriceLevel
	for p, q := range b.Levels(side) {
		out = append(out, lv(p, q))
	}
	return out
}

func TestNewBookRejectsNonPositiveDepth(t *testing.T) {
	for _, depth := range []int{0, -1} {
		_, err := NewBook(depth)
		assert.ErrorIs(t, err, ErrInvalidDepthLimit)
	}
}

func TestEmptyBookHasNoBestPrices(t *testing.T) {
	b := newTestBook(t, 10)

	_, ok := b.BestBid()
	assert.False(t, ok)
	_, ok = b.BestAsk()
	assert.False(t, ok)
	assert.Empty(t, collect(b, domain.Buy))
	assert.Empty(t, collect(b, domain.Sell))
}

func TestApplySnapshot(t *testing.T) {
	b := newTestBook(t, 10)

	err := b.ApplySnapshot(
		[]domain.PriceLevel{lv(100, 1), lv(101, 2)},
		[]domain.PriceLevel{lv(102, 1), lv(103, 2)},
	)
	require.NoError(t, err)

	assert.Equal(t, 2, b.Len(domain.Buy))
	assert.Equal(t, 2, b.Len(domain.Sell))
	bid, ok := b.BestBid()
	assert.True(t, ok)
	assert.Equal(t, 101.0, bid)
	ask, ok := b.BestAsk()
	assert.True(t, ok)
	assert.Equal(t, 102.0, ask)
}

func TestApplySnapshotReplacesPreviousState(t *testing.T) {
	b := newTestBook(t, 10)
	require.NoError(t, b.ApplySnapshot([]domain.PriceLevel{lv(90, 1), lv(91, 1)}, []domain.PriceLevel{lv(95, 1)}))
	require.NoError(t, b.ApplySnapshot([]domain.PriceLevel{lv(100, 3)}, nil))

	assert.Equal(t, []domain.PriceLevel{lv(100, 3)}, collect(b, domain.Buy))
	assert.Empty(t, collect(b, domain.Sell))
	_, ok := b.BestAsk()
	assert.False(t, ok)
}

func TestApplySnapshotIsIdempotent(t *testing.T) {
	b := newTestBook(t, 3)
	bids := []domain.PriceLevel{lv(10, 1), lv(12, 2), lv(11, 3), lv(9, 4)}
	asks := []domain.PriceLevel{lv(15, 1), lv(13, 2), lv(14, 3), lv(16, 4)}

	require.NoError(t, b.ApplySnapshot(bids, asks))
	firstBids, firstAsks := collect(b, domain.Buy), collect(b, domain.Sell)
	firstBid, _ := b.BestBid()
	firstAsk, _ := b.BestAsk()

	require.NoError(t, b.ApplySnapshot(bids, asks))
	assert.Equal(t, firstBids, collect(b, domain.Buy))
	assert.Equal(t, firstAsks, collect(b, domain.Sell))
	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	assert.Equal(t, firstBid, bid)
	assert.Equal(t, firstAsk, ask)
}

func TestApplySnapshotEnforcesDepth(t *testing.T) {
	b := newTestBook(t, 2)
	require.NoError(t, b.ApplySnapshot(
		[]domain.PriceLevel{lv(100, 1), lv(103, 1), lv(101, 1), lv(102, 1)},
		[]domain.PriceLevel{lv(110, 1), lv(107, 1), lv(109, 1), lv(108, 1)},
	))

	assert.Equal(t, []domain.PriceLevel{lv(103, 1), lv(102, 1)}, collect(b, domain.Buy))
	assert.Equal(t, []domain.PriceLevel{lv(107, 1), lv(108, 1)}, collect(b, domain.Sell))
	assert.Equal(t, uint64(4), b.Evicted())
}

func TestApplySnapshotSkipsZeroQuantity(t *testing.T) {
	b := newTestBook(t, 10)
	require.NoError(t, b.ApplySnapshot([]domain.PriceLevel{lv(100, 0), lv(99, 1)}, nil))

	assert.Equal(t, []domain.PriceLevel{lv(99, 1)}, collect(b, domain.Buy))
}

func TestApplySnapshotRejectsInvalidLevelAndKeepsState(t *testing.T) {
	b := newTestBook(t, 10)
	require.NoError(t, b.ApplySnapshot([]domain.PriceLevel{lv(100, 1)}, []domain.PriceLevel{lv(101, 1)}))

	err := b.ApplySnapshot([]domain.PriceLevel{lv(50, 1)}, []domain.PriceLevel{lv(60, 1), lv(math.NaN(), 1)})
	assert.ErrorIs(t, err, domain.ErrInvalidLevel)

	assert.Equal(t, []domain.PriceLevel{lv(100, 1)}, collect(b, domain.Buy))
	assert.Equal(t, []domain.PriceLevel{lv(101, 1)}, collect(b, domain.Sell))
}

func TestApplyUpdateInsertAndOverwrite(t *testing.T) {
	b := newTestBook(t, 10)
	require.NoError(t, b.ApplyUpdate(lv(100, 1), domain.Buy))
	require.NoError(t, b.ApplyUpdate(lv(100, 5), domain.Buy))

	assert.Equal(t, []domain.PriceLevel{lv(100, 5)}, collect(b, domain.Buy))
}

func TestApplyUpdateAddThenRemove(t *testing.T) {
	b := newTestBook(t, 10)
	require.NoError(t, b.ApplyUpdate(lv(100, 1), domain.Buy))
	require.NoError(t, b.ApplyUpdate(lv(100, 0), domain.Buy))

	_, ok := b.BestBid()
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len(domain.Buy))
}

func TestApplyUpdateRemoveAbsentIsNoop(t *testing.T) {
	b := newTestBook(t, 10)
	require.NoError(t, b.ApplyUpdate(lv(100, 1), domain.Sell))
	require.NoError(t, b.ApplyUpdate(lv(99, 0), domain.Sell))

	assert.Equal(t, []domain.PriceLevel{lv(100, 1)}, collect(b, domain.Sell))
	ask, ok := b.BestAsk()
	assert.True(t, ok)
	assert.Equal(t, 100.0, ask)
}

func TestApplyUpdateRemovalRecomputesBest(t *testing.T) {
	b := newTestBook(t, 10)
	require.NoError(t, b.ApplySnapshot(
		[]domain.PriceLevel{lv(100, 1), lv(101, 1)},
		[]domain.PriceLevel{lv(102, 1), lv(103, 1)},
	))

	require.NoError(t, b.ApplyUpdate(lv(101, 0), domain.Buy))
	require.NoError(t, b.ApplyUpdate(lv(102, 0), domain.Sell))

	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	assert.Equal(t, 100.0, bid)
	assert.Equal(t, 103.0, ask)
}

func TestEvictionKeepsMostCompetitiveBids(t *testing.T) {
	b := newTestBook(t, 2)
	require.NoError(t, b.ApplyUpdate(lv(100, 1), domain.Buy))
	require.NoError(t, b.ApplyUpdate(lv(101, 1), domain.Buy))
	require.NoError(t, b.ApplyUpdate(lv(102, 1), domain.Buy))

	assert.Equal(t, 2, b.Len(domain.Buy))
	assert.True(t, b.Has(domain.Buy, 101))
	assert.True(t, b.Has(domain.Buy, 102))
	assert.False(t, b.Has(domain.Buy, 100))
}

func TestEvictionKeepsMostCompetitiveAsks(t *testing.T) {
	b := newTestBook(t, 2)
	require.NoError(t, b.ApplyUpdate(lv(102, 1), domain.Sell))
	require.NoError(t, b.ApplyUpdate(lv(101, 1), domain.Sell))
	require.NoError(t, b.ApplyUpdate(lv(100, 1), domain.Sell))

	assert.Equal(t, []domain.PriceLevel{lv(100, 1), lv(101, 1)}, collect(b, domain.Sell))
}

func TestEvictionCanDropTheIncomingLevel(t *testing.T) {
	b := newTestBook(t, 2)
	require.NoError(t, b.ApplyUpdate(lv(101, 1), domain.Buy))
	require.NoError(t, b.ApplyUpdate(lv(102, 1), domain.Buy))
	require.NoError(t, b.ApplyUpdate(lv(90, 1), domain.Buy))

	assert.Equal(t, []domain.PriceLevel{lv(102, 1), lv(101, 1)}, collect(b, domain.Buy))
	bid, _ := b.BestBid()
	assert.Equal(t, 102.0, bid)
}

func TestApplyUpdateRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name  string
		level domain.PriceLevel
		side  domain.Side
		err   error
	}{
		{"negative quantity", lv(100, -1), domain.Buy, domain.ErrInvalidLevel},
		{"negative price", lv(-1, 1), domain.Sell, domain.ErrInvalidLevel},
		{"nan price", lv(math.NaN(), 1), domain.Buy, domain.ErrInvalidLevel},
		{"infinite price", lv(math.Inf(1), 1), domain.Buy, domain.ErrInvalidLevel},
		{"infinite quantity", lv(100, math.Inf(1)), domain.Buy, domain.ErrInvalidLevel},
		{"unknown side", lv(100, 1), domain.Side(7), domain.ErrInvalidSide},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBook(t, 10)
			require.NoError(t, b.ApplyUpdate(lv(50, 1), domain.Buy))

			err := b.ApplyUpdate(tc.level, tc.side)
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, []domain.PriceLevel{lv(50, 1)}, collect(b, domain.Buy))
			assert.Empty(t, collect(b, domain.Sell))
		})
	}
}

func TestLevelsOrderAndRestart(t *testing.T) {
	b := newTestBook(t, 10)
	require.NoError(t, b.ApplySnapshot(
		[]domain.PriceLevel{lv(99, 1), lv(101, 2), lv(100, 3)},
		[]domain.PriceLevel{lv(104, 1), lv(102, 2), lv(103, 3)},
	))

	bids := collect(b, domain.Buy)
	assert.Equal(t, []domain.PriceLevel{lv(101, 2), lv(100, 3), lv(99, 1)}, bids)
	assert.Equal(t, []domain.PriceLevel{lv(102, 2), lv(103, 3), lv(104, 1)}, collect(b, domain.Sell))

	seq := b.Levels(domain.Buy)
	var first []float64
	for p := range seq {
		first = append(first, p)
		break
	}
	var again []float64
	for p := range seq {
		again = append(again, p)
	}
	assert.Equal(t, []float64{101}, first)
	assert.Equal(t, []float64{101, 100, 99}, again)
}

func TestLevelsForInvalidSideIsEmpty(t *testing.T) {
	b := newTestBook(t, 10)
	require.NoError(t, b.ApplyUpdate(lv(100, 1), domain.Buy))

	n := 0
	for range b.Levels(domain.Side(9)) {
		n++
	}
	assert.Zero(t, n)
}

func TestInvariantsHoldUnderRandomUpdates(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, depth := range []int{1, 10, 20} {
		b := newTestBook(t, depth)
		for i := 0; i < 5000; i++ {
			side := domain.Buy
			if rng.Intn(2) == 1 {
				side = domain.Sell
			}
			price := float64(90 + rng.Intn(40))
			qty := float64(rng.Intn(4))
			require.NoError(t, b.ApplyUpdate(lv(price, qty), side))

			assertInvariants(t, b, depth)
		}
	}
}

func assertInvariants(t *testing.T, b *Book, depth int) {
	t.Helper()
	for _, side := range []domain.Side{domain.Buy, domain.Sell} {
		levels := collect(b, side)
		require.LessOrEqual(t, len(levels), depth)

		prices := make([]float64, len(levels))
		for i, l := range levels {
			require.Greater(t, l.Quantity, 0.0)
			prices[i] = l.Price
		}

		var best float64
		var ok bool
		if side == domain.Buy {
			best, ok = b.BestBid()
			require.True(t, slices.IsSortedFunc(prices, func(a, b float64) int { return int(b - a) }))
		} else {
			best, ok = b.BestAsk()
			require.True(t, slices.IsSorted(prices))
		}
		require.Equal(t, len(prices) > 0, ok)
		if ok {
			require.Equal(t, prices[0], best)
		}
	}
}
