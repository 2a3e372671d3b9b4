// Package orderbook keeps an aggregated level-2 view of one instrument.
//
// Book is the single-threaded engine: two price-ordered trees, cached best
// prices and a per-side depth limit. SharedOrderBook puts one Book behind a
// reader/writer lock so a feed goroutine can write while any number of
// readers query it.
package orderbook

import (
	"errors"
	"fmt"
	"iter"

	"l2-order-book/internal/domain"
)

const priceLevelsBTreeDegree = 32

var ErrInvalidDepthLimit = errors.New("depth limit must be positive")

// Book holds at most depthLimit levels per side. Bids are most competitive
// at the highest price, asks at the lowest.
type Book struct {
	bids       *bookSide
	asks       *bookSide
	depthLimit int
	evicted    uint64
}

func NewBook(depthLimit int) (*Book, error) {
	if depthLimit < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepthLimit, depthLimit)
	}
	return &Book{
		bids:       newBookSide(domain.Buy),
		asks:       newBookSide(domain.Sell),
		depthLimit: depthLimit,
	}, nil
}

// ApplySnapshot replaces both sides. Every level is checked before anything
// is touched, so a rejected snapshot leaves the book as it was.
func (b *Book) ApplySnapshot(bids, asks []domain.PriceLevel) error {
	for i, l := range bids {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("snapshot bid %d: %w", i, err)
		}
	}
	for i, l := range asks {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("snapshot ask %d: %w", i, err)
		}
	}

	b.bids.clear()
	b.asks.clear()
	for _, l := range bids {
		b.apply(b.bids, l)
	}
	for _, l := range asks {
		b.apply(b.asks, l)
	}
	b.bids.refreshBest()
	b.asks.refreshBest()
	return nil
}

// ApplyUpdate upserts or, for a zero quantity, removes one level. Quantities
// are absolute. Removing a price that is not in the book does nothing.
func (b *Book) ApplyUpdate(level domain.PriceLevel, side domain.Side) error {
	s := b.sideOf(side)
	if s == nil {
		return fmt.Errorf("%w: %d", domain.ErrInvalidSide, uint8(side))
	}
	if err := level.Validate(); err != nil {
		return err
	}
	b.apply(s, level)
	s.refreshBest()
	return nil
}

func (b *Book) apply(s *bookSide, l domain.PriceLevel) {
	if l.Quantity == 0 {
		s.remove(l.Price)
		return
	}
	s.upsert(l)
	for s.len() > b.depthLimit {
		s.evictLeastCompetitive()
		b.evicted++
	}
}

func (b *Book) BestBid() (float64, bool) {
	return b.bids.best, b.bids.hasBest
}

func (b *Book) BestAsk() (float64, bool) {
	return b.asks.best, b.asks.hasBest
}

// Levels yields (price, quantity) pairs most competitive first. The sequence
// can be ranged over any number of times; each pass walks the current state.
func (b *Book) Levels(side domain.Side) iter.Seq2[float64, float64] {
	s := b.sideOf(side)
	return func(yield func(float64, float64) bool) {
		if s == nil {
			return
		}
		s.each(func(l domain.PriceLevel) bool {
			return yield(l.Price, l.Quantity)
		})
	}
}

// Has reports whether a level rests at price on side.
func (b *Book) Has(side domain.Side, price float64) bool {
	s := b.sideOf(side)
	if s == nil {
		return false
	}
	_, ok := s.levels.Get(domain.PriceLevel{Price: price})
	return ok
}

func (b *Book) Len(side domain.Side) int {
	s := b.sideOf(side)
	if s == nil {
		return 0
	}
	return s.len()
}

func (b *Book) DepthLimit() int { return b.depthLimit }

// Evicted counts levels dropped by depth enforcement since construction.
func (b *Book) Evicted() uint64 { return b.evicted }

func (b *Book) sideOf(side domain.Side) *bookSide {
	switch side {
	case domain.Buy:
		return b.bids
	case domain.Sell:
		return b.asks
	}
	return nil
}
