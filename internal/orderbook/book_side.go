package orderbook

import (
	"github.com/google/btree"

	"l2-order-book/internal/domain"
)

// bookSide stores levels in ascending price order regardless of side; the
// side decides which end is best.
type bookSide struct {
	side    domain.Side
	levels  *btree.BTreeG[domain.PriceLevel]
	best    float64
	hasBest bool
}

func byPrice(a, b domain.PriceLevel) bool {
	return a.Price < b.Price
}

func newBookSide(side domain.Side) *bookSide {
	return &bookSide{
		side:   side,
		levels: btree.NewG(priceLevelsBTreeDegree, byPrice),
	}
}

func (s *bookSide) len() int { return s.levels.Len() }

func (s *bookSide) clear() {
	s.levels.Clear(false)
	s.best, s.hasBest = 0, false
}

func (s *bookSide) upsert(l domain.PriceLevel) {
	s.levels.ReplaceOrInsert(l)
}

func (s *bookSide) remove(price float64) bool {
	_, ok := s.levels.Delete(domain.PriceLevel{Price: price})
	return ok
}

// evictLeastCompetitive drops the lowest bid or the highest ask.
func (s *bookSide) evictLeastCompetitive() {
	if s.side == domain.Buy {
		s.levels.DeleteMin()
	} else {
		s.levels.DeleteMax()
	}
}

func (s *bookSide) refreshBest() {
	var l domain.PriceLevel
	if s.side == domain.Buy {
		l, s.hasBest = s.levels.Max()
	} else {
		l, s.hasBest = s.levels.Min()
	}
	s.best = l.Price
}

func (s *bookSide) each(fn func(domain.PriceLevel) bool) {
	if s.side == domain.Buy {
		s.levels.Descend(fn)
	} else {
		s.levels.Ascend(fn)
	}
}
