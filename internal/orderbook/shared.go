package orderbook

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"l2-order-book/internal/domain"
	"l2-order-book/internal/platform/metrics"
)

var (
	ErrEmptySide          = errors.New("no levels on side")
	ErrInsufficientVolume = errors.New("insufficient volume in order book")
	ErrInvalidVolume      = errors.New("volume must be positive and finite")
)

// SharedOrderBook guards one Book with a single RWMutex. Pass the pointer to
// every goroutine that needs the book; all of them see the same state.
type SharedOrderBook struct {
	mu          sync.RWMutex
	book        *Book
	sequence    uint64
	updatedAt   time.Time
	evictedSeen uint64
	logger      *zap.Logger
}

// BookView is a consistent copy of the book taken under one read lock.
type BookView struct {
	BestBid    float64             `json:"best_bid"`
	HasBid     bool                `json:"has_bid"`
	BestAsk    float64             `json:"best_ask"`
	HasAsk     bool                `json:"has_ask"`
	Bids       []domain.PriceLevel `json:"bids"`
	Asks       []domain.PriceLevel `json:"asks"`
	DepthLimit int                 `json:"depth_limit"`
	Sequence   uint64              `json:"sequence"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

func (v BookView) Top(instrument string) domain.TopOfBook {
	top := domain.TopOfBook{
		Instrument: instrument,
		BestBid:    v.BestBid,
		HasBid:     v.HasBid,
		BestAsk:    v.BestAsk,
		HasAsk:     v.HasAsk,
		Sequence:   v.Sequence,
	}
	if !v.UpdatedAt.IsZero() {
		top.Timestamp = v.UpdatedAt.UnixMilli()
	}
	return top
}

func NewSharedOrderBook(depthLimit int, logger *zap.Logger) (*SharedOrderBook, error) {
	book, err := NewBook(depthLimit)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SharedOrderBook{book: book, logger: logger}, nil
}

// ProcessSnapshot replaces the book. Entries are placed by the slice they
// arrive in.
func (s *SharedOrderBook) ProcessSnapshot(snapshot domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.book.ApplySnapshot(levelsOf(snapshot.Bids), levelsOf(snapshot.Asks)); err != nil {
		s.reject("snapshot", err)
		return err
	}
	s.committed("snapshot")

	bestBid, _ := s.book.BestBid()
	bestAsk, _ := s.book.BestAsk()
	s.logger.Debug("Snapshot applied",
		zap.Int("entries", snapshot.Len()),
		zap.Int("bids", s.book.Len(domain.Buy)),
		zap.Int("asks", s.book.Len(domain.Sell)),
		zap.Float64("best_bid", bestBid),
		zap.Float64("best_ask", bestAsk),
	)
	return nil
}

func (s *SharedOrderBook) ProcessUpdate(update domain.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := update.Validate(); err != nil {
		s.reject("update", err)
		return err
	}
	if s.applyValidated(update) {
		s.committed("update")
	}
	return nil
}

// ProcessUpdates validates the whole batch before applying any of it, so
// readers see either none or all of the batch.
func (s *SharedOrderBook) ProcessUpdates(updates []domain.Update) error {
	if len(updates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, u := range updates {
		if err := u.Validate(); err != nil {
			err = fmt.Errorf("update %d of %d: %w", i+1, len(updates), err)
			s.reject("batch", err)
			return err
		}
	}
	changed := false
	for _, u := range updates {
		if s.applyValidated(u) {
			changed = true
		}
	}
	if changed {
		s.committed("batch")
	}
	return nil
}

// applyValidated must be called with the write lock held. It reports false
// when the update was a removal of a price the book does not hold.
func (s *SharedOrderBook) applyValidated(u domain.Update) bool {
	if u.Quantity == 0 && !s.book.Has(u.Side, u.Price) {
		s.logger.Debug("Removal for absent level ignored", zap.Stringer("side", u.Side), zap.Float64("price", u.Price))
		return false
	}
	// Validated by the caller, so ApplyUpdate cannot fail.
	_ = s.book.ApplyUpdate(u.Level(), u.Side)
	return true
}

func (s *SharedOrderBook) reject(kind string, err error) {
	metrics.BookEventsRejectedTotal.WithLabelValues(kind).Inc()
	s.logger.Warn("Book event rejected", zap.String("kind", kind), zap.Error(err))
}

func (s *SharedOrderBook) committed(kind string) {
	s.sequence++
	s.updatedAt = time.Now()

	if evicted := s.book.Evicted(); evicted > s.evictedSeen {
		metrics.LevelsEvictedTotal.Add(float64(evicted - s.evictedSeen))
		s.logger.Debug("Enforced depth limit", zap.Uint64("evicted", evicted-s.evictedSeen), zap.Int("depth_limit", s.book.DepthLimit()))
		s.evictedSeen = evicted
	}

	metrics.BookEventsTotal.WithLabelValues(kind).Inc()
	metrics.DepthLevels.WithLabelValues("bids").Set(float64(s.book.Len(domain.Buy)))
	metrics.DepthLevels.WithLabelValues("asks").Set(float64(s.book.Len(domain.Sell)))
	bestBid, _ := s.book.BestBid()
	bestAsk, _ := s.book.BestAsk()
	metrics.BestPrice.WithLabelValues("bids").Set(bestBid)
	metrics.BestPrice.WithLabelValues("asks").Set(bestAsk)
}

func (s *SharedOrderBook) GetBestBid() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.BestBid()
}

func (s *SharedOrderBook) GetBestAsk() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.BestAsk()
}

// GetBids returns bid prices, highest first.
func (s *SharedOrderBook) GetBids() []float64 {
	return s.prices(domain.Buy)
}

// GetAsks returns ask prices, lowest first.
func (s *SharedOrderBook) GetAsks() []float64 {
	return s.prices(domain.Sell)
}

func (s *SharedOrderBook) prices(side domain.Side) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]float64, 0, s.book.Len(side))
	for price := range s.book.Levels(side) {
		out = append(out, price)
	}
	return out
}

func (s *SharedOrderBook) GetLevels(side domain.Side) []domain.PriceLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.levels(side)
}

func (s *SharedOrderBook) levels(side domain.Side) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, s.book.Len(side))
	for price, qty := range s.book.Levels(side) {
		out = append(out, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return out
}

func (s *SharedOrderBook) GetUsedDepth(side domain.Side) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Len(side)
}

// Sequence counts successful mutations; it changes whenever the book does.
func (s *SharedOrderBook) Sequence() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sequence
}

func (s *SharedOrderBook) View() BookView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := BookView{
		Bids:       s.levels(domain.Buy),
		Asks:       s.levels(domain.Sell),
		DepthLimit: s.book.DepthLimit(),
		Sequence:   s.sequence,
		UpdatedAt:  s.updatedAt,
	}
	v.BestBid, v.HasBid = s.book.BestBid()
	v.BestAsk, v.HasAsk = s.book.BestAsk()
	return v
}

// PriceForVolume walks side from the best price until volume is filled and
// returns the volume-weighted average price. Without exactMatch a partial
// fill is returned with filled < volume.
func (s *SharedOrderBook) PriceForVolume(side domain.Side, volume float64, exactMatch bool) (price float64, filled float64, err error) {
	if !side.Valid() {
		return 0, 0, fmt.Errorf("%w: %d", domain.ErrInvalidSide, uint8(side))
	}
	if !(volume > 0) || math.IsInf(volume, 1) {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidVolume, volume)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.book.Len(side) == 0 {
		return 0, 0, fmt.Errorf("%w: %s", ErrEmptySide, strings.ToLower(side.String()))
	}

	var weighted float64
	for levelPrice, qty := range s.book.Levels(side) {
		remaining := volume - filled
		if remaining <= 0 {
			break
		}
		take := min(qty, remaining)
		weighted += levelPrice * take
		filled += take
	}

	if exactMatch && filled < volume {
		return 0, 0, fmt.Errorf("%w: wanted %v, book holds %v", ErrInsufficientVolume, volume, filled)
	}
	return weighted / filled, filled, nil
}

func levelsOf(updates []domain.Update) []domain.PriceLevel {
	out := make([]domain.PriceLevel, len(updates))
	for i, u := range updates {
		out[i] = u.Level()
	}
	return out
}
