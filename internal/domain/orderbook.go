package domain

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidLevel = errors.New("invalid price level")

// PriceLevel is the aggregated resting quantity at one price. A zero
// quantity on an incoming level means "remove this price".
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// Validate rejects levels that would break price ordering or store a
// meaningless quantity: NaN or infinite values and negative numbers.
func (l PriceLevel) Validate() error {
	switch {
	case math.IsNaN(l.Price) || math.IsInf(l.Price, 0):
		return fmt.Errorf("%w: non-finite price %v", ErrInvalidLevel, l.Price)
	case l.Price < 0:
		return fmt.Errorf("%w: negative price %v", ErrInvalidLevel, l.Price)
	case math.IsNaN(l.Quantity) || math.IsInf(l.Quantity, 0):
		return fmt.Errorf("%w: non-finite quantity %v at price %v", ErrInvalidLevel, l.Quantity, l.Price)
	case l.Quantity < 0:
		return fmt.Errorf("%w: negative quantity %v at price %v", ErrInvalidLevel, l.Quantity, l.Price)
	}
	return nil
}

// Update is a single normalized price-level event.
type Update struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Side     Side    `json:"side"`
}

func (u Update) Level() PriceLevel {
	return PriceLevel{Price: u.Price, Quantity: u.Quantity}
}

func (u Update) Validate() error {
	if !u.Side.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSide, uint8(u.Side))
	}
	return u.Level().Validate()
}

// Snapshot replaces the whole book. Entries are placed by the slice they
// arrive in; their Side field is not consulted.
type Snapshot struct {
	Bids []Update `json:"bids"`
	Asks []Update `json:"asks"`
}

func (s Snapshot) Len() int {
	return len(s.Bids) + len(s.Asks)
}

// TopOfBook is the best bid and ask at a point in time. Absent prices are
// reported with the matching Has flag set to false.
type TopOfBook struct {
	Instrument string  `json:"instrument"`
	BestBid    float64 `json:"best_bid"`
	HasBid     bool    `json:"has_bid"`
	BestAsk    float64 `json:"best_ask"`
	HasAsk     bool    `json:"has_ask"`
	Sequence   uint64  `json:"sequence"`
	Timestamp  int64   `json:"timestamp"`
}

// Crossed reports a book whose best bid is at or above its best ask.
func (t TopOfBook) Crossed() bool {
	return t.HasBid && t.HasAsk && t.BestBid >= t.BestAsk
}

func (t TopOfBook) Spread() (float64, bool) {
	if !t.HasBid || !t.HasAsk {
		return 0, false
	}
	return t.BestAsk - t.BestBid, true
}
