package exchange

import (
	"fmt"

	"github.com/shopspring/decimal"

	"l2-order-book/internal/domain"
)

// ParseStringLevels converts [["price","quantity"], ...] pairs, the shape
// most venues use to avoid float rounding on the wire.
func ParseStringLevels(side domain.Side, pairs [][]string) ([]domain.Update, error) {
	out := make([]domain.Update, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) < 2 {
			return nil, fmt.Errorf("level %d: want price and quantity, got %d fields", i, len(pair))
		}
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("level %d price: %w", i, err)
		}
		qty, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("level %d quantity: %w", i, err)
		}
		out = append(out, domain.Update{
			Price:    price.InexactFloat64(),
			Quantity: qty.InexactFloat64(),
			Side:     side,
		})
	}
	return out, nil
}
