package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSide = errors.New("invalid side")

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "Buy"
	case Sell:
		return "Sell"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// ParseSide maps wire spellings onto Side. Bids are "buy" or "bid", asks are
// "sell" or "ask"; case is ignored.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "bid", "bids":
		return Buy, nil
	case "sell", "ask", "asks":
		return Sell, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSide, s)
}

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSide, uint8(s))
	}
	return []byte(strings.ToLower(s.String())), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	parsed, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
