package recorder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"l2-order-book/internal/domain"
)

type PebbleSink struct {
	db *pebble.DB
}

func OpenPebble(dir string) (*PebbleSink, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	return &PebbleSink{db: db}, nil
}

func quotePrefix(instrument string) []byte {
	return []byte("quote/" + instrument + "/")
}

// quoteKey zero-pads the timestamp so keys sort by time.
func quoteKey(instrument string, unixNano int64) []byte {
	return fmt.Appendf(quotePrefix(instrument), "%020d", unixNano)
}

func (s *PebbleSink) Record(ctx context.Context, quote domain.TopOfBook) error {
	value, err := json.Marshal(quote)
	if err != nil {
		return err
	}
	// Millisecond timestamps can repeat; the sequence keeps keys unique.
	key := quoteKey(quote.Instrument, quote.Timestamp*1_000_000+int64(quote.Sequence%1_000_000))
	return s.db.Set(key, value, pebble.NoSync)
}

// Scan calls fn for each stored quote of instrument, oldest first.
func (s *PebbleSink) Scan(instrument string, fn func(domain.TopOfBook) error) error {
	prefix := quotePrefix(instrument)
	upper := append(append([]byte(nil), prefix[:len(prefix)-1]...), '/'+1)

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upper,
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var quote domain.TopOfBook
		if err := json.Unmarshal(iter.Value(), &quote); err != nil {
			return fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		if err := fn(quote); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *PebbleSink) Close() error {
	if err := s.db.Flush(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
