// Package recorder samples the top of book and stores each observed quote.
// Stored quotes are for later analysis; nothing reads them back into the book.
package recorder

import (
	"context"
	"fmt"
	"time"

	"l2-order-book/internal/domain"
	"l2-order-book/internal/orderbook"
	"l2-order-book/internal/platform/metrics"
)

type Sink interface {
	Record(ctx context.Context, quote domain.TopOfBook) error
	Close() error
}

func Open(driver, path string) (Sink, error) {
	switch driver {
	case "sqlite":
		return OpenSQLite(path)
	case "pebble":
		return OpenPebble(path)
	}
	return nil, fmt.Errorf("unknown recorder driver %q", driver)
}

type Recorder struct {
	instrument string
	sink       Sink
}

func New(instrument string, sink Sink) *Recorder {
	return &Recorder{instrument: instrument, sink: sink}
}

func (r *Recorder) Name() string { return "quote-recorder" }

func (r *Recorder) Observe(ctx context.Context, view orderbook.BookView) error {
	quote := view.Top(r.instrument)
	if quote.Timestamp == 0 {
		quote.Timestamp = time.Now().UnixMilli()
	}
	if err := r.sink.Record(ctx, quote); err != nil {
		return fmt.Errorf("record quote %d: %w", quote.Sequence, err)
	}
	metrics.QuotesRecordedTotal.Inc()
	return nil
}

func (r *Recorder) Close() error {
	return r.sink.Close()
}
