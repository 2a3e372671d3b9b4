package watcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"l2-order-book/internal/orderbook"
)

type Source interface {
	View() orderbook.BookView
}

// Observer receives book views from a ScheduledWatcher. An error is logged
// and the watcher keeps going.
type Observer interface {
	Name() string
	Observe(ctx context.Context, view orderbook.BookView) error
}

// ScheduledWatcher hands the book to an observer on every tick, skipping
// ticks where the book has not changed.
type ScheduledWatcher struct {
	Source   Source
	Observer Observer
	Interval time.Duration
	logger   *zap.Logger

	lastSequence uint64
	observed     bool
}

func NewScheduledWatcher(source Source, observer Observer, interval time.Duration, logger *zap.Logger) *ScheduledWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduledWatcher{
		Source:   source,
		Observer: observer,
		Interval: interval,
		logger:   logger.With(zap.String("observer", observer.Name())),
	}
}

// Start blocks until ctx is cancelled.
func (w *ScheduledWatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	w.logger.Info("Start watching order book", zap.Duration("interval", w.Interval))

	// Run immediately first time
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stop watching order book")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ScheduledWatcher) tick(ctx context.Context) {
	view := w.Source.View()
	if view.Sequence == 0 || (w.observed && view.Sequence == w.lastSequence) {
		return
	}
	w.lastSequence = view.Sequence
	w.observed = true

	if err := w.Observer.Observe(ctx, view); err != nil && ctx.Err() == nil {
		w.logger.Error("Observer failed", zap.Uint64("sequence", view.Sequence), zap.Error(err))
	}
}
