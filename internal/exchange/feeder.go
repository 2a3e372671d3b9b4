package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"l2-order-book/internal/domain"
	"l2-order-book/internal/platform/metrics"
)

// Feeder streams one venue's order book into a BookWriter. Subscribe blocks
// until the session ends, either because ctx was cancelled or because the
// connection failed; Run decides whether to start a new one.
type Feeder interface {
	Name() string
	Subscribe(ctx context.Context, instrument string, w domain.BookWriter) error
}

type FeedError struct {
	Provider string
	Op       string
	Err      error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *FeedError) Unwrap() error { return e.Err }

var (
	ErrReconnectRequested = errors.New("venue requested reconnect")
	// ErrResyncRequired ends a session whose book can only be trusted again
	// after a fresh subscription.
	ErrResyncRequired = errors.New("book out of sync with venue")
)

type Backoff struct {
	Min time.Duration
	Max time.Duration
}

var DefaultBackoff = Backoff{Min: time.Second, Max: 30 * time.Second}

func (b Backoff) next(current time.Duration) time.Duration {
	if current < b.Min {
		return b.Min
	}
	return min(current*2, b.Max)
}

// Run keeps a feeder subscribed until ctx is cancelled. Each failed session
// is logged, counted and followed by a capped exponential wait. A session
// that stayed up longer than Max resets the wait.
func Run(ctx context.Context, f Feeder, instrument string, w domain.BookWriter, backoff Backoff, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if backoff.Max <= 0 {
		backoff = DefaultBackoff
	}
	logger = logger.With(zap.String("provider", f.Name()), zap.String("instrument", instrument))

	var wait time.Duration
	for {
		logger.Info("Subscribing to order book feed")
		started := time.Now()
		err := f.Subscribe(ctx, instrument, w)
		if ctx.Err() != nil {
			logger.Info("Order book feed stopped")
			return nil
		}

		immediate := errors.Is(err, ErrResyncRequired) || errors.Is(err, ErrReconnectRequested)
		switch {
		case errors.Is(err, ErrResyncRequired):
			logger.Warn("Book out of sync, resubscribing for a fresh snapshot", zap.Error(err))
		case errors.Is(err, ErrReconnectRequested):
			logger.Info("Venue asked for a reconnect")
		case err != nil:
			logger.Error("Order book feed failed", zap.Error(err))
		default:
			logger.Warn("Order book feed ended")
		}
		metrics.FeedReconnectsTotal.WithLabelValues(f.Name()).Inc()

		if time.Since(started) > backoff.Max {
			wait = 0
		}
		if immediate {
			wait = 0
		} else {
			wait = backoff.next(wait)
		}
		if wait == 0 {
			continue
		}

		logger.Info("Reconnecting", zap.Duration("in", wait))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("Order book feed stopped")
			return nil
		case <-timer.C:
		}
	}
}

// IsRejected reports whether the book refused an event as malformed. The
// book is unchanged in that case and the feed may carry on.
func IsRejected(err error) bool {
	return errors.Is(err, domain.ErrInvalidLevel) || errors.Is(err, domain.ErrInvalidSide)
}
