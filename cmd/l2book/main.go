package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"l2-order-book/internal/alerter"
	"l2-order-book/internal/display"
	"l2-order-book/internal/domain"
	"l2-order-book/internal/exchange"
	"l2-order-book/internal/exchange/bitstamp"
	"l2-order-book/internal/exchange/deribit"
	"l2-order-book/internal/exchange/kucoin"
	"l2-order-book/internal/exchange/luno"
	"l2-order-book/internal/orderbook"
	"l2-order-book/internal/platform/config"
	"l2-order-book/internal/platform/logger"
	"l2-order-book/internal/platform/metrics"
	"l2-order-book/internal/publisher"
	"l2-order-book/internal/recorder"
	"l2-order-book/internal/server"
	"l2-order-book/internal/watcher"
)

func gracefulShutdown(ctx context.Context, fiberServer *server.FiberServer, logger *zap.Logger, done chan bool) {
	// Listen for the interrupt signal.
	<-ctx.Done()

	logger.Info("Shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fiberServer.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func newFeeder(cfg *config.Config, provider domain.ProviderEnum, appLogger, feedLogger *zap.Logger) (exchange.Feeder, error) {
	switch provider {
	case domain.Deribit:
		return deribit.New(cfg.Exchange.DepthLimit, appLogger, feedLogger), nil
	case domain.Bitstamp:
		return bitstamp.New(appLogger, feedLogger), nil
	case domain.Kucoin:
		return kucoin.New(cfg.Exchange.DepthLimit, appLogger, feedLogger), nil
	case domain.Luno:
		return luno.CreateClient(cfg.Feed.LunoKeyID, cfg.Feed.LunoKeySecret, cfg.Feed.PollInterval.Std(), appLogger, feedLogger), nil
	}
	return nil, fmt.Errorf("unsupported provider %s", provider)
}

type scheduledObserver struct {
	observer watcher.Observer
	interval time.Duration
}

// newObservers opens every enabled sink. On error the sinks opened so far
// are closed again.
func newObservers(cfg *config.Config, provider domain.ProviderEnum, logger *zap.Logger) ([]scheduledObserver, []func() error, error) {
	var observers []scheduledObserver
	var closers []func() error
	closeAll := func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Error("Failed to close component", zap.Error(err))
			}
		}
	}

	if cfg.PublisherEnabled() {
		pub := publisher.New(cfg.Publisher.Brokers, cfg.Publisher.Topic, cfg.Exchange.Instrument)
		closers = append(closers, pub.Close)
		observers = append(observers, scheduledObserver{pub, cfg.Publisher.Interval.Std()})
	}
	if cfg.Recorder.Enabled {
		sink, err := recorder.Open(cfg.Recorder.Driver, cfg.Recorder.Path)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		rec := recorder.New(cfg.Exchange.Instrument, sink)
		closers = append(closers, rec.Close)
		observers = append(observers, scheduledObserver{rec, cfg.Recorder.Interval.Std()})
	}
	if cfg.AlerterEnabled() {
		a := alerter.New(cfg.Exchange.Instrument, provider.String(),
			alerter.DiscordSender{WebhookUrl: cfg.Alerter.WebhookURL}, logger)
		observers = append(observers, scheduledObserver{a, cfg.Alerter.Interval.Std()})
	}
	return observers, closers, nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	provider, err := cfg.ProviderEnum()
	if err != nil {
		return err
	}

	loggers, err := logger.New(logger.Options{
		Dir:     cfg.Log.Dir,
		Level:   cfg.Log.Level,
		Console: !cfg.Display.Enabled,
	})
	if err != nil {
		return err
	}
	defer loggers.Sync()
	appLogger := loggers.App.With(zap.String("instrument", cfg.Exchange.Instrument))

	registry := metrics.Init(appLogger)

	book, err := orderbook.NewSharedOrderBook(cfg.Exchange.DepthLimit, appLogger)
	if err != nil {
		return err
	}

	feeder, err := newFeeder(cfg, provider, appLogger, loggers.Feed)
	if err != nil {
		return err
	}

	observers, closers, err := newObservers(cfg, provider, appLogger)
	if err != nil {
		return err
	}
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				appLogger.Error("Failed to close component", zap.Error(err))
			}
		}
	}()

	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	goRun(func() {
		_ = exchange.Run(ctx, feeder, cfg.Exchange.Instrument, book, exchange.DefaultBackoff, appLogger)
	})
	for _, o := range observers {
		w := watcher.NewScheduledWatcher(book, o.observer, o.interval, appLogger)
		goRun(func() { w.Start(ctx) })
	}

	if cfg.Display.Enabled {
		title := fmt.Sprintf("%s %s (depth %d)  Ctrl+C to quit", provider, cfg.Exchange.Instrument, cfg.Exchange.DepthLimit)
		d := display.NewStdout(book, title, cfg.Display.Levels, cfg.Display.Interval.Std())
		goRun(func() { d.Run(ctx) })
	}

	if cfg.HTTP.Enabled {
		srv := server.New(book, server.Options{
			Instrument:     cfg.Exchange.Instrument,
			Provider:       provider.String(),
			StreamInterval: cfg.HTTP.StreamInterval.Std(),
			Registry:       registry,
			Logger:         appLogger,
		})
		srv.RegisterFiberRoutes()

		// Create a done channel to signal when the shutdown is complete
		done := make(chan bool, 1)

		go func() {
			appLogger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
			if err := srv.Listen(cfg.HTTP.Addr); err != nil {
				appLogger.Error("HTTP server error", zap.Error(err))
				stop()
			}
		}()

		// Run graceful shutdown in a separate goroutine
		go gracefulShutdown(ctx, srv, appLogger, done)

		// Wait for the graceful shutdown to complete
		<-done
	} else {
		<-ctx.Done()
	}

	wg.Wait()
	appLogger.Info("Graceful shutdown complete")
	return nil
}
