package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"l2-order-book/internal/orderbook"
)

type Options struct {
	Instrument     string
	Provider       string
	StreamInterval time.Duration
	Registry       *prometheus.Registry
	Logger         *zap.Logger
}

type FiberServer struct {
	*fiber.App

	book           *orderbook.SharedOrderBook
	instrument     string
	provider       string
	streamInterval time.Duration
	registry       *prometheus.Registry
	logger         *zap.Logger
}

func New(book *orderbook.SharedOrderBook, opts Options) *FiberServer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = 250 * time.Millisecond
	}

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:          "l2-order-book",
			AppName:               "l2-order-book",
			DisableStartupMessage: true,
			ErrorHandler:          errorHandler,
		}),

		book:           book,
		instrument:     opts.Instrument,
		provider:       opts.Provider,
		streamInterval: opts.StreamInterval,
		registry:       opts.Registry,
		logger:         opts.Logger,
	}

	return server
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
