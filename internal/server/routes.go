package server

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"l2-order-book/internal/domain"
	"l2-order-book/internal/orderbook"
	"l2-order-book/internal/platform/metrics"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Get("/healthz", s.healthHandler)

	api := s.App.Group("/api/v1")
	api.Get("/book", s.bookHandler)
	api.Get("/bbo", s.bboHandler)
	api.Get("/levels/:side", s.levelsHandler)
	api.Get("/quote", s.quoteHandler)

	if s.registry != nil {
		s.App.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(s.registry)))
	}

	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws/bbo", websocket.New(s.bboStreamHandler))
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	view := s.book.View()
	return c.JSON(fiber.Map{
		"status":   "ok",
		"provider": s.provider,
		"synced":   view.Sequence > 0,
		"sequence": view.Sequence,
	})
}

type bookResponse struct {
	Instrument string   `json:"instrument"`
	Provider   string   `json:"provider"`
	Spread     *float64 `json:"spread"`
	orderbook.BookView
}

func (s *FiberServer) bookHandler(c *fiber.Ctx) error {
	view := s.book.View()
	resp := bookResponse{Instrument: s.instrument, Provider: s.provider, BookView: view}
	if spread, ok := view.Top(s.instrument).Spread(); ok {
		resp.Spread = &spread
	}
	return c.JSON(resp)
}

func (s *FiberServer) bboHandler(c *fiber.Ctx) error {
	return c.JSON(s.book.View().Top(s.instrument))
}

func (s *FiberServer) levelsHandler(c *fiber.Ctx) error {
	side, err := domain.ParseSide(c.Params("side"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	levels := s.book.GetLevels(side)
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be a positive integer")
		}
		levels = levels[:min(limit, len(levels))]
	}
	return c.JSON(fiber.Map{
		"side":   side,
		"levels": levels,
	})
}

func (s *FiberServer) quoteHandler(c *fiber.Ctx) error {
	side, err := domain.ParseSide(c.Query("side"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	volume, err := strconv.ParseFloat(c.Query("volume"), 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "volume must be a number")
	}
	exact := c.QueryBool("exact", false)

	price, filled, err := s.book.PriceForVolume(side, volume, exact)
	switch {
	case errors.Is(err, orderbook.ErrInvalidVolume):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, orderbook.ErrEmptySide), errors.Is(err, orderbook.ErrInsufficientVolume):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case err != nil:
		return err
	}
	return c.JSON(fiber.Map{
		"side":     side,
		"volume":   volume,
		"filled":   filled,
		"price":    price,
		"exact":    exact,
		"sequence": s.book.Sequence(),
	})
}

// bboStreamHandler pushes the top of book each time the sequence moves.
func (s *FiberServer) bboStreamHandler(c *websocket.Conn) {
	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	// Reads only serve to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var last uint64
	sent := false
	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
		}

		view := s.book.View()
		if sent && view.Sequence == last {
			continue
		}
		if err := c.WriteJSON(view.Top(s.instrument)); err != nil {
			s.logger.Debug("Top of book stream closed", zap.Error(err))
			return
		}
		last, sent = view.Sequence, true
	}
}
