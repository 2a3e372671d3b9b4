package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	BookEventsTotal         = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orderbook_events_total", Help: "Book mutations applied by kind"}, []string{"kind"})
	BookEventsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orderbook_events_rejected_total", Help: "Book mutations rejected by kind"}, []string{"kind"})
	LevelsEvictedTotal      = prometheus.NewCounter(prometheus.CounterOpts{Name: "orderbook_levels_evicted_total", Help: "Levels dropped by depth limit enforcement"})
	DepthLevels             = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "orderbook_depth_levels", Help: "Resting levels per side"}, []string{"side"})
	BestPrice               = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "orderbook_best_price", Help: "Best price per side, 0 when absent"}, []string{"side"})

	FeedReconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "feed_reconnects_total", Help: "Feed reconnects by provider"}, []string{"provider"})
	FeedMessagesTotal   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "feed_messages_total", Help: "Wire messages received by provider"}, []string{"provider"})

	QuotesRecordedTotal    = prometheus.NewCounter(prometheus.CounterOpts{Name: "quotes_recorded_total", Help: "Top-of-book samples written by the recorder"})
	QuotesPublishedTotal   = prometheus.NewCounter(prometheus.CounterOpts{Name: "quotes_published_total", Help: "Top-of-book messages published"})
	CrossedBookAlertsTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "crossed_book_alerts_total", Help: "Transitions into a crossed book"})
)

func Init(logger *zap.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		BookEventsTotal, BookEventsRejectedTotal, LevelsEvictedTotal, DepthLevels, BestPrice,
		FeedReconnectsTotal, FeedMessagesTotal,
		QuotesRecordedTotal, QuotesPublishedTotal, CrossedBookAlertsTotal,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		_ = reg.Register(c)
	}
	logger.Info("Prometheus metrics initialized")
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
