// Package metrics exposes the daemon's Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/matheus3301/doska/internal/bus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	ListingsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "doska_listings_published_total",
		Help: "Listings posted to the feed",
	}, []string{"variant", "category"})
	PublishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "doska_publish_failures_total",
		Help: "Listings the feed refused",
	}, []string{"variant"})
	DraftsCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "doska_drafts_cancelled_total",
		Help: "Drafts discarded with /cancel",
	})
	RetractionsRegistered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "doska_retractions_registered_total",
		Help: "Retractions stored after a publish",
	})
	RetractionsFired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "doska_retractions_fired_total",
		Help: "Retractions whose deadline passed and were executed",
	})
	DeleteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "doska_delete_failures_total",
		Help: "Feed messages that could not be deleted",
	})
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "doska_active_sessions",
		Help: "Open intake conversations",
	})
	APICalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "doska_telegram_calls_total",
		Help: "Bot API calls by method and outcome",
	}, []string{"method", "outcome"})
	APIDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "doska_telegram_call_duration_seconds",
		Help:    "Bot API call latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)

func init() {
	prometheus.MustRegister(
		ListingsPublished, PublishFailures, DraftsCancelled,
		RetractionsRegistered, RetractionsFired, DeleteFailures,
		ActiveSessions, APICalls, APIDuration,
	)
}

// ObserveAPICall records one bot API call started at start.
func ObserveAPICall(method string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	APICalls.WithLabelValues(method, outcome).Inc()
	APIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// Watch turns bus events into counter increments until ctx is done.
func Watch(ctx context.Context, b *bus.Bus) {
	listings, unsubListings := b.Subscribe("listing.", 256)
	drafts, unsubDrafts := b.Subscribe("draft.", 256)
	retractions, unsubRetractions := b.Subscribe("retraction.", 256)

	go func() {
		defer unsubListings()
		defer unsubDrafts()
		defer unsubRetractions()
		for {
			select {
			case evt := <-listings:
				record(evt)
			case evt := <-drafts:
				record(evt)
			case evt := <-retractions:
				record(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func record(evt bus.Event) {
	switch evt.Kind {
	case bus.KindListingPublished:
		if p, ok := evt.Payload.(bus.Published); ok {
			ListingsPublished.WithLabelValues(p.Variant, p.Category).Inc()
		}
	case bus.KindListingPublishFailed:
		if p, ok := evt.Payload.(bus.PublishFailed); ok {
			PublishFailures.WithLabelValues(p.Variant).Inc()
		}
	case bus.KindDraftCancelled:
		DraftsCancelled.Inc()
	case bus.KindRetractionRegistered:
		RetractionsRegistered.Inc()
	case bus.KindRetractionFired:
		RetractionsFired.Inc()
	case bus.KindRetractionDeleteFailed:
		DeleteFailures.Inc()
	}
}

// Server serves /metrics and /health.
type Server struct {
	addr   string
	srv    *http.Server
	logger *zap.Logger
}

// NewServer creates a metrics server on addr. An empty addr disables it.
func NewServer(addr string, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	return &Server{
		addr:   addr,
		srv:    &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		logger: logger,
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	if s.addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", zap.Error(err))
		}
	}()
	s.logger.Info("metrics server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.addr == "" {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
