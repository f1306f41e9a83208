package memserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.uber.org/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

type serverMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	regions  prometheus.Gauge
	bytes    prometheus.Gauge
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	f := promauto.With(reg)
	return &serverMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "famgraph_memserver_requests_total",
			Help: "Control plane calls by method and status code",
		}, []string{"method", "code"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "famgraph_memserver_request_duration_seconds",
			Help:    "Control plane call latency",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}, []string{"method"}),
		regions: f.NewGauge(prometheus.GaugeOpts{
			Name: "famgraph_memserver_regions",
			Help: "Registered regions across all sessions",
		}),
		bytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "famgraph_memserver_region_bytes",
			Help: "Bytes mapped across all sessions",
		}),
	}
}

// unaryInterceptor paces calls through limiter and records them
func (s *Service) unaryInterceptor(limiter ratelimit.Limiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if limiter != nil {
			limiter.Take()
		}
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		s.metrics.requests.WithLabelValues(info.FullMethod, code.String()).Inc()
		s.metrics.duration.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
		log.Debug().
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("took", time.Since(start)).
			Msg("Handled call")
		return resp, err
	}
}

// adminRouter serves /healthz, /metrics and the session listing
func adminRouter(svc *Service, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sessions", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(svc.Sessions()); err != nil {
				log.Error().Err(err).Msg("Failed to encode sessions")
			}
		})
	})
	return r
}
