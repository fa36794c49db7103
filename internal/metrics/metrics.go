package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/FranksOps/partscout/internal/storage"
	"github.com/FranksOps/partscout/pkg/breaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	VendorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partscout_vendor_requests_total",
			Help: "Total number of vendor HTTP exchanges",
		},
		[]string{"vendor", "operation", "status", "detection_src"},
	)

	VendorRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "partscout_vendor_request_duration_seconds",
			Help:    "Duration of vendor HTTP exchanges in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 25},
		},
		[]string{"vendor", "operation"},
	)

	VendorBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partscout_vendor_bytes_total",
			Help: "Total decoded bytes received from vendors",
		},
		[]string{"vendor"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partscout_proxy_failures_total",
			Help: "Total number of proxy failures during vendor calls",
		},
		[]string{"proxy_url"},
	)

	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partscout_category_resolutions_total",
			Help: "Category resolutions by the chain stage that answered",
		},
		[]string{"vendor", "kind", "stage"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "partscout_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"breaker"},
	)

	WarmupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partscout_warmups_total",
			Help: "Session warm-ups by outcome",
		},
		[]string{"vendor", "outcome"},
	)
)

// RecordExchange updates the request metrics from an audit record.
func RecordExchange(e *storage.Exchange) {
	if e == nil {
		return
	}
	status := strconv.Itoa(e.Status)
	if e.Status == 0 {
		status = "error"
	}
	VendorRequestsTotal.WithLabelValues(e.Vendor, e.Operation, status, e.DetectionSrc).Inc()
	VendorRequestDuration.WithLabelValues(e.Vendor, e.Operation).Observe(e.Duration.Seconds())
	VendorBytesTotal.WithLabelValues(e.Vendor).Add(float64(e.Bytes))
}

// RecordResolution counts one category resolution. kind is "part",
// "crossref" or "path"; stage names the chain stage that answered.
func RecordResolution(vendor, kind, stage string) {
	ResolutionsTotal.WithLabelValues(vendor, kind, stage).Inc()
}

// RecordBreakerState is shaped to plug into breaker.Config.OnStateChange.
func RecordBreakerState(name string, _, to breaker.State) {
	BreakerState.WithLabelValues(name).Set(float64(to))
}

// RecordWarmup counts a warm-up attempt. outcome is "discovered" when all
// constants were scraped, "partial" or "defaults" otherwise.
func RecordWarmup(vendor, outcome string) {
	WarmupsTotal.WithLabelValues(vendor, outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start listens on addr and exposes /metrics. An addr with port 0 picks a
// free port; Addr reports it.
func Start(addr string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	return &Server{srv: srv, ln: ln}, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
