package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	httpDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	SSEClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "segment_stream_clients",
		Help: "Number of currently connected segment stream clients",
	})
	Segments = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "segments",
		Help: "Number of live segments by kind",
	}, []string{"kind"})
	SegmentChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "segment_changes_total",
		Help: "Registry mutations by change type",
	}, []string{"type"})
	RecountDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "segment_recount_duration_seconds",
		Help:    "Time to evaluate a segment against the client population",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	})
	TypeMismatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "segment_type_mismatches_total",
		Help: "Record values whose runtime type disagreed with the field type",
	}, []string{"field"})
	DroppedChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "segment_changes_dropped_total",
		Help: "Change notifications dropped because a subscriber was full",
	})
	WebhookDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "segment_webhook_deliveries_total",
		Help: "Webhook delivery attempts by outcome",
	}, []string{"outcome"})
	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "segment_events_published_total",
		Help: "Change events handed to sinks by sink and outcome",
	}, []string{"sink", "outcome"})
)

var initOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpReqs, httpDur, SSEClients, Segments, SegmentChanges,
			RecountDuration, TypeMismatches, DroppedChanges, WebhookDeliveries, EventsPublished)
	})
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		// the pattern is only complete after routing
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		httpReqs.WithLabelValues(route, r.Method, http.StatusText(ww.status)).Inc()
		httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
