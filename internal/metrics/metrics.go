// Package metrics exposes Prometheus instrumentation for the masking engine,
// the HTTP API and the batch pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
)

const namespace = "anonymizer"

// Recorder holds every metric. It implements privacy.Observer.
type Recorder struct {
	HideTotal        prometheus.Counter
	FillTotal        prometheus.Counter
	HideDuration     prometheus.Histogram
	FillDuration     prometheus.Histogram
	Placeholders     *prometheus.CounterVec
	DetectorDuration *prometheus.HistogramVec
	DetectorDegraded *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	SessionsEvicted  *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	RateLimited      prometheus.Counter
	BatchRecords     *prometheus.CounterVec
}

var _ privacy.Observer = (*Recorder)(nil)

// New registers the metrics with reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		HideTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hide_total",
			Help:      "Total number of masking calls",
		}),
		FillTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fill_total",
			Help:      "Total number of restoration calls",
		}),
		HideDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hide_duration_seconds",
			Help:      "Time spent masking one text",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		FillDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fill_duration_seconds",
			Help:      "Time spent restoring one text",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		Placeholders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placeholders_total",
			Help:      "Placeholders allocated by category",
		}, []string{"category"}),
		DetectorDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detector_duration_seconds",
			Help:      "Detector run time by category",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"category"}),
		DetectorDegraded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_degraded_total",
			Help:      "Detector runs that failed and contributed no matches",
		}, []string{"category"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Masking sessions currently held in memory",
		}),
		SessionsEvicted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions dropped before being closed",
		}, []string{"reason"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),
		BatchRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_records_total",
			Help:      "Dataset records processed by outcome",
		}, []string{"outcome"}),
	}
}

// DetectorFinished records one detector run
func (r *Recorder) DetectorFinished(category privacy.Category, _ int, degraded bool, elapsed time.Duration) {
	c := string(category)
	r.DetectorDuration.WithLabelValues(c).Observe(elapsed.Seconds())
	if degraded {
		r.DetectorDegraded.WithLabelValues(c).Inc()
	}
}

// Masked records one masking call
func (r *Recorder) Masked(result privacy.ProcessResult, elapsed time.Duration) {
	r.HideTotal.Inc()
	r.HideDuration.Observe(elapsed.Seconds())
	for _, f := range result.Findings {
		r.Placeholders.WithLabelValues(f.EntityType).Add(float64(f.Placeholders))
	}
}

// Restored records one restoration call
func (r *Recorder) Restored(elapsed time.Duration) {
	r.FillTotal.Inc()
	r.FillDuration.Observe(elapsed.Seconds())
}
