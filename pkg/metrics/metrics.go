// Package metrics exposes Prometheus counters for finds, waits and sessions.
package metrics

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"github.com/devicelab-dev/bryndza/pkg/core"
)

var (
	metricFinds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bryndza",
		Name:      "finds_total",
		Help:      "Element lookups by platform and outcome.",
	}, []string{"platform", "result"})
	metricFindDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bryndza",
		Name:      "find_duration_seconds",
		Help:      "Time spent walking the native tree per lookup.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"platform"})
	metricWaitAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bryndza",
		Name:      "wait_attempts_total",
		Help:      "Condition evaluations made by the wait engine.",
	}, []string{"result"})
	metricWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bryndza",
		Name:      "waits_total",
		Help:      "Completed waits by outcome.",
	}, []string{"outcome"})
	metricWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bryndza",
		Name:      "wait_duration_seconds",
		Help:      "Wall time of completed waits.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	metricSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bryndza",
		Name:      "sessions_active",
		Help:      "Number of started sessions.",
	})
	metricConnectRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bryndza",
		Name:      "connect_retries_total",
		Help:      "Connection attempts retried after a transient failure.",
	}, []string{"platform"})
)

// Result labels.
const (
	ResultFound    = "found"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// ResultOf classifies a find or attempt error.
func ResultOf(err error) string {
	switch {
	case err == nil:
		return ResultFound
	case errors.Is(err, core.ErrElementNotFound):
		return ResultNotFound
	default:
		return ResultError
	}
}

// RecordFind counts one lookup and its latency.
func RecordFind(platform string, elapsed time.Duration, err error) {
	metricFinds.WithLabelValues(platform, ResultOf(err)).Inc()
	metricFindDuration.WithLabelValues(platform).Observe(elapsed.Seconds())
}

// SessionStarted increments the active session gauge.
func SessionStarted() {
	metricSessionsActive.Inc()
}

// SessionStopped decrements the active session gauge.
func SessionStopped() {
	metricSessionsActive.Dec()
}

// RecordConnectRetry counts a retried connection attempt.
func RecordConnectRetry(platform string) {
	metricConnectRetries.WithLabelValues(platform).Inc()
}

// WaitObserver feeds wait engine events into the wait metrics.
type WaitObserver struct{}

// Attempt implements wait.Observer.
func (WaitObserver) Attempt(_ string, _ int, err error) {
	metricWaitAttempts.WithLabelValues(ResultOf(err)).Inc()
}

// Done implements wait.Observer.
func (WaitObserver) Done(_ string, _ int, elapsed time.Duration, err error) {
	outcome := "satisfied"
	switch {
	case errors.Is(err, core.ErrTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	metricWaits.WithLabelValues(outcome).Inc()
	metricWaitDuration.Observe(elapsed.Seconds())
}

// WriteText writes every bryndza metric family in the Prometheus text format.
func WriteText(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "bryndza_") {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
