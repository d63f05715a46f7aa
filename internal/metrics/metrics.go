// Package metrics exposes Prometheus collectors for the ingest run.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Page outcomes recorded on journal_pages_total.
const (
	OutcomeUploaded     = "uploaded"
	OutcomeExists       = "exists"
	OutcomeUploadFailed = "upload_failed"
	OutcomeEmpty        = "empty"
)

var (
	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journal_pages_total",
			Help: "Pages processed, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	articlesUploadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journal_articles_uploaded_total",
		Help: "Article records written to the object store.",
	})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journal_upload_bytes_total",
		Help: "Bytes of JSON written to the object store.",
	})

	probeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journal_probe_errors_total",
		Help: "Existence checks that failed against the object store.",
	})

	fetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journal_fetch_requests_total",
			Help: "Upstream page requests, labeled by HTTP status code.",
		},
		[]string{"code"},
	)

	fetchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "journal_fetch_duration_seconds",
		Help:    "Histogram of upstream page request latencies.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
)

// ObservePage increments the page counter for outcome.
func ObservePage(outcome string) {
	pagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveArticles adds n uploaded article records.
func ObserveArticles(n int) {
	if n > 0 {
		articlesUploadedTotal.Add(float64(n))
	}
}

// ObserveUploadBytes adds n uploaded bytes.
func ObserveUploadBytes(n int) {
	if n > 0 {
		uploadBytesTotal.Add(float64(n))
	}
}

// ObserveProbeError counts a failed existence check.
func ObserveProbeError() {
	probeErrorsTotal.Inc()
}

// ObserveFetch records one upstream request. code is 0 when no response arrived.
func ObserveFetch(code int, duration time.Duration) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	fetchRequestsTotal.WithLabelValues(label).Inc()
	fetchDurationSeconds.Observe(duration.Seconds())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Push sends the default registry to a Pushgateway under job.
func Push(ctx context.Context, gatewayURL, job string) error {
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
