package downloader

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records download counters, sizes and latencies. A nil *Metrics
// records nothing.
type Metrics struct {
	downloadsTotal  *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	durationSeconds prometheus.Histogram
	fileSizeBytes   *prometheus.HistogramVec
	inProgress      prometheus.Gauge
}

// NewMetrics creates the download metrics with namespace as the name prefix
// and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		downloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_downloads_total", namespace),
				Help: "Downloads finished, by status",
			},
			[]string{"status"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_download_errors_total", namespace),
				Help: "Failed downloads, by reason",
			},
			[]string{"reason"},
		),
		durationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    fmt.Sprintf("%s_download_duration_seconds", namespace),
				Help:    "Time spent on a single download",
				Buckets: prometheus.DefBuckets,
			},
		),
		fileSizeBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: fmt.Sprintf("%s_file_size_bytes", namespace),
				Help: "Size of downloaded files",
				// 1KB to 1GB
				Buckets: prometheus.ExponentialBuckets(1024, 10, 7),
			},
			[]string{"media_type"},
		),
		inProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: fmt.Sprintf("%s_downloads_in_progress", namespace),
				Help: "Downloads currently running",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.downloadsTotal, m.errorsTotal, m.durationSeconds, m.fileSizeBytes, m.inProgress} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register download metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) start() time.Time {
	if m != nil {
		m.inProgress.Inc()
	}
	return time.Now()
}

func (m *Metrics) success(started time.Time, mediaType string, bytes int64) {
	if m == nil {
		return
	}
	m.inProgress.Dec()
	m.downloadsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	m.durationSeconds.Observe(time.Since(started).Seconds())
	m.fileSizeBytes.WithLabelValues(mediaType).Observe(float64(bytes))
}

func (m *Metrics) failure(started time.Time, reason string) {
	if m == nil {
		return
	}
	m.inProgress.Dec()
	m.downloadsTotal.WithLabelValues(string(StatusFailed)).Inc()
	m.errorsTotal.WithLabelValues(reason).Inc()
	m.durationSeconds.Observe(time.Since(started).Seconds())
}
