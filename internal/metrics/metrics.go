// Package metrics exposes Prometheus metrics for artframe runs. A Recorder
// owns its registry so tests and multiple servers never collide on the
// default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "artframe"

// Recorder holds the run, download, frame and archive metrics.
type Recorder struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	inProgress      prometheus.Gauge
	downloads       *prometheus.CounterVec
	downloadBytes   prometheus.Histogram
	downloadSeconds prometheus.Histogram
	frames          *prometheus.CounterVec
	archiveEntries  prometheus.Gauge
}

// New creates a Recorder with its own registry, including Go runtime and
// process collectors.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Completed runs by outcome (done, failed).",
	}, []string{"outcome"})
	r.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of complete runs.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
	r.inProgress = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_in_progress",
		Help:      "1 while a run is active.",
	})
	r.downloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "downloads_total",
		Help:      "Attempted attachment downloads by status (ok, error).",
	}, []string{"status"})
	r.downloadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "download_size_bytes",
		Help:      "Size of downloaded attachments.",
		Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 8),
	})
	r.downloadSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "download_duration_seconds",
		Help:      "Time spent per attachment download.",
		Buckets:   prometheus.DefBuckets,
	})
	r.frames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_total",
		Help:      "Border transforms by status (framed, skipped).",
	}, []string{"status"})
	r.archiveEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "archive_entries",
		Help:      "Entries in the most recently written archive.",
	})

	r.registry.MustRegister(
		r.runs, r.runDuration, r.inProgress,
		r.downloads, r.downloadBytes, r.downloadSeconds,
		r.frames, r.archiveEntries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RunStarted marks a run active.
func (r *Recorder) RunStarted() { r.inProgress.Set(1) }

// RunFinished records a run's outcome and duration.
func (r *Recorder) RunFinished(outcome string, d time.Duration) {
	r.inProgress.Set(0)
	r.runs.WithLabelValues(outcome).Inc()
	r.runDuration.Observe(d.Seconds())
}

// ObserveDownload records one download attempt.
func (r *Recorder) ObserveDownload(ok bool, bytes int64, d time.Duration) {
	if !ok {
		r.downloads.WithLabelValues("error").Inc()
		return
	}
	r.downloads.WithLabelValues("ok").Inc()
	r.downloadBytes.Observe(float64(bytes))
	r.downloadSeconds.Observe(d.Seconds())
}

// ObserveFrame records one transform result.
func (r *Recorder) ObserveFrame(framed bool) {
	if framed {
		r.frames.WithLabelValues("framed").Inc()
		return
	}
	r.frames.WithLabelValues("skipped").Inc()
}

// ArchiveWritten records the entry count of a new archive.
func (r *Recorder) ArchiveWritten(entries int) { r.archiveEntries.Set(float64(entries)) }
