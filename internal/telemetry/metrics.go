package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	EnqueueCounter   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pdf_jobs_enqueued_total", Help: "Total enqueued PDF jobs"}, []string{"mode"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "pdf_rate_limit_rejects_total", Help: "Submissions rejected by rate limiter"})
	JobsDone         = prometheus.NewCounter(prometheus.CounterOpts{Name: "pdf_jobs_done_total", Help: "Jobs that produced a PDF"})
	JobsErrored      = prometheus.NewCounter(prometheus.CounterOpts{Name: "pdf_jobs_error_total", Help: "Jobs recorded as error"})
	ConsumerErrors   = prometheus.NewCounter(prometheus.CounterOpts{Name: "pdf_consumer_loop_errors_total", Help: "Infrastructure errors seen by the consumer loop"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "pdf_queue_depth", Help: "Entries waiting in the PDF queue"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "pdf_jobs_inflight", Help: "Jobs currently processing"})
	RenderDuration   = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pdf_rasterize_duration_seconds",
		Help:    "Browser rasterization latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"outcome"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			EnqueueCounter,
			RateLimitRejects,
			JobsDone,
			JobsErrored,
			ConsumerErrors,
			QueueDepthGauge,
			InFlightGauge,
			RenderDuration,
		)
	})
	return promhttp.Handler()
}
