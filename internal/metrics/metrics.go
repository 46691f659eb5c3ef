// Package metrics holds the Prometheus collectors for captures and
// recognition runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

type Metrics struct {
	registry            *prometheus.Registry
	captures            *prometheus.CounterVec
	recognitions        *prometheus.CounterVec
	recognitionDuration prometheus.Histogram
}

// New builds collectors on a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fridgecam",
			Name:      "captures_total",
			Help:      "Device captures by result.",
		}, []string{"result"}),
		recognitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fridgecam",
			Name:      "recognitions_total",
			Help:      "Recognition task runs by result.",
		}, []string{"result"}),
		recognitionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fridgecam",
			Name:      "recognition_duration_seconds",
			Help:      "Wall time of recognition task runs.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
	}
	reg.MustRegister(
		m.captures,
		m.recognitions,
		m.recognitionDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// ObserveCapture is nil-safe so callers can run without metrics.
func (m *Metrics) ObserveCapture(err error) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ObserveRecognition(started time.Time, err error) {
	if m == nil {
		return
	}
	m.recognitions.WithLabelValues(result(err)).Inc()
	m.recognitionDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
