// Package metrics instruments the broker with Prometheus collectors, the
// way franz-go's plugin/kprom wires a client up for production monitoring.
// It is wholly optional: the Recorder returned by NopRecorder simply does
// nothing (protocol.NewDispatcher substitutes it for a nil Recorder), so
// the protocol dispatcher can be exercised in tests without standing up a
// registry.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the small interface internal/protocol depends on, so it
// never needs to import the Prometheus client library directly.
type Recorder interface {
	ObserveRequest(apiKey, apiVersion, errorCode int16, bytes int)
	ObserveDecodeError()
	ConnectionOpened()
	ConnectionClosed()
}

// Registry wraps a Prometheus registry with the broker's collectors.
type Registry struct {
	reg *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestBytes    prometheus.Histogram
	decodeErrors    prometheus.Counter
	connectionsOpen prometheus.Gauge
}

// NewRegistry builds a fresh, unregistered-with-default collector set.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kafkabroker",
			Name:      "requests_total",
			Help:      "Requests handled, by API key, API version, and response error code.",
		}, []string{"api_key", "api_version", "error_code"}),
		requestBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kafkabroker",
			Name:      "request_bytes",
			Help:      "Size in bytes of decoded request frames.",
			Buckets:   prometheus.ExponentialBuckets(32, 4, 8),
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kafkabroker",
			Name:      "decode_errors_total",
			Help:      "Frames that failed to decode and closed their connection.",
		}),
		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kafkabroker",
			Name:      "connections_active",
			Help:      "Currently open client connections.",
		}),
	}
	reg.MustRegister(m.requestsTotal, m.requestBytes, m.decodeErrors, m.connectionsOpen)
	return m
}

// ObserveRequest records one handled request.
func (m *Registry) ObserveRequest(apiKey, apiVersion, errorCode int16, bytes int) {
	m.requestsTotal.WithLabelValues(
		strconv.Itoa(int(apiKey)),
		strconv.Itoa(int(apiVersion)),
		strconv.Itoa(int(errorCode)),
	).Inc()
	m.requestBytes.Observe(float64(bytes))
}

// ObserveDecodeError records a frame that failed to decode.
func (m *Registry) ObserveDecodeError() { m.decodeErrors.Inc() }

// ConnectionOpened increments the active-connection gauge.
func (m *Registry) ConnectionOpened() { m.connectionsOpen.Inc() }

// ConnectionClosed decrements the active-connection gauge.
func (m *Registry) ConnectionClosed() { m.connectionsOpen.Dec() }

// Handler returns an http.Handler serving this registry in the Prometheus
// exposition format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// nopRecorder discards everything; used when metrics are disabled.
type nopRecorder struct{}

func (nopRecorder) ObserveRequest(int16, int16, int16, int) {}
func (nopRecorder) ObserveDecodeError()                     {}
func (nopRecorder) ConnectionOpened()                       {}
func (nopRecorder) ConnectionClosed()                       {}

// NopRecorder returns a Recorder that does nothing.
func NopRecorder() Recorder { return nopRecorder{} }
