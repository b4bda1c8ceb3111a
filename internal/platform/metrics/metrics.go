package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch results used as the "result" label of player_fetch_requests_total.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultTimeout = "timeout"
)

// Metrics holds Prometheus counters and gauges for the player.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry           *prometheus.Registry
	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
	fetchRequestsTotal *prometheus.CounterVec
	fetchBytesTotal    prometheus.Counter
	appendsTotal       *prometheus.CounterVec
	abortsTotal        prometheus.Counter
	seeksTotal         prometheus.Counter
	trackSwitchesTotal prometheus.Counter
	endOfStreamTotal   prometheus.Counter
	bufferedAhead      *prometheus.GaugeVec
}

// New creates and registers Prometheus metrics for the player.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "player_api_requests_total",
		Help: "Total number of control API requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "player_api_errors_total",
		Help: "Total number of control API responses with error status (4xx or 5xx)",
	})
	fetchRequestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "player_fetch_requests_total",
		Help: "Total number of manifest and segment fetches by result",
	}, []string{"result"})
	fetchBytesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "player_fetch_bytes_total",
		Help: "Total number of bytes received from successful fetches",
	})
	appendsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "player_appends_total",
		Help: "Total number of units appended to playback buffers",
	}, []string{"content_type"})
	abortsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "player_appends_aborted_total",
		Help: "Total number of in-flight appends aborted by a seek or track switch",
	})
	seeksTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "player_seeks_total",
		Help: "Total number of seeks detected by the position tracker",
	})
	trackSwitchesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "player_track_switches_total",
		Help: "Total number of rendition selections",
	})
	endOfStreamTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "player_end_of_stream_total",
		Help: "Total number of end-of-stream signals sent to playback buffers",
	})
	bufferedAhead := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "player_buffered_ahead_segments",
		Help: "Contiguous downloaded segments from the play cursor onwards",
	}, []string{"content_type"})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		fetchRequestsTotal,
		fetchBytesTotal,
		appendsTotal,
		abortsTotal,
		seeksTotal,
		trackSwitchesTotal,
		endOfStreamTotal,
		bufferedAhead,
	)

	return &Metrics{
		registry:           registry,
		requestsTotal:      requestsTotal,
		errorsTotal:        errorsTotal,
		fetchRequestsTotal: fetchRequestsTotal,
		fetchBytesTotal:    fetchBytesTotal,
		appendsTotal:       appendsTotal,
		abortsTotal:        abortsTotal,
		seeksTotal:         seeksTotal,
		trackSwitchesTotal: trackSwitchesTotal,
		endOfStreamTotal:   endOfStreamTotal,
		bufferedAhead:      bufferedAhead,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// ObserveFetch records one fetch with its result label and payload size.
func (m *Metrics) ObserveFetch(result string, bytes int) {
	if m == nil {
		return
	}
	m.fetchRequestsTotal.WithLabelValues(result).Inc()
	if bytes > 0 {
		m.fetchBytesTotal.Add(float64(bytes))
	}
}

// IncAppends increments the appended units counter for a content type.
func (m *Metrics) IncAppends(contentType string) {
	if m == nil {
		return
	}
	m.appendsTotal.WithLabelValues(contentType).Inc()
}

// IncAborts increments the aborted appends counter.
func (m *Metrics) IncAborts() {
	if m == nil {
		return
	}
	m.abortsTotal.Inc()
}

// IncSeeks increments the seeks counter.
func (m *Metrics) IncSeeks() {
	if m == nil {
		return
	}
	m.seeksTotal.Inc()
}

// IncTrackSwitches increments the track switch counter.
func (m *Metrics) IncTrackSwitches() {
	if m == nil {
		return
	}
	m.trackSwitchesTotal.Inc()
}

// IncEndOfStream increments the end-of-stream counter.
func (m *Metrics) IncEndOfStream() {
	if m == nil {
		return
	}
	m.endOfStreamTotal.Inc()
}

// SetBufferedAhead sets the buffered-ahead gauge for a content type.
func (m *Metrics) SetBufferedAhead(contentType string, n int) {
	if m == nil {
		return
	}
	m.bufferedAhead.WithLabelValues(contentType).Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
