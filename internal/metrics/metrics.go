// Package metrics exposes session activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "console"

// Recorder implements session.Metrics.
type Recorder struct {
	connected      prometheus.Gauge
	connectsTotal  *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	malformed      prometheus.Counter
	sendFailures   prometheus.Counter
	pingRTT        prometheus.Histogram
	pingTimeouts   prometheus.Counter

	factory promauto.Factory
}

// New registers the console metrics with reg. A nil reg uses a fresh registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Recorder{
		factory: factory,
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "socket_open",
			Help:      "1 while the robot socket is open",
		}),
		connectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Connection attempts by outcome",
		}, []string{"outcome"}),
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames by type",
		}, []string{"type"}),
		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Outbound frames by type",
		}, []string{"type"}),
		malformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_malformed_total",
			Help:      "Inbound frames that were not valid JSON",
		}),
		sendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Socket writes that failed",
		}),
		pingRTT: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ping_rtt_seconds",
			Help:      "Round-trip time of answered pings",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		pingTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ping_timeouts_total",
			Help:      "Pings that received no pong in time",
		}),
	}
}

func (r *Recorder) ConnectionChanged(connected bool) {
	if connected {
		r.connected.Set(1)
		r.connectsTotal.WithLabelValues("opened").Inc()
		return
	}
	r.connected.Set(0)
}

func (r *Recorder) DialFailed() {
	r.connectsTotal.WithLabelValues("failed").Inc()
}

func (r *Recorder) FrameReceived(kind string) {
	r.framesReceived.WithLabelValues(kind).Inc()
}

func (r *Recorder) MalformedFrame() {
	r.malformed.Inc()
}

func (r *Recorder) FrameSent(kind string) {
	r.framesSent.WithLabelValues(kind).Inc()
}

func (r *Recorder) SendFailed() {
	r.sendFailures.Inc()
}

func (r *Recorder) PingAcknowledged(rtt time.Duration) {
	r.pingRTT.Observe(rtt.Seconds())
}

func (r *Recorder) PingTimedOut() {
	r.pingTimeouts.Inc()
}

// GaugeSource reports live session figures sampled at scrape time.
type GaugeSource interface {
	Listeners() int
	PendingPings() int
	DroppedEvents() int64
}

// ObserveSession registers scrape-time gauges backed by src.
func (r *Recorder) ObserveSession(src GaugeSource) {
	r.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "listeners",
		Help:      "Attached session listeners",
	}, func() float64 { return float64(src.Listeners()) })
	r.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_pings",
		Help:      "Pings awaiting a pong",
	}, func() float64 { return float64(src.PendingPings()) })
	r.factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listener_events_dropped_total",
		Help:      "Events skipped because a listener was full",
	}, func() float64 { return float64(src.DroppedEvents()) })
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
