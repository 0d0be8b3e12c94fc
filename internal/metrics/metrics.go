// Package metrics exposes Prometheus instrumentation for the RPC peer
// and the Sweep client. Every method is nil-safe — calling it on a nil
// *Collector is a no-op — so components never need guard checks
// (the same convention the teacher pack's nil-safe event bus uses).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus collectors shared by internal/rpc and
// the sweep package. Construct with New, which registers every metric
// with the given registry; a nil *Collector disables instrumentation
// entirely.
type Collector struct {
	callsTotal       *prometheus.CounterVec
	callDuration     *prometheus.HistogramVec
	pendingRequests  prometheus.Gauge
	eventsDispatched *prometheus.CounterVec
	itemsUploaded    *prometheus.CounterVec
	batchDuration    prometheus.Histogram
}

// New creates a Collector with all metrics registered under the given
// Prometheus registry. Pass prometheus.NewRegistry() for an isolated
// registry, or prometheus.DefaultRegisterer-wrapped registry to expose
// via the default /metrics handler.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_rpc_calls_total",
			Help: "Outbound RPC calls completed, by method and outcome.",
		}, []string{"method", "outcome"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sweep_rpc_call_duration_seconds",
			Help:    "Outbound RPC call latency, by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sweep_rpc_pending_requests",
			Help: "Outstanding outbound RPC calls awaiting a response.",
		}),
		eventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_rpc_events_dispatched_total",
			Help: "Inbound notifications delivered to the request stream, by method.",
		}, []string{"method"}),
		itemsUploaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_items_uploaded_total",
			Help: "Items sent via items_extend, by window.",
		}, []string{"window"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sweep_items_batch_duration_seconds",
			Help:    "Wall-clock duration of each items_extend batch.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			c.callsTotal, c.callDuration, c.pendingRequests,
			c.eventsDispatched, c.itemsUploaded, c.batchDuration,
		)
	}
	return c
}

// StartCall records the start of an outbound call and returns a
// function to call with the outcome (true on success) when it
// completes.
func (c *Collector) StartCall(method string) func(ok bool) {
	if c == nil {
		return func(bool) {}
	}
	start := time.Now()
	return func(ok bool) {
		outcome := "error"
		if ok {
			outcome = "ok"
		}
		c.callsTotal.WithLabelValues(method, outcome).Inc()
		c.callDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
}

// SetPendingRequests reports the current size of the pending-call map.
func (c *Collector) SetPendingRequests(n int) {
	if c == nil {
		return
	}
	c.pendingRequests.Set(float64(n))
}

// IncEventsDispatched records one inbound notification delivered to
// the request stream.
func (c *Collector) IncEventsDispatched(method string) {
	if c == nil {
		return
	}
	c.eventsDispatched.WithLabelValues(method).Inc()
}

// ObserveItemsUploaded records one items_extend batch: its item count
// for the named window and its wall-clock duration.
func (c *Collector) ObserveItemsUploaded(window string, count int, duration time.Duration) {
	if c == nil {
		return
	}
	c.itemsUploaded.WithLabelValues(window).Add(float64(count))
	c.batchDuration.Observe(duration.Seconds())
}
