// Package metrics provides Prometheus collectors for session/server
// observability (spec component C9). github.com/prometheus/client_golang
// is an indirect dependency of the teacher (pulled in transitively by its
// OpenTelemetry/Kubernetes stack); this package promotes it to a direct,
// exercised dependency.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector groups the gauges and counters a running session/server
// exposes. A nil *Collector is safe to use everywhere its methods are
// called: they become no-ops, mirroring how Config.Logger defaults to a
// no-op Logger rather than requiring every caller to nil-check.
type Collector struct {
	InFlight      prometheus.Gauge
	RealInFlight  prometheus.Gauge
	Throttled     prometheus.Gauge
	WriteBatches  prometheus.Counter
	SessionsTotal prometheus.Counter
}

// New constructs a Collector and registers its collectors against reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcsession_in_flight",
			Help: "Outstanding transactions (real + multi-op sub-requests) across all sessions.",
		}),
		RealInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcsession_real_in_flight",
			Help: "Outstanding transactions counted toward the per-session throttle cap.",
		}),
		Throttled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcsession_throttled",
			Help: "Number of sessions currently paused with reason Throttled.",
		}),
		WriteBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcsession_write_batches_total",
			Help: "Total number of writev-style batches issued across all sessions.",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcsession_sessions_total",
			Help: "Total number of sessions constructed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.InFlight, c.RealInFlight, c.Throttled, c.WriteBatches, c.SessionsTotal)
	}
	return c
}

func (c *Collector) incInFlight(delta float64) {
	if c == nil {
		return
	}
	c.InFlight.Add(delta)
}

func (c *Collector) incRealInFlight(delta float64) {
	if c == nil {
		return
	}
	c.RealInFlight.Add(delta)
}

// SetThrottled records whether a session transitioned into or out of
// the Throttled pause reason.
func (c *Collector) SetThrottled(throttled bool) {
	if c == nil {
		return
	}
	if throttled {
		c.Throttled.Inc()
	} else {
		c.Throttled.Dec()
	}
}

// ObserveTransactionStarted records a transaction joining in_flight
// (and real_in_flight when it is not a sub-request).
func (c *Collector) ObserveTransactionStarted(isSubRequest bool) {
	if c == nil {
		return
	}
	c.incInFlight(1)
	if !isSubRequest {
		c.incRealInFlight(1)
	}
}

// ObserveTransactionCompleted records a transaction leaving in_flight.
func (c *Collector) ObserveTransactionCompleted(isSubRequest bool) {
	if c == nil {
		return
	}
	c.incInFlight(-1)
	if !isSubRequest {
		c.incRealInFlight(-1)
	}
}

// ObserveWriteBatch records one writev-style batch being issued.
func (c *Collector) ObserveWriteBatch() {
	if c == nil {
		return
	}
	c.WriteBatches.Inc()
}

// ObserveSessionCreated records a new session being constructed.
func (c *Collector) ObserveSessionCreated() {
	if c == nil {
		return
	}
	c.SessionsTotal.Inc()
}
