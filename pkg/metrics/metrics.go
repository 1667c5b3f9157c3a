// Package metrics exposes Prometheus collectors for synchronization, the
// operation log and the relay.
//
// A Collector owns its registry, so several rooms (or tests) never share
// counters. All methods are safe on a nil *Collector, which turns
// instrumentation off.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Propagation directions.
const (
	LocalToShared = "local_to_shared"
	SharedToLocal = "shared_to_local"
)

// Skip reasons for a propagation that did not happen.
const (
	SkipGuard     = "guard"     // a propagation was already in flight
	SkipUnchanged = "unchanged" // target already holds the value
	SkipEcho      = "echo"      // value is this bridge's own last write
)

// Collector groups the coedit collectors around one registry.
type Collector struct {
	Registry *prometheus.Registry

	Propagations  *prometheus.CounterVec
	Skipped       *prometheus.CounterVec
	LogEntries    *prometheus.CounterVec
	LogEvictions  prometheus.Counter
	Sessions      prometheus.Gauge
	ProbeResults  *prometheus.CounterVec
	RelayPeers    prometheus.Gauge
	RelayFrames   prometheus.Counter
	ArchiveErrors prometheus.Counter
}

// New creates a Collector with a fresh registry. With withRuntime set the
// Go runtime and process collectors are registered too.
func New(withRuntime bool) *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		Propagations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coedit_propagations_total",
			Help: "Text propagations between agent documents and the shared document.",
		}, []string{"direction"}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coedit_propagations_skipped_total",
			Help: "Propagations suppressed by the sync guard or idempotence checks.",
		}, []string{"direction", "reason"}),
		LogEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coedit_oplog_entries_total",
			Help: "Operation log entries appended, by kind.",
		}, []string{"kind"}),
		LogEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coedit_oplog_evictions_total",
			Help: "Operation log entries evicted by the size bound.",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coedit_sessions_active",
			Help: "Agent sessions currently attached to a room.",
		}),
		ProbeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coedit_relay_probes_total",
			Help: "Relay availability probes, by outcome.",
		}, []string{"status"}),
		RelayPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coedit_relay_peers",
			Help: "Peers connected to the relay hub.",
		}),
		RelayFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coedit_relay_frames_total",
			Help: "Update frames received by the relay hub.",
		}),
		ArchiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coedit_archive_errors_total",
			Help: "Failed writes to the operation archive.",
		}),
	}
	c.Registry.MustRegister(
		c.Propagations, c.Skipped,
		c.LogEntries, c.LogEvictions,
		c.Sessions, c.ProbeResults,
		c.RelayPeers, c.RelayFrames,
		c.ArchiveErrors,
	)
	if withRuntime {
		c.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{Registry: c.Registry})
}

func (c *Collector) Propagated(direction string) {
	if c != nil {
		c.Propagations.WithLabelValues(direction).Inc()
	}
}

func (c *Collector) Skip(direction, reason string) {
	if c != nil {
		c.Skipped.WithLabelValues(direction, reason).Inc()
	}
}

func (c *Collector) EntryAppended(kind string) {
	if c != nil {
		c.LogEntries.WithLabelValues(kind).Inc()
	}
}

func (c *Collector) EntryEvicted() {
	if c != nil {
		c.LogEvictions.Inc()
	}
}

func (c *Collector) SessionOpened() {
	if c != nil {
		c.Sessions.Inc()
	}
}

func (c *Collector) SessionClosed() {
	if c != nil {
		c.Sessions.Dec()
	}
}

func (c *Collector) Probed(status string) {
	if c != nil {
		c.ProbeResults.WithLabelValues(status).Inc()
	}
}

func (c *Collector) RelayPeerJoined() {
	if c != nil {
		c.RelayPeers.Inc()
	}
}

func (c *Collector) RelayPeerLeft() {
	if c != nil {
		c.RelayPeers.Dec()
	}
}

func (c *Collector) RelayFrame() {
	if c != nil {
		c.RelayFrames.Inc()
	}
}

func (c *Collector) ArchiveFailed() {
	if c != nil {
		c.ArchiveErrors.Inc()
	}
}
