// Package metrics exposes the prometheus collectors shared by the
// connection pool and the RPC layer, generalizing the single
// updatePeersConnectedMetric gauge neo-go's network.Server keeps
// (pkg/network/server.go) into the small set anycall needs: live
// sessions (one total across all peers), in-flight calls in both
// directions, and ping outcomes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups the metrics a Registry exposes. Callers that don't
// want metrics can use NewNop, which returns collectors registered
// against a private, never-scraped registry.
type Collectors struct {
	LiveSessions     prometheus.Gauge
	LocalToRemote    prometheus.Gauge
	RemoteToLocal    prometheus.Gauge
	PingSuccessTotal prometheus.Counter
	PingFailureTotal prometheus.Counter
	CallsSentTotal   prometheus.Counter
	CallsFailedTotal prometheus.Counter
}

// New registers anycall's collectors on reg and returns them.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		LiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "anycall",
			Subsystem: "pool",
			Name:      "live_sessions",
			Help:      "Number of post-handshake sessions currently held by the connection pool.",
		}),
		LocalToRemote: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "anycall",
			Subsystem: "rpc",
			Name:      "local_to_remote_calls",
			Help:      "Number of calls this process initiated that are still in flight.",
		}),
		RemoteToLocal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "anycall",
			Subsystem: "rpc",
			Name:      "remote_to_local_calls",
			Help:      "Number of calls this process is currently executing on behalf of a remote peer.",
		}),
		PingSuccessTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anycall",
			Subsystem: "rpc",
			Name:      "ping_success_total",
			Help:      "Liveness pings that confirmed the remote still tracks the call.",
		}),
		PingFailureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anycall",
			Subsystem: "rpc",
			Name:      "ping_failure_total",
			Help:      "Liveness pings that timed out or came back negative.",
		}),
		CallsSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anycall",
			Subsystem: "rpc",
			Name:      "calls_sent_total",
			Help:      "Outbound calls successfully handed to the transport.",
		}),
		CallsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anycall",
			Subsystem: "rpc",
			Name:      "calls_failed_total",
			Help:      "Outbound calls that resolved with a failure of any kind.",
		}),
	}
	for _, coll := range []prometheus.Collector{
		c.LiveSessions, c.LocalToRemote, c.RemoteToLocal,
		c.PingSuccessTotal, c.PingFailureTotal,
		c.CallsSentTotal, c.CallsFailedTotal,
	} {
		reg.MustRegister(coll)
	}
	return c
}

// NewNop returns Collectors wired to a private registry, for callers
// (mainly tests) that don't want to touch the default global registry.
func NewNop() *Collectors {
	return New(prometheus.NewRegistry())
}
