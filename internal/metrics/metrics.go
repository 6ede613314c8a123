// Package metrics exposes the server's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatd"

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_active",
		Help:      "Number of open client connections.",
	})
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connections_total",
		Help:      "Accepted client connections since start.",
	})
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of authenticated sessions.",
	})
	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Commands handled, by verb.",
	}, []string{"verb"})
	PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "persist_failures_total",
		Help:      "Failed table writes, by table.",
	}, []string{"table"})
	AIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ai_requests_total",
		Help:      "AI generation requests, by outcome.",
	}, []string{"outcome"})
	KeyRotations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ai_key_rotations_total",
		Help:      "API key rotations after quota exhaustion.",
	})
	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_bytes_total",
		Help:      "Decoded bytes accepted by upload.",
	})
)

// Known command verbs; anything else is counted as "unknown" to keep label
// cardinality bounded.
var knownVerbs = map[string]bool{
	"help": true, "register": true, "login": true, "logout": true,
	"quit": true, "exit": true, "chat": true, "post": true, "send": true,
	"view": true, "read": true, "task": true, "ai": true, "upload": true,
	"download": true, "files": true, "users": true,
}

// ObserveCommand counts one handled command.
func ObserveCommand(verb string) {
	if !knownVerbs[verb] {
		verb = "unknown"
	}
	Commands.WithLabelValues(verb).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
