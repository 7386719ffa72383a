// Package metrics exposes Prometheus collectors for the agent core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the agent's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	linkState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "automata",
			Subsystem: "network",
			Name:      "link_state",
			Help:      "Current link state (0 disconnected, 1 associating, 2 associated).",
		},
	)

	associationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "automata",
			Subsystem: "network",
			Name:      "association_attempts_total",
			Help:      "Association attempts by outcome.",
		},
		[]string{"result"},
	)

	registrationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "automata",
			Subsystem: "registration",
			Name:      "attempts_total",
			Help:      "Registration attempts by outcome.",
		},
		[]string{"result"},
	)

	registrationRetries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "automata",
			Subsystem: "registration",
			Name:      "retry_count",
			Help:      "Consecutive failed registration attempts since the last success.",
		},
	)

	sessionConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "automata",
			Subsystem: "session",
			Name:      "connects_total",
			Help:      "Messaging session connect attempts by outcome.",
		},
		[]string{"result"},
	)

	sessionConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "automata",
			Subsystem: "session",
			Name:      "connected",
			Help:      "1 while the messaging session is open.",
		},
	)

	publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "automata",
			Subsystem: "session",
			Name:      "publishes_total",
			Help:      "Outbound publishes by topic kind and outcome.",
		},
		[]string{"kind", "result"},
	)

	inboxDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "automata",
			Subsystem: "session",
			Name:      "inbox_dropped_total",
			Help:      "Inbound messages dropped because the inbox was full.",
		},
	)

	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "automata",
			Subsystem: "dispatch",
			Name:      "commands_total",
			Help:      "Inbound commands by kind and outcome.",
		},
		[]string{"kind", "result"},
	)
)

func init() {
	Registry.MustRegister(
		linkState,
		associationAttempts,
		registrationAttempts,
		registrationRetries,
		sessionConnects,
		sessionConnected,
		publishes,
		inboxDropped,
		commands,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// SetLinkState records the controller's current link state.
func SetLinkState(state int) {
	linkState.Set(float64(state))
}

// RecordAssociation counts one association attempt.
func RecordAssociation(ok bool) {
	associationAttempts.WithLabelValues(result(ok)).Inc()
}

// RecordRegistration counts one registration attempt and the retry count after it.
func RecordRegistration(ok bool, retryCount uint32) {
	registrationAttempts.WithLabelValues(result(ok)).Inc()
	registrationRetries.Set(float64(retryCount))
}

// RecordSessionConnect counts one session connect attempt.
func RecordSessionConnect(ok bool) {
	sessionConnects.WithLabelValues(result(ok)).Inc()
	if ok {
		sessionConnected.Set(1)
	}
}

// SessionClosed marks the session as down.
func SessionClosed() {
	sessionConnected.Set(0)
}

// RecordPublish counts one outbound publish.
func RecordPublish(kind string, ok bool) {
	publishes.WithLabelValues(kind, result(ok)).Inc()
}

// RecordInboxDrop counts one inbound message dropped on overflow.
func RecordInboxDrop() {
	inboxDropped.Inc()
}

// RecordCommand counts one inbound command. outcome is "ok", "malformed" or "ignored".
func RecordCommand(kind, outcome string) {
	commands.WithLabelValues(kind, outcome).Inc()
}
