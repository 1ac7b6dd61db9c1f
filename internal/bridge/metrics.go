package bridge

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kopiad",
			Subsystem: "bridge",
			Name:      "events_total",
			Help:      "Total envelopes emitted on the UI sink",
		},
		[]string{"repo"},
	)

	parseFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kopiad",
			Subsystem: "bridge",
			Name:      "parse_failures_total",
			Help:      "Stream messages dropped because they did not parse",
		},
		[]string{"repo"},
	)

	connectionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kopiad",
			Subsystem: "bridge",
			Name:      "connections",
			Help:      "Currently connected event streams",
		},
	)
)

func init() {
	prometheus.MustRegister(eventsTotal, parseFailuresTotal, connectionsGauge)
}
