package engine

import "github.com/prometheus/client_golang/prometheus"

var instancesGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "kopiad",
		Subsystem: "engine",
		Name:      "instances",
		Help:      "Currently registered engine instances",
	},
)

func init() {
	prometheus.MustRegister(instancesGauge)
}
