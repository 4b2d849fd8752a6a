package app

import (
	"github.com/practice-robot/robot-bridge/internal"
	client_prometheus "github.com/prometheus/client_golang/prometheus"
)

var (
	ReadyMetric = client_prometheus.NewGauge(client_prometheus.GaugeOpts{
		Name: "robot_bridge_ready_status",
		Help: "Ready status of the bridge (1 = position stream live, 0 = not ready)",
	})

	VersionMetric = client_prometheus.NewGaugeVec(client_prometheus.GaugeOpts{
		Name: "robot_bridge_version_info",
		Help: "Version information of the bridge",
	}, []string{"version"})
)

// InitMetrics registers all Prometheus metrics and sets version info
func InitMetrics() {
	client_prometheus.MustRegister(ReadyMetric)
	client_prometheus.MustRegister(VersionMetric)
	VersionMetric.WithLabelValues(internal.VersionRevision).Set(1)
}
