package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc/connectivity"
)

var (
	upstreamStateMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "robot_bridge_upstream_state",
		Help: "Connectivity state of the robot-tracker channel (1 for the current state)",
	}, []string{"state"})
	upstreamLiveMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "robot_bridge_upstream_live",
		Help: "1 while a position stream is delivering, 0 otherwise",
	})
	reconnectsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robot_bridge_upstream_reconnects_total",
		Help: "The total number of upstream reconnect attempts",
	})
	rpcErrorsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robot_bridge_upstream_rpc_errors_total",
		Help: "The total number of TrackRobot stream failures by status code",
	}, []string{"code"})
	positionsReceivedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robot_bridge_positions_received_total",
		Help: "The total number of positions received from the tracker",
	})
	sinkFailuresMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robot_bridge_sink_failures_total",
		Help: "The total number of positions the sink failed to handle",
	})
)

var trackedStates = []connectivity.State{
	connectivity.Idle,
	connectivity.Connecting,
	connectivity.Ready,
	connectivity.TransientFailure,
	connectivity.Shutdown,
}

func setStateMetric(current connectivity.State) {
	for _, s := range trackedStates {
		v := 0.0
		if s == current {
			v = 1
		}
		upstreamStateMetric.WithLabelValues(s.String()).Set(v)
	}
}
