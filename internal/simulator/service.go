package simulator

import (
	"sync/atomic"
	"time"

	"github.com/practice-robot/robot-bridge/internal/trackerpb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	activeStreamsMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "robot_tracker_active_streams",
		Help: "The number of open TrackRobot streams",
	})
	sentPositionsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robot_tracker_positions_sent_total",
		Help: "The total number of positions sent to clients",
	})
)

// Service implements TrackRobot by sending a generated position every interval.
type Service struct {
	generator Generator
	interval  time.Duration
	streams   atomic.Int64
}

func NewService(generator Generator, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Second
	}
	return &Service{generator: generator, interval: interval}
}

func (s *Service) TrackRobot(_ *trackerpb.TrackRequest, stream trackerpb.RobotTracker_TrackRobotServer) error {
	log := log.WithFields(log.Fields{
		"prefix": "Service.TrackRobot",
		"stream": s.streams.Add(1),
	})
	log.Info("robot tracking started")
	activeStreamsMetric.Inc()
	defer activeStreamsMetric.Dec()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	done := stream.Context().Done()
	for {
		select {
		case <-done:
			log.Info("client closed the stream")
			return nil
		case <-ticker.C:
			position := s.generator.Generate()
			if err := stream.Send(position); err != nil {
				log.Errorf("failed to send position: %v", err)
				return err
			}
			sentPositionsMetric.Inc()
			log.Debugf("sent position x=%v y=%v timestamp=%v", position.X, position.Y, position.Timestamp)
		}
	}
}
