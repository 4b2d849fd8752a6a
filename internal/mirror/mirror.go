package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/practice-robot/robot-bridge/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var publishedMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "robot_bridge_mirror_published_total",
	Help: "The total number of position envelopes published to NATS",
}, []string{"result"})

// Publisher is the part of *nats.Conn the mirror uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Mirror republishes every position envelope on a NATS subject.
type Mirror struct {
	pub     Publisher
	subject string
	conn    *nats.Conn
}

func New(pub Publisher, subject string) *Mirror {
	return &Mirror{pub: pub, subject: subject}
}

// Connect dials url and returns a mirror that owns the connection.
func Connect(url, subject string) (*Mirror, error) {
	log := log.WithField("prefix", "mirror.Connect")
	nc, err := nats.Connect(url,
		nats.Name("robot-bridge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	m := New(nc, subject)
	m.conn = nc
	log.Infof("mirroring positions to nats subject %q", subject)
	return m, nil
}

// Broadcast publishes the position_update envelope for position.
func (m *Mirror) Broadcast(_ context.Context, position models.Position) error {
	msg, err := models.NewPositionUpdate(position).Encode()
	if err != nil {
		return err
	}
	if err := m.pub.Publish(m.subject, msg); err != nil {
		publishedMetric.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish to %s: %w", m.subject, err)
	}
	publishedMetric.WithLabelValues("ok").Inc()
	return nil
}

// Close drains the owned connection, if any.
func (m *Mirror) Close() {
	if m.conn == nil {
		return
	}
	if err := m.conn.Drain(); err != nil {
		log.WithField("prefix", "Mirror.Close").Warnf("nats drain failed: %v", err)
		m.conn.Close()
	}
}
