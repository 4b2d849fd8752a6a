package hub

import (
	"context"
	"sync"

	"github.com/practice-robot/robot-bridge/internal/models"
	"github.com/practice-robot/robot-bridge/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const ackMessage = "Connected to robot position stream"

var (
	activeSessionsMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "robot_bridge_active_sessions",
		Help: "The number of registered downstream sessions",
	})
	broadcastsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robot_bridge_broadcasts_total",
		Help: "The total number of envelopes fanned out to the registry",
	})
	sendFailuresMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robot_bridge_session_send_failures_total",
		Help: "The total number of failed per-session deliveries",
	})
)

// Session is one live downstream connection. Implementations must be
// comparable; the registry keys on the value itself. Send must not block:
// Accept calls it under the registry lock and Broadcast calls it for each
// session in turn, so a slow peer has to be queued or failed by the
// implementation.
type Session interface {
	ID() string
	Send(ctx context.Context, msg []byte) error
}

type Options struct {
	// PruneFailed removes a session from the registry after a failed delivery.
	PruneFailed bool
}

// Hub fans envelopes out to every registered session. A delivery failure is
// isolated to the session it happened on.
type Hub struct {
	mux      sync.RWMutex
	sessions map[Session]struct{}
	opts     Options
}

func New(opts Options) *Hub {
	return &Hub{
		sessions: make(map[Session]struct{}),
		opts:     opts,
	}
}

// Accept registers s and sends it the connection ack. The ack is queued
// under the write lock so no broadcast can reach s before it.
func (h *Hub) Accept(ctx context.Context, s Session) {
	ack, err := models.NewConnectionAck(ackMessage).Encode()
	if err != nil {
		log.WithField("prefix", "Hub.Accept").Errorf("failed to encode ack: %v", err)
		return
	}

	h.mux.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.sessions[s] = struct{}{}
		activeSessionsMetric.Inc()
	}
	n := len(h.sessions)
	err = h.deliver(ctx, s, ack)
	h.mux.Unlock()

	log.WithFields(log.Fields{
		"prefix":   "Hub.Accept",
		"session":  s.ID(),
		"sessions": n,
	}).Info("session registered")
	if err != nil {
		h.failed(s)
	}
}

// Remove unregisters s. Unknown sessions are ignored.
func (h *Hub) Remove(s Session) {
	h.mux.Lock()
	_, ok := h.sessions[s]
	if ok {
		delete(h.sessions, s)
		activeSessionsMetric.Dec()
	}
	n := len(h.sessions)
	h.mux.Unlock()

	if ok {
		log.WithFields(log.Fields{
			"prefix":   "Hub.Remove",
			"session":  s.ID(),
			"sessions": n,
		}).Info("session removed")
	}
}

// Len returns the number of registered sessions.
func (h *Hub) Len() int {
	h.mux.RLock()
	defer h.mux.RUnlock()
	return len(h.sessions)
}

// Broadcast sends a position_update envelope to every registered session.
// It never fails because of a session; the error is reserved for encoding.
func (h *Hub) Broadcast(ctx context.Context, position models.Position) error {
	if h.Len() == 0 {
		return nil
	}
	return h.BroadcastEnvelope(ctx, models.NewPositionUpdate(position))
}

// BroadcastEnvelope encodes env once and delivers the same bytes to a
// snapshot of the registry.
func (h *Hub) BroadcastEnvelope(ctx context.Context, env models.Envelope) error {
	snapshot := h.snapshot()
	if len(snapshot) == 0 {
		return nil
	}

	msg, err := env.Encode()
	if err != nil {
		return err
	}
	broadcastsMetric.Inc()

	var failed []Session
	for _, s := range snapshot {
		if err := h.deliver(ctx, s, msg); err != nil {
			failed = append(failed, s)
		}
	}
	for _, s := range failed {
		h.failed(s)
	}
	return nil
}

// SendEvent delivers a single envelope to s. Delivery failures are logged,
// not returned.
func (h *Hub) SendEvent(ctx context.Context, s Session, env models.Envelope) error {
	msg, err := env.Encode()
	if err != nil {
		return err
	}
	if err := h.deliver(ctx, s, msg); err != nil {
		h.failed(s)
	}
	return nil
}

// Notify broadcasts a control notice with a single message field.
func (h *Hub) Notify(ctx context.Context, tag models.EventTag, message string) error {
	env, err := models.NewNotice(tag, models.Notice{"message": message})
	if err != nil {
		return err
	}
	return h.BroadcastEnvelope(ctx, env)
}

func (h *Hub) snapshot() []Session {
	h.mux.RLock()
	defer h.mux.RUnlock()
	out := make([]Session, 0, len(h.sessions))
	for s := range h.sessions {
		out = append(out, s)
	}
	return out
}

func (h *Hub) deliver(ctx context.Context, s Session, msg []byte) error {
	err := utils.CallWithRecovery(func() error {
		return s.Send(ctx, msg)
	})
	if err != nil {
		sendFailuresMetric.Inc()
		log.WithFields(log.Fields{
			"prefix":  "Hub.deliver",
			"session": s.ID(),
		}).Errorf("failed to deliver message: %v", err)
	}
	return err
}

func (h *Hub) failed(s Session) {
	if h.opts.PruneFailed {
		h.Remove(s)
	}
}
