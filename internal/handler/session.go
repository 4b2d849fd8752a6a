package handler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const writeWait = 10 * time.Second

var (
	ErrSessionClosed = errors.New("session is closed")
	ErrQueueFull     = errors.New("session queue is full")
)

var queueDropsMetric = promauto.NewCounter(prometheus.CounterOpts{
	Name: "robot_bridge_session_queue_drops_total",
	Help: "The total number of messages dropped because a session queue was full",
})

// Session is a websocket connection with a bounded outbound queue drained by
// its own writer goroutine, so a slow peer never blocks the broadcaster.
type Session struct {
	id           string
	conn         *websocket.Conn
	queue        chan []byte
	pingInterval time.Duration

	started   atomic.Bool
	closer    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewSession(id string, conn *websocket.Conn, queueSize int, pingInterval time.Duration) *Session {
	return &Session{
		id:           id,
		conn:         conn,
		queue:        make(chan []byte, queueSize),
		pingInterval: pingInterval,
		closer:       make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Start launches the writer goroutine once.
func (s *Session) Start() {
	if s.started.CompareAndSwap(false, true) {
		go s.writer()
	}
}

// Send queues msg for delivery without blocking.
func (s *Session) Send(ctx context.Context, msg []byte) error {
	select {
	case <-s.closer:
		return ErrSessionClosed
	default:
	}

	select {
	case s.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		queueDropsMetric.Inc()
		return ErrQueueFull
	}
}

// Close stops the writer, sends a close frame and closes the connection.
// It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closer)
		// claiming the start flag keeps a late Start from launching a writer
		if s.started.CompareAndSwap(false, true) {
			close(s.done)
		}
		select {
		case <-s.done:
		case <-time.After(writeWait):
		}
		if err := s.conn.Close(); err != nil {
			log.WithField("prefix", "Session.Close").Debugf("close websocket %s: %v", s.id, err)
		}
	})
}

func (s *Session) writer() {
	log := log.WithFields(log.Fields{"prefix": "Session.writer", "session": s.id})
	defer close(s.done)

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closer:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		case msg := <-s.queue:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Debugf("set write deadline: %v", err)
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Warnf("write failed, dropping connection: %v", err)
				// unblocks the read pump, which unregisters the session
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warnf("ping failed, dropping connection: %v", err)
				_ = s.conn.Close()
				return
			}
		}
	}
}
