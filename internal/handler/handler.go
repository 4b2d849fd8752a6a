package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/practice-robot/robot-bridge/internal/hub"
	"github.com/practice-robot/robot-bridge/internal/utils"
	"github.com/sirupsen/logrus"
)

const maxInboundMessageSize = 4096

// Registry is the part of the broadcast hub the endpoint needs.
type Registry interface {
	Accept(ctx context.Context, s hub.Session)
	Remove(s hub.Session)
	Len() int
}

// Upstream reports the robot tracker link for the status endpoint.
type Upstream interface {
	State() string
	Live() bool
}

type Options struct {
	QueueSize    int
	PingInterval time.Duration
}

type handler struct {
	registry Registry
	upstream Upstream
	upgrader websocket.Upgrader
	opts     Options
}

func NewHandler(registry Registry, upstream Upstream, opts Options) *handler {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	return &handler{
		registry: registry,
		upstream: upstream,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type statusResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Upstream    string `json:"upstream"`
	Live        bool   `json:"live"`
}

// StatusHandler reports process liveness, the session count and the upstream state.
func (h *handler) StatusHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Status:      "running",
		Connections: h.registry.Len(),
		Upstream:    h.upstream.State(),
		Live:        h.upstream.Live(),
	})
}

// RobotSocketHandler upgrades the request and keeps the session registered
// until the peer goes away. Inbound frames are read only to detect that.
func (h *handler) RobotSocketHandler(c echo.Context) error {
	log := logrus.WithField("prefix", "RobotSocketHandler")

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already replied with an HTTP error
		log.Warnf("websocket upgrade failed: %v", err)
		return nil
	}

	traceID := c.QueryParam("trace_id")
	session := NewSession(ParseOrGenerateSessionID(traceID, traceID != ""), conn, h.opts.QueueSize, h.opts.PingInterval)
	log = log.WithFields(logrus.Fields{
		"session": session.ID(),
		"origin":  utils.ExtractOrigin(c.Request().Header.Get("Origin")),
	})

	session.Start()
	h.registry.Accept(c.Request().Context(), session)
	log.Info("websocket session opened")

	h.readPump(conn)

	h.registry.Remove(session)
	session.Close()
	log.Info("websocket session closed")
	return nil
}

func (h *handler) readPump(conn *websocket.Conn) {
	pongWait := 2 * h.opts.PingInterval
	conn.SetReadLimit(maxInboundMessageSize)
	extend := func() {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logrus.WithField("prefix", "RobotSocketHandler.readPump").Debugf("read error: %v", err)
			}
			return
		}
		extend()
	}
}
