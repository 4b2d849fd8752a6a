package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/practice-robot/robot-bridge/internal/utils"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/connectivity"
)

// spawnMonitor starts the channel monitor unless one is already running.
// wg must already be held by the caller's task so Add cannot race Wait.
func (c *Client) spawnMonitor(ctx context.Context, wg *sync.WaitGroup) {
	if !c.monitorActive.CompareAndSwap(false, true) {
		return
	}
	wg.Add(1)
	utils.RunWithRecovery(func() {
		defer wg.Done()
		defer c.monitorActive.Store(false)
		c.monitor(ctx)
	})
}

// monitor polls the channel state and logs readiness transitions. It has no
// influence on the read loop and exits once tracking stops or the channel is
// cleared; the read loop starts a new one with the next channel.
func (c *Client) monitor(ctx context.Context) {
	log := log.WithField("prefix", "Client.monitor")

	ticker := time.NewTicker(c.opts.MonitorInterval)
	defer ticker.Stop()

	last := connectivity.State(-1)
	for {
		conn := c.transport()
		if conn == nil || !c.desired(ctx) {
			log.Debug("channel monitor stopped")
			return
		}

		state := conn.GetState()
		if state != last {
			setStateMetric(state)
			fields := log.WithFields(map[string]interface{}{
				"from": stateName(last),
				"to":   state.String(),
			})
			switch {
			case state == connectivity.Ready:
				fields.Info("channel became ready")
			case last == connectivity.Ready:
				fields.Warn("channel is no longer ready")
			default:
				fields.Info("channel state changed")
			}
			last = state
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func stateName(s connectivity.State) string {
	if s < 0 {
		return "NONE"
	}
	return s.String()
}
