package app

import (
	"context"
	"sync/atomic"

	"github.com/practice-robot/robot-bridge/internal/models"
	"github.com/practice-robot/robot-bridge/internal/tracker"
	log "github.com/sirupsen/logrus"
)

// Upstream is the stream client as seen by the bridge.
type Upstream interface {
	SetSink(sink tracker.Sink)
	Connect(ctx context.Context)
	StartTracking(ctx context.Context)
	StopTracking()
}

// Bridge connects the upstream position stream to a sink for the lifetime
// of the process.
type Bridge struct {
	upstream Upstream
	sink     tracker.Sink
}

func NewBridge(upstream Upstream, sink tracker.Sink) *Bridge {
	return &Bridge{upstream: upstream, sink: sink}
}

// Start registers the sink before tracking begins so the first positions
// are not lost.
func (b *Bridge) Start(ctx context.Context) {
	b.upstream.SetSink(b.sink)
	b.upstream.Connect(ctx)
	b.upstream.StartTracking(ctx)
	log.WithField("prefix", "Bridge.Start").Info("bridge started")
}

func (b *Bridge) Stop() {
	b.upstream.StopTracking()
	log.WithField("prefix", "Bridge.Stop").Info("bridge stopped")
}

// Notifier broadcasts a control notice to every session.
type Notifier interface {
	Notify(ctx context.Context, tag models.EventTag, message string) error
}

// UpstreamNotices turns link changes into downstream notices. The first
// link-up after startup is silent; later ones follow a disconnected notice.
func UpstreamNotices(n Notifier) func(up bool) {
	var lost atomic.Bool
	return func(up bool) {
		log := log.WithField("prefix", "UpstreamNotices")
		tag, message := models.EventDisconnected, "robot tracker connection lost"
		if up {
			if !lost.Swap(false) {
				return
			}
			tag, message = models.EventReconnected, "robot tracker connection restored"
		} else {
			lost.Store(true)
		}
		if err := n.Notify(context.Background(), tag, message); err != nil {
			log.Errorf("failed to send %s notice: %v", tag, err)
		}
	}
}
