package tracker

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/practice-robot/robot-bridge/internal/models"
	"github.com/practice-robot/robot-bridge/internal/trackerpb"
	"github.com/practice-robot/robot-bridge/internal/utils"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// Sink consumes every position decoded from the stream. An error or a panic
// is logged and never interrupts the stream.
type Sink interface {
	Broadcast(ctx context.Context, position models.Position) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, position models.Position) error

func (f SinkFunc) Broadcast(ctx context.Context, position models.Position) error {
	return f(ctx, position)
}

// Conn is the part of *grpc.ClientConn the client uses.
type Conn interface {
	grpc.ClientConnInterface
	GetState() connectivity.State
	Connect()
	WaitForStateChange(ctx context.Context, sourceState connectivity.State) bool
	Close() error
}

// DialFunc opens a channel to target. It must not block on connectivity.
type DialFunc func(target string, opts ...grpc.DialOption) (Conn, error)

func dialGRPC(target string, opts ...grpc.DialOption) (Conn, error) {
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return cc, nil
}

type Options struct {
	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration
	MonitorInterval  time.Duration
	BackoffMin       time.Duration
	BackoffMax       time.Duration
	StopGrace        time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	MaxMessageSize   int

	Dial        DialFunc
	DialOptions []grpc.DialOption

	// OnLinkChange is called from the read loop when a stream becomes live
	// (up) and when a live stream is lost while tracking is still wanted.
	OnLinkChange func(up bool)
}

// Client keeps a TrackRobot stream open against the robot tracker and hands
// every position to the registered Sink, reconnecting with exponential
// backoff until StopTracking is called.
type Client struct {
	target  string
	opts    Options
	backoff *reconnectBackoff

	lifecycle sync.Mutex // serializes StartTracking and StopTracking

	mu       sync.Mutex
	conn     Conn
	sink     Sink
	tracking *tracking

	running       atomic.Bool
	live          atomic.Bool
	monitorActive atomic.Bool
}

type tracking struct {
	cancel context.CancelFunc
	wg     *sync.WaitGroup
	done   chan struct{}
}

func NewClient(target string, opts Options) *Client {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.MonitorInterval == 0 {
		opts.MonitorInterval = 2 * time.Second
	}
	if opts.BackoffMin == 0 {
		opts.BackoffMin = time.Second
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.StopGrace == 0 {
		opts.StopGrace = 5 * time.Second
	}
	if opts.KeepaliveTime == 0 {
		opts.KeepaliveTime = 10 * time.Second
	}
	if opts.KeepaliveTimeout == 0 {
		opts.KeepaliveTimeout = 5 * time.Second
	}
	if opts.MaxMessageSize == 0 {
		opts.MaxMessageSize = 10 * 1024 * 1024
	}
	if opts.Dial == nil {
		opts.Dial = dialGRPC
	}

	return &Client{
		target:  target,
		opts:    opts,
		backoff: newReconnectBackoff(opts.BackoffMin, opts.BackoffMax),
	}
}

func (c *Client) dialOptions() []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithNoProxy(),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                c.opts.KeepaliveTime,
			Timeout:             c.opts.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(c.opts.MaxMessageSize),
			grpc.MaxCallSendMsgSize(c.opts.MaxMessageSize),
		),
	}
	return append(opts, c.opts.DialOptions...)
}

// Connect opens the channel if none exists and waits up to ConnectTimeout for
// it to become ready. It never fails: an unreachable tracker surfaces on the
// first stream read.
func (c *Client) Connect(ctx context.Context) {
	log := log.WithField("prefix", "Client.Connect")

	conn, err := c.openChannel()
	if err != nil {
		log.Errorf("failed to create channel: %v", err)
		return
	}
	if conn == nil {
		return
	}

	log.Infof("initial channel state: %s", conn.GetState())

	waitCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	if waitReady(waitCtx, conn) {
		log.Info("channel is ready")
	} else {
		log.Errorf("timed out waiting for channel readiness, state: %s", conn.GetState())
	}
}

// openChannel dials under mu unless a channel already exists, in which case
// it returns nil.
func (c *Client) openChannel() (Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil, nil
	}
	log.WithField("prefix", "Client.Connect").Infof("connecting to robot tracker at %s", c.target)
	conn, err := c.opts.Dial(c.target, c.dialOptions()...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

func waitReady(ctx context.Context, conn Conn) bool {
	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return true
		case connectivity.Shutdown:
			return false
		}
		if !conn.WaitForStateChange(ctx, state) {
			return false
		}
	}
}

// SetSink registers the consumer of positions, replacing any previous one.
func (c *Client) SetSink(sink Sink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

func (c *Client) currentSink() Sink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink
}

func (c *Client) transport() Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// closeTransport closes and clears the channel. Concurrent callers close it once.
func (c *Client) closeTransport() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		log.WithField("prefix", "Client.closeTransport").Warnf("failed to close channel: %v", err)
	}
	setStateMetric(connectivity.Shutdown)
}

// StartTracking launches the read loop and the channel monitor. It is a no-op
// while tracking is already running.
func (c *Client) StartTracking(ctx context.Context) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.running.Load() {
		return
	}
	if c.transport() == nil {
		c.Connect(ctx)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t := &tracking{
		cancel: cancel,
		wg:     &sync.WaitGroup{},
		done:   make(chan struct{}),
	}
	c.running.Store(true)

	t.wg.Add(1)
	utils.RunWithRecovery(func() {
		defer t.wg.Done()
		c.superviseReadLoop(loopCtx, t.wg)
	})
	c.spawnMonitor(loopCtx, t.wg)
	go func() {
		t.wg.Wait()
		close(t.done)
	}()

	c.mu.Lock()
	c.tracking = t
	c.mu.Unlock()
	log.WithField("prefix", "Client.StartTracking").Info("position tracking started")
}

// StopTracking cancels both tasks, waits for them at most StopGrace and
// closes the channel. Calling it again is a no-op.
func (c *Client) StopTracking() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	log := log.WithField("prefix", "Client.StopTracking")

	c.running.Store(false)

	c.mu.Lock()
	t := c.tracking
	c.tracking = nil
	c.mu.Unlock()

	if t != nil {
		t.cancel()
		select {
		case <-t.done:
		case <-time.After(c.opts.StopGrace):
			log.Warnf("tracking tasks did not stop within %s", c.opts.StopGrace)
		}
	}

	c.closeTransport()
	c.live.Store(false)
	upstreamLiveMetric.Set(0)
	if t != nil {
		log.Info("position tracking stopped")
	}
}

// State reports the channel connectivity state.
func (c *Client) State() string {
	conn := c.transport()
	if conn == nil {
		return "DISCONNECTED"
	}
	return conn.GetState().String()
}

// Live reports whether a stream is currently delivering positions.
func (c *Client) Live() bool {
	return c.live.Load()
}

// HealthCheck fails while no position stream is live.
func (c *Client) HealthCheck() error {
	if !c.running.Load() {
		return errors.New("position tracking is not running")
	}
	if !c.live.Load() {
		return errors.New("position stream is not live")
	}
	return nil
}

func (c *Client) desired(ctx context.Context) bool {
	return c.running.Load() && ctx.Err() == nil
}

// superviseReadLoop restarts the read loop after a panic, dropping the
// channel and waiting one backoff step first.
func (c *Client) superviseReadLoop(ctx context.Context, wg *sync.WaitGroup) {
	for c.desired(ctx) {
		err := utils.CallWithRecovery(func() error {
			c.readLoop(ctx, wg)
			return nil
		})
		if err == nil {
			return
		}

		log.WithField("prefix", "Client.superviseReadLoop").Errorf("read loop crashed, restarting: %v", err)
		c.setLive(false)
		c.closeTransport()
		if !sleep(ctx, c.backoff.Next()) {
			return
		}
	}
}

func (c *Client) readLoop(ctx context.Context, wg *sync.WaitGroup) {
	log := log.WithField("prefix", "Client.readLoop")
	log.Info("robot position stream loop started")
	defer log.Info("robot position stream loop finished")

	for c.desired(ctx) {
		if c.transport() == nil {
			log.Info("no channel, connecting")
			c.Connect(ctx)
			c.spawnMonitor(ctx, wg)
		}

		c.stream(ctx)
		if !c.desired(ctx) {
			return
		}

		c.setLive(false)
		c.closeTransport()

		delay := c.backoff.Next()
		reconnectsMetric.Inc()
		log.Infof("position stream ended, reconnecting in %s", delay)
		if !sleep(ctx, delay) {
			return
		}
	}
}

type recvResult struct {
	position *trackerpb.Position
	err      error
}

// stream runs one TrackRobot call until it ends, fails, or the channel is
// found not ready after a read timeout.
func (c *Client) stream(ctx context.Context) {
	log := log.WithField("prefix", "Client.stream")

	conn := c.transport()
	if conn == nil {
		log.Warn("no channel available")
		return
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Infof("calling TrackRobot on %s", c.target)
	stream, err := trackerpb.NewRobotTrackerClient(conn).TrackRobot(streamCtx, &trackerpb.TrackRequest{})
	if err != nil {
		c.streamFailed(ctx, err)
		return
	}

	results := make(chan recvResult)
	go func() {
		for {
			position, err := stream.Recv()
			select {
			case results <- recvResult{position: position, err: err}:
			case <-streamCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	timer := time.NewTimer(c.opts.ReadTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if state := conn.GetState(); state != connectivity.Ready {
				log.Warnf("read timed out and channel is %s, dropping stream", state)
				return
			}
			log.Debugf("no position within %s on a ready channel, still waiting", c.opts.ReadTimeout)
			timer.Reset(c.opts.ReadTimeout)
		case r := <-results:
			if errors.Is(r.err, io.EOF) {
				log.Info("position stream ended")
				return
			}
			if r.err != nil {
				c.streamFailed(ctx, r.err)
				return
			}
			c.setLive(true)
			c.deliver(ctx, r.position)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.opts.ReadTimeout)
		}
	}
}

func (c *Client) streamFailed(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	st := status.Convert(err)
	rpcErrorsMetric.WithLabelValues(st.Code().String()).Inc()
	entry := log.WithFields(log.Fields{
		"prefix": "Client.stream",
		"code":   st.Code().String(),
		"error":  st.Message(),
	})
	if st.Code() == codes.Unavailable {
		entry.Warn("robot tracker unavailable")
		return
	}
	entry.Error("position stream failed")
}

func (c *Client) deliver(ctx context.Context, p *trackerpb.Position) {
	position := models.Position{X: p.X, Y: p.Y, Timestamp: p.Timestamp}
	positionsReceivedMetric.Inc()
	log.WithFields(log.Fields{
		"prefix":    "Client.deliver",
		"x":         position.X,
		"y":         position.Y,
		"timestamp": position.Timestamp,
	}).Debug("position received")

	sink := c.currentSink()
	if sink == nil {
		return
	}
	err := utils.CallWithRecovery(func() error {
		return sink.Broadcast(ctx, position)
	})
	if err != nil {
		sinkFailuresMetric.Inc()
		log.WithField("prefix", "Client.deliver").Errorf("position sink failed: %v", err)
	}
}

// setLive records stream liveness. The first position of a stream resets the
// backoff; losing a live stream is reported through OnLinkChange.
func (c *Client) setLive(up bool) {
	if c.live.Swap(up) == up {
		return
	}
	if up {
		c.backoff.Reset()
		upstreamLiveMetric.Set(1)
		log.WithField("prefix", "Client.setLive").Info("position stream is live")
	} else {
		upstreamLiveMetric.Set(0)
	}

	if c.opts.OnLinkChange == nil {
		return
	}
	if err := utils.CallWithRecovery(func() error {
		c.opts.OnLinkChange(up)
		return nil
	}); err != nil {
		log.WithField("prefix", "Client.setLive").Errorf("link change callback failed: %v", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
