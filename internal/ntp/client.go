package ntp

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"
	"github.com/sirupsen/logrus"
)

type queryFunc func(server string, opts ntp.QueryOptions) (*ntp.Response, error)

// Client keeps a clock offset against a list of NTP servers and applies it
// to the local clock. Until the first successful sync it reports local time.
type Client struct {
	servers      []string
	syncInterval time.Duration
	queryTimeout time.Duration
	query        queryFunc

	offset   atomic.Int64 // time.Duration
	lastSync atomic.Int64 // unix seconds
	started  atomic.Bool
	stopCh   chan struct{}
}

type Options struct {
	Servers      []string
	SyncInterval time.Duration
	QueryTimeout time.Duration
}

func NewClient(opts Options) *Client {
	if len(opts.Servers) == 0 {
		opts.Servers = []string{
			"time.google.com",
			"time.cloudflare.com",
			"pool.ntp.org",
		}
	}
	if opts.SyncInterval == 0 {
		opts.SyncInterval = 5 * time.Minute
	}
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = 5 * time.Second
	}

	return &Client{
		servers:      opts.Servers,
		syncInterval: opts.SyncInterval,
		queryTimeout: opts.QueryTimeout,
		query:        ntp.QueryWithOptions,
		stopCh:       make(chan struct{}),
	}
}

// Start syncs once synchronously, then keeps re-syncing every SyncInterval
// until Stop or ctx is done. Only the first call has an effect.
func (c *Client) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		logrus.WithField("prefix", "ntp.Client.Start").Warn("NTP client already started")
		return
	}

	logrus.WithFields(logrus.Fields{
		"prefix":        "ntp.Client.Start",
		"servers":       c.servers,
		"sync_interval": c.syncInterval,
	}).Info("starting NTP client")

	c.syncOnce()
	go c.syncLoop(ctx)
}

func (c *Client) Stop() {
	select {
	case <-c.stopCh:
		return
	default:
	}
	close(c.stopCh)
	logrus.WithField("prefix", "ntp.Client.Stop").Info("NTP client stopped")
}

func (c *Client) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(c.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.syncOnce()
		}
	}
}

// syncOnce tries the servers in order and keeps the first valid offset.
func (c *Client) syncOnce() bool {
	for _, server := range c.servers {
		if c.trySyncWithServer(server) {
			return true
		}
	}
	logrus.WithField("prefix", "ntp.Client.syncOnce").Warn("failed to synchronize with any NTP server, keeping previous offset")
	return false
}

func (c *Client) trySyncWithServer(server string) bool {
	log := logrus.WithFields(logrus.Fields{
		"prefix": "ntp.Client.trySyncWithServer",
		"server": server,
	})

	response, err := c.query(server, ntp.QueryOptions{Timeout: c.queryTimeout})
	if err != nil {
		log.WithField("error", err).Debug("failed to query NTP server")
		return false
	}
	if err := response.Validate(); err != nil {
		log.WithField("error", err).Debug("invalid response from NTP server")
		return false
	}

	c.offset.Store(int64(response.ClockOffset))
	c.lastSync.Store(time.Now().Unix())

	log.WithFields(logrus.Fields{
		"offset": response.ClockOffset,
		"rtt":    response.RTT,
	}).Info("synchronized with NTP server")
	return true
}

// Offset is the last measured difference between NTP and local time.
func (c *Client) Offset() time.Duration {
	return time.Duration(c.offset.Load())
}

// Synced reports whether any server has answered yet.
func (c *Client) Synced() bool {
	return c.lastSync.Load() != 0
}

func (c *Client) NowUnixMilli() int64 {
	return time.Now().Add(c.Offset()).UnixMilli()
}
