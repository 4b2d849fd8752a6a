package config

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var Config = struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Port        int    `env:"PORT" envDefault:"8000"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9103"`
	APIPrefix   string `env:"API_PREFIX" envDefault:"/api"`

	// Upstream robot-tracker settings
	RobotTrackerHost         string        `env:"ROBOT_TRACKER_HOST" envDefault:"localhost"`
	RobotTrackerPort         string        `env:"ROBOT_TRACKER_PORT" envDefault:"50051"`
	UpstreamConnectTimeout   time.Duration `env:"UPSTREAM_CONNECT_TIMEOUT" envDefault:"5s"`
	UpstreamReadTimeout      time.Duration `env:"UPSTREAM_READ_TIMEOUT" envDefault:"10s"`
	UpstreamMonitorInterval  time.Duration `env:"UPSTREAM_MONITOR_INTERVAL" envDefault:"2s"`
	UpstreamBackoffMin       time.Duration `env:"UPSTREAM_BACKOFF_MIN" envDefault:"1s"`
	UpstreamBackoffMax       time.Duration `env:"UPSTREAM_BACKOFF_MAX" envDefault:"30s"`
	UpstreamStopGrace        time.Duration `env:"UPSTREAM_STOP_GRACE" envDefault:"5s"`
	UpstreamKeepaliveTime    time.Duration `env:"UPSTREAM_KEEPALIVE_TIME" envDefault:"10s"`
	UpstreamKeepaliveTimeout time.Duration `env:"UPSTREAM_KEEPALIVE_TIMEOUT" envDefault:"5s"`
	UpstreamMaxMessageSize   int           `env:"UPSTREAM_MAX_MESSAGE_SIZE" envDefault:"10485760"` // 10 MiB

	// Downstream websocket sessions
	SessionQueueSize       int           `env:"SESSION_QUEUE_SIZE" envDefault:"64"`
	SessionPingInterval    time.Duration `env:"SESSION_PING_INTERVAL" envDefault:"30s"`
	HubPruneFailedSessions bool          `env:"HUB_PRUNE_FAILED_SESSIONS" envDefault:"false"`
	NotifyUpstreamState    bool          `env:"NOTIFY_UPSTREAM_STATE" envDefault:"false"`

	// Other settings
	CorsEnable         bool     `env:"CORS_ENABLE" envDefault:"true"`
	ConnectionsLimit   int      `env:"CONNECTIONS_LIMIT" envDefault:"50"`
	TrustedProxyRanges []string `env:"TRUSTED_PROXY_RANGES" envDefault:"0.0.0.0/0"`
	RPSLimit           int      `env:"RPS_LIMIT" envDefault:"10"`
	PprofEnabled       bool     `env:"PPROF_ENABLED" envDefault:"false"`
	NatsURL            string   `env:"NATS_URL"`
	NatsSubject        string   `env:"NATS_SUBJECT" envDefault:"robot.position"`

	// robot-tracker simulator
	TrackerPort           int           `env:"TRACKER_PORT" envDefault:"50051"`
	TrackerUpdateInterval time.Duration `env:"TRACKER_UPDATE_INTERVAL" envDefault:"1s"`
	PositionMinX          float64       `env:"POSITION_MIN_X" envDefault:"0"`
	PositionMaxX          float64       `env:"POSITION_MAX_X" envDefault:"100"`
	PositionMinY          float64       `env:"POSITION_MIN_Y" envDefault:"0"`
	PositionMaxY          float64       `env:"POSITION_MAX_Y" envDefault:"100"`
	NTPEnabled            bool          `env:"NTP_ENABLED" envDefault:"false"`
	NTPServers            []string      `env:"NTP_SERVERS" envSeparator:","`
	NTPSyncInterval       int           `env:"NTP_SYNC_INTERVAL" envDefault:"300"`
	NTPQueryTimeout       int           `env:"NTP_QUERY_TIMEOUT" envDefault:"5"`
}{}

// UpstreamTarget is the host:port of the robot-tracker gRPC service.
func UpstreamTarget() string {
	return Config.RobotTrackerHost + ":" + Config.RobotTrackerPort
}

func LoadConfig() {
	// .env is optional; real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}

	if err := env.Parse(&Config); err != nil {
		log.Fatalf("config parsing failed: %v\n", err)
	}

	level, err := logrus.ParseLevel(strings.ToLower(Config.LogLevel))
	if err != nil {
		log.Printf("Invalid LOG_LEVEL '%s', using default 'info'. Valid levels: panic, fatal, error, warn, info, debug, trace", Config.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
