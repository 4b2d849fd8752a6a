package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/practice-robot/robot-bridge/internal"
	"github.com/practice-robot/robot-bridge/internal/app"
	"github.com/practice-robot/robot-bridge/internal/config"
	"github.com/practice-robot/robot-bridge/internal/handler"
	"github.com/practice-robot/robot-bridge/internal/hub"
	bridge_middleware "github.com/practice-robot/robot-bridge/internal/middleware"
	"github.com/practice-robot/robot-bridge/internal/mirror"
	"github.com/practice-robot/robot-bridge/internal/tracker"
	"github.com/practice-robot/robot-bridge/internal/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.Info(fmt.Sprintf("robot-bridge %s is running", internal.VersionRevision))
	config.LoadConfig()
	app.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions := hub.New(hub.Options{PruneFailed: config.Config.HubPruneFailedSessions})

	opts := tracker.Options{
		ConnectTimeout:   config.Config.UpstreamConnectTimeout,
		ReadTimeout:      config.Config.UpstreamReadTimeout,
		MonitorInterval:  config.Config.UpstreamMonitorInterval,
		BackoffMin:       config.Config.UpstreamBackoffMin,
		BackoffMax:       config.Config.UpstreamBackoffMax,
		StopGrace:        config.Config.UpstreamStopGrace,
		KeepaliveTime:    config.Config.UpstreamKeepaliveTime,
		KeepaliveTimeout: config.Config.UpstreamKeepaliveTimeout,
		MaxMessageSize:   config.Config.UpstreamMaxMessageSize,
	}
	if config.Config.NotifyUpstreamState {
		opts.OnLinkChange = app.UpstreamNotices(sessions)
	}
	client := tracker.NewClient(config.UpstreamTarget(), opts)

	var sink tracker.Sink = sessions
	if config.Config.NatsURL != "" {
		m, err := mirror.Connect(config.Config.NatsURL, config.Config.NatsSubject)
		if err != nil {
			log.Fatalf("nats mirror: %v", err)
		}
		defer m.Close()
		sink = mirror.Tee{sessions, m}
	}

	healthManager := app.NewHealthManager()
	go healthManager.StartHealthMonitoring(ctx, client, 2*time.Second)

	extractor, err := utils.NewRealIPExtractor(config.Config.TrustedProxyRanges)
	if err != nil {
		log.Warnf("failed to create realIPExtractor: %v, using defaults", err)
		extractor, _ = utils.NewRealIPExtractor([]string{})
	}

	mux := http.NewServeMux()
	mux.Handle("/health", http.HandlerFunc(healthManager.HealthHandler))
	mux.Handle("/ready", http.HandlerFunc(healthManager.ReadyHandler))
	mux.Handle("/version", http.HandlerFunc(app.VersionHandler))
	mux.Handle("/metrics", promhttp.Handler())
	if config.Config.PprofEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	metricsServer := &http.Server{Addr: fmt.Sprintf(":%d", config.Config.MetricsPort), Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	statusPath := config.Config.APIPrefix + "/status"
	socketPath := config.Config.APIPrefix + "/ws/robot"

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		Skipper:           nil,
		DisableStackAll:   true,
		DisablePrintStack: false,
	}))
	e.Use(app.LogrusLoggerMiddleware())
	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: app.OnlyPaths(statusPath),
		Store:   middleware.NewRateLimiterMemoryStore(rate.Limit(config.Config.RPSLimit)),
	}))
	e.Use(app.ConnectionsLimitMiddleware(
		bridge_middleware.NewConnectionLimiter(config.Config.ConnectionsLimit, extractor),
		app.OnlyPaths(socketPath),
	))

	if config.Config.CorsEnable {
		corsConfig := middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     []string{"*"},
			AllowMethods:     []string{echo.GET, echo.OPTIONS},
			AllowHeaders:     []string{"DNT", "X-CustomHeader", "Keep-Alive", "User-Agent", "X-Requested-With", "If-Modified-Since", "Cache-Control", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           86400,
		})
		e.Use(corsConfig)
	}

	h := handler.NewHandler(sessions, client, handler.Options{
		QueueSize:    config.Config.SessionQueueSize,
		PingInterval: config.Config.SessionPingInterval,
	})
	e.GET(statusPath, h.StatusHandler)
	e.GET(socketPath, h.RobotSocketHandler)

	var existedPaths []string
	for _, r := range e.Routes() {
		existedPaths = append(existedPaths, r.Path)
	}
	p := prometheus.NewPrometheus("http", func(c echo.Context) bool {
		return !slices.Contains(existedPaths, c.Path())
	})
	e.Use(p.HandlerFunc)

	bridge := app.NewBridge(client, sink)
	bridge.Start(ctx)

	go func() {
		if err := e.Start(fmt.Sprintf(":%v", config.Config.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("http server shutdown: %v", err)
	}
	bridge.Stop()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("metrics server shutdown: %v", err)
	}
}
