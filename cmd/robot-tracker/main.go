package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/practice-robot/robot-bridge/internal"
	"github.com/practice-robot/robot-bridge/internal/config"
	"github.com/practice-robot/robot-bridge/internal/ntp"
	"github.com/practice-robot/robot-bridge/internal/simulator"
	"github.com/practice-robot/robot-bridge/internal/trackerpb"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

const gracefulStopTimeout = 5 * time.Second

func main() {
	log.Info(fmt.Sprintf("robot-tracker %s is running", internal.VersionRevision))
	config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var clock ntp.TimeProvider
	if config.Config.NTPEnabled {
		ntpClient := ntp.NewClient(ntp.Options{
			Servers:      config.Config.NTPServers,
			SyncInterval: time.Duration(config.Config.NTPSyncInterval) * time.Second,
			QueryTimeout: time.Duration(config.Config.NTPQueryTimeout) * time.Second,
		})
		ntpClient.Start(ctx)
		defer ntpClient.Stop()
		clock = ntpClient
		log.Info("NTP synchronization enabled")
	} else {
		clock = ntp.NewLocalTimeProvider()
		log.Info("NTP synchronization disabled, using local time")
	}

	generator, err := simulator.NewRandomGenerator(simulator.Bounds{
		MinX: config.Config.PositionMinX,
		MaxX: config.Config.PositionMaxX,
		MinY: config.Config.PositionMinY,
		MaxY: config.Config.PositionMaxY,
	}, clock, nil)
	if err != nil {
		log.Fatalf("position generator: %v", err)
	}

	address := fmt.Sprintf(":%d", config.Config.TrackerPort)
	lis, err := net.Listen("tcp", address)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", address, err)
	}

	opts := append(trackerpb.ServerOptions(),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.MaxSendMsgSize(config.Config.UpstreamMaxMessageSize),
	)
	server := grpc.NewServer(opts...)
	trackerpb.RegisterRobotTrackerServer(server, simulator.NewService(generator, config.Config.TrackerUpdateInterval))

	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received, stopping gRPC server")
		stopped := make(chan struct{})
		go func() {
			server.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(gracefulStopTimeout):
			// open TrackRobot streams only end when their clients leave
			server.Stop()
		}
	}()

	log.Infof("robot-tracker listening on %s", address)
	if err := server.Serve(lis); err != nil {
		log.Fatalf("gRPC server failed: %v", err)
	}
}
