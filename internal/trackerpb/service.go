package trackerpb

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName              = "robot.RobotTracker"
	TrackRobotFullMethodName = "/robot.RobotTracker/TrackRobot"
)

// RobotTrackerClient is the client API for the RobotTracker service.
type RobotTrackerClient interface {
	TrackRobot(ctx context.Context, in *TrackRequest, opts ...grpc.CallOption) (RobotTracker_TrackRobotClient, error)
}

type robotTrackerClient struct {
	cc grpc.ClientConnInterface
}

func NewRobotTrackerClient(cc grpc.ClientConnInterface) RobotTrackerClient {
	return &robotTrackerClient{cc}
}

func (c *robotTrackerClient) TrackRobot(ctx context.Context, in *TrackRequest, opts ...grpc.CallOption) (RobotTracker_TrackRobotClient, error) {
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	stream, err := c.cc.NewStream(ctx, &RobotTracker_ServiceDesc.Streams[0], TrackRobotFullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &robotTrackerTrackRobotClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type RobotTracker_TrackRobotClient interface {
	Recv() (*Position, error)
	grpc.ClientStream
}

type robotTrackerTrackRobotClient struct {
	grpc.ClientStream
}

func (x *robotTrackerTrackRobotClient) Recv() (*Position, error) {
	m := new(Position)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// RobotTrackerServer is the server API for the RobotTracker service.
type RobotTrackerServer interface {
	TrackRobot(*TrackRequest, RobotTracker_TrackRobotServer) error
}

// ServerOptions returns the options a grpc.Server needs to serve RobotTracker.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{grpc.ForceServerCodec(Codec{})}
}

func RegisterRobotTrackerServer(s grpc.ServiceRegistrar, srv RobotTrackerServer) {
	s.RegisterService(&RobotTracker_ServiceDesc, srv)
}

func _RobotTracker_TrackRobot_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(TrackRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(RobotTrackerServer).TrackRobot(m, &robotTrackerTrackRobotServer{stream})
}

type RobotTracker_TrackRobotServer interface {
	Send(*Position) error
	grpc.ServerStream
}

type robotTrackerTrackRobotServer struct {
	grpc.ServerStream
}

func (x *robotTrackerTrackRobotServer) Send(m *Position) error {
	return x.ServerStream.SendMsg(m)
}

var RobotTracker_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RobotTrackerServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "TrackRobot",
			Handler:       _RobotTracker_TrackRobot_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "robot.proto",
}
