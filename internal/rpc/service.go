// Package rpc exposes the track manager over gRPC. The service descriptors
// mirror api/tracker.proto and carry track types directly through the wire
// codec, so there is no generated code.
package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/banshee-data/tracker/internal/track"
	"github.com/banshee-data/tracker/internal/wire"
)

const (
	processMeasurementMethod = "/tracker.Tracker/ProcessMeasurement"
	processTrackMethod       = "/tracker.TrackConsumer/ProcessTrack"
)

// TrackerServer is the server API for the tracker.Tracker service.
type TrackerServer interface {
	ProcessMeasurement(ctx context.Context, group *track.MeasurementGroup) (*track.TrackGroup, error)
}

// TrackConsumerServer is the server API for the tracker.TrackConsumer service.
type TrackConsumerServer interface {
	ProcessTrack(ctx context.Context, group *track.TrackGroup) (*wire.Empty, error)
}

// TrackerServiceDesc describes tracker.Tracker.
var TrackerServiceDesc = grpc.ServiceDesc{
	ServiceName: "tracker.Tracker",
	HandlerType: (*TrackerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ProcessMeasurement", Handler: processMeasurementHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/tracker.proto",
}

// TrackConsumerServiceDesc describes tracker.TrackConsumer.
var TrackConsumerServiceDesc = grpc.ServiceDesc{
	ServiceName: "tracker.TrackConsumer",
	HandlerType: (*TrackConsumerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ProcessTrack", Handler: processTrackHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/tracker.proto",
}

// RegisterTrackerServer registers srv on s.
func RegisterTrackerServer(s grpc.ServiceRegistrar, srv TrackerServer) {
	s.RegisterService(&TrackerServiceDesc, srv)
}

// RegisterTrackConsumerServer registers srv on s.
func RegisterTrackConsumerServer(s grpc.ServiceRegistrar, srv TrackConsumerServer) {
	s.RegisterService(&TrackConsumerServiceDesc, srv)
}

func processMeasurementHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(track.MeasurementGroup)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TrackerServer).ProcessMeasurement(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: processMeasurementMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TrackerServer).ProcessMeasurement(ctx, req.(*track.MeasurementGroup))
	}
	return interceptor(ctx, in, info, handler)
}

func processTrackHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(track.TrackGroup)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TrackConsumerServer).ProcessTrack(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: processTrackMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TrackConsumerServer).ProcessTrack(ctx, req.(*track.TrackGroup))
	}
	return interceptor(ctx, in, info, handler)
}

// TrackerClient calls tracker.Tracker.
type TrackerClient struct {
	cc grpc.ClientConnInterface
}

// NewTrackerClient wraps a connection created with Dial.
func NewTrackerClient(cc grpc.ClientConnInterface) *TrackerClient {
	return &TrackerClient{cc: cc}
}

// ProcessMeasurement sends one group and returns the resulting tracks.
func (c *TrackerClient) ProcessMeasurement(ctx context.Context, group track.MeasurementGroup, opts ...grpc.CallOption) (track.TrackGroup, error) {
	var out track.TrackGroup
	if err := c.cc.Invoke(ctx, processMeasurementMethod, &group, &out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// TrackConsumerClient calls tracker.TrackConsumer. It implements TrackSink,
// so a tracker can forward to a remote consumer.
type TrackConsumerClient struct {
	cc grpc.ClientConnInterface
}

// NewTrackConsumerClient wraps a connection created with Dial.
func NewTrackConsumerClient(cc grpc.ClientConnInterface) *TrackConsumerClient {
	return &TrackConsumerClient{cc: cc}
}

// ProcessTrack delivers one track group to the consumer.
func (c *TrackConsumerClient) ProcessTrack(ctx context.Context, group track.TrackGroup) error {
	return c.cc.Invoke(ctx, processTrackMethod, &group, &wire.Empty{})
}
