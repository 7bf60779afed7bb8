package rpc

import (
	"context"
	"sync/atomic"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/banshee-data/tracker/internal/track"
	"github.com/banshee-data/tracker/internal/wire"
)

// ConsumerService implements TrackConsumerServer by handing every received
// track group to its sinks in order.
type ConsumerService struct {
	sinks    []TrackSink
	received atomic.Uint64
}

var _ TrackConsumerServer = (*ConsumerService)(nil)

// NewConsumerService returns a consumer writing to sinks.
func NewConsumerService(sinks ...TrackSink) *ConsumerService {
	return &ConsumerService{sinks: sinks}
}

// ProcessTrack implements TrackConsumerServer. The first failing sink
// aborts the call with codes.Internal.
func (c *ConsumerService) ProcessTrack(ctx context.Context, group *track.TrackGroup) (*wire.Empty, error) {
	if group == nil {
		return nil, status.Error(codes.InvalidArgument, "nil track group")
	}
	c.received.Add(1)
	for _, sink := range c.sinks {
		if err := sink.ProcessTrack(ctx, *group); err != nil {
			logf("consumer sink %T failed: %v", sink, err)
			return nil, status.Errorf(codes.Internal, "store tracks: %v", err)
		}
	}
	return &wire.Empty{}, nil
}

// Received returns the number of groups accepted so far.
func (c *ConsumerService) Received() uint64 {
	return c.received.Load()
}
