package rpc

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/banshee-data/tracker/internal/monitoring"
	"github.com/banshee-data/tracker/internal/track"
)

var logf = monitoring.Component("rpc")

// TrackSink receives every track group the tracker produces. The remote
// consumer client, the sqlite store and the track file writer all
// implement it.
type TrackSink interface {
	ProcessTrack(ctx context.Context, group track.TrackGroup) error
}

// GroupProcessor is the part of track.Manager the service needs.
type GroupProcessor interface {
	ProcessMeasurementGroup(group track.MeasurementGroup) (track.TrackGroup, error)
}

// ForwardStats counts sink deliveries.
type ForwardStats struct {
	Forwarded uint64 `json:"forwarded"`
	Failed    uint64 `json:"failed"`
}

// TrackerService implements TrackerServer on top of a track manager and
// fans the results out to zero or more sinks.
type TrackerService struct {
	manager GroupProcessor
	sinks   []TrackSink
	timeout time.Duration

	forwarded atomic.Uint64
	failed    atomic.Uint64
}

var _ TrackerServer = (*TrackerService)(nil)

// NewTrackerService returns a service that forwards to sinks, giving each
// delivery at most timeout.
func NewTrackerService(manager GroupProcessor, timeout time.Duration, sinks ...TrackSink) *TrackerService {
	return &TrackerService{manager: manager, sinks: sinks, timeout: timeout}
}

// ProcessMeasurement implements TrackerServer. Numerical faults inside the
// group are logged and the complete track group is still returned.
func (s *TrackerService) ProcessMeasurement(ctx context.Context, group *track.MeasurementGroup) (*track.TrackGroup, error) {
	if group == nil {
		return nil, status.Error(codes.InvalidArgument, "nil measurement group")
	}

	tracks, err := s.Process(ctx, *group)
	if err != nil && !isNumerical(err) {
		return nil, status.Errorf(codes.Internal, "process measurement group: %v", err)
	}
	return &tracks, nil
}

// Process runs group through the manager and forwards the result. It is
// also the entry point for the serial and UDP ingest paths.
func (s *TrackerService) Process(ctx context.Context, group track.MeasurementGroup) (track.TrackGroup, error) {
	tracks, err := s.manager.ProcessMeasurementGroup(group)
	if err != nil {
		logf("numerical faults in group of %d: %v", len(group), err)
	}
	if len(tracks) > 0 {
		s.forward(ctx, tracks)
	}
	return tracks, err
}

// Stats returns forwarding counters.
func (s *TrackerService) Stats() ForwardStats {
	return ForwardStats{Forwarded: s.forwarded.Load(), Failed: s.failed.Load()}
}

// forward delivers tracks to every sink. Sink failures are logged and
// counted but never fail the request.
func (s *TrackerService) forward(ctx context.Context, tracks track.TrackGroup) {
	for _, sink := range s.sinks {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		err := sink.ProcessTrack(fctx, tracks)
		cancel()
		if err != nil {
			s.failed.Add(1)
			logf("failed to forward %d tracks to %T: %v", len(tracks), sink, err)
			continue
		}
		s.forwarded.Add(1)
	}
}

func isNumerical(err error) bool {
	var numErr *track.NumericalError
	return errors.As(err, &numErr)
}
