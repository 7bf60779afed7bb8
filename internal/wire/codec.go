package wire

import (
	"fmt"

	"google.golang.org/grpc/encoding"

	"github.com/banshee-data/tracker/internal/track"
)

// Codec is a gRPC codec for the tracker messages. It registers under the
// name "proto" so peers using generated stubs from api/tracker.proto
// interoperate with it.
type Codec struct{}

var _ encoding.Codec = Codec{}

// Name implements encoding.Codec.
func (Codec) Name() string { return "proto" }

// Marshal implements encoding.Codec for *track.MeasurementGroup,
// *track.TrackGroup and *Empty.
func (Codec) Marshal(v any) ([]byte, error) {
	switch msg := v.(type) {
	case *track.MeasurementGroup:
		return MarshalMeasurementGroup(*msg), nil
	case *track.TrackGroup:
		return MarshalTrackGroup(*msg), nil
	case *Empty:
		return nil, nil
	}
	return nil, fmt.Errorf("wire: cannot marshal %T", v)
}

// Unmarshal implements encoding.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	switch msg := v.(type) {
	case *track.MeasurementGroup:
		g, err := UnmarshalMeasurementGroup(data)
		if err != nil {
			return err
		}
		*msg = g
		return nil
	case *track.TrackGroup:
		g, err := UnmarshalTrackGroup(data)
		if err != nil {
			return err
		}
		*msg = g
		return nil
	case *Empty:
		return walk(data, skip)
	}
	return fmt.Errorf("wire: cannot unmarshal into %T", v)
}
