// Package wire encodes measurement and track groups in protobuf wire format.
// The schema lives in api/tracker.proto; this package hand-encodes it with
// protowire so no generated code is needed.
package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/banshee-data/tracker/internal/track"
)

// Field numbers from api/tracker.proto.
const (
	measX     protowire.Number = 1
	measY     protowire.Number = 2
	measZ     protowire.Number = 3
	measTime  protowire.Number = 4
	measTrueX protowire.Number = 5
	measTrueY protowire.Number = 6
	measTrueZ protowire.Number = 7

	trackID           protowire.Number = 1
	trackVelX         protowire.Number = 2
	trackVelY         protowire.Number = 3
	trackVelZ         protowire.Number = 4
	trackMeasurements protowire.Number = 5
	trackPredX        protowire.Number = 6
	trackPredY        protowire.Number = 7
	trackPredZ        protowire.Number = 8

	groupItems protowire.Number = 1 // MeasurementGroup.measurements, TrackGroup.tracks
)

// ErrWireType is returned when a known field arrives with the wrong wire type.
var ErrWireType = errors.New("unexpected wire type")

// Empty is the response of TrackConsumer.ProcessTrack.
type Empty struct{}

// AppendMeasurement appends the encoding of m to b.
func AppendMeasurement(b []byte, m track.Measurement) []byte {
	b = appendDouble(b, measX, m.Position.X)
	b = appendDouble(b, measY, m.Position.Y)
	b = appendDouble(b, measZ, m.Position.Z)
	b = appendDouble(b, measTime, m.Time)
	if m.HasTruth {
		b = appendDouble(b, measTrueX, m.Truth.X)
		b = appendDouble(b, measTrueY, m.Truth.Y)
		b = appendDouble(b, measTrueZ, m.Truth.Z)
	}
	return b
}

// AppendTrack appends the encoding of t to b.
func AppendTrack(b []byte, t track.Track) []byte {
	if t.TrackID != 0 {
		b = protowire.AppendTag(b, trackID, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(t.TrackID))
	}
	b = appendDouble(b, trackVelX, t.Velocity.X)
	b = appendDouble(b, trackVelY, t.Velocity.Y)
	b = appendDouble(b, trackVelZ, t.Velocity.Z)
	for _, m := range t.Measurements {
		b = protowire.AppendTag(b, trackMeasurements, protowire.BytesType)
		b = protowire.AppendBytes(b, AppendMeasurement(nil, m))
	}
	b = appendDouble(b, trackPredX, t.Position.X)
	b = appendDouble(b, trackPredY, t.Position.Y)
	b = appendDouble(b, trackPredZ, t.Position.Z)
	return b
}

// MarshalMeasurementGroup encodes a MeasurementGroup message.
func MarshalMeasurementGroup(g track.MeasurementGroup) []byte {
	var b []byte
	for _, m := range g {
		b = protowire.AppendTag(b, groupItems, protowire.BytesType)
		b = protowire.AppendBytes(b, AppendMeasurement(nil, m))
	}
	return b
}

// MarshalTrackGroup encodes a TrackGroup message.
func MarshalTrackGroup(g track.TrackGroup) []byte {
	var b []byte
	for _, t := range g {
		b = protowire.AppendTag(b, groupItems, protowire.BytesType)
		b = protowire.AppendBytes(b, AppendTrack(nil, t))
	}
	return b
}

// UnmarshalMeasurement decodes a single Measurement message.
func UnmarshalMeasurement(b []byte) (track.Measurement, error) {
	var m track.Measurement
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var dst *float64
		switch num {
		case measX:
			dst = &m.Position.X
		case measY:
			dst = &m.Position.Y
		case measZ:
			dst = &m.Position.Z
		case measTime:
			dst = &m.Time
		case measTrueX:
			dst, m.HasTruth = &m.Truth.X, true
		case measTrueY:
			dst, m.HasTruth = &m.Truth.Y, true
		case measTrueZ:
			dst, m.HasTruth = &m.Truth.Z, true
		default:
			return skip(num, typ, b)
		}
		return consumeDouble(num, typ, b, dst)
	})
	if err != nil {
		return track.Measurement{}, fmt.Errorf("measurement: %w", err)
	}
	return m, nil
}

// UnmarshalTrack decodes a single Track message.
func UnmarshalTrack(b []byte) (track.Track, error) {
	var t track.Track
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case trackID:
			if typ != protowire.VarintType {
				return 0, fmt.Errorf("field %d: %w %d", num, ErrWireType, typ)
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			t.TrackID = uint32(v)
			return n, nil
		case trackMeasurements:
			raw, n, err := consumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
			m, err := UnmarshalMeasurement(raw)
			if err != nil {
				return 0, err
			}
			t.Measurements = append(t.Measurements, m)
			return n, nil
		case trackVelX:
			return consumeDouble(num, typ, b, &t.Velocity.X)
		case trackVelY:
			return consumeDouble(num, typ, b, &t.Velocity.Y)
		case trackVelZ:
			return consumeDouble(num, typ, b, &t.Velocity.Z)
		case trackPredX:
			return consumeDouble(num, typ, b, &t.Position.X)
		case trackPredY:
			return consumeDouble(num, typ, b, &t.Position.Y)
		case trackPredZ:
			return consumeDouble(num, typ, b, &t.Position.Z)
		}
		return skip(num, typ, b)
	})
	if err != nil {
		return track.Track{}, fmt.Errorf("track: %w", err)
	}
	return t, nil
}

// UnmarshalMeasurementGroup decodes a MeasurementGroup message.
func UnmarshalMeasurementGroup(b []byte) (track.MeasurementGroup, error) {
	var g track.MeasurementGroup
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != groupItems {
			return skip(num, typ, b)
		}
		raw, n, err := consumeBytes(num, typ, b)
		if err != nil {
			return 0, err
		}
		m, err := UnmarshalMeasurement(raw)
		if err != nil {
			return 0, err
		}
		g = append(g, m)
		return n, nil
	})
	if err != nil {
		return nil, fmt.Errorf("measurement group: %w", err)
	}
	return g, nil
}

// UnmarshalTrackGroup decodes a TrackGroup message.
func UnmarshalTrackGroup(b []byte) (track.TrackGroup, error) {
	var g track.TrackGroup
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != groupItems {
			return skip(num, typ, b)
		}
		raw, n, err := consumeBytes(num, typ, b)
		if err != nil {
			return 0, err
		}
		t, err := UnmarshalTrack(raw)
		if err != nil {
			return 0, err
		}
		g = append(g, t)
		return n, nil
	})
	if err != nil {
		return nil, fmt.Errorf("track group: %w", err)
	}
	return g, nil
}

// walk iterates the fields of a message, handing each field's value bytes
// to fn, which reports how many bytes it consumed.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func consumeDouble(num protowire.Number, typ protowire.Type, b []byte, dst *float64) (int, error) {
	if typ != protowire.Fixed64Type {
		return 0, fmt.Errorf("field %d: %w %d", num, ErrWireType, typ)
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = math.Float64frombits(v)
	return n, nil
}

func consumeBytes(num protowire.Number, typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("field %d: %w %d", num, ErrWireType, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}
