package wire

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/banshee-data/tracker/internal/track"
)

func sampleTrackGroup() track.TrackGroup {
	m1 := track.NewMeasurement(0, 1, 2, 0).WithTruth(track.Vector3{X: 0.01, Y: 0.98, Z: 2.02})
	m2 := track.NewMeasurement(1, 3, 2.5, 1)
	return track.TrackGroup{
		{TrackID: 7, Position: track.Vector3{X: 0, Y: 1, Z: 2}, Measurements: []track.Measurement{m1}},
		{
			Velocity:     track.Vector3{X: 0.8, Y: 1.2, Z: 0.6},
			Position:     track.Vector3{X: 1.2, Y: 2.8, Z: 2.9},
			Measurements: []track.Measurement{m1, m2},
		},
	}
}

func TestTrackGroupRoundTrip(t *testing.T) {
	want := sampleTrackGroup()
	got, err := UnmarshalTrackGroup(MarshalTrackGroup(want))
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMeasurementTruthPresence(t *testing.T) {
	plain, err := UnmarshalMeasurement(AppendMeasurement(nil, track.NewMeasurement(1, 2, 3, 4)))
	require.NoError(t, err)
	assert.False(t, plain.HasTruth)

	withTruth, err := UnmarshalMeasurement(AppendMeasurement(nil, track.NewMeasurement(1, 2, 3, 4).WithTruth(track.Vector3{})))
	require.NoError(t, err)
	assert.True(t, withTruth.HasTruth)
	assert.Equal(t, track.Vector3{}, withTruth.Truth)
}

func TestUnsetTrackIDIsOmitted(t *testing.T) {
	b := AppendTrack(nil, track.Track{})
	num, typ, _ := protowire.ConsumeTag(b)
	assert.Equal(t, trackVelX, num, "first field should be x_velocity when track_id is unset")
	assert.Equal(t, protowire.Fixed64Type, typ)
}

func TestUnknownFieldsSkipped(t *testing.T) {
	b := AppendMeasurement(nil, track.NewMeasurement(1, 2, 3, 4))
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future extension")
	b = protowire.AppendTag(b, 100, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)

	m, err := UnmarshalMeasurement(b)
	require.NoError(t, err)
	assert.Equal(t, track.NewMeasurement(1, 2, 3, 4), m)
}

func TestDecodeErrors(t *testing.T) {
	t.Run("wrong wire type", func(t *testing.T) {
		b := protowire.AppendTag(nil, measX, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
		_, err := UnmarshalMeasurement(b)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrWireType))
	})
	t.Run("truncated double", func(t *testing.T) {
		b := AppendMeasurement(nil, track.NewMeasurement(1, 2, 3, 4))
		_, err := UnmarshalMeasurement(b[:len(b)-3])
		assert.Error(t, err)
	})
	t.Run("truncated nested", func(t *testing.T) {
		b := MarshalMeasurementGroup(track.MeasurementGroup{track.NewMeasurement(1, 2, 3, 4)})
		_, err := UnmarshalMeasurementGroup(b[:len(b)-1])
		assert.Error(t, err)
	})
}

func TestCodec(t *testing.T) {
	c := Codec{}
	assert.Equal(t, "proto", c.Name())

	in := track.MeasurementGroup{track.NewMeasurement(1, 2, 3, 4), track.NewMeasurement(2, 3, 4, 5)}
	b, err := c.Marshal(&in)
	require.NoError(t, err)
	var out track.MeasurementGroup
	require.NoError(t, c.Unmarshal(b, &out))
	assert.Equal(t, in, out)

	tg := sampleTrackGroup()
	b, err = c.Marshal(&tg)
	require.NoError(t, err)
	var tgOut track.TrackGroup
	require.NoError(t, c.Unmarshal(b, &tgOut))
	assert.Equal(t, tg, tgOut)

	b, err = c.Marshal(&Empty{})
	require.NoError(t, err)
	assert.Empty(t, b)
	assert.NoError(t, c.Unmarshal(b, &Empty{}))

	_, err = c.Marshal("not a message")
	assert.Error(t, err)
	assert.Error(t, c.Unmarshal(nil, new(int)))
}
