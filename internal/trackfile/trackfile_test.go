package trackfile

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tracker/internal/testutil"
	"github.com/banshee-data/tracker/internal/track"
)

func sampleGroup() track.TrackGroup {
	m1 := track.NewMeasurement(0, 1, 2, 0).WithTruth(track.Vector3{X: 0.05, Y: 1.1, Z: 1.95})
	m2 := track.NewMeasurement(1, 3, 2.5, 1).WithTruth(track.Vector3{X: 1, Y: 3, Z: 2.5})
	return track.TrackGroup{
		{TrackID: 1, Position: track.Vector3{X: 0, Y: 1, Z: 2}, Measurements: []track.Measurement{m1}},
		{
			Position:     track.Vector3{X: 1.2, Y: 2.8, Z: 2.9},
			Velocity:     track.Vector3{X: 0.8, Y: 1.2, Z: 0.6},
			Measurements: []track.Measurement{m1, m2},
		},
	}
}

func TestWriterFormat(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.WriteGroup(sampleGroup()))

	want := header +
		"trk 0 1 2 0 0 0 1\n" +
		"meas 0 1 2 0.05 1.1 1.95\n" +
		"trk 1.2 2.8 2.9 0.8 1.2 0.6 0\n" +
		"meas 0 1 2 0.05 1.1 1.95\n" +
		"meas 1 3 2.5 1 3 2.5\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, 2, w.Tracks())
}

func TestRoundTripFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.track")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.ProcessTrack(context.Background(), sampleGroup()))
	require.NoError(t, w.Close())

	got, err := ReadFile(path)
	require.NoError(t, err)
	// Times are not part of the file format.
	ignoreTime := cmpopts.IgnoreFields(track.Measurement{}, "Time")
	if diff := cmp.Diff(sampleGroup(), got, ignoreTime); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		errMsg string
	}{
		{"meas first", "meas 1 2 3 4 5 6\n", "before any trk"},
		{"short trk", "trk 1 2 3\n", "7 fields"},
		{"bad number", "trk 1 2 x 0 0 0 1\n", "invalid number"},
		{"bad id", "trk 1 2 3 0 0 0 -1\n", "invalid track id"},
		{"unknown", "foo 1\n", "unknown record"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.Contains(t, err.Error(), "line 1")
		})
	}
}

func TestReadSkipsCommentsAndBlankLines(t *testing.T) {
	path := testutil.WriteTempFile(t, "t.track", header+"\n# note\ntrk 1 1 1 0 0 0 3\n")
	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(3), got[0].TrackID)
	assert.Empty(t, got[0].Measurements)
}
