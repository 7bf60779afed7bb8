package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tracker/internal/chart"
	"github.com/banshee-data/tracker/internal/simulator"
	"github.com/banshee-data/tracker/internal/testutil"
	"github.com/banshee-data/tracker/internal/track"
)

func TestLoadSeries_TrackFile(t *testing.T) {
	path := testutil.WriteTempFile(t, "run1.txt",
		"trk 0 1 2 0 0 0 1\n"+
			"meas 0 1 2 0.05 1.1 1.95\n"+
			"trk 1.2 2.8 2.9 0.8 1.2 0.6 0\n"+
			"meas 0 1 2 0.05 1.1 1.95\n"+
			"meas 1 3 2.5 1 3 2.5\n")

	s, err := loadSeries(path, "", false)
	require.NoError(t, err)
	assert.Equal(t, "run1.txt", s.Title)
	assert.Equal(t, []track.Vector3{{X: 0, Y: 1, Z: 2}, {X: 1.2, Y: 2.8, Z: 2.9}}, s.Predicted)
	assert.Equal(t, []track.Vector3{{X: 0, Y: 1, Z: 2}, {X: 1, Y: 3, Z: 2.5}}, s.Measured)
}

func TestLoadSeries_CSV(t *testing.T) {
	sim := simulator.New([]simulator.Target{{Velocity: track.Vector3{X: 1}}}, simulator.WithSigma(0))
	path := filepath.Join(t.TempDir(), "track0.csv")
	w, err := simulator.CreateCSV(path)
	require.NoError(t, err)
	for _, ts := range []float64{0, 2, 4} {
		require.NoError(t, w.Write(sim.Step(ts)))
	}
	require.NoError(t, w.Close())

	s, err := loadSeries(path, "sim", true)
	require.NoError(t, err)
	assert.Equal(t, "sim", s.Title)
	assert.Empty(t, s.Predicted)
	assert.Equal(t, []track.Vector3{{X: 0}, {X: 2}, {X: 4}}, s.Truth)
	assert.Equal(t, s.Truth, s.Measured)
}

func TestLoadSeries_Missing(t *testing.T) {
	_, err := loadSeries("/nonexistent/tracks.txt", "", false)
	assert.Error(t, err)
}

func TestLoadSeries_RendersPNG(t *testing.T) {
	path := testutil.WriteTempFile(t, "t.txt", "trk 0 1 2 0 0 0 1\nmeas 0 1 2 0 1 2\ntrk 1 2 3 1 1 1 0\nmeas 1 2 3 1 2 3\n")
	s, err := loadSeries(path, "", false)
	require.NoError(t, err)

	out := defaultPNGPath(path)
	require.NoError(t, chart.SavePNG(out, s))
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestDefaultPNGPath(t *testing.T) {
	assert.Equal(t, "/tmp/tracks.png", defaultPNGPath("/tmp/tracks.txt"))
	assert.Equal(t, "run.png", defaultPNGPath("run"))
}
