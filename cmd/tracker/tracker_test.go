package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tracker/internal/testutil"
	"github.com/banshee-data/tracker/internal/track"
)

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, ":50051", *listen)
	assert.Equal(t, "localhost:50052", *consumerAddr)
	assert.Equal(t, 50053, *pcapPort)
	assert.Empty(t, *serialPort)
	assert.Empty(t, *udpListen)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("", "")
	require.NoError(t, err)
	assert.Equal(t, track.FilterKalman, cfg.GetFilterType())

	cfg, err = loadConfig("", "ivt")
	require.NoError(t, err)
	assert.Equal(t, track.FilterInstantVelocity, cfg.GetFilterType())

	path := testutil.WriteTempFile(t, "tracker.json", `{"filter_type": "ivt", "measurement_noise": 0.2}`)
	cfg, err = loadConfig(path, "kft")
	require.NoError(t, err)
	assert.Equal(t, track.FilterKalman, cfg.GetFilterType(), "flag overrides file")
	assert.Equal(t, 0.2, cfg.KalmanConfig().MeasurementNoise)
}

func TestLoadConfig_UnknownFilter(t *testing.T) {
	_, err := loadConfig("", "ukf")
	assert.True(t, errors.Is(err, track.ErrUnknownFilterType))

	path := testutil.WriteTempFile(t, "bad.json", `{"filter_type": "ukf"}`)
	_, err = loadConfig(path, "")
	assert.True(t, errors.Is(err, track.ErrUnknownFilterType))
}
