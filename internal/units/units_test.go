package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		name     string
		speedMPS float64
		units    string
		expected float64
	}{
		{"10 m/s to mph", 10.0, MPH, 22.3694},
		{"10 m/s to kmph", 10.0, KMPH, 36.0},
		{"10 m/s to kph", 10.0, KPH, 36.0},
		{"10 m/s to mps", 10.0, MPS, 10.0},
		{"unknown units default to mps", 10.0, "knots", 10.0},
		{"airliner 223.52 m/s to mph", 223.52, MPH, 500.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, ConvertSpeed(tt.speedMPS, tt.units), 0.01)
		})
	}
}

func TestToMPS(t *testing.T) {
	got, err := ToMPS(500, MPH)
	require.NoError(t, err)
	assert.InDelta(t, 223.52, got, 1e-9)

	got, err = ToMPS(36, KPH)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, got, 1e-9)

	_, err = ToMPS(1, "furlongs")
	assert.Error(t, err)
}

func TestIsValid(t *testing.T) {
	for _, u := range ValidUnits {
		assert.True(t, IsValid(u), u)
	}
	assert.False(t, IsValid("knots"))
}
