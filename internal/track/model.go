package track

import (
	"fmt"
	"math"
)

// Vector3 is a Cartesian triple used for positions and velocities.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o.
func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o.
func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale returns v * s.
func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Div returns v / s component-wise.
func (v Vector3) Div(s float64) Vector3 {
	return Vector3{X: v.X / s, Y: v.Y / s, Z: v.Z / s}
}

// Norm returns the Euclidean length of v.
func (v Vector3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// IsFinite reports whether no component is NaN or ±Inf.
func (v Vector3) IsFinite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func (v Vector3) String() string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f)", v.X, v.Y, v.Z)
}

// Measurement is one noisy position observation at a timestamp.
// Time is in seconds on a monotonic clock shared with the velocity units.
type Measurement struct {
	Position Vector3
	Time     float64

	// Truth is the simulated ground-truth position, only meaningful when
	// HasTruth is set. It is diagnostic and never used by the estimators.
	Truth    Vector3
	HasTruth bool
}

// NewMeasurement builds a measurement without ground truth.
func NewMeasurement(x, y, z, t float64) Measurement {
	return Measurement{Position: Vector3{X: x, Y: y, Z: z}, Time: t}
}

// WithTruth returns a copy of m carrying the given ground-truth position.
func (m Measurement) WithTruth(truth Vector3) Measurement {
	m.Truth = truth
	m.HasTruth = true
	return m
}

// Track is a snapshot of the state estimate for one track line.
type Track struct {
	// TrackID is assigned by the Manager when the track is created.
	// Zero means unset; identifiers start at 1.
	TrackID uint32

	Velocity Vector3
	// Position is the estimator's current position estimate.
	Position Vector3

	// Measurements holds every measurement folded into this track line,
	// oldest first.
	Measurements []Measurement
}

// IsNew reports whether this snapshot is the one that created the track.
func (t Track) IsNew() bool {
	return len(t.Measurements) == 1
}

// Latest returns the most recent measurement in the history.
func (t Track) Latest() (Measurement, bool) {
	if len(t.Measurements) == 0 {
		return Measurement{}, false
	}
	return t.Measurements[len(t.Measurements)-1], true
}

// MeasurementGroup is a batch of measurements delivered together.
type MeasurementGroup []Measurement

// TrackGroup is the batch of track snapshots produced for a MeasurementGroup.
type TrackGroup []Track

// history is the append-only measurement list shared by the estimators.
type history []Measurement

// snapshot returns a copy so callers can never mutate the estimator's history.
func (h history) snapshot() []Measurement {
	out := make([]Measurement, len(h))
	copy(out, h)
	return out
}
