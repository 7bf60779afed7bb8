// Package simulator produces synthetic measurement groups for targets moving
// with constant acceleration. Measured positions carry Gaussian noise and the
// noise-free truth so estimator output can be scored.
package simulator

import (
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/tracker/internal/monitoring"
	"github.com/banshee-data/tracker/internal/track"
	"github.com/banshee-data/tracker/internal/units"
)

var logf = monitoring.Component("simulator")

const (
	// DefaultSigma is the per-axis standard deviation of measurement noise.
	DefaultSigma = 0.1

	truthDecimals    = 4
	measuredDecimals = 3

	minSpeedMPH = 400
	maxSpeedMPH = 600
	arenaSize   = 100
)

// Target is one simulated object. Its position at time t is
// Start + Velocity·dt + ½·Acceleration·dt² with dt = t - StartTime.
type Target struct {
	Start        track.Vector3
	Velocity     track.Vector3
	Acceleration track.Vector3
	StartTime    float64
}

// TruthAt returns the noise-free position at time t rounded to 4 decimal
// places. Times before StartTime report the start position.
func (tg Target) TruthAt(t float64) track.Vector3 {
	dt := t - tg.StartTime
	if dt < 0 {
		dt = 0
	}
	p := tg.Start.Add(tg.Velocity.Scale(dt)).Add(tg.Acceleration.Scale(0.5 * dt * dt))
	return roundVector(p, truthDecimals)
}

// Sample is a measurement together with the motion of the target that
// produced it.
type Sample struct {
	Measurement  track.Measurement
	Velocity     track.Vector3
	Acceleration track.Vector3
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithSigma sets the measurement noise standard deviation.
func WithSigma(sigma float64) Option {
	return func(s *Simulator) { s.noise.Sigma = sigma }
}

// WithSeed makes the noise sequence reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Simulator) { s.noise.Src = rand.NewPCG(seed, seed) }
}

// Simulator owns a fixed set of targets and a noise source. It is safe for
// concurrent use.
type Simulator struct {
	targets []Target

	mu    sync.Mutex
	noise distuv.Normal
}

// New returns a simulator for targets. Without WithSeed the noise source is
// seeded randomly.
func New(targets []Target, opts ...Option) *Simulator {
	s := &Simulator{
		targets: append([]Target(nil), targets...),
		noise: distuv.Normal{
			Mu:    0,
			Sigma: DefaultSigma,
			Src:   rand.NewPCG(rand.Uint64(), rand.Uint64()),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Targets returns a copy of the simulated targets.
func (s *Simulator) Targets() []Target {
	return append([]Target(nil), s.targets...)
}

// Sigma returns the measurement noise standard deviation.
func (s *Simulator) Sigma() float64 {
	return s.noise.Sigma
}

// Step samples every target at time t.
func (s *Simulator) Step(t float64) []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Sample, 0, len(s.targets))
	for _, tg := range s.targets {
		truth := tg.TruthAt(t)
		measured := track.Vector3{
			X: s.noisy(truth.X),
			Y: s.noisy(truth.Y),
			Z: s.noisy(truth.Z),
		}
		out = append(out, Sample{
			Measurement:  track.NewMeasurement(measured.X, measured.Y, measured.Z, t).WithTruth(truth),
			Velocity:     tg.Velocity,
			Acceleration: tg.Acceleration,
		})
	}
	return out
}

// MeasurementsAt returns one measurement per target at time t.
func (s *Simulator) MeasurementsAt(t float64) track.MeasurementGroup {
	return Measurements(s.Step(t))
}

func (s *Simulator) noisy(v float64) float64 {
	if s.noise.Sigma == 0 {
		return round(v, measuredDecimals)
	}
	s.noise.Mu = v
	return round(s.noise.Rand(), measuredDecimals)
}

// Measurements drops the motion data from samples.
func Measurements(samples []Sample) track.MeasurementGroup {
	group := make(track.MeasurementGroup, len(samples))
	for i, s := range samples {
		group[i] = s.Measurement
	}
	return group
}

// RandomTarget returns a target starting uniformly inside [0,100)³ at
// startTime, heading in a random non-negative direction at 400 to 600 mph,
// with no acceleration.
func RandomTarget(rng *rand.Rand, startTime float64) Target {
	start := track.Vector3{
		X: rng.Float64() * arenaSize,
		Y: rng.Float64() * arenaSize,
		Z: rng.Float64() * arenaSize,
	}

	var dir track.Vector3
	for dir.Norm() == 0 {
		dir = track.Vector3{
			X: float64(rng.IntN(arenaSize)),
			Y: float64(rng.IntN(arenaSize)),
			Z: float64(rng.IntN(arenaSize)),
		}
	}

	mph := minSpeedMPH + rng.Float64()*(maxSpeedMPH-minSpeedMPH)
	speed, _ := units.ToMPS(mph, units.MPH)

	return Target{
		Start:     start,
		Velocity:  roundVector(dir.Div(dir.Norm()).Scale(speed), truthDecimals),
		StartTime: startTime,
	}
}

func round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

func roundVector(v track.Vector3, decimals int) track.Vector3 {
	return track.Vector3{
		X: round(v.X, decimals),
		Y: round(v.Y, decimals),
		Z: round(v.Z, decimals),
	}
}
