package track

// InstantVelocityEstimator derives velocity by differencing the two most
// recent measurements. It keeps the full history and never forgets.
type InstantVelocityEstimator struct {
	history  history
	velocity Vector3
}

// NewInstantVelocityEstimator returns an empty estimator.
func NewInstantVelocityEstimator() *InstantVelocityEstimator {
	return &InstantVelocityEstimator{}
}

// AddMeasurement implements Estimator. When the two latest measurements
// share a timestamp (or arrive out of order) the previous velocity is held;
// before any valid pair that velocity is zero.
func (e *InstantVelocityEstimator) AddMeasurement(m Measurement) (Track, error) {
	e.history = append(e.history, m)

	if n := len(e.history); n >= 2 {
		prev, curr := e.history[n-2], e.history[n-1]
		if dt := curr.Time - prev.Time; dt > 0 {
			e.velocity = curr.Position.Sub(prev.Position).Div(dt)
		} else {
			diagf("ivt: dt=%.6f between measurements at t=%.3f, holding velocity %s", dt, curr.Time, e.velocity)
		}
	}

	return Track{
		Velocity:     e.velocity,
		Position:     m.Position,
		Measurements: e.history.snapshot(),
	}, nil
}
