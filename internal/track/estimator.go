package track

import (
	"fmt"
	"strings"
)

// Estimator turns a stream of measurements into track snapshots.
//
// AddMeasurement appends m to the estimator's history, advances the
// internal state to m.Time and returns the complete snapshot. Elapsed
// time is clamped at zero, so out-of-order measurements are folded in
// rather than rejected.
//
// The returned Track is always valid. A non-nil error only reports a
// numerical anomaly (*NumericalError) for which the estimator kept its
// previous state; the measurement is still part of the history.
//
// Implementations are not safe for concurrent use.
type Estimator interface {
	AddMeasurement(m Measurement) (Track, error)
}

// FilterType selects an Estimator implementation.
type FilterType string

const (
	FilterKalman          FilterType = "kft" // Kalman filter tracker
	FilterInstantVelocity FilterType = "ivt" // instantaneous velocity tracker
)

// FilterTypes lists every supported selector in display order.
var FilterTypes = []FilterType{FilterKalman, FilterInstantVelocity}

// ParseFilterType validates a filter selector such as "kft" or "ivt".
func ParseFilterType(s string) (FilterType, error) {
	ft := FilterType(strings.ToLower(strings.TrimSpace(s)))
	switch ft {
	case FilterKalman, FilterInstantVelocity:
		return ft, nil
	}
	return "", fmt.Errorf("%w %q: expected one of %v", ErrUnknownFilterType, s, FilterTypes)
}

// Description returns a human readable name for the filter.
func (ft FilterType) Description() string {
	switch ft {
	case FilterKalman:
		return "Kalman filter"
	case FilterInstantVelocity:
		return "instantaneous velocity"
	}
	return "unknown"
}

// NewEstimator builds the estimator selected by ft. kcfg is only used by
// the Kalman filter.
func NewEstimator(ft FilterType, kcfg KalmanConfig) (Estimator, error) {
	switch ft {
	case FilterKalman:
		k, err := NewKalmanEstimator(kcfg)
		if err != nil {
			return nil, err
		}
		return k, nil
	case FilterInstantVelocity:
		return NewInstantVelocityEstimator(), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownFilterType, string(ft))
}

// clampDt returns the elapsed time between two measurements, never negative.
func clampDt(now, last float64) float64 {
	if dt := now - last; dt > 0 {
		return dt
	}
	return 0
}
