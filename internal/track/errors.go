package track

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownFilterType is returned when a filter selector names no estimator.
	ErrUnknownFilterType = errors.New("unknown filter type")

	// ErrSingularInnovation is reported when the innovation covariance cannot be inverted.
	ErrSingularInnovation = errors.New("singular innovation covariance")

	// ErrNonFiniteState is reported when an update would produce NaN or Inf.
	ErrNonFiniteState = errors.New("non-finite filter state")
)

// NumericalError describes a Kalman step that was skipped because its
// arithmetic was not usable. The estimator holds its previous state when
// it reports one of these.
type NumericalError struct {
	Stage string  // "predict" or "update"
	Time  float64 // measurement time that triggered the step
	Err   error
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("kalman %s at t=%.3f: %v", e.Stage, e.Time, e.Err)
}

func (e *NumericalError) Unwrap() error { return e.Err }
