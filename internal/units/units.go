// Package units converts track speeds between the SI units the estimators
// work in and the display units operators ask for.
package units

import "fmt"

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

const metresPerMile = 1609.344

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ConvertSpeed converts a speed from metres per second to the target units.
// Unknown units leave the value in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 3600 / metresPerMile
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// ToMPS converts a speed in the given units to metres per second.
func ToMPS(speed float64, fromUnits string) (float64, error) {
	switch fromUnits {
	case MPS:
		return speed, nil
	case MPH:
		return speed * metresPerMile / 3600, nil
	case KMPH, KPH:
		return speed / 3.6, nil
	}
	return 0, fmt.Errorf("unknown speed unit %q (valid: %v)", fromUnits, ValidUnits)
}
