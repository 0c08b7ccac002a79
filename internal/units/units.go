// Package units provides shared constants and conversion for angle units
package units

import "math"

// Unit constants
const (
	Rad = "rad"
	Deg = "deg"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Rad, Deg}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "rad, deg"
}

// ConvertAngle converts an angle or angular rate from radians to the target
// units. Rates convert the same way (rad/s to deg/s).
// The filter works in radians throughout.
func ConvertAngle(rad float64, targetUnits string) float64 {
	switch targetUnits {
	case Deg:
		return rad * 180 / math.Pi
	default:
		return rad // default to radians if unknown unit
	}
}

// ConvertVec3 applies ConvertAngle to each component of v.
func ConvertVec3(v [3]float64, targetUnits string) [3]float64 {
	for i := range v {
		v[i] = ConvertAngle(v[i], targetUnits)
	}
	return v
}

// RateLabel returns the label of an angular rate in the given units.
func RateLabel(targetUnits string) string {
	if targetUnits == Deg {
		return "deg/s"
	}
	return "rad/s"
}
