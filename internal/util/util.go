package util

import "math"

// Round rounds the value to the nearest integer, with halves rounded toward positive infinity.
func Round(value float64) float64 {
	return math.Floor(value + .5)
}

// Clamp returns the value bounded to [lower, upper].
func Clamp(value, lower, upper float64) float64 {
	return math.Min(math.Max(value, lower), upper)
}

// Smooth returns a weighted blend of the old and new values: (oldValue * (1 - factor)) + (newValue * factor).
func Smooth(oldValue, newValue, factor float64) float64 {
	return oldValue*(1-factor) + newValue*factor
}
