// Package mathx contains small numeric helpers for converting between
// engineering units and device counts.
package mathx

// Steps returns the number of whole "units" nearest to x, e.g. Steps(2.46, 0.1) == 25.
// Halves round away from zero.
func Steps(x, unit float64) int64 {
	if x < 0 {
		return -int64(-x/unit + 0.5)
	}
	return int64(x/unit + 0.5)
}

// Round rounds a float to the nearest "unit" (0.1 for tenth, 0.01 for hundredth, and so on).
func Round(x, unit float64) float64 {
	return float64(Steps(x, unit)) * unit
}
