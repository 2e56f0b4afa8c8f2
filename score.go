package vdot

import "math"

const (
	// MilesPerKM converts kilometers to statute miles.
	MilesPerKM = 0.621371

	// MinPlausibleScore and MaxPlausibleScore bound the scores accepted as
	// fitness evidence (exclusive on both ends).
	MinPlausibleScore = 30.0
	MaxPlausibleScore = 80.0
)

// Score returns the VDOT for covering distanceMeters in seconds using the
// Daniels/Gilbert oxygen-cost and drop-dead formulas. It returns 0 when either
// input is not a positive finite number.
func Score(distanceMeters, seconds float64) float64 {
	if !isFinite(distanceMeters) || !isFinite(seconds) || distanceMeters <= 0 || seconds <= 0 {
		return 0
	}
	t := seconds / 60.0
	v := distanceMeters / t

	vo2 := -4.60 + 0.182258*v + 0.000104*v*v
	pctMax := 0.8 + 0.1894393*math.Exp(-0.012778*t) + 0.2989558*math.Exp(-0.1932605*t)
	return vo2 / pctMax
}

// Plausible reports whether score lies strictly inside the human range.
func Plausible(score float64) bool {
	return score > MinPlausibleScore && score < MaxPlausibleScore
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
