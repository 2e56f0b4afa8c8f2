package vdot

import (
	"math"
	"testing"
)

func TestScoreFiveKInTwentyMinutes(t *testing.T) {
	got := Score(5000, 1200)

	// Closed-form evaluation: t=20 min, v=250 m/min.
	tm := 20.0
	v := 250.0
	want := (-4.60 + 0.182258*v + 0.000104*v*v) /
		(0.8 + 0.1894393*math.Exp(-0.012778*tm) + 0.2989558*math.Exp(-0.1932605*tm))

	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("Score(5000, 1200) = %.9f, want %.9f", got, want)
	}
	if math.Abs(got-49.806233) > 1e-5 {
		t.Fatalf("Score(5000, 1200) = %.6f, want ~49.806233", got)
	}
	if got >= 50 {
		t.Fatalf("20:00 5K should score just under 50, got %.3f", got)
	}
}

func TestScoreRejectsNonPositiveInputs(t *testing.T) {
	cases := []struct {
		name     string
		distance float64
		seconds  float64
	}{
		{"zero distance", 0, 1200},
		{"zero time", 5000, 0},
		{"negative time", 5000, -10},
		{"nan distance", math.NaN(), 1200},
		{"inf time", 5000, math.Inf(1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.distance, tc.seconds); got != 0 {
				t.Fatalf("Score(%v, %v) = %v, want 0", tc.distance, tc.seconds, got)
			}
		})
	}
}

func TestPlausible(t *testing.T) {
	cases := map[float64]bool{
		29.9: false,
		30:   false,
		30.1: true,
		55:   true,
		79.9: true,
		80:   false,
		85:   false,
	}
	for score, want := range cases {
		if got := Plausible(score); got != want {
			t.Fatalf("Plausible(%v) = %t, want %t", score, got, want)
		}
	}
}
