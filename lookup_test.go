package vdot

import (
	"math"
	"testing"
)

func TestParseClock(t *testing.T) {
	cases := map[string]float64{
		"9:05":    545,
		"19:57":   1197,
		"13:17.8": 797.8,
		"1:31:35": 5495,
		"2:01:10": 7270,
	}
	for in, want := range cases {
		got, err := ParseClock(in)
		if err != nil {
			t.Fatalf("ParseClock(%q) error: %v", in, err)
		}
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("ParseClock(%q) = %v, want %v", in, got, want)
		}
	}

	for _, bad := range []string{"", "12", "a:10", "1:2:3:4"} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("ParseClock(%q) expected error", bad)
		}
	}
}

func TestFormatClock(t *testing.T) {
	cases := map[float64]string{
		0:      "0:00",
		59.6:   "1:00",
		1197:   "19:57",
		3599.4: "59:59",
		5495:   "1:31:35",
		7270:   "2:01:10",
	}
	for in, want := range cases {
		if got := FormatClock(in); got != want {
			t.Fatalf("FormatClock(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestRaceTimesAtTableRows(t *testing.T) {
	p := RaceTimes(50)
	if p.Extrapolated {
		t.Fatal("score 50 should not be extrapolated")
	}
	want := map[Race]string{
		Race5000:         "19:57",
		RaceHalfMarathon: "1:31:35",
		RaceMarathon:     "3:10:49",
	}
	got := p.Formatted()
	for race, clock := range want {
		if got[race] != clock {
			t.Fatalf("RaceTimes(50)[%s] = %s, want %s", race, got[race], clock)
		}
	}
}

func TestRaceTimesInterpolatesBetweenRows(t *testing.T) {
	// 31 sits halfway between the 30 and 32 rows.
	p := RaceTimes(31)
	want := (1840.0 + 1745.0) / 2
	if math.Abs(p.Seconds[Race5000]-want) > 1e-9 {
		t.Fatalf("RaceTimes(31) 5000 = %v, want %v", p.Seconds[Race5000], want)
	}
}

func TestRaceTimesRoundTrip(t *testing.T) {
	lo, hi := TableRange()
	for score := lo; score <= hi; score += 0.5 {
		p := RaceTimes(score)
		if p.Extrapolated {
			t.Fatalf("score %v inside table marked extrapolated", score)
		}
		for _, race := range Races {
			back, inRange := ScoreForTime(race, p.Seconds[race])
			if !inRange {
				t.Fatalf("ScoreForTime(%s, %v) reported out of range", race, p.Seconds[race])
			}
			if math.Abs(back-score) > 1e-6 {
				t.Fatalf("round trip %s: score %v -> %v s -> %v", race, score, p.Seconds[race], back)
			}
			again := RaceTimes(back).Seconds[race]
			if math.Abs(again-p.Seconds[race]) > 0.5 {
				t.Fatalf("round trip %s: time %v -> %v", race, p.Seconds[race], again)
			}
		}
	}
}

func TestRaceTimesExtrapolationMarker(t *testing.T) {
	for _, score := range []float64{25, 29.99, 85.01, 90} {
		p := RaceTimes(score)
		if !p.Extrapolated || p.Warning == "" {
			t.Fatalf("RaceTimes(%v) expected extrapolation marker", score)
		}
	}

	// Linear continuation of the 84-85 segment.
	p := RaceTimes(86)
	want := 757.4 - (765.2 - 757.4)
	if math.Abs(p.Seconds[Race5000]-want) > 1e-9 {
		t.Fatalf("RaceTimes(86) 5000 = %v, want %v", p.Seconds[Race5000], want)
	}
}

func TestScoreForTimeKnownClock(t *testing.T) {
	secs, err := ParseClock("19:57")
	if err != nil {
		t.Fatal(err)
	}
	score, ok := ScoreForTime(Race5000, secs)
	if !ok || math.Abs(score-50) > 1e-9 {
		t.Fatalf("ScoreForTime(5000, 19:57) = %v (in range %t), want 50", score, ok)
	}
	if _, ok := ScoreForTime(Race5000, 40*60); ok {
		t.Fatal("40:00 5K should be outside the table")
	}
}
