package fight

import (
	"math"
	"testing"
)

func TestLogisticOddsEvenMatch(t *testing.T) {
	odds := LogisticOdds(DefaultOddsSteepness)
	if p := odds(50, 50); p != 0.5 {
		t.Fatalf("equal scores: p = %v, want 0.5", p)
	}
}

func TestLogisticOddsMonotonic(t *testing.T) {
	odds := LogisticOdds(DefaultOddsSteepness)
	prev := 0.0
	for diff := -100.0; diff <= 100.0; diff += 5 {
		p := odds(50+diff, 50)
		if p <= prev {
			t.Fatalf("odds not strictly increasing at diff %.0f: %v <= %v", diff, p, prev)
		}
		if p <= 0 || p >= 1 {
			t.Fatalf("odds out of (0,1) at diff %.0f: %v", diff, p)
		}
		prev = p
	}
}

func TestLogisticOddsSymmetric(t *testing.T) {
	odds := LogisticOdds(DefaultOddsSteepness)
	pairs := [][2]float64{{80, 20}, {55, 45}, {10, 90}, {33.3, 66.6}}
	for _, pair := range pairs {
		sum := odds(pair[0], pair[1]) + odds(pair[1], pair[0])
		if math.Abs(sum-1.0) > 1e-12 {
			t.Fatalf("p(a,b)+p(b,a) = %v for %v, want 1", sum, pair)
		}
	}
}

func TestLogisticOddsDefaultsBadSteepness(t *testing.T) {
	odds := LogisticOdds(-1)
	if p := odds(75, 50); p <= 0.5 || p >= 1 {
		t.Fatalf("fallback curve misbehaves: p = %v", p)
	}
}
