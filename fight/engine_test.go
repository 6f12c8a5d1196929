package fight

import (
	"testing"
	"time"

	"spiderpit/database"
)

var resolveTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func participant(userID, spiderID string, score float64) Participant {
	return Participant{UserID: userID, SpiderID: spiderID, Score: score}
}

func TestResolveChallengerWins(t *testing.T) {
	fight := Resolve("ch-1",
		participant("alice", "spider-a", 85),
		participant("bob", "spider-b", 75),
		LogisticOdds(DefaultOddsSteepness), resolveTime)

	if fight.IsDraw {
		t.Fatal("unexpected draw")
	}
	if fight.WinnerID != "alice" || fight.LoserID != "bob" {
		t.Fatalf("winner/loser = %q/%q, want alice/bob", fight.WinnerID, fight.LoserID)
	}
	if fight.ScoreDifference != 10.0 {
		t.Fatalf("scoreDifference = %v, want 10", fight.ScoreDifference)
	}
	// The close-fight predicate is strict: a margin of exactly 10 is not close.
	if fight.WasCloseFight {
		t.Fatal("margin of exactly 10.0 must not count as close")
	}
	if fight.WinProbability <= 0.5 {
		t.Fatalf("winProbability = %v, want > 0.5 for the stronger challenger", fight.WinProbability)
	}
	if !fight.CompletedAt.Equal(resolveTime) {
		t.Fatalf("completedAt = %v, want %v", fight.CompletedAt, resolveTime)
	}
}

func TestResolveChallengedWins(t *testing.T) {
	fight := Resolve("ch-2",
		participant("alice", "spider-a", 40),
		participant("bob", "spider-b", 90),
		nil, resolveTime)

	if fight.WinnerID != "bob" || fight.LoserID != "alice" {
		t.Fatalf("winner/loser = %q/%q, want bob/alice", fight.WinnerID, fight.LoserID)
	}
	if fight.WasCloseFight {
		t.Fatal("a 50-point margin is not close")
	}
}

func TestResolveDraw(t *testing.T) {
	fight := Resolve("ch-3",
		participant("alice", "spider-a", 60),
		participant("bob", "spider-b", 60),
		nil, resolveTime)

	if !fight.IsDraw {
		t.Fatal("equal scores must draw")
	}
	if fight.WinnerID != "" || fight.LoserID != "" {
		t.Fatalf("draw must leave winner/loser empty, got %q/%q", fight.WinnerID, fight.LoserID)
	}
	if fight.ScoreDifference != 0 {
		t.Fatalf("scoreDifference = %v, want 0", fight.ScoreDifference)
	}
	if !fight.WasCloseFight {
		t.Fatal("a zero margin is close")
	}
	if fight.WinProbability != 0.5 {
		t.Fatalf("winProbability = %v, want 0.5 on equal scores", fight.WinProbability)
	}
}

func TestResolveCloseFight(t *testing.T) {
	fight := Resolve("ch-4",
		participant("alice", "spider-a", 80),
		participant("bob", "spider-b", 75),
		nil, resolveTime)

	if !fight.WasCloseFight {
		t.Fatal("a 5-point margin is close")
	}
	if fight.WinnerID != "alice" {
		t.Fatalf("winner = %q, want alice", fight.WinnerID)
	}
}

func TestResolveDeterministic(t *testing.T) {
	a := Resolve("ch-5", participant("alice", "spider-a", 71.5), participant("bob", "spider-b", 68.25), nil, resolveTime)
	b := Resolve("ch-5", participant("alice", "spider-a", 71.5), participant("bob", "spider-b", 68.25), nil, resolveTime)

	if a.WinnerID != b.WinnerID || a.LoserID != b.LoserID || a.IsDraw != b.IsDraw {
		t.Fatalf("resolution not deterministic: %+v vs %+v", a, b)
	}
	if a.WinProbability != b.WinProbability || a.ScoreDifference != b.ScoreDifference {
		t.Fatalf("derived fields not deterministic: %+v vs %+v", a, b)
	}
}

// Exactly one of the two outcome shapes holds for every fight.
func TestResolveOutcomeShape(t *testing.T) {
	cases := []struct{ a, b float64 }{
		{85, 75}, {75, 85}, {60, 60}, {0, 0}, {0.1, 0},
	}
	for _, tc := range cases {
		fight := Resolve("ch-6", participant("alice", "s-a", tc.a), participant("bob", "s-b", tc.b), nil, resolveTime)
		if fight.IsDraw {
			if fight.WinnerID != "" {
				t.Fatalf("scores %v: draw with winner %q", tc, fight.WinnerID)
			}
		} else {
			if fight.WinnerID != "alice" && fight.WinnerID != "bob" {
				t.Fatalf("scores %v: winner %q is not a participant", tc, fight.WinnerID)
			}
		}
	}
}

func TestEngineSeededModifiersReproducible(t *testing.T) {
	e := NewEngine(nil)
	e.EnableSeededModifiers()

	ch := &database.Challenge{ID: "ch-7", ChallengerID: "alice", ChallengedID: "bob"}
	spiderA := &database.Spider{ID: "s-a", DeadlinessScore: 70}
	spiderB := &database.Spider{ID: "s-b", DeadlinessScore: 70}

	c1, d1 := e.scores(ch, spiderA, spiderB)
	c2, d2 := e.scores(ch, spiderA, spiderB)

	if c1.Score != c2.Score || d1.Score != d2.Score {
		t.Fatalf("seeded modifiers not reproducible: %v/%v vs %v/%v", c1.Score, d1.Score, c2.Score, d2.Score)
	}
	if c1.Modifier < -5 || c1.Modifier > 5 || d1.Modifier < -5 || d1.Modifier > 5 {
		t.Fatalf("modifiers out of range: %v / %v", c1.Modifier, d1.Modifier)
	}
}

func TestEngineScoresWithoutModifiers(t *testing.T) {
	e := NewEngine(nil)

	ch := &database.Challenge{ID: "ch-8", ChallengerID: "alice", ChallengedID: "bob"}
	challenger, challenged := e.scores(ch,
		&database.Spider{ID: "s-a", DeadlinessScore: 42.5},
		&database.Spider{ID: "s-b", DeadlinessScore: 17})

	if challenger.Score != 42.5 || challenged.Score != 17 {
		t.Fatalf("scores = %v/%v, want raw deadliness", challenger.Score, challenged.Score)
	}
	if challenger.Modifier != 0 || challenged.Modifier != 0 {
		t.Fatalf("modifiers = %v/%v, want 0 when disabled", challenger.Modifier, challenged.Modifier)
	}
}
