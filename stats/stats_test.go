package stats

import (
	"testing"
	"time"

	"spiderpit/database"
)

var statTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func fightBetween(challenger, challenged, winner string) database.Fight {
	f := database.Fight{
		ChallengerID:       challenger,
		ChallengedID:       challenged,
		ChallengerSpiderID: "s-" + challenger,
		ChallengedSpiderID: "s-" + challenged,
		CompletedAt:        statTime,
	}
	switch winner {
	case "":
		f.IsDraw = true
	case challenger:
		f.WinnerID = challenger
		f.LoserID = challenged
	default:
		f.WinnerID = challenged
		f.LoserID = challenger
	}
	return f
}

func TestAggregateUserEmptyHistory(t *testing.T) {
	record := AggregateUser("alice", nil)
	if record.Fights != 0 || record.Wins != 0 || record.Losses != 0 || record.Draws != 0 {
		t.Fatalf("empty history must aggregate to zeros, got %+v", record)
	}
	if record.WinPercentage != 0 {
		t.Fatalf("win percentage over no fights = %v, want 0", record.WinPercentage)
	}
}

func TestAggregateUser(t *testing.T) {
	fights := []database.Fight{
		fightBetween("alice", "bob", "alice"),
		fightBetween("carol", "alice", "alice"),
		fightBetween("alice", "bob", "bob"),
		fightBetween("alice", "dave", ""),
		fightBetween("bob", "carol", "bob"), // alice not involved
	}

	record := AggregateUser("alice", fights)
	if record.Fights != 4 {
		t.Fatalf("fights = %d, want 4", record.Fights)
	}
	if record.Wins != 2 || record.Losses != 1 || record.Draws != 1 {
		t.Fatalf("record = %d-%d-%d, want 2-1-1", record.Wins, record.Losses, record.Draws)
	}
	// Draws don't count against the percentage.
	if want := 2.0 / 3.0; record.WinPercentage != want {
		t.Fatalf("win percentage = %v, want %v", record.WinPercentage, want)
	}
}

func TestLeaderboardEmptyHistory(t *testing.T) {
	board := Leaderboard(nil)
	if len(board) != 0 {
		t.Fatalf("leaderboard over no fights = %v, want empty", board)
	}
}

func TestLeaderboardMinimumFights(t *testing.T) {
	// alice and bob fight three times; carol appears only once.
	fights := []database.Fight{
		fightBetween("alice", "bob", "alice"),
		fightBetween("alice", "bob", "alice"),
		fightBetween("bob", "alice", "bob"),
		fightBetween("carol", "dave", "carol"),
	}

	board := Leaderboard(fights)
	for _, record := range board {
		if record.UserID == "carol" || record.UserID == "dave" {
			t.Fatalf("user %s with <%d fights must not rank", record.UserID, LeaderboardMinFights)
		}
	}
	if len(board) != 2 {
		t.Fatalf("leaderboard size = %d, want 2", len(board))
	}
	if board[0].UserID != "alice" {
		t.Fatalf("leader = %s, want alice (2-1 beats 1-2)", board[0].UserID)
	}
}

func TestLeaderboardOrderingDeterministic(t *testing.T) {
	// Two users with identical records tie-break on id.
	fights := []database.Fight{
		fightBetween("zed", "amy", "zed"),
		fightBetween("amy", "zed", "amy"),
		fightBetween("zed", "amy", ""),
	}
	board := Leaderboard(fights)
	if len(board) != 2 {
		t.Fatalf("leaderboard size = %d, want 2", len(board))
	}
	if board[0].UserID != "amy" || board[1].UserID != "zed" {
		t.Fatalf("tie-break order = %s,%s, want amy,zed", board[0].UserID, board[1].UserID)
	}
}

func TestAggregateSpider(t *testing.T) {
	fights := []database.Fight{
		fightBetween("alice", "bob", "alice"),
		fightBetween("carol", "alice", "carol"),
	}
	fights[0].ScoreDifference = 10
	fights[1].ScoreDifference = 4

	perf := AggregateSpider("s-alice", fights)
	if perf.Fights != 2 {
		t.Fatalf("fights = %d, want 2", perf.Fights)
	}
	if perf.Wins != 1 || perf.Losses != 1 {
		t.Fatalf("record = %d-%d, want 1-1", perf.Wins, perf.Losses)
	}
	if perf.AvgMargin != 7 {
		t.Fatalf("avg margin = %v, want 7", perf.AvgMargin)
	}
}

func TestAggregateSpiderEmptyHistory(t *testing.T) {
	perf := AggregateSpider("s-ghost", nil)
	if perf.Fights != 0 || perf.WinPercentage != 0 || perf.AvgMargin != 0 {
		t.Fatalf("empty history must aggregate to zeros, got %+v", perf)
	}
}

func TestClassifyOutcome(t *testing.T) {
	tests := []struct {
		name     string
		fight    database.Fight
		expected bool
		surprise float64
	}{
		{
			name: "favorite wins",
			fight: database.Fight{
				ChallengerID:   "alice",
				ChallengedID:   "bob",
				WinnerID:       "alice",
				WinProbability: 0.9,
			},
			expected: true,
			surprise: 0.8,
		},
		{
			name: "underdog wins",
			fight: database.Fight{
				ChallengerID:   "alice",
				ChallengedID:   "bob",
				WinnerID:       "bob",
				WinProbability: 0.9,
			},
			expected: false,
			surprise: 0.8,
		},
		{
			name: "coin flip either way",
			fight: database.Fight{
				ChallengerID:   "alice",
				ChallengedID:   "bob",
				WinnerID:       "bob",
				WinProbability: 0.45,
			},
			expected: true,
			surprise: 0.1,
		},
		{
			name: "draw is never expected",
			fight: database.Fight{
				ChallengerID:   "alice",
				ChallengedID:   "bob",
				IsDraw:         true,
				WinProbability: 0.7,
			},
			expected: false,
			surprise: 0.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := ClassifyOutcome(&tt.fight)
			if outcome.WasExpected != tt.expected {
				t.Fatalf("wasExpected = %v, want %v", outcome.WasExpected, tt.expected)
			}
			if diff := outcome.SurpriseFactor - tt.surprise; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("surpriseFactor = %v, want %v", outcome.SurpriseFactor, tt.surprise)
			}
		})
	}
}
