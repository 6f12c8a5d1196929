// Package stats derives read-side aggregates from fight history. Pure
// folds: no storage access, no side effects, and empty histories yield
// zero values rather than errors.
package stats

import (
	"math"
	"sort"

	"spiderpit/database"
)

// LeaderboardMinFights is the minimum completed fights before a user
// qualifies for leaderboard ranking.
const LeaderboardMinFights = 3

// UserRecord is one user's totals over a fight history.
type UserRecord struct {
	UserID        string  `json:"user_id"`
	Fights        int     `json:"fights"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	Draws         int     `json:"draws"`
	WinPercentage float64 `json:"win_percentage"`
	CloseFights   int     `json:"close_fights"`
}

// AggregateUser folds a user's totals out of the given fights. Fights
// not involving the user are skipped, so callers may pass a wider
// history than strictly necessary.
func AggregateUser(userID string, fights []database.Fight) UserRecord {
	record := UserRecord{UserID: userID}
	for i := range fights {
		f := &fights[i]
		if f.ChallengerID != userID && f.ChallengedID != userID {
			continue
		}
		record.Fights++
		switch {
		case f.IsDraw:
			record.Draws++
		case f.WinnerID == userID:
			record.Wins++
		default:
			record.Losses++
		}
		if f.WasCloseFight {
			record.CloseFights++
		}
	}
	if decided := record.Wins + record.Losses; decided > 0 {
		record.WinPercentage = float64(record.Wins) / float64(decided)
	}
	return record
}

// Leaderboard ranks every participant with at least LeaderboardMinFights
// fights, by win percentage then total fights. Deterministic order: ties
// beyond that break on user id.
func Leaderboard(fights []database.Fight) []UserRecord {
	byUser := make(map[string]bool)
	for i := range fights {
		byUser[fights[i].ChallengerID] = true
		byUser[fights[i].ChallengedID] = true
	}

	records := make([]UserRecord, 0, len(byUser))
	for userID := range byUser {
		record := AggregateUser(userID, fights)
		if record.Fights < LeaderboardMinFights {
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].WinPercentage != records[j].WinPercentage {
			return records[i].WinPercentage > records[j].WinPercentage
		}
		if records[i].Fights != records[j].Fights {
			return records[i].Fights > records[j].Fights
		}
		return records[i].UserID < records[j].UserID
	})
	return records
}

// SpiderPerformance is one spider's record over a fight history.
type SpiderPerformance struct {
	SpiderID      string  `json:"spider_id"`
	Fights        int     `json:"fights"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	Draws         int     `json:"draws"`
	WinPercentage float64 `json:"win_percentage"`
	AvgMargin     float64 `json:"avg_margin"`
}

// AggregateSpider folds a single spider's performance. A spider wins
// when its side's user won the fight.
func AggregateSpider(spiderID string, fights []database.Fight) SpiderPerformance {
	perf := SpiderPerformance{SpiderID: spiderID}
	var marginSum float64
	for i := range fights {
		f := &fights[i]
		var ownerID string
		switch spiderID {
		case f.ChallengerSpiderID:
			ownerID = f.ChallengerID
		case f.ChallengedSpiderID:
			ownerID = f.ChallengedID
		default:
			continue
		}
		perf.Fights++
		marginSum += f.ScoreDifference
		switch {
		case f.IsDraw:
			perf.Draws++
		case f.WinnerID == ownerID:
			perf.Wins++
		default:
			perf.Losses++
		}
	}
	if decided := perf.Wins + perf.Losses; decided > 0 {
		perf.WinPercentage = float64(perf.Wins) / float64(decided)
	}
	if perf.Fights > 0 {
		perf.AvgMargin = marginSum / float64(perf.Fights)
	}
	return perf
}

// Outcome classifies how surprising a fight result was relative to the
// pre-fight win probability.
type Outcome struct {
	WasExpected    bool    `json:"was_expected"`
	SurpriseFactor float64 `json:"surprise_factor"`
}

// ClassifyOutcome compares the predicted side against the actual winner.
// A draw is never expected (the curve predicts one side), and surprise
// scales from 0 at a coin flip to 1 at a certainty overturned.
func ClassifyOutcome(fight *database.Fight) Outcome {
	predictedChallenger := fight.WinProbability > 0.5
	challengerWon := !fight.IsDraw && fight.WinnerID == fight.ChallengerID
	return Outcome{
		WasExpected:    !fight.IsDraw && predictedChallenger == challengerWon,
		SurpriseFactor: math.Abs(fight.WinProbability-0.5) * 2,
	}
}
