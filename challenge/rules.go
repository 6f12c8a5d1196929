// Package challenge holds the matchmaking rules: who may challenge whom,
// which spiders are fit to fight, and the pending/accepted/declined/
// expired state machine.
package challenge

import (
	"time"

	"spiderpit/database"
)

// Decision is the outcome of an eligibility check. Reason is set only
// when Allowed is false.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// CanChallenge decides whether challenger may open a new challenge
// against challenged. Self-challenges are denied, as is a second
// challenge while a live pending one already exists for the same
// ordered pair.
func CanChallenge(challengerID, challengedID string, existing []database.Challenge, now time.Time) Decision {
	if challengerID == "" || challengedID == "" {
		return deny("missing user id")
	}
	if challengerID == challengedID {
		return deny("cannot challenge yourself")
	}
	for i := range existing {
		ch := &existing[i]
		if ch.ChallengerID != challengerID || ch.ChallengedID != challengedID {
			continue
		}
		if ch.Status == database.ChallengePending && !ch.IsExpired(now) {
			return deny("pending challenge exists")
		}
	}
	return allow()
}

// SpiderEligible reports whether the spider may be used in a new fight.
func SpiderEligible(spider *database.Spider, now time.Time) bool {
	return spider.CanBeUsedInFight(now)
}

// NextAvailableTime returns the earliest instant at which the owner of
// these spiders regains a fight-eligible spider, or nil when no spider
// has ever fought (one is available right now).
func NextAvailableTime(spiders []database.Spider, now time.Time) *time.Time {
	var latest time.Time
	seen := false
	for i := range spiders {
		s := &spiders[i]
		if !s.LastUsedInFight.Valid {
			continue
		}
		seen = true
		if end := s.CooldownEndsAt(); end.After(latest) {
			latest = end
		}
	}
	if !seen {
		return nil
	}
	return &latest
}
