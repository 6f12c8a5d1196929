// Package scheduler runs the background maintenance passes: expiring
// overdue challenges and clearing stale sessions.
package scheduler

import (
	"fmt"
	"log"
	"time"

	"spiderpit/database"
	"spiderpit/fight"
)

type Sweeper struct {
	repo        *database.Repository
	broadcaster fight.Broadcaster
}

func NewSweeper(repo *database.Repository) *Sweeper {
	return &Sweeper{repo: repo}
}

// SetBroadcaster attaches a live event broadcaster for expiry events.
func (s *Sweeper) SetBroadcaster(b fight.Broadcaster) {
	s.broadcaster = b
}

// SweepExpired expires every pending challenge whose deadline has
// passed. Idempotent: a challenge already expired by a concurrent sweep
// or a racing transition is skipped, not an error. Returns how many
// challenges this pass actually expired.
func (s *Sweeper) SweepExpired(now time.Time) (int, error) {
	overdue, err := s.repo.ListPendingExpired(now)
	if err != nil {
		return 0, fmt.Errorf("list overdue challenges: %w", err)
	}

	expired := 0
	for i := range overdue {
		ch := overdue[i]
		if err := s.repo.ExpireChallenge(ch.ID, now); err != nil {
			log.Printf("Sweep: failed to expire challenge %s: %v", ch.ID, err)
			continue
		}
		expired++
		ch.Status = database.ChallengeExpired
		if s.broadcaster != nil {
			s.broadcaster.Publish(fight.Event{
				Type:      fight.EventChallengeExpired,
				Challenge: &ch,
				At:        now,
			})
		}
	}

	if expired > 0 {
		log.Printf("Sweep: expired %d overdue challenges", expired)
	}
	return expired, nil
}

// CleanSessions deletes expired auth sessions.
func (s *Sweeper) CleanSessions(now time.Time) error {
	return s.repo.CleanExpiredSessions(now)
}
