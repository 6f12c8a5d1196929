package challenge

import (
	"database/sql"
	"fmt"
	"time"

	"spiderpit/database"
	"spiderpit/domain"
)

// New builds a pending challenge. The deadline is exactly the creation
// instant plus the challenge TTL.
func New(challengerID, challengerSpiderID, challengedID, message string, now time.Time) (database.Challenge, error) {
	if challengerID == "" || challengerSpiderID == "" || challengedID == "" {
		return database.Challenge{}, fmt.Errorf("%w: challenge requires challenger, spider and challenged ids", domain.ErrInvalidData)
	}
	if challengerID == challengedID {
		return database.Challenge{}, fmt.Errorf("%w: cannot challenge yourself", domain.ErrInvalidData)
	}
	ch := database.Challenge{
		ChallengerID:       challengerID,
		ChallengerSpiderID: challengerSpiderID,
		ChallengedID:       challengedID,
		Status:             database.ChallengePending,
		CreatedAt:          now,
		ExpiresAt:          now.Add(database.ChallengeTTL),
	}
	if message != "" {
		ch.Message = sql.NullString{String: message, Valid: true}
	}
	return ch, nil
}

// Accept transitions pending -> accepted. Valid only while the challenge
// is pending and before its deadline.
func Accept(ch *database.Challenge, challengedSpiderID string, now time.Time) error {
	if challengedSpiderID == "" {
		return fmt.Errorf("%w: accepting requires a spider", domain.ErrInvalidData)
	}
	if !ch.CanBeAccepted(now) {
		return transitionError(ch, now, "accept")
	}
	ch.Status = database.ChallengeAccepted
	ch.ChallengedSpiderID = sql.NullString{String: challengedSpiderID, Valid: true}
	ch.AcceptedAt = sql.NullTime{Time: now, Valid: true}
	return nil
}

// Decline transitions pending -> declined under the same guards as Accept.
func Decline(ch *database.Challenge, now time.Time) error {
	if !ch.CanBeDeclined(now) {
		return transitionError(ch, now, "decline")
	}
	ch.Status = database.ChallengeDeclined
	ch.DeclinedAt = sql.NullTime{Time: now, Valid: true}
	return nil
}

// Expire transitions pending -> expired once the deadline has passed.
// Expiring an already-expired challenge is a no-op so the sweep can
// rerun safely.
func Expire(ch *database.Challenge, now time.Time) error {
	if ch.Status == database.ChallengeExpired {
		return nil
	}
	if ch.Status != database.ChallengePending {
		return fmt.Errorf("%w: cannot expire challenge in status %q", domain.ErrInvalidTransition, ch.Status)
	}
	if !ch.IsExpired(now) {
		return fmt.Errorf("%w: challenge does not expire until %s", domain.ErrInvalidTransition, ch.ExpiresAt.Format(time.RFC3339))
	}
	ch.Status = database.ChallengeExpired
	return nil
}

func transitionError(ch *database.Challenge, now time.Time, verb string) error {
	if ch.Status == database.ChallengePending && ch.IsExpired(now) {
		return fmt.Errorf("%w: cannot %s an expired challenge", domain.ErrInvalidTransition, verb)
	}
	return fmt.Errorf("%w: cannot %s challenge in status %q", domain.ErrInvalidTransition, verb, ch.Status)
}
