package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"

	"spiderpit/domain"
)

// Bounded retry for transient sqlite busy/locked errors. Retried here at
// the collaborator boundary only; domain logic never retries.
const (
	maxRetries   = 3
	retryBackoff = 50 * time.Millisecond
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// translate maps driver errors into the shared taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		case sqlite3.ErrConstraint:
			return fmt.Errorf("%w: %v", domain.ErrInvalidData, err)
		}
	}
	return err
}

// withRetry runs fn, retrying a bounded number of times when the
// translated error is retryable.
func withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryBackoff * time.Duration(attempt))
		}
		err = translate(fn())
		if err == nil || !domain.Retryable(err) {
			return err
		}
	}
	return err
}

// --- Users ---

func (r *Repository) CreateUser(discordID, username, avatarURL string, now time.Time) (*User, error) {
	user := User{
		ID:           uuid.NewString(),
		DiscordID:    discordID,
		Username:     username,
		DisplayName:  username,
		AvatarURL:    avatarURL,
		Status:       StatusNotReady,
		CreatedAt:    now,
		LastActiveAt: now,
		UpdatedAt:    now,
	}
	err := withRetry(func() error {
		_, err := r.db.NamedExec(`
			INSERT INTO users (id, discord_id, username, display_name, avatar_url, town, status, wins, losses, created_at, last_active_at, updated_at)
			VALUES (:id, :discord_id, :username, :display_name, :avatar_url, :town, :status, :wins, :losses, :created_at, :last_active_at, :updated_at)
		`, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) GetUser(userID string) (*User, error) {
	var user User
	err := translate(r.db.Get(&user, "SELECT * FROM users WHERE id = ?", userID))
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) GetUserByDiscordID(discordID string) (*User, error) {
	var user User
	err := translate(r.db.Get(&user, "SELECT * FROM users WHERE discord_id = ?", discordID))
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) GetUserByUsername(username string) (*User, error) {
	var user User
	err := translate(r.db.Get(&user, "SELECT * FROM users WHERE username = ? OR display_name = ?", username, username))
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserProfileUpdate is a typed partial update. Nil fields are untouched.
type UserProfileUpdate struct {
	DisplayName *string
	Town        *string
}

func (u UserProfileUpdate) Validate() error {
	if u.DisplayName == nil && u.Town == nil {
		return fmt.Errorf("%w: empty profile update", domain.ErrInvalidData)
	}
	if u.DisplayName != nil && strings.TrimSpace(*u.DisplayName) == "" {
		return fmt.Errorf("%w: display name cannot be blank", domain.ErrInvalidData)
	}
	return nil
}

func (r *Repository) UpdateUserProfile(userID string, update UserProfileUpdate, now time.Time) error {
	if err := update.Validate(); err != nil {
		return err
	}
	sets := []string{"updated_at = ?"}
	args := []interface{}{now}
	if update.DisplayName != nil {
		sets = append(sets, "display_name = ?")
		args = append(args, strings.TrimSpace(*update.DisplayName))
	}
	if update.Town != nil {
		sets = append(sets, "town = ?")
		args = append(args, strings.TrimSpace(*update.Town))
	}
	args = append(args, userID)
	return withRetry(func() error {
		res, err := r.db.Exec("UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *Repository) SetUserStatus(userID, status string, now time.Time) error {
	if status != StatusReady && status != StatusNotReady {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidData, status)
	}
	return withRetry(func() error {
		res, err := r.db.Exec("UPDATE users SET status = ?, updated_at = ? WHERE id = ?", status, now, userID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *Repository) TouchUserActivity(userID string, now time.Time) error {
	return withRetry(func() error {
		_, err := r.db.Exec("UPDATE users SET last_active_at = ? WHERE id = ?", now, userID)
		return err
	})
}

func (r *Repository) ListReadyUsers() ([]User, error) {
	var users []User
	err := translate(r.db.Select(&users,
		"SELECT * FROM users WHERE status = ? ORDER BY last_active_at DESC", StatusReady))
	return users, err
}

func (r *Repository) ListUsersByRecord() ([]User, error) {
	var users []User
	err := translate(r.db.Select(&users,
		"SELECT * FROM users ORDER BY wins DESC, losses ASC, created_at ASC"))
	return users, err
}

// --- Spiders ---

func (r *Repository) CreateSpider(spider Spider) (*Spider, error) {
	if spider.ID == "" {
		spider.ID = uuid.NewString()
	}
	if spider.ImageURL == "" {
		return nil, fmt.Errorf("%w: spider requires an uploaded image", domain.ErrInvalidData)
	}
	spider.IsActive = true
	err := withRetry(func() error {
		_, err := r.db.NamedExec(`
			INSERT INTO spiders (id, owner_id, name, species, deadliness_score, confidence, image_url, image_size_bytes, is_active, last_used_in_fight, created_at)
			VALUES (:id, :owner_id, :name, :species, :deadliness_score, :confidence, :image_url, :image_size_bytes, :is_active, :last_used_in_fight, :created_at)
		`, spider)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &spider, nil
}

func (r *Repository) GetSpider(spiderID string) (*Spider, error) {
	var spider Spider
	err := translate(r.db.Get(&spider, "SELECT * FROM spiders WHERE id = ?", spiderID))
	if err != nil {
		return nil, err
	}
	return &spider, nil
}

func (r *Repository) ListSpidersByOwner(ownerID string) ([]Spider, error) {
	var spiders []Spider
	err := translate(r.db.Select(&spiders,
		"SELECT * FROM spiders WHERE owner_id = ? ORDER BY created_at", ownerID))
	return spiders, err
}

// DeactivateSpider retires a spider. There is no automatic reactivation.
func (r *Repository) DeactivateSpider(spiderID string) error {
	return withRetry(func() error {
		res, err := r.db.Exec("UPDATE spiders SET is_active = FALSE WHERE id = ?", spiderID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// --- Challenges ---

// CreateChallenge inserts a pending challenge. The one-pending-per-pair
// index backstops the duplicate guard at write time: a stale pending
// challenge for the ordered pair (deadline passed, sweep not yet run)
// is expired first, a live one surfaces as ErrConflict.
func (r *Repository) CreateChallenge(ch Challenge) (*Challenge, error) {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	err := withRetry(func() error {
		if _, err := r.db.Exec(`
			UPDATE challenges
			SET status = ?
			WHERE challenger_id = ? AND challenged_id = ? AND status = ? AND expires_at <= ?`,
			ChallengeExpired, ch.ChallengerID, ch.ChallengedID, ChallengePending, ch.CreatedAt); err != nil {
			return err
		}
		_, err := r.db.NamedExec(`
			INSERT INTO challenges (id, challenger_id, challenger_spider_id, challenged_id, challenged_spider_id, status, message, created_at, expires_at, accepted_at, declined_at)
			VALUES (:id, :challenger_id, :challenger_spider_id, :challenged_id, :challenged_spider_id, :status, :message, :created_at, :expires_at, :accepted_at, :declined_at)
		`, ch)
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: a pending challenge between these players already exists", domain.ErrConflict)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *Repository) GetChallenge(challengeID string) (*Challenge, error) {
	var ch Challenge
	err := translate(r.db.Get(&ch, "SELECT * FROM challenges WHERE id = ?", challengeID))
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// ListPendingBetween returns live pending challenges for the ordered
// (challenger, challenged) pair. Used by the duplicate-challenge guard.
func (r *Repository) ListPendingBetween(challengerID, challengedID string, now time.Time) ([]Challenge, error) {
	var challenges []Challenge
	err := translate(r.db.Select(&challenges, `
		SELECT * FROM challenges
		WHERE challenger_id = ? AND challenged_id = ? AND status = ? AND expires_at > ?`,
		challengerID, challengedID, ChallengePending, now))
	return challenges, err
}

func (r *Repository) ListIncomingChallenges(userID string) ([]Challenge, error) {
	var challenges []Challenge
	err := translate(r.db.Select(&challenges,
		"SELECT * FROM challenges WHERE challenged_id = ? ORDER BY created_at DESC", userID))
	return challenges, err
}

func (r *Repository) ListOutgoingChallenges(userID string) ([]Challenge, error) {
	var challenges []Challenge
	err := translate(r.db.Select(&challenges,
		"SELECT * FROM challenges WHERE challenger_id = ? ORDER BY created_at DESC", userID))
	return challenges, err
}

// ListPendingExpired returns pending challenges whose deadline has passed,
// for the expiry sweep.
func (r *Repository) ListPendingExpired(now time.Time) ([]Challenge, error) {
	var challenges []Challenge
	err := translate(r.db.Select(&challenges,
		"SELECT * FROM challenges WHERE status = ? AND expires_at <= ?", ChallengePending, now))
	return challenges, err
}

// DeclineChallenge flips pending -> declined with a conditional write.
// The status and deadline are re-checked in SQL so a concurrent accept,
// decline, or sweep loses cleanly with ErrConflict instead of clobbering.
func (r *Repository) DeclineChallenge(challengeID string, now time.Time) error {
	return r.transitionChallenge(challengeID, func() (sql.Result, error) {
		return r.db.Exec(`
			UPDATE challenges
			SET status = ?, declined_at = ?
			WHERE id = ? AND status = ? AND expires_at > ?`,
			ChallengeDeclined, now, challengeID, ChallengePending, now)
	})
}

// ExpireChallenge flips pending -> expired once the deadline has passed.
// Idempotent: expiring an already-expired challenge is a no-op.
func (r *Repository) ExpireChallenge(challengeID string, now time.Time) error {
	err := withRetry(func() error {
		res, err := r.db.Exec(`
			UPDATE challenges
			SET status = ?
			WHERE id = ? AND status = ? AND expires_at <= ?`,
			ChallengeExpired, challengeID, ChallengePending, now)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		ch, err := r.GetChallenge(challengeID)
		if err != nil {
			return err
		}
		if ch.Status == ChallengeExpired {
			return nil
		}
		return fmt.Errorf("%w: cannot expire challenge in status %q before its deadline",
			domain.ErrInvalidTransition, ch.Status)
	})
	return err
}

func (r *Repository) transitionChallenge(challengeID string, exec func() (sql.Result, error)) error {
	return withRetry(func() error {
		res, err := exec()
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		// Lost the conditional write. Distinguish a missing row from a
		// race that another writer won.
		if _, err := r.GetChallenge(challengeID); err != nil {
			return err
		}
		return domain.ErrConflict
	})
}

// --- Fights ---

// RecordFight accepts the originating challenge and persists the fight
// and its side effects in one transaction: the conditional pending ->
// accepted flip, the immutable fight row, both spiders' cooldown stamps,
// and the winner/loser counters. All or nothing; a concurrent writer who
// got to the challenge first, or committed either spider to another
// fight since the caller's read, surfaces as ErrConflict.
func (r *Repository) RecordFight(fight Fight) (*Fight, error) {
	if fight.ID == "" {
		fight.ID = uuid.NewString()
	}
	err := withRetry(func() error {
		tx, err := r.db.Beginx()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		res, err := tx.Exec(`
			UPDATE challenges
			SET status = ?, accepted_at = ?, challenged_spider_id = ?
			WHERE id = ? AND status = ? AND expires_at > ?`,
			ChallengeAccepted, fight.CompletedAt, fight.ChallengedSpiderID,
			fight.ChallengeID, ChallengePending, fight.CompletedAt)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var ch Challenge
			if err := tx.Get(&ch, "SELECT * FROM challenges WHERE id = ?", fight.ChallengeID); err != nil {
				return err
			}
			return domain.ErrConflict
		}

		if _, err = tx.NamedExec(`
			INSERT INTO fights (id, challenge_id, challenger_id, challenged_id, challenger_spider_id, challenged_spider_id,
				challenger_score, challenged_score, challenger_modifier, challenged_modifier,
				win_probability, winner_id, loser_id, is_draw,
				score_difference, was_close_fight, completed_at)
			VALUES (:id, :challenge_id, :challenger_id, :challenged_id, :challenger_spider_id, :challenged_spider_id,
				:challenger_score, :challenged_score, :challenger_modifier, :challenged_modifier,
				:win_probability, :winner_id, :loser_id, :is_draw,
				:score_difference, :was_close_fight, :completed_at)
		`, fight); err != nil {
			return err
		}

		// Cooldown stamps are conditional writes too: the eligibility
		// read happened outside this transaction, so re-check it here.
		for _, spiderID := range []string{fight.ChallengerSpiderID, fight.ChallengedSpiderID} {
			res, err := tx.Exec(`
				UPDATE spiders
				SET last_used_in_fight = ?
				WHERE id = ? AND is_active
				  AND (last_used_in_fight IS NULL OR last_used_in_fight <= ?)`,
				fight.CompletedAt, spiderID, fight.CompletedAt.Add(-CooldownWindow))
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%w: spider %s is inactive or on cooldown", domain.ErrConflict, spiderID)
			}
		}

		if !fight.IsDraw {
			if _, err = tx.Exec(
				"UPDATE users SET wins = wins + 1, updated_at = ? WHERE id = ?",
				fight.CompletedAt, fight.WinnerID); err != nil {
				return err
			}
			if _, err = tx.Exec(
				"UPDATE users SET losses = losses + 1, updated_at = ? WHERE id = ?",
				fight.CompletedAt, fight.LoserID); err != nil {
				return err
			}
		}

		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return &fight, nil
}

func (r *Repository) GetFight(fightID string) (*Fight, error) {
	var fight Fight
	err := translate(r.db.Get(&fight, "SELECT * FROM fights WHERE id = ?", fightID))
	if err != nil {
		return nil, err
	}
	return &fight, nil
}

func (r *Repository) GetFightByChallenge(challengeID string) (*Fight, error) {
	var fight Fight
	err := translate(r.db.Get(&fight, "SELECT * FROM fights WHERE challenge_id = ?", challengeID))
	if err != nil {
		return nil, err
	}
	return &fight, nil
}

func (r *Repository) ListFightsByUser(userID string) ([]Fight, error) {
	var fights []Fight
	err := translate(r.db.Select(&fights, `
		SELECT * FROM fights
		WHERE challenger_id = ? OR challenged_id = ?
		ORDER BY completed_at DESC`, userID, userID))
	return fights, err
}

func (r *Repository) ListFightsBySpider(spiderID string) ([]Fight, error) {
	var fights []Fight
	err := translate(r.db.Select(&fights, `
		SELECT * FROM fights
		WHERE challenger_spider_id = ? OR challenged_spider_id = ?
		ORDER BY completed_at DESC`, spiderID, spiderID))
	return fights, err
}

// ListFightsBetween returns fights completed in [from, to), newest first.
func (r *Repository) ListFightsBetween(from, to time.Time) ([]Fight, error) {
	var fights []Fight
	err := translate(r.db.Select(&fights, `
		SELECT * FROM fights
		WHERE completed_at >= ? AND completed_at < ?
		ORDER BY completed_at DESC`, from, to))
	return fights, err
}

func (r *Repository) ListAllFights() ([]Fight, error) {
	var fights []Fight
	err := translate(r.db.Select(&fights, "SELECT * FROM fights ORDER BY completed_at DESC"))
	return fights, err
}

// --- Sessions ---

func (r *Repository) CreateSession(token, userID string, expiresAt time.Time) error {
	return withRetry(func() error {
		_, err := r.db.Exec(
			"INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
			token, userID, expiresAt, time.Now().UTC())
		return err
	})
}

func (r *Repository) GetUserBySessionToken(token string, now time.Time) (*User, error) {
	var user User
	err := translate(r.db.Get(&user, `
		SELECT u.* FROM users u
		JOIN sessions s ON u.id = s.user_id
		WHERE s.token = ? AND s.expires_at > ?`, token, now))
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) DeleteSession(token string) error {
	return withRetry(func() error {
		_, err := r.db.Exec("DELETE FROM sessions WHERE token = ?", token)
		return err
	})
}

func (r *Repository) CleanExpiredSessions(now time.Time) error {
	return withRetry(func() error {
		_, err := r.db.Exec("DELETE FROM sessions WHERE expires_at <= ?", now)
		return err
	})
}
