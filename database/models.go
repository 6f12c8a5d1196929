package database

import (
	"database/sql"
	"time"
)

// Cooldown and challenge time-boxing windows. Both are 24 hours by game
// rule: a spider rests a full day after a fight, and a challenge the
// other player never answers dies after a day.
const (
	CooldownWindow = 24 * time.Hour
	ChallengeTTL   = 24 * time.Hour
)

// User readiness flags.
const (
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// Challenge states. Pending is the only non-terminal state.
const (
	ChallengePending  = "pending"
	ChallengeAccepted = "accepted"
	ChallengeDeclined = "declined"
	ChallengeExpired  = "expired"
)

type User struct {
	ID           string    `db:"id"`
	DiscordID    string    `db:"discord_id"`
	Username     string    `db:"username"`
	DisplayName  string    `db:"display_name"`
	AvatarURL    string    `db:"avatar_url"`
	Town         string    `db:"town"`
	Status       string    `db:"status"`
	Wins         int       `db:"wins"`
	Losses       int       `db:"losses"`
	CreatedAt    time.Time `db:"created_at"`
	LastActiveAt time.Time `db:"last_active_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (u *User) TotalFights() int {
	return u.Wins + u.Losses
}

// WinPercentage is wins/(wins+losses), or 0 for a user who has never fought.
func (u *User) WinPercentage() float64 {
	total := u.TotalFights()
	if total == 0 {
		return 0
	}
	return float64(u.Wins) / float64(total)
}

type Spider struct {
	ID              string       `db:"id"`
	OwnerID         string       `db:"owner_id"`
	Name            string       `db:"name"`
	Species         string       `db:"species"`
	DeadlinessScore float64      `db:"deadliness_score"`
	Confidence      float64      `db:"confidence"`
	ImageURL        string       `db:"image_url"`
	ImageSizeBytes  int64        `db:"image_size_bytes"`
	IsActive        bool         `db:"is_active"`
	LastUsedInFight sql.NullTime `db:"last_used_in_fight"`
	CreatedAt       time.Time    `db:"created_at"`
}

// CanBeUsedInFight reports whether the spider is active and off cooldown:
// never fought, or last fought at least CooldownWindow before now.
func (s *Spider) CanBeUsedInFight(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	if !s.LastUsedInFight.Valid {
		return true
	}
	return now.Sub(s.LastUsedInFight.Time) >= CooldownWindow
}

// CooldownEndsAt returns when the spider comes off cooldown, or the zero
// time if it has never fought.
func (s *Spider) CooldownEndsAt() time.Time {
	if !s.LastUsedInFight.Valid {
		return time.Time{}
	}
	return s.LastUsedInFight.Time.Add(CooldownWindow)
}

type Challenge struct {
	ID                 string         `db:"id"`
	ChallengerID       string         `db:"challenger_id"`
	ChallengerSpiderID string         `db:"challenger_spider_id"`
	ChallengedID       string         `db:"challenged_id"`
	ChallengedSpiderID sql.NullString `db:"challenged_spider_id"`
	Status             string         `db:"status"`
	Message            sql.NullString `db:"message"`
	CreatedAt          time.Time      `db:"created_at"`
	ExpiresAt          time.Time      `db:"expires_at"`
	AcceptedAt         sql.NullTime   `db:"accepted_at"`
	DeclinedAt         sql.NullTime   `db:"declined_at"`
}

// IsExpired is the wall-clock predicate only; the stored status flips to
// expired when the sweep or a guarded transition observes it.
func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func (c *Challenge) CanBeAccepted(now time.Time) bool {
	return c.Status == ChallengePending && !c.IsExpired(now)
}

func (c *Challenge) CanBeDeclined(now time.Time) bool {
	return c.CanBeAccepted(now)
}

// Fight is immutable once written. WinnerID and LoserID are empty on a
// draw, and a draw happens only on exactly equal scores.
type Fight struct {
	ID                 string    `db:"id"`
	ChallengeID        string    `db:"challenge_id"`
	ChallengerID       string    `db:"challenger_id"`
	ChallengedID       string    `db:"challenged_id"`
	ChallengerSpiderID string    `db:"challenger_spider_id"`
	ChallengedSpiderID string    `db:"challenged_spider_id"`
	ChallengerScore    float64   `db:"challenger_score"`
	ChallengedScore    float64   `db:"challenged_score"`
	ChallengerModifier float64   `db:"challenger_modifier"`
	ChallengedModifier float64   `db:"challenged_modifier"`
	WinProbability     float64   `db:"win_probability"`
	WinnerID           string    `db:"winner_id"`
	LoserID            string    `db:"loser_id"`
	IsDraw             bool      `db:"is_draw"`
	ScoreDifference    float64   `db:"score_difference"`
	WasCloseFight      bool      `db:"was_close_fight"`
	CompletedAt        time.Time `db:"completed_at"`
}

// WinnerScore returns the higher of the two scores (either on a draw).
func (f *Fight) WinnerScore() float64 {
	if f.ChallengedScore > f.ChallengerScore {
		return f.ChallengedScore
	}
	return f.ChallengerScore
}

func (f *Fight) LoserScore() float64 {
	if f.ChallengedScore > f.ChallengerScore {
		return f.ChallengerScore
	}
	return f.ChallengedScore
}

type Session struct {
	Token     string    `db:"token"`
	UserID    string    `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}
