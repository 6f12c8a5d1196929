// Package fight resolves accepted challenges into immutable fight
// records and applies their side effects.
package fight

import (
	"fmt"
	"log"
	"math"
	"time"

	"spiderpit/challenge"
	"spiderpit/database"
	"spiderpit/domain"
	"spiderpit/utils"
)

// CloseFightThreshold is the score margin under which a fight counts as
// close. Strictly under: a margin of exactly 10.0 is not close.
const CloseFightThreshold = 10.0

// Event is a domain change notification. Delivery is at-least-once and
// unordered across distinct entities; consumers must tolerate both.
type Event struct {
	Type      string              `json:"type"`
	Challenge *database.Challenge `json:"challenge,omitempty"`
	Fight     *database.Fight     `json:"fight,omitempty"`
	At        time.Time           `json:"at"`
}

const (
	EventChallengeCreated  = "challenge.created"
	EventChallengeDeclined = "challenge.declined"
	EventChallengeExpired  = "challenge.expired"
	EventFightCompleted    = "fight.completed"
)

// Broadcaster fans events out to subscribers (the websocket hub in
// production). The engine works fine without one.
type Broadcaster interface {
	Publish(event Event)
}

// Participant is one side of a fight at resolution time.
type Participant struct {
	UserID   string
	SpiderID string
	Score    float64
	Modifier float64
}

// Resolve derives the fight outcome from the two participants' scores.
// Deterministic: the higher score wins, a draw happens only on exact
// equality, and the win probability is informational only.
func Resolve(challengeID string, challenger, challenged Participant, odds OddsFunc, now time.Time) database.Fight {
	if odds == nil {
		odds = LogisticOdds(DefaultOddsSteepness)
	}
	fight := database.Fight{
		ChallengeID:        challengeID,
		ChallengerID:       challenger.UserID,
		ChallengedID:       challenged.UserID,
		ChallengerSpiderID: challenger.SpiderID,
		ChallengedSpiderID: challenged.SpiderID,
		ChallengerScore:    challenger.Score,
		ChallengedScore:    challenged.Score,
		ChallengerModifier: challenger.Modifier,
		ChallengedModifier: challenged.Modifier,
		WinProbability:     odds(challenger.Score, challenged.Score),
		CompletedAt:        now,
	}

	switch {
	case challenger.Score == challenged.Score:
		fight.IsDraw = true
	case challenger.Score > challenged.Score:
		fight.WinnerID = challenger.UserID
		fight.LoserID = challenged.UserID
	default:
		fight.WinnerID = challenged.UserID
		fight.LoserID = challenger.UserID
	}

	fight.ScoreDifference = math.Abs(challenger.Score - challenged.Score)
	fight.WasCloseFight = fight.ScoreDifference < CloseFightThreshold
	return fight
}

// Engine runs the accept-and-fight operation against the repository.
type Engine struct {
	repo        *database.Repository
	odds        OddsFunc
	broadcaster Broadcaster
	// When true, each side gets a small reproducible modifier seeded
	// from the challenge id, so replays of the same challenge produce
	// the same outcome.
	seededModifiers bool
}

func NewEngine(repo *database.Repository) *Engine {
	return &Engine{
		repo: repo,
		odds: LogisticOdds(DefaultOddsSteepness),
	}
}

// SetBroadcaster attaches a live event broadcaster.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.broadcaster = b
}

// SetOdds swaps the win-probability curve.
func (e *Engine) SetOdds(odds OddsFunc) {
	if odds != nil {
		e.odds = odds
	}
}

// EnableSeededModifiers turns on the reproducible per-fight score roll.
func (e *Engine) EnableSeededModifiers() {
	e.seededModifiers = true
}

func (e *Engine) publish(event Event) {
	if e.broadcaster != nil {
		e.broadcaster.Publish(event)
	}
}

// PublishChallengeCreated announces a freshly created challenge.
func (e *Engine) PublishChallengeCreated(ch *database.Challenge, now time.Time) {
	e.publish(Event{Type: EventChallengeCreated, Challenge: ch, At: now})
}

// scores returns each side's fight score: the spider's deadliness plus
// the optional seeded modifier.
func (e *Engine) scores(ch *database.Challenge, challengerSpider, challengedSpider *database.Spider) (Participant, Participant) {
	challenger := Participant{
		UserID:   ch.ChallengerID,
		SpiderID: challengerSpider.ID,
		Score:    challengerSpider.DeadlinessScore,
	}
	challenged := Participant{
		UserID:   ch.ChallengedID,
		SpiderID: challengedSpider.ID,
		Score:    challengedSpider.DeadlinessScore,
	}
	if e.seededModifiers {
		rng := utils.NewSeededRNG(utils.FightSeed(ch.ID))
		challenger.Modifier = rng.Float64()*10 - 5
		challenged.Modifier = rng.Float64()*10 - 5
		challenger.Score += challenger.Modifier
		challenged.Score += challenged.Modifier
	}
	return challenger, challenged
}

// AcceptAndResolve is the whole accept operation: validate the caller
// and both spiders, guard the transition, resolve the outcome, and
// persist fight plus side effects atomically. The repository re-checks
// the pending status and both cooldowns at write time, so racing
// accepts of the same challenge, or of two challenges sharing a
// spider, leave exactly one fight.
func (e *Engine) AcceptAndResolve(challengeID, callerID, spiderID string, now time.Time) (*database.Fight, error) {
	ch, err := e.repo.GetChallenge(challengeID)
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	if ch.ChallengedID != callerID {
		return nil, fmt.Errorf("%w: only the challenged player may accept", domain.ErrPermissionDenied)
	}

	challengedSpider, err := e.repo.GetSpider(spiderID)
	if err != nil {
		return nil, fmt.Errorf("load challenged spider: %w", err)
	}
	if challengedSpider.OwnerID != callerID {
		return nil, fmt.Errorf("%w: spider %s is not yours", domain.ErrPermissionDenied, spiderID)
	}
	if !challenge.SpiderEligible(challengedSpider, now) {
		return nil, fmt.Errorf("%w: spider %s is inactive or on cooldown", domain.ErrInvalidData, spiderID)
	}

	challengerSpider, err := e.repo.GetSpider(ch.ChallengerSpiderID)
	if err != nil {
		return nil, fmt.Errorf("load challenger spider: %w", err)
	}
	if !challenge.SpiderEligible(challengerSpider, now) {
		return nil, fmt.Errorf("%w: challenger's spider is inactive or on cooldown", domain.ErrInvalidData)
	}

	// Guard in memory first for a precise error; the conditional write
	// below re-validates under concurrency.
	guarded := *ch
	if err := challenge.Accept(&guarded, spiderID, now); err != nil {
		return nil, err
	}

	challenger, challenged := e.scores(ch, challengerSpider, challengedSpider)
	fight := Resolve(ch.ID, challenger, challenged, e.odds, now)

	recorded, err := e.repo.RecordFight(fight)
	if err != nil {
		return nil, fmt.Errorf("record fight: %w", err)
	}

	log.Printf("Fight %s resolved: %s vs %s, winner=%q draw=%v margin=%.1f",
		recorded.ID, challengerSpider.Name, challengedSpider.Name,
		recorded.WinnerID, recorded.IsDraw, recorded.ScoreDifference)

	e.publish(Event{Type: EventFightCompleted, Fight: recorded, At: now})
	return recorded, nil
}

// DeclineChallenge turns a pending challenge down on behalf of the
// challenged player.
func (e *Engine) DeclineChallenge(challengeID, callerID string, now time.Time) (*database.Challenge, error) {
	ch, err := e.repo.GetChallenge(challengeID)
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	if ch.ChallengedID != callerID {
		return nil, fmt.Errorf("%w: only the challenged player may decline", domain.ErrPermissionDenied)
	}
	guarded := *ch
	if err := challenge.Decline(&guarded, now); err != nil {
		return nil, err
	}
	if err := e.repo.DeclineChallenge(challengeID, now); err != nil {
		return nil, err
	}
	e.publish(Event{Type: EventChallengeDeclined, Challenge: &guarded, At: now})
	return &guarded, nil
}
