package fight

import "math"

// DefaultOddsSteepness is the logistic curve's scale in score points: a
// 25-point deadliness gap gives the stronger spider roughly 73% odds.
const DefaultOddsSteepness = 25.0

// OddsFunc maps the two deadliness scores to the probability that the
// challenger's spider wins. The curve is a policy knob, not a rule: the
// base path still decides the winner by raw score, so the probability is
// informational (surprise classification, display).
type OddsFunc func(challengerScore, challengedScore float64) float64

// LogisticOdds returns the standard win-probability curve: a logistic
// on the score difference. Monotonic in the difference and symmetric,
// p(a,b) + p(b,a) = 1, with p = 0.5 at equal scores.
func LogisticOdds(steepness float64) OddsFunc {
	if steepness <= 0 {
		steepness = DefaultOddsSteepness
	}
	return func(challengerScore, challengedScore float64) float64 {
		return 1.0 / (1.0 + math.Exp(-(challengerScore-challengedScore)/steepness))
	}
}
