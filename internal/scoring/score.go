// Package scoring holds the stateless scoring primitives shared by the
// quiz-room engine and the single-player flows.
package scoring

import "math"

const (
	// DefaultBasePoints is the base value of a correct answer.
	DefaultBasePoints = 100

	// maxTimeBonus caps the quick-answer bonus.
	maxTimeBonus = 50

	// timeBonusDivisorMs converts milliseconds remaining into bonus points.
	timeBonusDivisorMs = 400.0

	// streakStep is the multiplier gain per consecutive correct answer.
	streakStep = 0.10

	// maxStreakMultiplier caps the streak multiplier.
	maxStreakMultiplier = 1.5
)

// Score computes the point value of a single answer.
//
// msRemaining is the time left on the full question clock at submission.
// Callers signal a wrong or timed-out answer by passing a non-positive value;
// a fast wrong answer must never score. streak counts consecutive correct
// answers including this one.
func Score(base, msRemaining, streak int) int {
	if msRemaining <= 0 {
		return 0
	}

	bonus := math.Round(float64(msRemaining) / timeBonusDivisorMs)
	if bonus > maxTimeBonus {
		bonus = maxTimeBonus
	}

	mult := 1.0
	if streak > 1 {
		mult = 1.0 + streakStep*float64(streak-1)
		if mult > maxStreakMultiplier {
			mult = maxStreakMultiplier
		}
	}

	return int(math.Round((float64(base) + bonus) * mult))
}
