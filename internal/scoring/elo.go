package scoring

import "math"

// Rating bounds. Every update clamps into this range and rounds to the
// nearest integer so ratings never drift.
const (
	MinRating = 600
	MaxRating = 2400

	// DefaultK is the update step used when callers have no better value.
	DefaultK = 32
)

// Expected returns the expected result for rating a against rating b,
// in (0, 1).
func Expected(a, b int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(b-a)/400.0))
}

// Update returns the new rating for current after a match against opponent.
// result is 1 for a win and 0 for a loss.
func Update(current, opponent, result, k int) int {
	next := float64(current) + float64(k)*(float64(result)-Expected(current, opponent))
	rounded := int(math.Round(next))
	if rounded < MinRating {
		return MinRating
	}
	if rounded > MaxRating {
		return MaxRating
	}
	return rounded
}
