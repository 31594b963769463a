package scoring

import "github.com/gymrank/internal/domain"

// EloBaseline is the score of a user with no recorded lifts.
const EloBaseline = 1000

// eloWeightFactor scales cumulative lifted volume into ELO points.
const eloWeightFactor = 1.5

// ELO computes the simplified ELO score from a user's full lift history:
// baseline plus 1.5 points per kilogram ever recorded, across all lift
// types. Despite the name this is a cumulative-volume score, not a pairwise
// rating; it only decreases when records are deleted or edited down.
//
// The result depends only on the multiset of weights, so callers may pass
// history in any order. There is no incremental form: every recompute is a
// full rescan, which is what makes concurrent-update races self-healing.
//
// The result is rounded to two decimals, the precision the users table
// stores, so a recompute of an unchanged history equals the stored score.
func ELO(history []domain.LiftRecord) float64 {
	var total float64
	for _, rec := range history {
		total += rec.Weight
	}
	return round2(EloBaseline + total*eloWeightFactor)
}
