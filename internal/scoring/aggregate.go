package scoring

import "github.com/gymrank/internal/domain"

// Aggregate reduces a lift history to the best weight per lift type and the
// three-lift total. Lift types with no records contribute 0, so an empty
// history yields the zero value; the ranking engine excludes zero totals
// from leaderboard output.
func Aggregate(history []domain.LiftRecord) domain.AggregatedLifts {
	var agg domain.AggregatedLifts
	for _, rec := range history {
		switch rec.LiftType {
		case domain.LiftBench:
			if rec.Weight > agg.Bench {
				agg.Bench = rec.Weight
			}
		case domain.LiftSquat:
			if rec.Weight > agg.Squat {
				agg.Squat = rec.Weight
			}
		case domain.LiftDeadlift:
			if rec.Weight > agg.Deadlift {
				agg.Deadlift = rec.Weight
			}
		}
	}
	agg.Total = agg.Bench + agg.Squat + agg.Deadlift
	return agg
}
