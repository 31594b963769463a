// Package scoring holds the pure score math: the DOTS bodyweight
// normalization, the simplified cumulative ELO, and best-lift aggregation.
// Nothing here performs I/O or returns errors; inputs that make a score
// meaningless degrade to zero instead.
package scoring

import (
	"math"

	"github.com/gymrank/internal/domain"
)

// dotsCoefficients are the published quartic denominator coefficients.
type dotsCoefficients struct {
	a, b, c, d, e float64
}

// Published DOTS tables. These must not be adjusted: scores are only
// comparable across services if everyone evaluates the same polynomial.
var (
	dotsMen = dotsCoefficients{
		a: 47.46178854,
		b: 8.472061379,
		c: 0.07369410346,
		d: -0.001395833811,
		e: 0.000007076659730,
	}
	dotsWomen = dotsCoefficients{
		a: -125.4255398,
		b: 13.71219419,
		c: -0.03307250631,
		d: 0.0003872554572,
		e: -0.00000113708316,
	}
)

// DOTS computes the bodyweight- and gender-normalized score for a total
// lifted weight, rounded to two decimals.
//
// A missing or non-positive bodyweight yields 0: the score is simply not
// computable for that user, which is not an error. Any gender other than
// male evaluates with the female table; registration validation keeps
// values outside {male, female} from ever reaching this function.
func DOTS(totalLifted, bodyweight float64, gender domain.Gender) float64 {
	if bodyweight <= 0 {
		return 0
	}

	coeff := dotsWomen
	if gender == domain.GenderMale {
		coeff = dotsMen
	}

	w := bodyweight
	denom := coeff.a + coeff.b*w + coeff.c*w*w + coeff.d*w*w*w + coeff.e*w*w*w*w

	return round2(500 * totalLifted / denom)
}

// round2 rounds to two decimal places
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
