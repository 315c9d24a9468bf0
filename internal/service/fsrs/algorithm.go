// Package fsrs implements the FSRS-5 memory model and the review state
// machine built on top of it. All functions are pure: no clock, storage or
// logging.
package fsrs

import (
	"math"

	"github.com/duonganh203/benkyo/internal/models"
)

const (
	decay  = -0.5
	factor = 19.0 / 81.0

	minStability  = 0.01
	minDifficulty = 1.0
	maxDifficulty = 10.0
)

type algo struct {
	w models.Weights
}

// Retrievability is the probability of recall after elapsedDays for a
// memory with the given stability.
//
//	R(t, S) = (1 + FACTOR * t / S) ^ DECAY
func Retrievability(elapsedDays, stability float64) float64 {
	if stability <= 0 {
		return 0
	}
	return math.Pow(1+factor*math.Max(elapsedDays, 0)/stability, decay)
}

// S0(G) = w[G-1]
func (a algo) initStability(r models.Rating) float64 {
	return clampStability(a.w[r-1])
}

// D0(G) = w4 - e^(w5 * (G - 1)) + 1
func (a algo) initDifficulty(r models.Rating) float64 {
	return clampDifficulty(a.w[4] - math.Exp(a.w[5]*float64(r-1)) + 1)
}

// nextDifficulty applies the rating delta with linear damping, then reverts
// toward D0(Easy):
//
//	D' = D + (-w6 * (G - 3)) * (10 - D) / 9
//	D'' = w7 * D0(4) + (1 - w7) * D'
func (a algo) nextDifficulty(d float64, r models.Rating) float64 {
	delta := -a.w[6] * (float64(r) - 3)
	next := d + delta*(10-d)/9
	return clampDifficulty(a.w[7]*a.initDifficulty(models.RatingEasy) + (1-a.w[7])*next)
}

// recallStability is the stability after a successful cross-day review.
//
//	S' = S * (1 + e^w8 * (11 - D) * S^-w9 * (e^(w10 * (1 - R)) - 1) * hardPenalty * easyBonus)
func (a algo) recallStability(d, s, r float64, rating models.Rating) float64 {
	hardPenalty := 1.0
	if rating == models.RatingHard {
		hardPenalty = a.w[15]
	}
	easyBonus := 1.0
	if rating == models.RatingEasy {
		easyBonus = a.w[16]
	}

	return clampStability(s * (1 + math.Exp(a.w[8])*
		(11-d)*
		math.Pow(s, -a.w[9])*
		(math.Exp((1-r)*a.w[10])-1)*
		hardPenalty*easyBonus))
}

// forgetStability is the stability after a lapse, capped at the prior
// stability scaled down by e^(w17 * w18).
//
//	S' = min(w11 * D^-w12 * ((S + 1)^w13 - 1) * e^(w14 * (1 - R)), S / e^(w17 * w18))
func (a algo) forgetStability(d, s, r float64) float64 {
	long := a.w[11] *
		math.Pow(d, -a.w[12]) *
		(math.Pow(s+1, a.w[13]) - 1) *
		math.Exp((1-r)*a.w[14])
	short := s / math.Exp(a.w[17]*a.w[18])
	return clampStability(math.Min(long, short))
}

// shortTermStability is used for (re)learning steps and same-day reviews.
//
//	S' = S * e^(w17 * (G - 3 + w18))
func (a algo) shortTermStability(s float64, r models.Rating) float64 {
	return clampStability(s * math.Exp(a.w[17]*(float64(r)-3+a.w[18])))
}

// IntervalDays converts stability into whole days at the requested
// retention, clamped to [1, maximumInterval].
//
//	I = S / FACTOR * (r^(1/DECAY) - 1)
func IntervalDays(stability, requestRetention float64, maximumInterval int) int {
	ivl := stability / factor * (math.Pow(requestRetention, 1/decay) - 1)
	return clampInterval(int(math.Round(ivl)), maximumInterval)
}

func clampStability(s float64) float64 {
	return math.Max(s, minStability)
}

func clampDifficulty(d float64) float64 {
	return math.Min(math.Max(d, minDifficulty), maxDifficulty)
}

func clampInterval(days, maximumInterval int) int {
	if days > maximumInterval {
		days = maximumInterval
	}
	if days < 1 {
		days = 1
	}
	return days
}
