package fsrs

import (
	"fmt"
	"time"

	"github.com/duonganh203/benkyo/internal/models"
	"github.com/duonganh203/benkyo/pkg/utils"
)

// Outcome is the memory state produced by one review.
type Outcome struct {
	State         models.State
	Due           time.Time
	Stability     float64
	Difficulty    float64
	ElapsedDays   float64
	ScheduledDays int
	Reps          int
	Lapses        int
	Step          int
}

type Scheduler struct {
	params models.FSRSParams
	algo   algo
}

func NewScheduler(params models.FSRSParams) (*Scheduler, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("validate fsrs params: %w", err)
	}

	return &Scheduler{params: params, algo: algo{w: params.W}}, nil
}

// Review computes the next memory state of a card. key identifies the
// (user, card) pair and only seeds the interval fuzz.
func (s *Scheduler) Review(prior models.MemoryState, rating models.Rating, now time.Time, key string) (Outcome, error) {
	if !rating.IsValid() {
		return Outcome{}, fmt.Errorf("%w: rating %d", models.ErrInvalidInput, int(rating))
	}

	out := Outcome{
		Reps:   prior.Reps + 1,
		Lapses: prior.Lapses,
	}

	if prior.State != models.StateNew && prior.LastReview != nil {
		out.ElapsedDays = utils.ElapsedDays(*prior.LastReview, now)
	}

	var interval int
	switch prior.State {
	case models.StateLearning, models.StateRelearning:
		interval = s.reviewLearning(&out, prior, rating)
	case models.StateReview:
		interval = s.reviewReview(&out, prior, rating)
	default:
		interval = s.reviewNew(&out, rating)
	}

	s.schedule(&out, prior.State, rating, interval, now, key)

	return out, nil
}

func (s *Scheduler) reviewNew(out *Outcome, rating models.Rating) int {
	out.Stability = s.algo.initStability(rating)
	out.Difficulty = s.algo.initDifficulty(rating)

	switch rating {
	case models.RatingAgain, models.RatingHard:
		out.State = models.StateLearning
		out.Step = 1
		return 0
	case models.RatingGood:
		if s.params.EnableShortTerm {
			out.State = models.StateLearning
			out.Step = 1
			return 0
		}
		out.State = models.StateReview
		return s.interval(out.Stability)
	}

	out.State = models.StateReview
	goodIvl := s.interval(s.algo.initStability(models.RatingGood))
	return s.clamp(max(s.interval(out.Stability), goodIvl+1))
}

func (s *Scheduler) reviewLearning(out *Outcome, prior models.MemoryState, rating models.Rating) int {
	out.Stability = s.algo.shortTermStability(prior.Stability, rating)
	out.Difficulty = s.algo.nextDifficulty(prior.Difficulty, rating)

	switch rating {
	case models.RatingAgain, models.RatingHard:
		out.State = prior.State
		out.Step = prior.Step + 1
		return 0
	case models.RatingGood:
		out.State = models.StateReview
		return s.interval(out.Stability)
	}

	out.State = models.StateReview
	goodIvl := s.interval(s.algo.shortTermStability(prior.Stability, models.RatingGood))
	return s.clamp(max(s.interval(out.Stability), goodIvl+1))
}

func (s *Scheduler) reviewReview(out *Outcome, prior models.MemoryState, rating models.Rating) int {
	// Stability updates use the difficulty from before this review.
	d := prior.Difficulty
	out.Difficulty = s.algo.nextDifficulty(d, rating)

	sameDay := out.ElapsedDays < 1
	r := Retrievability(out.ElapsedDays, prior.Stability)

	if rating == models.RatingAgain {
		out.State = models.StateRelearning
		out.Lapses++
		out.Step = 1
		if sameDay {
			out.Stability = s.algo.shortTermStability(prior.Stability, rating)
		} else {
			out.Stability = s.algo.forgetStability(d, prior.Stability, r)
		}
		return 0
	}

	next := func(g models.Rating) float64 {
		if sameDay {
			return s.algo.shortTermStability(prior.Stability, g)
		}
		return s.algo.recallStability(d, prior.Stability, r, g)
	}

	hardS, goodS, easyS := next(models.RatingHard), next(models.RatingGood), next(models.RatingEasy)

	hardIvl := s.interval(hardS)
	goodIvl := s.interval(goodS)
	easyIvl := s.interval(easyS)

	hardIvl = min(hardIvl, goodIvl)
	goodIvl = s.clamp(max(goodIvl, hardIvl+1))
	easyIvl = s.clamp(max(easyIvl, goodIvl+1))

	out.State = models.StateReview
	switch rating {
	case models.RatingHard:
		out.Stability = hardS
		return hardIvl
	case models.RatingGood:
		out.Stability = goodS
		return goodIvl
	}
	out.Stability = easyS
	return easyIvl
}

func (s *Scheduler) schedule(out *Outcome, priorState models.State, rating models.Rating, interval int, now time.Time, key string) {
	learning := out.State == models.StateLearning || out.State == models.StateRelearning

	if learning && s.params.EnableShortTerm && out.Step < s.params.Lapses {
		out.ScheduledDays = 0
		out.Due = now.Add(shortTermDelay(priorState, rating))
		return
	}

	if learning {
		interval = s.interval(out.Stability)
	}

	if out.State == models.StateReview && s.params.EnableFuzz {
		interval = applyFuzz(interval, s.params.MaximumInterval, fuzzRand(key, now, out.Reps))
	}

	out.ScheduledDays = s.clamp(interval)
	out.Due = utils.AddDays(now, out.ScheduledDays)
}

func (s *Scheduler) interval(stability float64) int {
	return IntervalDays(stability, s.params.RequestRetention, s.params.MaximumInterval)
}

func (s *Scheduler) clamp(days int) int {
	return clampInterval(days, s.params.MaximumInterval)
}

func shortTermDelay(priorState models.State, rating models.Rating) time.Duration {
	if priorState == models.StateNew {
		switch rating {
		case models.RatingAgain:
			return time.Minute
		case models.RatingHard:
			return 5 * time.Minute
		}
		return 10 * time.Minute
	}

	if rating == models.RatingHard {
		return 10 * time.Minute
	}
	return 5 * time.Minute
}
