package fsrs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duonganh203/benkyo/internal/models"
	"github.com/duonganh203/benkyo/pkg/utils"
)

const day = utils.Day

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, mutate func(p *models.FSRSParams)) *Scheduler {
	t.Helper()

	params := models.DefaultParams()
	params.EnableFuzz = false
	if mutate != nil {
		mutate(&params)
	}

	s, err := NewScheduler(params)
	require.NoError(t, err)
	return s
}

func reviewState(stability, difficulty float64, lastReview time.Time) models.MemoryState {
	return models.MemoryState{
		State:      models.StateReview,
		Stability:  stability,
		Difficulty: difficulty,
		LastReview: &lastReview,
		Reps:       5,
	}
}

func TestNewScheduler_InvalidParams(t *testing.T) {
	params := models.DefaultParams()
	params.RequestRetention = 0.05

	_, err := NewScheduler(params)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestReview_InvalidRating(t *testing.T) {
	s := newTestScheduler(t, nil)

	for _, r := range []models.Rating{0, 5, -1} {
		_, err := s.Review(models.MemoryState{State: models.StateNew}, r, testNow, "u:c")
		assert.ErrorIs(t, err, models.ErrInvalidInput)
	}
}

func TestReview_NewCardLeavesNew(t *testing.T) {
	s := newTestScheduler(t, nil)

	for _, r := range []models.Rating{models.RatingAgain, models.RatingHard, models.RatingGood, models.RatingEasy} {
		t.Run(r.String(), func(t *testing.T) {
			out, err := s.Review(models.MemoryState{State: models.StateNew}, r, testNow, "u:c")
			require.NoError(t, err)

			assert.NotEqual(t, models.StateNew, out.State)
			assert.Greater(t, out.Stability, 0.0)
			assert.GreaterOrEqual(t, out.Difficulty, 1.0)
			assert.LessOrEqual(t, out.Difficulty, 10.0)
			assert.Equal(t, 1, out.Reps)
			assert.Zero(t, out.ElapsedDays)
		})
	}
}

func TestReview_FirstGoodWithDefaults(t *testing.T) {
	s := newTestScheduler(t, nil)

	out, err := s.Review(models.MemoryState{State: models.StateNew}, models.RatingGood, testNow, "u:c")
	require.NoError(t, err)

	assert.Equal(t, models.StateReview, out.State)
	assert.InDelta(t, models.DefaultWeights[2], out.Stability, 1e-9)
	// at 90% retention the interval equals the stability
	assert.Equal(t, 3, out.ScheduledDays)
	assert.Equal(t, testNow.Add(3*day), out.Due)
}

func TestReview_FirstEasyBeyondGood(t *testing.T) {
	s := newTestScheduler(t, nil)

	good, err := s.Review(models.MemoryState{State: models.StateNew}, models.RatingGood, testNow, "u:c")
	require.NoError(t, err)
	easy, err := s.Review(models.MemoryState{State: models.StateNew}, models.RatingEasy, testNow, "u:c")
	require.NoError(t, err)

	assert.Equal(t, models.StateReview, easy.State)
	assert.Greater(t, easy.ScheduledDays, good.ScheduledDays)
}

func TestReview_ShortTermSteps(t *testing.T) {
	s := newTestScheduler(t, func(p *models.FSRSParams) {
		p.EnableShortTerm = true
	})

	cases := []struct {
		rating models.Rating
		delay  time.Duration
	}{
		{models.RatingAgain, time.Minute},
		{models.RatingHard, 5 * time.Minute},
		{models.RatingGood, 10 * time.Minute},
	}

	for _, tc := range cases {
		t.Run(tc.rating.String(), func(t *testing.T) {
			out, err := s.Review(models.MemoryState{State: models.StateNew}, tc.rating, testNow, "u:c")
			require.NoError(t, err)

			assert.Equal(t, models.StateLearning, out.State)
			assert.Equal(t, 0, out.ScheduledDays)
			assert.Equal(t, testNow.Add(tc.delay), out.Due)
			assert.Equal(t, 1, out.Step)
		})
	}
}

func TestReview_ShortTermFallsBackAfterLapsesSteps(t *testing.T) {
	s := newTestScheduler(t, func(p *models.FSRSParams) {
		p.EnableShortTerm = true
		p.Lapses = 2
	})

	state := models.MemoryState{State: models.StateNew}
	now := testNow

	out, err := s.Review(state, models.RatingAgain, now, "u:c")
	require.NoError(t, err)
	assert.Equal(t, 0, out.ScheduledDays)

	last := now
	state = models.MemoryState{
		State:      out.State,
		Stability:  out.Stability,
		Difficulty: out.Difficulty,
		LastReview: &last,
		Reps:       out.Reps,
		Step:       out.Step,
	}
	now = out.Due

	out, err = s.Review(state, models.RatingAgain, now, "u:c")
	require.NoError(t, err)

	assert.Equal(t, models.StateLearning, out.State)
	assert.Equal(t, 2, out.Step)
	assert.GreaterOrEqual(t, out.ScheduledDays, 1)
	assert.Equal(t, now.Add(time.Duration(out.ScheduledDays)*day), out.Due)
}

func TestReview_LearningGraduates(t *testing.T) {
	s := newTestScheduler(t, nil)
	last := testNow.Add(-10 * time.Minute)

	prior := models.MemoryState{
		State:      models.StateLearning,
		Stability:  models.DefaultWeights[0],
		Difficulty: 6,
		LastReview: &last,
		Reps:       1,
		Step:       1,
	}

	out, err := s.Review(prior, models.RatingGood, testNow, "u:c")
	require.NoError(t, err)

	assert.Equal(t, models.StateReview, out.State)
	assert.Equal(t, 0, out.Step)
	assert.GreaterOrEqual(t, out.ScheduledDays, 1)
}

func TestReview_AgainOnReviewLapses(t *testing.T) {
	s := newTestScheduler(t, nil)
	prior := reviewState(20, 5, testNow.Add(-20*day))

	out, err := s.Review(prior, models.RatingAgain, testNow, "u:c")
	require.NoError(t, err)

	assert.Equal(t, models.StateRelearning, out.State)
	assert.Less(t, out.Stability, prior.Stability)
	assert.Greater(t, out.Difficulty, prior.Difficulty)
	assert.Equal(t, prior.Lapses+1, out.Lapses)
	assert.InDelta(t, 20.0, out.ElapsedDays, 1e-9)
}

func TestReview_EasyOnReview(t *testing.T) {
	s := newTestScheduler(t, nil)
	prior := reviewState(20, 5, testNow.Add(-20*day))

	out, err := s.Review(prior, models.RatingEasy, testNow, "u:c")
	require.NoError(t, err)

	assert.Equal(t, models.StateReview, out.State)
	assert.GreaterOrEqual(t, out.Stability, prior.Stability)
	assert.Less(t, out.Difficulty, prior.Difficulty)
}

func TestReview_IntervalOrdering(t *testing.T) {
	s := newTestScheduler(t, nil)

	for _, elapsed := range []time.Duration{2 * time.Hour, 3 * day, 20 * day, 90 * day} {
		prior := reviewState(15, 6, testNow.Add(-elapsed))

		hard, err := s.Review(prior, models.RatingHard, testNow, "u:c")
		require.NoError(t, err)
		good, err := s.Review(prior, models.RatingGood, testNow, "u:c")
		require.NoError(t, err)
		easy, err := s.Review(prior, models.RatingEasy, testNow, "u:c")
		require.NoError(t, err)

		assert.LessOrEqual(t, hard.ScheduledDays, good.ScheduledDays, "elapsed %s", elapsed)
		assert.Less(t, good.ScheduledDays, easy.ScheduledDays, "elapsed %s", elapsed)
	}
}

func TestReview_MaximumIntervalCap(t *testing.T) {
	for _, fuzz := range []bool{false, true} {
		s := newTestScheduler(t, func(p *models.FSRSParams) {
			p.MaximumInterval = 10
			p.EnableFuzz = fuzz
		})
		prior := reviewState(400, 3, testNow.Add(-300*day))

		out, err := s.Review(prior, models.RatingEasy, testNow, "u:c")
		require.NoError(t, err)

		assert.LessOrEqual(t, out.ScheduledDays, 10)
		assert.Equal(t, testNow.Add(time.Duration(out.ScheduledDays)*day), out.Due)
		if !fuzz {
			assert.Equal(t, 10, out.ScheduledDays)
		}
	}
}

func TestReview_DueIncreasesOverGoodSequence(t *testing.T) {
	s := newTestScheduler(t, func(p *models.FSRSParams) {
		p.EnableFuzz = true
	})

	state := models.MemoryState{State: models.StateNew}
	now := testNow
	var prevInterval int

	for i := 0; i < 8; i++ {
		out, err := s.Review(state, models.RatingGood, now, "user-1:card-1")
		require.NoError(t, err)

		assert.True(t, out.Due.After(now))
		if i > 0 {
			assert.Greater(t, out.ScheduledDays, prevInterval, "review %d", i)
		}
		prevInterval = out.ScheduledDays

		last := now
		state = models.MemoryState{
			State:      out.State,
			Due:        out.Due,
			Stability:  out.Stability,
			Difficulty: out.Difficulty,
			LastReview: &last,
			Reps:       out.Reps,
			Lapses:     out.Lapses,
			Step:       out.Step,
		}
		now = out.Due
	}
}

func TestReview_Deterministic(t *testing.T) {
	s := newTestScheduler(t, func(p *models.FSRSParams) {
		p.EnableFuzz = true
	})
	prior := reviewState(30, 5, testNow.Add(-30*day))

	first, err := s.Review(prior, models.RatingGood, testNow, "user-1:card-1")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := s.Review(prior, models.RatingGood, testNow, "user-1:card-1")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestReview_DifficultyStaysBounded(t *testing.T) {
	s := newTestScheduler(t, nil)
	ratings := []models.Rating{models.RatingAgain, models.RatingEasy}

	for _, r := range ratings {
		state := models.MemoryState{State: models.StateNew}
		now := testNow
		for i := 0; i < 30; i++ {
			out, err := s.Review(state, r, now, "u:c")
			require.NoError(t, err)

			assert.GreaterOrEqual(t, out.Difficulty, 1.0)
			assert.LessOrEqual(t, out.Difficulty, 10.0)
			assert.GreaterOrEqual(t, out.Stability, minStability)

			last := now
			state = models.MemoryState{
				State:      out.State,
				Stability:  out.Stability,
				Difficulty: out.Difficulty,
				LastReview: &last,
				Reps:       out.Reps,
				Lapses:     out.Lapses,
				Step:       out.Step,
			}
			now = out.Due
		}
	}
}
