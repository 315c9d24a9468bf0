package optimizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duonganh203/benkyo/internal/models"
	"github.com/duonganh203/benkyo/internal/repository"
	"github.com/duonganh203/benkyo/pkg/optimizerapi"
)

func fittedWeights() []float64 {
	w := models.DefaultWeights
	w[0], w[1], w[2], w[3] = 0.5, 1.3, 3.5, 16.0
	return w[:]
}

func successResponse() *optimizerapi.Response {
	rate := 0.88
	return &optimizerapi.Response{
		Success:       true,
		Weights:       fittedWeights(),
		Message:       "fitted",
		ReviewCount:   60,
		RetentionRate: &rate,
	}
}

type testEnv struct {
	repo  *repository.Memory
	deck  *models.Deck
	cards []string
}

func newTestEnv(t *testing.T, logs int) *testEnv {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewMemory()

	deck := &models.Deck{
		ID:        uuid.NewString(),
		OwnerID:   "owner",
		Name:      "deck",
		IsPublic:  true,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Params:    models.DefaultParams(),
	}
	require.NoError(t, repo.CreateDeck(ctx, deck))

	env := &testEnv{repo: repo, deck: deck}
	for i := 0; i < 5; i++ {
		card := &models.Card{ID: uuid.NewString(), DeckID: deck.ID, Front: "f", Back: "b", CreatedAt: deck.CreatedAt}
		require.NoError(t, repo.CreateCard(ctx, card))
		env.cards = append(env.cards, card.ID)
	}

	at := time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < logs; i++ {
		prior := models.StateReview
		if i < len(env.cards) {
			prior = models.StateNew
		}
		require.NoError(t, repo.AppendReviewLog(ctx, &models.ReviewLog{
			ID:               uuid.NewString(),
			UserID:           "owner",
			CardID:           env.cards[i%len(env.cards)],
			DeckID:           deck.ID,
			ReviewedAt:       at.Add(time.Duration(i) * time.Hour),
			Rating:           models.RatingGood,
			PriorState:       prior,
			ResultingState:   models.StateReview,
			ResultingDue:     at.Add(time.Duration(i)*time.Hour + 72*time.Hour),
			ReviewDurationMs: 3000,
		}))
	}
	return env
}

func (e *testEnv) deckState(t *testing.T) *models.Deck {
	t.Helper()
	deck, err := e.repo.GetDeck(context.Background(), e.deck.ID)
	require.NoError(t, err)
	return deck
}

func TestOnReviewProcessed_ThresholdTriggersOnce(t *testing.T) {
	env := newTestEnv(t, 60)
	client := &FakeClient{Response: successResponse()}
	c := NewCoordinator(env.repo, client, Config{})
	ctx := context.Background()

	for i := 0; i < 99; i++ {
		require.NoError(t, c.OnReviewProcessed(ctx, env.deck.ID))
	}
	c.Wait()
	assert.Zero(t, client.Calls())

	require.NoError(t, c.OnReviewProcessed(ctx, env.deck.ID))
	c.Wait()
	assert.Equal(t, 1, client.Calls())

	deck := env.deckState(t)
	assert.Equal(t, models.OptimizationCompleted, deck.Optimization.Status)
	assert.Equal(t, 0, deck.Optimization.LearnedCardCount)
	assert.NotNil(t, deck.Optimization.LastOptimized)
	assert.Equal(t, fittedWeights(), deck.Params.W[:])

	for i := 0; i < 99; i++ {
		require.NoError(t, c.OnReviewProcessed(ctx, env.deck.ID))
	}
	c.Wait()
	assert.Equal(t, 1, client.Calls())
}

func TestOnReviewProcessed_FailureKeepsCounter(t *testing.T) {
	env := newTestEnv(t, 60)
	client := &FakeClient{Err: errors.New("connection refused")}
	c := NewCoordinator(env.repo, client, Config{})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, c.OnReviewProcessed(ctx, env.deck.ID))
	}
	c.Wait()

	deck := env.deckState(t)
	assert.Equal(t, models.OptimizationFailed, deck.Optimization.Status)
	assert.Equal(t, 100, deck.Optimization.LearnedCardCount)
	assert.Equal(t, models.DefaultWeights, deck.Params.W)
	require.NotNil(t, deck.Optimization.LastMessage)
	assert.Contains(t, *deck.Optimization.LastMessage, "connection refused")
	assert.Nil(t, deck.Optimization.LastOptimized)

	for i := 0; i < 100; i++ {
		require.NoError(t, c.OnReviewProcessed(ctx, env.deck.ID))
	}
	c.Wait()
	assert.Equal(t, 2, client.Calls())
}

func TestOnReviewProcessed_UnknownDeck(t *testing.T) {
	env := newTestEnv(t, 0)
	c := NewCoordinator(env.repo, &FakeClient{Response: successResponse()}, Config{})

	err := c.OnReviewProcessed(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTriggerManualOptimization_Success(t *testing.T) {
	env := newTestEnv(t, 60)
	client := &FakeClient{Response: successResponse()}
	c := NewCoordinator(env.repo, client, Config{Timezone: "Asia/Tokyo", DayStart: 4})

	res, err := c.TriggerManualOptimization(context.Background(), env.deck.ID, "owner")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Len(t, res.Weights, models.WeightCount)
	assert.Equal(t, 60, res.ReviewCount)
	require.NotNil(t, res.RetentionRate)
	assert.InDelta(t, 0.88, *res.RetentionRate, 1e-12)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, "Asia/Tokyo", req.Timezone)
	assert.Equal(t, 4, req.DayStart)
	require.Len(t, req.ReviewLogs, 60)
	assert.Equal(t, 0, req.ReviewLogs[0].ReviewState)
	assert.Equal(t, 2, req.ReviewLogs[59].ReviewState)
	assert.Equal(t, 3, req.ReviewLogs[0].ReviewRating)
	assert.Equal(t, int64(3000), req.ReviewLogs[0].ReviewDuration)
	assert.Less(t, req.ReviewLogs[0].ReviewTime, req.ReviewLogs[1].ReviewTime)

	assert.Equal(t, models.OptimizationCompleted, env.deckState(t).Optimization.Status)
}

func TestTriggerManualOptimization_Access(t *testing.T) {
	env := newTestEnv(t, 60)
	client := &FakeClient{Response: successResponse()}
	c := NewCoordinator(env.repo, client, Config{})
	ctx := context.Background()

	_, err := c.TriggerManualOptimization(ctx, env.deck.ID, "student")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = c.TriggerManualOptimization(ctx, uuid.NewString(), "owner")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Zero(t, client.Calls())
	assert.Equal(t, models.OptimizationIdle, env.deckState(t).Optimization.Status)
}

func TestTriggerManualOptimization_InsufficientData(t *testing.T) {
	env := newTestEnv(t, 49)
	client := &FakeClient{Response: successResponse()}
	c := NewCoordinator(env.repo, client, Config{})

	res, err := c.TriggerManualOptimization(context.Background(), env.deck.ID, "owner")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, models.ResultCodeInsufficientData, res.Code)
	assert.Equal(t, 49, res.ReviewCount)
	assert.Zero(t, client.Calls())

	deck := env.deckState(t)
	assert.Equal(t, models.OptimizationFailed, deck.Optimization.Status)
	require.NotNil(t, deck.Optimization.LastMessage)
	assert.Contains(t, *deck.Optimization.LastMessage, "insufficient")
}

func TestTriggerManualOptimization_RejectedResponses(t *testing.T) {
	cases := []struct {
		name string
		resp *optimizerapi.Response
	}{
		{"wrong length", &optimizerapi.Response{Success: true, Weights: fittedWeights()[:18]}},
		{"success false", &optimizerapi.Response{Success: false, Message: "did not converge"}},
		{"empty weights", &optimizerapi.Response{Success: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, 60)
			c := NewCoordinator(env.repo, &FakeClient{Response: tc.resp}, Config{})

			res, err := c.TriggerManualOptimization(context.Background(), env.deck.ID, "owner")
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, models.ResultCodeUpstreamFailure, res.Code)

			deck := env.deckState(t)
			assert.Equal(t, models.OptimizationFailed, deck.Optimization.Status)
			assert.Equal(t, models.DefaultWeights, deck.Params.W)
		})
	}
}

func TestTriggerManualOptimization_Timeout(t *testing.T) {
	env := newTestEnv(t, 60)
	client := &FakeClient{Response: successResponse(), Delay: time.Second}
	c := NewCoordinator(env.repo, client, Config{Timeout: 20 * time.Millisecond})

	res, err := c.TriggerManualOptimization(context.Background(), env.deck.ID, "owner")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, models.ResultCodeUpstreamFailure, res.Code)
	assert.Contains(t, res.Message, context.DeadlineExceeded.Error())

	deck := env.deckState(t)
	assert.Equal(t, models.OptimizationFailed, deck.Optimization.Status)
	assert.Equal(t, models.DefaultWeights, deck.Params.W)
}

func TestTriggerManualOptimization_ConcurrentCallsRunOnce(t *testing.T) {
	env := newTestEnv(t, 60)
	client := &FakeClient{Response: successResponse(), Block: make(chan struct{})}
	c := NewCoordinator(env.repo, client, Config{})
	ctx := context.Background()

	first := make(chan *models.OptimizationResult, 1)
	go func() {
		res, err := c.TriggerManualOptimization(ctx, env.deck.ID, "owner")
		assert.NoError(t, err)
		first <- res
	}()

	require.Eventually(t, func() bool { return client.Calls() == 1 }, time.Second, 5*time.Millisecond)

	res, err := c.TriggerManualOptimization(ctx, env.deck.ID, "owner")
	assert.ErrorIs(t, err, models.ErrOptimizationInProgress)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, models.ResultCodeInProgress, res.Code)

	status, err := c.GetStatus(ctx, env.deck.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, models.OptimizationRunning, status.Status)

	close(client.Block)
	assert.True(t, (<-first).Success)
	assert.Equal(t, 1, client.Calls())
	assert.Equal(t, models.OptimizationCompleted, env.deckState(t).Optimization.Status)
}

type panicClient struct{}

func (panicClient) Optimize(ctx context.Context, req optimizerapi.Request) (*optimizerapi.Response, error) {
	panic("optimizer exploded")
}

func TestRun_PanicResolvesToFailed(t *testing.T) {
	env := newTestEnv(t, 60)
	c := NewCoordinator(env.repo, panicClient{}, Config{})

	res, err := c.TriggerManualOptimization(context.Background(), env.deck.ID, "owner")
	require.NoError(t, err)
	assert.False(t, res.Success)

	assert.Equal(t, models.OptimizationFailed, env.deckState(t).Optimization.Status)
}

func TestGetStatus(t *testing.T) {
	env := newTestEnv(t, 0)
	c := NewCoordinator(env.repo, &FakeClient{Response: successResponse()}, Config{Threshold: 25})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.OnReviewProcessed(ctx, env.deck.ID))
	}

	st, err := c.GetStatus(ctx, env.deck.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, 3, st.LearnedCardCount)
	assert.Equal(t, models.OptimizationIdle, st.Status)
	assert.Equal(t, 25, st.Threshold)
	assert.Nil(t, st.LastOptimized)
	assert.Nil(t, st.Message)

	_, err = c.GetStatus(ctx, env.deck.ID, "student")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	require.NoError(t, env.repo.AddSubscription(ctx, env.deck.ID, "student"))
	_, err = c.GetStatus(ctx, env.deck.ID, "student")
	assert.NoError(t, err)
}

func TestRecoverStale(t *testing.T) {
	env := newTestEnv(t, 0)
	c := NewCoordinator(env.repo, &FakeClient{Response: successResponse()}, Config{})
	ctx := context.Background()

	ok, err := env.repo.TransitionOptimization(ctx, env.deck.ID, models.OptimizationPending, nil)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = env.repo.TransitionOptimization(ctx, env.deck.ID, models.OptimizationRunning, nil)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := c.RecoverStale(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = c.RecoverStale(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	deck := env.deckState(t)
	assert.Equal(t, models.OptimizationFailed, deck.Optimization.Status)
	require.NotNil(t, deck.Optimization.LastMessage)
	assert.Equal(t, staleMessage, *deck.Optimization.LastMessage)
}

func TestStartStaleSweeper(t *testing.T) {
	env := newTestEnv(t, 0)
	c := NewCoordinator(env.repo, &FakeClient{Response: successResponse()}, Config{})
	ctx, cancel := context.WithCancel(context.Background())

	ok, err := env.repo.TransitionOptimization(ctx, env.deck.ID, models.OptimizationPending, nil)
	require.NoError(t, err)
	require.True(t, ok)

	c.StartStaleSweeper(ctx, 10*time.Millisecond, 0)

	assert.Eventually(t, func() bool {
		deck, err := env.repo.GetDeck(context.Background(), env.deck.ID)
		return err == nil && deck.Optimization.Status == models.OptimizationFailed
	}, time.Second, 10*time.Millisecond)

	cancel()
	c.Wait()
}
