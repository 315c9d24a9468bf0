// Package optimizer re-fits a deck's FSRS weights from its review history
// through an external optimizer service.
package optimizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/duonganh203/benkyo/internal/models"
	"github.com/duonganh203/benkyo/pkg/optimizerapi"
)

const (
	DefaultThreshold     = 100
	DefaultMinReviewLogs = 50
	DefaultTimeout       = 2 * time.Minute
)

// Client calls the external optimizer service.
type Client interface {
	Optimize(ctx context.Context, req optimizerapi.Request) (*optimizerapi.Response, error)
}

type Config struct {
	Threshold     int
	MinReviewLogs int
	Timeout       time.Duration
	Timezone      string
	DayStart      int
}

type Coordinator struct {
	repo   models.Repository
	client Client
	cfg    Config
	now    func() time.Time

	wg sync.WaitGroup
}

func NewCoordinator(repo models.Repository, client Client, cfg Config) *Coordinator {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MinReviewLogs <= 0 {
		cfg.MinReviewLogs = DefaultMinReviewLogs
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}

	return &Coordinator{
		repo:   repo,
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}
}

// OnReviewProcessed counts a review for the deck and starts a background run
// every time the count reaches a multiple of the threshold. It never waits for
// the run.
func (c *Coordinator) OnReviewProcessed(ctx context.Context, deckID string) error {
	count, err := c.repo.IncrementLearnedCardCount(ctx, deckID)
	if err != nil {
		return fmt.Errorf("count review (deck_id: %s): %w", deckID, err)
	}

	if count <= 0 || count%c.cfg.Threshold != 0 {
		return nil
	}

	ok, err := c.repo.TransitionOptimization(ctx, deckID, models.OptimizationPending, nil)
	if err != nil {
		return fmt.Errorf("queue optimization (deck_id: %s): %w", deckID, err)
	}
	if !ok {
		zap.S().Infow("optimization already in progress, threshold trigger dropped",
			zap.String("deck_id", deckID), zap.Int("learned_card_count", count))
		return nil
	}

	zap.S().Infow("optimization threshold reached", zap.String("deck_id", deckID), zap.Int("learned_card_count", count))

	runCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(runCtx, deckID)
	}()

	return nil
}

// TriggerManualOptimization runs the pipeline synchronously for the deck
// owner. Data and upstream problems are reported in the result, not as
// errors.
func (c *Coordinator) TriggerManualOptimization(ctx context.Context, deckID, userID string) (*models.OptimizationResult, error) {
	deck, err := c.repo.GetDeck(ctx, deckID)
	if err != nil {
		return nil, err
	}

	if deck.OwnerID != userID {
		return nil, fmt.Errorf("%w: user %s does not own deck %s", models.ErrUnauthorized, userID, deckID)
	}

	ok, err := c.repo.TransitionOptimization(ctx, deckID, models.OptimizationPending, nil)
	if err != nil {
		return nil, fmt.Errorf("queue optimization (deck_id: %s): %w", deckID, err)
	}
	if !ok {
		return &models.OptimizationResult{
			Success: false,
			Message: models.ErrOptimizationInProgress.Error(),
			Code:    models.ResultCodeInProgress,
		}, fmt.Errorf("trigger optimization (deck_id: %s): %w", deckID, models.ErrOptimizationInProgress)
	}

	c.wg.Add(1)
	defer c.wg.Done()

	return c.run(context.WithoutCancel(ctx), deckID), nil
}

func (c *Coordinator) GetStatus(ctx context.Context, deckID, userID string) (*models.OptimizationStatusView, error) {
	deck, err := c.repo.GetDeck(ctx, deckID)
	if err != nil {
		return nil, err
	}

	if deck.OwnerID != userID {
		subscribed := false
		if deck.IsPublic {
			if subscribed, err = c.repo.IsSubscribed(ctx, deckID, userID); err != nil {
				return nil, fmt.Errorf("check subscription (deck_id: %s, user_id: %s): %w", deckID, userID, err)
			}
		}
		if !subscribed {
			return nil, fmt.Errorf("%w: user %s has no access to deck %s", models.ErrUnauthorized, userID, deckID)
		}
	}

	st := deck.Optimization
	return &models.OptimizationStatusView{
		LearnedCardCount: st.LearnedCardCount,
		LastOptimized:    st.LastOptimized,
		Status:           st.Status,
		Message:          st.LastMessage,
		Threshold:        c.cfg.Threshold,
	}, nil
}

// Wait blocks until every background run has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
