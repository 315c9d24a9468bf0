package optimizer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/duonganh203/benkyo/internal/models"
	"github.com/duonganh203/benkyo/pkg/optimizerapi"
)

const resolveTimeout = 10 * time.Second

// run drives a PENDING deck to COMPLETED or FAILED. Whatever happens inside,
// including a panic, the deck never stays PENDING or RUNNING after it returns.
func (c *Coordinator) run(ctx context.Context, deckID string) (result *models.OptimizationResult) {
	started := c.now()
	resolved := false

	defer func() {
		if p := recover(); p != nil {
			zap.S().Errorw("optimization panicked", zap.Any("panic", p), zap.String("deck_id", deckID))
			result = failure(models.ResultCodeUpstreamFailure, "optimization aborted unexpectedly", 0)
		}
		if result == nil {
			result = failure(models.ResultCodeUpstreamFailure, "optimization aborted", 0)
		}
		if !resolved {
			c.markFailed(deckID, result.Message)
		}

		zap.S().Infow("optimization finished",
			zap.String("deck_id", deckID),
			zap.Bool("success", result.Success),
			zap.String("message", result.Message),
			zap.Duration("took", c.now().Sub(started)))
	}()

	ok, err := c.repo.TransitionOptimization(ctx, deckID, models.OptimizationRunning, nil)
	if err != nil || !ok {
		return failure(models.ResultCodeUpstreamFailure, fmt.Sprintf("could not start optimization: %v", errOrLost(err)), 0)
	}

	deck, err := c.repo.GetDeck(ctx, deckID)
	if err != nil {
		return failure(models.ResultCodeUpstreamFailure, fmt.Sprintf("load deck: %v", err), 0)
	}

	logs, err := c.repo.ReviewLogsForDeck(ctx, deck.OwnerID, deck.ID)
	if err != nil {
		return failure(models.ResultCodeUpstreamFailure, fmt.Sprintf("load review logs: %v", err), 0)
	}

	if len(logs) < c.cfg.MinReviewLogs {
		msg := fmt.Sprintf("%s: %d reviews, need at least %d", models.ErrInsufficientData, len(logs), c.cfg.MinReviewLogs)
		return failure(models.ResultCodeInsufficientData, msg, len(logs))
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.Optimize(callCtx, c.buildRequest(logs))
	if err != nil {
		return failure(models.ResultCodeUpstreamFailure, fmt.Sprintf("%s: %v", models.ErrUpstreamFailure, err), len(logs))
	}

	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "optimizer reported failure"
		}
		return failure(models.ResultCodeUpstreamFailure, msg, resp.ReviewCount)
	}

	weights, err := models.WeightsFromSlice(resp.Weights)
	if err != nil {
		return failure(models.ResultCodeUpstreamFailure, fmt.Sprintf("%s: invalid weights: %v", models.ErrUpstreamFailure, err), resp.ReviewCount)
	}

	msg := resp.Message
	if msg == "" {
		msg = fmt.Sprintf("optimized from %d reviews", len(logs))
	}

	ok, err = c.repo.CompleteOptimization(ctx, deckID, weights, c.now().UTC(), &msg)
	if err != nil || !ok {
		return failure(models.ResultCodeUpstreamFailure, fmt.Sprintf("store weights: %v", errOrLost(err)), resp.ReviewCount)
	}

	resolved = true
	return &models.OptimizationResult{
		Success:       true,
		Weights:       weights[:],
		Message:       msg,
		ReviewCount:   resp.ReviewCount,
		RetentionRate: resp.RetentionRate,
	}
}

func (c *Coordinator) buildRequest(logs []*models.ReviewLog) optimizerapi.Request {
	items := make([]optimizerapi.ReviewLog, 0, len(logs))
	for _, entry := range logs {
		items = append(items, optimizerapi.ReviewLog{
			CardID:         entry.CardID,
			ReviewTime:     entry.ReviewedAt.UnixMilli(),
			ReviewRating:   int(entry.Rating),
			ReviewState:    entry.PriorState.Ordinal(),
			ReviewDuration: entry.ReviewDurationMs,
		})
	}

	return optimizerapi.Request{
		ReviewLogs: items,
		Timezone:   c.cfg.Timezone,
		DayStart:   c.cfg.DayStart,
	}
}

// markFailed uses its own context so a cancelled run still resolves.
func (c *Coordinator) markFailed(deckID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	ok, err := c.repo.TransitionOptimization(ctx, deckID, models.OptimizationFailed, &message)
	if err != nil {
		zap.S().Errorw("mark optimization failed", zap.Error(err), zap.String("deck_id", deckID))
		return
	}
	if !ok {
		zap.S().Warnw("optimization was no longer in progress", zap.String("deck_id", deckID))
	}
}

func failure(code, message string, reviewCount int) *models.OptimizationResult {
	return &models.OptimizationResult{
		Success:     false,
		Message:     message,
		ReviewCount: reviewCount,
		Code:        code,
	}
}

func errOrLost(err error) string {
	if err != nil {
		return err.Error()
	}
	return "status changed concurrently"
}
