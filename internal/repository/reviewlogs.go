package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/duonganh203/benkyo/internal/models"
)

const reviewLogColumns = `id, user_id, card_id, deck_id, reviewed_at, rating, prior_state, resulting_state,
	resulting_due, resulting_stability, resulting_difficulty, elapsed_days, scheduled_days,
	review_duration_ms, reps, lapses, step, deleted`

func (r *Postgres) AppendReviewLog(ctx context.Context, entry *models.ReviewLog) error {
	query := r.psql.Insert("review_logs").
		Columns("id", "user_id", "card_id", "deck_id", "reviewed_at", "rating", "prior_state", "resulting_state",
			"resulting_due", "resulting_stability", "resulting_difficulty", "elapsed_days", "scheduled_days",
			"review_duration_ms", "reps", "lapses", "step").
		Values(entry.ID, entry.UserID, entry.CardID, entry.DeckID, entry.ReviewedAt, int(entry.Rating),
			string(entry.PriorState), string(entry.ResultingState), entry.ResultingDue, entry.ResultingStability,
			entry.ResultingDifficulty, entry.ElapsedDays, entry.ScheduledDays, entry.ReviewDurationMs,
			entry.Reps, entry.Lapses, entry.Step)

	if _, err := r.execBuilder(ctx, query); err != nil {
		return fmt.Errorf("append review log (user_id: %s, card_id: %s, reviewed_at: %s): %w",
			entry.UserID, entry.CardID, entry.ReviewedAt.Format(time.RFC3339), err)
	}
	return nil
}

// LatestReviewLog returns nil without error when the card was never reviewed
// by the user.
func (r *Postgres) LatestReviewLog(ctx context.Context, userID, cardID string) (*models.ReviewLog, error) {
	query := `SELECT ` + reviewLogColumns + `
		FROM review_logs
		WHERE user_id = $1 AND card_id = $2 AND NOT deleted
		ORDER BY reviewed_at DESC, id DESC
		LIMIT 1`

	var entry models.ReviewLog
	err := r.GetContext(ctx, &entry, query, userID, cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest review log (user_id: %s, card_id: %s): %w", userID, cardID, err)
	}

	return &entry, nil
}

func (r *Postgres) LatestReviewLogsForDeck(ctx context.Context, userID, deckID string) (map[string]*models.ReviewLog, error) {
	query := `SELECT DISTINCT ON (card_id) ` + reviewLogColumns + `
		FROM review_logs
		WHERE user_id = $1 AND deck_id = $2 AND NOT deleted
		ORDER BY card_id, reviewed_at DESC, id DESC`

	var entries []*models.ReviewLog
	if err := r.SelectContext(ctx, &entries, query, userID, deckID); err != nil {
		return nil, fmt.Errorf("get latest review logs (user_id: %s, deck_id: %s): %w", userID, deckID, err)
	}

	latest := make(map[string]*models.ReviewLog, len(entries))
	for _, entry := range entries {
		latest[entry.CardID] = entry
	}
	return latest, nil
}

func (r *Postgres) ReviewLogsForDeck(ctx context.Context, userID, deckID string) ([]*models.ReviewLog, error) {
	query := `SELECT ` + reviewLogColumns + `
		FROM review_logs
		WHERE user_id = $1 AND deck_id = $2 AND NOT deleted
		ORDER BY reviewed_at ASC, id ASC`

	var entries []*models.ReviewLog
	if err := r.SelectContext(ctx, &entries, query, userID, deckID); err != nil {
		return nil, fmt.Errorf("get review logs (user_id: %s, deck_id: %s): %w", userID, deckID, err)
	}
	return entries, nil
}

func (r *Postgres) SoftDeleteCardReviewLogs(ctx context.Context, cardID string) error {
	query := r.psql.Update("review_logs").
		Set("deleted", true).
		Where("card_id = ? AND NOT deleted", cardID)

	if _, err := r.execBuilder(ctx, query); err != nil {
		return fmt.Errorf("delete review logs (card_id: %s): %w", cardID, err)
	}
	return nil
}
