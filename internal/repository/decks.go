package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/duonganh203/benkyo/internal/models"
)

const deckColumns = `id, owner_id, name, is_public, created_at,
	request_retention, maximum_interval, w, enable_fuzz, enable_short_term, card_limit, lapses,
	learned_card_count, last_optimized, optimization_status, optimization_message, optimization_updated_at`

type deckRow struct {
	ID        string    `db:"id"`
	OwnerID   string    `db:"owner_id"`
	Name      string    `db:"name"`
	IsPublic  bool      `db:"is_public"`
	CreatedAt time.Time `db:"created_at"`

	models.FSRSParams
	models.OptimizationState
}

func (row deckRow) toModel() *models.Deck {
	return &models.Deck{
		ID:           row.ID,
		OwnerID:      row.OwnerID,
		Name:         row.Name,
		IsPublic:     row.IsPublic,
		CreatedAt:    row.CreatedAt,
		Params:       row.FSRSParams,
		Optimization: row.OptimizationState,
	}
}

func (r *Postgres) CreateDeck(ctx context.Context, deck *models.Deck) error {
	status := deck.Optimization.Status
	if status == "" {
		status = models.OptimizationIdle
	}

	query := r.psql.Insert("decks").
		Columns("id", "owner_id", "name", "is_public", "created_at",
			"request_retention", "maximum_interval", "w", "enable_fuzz", "enable_short_term", "card_limit", "lapses",
			"learned_card_count", "optimization_status", "optimization_updated_at").
		Values(deck.ID, deck.OwnerID, deck.Name, deck.IsPublic, deck.CreatedAt,
			deck.Params.RequestRetention, deck.Params.MaximumInterval, deck.Params.W, deck.Params.EnableFuzz,
			deck.Params.EnableShortTerm, deck.Params.CardLimit, deck.Params.Lapses,
			deck.Optimization.LearnedCardCount, string(status), time.Now().UTC())

	if _, err := r.execBuilder(ctx, query); err != nil {
		return fmt.Errorf("create deck (deck_id: %s, owner_id: %s): %w", deck.ID, deck.OwnerID, err)
	}
	return nil
}

func (r *Postgres) GetDeck(ctx context.Context, deckID string) (*models.Deck, error) {
	query := `SELECT ` + deckColumns + ` FROM decks WHERE id = $1`

	var row deckRow
	err := r.GetContext(ctx, &row, query, deckID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get deck (deck_id: %s): %w", deckID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get deck (deck_id: %s): %w", deckID, err)
	}

	return row.toModel(), nil
}

func (r *Postgres) AddSubscription(ctx context.Context, deckID, userID string) error {
	query := r.psql.Insert("deck_subscriptions").
		Columns("deck_id", "user_id").
		Values(deckID, userID).
		Suffix("ON CONFLICT DO NOTHING")

	if _, err := r.execBuilder(ctx, query); err != nil {
		return fmt.Errorf("add subscription (deck_id: %s, user_id: %s): %w", deckID, userID, err)
	}
	return nil
}

func (r *Postgres) IsSubscribed(ctx context.Context, deckID, userID string) (bool, error) {
	query := r.psql.Select("COUNT(*)").From("deck_subscriptions").Where("deck_id = ? AND user_id = ?", deckID, userID)

	sql, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build SQL query (deck_id: %s, user_id: %s): %w", deckID, userID, err)
	}

	var count int
	if err = r.QueryRowxContext(ctx, sql, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("check subscription (deck_id: %s, user_id: %s): %w", deckID, userID, err)
	}
	return count > 0, nil
}

func (r *Postgres) UpdateDeckParams(ctx context.Context, deckID string, params models.FSRSParams, keepWeights bool) error {
	query := r.psql.Update("decks").
		Set("request_retention", params.RequestRetention).
		Set("maximum_interval", params.MaximumInterval).
		Set("enable_fuzz", params.EnableFuzz).
		Set("enable_short_term", params.EnableShortTerm).
		Set("card_limit", params.CardLimit).
		Set("lapses", params.Lapses).
		Where("id = ?", deckID)
	if !keepWeights {
		query = query.Set("w", params.W)
	}

	n, err := r.execBuilder(ctx, query)
	if err != nil {
		return fmt.Errorf("update deck params (deck_id: %s): %w", deckID, err)
	}
	if n == 0 {
		return fmt.Errorf("update deck params (deck_id: %s): %w", deckID, models.ErrNotFound)
	}
	return nil
}

func (r *Postgres) IncrementLearnedCardCount(ctx context.Context, deckID string) (int, error) {
	query := `UPDATE decks SET learned_card_count = learned_card_count + 1 WHERE id = $1 RETURNING learned_card_count`

	var count int
	err := r.QueryRowxContext(ctx, query, deckID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("increment learned card count (deck_id: %s): %w", deckID, models.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("increment learned card count (deck_id: %s): %w", deckID, err)
	}
	return count, nil
}

// TransitionOptimization moves the deck to status to if its current status is
// one of to's predecessors. It reports whether the row was updated.
func (r *Postgres) TransitionOptimization(ctx context.Context, deckID string, to models.OptimizationStatus, message *string) (bool, error) {
	query := r.psql.Update("decks").
		Set("optimization_status", string(to)).
		Set("optimization_message", message).
		Set("optimization_updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": deckID, "optimization_status": statusStrings(to.Predecessors())})

	n, err := r.execBuilder(ctx, query)
	if err != nil {
		return false, fmt.Errorf("transition optimization (deck_id: %s, to: %s): %w", deckID, to, err)
	}
	return n > 0, nil
}

// CompleteOptimization stores the fitted weights and resets the counter in a
// single statement, guarded on the deck still being RUNNING.
func (r *Postgres) CompleteOptimization(ctx context.Context, deckID string, weights models.Weights, at time.Time, message *string) (bool, error) {
	query := r.psql.Update("decks").
		Set("w", weights).
		Set("learned_card_count", 0).
		Set("last_optimized", at).
		Set("optimization_status", string(models.OptimizationCompleted)).
		Set("optimization_message", message).
		Set("optimization_updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": deckID, "optimization_status": string(models.OptimizationRunning)})

	n, err := r.execBuilder(ctx, query)
	if err != nil {
		return false, fmt.Errorf("complete optimization (deck_id: %s): %w", deckID, err)
	}
	return n > 0, nil
}

func (r *Postgres) FailStaleOptimizations(ctx context.Context, olderThan time.Time, message string) (int, error) {
	query := r.psql.Update("decks").
		Set("optimization_status", string(models.OptimizationFailed)).
		Set("optimization_message", message).
		Set("optimization_updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"optimization_status": statusStrings(models.OptimizationFailed.Predecessors())}).
		Where(squirrel.Lt{"optimization_updated_at": olderThan})

	n, err := r.execBuilder(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("fail stale optimizations (older_than: %s): %w", olderThan.Format(time.RFC3339), err)
	}
	return int(n), nil
}

func statusStrings(statuses []models.OptimizationStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
