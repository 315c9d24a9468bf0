package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/duonganh203/benkyo/internal/models"
)

func (r *Postgres) CreateCard(ctx context.Context, card *models.Card) error {
	query := r.psql.Insert("cards").
		Columns("id", "deck_id", "front", "back", "tags", "created_at").
		Values(card.ID, card.DeckID, card.Front, card.Back, card.Tags, card.CreatedAt)

	if _, err := r.execBuilder(ctx, query); err != nil {
		return fmt.Errorf("create card (card_id: %s, deck_id: %s): %w", card.ID, card.DeckID, err)
	}
	return nil
}

func (r *Postgres) GetCard(ctx context.Context, cardID string) (*models.Card, error) {
	query := `
		SELECT id, deck_id, front, back, tags, created_at, deleted
		FROM cards
		WHERE id = $1 AND NOT deleted
	`

	var card models.Card
	err := r.GetContext(ctx, &card, query, cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get card (card_id: %s): %w", cardID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get card (card_id: %s): %w", cardID, err)
	}

	return &card, nil
}

// LockCard reads a live card and holds a share lock on its row until the
// transaction ends, so SoftDeleteCard waits for the caller to commit.
func (r *Postgres) LockCard(ctx context.Context, cardID string) (*models.Card, error) {
	query := `
		SELECT id, deck_id, front, back, tags, created_at, deleted
		FROM cards
		WHERE id = $1 AND NOT deleted
		FOR SHARE
	`

	var card models.Card
	err := r.GetContext(ctx, &card, query, cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lock card (card_id: %s): %w", cardID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock card (card_id: %s): %w", cardID, err)
	}

	return &card, nil
}

// ListDeckCardIDs returns the live cards of a deck in creation order.
func (r *Postgres) ListDeckCardIDs(ctx context.Context, deckID string) ([]string, error) {
	query := `
		SELECT id
		FROM cards
		WHERE deck_id = $1 AND NOT deleted
		ORDER BY created_at ASC, id ASC
	`

	var ids []string
	if err := r.SelectContext(ctx, &ids, query, deckID); err != nil {
		return nil, fmt.Errorf("list deck cards (deck_id: %s): %w", deckID, err)
	}
	return ids, nil
}

func (r *Postgres) SoftDeleteCard(ctx context.Context, cardID string) error {
	query := r.psql.Update("cards").
		Set("deleted", true).
		Where("id = ? AND NOT deleted", cardID)

	n, err := r.execBuilder(ctx, query)
	if err != nil {
		return fmt.Errorf("delete card (card_id: %s): %w", cardID, err)
	}
	if n == 0 {
		return fmt.Errorf("delete card (card_id: %s): %w", cardID, models.ErrNotFound)
	}
	return nil
}
