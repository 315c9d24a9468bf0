package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duonganh203/benkyo/internal/models"
	"github.com/duonganh203/benkyo/internal/service/fsrs"
	"github.com/duonganh203/benkyo/pkg/utils"
)

// ReviewObserver is notified after a review has been committed.
type ReviewObserver interface {
	OnReviewProcessed(ctx context.Context, deckID string) error
}

type Service struct {
	repo     models.Repository
	observer ReviewObserver
	now      func() time.Time
}

func NewService(repo models.Repository, observer ReviewObserver) *Service {
	return &Service{
		repo:     repo,
		observer: observer,
		now:      time.Now,
	}
}

// ProcessReview grades a card for a user, appends the review log and returns
// the next schedule. Concurrent reviews of the same (user, card) pair are
// serialized by the repository.
func (s *Service) ProcessReview(ctx context.Context, userID, cardID string, rating models.Rating, reviewTimeMs int64) (*models.ReviewResult, error) {
	if !rating.IsValid() {
		return nil, fmt.Errorf("%w: rating must be between 1 and 4, got %d", models.ErrInvalidInput, int(rating))
	}
	if reviewTimeMs < 0 {
		return nil, fmt.Errorf("%w: review time must not be negative", models.ErrInvalidInput)
	}

	card, deck, err := s.cardWithDeck(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}

	scheduler, err := fsrs.NewScheduler(deck.Params)
	if err != nil {
		return nil, fmt.Errorf("load scheduler (deck_id: %s): %w", deck.ID, err)
	}

	var entry *models.ReviewLog
	err = s.repo.WithCardLock(ctx, userID, card.ID, func(repo models.Repository) error {
		if _, err := repo.LockCard(ctx, card.ID); err != nil {
			return err
		}

		prev, err := repo.LatestReviewLog(ctx, userID, card.ID)
		if err != nil {
			return err
		}

		prior := models.MemoryStateFromLog(prev)
		now := s.now().UTC().Truncate(time.Microsecond)
		if prev != nil && !now.After(prev.ReviewedAt) {
			now = prev.ReviewedAt.Add(time.Microsecond)
		}

		out, err := scheduler.Review(prior, rating, now, userID+":"+card.ID)
		if err != nil {
			return err
		}

		entry = &models.ReviewLog{
			ID:                  uuid.NewString(),
			UserID:              userID,
			CardID:              card.ID,
			DeckID:              deck.ID,
			ReviewedAt:          now,
			Rating:              rating,
			PriorState:          prior.State,
			ResultingState:      out.State,
			ResultingDue:        out.Due,
			ResultingStability:  out.Stability,
			ResultingDifficulty: out.Difficulty,
			ElapsedDays:         out.ElapsedDays,
			ScheduledDays:       out.ScheduledDays,
			ReviewDurationMs:    reviewTimeMs,
			Reps:                out.Reps,
			Lapses:              out.Lapses,
			Step:                out.Step,
		}

		return repo.AppendReviewLog(ctx, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("process review (user_id: %s, card_id: %s): %w", userID, cardID, err)
	}

	if s.observer != nil {
		if err := s.observer.OnReviewProcessed(ctx, deck.ID); err != nil {
			zap.S().Warnw("notify review observer", zap.Error(err), zap.String("deck_id", deck.ID))
		}
	}

	return &models.ReviewResult{
		State:    entry.ResultingState,
		Due:      entry.ResultingDue,
		Interval: entry.ScheduledDays,
	}, nil
}

// GetDueCards lists the deck's cards that are due for the user, in the deck's
// card order. Cards the user never reviewed are always due.
func (s *Service) GetDueCards(ctx context.Context, userID, deckID string) ([]string, error) {
	deck, err := s.accessibleDeck(ctx, userID, deckID)
	if err != nil {
		return nil, err
	}

	cardIDs, err := s.repo.ListDeckCardIDs(ctx, deck.ID)
	if err != nil {
		return nil, err
	}

	latest, err := s.repo.LatestReviewLogsForDeck(ctx, userID, deck.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	due := make([]string, 0, len(cardIDs))
	for _, id := range cardIDs {
		entry, ok := latest[id]
		if !ok || !entry.ResultingDue.After(now) {
			due = append(due, id)
		}
	}

	return due, nil
}

func (s *Service) GetCardMemory(ctx context.Context, userID, cardID string) (*models.CardMemory, error) {
	card, _, err := s.cardWithDeck(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}

	entry, err := s.repo.LatestReviewLog(ctx, userID, card.ID)
	if err != nil {
		return nil, err
	}

	memory := models.MemoryStateFromLog(entry)
	result := &models.CardMemory{CardID: card.ID, Memory: memory}
	if memory.LastReview != nil {
		elapsed := utils.ElapsedDays(*memory.LastReview, s.now())
		result.Retrievability = fsrs.Retrievability(elapsed, memory.Stability)
	}

	return result, nil
}

func (s *Service) GetParams(ctx context.Context, userID, deckID string) (*models.FSRSParams, error) {
	deck, err := s.accessibleDeck(ctx, userID, deckID)
	if err != nil {
		return nil, err
	}

	params := deck.Params
	return &params, nil
}

// UpdateParams replaces the deck's scheduling parameters and returns what was
// stored. Only the owner may change them. keepWeights leaves w to the
// optimizer.
func (s *Service) UpdateParams(ctx context.Context, userID, deckID string, params models.FSRSParams, keepWeights bool) (*models.FSRSParams, error) {
	deck, err := s.ownedDeck(ctx, userID, deckID)
	if err != nil {
		return nil, err
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateDeckParams(ctx, deck.ID, params, keepWeights); err != nil {
		return nil, err
	}

	zap.S().Infow("deck params updated",
		zap.String("deck_id", deck.ID), zap.String("user_id", userID), zap.Bool("weights_updated", !keepWeights))

	stored, err := s.repo.GetDeck(ctx, deck.ID)
	if err != nil {
		return nil, err
	}
	return &stored.Params, nil
}

// DeleteCard soft-deletes a card together with its review history.
func (s *Service) DeleteCard(ctx context.Context, userID, cardID string) error {
	card, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return err
	}

	if _, err := s.ownedDeck(ctx, userID, card.DeckID); err != nil {
		return err
	}

	err = s.repo.RunInTx(ctx, func(repo models.Repository) error {
		if err := repo.SoftDeleteCard(ctx, card.ID); err != nil {
			return err
		}
		return repo.SoftDeleteCardReviewLogs(ctx, card.ID)
	})
	if err != nil {
		return fmt.Errorf("delete card (card_id: %s): %w", cardID, err)
	}

	return nil
}

func (s *Service) cardWithDeck(ctx context.Context, userID, cardID string) (*models.Card, *models.Deck, error) {
	card, err := s.repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, nil, err
	}

	deck, err := s.accessibleDeck(ctx, userID, card.DeckID)
	if err != nil {
		return nil, nil, err
	}

	return card, deck, nil
}

// accessibleDeck loads a deck the user owns or is subscribed to. Subscriptions
// only grant access to public decks.
func (s *Service) accessibleDeck(ctx context.Context, userID, deckID string) (*models.Deck, error) {
	deck, err := s.repo.GetDeck(ctx, deckID)
	if err != nil {
		return nil, err
	}

	if deck.OwnerID == userID {
		return deck, nil
	}

	if deck.IsPublic {
		subscribed, err := s.repo.IsSubscribed(ctx, deck.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("check subscription (deck_id: %s, user_id: %s): %w", deck.ID, userID, err)
		}
		if subscribed {
			return deck, nil
		}
	}

	return nil, fmt.Errorf("%w: user %s has no access to deck %s", models.ErrUnauthorized, userID, deck.ID)
}

func (s *Service) ownedDeck(ctx context.Context, userID, deckID string) (*models.Deck, error) {
	deck, err := s.repo.GetDeck(ctx, deckID)
	if err != nil {
		return nil, err
	}

	if deck.OwnerID != userID {
		return nil, fmt.Errorf("%w: user %s does not own deck %s", models.ErrUnauthorized, userID, deck.ID)
	}

	return deck, nil
}
