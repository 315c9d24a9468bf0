package models

import (
	"context"
	"time"
)

type Repository interface {
	GetDeck(ctx context.Context, deckID string) (*Deck, error)
	IsSubscribed(ctx context.Context, deckID, userID string) (bool, error)
	// UpdateDeckParams stores params. With keepWeights the stored w is left
	// as is, so weights fitted by a concurrent optimization survive.
	UpdateDeckParams(ctx context.Context, deckID string, params FSRSParams, keepWeights bool) error

	GetCard(ctx context.Context, cardID string) (*Card, error)
	// LockCard re-reads a live card inside a transaction and keeps it from
	// being deleted until the transaction ends.
	LockCard(ctx context.Context, cardID string) (*Card, error)
	ListDeckCardIDs(ctx context.Context, deckID string) ([]string, error)
	SoftDeleteCard(ctx context.Context, cardID string) error

	AppendReviewLog(ctx context.Context, entry *ReviewLog) error
	LatestReviewLog(ctx context.Context, userID, cardID string) (*ReviewLog, error)
	LatestReviewLogsForDeck(ctx context.Context, userID, deckID string) (map[string]*ReviewLog, error)
	ReviewLogsForDeck(ctx context.Context, userID, deckID string) ([]*ReviewLog, error)
	SoftDeleteCardReviewLogs(ctx context.Context, cardID string) error

	IncrementLearnedCardCount(ctx context.Context, deckID string) (int, error)
	TransitionOptimization(ctx context.Context, deckID string, to OptimizationStatus, message *string) (bool, error)
	CompleteOptimization(ctx context.Context, deckID string, weights Weights, at time.Time, message *string) (bool, error)
	FailStaleOptimizations(ctx context.Context, olderThan time.Time, message string) (int, error)

	RunInTx(ctx context.Context, fn func(Repository) error) error
	WithCardLock(ctx context.Context, userID, cardID string, fn func(Repository) error) error
}

type Service interface {
	ProcessReview(ctx context.Context, userID, cardID string, rating Rating, reviewTimeMs int64) (*ReviewResult, error)
	GetDueCards(ctx context.Context, userID, deckID string) ([]string, error)
	GetCardMemory(ctx context.Context, userID, cardID string) (*CardMemory, error)
	GetParams(ctx context.Context, userID, deckID string) (*FSRSParams, error)
	UpdateParams(ctx context.Context, userID, deckID string, params FSRSParams, keepWeights bool) (*FSRSParams, error)
	DeleteCard(ctx context.Context, userID, cardID string) error
}

type Optimizer interface {
	TriggerManualOptimization(ctx context.Context, deckID, userID string) (*OptimizationResult, error)
	GetStatus(ctx context.Context, deckID, userID string) (*OptimizationStatusView, error)
}
