package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/duonganh203/benkyo/internal/models"
)

type memoryData struct {
	decks         map[string]*models.Deck
	subscriptions map[string]map[string]bool
	cards         map[string]*models.Card
	logs          []*models.ReviewLog
}

func (d *memoryData) clone() *memoryData {
	c := &memoryData{
		decks:         make(map[string]*models.Deck, len(d.decks)),
		subscriptions: make(map[string]map[string]bool, len(d.subscriptions)),
		cards:         make(map[string]*models.Card, len(d.cards)),
		logs:          make([]*models.ReviewLog, 0, len(d.logs)),
	}
	for id, deck := range d.decks {
		cp := *deck
		c.decks[id] = &cp
	}
	for deckID, users := range d.subscriptions {
		c.subscriptions[deckID] = make(map[string]bool, len(users))
		for u := range users {
			c.subscriptions[deckID][u] = true
		}
	}
	for id, card := range d.cards {
		cp := *card
		c.cards[id] = &cp
	}
	for _, entry := range d.logs {
		cp := *entry
		c.logs = append(c.logs, &cp)
	}
	return c
}

type memoryStore struct {
	mu   sync.RWMutex
	data *memoryData

	keyMu    sync.Mutex
	keyLocks map[string]*keyLock
}

// keyLock is dropped from keyLocks once no caller holds or waits on it.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Memory is an in-process implementation of models.Repository. Transactions
// hold the store's write lock and restore a snapshot on error.
type Memory struct {
	store *memoryStore
	inTx  bool
}

func NewMemory() *Memory {
	return &Memory{store: &memoryStore{
		data: &memoryData{
			decks:         make(map[string]*models.Deck),
			subscriptions: make(map[string]map[string]bool),
			cards:         make(map[string]*models.Card),
		},
		keyLocks: make(map[string]*keyLock),
	}}
}

func (m *Memory) rlock() func() {
	if m.inTx {
		return func() {}
	}
	m.store.mu.RLock()
	return m.store.mu.RUnlock
}

func (m *Memory) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.store.mu.Lock()
	return m.store.mu.Unlock
}

func (m *Memory) RunInTx(ctx context.Context, fn func(models.Repository) error) error {
	if m.inTx {
		return fn(m)
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	snapshot := m.store.data.clone()
	tx := &Memory{store: m.store, inTx: true}

	ok := false
	defer func() {
		if !ok {
			m.store.data = snapshot
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	ok = true
	return nil
}

// WithCardLock serializes fn per (user, card) key and runs it as one
// transaction, so a concurrent card deletion lands either before or after it.
func (m *Memory) WithCardLock(ctx context.Context, userID, cardID string, fn func(models.Repository) error) error {
	release := m.acquireKey(cardLockKey(userID, cardID))
	defer release()

	return m.RunInTx(ctx, fn)
}

func (m *Memory) acquireKey(key string) func() {
	m.store.keyMu.Lock()
	l, ok := m.store.keyLocks[key]
	if !ok {
		l = &keyLock{}
		m.store.keyLocks[key] = l
	}
	l.refs++
	m.store.keyMu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		m.store.keyMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.store.keyLocks, key)
		}
		m.store.keyMu.Unlock()
	}
}

func (m *Memory) CreateDeck(ctx context.Context, deck *models.Deck) error {
	defer m.lock()()

	if _, ok := m.store.data.decks[deck.ID]; ok {
		return fmt.Errorf("create deck (deck_id: %s): already exists", deck.ID)
	}

	cp := *deck
	if cp.Optimization.Status == "" {
		cp.Optimization.Status = models.OptimizationIdle
	}
	cp.Optimization.UpdatedAt = time.Now().UTC()
	m.store.data.decks[deck.ID] = &cp
	return nil
}

func (m *Memory) GetDeck(ctx context.Context, deckID string) (*models.Deck, error) {
	defer m.rlock()()

	deck, ok := m.store.data.decks[deckID]
	if !ok {
		return nil, fmt.Errorf("get deck (deck_id: %s): %w", deckID, models.ErrNotFound)
	}

	cp := *deck
	return &cp, nil
}

func (m *Memory) AddSubscription(ctx context.Context, deckID, userID string) error {
	defer m.lock()()

	users, ok := m.store.data.subscriptions[deckID]
	if !ok {
		users = make(map[string]bool)
		m.store.data.subscriptions[deckID] = users
	}
	users[userID] = true
	return nil
}

func (m *Memory) IsSubscribed(ctx context.Context, deckID, userID string) (bool, error) {
	defer m.rlock()()

	return m.store.data.subscriptions[deckID][userID], nil
}

func (m *Memory) UpdateDeckParams(ctx context.Context, deckID string, params models.FSRSParams, keepWeights bool) error {
	defer m.lock()()

	deck, ok := m.store.data.decks[deckID]
	if !ok {
		return fmt.Errorf("update deck params (deck_id: %s): %w", deckID, models.ErrNotFound)
	}
	if keepWeights {
		params.W = deck.Params.W
	}
	deck.Params = params
	return nil
}

func (m *Memory) IncrementLearnedCardCount(ctx context.Context, deckID string) (int, error) {
	defer m.lock()()

	deck, ok := m.store.data.decks[deckID]
	if !ok {
		return 0, fmt.Errorf("increment learned card count (deck_id: %s): %w", deckID, models.ErrNotFound)
	}
	deck.Optimization.LearnedCardCount++
	return deck.Optimization.LearnedCardCount, nil
}

func (m *Memory) TransitionOptimization(ctx context.Context, deckID string, to models.OptimizationStatus, message *string) (bool, error) {
	defer m.lock()()

	deck, ok := m.store.data.decks[deckID]
	if !ok || !deck.Optimization.Status.CanTransitionTo(to) {
		return false, nil
	}

	deck.Optimization.Status = to
	deck.Optimization.LastMessage = message
	deck.Optimization.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *Memory) CompleteOptimization(ctx context.Context, deckID string, weights models.Weights, at time.Time, message *string) (bool, error) {
	defer m.lock()()

	deck, ok := m.store.data.decks[deckID]
	if !ok || deck.Optimization.Status != models.OptimizationRunning {
		return false, nil
	}

	deck.Params.W = weights
	deck.Optimization.LearnedCardCount = 0
	deck.Optimization.LastOptimized = &at
	deck.Optimization.Status = models.OptimizationCompleted
	deck.Optimization.LastMessage = message
	deck.Optimization.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *Memory) FailStaleOptimizations(ctx context.Context, olderThan time.Time, message string) (int, error) {
	defer m.lock()()

	var n int
	for _, deck := range m.store.data.decks {
		if deck.Optimization.Status.InProgress() && deck.Optimization.UpdatedAt.Before(olderThan) {
			msg := message
			deck.Optimization.Status = models.OptimizationFailed
			deck.Optimization.LastMessage = &msg
			deck.Optimization.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreateCard(ctx context.Context, card *models.Card) error {
	defer m.lock()()

	if _, ok := m.store.data.decks[card.DeckID]; !ok {
		return fmt.Errorf("create card (card_id: %s, deck_id: %s): %w", card.ID, card.DeckID, models.ErrNotFound)
	}

	cp := *card
	m.store.data.cards[card.ID] = &cp
	return nil
}

func (m *Memory) GetCard(ctx context.Context, cardID string) (*models.Card, error) {
	defer m.rlock()()

	card, ok := m.store.data.cards[cardID]
	if !ok || card.Deleted {
		return nil, fmt.Errorf("get card (card_id: %s): %w", cardID, models.ErrNotFound)
	}

	cp := *card
	return &cp, nil
}

// LockCard reads a live card. Inside WithCardLock the snapshot transaction
// already excludes deletions.
func (m *Memory) LockCard(ctx context.Context, cardID string) (*models.Card, error) {
	return m.GetCard(ctx, cardID)
}

func (m *Memory) ListDeckCardIDs(ctx context.Context, deckID string) ([]string, error) {
	defer m.rlock()()

	var cards []*models.Card
	for _, card := range m.store.data.cards {
		if card.DeckID == deckID && !card.Deleted {
			cards = append(cards, card)
		}
	}

	sort.Slice(cards, func(i, j int) bool {
		if !cards[i].CreatedAt.Equal(cards[j].CreatedAt) {
			return cards[i].CreatedAt.Before(cards[j].CreatedAt)
		}
		return cards[i].ID < cards[j].ID
	})

	ids := make([]string, 0, len(cards))
	for _, card := range cards {
		ids = append(ids, card.ID)
	}
	return ids, nil
}

func (m *Memory) SoftDeleteCard(ctx context.Context, cardID string) error {
	defer m.lock()()

	card, ok := m.store.data.cards[cardID]
	if !ok || card.Deleted {
		return fmt.Errorf("delete card (card_id: %s): %w", cardID, models.ErrNotFound)
	}
	card.Deleted = true
	return nil
}

func (m *Memory) AppendReviewLog(ctx context.Context, entry *models.ReviewLog) error {
	defer m.lock()()

	cp := *entry
	m.store.data.logs = append(m.store.data.logs, &cp)
	return nil
}

// logBefore orders entries by review time, then id.
func logBefore(a, b *models.ReviewLog) bool {
	if !a.ReviewedAt.Equal(b.ReviewedAt) {
		return a.ReviewedAt.Before(b.ReviewedAt)
	}
	return a.ID < b.ID
}

func (m *Memory) LatestReviewLog(ctx context.Context, userID, cardID string) (*models.ReviewLog, error) {
	defer m.rlock()()

	var latest *models.ReviewLog
	for _, entry := range m.store.data.logs {
		if entry.Deleted || entry.UserID != userID || entry.CardID != cardID {
			continue
		}
		if latest == nil || logBefore(latest, entry) {
			latest = entry
		}
	}

	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *Memory) LatestReviewLogsForDeck(ctx context.Context, userID, deckID string) (map[string]*models.ReviewLog, error) {
	defer m.rlock()()

	latest := make(map[string]*models.ReviewLog)
	for _, entry := range m.store.data.logs {
		if entry.Deleted || entry.UserID != userID || entry.DeckID != deckID {
			continue
		}
		if cur, ok := latest[entry.CardID]; !ok || logBefore(cur, entry) {
			cp := *entry
			latest[entry.CardID] = &cp
		}
	}
	return latest, nil
}

func (m *Memory) ReviewLogsForDeck(ctx context.Context, userID, deckID string) ([]*models.ReviewLog, error) {
	defer m.rlock()()

	var entries []*models.ReviewLog
	for _, entry := range m.store.data.logs {
		if entry.Deleted || entry.UserID != userID || entry.DeckID != deckID {
			continue
		}
		cp := *entry
		entries = append(entries, &cp)
	}

	sort.Slice(entries, func(i, j int) bool {
		return logBefore(entries[i], entries[j])
	})
	return entries, nil
}

func (m *Memory) SoftDeleteCardReviewLogs(ctx context.Context, cardID string) error {
	defer m.lock()()

	for _, entry := range m.store.data.logs {
		if entry.CardID == cardID {
			entry.Deleted = true
		}
	}
	return nil
}
