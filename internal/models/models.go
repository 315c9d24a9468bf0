package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

type Rating int

const (
	RatingAgain Rating = iota + 1
	RatingHard
	RatingGood
	RatingEasy
)

func (r Rating) IsValid() bool {
	return r >= RatingAgain && r <= RatingEasy
}

func (r Rating) String() string {
	switch r {
	case RatingAgain:
		return "AGAIN"
	case RatingHard:
		return "HARD"
	case RatingGood:
		return "GOOD"
	case RatingEasy:
		return "EASY"
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

type State string

const (
	StateNew        State = "NEW"
	StateLearning   State = "LEARNING"
	StateReview     State = "REVIEW"
	StateRelearning State = "RELEARNING"
)

// Ordinal is the numeric state code the optimizer service expects.
func (s State) Ordinal() int {
	switch s {
	case StateLearning:
		return 1
	case StateReview:
		return 2
	case StateRelearning:
		return 3
	}
	return 0
}

func (s State) IsValid() bool {
	switch s {
	case StateNew, StateLearning, StateReview, StateRelearning:
		return true
	}
	return false
}

// WeightCount is the length of the FSRS-5 weight vector.
const WeightCount = 19

// Weights is the FSRS-5 weight vector. It is stored as a JSON array.
type Weights [WeightCount]float64

func (w Weights) MarshalJSON() ([]byte, error) {
	return json.Marshal([WeightCount]float64(w))
}

func (w *Weights) UnmarshalJSON(data []byte) error {
	var values []float64
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("decode weights: %w", err)
	}

	parsed, err := WeightsFromSlice(values)
	if err != nil {
		return err
	}

	*w = parsed
	return nil
}

func (w Weights) Value() (driver.Value, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (w *Weights) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return w.UnmarshalJSON(v)
	case string:
		return w.UnmarshalJSON([]byte(v))
	case nil:
		return fmt.Errorf("scan weights: null value")
	}
	return fmt.Errorf("scan weights: unsupported type %T", src)
}

// WeightsFromSlice converts an optimizer response into a weight vector,
// rejecting vectors of the wrong length or with non-finite values.
func WeightsFromSlice(values []float64) (Weights, error) {
	var w Weights
	if len(values) != WeightCount {
		return w, fmt.Errorf("%w: expected %d weights, got %d", ErrInvalidInput, WeightCount, len(values))
	}

	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return w, fmt.Errorf("%w: weight w[%d] is not finite", ErrInvalidInput, i)
		}
		w[i] = v
	}

	return w, nil
}

// Tags is a card's tag list, stored as a JSON array.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (t *Tags) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*t = nil
		return nil
	default:
		return fmt.Errorf("scan tags: unsupported type %T", src)
	}
	return json.Unmarshal(data, (*[]string)(t))
}

type FSRSParams struct {
	RequestRetention float64 `json:"request_retention" db:"request_retention"`
	MaximumInterval  int     `json:"maximum_interval" db:"maximum_interval"`
	W                Weights `json:"w" db:"w"`
	EnableFuzz       bool    `json:"enable_fuzz" db:"enable_fuzz"`
	EnableShortTerm  bool    `json:"enable_short_term" db:"enable_short_term"`
	CardLimit        int     `json:"card_limit" db:"card_limit"`
	Lapses           int     `json:"lapses" db:"lapses"`
}

type Deck struct {
	ID        string    `db:"id"`
	OwnerID   string    `db:"owner_id"`
	Name      string    `db:"name"`
	IsPublic  bool      `db:"is_public"`
	CreatedAt time.Time `db:"created_at"`

	Params       FSRSParams        `db:"-"`
	Optimization OptimizationState `db:"-"`
}

type Card struct {
	ID        string    `db:"id" json:"id"`
	DeckID    string    `db:"deck_id" json:"deckId"`
	Front     string    `db:"front" json:"front"`
	Back      string    `db:"back" json:"back"`
	Tags      Tags      `db:"tags" json:"tags"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	Deleted   bool      `db:"deleted" json:"-"`
}

// ReviewLog is one immutable graded review. Rows are only ever inserted
// or soft-deleted.
type ReviewLog struct {
	ID                  string    `db:"id"`
	UserID              string    `db:"user_id"`
	CardID              string    `db:"card_id"`
	DeckID              string    `db:"deck_id"`
	ReviewedAt          time.Time `db:"reviewed_at"`
	Rating              Rating    `db:"rating"`
	PriorState          State     `db:"prior_state"`
	ResultingState      State     `db:"resulting_state"`
	ResultingDue        time.Time `db:"resulting_due"`
	ResultingStability  float64   `db:"resulting_stability"`
	ResultingDifficulty float64   `db:"resulting_difficulty"`
	ElapsedDays         float64   `db:"elapsed_days"`
	ScheduledDays       int       `db:"scheduled_days"`
	ReviewDurationMs    int64     `db:"review_duration_ms"`
	Reps                int       `db:"reps"`
	Lapses              int       `db:"lapses"`
	Step                int       `db:"step"`
	Deleted             bool      `db:"deleted"`
}

// MemoryState is the scheduling state of a (user, card) pair. It is never
// stored; see MemoryStateFromLog.
type MemoryState struct {
	State       State      `json:"state"`
	Due         time.Time  `json:"due"`
	ElapsedDays float64    `json:"elapsedDays"`
	Stability   float64    `json:"stability"`
	Difficulty  float64    `json:"difficulty"`
	LastReview  *time.Time `json:"lastReview"`
	Reps        int        `json:"reps"`
	Lapses      int        `json:"lapses"`
	Step        int        `json:"step"`
}

// MemoryStateFromLog projects the latest review of a card into its memory
// state. A nil entry yields the state of a card that was never reviewed.
func MemoryStateFromLog(entry *ReviewLog) MemoryState {
	if entry == nil {
		return MemoryState{State: StateNew}
	}

	reviewedAt := entry.ReviewedAt
	return MemoryState{
		State:       entry.ResultingState,
		Due:         entry.ResultingDue,
		ElapsedDays: entry.ElapsedDays,
		Stability:   entry.ResultingStability,
		Difficulty:  entry.ResultingDifficulty,
		LastReview:  &reviewedAt,
		Reps:        entry.Reps,
		Lapses:      entry.Lapses,
		Step:        entry.Step,
	}
}

type ReviewResult struct {
	State    State     `json:"state"`
	Due      time.Time `json:"due"`
	Interval int       `json:"interval"`
}

type CardMemory struct {
	CardID         string      `json:"cardId"`
	Memory         MemoryState `json:"memory"`
	Retrievability float64     `json:"retrievability"`
}
