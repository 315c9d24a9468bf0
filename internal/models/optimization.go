package models

import "time"

type OptimizationStatus string

const (
	OptimizationIdle      OptimizationStatus = "IDLE"
	OptimizationPending   OptimizationStatus = "PENDING"
	OptimizationRunning   OptimizationStatus = "RUNNING"
	OptimizationCompleted OptimizationStatus = "COMPLETED"
	OptimizationFailed    OptimizationStatus = "FAILED"
)

// InProgress reports whether the status acts as the deck's optimization lock.
func (s OptimizationStatus) InProgress() bool {
	return s == OptimizationPending || s == OptimizationRunning
}

// Predecessors lists the statuses from which a deck may move to s.
func (s OptimizationStatus) Predecessors() []OptimizationStatus {
	switch s {
	case OptimizationPending:
		return []OptimizationStatus{OptimizationIdle, OptimizationCompleted, OptimizationFailed}
	case OptimizationRunning:
		return []OptimizationStatus{OptimizationPending}
	case OptimizationCompleted:
		return []OptimizationStatus{OptimizationRunning}
	case OptimizationFailed:
		return []OptimizationStatus{OptimizationPending, OptimizationRunning}
	}
	return nil
}

func (s OptimizationStatus) CanTransitionTo(next OptimizationStatus) bool {
	for _, from := range next.Predecessors() {
		if from == s {
			return true
		}
	}
	return false
}

type OptimizationState struct {
	LearnedCardCount int                `db:"learned_card_count" json:"learnedCardCount"`
	LastOptimized    *time.Time         `db:"last_optimized" json:"lastOptimized"`
	Status           OptimizationStatus `db:"optimization_status" json:"status"`
	LastMessage      *string            `db:"optimization_message" json:"message"`
	UpdatedAt        time.Time          `db:"optimization_updated_at" json:"-"`
}

// OptimizationStatusView is the polling response for a deck's optimizer.
type OptimizationStatusView struct {
	LearnedCardCount int                `json:"learnedCardCount"`
	LastOptimized    *time.Time         `json:"lastOptimized"`
	Status           OptimizationStatus `json:"status"`
	Message          *string            `json:"message"`
	Threshold        int                `json:"threshold"`
}

const (
	ResultCodeInProgress       = "in_progress"
	ResultCodeInsufficientData = "insufficient_data"
	ResultCodeUpstreamFailure  = "upstream_failure"
)

type OptimizationResult struct {
	Success       bool      `json:"success"`
	Weights       []float64 `json:"weights"`
	Message       string    `json:"message"`
	ReviewCount   int       `json:"review_count"`
	RetentionRate *float64  `json:"retention_rate,omitempty"`
	Code          string    `json:"code,omitempty"`
}
