package optimizerapi

// ReviewLog is one review in the shape the optimizer service fits on.
type ReviewLog struct {
	CardID         string `json:"card_id"`
	ReviewTime     int64  `json:"review_time"`
	ReviewRating   int    `json:"review_rating"`
	ReviewState    int    `json:"review_state"`
	ReviewDuration int64  `json:"review_duration"`
}

type Request struct {
	ReviewLogs []ReviewLog `json:"review_logs"`
	Timezone   string      `json:"timezone"`
	DayStart   int         `json:"day_start"`
}

type Response struct {
	Success       bool      `json:"success"`
	Weights       []float64 `json:"weights"`
	Message       string    `json:"message"`
	ReviewCount   int       `json:"review_count"`
	RetentionRate *float64  `json:"retention_rate,omitempty"`
}
