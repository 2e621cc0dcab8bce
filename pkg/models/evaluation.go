package models

import (
	"time"

	"github.com/google/uuid"
)

// Evaluation is the scored assessment of a completed visit's transcript.
// At most one evaluation exists per visit and it is never updated.
type Evaluation struct {
	ID              uuid.UUID      `json:"id"`
	VisitID         uuid.UUID      `json:"visit_id"`
	Score           int            `json:"score"` // 0-100
	FeedbackText    string         `json:"feedback_text"`
	Metrics         map[string]any `json:"metrics,omitempty"`
	Recommendations []string       `json:"recommendations"`
	CreatedAt       time.Time      `json:"created_at"`
}

// ClampScore forces a provider-reported score into the valid 0-100 range.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
