package models

import (
	"time"

	"github.com/google/uuid"
)

// Scenario difficulty levels.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
	DifficultyExpert       = "expert"
)

// Scenario describes the sales situation a visit simulates.
type Scenario struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	DifficultyLevel string    `json:"difficulty_level"`
	PromptTemplate  string    `json:"prompt_template,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
