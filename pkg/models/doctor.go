package models

import (
	"time"

	"github.com/google/uuid"
)

// Doctor personality types, used to pick persona-specific behavior
// (prompting, fallback utterances).
const (
	PersonalityDemanding  = "demanding"
	PersonalityQuiet      = "quiet"
	PersonalityAggressive = "aggressive"
	PersonalityRational   = "rational"
	PersonalityEmpathetic = "empathetic"
)

// Doctor is an AI doctor persona a visit is played against.
type Doctor struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	PersonalityType string    `json:"personality_type"`
	EmpathyLevel    int       `json:"empathy_level"` // 1-10 scale
	Specialty       string    `json:"specialty,omitempty"`
	PromptTemplate  string    `json:"prompt_template,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
