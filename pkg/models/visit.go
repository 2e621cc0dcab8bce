package models

import (
	"time"

	"github.com/google/uuid"
)

// Visit status values. A visit moves scheduled -> in_progress -> completed,
// with cancelled reachable from scheduled or in_progress. completed and
// cancelled are terminal.
const (
	VisitScheduled  = "scheduled"
	VisitInProgress = "in_progress"
	VisitCompleted  = "completed"
	VisitCancelled  = "cancelled"
)

// Recording status values for a visit. The egress id is retained after a
// stop as a durable reference to the finished artifact; RecordingStatus
// carries the at-most-one-active-recording invariant independently.
const (
	RecordingNone    = "none"
	RecordingActive  = "active"
	RecordingStopped = "stopped"
)

// legalTransitions is the visit status graph.
var legalTransitions = map[string][]string{
	VisitScheduled:  {VisitInProgress, VisitCancelled},
	VisitInProgress: {VisitCompleted, VisitCancelled},
	VisitCompleted:  {},
	VisitCancelled:  {},
}

// IsValidVisitStatus checks if the given status is a known visit status.
func IsValidVisitStatus(status string) bool {
	_, ok := legalTransitions[status]
	return ok
}

// CanTransition reports whether moving a visit from one status to
// another follows a legal edge of the state graph.
func CanTransition(from, to string) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Visit is one simulated sales-call session between a user and an
// AI-driven doctor persona. Status, egress id and timestamps are written
// only by the visit service's transition path.
type Visit struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	ScenarioID      uuid.UUID  `json:"scenario_id"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	Status          string     `json:"status"`
	RoomName        string     `json:"room_name"`
	EgressID        *string    `json:"egress_id,omitempty"`
	RecordingStatus string     `json:"recording_status"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Duration        *int       `json:"duration,omitempty"` // seconds, set once at completion
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// VisitSummary is a visit joined with its scenario and doctor headlines,
// the shape returned by the listing surfaces.
type VisitSummary struct {
	Visit
	ScenarioTitle   string `json:"scenario_title"`
	DifficultyLevel string `json:"difficulty_level"`
	DoctorName      string `json:"doctor_name"`
	PersonalityType string `json:"personality_type"`
}

// VisitContext is the full visit with its scenario and doctor persona,
// everything the agent worker needs to run a session autonomously.
type VisitContext struct {
	Visit    Visit    `json:"visit"`
	Scenario Scenario `json:"scenario"`
	Doctor   Doctor   `json:"doctor"`
}
