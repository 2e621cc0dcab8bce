package models

import (
	"time"

	"github.com/google/uuid"
)

// Transcript speaker roles. The rep side arrives from the client after
// local transcription; the doctor side arrives from the agent worker.
const (
	SpeakerRep    = "rep"
	SpeakerDoctor = "doctor"
)

// IsValidSpeaker checks if the given role is an allowed transcript speaker.
func IsValidSpeaker(role string) bool {
	return role == SpeakerRep || role == SpeakerDoctor
}

// TranscriptTurn is one timestamped utterance within a visit. Turns are
// immutable once written; read order is timestamp order with insertion
// order breaking ties.
type TranscriptTurn struct {
	ID        uuid.UUID      `json:"id"`
	VisitID   uuid.UUID      `json:"visit_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
