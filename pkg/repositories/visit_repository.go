package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medsim-inc/medsim-engine/pkg/apperrors"
	"github.com/medsim-inc/medsim-engine/pkg/database"
	"github.com/medsim-inc/medsim-engine/pkg/models"
)

// VisitRepository defines the interface for visit data access.
type VisitRepository interface {
	Create(ctx context.Context, visit *models.Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Visit, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.VisitSummary, error)
	// GetContext loads the visit joined with its scenario and doctor.
	GetContext(ctx context.Context, id uuid.UUID) (*models.VisitContext, error)
	// WithLocked runs fn with the visit row locked FOR UPDATE, then
	// persists the visit's mutable fields and commits. Concurrent
	// transitions for the same visit serialize on the row lock; fn sees
	// the committed state of whichever transition won.
	WithLocked(ctx context.Context, id uuid.UUID, fn func(v *models.Visit) error) (*models.Visit, error)
	// MarkRecordingActive atomically attaches an egress id, failing with
	// ErrConflict if a recording is already active for the visit.
	MarkRecordingActive(ctx context.Context, id uuid.UUID, egressID string) error
	// MarkRecordingStopped flips the recording status to stopped. The
	// egress id is kept as a reference to the finished artifact.
	MarkRecordingStopped(ctx context.Context, id uuid.UUID) error
}

// visitRepository implements VisitRepository using PostgreSQL.
type visitRepository struct {
	db *database.DB
}

// NewVisitRepository creates a new visit repository.
func NewVisitRepository(db *database.DB) VisitRepository {
	return &visitRepository{db: db}
}

const visitColumns = `id, user_id, scenario_id, doctor_id, status, room_name,
	egress_id, recording_status, started_at, completed_at, duration, created_at, updated_at`

// Create inserts a new visit in scheduled status.
func (r *visitRepository) Create(ctx context.Context, visit *models.Visit) error {
	now := time.Now()
	visit.CreatedAt = now
	visit.UpdatedAt = now

	query := `
		INSERT INTO visits (id, user_id, scenario_id, doctor_id, status, room_name, recording_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		visit.ID,
		visit.UserID,
		visit.ScenarioID,
		visit.DoctorID,
		visit.Status,
		visit.RoomName,
		visit.RecordingStatus,
		visit.CreatedAt,
		visit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create visit: %w", err)
	}

	return nil
}

// GetByID retrieves a visit by id.
func (r *visitRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE id = $1`

	visit, err := scanVisit(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}

	return visit, nil
}

// ListByUser retrieves a user's visits, newest first, with scenario and
// doctor headlines.
func (r *visitRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.VisitSummary, error) {
	query := `
		SELECT v.id, v.user_id, v.scenario_id, v.doctor_id, v.status, v.room_name,
		       v.egress_id, v.recording_status, v.started_at, v.completed_at, v.duration,
		       v.created_at, v.updated_at,
		       s.title, s.difficulty_level, d.name, d.personality_type
		FROM visits v
		JOIN scenarios s ON s.id = v.scenario_id
		JOIN doctors d ON d.id = v.doctor_id
		WHERE v.user_id = $1
		ORDER BY v.created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	defer rows.Close()

	var summaries []*models.VisitSummary
	for rows.Next() {
		var s models.VisitSummary
		err := rows.Scan(
			&s.ID, &s.UserID, &s.ScenarioID, &s.DoctorID, &s.Status, &s.RoomName,
			&s.EgressID, &s.RecordingStatus, &s.StartedAt, &s.CompletedAt, &s.Duration,
			&s.CreatedAt, &s.UpdatedAt,
			&s.ScenarioTitle, &s.DifficultyLevel, &s.DoctorName, &s.PersonalityType,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		summaries = append(summaries, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating visits: %w", err)
	}

	return summaries, nil
}

// GetContext loads the visit joined with its scenario and doctor persona.
func (r *visitRepository) GetContext(ctx context.Context, id uuid.UUID) (*models.VisitContext, error) {
	query := `
		SELECT v.id, v.user_id, v.scenario_id, v.doctor_id, v.status, v.room_name,
		       v.egress_id, v.recording_status, v.started_at, v.completed_at, v.duration,
		       v.created_at, v.updated_at,
		       s.id, s.title, s.description, s.difficulty_level, s.prompt_template, s.is_active, s.created_at, s.updated_at,
		       d.id, d.name, d.personality_type, d.empathy_level, d.specialty, d.prompt_template, d.is_active, d.created_at, d.updated_at
		FROM visits v
		JOIN scenarios s ON s.id = v.scenario_id
		JOIN doctors d ON d.id = v.doctor_id
		WHERE v.id = $1`

	var vc models.VisitContext
	err := r.db.QueryRow(ctx, query, id).Scan(
		&vc.Visit.ID, &vc.Visit.UserID, &vc.Visit.ScenarioID, &vc.Visit.DoctorID,
		&vc.Visit.Status, &vc.Visit.RoomName, &vc.Visit.EgressID, &vc.Visit.RecordingStatus,
		&vc.Visit.StartedAt, &vc.Visit.CompletedAt, &vc.Visit.Duration,
		&vc.Visit.CreatedAt, &vc.Visit.UpdatedAt,
		&vc.Scenario.ID, &vc.Scenario.Title, &vc.Scenario.Description, &vc.Scenario.DifficultyLevel,
		&vc.Scenario.PromptTemplate, &vc.Scenario.IsActive, &vc.Scenario.CreatedAt, &vc.Scenario.UpdatedAt,
		&vc.Doctor.ID, &vc.Doctor.Name, &vc.Doctor.PersonalityType, &vc.Doctor.EmpathyLevel,
		&vc.Doctor.Specialty, &vc.Doctor.PromptTemplate, &vc.Doctor.IsActive,
		&vc.Doctor.CreatedAt, &vc.Doctor.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get visit context: %w", err)
	}

	return &vc, nil
}

// WithLocked runs fn with the visit row locked and persists the result.
func (r *visitRepository) WithLocked(ctx context.Context, id uuid.UUID, fn func(v *models.Visit) error) (*models.Visit, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := `SELECT ` + visitColumns + ` FROM visits WHERE id = $1 FOR UPDATE`

	visit, err := scanVisit(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = apperrors.ErrNotFound
			return nil, err
		}
		return nil, fmt.Errorf("failed to lock visit: %w", err)
	}

	if err = fn(visit); err != nil {
		return nil, err
	}

	visit.UpdatedAt = time.Now()

	updateQuery := `
		UPDATE visits
		SET status = $1, egress_id = $2, recording_status = $3, started_at = $4,
		    completed_at = $5, duration = $6, updated_at = $7
		WHERE id = $8`

	_, err = tx.Exec(ctx, updateQuery,
		visit.Status,
		visit.EgressID,
		visit.RecordingStatus,
		visit.StartedAt,
		visit.CompletedAt,
		visit.Duration,
		visit.UpdatedAt,
		visit.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update visit: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return visit, nil
}

// MarkRecordingActive atomically attaches an egress id to the visit.
func (r *visitRepository) MarkRecordingActive(ctx context.Context, id uuid.UUID, egressID string) error {
	query := `
		UPDATE visits
		SET egress_id = $1, recording_status = $2, updated_at = $3
		WHERE id = $4 AND recording_status <> $2`

	result, err := r.db.Exec(ctx, query, egressID, models.RecordingActive, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark recording active: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Distinguish a missing visit from an already-active recording.
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM visits WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check visit existence: %w", err)
		}
		if !exists {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrConflict
	}

	return nil
}

// MarkRecordingStopped flips the recording status to stopped.
func (r *visitRepository) MarkRecordingStopped(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE visits
		SET recording_status = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.Exec(ctx, query, models.RecordingStopped, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark recording stopped: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// scanVisit scans a visit from a single-row query.
func scanVisit(row pgx.Row) (*models.Visit, error) {
	var v models.Visit
	err := row.Scan(
		&v.ID, &v.UserID, &v.ScenarioID, &v.DoctorID, &v.Status, &v.RoomName,
		&v.EgressID, &v.RecordingStatus, &v.StartedAt, &v.CompletedAt, &v.Duration,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Ensure visitRepository implements VisitRepository at compile time.
var _ VisitRepository = (*visitRepository)(nil)
