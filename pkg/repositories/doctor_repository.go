package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medsim-inc/medsim-engine/pkg/apperrors"
	"github.com/medsim-inc/medsim-engine/pkg/database"
	"github.com/medsim-inc/medsim-engine/pkg/models"
)

// DoctorRepository defines the interface for doctor persona data access.
type DoctorRepository interface {
	GetActive(ctx context.Context, id uuid.UUID) (*models.Doctor, error)
	ListActive(ctx context.Context) ([]*models.Doctor, error)
}

// doctorRepository implements DoctorRepository using PostgreSQL.
type doctorRepository struct {
	db *database.DB
}

// NewDoctorRepository creates a new doctor repository.
func NewDoctorRepository(db *database.DB) DoctorRepository {
	return &doctorRepository{db: db}
}

const doctorColumns = `id, name, personality_type, empathy_level, specialty, prompt_template, is_active, created_at, updated_at`

// GetActive retrieves an active doctor persona by id.
func (r *doctorRepository) GetActive(ctx context.Context, id uuid.UUID) (*models.Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE id = $1 AND is_active = TRUE`

	var d models.Doctor
	err := r.db.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.Name, &d.PersonalityType, &d.EmpathyLevel, &d.Specialty,
		&d.PromptTemplate, &d.IsActive, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get doctor: %w", err)
	}

	return &d, nil
}

// ListActive retrieves all active doctor personas ordered by name.
func (r *doctorRepository) ListActive(ctx context.Context) ([]*models.Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE is_active = TRUE ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list doctors: %w", err)
	}
	defer rows.Close()

	var doctors []*models.Doctor
	for rows.Next() {
		var d models.Doctor
		err := rows.Scan(
			&d.ID, &d.Name, &d.PersonalityType, &d.EmpathyLevel, &d.Specialty,
			&d.PromptTemplate, &d.IsActive, &d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan doctor: %w", err)
		}
		doctors = append(doctors, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating doctors: %w", err)
	}

	return doctors, nil
}

var _ DoctorRepository = (*doctorRepository)(nil)
