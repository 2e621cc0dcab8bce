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

// ScenarioRepository defines the interface for scenario data access.
type ScenarioRepository interface {
	GetActive(ctx context.Context, id uuid.UUID) (*models.Scenario, error)
	ListActive(ctx context.Context) ([]*models.Scenario, error)
}

// scenarioRepository implements ScenarioRepository using PostgreSQL.
type scenarioRepository struct {
	db *database.DB
}

// NewScenarioRepository creates a new scenario repository.
func NewScenarioRepository(db *database.DB) ScenarioRepository {
	return &scenarioRepository{db: db}
}

const scenarioColumns = `id, title, description, difficulty_level, prompt_template, is_active, created_at, updated_at`

// GetActive retrieves an active scenario by id. Deactivated scenarios are
// treated as not found so new visits cannot reference them.
func (r *scenarioRepository) GetActive(ctx context.Context, id uuid.UUID) (*models.Scenario, error) {
	query := `SELECT ` + scenarioColumns + ` FROM scenarios WHERE id = $1 AND is_active = TRUE`

	var s models.Scenario
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Title, &s.Description, &s.DifficultyLevel, &s.PromptTemplate,
		&s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get scenario: %w", err)
	}

	return &s, nil
}

// ListActive retrieves all active scenarios ordered by difficulty then title.
func (r *scenarioRepository) ListActive(ctx context.Context) ([]*models.Scenario, error) {
	query := `SELECT ` + scenarioColumns + ` FROM scenarios WHERE is_active = TRUE ORDER BY difficulty_level, title`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	defer rows.Close()

	var scenarios []*models.Scenario
	for rows.Next() {
		var s models.Scenario
		err := rows.Scan(
			&s.ID, &s.Title, &s.Description, &s.DifficultyLevel, &s.PromptTemplate,
			&s.IsActive, &s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scenario: %w", err)
		}
		scenarios = append(scenarios, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scenarios: %w", err)
	}

	return scenarios, nil
}

var _ ScenarioRepository = (*scenarioRepository)(nil)
