package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/medsim-inc/medsim-engine/pkg/apperrors"
	"github.com/medsim-inc/medsim-engine/pkg/database"
	"github.com/medsim-inc/medsim-engine/pkg/models"
)

// EvaluationRepository defines the interface for evaluation data access.
type EvaluationRepository interface {
	// Create inserts an evaluation, failing with ErrConflict when the
	// visit already has one.
	Create(ctx context.Context, eval *models.Evaluation) error
	GetByVisit(ctx context.Context, visitID uuid.UUID) (*models.Evaluation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Evaluation, error)
}

// evaluationRepository implements EvaluationRepository using PostgreSQL.
type evaluationRepository struct {
	db *database.DB
}

// NewEvaluationRepository creates a new evaluation repository.
func NewEvaluationRepository(db *database.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations, used to map the per-visit uniqueness constraint.
const uniqueViolation = "23505"

// Create inserts an evaluation. The per-visit uniqueness is enforced by
// the database constraint rather than a read-then-write check.
func (r *evaluationRepository) Create(ctx context.Context, eval *models.Evaluation) error {
	query := `
		INSERT INTO evaluations (id, visit_id, score, feedback_text, metrics_json, recommendations)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		eval.ID,
		eval.VisitID,
		eval.Score,
		eval.FeedbackText,
		eval.Metrics,
		eval.Recommendations,
	).Scan(&eval.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create evaluation: %w", err)
	}

	return nil
}

// GetByVisit retrieves the evaluation for a visit, if any.
func (r *evaluationRepository) GetByVisit(ctx context.Context, visitID uuid.UUID) (*models.Evaluation, error) {
	query := `
		SELECT id, visit_id, score, feedback_text, metrics_json, recommendations, created_at
		FROM evaluations
		WHERE visit_id = $1`

	var e models.Evaluation
	err := r.db.QueryRow(ctx, query, visitID).Scan(
		&e.ID, &e.VisitID, &e.Score, &e.FeedbackText, &e.Metrics, &e.Recommendations, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}

	return &e, nil
}

// ListByUser retrieves all evaluations for a user's visits, newest first.
func (r *evaluationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Evaluation, error) {
	query := `
		SELECT e.id, e.visit_id, e.score, e.feedback_text, e.metrics_json, e.recommendations, e.created_at
		FROM evaluations e
		JOIN visits v ON v.id = e.visit_id
		WHERE v.user_id = $1
		ORDER BY e.created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var evals []*models.Evaluation
	for rows.Next() {
		var e models.Evaluation
		if err := rows.Scan(&e.ID, &e.VisitID, &e.Score, &e.FeedbackText, &e.Metrics, &e.Recommendations, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		evals = append(evals, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating evaluations: %w", err)
	}

	return evals, nil
}

var _ EvaluationRepository = (*evaluationRepository)(nil)
