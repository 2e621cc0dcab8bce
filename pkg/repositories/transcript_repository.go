package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medsim-inc/medsim-engine/pkg/database"
	"github.com/medsim-inc/medsim-engine/pkg/models"
)

// TranscriptRepository defines the interface for transcript data access.
// The transcript is append-only; there is no update or delete path.
type TranscriptRepository interface {
	Append(ctx context.Context, turn *models.TranscriptTurn) error
	// ListByVisit returns a visit's turns in timestamp order, with ties
	// broken by insertion order. asc=false reverses the order for
	// newest-first reads.
	ListByVisit(ctx context.Context, visitID uuid.UUID, asc bool) ([]*models.TranscriptTurn, error)
	CountByVisit(ctx context.Context, visitID uuid.UUID) (int, error)
}

// transcriptRepository implements TranscriptRepository using PostgreSQL.
type transcriptRepository struct {
	db *database.DB
}

// NewTranscriptRepository creates a new transcript repository.
func NewTranscriptRepository(db *database.DB) TranscriptRepository {
	return &transcriptRepository{db: db}
}

// Append inserts a new turn. The timestamp is assigned by the database so
// that ordering does not depend on writer clocks.
func (r *transcriptRepository) Append(ctx context.Context, turn *models.TranscriptTurn) error {
	query := `
		INSERT INTO visit_messages (id, visit_id, role, content, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING timestamp`

	err := r.db.QueryRow(ctx, query,
		turn.ID,
		turn.VisitID,
		turn.Role,
		turn.Content,
		turn.Metadata,
	).Scan(&turn.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append transcript turn: %w", err)
	}

	return nil
}

// ListByVisit returns a visit's turns in timestamp order.
func (r *transcriptRepository) ListByVisit(ctx context.Context, visitID uuid.UUID, asc bool) ([]*models.TranscriptTurn, error) {
	order := "ASC"
	if !asc {
		order = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT id, visit_id, role, content, timestamp, metadata
		FROM visit_messages
		WHERE visit_id = $1
		ORDER BY timestamp %s, seq %s`, order, order)

	rows, err := r.db.Query(ctx, query, visitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcript turns: %w", err)
	}
	defer rows.Close()

	var turns []*models.TranscriptTurn
	for rows.Next() {
		var t models.TranscriptTurn
		if err := rows.Scan(&t.ID, &t.VisitID, &t.Role, &t.Content, &t.Timestamp, &t.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan transcript turn: %w", err)
		}
		turns = append(turns, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transcript turns: %w", err)
	}

	return turns, nil
}

// CountByVisit returns the number of turns recorded for a visit.
func (r *transcriptRepository) CountByVisit(ctx context.Context, visitID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM visit_messages WHERE visit_id = $1`, visitID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transcript turns: %w", err)
	}
	return count, nil
}

var _ TranscriptRepository = (*transcriptRepository)(nil)
