package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
)

// ResultAuditRepository is the append-only store of game result changes. It exposes no
// update or delete.
type ResultAuditRepository struct {
	db *sqlx.DB
}

// NewResultAuditRepository constructs the repository.
func NewResultAuditRepository(db *sqlx.DB) *ResultAuditRepository {
	return &ResultAuditRepository{db: db}
}

func (r *ResultAuditRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Append inserts a record and fills its database-assigned sequence.
func (r *ResultAuditRepository) Append(ctx context.Context, exec sqlx.ExtContext, record *models.ResultAudit) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.ChangedAt.IsZero() {
		record.ChangedAt = time.Now().UTC()
	}
	const query = `INSERT INTO game_result_audits
	(id, game_id, tournament_id, action, old_result, old_result_type, new_result, new_result_type, changed_by, changed_at, reason, approved)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING sequence`
	err := sqlx.GetContext(ctx, r.exec(exec), &record.Sequence, query,
		record.ID, record.GameID, record.TournamentID, record.Action, record.OldResult, record.OldResultType,
		record.NewResult, record.NewResultType, record.ChangedBy, record.ChangedAt, record.Reason, record.Approved)
	if err != nil {
		return fmt.Errorf("append result audit: %w", err)
	}
	return nil
}

// ListByGame returns a game's trail in causal order.
func (r *ResultAuditRepository) ListByGame(ctx context.Context, gameID string) ([]models.ResultAudit, error) {
	const query = `SELECT id, sequence, game_id, tournament_id, action, old_result, old_result_type, new_result,
	new_result_type, changed_by, changed_at, reason, approved
FROM game_result_audits WHERE game_id = $1 ORDER BY sequence ASC`
	var records []models.ResultAudit
	if err := r.db.SelectContext(ctx, &records, query, gameID); err != nil {
		return nil, fmt.Errorf("list result audits: %w", err)
	}
	return records, nil
}

// CountByTournament returns the number of audit records of a tournament.
func (r *ResultAuditRepository) CountByTournament(ctx context.Context, tournamentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM game_result_audits WHERE tournament_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, tournamentID); err != nil {
		return 0, fmt.Errorf("count result audits: %w", err)
	}
	return count, nil
}
