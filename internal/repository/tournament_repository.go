package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
)

const tournamentColumns = `id, name, total_rounds, current_round, pairing_system, tiebreaks, bye_points,
	bye_buchholz_policy, missed_round_policy, allow_rematches, results_version, created_at, updated_at`

// TournamentRepository persists tournaments and their version counters.
type TournamentRepository struct {
	db *sqlx.DB
}

// NewTournamentRepository constructs the repository.
func NewTournamentRepository(db *sqlx.DB) *TournamentRepository {
	return &TournamentRepository{db: db}
}

func (r *TournamentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a tournament.
func (r *TournamentRepository) Create(ctx context.Context, tournament *models.Tournament) error {
	if tournament.ID == "" {
		tournament.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	tournament.CreatedAt = now
	tournament.UpdatedAt = now

	const query = `INSERT INTO tournaments (` + tournamentColumns + `)
VALUES (:id, :name, :total_rounds, :current_round, :pairing_system, :tiebreaks, :bye_points,
	:bye_buchholz_policy, :missed_round_policy, :allow_rematches, :results_version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, tournament); err != nil {
		return fmt.Errorf("create tournament: %w", mapWriteError(err))
	}
	return nil
}

// FindByID loads a tournament. Missing rows surface as sql.ErrNoRows.
func (r *TournamentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	var tournament models.Tournament
	if err := sqlx.GetContext(ctx, r.exec(exec), &tournament, query, id); err != nil {
		return nil, err
	}
	return &tournament, nil
}

// LockForUpdate loads a tournament row with FOR UPDATE inside the caller's transaction.
func (r *TournamentRepository) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1 FOR UPDATE`
	var tournament models.Tournament
	if err := sqlx.GetContext(ctx, r.exec(exec), &tournament, query, id); err != nil {
		return nil, err
	}
	return &tournament, nil
}

// BumpResultsVersion increments the results stamp and returns the new value.
func (r *TournamentRepository) BumpResultsVersion(ctx context.Context, exec sqlx.ExtContext, id string) (int64, error) {
	const query = `UPDATE tournaments SET results_version = results_version + 1, updated_at = $2 WHERE id = $1 RETURNING results_version`
	var version int64
	if err := sqlx.GetContext(ctx, r.exec(exec), &version, query, id, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("bump results version: %w", err)
	}
	return version, nil
}

// AdvanceCurrentRound moves current_round forward to roundNumber; it never regresses.
func (r *TournamentRepository) AdvanceCurrentRound(ctx context.Context, exec sqlx.ExtContext, id string, roundNumber int) (bool, error) {
	const query = `UPDATE tournaments SET current_round = $2, updated_at = $3 WHERE id = $1 AND current_round < $2`
	result, err := r.exec(exec).ExecContext(ctx, query, id, roundNumber, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("advance current round: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance current round rows affected: %w", err)
	}
	return affected > 0, nil
}
