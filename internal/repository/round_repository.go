package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
)

const roundColumns = `id, tournament_id, round_number, status, created_at, completed_at, verified_at, verified_by`

// RoundRepository persists tournament rounds.
type RoundRepository struct {
	db *sqlx.DB
}

// NewRoundRepository constructs the repository.
func NewRoundRepository(db *sqlx.DB) *RoundRepository {
	return &RoundRepository{db: db}
}

func (r *RoundRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a planned round with the supplied number.
func (r *RoundRepository) Create(ctx context.Context, exec sqlx.ExtContext, round *models.Round) error {
	if round.TournamentID == "" || round.RoundNumber <= 0 {
		return fmt.Errorf("tournament_id and a positive round_number are required")
	}
	if round.ID == "" {
		round.ID = uuid.NewString()
	}
	round.Status = models.RoundStatusPlanned
	if round.CreatedAt.IsZero() {
		round.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO rounds (id, tournament_id, round_number, status, created_at)
VALUES (:id, :tournament_id, :round_number, :status, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, round); err != nil {
		return fmt.Errorf("insert round: %w", mapWriteError(err))
	}
	return nil
}

// CreateNext inserts a planned round numbered one past the tournament's highest round.
func (r *RoundRepository) CreateNext(ctx context.Context, exec sqlx.ExtContext, round *models.Round) error {
	if round.TournamentID == "" {
		return fmt.Errorf("tournament_id is required")
	}
	target := r.exec(exec)
	const nextNumberQuery = `SELECT COALESCE(MAX(round_number), 0) + 1 FROM rounds WHERE tournament_id = $1`
	if err := sqlx.GetContext(ctx, target, &round.RoundNumber, nextNumberQuery, round.TournamentID); err != nil {
		return fmt.Errorf("compute next round number: %w", err)
	}
	return r.Create(ctx, target, round)
}

// FindByID loads a round.
func (r *RoundRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE id = $1`
	var round models.Round
	if err := sqlx.GetContext(ctx, r.exec(exec), &round, query, id); err != nil {
		return nil, err
	}
	return &round, nil
}

// FindByNumber loads a round by its tournament-scoped number.
func (r *RoundRepository) FindByNumber(ctx context.Context, exec sqlx.ExtContext, tournamentID string, number int) (*models.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE tournament_id = $1 AND round_number = $2`
	var round models.Round
	if err := sqlx.GetContext(ctx, r.exec(exec), &round, query, tournamentID, number); err != nil {
		return nil, err
	}
	return &round, nil
}

// FindLatest returns the highest-numbered round, or sql.ErrNoRows when none exist.
func (r *RoundRepository) FindLatest(ctx context.Context, exec sqlx.ExtContext, tournamentID string) (*models.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE tournament_id = $1 ORDER BY round_number DESC LIMIT 1`
	var round models.Round
	if err := sqlx.GetContext(ctx, r.exec(exec), &round, query, tournamentID); err != nil {
		return nil, err
	}
	return &round, nil
}

// ListByTournament returns rounds in number order.
func (r *RoundRepository) ListByTournament(ctx context.Context, exec sqlx.ExtContext, tournamentID string) ([]models.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE tournament_id = $1 ORDER BY round_number ASC`
	var rounds []models.Round
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rounds, query, tournamentID); err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	return rounds, nil
}

// LockForUpdate loads a round with FOR UPDATE inside the caller's transaction.
func (r *RoundRepository) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE id = $1 FOR UPDATE`
	var round models.Round
	if err := sqlx.GetContext(ctx, r.exec(exec), &round, query, id); err != nil {
		return nil, err
	}
	return &round, nil
}

// UpdateStatusParams describes a check-and-set status change.
type UpdateStatusParams struct {
	RoundID  string
	Expected models.RoundStatus
	Target   models.RoundStatus
	Actor    string
	At       time.Time
}

// UpdateStatus moves a round from Expected to Target. completed_at and verified_at are
// only filled when still empty. ErrStaleState is returned when the stored status is no
// longer Expected.
func (r *RoundRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, params UpdateStatusParams) (*models.Round, error) {
	if params.At.IsZero() {
		params.At = time.Now().UTC()
	}
	markCompleted := params.Target == models.RoundStatusCompleted || params.Target == models.RoundStatusVerified
	markVerified := params.Target == models.RoundStatusVerified
	var verifiedBy *string
	if markVerified && params.Actor != "" {
		verifiedBy = &params.Actor
	}

	query := `UPDATE rounds SET
	status = $3,
	completed_at = CASE WHEN $4 THEN COALESCE(completed_at, $6) ELSE completed_at END,
	verified_at = CASE WHEN $5 THEN COALESCE(verified_at, $6) ELSE verified_at END,
	verified_by = CASE WHEN $5 THEN COALESCE(verified_by, $7) ELSE verified_by END
WHERE id = $1 AND (status = $2 OR ($2 = 'planned' AND status = 'upcoming'))
RETURNING ` + roundColumns

	var round models.Round
	err := sqlx.GetContext(ctx, r.exec(exec), &round, query,
		params.RoundID, params.Expected, params.Target, markCompleted, markVerified, params.At, verifiedBy)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrStaleState
		}
		return nil, fmt.Errorf("update round status: %w", err)
	}
	return &round, nil
}
