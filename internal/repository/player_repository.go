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

const playerColumns = `id, tournament_id, name, rating, status, joined_round, withdrawn_after_round, created_at, updated_at`

// PlayerRepository persists tournament participants.
type PlayerRepository struct {
	db *sqlx.DB
}

// NewPlayerRepository constructs the repository.
func NewPlayerRepository(db *sqlx.DB) *PlayerRepository {
	return &PlayerRepository{db: db}
}

func (r *PlayerRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create registers a player.
func (r *PlayerRepository) Create(ctx context.Context, exec sqlx.ExtContext, player *models.Player) error {
	if player.ID == "" {
		player.ID = uuid.NewString()
	}
	if player.Status == "" {
		player.Status = models.PlayerStatusActive
	}
	now := time.Now().UTC()
	player.CreatedAt = now
	player.UpdatedAt = now

	const query = `INSERT INTO players (` + playerColumns + `)
VALUES (:id, :tournament_id, :name, :rating, :status, :joined_round, :withdrawn_after_round, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, player); err != nil {
		return fmt.Errorf("create player: %w", mapWriteError(err))
	}
	return nil
}

// FindByID loads a player.
func (r *PlayerRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`
	var player models.Player
	if err := sqlx.GetContext(ctx, r.exec(exec), &player, query, id); err != nil {
		return nil, err
	}
	return &player, nil
}

// ListByTournament returns the field ordered by rating then id.
func (r *PlayerRepository) ListByTournament(ctx context.Context, exec sqlx.ExtContext, tournamentID string) ([]models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE tournament_id = $1 ORDER BY rating DESC, id ASC`
	var players []models.Player
	if err := sqlx.SelectContext(ctx, r.exec(exec), &players, query, tournamentID); err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return players, nil
}

// UpdateStatus changes a player's status. withdrawnAfter is recorded when withdrawing.
func (r *PlayerRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.PlayerStatus, withdrawnAfter *int) error {
	const query = `UPDATE players SET status = $2, withdrawn_after_round = $3, updated_at = $4 WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id, status, withdrawnAfter, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update player status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("player status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateRating stores a player's post-round rating.
func (r *PlayerRepository) UpdateRating(ctx context.Context, exec sqlx.ExtContext, id string, rating int) error {
	const query = `UPDATE players SET rating = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, rating, time.Now().UTC()); err != nil {
		return fmt.Errorf("update player rating: %w", err)
	}
	return nil
}
