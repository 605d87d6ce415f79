package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
)

// RatingRepository stores applied rating changes. (game_id, player_id) is unique so a
// game is never rated twice for the same player.
type RatingRepository struct {
	db *sqlx.DB
}

// NewRatingRepository constructs the repository.
func NewRatingRepository(db *sqlx.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

// Insert stores a change. Duplicates are skipped and reported as false.
func (r *RatingRepository) Insert(ctx context.Context, exec sqlx.ExtContext, change *models.RatingChange) (bool, error) {
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now().UTC()
	}
	var target sqlx.ExtContext = r.db
	if exec != nil {
		target = exec
	}
	const query = `INSERT INTO rating_changes
	(id, tournament_id, round_id, game_id, player_id, rating_before, opponent_rating, score, k_factor, delta, rating_after, created_at)
VALUES (:id, :tournament_id, :round_id, :game_id, :player_id, :rating_before, :opponent_rating, :score, :k_factor, :delta, :rating_after, :created_at)
ON CONFLICT (game_id, player_id) DO NOTHING`
	result, err := sqlx.NamedExecContext(ctx, target, query, change)
	if err != nil {
		return false, fmt.Errorf("insert rating change: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rating change rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListByPlayer returns a player's rating history.
func (r *RatingRepository) ListByPlayer(ctx context.Context, playerID string) ([]models.RatingChange, error) {
	const query = `SELECT id, tournament_id, round_id, game_id, player_id, rating_before, opponent_rating, score, k_factor, delta, rating_after, created_at
FROM rating_changes WHERE player_id = $1 ORDER BY created_at ASC, id ASC`
	var changes []models.RatingChange
	if err := r.db.SelectContext(ctx, &changes, query, playerID); err != nil {
		return nil, fmt.Errorf("list rating changes: %w", err)
	}
	return changes, nil
}
