package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
)

const gameColumns = `id, tournament_id, round_id, round_number, board_number, white_player_id, black_player_id,
	result, result_type, result_reason, arbiter_notes, requires_approval, approved, created_at, updated_at`

// GameRepository persists boards and their results.
type GameRepository struct {
	db *sqlx.DB
}

// NewGameRepository constructs the repository.
func NewGameRepository(db *sqlx.DB) *GameRepository {
	return &GameRepository{db: db}
}

func (r *GameRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertBatch stores the confirmed boards of a round.
func (r *GameRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, games []models.Game) error {
	if len(games) == 0 {
		return nil
	}
	now := time.Now().UTC()
	target := r.exec(exec)
	const query = `INSERT INTO games (` + gameColumns + `)
VALUES (:id, :tournament_id, :round_id, :round_number, :board_number, :white_player_id, :black_player_id,
	:result, :result_type, :result_reason, :arbiter_notes, :requires_approval, :approved, :created_at, :updated_at)`
	for i := range games {
		if games[i].ID == "" {
			games[i].ID = uuid.NewString()
		}
		games[i].CreatedAt = now
		games[i].UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, target, query, games[i]); err != nil {
			return fmt.Errorf("insert game board %d: %w", games[i].BoardNumber, mapWriteError(err))
		}
	}
	return nil
}

// FindByID loads a game.
func (r *GameRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = $1`
	var game models.Game
	if err := sqlx.GetContext(ctx, r.exec(exec), &game, query, id); err != nil {
		return nil, err
	}
	return &game, nil
}

// ListByRound returns the boards of a round in board order.
func (r *GameRepository) ListByRound(ctx context.Context, exec sqlx.ExtContext, roundID string) ([]models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE round_id = $1 ORDER BY board_number ASC`
	var games []models.Game
	if err := sqlx.SelectContext(ctx, r.exec(exec), &games, query, roundID); err != nil {
		return nil, fmt.Errorf("list round games: %w", err)
	}
	return games, nil
}

// ListByTournament returns every game of a tournament ordered by round then board.
func (r *GameRepository) ListByTournament(ctx context.Context, exec sqlx.ExtContext, tournamentID string) ([]models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE tournament_id = $1 ORDER BY round_number ASC, board_number ASC`
	var games []models.Game
	if err := sqlx.SelectContext(ctx, r.exec(exec), &games, query, tournamentID); err != nil {
		return nil, fmt.Errorf("list tournament games: %w", err)
	}
	return games, nil
}

// UpdateResultParams describes a check-and-set result change.
type UpdateResultParams struct {
	GameID           string
	OldResult        *models.ResultValue
	OldResultType    *models.ResultType
	Result           models.ResultValue
	ResultType       models.ResultType
	Reason           *string
	Notes            *string
	RequiresApproval bool
	Approved         bool
}

// UpdateResult writes a new result only if the stored result still equals the old one.
func (r *GameRepository) UpdateResult(ctx context.Context, exec sqlx.ExtContext, params UpdateResultParams) error {
	const query = `UPDATE games SET
	result = $4, result_type = $5, result_reason = $6, arbiter_notes = COALESCE($7, arbiter_notes),
	requires_approval = $8, approved = $9, updated_at = $10
WHERE id = $1 AND result IS NOT DISTINCT FROM $2 AND result_type IS NOT DISTINCT FROM $3`
	result, err := r.exec(exec).ExecContext(ctx, query,
		params.GameID, params.OldResult, params.OldResultType, params.Result, params.ResultType,
		params.Reason, params.Notes, params.RequiresApproval, params.Approved, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update game result: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("game result rows affected: %w", err)
	}
	if affected == 0 {
		return ErrStaleState
	}
	return nil
}

// Approve marks a pending irregular result as approved. It reports whether a row changed.
func (r *GameRepository) Approve(ctx context.Context, exec sqlx.ExtContext, gameID string) (bool, error) {
	const query = `UPDATE games SET approved = TRUE, updated_at = $2 WHERE id = $1 AND approved = FALSE AND result IS NOT NULL`
	result, err := r.exec(exec).ExecContext(ctx, query, gameID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("approve game result: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("approve rows affected: %w", err)
	}
	return affected > 0, nil
}
