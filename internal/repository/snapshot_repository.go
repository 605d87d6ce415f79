package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
)

// SnapshotRepository reads a tournament's full state from one consistent view so
// standings and pairings never observe a half-applied result batch.
type SnapshotRepository struct {
	db          *sqlx.DB
	tournaments *TournamentRepository
	players     *PlayerRepository
	rounds      *RoundRepository
	games       *GameRepository
}

// NewSnapshotRepository constructs the repository.
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{
		db:          db,
		tournaments: NewTournamentRepository(db),
		players:     NewPlayerRepository(db),
		rounds:      NewRoundRepository(db),
		games:       NewGameRepository(db),
	}
}

// Load reads tournament, players, rounds and games inside a read-only repeatable read
// transaction.
func (r *SnapshotRepository) Load(ctx context.Context, tournamentID string) (*models.TournamentSnapshot, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	tournament, err := r.tournaments.FindByID(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	players, err := r.players.ListByTournament(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	rounds, err := r.rounds.ListByTournament(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	games, err := r.games.ListByTournament(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit snapshot transaction: %w", err)
	}
	return &models.TournamentSnapshot{
		Tournament: *tournament,
		Players:    players,
		Rounds:     rounds,
		Games:      games,
	}, nil
}
