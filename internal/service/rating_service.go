package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
)

type ratingStore interface {
	Insert(ctx context.Context, exec sqlx.ExtContext, change *models.RatingChange) (bool, error)
	ListByPlayer(ctx context.Context, playerID string) ([]models.RatingChange, error)
}

type ratingPlayerStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Player, error)
	UpdateRating(ctx context.Context, exec sqlx.ExtContext, id string, rating int) error
}

// RatingService applies Elo changes for confirmed games.
type RatingService struct {
	engine  *RatingEngine
	changes ratingStore
	players ratingPlayerStore
	games   roundGameReader
	logger  *zap.Logger
}

// NewRatingService constructs the service.
func NewRatingService(engine *RatingEngine, changes ratingStore, players ratingPlayerStore, games roundGameReader, logger *zap.Logger) *RatingService {
	if engine == nil {
		engine = NewRatingEngine()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RatingService{engine: engine, changes: changes, players: players, games: games, logger: logger}
}

// Calculate exposes the pure rating computation.
func (s *RatingService) Calculate(playerRating, opponentRating int, score float64) (*RatingChangeDetail, error) {
	return s.engine.Explain(playerRating, opponentRating, score)
}

// History returns a player's applied rating changes.
func (s *RatingService) History(ctx context.Context, playerID string) ([]models.RatingChange, error) {
	if _, err := s.players.FindByID(ctx, nil, playerID); err != nil {
		return nil, storeError(err, "player not found")
	}
	changes, err := s.changes.ListByPlayer(ctx, playerID)
	if err != nil {
		return nil, storeError(err, "")
	}
	return changes, nil
}

// ApplyRound rates every played and approved game of the round inside exec and returns
// the number of games rated. Games already rated are skipped. Both deltas of a game are
// computed from the pre-game ratings.
func (s *RatingService) ApplyRound(ctx context.Context, exec sqlx.ExtContext, round models.Round) (int, error) {
	games, err := s.games.ListByRound(ctx, exec, round.ID)
	if err != nil {
		return 0, storeError(err, "")
	}
	applied := 0
	for _, game := range games {
		if game.IsBye() || !game.Approved {
			continue
		}
		outcome, err := game.Outcome()
		if err != nil || outcome == nil || !outcome.Played() {
			continue
		}
		white, err := s.players.FindByID(ctx, exec, game.WhitePlayerID)
		if err != nil {
			return applied, storeError(err, "player not found")
		}
		black, err := s.players.FindByID(ctx, exec, *game.BlackPlayerID)
		if err != nil {
			return applied, storeError(err, "player not found")
		}

		sides := []struct {
			player   *models.Player
			opponent *models.Player
			score    float64
		}{
			{white, black, outcome.Score(models.ColorWhite)},
			{black, white, outcome.Score(models.ColorBlack)},
		}
		updates := make(map[string]int, 2)
		for _, side := range sides {
			detail, err := s.engine.Explain(side.player.Rating, side.opponent.Rating, side.score)
			if err != nil {
				return applied, err
			}
			change := &models.RatingChange{
				TournamentID:   round.TournamentID,
				RoundID:        round.ID,
				GameID:         game.ID,
				PlayerID:       side.player.ID,
				RatingBefore:   side.player.Rating,
				OpponentRating: side.opponent.Rating,
				Score:          side.score,
				KFactor:        detail.KFactor,
				Delta:          detail.Delta,
				RatingAfter:    clampRating(side.player.Rating + detail.Delta),
			}
			inserted, err := s.changes.Insert(ctx, exec, change)
			if err != nil {
				return applied, storeError(err, "")
			}
			if inserted {
				updates[side.player.ID] = change.RatingAfter
			}
		}
		for playerID, rating := range updates {
			if err := s.players.UpdateRating(ctx, exec, playerID, rating); err != nil {
				return applied, storeError(err, "")
			}
		}
		if len(updates) > 0 {
			applied++
		}
	}
	if applied > 0 {
		s.logger.Info("ratings applied", zap.String("round_id", round.ID), zap.Int("games", applied))
	}
	return applied, nil
}

func clampRating(rating int) int {
	if rating < models.MinRating {
		return models.MinRating
	}
	if rating > models.MaxRating {
		return models.MaxRating
	}
	return rating
}
