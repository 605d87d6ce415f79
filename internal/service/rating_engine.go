package service

import (
	"fmt"
	"math"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
	appErrors "github.com/noah-isme/swiss-arbiter-api/pkg/errors"
)

// RatingChangeDetail explains a computed rating delta.
type RatingChangeDetail struct {
	PlayerRating   int     `json:"playerRating"`
	OpponentRating int     `json:"opponentRating"`
	Score          float64 `json:"score"`
	Expected       float64 `json:"expected"`
	KFactor        int     `json:"kFactor"`
	Delta          int     `json:"delta"`
}

// RatingEngine computes Elo deltas.
type RatingEngine struct{}

// NewRatingEngine constructs the engine.
func NewRatingEngine() *RatingEngine {
	return &RatingEngine{}
}

// ExpectedScore is 1 / (1 + 10^((opponent - player) / 400)).
func ExpectedScore(playerRating, opponentRating int) float64 {
	return 1 / (1 + math.Pow(10, float64(opponentRating-playerRating)/400))
}

// KFactor tiers by the moving player's pre-game rating.
func KFactor(rating int) int {
	switch {
	case rating < 2100:
		return 32
	case rating < 2400:
		return 24
	default:
		return 16
	}
}

// CalculateRatingChange returns round(K × (score − E)).
func (e *RatingEngine) CalculateRatingChange(playerRating, opponentRating int, score float64) (int, error) {
	detail, err := e.Explain(playerRating, opponentRating, score)
	if err != nil {
		return 0, err
	}
	return detail.Delta, nil
}

// Explain validates the inputs and returns the full computation.
func (e *RatingEngine) Explain(playerRating, opponentRating int, score float64) (*RatingChangeDetail, error) {
	var fields []appErrors.FieldError
	if playerRating < models.MinRating || playerRating > models.MaxRating {
		fields = append(fields, appErrors.FieldError{Field: "playerRating", Message: fmt.Sprintf("must be between %d and %d", models.MinRating, models.MaxRating)})
	}
	if opponentRating < models.MinRating || opponentRating > models.MaxRating {
		fields = append(fields, appErrors.FieldError{Field: "opponentRating", Message: fmt.Sprintf("must be between %d and %d", models.MinRating, models.MaxRating)})
	}
	if score != 0 && score != 0.5 && score != 1 {
		fields = append(fields, appErrors.FieldError{Field: "score", Message: "must be 0, 0.5 or 1"})
	}
	if len(fields) > 0 {
		return nil, appErrors.Validation("invalid rating input", fields...)
	}

	expected := ExpectedScore(playerRating, opponentRating)
	k := KFactor(playerRating)
	return &RatingChangeDetail{
		PlayerRating:   playerRating,
		OpponentRating: opponentRating,
		Score:          score,
		Expected:       expected,
		KFactor:        k,
		Delta:          int(math.Round(float64(k) * (score - expected))),
	}, nil
}
