package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/swiss-arbiter-api/internal/dto"
	"github.com/noah-isme/swiss-arbiter-api/internal/models"
	"github.com/noah-isme/swiss-arbiter-api/internal/service"
	appErrors "github.com/noah-isme/swiss-arbiter-api/pkg/errors"
	"github.com/noah-isme/swiss-arbiter-api/pkg/response"
)

type standingsReader interface {
	GetStandings(ctx context.Context, tournamentID string, throughRound int) (*models.StandingsSnapshot, error)
}

type ratingCalculator interface {
	Calculate(playerRating, opponentRating int, score float64) (*service.RatingChangeDetail, error)
	History(ctx context.Context, playerID string) ([]models.RatingChange, error)
}

// StandingsHandler exposes standings and rating computations.
type StandingsHandler struct {
	standings standingsReader
	ratings   ratingCalculator
}

// NewStandingsHandler constructs the handler.
func NewStandingsHandler(standings *service.StandingsService, ratings *service.RatingService) *StandingsHandler {
	return &StandingsHandler{standings: standings, ratings: ratings}
}

// Standings godoc
// @Summary Tournament standings
// @Description Ranked table with the tournament's tiebreak values. throughRound limits the rounds counted; omitted means all.
// @Tags Standings
// @Produce json
// @Param id path string true "Tournament ID"
// @Param throughRound query int false "Last round to include"
// @Success 200 {object} response.Envelope
// @Router /tournaments/{id}/standings [get]
func (h *StandingsHandler) Standings(c *gin.Context) {
	var query dto.StandingsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid standings query"))
		return
	}
	table, err := h.standings.GetStandings(c.Request.Context(), c.Param("id"), query.ThroughRound)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, table, map[string]interface{}{"resultsVersion": table.ResultsVersion})
}

// RatingChange godoc
// @Summary Calculate an Elo rating change
// @Tags Ratings
// @Accept json
// @Produce json
// @Param payload body dto.RatingChangeRequest true "Ratings and score"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /ratings/change [post]
func (h *StandingsHandler) RatingChange(c *gin.Context) {
	var req dto.RatingChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid rating payload"))
		return
	}
	if req.Score == nil {
		response.Error(c, appErrors.Validation("invalid rating payload", appErrors.FieldError{Field: "score", Message: "score is required"}))
		return
	}
	detail, err := h.ratings.Calculate(req.PlayerRating, req.OpponentRating, *req.Score)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail)
}

// RatingHistory godoc
// @Summary Rating changes applied to a player
// @Tags Ratings
// @Produce json
// @Param id path string true "Player ID"
// @Success 200 {object} response.Envelope
// @Router /players/{id}/ratings [get]
func (h *StandingsHandler) RatingHistory(c *gin.Context) {
	changes, err := h.ratings.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, changes)
}
