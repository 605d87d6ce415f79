package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/swiss-arbiter-api/internal/dto"
	"github.com/noah-isme/swiss-arbiter-api/internal/models"
	"github.com/noah-isme/swiss-arbiter-api/internal/service"
	"github.com/noah-isme/swiss-arbiter-api/pkg/response"
)

type roundLifecycle interface {
	CreateRound(ctx context.Context, tournamentID string, number int, actor string) (*models.Round, error)
	CreateNextRound(ctx context.Context, tournamentID, actor string) (*models.Round, error)
	GetRound(ctx context.Context, roundID string) (*models.RoundDetail, error)
	ListRounds(ctx context.Context, tournamentID string) ([]models.Round, error)
	UpdateRoundStatus(ctx context.Context, roundID string, req dto.UpdateRoundStatusRequest, actor string) (*dto.RoundTransitionResponse, error)
	CompleteRound(ctx context.Context, roundID, actor string) (*dto.RoundTransitionResponse, error)
}

// RoundHandler exposes the round lifecycle.
type RoundHandler struct {
	service roundLifecycle
}

// NewRoundHandler constructs the handler.
func NewRoundHandler(svc *service.RoundService) *RoundHandler {
	return &RoundHandler{service: svc}
}

// Create godoc
// @Summary Create round with explicit number
// @Description The number must be one past the latest round, and the latest round must be completed or verified.
// @Tags Rounds
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Tournament ID"
// @Param payload body dto.CreateRoundRequest true "Round payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tournaments/{id}/rounds [post]
func (h *RoundHandler) Create(c *gin.Context) {
	var req dto.CreateRoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid round payload"))
		return
	}
	round, err := h.service.CreateRound(c.Request.Context(), c.Param("id"), req.RoundNumber, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, round)
}

// CreateNext godoc
// @Summary Create the next round
// @Tags Rounds
// @Produce json
// @Security BearerAuth
// @Param id path string true "Tournament ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tournaments/{id}/rounds/next [post]
func (h *RoundHandler) CreateNext(c *gin.Context) {
	round, err := h.service.CreateNextRound(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, round)
}

// List godoc
// @Summary List rounds
// @Tags Rounds
// @Produce json
// @Param id path string true "Tournament ID"
// @Success 200 {object} response.Envelope
// @Router /tournaments/{id}/rounds [get]
func (h *RoundHandler) List(c *gin.Context) {
	rounds, err := h.service.ListRounds(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rounds)
}

// Get godoc
// @Summary Get round with games
// @Tags Rounds
// @Produce json
// @Param id path string true "Round ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /rounds/{id} [get]
func (h *RoundHandler) Get(c *gin.Context) {
	detail, err := h.service.GetRound(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail)
}

// UpdateStatus godoc
// @Summary Transition round status
// @Description Check-and-set: expectedStatus must match the stored status. Re-applying the current status is a no-op.
// @Tags Rounds
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Round ID"
// @Param payload body dto.UpdateRoundStatusRequest true "Transition payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /rounds/{id}/status [patch]
func (h *RoundHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateRoundStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid transition payload"))
		return
	}
	result, err := h.service.UpdateRoundStatus(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Complete godoc
// @Summary Complete round
// @Description Walks an in-progress or finishing round to completed once every game has a result, and applies rating changes.
// @Tags Rounds
// @Produce json
// @Security BearerAuth
// @Param id path string true "Round ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /rounds/{id}/complete [post]
func (h *RoundHandler) Complete(c *gin.Context) {
	result, err := h.service.CompleteRound(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
