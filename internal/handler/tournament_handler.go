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

type tournamentAdmin interface {
	CreateTournament(ctx context.Context, req dto.CreateTournamentRequest) (*models.Tournament, error)
	GetTournament(ctx context.Context, id string) (*dto.TournamentDetail, error)
	RegisterPlayer(ctx context.Context, tournamentID string, req dto.RegisterPlayerRequest) (*models.Player, error)
	ListPlayers(ctx context.Context, tournamentID string) ([]models.Player, error)
	ChangePlayerStatus(ctx context.Context, playerID string, req dto.UpdatePlayerStatusRequest, actor string) (*models.Player, error)
}

// TournamentHandler exposes tournament and player administration.
type TournamentHandler struct {
	service tournamentAdmin
}

// NewTournamentHandler constructs the handler.
func NewTournamentHandler(svc *service.TournamentService) *TournamentHandler {
	return &TournamentHandler{service: svc}
}

// Create godoc
// @Summary Create tournament
// @Description missedRoundPointPolicy is mandatory; tiebreaks, bye points and bye Buchholz policy fall back to server defaults.
// @Tags Tournaments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateTournamentRequest true "Tournament payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /tournaments [post]
func (h *TournamentHandler) Create(c *gin.Context) {
	var req dto.CreateTournamentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid tournament payload"))
		return
	}
	tournament, err := h.service.CreateTournament(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tournament)
}

// Get godoc
// @Summary Get tournament with players and rounds
// @Tags Tournaments
// @Produce json
// @Param id path string true "Tournament ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /tournaments/{id} [get]
func (h *TournamentHandler) Get(c *gin.Context) {
	detail, err := h.service.GetTournament(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail)
}

// RegisterPlayer godoc
// @Summary Register player
// @Description Late entries join at joinedRound, by default the round after the current one.
// @Tags Players
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Tournament ID"
// @Param payload body dto.RegisterPlayerRequest true "Player payload"
// @Success 201 {object} response.Envelope
// @Router /tournaments/{id}/players [post]
func (h *TournamentHandler) RegisterPlayer(c *gin.Context) {
	var req dto.RegisterPlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid player payload"))
		return
	}
	player, err := h.service.RegisterPlayer(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, player)
}

// ListPlayers godoc
// @Summary List players by rating
// @Tags Players
// @Produce json
// @Param id path string true "Tournament ID"
// @Success 200 {object} response.Envelope
// @Router /tournaments/{id}/players [get]
func (h *TournamentHandler) ListPlayers(c *gin.Context) {
	players, err := h.service.ListPlayers(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, players, map[string]interface{}{"total": len(players)})
}

// ChangeStatus godoc
// @Summary Change player status
// @Description Withdrawal records the tournament's current round as the last round the player counts in.
// @Tags Players
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Player ID"
// @Param payload body dto.UpdatePlayerStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /players/{id}/status [patch]
func (h *TournamentHandler) ChangeStatus(c *gin.Context) {
	var req dto.UpdatePlayerStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid status payload"))
		return
	}
	player, err := h.service.ChangePlayerStatus(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, player)
}
