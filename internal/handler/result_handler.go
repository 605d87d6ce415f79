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

type resultRecorder interface {
	ValidateGameResult(ctx context.Context, gameID string, req dto.ValidateResultRequest) (*dto.GameResultValidation, error)
	BatchUpdateResults(ctx context.Context, tournamentID string, req dto.BatchResultRequest, actor string) (*dto.BatchValidationResult, error)
	ApproveResult(ctx context.Context, gameID string, req dto.ApproveResultRequest, actor string) (*models.Game, error)
	GetGameAuditTrail(ctx context.Context, gameID string) ([]models.ResultAudit, error)
}

// ResultHandler exposes result entry, approval and the audit trail.
type ResultHandler struct {
	service resultRecorder
}

// NewResultHandler constructs the handler.
func NewResultHandler(svc *service.ResultService) *ResultHandler {
	return &ResultHandler{service: svc}
}

// Validate godoc
// @Summary Validate a proposed result
// @Description Checks a result against the game and round without storing it.
// @Tags Results
// @Accept json
// @Produce json
// @Param id path string true "Game ID"
// @Param payload body dto.ValidateResultRequest true "Proposed result"
// @Success 200 {object} response.Envelope
// @Router /games/{id}/result/validate [post]
func (h *ResultHandler) Validate(c *gin.Context) {
	var req dto.ValidateResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid result payload"))
		return
	}
	validation, err := h.service.ValidateGameResult(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, validation)
}

// Batch godoc
// @Summary Validate or apply a batch of results
// @Description All-or-nothing. A rejected batch answers 400 with the per-item verdicts in data.
// @Tags Results
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Tournament ID"
// @Param payload body dto.BatchResultRequest true "Result batch"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tournaments/{id}/results/batch [post]
func (h *ResultHandler) Batch(c *gin.Context) {
	var req dto.BatchResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid result batch"))
		return
	}
	result, err := h.service.BatchUpdateResults(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !result.OverallValid && !req.ValidateOnly {
		response.ErrorWithData(c, appErrors.Clone(appErrors.ErrValidation, "result batch rejected; nothing was applied"), result)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Approve godoc
// @Summary Approve an irregular result
// @Tags Results
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Game ID"
// @Param payload body dto.ApproveResultRequest false "Approval note"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /games/{id}/approve [post]
func (h *ResultHandler) Approve(c *gin.Context) {
	var req dto.ApproveResultRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid approval payload"))
			return
		}
	}
	game, err := h.service.ApproveResult(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, game)
}

// AuditTrail godoc
// @Summary Result history of a game
// @Tags Results
// @Produce json
// @Param id path string true "Game ID"
// @Success 200 {object} response.Envelope
// @Router /games/{id}/audit [get]
func (h *ResultHandler) AuditTrail(c *gin.Context) {
	records, err := h.service.GetGameAuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records)
}
