package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/swiss-arbiter-api/internal/dto"
	"github.com/noah-isme/swiss-arbiter-api/internal/service"
	"github.com/noah-isme/swiss-arbiter-api/pkg/response"
)

type pairingWorkflow interface {
	GeneratePairings(ctx context.Context, tournamentID string, roundNumber int, req dto.GeneratePairingsRequest) (*dto.PairingProposal, error)
	ConfirmPairings(ctx context.Context, tournamentID string, roundNumber int, req dto.ConfirmPairingsRequest, actor string) (*dto.ConfirmPairingsResponse, error)
}

// PairingHandler exposes pairing generation and confirmation.
type PairingHandler struct {
	service pairingWorkflow
}

// NewPairingHandler constructs the handler.
func NewPairingHandler(svc *service.PairingService) *PairingHandler {
	return &PairingHandler{service: svc}
}

// Generate godoc
// @Summary Generate pairing proposal
// @Description Computes pairings for a round in status pairing. Nothing is stored except the proposal, which expires.
// @Tags Pairings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Tournament ID"
// @Param number path int true "Round number"
// @Param payload body dto.GeneratePairingsRequest false "Method and options"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /tournaments/{id}/rounds/{number}/pairings/generate [post]
func (h *PairingHandler) Generate(c *gin.Context) {
	number, err := intParam(c, "number")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.GeneratePairingsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid pairing request"))
			return
		}
	}
	proposal, err := h.service.GeneratePairings(c.Request.Context(), c.Param("id"), number, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposal)
}

// Confirm godoc
// @Summary Confirm pairings as games
// @Description Persists a proposal or an edited list and publishes the round. Relaxed constraints must be accepted explicitly.
// @Tags Pairings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Tournament ID"
// @Param number path int true "Round number"
// @Param payload body dto.ConfirmPairingsRequest true "Confirmation payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /tournaments/{id}/rounds/{number}/pairings/confirm [post]
func (h *PairingHandler) Confirm(c *gin.Context) {
	number, err := intParam(c, "number")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ConfirmPairingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid confirmation payload"))
		return
	}
	result, err := h.service.ConfirmPairings(c.Request.Context(), c.Param("id"), number, req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
