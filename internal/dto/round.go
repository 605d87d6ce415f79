package dto

import "github.com/noah-isme/swiss-arbiter-api/internal/models"

// CreateRoundRequest opens a round with an explicit number.
type CreateRoundRequest struct {
	RoundNumber int `json:"roundNumber" validate:"required,min=1"`
}

// UpdateRoundStatusRequest is a check-and-set transition request.
type UpdateRoundStatusRequest struct {
	ExpectedStatus string `json:"expectedStatus" validate:"required"`
	Status         string `json:"status" validate:"required"`
}

// CompleteRoundRequest closes a round.
type CompleteRoundRequest struct {
	ExpectedStatus string `json:"expectedStatus"`
}

// RoundTransitionResponse reports the outcome of a status change.
type RoundTransitionResponse struct {
	Round          models.Round `json:"round"`
	Changed        bool         `json:"changed"`
	Warnings       []string     `json:"warnings,omitempty"`
	RatingsApplied int          `json:"ratingsApplied,omitempty"`
}
