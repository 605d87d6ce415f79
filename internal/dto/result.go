package dto

import appErrors "github.com/noah-isme/swiss-arbiter-api/pkg/errors"

// GameResultInput proposes a result for a game.
type GameResultInput struct {
	GameID     string  `json:"gameId" validate:"required"`
	Result     string  `json:"result" validate:"required"`
	ResultType string  `json:"resultType"`
	Reason     *string `json:"reason"`
	Notes      *string `json:"arbiterNotes"`
}

// ValidateResultRequest is the single-game validate body; the game comes from the path.
type ValidateResultRequest struct {
	Result     string  `json:"result" validate:"required"`
	ResultType string  `json:"resultType"`
	Reason     *string `json:"reason"`
	Notes      *string `json:"arbiterNotes"`
}

// GameResultValidation is the verdict for one proposed result.
type GameResultValidation struct {
	GameID           string                 `json:"gameId"`
	IsValid          bool                   `json:"isValid"`
	Errors           []appErrors.FieldError `json:"errors"`
	Warnings         []string               `json:"warnings"`
	RequiresApproval bool                   `json:"requiresApproval"`
	Changed          bool                   `json:"changed"`
}

// BatchResultRequest validates or applies several results.
type BatchResultRequest struct {
	Updates      []GameResultInput `json:"updates" validate:"required,min=1,max=500,dive"`
	ValidateOnly bool              `json:"validateOnly"`
}

// BatchItemResult pairs a request index with its verdict.
type BatchItemResult struct {
	Index      int                  `json:"index"`
	Validation GameResultValidation `json:"validation"`
}

// BatchValidationResult is the batch verdict and, when applied, its effect.
type BatchValidationResult struct {
	OverallValid   bool              `json:"overallValid"`
	Results        []BatchItemResult `json:"results"`
	Applied        bool              `json:"applied"`
	ChangedGames   int               `json:"changedGames"`
	ResultsVersion int64             `json:"resultsVersion,omitempty"`
}

// ApproveResultRequest carries an optional approval note.
type ApproveResultRequest struct {
	Reason *string `json:"reason"`
}
