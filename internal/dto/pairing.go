package dto

import (
	"time"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
)

// PairingOptionsRequest toggles soft pairing constraints. Omitted values default to true.
type PairingOptionsRequest struct {
	AvoidRematches *bool `json:"avoidRematches"`
	BalanceColors  *bool `json:"balanceColors"`
	AllowByes      *bool `json:"allowByes"`
}

// GeneratePairingsRequest asks for a pairing proposal.
type GeneratePairingsRequest struct {
	Method  string                `json:"method" validate:"omitempty,oneof=dutch adjacent"`
	Options PairingOptionsRequest `json:"options"`
}

// PairingWarning describes a constraint that had to be relaxed.
type PairingWarning struct {
	Constraint string   `json:"constraint"`
	PlayerIDs  []string `json:"playerIds,omitempty"`
	Message    string   `json:"message"`
}

// PairingItem is one proposed board.
type PairingItem struct {
	BoardNumber   int     `json:"boardNumber"`
	WhitePlayerID string  `json:"whitePlayerId"`
	BlackPlayerID *string `json:"blackPlayerId,omitempty"`
	IsBye         bool    `json:"isBye"`
	Rematch       bool    `json:"rematch"`
}

// PairingProposal is a generated, unpersisted pairing list.
type PairingProposal struct {
	ProposalID   string           `json:"proposalId"`
	TournamentID string           `json:"tournamentId"`
	RoundNumber  int              `json:"roundNumber"`
	Method       string           `json:"method"`
	Pairings     []PairingItem    `json:"pairings"`
	Warnings     []PairingWarning `json:"warnings"`
	GeneratedAt  time.Time        `json:"generatedAt"`
	ExpiresAt    time.Time        `json:"expiresAt"`
}

// PairingEdit is a board supplied or edited by the arbiter.
type PairingEdit struct {
	WhitePlayerID string  `json:"whitePlayerId" validate:"required"`
	BlackPlayerID *string `json:"blackPlayerId"`
}

// ConfirmPairingsRequest turns a proposal, or an edited list, into games.
type ConfirmPairingsRequest struct {
	ProposalID        string        `json:"proposalId"`
	ExpectedStatus    string        `json:"expectedStatus" validate:"required"`
	Pairings          []PairingEdit `json:"pairings" validate:"omitempty,dive"`
	AcceptRelaxations bool          `json:"acceptRelaxations"`
}

// ConfirmPairingsResponse lists the created games.
type ConfirmPairingsResponse struct {
	Round          models.Round     `json:"round"`
	Games          []models.Game    `json:"games"`
	Warnings       []PairingWarning `json:"warnings,omitempty"`
	ResultsVersion int64            `json:"resultsVersion"`
}
