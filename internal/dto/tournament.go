package dto

import "github.com/noah-isme/swiss-arbiter-api/internal/models"

// CreateTournamentRequest registers a tournament and its scoring policies.
type CreateTournamentRequest struct {
	Name                   string   `json:"name" validate:"required,max=200"`
	TotalRounds            int      `json:"totalRounds" validate:"required,min=1,max=99"`
	PairingSystem          string   `json:"pairingSystem" validate:"omitempty,oneof=dutch adjacent"`
	Tiebreaks              []string `json:"tiebreaks" validate:"omitempty,dive,required"`
	ByePoints              *float64 `json:"byePoints" validate:"omitempty,min=0,max=1"`
	ByeBuchholzPolicy      string   `json:"byeBuchholzPolicy" validate:"omitempty,oneof=own_score zero average"`
	MissedRoundPointPolicy string   `json:"missedRoundPointPolicy" validate:"required,oneof=zero half full"`
	AllowRematches         bool     `json:"allowRematches"`
}

// RegisterPlayerRequest adds a player to a tournament.
type RegisterPlayerRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Rating      int    `json:"rating" validate:"required,min=100,max=4000"`
	Status      string `json:"status" validate:"omitempty,oneof=active late_entry"`
	JoinedRound int    `json:"joinedRound" validate:"omitempty,min=1"`
}

// UpdatePlayerStatusRequest changes a player's participation status.
type UpdatePlayerStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active withdrawn bye_requested late_entry"`
}

// TournamentDetail is a tournament with its field and round list.
type TournamentDetail struct {
	models.Tournament
	Players []models.Player `json:"players"`
	Rounds  []models.Round  `json:"rounds"`
}
