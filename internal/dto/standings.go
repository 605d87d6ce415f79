package dto

// StandingsQuery selects the standings cut-off.
type StandingsQuery struct {
	ThroughRound int `form:"throughRound" validate:"omitempty,min=0"`
}

// RatingChangeRequest is the ad-hoc rating calculator body.
type RatingChangeRequest struct {
	PlayerRating   int      `json:"playerRating" validate:"required"`
	OpponentRating int      `json:"opponentRating" validate:"required"`
	Score          *float64 `json:"score" validate:"required"`
}
