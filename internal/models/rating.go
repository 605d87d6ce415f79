package models

import "time"

// RatingChange records one rated game's effect on a player's rating.
type RatingChange struct {
	ID             string    `db:"id" json:"id"`
	TournamentID   string    `db:"tournament_id" json:"tournamentId"`
	RoundID        string    `db:"round_id" json:"roundId"`
	GameID         string    `db:"game_id" json:"gameId"`
	PlayerID       string    `db:"player_id" json:"playerId"`
	RatingBefore   int       `db:"rating_before" json:"ratingBefore"`
	OpponentRating int       `db:"opponent_rating" json:"opponentRating"`
	Score          float64   `db:"score" json:"score"`
	KFactor        int       `db:"k_factor" json:"kFactor"`
	Delta          int       `db:"delta" json:"delta"`
	RatingAfter    int       `db:"rating_after" json:"ratingAfter"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}
