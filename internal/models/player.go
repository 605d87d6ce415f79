package models

import "time"

const (
	MinRating = 100
	MaxRating = 4000
)

// PlayerStatus is changed only through explicit status operations.
type PlayerStatus string

const (
	PlayerStatusActive       PlayerStatus = "active"
	PlayerStatusWithdrawn    PlayerStatus = "withdrawn"
	PlayerStatusByeRequested PlayerStatus = "bye_requested"
	PlayerStatusLateEntry    PlayerStatus = "late_entry"
)

// Valid reports enum membership.
func (s PlayerStatus) Valid() bool {
	switch s {
	case PlayerStatusActive, PlayerStatusWithdrawn, PlayerStatusByeRequested, PlayerStatusLateEntry:
		return true
	}
	return false
}

// Player is a registered participant.
type Player struct {
	ID                  string       `db:"id" json:"id"`
	TournamentID        string       `db:"tournament_id" json:"tournamentId"`
	Name                string       `db:"name" json:"name"`
	Rating              int          `db:"rating" json:"rating"`
	Status              PlayerStatus `db:"status" json:"status"`
	JoinedRound         int          `db:"joined_round" json:"joinedRound"`
	WithdrawnAfterRound *int         `db:"withdrawn_after_round" json:"withdrawnAfterRound,omitempty"`
	CreatedAt           time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time    `db:"updated_at" json:"updatedAt"`
}

// PairableIn reports whether the player is eligible to be paired in round.
func (p Player) PairableIn(round int) bool {
	switch p.Status {
	case PlayerStatusActive:
		return true
	case PlayerStatusLateEntry:
		return p.JoinedRound <= round
	}
	return false
}

// CreditedForMissedRound reports whether a round without a game counts for the
// missed-round policy rather than as a withdrawal.
func (p Player) CreditedForMissedRound(round int) bool {
	if p.WithdrawnAfterRound != nil && round > *p.WithdrawnAfterRound {
		return false
	}
	return true
}
