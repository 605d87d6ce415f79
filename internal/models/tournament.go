package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PairingMethod selects how seeds inside a score group are matched.
type PairingMethod string

const (
	// PairingMethodDutch pairs the top half of a score group against the bottom half.
	PairingMethodDutch PairingMethod = "dutch"
	// PairingMethodAdjacent pairs neighbouring seeds: 1-2, 3-4.
	PairingMethodAdjacent PairingMethod = "adjacent"
)

// Valid reports enum membership.
func (m PairingMethod) Valid() bool {
	return m == PairingMethodDutch || m == PairingMethodAdjacent
}

// TiebreakType names a secondary ranking criterion.
type TiebreakType string

const (
	TiebreakBuchholzFull    TiebreakType = "buchholz_full"
	TiebreakBuchholzCut1    TiebreakType = "buchholz_cut1"
	TiebreakBuchholzCut2    TiebreakType = "buchholz_cut2"
	TiebreakMedianBuchholz  TiebreakType = "median_buchholz"
	TiebreakSonnebornBerger TiebreakType = "sonneborn_berger"
	TiebreakProgressive     TiebreakType = "progressive"
	TiebreakCumulative      TiebreakType = "cumulative"
	TiebreakDirectEncounter TiebreakType = "direct_encounter"
	TiebreakARO             TiebreakType = "aro"
	TiebreakAROCut1         TiebreakType = "aro_cut1"
	TiebreakAROCut2         TiebreakType = "aro_cut2"
	TiebreakTPR             TiebreakType = "tpr"
	TiebreakWins            TiebreakType = "wins"
	TiebreakBlackGames      TiebreakType = "black_games"
	TiebreakBlackWins       TiebreakType = "black_wins"
	TiebreakKoya            TiebreakType = "koya"
	TiebreakMatchPoints     TiebreakType = "match_points"
	TiebreakGamePoints      TiebreakType = "game_points"
	TiebreakBoardPoints     TiebreakType = "board_points"
)

// TiebreakList is an ordered criteria list stored as a Postgres text[].
type TiebreakList []TiebreakType

// Scan implements sql.Scanner.
func (l *TiebreakList) Scan(src interface{}) error {
	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return fmt.Errorf("scan tiebreaks: %w", err)
	}
	list := make(TiebreakList, len(raw))
	for i, item := range raw {
		list[i] = TiebreakType(item)
	}
	*l = list
	return nil
}

// Value implements driver.Valuer.
func (l TiebreakList) Value() (driver.Value, error) {
	raw := make(pq.StringArray, len(l))
	for i, item := range l {
		raw[i] = string(item)
	}
	return raw.Value()
}

// ByeBuchholzPolicy decides what a bye contributes to the receiver's Buchholz.
type ByeBuchholzPolicy string

const (
	// ByeBuchholzOwnScore counts a virtual opponent with the receiver's own final points.
	ByeBuchholzOwnScore ByeBuchholzPolicy = "own_score"
	// ByeBuchholzZero counts a virtual opponent with zero points.
	ByeBuchholzZero ByeBuchholzPolicy = "zero"
	// ByeBuchholzAverage counts a virtual opponent with the mean final points of the field.
	ByeBuchholzAverage ByeBuchholzPolicy = "average"
)

// Valid reports enum membership.
func (p ByeBuchholzPolicy) Valid() bool {
	switch p {
	case ByeBuchholzOwnScore, ByeBuchholzZero, ByeBuchholzAverage:
		return true
	}
	return false
}

// MissedRoundPolicy is the score credited for a round a registered player did not play.
type MissedRoundPolicy string

const (
	MissedRoundZero MissedRoundPolicy = "zero"
	MissedRoundHalf MissedRoundPolicy = "half"
	MissedRoundFull MissedRoundPolicy = "full"
)

// Valid reports enum membership.
func (p MissedRoundPolicy) Valid() bool {
	switch p {
	case MissedRoundZero, MissedRoundHalf, MissedRoundFull:
		return true
	}
	return false
}

// Points returns the credited score.
func (p MissedRoundPolicy) Points() float64 {
	switch p {
	case MissedRoundHalf:
		return 0.5
	case MissedRoundFull:
		return 1
	}
	return 0
}

// Tournament owns rounds and players and carries the scoring policies.
type Tournament struct {
	ID                string            `db:"id" json:"id"`
	Name              string            `db:"name" json:"name"`
	TotalRounds       int               `db:"total_rounds" json:"totalRounds"`
	CurrentRound      int               `db:"current_round" json:"currentRound"`
	PairingSystem     PairingMethod     `db:"pairing_system" json:"pairingSystem"`
	Tiebreaks         TiebreakList      `db:"tiebreaks" json:"tiebreaks"`
	ByePoints         float64           `db:"bye_points" json:"byePoints"`
	ByeBuchholzPolicy ByeBuchholzPolicy `db:"bye_buchholz_policy" json:"byeBuchholzPolicy"`
	MissedRoundPolicy MissedRoundPolicy `db:"missed_round_policy" json:"missedRoundPointPolicy"`
	AllowRematches    bool              `db:"allow_rematches" json:"allowRematches"`
	ResultsVersion    int64             `db:"results_version" json:"resultsVersion"`
	CreatedAt         time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updatedAt"`
}

// ScoringPolicy collects the tournament settings that influence standings.
type ScoringPolicy struct {
	ByePoints         float64
	ByeBuchholzPolicy ByeBuchholzPolicy
	MissedRoundPolicy MissedRoundPolicy
}

// Scoring extracts the standings policy.
func (t Tournament) Scoring() ScoringPolicy {
	return ScoringPolicy{
		ByePoints:         t.ByePoints,
		ByeBuchholzPolicy: t.ByeBuchholzPolicy,
		MissedRoundPolicy: t.MissedRoundPolicy,
	}
}
