package models

import "time"

// TiebreakValue is one computed criterion of a standings row.
type TiebreakValue struct {
	Type  TiebreakType `json:"type"`
	Value float64      `json:"value"`
}

// StandingEntry is a derived standings row, recomputed from results and never persisted.
type StandingEntry struct {
	Rank        int             `json:"rank"`
	PlayerID    string          `json:"playerId"`
	Name        string          `json:"name"`
	Rating      int             `json:"rating"`
	Status      PlayerStatus    `json:"status"`
	Points      float64         `json:"points"`
	GamesPlayed int             `json:"gamesPlayed"`
	Wins        int             `json:"wins"`
	Draws       int             `json:"draws"`
	Losses      int             `json:"losses"`
	Tiebreaks   []TiebreakValue `json:"tiebreaks"`
	// SharedRank marks a row indistinguishable from the previous one on every criterion;
	// its position then comes from the player id fallback.
	SharedRank bool `json:"sharedRank"`
}

// StandingsSnapshot is a consistent standings view at a results version.
type StandingsSnapshot struct {
	TournamentID   string          `json:"tournamentId"`
	ResultsVersion int64           `json:"resultsVersion"`
	ThroughRound   int             `json:"throughRound"`
	Tiebreaks      []TiebreakType  `json:"tiebreaks"`
	Entries        []StandingEntry `json:"entries"`
	GeneratedAt    time.Time       `json:"generatedAt"`
}

// TournamentSnapshot is the read model the standings and pairing pipelines consume.
type TournamentSnapshot struct {
	Tournament Tournament
	Players    []Player
	Rounds     []Round
	Games      []Game
}
