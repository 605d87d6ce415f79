package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
	appErrors "github.com/noah-isme/swiss-arbiter-api/pkg/errors"
)

const scoreEpsilon = 1e-9

type entryKind int

const (
	entryPlayed entryKind = iota
	entryForfeit
	entryBye
	entryMissed
	entryUnplayed
)

// roundScore is one round of a player's tournament record.
type roundScore struct {
	Round    int
	Board    int
	Boards   int
	Opponent string
	Color    models.Color
	Score    float64
	Kind     entryKind
}

func (r roundScore) hasOpponent() bool {
	return r.Kind == entryPlayed || r.Kind == entryForfeit
}

// playerRecord aggregates a player's results over the rounds under consideration.
type playerRecord struct {
	Player models.Player
	Points float64
	Rounds []roundScore
}

// standingsField is the full set of records a tiebreak may consult.
type standingsField struct {
	Records map[string]*playerRecord
	Order   []*playerRecord
	Rounds  []int
	Policy  models.ScoringPolicy
	average float64
}

func (f *standingsField) points(playerID string) float64 {
	if rec, ok := f.Records[playerID]; ok {
		return rec.Points
	}
	return 0
}

func (f *standingsField) rating(playerID string) int {
	if rec, ok := f.Records[playerID]; ok {
		return rec.Player.Rating
	}
	return 0
}

// StandingsCalculator ranks players by points and the configured tiebreak cascade.
type StandingsCalculator struct{}

// NewStandingsCalculator constructs the calculator.
func NewStandingsCalculator() *StandingsCalculator {
	return &StandingsCalculator{}
}

// ValidateTiebreaks rejects unknown criteria.
func ValidateTiebreaks(criteria []models.TiebreakType) error {
	for i, criterion := range criteria {
		if !knownTiebreak(criterion) {
			return appErrors.Validation("unknown tiebreak criterion", appErrors.FieldError{
				Field:   fmt.Sprintf("tiebreaks[%d]", i),
				Message: fmt.Sprintf("%q is not a supported tiebreak", criterion),
			})
		}
	}
	return nil
}

// Compute builds the standings from a snapshot. throughRound limits the rounds taken
// into account; zero means every round with games. Output is deterministic for equal
// input.
func (c *StandingsCalculator) Compute(snapshot models.TournamentSnapshot, throughRound int, criteria []models.TiebreakType) ([]models.StandingEntry, error) {
	if err := ValidateTiebreaks(criteria); err != nil {
		return nil, err
	}
	field := buildField(snapshot, throughRound)

	rows := make([]*standingRow, 0, len(field.Order))
	for _, rec := range field.Order {
		row := &standingRow{record: rec, values: make([]float64, len(criteria))}
		for i, criterion := range criteria {
			if fn, ok := scalarTiebreaks[criterion]; ok {
				row.values[i] = fn(rec, field)
			} else if criterion == models.TiebreakProgressive || criterion == models.TiebreakCumulative {
				row.values[i] = sumOfRunningTotals(rec, field.Rounds)
			}
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].record.Points > rows[j].record.Points+scoreEpsilon
	})
	ordered := make([]*standingRow, 0, len(rows))
	for _, group := range splitTied(rows, func(a, b *standingRow) int { return compareFloat(a.record.Points, b.record.Points) }) {
		ordered = append(ordered, rankGroup(group, criteria, 0, field)...)
	}

	entries := make([]models.StandingEntry, len(ordered))
	for i, row := range ordered {
		entries[i] = row.entry(i+1, criteria)
	}
	return entries, nil
}

type standingRow struct {
	record *playerRecord
	values []float64
	shared bool
}

func (r *standingRow) entry(rank int, criteria []models.TiebreakType) models.StandingEntry {
	rec := r.record
	entry := models.StandingEntry{
		Rank:       rank,
		PlayerID:   rec.Player.ID,
		Name:       rec.Player.Name,
		Rating:     rec.Player.Rating,
		Status:     rec.Player.Status,
		Points:     rec.Points,
		Tiebreaks:  make([]models.TiebreakValue, len(criteria)),
		SharedRank: r.shared,
	}
	for _, round := range rec.Rounds {
		if !round.hasOpponent() {
			continue
		}
		entry.GamesPlayed++
		switch {
		case round.Score >= 1:
			entry.Wins++
		case round.Score > 0:
			entry.Draws++
		default:
			entry.Losses++
		}
	}
	for i, criterion := range criteria {
		entry.Tiebreaks[i] = models.TiebreakValue{Type: criterion, Value: r.values[i]}
	}
	return entry
}

// rankGroup orders rows already tied on points and every criterion before idx.
func rankGroup(group []*standingRow, criteria []models.TiebreakType, idx int, field *standingsField) []*standingRow {
	if len(group) <= 1 {
		return group
	}
	if idx >= len(criteria) {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].record.Player.ID < group[j].record.Player.ID
		})
		for i := 1; i < len(group); i++ {
			group[i].shared = true
		}
		return group
	}

	criterion := criteria[idx]
	if criterion == models.TiebreakDirectEncounter {
		return rankByDirectEncounter(group, criteria, idx, field)
	}
	cmp := criterionComparator(criterion, idx, field)
	sort.SliceStable(group, func(i, j int) bool { return cmp(group[i], group[j]) > 0 })

	out := make([]*standingRow, 0, len(group))
	for _, tied := range splitTied(group, cmp) {
		out = append(out, rankGroup(tied, criteria, idx+1, field)...)
	}
	return out
}

// rankByDirectEncounter separates a tied group by the games played among its members.
// Any subset still tied is scored again on the games inside that subset alone, until a
// pass separates nobody; only then does the next criterion apply.
func rankByDirectEncounter(group []*standingRow, criteria []models.TiebreakType, idx int, field *standingsField) []*standingRow {
	assignDirectEncounter(group, idx, field)
	cmp := criterionComparator(models.TiebreakDirectEncounter, idx, field)
	sort.SliceStable(group, func(i, j int) bool { return cmp(group[i], group[j]) > 0 })

	tied := splitTied(group, cmp)
	if len(tied) == 1 {
		return rankGroup(group, criteria, idx+1, field)
	}
	out := make([]*standingRow, 0, len(group))
	for _, sub := range tied {
		if len(sub) == 1 {
			out = append(out, sub...)
			continue
		}
		out = append(out, rankByDirectEncounter(sub, criteria, idx, field)...)
	}
	return out
}

// criterionComparator returns >0 when a ranks ahead of b.
func criterionComparator(criterion models.TiebreakType, idx int, field *standingsField) func(a, b *standingRow) int {
	switch criterion {
	case models.TiebreakProgressive:
		return func(a, b *standingRow) int {
			ra, rb := runningTotals(a.record, field.Rounds), runningTotals(b.record, field.Rounds)
			for i := len(ra) - 1; i >= 0; i-- {
				if c := compareFloat(ra[i], rb[i]); c != 0 {
					return c
				}
			}
			return 0
		}
	case models.TiebreakCumulative:
		return func(a, b *standingRow) int {
			ra, rb := runningTotals(a.record, field.Rounds), runningTotals(b.record, field.Rounds)
			for i := range ra {
				if c := compareFloat(ra[i], rb[i]); c != 0 {
					return c
				}
			}
			return 0
		}
	}
	return func(a, b *standingRow) int {
		return compareFloat(a.values[idx], b.values[idx])
	}
}

func splitTied(rows []*standingRow, cmp func(a, b *standingRow) int) [][]*standingRow {
	var groups [][]*standingRow
	start := 0
	for i := 1; i <= len(rows); i++ {
		if i == len(rows) || cmp(rows[start], rows[i]) != 0 {
			groups = append(groups, rows[start:i])
			start = i
		}
	}
	return groups
}

func compareFloat(a, b float64) int {
	switch {
	case a > b+scoreEpsilon:
		return 1
	case b > a+scoreEpsilon:
		return -1
	}
	return 0
}

func buildField(snapshot models.TournamentSnapshot, throughRound int) *standingsField {
	policy := snapshot.Tournament.Scoring()
	field := &standingsField{
		Records: make(map[string]*playerRecord, len(snapshot.Players)),
		Policy:  policy,
	}
	players := append([]models.Player(nil), snapshot.Players...)
	sort.SliceStable(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	for _, player := range players {
		rec := &playerRecord{Player: player}
		field.Records[player.ID] = rec
		field.Order = append(field.Order, rec)
	}

	boards := make(map[int]int)
	seen := make(map[int]map[string]bool)
	for _, game := range snapshot.Games {
		if throughRound > 0 && game.RoundNumber > throughRound {
			continue
		}
		boards[game.RoundNumber]++
		if seen[game.RoundNumber] == nil {
			seen[game.RoundNumber] = make(map[string]bool)
		}
		seen[game.RoundNumber][game.WhitePlayerID] = true
		if game.BlackPlayerID != nil {
			seen[game.RoundNumber][*game.BlackPlayerID] = true
		}
	}
	for round := range boards {
		field.Rounds = append(field.Rounds, round)
	}
	sort.Ints(field.Rounds)

	for _, game := range snapshot.Games {
		if throughRound > 0 && game.RoundNumber > throughRound {
			continue
		}
		outcome, err := game.Outcome()
		if err != nil || outcome == nil {
			continue
		}
		for _, color := range []models.Color{models.ColorWhite, models.ColorBlack} {
			playerID := game.WhitePlayerID
			if color == models.ColorBlack {
				if game.BlackPlayerID == nil {
					continue
				}
				playerID = *game.BlackPlayerID
			}
			rec, ok := field.Records[playerID]
			if !ok {
				continue
			}
			entry := roundScore{
				Round:    game.RoundNumber,
				Board:    game.BoardNumber,
				Boards:   boards[game.RoundNumber],
				Opponent: game.OpponentOf(playerID),
				Color:    color,
				Score:    outcome.Score(color),
			}
			switch outcome.(type) {
			case models.Decisive, models.Draw:
				entry.Kind = entryPlayed
			case models.Forfeit:
				entry.Kind = entryForfeit
			case models.Bye:
				entry.Kind = entryBye
				entry.Score = policy.ByePoints
			default:
				entry.Kind = entryUnplayed
			}
			rec.Rounds = append(rec.Rounds, entry)
		}
	}

	for _, rec := range field.Order {
		for _, round := range field.Rounds {
			if seen[round][rec.Player.ID] || !rec.Player.CreditedForMissedRound(round) {
				continue
			}
			rec.Rounds = append(rec.Rounds, roundScore{Round: round, Score: policy.MissedRoundPolicy.Points(), Kind: entryMissed})
		}
		sort.SliceStable(rec.Rounds, func(i, j int) bool { return rec.Rounds[i].Round < rec.Rounds[j].Round })
		for _, round := range rec.Rounds {
			rec.Points += round.Score
		}
	}

	if len(field.Order) > 0 {
		var total float64
		for _, rec := range field.Order {
			total += rec.Points
		}
		field.average = total / float64(len(field.Order))
	}
	return field
}

// runningTotals returns the player's cumulative score after each considered round.
func runningTotals(rec *playerRecord, rounds []int) []float64 {
	perRound := make(map[int]float64, len(rec.Rounds))
	for _, round := range rec.Rounds {
		perRound[round.Round] += round.Score
	}
	totals := make([]float64, len(rounds))
	var running float64
	for i, round := range rounds {
		running += perRound[round]
		totals[i] = running
	}
	return totals
}

func sumOfRunningTotals(rec *playerRecord, rounds []int) float64 {
	var sum float64
	for _, total := range runningTotals(rec, rounds) {
		sum += total
	}
	return sum
}

// assignDirectEncounter scores each member against the rest of the group. The value
// stays zero unless every pair in the group has met over the board.
func assignDirectEncounter(group []*standingRow, idx int, field *standingsField) {
	members := make(map[string]*standingRow, len(group))
	for _, row := range group {
		members[row.record.Player.ID] = row
		row.values[idx] = 0
	}
	met := make(map[[2]string]bool)
	scores := make(map[string]float64, len(group))
	for _, row := range group {
		for _, round := range row.record.Rounds {
			if round.Kind != entryPlayed {
				continue
			}
			if _, ok := members[round.Opponent]; !ok {
				continue
			}
			met[pairKey(row.record.Player.ID, round.Opponent)] = true
			scores[row.record.Player.ID] += round.Score
		}
	}
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			if !met[pairKey(group[i].record.Player.ID, group[j].record.Player.ID)] {
				return
			}
		}
	}
	for _, row := range group {
		row.values[idx] = scores[row.record.Player.ID]
	}
}

func roundTo(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}
