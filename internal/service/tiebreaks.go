package service

import (
	"math"
	"sort"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
)

// ScalarTiebreak computes one criterion for a player given the whole field.
type ScalarTiebreak func(rec *playerRecord, field *standingsField) float64

// scalarTiebreaks holds every criterion that reduces to a per-player number.
// Progressive, cumulative and direct encounter need the comparison context and are
// handled by the calculator.
var scalarTiebreaks = map[models.TiebreakType]ScalarTiebreak{
	models.TiebreakBuchholzFull:    buchholz(cutNone),
	models.TiebreakBuchholzCut1:    buchholz(cutLowest),
	models.TiebreakBuchholzCut2:    buchholz(cutBoth),
	models.TiebreakMedianBuchholz:  buchholz(cutBoth),
	models.TiebreakSonnebornBerger: sonnebornBerger,
	models.TiebreakARO:             averageRatingOfOpponents(cutNone),
	models.TiebreakAROCut1:         averageRatingOfOpponents(cutLowest),
	models.TiebreakAROCut2:         averageRatingOfOpponents(cutBoth),
	models.TiebreakTPR:             performanceRating,
	models.TiebreakWins:            wins,
	models.TiebreakBlackGames:      blackGames,
	models.TiebreakBlackWins:       blackWins,
	models.TiebreakKoya:            koya,
	models.TiebreakMatchPoints:     matchPoints,
	models.TiebreakGamePoints:      gamePoints,
	models.TiebreakBoardPoints:     boardPoints,
}

func knownTiebreak(t models.TiebreakType) bool {
	if _, ok := scalarTiebreaks[t]; ok {
		return true
	}
	switch t {
	case models.TiebreakProgressive, models.TiebreakCumulative, models.TiebreakDirectEncounter:
		return true
	}
	return false
}

type cutRule int

const (
	cutNone cutRule = iota
	cutLowest
	cutBoth
)

// applyCut drops the lowest (and highest) value. With two values or fewer nothing is dropped.
func applyCut(values []float64, rule cutRule) []float64 {
	if rule == cutNone || len(values) <= 2 {
		return values
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if rule == cutLowest {
		return sorted[1:]
	}
	return sorted[1 : len(sorted)-1]
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// byeOpponentScore is the virtual opponent score a bye contributes to Buchholz.
func byeOpponentScore(rec *playerRecord, field *standingsField) float64 {
	switch field.Policy.ByeBuchholzPolicy {
	case models.ByeBuchholzZero:
		return 0
	case models.ByeBuchholzAverage:
		return field.average
	}
	return rec.Points
}

func buchholz(rule cutRule) ScalarTiebreak {
	return func(rec *playerRecord, field *standingsField) float64 {
		var scores []float64
		for _, round := range rec.Rounds {
			switch {
			case round.hasOpponent():
				scores = append(scores, field.points(round.Opponent))
			case round.Kind == entryBye:
				scores = append(scores, byeOpponentScore(rec, field))
			}
		}
		return roundTo(sum(applyCut(scores, rule)), 2)
	}
}

func sonnebornBerger(rec *playerRecord, field *standingsField) float64 {
	var total float64
	for _, round := range rec.Rounds {
		if round.Kind != entryPlayed {
			continue
		}
		total += field.points(round.Opponent) * round.Score
	}
	return roundTo(total, 2)
}

func opponentRatings(rec *playerRecord, field *standingsField) ([]float64, float64) {
	var ratings []float64
	var score float64
	for _, round := range rec.Rounds {
		if round.Kind != entryPlayed {
			continue
		}
		ratings = append(ratings, float64(field.rating(round.Opponent)))
		score += round.Score
	}
	return ratings, score
}

func averageRatingOfOpponents(rule cutRule) ScalarTiebreak {
	return func(rec *playerRecord, field *standingsField) float64 {
		ratings, _ := opponentRatings(rec, field)
		ratings = applyCut(ratings, rule)
		if len(ratings) == 0 {
			return 0
		}
		return math.Round(sum(ratings) / float64(len(ratings)))
	}
}

// performanceRating is ARO + 400·log10(p/(1-p)) with the second term clamped to ±400.
func performanceRating(rec *playerRecord, field *standingsField) float64 {
	ratings, score := opponentRatings(rec, field)
	if len(ratings) == 0 {
		return 0
	}
	aro := sum(ratings) / float64(len(ratings))
	p := score / float64(len(ratings))
	var delta float64
	switch {
	case p >= 1:
		delta = 400
	case p <= 0:
		delta = -400
	default:
		delta = math.Max(-400, math.Min(400, 400*math.Log10(p/(1-p))))
	}
	return math.Round(aro + delta)
}

func wins(rec *playerRecord, _ *standingsField) float64 {
	var count float64
	for _, round := range rec.Rounds {
		if round.hasOpponent() && round.Score >= 1 {
			count++
		}
	}
	return count
}

func blackGames(rec *playerRecord, _ *standingsField) float64 {
	var count float64
	for _, round := range rec.Rounds {
		if round.Kind == entryPlayed && round.Color == models.ColorBlack {
			count++
		}
	}
	return count
}

func blackWins(rec *playerRecord, _ *standingsField) float64 {
	var count float64
	for _, round := range rec.Rounds {
		if round.hasOpponent() && round.Color == models.ColorBlack && round.Score >= 1 {
			count++
		}
	}
	return count
}

// koya sums points scored against opponents who made at least half the possible score.
func koya(rec *playerRecord, field *standingsField) float64 {
	threshold := 0.5 * float64(len(field.Rounds))
	var total float64
	for _, round := range rec.Rounds {
		if !round.hasOpponent() {
			continue
		}
		if field.points(round.Opponent)+scoreEpsilon >= threshold {
			total += round.Score
		}
	}
	return total
}

func matchPoints(rec *playerRecord, _ *standingsField) float64 {
	var total float64
	for _, round := range rec.Rounds {
		if round.Kind == entryMissed || round.Kind == entryUnplayed {
			continue
		}
		switch {
		case round.Score >= 1:
			total += 2
		case round.Score > 0:
			total++
		}
	}
	return total
}

func gamePoints(rec *playerRecord, _ *standingsField) float64 {
	return rec.Points
}

// boardPoints weights each score by board, board one weighing the most.
func boardPoints(rec *playerRecord, _ *standingsField) float64 {
	var total float64
	for _, round := range rec.Rounds {
		if round.Board == 0 || round.Boards == 0 {
			continue
		}
		total += round.Score * float64(round.Boards-round.Board+1)
	}
	return roundTo(total, 2)
}
