package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
	"github.com/noah-isme/swiss-arbiter-api/internal/service"
)

// scenario is a tournament replayed offline. Boards without a listed (or with an empty)
// result are won by the higher rated player, equal ratings draw.
type scenario struct {
	Tournament struct {
		Name              string   `yaml:"name"`
		Rounds            int      `yaml:"rounds"`
		PairingSystem     string   `yaml:"pairingSystem"`
		Tiebreaks         []string `yaml:"tiebreaks"`
		ByePoints         *float64 `yaml:"byePoints"`
		ByeBuchholzPolicy string   `yaml:"byeBuchholzPolicy"`
		MissedRoundPolicy string   `yaml:"missedRoundPolicy"`
		AllowRematches    bool     `yaml:"allowRematches"`
	} `yaml:"tournament"`
	Rated   bool             `yaml:"rated"`
	Players []scenarioPlayer `yaml:"players"`
	Results map[int][]string `yaml:"results"`
}

type scenarioPlayer struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Rating      int    `yaml:"rating"`
	JoinedRound int    `yaml:"joinedRound"`
}

type simulationResult struct {
	Games     []models.Game
	Standings []models.StandingEntry
	Ratings   map[string]int
	Warnings  []string
}

func loadScenario(path string) (*scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return &sc, nil
}

func (sc *scenario) tournament() (models.Tournament, []models.TiebreakType, error) {
	t := models.Tournament{
		ID:                "simulation",
		Name:              sc.Tournament.Name,
		TotalRounds:       sc.Tournament.Rounds,
		PairingSystem:     models.PairingMethod(sc.Tournament.PairingSystem),
		ByePoints:         1,
		ByeBuchholzPolicy: models.ByeBuchholzPolicy(sc.Tournament.ByeBuchholzPolicy),
		MissedRoundPolicy: models.MissedRoundPolicy(sc.Tournament.MissedRoundPolicy),
		AllowRematches:    sc.Tournament.AllowRematches,
	}
	if t.PairingSystem == "" {
		t.PairingSystem = models.PairingMethodDutch
	}
	if t.ByeBuchholzPolicy == "" {
		t.ByeBuchholzPolicy = models.ByeBuchholzOwnScore
	}
	if t.MissedRoundPolicy == "" {
		t.MissedRoundPolicy = models.MissedRoundZero
	}
	if sc.Tournament.ByePoints != nil {
		t.ByePoints = *sc.Tournament.ByePoints
	}
	if t.TotalRounds < 1 {
		return t, nil, fmt.Errorf("scenario needs at least one round")
	}
	criteria := make([]models.TiebreakType, 0, len(sc.Tournament.Tiebreaks))
	for _, name := range sc.Tournament.Tiebreaks {
		criteria = append(criteria, models.TiebreakType(name))
	}
	if err := service.ValidateTiebreaks(criteria); err != nil {
		return t, nil, err
	}
	t.Tiebreaks = models.TiebreakList(criteria)
	return t, criteria, nil
}

// parseBoardResult accepts 1-0, 0-1, 1/2-1/2 (or =) and 0-0.
func parseBoardResult(raw string) (models.ResultValue, error) {
	switch strings.ReplaceAll(strings.TrimSpace(raw), " ", "") {
	case "1-0":
		return models.ResultWhiteWins, nil
	case "0-1":
		return models.ResultBlackWins, nil
	case "1/2-1/2", "=", "½-½":
		return models.ResultDraw, nil
	case "0-0":
		return models.ResultDoubleLoss, nil
	default:
		return "", fmt.Errorf("unknown board result %q", raw)
	}
}

func runScenario(sc *scenario, out io.Writer) (*simulationResult, error) {
	tournament, criteria, err := sc.tournament()
	if err != nil {
		return nil, err
	}
	snapshot := models.TournamentSnapshot{Tournament: tournament}
	for _, p := range sc.Players {
		player := models.Player{ID: p.ID, TournamentID: tournament.ID, Name: p.Name, Rating: p.Rating, Status: models.PlayerStatusActive, JoinedRound: 1}
		if p.JoinedRound > 1 {
			player.Status = models.PlayerStatusLateEntry
			player.JoinedRound = p.JoinedRound
		}
		snapshot.Players = append(snapshot.Players, player)
	}

	engine := service.NewPairingEngine()
	calculator := service.NewStandingsCalculator()
	ratings := service.NewRatingEngine()
	history := service.NewHistoryIndex(nil)
	result := &simulationResult{Ratings: make(map[string]int)}

	for round := 1; round <= tournament.TotalRounds; round++ {
		points := make(map[string]float64)
		if round > 1 {
			table, err := calculator.Compute(snapshot, round-1, criteria)
			if err != nil {
				return nil, err
			}
			for _, entry := range table {
				points[entry.PlayerID] = entry.Points
			}
		}
		var field []service.PairingPlayer
		for _, p := range snapshot.Players {
			if p.PairableIn(round) {
				field = append(field, service.PairingPlayer{ID: p.ID, Rating: p.Rating, Points: points[p.ID]})
			}
		}

		proposal, err := engine.Generate(service.PairingInput{
			RoundNumber: round,
			Method:      tournament.PairingSystem,
			Players:     field,
			History:     history,
			Options: service.PairingOptions{
				AvoidRematches: !tournament.AllowRematches,
				BalanceColors:  true,
				AllowByes:      true,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", round, err)
		}
		for _, w := range proposal.Warnings {
			result.Warnings = append(result.Warnings, fmt.Sprintf("round %d: %s (%s)", round, w.Message, w.Constraint))
		}

		games, err := playRound(sc, snapshot, round, proposal.Pairings)
		if err != nil {
			return nil, err
		}
		history.Add(games)
		snapshot.Games = append(snapshot.Games, games...)
		printRound(out, round, games, snapshot.Players)

		if sc.Rated {
			applyRatings(ratings, snapshot.Players, games)
		}
	}

	standings, err := calculator.Compute(snapshot, 0, criteria)
	if err != nil {
		return nil, err
	}
	printStandings(out, standings, criteria)
	for _, w := range result.Warnings {
		fmt.Fprintln(out, "warning:", w)
	}

	result.Games = snapshot.Games
	result.Standings = standings
	for _, p := range snapshot.Players {
		result.Ratings[p.ID] = p.Rating
	}
	return result, nil
}

func playRound(sc *scenario, snapshot models.TournamentSnapshot, round int, pairings []service.ProposedPairing) ([]models.Game, error) {
	ratingOf := make(map[string]int, len(snapshot.Players))
	for _, p := range snapshot.Players {
		ratingOf[p.ID] = p.Rating
	}
	listed := sc.Results[round]
	games := make([]models.Game, 0, len(pairings))
	for _, p := range pairings {
		var game models.Game
		if p.IsBye() {
			game = models.NewByeGame(p.White, p.Board)
		} else {
			black := p.Black
			value := favouriteResult(ratingOf[p.White], ratingOf[black])
			if p.Board <= len(listed) && strings.TrimSpace(listed[p.Board-1]) != "" {
				parsed, err := parseBoardResult(listed[p.Board-1])
				if err != nil {
					return nil, fmt.Errorf("round %d board %d: %w", round, p.Board, err)
				}
				value = parsed
			}
			resultType := models.ResultTypeNormal
			game = models.Game{BoardNumber: p.Board, WhitePlayerID: p.White, BlackPlayerID: &black, Result: &value, ResultType: &resultType, Approved: true}
		}
		game.ID = fmt.Sprintf("r%d-b%d", round, p.Board)
		game.TournamentID = snapshot.Tournament.ID
		game.RoundNumber = round
		games = append(games, game)
	}
	return games, nil
}

func favouriteResult(white, black int) models.ResultValue {
	switch {
	case white > black:
		return models.ResultWhiteWins
	case black > white:
		return models.ResultBlackWins
	default:
		return models.ResultDraw
	}
}

// applyRatings updates players from pre-round ratings, like round completion does.
func applyRatings(engine *service.RatingEngine, players []models.Player, games []models.Game) {
	before := make(map[string]int, len(players))
	for _, p := range players {
		before[p.ID] = p.Rating
	}
	delta := make(map[string]int)
	for _, game := range games {
		outcome, err := game.Outcome()
		if err != nil || outcome == nil || !outcome.Played() || game.IsBye() {
			continue
		}
		white, black := game.WhitePlayerID, *game.BlackPlayerID
		if d, err := engine.CalculateRatingChange(before[white], before[black], outcome.Score(models.ColorWhite)); err == nil {
			delta[white] += d
		}
		if d, err := engine.CalculateRatingChange(before[black], before[white], outcome.Score(models.ColorBlack)); err == nil {
			delta[black] += d
		}
	}
	for i := range players {
		rating := players[i].Rating + delta[players[i].ID]
		if rating < models.MinRating {
			rating = models.MinRating
		}
		if rating > models.MaxRating {
			rating = models.MaxRating
		}
		players[i].Rating = rating
	}
}

func printRound(out io.Writer, round int, games []models.Game, players []models.Player) {
	names := make(map[string]string, len(players))
	for _, p := range players {
		names[p.ID] = p.Name
	}
	fmt.Fprintf(out, "Round %d\n", round)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, game := range games {
		if game.IsBye() {
			fmt.Fprintf(w, "  %d\t%s\tbye\t\n", game.BoardNumber, names[game.WhitePlayerID])
			continue
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", game.BoardNumber, names[game.WhitePlayerID], names[*game.BlackPlayerID], *game.Result)
	}
	_ = w.Flush()
}

func printStandings(out io.Writer, standings []models.StandingEntry, criteria []models.TiebreakType) {
	fmt.Fprintln(out, "Standings")
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	header := []string{"  #", "player", "rating", "pts"}
	for _, c := range criteria {
		header = append(header, string(c))
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, entry := range standings {
		row := []string{fmt.Sprintf("  %d", entry.Rank), entry.Name, fmt.Sprint(entry.Rating), fmt.Sprintf("%g", entry.Points)}
		for _, tb := range entry.Tiebreaks {
			row = append(row, fmt.Sprintf("%g", tb.Value))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}
