package service

import (
	"fmt"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
	appErrors "github.com/noah-isme/swiss-arbiter-api/pkg/errors"
)

func defaultPairingOptions() PairingOptions {
	return PairingOptions{AvoidRematches: true, BalanceColors: true, AllowByes: true}
}

func decidedGame(round, board int, white, black string, result models.ResultValue) models.Game {
	game := models.Game{
		ID:            fmt.Sprintf("g-%d-%d", round, board),
		TournamentID:  "t-1",
		RoundID:       fmt.Sprintf("r-%d", round),
		RoundNumber:   round,
		BoardNumber:   board,
		WhitePlayerID: white,
		Approved:      true,
	}
	if black == "" {
		bye := models.NewByeGame(white, board)
		bye.ID, bye.TournamentID, bye.RoundID, bye.RoundNumber = game.ID, game.TournamentID, game.RoundID, round
		return bye
	}
	b := black
	game.BlackPlayerID = &b
	if result != "" {
		r := result
		game.Result = &r
		rt := models.ResultTypeNormal
		game.ResultType = &rt
	}
	return game
}

func pairSet(pairings []ProposedPairing) map[[2]string]bool {
	out := make(map[[2]string]bool)
	for _, p := range pairings {
		if p.IsBye() {
			continue
		}
		out[pairKey(p.White, p.Black)] = true
	}
	return out
}

func TestPairingEngineFirstRoundDutch(t *testing.T) {
	engine := NewPairingEngine()
	result, err := engine.Generate(PairingInput{
		RoundNumber: 1,
		Method:      models.PairingMethodDutch,
		Players: []PairingPlayer{
			{ID: "p4", Rating: 1500},
			{ID: "p2", Rating: 1700},
			{ID: "p1", Rating: 1800},
			{ID: "p3", Rating: 1600},
		},
		Options: defaultPairingOptions(),
	})
	require.NoError(t, err)
	require.Len(t, result.Pairings, 2)
	assert.Empty(t, result.Warnings)

	assert.Equal(t, ProposedPairing{Board: 1, White: "p1", Black: "p3"}, result.Pairings[0])
	assert.Equal(t, ProposedPairing{Board: 2, White: "p2", Black: "p4"}, result.Pairings[1])
}

func TestPairingEngineAdjacentMethod(t *testing.T) {
	result, err := NewPairingEngine().Generate(PairingInput{
		RoundNumber: 1,
		Method:      models.PairingMethodAdjacent,
		Players: []PairingPlayer{
			{ID: "p1", Rating: 1800}, {ID: "p2", Rating: 1700}, {ID: "p3", Rating: 1600}, {ID: "p4", Rating: 1500},
		},
		Options: defaultPairingOptions(),
	})
	require.NoError(t, err)
	assert.True(t, pairSet(result.Pairings)[pairKey("p1", "p2")])
	assert.True(t, pairSet(result.Pairings)[pairKey("p3", "p4")])
}

func TestPairingEngineSecondRoundAvoidsRematches(t *testing.T) {
	history := NewHistoryIndex([]models.Game{
		decidedGame(1, 1, "p1", "p3", models.ResultWhiteWins),
		decidedGame(1, 2, "p2", "p4", models.ResultWhiteWins),
	})
	result, err := NewPairingEngine().Generate(PairingInput{
		RoundNumber: 2,
		Method:      models.PairingMethodDutch,
		Players: []PairingPlayer{
			{ID: "p1", Rating: 1800, Points: 1},
			{ID: "p2", Rating: 1700, Points: 1},
			{ID: "p3", Rating: 1600},
			{ID: "p4", Rating: 1500},
		},
		History: history,
		Options: defaultPairingOptions(),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)

	pairs := pairSet(result.Pairings)
	assert.True(t, pairs[pairKey("p1", "p2")], "leaders meet")
	assert.True(t, pairs[pairKey("p3", "p4")])
	for _, p := range result.Pairings {
		assert.False(t, p.Rematch)
		assert.False(t, history.Played(p.White, p.Black))
	}
	// both leaders had white; exactly one of them gets black
	assert.Contains(t, []string{"p1", "p2"}, result.Pairings[0].White)
}

func TestPairingEngineOddFieldGetsSingleByeOnLastBoard(t *testing.T) {
	result, err := NewPairingEngine().Generate(PairingInput{
		RoundNumber: 1,
		Players: []PairingPlayer{
			{ID: "p1", Rating: 2000}, {ID: "p2", Rating: 1900}, {ID: "p3", Rating: 1800},
			{ID: "p4", Rating: 1700}, {ID: "p5", Rating: 1600},
		},
		Options: defaultPairingOptions(),
	})
	require.NoError(t, err)
	require.Len(t, result.Pairings, 3)

	last := result.Pairings[2]
	assert.True(t, last.IsBye())
	assert.Equal(t, "p5", last.White)
	for i, p := range result.Pairings {
		assert.Equal(t, i+1, p.Board)
		if i < 2 {
			assert.False(t, p.IsBye())
		}
	}
}

func TestPairingEngineByeSkipsPreviousReceiver(t *testing.T) {
	history := NewHistoryIndex([]models.Game{
		decidedGame(1, 1, "p1", "p2", models.ResultDraw),
		decidedGame(1, 2, "p3", "", ""),
	})
	result, err := NewPairingEngine().Generate(PairingInput{
		RoundNumber: 2,
		Players: []PairingPlayer{
			{ID: "p1", Rating: 1800, Points: 0.5},
			{ID: "p2", Rating: 1700, Points: 0.5},
			{ID: "p3", Rating: 1500, Points: 1},
		},
		History: history,
		Options: defaultPairingOptions(),
	})
	require.NoError(t, err)
	bye := result.Pairings[len(result.Pairings)-1]
	require.True(t, bye.IsBye())
	assert.Equal(t, "p2", bye.White)
}

func TestPairingEngineRepeatByeRelaxation(t *testing.T) {
	history := NewHistoryIndex([]models.Game{
		decidedGame(1, 2, "p1", "", ""),
		decidedGame(2, 2, "p2", "", ""),
		decidedGame(3, 2, "p3", "", ""),
	})
	players := []PairingPlayer{{ID: "p1", Rating: 1800}, {ID: "p2", Rating: 1700}, {ID: "p3", Rating: 1600}}

	t.Run("rejected when byes may not repeat", func(t *testing.T) {
		opts := defaultPairingOptions()
		opts.AllowByes = false
		_, err := NewPairingEngine().Generate(PairingInput{RoundNumber: 4, Players: players, History: history, Options: opts})
		require.Error(t, err)
		assert.ErrorIs(t, err, appErrors.ErrPairingInfeasible)
	})

	t.Run("flagged when allowed", func(t *testing.T) {
		result, err := NewPairingEngine().Generate(PairingInput{RoundNumber: 4, Players: players, History: history, Options: defaultPairingOptions()})
		require.NoError(t, err)
		var constraints []string
		for _, w := range result.Warnings {
			constraints = append(constraints, w.Constraint)
		}
		assert.Contains(t, constraints, ConstraintRepeatBye)
	})
}

func TestPairingEngineFlagsUnavoidableRematch(t *testing.T) {
	history := NewHistoryIndex([]models.Game{decidedGame(1, 1, "p1", "p2", models.ResultDraw)})
	result, err := NewPairingEngine().Generate(PairingInput{
		RoundNumber: 2,
		Players:     []PairingPlayer{{ID: "p1", Rating: 1800, Points: 0.5}, {ID: "p2", Rating: 1700, Points: 0.5}},
		History:     history,
		Options:     defaultPairingOptions(),
	})
	require.NoError(t, err)
	require.Len(t, result.Pairings, 1)
	assert.True(t, result.Pairings[0].Rematch)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, ConstraintRematch, result.Warnings[0].Constraint)
	assert.ElementsMatch(t, []string{"p1", "p2"}, result.Warnings[0].PlayerIDs)
}

// TestPairingEngineBacktracksAcrossScoreGroups covers a field where pairing the top
// score group greedily strands the last two players with a rematch, while floating a
// different player down lets every board be a fresh pairing.
func TestPairingEngineBacktracksAcrossScoreGroups(t *testing.T) {
	history := NewHistoryIndex([]models.Game{
		decidedGame(1, 1, "p00", "p01", models.ResultWhiteWins),
		decidedGame(1, 2, "p02", "p05", models.ResultDraw),
		decidedGame(1, 3, "p03", "p04", models.ResultDraw),
		decidedGame(2, 1, "p00", "p02", models.ResultBlackWins),
		decidedGame(2, 2, "p01", "p04", models.ResultBlackWins),
		decidedGame(2, 3, "p03", "p05", models.ResultDraw),
		decidedGame(3, 1, "p00", "p05", models.ResultBlackWins),
		decidedGame(3, 2, "p01", "p03", models.ResultDraw),
		decidedGame(3, 3, "p02", "p04", models.ResultDraw),
	})
	players := []PairingPlayer{
		{ID: "p00", Rating: 1600, Points: 1},
		{ID: "p01", Rating: 1500, Points: 0.5},
		{ID: "p02", Rating: 2000, Points: 2},
		{ID: "p03", Rating: 1700, Points: 1.5},
		{ID: "p04", Rating: 1900, Points: 2},
		{ID: "p05", Rating: 1800, Points: 2},
	}

	for _, method := range []models.PairingMethod{models.PairingMethodDutch, models.PairingMethodAdjacent} {
		t.Run(string(method), func(t *testing.T) {
			result, err := NewPairingEngine().Generate(PairingInput{
				RoundNumber: 4,
				Method:      method,
				Players:     players,
				History:     history,
				Options:     defaultPairingOptions(),
			})
			require.NoError(t, err)
			require.Len(t, result.Pairings, 3)
			for _, p := range result.Pairings {
				assert.False(t, p.Rematch, "%s-%s", p.White, p.Black)
				assert.False(t, history.Played(p.White, p.Black), "%s-%s", p.White, p.Black)
			}
			for _, w := range result.Warnings {
				assert.NotEqual(t, ConstraintRematch, w.Constraint)
			}
			assert.Equal(t, map[[2]string]bool{
				pairKey("p04", "p05"): true,
				pairKey("p00", "p03"): true,
				pairKey("p01", "p02"): true,
			}, pairSet(result.Pairings))
		})
	}
}

func TestPairingEngineMovesByeToAvoidRematch(t *testing.T) {
	// p3 is the natural bye, but without p3 the only pairing left is p1-p2 again.
	history := NewHistoryIndex([]models.Game{
		decidedGame(1, 1, "p1", "p2", models.ResultDraw),
	})
	result, err := NewPairingEngine().Generate(PairingInput{
		RoundNumber: 2,
		Players: []PairingPlayer{
			{ID: "p1", Rating: 1800, Points: 0.5},
			{ID: "p2", Rating: 1700, Points: 0.5},
			{ID: "p3", Rating: 1500, Points: 0},
		},
		History: history,
		Options: defaultPairingOptions(),
	})
	require.NoError(t, err)
	require.Len(t, result.Pairings, 2)
	assert.False(t, result.Pairings[0].Rematch)
	assert.True(t, result.Pairings[1].IsBye())
	assert.Equal(t, "p2", result.Pairings[1].White)
	assert.Equal(t, map[[2]string]bool{pairKey("p1", "p3"): true}, pairSet(result.Pairings))
}

func TestPairingEngineFewerThanTwoPlayers(t *testing.T) {
	result, err := NewPairingEngine().Generate(PairingInput{
		RoundNumber: 1,
		Players:     []PairingPlayer{{ID: "solo", Rating: 1500}},
		Options:     defaultPairingOptions(),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Pairings)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, ConstraintNoGames, result.Warnings[0].Constraint)
}

func TestPairingEngineRejectsUnknownMethod(t *testing.T) {
	_, err := NewPairingEngine().Generate(PairingInput{
		RoundNumber: 1,
		Method:      "monrad",
		Players:     []PairingPlayer{{ID: "a", Rating: 1500}, {ID: "b", Rating: 1400}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAssignColorsCapsSameColorRun(t *testing.T) {
	a := &seeded{PairingPlayer: PairingPlayer{ID: "a"}, seed: 1, colors: []models.Color{models.ColorWhite, models.ColorWhite}}
	b := &seeded{PairingPlayer: PairingPlayer{ID: "b"}, seed: 2, colors: []models.Color{models.ColorWhite, models.ColorBlack}}

	white, black, relaxed := assignColors(a, b, 3, true)
	assert.Equal(t, "b", white.ID)
	assert.Equal(t, "a", black.ID)
	assert.Nil(t, relaxed)
}

func TestCheckPairingsRejectsDuplicatePlayer(t *testing.T) {
	err := CheckPairings([]ProposedPairing{
		{Board: 1, White: "a", Black: "b"},
		{Board: 2, White: "b", Black: "c"},
	}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrPairingInfeasible)
}

func TestCheckPairingsRejectsBoardGap(t *testing.T) {
	err := CheckPairings([]ProposedPairing{
		{Board: 1, White: "a", Black: "b"},
		{Board: 3, White: "c", Black: "d"},
	}, nil, nil)
	require.Error(t, err)
}

func TestCheckPairingsRejectsMissingPlayer(t *testing.T) {
	err := CheckPairings([]ProposedPairing{
		{Board: 1, White: "a", Black: "b"},
		{Board: 2, White: "", Black: "c"},
	}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrPairingInfeasible)
	assert.Contains(t, err.Error(), "missing player on board 2")
	assert.NotContains(t, err.Error(), `""`)
}

// freePairingExists reports whether ids can be split into pairs that never met before.
func freePairingExists(ids []string, history *HistoryIndex) bool {
	memo := make(map[uint64]bool)
	var solve func(mask uint64) bool
	solve = func(mask uint64) bool {
		if mask == 0 {
			return true
		}
		if v, ok := memo[mask]; ok {
			return v
		}
		first := 0
		for mask&(1<<first) == 0 {
			first++
		}
		found := false
		for j := first + 1; j < len(ids) && !found; j++ {
			if mask&(1<<j) == 0 || history.Played(ids[first], ids[j]) {
				continue
			}
			found = solve(mask &^ (1 << first) &^ (1 << j))
		}
		memo[mask] = found
		return found
	}
	if len(ids)%2 == 1 {
		return false
	}
	return solve(1<<len(ids) - 1)
}

// rematchWasAvoidable reports whether some legal bye choice leaves a field that pairs
// without any rematch.
func rematchWasAvoidable(players []PairingPlayer, history *HistoryIndex) bool {
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	if len(ids)%2 == 0 {
		return freePairingExists(ids, history)
	}
	for i, id := range ids {
		if history.HadBye(id) {
			continue
		}
		rest := append(append([]string(nil), ids[:i]...), ids[i+1:]...)
		if freePairingExists(rest, history) {
			return true
		}
	}
	return false
}

// TestPairingEngineRandomTournaments plays several seeded tournaments and checks the
// structural guarantees of every generated round.
func TestPairingEngineRandomTournaments(t *testing.T) {
	for seed := uint64(1); seed <= 8; seed++ {
		faker := gofakeit.New(seed)
		size := faker.IntRange(5, 17)
		rounds := faker.IntRange(3, 5)

		players := make([]PairingPlayer, size)
		for i := range players {
			players[i] = PairingPlayer{ID: fmt.Sprintf("s%d-p%02d", seed, i), Rating: faker.IntRange(1000, 2600)}
		}
		history := NewHistoryIndex(nil)
		byes := make(map[string]int)

		for round := 1; round <= rounds; round++ {
			result, err := NewPairingEngine().Generate(PairingInput{
				RoundNumber: round,
				Players:     players,
				History:     history,
				Options:     defaultPairingOptions(),
			})
			require.NoError(t, err, "seed %d round %d", seed, round)
			require.Len(t, result.Pairings, (size+1)/2)
			for _, p := range result.Pairings {
				if p.Rematch {
					require.False(t, rematchWasAvoidable(players, history),
						"seed %d round %d: %s-%s repeated although a fresh pairing existed", seed, round, p.White, p.Black)
				}
			}

			seen := make(map[string]bool)
			var games []models.Game
			for i, p := range result.Pairings {
				require.Equal(t, i+1, p.Board)
				require.False(t, seen[p.White])
				seen[p.White] = true
				if p.IsBye() {
					byes[p.White]++
					games = append(games, decidedGame(round, p.Board, p.White, "", ""))
					continue
				}
				require.False(t, seen[p.Black])
				seen[p.Black] = true
				outcome := []models.ResultValue{models.ResultWhiteWins, models.ResultDraw, models.ResultBlackWins}[faker.IntRange(0, 2)]
				games = append(games, decidedGame(round, p.Board, p.White, p.Black, outcome))
			}
			require.Len(t, seen, size)

			points := make(map[string]float64)
			for _, g := range games {
				outcome, err := g.Outcome()
				require.NoError(t, err)
				points[g.WhitePlayerID] += outcome.Score(models.ColorWhite)
				if g.BlackPlayerID != nil {
					points[*g.BlackPlayerID] += outcome.Score(models.ColorBlack)
				}
			}
			for i := range players {
				players[i].Points += points[players[i].ID]
			}
			history.Add(games)
		}
		for id, count := range byes {
			assert.LessOrEqual(t, count, 1, "seed %d player %s", seed, id)
		}
	}
}
