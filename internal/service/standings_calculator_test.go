package service

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
)

func testPlayer(id string, rating int) models.Player {
	return models.Player{ID: id, TournamentID: "t-1", Name: "Player " + id, Rating: rating, Status: models.PlayerStatusActive, JoinedRound: 1}
}

func standingsTournament(policy models.ByeBuchholzPolicy) models.Tournament {
	return models.Tournament{
		ID:                "t-1",
		Name:              "Club Open",
		TotalRounds:       5,
		PairingSystem:     models.PairingMethodDutch,
		ByePoints:         1,
		ByeBuchholzPolicy: policy,
		MissedRoundPolicy: models.MissedRoundZero,
	}
}

func rankedIDs(entries []models.StandingEntry) []string {
	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.PlayerID
	}
	return ids
}

func tiebreakValue(entry models.StandingEntry, criterion models.TiebreakType) float64 {
	for _, tb := range entry.Tiebreaks {
		if tb.Type == criterion {
			return tb.Value
		}
	}
	return -1
}

func directEncounterSnapshot() models.TournamentSnapshot {
	return models.TournamentSnapshot{
		Tournament: standingsTournament(models.ByeBuchholzOwnScore),
		Players:    []models.Player{testPlayer("a", 2000), testPlayer("b", 1950), testPlayer("c", 1900), testPlayer("d", 1850)},
		Games: []models.Game{
			decidedGame(1, 1, "a", "b", models.ResultBlackWins),
			decidedGame(1, 2, "c", "d", models.ResultDraw),
			decidedGame(2, 1, "a", "c", models.ResultWhiteWins),
			decidedGame(2, 2, "d", "b", models.ResultWhiteWins),
			decidedGame(3, 1, "a", "d", models.ResultWhiteWins),
			decidedGame(3, 2, "b", "c", models.ResultWhiteWins),
		},
	}
}

func TestStandingsDirectEncounterBreaksBuchholzTie(t *testing.T) {
	criteria := []models.TiebreakType{models.TiebreakBuchholzFull, models.TiebreakDirectEncounter}
	entries, err := NewStandingsCalculator().Compute(directEncounterSnapshot(), 0, criteria)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, []string{"b", "a", "d", "c"}, rankedIDs(entries))
	assert.Equal(t, 2.0, entries[0].Points)
	assert.Equal(t, 2.0, entries[1].Points)
	assert.Equal(t, 1.5, entries[2].Points)
	assert.Equal(t, 0.5, entries[3].Points)

	assert.Equal(t, 4.0, tiebreakValue(entries[0], models.TiebreakBuchholzFull))
	assert.Equal(t, 4.0, tiebreakValue(entries[1], models.TiebreakBuchholzFull))
	assert.Equal(t, 1.0, tiebreakValue(entries[0], models.TiebreakDirectEncounter))
	assert.Equal(t, 0.0, tiebreakValue(entries[1], models.TiebreakDirectEncounter))

	for i, entry := range entries {
		assert.Equal(t, i+1, entry.Rank)
		assert.False(t, entry.SharedRank)
		assert.Equal(t, 3, entry.GamesPlayed)
	}
	assert.Equal(t, 2, entries[0].Wins)
	assert.Equal(t, 1, entries[0].Losses)
}

func TestStandingsThroughRoundLimitsResults(t *testing.T) {
	entries, err := NewStandingsCalculator().Compute(directEncounterSnapshot(), 1, []models.TiebreakType{models.TiebreakBuchholzFull})
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c", "d", "a"}, rankedIDs(entries))
	assert.Equal(t, 1.0, entries[0].Points)
	assert.True(t, entries[2].SharedRank, "c and d drew and are tied on everything")
}

func TestStandingsProgressiveComparesLatestRoundFirst(t *testing.T) {
	criteria := []models.TiebreakType{models.TiebreakProgressive}
	entries, err := NewStandingsCalculator().Compute(directEncounterSnapshot(), 0, criteria)
	require.NoError(t, err)

	// b: 1,1,2 and a: 0,1,2. Equal after rounds 3 and 2; b leads after round 1.
	assert.Equal(t, []string{"b", "a"}, rankedIDs(entries)[:2])
	assert.Equal(t, 4.0, tiebreakValue(entries[0], models.TiebreakProgressive))
	assert.Equal(t, 3.0, tiebreakValue(entries[1], models.TiebreakProgressive))
}

func byeSnapshot(policy models.ByeBuchholzPolicy) models.TournamentSnapshot {
	return models.TournamentSnapshot{
		Tournament: standingsTournament(policy),
		Players:    []models.Player{testPlayer("a", 1800), testPlayer("b", 1700), testPlayer("c", 1600)},
		Games: []models.Game{
			decidedGame(1, 1, "a", "b", models.ResultWhiteWins),
			decidedGame(1, 2, "c", "", ""),
		},
	}
}

func TestStandingsByeBuchholzPolicies(t *testing.T) {
	criteria := []models.TiebreakType{models.TiebreakBuchholzFull}

	t.Run("own score", func(t *testing.T) {
		entries, err := NewStandingsCalculator().Compute(byeSnapshot(models.ByeBuchholzOwnScore), 0, criteria)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a", "b"}, rankedIDs(entries))
		assert.Equal(t, 1.0, entries[0].Points)
		assert.Equal(t, 1.0, tiebreakValue(entries[0], models.TiebreakBuchholzFull))
		assert.Equal(t, 0, entries[0].GamesPlayed)
	})

	t.Run("zero", func(t *testing.T) {
		entries, err := NewStandingsCalculator().Compute(byeSnapshot(models.ByeBuchholzZero), 0, criteria)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c", "b"}, rankedIDs(entries))
		assert.Equal(t, 0.0, tiebreakValue(entries[1], models.TiebreakBuchholzFull))
		assert.True(t, entries[1].SharedRank)
	})

	t.Run("field average", func(t *testing.T) {
		entries, err := NewStandingsCalculator().Compute(byeSnapshot(models.ByeBuchholzAverage), 0, criteria)
		require.NoError(t, err)
		assert.Equal(t, "c", entries[0].PlayerID)
		assert.Equal(t, 0.67, tiebreakValue(entries[0], models.TiebreakBuchholzFull))
	})
}

func TestStandingsMissedRoundPolicy(t *testing.T) {
	snapshot := byeSnapshot(models.ByeBuchholzOwnScore)
	snapshot.Tournament.MissedRoundPolicy = models.MissedRoundHalf
	absent := testPlayer("d", 1500)
	withdrawn := testPlayer("e", 1400)
	withdrawn.Status = models.PlayerStatusWithdrawn
	zero := 0
	withdrawn.WithdrawnAfterRound = &zero
	snapshot.Players = append(snapshot.Players, absent, withdrawn)

	entries, err := NewStandingsCalculator().Compute(snapshot, 0, nil)
	require.NoError(t, err)

	points := make(map[string]float64)
	for _, entry := range entries {
		points[entry.PlayerID] = entry.Points
	}
	assert.Equal(t, 0.5, points["d"])
	assert.Equal(t, 0.0, points["e"])
	assert.Equal(t, 1.0, points["c"])
}

func TestStandingsForfeitOpponentCountsForBuchholz(t *testing.T) {
	forfeit := decidedGame(1, 1, "a", "b", models.ResultWhiteWins)
	rt := models.ResultTypeForfeit
	forfeit.ResultType = &rt
	snapshot := models.TournamentSnapshot{
		Tournament: standingsTournament(models.ByeBuchholzOwnScore),
		Players:    []models.Player{testPlayer("a", 1800), testPlayer("b", 1700)},
		Games:      []models.Game{forfeit},
	}

	entries, err := NewStandingsCalculator().Compute(snapshot, 0, []models.TiebreakType{models.TiebreakBuchholzFull, models.TiebreakWins})
	require.NoError(t, err)
	assert.Equal(t, "a", entries[0].PlayerID)
	assert.Equal(t, 1.0, entries[0].Points)
	assert.Equal(t, 0.0, tiebreakValue(entries[0], models.TiebreakBuchholzFull))
	assert.Equal(t, 1.0, tiebreakValue(entries[1], models.TiebreakBuchholzFull))
	assert.Equal(t, 1.0, tiebreakValue(entries[0], models.TiebreakWins))
}

// crosstableSnapshot is a three-round, six-player event:
//
//	     r1        r2        r3        pts
//	a    d W 1     c B 1     b W 1     3
//	b    e W 1/2   f W 1     a B 0     1.5
//	c    f B 1     a W 0     d B 1/2   1.5
//	d    a B 0     e W 1     c W 1/2   1.5
//	e    b B 1/2   d B 0     f B 1     1.5
//	f    c W 0     b B 0     e W 0     0
func crosstableSnapshot() models.TournamentSnapshot {
	return models.TournamentSnapshot{
		Tournament: standingsTournament(models.ByeBuchholzOwnScore),
		Players: []models.Player{
			testPlayer("a", 2000), testPlayer("b", 1900), testPlayer("c", 1800),
			testPlayer("d", 1700), testPlayer("e", 1600), testPlayer("f", 1500),
		},
		Games: []models.Game{
			decidedGame(1, 1, "a", "d", models.ResultWhiteWins),
			decidedGame(1, 2, "b", "e", models.ResultDraw),
			decidedGame(1, 3, "f", "c", models.ResultBlackWins),
			decidedGame(2, 1, "c", "a", models.ResultBlackWins),
			decidedGame(2, 2, "b", "f", models.ResultWhiteWins),
			decidedGame(2, 3, "d", "e", models.ResultWhiteWins),
			decidedGame(3, 1, "a", "b", models.ResultWhiteWins),
			decidedGame(3, 2, "d", "c", models.ResultDraw),
			decidedGame(3, 3, "f", "e", models.ResultBlackWins),
		},
	}
}

func TestStandingsTiebreakValues(t *testing.T) {
	cases := []struct {
		name      string
		through   int
		player    string
		criterion models.TiebreakType
		want      float64
	}{
		{"buchholz full", 0, "d", models.TiebreakBuchholzFull, 6},
		{"buchholz full with a zero opponent", 0, "e", models.TiebreakBuchholzFull, 3},
		{"buchholz cut1 drops the lowest", 0, "a", models.TiebreakBuchholzCut1, 3},
		{"buchholz cut1 drops a zero", 0, "b", models.TiebreakBuchholzCut1, 4.5},
		{"buchholz cut2 keeps the middle", 0, "d", models.TiebreakBuchholzCut2, 1.5},
		{"median keeps the middle", 0, "b", models.TiebreakMedianBuchholz, 1.5},
		{"buchholz cut2 with two opponents cuts nothing", 2, "d", models.TiebreakBuchholzCut2, 2.5},
		{"median with two opponents cuts nothing", 2, "a", models.TiebreakMedianBuchholz, 2},
		{"sonneborn-berger of a perfect score", 0, "a", models.TiebreakSonnebornBerger, 4.5},
		{"sonneborn-berger with a win and a draw", 0, "d", models.TiebreakSonnebornBerger, 2.25},
		{"sonneborn-berger with a draw", 0, "b", models.TiebreakSonnebornBerger, 0.75},
		{"sonneborn-berger without points", 0, "f", models.TiebreakSonnebornBerger, 0},
		{"aro", 0, "b", models.TiebreakARO, 1700},
		{"aro rounds to nearest", 0, "c", models.TiebreakARO, 1733},
		{"aro cut1", 0, "c", models.TiebreakAROCut1, 1850},
		{"aro cut2", 0, "b", models.TiebreakAROCut2, 1600},
		{"aro cut2 with two opponents cuts nothing", 2, "a", models.TiebreakAROCut2, 1750},
		{"tpr at a perfect score is aro plus 400", 0, "a", models.TiebreakTPR, 2200},
		{"tpr at zero is aro minus 400", 0, "f", models.TiebreakTPR, 1367},
		{"tpr at fifty percent is aro", 0, "d", models.TiebreakTPR, 1800},
		{"tpr perfect score after two rounds", 2, "a", models.TiebreakTPR, 2150},
		{"wins", 0, "a", models.TiebreakWins, 3},
		{"black games", 0, "e", models.TiebreakBlackGames, 3},
		{"black games single", 0, "a", models.TiebreakBlackGames, 1},
		{"black wins", 0, "a", models.TiebreakBlackWins, 1},
		{"black wins none as white winner", 0, "b", models.TiebreakBlackWins, 0},
		{"koya skips opponents below half", 0, "d", models.TiebreakKoya, 1.5},
		{"koya of a perfect score", 0, "a", models.TiebreakKoya, 3},
		{"koya with the win against a weak opponent", 0, "e", models.TiebreakKoya, 0.5},
		{"match points win draw loss", 0, "b", models.TiebreakMatchPoints, 3},
		{"match points all wins", 0, "a", models.TiebreakMatchPoints, 6},
		{"game points", 0, "c", models.TiebreakGamePoints, 1.5},
		{"board points top board", 0, "a", models.TiebreakBoardPoints, 9},
		{"board points mixed boards", 0, "b", models.TiebreakBoardPoints, 3},
		{"board points low boards", 0, "e", models.TiebreakBoardPoints, 2},
		{"cumulative", 0, "a", models.TiebreakCumulative, 6},
		{"cumulative tied total", 0, "c", models.TiebreakCumulative, 3.5},
		{"progressive", 0, "d", models.TiebreakProgressive, 2.5},
	}

	covered := make(map[models.TiebreakType]bool)
	var criteria []models.TiebreakType
	for _, tc := range cases {
		if !covered[tc.criterion] {
			covered[tc.criterion] = true
			criteria = append(criteria, tc.criterion)
		}
	}
	for criterion := range scalarTiebreaks {
		require.True(t, covered[criterion], "no value case for %s", criterion)
	}

	computed := make(map[int]map[string]models.StandingEntry)
	for _, through := range []int{0, 2} {
		entries, err := NewStandingsCalculator().Compute(crosstableSnapshot(), through, criteria)
		require.NoError(t, err)
		computed[through] = make(map[string]models.StandingEntry, len(entries))
		for _, entry := range entries {
			computed[through][entry.PlayerID] = entry
		}
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry, ok := computed[tc.through][tc.player]
			require.True(t, ok)
			assert.InDelta(t, tc.want, tiebreakValue(entry, tc.criterion), 1e-9)
		})
	}
}

func TestStandingsCumulativeOrdersByEarlierRounds(t *testing.T) {
	entries, err := NewStandingsCalculator().Compute(crosstableSnapshot(), 0, []models.TiebreakType{models.TiebreakCumulative})
	require.NoError(t, err)

	// c 1,1 / b .5,1.5 / e .5,.5 / d 0,1 after the first two rounds.
	assert.Equal(t, []string{"a", "c", "b", "e", "d", "f"}, rankedIDs(entries))
	assert.Equal(t, []float64{3, 1.5, 1.5, 1.5, 1.5, 0}, []float64{
		entries[0].Points, entries[1].Points, entries[2].Points, entries[3].Points, entries[4].Points, entries[5].Points,
	})
	for _, entry := range entries {
		assert.False(t, entry.SharedRank, entry.PlayerID)
	}
}

// TestStandingsDirectEncounterRecursesIntoTiedSubsets ties four players on 2 points.
// Among themselves m3 and m4 score 2 while m1 and m2 score 1, and m2 beat m1, so the
// second pair is separated by their own game.
func TestStandingsDirectEncounterRecursesIntoTiedSubsets(t *testing.T) {
	snapshot := models.TournamentSnapshot{
		Tournament: standingsTournament(models.ByeBuchholzOwnScore),
		Players: []models.Player{
			testPlayer("m1", 1800), testPlayer("m2", 1800), testPlayer("m3", 1800), testPlayer("m4", 1800),
			testPlayer("o1", 1500), testPlayer("o2", 1500), testPlayer("o3", 1500), testPlayer("o4", 1500),
		},
		Games: []models.Game{
			decidedGame(1, 1, "m1", "m2", models.ResultBlackWins),
			decidedGame(1, 2, "m3", "m4", models.ResultDraw),
			decidedGame(1, 3, "o1", "o2", models.ResultDraw),
			decidedGame(1, 4, "o3", "o4", models.ResultDraw),
			decidedGame(2, 1, "m1", "m3", models.ResultDraw),
			decidedGame(2, 2, "m2", "m4", models.ResultBlackWins),
			decidedGame(2, 3, "o1", "o3", models.ResultDraw),
			decidedGame(2, 4, "o2", "o4", models.ResultDraw),
			decidedGame(3, 1, "m1", "m4", models.ResultDraw),
			decidedGame(3, 2, "m2", "m3", models.ResultBlackWins),
			decidedGame(3, 3, "o1", "o4", models.ResultDraw),
			decidedGame(3, 4, "o2", "o3", models.ResultDraw),
			decidedGame(4, 1, "m1", "o1", models.ResultWhiteWins),
			decidedGame(4, 2, "m2", "o2", models.ResultWhiteWins),
			decidedGame(4, 3, "m3", "o3", models.ResultBlackWins),
			decidedGame(4, 4, "m4", "o4", models.ResultBlackWins),
		},
	}

	entries, err := NewStandingsCalculator().Compute(snapshot, 0, []models.TiebreakType{models.TiebreakDirectEncounter})
	require.NoError(t, err)
	require.Equal(t, []string{"o3", "o4", "m3", "m4", "m2", "m1", "o1", "o2"}, rankedIDs(entries))

	byID := make(map[string]models.StandingEntry, len(entries))
	for _, entry := range entries {
		byID[entry.PlayerID] = entry
	}
	for _, id := range []string{"m1", "m2", "m3", "m4"} {
		assert.Equal(t, 2.0, byID[id].Points, id)
	}
	assert.Equal(t, 1.0, tiebreakValue(byID["m2"], models.TiebreakDirectEncounter))
	assert.Equal(t, 0.0, tiebreakValue(byID["m1"], models.TiebreakDirectEncounter))
	assert.Equal(t, 0.5, tiebreakValue(byID["m3"], models.TiebreakDirectEncounter))
	assert.False(t, byID["m2"].SharedRank)
	assert.False(t, byID["m1"].SharedRank)
	assert.True(t, byID["m4"].SharedRank, "m3 and m4 drew and stay tied")
}

func TestStandingsRejectsUnknownTiebreak(t *testing.T) {
	_, err := NewStandingsCalculator().Compute(directEncounterSnapshot(), 0, []models.TiebreakType{"coin_flip"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tiebreak")
}

func TestStandingsAreDeterministic(t *testing.T) {
	criteria := []models.TiebreakType{models.TiebreakBuchholzCut1, models.TiebreakSonnebornBerger, models.TiebreakProgressive}
	base := directEncounterSnapshot()
	want, err := NewStandingsCalculator().Compute(base, 0, criteria)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := base
		shuffled.Players = append([]models.Player(nil), base.Players...)
		shuffled.Games = append([]models.Game(nil), base.Games...)
		rng.Shuffle(len(shuffled.Players), func(a, b int) { shuffled.Players[a], shuffled.Players[b] = shuffled.Players[b], shuffled.Players[a] })
		rng.Shuffle(len(shuffled.Games), func(a, b int) { shuffled.Games[a], shuffled.Games[b] = shuffled.Games[b], shuffled.Games[a] })

		got, err := NewStandingsCalculator().Compute(shuffled, 0, criteria)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("standings differ after shuffle (-want +got):\n%s", diff)
		}
	}
}
