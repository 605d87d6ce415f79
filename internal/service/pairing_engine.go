package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/swiss-arbiter-api/internal/dto"
	"github.com/noah-isme/swiss-arbiter-api/internal/models"
	appErrors "github.com/noah-isme/swiss-arbiter-api/pkg/errors"
)

const (
	maxSameColorRun      = 2
	defaultMatchingSteps = 200000
)

// Relaxation constraints surfaced as warnings.
const (
	ConstraintRematch    = "rematch"
	ConstraintRepeatBye  = "repeat_bye"
	ConstraintColor      = "color"
	ConstraintNoGames    = "no_games"
	ConstraintByeAllowed = "bye"
)

// PairingOptions toggles the engine's soft constraints.
type PairingOptions struct {
	AvoidRematches bool
	BalanceColors  bool
	AllowByes      bool
}

// PairingPlayer is an eligible player as seen by the engine.
type PairingPlayer struct {
	ID     string
	Rating int
	Points float64
}

// PairingInput is everything the engine needs for one round.
type PairingInput struct {
	RoundNumber int
	Method      models.PairingMethod
	Players     []PairingPlayer
	History     *HistoryIndex
	Options     PairingOptions
}

// ProposedPairing is an unpersisted board. An empty Black marks a bye.
type ProposedPairing struct {
	Board   int
	White   string
	Black   string
	Rematch bool
}

// IsBye reports whether the board is a bye.
func (p ProposedPairing) IsBye() bool { return p.Black == "" }

// PairingResult is the engine output.
type PairingResult struct {
	Pairings []ProposedPairing
	Warnings []dto.PairingWarning
}

// PairingEngine produces Swiss pairings. It holds no state and is safe for concurrent use.
type PairingEngine struct {
	maxSteps int
}

// NewPairingEngine constructs the engine.
func NewPairingEngine() *PairingEngine {
	return &PairingEngine{maxSteps: defaultMatchingSteps}
}

type seeded struct {
	PairingPlayer
	seed   int
	colors []models.Color
}

// Generate pairs the players for input.RoundNumber.
func (e *PairingEngine) Generate(input PairingInput) (*PairingResult, error) {
	method := input.Method
	if method == "" {
		method = models.PairingMethodDutch
	}
	if !method.Valid() {
		return nil, appErrors.Validation("unknown pairing method", appErrors.FieldError{Field: "method", Message: fmt.Sprintf("%q is not supported", method)})
	}
	history := input.History
	if history == nil {
		history = NewHistoryIndex(nil)
	}

	result := &PairingResult{}
	if len(input.Players) < 2 {
		result.Warnings = append(result.Warnings, dto.PairingWarning{
			Constraint: ConstraintNoGames,
			Message:    "fewer than two eligible players, no games to pair",
		})
		return result, nil
	}

	players := make([]*seeded, len(input.Players))
	for i := range input.Players {
		players[i] = &seeded{PairingPlayer: input.Players[i], colors: history.Colors(input.Players[i].ID)}
	}
	sort.SliceStable(players, func(i, j int) bool {
		a, b := players[i], players[j]
		if c := compareFloat(a.Points, b.Points); c != 0 {
			return c > 0
		}
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		return a.ID < b.ID
	})
	for i, p := range players {
		p.seed = i + 1
	}

	var (
		bye        *seeded
		byeOptions []*seeded
		field      = players
	)
	if len(players)%2 == 1 {
		options, relaxation, err := byeCandidates(players, history, input.Options.AllowByes)
		if err != nil {
			return nil, err
		}
		if relaxation != nil {
			result.Warnings = append(result.Warnings, *relaxation)
		}
		bye, byeOptions = options[0], options[1:]
		field = removeSeeded(players, bye)
	}

	pairs, warnings, err := e.pairScoreGroups(field, history, method, input.Options.AvoidRematches)
	if err != nil {
		return nil, err
	}
	if len(warnings) > 0 && input.Options.AvoidRematches {
		// A different bye receiver may leave a field that pairs without rematches.
		for _, alt := range byeOptions {
			if altPairs, ok := e.pairWithoutRematches(removeSeeded(players, alt), history, method); ok {
				bye, pairs, warnings = alt, altPairs, nil
				break
			}
		}
	}
	result.Warnings = append(result.Warnings, warnings...)

	for _, pair := range pairs {
		white, black, relaxed := assignColors(pair[0], pair[1], input.RoundNumber, input.Options.BalanceColors)
		if relaxed != nil {
			result.Warnings = append(result.Warnings, *relaxed)
		}
		result.Pairings = append(result.Pairings, ProposedPairing{
			White:   white.ID,
			Black:   black.ID,
			Rematch: history.Played(white.ID, black.ID),
		})
	}
	orderBoards(result.Pairings, players)
	if bye != nil {
		result.Pairings = append(result.Pairings, ProposedPairing{White: bye.ID})
	}
	for i := range result.Pairings {
		result.Pairings[i].Board = i + 1
	}

	if err := CheckPairings(result.Pairings, history, result.Warnings); err != nil {
		return nil, err
	}
	return result, nil
}

// byeCandidates lists the players who may take the bye, lowest-ranked first: fewest
// points, then lowest rating, then lowest seed. When everyone already had a bye and
// repeats are allowed, only the lowest-ranked player is offered, with a warning.
func byeCandidates(players []*seeded, history *HistoryIndex, allowRepeat bool) ([]*seeded, *dto.PairingWarning, error) {
	ordered := append([]*seeded(nil), players...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if c := compareFloat(a.Points, b.Points); c != 0 {
			return c < 0
		}
		if a.Rating != b.Rating {
			return a.Rating < b.Rating
		}
		return a.seed > b.seed
	})
	var fresh []*seeded
	for _, p := range ordered {
		if !history.HadBye(p.ID) {
			fresh = append(fresh, p)
		}
	}
	if len(fresh) > 0 {
		return fresh, nil, nil
	}
	if !allowRepeat {
		return nil, nil, appErrors.WithDetails(appErrors.ErrPairingInfeasible,
			"every eligible player already received a bye", map[string]string{"constraint": ConstraintByeAllowed})
	}
	chosen := ordered[0]
	return []*seeded{chosen}, &dto.PairingWarning{
		Constraint: ConstraintRepeatBye,
		PlayerIDs:  []string{chosen.ID},
		Message:    "every eligible player already had a bye; assigned a second bye to the lowest-ranked player",
	}, nil
}

func removeSeeded(players []*seeded, target *seeded) []*seeded {
	out := make([]*seeded, 0, len(players)-1)
	for _, p := range players {
		if p != target {
			out = append(out, p)
		}
	}
	return out
}

// pairScoreGroups pairs the field score group by score group from the top. Rematches
// are only used when no rematch-free pairing of the whole field exists; the fallback
// then prefers fresh opponents wherever it can.
func (e *PairingEngine) pairScoreGroups(players []*seeded, history *HistoryIndex, method models.PairingMethod, avoidRematches bool) ([][2]*seeded, []dto.PairingWarning, error) {
	if len(players) == 0 {
		return nil, nil, nil
	}
	if avoidRematches {
		if pairs, ok := e.pairWithoutRematches(players, history, method); ok {
			return pairs, nil, nil
		}
	}

	m := e.newMatcher(players, method, func(*seeded, *seeded) bool { return true })
	if avoidRematches {
		m.prefer = func(a, b *seeded) bool { return !history.Played(a.ID, b.ID) }
	}
	pairs, ok := m.walk(scoreGroups(players), nil)
	if !ok {
		return nil, nil, appErrors.WithDetails(appErrors.ErrPairingInfeasible,
			"unable to complete pairings", map[string]string{"constraint": ConstraintRematch})
	}
	var warnings []dto.PairingWarning
	for _, pair := range pairs {
		if history.Played(pair[0].ID, pair[1].ID) {
			warnings = append(warnings, dto.PairingWarning{
				Constraint: ConstraintRematch,
				PlayerIDs:  []string{pair[0].ID, pair[1].ID},
				Message:    fmt.Sprintf("players already met in round(s) %s", joinInts(history.Rounds(pair[0].ID, pair[1].ID))),
			})
		}
	}
	return pairs, warnings, nil
}

// pairWithoutRematches pairs an even field with no repeated pair, or reports false.
func (e *PairingEngine) pairWithoutRematches(players []*seeded, history *HistoryIndex, method models.PairingMethod) ([][2]*seeded, bool) {
	if len(players)%2 == 1 {
		return nil, false
	}
	m := e.newMatcher(players, method, func(a, b *seeded) bool { return !history.Played(a.ID, b.ID) })
	return m.walk(scoreGroups(players), nil)
}

// scoreGroups splits seed-ordered players into runs of equal points.
func scoreGroups(players []*seeded) [][]*seeded {
	var groups [][]*seeded
	for i := 0; i < len(players); {
		j := i + 1
		for j < len(players) && compareFloat(players[j].Points, players[i].Points) == 0 {
			j++
		}
		groups = append(groups, players[i:j])
		i = j
	}
	return groups
}

// matcher searches pairings of one field under a fixed pair predicate. Sets of players
// known to have no perfect matching are remembered, as are walk states that failed, so
// the search over float choices stays bounded.
type matcher struct {
	method     models.PairingMethod
	allowed    func(a, b *seeded) bool
	prefer     func(a, b *seeded) bool
	width      int
	steps      int
	limit      int
	failedSets map[string]bool
	failedWalk map[string]bool
}

func (e *PairingEngine) newMatcher(players []*seeded, method models.PairingMethod, allowed func(a, b *seeded) bool) *matcher {
	width := 0
	for _, p := range players {
		if p.seed > width {
			width = p.seed
		}
	}
	return &matcher{
		method:     method,
		allowed:    allowed,
		width:      width,
		limit:      e.maxSteps,
		failedSets: make(map[string]bool),
		failedWalk: make(map[string]bool),
	}
}

func (m *matcher) exhausted() bool { return m.steps > m.limit }

// setKey identifies a set of players by their seeds.
func (m *matcher) setKey(players []*seeded) string {
	key := make([]byte, m.width/8+1)
	for _, p := range players {
		key[p.seed/8] |= 1 << (p.seed % 8)
	}
	return string(key)
}

// walk pairs groups[0] together with the players carried down from above, then the
// remaining groups. An odd pool tries each possible floater, lowest first; when no
// choice works the whole pool is merged into the next group.
func (m *matcher) walk(groups [][]*seeded, carry []*seeded) ([][2]*seeded, bool) {
	pool := append(append([]*seeded(nil), carry...), groups[0]...)
	if len(groups) == 1 {
		return m.match(pool)
	}
	walkKey := fmt.Sprintf("%d:%s", len(groups), m.setKey(carry))
	if m.failedWalk[walkKey] {
		return nil, false
	}
	rest := groups[1:]

	if len(pool)%2 == 0 {
		if pairs, ok := m.match(pool); ok {
			if tail, ok := m.walk(rest, nil); ok {
				return append(pairs, tail...), true
			}
		}
	} else {
		for i := len(pool) - 1; i >= 0 && !m.exhausted(); i-- {
			pairs, ok := m.match(removeSeeded(pool, pool[i]))
			if !ok {
				continue
			}
			if tail, ok := m.walk(rest, []*seeded{pool[i]}); ok {
				return append(pairs, tail...), true
			}
		}
	}
	if m.exhausted() {
		return nil, false
	}
	if pairs, ok := m.walk(rest, pool); ok {
		return pairs, true
	}
	if !m.exhausted() {
		m.failedWalk[walkKey] = true
	}
	return nil, false
}

// match finds a perfect matching of pool honouring allowed. The top remaining player is
// tried against candidates in the method's preference order.
func (m *matcher) match(pool []*seeded) ([][2]*seeded, bool) {
	if len(pool)%2 == 1 {
		return nil, false
	}
	var solve func(remaining []*seeded) ([][2]*seeded, bool)
	solve = func(remaining []*seeded) ([][2]*seeded, bool) {
		if len(remaining) == 0 {
			return nil, true
		}
		key := m.setKey(remaining)
		if m.failedSets[key] {
			return nil, false
		}
		m.steps++
		if m.exhausted() {
			return nil, false
		}
		top := remaining[0]
		for _, ci := range candidateOrder(remaining, m.method, m.prefer) {
			candidate := remaining[ci]
			if !m.allowed(top, candidate) {
				continue
			}
			rest := make([]*seeded, 0, len(remaining)-2)
			for k := 1; k < len(remaining); k++ {
				if k != ci {
					rest = append(rest, remaining[k])
				}
			}
			if tail, ok := solve(rest); ok {
				return append([][2]*seeded{{top, candidate}}, tail...), true
			}
			if m.exhausted() {
				return nil, false
			}
		}
		m.failedSets[key] = true
		return nil, false
	}
	return solve(pool)
}

// candidateOrder lists partner indexes for remaining[0]. Dutch starts from the top of
// the lower half and walks down, then back up; adjacent walks down from the neighbour.
// In a pool mixing scores, closer scores come first.
func candidateOrder(remaining []*seeded, method models.PairingMethod, prefer func(a, b *seeded) bool) []int {
	n := len(remaining)
	order := make([]int, 0, n-1)
	if method == models.PairingMethodAdjacent {
		for i := 1; i < n; i++ {
			order = append(order, i)
		}
	} else {
		half := n / 2
		for i := half; i < n; i++ {
			order = append(order, i)
		}
		for i := half - 1; i >= 1; i-- {
			order = append(order, i)
		}
	}
	top := remaining[0]
	gap := func(i int) float64 {
		d := top.Points - remaining[i].Points
		if d < 0 {
			return -d
		}
		return d
	}
	sort.SliceStable(order, func(i, j int) bool {
		return compareFloat(gap(order[i]), gap(order[j])) < 0
	})
	if prefer == nil {
		return order
	}
	sort.SliceStable(order, func(i, j int) bool {
		return prefer(top, remaining[order[i]]) && !prefer(top, remaining[order[j]])
	})
	return order
}

type colorPreference struct {
	color    models.Color
	strength int
}

const (
	preferenceNone = iota
	preferenceMild
	preferenceStrong
	preferenceAbsolute
)

// preferenceOf derives a player's color wish from their history.
func preferenceOf(colors []models.Color, balance bool) colorPreference {
	n := len(colors)
	if n >= maxSameColorRun && colors[n-1] == colors[n-2] {
		return colorPreference{color: colors[n-1].Opposite(), strength: preferenceAbsolute}
	}
	if balance {
		diff := 0
		for _, c := range colors {
			if c == models.ColorWhite {
				diff++
			} else {
				diff--
			}
		}
		if diff > 0 {
			return colorPreference{color: models.ColorBlack, strength: preferenceStrong}
		}
		if diff < 0 {
			return colorPreference{color: models.ColorWhite, strength: preferenceStrong}
		}
	}
	if n > 0 {
		return colorPreference{color: colors[n-1].Opposite(), strength: preferenceMild}
	}
	return colorPreference{strength: preferenceNone}
}

// assignColors returns (white, black). a is the higher seed.
func assignColors(a, b *seeded, round int, balance bool) (*seeded, *seeded, *dto.PairingWarning) {
	if a.seed > b.seed {
		a, b = b, a
	}
	pa, pb := preferenceOf(a.colors, balance), preferenceOf(b.colors, balance)
	higherFirst := round%2 == 1

	var whiteIsA bool
	switch {
	case pa.strength == preferenceNone && pb.strength == preferenceNone:
		whiteIsA = higherFirst
	case pb.strength == preferenceNone:
		whiteIsA = pa.color == models.ColorWhite
	case pa.strength == preferenceNone:
		whiteIsA = pb.color == models.ColorBlack
	case pa.color != pb.color:
		whiteIsA = pa.color == models.ColorWhite
	case pa.strength > pb.strength:
		whiteIsA = pa.color == models.ColorWhite
	case pb.strength > pa.strength:
		whiteIsA = pb.color == models.ColorBlack
	default:
		if higherFirst {
			whiteIsA = pa.color == models.ColorWhite
		} else {
			whiteIsA = pb.color == models.ColorBlack
		}
	}

	white, black := a, b
	if !whiteIsA {
		white, black = b, a
	}
	var relaxed *dto.PairingWarning
	if pa.strength == preferenceAbsolute && pb.strength == preferenceAbsolute && pa.color == pb.color {
		loser := black
		if pa.color == models.ColorBlack {
			loser = white
		}
		relaxed = &dto.PairingWarning{
			Constraint: ConstraintColor,
			PlayerIDs:  []string{loser.ID},
			Message:    "both players required the same color; one receives a third consecutive game with the same color",
		}
	}
	return white, black, relaxed
}

// orderBoards sorts pairings by the strongest score on the board, then combined score,
// then the best seeds.
func orderBoards(pairings []ProposedPairing, players []*seeded) {
	byID := make(map[string]*seeded, len(players))
	for _, p := range players {
		byID[p.ID] = p
	}
	sort.SliceStable(pairings, func(i, j int) bool {
		wi, bi := byID[pairings[i].White], byID[pairings[i].Black]
		wj, bj := byID[pairings[j].White], byID[pairings[j].Black]
		maxI, maxJ := maxFloat(wi.Points, bi.Points), maxFloat(wj.Points, bj.Points)
		if c := compareFloat(maxI, maxJ); c != 0 {
			return c > 0
		}
		if c := compareFloat(wi.Points+bi.Points, wj.Points+bj.Points); c != 0 {
			return c > 0
		}
		return wi.seed+bi.seed < wj.seed+bj.seed
	})
}

// CheckPairings enforces the post-conditions of a pairing list: every player at most
// once, dense boards from 1, at most one bye, and no repeat bye or rematch that is not
// covered by a relaxation warning.
func CheckPairings(pairings []ProposedPairing, history *HistoryIndex, warnings []dto.PairingWarning) error {
	relaxed := make(map[string]bool)
	for _, w := range warnings {
		relaxed[w.Constraint+":"+strings.Join(sortedCopy(w.PlayerIDs), ",")] = true
	}
	infeasible := func(constraint, message string) error {
		return appErrors.WithDetails(appErrors.ErrPairingInfeasible, message, map[string]string{"constraint": constraint})
	}

	seen := make(map[string]bool)
	byes := 0
	for i, p := range pairings {
		if p.Board != i+1 {
			return infeasible("board_numbers", fmt.Sprintf("board %d out of sequence at position %d", p.Board, i+1))
		}
		ids := []string{p.White}
		if !p.IsBye() {
			ids = append(ids, p.Black)
		}
		for _, id := range ids {
			if id == "" {
				return infeasible("missing_player", fmt.Sprintf("missing player on board %d", p.Board))
			}
			if seen[id] {
				return infeasible("duplicate_player", fmt.Sprintf("player %q appears more than once", id))
			}
			seen[id] = true
		}
		if p.IsBye() {
			byes++
			if history != nil && history.HadBye(p.White) && !relaxed[ConstraintRepeatBye+":"+p.White] {
				return infeasible(ConstraintRepeatBye, fmt.Sprintf("player %q already received a bye", p.White))
			}
			continue
		}
		if history != nil && history.Played(p.White, p.Black) {
			key := ConstraintRematch + ":" + strings.Join(sortedCopy([]string{p.White, p.Black}), ",")
			if !relaxed[key] {
				return infeasible(ConstraintRematch, fmt.Sprintf("players %q and %q already met", p.White, p.Black))
			}
		}
	}
	if byes > 1 {
		return infeasible(ConstraintByeAllowed, "more than one bye in a round")
	}
	return nil
}

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}
