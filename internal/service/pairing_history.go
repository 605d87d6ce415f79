package service

import (
	"sort"
	"sync"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
)

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// HistoryIndex maps unordered player pairs to the rounds they met in, and players to
// the rounds they received a bye. It is built once per tournament and extended as
// rounds are confirmed.
type HistoryIndex struct {
	mu      sync.RWMutex
	pairs   map[[2]string][]int
	byes    map[string][]int
	colors  map[string][]models.Color
	version int64
}

// NewHistoryIndex builds the index from stored games.
func NewHistoryIndex(games []models.Game) *HistoryIndex {
	idx := &HistoryIndex{
		pairs:  make(map[[2]string][]int),
		byes:   make(map[string][]int),
		colors: make(map[string][]models.Color),
	}
	sorted := append([]models.Game(nil), games...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RoundNumber != sorted[j].RoundNumber {
			return sorted[i].RoundNumber < sorted[j].RoundNumber
		}
		return sorted[i].BoardNumber < sorted[j].BoardNumber
	})
	for _, game := range sorted {
		idx.addGameLocked(game)
	}
	return idx
}

func (h *HistoryIndex) addGameLocked(game models.Game) {
	if game.IsBye() {
		h.byes[game.WhitePlayerID] = append(h.byes[game.WhitePlayerID], game.RoundNumber)
		return
	}
	black := *game.BlackPlayerID
	key := pairKey(game.WhitePlayerID, black)
	h.pairs[key] = append(h.pairs[key], game.RoundNumber)
	if outcome, err := game.Outcome(); err == nil && outcome != nil && !outcome.Played() {
		return
	}
	h.colors[game.WhitePlayerID] = append(h.colors[game.WhitePlayerID], models.ColorWhite)
	h.colors[black] = append(h.colors[black], models.ColorBlack)
}

// Add records confirmed games of a new round.
func (h *HistoryIndex) Add(games []models.Game) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, game := range games {
		h.addGameLocked(game)
	}
}

// Played reports whether a and b have already been paired.
func (h *HistoryIndex) Played(a, b string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pairs[pairKey(a, b)]) > 0
}

// Rounds returns the rounds in which a and b met.
func (h *HistoryIndex) Rounds(a, b string) []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]int(nil), h.pairs[pairKey(a, b)]...)
}

// HadBye reports whether the player already received a bye.
func (h *HistoryIndex) HadBye(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byes[playerID]) > 0
}

// Colors returns the colors the player had in games actually played, oldest first.
func (h *HistoryIndex) Colors(playerID string) []models.Color {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]models.Color(nil), h.colors[playerID]...)
}

// Version is the tournament results version the index reflects.
func (h *HistoryIndex) Version() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

func (h *HistoryIndex) setVersion(version int64) {
	h.mu.Lock()
	h.version = version
	h.mu.Unlock()
}

// historyRegistry keeps one index per tournament.
type historyRegistry struct {
	mu      sync.Mutex
	indexes map[string]*HistoryIndex
}

func newHistoryRegistry() *historyRegistry {
	return &historyRegistry{indexes: make(map[string]*HistoryIndex)}
}

// forSnapshot returns the cached index when it matches the snapshot's version and
// rebuilds it otherwise.
func (r *historyRegistry) forSnapshot(snapshot *models.TournamentSnapshot) *HistoryIndex {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := snapshot.Tournament.ID
	if idx, ok := r.indexes[id]; ok && idx.Version() == snapshot.Tournament.ResultsVersion {
		return idx
	}
	idx := NewHistoryIndex(snapshot.Games)
	idx.setVersion(snapshot.Tournament.ResultsVersion)
	r.indexes[id] = idx
	return idx
}

// extend appends confirmed games when the cached index is at the previous version,
// otherwise drops it so the next read rebuilds.
func (r *historyRegistry) extend(tournamentID string, fromVersion, toVersion int64, games []models.Game) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.indexes[tournamentID]
	if !ok {
		return
	}
	if idx.Version() != fromVersion {
		delete(r.indexes, tournamentID)
		return
	}
	idx.Add(games)
	idx.setVersion(toVersion)
}

func (r *historyRegistry) drop(tournamentID string) {
	r.mu.Lock()
	delete(r.indexes, tournamentID)
	r.mu.Unlock()
}
