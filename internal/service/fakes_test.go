package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
	"github.com/noah-isme/swiss-arbiter-api/internal/repository"
	appErrors "github.com/noah-isme/swiss-arbiter-api/pkg/errors"
	"github.com/noah-isme/swiss-arbiter-api/pkg/events"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() {
		db.Close()
	})
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

// memoryStore backs the fake repositories. Writes are not undone on rollback, so tests
// only rely on state written by committed transactions.
type memoryStore struct {
	mu           sync.Mutex
	seq          int
	tournaments  map[string]models.Tournament
	players      map[string]models.Player
	rounds       map[string]models.Round
	games        map[string]models.Game
	auditLogs    []models.AuditLog
	resultAudits []models.ResultAudit
	ratings      []models.RatingChange
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		tournaments: make(map[string]models.Tournament),
		players:     make(map[string]models.Player),
		rounds:      make(map[string]models.Round),
		games:       make(map[string]models.Game),
	}
}

func (m *memoryStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memoryStore) addTournament(t models.Tournament) models.Tournament {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = m.nextID("t")
	}
	m.tournaments[t.ID] = t
	return t
}

func (m *memoryStore) addPlayer(p models.Player) models.Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = m.nextID("p")
	}
	if p.Status == "" {
		p.Status = models.PlayerStatusActive
	}
	if p.JoinedRound == 0 {
		p.JoinedRound = 1
	}
	m.players[p.ID] = p
	return p
}

func (m *memoryStore) addRound(r models.Round) models.Round {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = m.nextID("r")
	}
	m.rounds[r.ID] = r
	return r
}

func (m *memoryStore) addGame(g models.Game) models.Game {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == "" {
		g.ID = m.nextID("g")
	}
	m.games[g.ID] = g
	return g
}

func (m *memoryStore) tournament(id string) models.Tournament {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tournaments[id]
}

func (m *memoryStore) round(id string) models.Round {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rounds[id]
}

func (m *memoryStore) game(id string) models.Game {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.games[id]
}

func (m *memoryStore) gamesOfRound(roundID string) []models.Game {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Game
	for _, g := range m.games {
		if g.RoundID == roundID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BoardNumber < out[j].BoardNumber })
	return out
}

func (m *memoryStore) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.auditLogs))
	for i, entry := range m.auditLogs {
		out[i] = entry.Action
	}
	return out
}

func (m *memoryStore) resultAuditCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resultAudits)
}

type fakeTournaments struct{ *memoryStore }

func (f fakeTournaments) Create(_ context.Context, t *models.Tournament) error {
	stored := f.addTournament(*t)
	*t = stored
	return nil
}

func (f fakeTournaments) FindByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.Tournament, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tournaments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (f fakeTournaments) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Tournament, error) {
	return f.FindByID(ctx, exec, id)
}

func (f fakeTournaments) BumpResultsVersion(_ context.Context, _ sqlx.ExtContext, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tournaments[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	t.ResultsVersion++
	f.tournaments[id] = t
	return t.ResultsVersion, nil
}

func (f fakeTournaments) AdvanceCurrentRound(_ context.Context, _ sqlx.ExtContext, id string, roundNumber int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tournaments[id]
	if !ok || t.CurrentRound >= roundNumber {
		return false, nil
	}
	t.CurrentRound = roundNumber
	f.tournaments[id] = t
	return true, nil
}

type fakePlayers struct{ *memoryStore }

func (f fakePlayers) Create(_ context.Context, _ sqlx.ExtContext, p *models.Player) error {
	stored := f.addPlayer(*p)
	*p = stored
	return nil
}

func (f fakePlayers) FindByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (f fakePlayers) ListByTournament(_ context.Context, _ sqlx.ExtContext, tournamentID string) ([]models.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Player
	for _, p := range f.players {
		if p.TournamentID == tournamentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f fakePlayers) UpdateStatus(_ context.Context, _ sqlx.ExtContext, id string, status models.PlayerStatus, withdrawnAfter *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Status = status
	p.WithdrawnAfterRound = withdrawnAfter
	f.players[id] = p
	return nil
}

func (f fakePlayers) UpdateRating(_ context.Context, _ sqlx.ExtContext, id string, rating int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Rating = rating
	f.players[id] = p
	return nil
}

type fakeRounds struct{ *memoryStore }

func (f fakeRounds) Create(_ context.Context, _ sqlx.ExtContext, round *models.Round) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rounds {
		if r.TournamentID == round.TournamentID && r.RoundNumber == round.RoundNumber {
			return repository.ErrDuplicate
		}
	}
	round.ID = f.nextID("r")
	round.Status = models.RoundStatusPlanned
	f.rounds[round.ID] = *round
	return nil
}

func (f fakeRounds) CreateNext(ctx context.Context, exec sqlx.ExtContext, round *models.Round) error {
	f.mu.Lock()
	next := 1
	for _, r := range f.rounds {
		if r.TournamentID == round.TournamentID && r.RoundNumber >= next {
			next = r.RoundNumber + 1
		}
	}
	f.mu.Unlock()
	round.RoundNumber = next
	return f.Create(ctx, exec, round)
}

func (f fakeRounds) FindByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rounds[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (f fakeRounds) FindByNumber(_ context.Context, _ sqlx.ExtContext, tournamentID string, number int) (*models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rounds {
		if r.TournamentID == tournamentID && r.RoundNumber == number {
			found := r
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f fakeRounds) FindLatest(ctx context.Context, exec sqlx.ExtContext, tournamentID string) (*models.Round, error) {
	rounds, _ := f.ListByTournament(ctx, exec, tournamentID)
	if len(rounds) == 0 {
		return nil, sql.ErrNoRows
	}
	latest := rounds[len(rounds)-1]
	return &latest, nil
}

func (f fakeRounds) ListByTournament(_ context.Context, _ sqlx.ExtContext, tournamentID string) ([]models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Round
	for _, r := range f.rounds {
		if r.TournamentID == tournamentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out, nil
}

func (f fakeRounds) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Round, error) {
	return f.FindByID(ctx, exec, id)
}

func (f fakeRounds) UpdateStatus(_ context.Context, _ sqlx.ExtContext, params repository.UpdateStatusParams) (*models.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rounds[params.RoundID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if r.Status != params.Expected {
		return nil, repository.ErrStaleState
	}
	r.Status = params.Target
	at := params.At
	switch params.Target {
	case models.RoundStatusCompleted:
		if r.CompletedAt == nil {
			r.CompletedAt = &at
		}
	case models.RoundStatusVerified:
		if r.VerifiedAt == nil {
			actor := params.Actor
			r.VerifiedAt = &at
			r.VerifiedBy = &actor
		}
	}
	f.rounds[r.ID] = r
	return &r, nil
}

type fakeGames struct{ *memoryStore }

func (f fakeGames) ListByRound(_ context.Context, _ sqlx.ExtContext, roundID string) ([]models.Game, error) {
	return f.gamesOfRound(roundID), nil
}

func (f fakeGames) InsertBatch(_ context.Context, _ sqlx.ExtContext, games []models.Game) error {
	for i := range games {
		games[i] = f.addGame(games[i])
	}
	return nil
}

func (f fakeGames) FindByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &g, nil
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (f fakeGames) UpdateResult(_ context.Context, _ sqlx.ExtContext, params repository.UpdateResultParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[params.GameID]
	if !ok || !equalPtr(g.Result, params.OldResult) || !equalPtr(g.ResultType, params.OldResultType) {
		return repository.ErrStaleState
	}
	result, resultType := params.Result, params.ResultType
	g.Result = &result
	g.ResultType = &resultType
	g.ResultReason = params.Reason
	if params.Notes != nil {
		g.ArbiterNotes = params.Notes
	}
	g.RequiresApproval = params.RequiresApproval
	g.Approved = params.Approved
	f.games[g.ID] = g
	return nil
}

func (f fakeGames) Approve(_ context.Context, _ sqlx.ExtContext, gameID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok || g.Approved || g.Result == nil {
		return false, nil
	}
	g.Approved = true
	f.games[gameID] = g
	return true, nil
}

type fakeAuditLogs struct{ *memoryStore }

func (f fakeAuditLogs) Create(_ context.Context, _ sqlx.ExtContext, log *models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	log.ID = f.nextID("audit")
	f.auditLogs = append(f.auditLogs, *log)
	return nil
}

type fakeResultAudits struct{ *memoryStore }

func (f fakeResultAudits) Append(_ context.Context, _ sqlx.ExtContext, record *models.ResultAudit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record.ID = f.nextID("ra")
	record.Sequence = int64(len(f.resultAudits) + 1)
	f.resultAudits = append(f.resultAudits, *record)
	return nil
}

func (f fakeResultAudits) ListByGame(_ context.Context, gameID string) ([]models.ResultAudit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ResultAudit
	for _, record := range f.resultAudits {
		if record.GameID == gameID {
			out = append(out, record)
		}
	}
	return out, nil
}

type fakeRatings struct{ *memoryStore }

func (f fakeRatings) Insert(_ context.Context, _ sqlx.ExtContext, change *models.RatingChange) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.ratings {
		if existing.GameID == change.GameID && existing.PlayerID == change.PlayerID {
			return false, nil
		}
	}
	change.ID = f.nextID("rc")
	f.ratings = append(f.ratings, *change)
	return true, nil
}

func (f fakeRatings) ListByPlayer(_ context.Context, playerID string) ([]models.RatingChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RatingChange
	for _, change := range f.ratings {
		if change.PlayerID == playerID {
			out = append(out, change)
		}
	}
	return out, nil
}

type fakeSnapshots struct{ *memoryStore }

func (f fakeSnapshots) Load(_ context.Context, tournamentID string) (*models.TournamentSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tournaments[tournamentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	snapshot := &models.TournamentSnapshot{Tournament: t}
	for _, p := range f.players {
		if p.TournamentID == tournamentID {
			snapshot.Players = append(snapshot.Players, p)
		}
	}
	for _, r := range f.rounds {
		if r.TournamentID == tournamentID {
			snapshot.Rounds = append(snapshot.Rounds, r)
		}
	}
	for _, g := range f.games {
		if g.TournamentID == tournamentID {
			snapshot.Games = append(snapshot.Games, g)
		}
	}
	sort.Slice(snapshot.Players, func(i, j int) bool { return snapshot.Players[i].ID < snapshot.Players[j].ID })
	sort.Slice(snapshot.Rounds, func(i, j int) bool { return snapshot.Rounds[i].RoundNumber < snapshot.Rounds[j].RoundNumber })
	sort.Slice(snapshot.Games, func(i, j int) bool {
		if snapshot.Games[i].RoundNumber != snapshot.Games[j].RoundNumber {
			return snapshot.Games[i].RoundNumber < snapshot.Games[j].RoundNumber
		}
		return snapshot.Games[i].BoardNumber < snapshot.Games[j].BoardNumber
	})
	return snapshot, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, event := range p.events {
		out[i] = event.Type
	}
	return out
}

type fakeCacheRepo struct {
	mu          sync.Mutex
	items       map[string][]byte
	gets        int
	invalidated []string
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{items: make(map[string][]byte)}
}

func (c *fakeCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *fakeCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = raw
	return nil
}

func (c *fakeCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
	return nil
}

func (c *fakeCacheRepo) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.items))
	for key := range c.items {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
