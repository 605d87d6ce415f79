package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/swiss-arbiter-api/internal/dto"
	"github.com/noah-isme/swiss-arbiter-api/internal/models"
	"github.com/noah-isme/swiss-arbiter-api/internal/repository"
	appErrors "github.com/noah-isme/swiss-arbiter-api/pkg/errors"
	"github.com/noah-isme/swiss-arbiter-api/pkg/events"
)

type pairingGameStore interface {
	ListByRound(ctx context.Context, exec sqlx.ExtContext, roundID string) ([]models.Game, error)
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, games []models.Game) error
}

// PairingServiceConfig holds tunables for proposal handling.
type PairingServiceConfig struct {
	ProposalTTL time.Duration
}

// PairingService generates pairing proposals and turns confirmed ones into games.
type PairingService struct {
	snapshots   snapshotLoader
	standings   *StandingsService
	engine      *PairingEngine
	rounds      roundStore
	tournaments tournamentStore
	games       pairingGameStore
	audit       auditLogWriter
	tx          txProvider
	locks       *WriterLocks
	history     *historyRegistry
	proposals   *pairingProposalStore
	publisher   events.Publisher
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewPairingService wires the pairing pipeline.
func NewPairingService(
	snapshots snapshotLoader,
	standings *StandingsService,
	engine *PairingEngine,
	rounds roundStore,
	tournaments tournamentStore,
	games pairingGameStore,
	audit auditLogWriter,
	tx txProvider,
	locks *WriterLocks,
	publisher events.Publisher,
	metrics *MetricsService,
	logger *zap.Logger,
	tracer trace.Tracer,
	cfg PairingServiceConfig,
) *PairingService {
	if engine == nil {
		engine = NewPairingEngine()
	}
	if locks == nil {
		locks = NewWriterLocks()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	s := &PairingService{
		snapshots:   snapshots,
		standings:   standings,
		engine:      engine,
		rounds:      rounds,
		tournaments: tournaments,
		games:       games,
		audit:       audit,
		tx:          tx,
		locks:       locks,
		history:     newHistoryRegistry(),
		publisher:   publisher,
		metrics:     metrics,
		validator:   newValidator(),
		logger:      logger,
		tracer:      defaultTracer(tracer),
		now:         func() time.Time { return time.Now().UTC() },
	}
	s.proposals = newPairingProposalStore(cfg.ProposalTTL, func() time.Time { return s.now() })
	return s
}

// GeneratePairings computes a proposal for a round in status pairing. Nothing is persisted.
func (s *PairingService) GeneratePairings(ctx context.Context, tournamentID string, roundNumber int, req dto.GeneratePairingsRequest) (*dto.PairingProposal, error) {
	ctx, span := s.tracer.Start(ctx, "PairingService.GeneratePairings")
	defer span.End()
	span.SetAttributes(attribute.String("tournament_id", tournamentID), attribute.Int("round_number", roundNumber))

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid pairing request")
	}
	snapshot, err := s.snapshots.Load(ctx, tournamentID)
	if err != nil {
		return nil, storeError(err, "tournament not found")
	}
	round, err := roundInSnapshot(snapshot, roundNumber)
	if err != nil {
		return nil, err
	}
	if round.Status != models.RoundStatusPairing {
		return nil, appErrors.WithDetails(appErrors.ErrStateTransition,
			fmt.Sprintf("round %d is %s; pairings are generated in status pairing", roundNumber, round.Status),
			map[string]string{"currentStatus": string(round.Status)})
	}
	if roundHasGames(snapshot, round.ID) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "pairings for this round are already confirmed")
	}

	method := models.PairingMethod(req.Method)
	if method == "" {
		method = snapshot.Tournament.PairingSystem
	}
	options := pairingOptionsFrom(req.Options, snapshot.Tournament)
	players, err := s.eligiblePlayers(snapshot, roundNumber)
	if err != nil {
		return nil, err
	}
	history := s.history.forSnapshot(snapshot)

	start := time.Now()
	result, err := s.engine.Generate(PairingInput{
		RoundNumber: roundNumber,
		Method:      method,
		Players:     players,
		History:     history,
		Options:     options,
	})
	if err != nil {
		s.metrics.ObservePairing(string(method), "infeasible", time.Since(start))
		span.RecordError(err)
		return nil, err
	}
	s.metrics.ObservePairing(string(method), "ok", time.Since(start))
	for _, warning := range result.Warnings {
		s.logger.Warn("pairing constraint relaxed",
			zap.String("tournament_id", tournamentID),
			zap.Int("round_number", roundNumber),
			zap.String("constraint", warning.Constraint),
			zap.Strings("players", warning.PlayerIDs))
	}

	now := s.now()
	proposal := pairingProposal{
		ID:             uuid.NewString(),
		TournamentID:   tournamentID,
		RoundNumber:    roundNumber,
		Method:         method,
		Pairings:       result.Pairings,
		Warnings:       result.Warnings,
		ResultsVersion: snapshot.Tournament.ResultsVersion,
		GeneratedAt:    now,
	}
	s.proposals.Save(proposal)

	return &dto.PairingProposal{
		ProposalID:   proposal.ID,
		TournamentID: tournamentID,
		RoundNumber:  roundNumber,
		Method:       string(method),
		Pairings:     pairingItems(result.Pairings),
		Warnings:     nonNilWarnings(result.Warnings),
		GeneratedAt:  now,
		ExpiresAt:    now.Add(s.proposals.ttl),
	}, nil
}

// ConfirmPairings persists a proposal, or an arbiter-edited list, as the round's games
// and moves the round from pairing to published. The caller's expected status is
// checked against the stored one.
func (s *PairingService) ConfirmPairings(ctx context.Context, tournamentID string, roundNumber int, req dto.ConfirmPairingsRequest, actor string) (*dto.ConfirmPairingsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "PairingService.ConfirmPairings")
	defer span.End()
	span.SetAttributes(attribute.String("tournament_id", tournamentID), attribute.Int("round_number", roundNumber))

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid confirmation payload")
	}
	expected, err := models.ParseRoundStatus(req.ExpectedStatus)
	if err != nil {
		return nil, appErrors.Validation("invalid expected status", appErrors.FieldError{Field: "expectedStatus", Message: err.Error()})
	}

	release, err := s.locks.acquire(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	defer release()

	snapshot, err := s.snapshots.Load(ctx, tournamentID)
	if err != nil {
		return nil, storeError(err, "tournament not found")
	}
	history := s.history.forSnapshot(snapshot)
	pairings, warnings, err := s.resolvePairings(snapshot, roundNumber, req, history)
	if err != nil {
		s.metrics.IncPairingConfirmed("rejected")
		return nil, err
	}

	baseVersion := snapshot.Tournament.ResultsVersion
	var (
		round   *models.Round
		games   []models.Game
		version int64
	)
	err = runInTx(ctx, s.tx, nil, func(tx *sqlx.Tx) error {
		tournament, err := s.tournaments.LockForUpdate(ctx, tx, tournamentID)
		if err != nil {
			return storeError(err, "tournament not found")
		}
		found, err := s.rounds.FindByNumber(ctx, tx, tournamentID, roundNumber)
		if err != nil {
			return storeError(err, "round not found")
		}
		locked, err := s.rounds.LockForUpdate(ctx, tx, found.ID)
		if err != nil {
			return storeError(err, "round not found")
		}
		if locked.Status != expected {
			s.metrics.IncConcurrencyConflict("pairing_confirm")
			return appErrors.WithDetails(appErrors.ErrConcurrencyConflict,
				fmt.Sprintf("round is %s, expected %s", locked.Status, expected),
				map[string]string{"currentStatus": string(locked.Status)})
		}
		if locked.Status != models.RoundStatusPairing {
			return appErrors.WithDetails(appErrors.ErrStateTransition,
				fmt.Sprintf("pairings can only be confirmed while the round is pairing, not %s", locked.Status),
				map[string]string{"from": string(locked.Status), "to": string(models.RoundStatusPublished)})
		}
		if tournament.ResultsVersion != baseVersion {
			s.metrics.IncConcurrencyConflict("pairing_confirm")
			return appErrors.Clone(appErrors.ErrConcurrencyConflict, "tournament results changed while confirming; retry against fresh state")
		}
		existing, err := s.games.ListByRound(ctx, tx, locked.ID)
		if err != nil {
			return storeError(err, "")
		}
		if len(existing) > 0 {
			return appErrors.Clone(appErrors.ErrConflict, "pairings for this round are already confirmed")
		}

		games = gamesFromPairings(pairings, locked)
		if err := s.games.InsertBatch(ctx, tx, games); err != nil {
			return storeError(err, "")
		}
		if version, err = s.tournaments.BumpResultsVersion(ctx, tx, tournamentID); err != nil {
			return storeError(err, "tournament not found")
		}
		round, err = s.rounds.UpdateStatus(ctx, tx, repository.UpdateStatusParams{
			RoundID:  locked.ID,
			Expected: locked.Status,
			Target:   models.RoundStatusPublished,
			Actor:    actor,
			At:       s.now(),
		})
		if err != nil {
			return storeError(err, "round not found")
		}
		return s.writeAudit(ctx, tx, round, actor, len(games), warnings)
	})
	if err != nil {
		s.metrics.IncPairingConfirmed("failed")
		span.RecordError(err)
		return nil, err
	}

	s.history.extend(tournamentID, baseVersion, version, games)
	if req.ProposalID != "" {
		s.proposals.Delete(req.ProposalID)
	}
	if s.standings != nil {
		s.standings.Invalidate(ctx, tournamentID)
	}
	s.metrics.IncPairingConfirmed("ok")
	s.metrics.IncRoundTransition(string(models.RoundStatusPublished))
	s.logger.Info("pairings confirmed",
		zap.String("tournament_id", tournamentID),
		zap.Int("round_number", roundNumber),
		zap.Int("boards", len(games)),
		zap.String("actor", actor))
	s.publish(ctx, events.TypePairingsConfirmed, tournamentID, map[string]interface{}{
		"roundId":     round.ID,
		"roundNumber": round.RoundNumber,
		"games":       games,
	})
	s.publish(ctx, events.TypeRoundStatusChanged, tournamentID, round)

	return &dto.ConfirmPairingsResponse{
		Round:          *round,
		Games:          games,
		Warnings:       warnings,
		ResultsVersion: version,
	}, nil
}

// resolvePairings picks the stored proposal or the edited list and validates it against
// the current field and history. A proposal is only valid for the results version it was
// generated from.
func (s *PairingService) resolvePairings(snapshot *models.TournamentSnapshot, roundNumber int, req dto.ConfirmPairingsRequest, history *HistoryIndex) ([]ProposedPairing, []dto.PairingWarning, error) {
	if len(req.Pairings) == 0 && req.ProposalID == "" {
		return nil, nil, appErrors.Validation("nothing to confirm",
			appErrors.FieldError{Field: "proposalId", Message: "provide a proposal id or an explicit pairing list"})
	}
	players, err := s.eligiblePlayers(snapshot, roundNumber)
	if err != nil {
		return nil, nil, err
	}

	if len(req.Pairings) == 0 {
		proposal, ok := s.proposals.Get(req.ProposalID)
		if !ok || proposal.TournamentID != snapshot.Tournament.ID || proposal.RoundNumber != roundNumber {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "pairing proposal not found or expired")
		}
		if proposal.ResultsVersion != snapshot.Tournament.ResultsVersion {
			s.metrics.IncConcurrencyConflict("pairing_confirm")
			return nil, nil, appErrors.WithDetails(appErrors.ErrConcurrencyConflict,
				"tournament changed since the proposal was generated; regenerate pairings",
				map[string]int64{"proposalVersion": proposal.ResultsVersion, "currentVersion": snapshot.Tournament.ResultsVersion})
		}
		if fields := coverageErrors(proposal.Pairings, players, roundNumber); len(fields) > 0 {
			s.metrics.IncConcurrencyConflict("pairing_confirm")
			return nil, nil, appErrors.WithDetails(appErrors.ErrConcurrencyConflict,
				"the pairable field no longer matches the proposal; regenerate pairings", fields)
		}
		if blocking := blockingRelaxations(proposal.Warnings, snapshot.Tournament.AllowRematches); len(blocking) > 0 && !req.AcceptRelaxations {
			return nil, nil, relaxationError(blocking)
		}
		if err := CheckPairings(proposal.Pairings, history, proposal.Warnings); err != nil {
			return nil, nil, err
		}
		return proposal.Pairings, proposal.Warnings, nil
	}

	submitted := make([]ProposedPairing, 0, len(req.Pairings))
	for _, edit := range req.Pairings {
		p := ProposedPairing{White: edit.WhitePlayerID}
		if edit.BlackPlayerID != nil {
			p.Black = *edit.BlackPlayerID
		}
		submitted = append(submitted, p)
	}
	if fields := coverageErrors(submitted, players, roundNumber); len(fields) > 0 {
		return nil, nil, appErrors.Validation("invalid pairing list", fields...)
	}

	pairings := make([]ProposedPairing, 0, len(submitted))
	var byes []ProposedPairing
	for _, p := range submitted {
		if p.IsBye() {
			byes = append(byes, p)
			continue
		}
		p.Rematch = history.Played(p.White, p.Black)
		pairings = append(pairings, p)
	}
	pairings = append(pairings, byes...)
	for i := range pairings {
		pairings[i].Board = i + 1
	}

	warnings := detectRelaxations(pairings, history)
	if blocking := blockingRelaxations(warnings, snapshot.Tournament.AllowRematches); len(blocking) > 0 && !req.AcceptRelaxations {
		return nil, nil, relaxationError(blocking)
	}
	if err := CheckPairings(pairings, history, warnings); err != nil {
		return nil, nil, err
	}
	return pairings, nonNilWarnings(warnings), nil
}

// coverageErrors reports seats taken by ineligible players, self pairings and eligible
// players left without a board.
func coverageErrors(pairings []ProposedPairing, players []PairingPlayer, roundNumber int) []appErrors.FieldError {
	eligible := make(map[string]bool, len(players))
	for _, p := range players {
		eligible[p.ID] = true
	}
	var fields []appErrors.FieldError
	seen := make(map[string]bool, len(players))
	for i, p := range pairings {
		field := fmt.Sprintf("pairings[%d]", i)
		if p.White == "" {
			fields = append(fields, appErrors.FieldError{Field: field, Message: "white player is required"})
		}
		for _, id := range []string{p.White, p.Black} {
			if id == "" {
				continue
			}
			seen[id] = true
			if !eligible[id] {
				fields = append(fields, appErrors.FieldError{
					Field:   field,
					Message: fmt.Sprintf("player %q is not eligible for round %d", id, roundNumber),
				})
			}
		}
		if p.White != "" && p.White == p.Black {
			fields = append(fields, appErrors.FieldError{Field: field, Message: "a player cannot face themselves"})
		}
	}
	for _, p := range players {
		if !seen[p.ID] {
			fields = append(fields, appErrors.FieldError{Field: "pairings", Message: fmt.Sprintf("eligible player %q is not paired", p.ID)})
		}
	}
	return fields
}

func (s *PairingService) eligiblePlayers(snapshot *models.TournamentSnapshot, roundNumber int) ([]PairingPlayer, error) {
	points := make(map[string]float64)
	if roundNumber > 1 && s.standings != nil {
		table, err := s.standings.Compute(snapshot, roundNumber-1)
		if err != nil {
			return nil, err
		}
		for _, entry := range table.Entries {
			points[entry.PlayerID] = entry.Points
		}
	}
	var players []PairingPlayer
	for _, p := range snapshot.Players {
		if !p.PairableIn(roundNumber) {
			continue
		}
		players = append(players, PairingPlayer{ID: p.ID, Rating: p.Rating, Points: points[p.ID]})
	}
	return players, nil
}

func (s *PairingService) writeAudit(ctx context.Context, tx sqlx.ExtContext, round *models.Round, actor string, boards int, warnings []dto.PairingWarning) error {
	if s.audit == nil {
		return nil
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"status":   round.Status,
		"boards":   boards,
		"warnings": warnings,
	})
	entry := &models.AuditLog{
		TournamentID: round.TournamentID,
		ActorID:      actor,
		Action:       models.AuditActionPairingsConfirm,
		Resource:     "round",
		ResourceID:   round.ID,
		OldValues:    []byte(`{"status":"pairing"}`),
		NewValues:    payload,
		CreatedAt:    s.now(),
	}
	if err := s.audit.Create(ctx, tx, entry); err != nil {
		return storeError(err, "")
	}
	return nil
}

func (s *PairingService) publish(ctx context.Context, eventType, tournamentID string, payload interface{}) {
	if err := s.publisher.Publish(ctx, events.New(eventType, tournamentID, s.now(), payload)); err != nil {
		s.logger.Warn("publish event failed", zap.String("type", eventType), zap.Error(err))
	}
}

func roundInSnapshot(snapshot *models.TournamentSnapshot, number int) (*models.Round, error) {
	for i := range snapshot.Rounds {
		if snapshot.Rounds[i].RoundNumber == number {
			return &snapshot.Rounds[i], nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("round %d not found", number))
}

func roundHasGames(snapshot *models.TournamentSnapshot, roundID string) bool {
	for _, game := range snapshot.Games {
		if game.RoundID == roundID {
			return true
		}
	}
	return false
}

// pairingOptionsFrom applies defaults. A tournament that forbids rematches always
// avoids them.
func pairingOptionsFrom(req dto.PairingOptionsRequest, tournament models.Tournament) PairingOptions {
	value := func(v *bool) bool { return v == nil || *v }
	opts := PairingOptions{
		AvoidRematches: value(req.AvoidRematches),
		BalanceColors:  value(req.BalanceColors),
		AllowByes:      value(req.AllowByes),
	}
	if !tournament.AllowRematches {
		opts.AvoidRematches = true
	}
	return opts
}

// detectRelaxations lists rematches and repeat byes in an arbiter-supplied list.
func detectRelaxations(pairings []ProposedPairing, history *HistoryIndex) []dto.PairingWarning {
	var warnings []dto.PairingWarning
	for _, p := range pairings {
		if p.IsBye() {
			if history.HadBye(p.White) {
				warnings = append(warnings, dto.PairingWarning{
					Constraint: ConstraintRepeatBye,
					PlayerIDs:  []string{p.White},
					Message:    "player already received a bye",
				})
			}
			continue
		}
		if history.Played(p.White, p.Black) {
			warnings = append(warnings, dto.PairingWarning{
				Constraint: ConstraintRematch,
				PlayerIDs:  []string{p.White, p.Black},
				Message:    fmt.Sprintf("players already met in round(s) %s", joinInts(history.Rounds(p.White, p.Black))),
			})
		}
	}
	return warnings
}

// blockingRelaxations returns the warnings an arbiter must accept explicitly. Color
// relaxations never block; rematches do not block when the tournament allows them.
func blockingRelaxations(warnings []dto.PairingWarning, allowRematches bool) []dto.PairingWarning {
	var blocking []dto.PairingWarning
	for _, w := range warnings {
		switch w.Constraint {
		case ConstraintRepeatBye:
			blocking = append(blocking, w)
		case ConstraintRematch:
			if !allowRematches {
				blocking = append(blocking, w)
			}
		}
	}
	return blocking
}

func relaxationError(blocking []dto.PairingWarning) error {
	return appErrors.WithDetails(appErrors.ErrPairingInfeasible,
		"pairing relaxes tournament constraints; resubmit with acceptRelaxations to confirm",
		map[string]interface{}{"constraint": blocking[0].Constraint, "relaxations": blocking})
}

func gamesFromPairings(pairings []ProposedPairing, round *models.Round) []models.Game {
	games := make([]models.Game, 0, len(pairings))
	for _, p := range pairings {
		var game models.Game
		if p.IsBye() {
			game = models.NewByeGame(p.White, p.Board)
		} else {
			black := p.Black
			game = models.Game{BoardNumber: p.Board, WhitePlayerID: p.White, BlackPlayerID: &black}
		}
		game.TournamentID = round.TournamentID
		game.RoundID = round.ID
		game.RoundNumber = round.RoundNumber
		games = append(games, game)
	}
	return games
}

func pairingItems(pairings []ProposedPairing) []dto.PairingItem {
	items := make([]dto.PairingItem, 0, len(pairings))
	for _, p := range pairings {
		item := dto.PairingItem{
			BoardNumber:   p.Board,
			WhitePlayerID: p.White,
			IsBye:         p.IsBye(),
			Rematch:       p.Rematch,
		}
		if !p.IsBye() {
			black := p.Black
			item.BlackPlayerID = &black
		}
		items = append(items, item)
	}
	return items
}

func nonNilWarnings(warnings []dto.PairingWarning) []dto.PairingWarning {
	if warnings == nil {
		return []dto.PairingWarning{}
	}
	return warnings
}

type pairingProposal struct {
	ID             string
	TournamentID   string
	RoundNumber    int
	Method         models.PairingMethod
	Pairings       []ProposedPairing
	Warnings       []dto.PairingWarning
	ResultsVersion int64
	GeneratedAt    time.Time
}

// pairingProposalStore keeps generated proposals in memory until they expire.
type pairingProposalStore struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[string]pairingProposal
}

func newPairingProposalStore(ttl time.Duration, now func() time.Time) *pairingProposalStore {
	return &pairingProposalStore{ttl: ttl, now: now, items: make(map[string]pairingProposal)}
}

func (s *pairingProposalStore) Save(proposal pairingProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, item := range s.items {
		if s.now().Sub(item.GeneratedAt) > s.ttl {
			delete(s.items, id)
		}
	}
	s.items[proposal.ID] = proposal
}

func (s *pairingProposalStore) Get(id string) (pairingProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return pairingProposal{}, false
	}
	if s.now().Sub(proposal.GeneratedAt) > s.ttl {
		s.Delete(id)
		return pairingProposal{}, false
	}
	return proposal, true
}

func (s *pairingProposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
