package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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

type roundStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, round *models.Round) error
	CreateNext(ctx context.Context, exec sqlx.ExtContext, round *models.Round) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Round, error)
	FindByNumber(ctx context.Context, exec sqlx.ExtContext, tournamentID string, number int) (*models.Round, error)
	FindLatest(ctx context.Context, exec sqlx.ExtContext, tournamentID string) (*models.Round, error)
	ListByTournament(ctx context.Context, exec sqlx.ExtContext, tournamentID string) ([]models.Round, error)
	LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Round, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, params repository.UpdateStatusParams) (*models.Round, error)
}

type tournamentStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Tournament, error)
	LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Tournament, error)
	BumpResultsVersion(ctx context.Context, exec sqlx.ExtContext, id string) (int64, error)
	AdvanceCurrentRound(ctx context.Context, exec sqlx.ExtContext, id string, roundNumber int) (bool, error)
}

type roundGameReader interface {
	ListByRound(ctx context.Context, exec sqlx.ExtContext, roundID string) ([]models.Game, error)
}

type roundPlayerLister interface {
	ListByTournament(ctx context.Context, exec sqlx.ExtContext, tournamentID string) ([]models.Player, error)
}

type auditLogWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, log *models.AuditLog) error
}

type roundRatingApplier interface {
	ApplyRound(ctx context.Context, exec sqlx.ExtContext, round models.Round) (int, error)
}

// RoundService drives the round lifecycle state machine.
type RoundService struct {
	rounds      roundStore
	tournaments tournamentStore
	games       roundGameReader
	players     roundPlayerLister
	audit       auditLogWriter
	ratings     roundRatingApplier
	tx          txProvider
	publisher   events.Publisher
	metrics     *MetricsService
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewRoundService wires the lifecycle dependencies. ratings may be nil to skip rating
// application on completion.
func NewRoundService(
	rounds roundStore,
	tournaments tournamentStore,
	games roundGameReader,
	players roundPlayerLister,
	audit auditLogWriter,
	ratings roundRatingApplier,
	tx txProvider,
	publisher events.Publisher,
	metrics *MetricsService,
	logger *zap.Logger,
	tracer trace.Tracer,
) *RoundService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &RoundService{
		rounds:      rounds,
		tournaments: tournaments,
		games:       games,
		players:     players,
		audit:       audit,
		ratings:     ratings,
		tx:          tx,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger,
		tracer:      defaultTracer(tracer),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateRound opens round `number` in status planned. The number must directly follow
// the latest round, which has to be completed or verified.
func (s *RoundService) CreateRound(ctx context.Context, tournamentID string, number int, actor string) (*models.Round, error) {
	ctx, span := s.tracer.Start(ctx, "RoundService.CreateRound")
	defer span.End()
	span.SetAttributes(attribute.String("tournament_id", tournamentID), attribute.Int("round_number", number))

	if number <= 0 {
		return nil, appErrors.Validation("round number must be positive", appErrors.FieldError{Field: "roundNumber", Message: "must be at least 1"})
	}
	return s.create(ctx, tournamentID, number, actor)
}

// CreateNextRound allocates max(existing)+1 in status planned.
func (s *RoundService) CreateNextRound(ctx context.Context, tournamentID, actor string) (*models.Round, error) {
	ctx, span := s.tracer.Start(ctx, "RoundService.CreateNextRound")
	defer span.End()
	span.SetAttributes(attribute.String("tournament_id", tournamentID))
	return s.create(ctx, tournamentID, 0, actor)
}

func (s *RoundService) create(ctx context.Context, tournamentID string, number int, actor string) (*models.Round, error) {
	round := &models.Round{TournamentID: tournamentID, CreatedAt: s.now()}
	err := runInTx(ctx, s.tx, nil, func(tx *sqlx.Tx) error {
		tournament, err := s.tournaments.LockForUpdate(ctx, tx, tournamentID)
		if err != nil {
			return storeError(err, "tournament not found")
		}
		latest, err := s.rounds.FindLatest(ctx, tx, tournamentID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return storeError(err, "")
		}
		next := 1
		if latest != nil {
			next = latest.RoundNumber + 1
			if !latest.Status.Closed() {
				return appErrors.Clone(appErrors.ErrStateTransition,
					fmt.Sprintf("round %d is %s; it must be completed or verified before the next round", latest.RoundNumber, latest.Status))
			}
		}
		if number != 0 && number != next {
			return appErrors.Validation("round numbers must be consecutive", appErrors.FieldError{
				Field:   "roundNumber",
				Message: fmt.Sprintf("expected %d", next),
			})
		}
		if next > tournament.TotalRounds {
			return appErrors.Clone(appErrors.ErrStateTransition, fmt.Sprintf("tournament has only %d rounds", tournament.TotalRounds))
		}

		if number == 0 {
			err = s.rounds.CreateNext(ctx, tx, round)
		} else {
			round.RoundNumber = number
			err = s.rounds.Create(ctx, tx, round)
		}
		if err != nil {
			return storeError(err, "")
		}
		return s.writeAudit(ctx, tx, round, models.AuditActionRoundCreate, actor, nil, map[string]interface{}{
			"roundNumber": round.RoundNumber,
			"status":      round.Status,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("round created", zap.String("tournament_id", tournamentID), zap.Int("round_number", round.RoundNumber))
	s.publish(ctx, events.TypeRoundCreated, tournamentID, round)
	return round, nil
}

// GetRound returns a round with its boards.
func (s *RoundService) GetRound(ctx context.Context, roundID string) (*models.RoundDetail, error) {
	round, err := s.rounds.FindByID(ctx, nil, roundID)
	if err != nil {
		return nil, storeError(err, "round not found")
	}
	games, err := s.games.ListByRound(ctx, nil, roundID)
	if err != nil {
		return nil, storeError(err, "")
	}
	return &models.RoundDetail{Round: *round, Games: games}, nil
}

// ListRounds returns a tournament's rounds in order.
func (s *RoundService) ListRounds(ctx context.Context, tournamentID string) ([]models.Round, error) {
	if _, err := s.tournaments.FindByID(ctx, nil, tournamentID); err != nil {
		return nil, storeError(err, "tournament not found")
	}
	rounds, err := s.rounds.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, storeError(err, "")
	}
	return rounds, nil
}

// UpdateRoundStatus moves a round from expected to target. Requesting the round's
// current status is a no-op.
func (s *RoundService) UpdateRoundStatus(ctx context.Context, roundID string, req dto.UpdateRoundStatusRequest, actor string) (*dto.RoundTransitionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "RoundService.UpdateRoundStatus")
	defer span.End()
	span.SetAttributes(attribute.String("round_id", roundID), attribute.String("target", req.Status))

	target, err := models.ParseRoundStatus(req.Status)
	if err != nil {
		return nil, appErrors.Validation("invalid round status", appErrors.FieldError{Field: "status", Message: err.Error()})
	}
	expected, err := models.ParseRoundStatus(req.ExpectedStatus)
	if err != nil {
		return nil, appErrors.Validation("invalid expected status", appErrors.FieldError{Field: "expectedStatus", Message: err.Error()})
	}

	var resp *dto.RoundTransitionResponse
	err = runInTx(ctx, s.tx, nil, func(tx *sqlx.Tx) error {
		round, err := s.rounds.LockForUpdate(ctx, tx, roundID)
		if err != nil {
			return storeError(err, "round not found")
		}
		resp, err = s.transition(ctx, tx, round, expected, target, actor)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.announce(ctx, resp)
	return resp, nil
}

// CompleteRound walks an in-progress or finishing round to completed. A round that is
// already completed or verified is left untouched.
func (s *RoundService) CompleteRound(ctx context.Context, roundID, actor string) (*dto.RoundTransitionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "RoundService.CompleteRound")
	defer span.End()
	span.SetAttributes(attribute.String("round_id", roundID))

	var resp *dto.RoundTransitionResponse
	err := runInTx(ctx, s.tx, nil, func(tx *sqlx.Tx) error {
		round, err := s.rounds.LockForUpdate(ctx, tx, roundID)
		if err != nil {
			return storeError(err, "round not found")
		}
		if round.Status.Closed() {
			resp = &dto.RoundTransitionResponse{Round: *round}
			return nil
		}
		var warnings []string
		switch round.Status {
		case models.RoundStatusInProgress:
			step, err := s.transition(ctx, tx, round, round.Status, models.RoundStatusFinishing, actor)
			if err != nil {
				return err
			}
			round = &step.Round
			warnings = append(warnings, step.Warnings...)
		case models.RoundStatusFinishing:
		default:
			return appErrors.Clone(appErrors.ErrStateTransition,
				fmt.Sprintf("round in status %s cannot be completed", round.Status))
		}
		resp, err = s.transition(ctx, tx, round, round.Status, models.RoundStatusCompleted, actor)
		if err != nil {
			return err
		}
		resp.Warnings = append(warnings, resp.Warnings...)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.announce(ctx, resp)
	return resp, nil
}

// transition applies one lifecycle step inside tx. round is the locked current row.
func (s *RoundService) transition(ctx context.Context, tx sqlx.ExtContext, round *models.Round, expected, target models.RoundStatus, actor string) (*dto.RoundTransitionResponse, error) {
	if round.Status == target {
		return &dto.RoundTransitionResponse{Round: *round}, nil
	}
	if round.Status != expected {
		if s.metrics != nil {
			s.metrics.IncConcurrencyConflict("round_status")
		}
		return nil, appErrors.WithDetails(appErrors.ErrConcurrencyConflict,
			fmt.Sprintf("round is %s, expected %s", round.Status, expected),
			map[string]string{"currentStatus": string(round.Status)})
	}
	if !round.Status.CanTransitionTo(target) {
		return nil, appErrors.WithDetails(appErrors.ErrStateTransition,
			fmt.Sprintf("cannot move round from %s to %s", round.Status, target),
			map[string]string{"from": string(round.Status), "to": string(target)})
	}

	if target == models.RoundStatusPublished {
		if err := s.checkPublishable(ctx, tx, round); err != nil {
			return nil, err
		}
	}

	var warnings []string
	if target == models.RoundStatusCompleted || target == models.RoundStatusVerified {
		games, err := s.games.ListByRound(ctx, tx, round.ID)
		if err != nil {
			return nil, storeError(err, "")
		}
		gateWarnings, err := checkRoundGate(games, target)
		if err != nil {
			return nil, err
		}
		warnings = gateWarnings
	}

	updated, err := s.rounds.UpdateStatus(ctx, tx, repository.UpdateStatusParams{
		RoundID:  round.ID,
		Expected: round.Status,
		Target:   target,
		Actor:    actor,
		At:       s.now(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) && s.metrics != nil {
			s.metrics.IncConcurrencyConflict("round_status")
		}
		return nil, storeError(err, "round not found")
	}

	if target == models.RoundStatusCompleted {
		if _, err := s.tournaments.AdvanceCurrentRound(ctx, tx, updated.TournamentID, updated.RoundNumber); err != nil {
			return nil, storeError(err, "")
		}
	}
	var rated int
	if target == models.RoundStatusCompleted && s.ratings != nil {
		if rated, err = s.ratings.ApplyRound(ctx, tx, *updated); err != nil {
			return nil, err
		}
	}

	if err := s.writeAudit(ctx, tx, updated, models.AuditActionRoundStatusChange, actor,
		map[string]interface{}{"status": round.Status},
		map[string]interface{}{"status": updated.Status}); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncRoundTransition(string(target))
	}
	s.logger.Info("round status changed",
		zap.String("round_id", updated.ID),
		zap.String("from", string(round.Status)),
		zap.String("to", string(updated.Status)),
		zap.String("actor", actor))
	return &dto.RoundTransitionResponse{Round: *updated, Changed: true, Warnings: warnings, RatingsApplied: rated}, nil
}

// checkPublishable refuses to publish a round with no boards unless fewer than two
// players are eligible for it; boards come from confirming a pairing.
func (s *RoundService) checkPublishable(ctx context.Context, tx sqlx.ExtContext, round *models.Round) error {
	games, err := s.games.ListByRound(ctx, tx, round.ID)
	if err != nil {
		return storeError(err, "")
	}
	if len(games) > 0 {
		return nil
	}
	players, err := s.players.ListByTournament(ctx, tx, round.TournamentID)
	if err != nil {
		return storeError(err, "")
	}
	eligible := 0
	for _, p := range players {
		if p.PairableIn(round.RoundNumber) {
			eligible++
		}
	}
	if eligible >= 2 {
		return appErrors.WithDetails(appErrors.ErrStateTransition,
			"round has no pairings; confirm pairings to publish it",
			map[string]int{"eligiblePlayers": eligible})
	}
	return nil
}

// checkRoundGate enforces that every game is decided before completion and every
// irregular result is approved before verification.
func checkRoundGate(games []models.Game, target models.RoundStatus) ([]string, error) {
	var undecided, unapproved []int
	var warnings []string
	for _, game := range games {
		if !game.Decided() {
			undecided = append(undecided, game.BoardNumber)
			continue
		}
		if game.RequiresApproval && !game.Approved {
			unapproved = append(unapproved, game.BoardNumber)
		}
		if game.ResultType != nil && (*game.ResultType == models.ResultTypeAdjourned || *game.ResultType == models.ResultTypeCancelled) {
			warnings = append(warnings, fmt.Sprintf("board %d is %s and needs arbiter follow-up", game.BoardNumber, *game.ResultType))
		}
	}
	if len(undecided) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrStateTransition,
			"every game must have a result before the round is completed",
			map[string]interface{}{"undecidedBoards": undecided})
	}
	if target == models.RoundStatusVerified && len(unapproved) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrStateTransition,
			"irregular results must be approved before the round is verified",
			map[string]interface{}{"unapprovedBoards": unapproved})
	}
	return warnings, nil
}

func (s *RoundService) writeAudit(ctx context.Context, tx sqlx.ExtContext, round *models.Round, action, actor string, oldValues, newValues map[string]interface{}) error {
	if s.audit == nil {
		return nil
	}
	entry := &models.AuditLog{
		TournamentID: round.TournamentID,
		ActorID:      actor,
		Action:       action,
		Resource:     "round",
		ResourceID:   round.ID,
		CreatedAt:    s.now(),
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.audit.Create(ctx, tx, entry); err != nil {
		return storeError(err, "")
	}
	return nil
}

func (s *RoundService) announce(ctx context.Context, resp *dto.RoundTransitionResponse) {
	if !resp.Changed {
		return
	}
	s.publish(ctx, events.TypeRoundStatusChanged, resp.Round.TournamentID, resp.Round)
	if resp.RatingsApplied > 0 {
		s.publish(ctx, events.TypeRatingsApplied, resp.Round.TournamentID, map[string]interface{}{
			"roundId": resp.Round.ID,
			"games":   resp.RatingsApplied,
		})
	}
}

func (s *RoundService) publish(ctx context.Context, eventType, tournamentID string, payload interface{}) {
	if err := s.publisher.Publish(ctx, events.New(eventType, tournamentID, s.now(), payload)); err != nil {
		s.logger.Warn("publish event failed", zap.String("type", eventType), zap.Error(err))
	}
}
