package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
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

type resultGameStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Game, error)
	UpdateResult(ctx context.Context, exec sqlx.ExtContext, params repository.UpdateResultParams) error
	Approve(ctx context.Context, exec sqlx.ExtContext, gameID string) (bool, error)
}

type resultAuditStore interface {
	Append(ctx context.Context, exec sqlx.ExtContext, record *models.ResultAudit) error
	ListByGame(ctx context.Context, gameID string) ([]models.ResultAudit, error)
}

type resultRoundReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Round, error)
}

// errBatchRejected rolls back an apply whose re-validation failed.
var errBatchRejected = errors.New("batch failed validation at apply time")

// ResultService validates, records and approves game results. Every change appends an
// audit record in the same transaction.
type ResultService struct {
	games       resultGameStore
	rounds      resultRoundReader
	tournaments tournamentStore
	audits      resultAuditStore
	standings   *StandingsService
	tx          txProvider
	locks       *WriterLocks
	publisher   events.Publisher
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewResultService wires the result pipeline. standings may be nil.
func NewResultService(
	games resultGameStore,
	rounds resultRoundReader,
	tournaments tournamentStore,
	audits resultAuditStore,
	standings *StandingsService,
	tx txProvider,
	locks *WriterLocks,
	publisher events.Publisher,
	metrics *MetricsService,
	logger *zap.Logger,
	tracer trace.Tracer,
) *ResultService {
	if locks == nil {
		locks = NewWriterLocks()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultService{
		games:       games,
		rounds:      rounds,
		tournaments: tournaments,
		audits:      audits,
		standings:   standings,
		tx:          tx,
		locks:       locks,
		publisher:   publisher,
		metrics:     metrics,
		validator:   newValidator(),
		logger:      logger,
		tracer:      defaultTracer(tracer),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ValidateGameResult checks a proposed result without storing anything.
func (s *ResultService) ValidateGameResult(ctx context.Context, gameID string, req dto.ValidateResultRequest) (*dto.GameResultValidation, error) {
	ctx, span := s.tracer.Start(ctx, "ResultService.ValidateGameResult")
	defer span.End()
	span.SetAttributes(attribute.String("game_id", gameID))

	game, err := s.games.FindByID(ctx, nil, gameID)
	if err != nil {
		return nil, storeError(err, "game not found")
	}
	round, err := s.rounds.FindByID(ctx, nil, game.RoundID)
	if err != nil {
		return nil, storeError(err, "round not found")
	}
	validation := validateResult(game, round, dto.GameResultInput{
		GameID:     gameID,
		Result:     req.Result,
		ResultType: req.ResultType,
		Reason:     req.Reason,
		Notes:      req.Notes,
	})
	s.metrics.IncResultValidation(validation.IsValid)
	return &validation, nil
}

// BatchUpdateResults validates every update and, unless validateOnly is set, applies
// them atomically after re-validating under the tournament's writer lock.
func (s *ResultService) BatchUpdateResults(ctx context.Context, tournamentID string, req dto.BatchResultRequest, actor string) (*dto.BatchValidationResult, error) {
	ctx, span := s.tracer.Start(ctx, "ResultService.BatchUpdateResults")
	defer span.End()
	span.SetAttributes(
		attribute.String("tournament_id", tournamentID),
		attribute.Int("updates", len(req.Updates)),
		attribute.Bool("validate_only", req.ValidateOnly))

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid result batch")
	}
	if _, err := s.tournaments.FindByID(ctx, nil, tournamentID); err != nil {
		return nil, storeError(err, "tournament not found")
	}

	result, _, err := s.validateBatch(ctx, nil, tournamentID, req.Updates)
	if err != nil {
		return nil, err
	}
	if req.ValidateOnly || !result.OverallValid {
		return result, nil
	}

	release, err := s.locks.acquire(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		applied *dto.BatchValidationResult
		changed []models.ResultAudit
	)
	err = runInTx(ctx, s.tx, nil, func(tx *sqlx.Tx) error {
		if _, err := s.tournaments.LockForUpdate(ctx, tx, tournamentID); err != nil {
			return storeError(err, "tournament not found")
		}
		recheck, games, err := s.validateBatch(ctx, tx, tournamentID, req.Updates)
		if err != nil {
			return err
		}
		applied = recheck
		if !recheck.OverallValid {
			return errBatchRejected
		}

		at := s.now()
		for i, update := range req.Updates {
			if !recheck.Results[i].Validation.Changed {
				continue
			}
			record, err := s.applyOne(ctx, tx, games[i], update, actor, at)
			if err != nil {
				return err
			}
			changed = append(changed, *record)
		}
		if len(changed) == 0 {
			return nil
		}
		version, err := s.tournaments.BumpResultsVersion(ctx, tx, tournamentID)
		if err != nil {
			return storeError(err, "tournament not found")
		}
		applied.ResultsVersion = version
		return nil
	})
	if errors.Is(err, errBatchRejected) {
		return applied, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	applied.Applied = true
	applied.ChangedGames = len(changed)
	if len(changed) > 0 {
		if s.standings != nil {
			s.standings.Invalidate(ctx, tournamentID)
		}
		s.metrics.AddResultsApplied(len(changed))
		s.publish(ctx, events.TypeResultsApplied, tournamentID, map[string]interface{}{
			"resultsVersion": applied.ResultsVersion,
			"changes":        changed,
		})
	}
	s.logger.Info("result batch applied",
		zap.String("tournament_id", tournamentID),
		zap.Int("updates", len(req.Updates)),
		zap.Int("changed", len(changed)),
		zap.String("actor", actor))
	return applied, nil
}

// validateBatch validates each update against state read through exec. It returns the
// loaded game per index (nil when missing).
func (s *ResultService) validateBatch(ctx context.Context, exec sqlx.ExtContext, tournamentID string, updates []dto.GameResultInput) (*dto.BatchValidationResult, []*models.Game, error) {
	result := &dto.BatchValidationResult{OverallValid: true, Results: make([]dto.BatchItemResult, 0, len(updates))}
	games := make([]*models.Game, len(updates))
	rounds := make(map[string]*models.Round)
	firstIndex := make(map[string]int, len(updates))

	for i, update := range updates {
		validation := dto.GameResultValidation{GameID: update.GameID, Errors: []appErrors.FieldError{}, Warnings: []string{}}
		if prev, dup := firstIndex[update.GameID]; dup {
			validation.Errors = append(validation.Errors, appErrors.FieldError{
				Field:   "gameId",
				Message: fmt.Sprintf("game already updated at index %d of this batch", prev),
			})
		} else {
			firstIndex[update.GameID] = i
			game, err := s.games.FindByID(ctx, exec, update.GameID)
			switch {
			case err == nil && game.TournamentID != tournamentID:
				validation.Errors = append(validation.Errors, appErrors.FieldError{Field: "gameId", Message: "game belongs to another tournament"})
			case err == nil:
				round, ok := rounds[game.RoundID]
				if !ok {
					round, err = s.rounds.FindByID(ctx, exec, game.RoundID)
					if err != nil {
						return nil, nil, storeError(err, "round not found")
					}
					rounds[game.RoundID] = round
				}
				games[i] = game
				validation = validateResult(game, round, update)
			default:
				if appErr := storeError(err, "game not found"); !errors.Is(appErr, appErrors.ErrNotFound) {
					return nil, nil, appErr
				}
				validation.Errors = append(validation.Errors, appErrors.FieldError{Field: "gameId", Message: "game not found"})
			}
		}
		validation.IsValid = len(validation.Errors) == 0
		if !validation.IsValid {
			result.OverallValid = false
		}
		s.metrics.IncResultValidation(validation.IsValid)
		result.Results = append(result.Results, dto.BatchItemResult{Index: i, Validation: validation})
	}
	return result, games, nil
}

func (s *ResultService) applyOne(ctx context.Context, tx sqlx.ExtContext, game *models.Game, update dto.GameResultInput, actor string, at time.Time) (*models.ResultAudit, error) {
	value, resultType := normalisedResult(update)
	requiresApproval := resultType.RequiresApproval()
	err := s.games.UpdateResult(ctx, tx, repository.UpdateResultParams{
		GameID:           game.ID,
		OldResult:        game.Result,
		OldResultType:    game.ResultType,
		Result:           value,
		ResultType:       resultType,
		Reason:           update.Reason,
		Notes:            update.Notes,
		RequiresApproval: requiresApproval,
		Approved:         !requiresApproval,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			s.metrics.IncConcurrencyConflict("result_update")
		}
		return nil, storeError(err, "game not found")
	}
	record := &models.ResultAudit{
		GameID:        game.ID,
		TournamentID:  game.TournamentID,
		Action:        models.ResultAuditChange,
		OldResult:     game.Result,
		OldResultType: game.ResultType,
		NewResult:     value,
		NewResultType: resultType,
		ChangedBy:     actor,
		ChangedAt:     at,
		Reason:        update.Reason,
		Approved:      !requiresApproval,
	}
	if err := s.audits.Append(ctx, tx, record); err != nil {
		return nil, storeError(err, "")
	}
	return record, nil
}

// ApproveResult records the explicit approval of an irregular result. Approving an
// approved game changes nothing.
func (s *ResultService) ApproveResult(ctx context.Context, gameID string, req dto.ApproveResultRequest, actor string) (*models.Game, error) {
	ctx, span := s.tracer.Start(ctx, "ResultService.ApproveResult")
	defer span.End()
	span.SetAttributes(attribute.String("game_id", gameID))

	game, err := s.games.FindByID(ctx, nil, gameID)
	if err != nil {
		return nil, storeError(err, "game not found")
	}
	release, err := s.locks.acquire(ctx, game.TournamentID)
	if err != nil {
		return nil, err
	}
	defer release()

	var record *models.ResultAudit
	err = runInTx(ctx, s.tx, nil, func(tx *sqlx.Tx) error {
		if _, err := s.tournaments.LockForUpdate(ctx, tx, game.TournamentID); err != nil {
			return storeError(err, "tournament not found")
		}
		current, err := s.games.FindByID(ctx, tx, gameID)
		if err != nil {
			return storeError(err, "game not found")
		}
		if !current.Decided() {
			return appErrors.Clone(appErrors.ErrStateTransition, "game has no result to approve")
		}
		game = current
		if current.Approved {
			return nil
		}
		changed, err := s.games.Approve(ctx, tx, gameID)
		if err != nil {
			return storeError(err, "")
		}
		if !changed {
			return nil
		}
		resultType := models.ResultTypeNormal
		if current.ResultType != nil {
			resultType = *current.ResultType
		}
		record = &models.ResultAudit{
			GameID:        current.ID,
			TournamentID:  current.TournamentID,
			Action:        models.ResultAuditApproval,
			OldResult:     current.Result,
			OldResultType: current.ResultType,
			NewResult:     *current.Result,
			NewResultType: resultType,
			ChangedBy:     actor,
			ChangedAt:     s.now(),
			Reason:        req.Reason,
			Approved:      true,
		}
		if err := s.audits.Append(ctx, tx, record); err != nil {
			return storeError(err, "")
		}
		if _, err := s.tournaments.BumpResultsVersion(ctx, tx, current.TournamentID); err != nil {
			return storeError(err, "tournament not found")
		}
		game.Approved = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if record != nil {
		if s.standings != nil {
			s.standings.Invalidate(ctx, game.TournamentID)
		}
		s.logger.Info("result approved", zap.String("game_id", gameID), zap.String("actor", actor))
		s.publish(ctx, events.TypeResultApproved, game.TournamentID, record)
	}
	return game, nil
}

// GetGameAuditTrail returns a game's result history in append order.
func (s *ResultService) GetGameAuditTrail(ctx context.Context, gameID string) ([]models.ResultAudit, error) {
	if _, err := s.games.FindByID(ctx, nil, gameID); err != nil {
		return nil, storeError(err, "game not found")
	}
	records, err := s.audits.ListByGame(ctx, gameID)
	if err != nil {
		return nil, storeError(err, "")
	}
	return records, nil
}

func (s *ResultService) publish(ctx context.Context, eventType, tournamentID string, payload interface{}) {
	if err := s.publisher.Publish(ctx, events.New(eventType, tournamentID, s.now(), payload)); err != nil {
		s.logger.Warn("publish event failed", zap.String("type", eventType), zap.Error(err))
	}
}

func normalisedResult(in dto.GameResultInput) (models.ResultValue, models.ResultType) {
	value := models.ResultValue(strings.ToLower(strings.TrimSpace(in.Result)))
	resultType := models.ResultType(strings.ToLower(strings.TrimSpace(in.ResultType)))
	if resultType == "" {
		resultType = models.ResultTypeNormal
	}
	return value, resultType
}

// validateResult is the pure validation of one proposed result against its game and round.
func validateResult(game *models.Game, round *models.Round, in dto.GameResultInput) dto.GameResultValidation {
	validation := dto.GameResultValidation{GameID: game.ID, Errors: []appErrors.FieldError{}, Warnings: []string{}}
	value, resultType := normalisedResult(in)

	if !round.Status.AcceptsResults() {
		validation.Errors = append(validation.Errors, appErrors.FieldError{
			Field:   "gameId",
			Message: fmt.Sprintf("round %d is %s; results are accepted while published, in_progress or finishing", round.RoundNumber, round.Status),
		})
	}
	if _, err := models.ParseOutcome(value, resultType, !game.IsBye()); err != nil {
		var outcomeErr *models.OutcomeError
		if errors.As(err, &outcomeErr) {
			validation.Errors = append(validation.Errors, appErrors.FieldError{Field: outcomeErr.Field, Message: outcomeErr.Message})
		} else {
			validation.Errors = append(validation.Errors, appErrors.FieldError{Field: "result", Message: err.Error()})
		}
	}
	validation.IsValid = len(validation.Errors) == 0
	if !validation.IsValid {
		return validation
	}

	validation.RequiresApproval = resultType.RequiresApproval()
	stored := game.Result != nil
	sameResult := stored && *game.Result == value
	storedType := models.ResultTypeNormal
	if game.ResultType != nil {
		storedType = *game.ResultType
	}
	validation.Changed = !(sameResult && storedType == resultType)

	if validation.RequiresApproval {
		validation.Warnings = append(validation.Warnings, fmt.Sprintf("%s results require arbiter approval", resultType))
	}
	if resultType == models.ResultTypeAdjourned || resultType == models.ResultTypeCancelled {
		validation.Warnings = append(validation.Warnings, fmt.Sprintf("%s game needs arbiter follow-up before the round closes", resultType))
	}
	if stored && validation.Changed {
		validation.Warnings = append(validation.Warnings, fmt.Sprintf("overrides recorded result %s (%s)", *game.Result, storedType))
		if in.Reason == nil || strings.TrimSpace(*in.Reason) == "" {
			validation.Warnings = append(validation.Warnings, "no reason given for changing a recorded result")
		}
	}
	return validation
}
