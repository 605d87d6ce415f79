package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/swiss-arbiter-api/internal/dto"
	"github.com/noah-isme/swiss-arbiter-api/internal/models"
	appErrors "github.com/noah-isme/swiss-arbiter-api/pkg/errors"
)

type tournamentAdminStore interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Tournament, error)
	LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Tournament, error)
	BumpResultsVersion(ctx context.Context, exec sqlx.ExtContext, id string) (int64, error)
}

type playerStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, player *models.Player) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Player, error)
	ListByTournament(ctx context.Context, exec sqlx.ExtContext, tournamentID string) ([]models.Player, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.PlayerStatus, withdrawnAfter *int) error
}

type roundLister interface {
	ListByTournament(ctx context.Context, exec sqlx.ExtContext, tournamentID string) ([]models.Round, error)
}

// TournamentDefaults fill policies a create request leaves out.
type TournamentDefaults struct {
	Tiebreaks         []string
	ByePoints         float64
	ByeBuchholzPolicy string
}

// TournamentService administers tournaments and their players.
type TournamentService struct {
	tournaments tournamentAdminStore
	players     playerStore
	rounds      roundLister
	audit       auditLogWriter
	standings   *StandingsService
	tx          txProvider
	locks       *WriterLocks
	defaults    TournamentDefaults
	validator   *validator.Validate
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewTournamentService constructs the service.
func NewTournamentService(
	tournaments tournamentAdminStore,
	players playerStore,
	rounds roundLister,
	audit auditLogWriter,
	standings *StandingsService,
	tx txProvider,
	locks *WriterLocks,
	defaults TournamentDefaults,
	logger *zap.Logger,
	tracer trace.Tracer,
) *TournamentService {
	if locks == nil {
		locks = NewWriterLocks()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TournamentService{
		tournaments: tournaments,
		players:     players,
		rounds:      rounds,
		audit:       audit,
		standings:   standings,
		tx:          tx,
		locks:       locks,
		defaults:    defaults,
		validator:   newValidator(),
		logger:      logger,
		tracer:      defaultTracer(tracer),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateTournament registers a tournament. The missed-round point policy is mandatory.
func (s *TournamentService) CreateTournament(ctx context.Context, req dto.CreateTournamentRequest) (*models.Tournament, error) {
	ctx, span := s.tracer.Start(ctx, "TournamentService.CreateTournament")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid tournament payload")
	}

	tiebreakNames := req.Tiebreaks
	if len(tiebreakNames) == 0 {
		tiebreakNames = s.defaults.Tiebreaks
	}
	tiebreaks := make(models.TiebreakList, 0, len(tiebreakNames))
	for _, name := range tiebreakNames {
		tiebreaks = append(tiebreaks, models.TiebreakType(strings.ToLower(strings.TrimSpace(name))))
	}
	if err := ValidateTiebreaks(tiebreaks); err != nil {
		return nil, err
	}

	byePoints := s.defaults.ByePoints
	if req.ByePoints != nil {
		byePoints = *req.ByePoints
	}
	byePolicy := models.ByeBuchholzPolicy(req.ByeBuchholzPolicy)
	if byePolicy == "" {
		byePolicy = models.ByeBuchholzPolicy(s.defaults.ByeBuchholzPolicy)
	}
	if !byePolicy.Valid() {
		byePolicy = models.ByeBuchholzOwnScore
	}
	method := models.PairingMethod(req.PairingSystem)
	if method == "" {
		method = models.PairingMethodDutch
	}

	tournament := &models.Tournament{
		Name:              strings.TrimSpace(req.Name),
		TotalRounds:       req.TotalRounds,
		PairingSystem:     method,
		Tiebreaks:         tiebreaks,
		ByePoints:         byePoints,
		ByeBuchholzPolicy: byePolicy,
		MissedRoundPolicy: models.MissedRoundPolicy(req.MissedRoundPointPolicy),
		AllowRematches:    req.AllowRematches,
	}
	if err := s.tournaments.Create(ctx, tournament); err != nil {
		span.RecordError(err)
		return nil, storeError(err, "")
	}
	span.SetAttributes(attribute.String("tournament_id", tournament.ID))
	s.logger.Info("tournament created", zap.String("tournament_id", tournament.ID), zap.Int("rounds", tournament.TotalRounds))
	return tournament, nil
}

// GetTournament returns the tournament with its players and rounds.
func (s *TournamentService) GetTournament(ctx context.Context, id string) (*dto.TournamentDetail, error) {
	tournament, err := s.tournaments.FindByID(ctx, nil, id)
	if err != nil {
		return nil, storeError(err, "tournament not found")
	}
	detail := &dto.TournamentDetail{Tournament: *tournament}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		players, err := s.players.ListByTournament(gCtx, nil, id)
		if err != nil {
			return fmt.Errorf("list players: %w", err)
		}
		detail.Players = players
		return nil
	})
	g.Go(func() error {
		rounds, err := s.rounds.ListByTournament(gCtx, nil, id)
		if err != nil {
			return fmt.Errorf("list rounds: %w", err)
		}
		detail.Rounds = rounds
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, storeError(err, "")
	}
	if detail.Players == nil {
		detail.Players = []models.Player{}
	}
	if detail.Rounds == nil {
		detail.Rounds = []models.Round{}
	}
	return detail, nil
}

// RegisterPlayer adds a player. Late entries join at the given round, by default the
// round after the current one. Registration changes the pairable field, so it bumps the
// results version and invalidates outstanding pairing proposals.
func (s *TournamentService) RegisterPlayer(ctx context.Context, tournamentID string, req dto.RegisterPlayerRequest) (*models.Player, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid player payload")
	}
	if _, err := s.tournaments.FindByID(ctx, nil, tournamentID); err != nil {
		return nil, storeError(err, "tournament not found")
	}
	release, err := s.locks.acquire(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	defer release()

	status := models.PlayerStatusActive
	if req.Status != "" {
		status = models.PlayerStatus(req.Status)
	}
	var player *models.Player
	err = runInTx(ctx, s.tx, nil, func(tx *sqlx.Tx) error {
		tournament, err := s.tournaments.LockForUpdate(ctx, tx, tournamentID)
		if err != nil {
			return storeError(err, "tournament not found")
		}
		joined := req.JoinedRound
		if joined == 0 {
			joined = 1
			if status == models.PlayerStatusLateEntry {
				joined = tournament.CurrentRound + 1
			}
		}
		if joined > tournament.TotalRounds {
			return appErrors.Validation("invalid joined round", appErrors.FieldError{
				Field:   "joinedRound",
				Message: fmt.Sprintf("tournament has only %d rounds", tournament.TotalRounds),
			})
		}

		player = &models.Player{
			TournamentID: tournamentID,
			Name:         strings.TrimSpace(req.Name),
			Rating:       req.Rating,
			Status:       status,
			JoinedRound:  joined,
		}
		if err := s.players.Create(ctx, tx, player); err != nil {
			return storeError(err, "")
		}
		if _, err := s.tournaments.BumpResultsVersion(ctx, tx, tournamentID); err != nil {
			return storeError(err, "tournament not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.standings != nil {
		s.standings.Invalidate(ctx, tournamentID)
	}
	s.logger.Info("player registered",
		zap.String("tournament_id", tournamentID),
		zap.String("player_id", player.ID),
		zap.String("status", string(player.Status)))
	return player, nil
}

// ListPlayers returns the field ordered by rating.
func (s *TournamentService) ListPlayers(ctx context.Context, tournamentID string) ([]models.Player, error) {
	if _, err := s.tournaments.FindByID(ctx, nil, tournamentID); err != nil {
		return nil, storeError(err, "tournament not found")
	}
	players, err := s.players.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, storeError(err, "")
	}
	return players, nil
}

// ChangePlayerStatus is the only way a player's status changes. Withdrawing records the
// tournament's current round as the last round the player counts in.
func (s *TournamentService) ChangePlayerStatus(ctx context.Context, playerID string, req dto.UpdatePlayerStatusRequest, actor string) (*models.Player, error) {
	ctx, span := s.tracer.Start(ctx, "TournamentService.ChangePlayerStatus")
	defer span.End()
	span.SetAttributes(attribute.String("player_id", playerID), attribute.String("status", req.Status))

	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid status payload")
	}
	target := models.PlayerStatus(req.Status)

	player, err := s.players.FindByID(ctx, nil, playerID)
	if err != nil {
		return nil, storeError(err, "player not found")
	}
	release, err := s.locks.acquire(ctx, player.TournamentID)
	if err != nil {
		return nil, err
	}
	defer release()

	changed := false
	err = runInTx(ctx, s.tx, nil, func(tx *sqlx.Tx) error {
		tournament, err := s.tournaments.LockForUpdate(ctx, tx, player.TournamentID)
		if err != nil {
			return storeError(err, "tournament not found")
		}
		current, err := s.players.FindByID(ctx, tx, playerID)
		if err != nil {
			return storeError(err, "player not found")
		}
		if current.Status == target {
			player = current
			return nil
		}
		var withdrawnAfter *int
		if target == models.PlayerStatusWithdrawn {
			round := tournament.CurrentRound
			withdrawnAfter = &round
		}
		if err := s.players.UpdateStatus(ctx, tx, playerID, target, withdrawnAfter); err != nil {
			return storeError(err, "player not found")
		}
		if _, err := s.tournaments.BumpResultsVersion(ctx, tx, tournament.ID); err != nil {
			return storeError(err, "tournament not found")
		}
		if err := s.writeAudit(ctx, tx, current, target, withdrawnAfter, actor); err != nil {
			return err
		}
		updated := *current
		updated.Status = target
		updated.WithdrawnAfterRound = withdrawnAfter
		updated.UpdatedAt = s.now()
		player = &updated
		changed = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if changed {
		if s.standings != nil {
			s.standings.Invalidate(ctx, player.TournamentID)
		}
		s.logger.Info("player status changed",
			zap.String("player_id", playerID),
			zap.String("status", string(target)),
			zap.String("actor", actor))
	}
	return player, nil
}

func (s *TournamentService) writeAudit(ctx context.Context, tx sqlx.ExtContext, player *models.Player, target models.PlayerStatus, withdrawnAfter *int, actor string) error {
	if s.audit == nil {
		return nil
	}
	oldValues, _ := json.Marshal(map[string]interface{}{"status": player.Status})
	newValues, _ := json.Marshal(map[string]interface{}{"status": target, "withdrawnAfterRound": withdrawnAfter})
	entry := &models.AuditLog{
		TournamentID: player.TournamentID,
		ActorID:      actor,
		Action:       models.AuditActionPlayerStatus,
		Resource:     "player",
		ResourceID:   player.ID,
		OldValues:    oldValues,
		NewValues:    newValues,
		CreatedAt:    s.now(),
	}
	if err := s.audit.Create(ctx, tx, entry); err != nil {
		return storeError(err, "")
	}
	return nil
}
