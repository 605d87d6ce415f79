package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
	appErrors "github.com/noah-isme/swiss-arbiter-api/pkg/errors"
)

type snapshotLoader interface {
	Load(ctx context.Context, tournamentID string) (*models.TournamentSnapshot, error)
}

// StandingsService serves standings computed over a consistent snapshot. Results are
// cached per results version so a finished batch is never mixed with an older one.
type StandingsService struct {
	snapshots  snapshotLoader
	calculator *StandingsCalculator
	cache      *CacheService
	metrics    *MetricsService
	group      singleflight.Group
	cacheTTL   time.Duration
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewStandingsService constructs the service. cache may be nil.
func NewStandingsService(snapshots snapshotLoader, calculator *StandingsCalculator, cache *CacheService, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger, tracer trace.Tracer) *StandingsService {
	if calculator == nil {
		calculator = NewStandingsCalculator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StandingsService{
		snapshots:  snapshots,
		calculator: calculator,
		cache:      cache,
		metrics:    metrics,
		cacheTTL:   cacheTTL,
		logger:     logger,
		tracer:     defaultTracer(tracer),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func standingsCacheKey(tournamentID string, version int64, throughRound int) string {
	return fmt.Sprintf("standings:%s:v%d:%d", tournamentID, version, throughRound)
}

func standingsCachePattern(tournamentID string) string {
	return fmt.Sprintf("standings:%s:*", tournamentID)
}

// GetStandings returns the ranked table. throughRound 0 means every round played so far.
func (s *StandingsService) GetStandings(ctx context.Context, tournamentID string, throughRound int) (*models.StandingsSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "StandingsService.GetStandings")
	defer span.End()
	span.SetAttributes(attribute.String("tournament_id", tournamentID), attribute.Int("through_round", throughRound))

	if throughRound < 0 {
		return nil, appErrors.Validation("invalid round filter", appErrors.FieldError{Field: "throughRound", Message: "must not be negative"})
	}

	snapshot, err := s.snapshots.Load(ctx, tournamentID)
	if err != nil {
		return nil, storeError(err, "tournament not found")
	}
	version := snapshot.Tournament.ResultsVersion
	key := standingsCacheKey(tournamentID, version, throughRound)

	var cached models.StandingsSnapshot
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	value, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.compute(ctx, snapshot, throughRound)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	result := value.(*models.StandingsSnapshot)
	if !shared {
		_ = s.cache.Set(ctx, key, result, s.cacheTTL)
	}
	return result, nil
}

// Compute ranks an already-loaded snapshot without touching the cache.
func (s *StandingsService) Compute(snapshot *models.TournamentSnapshot, throughRound int) (*models.StandingsSnapshot, error) {
	return s.compute(context.Background(), snapshot, throughRound)
}

func (s *StandingsService) compute(_ context.Context, snapshot *models.TournamentSnapshot, throughRound int) (*models.StandingsSnapshot, error) {
	start := time.Now()
	criteria := []models.TiebreakType(snapshot.Tournament.Tiebreaks)
	entries, err := s.calculator.Compute(*snapshot, throughRound, criteria)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveStandings(time.Since(start))
	return &models.StandingsSnapshot{
		TournamentID:   snapshot.Tournament.ID,
		ResultsVersion: snapshot.Tournament.ResultsVersion,
		ThroughRound:   throughRound,
		Tiebreaks:      criteria,
		Entries:        entries,
		GeneratedAt:    s.now(),
	}, nil
}

// Invalidate drops every cached view of the tournament.
func (s *StandingsService) Invalidate(ctx context.Context, tournamentID string) {
	if err := s.cache.Invalidate(ctx, standingsCachePattern(tournamentID)); err != nil {
		s.logger.Warn("standings cache invalidation failed", zap.String("tournament_id", tournamentID), zap.Error(err))
	}
}
