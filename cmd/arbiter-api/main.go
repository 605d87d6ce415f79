package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	_ "github.com/noah-isme/swiss-arbiter-api/api/swagger"
	"github.com/noah-isme/swiss-arbiter-api/internal/handler"
	internalmiddleware "github.com/noah-isme/swiss-arbiter-api/internal/middleware"
	"github.com/noah-isme/swiss-arbiter-api/internal/repository"
	"github.com/noah-isme/swiss-arbiter-api/internal/service"
	"github.com/noah-isme/swiss-arbiter-api/pkg/cache"
	"github.com/noah-isme/swiss-arbiter-api/pkg/config"
	"github.com/noah-isme/swiss-arbiter-api/pkg/database"
	"github.com/noah-isme/swiss-arbiter-api/pkg/events"
	"github.com/noah-isme/swiss-arbiter-api/pkg/logger"
	"github.com/noah-isme/swiss-arbiter-api/pkg/messaging"
	"github.com/noah-isme/swiss-arbiter-api/pkg/realtime"
)

// @title Swiss Arbiter API
// @version 1.0.0
// @description Swiss-system tournament engine: round lifecycle, pairings, results, standings and ratings.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	metrics := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Redis.Enabled && cfg.Standings.CacheEnabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, standings cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cacheSvc = service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metrics, cfg.Standings.CacheTTL, logr, true)
		}
	}

	var publishers events.Fanout
	var hub *realtime.Hub
	if cfg.Realtime.Enabled {
		hub = realtime.NewHub(logr)
		go hub.Run(ctx)
		publishers = append(publishers, hub)
	}
	if cfg.AMQP.Enabled {
		amqpPublisher := messaging.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, messaging.DialAMQP, logr)
		amqpPublisher.Start(ctx)
		defer amqpPublisher.Close() //nolint:errcheck
		publishers = append(publishers, amqpPublisher)
	}

	tournamentRepo := repository.NewTournamentRepository(db)
	playerRepo := repository.NewPlayerRepository(db)
	roundRepo := repository.NewRoundRepository(db)
	gameRepo := repository.NewGameRepository(db)
	ratingRepo := repository.NewRatingRepository(db)
	resultAuditRepo := repository.NewResultAuditRepository(db)
	auditLogRepo := repository.NewAuditLogRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)

	locks := service.NewWriterLocks()
	standingsSvc := service.NewStandingsService(snapshotRepo, service.NewStandingsCalculator(), cacheSvc, metrics, cfg.Standings.CacheTTL, logr, nil)
	ratingSvc := service.NewRatingService(service.NewRatingEngine(), ratingRepo, playerRepo, gameRepo, logr)
	tournamentSvc := service.NewTournamentService(tournamentRepo, playerRepo, roundRepo, auditLogRepo, standingsSvc, db, locks,
		service.TournamentDefaults{
			Tiebreaks:         cfg.Tournament.DefaultTiebreaks,
			ByePoints:         cfg.Tournament.DefaultByePoints,
			ByeBuchholzPolicy: cfg.Tournament.DefaultByeBuchholzPolicy,
		}, logr, nil)
	roundSvc := service.NewRoundService(roundRepo, tournamentRepo, gameRepo, playerRepo, auditLogRepo, ratingSvc, db, publishers, metrics, logr, nil)
	pairingSvc := service.NewPairingService(snapshotRepo, standingsSvc, service.NewPairingEngine(), roundRepo, tournamentRepo, gameRepo,
		auditLogRepo, db, locks, publishers, metrics, logr, nil, service.PairingServiceConfig{ProposalTTL: cfg.Pairing.ProposalTTL})
	resultSvc := service.NewResultService(gameRepo, roundRepo, tournamentRepo, resultAuditRepo, standingsSvc, db, locks, publishers, metrics, logr, nil)

	h := handlers{
		tournaments: handler.NewTournamentHandler(tournamentSvc),
		rounds:      handler.NewRoundHandler(roundSvc),
		pairings:    handler.NewPairingHandler(pairingSvc),
		results:     handler.NewResultHandler(resultSvc),
		standings:   handler.NewStandingsHandler(standingsSvc, ratingSvc),
		ops:         handler.NewMetricsHandler(metrics, db),
	}
	if hub != nil {
		h.live = handler.NewLiveHandler(hub, cfg.CORS.AllowedOrigins, logr)
	}

	if cfg.JWT.HeaderFallback && cfg.Env == config.EnvProduction {
		logr.Warn("arbiter header fallback is enabled in production")
	}
	router := newRouter(cfg, logr, metrics, internalmiddleware.NewArbiterAuth(cfg.JWT), h)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
