package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/swiss-arbiter-api/internal/handler"
	internalmiddleware "github.com/noah-isme/swiss-arbiter-api/internal/middleware"
	"github.com/noah-isme/swiss-arbiter-api/internal/service"
	"github.com/noah-isme/swiss-arbiter-api/pkg/config"
	appErrors "github.com/noah-isme/swiss-arbiter-api/pkg/errors"
	"github.com/noah-isme/swiss-arbiter-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/swiss-arbiter-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/swiss-arbiter-api/pkg/middleware/requestid"
	"github.com/noah-isme/swiss-arbiter-api/pkg/response"
)

type handlers struct {
	tournaments *handler.TournamentHandler
	rounds      *handler.RoundHandler
	pairings    *handler.PairingHandler
	results     *handler.ResultHandler
	standings   *handler.StandingsHandler
	ops         *handler.MetricsHandler
	// live is nil when the websocket feed is disabled.
	live *handler.LiveHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, auth *internalmiddleware.ArbiterAuth, h handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", h.ops.Health)
	r.GET("/ready", h.ops.Ready)
	r.GET("/metrics", h.ops.Prometheus)

	if cfg.Swagger.Enabled || cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	arbiter := internalmiddleware.JWT(auth)

	api.POST("/tournaments", arbiter, h.tournaments.Create)
	api.GET("/tournaments/:id", h.tournaments.Get)
	api.POST("/tournaments/:id/players", arbiter, h.tournaments.RegisterPlayer)
	api.GET("/tournaments/:id/players", h.tournaments.ListPlayers)
	api.PATCH("/players/:id/status", arbiter, h.tournaments.ChangeStatus)
	api.GET("/players/:id/ratings", h.standings.RatingHistory)

	api.POST("/tournaments/:id/rounds", arbiter, h.rounds.Create)
	api.POST("/tournaments/:id/rounds/next", arbiter, h.rounds.CreateNext)
	api.GET("/tournaments/:id/rounds", h.rounds.List)
	api.GET("/rounds/:id", h.rounds.Get)
	api.PATCH("/rounds/:id/status", arbiter, h.rounds.UpdateStatus)
	api.POST("/rounds/:id/complete", arbiter, h.rounds.Complete)

	api.POST("/tournaments/:id/rounds/:number/pairings/generate", arbiter, h.pairings.Generate)
	api.POST("/tournaments/:id/rounds/:number/pairings/confirm", arbiter, h.pairings.Confirm)

	api.POST("/games/:id/result/validate", h.results.Validate)
	api.POST("/tournaments/:id/results/batch", arbiter, h.results.Batch)
	api.POST("/games/:id/approve", arbiter, h.results.Approve)
	api.GET("/games/:id/audit", h.results.AuditTrail)

	api.GET("/tournaments/:id/standings", h.standings.Standings)
	api.POST("/ratings/change", h.standings.RatingChange)

	if h.live != nil {
		api.GET("/tournaments/:id/live", h.live.Stream)
	} else {
		api.GET("/tournaments/:id/live", func(c *gin.Context) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "live feed disabled"))
		})
	}

	return r
}
