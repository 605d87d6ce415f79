package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/swiss-arbiter-api/internal/handler"
	internalmiddleware "github.com/noah-isme/swiss-arbiter-api/internal/middleware"
	"github.com/noah-isme/swiss-arbiter-api/internal/service"
	"github.com/noah-isme/swiss-arbiter-api/pkg/config"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Env:       config.EnvProduction,
		APIPrefix: "/api/v1",
		JWT:       config.JWTConfig{Secret: "router-secret"},
	}
	metrics := service.NewMetricsService()
	ratings := service.NewRatingService(service.NewRatingEngine(), nil, nil, nil, zap.NewNop())
	h := handlers{
		tournaments: handler.NewTournamentHandler(nil),
		rounds:      handler.NewRoundHandler(nil),
		pairings:    handler.NewPairingHandler(nil),
		results:     handler.NewResultHandler(nil),
		standings:   handler.NewStandingsHandler(nil, ratings),
		ops:         handler.NewMetricsHandler(metrics, nil),
	}
	return newRouter(cfg, zap.NewNop(), metrics, internalmiddleware.NewArbiterAuth(cfg.JWT), h)
}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestRouterMutatingRoutesRequireArbiter(t *testing.T) {
	router := newTestRouter(t)

	mutating := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/tournaments"},
		{http.MethodPost, "/api/v1/tournaments/t-1/players"},
		{http.MethodPatch, "/api/v1/players/p-1/status"},
		{http.MethodPost, "/api/v1/tournaments/t-1/rounds"},
		{http.MethodPost, "/api/v1/tournaments/t-1/rounds/next"},
		{http.MethodPatch, "/api/v1/rounds/r-1/status"},
		{http.MethodPost, "/api/v1/rounds/r-1/complete"},
		{http.MethodPost, "/api/v1/tournaments/t-1/rounds/2/pairings/generate"},
		{http.MethodPost, "/api/v1/tournaments/t-1/rounds/2/pairings/confirm"},
		{http.MethodPost, "/api/v1/tournaments/t-1/results/batch"},
		{http.MethodPost, "/api/v1/games/g-1/approve"},
	}
	for _, route := range mutating {
		w := serve(router, route.method, route.path, `{}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
	}
}

func TestRouterPublicRoutes(t *testing.T) {
	router := newTestRouter(t)

	w := serve(router, http.MethodPost, "/api/v1/ratings/change", `{"playerRating":2000,"opponentRating":2000,"score":0.5}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"delta":0`)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/api/v1/tournaments/t-1/live", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/docs/index.html", "").Code)
}
