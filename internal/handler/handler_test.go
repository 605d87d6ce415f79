package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/swiss-arbiter-api/internal/dto"
	internalmiddleware "github.com/noah-isme/swiss-arbiter-api/internal/middleware"
	"github.com/noah-isme/swiss-arbiter-api/internal/models"
	"github.com/noah-isme/swiss-arbiter-api/internal/service"
	appErrors "github.com/noah-isme/swiss-arbiter-api/pkg/errors"
	"github.com/noah-isme/swiss-arbiter-api/pkg/events"
	"github.com/noah-isme/swiss-arbiter-api/pkg/realtime"
)

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, body *bytes.Buffer) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(body.Bytes(), &env))
	return env
}

func withArbiter(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(internalmiddleware.ContextArbiterKey, &models.ArbiterClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: id}})
		c.Next()
	}
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

type tournamentAdminStub struct {
	created dto.CreateTournamentRequest
	actor   string
	err     error
}

func (s *tournamentAdminStub) CreateTournament(_ context.Context, req dto.CreateTournamentRequest) (*models.Tournament, error) {
	s.created = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.Tournament{ID: "t-1", Name: req.Name, TotalRounds: req.TotalRounds}, nil
}

func (s *tournamentAdminStub) GetTournament(_ context.Context, id string) (*dto.TournamentDetail, error) {
	if id != "t-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "tournament not found")
	}
	return &dto.TournamentDetail{Tournament: models.Tournament{ID: id}, Players: []models.Player{}, Rounds: []models.Round{}}, nil
}

func (s *tournamentAdminStub) RegisterPlayer(_ context.Context, tournamentID string, req dto.RegisterPlayerRequest) (*models.Player, error) {
	return &models.Player{ID: "p-1", TournamentID: tournamentID, Name: req.Name, Rating: req.Rating}, nil
}

func (s *tournamentAdminStub) ListPlayers(context.Context, string) ([]models.Player, error) {
	return []models.Player{{ID: "p-1"}, {ID: "p-2"}}, nil
}

func (s *tournamentAdminStub) ChangePlayerStatus(_ context.Context, playerID string, req dto.UpdatePlayerStatusRequest, actor string) (*models.Player, error) {
	s.actor = actor
	return &models.Player{ID: playerID, Status: models.PlayerStatus(req.Status)}, nil
}

func TestTournamentHandlerCreate(t *testing.T) {
	stub := &tournamentAdminStub{}
	handler := &TournamentHandler{service: stub}
	router := newTestRouter()
	router.POST("/tournaments", handler.Create)

	w := doJSON(router, http.MethodPost, "/tournaments", `{"name":"Spring Open","totalRounds":7,"missedRoundPointPolicy":"zero"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "zero", stub.created.MissedRoundPointPolicy)

	w = doJSON(router, http.MethodPost, "/tournaments", `{"name":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decode(t, w.Body).Error.Code)
}

func TestTournamentHandlerServiceErrorsKeepStatus(t *testing.T) {
	stub := &tournamentAdminStub{err: appErrors.Validation("invalid tournament payload",
		appErrors.FieldError{Field: "missedRoundPointPolicy", Message: "failed required"})}
	handler := &TournamentHandler{service: stub}
	router := newTestRouter()
	router.POST("/tournaments", handler.Create)
	router.GET("/tournaments/:id", handler.Get)
	router.GET("/tournaments/:id/players", handler.ListPlayers)

	w := doJSON(router, http.MethodPost, "/tournaments", `{"name":"Open","totalRounds":5}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w.Body)
	assert.Equal(t, appErrors.ErrValidation.Code, env.Error.Code)
	assert.NotNil(t, env.Error.Details)

	w = doJSON(router, http.MethodGet, "/tournaments/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodGet, "/tournaments/t-1/players", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w.Body).Meta["total"])
}

func TestTournamentHandlerChangeStatusUsesArbiter(t *testing.T) {
	stub := &tournamentAdminStub{}
	handler := &TournamentHandler{service: stub}
	router := newTestRouter()
	router.PATCH("/players/:id/status", withArbiter("arbiter-9"), handler.ChangeStatus)

	w := doJSON(router, http.MethodPatch, "/players/p-1/status", `{"status":"withdrawn"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "arbiter-9", stub.actor)
}

type roundLifecycleStub struct {
	req   dto.UpdateRoundStatusRequest
	actor string
	err   error
}

func (s *roundLifecycleStub) CreateRound(_ context.Context, tournamentID string, number int, _ string) (*models.Round, error) {
	return &models.Round{ID: "r-1", TournamentID: tournamentID, RoundNumber: number, Status: models.RoundStatusPlanned}, nil
}

func (s *roundLifecycleStub) CreateNextRound(_ context.Context, tournamentID, _ string) (*models.Round, error) {
	return &models.Round{ID: "r-2", TournamentID: tournamentID, RoundNumber: 2, Status: models.RoundStatusPlanned}, nil
}

func (s *roundLifecycleStub) GetRound(_ context.Context, roundID string) (*models.RoundDetail, error) {
	return &models.RoundDetail{Round: models.Round{ID: roundID}}, nil
}

func (s *roundLifecycleStub) ListRounds(context.Context, string) ([]models.Round, error) {
	return []models.Round{}, nil
}

func (s *roundLifecycleStub) UpdateRoundStatus(_ context.Context, roundID string, req dto.UpdateRoundStatusRequest, actor string) (*dto.RoundTransitionResponse, error) {
	s.req = req
	s.actor = actor
	if s.err != nil {
		return nil, s.err
	}
	return &dto.RoundTransitionResponse{Round: models.Round{ID: roundID, Status: models.RoundStatus(req.Status)}, Changed: true}, nil
}

func (s *roundLifecycleStub) CompleteRound(_ context.Context, roundID, _ string) (*dto.RoundTransitionResponse, error) {
	return &dto.RoundTransitionResponse{Round: models.Round{ID: roundID, Status: models.RoundStatusCompleted}, Changed: true, RatingsApplied: 3}, nil
}

func TestRoundHandlerUpdateStatus(t *testing.T) {
	stub := &roundLifecycleStub{}
	handler := &RoundHandler{service: stub}
	router := newTestRouter()
	router.PATCH("/rounds/:id/status", withArbiter("arbiter-1"), handler.UpdateStatus)

	w := doJSON(router, http.MethodPatch, "/rounds/r-1/status", `{"expectedStatus":"planned","status":"pairing"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "planned", stub.req.ExpectedStatus)
	assert.Equal(t, "arbiter-1", stub.actor)

	var resp dto.RoundTransitionResponse
	require.NoError(t, json.Unmarshal(decode(t, w.Body).Data, &resp))
	assert.Equal(t, models.RoundStatusPairing, resp.Round.Status)
	assert.True(t, resp.Changed)
}

func TestRoundHandlerConflictCarriesCurrentStatus(t *testing.T) {
	stub := &roundLifecycleStub{err: appErrors.WithDetails(appErrors.ErrConcurrencyConflict, "round is pairing, expected planned",
		map[string]string{"currentStatus": "pairing"})}
	handler := &RoundHandler{service: stub}
	router := newTestRouter()
	router.PATCH("/rounds/:id/status", handler.UpdateStatus)

	w := doJSON(router, http.MethodPatch, "/rounds/r-1/status", `{"expectedStatus":"planned","status":"pairing"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w.Body)
	assert.Equal(t, appErrors.ErrConcurrencyConflict.Code, env.Error.Code)
	assert.Equal(t, map[string]interface{}{"currentStatus": "pairing"}, env.Error.Details)
}

func TestRoundHandlerCreateAndComplete(t *testing.T) {
	handler := &RoundHandler{service: &roundLifecycleStub{}}
	router := newTestRouter()
	router.POST("/tournaments/:id/rounds", handler.Create)
	router.POST("/tournaments/:id/rounds/next", handler.CreateNext)
	router.POST("/rounds/:id/complete", handler.Complete)

	w := doJSON(router, http.MethodPost, "/tournaments/t-1/rounds", `{"roundNumber":1}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodPost, "/tournaments/t-1/rounds", `{"roundNumber":"one"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/tournaments/t-1/rounds/next", "")
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodPost, "/rounds/r-1/complete", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ratingsApplied":3`)
}

type pairingWorkflowStub struct {
	generated dto.GeneratePairingsRequest
	confirmed dto.ConfirmPairingsRequest
	round     int
	actor     string
}

func (s *pairingWorkflowStub) GeneratePairings(_ context.Context, tournamentID string, roundNumber int, req dto.GeneratePairingsRequest) (*dto.PairingProposal, error) {
	s.generated = req
	s.round = roundNumber
	return &dto.PairingProposal{ProposalID: "prop-1", TournamentID: tournamentID, RoundNumber: roundNumber, Pairings: []dto.PairingItem{}}, nil
}

func (s *pairingWorkflowStub) ConfirmPairings(_ context.Context, _ string, roundNumber int, req dto.ConfirmPairingsRequest, actor string) (*dto.ConfirmPairingsResponse, error) {
	s.confirmed = req
	s.round = roundNumber
	s.actor = actor
	if len(req.Pairings) == 1 {
		return nil, appErrors.WithDetails(appErrors.ErrPairingInfeasible, "pairing relaxes tournament constraints",
			map[string]interface{}{"constraint": "rematch"})
	}
	return &dto.ConfirmPairingsResponse{Round: models.Round{RoundNumber: roundNumber, Status: models.RoundStatusPublished}}, nil
}

func TestPairingHandlerGenerate(t *testing.T) {
	stub := &pairingWorkflowStub{}
	handler := &PairingHandler{service: stub}
	router := newTestRouter()
	router.POST("/tournaments/:id/rounds/:number/pairings/generate", handler.Generate)

	w := doJSON(router, http.MethodPost, "/tournaments/t-1/rounds/3/pairings/generate", `{"method":"adjacent","options":{"allowByes":false}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, stub.round)
	assert.Equal(t, "adjacent", stub.generated.Method)
	require.NotNil(t, stub.generated.Options.AllowByes)
	assert.False(t, *stub.generated.Options.AllowByes)
	assert.Nil(t, stub.generated.Options.AvoidRematches)

	w = doJSON(router, http.MethodPost, "/tournaments/t-1/rounds/2/pairings/generate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, stub.round)

	w = doJSON(router, http.MethodPost, "/tournaments/t-1/rounds/zero/pairings/generate", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPairingHandlerConfirm(t *testing.T) {
	stub := &pairingWorkflowStub{}
	handler := &PairingHandler{service: stub}
	router := newTestRouter()
	router.POST("/tournaments/:id/rounds/:number/pairings/confirm", withArbiter("arbiter-2"), handler.Confirm)

	w := doJSON(router, http.MethodPost, "/tournaments/t-1/rounds/1/pairings/confirm", `{"proposalId":"prop-1","expectedStatus":"pairing"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "prop-1", stub.confirmed.ProposalID)
	assert.Equal(t, "arbiter-2", stub.actor)

	w = doJSON(router, http.MethodPost, "/tournaments/t-1/rounds/1/pairings/confirm",
		`{"expectedStatus":"pairing","pairings":[{"whitePlayerId":"p1","blackPlayerId":"p2"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, appErrors.ErrPairingInfeasible.Code, decode(t, w.Body).Error.Code)
	require.Len(t, stub.confirmed.Pairings, 1)
	require.NotNil(t, stub.confirmed.Pairings[0].BlackPlayerID)
	assert.Equal(t, "p2", *stub.confirmed.Pairings[0].BlackPlayerID)
}

type resultRecorderStub struct {
	batch dto.BatchResultRequest
	actor string
}

func (s *resultRecorderStub) ValidateGameResult(_ context.Context, gameID string, req dto.ValidateResultRequest) (*dto.GameResultValidation, error) {
	valid := req.Result != "draw" || req.ResultType != "forfeit"
	return &dto.GameResultValidation{GameID: gameID, IsValid: valid}, nil
}

func (s *resultRecorderStub) BatchUpdateResults(_ context.Context, _ string, req dto.BatchResultRequest, actor string) (*dto.BatchValidationResult, error) {
	s.batch = req
	s.actor = actor
	result := &dto.BatchValidationResult{OverallValid: true}
	for i, update := range req.Updates {
		valid := update.GameID != "bad"
		if !valid {
			result.OverallValid = false
		}
		result.Results = append(result.Results, dto.BatchItemResult{Index: i, Validation: dto.GameResultValidation{GameID: update.GameID, IsValid: valid}})
	}
	result.Applied = result.OverallValid && !req.ValidateOnly
	return result, nil
}

func (s *resultRecorderStub) ApproveResult(_ context.Context, gameID string, _ dto.ApproveResultRequest, actor string) (*models.Game, error) {
	s.actor = actor
	if gameID == "open" {
		return nil, appErrors.Clone(appErrors.ErrStateTransition, "game has no result to approve")
	}
	return &models.Game{ID: gameID, Approved: true}, nil
}

func (s *resultRecorderStub) GetGameAuditTrail(_ context.Context, gameID string) ([]models.ResultAudit, error) {
	return []models.ResultAudit{{GameID: gameID, Sequence: 1, Action: models.ResultAuditChange}}, nil
}

func TestResultHandlerBatch(t *testing.T) {
	stub := &resultRecorderStub{}
	handler := &ResultHandler{service: stub}
	router := newTestRouter()
	router.POST("/tournaments/:id/results/batch", withArbiter("arbiter-3"), handler.Batch)

	w := doJSON(router, http.MethodPost, "/tournaments/t-1/results/batch", `{"updates":[{"gameId":"g-1","result":"white_wins"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "arbiter-3", stub.actor)
	assert.Equal(t, "white_wins", stub.batch.Updates[0].Result)

	w = doJSON(router, http.MethodPost, "/tournaments/t-1/results/batch", `{"updates":[{"gameId":"g-1","result":"draw"},{"gameId":"bad","result":"draw"}]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w.Body)
	assert.Equal(t, appErrors.ErrValidation.Code, env.Error.Code)
	var rejected dto.BatchValidationResult
	require.NoError(t, json.Unmarshal(env.Data, &rejected))
	require.Len(t, rejected.Results, 2)
	assert.False(t, rejected.Results[1].Validation.IsValid)

	w = doJSON(router, http.MethodPost, "/tournaments/t-1/results/batch", `{"validateOnly":true,"updates":[{"gameId":"bad","result":"draw"}]}`)
	require.Equal(t, http.StatusOK, w.Code, "validate-only reports verdicts without failing")
}

func TestResultHandlerApproveAndAudit(t *testing.T) {
	stub := &resultRecorderStub{}
	handler := &ResultHandler{service: stub}
	router := newTestRouter()
	router.POST("/games/:id/approve", withArbiter("chief"), handler.Approve)
	router.GET("/games/:id/audit", handler.AuditTrail)
	router.POST("/games/:id/result/validate", handler.Validate)

	w := doJSON(router, http.MethodPost, "/games/g-1/approve", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "chief", stub.actor)

	w = doJSON(router, http.MethodPost, "/games/open/approve", `{"reason":"checked scoresheet"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(router, http.MethodGet, "/games/g-1/audit", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"action":"result_change"`)

	w = doJSON(router, http.MethodPost, "/games/g-1/result/validate", `{"result":"draw","resultType":"forfeit"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"isValid":false`)
}

type standingsStub struct {
	through int
}

func (s *standingsStub) GetStandings(_ context.Context, tournamentID string, throughRound int) (*models.StandingsSnapshot, error) {
	s.through = throughRound
	if throughRound < 0 {
		return nil, appErrors.Validation("invalid round filter")
	}
	return &models.StandingsSnapshot{TournamentID: tournamentID, ResultsVersion: 4, ThroughRound: throughRound, Entries: []models.StandingEntry{}}, nil
}

type ratingStub struct{}

func (ratingStub) Calculate(playerRating, opponentRating int, score float64) (*service.RatingChangeDetail, error) {
	return service.NewRatingEngine().Explain(playerRating, opponentRating, score)
}

func (ratingStub) History(_ context.Context, playerID string) ([]models.RatingChange, error) {
	return []models.RatingChange{{PlayerID: playerID, Delta: 16}}, nil
}

func TestStandingsHandler(t *testing.T) {
	stub := &standingsStub{}
	handler := &StandingsHandler{standings: stub, ratings: ratingStub{}}
	router := newTestRouter()
	router.GET("/tournaments/:id/standings", handler.Standings)

	w := doJSON(router, http.MethodGet, "/tournaments/t-1/standings?throughRound=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, stub.through)
	assert.Equal(t, float64(4), decode(t, w.Body).Meta["resultsVersion"])

	w = doJSON(router, http.MethodGet, "/tournaments/t-1/standings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, stub.through)

	w = doJSON(router, http.MethodGet, "/tournaments/t-1/standings?throughRound=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/tournaments/t-1/standings?throughRound=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRatingChangeHandler(t *testing.T) {
	handler := &StandingsHandler{standings: &standingsStub{}, ratings: ratingStub{}}
	router := newTestRouter()
	router.POST("/ratings/change", handler.RatingChange)
	router.GET("/players/:id/ratings", handler.RatingHistory)

	w := doJSON(router, http.MethodPost, "/ratings/change", `{"playerRating":1600,"opponentRating":1600,"score":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	var detail service.RatingChangeDetail
	require.NoError(t, json.Unmarshal(decode(t, w.Body).Data, &detail))
	assert.Equal(t, 16, detail.Delta)
	assert.Equal(t, 32, detail.KFactor)

	w = doJSON(router, http.MethodPost, "/ratings/change", `{"playerRating":1600,"opponentRating":1600}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/ratings/change", `{"playerRating":1600,"opponentRating":1600,"score":0.25}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/players/p-1/ratings", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestMetricsHandlerReadiness(t *testing.T) {
	router := newTestRouter()
	healthy := NewMetricsHandler(service.NewMetricsService(), pingerFunc(func(context.Context) error { return nil }))
	broken := NewMetricsHandler(nil, pingerFunc(func(context.Context) error { return errors.New("connection refused") }))
	router.GET("/ready", healthy.Ready)
	router.GET("/ready-broken", broken.Ready)
	router.GET("/health", healthy.Health)
	router.GET("/metrics", healthy.Prometheus)
	router.GET("/metrics-off", broken.Prometheus)

	assert.Equal(t, http.StatusOK, doJSON(router, http.MethodGet, "/ready", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(router, http.MethodGet, "/ready-broken", "").Code)
	assert.Equal(t, http.StatusOK, doJSON(router, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, doJSON(router, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(router, http.MethodGet, "/metrics-off", "").Code)
}

func TestLiveHandlerStreamsTournamentEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := realtime.NewHub(nil)
	go hub.Run(ctx)

	router := newTestRouter()
	router.GET("/tournaments/:id/live", NewLiveHandler(hub, nil, nil).Stream)
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/tournaments/t-1/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.RoomSize("t-1") == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Publish(ctx, events.New(events.TypeResultsApplied, "t-1", time.Now(), map[string]int{"resultsVersion": 5})))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event events.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, events.TypeResultsApplied, event.Type)
	assert.Equal(t, "t-1", event.TournamentID)
}
