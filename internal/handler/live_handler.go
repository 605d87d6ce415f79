package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/swiss-arbiter-api/pkg/realtime"
)

// LiveHandler upgrades spectators to the tournament's websocket room.
type LiveHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewLiveHandler constructs the handler. allowedOrigins empty accepts any origin.
func NewLiveHandler(hub *realtime.Hub, allowedOrigins []string, logger *zap.Logger) *LiveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = struct{}{}
	}
	return &LiveHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// Stream godoc
// @Summary Live tournament feed
// @Description Websocket stream of round, pairing, result and rating events of one tournament.
// @Tags Live
// @Param id path string true "Tournament ID"
// @Success 101
// @Router /tournaments/{id}/live [get]
func (h *LiveHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("live upgrade failed", zap.String("tournament_id", c.Param("id")), zap.Error(err))
		return
	}
	h.hub.Serve(conn, c.Param("id"))
}
