package api

import (
	"net/http"

	"binarynet/internal/notify"
	"binarynet/pkg/auth"
	"binarynet/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type feedRoutes struct {
	hub *notify.Hub
}

// NewFeedRoutes exposes the live payout feed. Browsers pass the token as ?token=.
func NewFeedRoutes(handler *gin.RouterGroup, hub *notify.Hub, a *auth.JWTAuth) {
	r := &feedRoutes{hub: hub}
	h := handler.Group("/feed")
	h.GET("/ws", a.JWTAuthMiddleware(), r.handleWebSocket)
}

func (r *feedRoutes) handleWebSocket(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Logger().Info("websocket upgrade failed", zap.Error(err))
		return
	}

	go r.hub.Serve(conn, userID)
}
