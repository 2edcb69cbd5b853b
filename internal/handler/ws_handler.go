package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/studyhub-io/studyhub-api/pkg/ws"
)

// WSHandler upgrades HTTP connections and hands them to the status hub.
type WSHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSHandler constructs a WebSocket handler backed by the given hub.
func NewWSHandler(hub *ws.Hub, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// MaterialStatus streams processing-status transitions for one material.
// @Summary Subscribe to material status updates
// @Description Upgrades to a WebSocket and pushes status transitions for the material
// @Tags Materials
// @Param id path string true "Material ID"
// @Success 101
// @Router /ws/materials/{id} [get]
func (h *WSHandler) MaterialStatus(c *gin.Context) {
	materialID := c.Param("id")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.Register(materialID, conn)
}

// MaterialFeed streams list-change notifications for all materials.
// @Summary Subscribe to the material feed
// @Description Upgrades to a WebSocket and signals whenever any material changes state
// @Tags Materials
// @Success 101
// @Router /ws/materials [get]
func (h *WSHandler) MaterialFeed(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.RegisterGlobal(conn)
}
