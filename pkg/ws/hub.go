package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StatusUpdate is pushed to subscribers when a material transitions state.
type StatusUpdate struct {
	MaterialID string `json:"material_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans material processing updates out to WebSocket subscribers. Clients
// either watch a single material or subscribe globally for list refreshes.
type Hub struct {
	mu      sync.RWMutex
	byID    map[string]map[*websocket.Conn]*client
	global  map[*websocket.Conn]*client
	logger  *zap.Logger
	sendBuf int
}

// NewHub constructs an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		byID:    make(map[string]map[*websocket.Conn]*client),
		global:  make(map[*websocket.Conn]*client),
		logger:  logger,
		sendBuf: 256,
	}
}

// Register subscribes a connection to updates for one material.
func (h *Hub) Register(materialID string, conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.byID[materialID]; !ok {
		h.byID[materialID] = make(map[*websocket.Conn]*client)
	}
	cl := &client{conn: conn, send: make(chan []byte, h.sendBuf)}
	h.byID[materialID][conn] = cl
	h.mu.Unlock()

	go h.readPump(conn, func() { h.unregister(materialID, conn) })
	go h.writePump(cl)
}

// RegisterGlobal subscribes a connection to list-change notifications.
func (h *Hub) RegisterGlobal(conn *websocket.Conn) {
	h.mu.Lock()
	cl := &client{conn: conn, send: make(chan []byte, h.sendBuf)}
	h.global[conn] = cl
	h.mu.Unlock()

	go h.readPump(conn, func() { h.unregisterGlobal(conn) })
	go h.writePump(cl)
}

// NotifyStatus pushes a status transition to material watchers and signals
// global subscribers that the list changed.
func (h *Hub) NotifyStatus(update StatusUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		h.logger.Warn("marshal status update", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if clients, ok := h.byID[update.MaterialID]; ok {
		for _, cl := range clients {
			select {
			case cl.send <- data:
			default:
			}
		}
	}

	signal := []byte(`{"type":"materials_changed"}`)
	for _, cl := range h.global {
		select {
		case cl.send <- signal:
		default:
		}
	}
}

func (h *Hub) unregister(materialID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.byID[materialID]; ok {
		if cl, ok := clients[conn]; ok {
			close(cl.send)
			delete(clients, conn)
		}
		if len(clients) == 0 {
			delete(h.byID, materialID)
		}
	}
}

func (h *Hub) unregisterGlobal(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cl, ok := h.global[conn]; ok {
		close(cl.send)
		delete(h.global, conn)
	}
}

func (h *Hub) readPump(conn *websocket.Conn, cleanup func()) {
	defer func() {
		cleanup()
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	for msg := range cl.send {
		if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
