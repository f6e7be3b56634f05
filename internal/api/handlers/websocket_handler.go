package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/protocol-recon/backend/internal/events"
	"github.com/protocol-recon/backend/internal/metrics"
	"github.com/protocol-recon/backend/pkg/logger"
)

type WebSocketHandler struct {
	hub *events.Hub
}

func NewWebSocketHandler(hub *events.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
	}
}

// Upgrade lets websocket handshakes through and refuses plain requests.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleConnection pushes every hub event to the client until either side
// goes away. Messages from the client are read only to notice the close.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	id, ch, cancel := h.hub.Subscribe()
	metrics.WebsocketClients.Inc()
	logger.Info("WebSocket connection established", zap.String("client_id", id))

	defer func() {
		cancel()
		metrics.WebsocketClients.Dec()
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("client_id", id))
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := c.WriteJSON(fiber.Map{"type": "connected", "client_id": id}); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := c.WriteJSON(e); err != nil {
				logger.Debug("Failed to push event", zap.String("client_id", id), zap.Error(err))
				return
			}
		}
	}
}
