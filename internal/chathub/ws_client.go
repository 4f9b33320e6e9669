package chathub

import (
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketClient implements Client over a gorilla/websocket connection.
type WebSocketClient struct {
	UserID string
	ConnID string
	Conn   *websocket.Conn
	Hub    *ManagerService
	Send   chan models.Event
}

// NewWebSocketClient wraps an upgraded connection for userID.
func NewWebSocketClient(hub *ManagerService, userID string, conn *websocket.Conn) *WebSocketClient {
	return &WebSocketClient{
		UserID: userID,
		ConnID: uuid.New().String(),
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan models.Event, config.ClientSendBuffer),
	}
}

func (c *WebSocketClient) GetUserID() string                   { return c.UserID }
func (c *WebSocketClient) GetConnID() string                   { return c.ConnID }
func (c *WebSocketClient) GetSendChannel() chan<- models.Event { return c.Send }

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes Send, which stops writePump. readPump stops once the
// connection is closed by writePump.
func (c *WebSocketClient) Close() {
	close(c.Send)
}
