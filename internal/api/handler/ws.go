package handler

import (
	"log"
	"net/http"

	"marketchat/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are not restricted; the bearer token authenticates the socket.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades an authenticated request and registers the
// connection with the hub. The client announces itself with user-online.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID := currentUser(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WARNING: websocket upgrade for %s failed: %v", userID, err)
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, userID, conn)
	h.Hub.Register(client)
	client.Run()
}
