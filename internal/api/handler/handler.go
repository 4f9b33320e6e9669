// Package handler exposes the realtime subsystem over HTTP: the WebSocket
// upgrade, the pull interfaces and the internal notification endpoint.
package handler

import (
	"net/http"

	"marketchat/backend/internal/chathub"
	"marketchat/backend/internal/notify"
	"marketchat/backend/internal/rooms"

	"github.com/gin-gonic/gin"
)

// PresenceReader is the read side of the presence tracker.
type PresenceReader interface {
	IsOnline(userID string) bool
	Online() []string
}

// Handler holds the services behind the HTTP routes.
type Handler struct {
	Hub           *chathub.ManagerService
	Presence      PresenceReader
	Rooms         *rooms.Directory
	Notifications *notify.Service

	jwtSecret     string
	internalToken string

	linkCodes   LinkCodeIssuer
	botUsername string
}

// NewHandler Constructor
func NewHandler(hub *chathub.ManagerService, presence PresenceReader, dir *rooms.Directory, notifications *notify.Service, jwtSecret, internalToken string) *Handler {
	return &Handler{
		Hub:           hub,
		Presence:      presence,
		Rooms:         dir,
		Notifications: notifications,
		jwtSecret:     jwtSecret,
		internalToken: internalToken,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	r.GET("/ws", h.RequireUser(), h.ServeWebSocket)

	api := r.Group("/api", h.RequireUser())
	api.GET("/rooms", h.ListRooms)
	api.POST("/rooms", h.OpenRoom)
	api.GET("/rooms/:id", h.GetRoom)
	api.GET("/rooms/:id/messages", h.ListMessages)
	api.POST("/rooms/:id/messages", h.PostMessage)
	api.POST("/rooms/:id/seen", h.MarkSeen)

	api.GET("/notifications", h.ListNotifications)
	api.POST("/notifications/read", h.MarkAllNotificationsRead)
	api.POST("/notifications/:id/read", h.MarkNotificationRead)

	api.GET("/presence", h.OnlineUsers)

	api.POST("/telegram/link-code", h.CreateLinkCode)

	internal := r.Group("/internal", h.RequireInternalToken())
	internal.POST("/notifications", h.CreateNotification)
}
