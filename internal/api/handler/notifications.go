package handler

import (
	"net/http"

	"marketchat/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type markAllReadRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

func (h *Handler) ListNotifications(c *gin.Context) {
	feed, err := h.Notifications.ListForUser(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if err := h.Notifications.MarkRead(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	var req markAllReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	updated, err := h.Notifications.MarkAllRead(c.Request.Context(), currentUser(c), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *Handler) OnlineUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": h.Presence.Online()})
}

// CreateNotification lets other backend services notify a user.
func (h *Handler) CreateNotification(c *gin.Context) {
	var req models.NotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	n, err := h.Notifications.Notify(c.Request.Context(), req.UserID, req.Title, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}
