package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"marketchat/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type openRoomRequest struct {
	PeerID     string  `json:"peerId" binding:"required"`
	ContextRef *string `json:"contextRef"`
}

type postMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

type markSeenRequest struct {
	MessageID string `json:"messageId" binding:"required"`
}

// ListRooms returns the caller's rooms, newest activity first.
func (h *Handler) ListRooms(c *gin.Context) {
	list, err := h.Rooms.ListRooms(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// OpenRoom returns the room between the caller and a peer, creating it on
// first contact.
func (h *Handler) OpenRoom(c *gin.Context) {
	var req openRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	room, err := h.Rooms.GetOrCreateRoom(c.Request.Context(), currentUser(c), req.PeerID, req.ContextRef)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) GetRoom(c *gin.Context) {
	room, err := h.Rooms.GetRoom(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// ListMessages pages backwards through history with
// ?before=<RFC3339>&beforeId=<message id>&limit=N. The cursor is the
// createdAt and id of the oldest message of the previous page.
func (h *Handler) ListMessages(c *gin.Context) {
	var before *models.MessageCursor
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			badRequest(c, fmt.Errorf("before: %w", err))
			return
		}
		before = &models.MessageCursor{CreatedAt: t, ID: c.Query("beforeId")}
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, fmt.Errorf("limit: %w", err))
			return
		}
		limit = n
	}

	msgs, err := h.Rooms.ListMessages(c.Request.Context(), c.Param("id"), currentUser(c), before, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// PostMessage appends a message and returns the updated room.
func (h *Handler) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	room, err := h.Rooms.AppendMessage(c.Request.Context(), c.Param("id"), currentUser(c), req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *Handler) MarkSeen(c *gin.Context) {
	var req markSeenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.Rooms.MarkSeen(c.Request.Context(), c.Param("id"), currentUser(c), req.MessageID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
