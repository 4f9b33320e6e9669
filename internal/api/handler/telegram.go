package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"marketchat/backend/internal/apperr"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/telegram"

	"github.com/gin-gonic/gin"
)

// LinkCodeIssuer mints Telegram link codes.
type LinkCodeIssuer interface {
	Issue(ctx context.Context, userID string) (*models.TelegramLinkCode, error)
}

type linkCodeResponse struct {
	Code      string    `json:"code"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SetTelegramLinking enables POST /api/telegram/link-code. Without it the
// route answers 404.
func (h *Handler) SetTelegramLinking(codes LinkCodeIssuer, botUsername string) {
	h.linkCodes = codes
	h.botUsername = botUsername
}

// CreateLinkCode returns a single-use code and the bot deep link carrying it.
func (h *Handler) CreateLinkCode(c *gin.Context) {
	if h.linkCodes == nil {
		respondError(c, fmt.Errorf("telegram linking is disabled: %w", apperr.ErrNotFound))
		return
	}
	code, err := h.linkCodes.Issue(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, linkCodeResponse{
		Code:      code.Code,
		Link:      telegram.DeepLink(h.botUsername, code.Code),
		ExpiresAt: code.ExpiresAt,
	})
}
