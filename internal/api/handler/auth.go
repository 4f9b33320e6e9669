package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"marketchat/backend/internal/auth"

	"github.com/gin-gonic/gin"
)

const userIDKey = "userID"

// bearerToken reads the token from the Authorization header or, for
// browser WebSocket handshakes that cannot set headers, the token query
// parameter.
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return c.Query("token")
}

// RequireUser authenticates the caller and stores the user id in the context.
func (h *Handler) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			abortError(c, http.StatusUnauthorized, "unauthorized", "Authorization token missing")
			return
		}
		userID, err := auth.ParseToken(h.jwtSecret, tokenString)
		if err != nil {
			abortError(c, http.StatusUnauthorized, "unauthorized", "Invalid token or expired")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// RequireInternalToken guards endpoints meant for other backend services.
// With no token configured the endpoints are closed.
func (h *Handler) RequireInternalToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Internal-Token")
		if h.internalToken == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.internalToken)) != 1 {
			abortError(c, http.StatusUnauthorized, "unauthorized", "Internal token required")
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
