package handler

import (
	"errors"
	"log"
	"net/http"

	"marketchat/backend/internal/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, Code: code})
}

// respondError maps domain errors onto HTTP statuses. Anything unknown is
// logged and reported as an internal error.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		abortError(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperr.ErrForbidden):
		abortError(c, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, apperr.ErrInvalidInput):
		abortError(c, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		log.Printf("ERROR: %s %s: %v", c.Request.Method, c.FullPath(), err)
		abortError(c, http.StatusInternalServerError, "internal", "Internal server error")
	}
}

func badRequest(c *gin.Context, err error) {
	abortError(c, http.StatusBadRequest, "invalid_input", err.Error())
}
