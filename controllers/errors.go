package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	services "github.com/phillip/farewell-fund-go/services"
)

// respondError maps the service error taxonomy onto HTTP. Storage failures
// were logged where they happened and leave here without detail.
func respondError(c *gin.Context, err error) {
	status, body := errorResponse(c, err)
	c.JSON(status, body)
}

func errorResponse(c *gin.Context, err error) (int, gin.H) {
	var verr *services.ValidationError
	var cerr *services.ConflictError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field}
	case errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized, gin.H{"error": "authentication required"}
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusForbidden, gin.H{"error": "forbidden"}
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, gin.H{"error": err.Error()}
	case errors.As(err, &cerr):
		return http.StatusConflict, gin.H{"error": cerr.Message}
	default:
		_ = c.Error(err)
		return http.StatusInternalServerError, gin.H{"error": "internal error"}
	}
}
