package handlers

import (
	"errors"
	"log"
	"net/http"

	"coursecatalog/internal/models"

	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StatusFor maps a service error onto its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrVersionConflict),
		errors.Is(err, models.ErrUniquenessViolation),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrDraftNotReady):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrEnrichment):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("Handler error on %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, ErrorResponse{Error: "internal error", Kind: models.KindInternal})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Kind: models.ErrorKind(err)})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message, Kind: models.KindInvalidInput})
}
