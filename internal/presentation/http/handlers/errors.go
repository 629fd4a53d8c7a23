// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PulseTrack/pulsetrack-go/internal/domain/errs"
)

// writeError maps domain errors onto HTTP status codes. Anything not
// recognized is a 500 with a generic message; internals never leak.
func writeError(c *gin.Context, err error) {
	switch {
	case errs.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, errs.ErrExperimentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "experiment not found"})
	case errs.IsMergeConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrNoVariantsAvailable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "experiment has no variants"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
