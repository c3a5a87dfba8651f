package handlers

import (
	"errors"
	"net/http"

	"task-dashboard/backend/internal/models"

	"github.com/gin-gonic/gin"
)

func handleTaskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process task request"})
	}
}
