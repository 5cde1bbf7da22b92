package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"makedeal/internal/middleware"
	"makedeal/internal/services"
)

func currentUser(c *gin.Context) services.UserContext {
	return services.UserContext{
		UserID: c.GetString(middleware.CtxUserID),
		RoleID: c.GetInt(middleware.CtxRoleID),
	}
}

type wipBody struct {
	Count int  `json:"count"`
	Limit *int `json:"limit"`
}

// transitionErrorBody is the structured response for a move that did not
// happen.
type transitionErrorBody struct {
	Success  bool     `json:"success"`
	Reason   string   `json:"reason"`
	Message  string   `json:"message"`
	Wip      *wipBody `json:"wip,omitempty"`
	Warnings []string `json:"warnings"`
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		status := http.StatusUnprocessableEntity
		body := transitionErrorBody{
			Reason:   string(verr.Reason),
			Message:  verr.Error(),
			Warnings: verr.Warnings,
		}
		if verr.Reason == services.ReasonWipLimitExceeded {
			status = http.StatusConflict
			body.Wip = &wipBody{Count: verr.Count, Limit: verr.Limit}
		}
		if body.Warnings == nil {
			body.Warnings = []string{}
		}
		c.JSON(status, body)
	case errors.Is(err, services.ErrConcurrentModification):
		c.JSON(http.StatusConflict, transitionErrorBody{
			Reason:   "concurrent_modification",
			Message:  "Deal was modified by another user. Reload and try again.",
			Warnings: []string{},
		})
	case errors.Is(err, services.ErrDealNotFound), errors.Is(err, services.ErrStageNotFound),
		errors.Is(err, services.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrStageInUse), errors.Is(err, services.ErrStageExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidStage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrPersistence),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable, try again"})
	default:
		logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
