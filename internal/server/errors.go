package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/bookstore/internal/store"
	"github.com/wolfeidau/bookstore/internal/subscription"
	"github.com/wolfeidau/bookstore/internal/telemetry"
)

const (
	msgUnauthenticated = "You must be logged in."
	msgForbidden       = "You are not allowed to perform this action."
	msgUnavailable     = "Service temporarily unavailable, please retry."
	msgInternal        = "Internal server error."
)

type errorResponse struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// respondError maps service errors onto status codes with a {"message": ...} body.
func respondError(c *gin.Context, err error) {
	var (
		validation *subscription.ValidationError
		notFound   *subscription.NotFoundError
		conflict   *subscription.ConflictError
		transient  *subscription.TransientError
	)

	switch {
	case errors.As(err, &validation):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, errorResponse{Message: validation.Message, Field: validation.Field})
	case errors.As(err, &conflict):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, errorResponse{Message: conflict.Message})
	case errors.As(err, &notFound):
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Message: notFound.Error()})
	case errors.As(err, &transient), isUnavailable(err):
		telemetry.GetMetrics().StoreUnavailableTotal.Add(c.Request.Context(), 1)
		zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("store unavailable")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{Message: msgUnavailable})
	default:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Message: msgInternal})
	}
}

// isUnavailable catches store failures from collaborators outside the
// subscription services, such as the user and session stores.
func isUnavailable(err error) bool {
	return errors.Is(err, store.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

func respondMessage(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Message: message})
}
