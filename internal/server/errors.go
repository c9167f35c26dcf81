package server

import (
	"errors"
	"net/http"

	apikeydomain "github.com/evergrid/carbonledger/internal/apikey/domain"
	carbondomain "github.com/evergrid/carbonledger/internal/carbon/domain"
	faileddomain "github.com/evergrid/carbonledger/internal/failedevent/domain"
	"github.com/evergrid/carbonledger/internal/ingest"
	"github.com/evergrid/carbonledger/internal/processor"
	sessiondomain "github.com/evergrid/carbonledger/internal/session/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, apikeydomain.ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "authentication required"}

	case errors.Is(err, ErrForbidden),
		errors.Is(err, apikeydomain.ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "insufficient scope"}

	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "rate limit exceeded"}

	case errors.Is(err, ErrNotFound),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "resource not found"}

	case errors.Is(err, carbondomain.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, errorPayload{Type: "insufficient_balance", Message: err.Error()}

	case processor.IsValidationError(err),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ingest.ErrUnknownEventType),
		errors.Is(err, ingest.ErrMissingPayload),
		errors.Is(err, ingest.ErrEmptyBatch),
		errors.Is(err, ingest.ErrBatchTooLarge),
		errors.Is(err, apikeydomain.ErrInvalidName),
		errors.Is(err, apikeydomain.ErrInvalidKeyID),
		errors.Is(err, carbondomain.ErrInvalidAmount),
		errors.Is(err, carbondomain.ErrInvalidReference),
		errors.Is(err, sessiondomain.ErrInvalidSession),
		errors.Is(err, faileddomain.ErrInvalidPayload):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: err.Error()}

	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "service temporarily unavailable"}

	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}
