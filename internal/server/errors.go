package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	alertdomain "github.com/stridehq/stride/internal/alert/domain"
	auditdomain "github.com/stridehq/stride/internal/audit/domain"
	"github.com/stridehq/stride/internal/observability/logger"
	"go.uber.org/zap"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrTooManyRequests    = errors.New("too_many_requests")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *apiError) Error() string { return e.Code }

func newValidationError(field, code, message string) *apiError {
	return &apiError{Status: http.StatusBadRequest, Code: code, Message: message, Field: field}
}

func invalidRequestError() *apiError {
	return &apiError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "request body could not be parsed"}
}

// AbortWithError maps an error to its HTTP response. Domain sentinels carry
// their own status; anything unrecognized is a 500 with the detail kept out
// of the response body.
func AbortWithError(c *gin.Context, err error) {
	var api *apiError
	if errors.As(err, &api) {
		c.AbortWithStatusJSON(api.Status, gin.H{"error": api})
		return
	}

	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrUnauthorized):
		status, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, ErrTooManyRequests):
		status, code = http.StatusTooManyRequests, "too_many_requests"
	case errors.Is(err, ErrServiceUnavailable):
		status, code = http.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, alertdomain.ErrRuleNotFound):
		status, code = http.StatusNotFound, err.Error()
	case errors.Is(err, alertdomain.ErrNotificationNotFound):
		status, code = http.StatusNotFound, err.Error()
	case isValidationError(err):
		status, code = http.StatusBadRequest, err.Error()
	}

	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed", zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code}})
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		auditdomain.ErrInvalidOrganization,
		auditdomain.ErrMissingAction,
		auditdomain.ErrMissingEntityType,
		auditdomain.ErrMissingBeforeState,
		auditdomain.ErrMissingAfterState,
		auditdomain.ErrNoChangedFields,
		alertdomain.ErrInvalidOrganization,
		alertdomain.ErrInvalidName,
		alertdomain.ErrEmptyTriggerActions,
		alertdomain.ErrUnknownAction,
		alertdomain.ErrEmptyTriggerEntities,
		alertdomain.ErrUnknownEntityType,
		alertdomain.ErrMissingWebhookURL,
		alertdomain.ErrInvalidWebhookURL,
		alertdomain.ErrNegativeCooldown,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
