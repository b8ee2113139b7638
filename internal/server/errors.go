package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/realvest/internal/audit/domain"
	ledgerdomain "github.com/smallbiznis/realvest/internal/ledger/domain"
	pipelinedomain "github.com/smallbiznis/realvest/internal/pipeline/domain"
	portfoliodomain "github.com/smallbiznis/realvest/internal/portfolio/domain"
	propertydomain "github.com/smallbiznis/realvest/internal/property/domain"
	watchlistdomain "github.com/smallbiznis/realvest/internal/watchlist/domain"
	"github.com/smallbiznis/realvest/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

var validationErrors = []error{
	ErrInvalidRequest,
	pagination.ErrInvalidPageToken,

	propertydomain.ErrInvalidID,
	propertydomain.ErrInvalidAddress,
	propertydomain.ErrInvalidCity,
	propertydomain.ErrInvalidState,
	propertydomain.ErrInvalidAmount,
	propertydomain.ErrInvalidValuation,
	propertydomain.ErrInvalidSort,
	propertydomain.ErrInvalidPageToken,

	watchlistdomain.ErrInvalidOwner,

	ledgerdomain.ErrInvalidOwner,
	ledgerdomain.ErrInvalidID,
	ledgerdomain.ErrInvalidType,
	ledgerdomain.ErrInvalidAmount,
	ledgerdomain.ErrInvalidDate,
	ledgerdomain.ErrInvalidWindow,

	portfoliodomain.ErrInvalidOwner,
	portfoliodomain.ErrInvalidID,
	portfoliodomain.ErrInvalidPurchasePrice,
	portfoliodomain.ErrInvalidPurchaseDate,
	portfoliodomain.ErrInvalidAddress,
	portfoliodomain.ErrInvalidLoan,
	portfoliodomain.ErrInvalidAmount,
	portfoliodomain.ErrInvalidValuation,

	pipelinedomain.ErrInvalidOwner,
	pipelinedomain.ErrInvalidID,
	pipelinedomain.ErrInvalidTitle,
	pipelinedomain.ErrInvalidAmount,
	pipelinedomain.ErrInvalidPosition,

	auditdomain.ErrInvalidOwner,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
}

// Missing references are reported as not found: the caller named something
// that does not exist for them.
var notFoundErrors = []error{
	ErrNotFound,
	gorm.ErrRecordNotFound,
	propertydomain.ErrNotFound,
	watchlistdomain.ErrNotFound,
	watchlistdomain.ErrInvalidReference,
	ledgerdomain.ErrNotFound,
	ledgerdomain.ErrInvalidOwnedProperty,
	portfoliodomain.ErrNotFound,
	portfoliodomain.ErrInvalidReference,
	pipelinedomain.ErrNotFound,
	pipelinedomain.ErrInvalidReference,
}

var conflictErrors = []error{
	ErrConflict,
	pipelinedomain.ErrInvariantViolation,
	pipelinedomain.ErrBusy,
}

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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case matchesAny(err, validationErrors):
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case matchesAny(err, notFoundErrors):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, pipelinedomain.ErrBusy):
		return http.StatusConflict, errorPayload{
			Type:    "busy",
			Message: "another change to this pipeline is in progress, retry",
		}
	case errors.Is(err, pipelinedomain.ErrInvariantViolation):
		return http.StatusConflict, errorPayload{
			Type:    "invariant_violation",
			Message: "the change was rolled back because stage positions would be inconsistent",
		}
	case matchesAny(err, conflictErrors):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog reports the payload type and code for request logs.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorCode(err error) string {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
