package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"procurement/internal/middleware"
	"procurement/internal/model"
	"procurement/internal/service"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
)

// Error codes returned in the response "code" field
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeNotFound            = "NOT_FOUND"
	CodeProductNotFound     = "PRODUCT_NOT_FOUND"
	CodeForbidden           = "FORBIDDEN"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeBudgetExceeded      = "BUDGET_EXCEEDED"
	CodeExportLimitExceeded = "EXPORT_LIMIT_EXCEEDED"
	CodeConflict            = "CONFLICT"
	CodeInternal            = "INTERNAL_ERROR"
)

type budgetDetails struct {
	Year      int   `json:"year"`
	Month     int   `json:"month"`
	Effective int64 `json:"effective"`
	Committed int64 `json:"committed"`
	Requested int64 `json:"requested"`
	Remaining int64 `json:"remaining"`
}

// writeError maps a service error to its HTTP status and code. Unknown errors
// are logged and reported as 500 without their message.
func writeError(c *gin.Context, err error) {
	status, code := classify(err)

	var details interface{}
	var exceeded *service.BudgetExceededError
	if errors.As(err, &exceeded) {
		details = budgetDetails{
			Year:      exceeded.Year,
			Month:     exceeded.Month,
			Effective: exceeded.Effective,
			Committed: exceeded.Committed,
			Requested: exceeded.Requested,
			Remaining: exceeded.Remaining(),
		}
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		msg = "Internal server error"
	}
	c.JSON(status, response.ErrorWithCode(status, code, msg, details))
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, service.ErrProductNotFound):
		return http.StatusNotFound, CodeProductNotFound
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict, CodeInvalidTransition
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, service.ErrBudgetExceeded):
		return http.StatusUnprocessableEntity, CodeBudgetExceeded
	case errors.Is(err, service.ErrExportLimitExceeded):
		return http.StatusUnprocessableEntity, CodeExportLimitExceeded
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// badRequest reports a payload that failed binding.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, CodeInvalidInput, "Invalid request payload: "+err.Error(), nil))
}

// principal returns the authenticated caller or writes 401.
func principal(c *gin.Context) (model.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.ErrorWithCode(http.StatusUnauthorized, CodeUnauthorized, "Authentication required", nil))
	}
	return p, ok
}
