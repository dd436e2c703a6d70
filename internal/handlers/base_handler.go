package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/prepstack/exam-service/internal/services"
	"github.com/prepstack/exam-service/internal/utils"
	"github.com/prepstack/exam-service/internal/validator"
)

type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.LoggerFromContext(c, h.logger).Info(msg, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	args = append(args, "error", err)
	utils.LoggerFromContext(c, h.logger).Error(msg, args...)
}

// parseIDParam reads a positive uint path parameter. On failure it writes
// the 400 response itself and returns 0.
func (h *BaseHandler) parseIDParam(c *gin.Context, name string) uint {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + name + " parameter",
		})
		return 0
	}
	return uint(id)
}

// pathAttemptID re-reads the :id route parameter so conflict and expiry
// payloads carry the attempt id back to the client.
func pathAttemptID(c *gin.Context) uint {
	id, _ := strconv.ParseUint(c.Param("id"), 10, 32)
	return uint(id)
}

// currentUserID returns the authenticated user id or writes a 401.
func (h *BaseHandler) currentUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return "", false
	}
	return userID.(string), true
}

// handleServiceError maps service errors onto HTTP status codes.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	var permission *services.PermissionError
	var businessRule *services.BusinessRuleError
	var activeAttempt *services.ActiveAttemptError

	switch {
	case errors.As(err, &validationErrs):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrs,
		})

	case errors.As(err, &activeAttempt):
		c.JSON(http.StatusConflict, gin.H{
			"message":    "An attempt is already in progress",
			"attempt_id": activeAttempt.AttemptID,
			"can_resume": true,
		})

	case errors.As(err, &businessRule):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: businessRule.Message,
			Details: businessRule.Context,
		})

	case errors.As(err, &permission):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Permission denied",
		})

	case errors.Is(err, services.ErrAttemptNotFound),
		errors.Is(err, services.ErrExamNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: err.Error(),
		})

	case errors.Is(err, services.ErrAttemptAlreadySubmitted):
		c.JSON(http.StatusConflict, gin.H{
			"message":    "Attempt has already been submitted",
			"attempt_id": pathAttemptID(c),
		})

	case errors.Is(err, services.ErrAttemptNotScored):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Result is still being processed, try again shortly",
		})

	case errors.Is(err, services.ErrAttemptTimeExpired),
		errors.Is(err, services.ErrAttemptNotActive):
		c.JSON(http.StatusGone, gin.H{
			"message":     "Attempt time has expired",
			"attempt_id":  pathAttemptID(c),
			"auto_submit": true,
		})

	case errors.Is(err, services.ErrExamNotPublished):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Exam is not open for attempts",
		})

	case errors.Is(err, services.ErrPurchaseRequired):
		c.JSON(http.StatusPaymentRequired, ErrorResponse{
			Message: "A valid purchase is required for this exam",
		})

	case errors.Is(err, services.ErrUnknownQuestion):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Question does not belong to this exam",
		})

	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Forbidden",
		})

	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "Unauthorized",
		})

	case errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Conflicting concurrent request, retry",
		})

	default:
		h.LogError(c, err, "Unhandled service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
