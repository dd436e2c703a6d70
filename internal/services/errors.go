package services

import (
	"errors"
	"fmt"
)

// Attempt errors
var (
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptNotActive        = errors.New("attempt is not active")
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
	ErrAttemptTimeExpired      = errors.New("attempt time has expired")
	ErrAttemptNotScored        = errors.New("attempt result is not ready")
	ErrUnknownQuestion         = errors.New("question does not belong to exam")
)

// Exam errors
var (
	ErrExamNotFound     = errors.New("exam not found")
	ErrExamNotPublished = errors.New("exam is not published")
	ErrPurchaseRequired = errors.New("exam requires a valid purchase")
)

// Leaderboard errors
var (
	ErrLeaderboardEntryNotFound = errors.New("leaderboard entry not found")
)

// Generic errors
var (
	ErrValidationFailed = errors.New("validation failed")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrConflict         = errors.New("conflict")
)

// ActiveAttemptError is returned by Start when an in-progress attempt
// already exists; it carries the attempt so clients can resume it.
type ActiveAttemptError struct {
	AttemptID uint
}

func (e *ActiveAttemptError) Error() string {
	return fmt.Sprintf("an attempt is already in progress (attempt %d)", e.AttemptID)
}

// PermissionError describes a denied action on a resource.
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d: %s",
		e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// BusinessRuleError describes a domain rule violation.
type BusinessRuleError struct {
	Rule    string
	Message string
	Context map[string]interface{}
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule %s violated: %s", e.Rule, e.Message)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}
