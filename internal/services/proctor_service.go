package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prepstack/exam-service/internal/models"
	"github.com/prepstack/exam-service/internal/repositories"
	"github.com/prepstack/exam-service/internal/validator"
)

// Violation thresholds for the warning ladder.
const (
	violationWarnAt      = 1
	violationFinalWarnAt = 2
	violationTerminateAt = 3
)

const violationTabSwitch = "tab_switch"

type proctorService struct {
	repo      repositories.Repository
	validator *validator.Validator
	logger    *slog.Logger
}

func NewProctorService(
	repo repositories.Repository,
	v *validator.Validator,
	logger *slog.Logger,
) ProctorService {
	return &proctorService{
		repo:      repo,
		validator: v,
		logger:    logger,
	}
}

// RecordViolation appends a proctoring signal to the attempt. The tracker
// is an accumulator only: past the limit it sets shouldTerminate and the
// client is expected to call Submit. Violations against an attempt that
// is no longer active are acknowledged and dropped: the client reports
// fire-and-forget and a just-submitted attempt must not turn its
// trailing reports into errors.
func (s *proctorService) RecordViolation(ctx context.Context, attemptID uint, req *ViolationRequest, userID string) (*ViolationResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt: %w", err)
	}
	if attempt.UserID != userID {
		return nil, NewPermissionError(userID, attemptID, "attempt", "report violation on", "attempt belongs to another user")
	}
	if attempt.Status != models.AttemptInProgress {
		return &ViolationResponse{TabSwitchCount: attempt.TabSwitchCount}, nil
	}

	flags, err := attempt.FlagList()
	if err != nil {
		return nil, fmt.Errorf("failed to decode suspicious flags: %w", err)
	}

	ordinal := len(flags) + 1
	flag := models.SuspiciousFlag{
		Type:      req.Type,
		Details:   req.Details,
		Timestamp: time.Now().UTC(),
		Count:     ordinal,
	}
	if req.Count > 0 {
		// Client-reported repetition count for this violation type; the
		// warning ladder still follows the server-side ordinal.
		flag.Count = req.Count
	}
	bumpTabSwitch := req.Type == violationTabSwitch

	rows, err := s.repo.Attempt().AppendSuspiciousFlag(ctx, nil, attempt.ID, flag, bumpTabSwitch)
	if err != nil {
		return nil, fmt.Errorf("failed to record violation: %w", err)
	}
	if rows == 0 {
		// Attempt closed between the read and the write.
		return &ViolationResponse{TabSwitchCount: attempt.TabSwitchCount}, nil
	}

	tabSwitches := attempt.TabSwitchCount
	if bumpTabSwitch {
		tabSwitches++
	}

	resp := &ViolationResponse{
		ViolationCount: ordinal,
		TabSwitchCount: tabSwitches,
	}
	switch {
	case ordinal >= violationTerminateAt:
		resp.ShouldTerminate = true
		resp.Warning = "violation limit reached, submit your attempt now"
	case ordinal >= violationFinalWarnAt:
		resp.Warning = "final warning: 1 warning remaining before termination"
	case ordinal >= violationWarnAt:
		resp.Warning = "first warning: 2 warnings remaining before termination"
	}

	s.logger.Warn("violation recorded",
		"attempt_id", attempt.ID, "user_id", userID,
		"type", req.Type, "violation_count", ordinal,
		"should_terminate", resp.ShouldTerminate)

	return resp, nil
}
