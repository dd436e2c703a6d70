package services

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prepstack/exam-service/internal/models"
	"github.com/prepstack/exam-service/internal/repositories"
	"github.com/prepstack/exam-service/internal/validator"
)

func TestNewProctorService(t *testing.T) {
	type args struct {
		repo      repositories.Repository
		validator *validator.Validator
		logger    *slog.Logger
	}
	tests := []struct {
		name string
		args args
		want ProctorService
	}{
		{name: "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			NewProctorService(tt.args.repo, tt.args.validator, tt.args.logger)
		})
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newProctorFixture(t *testing.T) (*fakeRepo, ProctorService) {
	t.Helper()
	repo := newFakeRepo()
	svc := NewProctorService(repo, validator.New(), discardLogger())
	return repo, svc
}

func activeAttempt(repo *fakeRepo, userID string) *models.ExamAttempt {
	now := time.Now().UTC()
	attempt := &models.ExamAttempt{
		ExamID:    1,
		UserID:    userID,
		Status:    models.AttemptInProgress,
		StartedAt: now,
		ExpiresAt: now.Add(30 * time.Minute),
	}
	_ = repo.attempt.Create(context.Background(), nil, attempt)
	return attempt
}

func TestRecordViolation_WarningLadder(t *testing.T) {
	repo, svc := newProctorFixture(t)
	attempt := activeAttempt(repo, "user-1")

	req := &ViolationRequest{Type: "tab_switch", Details: "left tab"}

	first, err := svc.RecordViolation(context.Background(), attempt.ID, req, "user-1")
	if err != nil {
		t.Fatalf("first violation: %v", err)
	}
	if first.ViolationCount != 1 || first.ShouldTerminate {
		t.Errorf("first = %+v, want count 1 without termination", first)
	}
	if first.TabSwitchCount != 1 {
		t.Errorf("TabSwitchCount = %d, want 1", first.TabSwitchCount)
	}
	if !strings.Contains(first.Warning, "2 warnings remaining") {
		t.Errorf("first warning = %q, want remaining count mentioned", first.Warning)
	}

	// The stored flag list grows between calls in the fake the same way
	// the JSONB append does in the store.
	attempt.SuspiciousFlags = mustJSON(t, repo.attempt.flagsAppended)

	second, err := svc.RecordViolation(context.Background(), attempt.ID, req, "user-1")
	if err != nil {
		t.Fatalf("second violation: %v", err)
	}
	if second.ViolationCount != 2 || second.ShouldTerminate {
		t.Errorf("second = %+v, want count 2 without termination", second)
	}
	if !strings.Contains(second.Warning, "1 warning remaining") {
		t.Errorf("second warning = %q, want final warning with remaining count", second.Warning)
	}

	attempt.SuspiciousFlags = mustJSON(t, repo.attempt.flagsAppended)

	third, err := svc.RecordViolation(context.Background(), attempt.ID, req, "user-1")
	if err != nil {
		t.Fatalf("third violation: %v", err)
	}
	if !third.ShouldTerminate {
		t.Errorf("third = %+v, want termination signalled", third)
	}
}

// The tracker only signals termination; submitting stays with the
// client, so the attempt must still be open after the third violation.
func TestRecordViolation_TerminationIsClientDriven(t *testing.T) {
	repo, svc := newProctorFixture(t)
	attempt := activeAttempt(repo, "user-1")

	req := &ViolationRequest{Type: "fullscreen_exit"}
	for i := 0; i < violationTerminateAt; i++ {
		resp, err := svc.RecordViolation(context.Background(), attempt.ID, req, "user-1")
		if err != nil {
			t.Fatalf("violation %d: %v", i+1, err)
		}
		if i == violationTerminateAt-1 && !resp.ShouldTerminate {
			t.Errorf("resp = %+v, want ShouldTerminate on violation %d", resp, i+1)
		}
		attempt.SuspiciousFlags = mustJSON(t, repo.attempt.flagsAppended)
	}

	if attempt.Status != models.AttemptInProgress {
		t.Errorf("attempt status = %s, want in_progress until the client submits", attempt.Status)
	}
	if len(repo.attempt.submitted) != 0 {
		t.Errorf("submitted = %v, want no server-side submit", repo.attempt.submitted)
	}
}

func TestRecordViolation_ClientCountKeptOnFlag(t *testing.T) {
	repo, svc := newProctorFixture(t)
	attempt := activeAttempt(repo, "user-1")

	resp, err := svc.RecordViolation(context.Background(), attempt.ID,
		&ViolationRequest{Type: "tab_switch", Count: 7}, "user-1")
	if err != nil {
		t.Fatalf("RecordViolation: %v", err)
	}
	// Response count stays the server-side ordinal.
	if resp.ViolationCount != 1 {
		t.Errorf("ViolationCount = %d, want 1", resp.ViolationCount)
	}
	if len(repo.attempt.flagsAppended) != 1 || repo.attempt.flagsAppended[0].Count != 7 {
		t.Errorf("flags = %+v, want one flag carrying the client count 7", repo.attempt.flagsAppended)
	}
}

func TestRecordViolation_InactiveAttemptIsAcknowledged(t *testing.T) {
	repo, svc := newProctorFixture(t)
	attempt := activeAttempt(repo, "user-1")
	now := time.Now().UTC()
	attempt.Status = models.AttemptCompleted
	attempt.SubmittedAt = &now

	resp, err := svc.RecordViolation(context.Background(), attempt.ID,
		&ViolationRequest{Type: "window_blur"}, "user-1")
	if err != nil {
		t.Fatalf("RecordViolation: %v", err)
	}
	if resp.ShouldTerminate || resp.ViolationCount != 0 {
		t.Errorf("resp = %+v, want silent acknowledgement", resp)
	}
	if len(repo.attempt.flagsAppended) != 0 {
		t.Error("no flag should be recorded on a completed attempt")
	}
}

func TestRecordViolation_OwnershipAndValidation(t *testing.T) {
	repo, svc := newProctorFixture(t)
	attempt := activeAttempt(repo, "user-1")

	if _, err := svc.RecordViolation(context.Background(), attempt.ID,
		&ViolationRequest{Type: "tab_switch"}, "intruder"); err == nil {
		t.Error("expected permission error for foreign attempt")
	}

	if _, err := svc.RecordViolation(context.Background(), attempt.ID,
		&ViolationRequest{Type: "made_up_type"}, "user-1"); err == nil {
		t.Error("expected validation error for unknown violation type")
	}

	if _, err := svc.RecordViolation(context.Background(), attempt.ID,
		&ViolationRequest{Type: "tab_switch", Count: -1}, "user-1"); err == nil {
		t.Error("expected validation error for negative count")
	}
}
