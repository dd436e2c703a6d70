package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"

	"github.com/prepstack/exam-service/internal/events"
	"github.com/prepstack/exam-service/internal/models"
	"github.com/prepstack/exam-service/internal/repositories"
	"github.com/prepstack/exam-service/internal/validator"
)

type attemptService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	validator *validator.Validator
	logger    *slog.Logger
}

func NewAttemptService(
	repo repositories.Repository,
	publisher events.EventPublisher,
	v *validator.Validator,
	logger *slog.Logger,
) AttemptService {
	return &attemptService{
		repo:      repo,
		publisher: publisher,
		validator: v,
		logger:    logger,
	}
}

// Start opens a new attempt on a published exam. The question order is
// snapshotted here, shuffled when the exam asks for it, and never changes
// for the life of the attempt.
func (s *attemptService) Start(ctx context.Context, req *StartAttemptRequest, userID string) (*AttemptResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, nil, req.ExamID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to load exam: %w", err)
	}
	if exam.Status != models.ExamPublished {
		return nil, ErrExamNotPublished
	}
	if len(exam.Questions) == 0 {
		return nil, NewBusinessRuleError("exam_has_no_questions",
			"exam has no questions and cannot be attempted",
			map[string]interface{}{"exam_id": exam.ID})
	}

	if exam.IsPurchasable() {
		ok, err := s.repo.Purchase().HasValidPurchase(ctx, nil, userID, exam.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check purchase: %w", err)
		}
		if !ok {
			return nil, ErrPurchaseRequired
		}
	}

	if active, err := s.repo.Attempt().GetActive(ctx, nil, userID, exam.ID); err == nil && active != nil {
		return nil, &ActiveAttemptError{AttemptID: active.ID}
	} else if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check active attempt: %w", err)
	}

	order := questionOrder(exam)
	if exam.RandomizeOrder {
		rand.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	orderJSON, err := encodeJSON(order)
	if err != nil {
		return nil, fmt.Errorf("failed to encode question order: %w", err)
	}

	now := time.Now().UTC()
	attempt := &models.ExamAttempt{
		ExamID:        exam.ID,
		UserID:        userID,
		Status:        models.AttemptInProgress,
		StartedAt:     now,
		ExpiresAt:     now.Add(time.Duration(exam.DurationMinutes) * time.Minute),
		QuestionOrder: orderJSON,
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Attempt().Create(ctx, nil, attempt); err != nil {
			return err
		}
		return txRepo.Exam().IncrementAttemptCount(ctx, nil, exam.ID)
	})
	if err != nil {
		// The partial unique index on (exam_id, user_id, in_progress)
		// catches the race two concurrent starts can hit.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if active, aerr := s.repo.Attempt().GetActive(ctx, nil, userID, exam.ID); aerr == nil && active != nil {
				return nil, &ActiveAttemptError{AttemptID: active.ID}
			}
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	s.logger.Info("attempt started",
		"attempt_id", attempt.ID, "exam_id", exam.ID, "user_id", userID,
		"expires_at", attempt.ExpiresAt)

	return s.buildAttemptResponse(attempt, exam, now)
}

// GetByID returns the attempt with its sanitized question list. Reading
// an expired in-progress attempt auto-submits it first.
func (s *attemptService) GetByID(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, userID, "view")
	if err != nil {
		return nil, err
	}

	if attempt.Status == models.AttemptCompleted {
		return nil, ErrAttemptAlreadySubmitted
	}

	now := time.Now().UTC()
	if attempt.IsExpired(now) {
		s.autoSubmit(ctx, attempt)
		return nil, ErrAttemptTimeExpired
	}

	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, nil, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exam: %w", err)
	}
	return s.buildAttemptResponse(attempt, exam, now)
}

func (s *attemptService) SaveAnswer(ctx context.Context, attemptID uint, req *SaveAnswerRequest, userID string) (*SaveAnswerResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	return s.saveAnswers(ctx, attemptID, []SaveAnswerRequest{*req}, userID)
}

func (s *attemptService) SaveAnswersBatch(ctx context.Context, attemptID uint, req *SaveAnswersBatchRequest, userID string) (*SaveAnswerResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	return s.saveAnswers(ctx, attemptID, req.Answers, userID)
}

// Submit flips the attempt to completed and hands scoring to the async
// pipeline. The flip is a single conditional update, so of any number of
// concurrent submits exactly one wins and the rest see already-submitted.
func (s *attemptService) Submit(ctx context.Context, attemptID uint, userID string) (*SubmitResponse, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, userID, "submit")
	if err != nil {
		return nil, err
	}
	if attempt.Status == models.AttemptCompleted {
		return nil, ErrAttemptAlreadySubmitted
	}

	now := time.Now().UTC()
	submittedAt := now
	if attempt.IsExpired(now) {
		// Late submits count, but the clock stops at the deadline.
		submittedAt = attempt.ExpiresAt
	}

	rows, err := s.repo.Attempt().MarkSubmitted(ctx, nil, attempt.ID, submittedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to submit attempt: %w", err)
	}
	if rows == 0 {
		return nil, ErrAttemptAlreadySubmitted
	}

	s.publishSubmitted(ctx, attempt, submittedAt, false)

	s.logger.Info("attempt submitted",
		"attempt_id", attempt.ID, "exam_id", attempt.ExamID, "user_id", userID)

	return &SubmitResponse{
		AttemptID:   attempt.ID,
		SubmittedAt: submittedAt,
		Processing:  true,
	}, nil
}

func (s *attemptService) GetTimeRemaining(ctx context.Context, attemptID uint, userID string) (*TimeRemainingResponse, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, userID, "view")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	remaining := 0
	if attempt.Status == models.AttemptInProgress {
		if attempt.IsExpired(now) {
			s.autoSubmit(ctx, attempt)
		} else {
			remaining = int(attempt.ExpiresAt.Sub(now).Seconds())
		}
	}

	return &TimeRemainingResponse{
		AttemptID:        attempt.ID,
		TimeRemainingSec: remaining,
		ExpiresAt:        attempt.ExpiresAt,
		ServerTime:       now,
	}, nil
}

// GetResult returns the scored outcome with the per-question review.
// Correct options and explanations only ever leave the service here.
func (s *attemptService) GetResult(ctx context.Context, attemptID uint, userID string) (*ResultResponse, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, userID, "view result of")
	if err != nil {
		return nil, err
	}

	if attempt.Status == models.AttemptInProgress {
		now := time.Now().UTC()
		if attempt.IsExpired(now) {
			s.autoSubmit(ctx, attempt)
			return nil, ErrAttemptNotScored
		}
		return nil, NewBusinessRuleError("attempt_not_submitted",
			"attempt must be submitted before its result is available",
			map[string]interface{}{"attempt_id": attempt.ID})
	}
	if !attempt.IsScored() {
		return nil, ErrAttemptNotScored
	}

	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, nil, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exam: %w", err)
	}
	return buildResultResponse(attempt, exam)
}
