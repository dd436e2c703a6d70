package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gorm.io/datatypes"

	"github.com/prepstack/exam-service/internal/events"
	"github.com/prepstack/exam-service/internal/models"
	"github.com/prepstack/exam-service/internal/repositories"
)

// loadOwnedAttempt fetches the attempt and enforces ownership.
func (s *attemptService) loadOwnedAttempt(ctx context.Context, attemptID uint, userID, action string) (*models.ExamAttempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt: %w", err)
	}
	if attempt.UserID != userID {
		return nil, NewPermissionError(userID, attemptID, "attempt", action, "attempt belongs to another user")
	}
	return attempt, nil
}

// saveAnswers merges one or more answers into the attempt answer map with
// a single store-level JSONB merge. Last write wins per question.
func (s *attemptService) saveAnswers(ctx context.Context, attemptID uint, answers []SaveAnswerRequest, userID string) (*SaveAnswerResponse, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, userID, "answer")
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

	known, err := attempt.OrderedQuestionIDs()
	if err != nil {
		return nil, fmt.Errorf("failed to decode question order: %w", err)
	}
	knownSet := make(map[uint]struct{}, len(known))
	for _, id := range known {
		knownSet[id] = struct{}{}
	}

	patch := make(map[string]models.AnswerEntry, len(answers))
	for _, a := range answers {
		if _, ok := knownSet[a.QuestionID]; !ok {
			return nil, ErrUnknownQuestion
		}
		patch[models.AnswerKey(a.QuestionID)] = models.AnswerEntry{
			SelectedOption:  a.SelectedOption,
			MarkedForReview: a.MarkedForReview,
			AnsweredAt:      now,
		}
	}

	rows, err := s.repo.Attempt().MergeAnswers(ctx, nil, attempt.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to save answers: %w", err)
	}
	if rows == 0 {
		// The guarded update missed: the attempt was submitted between
		// our read and the write.
		return nil, ErrAttemptAlreadySubmitted
	}

	return &SaveAnswerResponse{Saved: len(patch), SavedAt: now}, nil
}

// autoSubmit closes an expired attempt with the deadline as the submit
// time. Best effort: losing the conditional flip just means someone else
// already closed it.
func (s *attemptService) autoSubmit(ctx context.Context, attempt *models.ExamAttempt) {
	rows, err := s.repo.Attempt().MarkSubmitted(ctx, nil, attempt.ID, attempt.ExpiresAt)
	if err != nil {
		s.logger.Error("auto-submit failed",
			"attempt_id", attempt.ID, "error", err)
		return
	}
	if rows == 0 {
		return
	}
	s.logger.Info("attempt auto-submitted on expiry",
		"attempt_id", attempt.ID, "exam_id", attempt.ExamID)
	s.publishSubmitted(ctx, attempt, attempt.ExpiresAt, false)
}

// publishSubmitted emits the submitted event. Publish failures are logged
// and swallowed: the scoring reconciler replays completed-but-unscored
// attempts, so a lost event delays scoring instead of losing it.
func (s *attemptService) publishSubmitted(ctx context.Context, attempt *models.ExamAttempt, submittedAt time.Time, replay bool) {
	event := events.NewEvent(events.EventAttemptSubmitted, events.AttemptSubmittedEvent{
		AttemptID:   attempt.ID,
		ExamID:      attempt.ExamID,
		UserID:      attempt.UserID,
		SubmittedAt: submittedAt,
		Replay:      replay,
	})
	if err := s.publisher.Publish(ctx, events.TopicAttemptSubmitted, event); err != nil {
		s.logger.Error("failed to publish submitted event",
			"attempt_id", attempt.ID, "error", err)
	}
}

func (s *attemptService) buildAttemptResponse(attempt *models.ExamAttempt, exam *models.Exam, now time.Time) (*AttemptResponse, error) {
	answers, err := attempt.AnswerMap()
	if err != nil {
		return nil, err
	}
	order, err := attempt.OrderedQuestionIDs()
	if err != nil {
		return nil, err
	}

	remaining := 0
	if attempt.Status == models.AttemptInProgress && now.Before(attempt.ExpiresAt) {
		remaining = int(attempt.ExpiresAt.Sub(now).Seconds())
	}

	views, err := sanitizedQuestions(exam, order)
	if err != nil {
		return nil, err
	}

	return &AttemptResponse{
		ID:               attempt.ID,
		ExamID:           attempt.ExamID,
		ExamTitle:        exam.Title,
		Status:           attempt.Status,
		StartedAt:        attempt.StartedAt,
		ExpiresAt:        attempt.ExpiresAt,
		SubmittedAt:      attempt.SubmittedAt,
		TimeRemainingSec: remaining,
		Questions:        views,
		Answers:          answers,
		TabSwitchCount:   attempt.TabSwitchCount,
		CanResume:        attempt.Status == models.AttemptInProgress,
	}, nil
}

// sanitizedQuestions projects exam questions into the attempt-facing view
// in snapshot order, stripping the correct option and explanation.
func sanitizedQuestions(exam *models.Exam, order []uint) ([]QuestionView, error) {
	byID := make(map[uint]*models.Question, len(exam.Questions))
	for i := range exam.Questions {
		byID[exam.Questions[i].ID] = &exam.Questions[i]
	}

	views := make([]QuestionView, 0, len(order))
	for pos, id := range order {
		q, ok := byID[id]
		if !ok {
			// Question removed after the snapshot was taken; skip it
			// rather than fail the whole read.
			continue
		}
		opts, err := decodeOptions(q.Options)
		if err != nil {
			return nil, err
		}
		views = append(views, QuestionView{
			ID:       q.ID,
			Topic:    q.Topic,
			Text:     q.Text,
			Options:  opts,
			Marks:    q.Marks,
			Position: pos + 1,
		})
	}
	return views, nil
}

func buildResultResponse(attempt *models.ExamAttempt, exam *models.Exam) (*ResultResponse, error) {
	answers, err := attempt.AnswerMap()
	if err != nil {
		return nil, err
	}
	order, err := attempt.OrderedQuestionIDs()
	if err != nil {
		return nil, err
	}

	var breakdown map[string]models.TopicStats
	if len(attempt.TopicBreakdown) > 0 {
		if err := json.Unmarshal(attempt.TopicBreakdown, &breakdown); err != nil {
			return nil, fmt.Errorf("failed to decode topic breakdown: %w", err)
		}
	}

	byID := make(map[uint]*models.Question, len(exam.Questions))
	for i := range exam.Questions {
		byID[exam.Questions[i].ID] = &exam.Questions[i]
	}

	review := make([]QuestionReview, 0, len(order))
	for _, id := range order {
		q, ok := byID[id]
		if !ok {
			continue
		}
		opts, err := decodeOptions(q.Options)
		if err != nil {
			return nil, err
		}
		entry, answered := answers[models.AnswerKey(q.ID)]
		r := QuestionReview{
			QuestionID:    q.ID,
			Topic:         q.Topic,
			Text:          q.Text,
			Options:       opts,
			CorrectOption: q.CorrectOption,
			Explanation:   q.Explanation,
		}
		if answered && entry.SelectedOption != nil {
			r.SelectedOption = entry.SelectedOption
			if *entry.SelectedOption == q.CorrectOption {
				r.IsCorrect = true
				r.MarksAwarded = q.Marks
			} else {
				r.MarksAwarded = -q.NegativeMarks
			}
		}
		review = append(review, r)
	}

	resp := &ResultResponse{
		AttemptID:      attempt.ID,
		ExamID:         attempt.ExamID,
		ExamTitle:      exam.Title,
		TotalMarks:     exam.TotalMarks,
		Rank:           attempt.Rank,
		Percentile:     attempt.Percentile,
		TopicBreakdown: breakdown,
		Review:         review,
	}
	if attempt.Score != nil {
		resp.Score = *attempt.Score
	}
	if attempt.Percentage != nil {
		resp.Percentage = *attempt.Percentage
	}
	if attempt.CorrectCount != nil {
		resp.CorrectCount = *attempt.CorrectCount
	}
	if attempt.WrongCount != nil {
		resp.WrongCount = *attempt.WrongCount
	}
	if attempt.UnattemptedCount != nil {
		resp.UnattemptedCount = *attempt.UnattemptedCount
	}
	if attempt.TimeSpentSec != nil {
		resp.TimeSpentSec = *attempt.TimeSpentSec
	}
	if attempt.SubmittedAt != nil {
		resp.SubmittedAt = *attempt.SubmittedAt
	}
	if attempt.ScoredAt != nil {
		resp.ScoredAt = *attempt.ScoredAt
	}
	return resp, nil
}

// questionOrder returns question ids in authored position order.
func questionOrder(exam *models.Exam) []uint {
	questions := make([]models.Question, len(exam.Questions))
	copy(questions, exam.Questions)
	sort.Slice(questions, func(i, j int) bool {
		return questions[i].Position < questions[j].Position
	})
	ids := make([]uint, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids
}

func decodeOptions(raw datatypes.JSON) (map[string]any, error) {
	opts := make(map[string]any)
	if len(raw) == 0 {
		return opts, nil
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode question options: %w", err)
	}
	return opts, nil
}

func encodeJSON(v any) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
