package services

import (
	"context"
	"time"

	"github.com/prepstack/exam-service/internal/models"
)

// ===== REQUEST DTOs =====

type StartAttemptRequest struct {
	ExamID uint `json:"exam_id" validate:"required"`
}

type SaveAnswerRequest struct {
	QuestionID      uint    `json:"question_id" validate:"required"`
	SelectedOption  *string `json:"selected_option,omitempty" validate:"omitempty,option_key"`
	MarkedForReview bool    `json:"marked_for_review"`
}

type SaveAnswersBatchRequest struct {
	Answers []SaveAnswerRequest `json:"answers" validate:"required,min=1,max=200,dive"`
}

type ViolationRequest struct {
	Type    string `json:"type" validate:"required,violation_type"`
	Details string `json:"details" validate:"max=500"`
	Count   int    `json:"count,omitempty" validate:"omitempty,min=1"`
}

type LeaderboardFilters struct {
	Limit  int `form:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `form:"offset" validate:"omitempty,min=0"`
}

// ===== RESPONSE DTOs =====

// QuestionView is the sanitized question shape shown during an active
// attempt. It never carries the correct option or the explanation.
type QuestionView struct {
	ID       uint           `json:"id"`
	Topic    string         `json:"topic"`
	Text     string         `json:"text"`
	Options  map[string]any `json:"options"`
	Marks    float64        `json:"marks"`
	Position int            `json:"position"`
}

type AttemptResponse struct {
	ID               uint                          `json:"id"`
	ExamID           uint                          `json:"exam_id"`
	ExamTitle        string                        `json:"exam_title"`
	Status           models.AttemptStatus          `json:"status"`
	StartedAt        time.Time                     `json:"started_at"`
	ExpiresAt        time.Time                     `json:"expires_at"`
	SubmittedAt      *time.Time                    `json:"submitted_at,omitempty"`
	TimeRemainingSec int                           `json:"time_remaining_sec"`
	Questions        []QuestionView                `json:"questions,omitempty"`
	Answers          map[string]models.AnswerEntry `json:"answers"`
	TabSwitchCount   int                           `json:"tab_switch_count"`
	CanResume        bool                          `json:"can_resume"`
}

type SaveAnswerResponse struct {
	Saved   int       `json:"saved"`
	SavedAt time.Time `json:"saved_at"`
}

type ViolationResponse struct {
	ViolationCount  int    `json:"violation_count"`
	TabSwitchCount  int    `json:"tab_switch_count"`
	ShouldTerminate bool   `json:"should_terminate"`
	Warning         string `json:"warning,omitempty"`
}

type SubmitResponse struct {
	AttemptID   uint      `json:"attempt_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	Processing  bool      `json:"processing"`
}

type TimeRemainingResponse struct {
	AttemptID        uint      `json:"attempt_id"`
	TimeRemainingSec int       `json:"time_remaining_sec"`
	ExpiresAt        time.Time `json:"expires_at"`
	ServerTime       time.Time `json:"server_time"`
}

// QuestionReview is the per-question breakdown returned with a scored
// result. Unlike QuestionView it carries the correct option and the
// explanation, which are safe to expose once the attempt is scored.
type QuestionReview struct {
	QuestionID     uint           `json:"question_id"`
	Topic          string         `json:"topic"`
	Text           string         `json:"text"`
	Options        map[string]any `json:"options"`
	CorrectOption  string         `json:"correct_option"`
	SelectedOption *string        `json:"selected_option,omitempty"`
	IsCorrect      bool           `json:"is_correct"`
	MarksAwarded   float64        `json:"marks_awarded"`
	Explanation    *string        `json:"explanation,omitempty"`
}

type ResultResponse struct {
	AttemptID        uint                         `json:"attempt_id"`
	ExamID           uint                         `json:"exam_id"`
	ExamTitle        string                       `json:"exam_title"`
	Score            float64                      `json:"score"`
	TotalMarks       float64                      `json:"total_marks"`
	Percentage       float64                      `json:"percentage"`
	CorrectCount     int                          `json:"correct_count"`
	WrongCount       int                          `json:"wrong_count"`
	UnattemptedCount int                          `json:"unattempted_count"`
	TimeSpentSec     int                          `json:"time_spent_sec"`
	Rank             *int                         `json:"rank,omitempty"`
	Percentile       *float64                     `json:"percentile,omitempty"`
	TopicBreakdown   map[string]models.TopicStats `json:"topic_breakdown"`
	SubmittedAt      time.Time                    `json:"submitted_at"`
	ScoredAt         time.Time                    `json:"scored_at"`
	Review           []QuestionReview             `json:"review,omitempty"`
}

type LeaderboardRow struct {
	Rank         int       `json:"rank"`
	UserID       string    `json:"user_id"`
	Score        float64   `json:"score"`
	Percentage   float64   `json:"percentage"`
	TimeSpentSec int       `json:"time_spent_sec"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

type LeaderboardResponse struct {
	ExamID  uint             `json:"exam_id"`
	Total   int64            `json:"total"`
	Entries []LeaderboardRow `json:"entries"`
}

type GlobalLeaderboardRow struct {
	Rank       int     `json:"rank"`
	UserID     string  `json:"user_id"`
	TotalScore float64 `json:"total_score"`
	ExamsTaken int     `json:"exams_taken"`
}

type GlobalLeaderboardResponse struct {
	Total   int64                  `json:"total"`
	Entries []GlobalLeaderboardRow `json:"entries"`
}

// ===== SERVICE INTERFACES =====

type AttemptService interface {
	Start(ctx context.Context, req *StartAttemptRequest, userID string) (*AttemptResponse, error)
	GetByID(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error)
	SaveAnswer(ctx context.Context, attemptID uint, req *SaveAnswerRequest, userID string) (*SaveAnswerResponse, error)
	SaveAnswersBatch(ctx context.Context, attemptID uint, req *SaveAnswersBatchRequest, userID string) (*SaveAnswerResponse, error)
	Submit(ctx context.Context, attemptID uint, userID string) (*SubmitResponse, error)
	GetTimeRemaining(ctx context.Context, attemptID uint, userID string) (*TimeRemainingResponse, error)
	GetResult(ctx context.Context, attemptID uint, userID string) (*ResultResponse, error)
}

type ProctorService interface {
	RecordViolation(ctx context.Context, attemptID uint, req *ViolationRequest, userID string) (*ViolationResponse, error)
}

type ScoringService interface {
	ScoreAttempt(ctx context.Context, attemptID uint) error
	ReplayUnscored(ctx context.Context, gracePeriod time.Duration, limit int) (int, error)
}

type LeaderboardService interface {
	GetByExam(ctx context.Context, examID uint, filters LeaderboardFilters) (*LeaderboardResponse, error)
	Global(ctx context.Context, filters LeaderboardFilters) (*GlobalLeaderboardResponse, error)
	ExportByExam(ctx context.Context, examID uint, requester *models.AuthUser) ([]byte, string, error)
}

// ServiceManager wires the services over a shared repository and event
// publisher.
type ServiceManager interface {
	Attempt() AttemptService
	Proctor() ProctorService
	Scoring() ScoringService
	Leaderboard() LeaderboardService
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
