package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// AnswerEntry is the per-question value stored in the attempt answer map.
// A nil SelectedOption means the question was visited but cleared.
type AnswerEntry struct {
	SelectedOption  *string   `json:"selected_option"`
	MarkedForReview bool      `json:"marked_for_review"`
	AnsweredAt      time.Time `json:"answered_at"`
}

// SuspiciousFlag is one recorded proctoring signal.
type SuspiciousFlag struct {
	Type      string    `json:"type"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

// TopicStats holds per-topic scoring counts in the attempt result.
type TopicStats struct {
	Correct int `json:"correct"`
	Wrong   int `json:"wrong"`
	Total   int `json:"total"`
}

// ExamAttempt is one user's run at an exam. Answers, suspicious flags and
// the question order snapshot live in JSONB so saves can merge at the
// store level instead of read-modify-write in the service.
type ExamAttempt struct {
	ID     uint          `json:"id" gorm:"primaryKey"`
	ExamID uint          `json:"exam_id" gorm:"not null;index"`
	UserID string        `json:"user_id" gorm:"not null;index;size:255"`
	Status AttemptStatus `json:"status" gorm:"default:in_progress;index"`

	// Timing. ExpiresAt is fixed at creation and never moves.
	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	ExpiresAt   time.Time  `json:"expires_at" gorm:"not null"`
	SubmittedAt *time.Time `json:"submitted_at"`

	// QuestionOrder is the shuffled (or authored) question id sequence,
	// snapshotted once at start.
	QuestionOrder datatypes.JSON `json:"question_order" gorm:"type:jsonb"`

	// Answers maps question id (as string key) to AnswerEntry.
	Answers datatypes.JSON `json:"answers" gorm:"type:jsonb;default:'{}'"`

	// Proctoring
	SuspiciousFlags datatypes.JSON `json:"suspicious_flags" gorm:"type:jsonb;default:'[]'"`
	TabSwitchCount  int            `json:"tab_switch_count" gorm:"default:0"`

	// Result fields stay null until the scoring worker runs.
	Score            *float64       `json:"score"`
	Percentage       *float64       `json:"percentage"`
	CorrectCount     *int           `json:"correct_count"`
	WrongCount       *int           `json:"wrong_count"`
	UnattemptedCount *int           `json:"unattempted_count"`
	TimeSpentSec     *int           `json:"time_spent_sec"`
	Rank             *int           `json:"rank"`
	Percentile       *float64       `json:"percentile"`
	TopicBreakdown   datatypes.JSON `json:"topic_breakdown" gorm:"type:jsonb"`
	ScoredAt         *time.Time     `json:"scored_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Exam Exam `json:"exam,omitempty" gorm:"foreignKey:ExamID"`
}

func (ExamAttempt) TableName() string {
	return "exam_attempts"
}

// IsExpired reports whether the attempt window has passed.
func (a *ExamAttempt) IsExpired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// IsScored reports whether the async scoring pipeline has completed.
func (a *ExamAttempt) IsScored() bool {
	return a.ScoredAt != nil
}

// AnswerMap decodes the JSONB answer column.
func (a *ExamAttempt) AnswerMap() (map[string]AnswerEntry, error) {
	answers := make(map[string]AnswerEntry)
	if len(a.Answers) == 0 {
		return answers, nil
	}
	if err := json.Unmarshal(a.Answers, &answers); err != nil {
		return nil, fmt.Errorf("failed to decode answers: %w", err)
	}
	return answers, nil
}

// FlagList decodes the JSONB suspicious flags column.
func (a *ExamAttempt) FlagList() ([]SuspiciousFlag, error) {
	var flags []SuspiciousFlag
	if len(a.SuspiciousFlags) == 0 {
		return flags, nil
	}
	if err := json.Unmarshal(a.SuspiciousFlags, &flags); err != nil {
		return nil, fmt.Errorf("failed to decode suspicious flags: %w", err)
	}
	return flags, nil
}

// OrderedQuestionIDs decodes the question order snapshot.
func (a *ExamAttempt) OrderedQuestionIDs() ([]uint, error) {
	var ids []uint
	if len(a.QuestionOrder) == 0 {
		return ids, nil
	}
	if err := json.Unmarshal(a.QuestionOrder, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode question order: %w", err)
	}
	return ids, nil
}

// AnswerKey returns the map key used for a question in the answer column.
func AnswerKey(questionID uint) string {
	return strconv.FormatUint(uint64(questionID), 10)
}
