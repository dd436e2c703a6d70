package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Topics
const (
	TopicAttemptSubmitted = "exam.attempt.submitted"
	TopicAttemptScored    = "exam.attempt.scored"
)

// Event types
const (
	EventAttemptSubmitted = "attempt.submitted"
	EventAttemptScored    = "attempt.scored"
)

const (
	eventSource  = "exam-service"
	eventVersion = "1.0"
)

// Event is the envelope published to the message bus.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent creates an envelope with identity and provenance filled in.
func NewEvent(eventType string, data interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// DecodeData re-marshals the envelope payload into a typed struct. When
// the envelope crossed the wire, Data is a map; locally it may already be
// the typed value.
func (e *Event) DecodeData(dest interface{}) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode event data: %w", err)
	}
	return nil
}

// AttemptSubmittedEvent is published after the submit flip succeeds.
// The scoring worker is its only consumer.
type AttemptSubmittedEvent struct {
	AttemptID   uint      `json:"attempt_id"`
	ExamID      uint      `json:"exam_id"`
	UserID      string    `json:"user_id"`
	SubmittedAt time.Time `json:"submitted_at"`

	// Replay marks reconciler re-dispatches of stuck attempts.
	Replay bool `json:"replay,omitempty"`
}

// AttemptScoredEvent announces a finished scoring run for downstream
// consumers (notifications, analytics).
type AttemptScoredEvent struct {
	AttemptID  uint    `json:"attempt_id"`
	ExamID     uint    `json:"exam_id"`
	UserID     string  `json:"user_id"`
	Score      float64 `json:"score"`
	Percentage float64 `json:"percentage"`
	Rank       int     `json:"rank"`
}
