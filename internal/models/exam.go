package models

import (
	"time"

	"gorm.io/datatypes"
)

type ExamStatus string

const (
	ExamDraft     ExamStatus = "draft"
	ExamPublished ExamStatus = "published"
	ExamArchived  ExamStatus = "archived"
)

// Exam is authored by the content service; this service only reads it
// and bumps the attempt counter.
type Exam struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Title       string     `json:"title" gorm:"not null;size:200"`
	Description *string    `json:"description" gorm:"type:text"`
	Status      ExamStatus `json:"status" gorm:"default:draft;index"`

	DurationMinutes int     `json:"duration_minutes" gorm:"not null"`
	TotalMarks      float64 `json:"total_marks" gorm:"not null"`

	IsFree bool    `json:"is_free" gorm:"default:true"`
	Price  float64 `json:"price" gorm:"default:0"`

	RandomizeOrder bool `json:"randomize_order" gorm:"default:false"`
	AttemptCount   int  `json:"attempt_count" gorm:"default:0"`

	CreatedBy string    `json:"created_by" gorm:"size:255;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Questions []Question `json:"questions,omitempty" gorm:"foreignKey:ExamID"`
}

func (Exam) TableName() string {
	return "exams"
}

// IsPurchasable reports whether access requires a purchase check.
func (e *Exam) IsPurchasable() bool {
	return !e.IsFree
}

type Question struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	ExamID uint   `json:"exam_id" gorm:"not null;index"`
	Topic  string `json:"topic" gorm:"size:100;index"`
	Text   string `json:"text" gorm:"type:text;not null"`

	// Options maps option keys ("A".."D") to option text.
	Options       datatypes.JSON `json:"options" gorm:"type:jsonb"`
	CorrectOption string         `json:"correct_option" gorm:"size:1;not null"`
	Marks         float64        `json:"marks" gorm:"not null"`
	NegativeMarks float64        `json:"negative_marks" gorm:"default:0"`
	Explanation   *string        `json:"explanation" gorm:"type:text"`

	Position int `json:"position" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Question) TableName() string {
	return "exam_questions"
}

// OptionKeys are the selectable answer keys for every question.
var OptionKeys = []string{"A", "B", "C", "D"}

func IsValidOptionKey(key string) bool {
	for _, k := range OptionKeys {
		if k == key {
			return true
		}
	}
	return false
}
