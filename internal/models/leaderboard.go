package models

import "time"

// LeaderboardEntry is the best-attempt projection per (exam, user).
// Score improvements replace the entry; ties keep the incumbent.
type LeaderboardEntry struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	ExamID    uint   `json:"exam_id" gorm:"not null;uniqueIndex:idx_leaderboard_exam_user"`
	UserID    string `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_leaderboard_exam_user"`
	AttemptID uint   `json:"attempt_id" gorm:"not null"`

	Score        float64   `json:"score" gorm:"not null;index"`
	Percentage   float64   `json:"percentage"`
	TimeSpentSec int       `json:"time_spent_sec"`
	SubmittedAt  time.Time `json:"submitted_at"`

	// Rank is recomputed exam-wide whenever an entry changes.
	Rank int `json:"rank" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (LeaderboardEntry) TableName() string {
	return "leaderboard_entries"
}

// Beats reports whether this entry outranks other under the canonical
// ordering: higher score first, faster time breaks ties.
func (e *LeaderboardEntry) Beats(other *LeaderboardEntry) bool {
	if e.Score != other.Score {
		return e.Score > other.Score
	}
	return e.TimeSpentSec < other.TimeSpentSec
}

// GlobalRankEntry is a query projection over leaderboard entries, not a
// stored table. Ranks are assigned on read.
type GlobalRankEntry struct {
	UserID     string  `json:"user_id"`
	TotalScore float64 `json:"total_score"`
	ExamsTaken int     `json:"exams_taken"`
	Rank       int     `json:"rank" gorm:"-"`
}
