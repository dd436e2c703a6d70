package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/prepstack/exam-service/internal/models"
	"gorm.io/gorm"
)

// ===== EXAM REPOSITORY =====

type ExamRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error)
	GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error)

	// IncrementAttemptCount bumps the counter with a column expression,
	// never a read-modify-write.
	IncrementAttemptCount(ctx context.Context, tx *gorm.DB, id uint) error
}

// ===== ATTEMPT REPOSITORY =====

type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error)
	GetActive(ctx context.Context, tx *gorm.DB, userID string, examID uint) (*models.ExamAttempt, error)
	HasActive(ctx context.Context, tx *gorm.DB, userID string, examID uint) (bool, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID string, filters AttemptFilters) ([]*models.ExamAttempt, int64, error)

	// MergeAnswers merges the patch into the JSONB answer map in one
	// UPDATE guarded on in_progress status. Returns rows affected so the
	// caller can distinguish an inactive attempt from a saved write.
	MergeAnswers(ctx context.Context, tx *gorm.DB, id uint, patch map[string]models.AnswerEntry) (int64, error)

	// AppendSuspiciousFlag appends to the JSONB flag array and optionally
	// bumps the tab switch counter, all in one guarded UPDATE.
	AppendSuspiciousFlag(ctx context.Context, tx *gorm.DB, id uint, flag models.SuspiciousFlag, bumpTabSwitch bool) (int64, error)

	// MarkSubmitted flips in_progress -> completed. Zero rows affected
	// means another caller won the flip (or the attempt never existed).
	MarkSubmitted(ctx context.Context, tx *gorm.DB, id uint, submittedAt time.Time) (int64, error)

	UpdateResult(ctx context.Context, tx *gorm.DB, id uint, result AttemptResult) error
	UpdateRank(ctx context.Context, tx *gorm.DB, id uint, rank int, percentile float64) error

	// CountBetterCompleted counts scored attempts on the exam that beat
	// the given (score, time) pair under the canonical ordering.
	CountBetterCompleted(ctx context.Context, tx *gorm.DB, examID uint, score float64, timeSpentSec int) (int64, error)
	CountScored(ctx context.Context, tx *gorm.DB, examID uint) (int64, error)

	// GetUnscored returns completed attempts whose scoring never landed,
	// submitted before the cutoff. Used by the reconciler.
	GetUnscored(ctx context.Context, tx *gorm.DB, submittedBefore time.Time, limit int) ([]*models.ExamAttempt, error)
}

// ===== LEADERBOARD REPOSITORY =====

type LeaderboardRepository interface {
	GetByExamAndUser(ctx context.Context, tx *gorm.DB, examID uint, userID string) (*models.LeaderboardEntry, error)
	Upsert(ctx context.Context, tx *gorm.DB, entry *models.LeaderboardEntry) error
	ListByExam(ctx context.Context, tx *gorm.DB, examID uint, limit, offset int) ([]*models.LeaderboardEntry, int64, error)
	GetAllByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.LeaderboardEntry, error)
	UpdateRank(ctx context.Context, tx *gorm.DB, id uint, rank int) error
	GlobalRanking(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*models.GlobalRankEntry, int64, error)
}

// ===== PURCHASE REPOSITORY =====

type PurchaseRepository interface {
	HasValidPurchase(ctx context.Context, tx *gorm.DB, userID string, examID uint) (bool, error)
}

// ===== AGGREGATE =====

type Repository interface {
	Exam() ExamRepository
	Attempt() AttemptRepository
	Leaderboard() LeaderboardRepository
	Purchase() PurchaseRepository

	WithTransaction(ctx context.Context, fn func(Repository) error) error
	Ping(ctx context.Context) error
	Close() error
}

// RepositoryManager handles repository lifecycle.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ===== FILTER AND RESULT TYPES =====

type AttemptFilters struct {
	Status *models.AttemptStatus
	ExamID *uint
	Limit  int
	Offset int
}

// AttemptResult is the full scoring outcome written in one update.
type AttemptResult struct {
	Score            float64
	Percentage       float64
	CorrectCount     int
	WrongCount       int
	UnattemptedCount int
	TimeSpentSec     int
	TopicBreakdown   map[string]models.TopicStats
	ScoredAt         time.Time
}

// IsNotFoundError reports whether err is a record-not-found from the store.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
