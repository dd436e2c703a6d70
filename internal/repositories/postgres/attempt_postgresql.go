package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/prepstack/exam-service/internal/cache"
	"github.com/prepstack/exam-service/internal/models"
	"github.com/prepstack/exam-service/internal/repositories"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error) {
	db := a.getDB(tx)

	// Inside a transaction read straight from the store; the cache only
	// serves the hot read path.
	if tx != nil {
		var attempt models.ExamAttempt
		if err := db.WithContext(ctx).First(&attempt, id).Error; err != nil {
			return nil, err
		}
		return &attempt, nil
	}

	cacheKey := fmt.Sprintf("id:%d", id)
	var attempt models.ExamAttempt

	err := a.cacheManager.Attempt.CacheOrExecute(ctx, cacheKey, &attempt, cache.AttemptCacheConfig.TTL, func() (interface{}, error) {
		var dbAttempt models.ExamAttempt
		if err := db.WithContext(ctx).First(&dbAttempt, id).Error; err != nil {
			return nil, err
		}
		return &dbAttempt, nil
	})
	if err != nil {
		return nil, err
	}

	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetActive(ctx context.Context, tx *gorm.DB, userID string, examID uint) (*models.ExamAttempt, error) {
	db := a.getDB(tx)
	var attempt models.ExamAttempt
	if err := db.WithContext(ctx).
		Where("user_id = ? AND exam_id = ? AND status = ?", userID, examID, models.AttemptInProgress).
		First(&attempt).Error; err != nil {
		return nil, err
	}

	return &attempt, nil
}

func (a *AttemptPostgreSQL) HasActive(ctx context.Context, tx *gorm.DB, userID string, examID uint) (bool, error) {
	db := a.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.ExamAttempt{}).
		Where("user_id = ? AND exam_id = ? AND status = ?", userID, examID, models.AttemptInProgress).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}

func (a *AttemptPostgreSQL) ListByUser(ctx context.Context, tx *gorm.DB, userID string, filters repositories.AttemptFilters) ([]*models.ExamAttempt, int64, error) {
	db := a.getDB(tx)
	var attempts []*models.ExamAttempt
	var total int64

	query := db.WithContext(ctx).Model(&models.ExamAttempt{}).Where("user_id = ?", userID)
	query = a.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = a.helpers.ApplyPagination(query.Order("created_at DESC"), filters.Limit, filters.Offset)

	if err := query.Preload("Exam").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

// MergeAnswers writes the patch with a JSONB concatenation so concurrent
// saves only clobber each other per question key, never the whole map.
// COALESCE covers rows created before the column default landed.
func (a *AttemptPostgreSQL) MergeAnswers(ctx context.Context, tx *gorm.DB, id uint, patch map[string]models.AnswerEntry) (int64, error) {
	db := a.getDB(tx)

	payload, err := json.Marshal(patch)
	if err != nil {
		return 0, fmt.Errorf("failed to encode answer patch: %w", err)
	}

	result := db.WithContext(ctx).
		Model(&models.ExamAttempt{}).
		Where("id = ? AND status = ?", id, models.AttemptInProgress).
		Updates(map[string]interface{}{
			"answers":    gorm.Expr("COALESCE(answers, '{}'::jsonb) || ?::jsonb", string(payload)),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}

	a.invalidate(ctx, id)
	return result.RowsAffected, nil
}

// AppendSuspiciousFlag appends the flag to the JSONB array; the tab switch
// counter increments in the same statement when requested.
func (a *AttemptPostgreSQL) AppendSuspiciousFlag(ctx context.Context, tx *gorm.DB, id uint, flag models.SuspiciousFlag, bumpTabSwitch bool) (int64, error) {
	db := a.getDB(tx)

	payload, err := json.Marshal(flag)
	if err != nil {
		return 0, fmt.Errorf("failed to encode suspicious flag: %w", err)
	}

	updates := map[string]interface{}{
		"suspicious_flags": gorm.Expr("COALESCE(suspicious_flags, '[]'::jsonb) || ?::jsonb", string(payload)),
		"updated_at":       time.Now(),
	}
	if bumpTabSwitch {
		updates["tab_switch_count"] = gorm.Expr("tab_switch_count + 1")
	}

	result := db.WithContext(ctx).
		Model(&models.ExamAttempt{}).
		Where("id = ? AND status = ?", id, models.AttemptInProgress).
		Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}

	a.invalidate(ctx, id)
	return result.RowsAffected, nil
}

// MarkSubmitted is the single status transition. The guard on status makes
// double submits visible as zero rows affected.
func (a *AttemptPostgreSQL) MarkSubmitted(ctx context.Context, tx *gorm.DB, id uint, submittedAt time.Time) (int64, error) {
	db := a.getDB(tx)

	result := db.WithContext(ctx).
		Model(&models.ExamAttempt{}).
		Where("id = ? AND status = ?", id, models.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":       models.AttemptCompleted,
			"submitted_at": submittedAt,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}

	a.invalidate(ctx, id)
	return result.RowsAffected, nil
}

func (a *AttemptPostgreSQL) UpdateResult(ctx context.Context, tx *gorm.DB, id uint, result repositories.AttemptResult) error {
	db := a.getDB(tx)

	breakdown, err := json.Marshal(result.TopicBreakdown)
	if err != nil {
		return fmt.Errorf("failed to encode topic breakdown: %w", err)
	}

	err = db.WithContext(ctx).
		Model(&models.ExamAttempt{}).
		Where("id = ? AND status = ?", id, models.AttemptCompleted).
		Updates(map[string]interface{}{
			"score":             result.Score,
			"percentage":        result.Percentage,
			"correct_count":     result.CorrectCount,
			"wrong_count":       result.WrongCount,
			"unattempted_count": result.UnattemptedCount,
			"time_spent_sec":    result.TimeSpentSec,
			"topic_breakdown":   string(breakdown),
			"scored_at":         result.ScoredAt,
			"updated_at":        time.Now(),
		}).Error
	if err != nil {
		return err
	}

	a.invalidate(ctx, id)
	return nil
}

func (a *AttemptPostgreSQL) UpdateRank(ctx context.Context, tx *gorm.DB, id uint, rank int, percentile float64) error {
	db := a.getDB(tx)

	err := db.WithContext(ctx).
		Model(&models.ExamAttempt{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"rank":       rank,
			"percentile": percentile,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return err
	}

	a.invalidate(ctx, id)
	return nil
}

func (a *AttemptPostgreSQL) CountBetterCompleted(ctx context.Context, tx *gorm.DB, examID uint, score float64, timeSpentSec int) (int64, error) {
	db := a.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.ExamAttempt{}).
		Where("exam_id = ? AND status = ? AND scored_at IS NOT NULL", examID, models.AttemptCompleted).
		Where("score > ? OR (score = ? AND time_spent_sec < ?)", score, score, timeSpentSec).
		Count(&count).Error
	return count, err
}

func (a *AttemptPostgreSQL) CountScored(ctx context.Context, tx *gorm.DB, examID uint) (int64, error) {
	db := a.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.ExamAttempt{}).
		Where("exam_id = ? AND status = ? AND scored_at IS NOT NULL", examID, models.AttemptCompleted).
		Count(&count).Error
	return count, err
}

func (a *AttemptPostgreSQL) GetUnscored(ctx context.Context, tx *gorm.DB, submittedBefore time.Time, limit int) ([]*models.ExamAttempt, error) {
	db := a.getDB(tx)
	var attempts []*models.ExamAttempt
	if err := db.WithContext(ctx).
		Where("status = ? AND scored_at IS NULL AND submitted_at < ?", models.AttemptCompleted, submittedBefore).
		Order("submitted_at ASC").
		Limit(limit).
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to get unscored attempts: %w", err)
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

func (a *AttemptPostgreSQL) invalidate(ctx context.Context, id uint) {
	cache.SafeDelete(ctx, a.cacheManager.Attempt, fmt.Sprintf("id:%d", id))
}
