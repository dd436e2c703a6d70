package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prepstack/exam-service/internal/cache"
	"github.com/prepstack/exam-service/internal/models"
	"github.com/prepstack/exam-service/internal/repositories"
)

type LeaderboardPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewLeaderboardPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.LeaderboardRepository {
	return &LeaderboardPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (l *LeaderboardPostgreSQL) GetByExamAndUser(ctx context.Context, tx *gorm.DB, examID uint, userID string) (*models.LeaderboardEntry, error) {
	db := l.getDB(tx)
	var entry models.LeaderboardEntry
	if err := db.WithContext(ctx).
		Where("exam_id = ? AND user_id = ?", examID, userID).
		First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// Upsert inserts or replaces the (exam, user) entry. Improvement checks
// belong to the service; the store enforces only uniqueness.
func (l *LeaderboardPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, entry *models.LeaderboardEntry) error {
	db := l.getDB(tx)

	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "exam_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"attempt_id", "score", "percentage", "time_spent_sec", "submitted_at", "updated_at",
			}),
		}).
		Create(entry).Error
	if err != nil {
		return fmt.Errorf("failed to upsert leaderboard entry: %w", err)
	}

	cache.InvalidateLeaderboardCache(ctx, l.cacheManager, entry.ExamID)
	return nil
}

func (l *LeaderboardPostgreSQL) ListByExam(ctx context.Context, tx *gorm.DB, examID uint, limit, offset int) ([]*models.LeaderboardEntry, int64, error) {
	db := l.getDB(tx)
	var total int64

	if err := db.WithContext(ctx).
		Model(&models.LeaderboardEntry{}).
		Where("exam_id = ?", examID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	type page struct {
		Entries []*models.LeaderboardEntry `json:"entries"`
	}

	cacheKey := fmt.Sprintf("exam:%d:limit:%d:offset:%d", examID, limit, offset)
	var cached page

	err := l.cacheManager.Leaderboard.CacheOrExecute(ctx, cacheKey, &cached, cache.LeaderboardCacheConfig.TTL, func() (interface{}, error) {
		var entries []*models.LeaderboardEntry
		query := db.WithContext(ctx).
			Where("exam_id = ?", examID).
			Order("score DESC, time_spent_sec ASC, submitted_at ASC")
		query = l.helpers.ApplyPagination(query, limit, offset)
		if err := query.Find(&entries).Error; err != nil {
			return nil, err
		}
		return &page{Entries: entries}, nil
	})
	if err != nil {
		return nil, 0, err
	}

	return cached.Entries, total, nil
}

func (l *LeaderboardPostgreSQL) GetAllByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.LeaderboardEntry, error) {
	db := l.getDB(tx)
	var entries []*models.LeaderboardEntry
	if err := db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("score DESC, time_spent_sec ASC, submitted_at ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to get leaderboard entries: %w", err)
	}
	return entries, nil
}

func (l *LeaderboardPostgreSQL) UpdateRank(ctx context.Context, tx *gorm.DB, id uint, rank int) error {
	db := l.getDB(tx)
	return db.WithContext(ctx).
		Model(&models.LeaderboardEntry{}).
		Where("id = ?", id).
		Update("rank", rank).Error
}

// GlobalRanking aggregates each user's best scores across exams. Ranks
// are positional per page; ties in total score share a position only
// within the canonical ordering below.
func (l *LeaderboardPostgreSQL) GlobalRanking(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*models.GlobalRankEntry, int64, error) {
	db := l.getDB(tx)

	var total int64
	if err := db.WithContext(ctx).
		Model(&models.LeaderboardEntry{}).
		Distinct("user_id").
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	type page struct {
		Entries []*models.GlobalRankEntry `json:"entries"`
	}

	cacheKey := fmt.Sprintf("global:limit:%d:offset:%d", limit, offset)
	var cached page

	err := l.cacheManager.Leaderboard.CacheOrExecute(ctx, cacheKey, &cached, cache.LeaderboardCacheConfig.TTL, func() (interface{}, error) {
		if limit <= 0 || limit > 100 {
			limit = 20
		}
		if offset < 0 {
			offset = 0
		}

		var entries []*models.GlobalRankEntry
		if err := db.WithContext(ctx).
			Model(&models.LeaderboardEntry{}).
			Select("user_id, SUM(score) AS total_score, COUNT(*) AS exams_taken").
			Group("user_id").
			Order("total_score DESC, exams_taken DESC, user_id ASC").
			Limit(limit).
			Offset(offset).
			Find(&entries).Error; err != nil {
			return nil, err
		}

		for i, entry := range entries {
			entry.Rank = offset + i + 1
		}
		return &page{Entries: entries}, nil
	})
	if err != nil {
		return nil, 0, err
	}

	return cached.Entries, total, nil
}

func (l *LeaderboardPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return l.db
}
