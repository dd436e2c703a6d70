package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/prepstack/exam-service/internal/cache"
	"github.com/prepstack/exam-service/internal/models"
	"github.com/prepstack/exam-service/internal/repositories"
)

type PurchasePostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewPurchasePostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.PurchaseRepository {
	return &PurchasePostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

// HasValidPurchase checks for an active, unexpired purchase. The result
// is cached briefly; a refund taking a minute to propagate is acceptable
// because refunded users only lose the ability to start new attempts.
func (p *PurchasePostgreSQL) HasValidPurchase(ctx context.Context, tx *gorm.DB, userID string, examID uint) (bool, error) {
	db := p.getDB(tx)

	cacheKey := fmt.Sprintf("purchase:%s:%d", userID, examID)
	var has bool

	err := p.cacheManager.Exists.CacheOrExecute(ctx, cacheKey, &has, cache.ExistsCacheConfig.TTL, func() (interface{}, error) {
		var count int64
		err := db.WithContext(ctx).
			Model(&models.ExamPurchase{}).
			Where("user_id = ? AND exam_id = ? AND status = ?", userID, examID, models.PurchaseActive).
			Where("expires_at IS NULL OR expires_at > ?", time.Now()).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		return count > 0, nil
	})
	if err != nil {
		return false, err
	}

	return has, nil
}

func (p *PurchasePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return p.db
}
