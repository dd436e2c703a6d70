package pkg

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/prepstack/exam-service/internal/config"
	"github.com/prepstack/exam-service/internal/models"
)

// InitDatabase opens the Postgres connection, tunes the pool and runs
// migrations.
func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		// Duplicate-key errors surface as gorm.ErrDuplicatedKey so the
		// service layer can map the active-attempt unique index to a
		// conflict response.
		TranslateError: true,
	}
	if cfg.Environment == "production" {
		gormConfig.Logger = logger.Default.LogMode(logger.Error)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Exam{},
		&models.Question{},
		&models.ExamAttempt{},
		&models.LeaderboardEntry{},
		&models.ExamPurchase{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Partial unique index: at most one in-progress attempt per user and
	// exam. AutoMigrate cannot express the WHERE clause.
	if err := db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_exam_attempts_active
		 ON exam_attempts (exam_id, user_id)
		 WHERE status = 'in_progress'`,
	).Error; err != nil {
		return fmt.Errorf("failed to create active attempt index: %w", err)
	}

	return nil
}
