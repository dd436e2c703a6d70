package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prepstack/exam-service/internal/events"
	"github.com/prepstack/exam-service/internal/repositories"
	"github.com/prepstack/exam-service/internal/validator"
)

type serviceManager struct {
	mu sync.RWMutex

	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger

	attemptService     AttemptService
	proctorService     ProctorService
	scoringService     ScoringService
	leaderboardService LeaderboardService

	initialized bool
	shutdown    bool
}

// NewDefaultServiceManager builds the full service graph over a shared
// repository and event publisher.
func NewDefaultServiceManager(
	repo repositories.Repository,
	publisher events.EventPublisher,
	v *validator.Validator,
	logger *slog.Logger,
) (ServiceManager, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("event publisher is required")
	}
	if v == nil {
		v = validator.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &serviceManager{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}

	m.attemptService = NewAttemptService(repo, publisher, v, logger.With("service", "attempt"))
	m.proctorService = NewProctorService(repo, v, logger.With("service", "proctor"))
	m.scoringService = NewScoringService(repo, publisher, logger.With("service", "scoring"))
	m.leaderboardService = NewLeaderboardService(repo, v, logger.With("service", "leaderboard"))
	m.initialized = true

	logger.Info("service manager initialized")
	return m, nil
}

func (m *serviceManager) Attempt() AttemptService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.mustBeReady()
	return m.attemptService
}

func (m *serviceManager) Proctor() ProctorService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.mustBeReady()
	return m.proctorService
}

func (m *serviceManager) Scoring() ScoringService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.mustBeReady()
	return m.scoringService
}

func (m *serviceManager) Leaderboard() LeaderboardService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.mustBeReady()
	return m.leaderboardService
}

func (m *serviceManager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized || m.shutdown {
		return fmt.Errorf("service manager is not ready")
	}
	return m.repo.Ping(ctx)
}

func (m *serviceManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return nil
	}
	m.shutdown = true

	if err := m.publisher.Close(); err != nil {
		m.logger.Error("failed to close event publisher", "error", err)
	}
	m.logger.Info("service manager shut down")
	return nil
}

func (m *serviceManager) mustBeReady() {
	if !m.initialized {
		panic("service manager not initialized")
	}
	if m.shutdown {
		panic("service manager already shut down")
	}
}
