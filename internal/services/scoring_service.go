package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prepstack/exam-service/internal/events"
	"github.com/prepstack/exam-service/internal/models"
	"github.com/prepstack/exam-service/internal/repositories"
)

type scoringService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger

	// examLocks serializes rank recomputation per exam so two scoring
	// runs on the same exam never interleave their rank writes.
	examLocks sync.Map
}

func NewScoringService(
	repo repositories.Repository,
	publisher events.EventPublisher,
	logger *slog.Logger,
) ScoringService {
	return &scoringService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// ScoreAttempt runs the full scoring pipeline for a submitted attempt:
// compute the result, update the leaderboard on strict improvement,
// recompute exam ranks, then stamp the attempt's rank and percentile.
// Idempotent: an already-scored attempt is a no-op, so event replays and
// reconciler passes are safe.
func (s *scoringService) ScoreAttempt(ctx context.Context, attemptID uint) error {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("failed to load attempt: %w", err)
	}
	if attempt.Status != models.AttemptCompleted || attempt.SubmittedAt == nil {
		s.logger.Warn("skipping scoring of non-completed attempt",
			"attempt_id", attempt.ID, "status", attempt.Status)
		return nil
	}
	if attempt.IsScored() {
		s.logger.Debug("attempt already scored", "attempt_id", attempt.ID)
		return nil
	}

	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, nil, attempt.ExamID)
	if err != nil {
		return fmt.Errorf("failed to load exam: %w", err)
	}

	answers, err := attempt.AnswerMap()
	if err != nil {
		return fmt.Errorf("failed to decode answers: %w", err)
	}

	outcome := computeScore(exam, answers)
	timeSpent := int(attempt.SubmittedAt.Sub(attempt.StartedAt).Seconds())
	percentage := 0.0
	if exam.TotalMarks > 0 {
		percentage = outcome.Score * 100 / exam.TotalMarks
	}

	result := repositories.AttemptResult{
		Score:            outcome.Score,
		Percentage:       percentage,
		CorrectCount:     outcome.Correct,
		WrongCount:       outcome.Wrong,
		UnattemptedCount: outcome.Unattempted,
		TimeSpentSec:     timeSpent,
		TopicBreakdown:   outcome.ByTopic,
		ScoredAt:         time.Now().UTC(),
	}
	if err := s.repo.Attempt().UpdateResult(ctx, nil, attempt.ID, result); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}

	lock := s.lockForExam(attempt.ExamID)
	lock.Lock()
	err = s.updateLeaderboard(ctx, attempt, exam, result)
	lock.Unlock()
	if err != nil {
		return err
	}

	rank, percentile, err := s.attemptStanding(ctx, attempt.ExamID, result.Score, timeSpent)
	if err != nil {
		return err
	}
	if err := s.repo.Attempt().UpdateRank(ctx, nil, attempt.ID, rank, percentile); err != nil {
		return fmt.Errorf("failed to store rank: %w", err)
	}

	s.publishScored(ctx, attempt, result, rank)

	s.logger.Info("attempt scored",
		"attempt_id", attempt.ID, "exam_id", attempt.ExamID,
		"score", result.Score, "rank", rank, "percentile", percentile)
	return nil
}

// ReplayUnscored re-runs scoring for completed attempts whose submitted
// event was lost, once they have sat unscored past the grace period.
func (s *scoringService) ReplayUnscored(ctx context.Context, gracePeriod time.Duration, limit int) (int, error) {
	cutoff := time.Now().UTC().Add(-gracePeriod)
	attempts, err := s.repo.Attempt().GetUnscored(ctx, nil, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list unscored attempts: %w", err)
	}

	scored := 0
	for _, attempt := range attempts {
		if err := s.ScoreAttempt(ctx, attempt.ID); err != nil {
			s.logger.Error("replay scoring failed",
				"attempt_id", attempt.ID, "error", err)
			continue
		}
		scored++
	}
	if scored > 0 {
		s.logger.Info("replayed unscored attempts", "count", scored)
	}
	return scored, nil
}

func (s *scoringService) lockForExam(examID uint) *sync.Mutex {
	lock, _ := s.examLocks.LoadOrStore(examID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// updateLeaderboard upserts the user's best entry and recomputes ranks
// across the exam. An existing entry is replaced only on a strict score
// improvement; an equal score keeps the incumbent even when the retake
// was faster.
func (s *scoringService) updateLeaderboard(ctx context.Context, attempt *models.ExamAttempt, exam *models.Exam, result repositories.AttemptResult) error {
	candidate := &models.LeaderboardEntry{
		ExamID:       attempt.ExamID,
		UserID:       attempt.UserID,
		AttemptID:    attempt.ID,
		Score:        result.Score,
		Percentage:   result.Percentage,
		TimeSpentSec: result.TimeSpentSec,
		SubmittedAt:  *attempt.SubmittedAt,
	}

	existing, err := s.repo.Leaderboard().GetByExamAndUser(ctx, nil, attempt.ExamID, attempt.UserID)
	switch {
	case err != nil && !repositories.IsNotFoundError(err):
		return fmt.Errorf("failed to load leaderboard entry: %w", err)
	case err == nil && candidate.Score <= existing.Score:
		return nil
	}

	return s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Leaderboard().Upsert(ctx, nil, candidate); err != nil {
			return fmt.Errorf("failed to upsert leaderboard entry: %w", err)
		}

		entries, err := txRepo.Leaderboard().GetAllByExam(ctx, nil, attempt.ExamID)
		if err != nil {
			return fmt.Errorf("failed to list leaderboard: %w", err)
		}
		ranks := assignCompetitionRanks(entries)
		for i, entry := range entries {
			rank := ranks[i]
			if entry.Rank == rank {
				continue
			}
			if err := txRepo.Leaderboard().UpdateRank(ctx, nil, entry.ID, rank); err != nil {
				return fmt.Errorf("failed to update leaderboard rank: %w", err)
			}
		}
		return nil
	})
}

// attemptStanding computes the attempt's competition rank and percentile
// among all scored attempts on the exam.
func (s *scoringService) attemptStanding(ctx context.Context, examID uint, score float64, timeSpentSec int) (int, float64, error) {
	better, err := s.repo.Attempt().CountBetterCompleted(ctx, nil, examID, score, timeSpentSec)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count better attempts: %w", err)
	}
	total, err := s.repo.Attempt().CountScored(ctx, nil, examID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count scored attempts: %w", err)
	}

	rank := int(better) + 1
	percentile := 100.0
	if total > 1 {
		percentile = float64(total-int64(rank)) * 100 / float64(total-1)
	}
	return rank, percentile, nil
}

func (s *scoringService) publishScored(ctx context.Context, attempt *models.ExamAttempt, result repositories.AttemptResult, rank int) {
	event := events.NewEvent(events.EventAttemptScored, events.AttemptScoredEvent{
		AttemptID:  attempt.ID,
		ExamID:     attempt.ExamID,
		UserID:     attempt.UserID,
		Score:      result.Score,
		Percentage: result.Percentage,
		Rank:       rank,
	})
	if err := s.publisher.Publish(ctx, events.TopicAttemptScored, event); err != nil {
		s.logger.Error("failed to publish scored event",
			"attempt_id", attempt.ID, "error", err)
	}
}
