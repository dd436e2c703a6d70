package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prepstack/exam-service/internal/models"
	"github.com/prepstack/exam-service/internal/repositories"
)

func mustJSON(t *testing.T, v any) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return datatypes.JSON(raw)
}

// fakeRepo is an in-memory repositories.Repository for service tests.
// Only the methods the tests exercise are implemented; the rest return
// record-not-found.
type fakeRepo struct {
	attempt     *fakeAttemptRepo
	exam        *fakeExamRepo
	leaderboard *fakeLeaderboardRepo
	purchase    *fakePurchaseRepo
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		attempt:     &fakeAttemptRepo{attempts: map[uint]*models.ExamAttempt{}},
		exam:        &fakeExamRepo{exams: map[uint]*models.Exam{}},
		leaderboard: &fakeLeaderboardRepo{},
		purchase:    &fakePurchaseRepo{},
	}
}

func (r *fakeRepo) Exam() repositories.ExamRepository               { return r.exam }
func (r *fakeRepo) Attempt() repositories.AttemptRepository         { return r.attempt }
func (r *fakeRepo) Leaderboard() repositories.LeaderboardRepository { return r.leaderboard }
func (r *fakeRepo) Purchase() repositories.PurchaseRepository       { return r.purchase }
func (r *fakeRepo) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(r)
}
func (r *fakeRepo) Ping(ctx context.Context) error { return nil }
func (r *fakeRepo) Close() error                   { return nil }

type fakeExamRepo struct {
	exams map[uint]*models.Exam
}

func (r *fakeExamRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	if e, ok := r.exams[id]; ok {
		return e, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeExamRepo) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *fakeExamRepo) IncrementAttemptCount(ctx context.Context, tx *gorm.DB, id uint) error {
	if e, ok := r.exams[id]; ok {
		e.AttemptCount++
	}
	return nil
}

type fakeAttemptRepo struct {
	attempts map[uint]*models.ExamAttempt
	nextID   uint

	flagsAppended  []models.SuspiciousFlag
	mergedPatches  []map[string]models.AnswerEntry
	submitted      []uint
	resultUpgrades []repositories.AttemptResult
}

func (r *fakeAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	r.nextID++
	attempt.ID = r.nextID
	r.attempts[attempt.ID] = attempt
	return nil
}

func (r *fakeAttemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error) {
	if a, ok := r.attempts[id]; ok {
		// Hand out a snapshot, like a real store: later writes through the
		// repo must not mutate an attempt the caller already loaded.
		snapshot := *a
		return &snapshot, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAttemptRepo) GetActive(ctx context.Context, tx *gorm.DB, userID string, examID uint) (*models.ExamAttempt, error) {
	for _, a := range r.attempts {
		if a.UserID == userID && a.ExamID == examID && a.Status == models.AttemptInProgress {
			return a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAttemptRepo) HasActive(ctx context.Context, tx *gorm.DB, userID string, examID uint) (bool, error) {
	_, err := r.GetActive(ctx, tx, userID, examID)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (r *fakeAttemptRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID string, filters repositories.AttemptFilters) ([]*models.ExamAttempt, int64, error) {
	return nil, 0, nil
}

func (r *fakeAttemptRepo) MergeAnswers(ctx context.Context, tx *gorm.DB, id uint, patch map[string]models.AnswerEntry) (int64, error) {
	a, ok := r.attempts[id]
	if !ok || a.Status != models.AttemptInProgress {
		return 0, nil
	}
	r.mergedPatches = append(r.mergedPatches, patch)
	return 1, nil
}

func (r *fakeAttemptRepo) AppendSuspiciousFlag(ctx context.Context, tx *gorm.DB, id uint, flag models.SuspiciousFlag, bumpTabSwitch bool) (int64, error) {
	a, ok := r.attempts[id]
	if !ok || a.Status != models.AttemptInProgress {
		return 0, nil
	}
	r.flagsAppended = append(r.flagsAppended, flag)
	if bumpTabSwitch {
		a.TabSwitchCount++
	}
	return 1, nil
}

func (r *fakeAttemptRepo) MarkSubmitted(ctx context.Context, tx *gorm.DB, id uint, submittedAt time.Time) (int64, error) {
	a, ok := r.attempts[id]
	if !ok || a.Status != models.AttemptInProgress {
		return 0, nil
	}
	a.Status = models.AttemptCompleted
	a.SubmittedAt = &submittedAt
	r.submitted = append(r.submitted, id)
	return 1, nil
}

func (r *fakeAttemptRepo) UpdateResult(ctx context.Context, tx *gorm.DB, id uint, result repositories.AttemptResult) error {
	a, ok := r.attempts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	a.Score = &result.Score
	a.Percentage = &result.Percentage
	a.CorrectCount = &result.CorrectCount
	a.WrongCount = &result.WrongCount
	a.UnattemptedCount = &result.UnattemptedCount
	a.TimeSpentSec = &result.TimeSpentSec
	a.ScoredAt = &result.ScoredAt
	r.resultUpgrades = append(r.resultUpgrades, result)
	return nil
}

func (r *fakeAttemptRepo) UpdateRank(ctx context.Context, tx *gorm.DB, id uint, rank int, percentile float64) error {
	a, ok := r.attempts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	a.Rank = &rank
	a.Percentile = &percentile
	return nil
}

func (r *fakeAttemptRepo) CountBetterCompleted(ctx context.Context, tx *gorm.DB, examID uint, score float64, timeSpentSec int) (int64, error) {
	var n int64
	for _, a := range r.attempts {
		if a.ExamID != examID || !a.IsScored() || a.Score == nil || a.TimeSpentSec == nil {
			continue
		}
		if *a.Score > score || (*a.Score == score && *a.TimeSpentSec < timeSpentSec) {
			n++
		}
	}
	return n, nil
}

func (r *fakeAttemptRepo) CountScored(ctx context.Context, tx *gorm.DB, examID uint) (int64, error) {
	var n int64
	for _, a := range r.attempts {
		if a.ExamID == examID && a.IsScored() {
			n++
		}
	}
	return n, nil
}

func (r *fakeAttemptRepo) GetUnscored(ctx context.Context, tx *gorm.DB, submittedBefore time.Time, limit int) ([]*models.ExamAttempt, error) {
	var out []*models.ExamAttempt
	for _, a := range r.attempts {
		if a.Status == models.AttemptCompleted && !a.IsScored() &&
			a.SubmittedAt != nil && a.SubmittedAt.Before(submittedBefore) {
			out = append(out, a)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type fakeLeaderboardRepo struct {
	entries []*models.LeaderboardEntry
	nextID  uint
}

func (r *fakeLeaderboardRepo) GetByExamAndUser(ctx context.Context, tx *gorm.DB, examID uint, userID string) (*models.LeaderboardEntry, error) {
	for _, e := range r.entries {
		if e.ExamID == examID && e.UserID == userID {
			return e, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeLeaderboardRepo) Upsert(ctx context.Context, tx *gorm.DB, entry *models.LeaderboardEntry) error {
	for _, e := range r.entries {
		if e.ExamID == entry.ExamID && e.UserID == entry.UserID {
			e.AttemptID = entry.AttemptID
			e.Score = entry.Score
			e.Percentage = entry.Percentage
			e.TimeSpentSec = entry.TimeSpentSec
			e.SubmittedAt = entry.SubmittedAt
			return nil
		}
	}
	r.nextID++
	entry.ID = r.nextID
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeLeaderboardRepo) ListByExam(ctx context.Context, tx *gorm.DB, examID uint, limit, offset int) ([]*models.LeaderboardEntry, int64, error) {
	all, _ := r.GetAllByExam(ctx, tx, examID)
	return all, int64(len(all)), nil
}

func (r *fakeLeaderboardRepo) GetAllByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.LeaderboardEntry, error) {
	var out []*models.LeaderboardEntry
	for _, e := range r.entries {
		if e.ExamID == examID {
			out = append(out, e)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Beats(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (r *fakeLeaderboardRepo) UpdateRank(ctx context.Context, tx *gorm.DB, id uint, rank int) error {
	for _, e := range r.entries {
		if e.ID == id {
			e.Rank = rank
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeLeaderboardRepo) GlobalRanking(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*models.GlobalRankEntry, int64, error) {
	return nil, 0, nil
}

type fakePurchaseRepo struct {
	valid map[string]bool
}

func (r *fakePurchaseRepo) HasValidPurchase(ctx context.Context, tx *gorm.DB, userID string, examID uint) (bool, error) {
	if r.valid == nil {
		return false, nil
	}
	return r.valid[userID], nil
}
