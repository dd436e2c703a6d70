package services

import (
	"context"
	"testing"
	"time"

	"github.com/prepstack/exam-service/internal/events"
	"github.com/prepstack/exam-service/internal/models"
)

func newScoringFixture(t *testing.T) (*fakeRepo, *events.MockEventPublisher, ScoringService) {
	t.Helper()
	repo := newFakeRepo()
	publisher := events.NewMockEventPublisher(discardLogger())
	svc := NewScoringService(repo, publisher, discardLogger())
	return repo, publisher, svc
}

func completedAttempt(t *testing.T, repo *fakeRepo, userID string, answers map[string]models.AnswerEntry, durationSec int) *models.ExamAttempt {
	t.Helper()
	started := time.Now().UTC().Add(-time.Hour)
	submitted := started.Add(time.Duration(durationSec) * time.Second)
	attempt := &models.ExamAttempt{
		ExamID:        1,
		UserID:        userID,
		Status:        models.AttemptCompleted,
		StartedAt:     started,
		ExpiresAt:     started.Add(30 * time.Minute),
		SubmittedAt:   &submitted,
		QuestionOrder: mustJSON(t, []uint{10, 11, 12}),
		Answers:       mustJSON(t, answers),
	}
	_ = repo.attempt.Create(context.Background(), nil, attempt)
	return attempt
}

func TestScoreAttempt(t *testing.T) {
	repo, publisher, svc := newScoringFixture(t)
	seedExam(repo)

	attempt := completedAttempt(t, repo, "user-1", map[string]models.AnswerEntry{
		"10": {SelectedOption: strPtr("A")},
		"11": {SelectedOption: strPtr("C")},
	}, 600)

	if err := svc.ScoreAttempt(context.Background(), attempt.ID); err != nil {
		t.Fatalf("ScoreAttempt: %v", err)
	}

	if attempt.Score == nil || *attempt.Score != 1.5 {
		t.Fatalf("Score = %v, want 1.5", attempt.Score)
	}
	if *attempt.Percentage != 25 {
		t.Errorf("Percentage = %v, want 25", *attempt.Percentage)
	}
	if *attempt.TimeSpentSec != 600 {
		t.Errorf("TimeSpentSec = %v, want 600", *attempt.TimeSpentSec)
	}
	if attempt.Rank == nil || *attempt.Rank != 1 {
		t.Errorf("Rank = %v, want 1", attempt.Rank)
	}
	if attempt.Percentile == nil || *attempt.Percentile != 100 {
		t.Errorf("Percentile = %v, want 100 for the only scored attempt", attempt.Percentile)
	}

	entries := repo.leaderboard.entries
	if len(entries) != 1 {
		t.Fatalf("leaderboard entries = %d, want 1", len(entries))
	}
	if entries[0].Score != 1.5 || entries[0].Rank != 1 || entries[0].AttemptID != attempt.ID {
		t.Errorf("entry = %+v, want score 1.5 rank 1 for attempt %d", entries[0], attempt.ID)
	}

	topics := publisher.GetPublishedTopics()
	if len(topics) != 1 || topics[0] != events.TopicAttemptScored {
		t.Fatalf("topics = %v, want one scored event", topics)
	}
	var payload events.AttemptScoredEvent
	if err := publisher.GetPublishedEvents()[0].DecodeData(&payload); err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	if payload.Score != 1.5 || payload.Rank != 1 {
		t.Errorf("payload = %+v, want score 1.5 rank 1", payload)
	}
}

func TestScoreAttempt_Idempotent(t *testing.T) {
	repo, publisher, svc := newScoringFixture(t)
	seedExam(repo)
	attempt := completedAttempt(t, repo, "user-1", nil, 300)

	if err := svc.ScoreAttempt(context.Background(), attempt.ID); err != nil {
		t.Fatalf("first ScoreAttempt: %v", err)
	}
	if err := svc.ScoreAttempt(context.Background(), attempt.ID); err != nil {
		t.Fatalf("second ScoreAttempt: %v", err)
	}

	if len(repo.attempt.resultUpgrades) != 1 {
		t.Errorf("result written %d times, want once", len(repo.attempt.resultUpgrades))
	}
	if n := len(publisher.GetPublishedEvents()); n != 1 {
		t.Errorf("published %d events, want 1", n)
	}
}

func TestScoreAttempt_RanksAcrossUsers(t *testing.T) {
	repo, _, svc := newScoringFixture(t)
	seedExam(repo)

	// user-1 scores 4 in 600s, user-2 scores 1.5 in 300s.
	a1 := completedAttempt(t, repo, "user-1", map[string]models.AnswerEntry{
		"10": {SelectedOption: strPtr("A")},
		"11": {SelectedOption: strPtr("B")},
	}, 600)
	a2 := completedAttempt(t, repo, "user-2", map[string]models.AnswerEntry{
		"10": {SelectedOption: strPtr("A")},
		"11": {SelectedOption: strPtr("C")},
	}, 300)

	if err := svc.ScoreAttempt(context.Background(), a1.ID); err != nil {
		t.Fatalf("ScoreAttempt a1: %v", err)
	}
	if err := svc.ScoreAttempt(context.Background(), a2.ID); err != nil {
		t.Fatalf("ScoreAttempt a2: %v", err)
	}

	if *a1.Rank != 1 {
		t.Errorf("a1 rank = %d, want 1", *a1.Rank)
	}
	if *a2.Rank != 2 {
		t.Errorf("a2 rank = %d, want 2", *a2.Rank)
	}
	if *a2.Percentile != 0 {
		t.Errorf("a2 percentile = %v, want 0 of two scored attempts", *a2.Percentile)
	}

	entries, _ := repo.leaderboard.GetAllByExam(context.Background(), nil, 1)
	if len(entries) != 2 {
		t.Fatalf("leaderboard entries = %d, want 2", len(entries))
	}
	if entries[0].UserID != "user-1" || entries[0].Rank != 1 {
		t.Errorf("top entry = %+v, want user-1 at rank 1", entries[0])
	}
	if entries[1].UserID != "user-2" || entries[1].Rank != 2 {
		t.Errorf("second entry = %+v, want user-2 at rank 2", entries[1])
	}
}

func TestScoreAttempt_LeaderboardKeepsBest(t *testing.T) {
	repo, _, svc := newScoringFixture(t)
	seedExam(repo)

	best := completedAttempt(t, repo, "user-1", map[string]models.AnswerEntry{
		"10": {SelectedOption: strPtr("A")},
		"11": {SelectedOption: strPtr("B")},
	}, 600)
	if err := svc.ScoreAttempt(context.Background(), best.ID); err != nil {
		t.Fatalf("ScoreAttempt best: %v", err)
	}

	// A later, worse retake must not displace the best entry.
	worse := completedAttempt(t, repo, "user-1", map[string]models.AnswerEntry{
		"10": {SelectedOption: strPtr("A")},
	}, 300)
	if err := svc.ScoreAttempt(context.Background(), worse.ID); err != nil {
		t.Fatalf("ScoreAttempt worse: %v", err)
	}

	entries := repo.leaderboard.entries
	if len(entries) != 1 {
		t.Fatalf("leaderboard entries = %d, want 1", len(entries))
	}
	if entries[0].AttemptID != best.ID || entries[0].Score != 4 {
		t.Errorf("entry = %+v, want best attempt %d with score 4", entries[0], best.ID)
	}
}

func TestScoreAttempt_LeaderboardTieKeepsIncumbent(t *testing.T) {
	repo, _, svc := newScoringFixture(t)
	seedExam(repo)

	incumbent := completedAttempt(t, repo, "user-1", map[string]models.AnswerEntry{
		"10": {SelectedOption: strPtr("A")},
		"11": {SelectedOption: strPtr("B")},
	}, 600)
	if err := svc.ScoreAttempt(context.Background(), incumbent.ID); err != nil {
		t.Fatalf("ScoreAttempt incumbent: %v", err)
	}

	// An equal-score retake stays off the board even when it was faster.
	retake := completedAttempt(t, repo, "user-1", map[string]models.AnswerEntry{
		"10": {SelectedOption: strPtr("A")},
		"11": {SelectedOption: strPtr("B")},
	}, 300)
	if err := svc.ScoreAttempt(context.Background(), retake.ID); err != nil {
		t.Fatalf("ScoreAttempt retake: %v", err)
	}

	entries := repo.leaderboard.entries
	if len(entries) != 1 {
		t.Fatalf("leaderboard entries = %d, want 1", len(entries))
	}
	if entries[0].AttemptID != incumbent.ID {
		t.Errorf("entry attempt = %d, want incumbent %d kept on an equal score", entries[0].AttemptID, incumbent.ID)
	}
	if entries[0].TimeSpentSec != 600 {
		t.Errorf("entry time = %d, want the incumbent's 600", entries[0].TimeSpentSec)
	}
}

func TestReplayUnscored(t *testing.T) {
	repo, publisher, svc := newScoringFixture(t)
	seedExam(repo)

	stale := completedAttempt(t, repo, "user-1", nil, 300)

	scored, err := svc.ReplayUnscored(context.Background(), time.Minute, 10)
	if err != nil {
		t.Fatalf("ReplayUnscored: %v", err)
	}
	if scored != 1 {
		t.Errorf("scored = %d, want 1", scored)
	}
	if !stale.IsScored() {
		t.Error("stale attempt should be scored after replay")
	}
	if n := len(publisher.GetPublishedEvents()); n != 1 {
		t.Errorf("published %d events, want 1 scored event", n)
	}

	// Nothing left to replay.
	scored, err = svc.ReplayUnscored(context.Background(), time.Minute, 10)
	if err != nil || scored != 0 {
		t.Errorf("second replay = (%d, %v), want (0, nil)", scored, err)
	}
}
