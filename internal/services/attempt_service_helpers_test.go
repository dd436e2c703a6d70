package services

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/prepstack/exam-service/internal/models"
)

func TestSanitizedQuestions(t *testing.T) {
	exam := testExam()
	for i := range exam.Questions {
		exam.Questions[i].Options = mustJSON(t, map[string]string{"A": "one", "B": "two"})
		explanation := "because"
		exam.Questions[i].Explanation = &explanation
	}

	views, err := sanitizedQuestions(exam, []uint{12, 10})
	if err != nil {
		t.Fatalf("sanitizedQuestions: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("views = %d, want 2", len(views))
	}
	// Snapshot order wins over authored order.
	if views[0].ID != 12 || views[1].ID != 10 {
		t.Errorf("order = [%d %d], want [12 10]", views[0].ID, views[1].ID)
	}
	if views[0].Position != 1 || views[1].Position != 2 {
		t.Errorf("positions = [%d %d], want [1 2]", views[0].Position, views[1].Position)
	}

	// Nothing in the serialized view may leak the answer key.
	raw, err := json.Marshal(views)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, leaked := range []string{"correct_option", "explanation", "negative_marks"} {
		if strings.Contains(string(raw), leaked) {
			t.Errorf("serialized view leaks %q: %s", leaked, raw)
		}
	}
}

func TestSanitizedQuestions_SkipsRemovedQuestions(t *testing.T) {
	views, err := sanitizedQuestions(testExam(), []uint{10, 999, 11})
	if err != nil {
		t.Fatalf("sanitizedQuestions: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("views = %d, want 2 with the removed question skipped", len(views))
	}
}

func TestQuestionOrder_SortsByPosition(t *testing.T) {
	exam := testExam()
	exam.Questions[0].Position = 3
	exam.Questions[1].Position = 1
	exam.Questions[2].Position = 2

	order := questionOrder(exam)
	want := []uint{11, 12, 10}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestBuildResultResponse(t *testing.T) {
	exam := testExam()
	exam.Title = "Algebra Mock 1"

	submitted := time.Now().UTC().Add(-time.Hour)
	scored := submitted.Add(time.Minute)
	score := 1.5
	percentage := 25.0
	correct, wrong, unattempted, timeSpent := 1, 1, 1, 600
	attempt := &models.ExamAttempt{
		ID:            7,
		ExamID:        exam.ID,
		UserID:        "user-1",
		Status:        models.AttemptCompleted,
		SubmittedAt:   &submitted,
		QuestionOrder: mustJSON(t, []uint{10, 11, 12}),
		Answers: mustJSON(t, map[string]models.AnswerEntry{
			"10": {SelectedOption: strPtr("A")},
			"11": {SelectedOption: strPtr("C")},
		}),
		Score:            &score,
		Percentage:       &percentage,
		CorrectCount:     &correct,
		WrongCount:       &wrong,
		UnattemptedCount: &unattempted,
		TimeSpentSec:     &timeSpent,
		TopicBreakdown:   mustJSON(t, map[string]models.TopicStats{"algebra": {Correct: 1, Wrong: 1, Total: 2}}),
		ScoredAt:         &scored,
	}

	resp, err := buildResultResponse(attempt, exam)
	if err != nil {
		t.Fatalf("buildResultResponse: %v", err)
	}
	if resp.Score != 1.5 || resp.Percentage != 25 || resp.TotalMarks != 6 {
		t.Errorf("resp = %+v, want score 1.5 pct 25 total 6", resp)
	}
	if len(resp.Review) != 3 {
		t.Fatalf("review = %d, want 3", len(resp.Review))
	}

	first := resp.Review[0]
	if !first.IsCorrect || first.MarksAwarded != 2 || first.CorrectOption != "A" {
		t.Errorf("review[0] = %+v, want correct answer worth 2", first)
	}
	second := resp.Review[1]
	if second.IsCorrect || second.MarksAwarded != -0.5 {
		t.Errorf("review[1] = %+v, want wrong answer at -0.5", second)
	}
	third := resp.Review[2]
	if third.SelectedOption != nil || third.MarksAwarded != 0 {
		t.Errorf("review[2] = %+v, want unattempted", third)
	}

	if resp.TopicBreakdown["algebra"].Total != 2 {
		t.Errorf("topic breakdown = %+v", resp.TopicBreakdown)
	}
}
