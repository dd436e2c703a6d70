package services

import (
	"github.com/prepstack/exam-service/internal/models"
)

// scoreOutcome is the pure scoring result before timing and persistence.
type scoreOutcome struct {
	Score       float64
	Correct     int
	Wrong       int
	Unattempted int
	ByTopic     map[string]models.TopicStats
}

// computeScore walks the full exam question list against the answer map.
// A question with no entry, or an entry with a cleared selection, counts
// as unattempted: it earns nothing and costs nothing. A wrong selection
// subtracts the question's negative marks, so the total can go below
// zero.
func computeScore(exam *models.Exam, answers map[string]models.AnswerEntry) scoreOutcome {
	outcome := scoreOutcome{
		ByTopic: make(map[string]models.TopicStats),
	}

	for _, q := range exam.Questions {
		stats := outcome.ByTopic[q.Topic]
		stats.Total++

		entry, ok := answers[models.AnswerKey(q.ID)]
		switch {
		case !ok || entry.SelectedOption == nil:
			outcome.Unattempted++
		case *entry.SelectedOption == q.CorrectOption:
			outcome.Score += q.Marks
			outcome.Correct++
			stats.Correct++
		default:
			outcome.Score -= q.NegativeMarks
			outcome.Wrong++
			stats.Wrong++
		}

		outcome.ByTopic[q.Topic] = stats
	}
	return outcome
}

// assignCompetitionRanks returns 1-based ranks for entries already sorted
// by the canonical ordering. Tied entries share a rank and the next
// distinct entry skips past them ("1224" style).
func assignCompetitionRanks(entries []*models.LeaderboardEntry) []int {
	ranks := make([]int, len(entries))
	for i := range entries {
		if i > 0 && !entries[i-1].Beats(entries[i]) && !entries[i].Beats(entries[i-1]) {
			ranks[i] = ranks[i-1]
			continue
		}
		ranks[i] = i + 1
	}
	return ranks
}
