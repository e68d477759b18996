package app

import (
	"math"
	"time"

	"mcq-exam-service/internal/domain"
)

// UnknownDuration sorts a participant without timestamps after everyone else.
const UnknownDuration int64 = math.MaxInt64

// Evaluate derives the score and tie-break signals of one participant.
// Only answers to questions on the participant's paper count. It never mutates the record.
func Evaluate(rec domain.ScoringRecord, tieBreak domain.TieBreak) domain.Evaluation {
	tieBreak = tieBreak.OrDefault()

	slugs := make(map[int64]string, len(rec.Paper))
	for _, q := range rec.Paper {
		slugs[q.QuestionID] = q.CategorySlug
	}

	tracked := make(map[string]bool, len(tieBreak))
	categoryScores := make(map[string]int, len(tieBreak))
	for _, slug := range tieBreak {
		tracked[slug] = true
		categoryScores[slug] = 0
	}

	total := 0
	counted := make(map[int64]struct{}, len(rec.Answers))
	for _, answer := range rec.Answers {
		if !answer.IsCorrect {
			continue
		}
		slug, onPaper := slugs[answer.QuestionID]
		if !onPaper {
			continue
		}
		if _, dup := counted[answer.QuestionID]; dup {
			continue
		}
		counted[answer.QuestionID] = struct{}{}
		total++
		if tracked[slug] {
			categoryScores[slug]++
		}
	}

	return domain.Evaluation{
		TotalScore:        total,
		CategoryScores:    categoryScores,
		CompletionSeconds: CompletionSeconds(rec.Participant.StartedAt, rec.Participant.CompletedAt),
	}
}

// CompletionSeconds is the whole-second distance between start and completion,
// or UnknownDuration when either is missing.
func CompletionSeconds(startedAt, completedAt *time.Time) int64 {
	if startedAt == nil || completedAt == nil {
		return UnknownDuration
	}
	d := completedAt.Sub(*startedAt)
	if d < 0 {
		d = -d
	}
	return int64(d / time.Second)
}
