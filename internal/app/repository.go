package app

import (
	"context"
	"time"

	"mcq-exam-service/internal/domain"
)

// Store abstracts the relational state the exam core reads and writes (in-memory, Postgres).
// Multi-row writes must be atomic: either every row lands or none does.
type Store interface {
	GetExam(ctx context.Context, examID int64) (domain.Exam, error)
	ActiveExam(ctx context.Context) (domain.Exam, error)
	// ActivateExam makes examID the only active exam in a single transaction.
	ActivateExam(ctx context.Context, examID int64) error
	CategoryRules(ctx context.Context, examID int64) ([]domain.ExamCategoryRule, error)
	Category(ctx context.Context, categoryID int64) (domain.Category, error)

	ParticipantByToken(ctx context.Context, token string) (domain.Participant, error)
	// ParticipantByIdentity matches on phone, or on hsc_roll when it is non-empty.
	ParticipantByIdentity(ctx context.Context, examID int64, phone, hscRoll string) (domain.Participant, error)
	// CreateParticipant inserts the participant and its paper together and sets p.ID.
	// It fails with ErrInactiveQuestion if any paper question is no longer active.
	CreateParticipant(ctx context.Context, p *domain.Participant, paper []domain.ParticipantQuestion) error
	// CompleteParticipant sets completed_at and score unless the attempt is already completed.
	CompleteParticipant(ctx context.Context, participantID int64, score int, completedAt time.Time) error

	Paper(ctx context.Context, participantID int64) ([]domain.ParticipantQuestion, error)
	Answers(ctx context.Context, participantID int64) ([]domain.Answer, error)
	Question(ctx context.Context, questionID int64) (domain.Question, error)
	Option(ctx context.Context, optionID int64) (domain.Option, error)
	// UpsertAnswer fails with ErrExamCompleted once the participant is completed.
	UpsertAnswer(ctx context.Context, answer domain.Answer) error

	ScoringRecord(ctx context.Context, participantID int64) (domain.ScoringRecord, error)
	// ScoringRecords returns records for completed participants of the exam.
	ScoringRecords(ctx context.Context, examID int64) ([]domain.ScoringRecord, error)
	// SaveRanks writes rank, merit position and score for every assignment in one transaction.
	SaveRanks(ctx context.Context, examID int64, ranks []domain.RankAssignment) error
	CompletedParticipants(ctx context.Context, examID int64) ([]domain.Participant, error)
}

// QuestionPool lists active question IDs per category (directly from a store or through a cache).
type QuestionPool interface {
	ActiveQuestionIDs(ctx context.Context, categoryID int64) ([]int64, error)
}

// PoolInvalidator is implemented by caching pools that can drop a category's entry.
type PoolInvalidator interface {
	Invalidate(ctx context.Context, categoryID int64) error
}

// Locker serializes work on a key across goroutines or processes.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LiveRanker computes standings inline in a sorted query instead of in memory.
type LiveRanker interface {
	LiveStandings(ctx context.Context, examID int64, tieBreak domain.TieBreak) ([]domain.Standing, error)
}
