package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrExamNotFound is returned for an unknown exam ID.
	ErrExamNotFound = errors.New("exam not found")
	// ErrNoActiveExam is returned when no exam is currently active.
	ErrNoActiveExam = errors.New("no active exam")
	// ErrParticipantNotFound is returned for an unknown attempt token.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrQuestionNotInPaper is returned when a question is not part of the participant's paper.
	ErrQuestionNotInPaper = errors.New("question not found in paper")
	// ErrOptionNotFound is returned for an unknown option ID.
	ErrOptionNotFound = errors.New("option not found")
	// ErrOptionMismatch is returned when an option does not belong to the answered question.
	ErrOptionMismatch = errors.New("option does not belong to question")
	// ErrExamCompleted is returned when a finished attempt is used again.
	ErrExamCompleted = errors.New("exam already completed")
	// ErrExamNotActive is returned when starting an exam that is not active.
	ErrExamNotActive = errors.New("exam is not active")
	// ErrNoMoreQuestions is returned when every paper question has an answer.
	ErrNoMoreQuestions = errors.New("no more questions")
	// ErrDuplicateIdentity is returned by stores on a (exam, phone) or (exam, hsc_roll) collision.
	ErrDuplicateIdentity = errors.New("identity already registered for exam")
	// ErrLockTimeout is returned when a recalculation lock cannot be acquired.
	ErrLockTimeout = errors.New("recalculation lock not acquired")
	// ErrInactiveQuestion is returned by stores when a drawn question was deactivated before the paper was written.
	ErrInactiveQuestion = errors.New("paper contains an inactive question")
)

// Class buckets errors by how callers should surface them.
type Class int

const (
	ClassInternal Class = iota
	ClassValidation
	ClassForbidden
	ClassConflict
	ClassNotFound
)

// ValidationError carries field-level detail for rejected input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AlreadyParticipatedError is returned when the identity already has an attempt for the exam.
type AlreadyParticipatedError struct {
	Token     string
	Completed bool
}

func (e *AlreadyParticipatedError) Error() string {
	return "you have already participated in this exam"
}

// ScheduleError rejects a start outside the exam window.
type ScheduleError struct {
	NotStarted bool
	At         time.Time
}

func (e *ScheduleError) Error() string {
	if e.NotStarted {
		return "exam has not started yet"
	}
	return "exam has ended"
}

// NotPublishedError gates the leaderboard until the publish time.
type NotPublishedError struct {
	PublishAt time.Time
}

func (e *NotPublishedError) Error() string {
	return fmt.Sprintf("results are not published yet (publish at %s)", e.PublishAt.Format(time.RFC3339))
}

// ClassOf maps an error onto the taxonomy used by the transport layer.
func ClassOf(err error) Class {
	var (
		validation *ValidationError
		already    *AlreadyParticipatedError
		schedule   *ScheduleError
		gate       *NotPublishedError
	)
	switch {
	case err == nil:
		return ClassInternal
	case errors.As(err, &validation), errors.Is(err, ErrOptionMismatch), errors.Is(err, ErrOptionNotFound):
		return ClassValidation
	case errors.As(err, &already), errors.Is(err, ErrDuplicateIdentity), errors.Is(err, ErrLockTimeout):
		return ClassConflict
	case errors.As(err, &schedule), errors.As(err, &gate),
		errors.Is(err, ErrExamCompleted), errors.Is(err, ErrExamNotActive):
		return ClassForbidden
	case errors.Is(err, ErrExamNotFound), errors.Is(err, ErrParticipantNotFound),
		errors.Is(err, ErrQuestionNotInPaper), errors.Is(err, ErrNoMoreQuestions),
		errors.Is(err, ErrNoActiveExam):
		return ClassNotFound
	}
	return ClassInternal
}
