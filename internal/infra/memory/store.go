package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mcq-exam-service/internal/domain"
)

type answerKey struct {
	participantID int64
	questionID    int64
}

// Store is an in-memory implementation of app.Store. A single mutex makes every
// method atomic, which gives multi-row writes all-or-nothing semantics.
type Store struct {
	mu sync.RWMutex

	exams        map[int64]domain.Exam
	categories   map[int64]domain.Category
	questions    map[int64]domain.Question
	options      map[int64]domain.Option
	rules        map[int64][]domain.ExamCategoryRule
	participants map[int64]domain.Participant
	papers       map[int64][]domain.ParticipantQuestion
	answers      map[answerKey]domain.Answer

	nextParticipantID int64
}

// NewStore builds a store preloaded with catalog.
func NewStore(catalog domain.Catalog) *Store {
	s := &Store{
		exams:        make(map[int64]domain.Exam),
		categories:   make(map[int64]domain.Category),
		questions:    make(map[int64]domain.Question),
		options:      make(map[int64]domain.Option),
		rules:        make(map[int64][]domain.ExamCategoryRule),
		participants: make(map[int64]domain.Participant),
		papers:       make(map[int64][]domain.ParticipantQuestion),
		answers:      make(map[answerKey]domain.Answer),
	}
	for _, c := range catalog.Categories {
		s.categories[c.ID] = c
	}
	for _, q := range catalog.Questions {
		opts := append([]domain.Option(nil), q.Options...)
		for i := range opts {
			opts[i].QuestionID = q.ID
			s.options[opts[i].ID] = opts[i]
		}
		sort.Slice(opts, func(i, j int) bool { return opts[i].ID < opts[j].ID })
		q.Options = opts
		s.questions[q.ID] = q
	}
	for _, e := range catalog.Exams {
		s.exams[e.ID] = e
	}
	for _, r := range catalog.Rules {
		s.rules[r.ExamID] = append(s.rules[r.ExamID], r)
	}
	return s
}

func (s *Store) GetExam(_ context.Context, examID int64) (domain.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exam, ok := s.exams[examID]
	if !ok {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	return exam, nil
}

func (s *Store) ActiveExam(_ context.Context) (domain.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, exam := range s.exams {
		if exam.IsActive {
			return exam, nil
		}
	}
	return domain.Exam{}, domain.ErrNoActiveExam
}

func (s *Store) ActivateExam(_ context.Context, examID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exams[examID]; !ok {
		return domain.ErrExamNotFound
	}
	for id, exam := range s.exams {
		exam.IsActive = id == examID
		s.exams[id] = exam
	}
	return nil
}

func (s *Store) CategoryRules(_ context.Context, examID int64) ([]domain.ExamCategoryRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ExamCategoryRule(nil), s.rules[examID]...), nil
}

func (s *Store) Category(_ context.Context, categoryID int64) (domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categories[categoryID], nil
}

// ActiveQuestionIDs implements app.QuestionPool directly over the catalog.
func (s *Store) ActiveQuestionIDs(_ context.Context, categoryID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for id, q := range s.questions {
		if q.CategoryID == categoryID && q.IsActive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// SetQuestionActive toggles a question in the pool.
func (s *Store) SetQuestionActive(questionID int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.questions[questionID]; ok {
		q.IsActive = active
		s.questions[questionID] = q
	}
}

func (s *Store) ParticipantByToken(_ context.Context, token string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.participants {
		if p.AttemptToken == token {
			return p, nil
		}
	}
	return domain.Participant{}, domain.ErrParticipantNotFound
}

func (s *Store) ParticipantByIdentity(_ context.Context, examID int64, phone, hscRoll string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.identityLocked(examID, phone, hscRoll); ok {
		return p, nil
	}
	return domain.Participant{}, domain.ErrParticipantNotFound
}

func (s *Store) identityLocked(examID int64, phone, hscRoll string) (domain.Participant, bool) {
	var found *domain.Participant
	for _, p := range s.participants {
		if p.ExamID != examID {
			continue
		}
		if p.Phone == phone || (hscRoll != "" && p.HSCRoll == hscRoll) {
			if found == nil || p.ID < found.ID {
				p := p
				found = &p
			}
		}
	}
	if found == nil {
		return domain.Participant{}, false
	}
	return *found, true
}

func (s *Store) CreateParticipant(_ context.Context, p *domain.Participant, paper []domain.ParticipantQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.identityLocked(p.ExamID, p.Phone, p.HSCRoll); dup {
		return domain.ErrDuplicateIdentity
	}
	seen := make(map[int64]struct{}, len(paper))
	for _, slot := range paper {
		if _, dup := seen[slot.QuestionID]; dup {
			return fmt.Errorf("question %d assigned twice", slot.QuestionID)
		}
		seen[slot.QuestionID] = struct{}{}
		if !s.questions[slot.QuestionID].IsActive {
			return fmt.Errorf("question %d: %w", slot.QuestionID, domain.ErrInactiveQuestion)
		}
	}

	s.nextParticipantID++
	p.ID = s.nextParticipantID
	rows := make([]domain.ParticipantQuestion, len(paper))
	for i, slot := range paper {
		slot.ParticipantID = p.ID
		rows[i] = slot
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].OrderNo < rows[j].OrderNo })
	s.participants[p.ID] = *p
	s.papers[p.ID] = rows
	return nil
}

func (s *Store) CompleteParticipant(_ context.Context, participantID int64, score int, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if p.IsCompleted() {
		return domain.ErrExamCompleted
	}
	p.CompletedAt = &completedAt
	p.Score = &score
	s.participants[participantID] = p
	return nil
}

func (s *Store) Paper(_ context.Context, participantID int64) ([]domain.ParticipantQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ParticipantQuestion(nil), s.papers[participantID]...), nil
}

func (s *Store) Answers(_ context.Context, participantID int64) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.answersLocked(participantID), nil
}

func (s *Store) answersLocked(participantID int64) []domain.Answer {
	var out []domain.Answer
	for key, a := range s.answers {
		if key.participantID == participantID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}

func (s *Store) Question(_ context.Context, questionID int64) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[questionID]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotInPaper
	}
	q.Options = append([]domain.Option(nil), q.Options...)
	return q, nil
}

func (s *Store) Option(_ context.Context, optionID int64) (domain.Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	opt, ok := s.options[optionID]
	if !ok {
		return domain.Option{}, domain.ErrOptionNotFound
	}
	return opt, nil
}

func (s *Store) UpsertAnswer(_ context.Context, answer domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[answer.ParticipantID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if p.IsCompleted() {
		return domain.ErrExamCompleted
	}
	s.answers[answerKey{answer.ParticipantID, answer.QuestionID}] = answer
	return nil
}

func (s *Store) ScoringRecord(_ context.Context, participantID int64) (domain.ScoringRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantID]
	if !ok {
		return domain.ScoringRecord{}, domain.ErrParticipantNotFound
	}
	return s.recordLocked(p), nil
}

func (s *Store) ScoringRecords(_ context.Context, examID int64) ([]domain.ScoringRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ScoringRecord
	for _, p := range s.completedLocked(examID) {
		out = append(out, s.recordLocked(p))
	}
	return out, nil
}

func (s *Store) recordLocked(p domain.Participant) domain.ScoringRecord {
	slots := s.papers[p.ID]
	paper := make([]domain.PaperQuestion, 0, len(slots))
	for _, slot := range slots {
		q := s.questions[slot.QuestionID]
		paper = append(paper, domain.PaperQuestion{
			QuestionID:   slot.QuestionID,
			CategorySlug: s.categories[q.CategoryID].Slug,
		})
	}
	return domain.ScoringRecord{Participant: p, Paper: paper, Answers: s.answersLocked(p.ID)}
}

func (s *Store) SaveRanks(_ context.Context, examID int64, ranks []domain.RankAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ra := range ranks {
		p, ok := s.participants[ra.ParticipantID]
		if !ok || p.ExamID != examID {
			return domain.ErrParticipantNotFound
		}
	}
	for _, ra := range ranks {
		p := s.participants[ra.ParticipantID]
		rank, merit, score := ra.Rank, ra.MeritPosition, ra.Score
		p.Rank, p.MeritPosition, p.Score = &rank, &merit, &score
		s.participants[ra.ParticipantID] = p
	}
	return nil
}

func (s *Store) CompletedParticipants(_ context.Context, examID int64) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completedLocked(examID), nil
}

func (s *Store) completedLocked(examID int64) []domain.Participant {
	var out []domain.Participant
	for _, p := range s.participants {
		if p.ExamID == examID && p.IsCompleted() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
