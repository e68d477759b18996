package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"mcq-exam-service/internal/domain"
)

// ExamService contains the participant-facing and admin exam use cases.
type ExamService struct {
	store     Store
	pool      QuestionPool
	assembler *Assembler
	engine    *RankingEngine
	reader    *LeaderboardReader
	feed      *LeaderboardFeed
	tieBreak  domain.TieBreak
	now       func() time.Time
	newToken  func() (string, error)
}

// maxDrawAttempts bounds redraws when a paper hits a question deactivated behind a cached pool.
const maxDrawAttempts = 3

// Option customizes an ExamService.
type Option func(*serviceOptions)

type serviceOptions struct {
	tieBreak domain.TieBreak
	fallback FallbackMode
	live     LiveRanker
	source   rand.Source
	now      func() time.Time
	newToken func() (string, error)
}

// WithTieBreak sets the shared category priority list.
func WithTieBreak(tb domain.TieBreak) Option {
	return func(o *serviceOptions) { o.tieBreak = tb }
}

// WithFallback sets how the leaderboard orders results before ranks are persisted.
func WithFallback(mode FallbackMode) Option {
	return func(o *serviceOptions) { o.fallback = mode }
}

// WithLiveRanker computes full-fallback standings with an inline sorted query.
func WithLiveRanker(live LiveRanker) Option {
	return func(o *serviceOptions) { o.live = live }
}

// WithRandSource fixes the paper randomization source (tests).
func WithRandSource(src rand.Source) Option {
	return func(o *serviceOptions) { o.source = src }
}

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

// WithTokenSource overrides attempt token generation (tests).
func WithTokenSource(fn func() (string, error)) Option {
	return func(o *serviceOptions) { o.newToken = fn }
}

func NewExamService(store Store, pool QuestionPool, locker Locker, opts ...Option) *ExamService {
	o := serviceOptions{
		fallback: FallbackScoreTime,
		now:      time.Now,
		newToken: NewAttemptToken,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.tieBreak = o.tieBreak.OrDefault()

	assembler := NewAssembler(pool)
	if o.source != nil {
		assembler = NewAssemblerWithSource(pool, o.source)
	}
	engine := NewRankingEngine(store, locker, o.tieBreak)
	reader := NewLeaderboardReader(store, engine, o.live, o.fallback, o.tieBreak)
	reader.now = o.now

	return &ExamService{
		store:     store,
		pool:      pool,
		assembler: assembler,
		engine:    engine,
		reader:    reader,
		feed:      NewLeaderboardFeed(),
		tieBreak:  o.tieBreak,
		now:       o.now,
		newToken:  o.newToken,
	}
}

// StartRequest is the registration submitted when beginning an attempt.
type StartRequest struct {
	ExamID    int64
	Identity  domain.Identity
	IPAddress string
}

// StartResult is returned for a new attempt.
type StartResult struct {
	Token          string
	TotalQuestions int
	// Shortfalls is the under-quota signal; participants never see it.
	Shortfalls []domain.PoolShortfall
}

// Start registers a participant and assigns a freshly drawn paper in one atomic write.
func (s *ExamService) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	req.Identity = normalizeIdentity(req.Identity)
	if err := validateStart(req); err != nil {
		return StartResult{}, err
	}

	exam, err := s.store.GetExam(ctx, req.ExamID)
	if err != nil {
		return StartResult{}, err
	}
	now := s.now()
	if !exam.IsActive {
		return StartResult{}, domain.ErrExamNotActive
	}
	if exam.StartTime != nil && exam.StartTime.After(now) {
		return StartResult{}, &domain.ScheduleError{NotStarted: true, At: *exam.StartTime}
	}
	if exam.EndTime != nil && exam.EndTime.Before(now) {
		return StartResult{}, &domain.ScheduleError{At: *exam.EndTime}
	}

	if err := s.rejectExisting(ctx, exam.ID, req.Identity); err != nil {
		return StartResult{}, err
	}

	rules, err := s.store.CategoryRules(ctx, exam.ID)
	if err != nil {
		return StartResult{}, fmt.Errorf("load category rules: %w", err)
	}
	token, err := s.newToken()
	if err != nil {
		return StartResult{}, fmt.Errorf("generate attempt token: %w", err)
	}
	participant := domain.Participant{
		ExamID:       exam.ID,
		Identity:     req.Identity,
		AttemptToken: token,
		StartedAt:    &now,
		IPAddress:    req.IPAddress,
	}

	var paper Paper
	for attempt := 1; ; attempt++ {
		paper, err = s.assembler.Assemble(ctx, rules)
		if err != nil {
			return StartResult{}, err
		}
		err = s.store.CreateParticipant(ctx, &participant, paper.Slots())
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrInactiveQuestion) && attempt < maxDrawAttempts {
			// A cached pool still listed a deactivated question.
			s.invalidatePools(ctx, rules)
			continue
		}
		if errors.Is(err, domain.ErrDuplicateIdentity) {
			// Lost a race against a concurrent start for the same identity.
			if existing := s.rejectExisting(ctx, exam.ID, req.Identity); existing != nil {
				return StartResult{}, existing
			}
		}
		return StartResult{}, err
	}
	for _, sf := range paper.Shortfalls {
		log.Printf("exam %d: category %d pool short (required %d, available %d)", exam.ID, sf.CategoryID, sf.Required, sf.Available)
	}

	return StartResult{
		Token:          token,
		TotalQuestions: len(paper.QuestionIDs),
		Shortfalls:     paper.Shortfalls,
	}, nil
}

func (s *ExamService) invalidatePools(ctx context.Context, rules []domain.ExamCategoryRule) {
	inv, ok := s.pool.(PoolInvalidator)
	if !ok {
		return
	}
	for _, r := range rules {
		if err := inv.Invalidate(ctx, r.CategoryID); err != nil {
			log.Printf("invalidate pool for category %d: %v", r.CategoryID, err)
		}
	}
}

func (s *ExamService) rejectExisting(ctx context.Context, examID int64, id domain.Identity) error {
	existing, err := s.store.ParticipantByIdentity(ctx, examID, id.Phone, id.HSCRoll)
	switch {
	case errors.Is(err, domain.ErrParticipantNotFound):
		return nil
	case err != nil:
		return err
	}
	return &domain.AlreadyParticipatedError{Token: existing.AttemptToken, Completed: existing.IsCompleted()}
}

// OptionView is an option with its correctness flag stripped.
type OptionView struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// QuestionView is the next question shown to a participant.
type QuestionView struct {
	ID       int64        `json:"id"`
	Text     string       `json:"text"`
	Category string       `json:"category"`
	Options  []OptionView `json:"options"`
}

// Progress tracks how far a participant is through the paper.
type Progress struct {
	Current  int `json:"current"`
	Total    int `json:"total"`
	Answered int `json:"answered"`
}

// NextQuestion returns the first unanswered question of the paper in presentation order.
func (s *ExamService) NextQuestion(ctx context.Context, token string) (QuestionView, Progress, error) {
	participant, err := s.openAttempt(ctx, token)
	if err != nil {
		return QuestionView{}, Progress{}, err
	}

	paper, err := s.store.Paper(ctx, participant.ID)
	if err != nil {
		return QuestionView{}, Progress{}, err
	}
	answers, err := s.store.Answers(ctx, participant.ID)
	if err != nil {
		return QuestionView{}, Progress{}, err
	}
	answered := make(map[int64]struct{}, len(answers))
	for _, a := range answers {
		answered[a.QuestionID] = struct{}{}
	}

	for _, slot := range paper {
		if _, done := answered[slot.QuestionID]; done {
			continue
		}
		question, err := s.store.Question(ctx, slot.QuestionID)
		if err != nil {
			return QuestionView{}, Progress{}, err
		}
		category, err := s.store.Category(ctx, question.CategoryID)
		if err != nil {
			return QuestionView{}, Progress{}, err
		}
		view := QuestionView{
			ID:       question.ID,
			Text:     question.Text,
			Category: category.Name,
			Options:  make([]OptionView, 0, len(question.Options)),
		}
		for _, opt := range question.Options {
			view.Options = append(view.Options, OptionView{ID: opt.ID, Text: opt.Text})
		}
		return view, Progress{Current: slot.OrderNo, Total: len(paper), Answered: len(answers)}, nil
	}
	return QuestionView{}, Progress{}, domain.ErrNoMoreQuestions
}

// SubmitAnswer records or replaces the participant's answer to a paper question.
// Correctness is copied from the chosen option at submit time.
func (s *ExamService) SubmitAnswer(ctx context.Context, token string, questionID, optionID int64) error {
	if err := validateAnswer(questionID, optionID); err != nil {
		return err
	}
	participant, err := s.openAttempt(ctx, token)
	if err != nil {
		return err
	}

	paper, err := s.store.Paper(ctx, participant.ID)
	if err != nil {
		return err
	}
	if !paperContains(paper, questionID) {
		return domain.ErrQuestionNotInPaper
	}

	option, err := s.store.Option(ctx, optionID)
	if err != nil {
		return err
	}
	if option.QuestionID != questionID {
		return domain.ErrOptionMismatch
	}

	return s.store.UpsertAnswer(ctx, domain.Answer{
		ParticipantID: participant.ID,
		QuestionID:    questionID,
		OptionID:      option.ID,
		IsCorrect:     option.IsCorrect,
	})
}

// FinishResult is returned once an attempt is closed.
type FinishResult struct {
	Score           int        `json:"score"`
	TotalQuestions  int        `json:"total_questions"`
	ResultPublishAt *time.Time `json:"result_publish_at"`
}

// Finish scores and closes an attempt. Closing is one-shot.
func (s *ExamService) Finish(ctx context.Context, token string) (FinishResult, error) {
	participant, err := s.openAttempt(ctx, token)
	if err != nil {
		return FinishResult{}, err
	}
	rec, err := s.store.ScoringRecord(ctx, participant.ID)
	if err != nil {
		return FinishResult{}, err
	}
	score := Evaluate(rec, s.tieBreak).TotalScore

	if err := s.store.CompleteParticipant(ctx, participant.ID, score, s.now()); err != nil {
		return FinishResult{}, err
	}
	exam, err := s.store.GetExam(ctx, participant.ExamID)
	if err != nil {
		return FinishResult{}, err
	}
	return FinishResult{
		Score:           score,
		TotalQuestions:  len(rec.Paper),
		ResultPublishAt: exam.ResultPublishAt,
	}, nil
}

// RuleView is one category quota as shown on the rules page.
type RuleView struct {
	CategoryID    int64  `json:"category_id"`
	CategoryName  string `json:"category_name"`
	QuestionCount int    `json:"question_count"`
}

// RulesView describes the exam a token belongs to.
type RulesView struct {
	Exam  domain.Exam `json:"exam"`
	Rules []RuleView  `json:"category_rules"`
}

// Rules returns the exam and its category quotas for an open attempt.
func (s *ExamService) Rules(ctx context.Context, token string) (RulesView, error) {
	participant, err := s.openAttempt(ctx, token)
	if err != nil {
		return RulesView{}, err
	}
	exam, err := s.store.GetExam(ctx, participant.ExamID)
	if err != nil {
		return RulesView{}, err
	}
	rules, err := s.store.CategoryRules(ctx, exam.ID)
	if err != nil {
		return RulesView{}, err
	}
	view := RulesView{Exam: exam, Rules: make([]RuleView, 0, len(rules))}
	for _, r := range rules {
		category, err := s.store.Category(ctx, r.CategoryID)
		if err != nil {
			return RulesView{}, err
		}
		view.Rules = append(view.Rules, RuleView{
			CategoryID:    r.CategoryID,
			CategoryName:  category.Name,
			QuestionCount: r.QuestionCount,
		})
	}
	return view, nil
}

// ActiveExam returns the exam currently open for attempts.
func (s *ExamService) ActiveExam(ctx context.Context) (domain.Exam, error) {
	return s.store.ActiveExam(ctx)
}

// ActivateExam makes examID the only active exam and reports categories whose pool
// cannot cover the quota. Activation is not blocked by shortfalls.
func (s *ExamService) ActivateExam(ctx context.Context, examID int64) ([]domain.PoolShortfall, error) {
	if err := s.store.ActivateExam(ctx, examID); err != nil {
		return nil, err
	}
	rules, err := s.store.CategoryRules(ctx, examID)
	if err != nil {
		return nil, err
	}
	s.invalidatePools(ctx, rules)
	shortfalls, err := s.assembler.PoolReport(ctx, rules)
	if err != nil {
		return nil, err
	}
	for _, sf := range shortfalls {
		log.Printf("exam %d activated with short pool: category %d required %d, available %d", examID, sf.CategoryID, sf.Required, sf.Available)
	}
	return shortfalls, nil
}

// Leaderboard returns the published leaderboard of an exam.
func (s *ExamService) Leaderboard(ctx context.Context, examID int64) (domain.Leaderboard, error) {
	exam, err := s.publishedExam(ctx, examID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return s.reader.Read(ctx, exam)
}

// Recalculate reranks an exam and pushes the new leaderboard to live subscribers.
func (s *ExamService) Recalculate(ctx context.Context, examID int64) (RankOutcome, error) {
	outcome, err := s.engine.Rank(ctx, examID)
	if err != nil || !outcome.Success {
		return outcome, err
	}
	if s.feed.Subscribers(examID) == 0 {
		return outcome, nil
	}
	exam, err := s.store.GetExam(ctx, examID)
	if err != nil {
		log.Printf("exam %d: refresh live leaderboard: %v", examID, err)
		return outcome, nil
	}
	lb, err := s.reader.Read(ctx, exam)
	if err != nil {
		log.Printf("exam %d: refresh live leaderboard: %v", examID, err)
		return outcome, nil
	}
	s.feed.Publish(lb)
	return outcome, nil
}

// Subscribe streams leaderboard snapshots for a published exam, starting with the current one.
// The caller must invoke the returned cancel function.
func (s *ExamService) Subscribe(ctx context.Context, examID int64) (<-chan domain.Leaderboard, func(), error) {
	exam, err := s.publishedExam(ctx, examID)
	if err != nil {
		return nil, nil, err
	}
	// Register before reading so a recalculation finishing in between is still delivered.
	sub := s.feed.Subscribe(examID)
	lb, err := s.reader.Read(ctx, exam)
	if err != nil {
		sub.Cancel()
		return nil, nil, err
	}
	sub.Offer(lb)
	return sub.C, sub.Cancel, nil
}

func (s *ExamService) publishedExam(ctx context.Context, examID int64) (domain.Exam, error) {
	exam, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return domain.Exam{}, err
	}
	if exam.ResultPublishAt != nil && exam.ResultPublishAt.After(s.now()) {
		return domain.Exam{}, &domain.NotPublishedError{PublishAt: *exam.ResultPublishAt}
	}
	return exam, nil
}

func (s *ExamService) openAttempt(ctx context.Context, token string) (domain.Participant, error) {
	if token == "" {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	participant, err := s.store.ParticipantByToken(ctx, token)
	if err != nil {
		return domain.Participant{}, err
	}
	if participant.IsCompleted() {
		return domain.Participant{}, domain.ErrExamCompleted
	}
	return participant, nil
}

func paperContains(paper []domain.ParticipantQuestion, questionID int64) bool {
	for _, slot := range paper {
		if slot.QuestionID == questionID {
			return true
		}
	}
	return false
}
