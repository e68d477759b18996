package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mcq-exam-service/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// activationLockKey serializes exam activation across transactions.
const activationLockKey int64 = 0x65786d61637476

// Store is a bun-backed implementation of app.Store and app.QuestionPool.
type Store struct {
	db *bun.DB
}

// Open connects to Postgres through the bun pgdriver.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetExam(ctx context.Context, examID int64) (domain.Exam, error) {
	var m examModel
	err := s.db.NewSelect().Model(&m).Where("e.id = ?", examID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	if err != nil {
		return domain.Exam{}, fmt.Errorf("get exam: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) ActiveExam(ctx context.Context) (domain.Exam, error) {
	var m examModel
	err := s.db.NewSelect().Model(&m).Where("e.is_active").Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Exam{}, domain.ErrNoActiveExam
	}
	if err != nil {
		return domain.Exam{}, fmt.Errorf("active exam: %w", err)
	}
	return m.toDomain(), nil
}

// ActivateExam deactivates every other exam and activates examID in one transaction.
func (s *Store) ActivateExam(ctx context.Context, examID int64) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(?)", activationLockKey); err != nil {
			return err
		}
		exists, err := tx.NewSelect().Model((*examModel)(nil)).Where("e.id = ?", examID).Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrExamNotFound
		}
		now := time.Now()
		if _, err := tx.NewUpdate().Model((*examModel)(nil)).
			Set("is_active = FALSE").
			Set("updated_at = ?", now).
			Where("e.is_active").
			Where("e.id <> ?", examID).
			Exec(ctx); err != nil {
			return err
		}
		_, err = tx.NewUpdate().Model((*examModel)(nil)).
			Set("is_active = TRUE").
			Set("updated_at = ?", now).
			Where("e.id = ?", examID).
			Exec(ctx)
		return err
	})
}

func (s *Store) CategoryRules(ctx context.Context, examID int64) ([]domain.ExamCategoryRule, error) {
	var rows []ruleModel
	if err := s.db.NewSelect().Model(&rows).Where("r.exam_id = ?", examID).Order("r.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("category rules: %w", err)
	}
	rules := make([]domain.ExamCategoryRule, len(rows))
	for i, r := range rows {
		rules[i] = domain.ExamCategoryRule{ExamID: r.ExamID, CategoryID: r.CategoryID, QuestionCount: r.QuestionCount}
	}
	return rules, nil
}

func (s *Store) Category(ctx context.Context, categoryID int64) (domain.Category, error) {
	var m categoryModel
	err := s.db.NewSelect().Model(&m).Where("c.id = ?", categoryID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Category{ID: categoryID}, nil
	}
	if err != nil {
		return domain.Category{}, fmt.Errorf("category: %w", err)
	}
	return domain.Category{ID: m.ID, Name: m.Name, Slug: m.Slug, IsActive: m.IsActive}, nil
}

func (s *Store) ActiveQuestionIDs(ctx context.Context, categoryID int64) ([]int64, error) {
	var ids []int64
	err := s.db.NewSelect().Model((*questionModel)(nil)).
		Column("q.id").
		Where("q.category_id = ?", categoryID).
		Where("q.is_active").
		Order("q.id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("active questions: %w", err)
	}
	return ids, nil
}

func (s *Store) ParticipantByToken(ctx context.Context, token string) (domain.Participant, error) {
	var m participantModel
	err := s.db.NewSelect().Model(&m).Where("p.attempt_token = ?", token).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("participant by token: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) ParticipantByIdentity(ctx context.Context, examID int64, phone, hscRoll string) (domain.Participant, error) {
	var m participantModel
	q := s.db.NewSelect().Model(&m).Where("p.exam_id = ?", examID)
	q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.Where("p.phone = ?", phone)
		if hscRoll != "" {
			q = q.WhereOr("p.hsc_roll = ?", hscRoll)
		}
		return q
	})
	err := q.Order("p.id ASC").Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("participant by identity: %w", err)
	}
	return m.toDomain(), nil
}

// CreateParticipant inserts the participant and its whole paper in one transaction.
func (s *Store) CreateParticipant(ctx context.Context, p *domain.Participant, paper []domain.ParticipantQuestion) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := requireActive(ctx, tx, paper); err != nil {
			return err
		}
		m := participantFromDomain(*p)
		m.ID = 0
		if _, err := tx.NewInsert().Model(&m).Returning("id").Exec(ctx); err != nil {
			if isIdentityViolation(err) {
				return domain.ErrDuplicateIdentity
			}
			return fmt.Errorf("insert participant: %w", err)
		}
		if len(paper) > 0 {
			rows := make([]paperModel, len(paper))
			for i, slot := range paper {
				rows[i] = paperModel{ParticipantID: m.ID, QuestionID: slot.QuestionID, OrderNo: slot.OrderNo}
			}
			if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
				return fmt.Errorf("insert paper: %w", err)
			}
		}
		p.ID = m.ID
		return nil
	})
}

// requireActive share-locks the paper's question rows so a concurrent deactivation
// waits for the paper to commit.
func requireActive(ctx context.Context, tx bun.Tx, paper []domain.ParticipantQuestion) error {
	if len(paper) == 0 {
		return nil
	}
	ids := make([]int64, len(paper))
	for i, slot := range paper {
		ids[i] = slot.QuestionID
	}
	var active []int64
	err := tx.NewSelect().Model((*questionModel)(nil)).
		Column("q.id").
		Where("q.id IN (?)", bun.In(ids)).
		Where("q.is_active").
		For("SHARE").
		Scan(ctx, &active)
	if err != nil {
		return fmt.Errorf("check paper questions: %w", err)
	}
	if len(active) != len(ids) {
		return domain.ErrInactiveQuestion
	}
	return nil
}

func (s *Store) CompleteParticipant(ctx context.Context, participantID int64, score int, completedAt time.Time) error {
	res, err := s.db.NewUpdate().Model((*participantModel)(nil)).
		Set("completed_at = ?", completedAt).
		Set("score = ?", score).
		Set("updated_at = ?", completedAt).
		Where("p.id = ?", participantID).
		Where("p.completed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("complete participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrExamCompleted
	}
	return nil
}

func (s *Store) Paper(ctx context.Context, participantID int64) ([]domain.ParticipantQuestion, error) {
	var rows []paperModel
	err := s.db.NewSelect().Model(&rows).
		Where("pq.participant_id = ?", participantID).
		Order("pq.order_no ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("paper: %w", err)
	}
	paper := make([]domain.ParticipantQuestion, len(rows))
	for i, r := range rows {
		paper[i] = domain.ParticipantQuestion{ParticipantID: r.ParticipantID, QuestionID: r.QuestionID, OrderNo: r.OrderNo}
	}
	return paper, nil
}

func (s *Store) Answers(ctx context.Context, participantID int64) ([]domain.Answer, error) {
	var rows []answerModel
	err := s.db.NewSelect().Model(&rows).
		Where("a.participant_id = ?", participantID).
		Order("a.question_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("answers: %w", err)
	}
	return answersToDomain(rows), nil
}

func (s *Store) Question(ctx context.Context, questionID int64) (domain.Question, error) {
	var m questionModel
	err := s.db.NewSelect().Model(&m).Where("q.id = ?", questionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotInPaper
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("question: %w", err)
	}
	var opts []optionModel
	if err := s.db.NewSelect().Model(&opts).Where("o.question_id = ?", questionID).Order("o.id ASC").Scan(ctx); err != nil {
		return domain.Question{}, fmt.Errorf("options: %w", err)
	}
	q := domain.Question{ID: m.ID, CategoryID: m.CategoryID, Text: m.Text, IsActive: m.IsActive}
	for _, o := range opts {
		q.Options = append(q.Options, o.toDomain())
	}
	return q, nil
}

func (s *Store) Option(ctx context.Context, optionID int64) (domain.Option, error) {
	var m optionModel
	err := s.db.NewSelect().Model(&m).Where("o.id = ?", optionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Option{}, domain.ErrOptionNotFound
	}
	if err != nil {
		return domain.Option{}, fmt.Errorf("option: %w", err)
	}
	return m.toDomain(), nil
}

// UpsertAnswer relies on the (participant_id, question_id) unique constraint so a
// double submission overwrites instead of adding a row. The row is only written
// while the participant is still open; the participant row is locked so a
// concurrent finish is ordered before or after the write.
func (s *Store) UpsertAnswer(ctx context.Context, answer domain.Answer) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO answers (participant_id, question_id, option_id, is_correct, updated_at)
		SELECT p.id, ?, ?, ?, ?
		FROM participants AS p
		WHERE p.id = ? AND p.completed_at IS NULL
		FOR UPDATE
		ON CONFLICT (participant_id, question_id) DO UPDATE
		SET option_id = EXCLUDED.option_id,
			is_correct = EXCLUDED.is_correct,
			updated_at = EXCLUDED.updated_at`,
		answer.QuestionID, answer.OptionID, answer.IsCorrect, time.Now(), answer.ParticipantID,
	)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrExamCompleted
	}
	return nil
}

func (s *Store) ScoringRecord(ctx context.Context, participantID int64) (domain.ScoringRecord, error) {
	var m participantModel
	err := s.db.NewSelect().Model(&m).Where("p.id = ?", participantID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScoringRecord{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.ScoringRecord{}, fmt.Errorf("participant: %w", err)
	}
	records, err := s.scoringRecords(ctx, []participantModel{m}, "pq.participant_id = ?", participantID)
	if err != nil {
		return domain.ScoringRecord{}, err
	}
	return records[0], nil
}

func (s *Store) ScoringRecords(ctx context.Context, examID int64) ([]domain.ScoringRecord, error) {
	participants, err := s.completed(ctx, s.db, examID)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, nil
	}
	return s.scoringRecords(ctx, participants, "p.exam_id = ? AND p.completed_at IS NOT NULL", examID)
}

func (s *Store) scoringRecords(ctx context.Context, participants []participantModel, where string, arg int64) ([]domain.ScoringRecord, error) {
	var slots []paperSlugRow
	err := s.db.NewSelect().
		TableExpr("participant_questions AS pq").
		ColumnExpr("pq.participant_id, pq.question_id, c.slug").
		Join("JOIN participants AS p ON p.id = pq.participant_id").
		Join("JOIN questions AS q ON q.id = pq.question_id").
		Join("JOIN categories AS c ON c.id = q.category_id").
		Where(where, arg).
		OrderExpr("pq.participant_id ASC, pq.order_no ASC").
		Scan(ctx, &slots)
	if err != nil {
		return nil, fmt.Errorf("paper slugs: %w", err)
	}

	var answers []answerModel
	err = s.db.NewSelect().Model(&answers).
		Join("JOIN participants AS p ON p.id = a.participant_id").
		Where(strings.ReplaceAll(where, "pq.", "a."), arg).
		OrderExpr("a.participant_id ASC, a.question_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scoring answers: %w", err)
	}

	papers := make(map[int64][]domain.PaperQuestion)
	for _, row := range slots {
		papers[row.ParticipantID] = append(papers[row.ParticipantID], domain.PaperQuestion{
			QuestionID:   row.QuestionID,
			CategorySlug: row.Slug,
		})
	}
	byParticipant := make(map[int64][]answerModel)
	for _, a := range answers {
		byParticipant[a.ParticipantID] = append(byParticipant[a.ParticipantID], a)
	}

	records := make([]domain.ScoringRecord, len(participants))
	for i, p := range participants {
		records[i] = domain.ScoringRecord{
			Participant: p.toDomain(),
			Paper:       papers[p.ID],
			Answers:     answersToDomain(byParticipant[p.ID]),
		}
	}
	return records, nil
}

// SaveRanks writes every assignment in one transaction under the exam's advisory lock.
func (s *Store) SaveRanks(ctx context.Context, examID int64, ranks []domain.RankAssignment) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(?)", examID); err != nil {
			return err
		}
		now := time.Now()
		for _, ra := range ranks {
			res, err := tx.NewUpdate().Model((*participantModel)(nil)).
				Set("rank = ?", ra.Rank).
				Set("merit_position = ?", ra.MeritPosition).
				Set("score = ?", ra.Score).
				Set("updated_at = ?", now).
				Where("p.id = ?", ra.ParticipantID).
				Where("p.exam_id = ?", examID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("update rank of participant %d: %w", ra.ParticipantID, err)
			}
			if n, _ := res.RowsAffected(); n != 1 {
				return fmt.Errorf("participant %d: %w", ra.ParticipantID, domain.ErrParticipantNotFound)
			}
		}
		return nil
	})
}

func (s *Store) CompletedParticipants(ctx context.Context, examID int64) ([]domain.Participant, error) {
	rows, err := s.completed(ctx, s.db, examID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Participant, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) completed(ctx context.Context, db bun.IDB, examID int64) ([]participantModel, error) {
	var rows []participantModel
	err := db.NewSelect().Model(&rows).
		Where("p.exam_id = ?", examID).
		Where("p.completed_at IS NOT NULL").
		Order("p.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("completed participants: %w", err)
	}
	return rows, nil
}

func answersToDomain(rows []answerModel) []domain.Answer {
	out := make([]domain.Answer, len(rows))
	for i, a := range rows {
		out[i] = domain.Answer{
			ParticipantID: a.ParticipantID,
			QuestionID:    a.QuestionID,
			OptionID:      a.OptionID,
			IsCorrect:     a.IsCorrect,
		}
	}
	return out
}

func isIdentityViolation(err error) bool {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) || !pgErr.IntegrityViolation() {
		return false
	}
	switch pgErr.Field('n') {
	case "participants_exam_phone_unique", "participants_exam_hsc_roll_unique":
		return true
	}
	return false
}
