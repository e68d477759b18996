package postgres

import (
	"time"

	"mcq-exam-service/internal/domain"
	"github.com/uptrace/bun"
)

type examModel struct {
	bun.BaseModel `bun:"table:exams,alias:e"`

	ID              int64      `bun:"id,pk,autoincrement"`
	Title           string     `bun:"title,notnull"`
	StartTime       *time.Time `bun:"start_time"`
	EndTime         *time.Time `bun:"end_time"`
	TotalQuestions  int        `bun:"total_questions,notnull"`
	ResultPublishAt *time.Time `bun:"result_publish_at"`
	IsActive        bool       `bun:"is_active,notnull"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (m examModel) toDomain() domain.Exam {
	return domain.Exam{
		ID:              m.ID,
		Title:           m.Title,
		StartTime:       m.StartTime,
		EndTime:         m.EndTime,
		TotalQuestions:  m.TotalQuestions,
		ResultPublishAt: m.ResultPublishAt,
		IsActive:        m.IsActive,
	}
}

type categoryModel struct {
	bun.BaseModel `bun:"table:categories,alias:c"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Name     string `bun:"name,notnull"`
	Slug     string `bun:"slug,notnull"`
	IsActive bool   `bun:"is_active,notnull"`
}

type ruleModel struct {
	bun.BaseModel `bun:"table:exam_category_rules,alias:r"`

	ID            int64 `bun:"id,pk,autoincrement"`
	ExamID        int64 `bun:"exam_id,notnull"`
	CategoryID    int64 `bun:"category_id,notnull"`
	QuestionCount int   `bun:"question_count,notnull"`
}

type questionModel struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID         int64  `bun:"id,pk,autoincrement"`
	CategoryID int64  `bun:"category_id,notnull"`
	Text       string `bun:"question_text,notnull"`
	IsActive   bool   `bun:"is_active,notnull"`
}

type optionModel struct {
	bun.BaseModel `bun:"table:options,alias:o"`

	ID         int64  `bun:"id,pk,autoincrement"`
	QuestionID int64  `bun:"question_id,notnull"`
	Text       string `bun:"option_text,notnull"`
	IsCorrect  bool   `bun:"is_correct,notnull"`
}

func (m optionModel) toDomain() domain.Option {
	return domain.Option{ID: m.ID, QuestionID: m.QuestionID, Text: m.Text, IsCorrect: m.IsCorrect}
}

type participantModel struct {
	bun.BaseModel `bun:"table:participants,alias:p"`

	ID             int64      `bun:"id,pk,autoincrement"`
	ExamID         int64      `bun:"exam_id,notnull"`
	FullName       string     `bun:"full_name,notnull"`
	Phone          string     `bun:"phone,notnull"`
	Group          string     `bun:"group,nullzero"`
	HSCRoll        string     `bun:"hsc_roll,nullzero"`
	HSCPassingYear string     `bun:"hsc_passing_year,nullzero"`
	Board          string     `bun:"board,nullzero"`
	College        string     `bun:"college,nullzero"`
	AttemptToken   string     `bun:"attempt_token,notnull"`
	StartedAt      *time.Time `bun:"started_at"`
	CompletedAt    *time.Time `bun:"completed_at"`
	Score          *int       `bun:"score"`
	Rank           *int       `bun:"rank"`
	MeritPosition  *int       `bun:"merit_position"`
	IPAddress      string     `bun:"ip_address,nullzero"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func participantFromDomain(p domain.Participant) participantModel {
	return participantModel{
		ID:             p.ID,
		ExamID:         p.ExamID,
		FullName:       p.FullName,
		Phone:          p.Phone,
		Group:          p.Group,
		HSCRoll:        p.HSCRoll,
		HSCPassingYear: p.HSCPassingYear,
		Board:          p.Board,
		College:        p.College,
		AttemptToken:   p.AttemptToken,
		StartedAt:      p.StartedAt,
		CompletedAt:    p.CompletedAt,
		Score:          p.Score,
		Rank:           p.Rank,
		MeritPosition:  p.MeritPosition,
		IPAddress:      p.IPAddress,
	}
}

func (m participantModel) toDomain() domain.Participant {
	return domain.Participant{
		ID:     m.ID,
		ExamID: m.ExamID,
		Identity: domain.Identity{
			FullName:       m.FullName,
			Phone:          m.Phone,
			Group:          m.Group,
			HSCRoll:        m.HSCRoll,
			HSCPassingYear: m.HSCPassingYear,
			Board:          m.Board,
			College:        m.College,
		},
		AttemptToken:  m.AttemptToken,
		StartedAt:     m.StartedAt,
		CompletedAt:   m.CompletedAt,
		Score:         m.Score,
		Rank:          m.Rank,
		MeritPosition: m.MeritPosition,
		IPAddress:     m.IPAddress,
	}
}

type paperModel struct {
	bun.BaseModel `bun:"table:participant_questions,alias:pq"`

	ID            int64 `bun:"id,pk,autoincrement"`
	ParticipantID int64 `bun:"participant_id,notnull"`
	QuestionID    int64 `bun:"question_id,notnull"`
	OrderNo       int   `bun:"order_no,notnull"`
}

type answerModel struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID            int64     `bun:"id,pk,autoincrement"`
	ParticipantID int64     `bun:"participant_id,notnull"`
	QuestionID    int64     `bun:"question_id,notnull"`
	OptionID      int64     `bun:"option_id,notnull"`
	IsCorrect     bool      `bun:"is_correct,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

// paperSlugRow is a paper slot joined with its question's category slug.
type paperSlugRow struct {
	ParticipantID int64  `bun:"participant_id"`
	QuestionID    int64  `bun:"question_id"`
	Slug          string `bun:"slug"`
}
