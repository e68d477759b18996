package domain

import "time"

// Exam is a scheduled paper. At most one exam is active at a time.
type Exam struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	TotalQuestions  int        `json:"total_questions"`
	ResultPublishAt *time.Time `json:"result_publish_at,omitempty"`
	IsActive        bool       `json:"is_active"`
}

// Category groups questions. Slug is the stable identifier used for tie-break ordering.
type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	IsActive bool   `json:"is_active"`
}

// ExamCategoryRule is the quota an exam draws from one category.
type ExamCategoryRule struct {
	ExamID        int64 `json:"exam_id"`
	CategoryID    int64 `json:"category_id"`
	QuestionCount int   `json:"question_count"`
}

// Option is one choice of a question.
type Option struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
}

// Question belongs to a category and is shared by every exam.
type Question struct {
	ID         int64    `json:"id"`
	CategoryID int64    `json:"category_id"`
	Text       string   `json:"text"`
	IsActive   bool     `json:"is_active"`
	Options    []Option `json:"options,omitempty"`
}

// Identity holds the registration fields a participant supplies at start.
type Identity struct {
	FullName       string `json:"full_name"`
	Phone          string `json:"phone"`
	Group          string `json:"group,omitempty"`
	HSCRoll        string `json:"hsc_roll,omitempty"`
	HSCPassingYear string `json:"hsc_passing_year,omitempty"`
	Board          string `json:"board,omitempty"`
	College        string `json:"college,omitempty"`
}

// Participant is one attempt of one identity at one exam.
type Participant struct {
	ID     int64 `json:"id"`
	ExamID int64 `json:"exam_id"`
	Identity
	AttemptToken  string     `json:"-"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Score         *int       `json:"score,omitempty"`
	Rank          *int       `json:"rank,omitempty"`
	MeritPosition *int       `json:"merit_position,omitempty"`
	IPAddress     string     `json:"-"`
}

// IsCompleted reports whether the attempt has been finished.
func (p Participant) IsCompleted() bool {
	return p.CompletedAt != nil
}

// ParticipantQuestion is one slot of an assigned paper.
type ParticipantQuestion struct {
	ParticipantID int64 `json:"participant_id"`
	QuestionID    int64 `json:"question_id"`
	OrderNo       int   `json:"order_no"`
}

// Answer is the single recorded choice for a (participant, question) pair.
type Answer struct {
	ParticipantID int64 `json:"participant_id"`
	QuestionID    int64 `json:"question_id"`
	OptionID      int64 `json:"option_id"`
	IsCorrect     bool  `json:"is_correct"`
}

// PaperQuestion ties a paper slot to the slug of its question's category.
type PaperQuestion struct {
	QuestionID   int64
	CategorySlug string
}

// ScoringRecord is everything the evaluator needs for one participant.
type ScoringRecord struct {
	Participant Participant
	Paper       []PaperQuestion
	Answers     []Answer
}

// Evaluation is the derived score and tie-break signals of a participant.
type Evaluation struct {
	TotalScore        int            `json:"total_score"`
	CategoryScores    map[string]int `json:"category_scores"`
	CompletionSeconds int64          `json:"completion_seconds"`
}

// Standing is one evaluated participant in comparator order.
type Standing struct {
	ParticipantID int64
	Evaluation
}

// RankAssignment is what the ranking engine writes back to a participant.
type RankAssignment struct {
	ParticipantID int64 `json:"participant_id"`
	Rank          int   `json:"rank"`
	MeritPosition int   `json:"merit_position"`
	Score         int   `json:"score"`
}

// LeaderboardEntry is a public row of the leaderboard.
type LeaderboardEntry struct {
	Rank          int        `json:"rank"`
	MeritPosition int        `json:"merit_position"`
	ParticipantID int64      `json:"-"`
	FullName      string     `json:"full_name"`
	HSCRoll       string     `json:"hsc_roll"`
	Phone         string     `json:"phone"`
	Score         int        `json:"score"`
	CompletedAt   *time.Time `json:"completed_at"`
}

// ExamSummary is the public header of a leaderboard.
type ExamSummary struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Leaderboard captures the ordered results of an exam.
type Leaderboard struct {
	Exam         ExamSummary        `json:"exam"`
	Participants []LeaderboardEntry `json:"participants"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// PoolShortfall reports a category whose active pool cannot cover its quota.
type PoolShortfall struct {
	CategoryID int64 `json:"category_id"`
	Required   int   `json:"required"`
	Available  int   `json:"available"`
}

// Catalog is a bulk load of exam content, used for seeding stores.
type Catalog struct {
	Categories []Category
	Questions  []Question
	Exams      []Exam
	Rules      []ExamCategoryRule
}
