package postgres

import (
	"context"
	"fmt"

	"mcq-exam-service/internal/domain"
	"github.com/uptrace/bun"
)

// Seed upserts a catalog by primary key in one transaction and moves the id
// sequences past the seeded rows.
func Seed(ctx context.Context, db *bun.DB, catalog domain.Catalog) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if len(catalog.Categories) > 0 {
			rows := make([]categoryModel, len(catalog.Categories))
			for i, c := range catalog.Categories {
				rows[i] = categoryModel{ID: c.ID, Name: c.Name, Slug: c.Slug, IsActive: c.IsActive}
			}
			if _, err := tx.NewInsert().Model(&rows).
				On("CONFLICT (id) DO UPDATE").
				Set("name = EXCLUDED.name").
				Set("slug = EXCLUDED.slug").
				Set("is_active = EXCLUDED.is_active").
				Exec(ctx); err != nil {
				return fmt.Errorf("seed categories: %w", err)
			}
		}

		if len(catalog.Exams) > 0 {
			rows := make([]examModel, len(catalog.Exams))
			for i, e := range catalog.Exams {
				rows[i] = examModel{
					ID:              e.ID,
					Title:           e.Title,
					StartTime:       e.StartTime,
					EndTime:         e.EndTime,
					TotalQuestions:  e.TotalQuestions,
					ResultPublishAt: e.ResultPublishAt,
					IsActive:        e.IsActive,
				}
			}
			if _, err := tx.NewInsert().Model(&rows).
				On("CONFLICT (id) DO UPDATE").
				Set("title = EXCLUDED.title").
				Set("start_time = EXCLUDED.start_time").
				Set("end_time = EXCLUDED.end_time").
				Set("total_questions = EXCLUDED.total_questions").
				Set("result_publish_at = EXCLUDED.result_publish_at").
				Set("is_active = EXCLUDED.is_active").
				Exec(ctx); err != nil {
				return fmt.Errorf("seed exams: %w", err)
			}
		}

		var questions []questionModel
		var options []optionModel
		for _, q := range catalog.Questions {
			questions = append(questions, questionModel{ID: q.ID, CategoryID: q.CategoryID, Text: q.Text, IsActive: q.IsActive})
			for _, o := range q.Options {
				options = append(options, optionModel{ID: o.ID, QuestionID: q.ID, Text: o.Text, IsCorrect: o.IsCorrect})
			}
		}
		if len(questions) > 0 {
			if _, err := tx.NewInsert().Model(&questions).
				On("CONFLICT (id) DO UPDATE").
				Set("category_id = EXCLUDED.category_id").
				Set("question_text = EXCLUDED.question_text").
				Set("is_active = EXCLUDED.is_active").
				Exec(ctx); err != nil {
				return fmt.Errorf("seed questions: %w", err)
			}
		}
		if len(options) > 0 {
			if _, err := tx.NewInsert().Model(&options).
				On("CONFLICT (id) DO UPDATE").
				Set("question_id = EXCLUDED.question_id").
				Set("option_text = EXCLUDED.option_text").
				Set("is_correct = EXCLUDED.is_correct").
				Exec(ctx); err != nil {
				return fmt.Errorf("seed options: %w", err)
			}
		}

		if len(catalog.Rules) > 0 {
			rows := make([]ruleModel, len(catalog.Rules))
			for i, r := range catalog.Rules {
				rows[i] = ruleModel{ExamID: r.ExamID, CategoryID: r.CategoryID, QuestionCount: r.QuestionCount}
			}
			if _, err := tx.NewInsert().Model(&rows).
				ExcludeColumn("id").
				On("CONFLICT (exam_id, category_id) DO UPDATE").
				Set("question_count = EXCLUDED.question_count").
				Exec(ctx); err != nil {
				return fmt.Errorf("seed rules: %w", err)
			}
		}

		for _, table := range []string{"categories", "exams", "questions", "options"} {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(
				"SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT MAX(id) FROM %s), 0) + 1, false)",
				table, table)); err != nil {
				return fmt.Errorf("reset %s sequence: %w", table, err)
			}
		}
		return nil
	})
}
