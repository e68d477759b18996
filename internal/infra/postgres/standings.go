package postgres

import (
	"context"
	"fmt"
	"strings"

	"mcq-exam-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// LiveRanker evaluates and orders completed participants in a single SQL query.
type LiveRanker struct {
	pool *pgxpool.Pool
}

func NewLiveRanker(pool *pgxpool.Pool) *LiveRanker {
	return &LiveRanker{pool: pool}
}

// LiveStandings returns standings sorted by score desc, completion seconds asc,
// per-category correct counts desc in tieBreak order, then participant id asc.
func (r *LiveRanker) LiveStandings(ctx context.Context, examID int64, tieBreak domain.TieBreak) ([]domain.Standing, error) {
	tieBreak = tieBreak.OrDefault()
	query, args := standingsQuery(examID, tieBreak)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("live standings: %w", err)
	}
	defer rows.Close()

	var standings []domain.Standing
	for rows.Next() {
		var (
			id     int64
			total  int
			secs   int64
			counts = make([]int, len(tieBreak))
		)
		dest := []interface{}{&id, &total, &secs}
		for i := range counts {
			dest = append(dest, &counts[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		scores := make(map[string]int, len(tieBreak))
		for i, slug := range tieBreak {
			scores[slug] = counts[i]
		}
		standings = append(standings, domain.Standing{
			ParticipantID: id,
			Evaluation: domain.Evaluation{
				TotalScore:        total,
				CategoryScores:    scores,
				CompletionSeconds: secs,
			},
		})
	}
	return standings, rows.Err()
}

func standingsQuery(examID int64, tieBreak domain.TieBreak) (string, []interface{}) {
	args := []interface{}{examID}
	var cols, order strings.Builder
	for i, slug := range tieBreak {
		args = append(args, slug)
		fmt.Fprintf(&cols, ",\n\t\tCOUNT(a.id) FILTER (WHERE a.is_correct AND c.slug = $%d)::int AS s%d", len(args), i)
		fmt.Fprintf(&order, ", s%d DESC", i)
	}

	query := `SELECT p.id,
		COUNT(a.id) FILTER (WHERE a.is_correct)::int AS total,
		CASE WHEN p.started_at IS NULL OR p.completed_at IS NULL
			THEN 9223372036854775807
			ELSE FLOOR(ABS(EXTRACT(EPOCH FROM (p.completed_at - p.started_at))))::bigint
		END AS secs` + cols.String() + `
	FROM participants p
	LEFT JOIN participant_questions pq ON pq.participant_id = p.id
	LEFT JOIN answers a ON a.participant_id = p.id AND a.question_id = pq.question_id
	LEFT JOIN questions q ON q.id = pq.question_id
	LEFT JOIN categories c ON c.id = q.category_id
	WHERE p.exam_id = $1 AND p.completed_at IS NOT NULL
	GROUP BY p.id
	ORDER BY total DESC, secs ASC` + order.String() + `, p.id ASC`
	return query, args
}
