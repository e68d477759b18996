package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"

	"mcq-exam-service/internal/domain"
)

// CompareCriteria orders two standings by score, then time, then category counts in tieBreak order.
// It returns a negative value when a ranks ahead of b and 0 when they are tied.
func CompareCriteria(a, b domain.Standing, tieBreak domain.TieBreak) int {
	if a.TotalScore != b.TotalScore {
		if a.TotalScore > b.TotalScore {
			return -1
		}
		return 1
	}
	if a.CompletionSeconds != b.CompletionSeconds {
		if a.CompletionSeconds < b.CompletionSeconds {
			return -1
		}
		return 1
	}
	for _, slug := range tieBreak.OrDefault() {
		sa, sb := a.CategoryScores[slug], b.CategoryScores[slug]
		if sa != sb {
			if sa > sb {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Compare is CompareCriteria with participant ID as the final key, a strict total order.
func Compare(a, b domain.Standing, tieBreak domain.TieBreak) int {
	if c := CompareCriteria(a, b, tieBreak); c != 0 {
		return c
	}
	switch {
	case a.ParticipantID < b.ParticipantID:
		return -1
	case a.ParticipantID > b.ParticipantID:
		return 1
	}
	return 0
}

// SortStandings sorts in place by Compare.
func SortStandings(standings []domain.Standing, tieBreak domain.TieBreak) {
	tieBreak = tieBreak.OrDefault()
	sort.SliceStable(standings, func(i, j int) bool {
		return Compare(standings[i], standings[j], tieBreak) < 0
	})
}

// AssignRanks numbers sorted standings. A participant tied with the previous one on every
// criterion shares its rank; otherwise rank is the 1-based position. Merit position equals rank.
func AssignRanks(sorted []domain.Standing, tieBreak domain.TieBreak) []domain.RankAssignment {
	tieBreak = tieBreak.OrDefault()
	out := make([]domain.RankAssignment, len(sorted))
	rank := 0
	for i, s := range sorted {
		if i == 0 || CompareCriteria(sorted[i-1], s, tieBreak) != 0 {
			rank = i + 1
		}
		out[i] = domain.RankAssignment{
			ParticipantID: s.ParticipantID,
			Rank:          rank,
			MeritPosition: rank,
			Score:         s.TotalScore,
		}
	}
	return out
}

// RankOutcome is the result of a recalculation.
type RankOutcome struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	RankedCount int    `json:"ranked_count"`
}

// RankingEngine evaluates completed participants and persists their ranks.
type RankingEngine struct {
	store    Store
	locker   Locker
	tieBreak domain.TieBreak
}

func NewRankingEngine(store Store, locker Locker, tieBreak domain.TieBreak) *RankingEngine {
	return &RankingEngine{store: store, locker: locker, tieBreak: tieBreak.OrDefault()}
}

// Standings evaluates and sorts every completed participant without writing anything.
func (e *RankingEngine) Standings(ctx context.Context, examID int64) ([]domain.Standing, error) {
	records, err := e.store.ScoringRecords(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("load scoring records: %w", err)
	}
	standings := make([]domain.Standing, len(records))
	for i, rec := range records {
		standings[i] = domain.Standing{
			ParticipantID: rec.Participant.ID,
			Evaluation:    Evaluate(rec, e.tieBreak),
		}
	}
	SortStandings(standings, e.tieBreak)
	return standings, nil
}

// Rank recalculates and persists ranks for an exam. Runs for the same exam never interleave.
// An exam without completed participants is reported in the outcome, not as an error.
func (e *RankingEngine) Rank(ctx context.Context, examID int64) (RankOutcome, error) {
	if _, err := e.store.GetExam(ctx, examID); err != nil {
		return RankOutcome{}, err
	}

	unlock, err := e.locker.Lock(ctx, lockKey(examID))
	if err != nil {
		return RankOutcome{}, fmt.Errorf("lock exam %d: %w", examID, err)
	}
	defer unlock()

	standings, err := e.Standings(ctx, examID)
	if err != nil {
		return RankOutcome{}, err
	}
	if len(standings) == 0 {
		return RankOutcome{
			Success: false,
			Message: "No completed participants found for this exam.",
		}, nil
	}

	ranks := AssignRanks(standings, e.tieBreak)
	if err := e.store.SaveRanks(ctx, examID, ranks); err != nil {
		return RankOutcome{}, fmt.Errorf("save ranks: %w", err)
	}
	log.Printf("exam %d: ranked %d participants", examID, len(ranks))

	return RankOutcome{
		Success:     true,
		Message:     fmt.Sprintf("Leaderboard calculated successfully. %d participants ranked.", len(ranks)),
		RankedCount: len(ranks),
	}, nil
}

func lockKey(examID int64) string {
	return "exam:" + strconv.FormatInt(examID, 10) + ":ranking"
}
