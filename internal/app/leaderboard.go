package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"mcq-exam-service/internal/domain"
)

// FallbackMode selects how the leaderboard orders participants before any rank is persisted.
type FallbackMode string

const (
	// FallbackScoreTime orders by score desc, then completed_at asc.
	FallbackScoreTime FallbackMode = "score_time"
	// FallbackFull applies the full ranking comparator live.
	FallbackFull FallbackMode = "full"
)

// LeaderboardReader serves ranked results. It never writes ranks.
type LeaderboardReader struct {
	store    Store
	engine   *RankingEngine
	live     LiveRanker
	mode     FallbackMode
	tieBreak domain.TieBreak
	now      func() time.Time
}

func NewLeaderboardReader(store Store, engine *RankingEngine, live LiveRanker, mode FallbackMode, tieBreak domain.TieBreak) *LeaderboardReader {
	if mode == "" {
		mode = FallbackScoreTime
	}
	return &LeaderboardReader{
		store:    store,
		engine:   engine,
		live:     live,
		mode:     mode,
		tieBreak: tieBreak.OrDefault(),
		now:      time.Now,
	}
}

// Read returns the completed participants of an exam in leaderboard order.
func (r *LeaderboardReader) Read(ctx context.Context, exam domain.Exam) (domain.Leaderboard, error) {
	participants, err := r.store.CompletedParticipants(ctx, exam.ID)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load participants: %w", err)
	}

	var entries []domain.LeaderboardEntry
	switch {
	case anyRanked(participants):
		entries = OrderByRank(participants)
	case r.mode == FallbackFull:
		standings, err := r.standings(ctx, exam.ID)
		if err != nil {
			return domain.Leaderboard{}, err
		}
		entries = OrderByStandings(participants, standings, r.tieBreak)
	default:
		entries = OrderByScoreTime(participants)
	}

	return domain.Leaderboard{
		Exam:         domain.ExamSummary{ID: exam.ID, Title: exam.Title},
		Participants: entries,
		UpdatedAt:    r.now(),
	}, nil
}

func (r *LeaderboardReader) standings(ctx context.Context, examID int64) ([]domain.Standing, error) {
	if r.live != nil {
		standings, err := r.live.LiveStandings(ctx, examID, r.tieBreak)
		if err != nil {
			return nil, fmt.Errorf("live standings: %w", err)
		}
		return standings, nil
	}
	return r.engine.Standings(ctx, examID)
}

func anyRanked(participants []domain.Participant) bool {
	for _, p := range participants {
		if p.Rank != nil {
			return true
		}
	}
	return false
}

// OrderByRank trusts persisted ranks. Participants completed after the last
// recalculation have no rank yet and are listed last.
func OrderByRank(participants []domain.Participant) []domain.LeaderboardEntry {
	sorted := append([]domain.Participant(nil), participants...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := sorted[i].Rank, sorted[j].Rank
		switch {
		case ri != nil && rj != nil && *ri != *rj:
			return *ri < *rj
		case ri != nil && rj == nil:
			return true
		case ri == nil && rj != nil:
			return false
		}
		return sorted[i].ID < sorted[j].ID
	})
	return toEntries(sorted, nil)
}

// OrderByScoreTime is the degraded ordering used before ranks exist: it lacks the category tie-break.
func OrderByScoreTime(participants []domain.Participant) []domain.LeaderboardEntry {
	sorted := append([]domain.Participant(nil), participants...)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := scoreOf(sorted[i]), scoreOf(sorted[j])
		if si != sj {
			return si > sj
		}
		ci, cj := sorted[i].CompletedAt, sorted[j].CompletedAt
		if ci != nil && cj != nil && !ci.Equal(*cj) {
			return ci.Before(*cj)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return toEntries(sorted, nil)
}

// OrderByStandings lays participants out in comparator order with tie-aware ranks.
func OrderByStandings(participants []domain.Participant, standings []domain.Standing, tieBreak domain.TieBreak) []domain.LeaderboardEntry {
	byID := make(map[int64]domain.Participant, len(participants))
	for _, p := range participants {
		byID[p.ID] = p
	}
	ranks := AssignRanks(standings, tieBreak)
	ordered := make([]domain.Participant, 0, len(standings))
	assigned := make(map[int64]domain.RankAssignment, len(ranks))
	for _, ra := range ranks {
		p, ok := byID[ra.ParticipantID]
		if !ok {
			continue
		}
		ordered = append(ordered, p)
		assigned[ra.ParticipantID] = ra
	}
	return toEntries(ordered, assigned)
}

func toEntries(participants []domain.Participant, assigned map[int64]domain.RankAssignment) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(participants))
	for i, p := range participants {
		entry := domain.LeaderboardEntry{
			Rank:          i + 1,
			MeritPosition: i + 1,
			ParticipantID: p.ID,
			FullName:      p.FullName,
			HSCRoll:       p.HSCRoll,
			Phone:         p.Phone,
			Score:         scoreOf(p),
			CompletedAt:   p.CompletedAt,
		}
		if ra, ok := assigned[p.ID]; ok {
			entry.Rank = ra.Rank
			entry.MeritPosition = ra.MeritPosition
			entry.Score = ra.Score
		}
		if p.Rank != nil {
			entry.Rank = *p.Rank
		}
		if p.MeritPosition != nil {
			entry.MeritPosition = *p.MeritPosition
		}
		entries = append(entries, entry)
	}
	return entries
}

func scoreOf(p domain.Participant) int {
	if p.Score == nil {
		return 0
	}
	return *p.Score
}
