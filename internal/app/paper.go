package app

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"mcq-exam-service/internal/domain"
)

// Paper is the drawn question sequence for one participant.
type Paper struct {
	QuestionIDs []int64
	// Shortfalls lists categories whose pool was smaller than the quota.
	Shortfalls []domain.PoolShortfall
}

// Slots converts the draw into order_no-numbered paper rows.
func (p Paper) Slots() []domain.ParticipantQuestion {
	slots := make([]domain.ParticipantQuestion, len(p.QuestionIDs))
	for i, id := range p.QuestionIDs {
		slots[i] = domain.ParticipantQuestion{QuestionID: id, OrderNo: i + 1}
	}
	return slots
}

// Assembler draws randomized papers from category quotas.
type Assembler struct {
	pool QuestionPool

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewAssembler seeds the assembler from the wall clock.
func NewAssembler(pool QuestionPool) *Assembler {
	return NewAssemblerWithSource(pool, rand.NewSource(time.Now().UnixNano()))
}

// NewAssemblerWithSource allows deterministic draws in tests.
func NewAssemblerWithSource(pool QuestionPool, src rand.Source) *Assembler {
	return &Assembler{pool: pool, rnd: rand.New(src)}
}

// Assemble draws question_count distinct active questions per rule, then shuffles the combined set.
// A short pool contributes everything it has and is reported in Shortfalls.
func (a *Assembler) Assemble(ctx context.Context, rules []domain.ExamCategoryRule) (Paper, error) {
	pools, err := a.loadPools(ctx, rules)
	if err != nil {
		return Paper{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var paper Paper
	seen := make(map[int64]struct{})
	for i, rule := range rules {
		if rule.QuestionCount <= 0 {
			continue
		}
		available := pools[i]
		if len(available) < rule.QuestionCount {
			paper.Shortfalls = append(paper.Shortfalls, domain.PoolShortfall{
				CategoryID: rule.CategoryID,
				Required:   rule.QuestionCount,
				Available:  len(available),
			})
		}
		for _, id := range a.drawLocked(available, rule.QuestionCount) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			paper.QuestionIDs = append(paper.QuestionIDs, id)
		}
	}

	ids := paper.QuestionIDs
	a.rnd.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return paper, nil
}

// PoolReport compares each quota with the active pool without drawing.
func (a *Assembler) PoolReport(ctx context.Context, rules []domain.ExamCategoryRule) ([]domain.PoolShortfall, error) {
	pools, err := a.loadPools(ctx, rules)
	if err != nil {
		return nil, err
	}
	var shortfalls []domain.PoolShortfall
	for i, rule := range rules {
		if rule.QuestionCount > 0 && len(pools[i]) < rule.QuestionCount {
			shortfalls = append(shortfalls, domain.PoolShortfall{
				CategoryID: rule.CategoryID,
				Required:   rule.QuestionCount,
				Available:  len(pools[i]),
			})
		}
	}
	return shortfalls, nil
}

func (a *Assembler) loadPools(ctx context.Context, rules []domain.ExamCategoryRule) ([][]int64, error) {
	pools := make([][]int64, len(rules))
	for i, rule := range rules {
		if rule.QuestionCount <= 0 {
			continue
		}
		ids, err := a.pool.ActiveQuestionIDs(ctx, rule.CategoryID)
		if err != nil {
			return nil, fmt.Errorf("load pool for category %d: %w", rule.CategoryID, err)
		}
		pools[i] = ids
	}
	return pools, nil
}

// drawLocked picks up to n IDs uniformly without replacement (partial Fisher-Yates).
// The pool is sorted first so a fixed seed yields the same draw regardless of source order.
func (a *Assembler) drawLocked(pool []int64, n int) []int64 {
	ids := append([]int64(nil), pool...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if n > len(ids) {
		n = len(ids)
	}
	for i := 0; i < n; i++ {
		j := i + a.rnd.Intn(len(ids)-i)
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids[:n]
}
