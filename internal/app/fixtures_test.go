package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"mcq-exam-service/internal/domain"
	"mcq-exam-service/internal/infra/memory"
)

var testSlugs = []string{"math", "english", "bangla", "ict", "general-knowledge"}

// testCatalog has categories 1..5 in default priority order with three questions
// each. Question c*10+k has a correct option id*10+1 and a wrong option id*10+2.
// Exam 1 is active and draws two questions per category; exam 2 is inactive.
func testCatalog() domain.Catalog {
	var c domain.Catalog
	for i, slug := range testSlugs {
		categoryID := int64(i + 1)
		c.Categories = append(c.Categories, domain.Category{ID: categoryID, Name: "Category " + slug, Slug: slug, IsActive: true})
		for k := int64(1); k <= 3; k++ {
			qid := categoryID*10 + k
			c.Questions = append(c.Questions, domain.Question{
				ID:         qid,
				CategoryID: categoryID,
				Text:       fmt.Sprintf("question %d", qid),
				IsActive:   true,
				Options: []domain.Option{
					{ID: qid*10 + 1, Text: "right", IsCorrect: true},
					{ID: qid*10 + 2, Text: "wrong"},
				},
			})
		}
		c.Rules = append(c.Rules, domain.ExamCategoryRule{ExamID: 1, CategoryID: categoryID, QuestionCount: 2})
		c.Rules = append(c.Rules, domain.ExamCategoryRule{ExamID: 2, CategoryID: categoryID, QuestionCount: 1})
	}
	c.Exams = []domain.Exam{
		{ID: 1, Title: "Admission Mock", TotalQuestions: 10, IsActive: true},
		{ID: 2, Title: "Spare Exam", TotalQuestions: 5},
	}
	return c
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	service *ExamService
	store   *memory.Store
	clock   *testClock
}

func newTestEnv(t *testing.T, catalog domain.Catalog, opts ...Option) testEnv {
	t.Helper()
	store := memory.NewStore(catalog)
	clock := newTestClock()
	var n int
	var mu sync.Mutex
	base := []Option{
		WithClock(clock.Now),
		WithRandSource(rand.NewSource(7)),
		WithTokenSource(func() (string, error) {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("token-%d", n), nil
		}),
	}
	service := NewExamService(store, store, memory.NewLocker(), append(base, opts...)...)
	return testEnv{service: service, store: store, clock: clock}
}

func identity(phone string) domain.Identity {
	return domain.Identity{FullName: "Participant " + phone, Phone: phone}
}

// attempt starts exam 1 for phone, answers every paper question, spends d and finishes.
// correct maps category id to how many of its questions are answered correctly.
func (e testEnv) attempt(t *testing.T, phone string, d time.Duration, correct map[int64]int) string {
	t.Helper()
	ctx := context.Background()
	res, err := e.service.Start(ctx, StartRequest{ExamID: 1, Identity: identity(phone)})
	if err != nil {
		t.Fatalf("start %s: %v", phone, err)
	}
	budget := make(map[int64]int, len(correct))
	for k, v := range correct {
		budget[k] = v
	}
	for {
		q, _, err := e.service.NextQuestion(ctx, res.Token)
		if errors.Is(err, domain.ErrNoMoreQuestions) {
			break
		}
		if err != nil {
			t.Fatalf("next question %s: %v", phone, err)
		}
		option := q.ID*10 + 2
		if cat := q.ID / 10; budget[cat] > 0 {
			budget[cat]--
			option = q.ID*10 + 1
		}
		if err := e.service.SubmitAnswer(ctx, res.Token, q.ID, option); err != nil {
			t.Fatalf("answer %s: %v", phone, err)
		}
	}
	e.clock.Advance(d)
	if _, err := e.service.Finish(ctx, res.Token); err != nil {
		t.Fatalf("finish %s: %v", phone, err)
	}
	return res.Token
}

func allCorrect(n int) map[int64]int {
	return map[int64]int{1: n, 2: n, 3: n, 4: n, 5: n}
}

func phonesOf(lb domain.Leaderboard) []string {
	out := make([]string, len(lb.Participants))
	for i, e := range lb.Participants {
		out[i] = e.Phone
	}
	return out
}

func ranksOf(lb domain.Leaderboard) []int {
	out := make([]int, len(lb.Participants))
	for i, e := range lb.Participants {
		out[i] = e.Rank
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
