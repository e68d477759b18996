package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"mcq-exam-service/internal/app"
	"mcq-exam-service/internal/domain"
	"mcq-exam-service/internal/infra/postgres"
	pgmigrations "mcq-exam-service/internal/infra/postgres/migrations"
	infraredis "mcq-exam-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/sync/errgroup"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stack struct {
	db      *bun.DB
	pool    *pgxpool.Pool
	redis   *goredis.Client
	store   *postgres.Store
	service *app.ExamService
	clock   *clock
}

func TestExamLifecycleOnPostgres(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	b := s.attempt(t, ctx, "01700000002", 5*time.Minute, 0)
	a := s.attempt(t, ctx, "01700000001", 10*time.Minute, 0)
	c := s.attempt(t, ctx, "01700000003", 7*time.Minute, 2)
	d := s.attempt(t, ctx, "01700000004", 7*time.Minute, 1)

	_, err := s.service.Start(ctx, app.StartRequest{ExamID: 1, Identity: domain.Identity{FullName: "Again", Phone: "01700000001"}})
	var already *domain.AlreadyParticipatedError
	if !errors.As(err, &already) || already.Token != a || !already.Completed {
		t.Fatalf("expected completed AlreadyParticipatedError, got %v", err)
	}
	if _, err := s.service.Finish(ctx, a); !errors.Is(err, domain.ErrExamCompleted) {
		t.Fatalf("expected ErrExamCompleted on second finish, got %v", err)
	}

	dup := &domain.Participant{ExamID: 1, Identity: domain.Identity{FullName: "Dup", Phone: "01700000001"}, AttemptToken: "dup-token"}
	if err := s.store.CreateParticipant(ctx, dup, nil); !errors.Is(err, domain.ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity from unique index, got %v", err)
	}

	live, err := postgres.NewLiveRanker(s.pool).LiveStandings(ctx, 1, domain.TieBreak(domain.DefaultTieBreak))
	if err != nil {
		t.Fatalf("live standings: %v", err)
	}
	computed, err := app.NewRankingEngine(s.store, postgres.NewLocker(s.pool), nil).Standings(ctx, 1)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(live) != 4 || len(computed) != 4 {
		t.Fatalf("expected four standings, got live=%d computed=%d", len(live), len(computed))
	}
	for i := range live {
		l, c := live[i], computed[i]
		if l.ParticipantID != c.ParticipantID || l.TotalScore != c.TotalScore || l.CompletionSeconds != c.CompletionSeconds {
			t.Fatalf("standing %d differs: live=%+v computed=%+v", i, l, c)
		}
		for _, slug := range []string{"math", "english"} {
			if l.CategoryScores[slug] != c.CategoryScores[slug] {
				t.Fatalf("standing %d %s differs: live=%d computed=%d", i, slug, l.CategoryScores[slug], c.CategoryScores[slug])
			}
		}
	}

	var g errgroup.Group
	for i := 0; i < 3; i++ {
		g.Go(func() error {
			_, err := s.service.Recalculate(ctx, 1)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent recalculate: %v", err)
	}

	lb, err := s.service.Leaderboard(ctx, 1)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	var phones []string
	var ranks []int
	for _, e := range lb.Participants {
		phones = append(phones, e.Phone)
		ranks = append(ranks, e.Rank)
	}
	want := []string{"01700000002", "01700000001", "01700000003", "01700000004"}
	if strings.Join(phones, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected order %v", phones)
	}
	if fmt.Sprint(ranks) != "[1 2 3 4]" {
		t.Fatalf("unexpected ranks %v", ranks)
	}
	for _, token := range []string{b, c, d} {
		p, err := s.store.ParticipantByToken(ctx, token)
		if err != nil || p.Rank == nil || p.MeritPosition == nil || *p.Rank != *p.MeritPosition {
			t.Fatalf("rank not persisted for %s: %+v, %v", token, p, err)
		}
	}
}

func TestActivateExamOnPostgres(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	shortfalls, err := s.service.ActivateExam(ctx, 2)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if len(shortfalls) != 1 || shortfalls[0].CategoryID != 1 || shortfalls[0].Available != 3 {
		t.Fatalf("unexpected shortfalls %+v", shortfalls)
	}
	active, err := s.service.ActiveExam(ctx)
	if err != nil || active.ID != 2 {
		t.Fatalf("expected exam 2 active, got %+v, %v", active, err)
	}
	if _, err := s.service.Start(ctx, app.StartRequest{ExamID: 1, Identity: domain.Identity{FullName: "Late", Phone: "017"}}); !errors.Is(err, domain.ErrExamNotActive) {
		t.Fatalf("expected ErrExamNotActive, got %v", err)
	}
	if err := s.store.ActivateExam(ctx, 99); !errors.Is(err, domain.ErrExamNotFound) {
		t.Fatalf("expected ErrExamNotFound, got %v", err)
	}
}

func TestPaperAndAnswerGuardsOnPostgres(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	// Warm the Redis pool cache, then retire two math questions behind its back.
	first := s.attempt(t, ctx, "01700000001", time.Minute, 0)
	if _, err := s.db.ExecContext(ctx, "UPDATE questions SET is_active = false WHERE id IN (11, 12)"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	res, err := s.service.Start(ctx, app.StartRequest{ExamID: 1, Identity: domain.Identity{FullName: "Second", Phone: "01700000002"}})
	if err != nil {
		t.Fatalf("start after deactivation: %v", err)
	}
	if res.TotalQuestions != 3 || len(res.Shortfalls) != 1 || res.Shortfalls[0].Available != 1 {
		t.Fatalf("expected one math question left, got %+v", res)
	}
	p, err := s.store.ParticipantByToken(ctx, res.Token)
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	paper, err := s.store.Paper(ctx, p.ID)
	if err != nil {
		t.Fatalf("paper: %v", err)
	}
	for _, slot := range paper {
		if slot.QuestionID == 11 || slot.QuestionID == 12 {
			t.Fatalf("deactivated question %d drawn into %+v", slot.QuestionID, paper)
		}
	}

	done, err := s.store.ParticipantByToken(ctx, first)
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	late := domain.Answer{ParticipantID: done.ID, QuestionID: 21, OptionID: 212}
	if err := s.store.UpsertAnswer(ctx, late); !errors.Is(err, domain.ErrExamCompleted) {
		t.Fatalf("expected ErrExamCompleted for a completed attempt, got %v", err)
	}
	answer := domain.Answer{ParticipantID: p.ID, QuestionID: paper[0].QuestionID, OptionID: paper[0].QuestionID*10 + 1, IsCorrect: true}
	if err := s.store.UpsertAnswer(ctx, answer); err != nil {
		t.Fatalf("answer open attempt: %v", err)
	}
	answers, _ := s.store.Answers(ctx, p.ID)
	if len(answers) != 1 || !answers[0].IsCorrect {
		t.Fatalf("unexpected answers %+v", answers)
	}
}

func TestLockersExcludeAcrossClients(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	lockers := map[string]app.Locker{
		"postgres": postgres.NewLocker(s.pool),
		"redis":    infraredis.NewLocker(s.redis, 30*time.Second),
	}
	for name, locker := range lockers {
		t.Run(name, func(t *testing.T) {
			unlock, err := locker.Lock(ctx, "exam:7:ranking")
			if err != nil {
				t.Fatalf("lock: %v", err)
			}
			waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
			defer cancel()
			if _, err := locker.Lock(waitCtx, "exam:7:ranking"); !errors.Is(err, domain.ErrLockTimeout) {
				t.Fatalf("expected ErrLockTimeout, got %v", err)
			}
			unlock()
			again, err := locker.Lock(ctx, "exam:7:ranking")
			if err != nil {
				t.Fatalf("lock after release: %v", err)
			}
			again()
		})
	}
}

// attempt answers every question of a fresh paper, missing the first question of
// missCategory (0 answers everything correctly), and finishes after d.
func (s *stack) attempt(t *testing.T, ctx context.Context, phone string, d time.Duration, missCategory int64) string {
	t.Helper()
	res, err := s.service.Start(ctx, app.StartRequest{
		ExamID:   1,
		Identity: domain.Identity{FullName: "Student " + phone, Phone: phone, HSCRoll: "roll-" + phone},
	})
	if err != nil {
		t.Fatalf("start %s: %v", phone, err)
	}
	if res.TotalQuestions != 4 {
		t.Fatalf("expected 4 questions, got %d", res.TotalQuestions)
	}
	missed := false
	for {
		q, _, err := s.service.NextQuestion(ctx, res.Token)
		if errors.Is(err, domain.ErrNoMoreQuestions) {
			break
		}
		if err != nil {
			t.Fatalf("next question: %v", err)
		}
		option := q.ID*10 + 1
		if !missed && q.ID/10 == missCategory {
			option = q.ID*10 + 2
			missed = true
		}
		if err := s.service.SubmitAnswer(ctx, res.Token, q.ID, option); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	s.clock.Advance(d)
	if _, err := s.service.Finish(ctx, res.Token); err != nil {
		t.Fatalf("finish %s: %v", phone, err)
	}
	s.clock.Advance(-d)
	return res.Token
}

func newStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	db := postgres.Open(pgURL)
	t.Cleanup(func() { _ = db.Close() })
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := postgres.Seed(ctx, db, sampleCatalog()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	store := postgres.NewStore(db)
	clk := &clock{now: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
	service := app.NewExamService(
		store,
		infraredis.NewQuestionPool(redisClient, store, time.Minute),
		postgres.NewLocker(pool),
		app.WithClock(clk.Now),
		app.WithFallback(app.FallbackFull),
		app.WithLiveRanker(postgres.NewLiveRanker(pool)),
	)
	return &stack{db: db, pool: pool, redis: redisClient, store: store, service: service, clock: clk}
}

// sampleCatalog holds two categories of three questions. Option qid*10+1 is correct.
func sampleCatalog() domain.Catalog {
	c := domain.Catalog{
		Categories: []domain.Category{
			{ID: 1, Name: "Mathematics", Slug: "math", IsActive: true},
			{ID: 2, Name: "English", Slug: "english", IsActive: true},
		},
		Exams: []domain.Exam{
			{ID: 1, Title: "Mock Test", TotalQuestions: 4, IsActive: true},
			{ID: 2, Title: "Final Test", TotalQuestions: 6},
		},
		Rules: []domain.ExamCategoryRule{
			{ExamID: 1, CategoryID: 1, QuestionCount: 2},
			{ExamID: 1, CategoryID: 2, QuestionCount: 2},
			{ExamID: 2, CategoryID: 1, QuestionCount: 4},
			{ExamID: 2, CategoryID: 2, QuestionCount: 2},
		},
	}
	for _, qid := range []int64{11, 12, 13, 21, 22, 23} {
		c.Questions = append(c.Questions, domain.Question{
			ID:         qid,
			CategoryID: qid / 10,
			Text:       fmt.Sprintf("Question %d", qid),
			IsActive:   true,
			Options: []domain.Option{
				{ID: qid*10 + 1, QuestionID: qid, Text: "right", IsCorrect: true},
				{ID: qid*10 + 2, QuestionID: qid, Text: "wrong"},
			},
		})
	}
	return c
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "exam", "POSTGRES_PASSWORD": "exampass", "POSTGRES_DB": "examdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://exam:exampass@%s:%s/examdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
