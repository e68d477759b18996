package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"mcq-exam-service/internal/app"
	"mcq-exam-service/internal/config"
	"mcq-exam-service/internal/domain"
	"mcq-exam-service/internal/infra/memory"
	"mcq-exam-service/internal/infra/postgres"
	redisinfra "mcq-exam-service/internal/infra/redis"
	transport "mcq-exam-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the exam server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// deps holds the wired service and the connections it owns.
type deps struct {
	service *app.ExamService
	closers []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// poolSource is a store that can also list active question ids.
type poolSource interface {
	app.Store
	app.QuestionPool
}

// buildDeps picks Postgres or the in-memory store, Redis or in-process caching and
// locking, from cfg.
func buildDeps(ctx context.Context, cfg config.Config) (*deps, error) {
	d := &deps{}
	poolTTL := config.TTLDuration(cfg.Exam.PoolTTL, time.Minute)
	lockTTL := config.TTLDuration(cfg.Exam.LockTTL, 30*time.Second)

	opts := []app.Option{
		app.WithTieBreak(domain.TieBreak(cfg.Exam.TieBreak)),
		app.WithFallback(app.FallbackMode(cfg.Exam.LeaderboardFallback)),
	}

	var (
		store  poolSource
		locker app.Locker
		db     *bun.DB
		pgPool *pgxpool.Pool
	)
	if cfg.Postgres.URL != "" {
		db = postgres.Open(cfg.Postgres.URL)
		d.closers = append(d.closers, func() { db.Close() })
		if err := runMigrations(ctx, db); err != nil {
			d.Close()
			return nil, err
		}
		var err error
		pgPool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, pgPool.Close)
		store = postgres.NewStore(db)
		locker = postgres.NewLocker(pgPool)
		opts = append(opts, app.WithLiveRanker(postgres.NewLiveRanker(pgPool)))
	} else {
		log.Printf("postgres url not configured, using in-memory store with sample catalog")
		store = memory.NewStore(sampleCatalog())
		locker = memory.NewLocker()
	}

	var pool app.QuestionPool
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, func() { client.Close() })
		pool = redisinfra.NewQuestionPool(client, store, poolTTL)
		locker = redisinfra.NewLocker(client, lockTTL)
	} else {
		pool = memory.NewQuestionPool(store, poolTTL)
	}

	d.service = app.NewExamService(store, pool, locker, opts...)
	return d, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(d.service),
		ReadTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("starting exam service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
