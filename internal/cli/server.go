package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"live-assessment-service/internal/app"
	"live-assessment-service/internal/config"
	"live-assessment-service/internal/domain"
	"live-assessment-service/internal/infra/memory"
	"live-assessment-service/internal/infra/postgres"
	redisstore "live-assessment-service/internal/infra/redis"
	transport "live-assessment-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the assessment server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
	}

	loader, err := quizLoader(cfg, pool)
	if err != nil {
		return err
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store app.Store
	switch cfg.StoreDriver() {
	case config.DriverRedis:
		store = redisstore.NewStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 168*time.Hour))
	case config.DriverPostgres:
		db := openBun(cfg.Postgres.URL)
		defer db.Close()
		store = postgres.NewStore(db)
	default:
		store = memory.NewStore()
	}
	log.Printf("using %s session store", cfg.StoreDriver())

	engine := app.NewEngine(store, quizRepo, policyFromConfig(cfg))
	defer engine.Close()

	pushInterval := config.TTLDuration(cfg.Sync.PushInterval, time.Second)
	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(app.NewGateway(engine), pushInterval),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket connections stay open for the whole session.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("starting live assessment service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// quizLoader prefers a YAML catalog, then the postgres quizzes table, then the
// built-in demo quiz.
func quizLoader(cfg config.Config, pool *pgxpool.Pool) (memory.QuizLoader, error) {
	if cfg.Quiz.CatalogPath != "" {
		loader, err := memory.LoadCatalogFile(cfg.Quiz.CatalogPath)
		if err != nil {
			return nil, err
		}
		log.Printf("loaded %d quizzes from %s", len(loader.Quizzes()), cfg.Quiz.CatalogPath)
		return loader, nil
	}
	if pool != nil {
		return postgres.NewQuizLoader(pool), nil
	}
	return memory.NewStaticQuizLoader(sampleQuizzes()), nil
}

func policyFromConfig(cfg config.Config) app.Policy {
	policy := app.DefaultPolicy()
	if v := cfg.Scoring.Speed.Enabled; v != nil {
		policy.Speed.Enabled = *v
	}
	if v := cfg.Scoring.Speed.Floor; v != nil {
		policy.Speed.Floor = *v
	}
	if v := cfg.Scoring.Speed.Decay; v != nil {
		policy.Speed.Decay = *v
	}
	policy.Grading.MultiSelectPartialCredit = cfg.Scoring.MultiSelectPartialCredit
	policy.MaxAttemptsLive = cfg.Attempts.Live
	policy.MaxAttemptsHomework = cfg.Attempts.Homework
	if v := cfg.Leaderboard.TopN; v != nil {
		policy.LeaderboardTopN = *v
	}
	if v := cfg.Leaderboard.HomeworkVisibility; v != "" {
		policy.HomeworkLeaderboard = app.LeaderboardVisibility(v)
	}
	if v := cfg.Store.Retries; v != nil {
		policy.StoreRetries = *v
	}
	policy.AutoAdvance = cfg.Live.AutoAdvance
	policy.AutoAdvanceGrace = config.TTLDuration(cfg.Live.AutoAdvanceGrace, policy.AutoAdvanceGrace)
	return policy
}

// sampleQuizzes is the demo catalog served when neither a YAML catalog nor
// postgres is configured.
func sampleQuizzes() map[string]domain.Quiz {
	answer := 4.0
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:                      "quiz-1",
			Title:                   "Warm-up",
			DefaultPoints:           10,
			DefaultTimeLimitSeconds: 30,
			Questions: []domain.Question{
				{
					ID:     "q1",
					Order:  1,
					Type:   domain.MultipleChoice,
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4"},
						{ID: "o3", Text: "5"},
					},
					Answer: domain.AnswerKey{Values: []string{"o2"}},
				},
				{
					ID:     "q2",
					Order:  2,
					Type:   domain.Numeric,
					Prompt: "Square root of 16?",
					Answer: domain.AnswerKey{Number: &answer},
				},
			},
		},
	}
}
