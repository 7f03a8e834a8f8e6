package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"live-assessment-service/internal/app"
	"live-assessment-service/internal/domain"
	pgstore "live-assessment-service/internal/infra/postgres"
	pgmigrations "live-assessment-service/internal/infra/postgres/migrations"
	infraredis "live-assessment-service/internal/infra/redis"
	"live-assessment-service/internal/infra/storetest"
)

func TestPostgresStoreContract(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	db := openMigrated(t, ctx, pgURL)
	defer db.Close()

	storetest.Run(t, func(t *testing.T) app.Store {
		if _, err := db.ExecContext(ctx, `TRUNCATE responses, participants, quiz_sessions CASCADE`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return pgstore.NewStore(db)
	})
}

func TestRedisStoreContract(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()
	client, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	storetest.Run(t, func(t *testing.T) app.Store {
		if err := client.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("flush: %v", err)
		}
		return infraredis.NewStore(client, time.Hour)
	})
}

func TestLiveSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openMigrated(t, ctx, pgURL)
	defer db.Close()

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgstore.NewQuizLoader(pool)
	if err := loader.SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	engine := app.NewEngine(pgstore.NewStore(db), quizRepo, app.DefaultPolicy())
	defer engine.Close()
	gateway := app.NewGateway(engine)

	host := domain.Actor{ID: "teacher-1", Role: domain.RoleHost}
	created, err := gateway.CreateSession(ctx, host, app.CreateSessionRequest{QuizID: "quiz-1", Mode: domain.ModeLive})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	code := created.Session.Code
	if _, err := gateway.Command(ctx, code, host, app.CmdStart, &created.Session.Version); err != nil {
		t.Fatalf("start: %v", err)
	}

	alice, err := gateway.Join(ctx, code, app.JoinRequest{DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	bob, err := gateway.Join(ctx, code, app.JoinRequest{DisplayName: "Bob"})
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}

	if _, err := gateway.Submit(ctx, code, app.SubmitRequest{
		ParticipantID: alice.ParticipantID, QuestionID: "q1", Answer: json.RawMessage(`"o1"`),
	}); err != nil {
		t.Fatalf("submit alice: %v", err)
	}
	result, err := gateway.Submit(ctx, code, app.SubmitRequest{
		ParticipantID: bob.ParticipantID, QuestionID: "q1", Answer: json.RawMessage(`"o2"`),
	})
	if err != nil {
		t.Fatalf("submit bob: %v", err)
	}
	if result.Grade.IsCorrect == nil || !*result.Grade.IsCorrect || result.Participant.Score <= 0 {
		t.Fatalf("expected bob to score, got %+v", result)
	}

	snap, err := gateway.Snapshot(ctx, code, domain.Actor{ID: alice.ParticipantID, Role: domain.RoleParticipant})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Leaderboard) != 2 || snap.Leaderboard[0].ParticipantID != bob.ParticipantID {
		t.Fatalf("expected bob leading, got %+v", snap.Leaderboard)
	}
	if snap.CurrentQuestion == nil || snap.CurrentQuestion.ID != "q1" {
		t.Fatalf("expected q1 current, got %+v", snap.CurrentQuestion)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func openMigrated(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Arithmetic",
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
				Answer:           domain.AnswerKey{Values: []string{"o2"}},
				Points:           10,
				TimeLimitSeconds: 30,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
