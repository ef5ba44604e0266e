package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"lms-quiz-service/internal/app"
	"lms-quiz-service/internal/config"
	"lms-quiz-service/internal/domain"
	"lms-quiz-service/internal/infra/memory"
	pgstore "lms-quiz-service/internal/infra/postgres"
	redisinfra "lms-quiz-service/internal/infra/redis"
	transport "lms-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz service",
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
	}
	answerTTL := config.TTLDuration(cfg.Cache.AnswerTTL, 10*time.Minute)

	deps := app.Dependencies{}
	var source transport.NotificationSource

	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		store := pgstore.NewStore(db)
		deps.Courses = store
		deps.Questions = store
		deps.Quizzes = store
		deps.Gradings = store
		deps.Enrollments = store
		deps.Reports = pgstore.NewReportingStore(pool)
	} else {
		store := memory.NewStore()
		seedDemoData(store)
		deps.Courses = store
		deps.Questions = store
		deps.Quizzes = store
		deps.Gradings = store
		deps.Enrollments = store
		deps.Reports = store
	}

	keySource := app.NewAnswerKeySource(deps.Questions)
	if redisClient != nil {
		deps.AnswerKeys = redisinfra.NewAnswerCache(redisClient, keySource, answerTTL)
		notifier := redisinfra.NewNotifier(redisClient)
		deps.Notifier = notifier
		source = notifier
	} else {
		deps.AnswerKeys = memory.NewAnswerCache(keySource, answerTTL)
		hub := memory.NewNotificationHub()
		deps.Notifier = hub
		source = hub
	}

	service := app.NewQuizService(deps)
	apiHandler := transport.NewAPIHandler(service)
	wsHandler := transport.NewWSHandler(source)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws/notifications", wsHandler.ServeWS)
	apiHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz service on :%s", finalPort)
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

// seedDemoData loads a minimal course, question bank, and enrollments for
// running without Postgres; swap in the real stores in production.
func seedDemoData(store *memory.Store) {
	store.PutCourse(domain.Course{
		ID:           1,
		Name:         "Intro to Databases",
		Description:  "Relational fundamentals",
		Duration:     "8 weeks",
		InstructorID: 100,
		CreatedAt:    time.Now(),
	})
	store.PutEnrollment(201, 1)
	store.PutEnrollment(202, 1)

	ctx := context.Background()
	drafts := []domain.Question{
		{ID: 1, Text: "Which clause filters rows?", Options: []string{"WHERE", "GROUP BY", "ORDER BY", "HAVING"}, CorrectAnswer: "WHERE"},
		{ID: 2, Text: "Which join keeps unmatched left rows?", Options: []string{"INNER", "LEFT", "RIGHT", "CROSS"}, CorrectAnswer: "LEFT"},
		{ID: 3, Text: "Which constraint forbids duplicates?", Options: []string{"UNIQUE", "CHECK", "DEFAULT", "NOT NULL"}, CorrectAnswer: "UNIQUE"},
		{ID: 4, Text: "Which command removes a table?", Options: []string{"DELETE", "DROP", "TRUNCATE", "REMOVE"}, CorrectAnswer: "DROP"},
		{ID: 5, Text: "Which index type is the Postgres default?", Options: []string{"hash", "btree", "gin", "brin"}, CorrectAnswer: "btree"},
		{ID: 6, Text: "Which isolation level is the Postgres default?", Options: []string{"read committed", "serializable", "repeatable read", "read uncommitted"}, CorrectAnswer: "read committed"},
	}
	for _, q := range drafts {
		q.CourseID = 1
		q.Type = domain.QuestionTypeMCQ
		if err := store.CreateQuestion(ctx, q); err != nil {
			log.Printf("seed question %d: %v", q.ID, err)
		}
	}
}
