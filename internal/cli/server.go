package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"pvp-quiz-service/internal/app"
	"pvp-quiz-service/internal/config"
	"pvp-quiz-service/internal/domain"
	"pvp-quiz-service/internal/infra/auth"
	"pvp-quiz-service/internal/infra/memory"
	pgstore "pvp-quiz-service/internal/infra/postgres"
	redisstore "pvp-quiz-service/internal/infra/redis"
	transport "pvp-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz coordination server",
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

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	questionTime := config.TTLDuration(cfg.Game.QuestionTime, 30*time.Second)
	bankTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var source app.QuestionSource = memory.NewGenerator(questionTime)
	if pool != nil {
		bank := pgstore.NewQuestionBank(pool)
		source = bank
		if redisClient != nil {
			source = redisstore.NewQuestionCache(redisClient, bank, bankTTL)
		}
	}

	var results app.ResultStore = memory.NewResultStore()
	if pool != nil {
		results = pgstore.NewResultStore(pool)
	}

	var lb app.LeaderboardSink
	if redisClient != nil {
		lb = redisstore.NewLeaderboard(redisClient, cfg.Leaderboard.Size)
	}

	matchCfg := app.MatchConfig{
		TotalQuestions: cfg.Game.TotalQuestions,
		QuestionTime:   questionTime,
		Reward:         cfg.Game.Reward,
		Level:          cfg.Game.Level,
		Difficulty:     cfg.Game.Difficulty,
		RetryAttempts:  cfg.Retry.Attempts,
		RetryBackoff:   config.TTLDuration(cfg.Retry.Backoff, 100*time.Millisecond),
	}

	bus := app.NewBus(cfg.Bus.QueueSize)
	registry := app.NewRegistry()
	factory := func(matchID, roomID string, players []domain.Participant, onDone func(completed bool)) *app.Match {
		return app.NewMatch(matchID, roomID, players, matchCfg, bus, source, results, lb, onDone)
	}
	rooms := app.NewManager(bus, factory, app.RoomsConfig{
		Capacity:   cfg.Game.RoomCapacity,
		MinPlayers: cfg.Game.MinPlayers,
	}, uuid.NewString)

	var verifier app.IdentityVerifier
	if cfg.Auth.Secret != "" {
		verifier = auth.NewJWTVerifier(cfg.Auth.Secret)
	} else {
		log.Printf("auth secret not configured, falling back to demo tokens")
		verifier = auth.NewStaticVerifier(demoTokens())
	}

	wsHandler := transport.NewHandler(rooms, registry, bus, verifier, lb)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	wsHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting pvp quiz service on :%s", finalPort)
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

// demoTokens provides fixed credentials for local development; swap in the
// JWT verifier by setting auth.secret in production.
func demoTokens() map[string]domain.Participant {
	return map[string]domain.Participant{
		"demo-alice": {UserID: "u-alice", FirstName: "Alice", LastName: "Nguyen"},
		"demo-bob":   {UserID: "u-bob", FirstName: "Bob", LastName: "Tran"},
		"demo-cara":  {UserID: "u-cara", FirstName: "Cara", LastName: "Le"},
		"demo-dan":   {UserID: "u-dan", FirstName: "Dan", LastName: "Pham"},
	}
}
