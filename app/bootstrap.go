package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"chabits/internal/auth"
	"chabits/internal/db"
	"chabits/internal/habit"
	"chabits/internal/maintenance"
	"chabits/internal/observability"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

// Build wires the whole application from environment configuration and
// returns it as an explicit runtime value. Both the standalone server and
// the serverless entrypoint go through here; nothing hangs off package
// globals.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	// The revocation ledger lives in Postgres unless REDIS_URL selects the
	// Redis backend. Only the Postgres ledger needs explicit pruning.
	var blocklist auth.Blocklist
	var pgBlocklist *auth.PostgresBlocklist
	var redisClient *redis.Client
	if redisURL := strings.TrimSpace(os.Getenv("REDIS_URL")); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		blocklist = auth.NewRedisBlocklist(redisClient)
	} else {
		pgBlocklist = auth.NewPostgresBlocklist(database)
		blocklist = pgBlocklist
	}

	issuer := auth.NewTokenIssuer(jwtSecret, envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 60))
	hasher := auth.NewPasswordHasher(envIntOrDefault("BCRYPT_COST", 12))

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, blocklist, issuer, hasher)
	authService.WithLockoutConfig(
		envIntOrDefault("LOGIN_MAX_ATTEMPTS", 5),
		envMinutesOrDefault("LOGIN_LOCK_MINUTES", 15),
	)
	authHandler := auth.NewHandler(authService, authRepo)

	habitRepo := habit.NewRepository(database)
	habitHandler := habit.NewHandler(habitRepo)

	cleanupHandler := maintenance.NewCleanupHandler(
		authRepo,
		pgBlocklist,
		logger,
		os.Getenv("CRON_SECRET"),
		envDaysOrDefault("AUTH_LOGIN_ATTEMPT_RETENTION_DAYS", 30),
		envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
	)

	loginLimiter := auth.NewLoginRateLimiter(
		envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	guard := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(issuer, blocklist, h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", homeHandler)
	mux.HandleFunc("POST /auth/signup", authHandler.Signup)
	mux.Handle("POST /auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /auth/logout", guard(authHandler.Logout))
	mux.Handle("POST /auth/reset_password", guard(authHandler.ResetPassword))
	mux.Handle("GET /protected", guard(authHandler.Protected))
	mux.HandleFunc("GET /users", authHandler.ListUsers)
	mux.HandleFunc("GET /users/{username}", authHandler.GetUser)
	mux.Handle("GET /habits", guard(habitHandler.ListHabits))
	mux.Handle("POST /habits", guard(habitHandler.CreateHabit))
	mux.Handle("PUT /habits/{id}", guard(habitHandler.UpdateHabit))
	mux.Handle("DELETE /habits/{id}", guard(habitHandler.DeleteHabit))
	mux.Handle("POST /habits/{id}/log", guard(habitHandler.CreateLog))
	mux.Handle("GET /habits/{id}/log", guard(habitHandler.ListLogs))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			if redisClient != nil {
				_ = redisClient.Close()
			}
			return database.Close()
		},
	}, nil
}

func homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"msg": "Homepage for Habit Tracker"})
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
