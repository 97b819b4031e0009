package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/habitcell/server/internal/config"
	"github.com/habitcell/server/internal/db"
	httphandler "github.com/habitcell/server/internal/http"
	"github.com/habitcell/server/internal/mail"
	"github.com/habitcell/server/internal/middleware"
	"github.com/habitcell/server/internal/recovery"
	"github.com/habitcell/server/internal/repo"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env from CWD if present (env vars override)
	_ = godotenv.Load(".env")

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	deviceRepo := repo.NewDeviceRepo(database)
	verificationRepo := repo.NewVerificationRepo(database)
	backupRepo := repo.NewBackupRepo(database)

	var sender recovery.CodeSender
	if cfg.MailDevMode {
		log.Println("MAIL_DEV_MODE=true: verification codes are logged, not mailed")
		sender = mail.NewLogSender(logger)
	} else {
		sender = mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.FromEmail, cfg.FromName, logger)
	}

	svc := recovery.NewService(deviceRepo, verificationRepo, backupRepo, sender, cfg.CodeSalt, logger)

	opts, closeLimiters := newLimiters(ctx, cfg)
	defer closeLimiters()
	opts.TrustProxy = cfg.TrustProxy

	router := httphandler.NewRouter(svc, opts, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// newLimiters uses Redis when REDIS_URL is set and reachable, otherwise per-process memory
func newLimiters(ctx context.Context, cfg *config.Config) (httphandler.Options, func()) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			log.Printf("Redis unreachable (%v), falling back to in-memory rate limiting", err)
			_ = client.Close()
		} else {
			log.Printf("Rate limiting backed by Redis at %s", opts.Addr)
			return httphandler.Options{
				CodeRequest: middleware.NewRedisLimiter(client, "rl:email_request", cfg.RateLimitWindow, cfg.CodeRequestLimit),
				CodeVerify:  middleware.NewRedisLimiter(client, "rl:email_verify", cfg.RateLimitWindow, cfg.CodeVerifyLimit),
			}, func() { _ = client.Close() }
		}
	}

	requestLimiter := middleware.NewMemoryLimiter(cfg.RateLimitWindow, cfg.CodeRequestLimit)
	verifyLimiter := middleware.NewMemoryLimiter(cfg.RateLimitWindow, cfg.CodeVerifyLimit)
	return httphandler.Options{CodeRequest: requestLimiter, CodeVerify: verifyLimiter}, func() {
		requestLimiter.Close()
		verifyLimiter.Close()
	}
}
