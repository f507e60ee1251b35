package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"mentora/backend/internal/auth"
	"mentora/backend/internal/config"
	"mentora/backend/internal/notify"
	"mentora/backend/internal/service/blocking"
	"mentora/backend/internal/service/scheduling"
	"mentora/backend/internal/store/postgres"
	"mentora/backend/internal/sweep"
	httpTransport "mentora/backend/internal/transport/http"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "mentora-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "mentora-server"),
	)
	slog.SetDefault(log)

	log.Info("starting", slog.String("http_addr", cfg.HTTPAddr), slog.String("log_level", cfg.LogLevel))

	if cfg.JWTSecret == "" {
		log.Error("MENTORA_JWT_SECRET is required")
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Error("invalid schedule timezone", slog.Any("err", err), slog.String("timezone", cfg.Timezone))
		os.Exit(1)
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("redis close failed", slog.Any("err", err))
		}
	}()

	repo := postgres.NewScheduleRepo(db)
	dispatcher := notify.NewQueueDispatcher(rdb, cfg.NotifyQueue, log)
	engine := blocking.NewEngine(repo, dispatcher, log)
	svc := scheduling.NewService(
		repo, repo, repo,
		auth.NewOwnershipAuthorizer(cfg.AdminIDs...),
		dispatcher, engine,
		scheduling.Config{
			Location:           loc,
			MinAdvance:         cfg.BookingMinAdvance,
			DefaultMeetingLink: cfg.DefaultMeetingLink,
		},
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker := notify.NewWorker(rdb, cfg.NotifyQueue, buildSender(cfg, log), log)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	sweeper := sweep.NewSweeper(repo, repo, engine, dispatcher, sweep.Config{
		ReminderWindow: cfg.ReminderWindow,
	}, log)
	if err := sweeper.Start(); err != nil {
		log.Error("sweeper start failed", slog.Any("err", err))
		os.Exit(1)
	}

	app := httpTransport.NewRouter(httpTransport.NewHandler(svc, log), []byte(cfg.JWTSecret), cfg.HTTPRequestTimeout, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.HTTPAddr)
	}()

	log.Info("http server started", slog.String("http_addr", cfg.HTTPAddr))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error("http server stopped with error", slog.Any("err", err))
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	shutdown(shutdownCtx, log, app, sweeper)
	<-workerDone
	log.Info("stopped")
}

func buildSender(cfg config.Config, log *slog.Logger) notify.Sender {
	if cfg.SMTPHost == "" {
		log.Info("smtp not configured; notifications are logged only")
		return notify.LogSender{Log: log}
	}
	return notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, notify.IdentityDirectory{})
}

func shutdown(ctx context.Context, log *slog.Logger, app *fiber.App, sweeper *sweep.Sweeper) {
	log.Info("shutting down")

	sweeper.Stop(ctx)

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Warn("http shutdown failed", slog.Any("err", err))
		return
	}
	log.Info("http server stopped")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
