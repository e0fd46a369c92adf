package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/api/handlers"
	"github.com/maheshrc27/crosspost/internal/api/middleware"
	"github.com/maheshrc27/crosspost/internal/engine"
	"github.com/maheshrc27/crosspost/internal/events"
	job "github.com/maheshrc27/crosspost/internal/jobs"
	"github.com/maheshrc27/crosspost/internal/metrics"
	"github.com/maheshrc27/crosspost/internal/publisher"
	"github.com/maheshrc27/crosspost/internal/queue"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/scheduler"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/telemetry"
	"github.com/maheshrc27/crosspost/pkg/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/ratelimit"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.Environment}); err != nil {
			slog.Warn("sentry init failed", "error", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	var tp *sdktrace.TracerProvider
	if cfg.TracingEnabled {
		if tp, err = telemetry.InitTracer("crosspost", "1.0.0"); err != nil {
			slog.Warn("tracing disabled", "error", err)
		}
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer closeDB(db)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := db.PingContext(ctx); err != nil {
		slog.Error("database is unreachable", "error", err)
		os.Exit(1)
	}
	if err := repository.EnsureSchema(ctx, db); err != nil {
		slog.Error("schema bootstrap failed", "error", err)
		os.Exit(1)
	}

	m := metrics.NewMetrics()

	// Repositories; post writes notify the stream hub and other processes.
	basePosts := repository.NewPostRepository(db)
	hub := events.NewHub(basePosts)
	bridge := events.Connect(cfg.NatsURL)
	defer bridge.Close()
	if err := bridge.Forward(hub); err != nil {
		slog.Warn("cross-process notifications disabled", "error", err)
	}
	postRepo := events.WrapPosts(basePosts, events.Multi{hub, bridge})
	userRepo := repository.NewUserRepository(db)
	mediaRepo := repository.NewMediaRepository(db)
	accountRepo := repository.NewSocialAccountRepository(db)

	cipher, err := utils.NewCipher([]byte(cfg.SecretKey))
	if err != nil {
		slog.Error("token cipher", "error", err)
		os.Exit(1)
	}
	accountService := service.NewAccountService(accountRepo, cipher)

	registry := newRegistry(cfg)

	var dispatchQueue engine.DispatchQueue
	var redisOpt asynq.RedisConnOpt
	if cfg.RedisURI != "" {
		redisOpt, err = redisConnOpt(cfg.RedisURI)
		if err != nil {
			slog.Error("invalid REDIS_URI", "error", err)
			os.Exit(1)
		}
		client := queue.NewClient(redisOpt)
		defer client.Close()
		dispatchQueue = client
	}

	eng := engine.New(engine.Deps{
		Posts:       postRepo,
		Publishers:  registry,
		Credentials: accountService,
		Queue:       dispatchQueue,
		Metrics:     m,
		Policy:      cfg.Policy(),
	})

	dispatcher := scheduler.NewDispatcher(postRepo, eng, scheduler.Options{
		Batch:       cfg.Dispatch.Batch,
		Concurrency: cfg.Dispatch.Concurrency,
		Metrics:     m,
		OnError: func(err error) {
			sentry.CaptureException(err)
		},
	})

	store, err := service.NewR2Store(ctx, cfg.R2)
	if err != nil {
		slog.Error("blob store", "error", err)
		os.Exit(1)
	}

	authService := service.NewAuthService(cfg, userRepo)
	userService := service.NewUserService(userRepo)
	mediaService := service.NewMediaService(mediaRepo, store)
	postService := service.NewPostService(postRepo, mediaRepo, userRepo, eng)

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    service.MaxUploadBytes + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("unhandled request error", "path", c.Path(), "error", err)
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(middleware.Metrics(m))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Post("/internal/dispatch", handlers.NewDispatchHandler(dispatcher, cfg.DispatchToken).Trigger)

	auth := handlers.NewAuthHandler(cfg, authService)
	app.Get("/login", auth.Login)
	app.Get("/login/callback", auth.LoginCallbackHandler)
	app.Post("/logout", auth.Logout)

	authMiddleware := middleware.NewAuthMiddleware(cfg)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	user := handlers.NewUserHandler(userService)
	api.Get("/user", user.Profile)
	api.Put("/user/settings", user.UpdateSettings)

	post := handlers.NewPostHandler(postService, hub)
	api.Post("/posts", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Get("/posts/calendar", post.Calendar)
	api.Get("/posts/stream", post.Stream)
	api.Get("/posts/:id", post.GetPost)
	api.Put("/posts/:id", post.UpdatePost)
	api.Delete("/posts/:id", post.RemovePost)
	api.Post("/posts/:id/schedule", post.SchedulePost)
	api.Post("/posts/:id/cancel", post.CancelPost)
	api.Post("/posts/:id/reschedule", post.ReschedulePost)

	media := handlers.NewMediaHandler(mediaService)
	api.Post("/media", media.Upload)
	api.Get("/media", media.List)
	api.Delete("/media/:id", media.Remove)

	platform := handlers.NewPlatformHandler(accountService)
	api.Get("/accounts", platform.ListSocialAccounts)
	api.Post("/accounts", platform.AddSocialAccount)
	api.Delete("/accounts/:id", platform.DeleteSocialAccount)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(accountService, registry, m)

	c := cron.New()
	if err := c.AddFunc(cfg.Dispatch.Interval, func() {
		if _, err := dispatcher.RunOnce(ctx); err != nil {
			slog.Error("dispatch sweep failed", "error", err)
			sentry.CaptureException(err)
		}
	}); err != nil {
		slog.Error("invalid DISPATCH_INTERVAL", "error", err)
		os.Exit(1)
	}
	if err := c.AddFunc(cfg.Dispatch.RefreshEvery, func() {
		refreshTokenJob.RefreshTokens(ctx)
	}); err != nil {
		slog.Error("invalid TOKEN_REFRESH_INTERVAL", "error", err)
		os.Exit(1)
	}
	c.Start()

	var server *asynq.Server
	if redisOpt != nil {
		server = asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: cfg.Dispatch.Concurrency,
		})
		worker := queue.NewWorker(dispatcher)
		go func() {
			slog.Info("starting the asynq server")
			if err := server.Run(worker.Mux()); err != nil {
				slog.Error("could not start asynq server", "error", err)
				os.Exit(1)
			}
		}()
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()
	slog.Info("server is running", "port", cfg.Port)

	gracefulShutdown(app, func() {
		c.Stop()
		stop()
		if server != nil {
			server.Shutdown()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.ShutdownTracer(shutdownCtx, tp)
	})
}

// newRegistry builds one publisher per platform, each behind its own outbound
// rate limit.
func newRegistry(cfg *config.Config) *publisher.Registry {
	opts := func() publisher.Options {
		if cfg.Dispatch.RatePerSec <= 0 {
			return publisher.Options{}
		}
		return publisher.Options{Limiter: ratelimit.New(cfg.Dispatch.RatePerSec)}
	}
	return publisher.NewRegistry(
		publisher.NewInstagram(opts()),
		publisher.NewFacebook(opts(), cfg.OAuth.FacebookAppID, cfg.OAuth.FacebookAppSecret),
		publisher.NewThreads(opts()),
		publisher.NewLinkedIn(opts(), cfg.OAuth.LinkedInClientID, cfg.OAuth.LinkedInClientSecret),
		publisher.NewYouTube(opts(), cfg.OAuth.GoogleClientID, cfg.OAuth.GoogleClientSecret),
	)
}

// redisConnOpt accepts a redis:// URI or a plain host:port address.
func redisConnOpt(uri string) (asynq.RedisConnOpt, error) {
	if strings.Contains(uri, "://") {
		return asynq.ParseRedisURI(uri)
	}
	return asynq.RedisClientOpt{Addr: uri}, nil
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, cleanup func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("shutting down server")

	if err := app.Shutdown(); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}
	cleanup()
	slog.Info("server shutdown complete")
}
