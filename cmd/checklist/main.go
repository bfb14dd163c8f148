package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/bebleo/checklist/internal/admin"
	"github.com/bebleo/checklist/internal/app"
	"github.com/bebleo/checklist/internal/auth"
	"github.com/bebleo/checklist/internal/checklists"
	jobmetrics "github.com/bebleo/checklist/internal/jobs"
	"github.com/bebleo/checklist/internal/observability"
	"github.com/bebleo/checklist/internal/platform/cache"
	"github.com/bebleo/checklist/internal/platform/db"
	"github.com/bebleo/checklist/internal/shared"
	"github.com/bebleo/checklist/internal/tokens"
	"github.com/bebleo/checklist/internal/users"
	"github.com/bebleo/checklist/internal/view"
	"github.com/bebleo/checklist/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		shared.LogError(logger, "checklist server", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	templates, err := view.NewEngine()
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, "checklist_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	mailQueue := jobs.NewClient(redisOpts, jobmetrics.NewMetrics(metrics.Registerer()))
	defer func() {
		if err := mailQueue.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	hasher := auth.NewBcryptHasher(0)
	userService := users.NewService(users.NewRepository(pool), hasher)
	tokenService := tokens.NewService(tokens.NewRepository(pool), cfg.TokenTTL)
	authService := auth.NewService(auth.ServiceConfig{
		Users:    userService,
		Tokens:   tokenService,
		Repo:     auth.NewRepository(pool),
		Hasher:   hasher,
		Mailer:   mailQueue,
		Renderer: templates,
		Recorder: metrics,
		Logger:   logger,
		BaseURL:  cfg.AppBaseURL,
		TokenTTL: cfg.TokenTTL,
	})
	checklistService := checklists.NewService(checklists.NewRepository(pool), metrics)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Templates:        templates,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Resolver:         auth.NewResolver(userService, logger),
		AuthHandler:      auth.NewHandler(logger, authService, templates, sessionManager, csrfManager),
		AdminHandler:     admin.NewHandler(logger, userService, templates, csrfManager),
		ChecklistHandler: checklists.NewHandler(logger, checklistService, templates, csrfManager),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
