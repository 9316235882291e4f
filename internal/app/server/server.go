package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/directory"
	"hradmin/internal/domain/hierarchy"
	"hradmin/internal/domain/requests"
	"hradmin/internal/domain/snapshot"
	"hradmin/internal/domain/workflow"
	"hradmin/internal/platform/config"
	"hradmin/internal/platform/db"
	"hradmin/internal/platform/jobs"
	"hradmin/internal/platform/lock"
	"hradmin/internal/platform/metrics"
	audithandler "hradmin/internal/transport/http/handlers/audit"
	authhandler "hradmin/internal/transport/http/handlers/auth"
	employeeshandler "hradmin/internal/transport/http/handlers/employees"
	orghandler "hradmin/internal/transport/http/handlers/org"
	requestshandler "hradmin/internal/transport/http/handlers/requests"
	snapshothandler "hradmin/internal/transport/http/handlers/snapshot"
	"hradmin/internal/transport/http/middleware"
)

const orgChartTitle = "Organization Chart"

type App struct {
	Config    config.Config
	Logger    *slog.Logger
	DB        *pgxpool.Pool
	Directory directory.Store
	Requests  requests.Store
	Locker    lock.Locker
	Audit     audit.Recorder
	Replays   middleware.IdempotencyStore
	Metrics   *metrics.Collector
	Hierarchy *hierarchy.Service
	Workflow  *workflow.Engine
	Snapshots *snapshot.Service
	Jobs      *jobs.Service
	Router    http.Handler
}

// New wires the service. Without DATABASE_URL every store lives in memory
// and the audit trail goes to the logger.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	var (
		locker lock.Locker
		writer snapshot.Writer
	)
	if cfg.InMemory() {
		app.Directory = directory.NewMemoryStore()
		app.Requests = requests.NewMemoryStore()
		app.Audit = audit.NewLogRecorder(logger)
		app.Replays = middleware.NewMemoryIdempotencyStore()
		locker = lock.NewLocal()
		logger.Warn("DATABASE_URL not set; using in-memory stores")
	} else {
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		app.DB = pool
		if cfg.RunMigrations {
			applied, err := db.Migrate(ctx, pool)
			if err != nil {
				pool.Close()
				return nil, err
			}
			if len(applied) > 0 {
				logger.Info("migrations applied", "versions", applied)
			}
		}
		dirStore, reqStore := directory.NewPGStore(pool), requests.NewPGStore(pool)
		app.Directory = dirStore
		app.Requests = reqStore
		writer = snapshot.NewPGWriter(pool, dirStore, reqStore)
		app.Audit = audit.NewStore(pool)
		app.Replays = middleware.NewPGIdempotencyStore(pool)
		locker = lock.NewAdvisory(pool)
	}
	app.Locker = lock.WithTimeout(locker, cfg.MutationTimeout)

	if cfg.RunSeed {
		if _, _, err := db.SeedOwner(ctx, app.Directory, cfg, logger); err != nil {
			app.Close()
			return nil, err
		}
	}

	if cfg.MetricsEnabled {
		app.Metrics = metrics.New()
	}
	app.Hierarchy = hierarchy.NewService(app.Directory, app.Locker, logger)
	app.Workflow = workflow.NewEngine(app.Requests, app.Directory, app.Locker, logger)
	app.Snapshots = snapshot.NewService(app.Directory, app.Requests, app.Locker, logger)
	if writer != nil {
		app.Snapshots.Writer = writer
	}
	app.Jobs = jobs.New(logger, app.Metrics)
	app.Jobs.Every(JobIntegrityCheck, cfg.IntegrityCheckInterval, app.checkIntegrity)
	app.Router = app.routes()
	return app, nil
}

const JobIntegrityCheck = "integrity_check"

// checkIntegrity rescans the stored directory. Mutations keep it sound, but
// rows edited outside the service can still break the forest.
func (a *App) checkIntegrity(ctx context.Context) (any, error) {
	employees, err := a.Directory.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := hierarchy.CheckIntegrity(employees); err != nil {
		a.Logger.Error("directory integrity violated", "err", err)
		return map[string]int{"employees": len(employees)}, err
	}
	return map[string]int{"employees": len(employees)}, nil
}

func (a *App) resolveActor(ctx context.Context, employeeID string) (auth.Actor, error) {
	emp, err := a.Directory.Get(ctx, employeeID)
	if err != nil {
		return auth.Actor{}, err
	}
	return emp.Actor(), nil
}

func (a *App) routes() http.Handler {
	cfg := a.Config
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.Logger(a.Logger))
	router.Use(middleware.Recoverer(a.Logger))
	router.Use(middleware.Metrics(a.Metrics))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret, a.resolveActor))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := a.DB.Ping(ctx); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	if a.Metrics != nil {
		router.Handle("/metrics", a.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		authHandler := authhandler.NewHandler(a.Directory, cfg.JWTSecret, cfg.TokenTTL, a.Audit)
		authHandler.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(middleware.Idempotency(a.Replays, a.Logger))
			authHandler.RegisterRoutes(r)
			employeeshandler.NewHandler(a.Directory, a.Hierarchy, a.Audit, a.Metrics).RegisterRoutes(r)
			orghandler.NewHandler(a.Hierarchy, orgChartTitle).RegisterRoutes(r)
			requestshandler.NewHandler(a.Workflow, a.Audit, a.Metrics).RegisterRoutes(r)
			snapshothandler.NewHandler(a.Snapshots, a.Audit).RegisterRoutes(r)
			if events, ok := a.Audit.(audit.Lister); ok {
				audithandler.NewHandler(events).RegisterRoutes(r)
			}
		})
	})
	return router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.Jobs.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("hradmin listening", "addr", a.Config.Addr, "in_memory", a.Config.InMemory())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
