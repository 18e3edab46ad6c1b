package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "go.temporal.io/sdk/client"
	tworker "go.temporal.io/sdk/worker"
	"golang.org/x/sync/errgroup"

	"github.com/stanstork/reconciler/internal/config"
	"github.com/stanstork/reconciler/internal/discovery"
	"github.com/stanstork/reconciler/internal/engine"
	"github.com/stanstork/reconciler/internal/handlers"
	"github.com/stanstork/reconciler/internal/jobs"
	"github.com/stanstork/reconciler/internal/lock"
	"github.com/stanstork/reconciler/internal/matcher"
	"github.com/stanstork/reconciler/internal/metrics"
	"github.com/stanstork/reconciler/internal/middleware"
	"github.com/stanstork/reconciler/internal/notification"
	"github.com/stanstork/reconciler/internal/orchestrator"
	"github.com/stanstork/reconciler/internal/reconlogic"
	"github.com/stanstork/reconciler/internal/repository"
	"github.com/stanstork/reconciler/internal/routes"
	"github.com/stanstork/reconciler/internal/temporal"
	"github.com/stanstork/reconciler/internal/temporal/activities"
	"github.com/stanstork/reconciler/internal/temporal/workflows"
	"github.com/stanstork/reconciler/internal/worker"
)

type application struct {
	config         *config.Config
	db             *sql.DB
	registry       *prometheus.Registry
	redis          *redis.Client
	temporalClient tc.Client
	broadcaster    *notification.Broadcaster
	jobs           *jobs.Service
	locks          *lock.Manager
	orchestrator   *orchestrator.Orchestrator
	sweeper        *worker.Sweeper
	logger         zerolog.Logger
}

func newApplication(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*application, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database_url is not set")
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	app := &application{config: cfg, db: db, logger: logger}

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(app.registry)

	app.broadcaster = notification.NewBroadcaster(32)
	sinks := []notification.Notifier{app.broadcaster}
	if cfg.Redis.Address != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		sinks = append(sinks, notification.NewRedisNotifier(app.redis, cfg.Redis.ProgressChannel))
	}
	notifier := notification.NewService(logger, sinks...)

	app.jobs = jobs.NewService(repository.NewJobRepository(db), notifier, m, logger)
	app.locks = lock.NewManager(repository.NewLockRepository(db), cfg.Locks.DefaultTTL, logger, lock.WithMetrics(m))

	modelRepo := repository.NewProcessingModelRepository(sqlx.NewDb(db, "postgres"))
	configurator := reconlogic.NewConfigurator(modelRepo, reconlogic.NewDetector(cfg.Detection), logger)

	match, err := app.buildMatcher(logger)
	if err != nil {
		app.close()
		return nil, err
	}

	opts := []orchestrator.Option{orchestrator.WithMetrics(m)}
	if cfg.Orchestrator.Dispatch == "temporal" {
		c, err := tc.Dial(tc.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			Logger:    temporal.NewTemporalAdapter(logger),
		})
		if err != nil {
			app.close()
			return nil, errors.Wrap(err, "dial temporal")
		}
		app.temporalClient = c
		opts = append(opts, orchestrator.WithDispatcher(temporal.NewDispatcher(c, cfg.Temporal.TaskQueue, logger, temporal.WithJobFailer(app.jobs))))
	}

	app.orchestrator = orchestrator.New(cfg.Orchestrator,
		discovery.New(cfg.Discovery, logger),
		configurator, match, app.jobs, app.locks, logger, opts...)

	app.sweeper = worker.NewSweeper(worker.SweeperConfig{
		LockInterval:    cfg.Locks.SweepInterval,
		CleanupInterval: cfg.Jobs.CleanupInterval,
		Retention:       cfg.Jobs.Retention,
	}, app.locks, app.jobs, m, logger)
	return app, nil
}

func (app *application) buildMatcher(logger zerolog.Logger) (matcher.Matcher, error) {
	cfg := app.config.Matcher
	var inner matcher.Matcher = matcher.NewLocal()
	if cfg.Mode == "container" {
		cli, err := engine.NewDockerClient()
		if err != nil {
			return nil, err
		}
		inner = matcher.NewContainerMatcher(engine.NewClient(engine.NewDockerRunner(cli), cfg.EngineContainer, cfg.EngineBin, cfg.Timeout))
	}
	return matcher.NewBreakerMatcher(inner, cfg.MaxFailures, cfg.OpenTimeout, logger), nil
}

func (app *application) router() http.Handler {
	logger := app.logger
	router := routes.NewRouter(routes.Handlers{
		Health:          handlers.NewHealthHandler(app.db),
		Jobs:            handlers.NewJobHandler(app.jobs, logger),
		Locks:           handlers.NewLockHandler(app.locks, logger),
		Progress:        handlers.NewProgressHandler(app.broadcaster, app.jobs, logger),
		Reconciliations: handlers.NewReconciliationHandler(app.orchestrator, logger),
		Metrics:         app.registry,
	})
	loggedRouter := middleware.LoggingMiddleware(logger)(router)
	return h.RecoveryHandler(h.PrintRecoveryStack(true))(loggedRouter)
}

// serve runs the HTTP server, the local pool, the sweeper and, in temporal
// mode, the workflow worker until ctx is done.
func (app *application) serve(ctx context.Context) error {
	app.orchestrator.Start(ctx)

	var temporalWorker tworker.Worker
	if app.temporalClient != nil {
		temporalWorker = app.startTemporalWorker()
		if err := temporalWorker.Start(); err != nil {
			return errors.Wrap(err, "start temporal worker")
		}
	}

	server := &http.Server{
		Addr:              ":" + app.config.ServerPort,
		Handler:           app.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := app.sweeper.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			app.logger.Error().Err(err).Msg("HTTP server shutdown error")
		}
		return nil
	})

	err := g.Wait()

	if temporalWorker != nil {
		app.logger.Info().Msg("Stopping Temporal worker...")
		temporalWorker.Stop()
	}
	app.logger.Info().Msg("Draining reconciliation pool...")
	if stopErr := app.orchestrator.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	app.logger.Info().Msg("Application terminated.")
	return err
}

func (app *application) startTemporalWorker() tworker.Worker {
	w := tworker.New(app.temporalClient, app.config.Temporal.TaskQueue, tworker.Options{
		MaxConcurrentActivityExecutionSize: app.config.Orchestrator.PoolSize,
	})
	workflows.Register(w, &activities.Activities{
		Runner: app.orchestrator,
		Locks:  app.locks,
	})
	return w
}

func (app *application) close() {
	if app.temporalClient != nil {
		app.temporalClient.Close()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn().Err(err).Msg("closing redis client")
		}
	}
	if app.db != nil {
		app.db.Close()
	}
}
