package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	_ "makedeal/docs"
	"makedeal/internal/config"
	"makedeal/internal/handlers"
	"makedeal/internal/metrics"
	"makedeal/internal/models"
	"makedeal/internal/pdf"
	"makedeal/internal/realtime"
	"makedeal/internal/repositories"
	"makedeal/internal/routes"
	"makedeal/internal/services"
)

// App is the assembled pipeline service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB
	nc     *nats.Conn

	Metrics     *metrics.PipelineMetrics
	Catalog     *services.StageCatalog
	Pipeline    *services.PipelineService
	Transitions *services.StageTransitionService
	Hooks       *services.HookDispatcher
	Board       *realtime.BoardHub
	Router      *gin.Engine
}

type storage struct {
	deals  repositories.DealStageRepository
	stages repositories.StageRepository
	tasks  repositories.TaskRepository
}

// OpenDB connects to PostgreSQL and checks the connection.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// New wires every component described by cfg. Close releases what it opened.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger, Metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// === Storage ===
	store, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}
	stages, err := LoadStages(ctx, store.stages, cfg.Pipeline.Stages, logger)
	if err != nil {
		return nil, err
	}

	// === Services ===
	a.Catalog, err = services.NewStageCatalog(stages, store.stages, logger)
	if err != nil {
		return nil, err
	}
	states := services.NewDealStateService(store.deals, a.Catalog, nil)
	wip := services.NewWipTracker(store.deals, a.Catalog, a.Metrics, logger)
	a.Hooks = services.NewHookDispatcher(logger,
		services.WithAsyncHooks(cfg.Pipeline.AsyncHooks),
		services.WithHookTimeout(cfg.Pipeline.HookTimeout),
		services.WithHookMetrics(a.Metrics),
	)
	tasks := services.NewTaskService(store.tasks)
	a.Transitions = services.NewStageTransitionService(store.deals, a.Catalog, states, wip, a.Hooks, tasks, logger,
		services.WithProbabilityTolerance(cfg.Pipeline.ProbabilityTolerance),
		services.WithTransitionMetrics(a.Metrics),
	)
	a.Pipeline = services.NewPipelineService(store.deals, a.Catalog, states, wip)
	a.Board = realtime.NewBoardHub(logger)

	if err := a.registerHooks(ctx, tasks); err != nil {
		return nil, err
	}
	if _, err := wip.Snapshot(ctx); err != nil {
		logger.Warn("initial occupancy snapshot failed", "error", err)
	}

	// === Gin ===
	a.Router = gin.New()
	a.Router.Use(gin.Recovery())
	a.Router.Use(requestLogger(logger))
	a.Router.Use(corsMiddleware())

	routes.SetupRoutes(
		a.Router,
		[]byte(cfg.Auth.JWTSecret),
		a.Metrics,
		handlers.NewPipelineHandler(a.Pipeline, a.Transitions, a.Catalog,
			pdf.NewReportGenerator(cfg.Files.RootDir, cfg.Files.FontPath), a.Board, logger),
		handlers.NewStageHandler(a.Catalog, logger),
		handlers.NewTaskHandler(tasks, logger),
	)
	return a, nil
}

func (a *App) openStorage(ctx context.Context) (storage, error) {
	if a.cfg.Storage.Driver != "postgres" {
		mem := repositories.NewMemoryStore()
		a.logger.Warn("using in-memory storage; data is lost on restart")
		return storage{deals: mem, stages: mem, tasks: repositories.NewMemoryTaskRepository()}, nil
	}
	db, err := OpenDB(ctx, a.cfg.Database.DSN)
	if err != nil {
		return storage{}, err
	}
	a.db = db
	if err := repositories.Migrate(ctx, db); err != nil {
		return storage{}, err
	}
	return storage{
		deals:  repositories.NewDealStageRepository(db),
		stages: repositories.NewStageRepository(db),
		tasks:  repositories.NewTaskRepository(db),
	}, nil
}

// LoadStages returns the persisted catalog, seeding it from seed when the
// store holds no stages yet.
func LoadStages(ctx context.Context, store repositories.StageRepository, seed []models.StageDefinition, logger *slog.Logger) ([]models.StageDefinition, error) {
	stages, err := store.ListStages(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stage catalog: %w", err)
	}
	if len(stages) > 0 {
		return stages, nil
	}
	for _, s := range seed {
		if err := store.SaveStage(ctx, s); err != nil {
			return nil, fmt.Errorf("seed stage catalog: %w", err)
		}
	}
	logger.Info("stage catalog seeded", "stages", len(seed))
	return seed, nil
}

// registerHooks attaches the built-in automations. Integrations without
// configuration are skipped.
func (a *App) registerHooks(ctx context.Context, tasks services.TaskService) error {
	cfg := a.cfg
	a.Hooks.RegisterHook(services.WildcardStage, services.HookStageTasks, services.StageTaskHook(a.Catalog, tasks))
	a.Hooks.RegisterHook(services.WildcardStage, services.HookMetrics, services.MetricsHook(a.Metrics))
	a.Hooks.RegisterHook(services.WildcardStage, services.HookBoardBroadcast, services.BoardHook(a.Board))

	if cfg.NATS.URL != "" {
		publisher, err := a.connectNATS(ctx)
		if err != nil {
			return err
		}
		a.Hooks.RegisterHook(services.WildcardStage, services.HookPublishEvent, services.EventHook(publisher))
	}

	if n := a.notifiers(); len(n) > 0 {
		a.Hooks.RegisterHook(services.WildcardStage, services.HookNotify, services.NotificationHook(a.Catalog, n))
	}
	return nil
}

// notifiers returns one notifier per configured channel.
func (a *App) notifiers() services.MultiNotifier {
	cfg := a.cfg
	var out services.MultiNotifier
	if cfg.Email.Enabled() {
		out = append(out, services.NewEmailNotifier(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPUser,
			cfg.Email.SMTPPassword, cfg.Email.FromEmail, cfg.Email.Recipients))
	}
	if cfg.Telegram.Enabled() {
		n, err := services.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, a.logger)
		if err != nil {
			a.logger.Warn("telegram notifications disabled", "error", err)
		} else {
			out = append(out, n)
		}
	}
	return out
}

func (a *App) connectNATS(ctx context.Context) (*services.EventPublisher, error) {
	nc, err := nats.Connect(a.cfg.NATS.URL, nats.Name("dealpipeline"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	a.nc = nc
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	publisher := services.NewEventPublisher(js, a.cfg.NATS.SubjectPrefix)
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     a.cfg.NATS.Stream,
		Subjects: []string{publisher.Subject(">")},
	})
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", a.cfg.NATS.Stream, err)
	}
	a.logger.Info("publishing transitions to nats", "stream", a.cfg.NATS.Stream, "subjects", publisher.Subject(">"))
	return publisher, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests
// and pending hooks.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down")
		a.Board.Close()
		err := srv.Shutdown(shutdownCtx)
		a.Hooks.Wait()
		return err
	})
	return g.Wait()
}

func (a *App) Close() error {
	var errs []error
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
