// -----------------------------------------------------------------------
// Application wiring - dependency construction and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/pagesmith/internal/common"
	"github.com/ternarybob/pagesmith/internal/handlers"
	"github.com/ternarybob/pagesmith/internal/interfaces"
	"github.com/ternarybob/pagesmith/internal/queue"
	"github.com/ternarybob/pagesmith/internal/services/llm"
	"github.com/ternarybob/pagesmith/internal/services/preview"
	"github.com/ternarybob/pagesmith/internal/services/telegram"
	"github.com/ternarybob/pagesmith/internal/services/worker"
	storage "github.com/ternarybob/pagesmith/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Queue
	QueueManager *queue.Manager
	WorkerPool   *queue.WorkerPool

	// Generation pipeline
	Generator   llm.Generator
	Sanitizer   *preview.Sanitizer
	BundleStore *preview.BundleStore
	Cleanup     *preview.CleanupService
	Processor   *worker.Processor
	StaleSweep  *worker.StaleJobSweeper

	// Telegram
	TelegramClient *telegram.Client
	Notifier       *telegram.Notifier

	// HTTP handlers
	WebhookHandler *handlers.WebhookHandler
	JobHandler     *handlers.JobHandler
	PreviewHandler *handlers.PreviewHandler
	StatusHandler  *handlers.StatusHandler
}

// New initializes the application with all dependencies.
// Construction order matters: storage first, then queue, then the
// pipeline services, then the worker pool consuming all of them.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initQueue(); err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	if err := app.start(); err != nil {
		return nil, fmt.Errorf("failed to start background services: %w", err)
	}

	logger.Info().Msg("Application initialization complete")
	return app, nil
}

func (a *App) initStorage() error {
	storageManager, err := storage.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

func (a *App) initQueue() error {
	// The queue shares the storage manager's Badger instance
	badgerStore, ok := a.StorageManager.DB().(*badgerhold.Store)
	if !ok {
		return fmt.Errorf("storage manager is not backed by BadgerDB (got %T)", a.StorageManager.DB())
	}

	queueMgr, err := queue.NewManager(
		badgerStore.Badger(),
		a.Config.Queue.QueueName,
		common.ParseDurationOr(a.Config.Queue.VisibilityTimeout, queue.NewDefaultConfig().VisibilityTimeout),
		a.Config.Queue.MaxReceive,
		a.Logger,
	)
	if err != nil {
		return err
	}

	a.QueueManager = queueMgr
	a.Logger.Debug().Str("queue_name", a.Config.Queue.QueueName).Msg("Queue manager initialized")
	return nil
}

func (a *App) initServices() error {
	a.Generator = llm.NewService(&a.Config.Gemini, &a.Config.Claude, &a.Config.LLM, a.Logger)
	a.Logger.Debug().
		Str("provider", string(a.Generator.Provider())).
		Msg("Generation service initialized")

	a.Sanitizer = preview.NewSanitizer()
	a.BundleStore = preview.NewBundleStore(a.Config.Preview.Path, a.Logger)
	a.Cleanup = preview.NewCleanupService(
		a.BundleStore,
		a.Config.Preview.CleanupSchedule,
		common.ParseDurationOr(a.Config.Preview.Retention, 168*time.Hour),
		a.Logger,
	)

	a.TelegramClient = telegram.NewClient(&a.Config.Telegram, a.Logger)
	a.Notifier = telegram.NewNotifier(a.TelegramClient, a.Config.Preview.BaseURL, a.Logger)

	policy := worker.RetryPolicy{
		MaxRetries: a.Config.Worker.MaxRetries,
		BaseDelay:  common.ParseDurationOr(a.Config.Worker.RetryBaseDelay, 5*time.Second),
		MaxDelay:   common.ParseDurationOr(a.Config.Worker.RetryMaxDelay, 5*time.Minute),
	}
	a.Processor = worker.NewProcessor(
		a.StorageManager.JobStorage(),
		a.QueueManager,
		a.Generator,
		a.Sanitizer,
		a.BundleStore,
		a.Notifier,
		policy,
		a.Logger,
	)

	queueCfg := queue.NewDefaultConfig()
	queueCfg.PollInterval = common.ParseDurationOr(a.Config.Queue.PollInterval, queueCfg.PollInterval)
	queueCfg.Concurrency = a.Config.Queue.Concurrency
	queueCfg.QueueName = a.Config.Queue.QueueName
	a.WorkerPool = queue.NewWorkerPool(a.QueueManager, queueCfg, a.Logger)
	a.WorkerPool.RegisterHandler(a.Processor.Handle)

	a.StaleSweep = worker.NewStaleJobSweeper(
		a.StorageManager.JobStorage(),
		common.ParseDurationOr(a.Config.Worker.StaleJobThreshold, 10*time.Minute),
		common.ParseDurationOr(a.Config.Worker.StaleJobInterval, time.Minute),
		a.Logger,
	)

	return nil
}

func (a *App) initHandlers() {
	a.WebhookHandler = handlers.NewWebhookHandler(
		a.Config.Telegram.SecretToken,
		a.StorageManager.EventStorage(),
		a.StorageManager.JobStorage(),
		a.QueueManager,
		a.Notifier,
		a.Logger,
	)
	a.JobHandler = handlers.NewJobHandler(a.StorageManager.JobStorage(), a.Logger)
	a.PreviewHandler = handlers.NewPreviewHandler(a.BundleStore, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(
		a.StorageManager.JobStorage(),
		a.StorageManager.EventStorage(),
		a.QueueManager,
		a.Logger,
	)
}

func (a *App) start() error {
	a.Notifier.Start()

	if err := a.WorkerPool.Start(); err != nil {
		return err
	}

	a.StaleSweep.Start()

	if err := a.Cleanup.Start(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to start bundle cleanup")
	}

	return nil
}

// Close shuts down all components in reverse dependency order
func (a *App) Close() error {
	a.Cleanup.Stop()
	a.StaleSweep.Stop()

	if err := a.WorkerPool.Stop(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to stop worker pool")
	}

	// Drain pending notifications before closing outbound clients
	a.Notifier.Stop()

	if err := a.Generator.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close generation service")
	}

	if err := a.QueueManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close queue manager")
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
