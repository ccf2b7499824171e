package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/opsdesk-io/servicedesk/internal/classifier"
	"github.com/opsdesk-io/servicedesk/internal/config"
	"github.com/opsdesk-io/servicedesk/internal/events"
	"github.com/opsdesk-io/servicedesk/internal/notify"
	"github.com/opsdesk-io/servicedesk/internal/observability"
	"github.com/opsdesk-io/servicedesk/internal/persistence"
	"github.com/opsdesk-io/servicedesk/internal/repository"
	"github.com/opsdesk-io/servicedesk/internal/service"
	"github.com/opsdesk-io/servicedesk/internal/source"
	"github.com/opsdesk-io/servicedesk/internal/worker"
)

// runtime bundles everything a command needs after bootstrap.
type runtime struct {
	cfg        *config.Config
	logger     *zap.Logger
	pg         *persistence.Postgres
	redis      *persistence.Redis
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	teams      *service.TeamDirectory
	classifier *classifier.Classifier
	lifecycle  *service.LifecycleService
	ingestion  *service.IngestionService
	sla        *service.SlaService

	stopWorkers func()
}

// newRuntime loads config and wires stores, services, and event plumbing.
// Postgres and redis fall back to in-memory implementations when not
// configured, which is how the demo mode runs.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if pg.Configured() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)

	var (
		ticketRepo  repository.TicketRepository
		historyRepo repository.TicketHistoryRepository
	)
	if pg.Configured() {
		ticketRepo = repository.NewTicketRepository(pg.PoolHandle())
		historyRepo = repository.NewTicketHistoryRepository(pg.PoolHandle())
	} else {
		ticketRepo = repository.NewMemoryTicketRepository()
		historyRepo = repository.NewMemoryTicketHistoryRepository()
	}

	var deduper service.Deduper
	if redis.Configured() {
		deduper = persistence.NewRedisDeduper(redis, cfg.Ingest.DedupTTL())
	} else {
		deduper = persistence.NewMemoryDeduper()
	}

	dispatcher := events.NewInMemoryDispatcher(logger)

	var bridge *events.KafkaPublisher
	if cfg.Kafka.Enabled() {
		bridge, err = events.NewKafkaPublisher(events.KafkaPublisherConfig{
			Brokers: cfg.Kafka.BrokerList(),
			Topic:   cfg.Kafka.Topic,
		})
		if err != nil {
			redis.Close()
			pg.Close()
			return nil, fmt.Errorf("init kafka publisher: %w", err)
		}
		logger.Info("kafka event bridge enabled", zap.String("topic", cfg.Kafka.Topic))
	}

	rules := classifier.DefaultRules()
	if cfg.Rules.Path != "" {
		rules, err = classifier.LoadRules(cfg.Rules.Path)
		if err != nil {
			return nil, fmt.Errorf("load classification rules: %w", err)
		}
	}
	clf, err := classifier.New(rules)
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	teams := service.NewTeamDirectory(cfg.Teams)
	policy := cfg.SLA.Policy()

	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:  ticketRepo,
		HistoryRepo: historyRepo,
		Teams:       teams,
		Policy:      policy,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	var src service.Source
	if cfg.Ingest.Source == "graph" && cfg.Graph.Configured() {
		src = source.NewGraphSource(cfg.Graph, logger)
	} else {
		src = source.NewFileSource(cfg.Ingest.FilePath, logger)
	}

	ingestion := service.NewIngestionService(service.IngestionDependencies{
		Source:     src,
		Classifier: clf,
		Lifecycle:  lifecycle,
		Deduper:    deduper,
		Logger:     logger,
	})

	sla := service.NewSlaService(service.SlaDependencies{
		TicketRepo:  ticketRepo,
		HistoryRepo: historyRepo,
		Lifecycle:   lifecycle,
		Policy:      policy,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	var notifier notify.Notifier
	if cfg.SMTP.Enabled() {
		notifier = notify.NewSMTPNotifier(cfg.SMTP)
	} else {
		notifier = notify.NewLogNotifier(logger)
	}
	notifications := service.NewNotificationService(dispatcher, notifier, logger)
	stopWorkers := worker.StartEventWorkers(dispatcher, notifications, bridge)

	return &runtime{
		cfg:         cfg,
		logger:      logger,
		pg:          pg,
		redis:       redis,
		dispatcher:  dispatcher,
		metrics:     observability.NewMetrics(),
		teams:       teams,
		classifier:  clf,
		lifecycle:   lifecycle,
		ingestion:   ingestion,
		sla:         sla,
		stopWorkers: stopWorkers,
	}, nil
}

// close releases connections in reverse construction order.
func (r *runtime) close() {
	r.stopWorkers()
	r.redis.Close()
	r.pg.Close()
	_ = r.logger.Sync()
}
