// Package container wires the finance service's components and owns their
// lifecycle.
package container

import (
	"context"
	"fmt"
	"time"

	"github.com/ieeeucsd/dashboard-finance/internal/application/dispatcher"
	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/application/readmodel"
	"github.com/ieeeucsd/dashboard-finance/internal/application/service"
	"github.com/ieeeucsd/dashboard-finance/internal/config"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/workflow"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/notify"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/persistence/repository"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/persistence/sqlite"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/pubsub"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/worker"
	"github.com/ieeeucsd/dashboard-finance/pkg/database"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Reimbursement port.ReimbursementRepository
	Deposit       port.DepositRepository
	AuditLog      port.AuditLogRepository
	Attachment    port.AttachmentRepository
	Profile       port.ProfileRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Reimbursements service.ReimbursementService
	Deposits       service.DepositService
	Attachments    service.AttachmentService
	Profiles       service.ProfileService
	FileMigration  service.FileMigrationService
}

// ProvideDatabase opens the database and applies pending embedded migrations.
func ProvideDatabase(cfg database.Config, logger *zap.Logger) (*DatabaseBundle, error) {
	conn, err := database.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	if _, err := database.NewMigrator(conn, logger).RunMigrations(database.EmbeddedMigrations()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories over one connection.
func ProvideRepositories(conn *database.DB, logger *zap.Logger) *RepositoryBundle {
	return &RepositoryBundle{
		Reimbursement: repository.NewReimbursementRepository(conn.DB, logger),
		Deposit:       repository.NewDepositRepository(conn.DB, logger),
		AuditLog:      repository.NewAuditLogRepository(conn.DB, logger),
		Attachment:    repository.NewAttachmentRepository(conn.DB, logger),
		Profile:       repository.NewProfileRepository(conn.DB, logger),
	}
}

// ProvidePolicy loads the reviewer role policy, or the default when no file
// is configured.
func ProvidePolicy(cfg config.RolesConfig, logger *zap.Logger) (*workflow.RolePolicy, error) {
	if cfg.PolicyPath == "" {
		return workflow.DefaultRolePolicy(), nil
	}
	policy, err := workflow.LoadRolePolicy(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded role policy", zap.String("path", cfg.PolicyPath))
	return policy, nil
}

// handlerTimeout bounds one event handler, e.g. a read model reload or the
// email webhook
const handlerTimeout = 30 * time.Second

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger.Named("dispatcher")}),
		dispatcher.WithHandlerTimeout(handlerTimeout),
	)
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos          *RepositoryBundle
	Storage        port.FileStorage
	TxManager      port.TransactionManager
	Dispatcher     dispatcher.Dispatcher
	Policy         *workflow.RolePolicy
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// ProvideServices creates the record, attachment, profile and file
// migration services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	logger := &zapLoggerAdapter{logger: deps.Logger.Named("service")}
	repos := deps.Repos

	reimbTable := workflow.ReimbursementTable(deps.Policy)
	depositTable := workflow.DepositTable(deps.Policy)

	sources := map[entity.Kind]service.RecordSource{
		entity.KindReimbursement: {Table: reimbTable, Lookup: service.LookupFrom[*entity.Reimbursement](repos.Reimbursement)},
		entity.KindDeposit:       {Table: depositTable, Lookup: service.LookupFrom[*entity.Deposit](repos.Deposit)},
	}

	return &ServiceBundle{
		Reimbursements: service.NewRecordService[*entity.Reimbursement](
			reimbTable, repos.Reimbursement, repos.AuditLog, repos.Attachment,
			deps.Storage, deps.TxManager, deps.Dispatcher, logger,
		),
		Deposits: service.NewRecordService[*entity.Deposit](
			depositTable, repos.Deposit, repos.AuditLog, repos.Attachment,
			deps.Storage, deps.TxManager, deps.Dispatcher, logger,
		),
		Attachments: service.NewAttachmentService(
			sources, repos.Attachment, repos.AuditLog,
			deps.Storage, deps.TxManager, deps.Dispatcher, deps.MaxUploadBytes, logger,
		),
		Profiles:      service.NewProfileService(repos.Profile, deps.Policy, logger),
		FileMigration: service.NewFileMigrationService(repos.Attachment, deps.Storage, deps.TxManager, logger),
	}, nil
}

// ProvideReadModel creates the read model, loads it from the store and
// subscribes it to change events.
func ProvideReadModel(ctx context.Context, repos *RepositoryBundle, d dispatcher.Dispatcher, logger *zap.Logger) (*readmodel.ReadModel, error) {
	rm := readmodel.New(repos.Reimbursement, repos.Deposit, &zapLoggerAdapter{logger: logger.Named("readmodel")})
	if err := rm.Rebuild(ctx); err != nil {
		return nil, fmt.Errorf("failed to rebuild read model: %w", err)
	}
	rm.Register(d)
	return rm, nil
}

// ProvideNotifier subscribes the email notifier. With no endpoint configured
// notifications are dropped.
func ProvideNotifier(cfg config.NotifyConfig, d dispatcher.Dispatcher, logger *zap.Logger) {
	var notifier port.Notifier = notify.NoopNotifier{}
	if cfg.Endpoint != "" {
		notifier = notify.NewWebhookNotifier(cfg.Endpoint, cfg.Timeout, logger)
	} else {
		logger.Info("Email notification endpoint not configured, notifications disabled")
	}
	notify.NewSubscriber(notifier, logger).Register(d)
}

// ProvidePublisher connects to Redis and fans change events out to it.
// It returns nil when Redis is not configured.
func ProvidePublisher(ctx context.Context, cfg config.RedisConfig, d dispatcher.Dispatcher, logger *zap.Logger) (closer func() error, err error) {
	if cfg.URL == "" {
		return nil, nil
	}
	client, err := pubsub.Connect(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	pubsub.NewRedisPublisher(client, cfg.Channel, logger).Register(d)
	logger.Info("Publishing change events to Redis", zap.String("channel", cfg.Channel))
	return client.Close, nil
}

// WorkerDeps holds dependencies required for creating background workers.
type WorkerDeps struct {
	Storage     config.StorageConfig
	Idempotency config.IdempotencyConfig
	Attachments port.AttachmentRepository
	FileStorage port.FileStorage
	Keys        interface {
		Prune(ctx context.Context) (int, error)
	}
	Logger *zap.Logger
}

// ProvideWorkers registers the orphan blob sweeper and the idempotency key
// pruner. A non-positive interval disables the corresponding worker.
func ProvideWorkers(deps *WorkerDeps) *worker.Manager {
	manager := worker.NewManager(deps.Logger)

	if deps.Storage.SweepInterval > 0 {
		sweeper := worker.NewOrphanSweeper(deps.Attachments, deps.FileStorage, deps.Storage.OrphanGrace, deps.Logger)
		manager.Register(worker.NewPeriodicWorker("orphan-sweeper", deps.Storage.SweepInterval, sweeper.Task(), deps.Logger))
	}

	if deps.Idempotency.PruneInterval > 0 && deps.Keys != nil {
		keys := deps.Keys
		manager.Register(worker.NewPeriodicWorker("idempotency-pruner", deps.Idempotency.PruneInterval, func(ctx context.Context) error {
			_, err := keys.Prune(ctx)
			return err
		}, deps.Logger))
	}

	return manager
}
