package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ieeeucsd/dashboard-finance/internal/application/dispatcher"
	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/application/readmodel"
	"github.com/ieeeucsd/dashboard-finance/internal/config"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/workflow"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/auth"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/export"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/idempotency"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/storage"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/worker"
	httpapi "github.com/ieeeucsd/dashboard-finance/internal/interfaces/http"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// Build creates the components; Start additionally loads the read model,
// attaches event subscribers and starts the background workers.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure - Data
	db           *DatabaseBundle
	repositories *RepositoryBundle
	fileStorage  port.FileStorage
	keys         *idempotency.BoltStore
	tokens       *auth.TokenService

	// Application
	policy     *workflow.RolePolicy
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle
	readModel  *readmodel.ReadModel

	// Workers
	workers *worker.Manager

	// Lifecycle. resources are closed in reverse order of acquisition after
	// the workers stop and the dispatcher drains.
	resources []resource
	mu        sync.Mutex
	built  atomic.Bool
	ready  atomic.Bool
	closed atomic.Bool
}

type resource struct {
	name  string
	close func() error
}

func (c *Container) acquired(name string, close func() error) {
	c.resources = append(c.resources, resource{name: name, close: close})
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Build or Start.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Build initializes components in dependency order:
// 1. Database, migrations and repositories
// 2. Blob storage, idempotency keys and tokens
// 3. Role policy, dispatcher and application services
func (c *Container) Build() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.build()
}

func (c *Container) build() error {
	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.built.Load() {
		return nil
	}

	db, err := ProvideDatabase(databaseConfig(c.config), c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.db = db
	c.acquired("database", db.Conn.Close)
	c.repositories = ProvideRepositories(db.Conn, c.logger)
	c.logger.Info("Database initialized")

	c.fileStorage = storage.NewLocalFileStorage(c.config.Storage.BaseDir, c.config.Storage.BaseURL, c.logger)

	keys, err := idempotency.NewBoltStore(c.config.Idempotency.Path, c.config.Idempotency.TTL, c.logger)
	if err != nil {
		return fmt.Errorf("failed to open idempotency store: %w", err)
	}
	c.keys = keys
	c.acquired("idempotency store", keys.Close)

	tokens, err := auth.NewTokenService(c.config.Auth.JWTSecret, c.config.Auth.Issuer, c.config.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}
	c.tokens = tokens
	c.logger.Info("Storage initialized")

	policy, err := ProvidePolicy(c.config.Roles, c.logger)
	if err != nil {
		return fmt.Errorf("failed to load role policy: %w", err)
	}
	c.policy = policy
	c.dispatcher = ProvideDispatcher(c.logger)

	services, err := ProvideServices(&ServiceDeps{
		Repos:          c.repositories,
		Storage:        c.fileStorage,
		TxManager:      db.TransactionMgr,
		Dispatcher:     c.dispatcher,
		Policy:         policy,
		MaxUploadBytes: serverConfig(c.config).MaxUploadBytes,
		Logger:         c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.services = services
	c.logger.Info("Application services initialized")

	c.built.Store(true)
	return nil
}

// Start builds the container if needed, then:
// 4. Loads the read model and subscribes it to change events
// 5. Attaches the email notifier and the optional Redis publisher
// 6. Starts the background workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}
	if err := c.build(); err != nil {
		return err
	}

	rm, err := ProvideReadModel(ctx, c.repositories, c.dispatcher, c.logger)
	if err != nil {
		return err
	}
	c.readModel = rm
	c.logger.Info("Read model loaded",
		zap.Int("reimbursements", rm.Reimbursements.Len()),
		zap.Int("deposits", rm.Deposits.Len()))

	ProvideNotifier(c.config.Notify, c.dispatcher, c.logger)
	closeRedis, err := ProvidePublisher(ctx, c.config.Redis, c.dispatcher, c.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	if closeRedis != nil {
		c.acquired("redis", closeRedis)
	}

	c.workers = ProvideWorkers(&WorkerDeps{
		Storage:     c.config.Storage,
		Idempotency: c.config.Idempotency,
		Attachments: c.repositories.Attachment,
		FileStorage: c.fileStorage,
		Keys:        c.keys,
		Logger:      c.logger,
	})
	if err := c.workers.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	c.logger.Info("Workers started", zap.Int("count", c.workers.Count()))

	c.ready.Store(true)
	c.logger.Info("Container started")
	return nil
}

// Server creates the HTTP API over the started container.
func (c *Container) Server() (*httpapi.Server, error) {
	if !c.ready.Load() {
		return nil, fmt.Errorf("container not started")
	}
	return httpapi.NewServer(serverConfig(c.config), httpapi.Dependencies{
		Reimbursements: c.services.Reimbursements,
		Deposits:       c.services.Deposits,
		Attachments:    c.services.Attachments,
		Profiles:       c.services.Profiles,
		ReadModel:      c.readModel,
		Policy:         c.policy,
		Tokens:         c.tokens,
		Idempotency:    c.keys,
		Exporter:       export.NewWorkbookWriter(c.logger),
	}, &zapLoggerAdapter{logger: c.logger.Named("http")}), nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	var errs []error
	fail := func(what string, err error) {
		c.logger.Error("Shutdown step failed", zap.String("component", what), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", what, err))
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			fail("workers", err)
		}
	}
	// In-flight async handlers still use redis and the store.
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			fail("dispatcher", err)
		}
	}
	for i := len(c.resources) - 1; i >= 0; i-- {
		if err := c.resources[i].close(); err != nil {
			fail(c.resources[i].name, err)
		}
	}
	c.resources = nil

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		return fmt.Errorf("container closed with errors: %w", errors.Join(errs...))
	}
	c.logger.Info("Container closed")
	return nil
}

// Ready returns true when all components are started.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	switch {
	case c.db == nil:
		set("database", false, "not initialized")
	default:
		if err := c.db.Conn.Ping(); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	}

	if c.workers == nil {
		set("workers", false, "not initialized")
	} else {
		running := c.workers.Running()
		set("workers", len(running) == c.workers.Count(), fmt.Sprintf("running: %v", running))
	}

	if c.readModel == nil {
		set("readmodel", false, "not initialized")
	} else {
		set("readmodel", true, fmt.Sprintf("records: %d", c.readModel.Reimbursements.Len()+c.readModel.Deposits.Len()))
	}

	return status
}

// Services returns the application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Repositories returns the repository bundle.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Tokens returns the token service.
func (c *Container) Tokens() *auth.TokenService {
	return c.tokens
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// ReadModel returns the read model, nil before Start.
func (c *Container) ReadModel() *readmodel.ReadModel {
	return c.readModel
}

// Logger returns the container logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// zapLoggerAdapter adapts zap.Logger to the key/value Logger interfaces of
// the service, dispatcher, read model and HTTP packages.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
