// Package http is the REST adapter over the application services
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/application/readmodel"
	"github.com/ieeeucsd/dashboard-finance/internal/application/service"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/workflow"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/export"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64
	Mode           string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxUploadBytes: 10 << 20,
		Mode:           gin.ReleaseMode,
	}
}

// Dependencies are the services the API serves
type Dependencies struct {
	Reimbursements service.ReimbursementService
	Deposits       service.DepositService
	Attachments    service.AttachmentService
	Profiles       service.ProfileService
	ReadModel      *readmodel.ReadModel
	Policy         *workflow.RolePolicy
	Tokens         port.TokenVerifier
	Idempotency    port.IdempotencyStore
	Exporter       *export.WorkbookWriter
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	logger     Logger
}

// NewServer creates a new HTTP server over deps
func NewServer(config ServerConfig, deps Dependencies, logger Logger) *Server {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	router := gin.New()
	router.MaxMultipartMemory = config.MaxUploadBytes
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))

	s := &Server{
		config: config,
		router: router,
		logger: logger,
	}
	s.setupRoutes(deps)
	return s
}

func (s *Server) setupRoutes(deps Dependencies) {
	handlers := &Handlers{
		reimbursements: deps.Reimbursements,
		deposits:       deps.Deposits,
		attachments:    deps.Attachments,
		profiles:       deps.Profiles,
		policy:         deps.Policy,
		exporter:       deps.Exporter,
		logger:         s.logger,
	}

	var reimbursementView *readmodel.View[*entity.Reimbursement]
	var depositView *readmodel.View[*entity.Deposit]
	if deps.ReadModel != nil {
		reimbursementView = deps.ReadModel.Reimbursements
		depositView = deps.ReadModel.Deposits
	}

	reimbursements := &recordHandlers[*entity.Reimbursement]{
		kind:            entity.KindReimbursement,
		svc:             deps.Reimbursements,
		view:            reimbursementView,
		attachments:     deps.Attachments,
		policy:          deps.Policy,
		idempotency:     deps.Idempotency,
		defaultCategory: entity.AttachmentCategoryReceipt,
		maxUploadBytes:  s.config.MaxUploadBytes,
		newRecord:       func() *entity.Reimbursement { return &entity.Reimbursement{} },
		newInput:        func() recordInput[*entity.Reimbursement] { return &ReimbursementInput{} },
		logger:          s.logger,
	}
	deposits := &recordHandlers[*entity.Deposit]{
		kind:            entity.KindDeposit,
		svc:             deps.Deposits,
		view:            depositView,
		attachments:     deps.Attachments,
		policy:          deps.Policy,
		idempotency:     deps.Idempotency,
		defaultCategory: entity.AttachmentCategoryDepositProof,
		maxUploadBytes:  s.config.MaxUploadBytes,
		newRecord:       func() *entity.Deposit { return &entity.Deposit{} },
		newInput:        func() recordInput[*entity.Deposit] { return &DepositInput{} },
		logger:          s.logger,
	}

	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api/v1")
	api.Use(authMiddleware(deps.Tokens, deps.Profiles, s.logger))
	{
		api.GET("/me", handlers.Me)
		api.GET("/profiles", handlers.ListProfiles)
		api.PUT("/profiles/:userId", handlers.UpsertProfile)
		api.GET("/attachments/:id", handlers.DownloadAttachment)

		group := api.Group("/reimbursements")
		group.GET("/export", handlers.Export)
		reimbursements.register(group)

		deposits.register(api.Group("/deposits"))
	}
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
