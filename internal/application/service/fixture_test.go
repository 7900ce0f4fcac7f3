package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ieeeucsd/dashboard-finance/internal/application/dispatcher"
	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/event"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/workflow"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/persistence/repository"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/persistence/sqlite"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/storage"
	"github.com/ieeeucsd/dashboard-finance/pkg/database"
)

var (
	member    = entity.Actor{UserID: "member-1", DisplayName: "Member One", Role: entity.RoleMember}
	member2   = entity.Actor{UserID: "member-2", DisplayName: "Member Two", Role: entity.RoleMember}
	treasurer = entity.Actor{UserID: "exec-1", DisplayName: "Treasurer", Role: entity.RoleExecutiveOfficer}
	chair     = entity.Actor{UserID: "exec-2", DisplayName: "Chair", Role: entity.RoleExecutiveOfficer}
	admin     = entity.Actor{UserID: "admin-1", DisplayName: "Admin", Role: entity.RoleAdministrator}
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// eventRecorder collects dispatched events
type eventRecorder struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *eventRecorder) handle(ctx context.Context, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *eventRecorder) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	db             *sqlite.DB
	storage        *storage.LocalFileStorage
	reimbRepo      port.ReimbursementRepository
	depositRepo    port.DepositRepository
	auditRepo      port.AuditLogRepository
	attachmentRepo port.AttachmentRepository
	profileRepo    port.ProfileRepository
	dispatcher     dispatcher.Dispatcher
	events         *eventRecorder
	reimbursements ReimbursementService
	deposits       DepositService
	attachments    AttachmentService
	profiles       ProfileService
	migration      FileMigrationService
	sources        map[entity.Kind]RecordSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	zl := zap.NewNop()

	raw, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "service.db"), MaxOpenConns: 4}, zl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	_, err = database.NewMigrator(raw, zl).RunMigrations(database.EmbeddedMigrations())
	require.NoError(t, err)

	f := &fixture{
		db:      sqlite.NewDB(raw.DB, zl),
		storage: storage.NewLocalFileStorage(t.TempDir(), "/files", zl),
		events:  &eventRecorder{},
	}
	f.reimbRepo = repository.NewReimbursementRepository(raw.DB, zl)
	f.depositRepo = repository.NewDepositRepository(raw.DB, zl)
	f.auditRepo = repository.NewAuditLogRepository(raw.DB, zl)
	f.attachmentRepo = repository.NewAttachmentRepository(raw.DB, zl)
	f.profileRepo = repository.NewProfileRepository(raw.DB, zl)

	f.dispatcher = dispatcher.NewDispatcher()
	f.dispatcher.SubscribeAll("recorder", f.events.handle)

	policy := workflow.DefaultRolePolicy()
	reimbTable := workflow.ReimbursementTable(policy)
	depositTable := workflow.DepositTable(policy)
	logger := &mockLogger{}

	f.reimbursements = NewRecordService[*entity.Reimbursement](reimbTable, f.reimbRepo, f.auditRepo, f.attachmentRepo, f.storage, f.db, f.dispatcher, logger)
	f.deposits = NewRecordService[*entity.Deposit](depositTable, f.depositRepo, f.auditRepo, f.attachmentRepo, f.storage, f.db, f.dispatcher, logger)
	f.sources = map[entity.Kind]RecordSource{
		entity.KindReimbursement: {Table: reimbTable, Lookup: LookupFrom[*entity.Reimbursement](f.reimbRepo)},
		entity.KindDeposit:       {Table: depositTable, Lookup: LookupFrom[*entity.Deposit](f.depositRepo)},
	}
	f.attachments = NewAttachmentService(f.sources, f.attachmentRepo, f.auditRepo, f.storage, f.db, f.dispatcher, 1<<20, logger)
	f.profiles = NewProfileService(f.profileRepo, policy, logger)
	f.migration = NewFileMigrationService(f.attachmentRepo, f.storage, f.db, logger)
	return f
}

// drain waits for async event handlers
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, f.dispatcher.Close())
}

func newLunch() *entity.Reimbursement {
	return &entity.Reimbursement{
		Title:          "Lunch",
		Amount:         decimal.RequireFromString("42.50"),
		Department:     entity.DepartmentEvents,
		PaymentMethod:  "venmo",
		DateOfPurchase: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		LineItems: []entity.LineItem{
			{Description: "Sandwiches", Category: entity.CategoryFood, Amount: decimal.RequireFromString("42.50")},
		},
	}
}

func newDeposit() *entity.Deposit {
	return &entity.Deposit{
		Title:         "Bake sale",
		Amount:        decimal.RequireFromString("120.00"),
		DepositDate:   time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC),
		DepositMethod: entity.DepositMethodCash,
		Purpose:       "Fundraiser proceeds",
	}
}
