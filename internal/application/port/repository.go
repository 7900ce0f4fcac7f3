package port

import (
	"context"
	"errors"

	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
)

var (
	// ErrNotFound is returned when a record, profile or attachment does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional write finds the record in a
	// different status than the caller expected
	ErrConflict = errors.New("conflict: record was modified concurrently")
)

// RecordRepository defines persistence operations shared by reimbursements
// and deposits. Audit log and attachments are loaded by their own repositories.
type RecordRepository[T entity.Record] interface {
	// Create assigns the record ID and store timestamps
	Create(ctx context.Context, rec T) error

	// GetByID returns ErrNotFound when the record does not exist
	GetByID(ctx context.Context, id string) (T, error)

	// List returns all records ordered by creation time, newest first
	List(ctx context.Context) ([]T, error)

	// Update writes every mutable column of rec, including its status, only if
	// the stored status still equals expected. Returns ErrConflict otherwise.
	Update(ctx context.Context, rec T, expected entity.Status) error

	// Delete removes the record and its owned rows
	Delete(ctx context.Context, id string) error
}

// ReimbursementRepository persists reimbursements with their line items
type ReimbursementRepository = RecordRepository[*entity.Reimbursement]

// DepositRepository persists fund deposits
type DepositRepository = RecordRepository[*entity.Deposit]

// AuditLogRepository is the append-only store of record history
type AuditLogRepository interface {
	// Append assigns Seq and Timestamp from the store
	Append(ctx context.Context, entry *entity.AuditLogEntry) error

	// ListByRecord returns entries in append order
	ListByRecord(ctx context.Context, kind entity.Kind, recordID string) ([]entity.AuditLogEntry, error)

	// DeleteByRecord removes the history of a deleted record
	DeleteByRecord(ctx context.Context, kind entity.Kind, recordID string) error
}

// AttachmentRepository defines persistence operations for Attachment
type AttachmentRepository interface {
	Create(ctx context.Context, att *entity.Attachment) error
	GetByID(ctx context.Context, id string) (*entity.Attachment, error)
	ListByRecord(ctx context.Context, kind entity.Kind, recordID string) ([]entity.Attachment, error)
	ListAll(ctx context.Context) ([]entity.Attachment, error)
	UpdatePath(ctx context.Context, id, path, url string) error
	DeleteByRecord(ctx context.Context, kind entity.Kind, recordID string) error
}

// ProfileRepository defines persistence operations for user profiles
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*entity.Profile, error)
	Upsert(ctx context.Context, profile *entity.Profile) error
	List(ctx context.Context) ([]*entity.Profile, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
