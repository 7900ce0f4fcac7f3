package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ieeeucsd/dashboard-finance/internal/application/dispatcher"
	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/event"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/workflow"
)

// TransitionRequest asks for a status change. ExpectedStatus, when set, is
// the status the caller last saw; the change is rejected with
// port.ErrConflict if the record has moved on since.
type TransitionRequest struct {
	To             entity.Status `json:"to" binding:"required"`
	ExpectedStatus entity.Status `json:"expected_status,omitempty"`
	Note           string        `json:"note,omitempty"`
}

// RecordService manages the lifecycle of one record kind
type RecordService[T entity.Record] interface {
	Kind() entity.Kind
	Submit(ctx context.Context, actor entity.Actor, rec T) (T, error)
	Get(ctx context.Context, actor entity.Actor, id string) (T, error)
	List(ctx context.Context, actor entity.Actor) ([]T, error)
	Transition(ctx context.Context, actor entity.Actor, id string, req TransitionRequest) (T, error)
	Edit(ctx context.Context, actor entity.Actor, id string, expected entity.Status, mutate func(T) error) (T, error)
	Delete(ctx context.Context, actor entity.Actor, id string) error
	Allowed(ctx context.Context, actor entity.Actor, id string) ([]entity.Status, error)
}

// ReimbursementService is the RecordService for reimbursements
type ReimbursementService = RecordService[*entity.Reimbursement]

// DepositService is the RecordService for deposits
type DepositService = RecordService[*entity.Deposit]

type recordServiceImpl[T entity.Record] struct {
	table          *workflow.Table
	repo           port.RecordRepository[T]
	auditRepo      port.AuditLogRepository
	attachmentRepo port.AttachmentRepository
	storage        port.FileStorage
	txManager      port.TransactionManager
	dispatcher     dispatcher.Dispatcher
	logger         Logger
}

// NewRecordService creates a RecordService governed by table
func NewRecordService[T entity.Record](
	table *workflow.Table,
	repo port.RecordRepository[T],
	auditRepo port.AuditLogRepository,
	attachmentRepo port.AttachmentRepository,
	storage port.FileStorage,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger Logger,
) RecordService[T] {
	return &recordServiceImpl[T]{
		table:          table,
		repo:           repo,
		auditRepo:      auditRepo,
		attachmentRepo: attachmentRepo,
		storage:        storage,
		txManager:      txManager,
		dispatcher:     d,
		logger:         logger,
	}
}

// Kind returns the record kind this service manages
func (s *recordServiceImpl[T]) Kind() entity.Kind {
	return s.table.Kind()
}

// Submit creates a record in its initial status together with its
// "created" audit entry
func (s *recordServiceImpl[T]) Submit(ctx context.Context, actor entity.Actor, rec T) (T, error) {
	var zero T

	rec.SetStatus(s.table.Initial())
	rec.SetSubmitter(actor)
	if err := rec.Validate(); err != nil {
		return zero, err
	}

	var entry *entity.AuditLogEntry
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, rec); err != nil {
			return fmt.Errorf("create %s: %w", s.Kind(), err)
		}
		entry = entity.NewAuditEntry(rec, entity.ActionCreated, actor, "", nil)
		if err := s.auditRepo.Append(txCtx, entry); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logFailure("Failed to submit record", err, "kind", s.Kind(), "actor", actor.UserID)
		return zero, err
	}

	rec.SetAuditLog([]entity.AuditLogEntry{*entry})
	rec.SetAttachments([]entity.Attachment{})

	s.logger.Info("Record submitted", "kind", s.Kind(), "id", rec.RecordID(), "actor", actor.UserID)
	publish(ctx, s.dispatcher, event.NewEvent(event.TypeRecordCreated, s.Kind(), rec.RecordID(), actor.UserID, nil))
	return rec, nil
}

// Get returns the record with its attachments and audit log
func (s *recordServiceImpl[T]) Get(ctx context.Context, actor entity.Actor, id string) (T, error) {
	var zero T

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return zero, err
	}
	if err := s.table.CheckRead(actor.Role, rec.SubmitterID() == actor.UserID); err != nil {
		return zero, err
	}
	if err := s.hydrate(ctx, rec); err != nil {
		return zero, err
	}
	return rec, nil
}

// List returns the records visible to actor, without logs
func (s *recordServiceImpl[T]) List(ctx context.Context, actor entity.Actor) ([]T, error) {
	recs, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list records", "kind", s.Kind(), "error", err)
		return nil, err
	}

	visible := make([]T, 0, len(recs))
	for _, rec := range recs {
		if s.table.CheckRead(actor.Role, rec.SubmitterID() == actor.UserID) == nil {
			visible = append(visible, rec)
		}
	}
	return visible, nil
}

// Transition validates and applies a status change. The status read, the
// permission check, the conditional write and the audit append happen in one
// transaction; the write only lands if the status is still the one checked.
func (s *recordServiceImpl[T]) Transition(ctx context.Context, actor entity.Actor, id string, req TransitionRequest) (T, error) {
	var zero T
	var rec T
	var from entity.Status

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		from = current.CurrentStatus()

		if req.ExpectedStatus != "" && req.ExpectedStatus != from {
			return fmt.Errorf("%s %s is %s, expected %s: %w", s.Kind(), id, from, req.ExpectedStatus, port.ErrConflict)
		}
		if err := s.table.CheckTransition(from, req.To, actor.Role, current.SubmitterID() == actor.UserID); err != nil {
			return err
		}

		current.SetStatus(req.To)
		if reviewed, ok := any(current).(entity.Reviewed); ok {
			reviewed.ApplyReview(req.To, actor)
		}
		if err := s.repo.Update(txCtx, current, from); err != nil {
			return err
		}

		entry := entity.NewAuditEntry(current, string(req.To), actor, req.Note, []entity.FieldChange{
			{Field: "status", Before: string(from), After: string(req.To)},
		})
		if err := s.auditRepo.Append(txCtx, entry); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}

		rec = current
		return nil
	})
	if err != nil {
		s.logFailure("Transition rejected", err, "kind", s.Kind(), "id", id, "to", req.To, "actor", actor.UserID)
		return zero, err
	}

	if err := s.hydrate(ctx, rec); err != nil {
		return zero, err
	}

	s.logger.Info("Record status changed", "kind", s.Kind(), "id", id, "from", from, "to", req.To, "actor", actor.UserID)
	publish(ctx, s.dispatcher, event.NewEvent(event.TypeRecordStatusChanged, s.Kind(), id, actor.UserID, map[string]interface{}{
		event.PayloadFromStatus: string(from),
		event.PayloadToStatus:   string(req.To),
		event.PayloadNote:       req.Note,
	}))
	return rec, nil
}

// Edit applies mutate to a copy of the record and persists the field
// changes with one "updated" audit entry. A mutation that changes no tracked
// field writes nothing. ID, status and submitter cannot be edited.
func (s *recordServiceImpl[T]) Edit(ctx context.Context, actor entity.Actor, id string, expected entity.Status, mutate func(T) error) (T, error) {
	var zero T
	var rec T
	var changes []entity.FieldChange

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		status := current.CurrentStatus()
		if expected != "" && expected != status {
			return fmt.Errorf("%s %s is %s, expected %s: %w", s.Kind(), id, status, expected, port.ErrConflict)
		}
		if err := s.table.CheckEdit(status, actor.Role, current.SubmitterID() == actor.UserID); err != nil {
			return err
		}

		next, ok := current.Clone().(T)
		if !ok {
			return fmt.Errorf("clone of %s has unexpected type", s.Kind())
		}
		if err := mutate(next); err != nil {
			return err
		}
		next.SetRecordID(current.RecordID())
		next.SetStatus(status)
		next.SetSubmitter(current.Submitter())
		if err := next.Validate(); err != nil {
			return err
		}

		changes = entity.Diff(current.TrackedFields(), next.TrackedFields())
		if len(changes) == 0 {
			rec = current
			return nil
		}

		if err := s.repo.Update(txCtx, next, status); err != nil {
			return err
		}
		if err := s.auditRepo.Append(txCtx, entity.NewAuditEntry(next, entity.ActionUpdated, actor, "", changes)); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}
		rec = next
		return nil
	})
	if err != nil {
		s.logFailure("Edit rejected", err, "kind", s.Kind(), "id", id, "actor", actor.UserID)
		return zero, err
	}

	if err := s.hydrate(ctx, rec); err != nil {
		return zero, err
	}
	if len(changes) == 0 {
		return rec, nil
	}

	s.logger.Info("Record edited", "kind", s.Kind(), "id", id, "fields", len(changes), "actor", actor.UserID)
	publish(ctx, s.dispatcher, event.NewEvent(event.TypeRecordUpdated, s.Kind(), id, actor.UserID, nil))
	return rec, nil
}

// Delete removes the record, its history and attachment rows, then its blobs
func (s *recordServiceImpl[T]) Delete(ctx context.Context, actor entity.Actor, id string) error {
	if err := s.table.CheckDelete(actor.Role); err != nil {
		return err
	}

	var attachments []entity.Attachment
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.GetByID(txCtx, id); err != nil {
			return err
		}
		var err error
		if attachments, err = s.attachmentRepo.ListByRecord(txCtx, s.Kind(), id); err != nil {
			return err
		}
		if err := s.attachmentRepo.DeleteByRecord(txCtx, s.Kind(), id); err != nil {
			return err
		}
		if err := s.auditRepo.DeleteByRecord(txCtx, s.Kind(), id); err != nil {
			return err
		}
		return s.repo.Delete(txCtx, id)
	})
	if err != nil {
		s.logFailure("Delete rejected", err, "kind", s.Kind(), "id", id, "actor", actor.UserID)
		return err
	}

	// Orphans left by a failed blob delete are collected by the sweeper.
	for _, att := range attachments {
		if err := s.storage.Delete(ctx, att.Path); err != nil {
			s.logger.Error("Failed to delete attachment blob", "path", att.Path, "error", err)
		}
	}

	s.logger.Info("Record deleted", "kind", s.Kind(), "id", id, "attachments", len(attachments), "actor", actor.UserID)
	publish(ctx, s.dispatcher, event.NewEvent(event.TypeRecordDeleted, s.Kind(), id, actor.UserID, nil))
	return nil
}

// Allowed returns the statuses actor may move the record to
func (s *recordServiceImpl[T]) Allowed(ctx context.Context, actor entity.Actor, id string) ([]entity.Status, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	isOwner := rec.SubmitterID() == actor.UserID
	if err := s.table.CheckRead(actor.Role, isOwner); err != nil {
		return nil, err
	}
	return s.table.Allowed(rec.CurrentStatus(), actor.Role, isOwner), nil
}

func (s *recordServiceImpl[T]) hydrate(ctx context.Context, rec T) error {
	entries, err := s.auditRepo.ListByRecord(ctx, s.Kind(), rec.RecordID())
	if err != nil {
		return err
	}
	attachments, err := s.attachmentRepo.ListByRecord(ctx, s.Kind(), rec.RecordID())
	if err != nil {
		return err
	}
	rec.SetAuditLog(entries)
	rec.SetAttachments(attachments)
	return nil
}

// logFailure logs caller mistakes at info and everything else at error
func (s *recordServiceImpl[T]) logFailure(msg string, err error, keysAndValues ...interface{}) {
	keysAndValues = append(keysAndValues, "error", err)
	if isClientError(err) {
		s.logger.Info(msg, keysAndValues...)
		return
	}
	s.logger.Error(msg, keysAndValues...)
}

func isClientError(err error) bool {
	return errors.Is(err, entity.ErrValidation) ||
		errors.Is(err, workflow.ErrPermissionDenied) ||
		errors.Is(err, workflow.ErrInvalidTransition) ||
		errors.Is(err, workflow.ErrInvalidState) ||
		errors.Is(err, port.ErrNotFound) ||
		errors.Is(err, port.ErrConflict)
}
