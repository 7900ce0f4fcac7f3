package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/ieeeucsd/dashboard-finance/internal/application/dispatcher"
	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/blobpath"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/event"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/workflow"
)

// RecordLookup loads a record of one kind by ID
type RecordLookup func(ctx context.Context, id string) (entity.Record, error)

// LookupFrom adapts a typed repository to a RecordLookup
func LookupFrom[T entity.Record](repo port.RecordRepository[T]) RecordLookup {
	return func(ctx context.Context, id string) (entity.Record, error) {
		rec, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
}

// RecordSource pairs a kind's transition table with its loader
type RecordSource struct {
	Table  *workflow.Table
	Lookup RecordLookup
}

// UploadRequest is one attachment upload
type UploadRequest struct {
	Kind     entity.Kind
	RecordID string
	Category string
	FileName string
	Content  []byte
}

// AttachmentService uploads and serves record attachments
type AttachmentService interface {
	Upload(ctx context.Context, actor entity.Actor, req UploadRequest) (*entity.Attachment, error)
	Download(ctx context.Context, actor entity.Actor, attachmentID string) (*entity.Attachment, []byte, error)
}

type attachmentServiceImpl struct {
	sources        map[entity.Kind]RecordSource
	attachmentRepo port.AttachmentRepository
	auditRepo      port.AuditLogRepository
	storage        port.FileStorage
	txManager      port.TransactionManager
	dispatcher     dispatcher.Dispatcher
	maxBytes       int64
	now            func() time.Time
	logger         Logger
}

// NewAttachmentService creates a new AttachmentService. maxBytes <= 0
// disables the size limit.
func NewAttachmentService(
	sources map[entity.Kind]RecordSource,
	attachmentRepo port.AttachmentRepository,
	auditRepo port.AuditLogRepository,
	storage port.FileStorage,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	maxBytes int64,
	logger Logger,
) AttachmentService {
	return &attachmentServiceImpl{
		sources:        sources,
		attachmentRepo: attachmentRepo,
		auditRepo:      auditRepo,
		storage:        storage,
		txManager:      txManager,
		dispatcher:     d,
		maxBytes:       maxBytes,
		now:            time.Now,
		logger:         logger,
	}
}

// Upload stores the blob, then records the attachment and its audit entry in
// one transaction. If the transaction fails the blob is removed again.
func (s *attachmentServiceImpl) Upload(ctx context.Context, actor entity.Actor, req UploadRequest) (*entity.Attachment, error) {
	source, ok := s.sources[req.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown record kind %q", entity.ErrValidation, req.Kind)
	}
	if len(req.Content) == 0 {
		return nil, fmt.Errorf("%w: attachment is empty", entity.ErrValidation)
	}
	if s.maxBytes > 0 && int64(len(req.Content)) > s.maxBytes {
		return nil, fmt.Errorf("%w: attachment exceeds %d bytes", entity.ErrValidation, s.maxBytes)
	}

	rec, err := source.Lookup(ctx, req.RecordID)
	if err != nil {
		return nil, err
	}
	if err := source.Table.CheckEdit(rec.CurrentStatus(), actor.Role, rec.SubmitterID() == actor.UserID); err != nil {
		return nil, err
	}

	path, err := s.store(ctx, req)
	if err != nil {
		return nil, err
	}
	key := path.String()

	att := &entity.Attachment{
		RecordKind: req.Kind,
		RecordID:   req.RecordID,
		Category:   req.Category,
		FileName:   path.Filename,
		Path:       key,
		URL:        s.storage.URL(key),
		Size:       int64(len(req.Content)),
		MimeType:   mimetype.Detect(req.Content).String(),
		UploadedBy: actor.UserID,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := source.Lookup(txCtx, req.RecordID)
		if err != nil {
			return err
		}
		if err := source.Table.CheckEdit(current.CurrentStatus(), actor.Role, current.SubmitterID() == actor.UserID); err != nil {
			return err
		}
		if err := s.attachmentRepo.Create(txCtx, att); err != nil {
			return err
		}
		entry := entity.NewAuditEntry(current, entity.ActionAttachmentAdded, actor, att.FileName, []entity.FieldChange{
			{Field: "attachments", After: att.FileName},
		})
		return s.auditRepo.Append(txCtx, entry)
	})
	if err != nil {
		if delErr := s.storage.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.Error("Failed to remove blob after aborted upload", "path", key, "error", delErr)
		}
		s.logger.Error("Failed to record attachment", "path", key, "error", err)
		return nil, err
	}

	s.logger.Info("Attachment uploaded", "kind", req.Kind, "record_id", req.RecordID, "path", key, "size", att.Size)
	publish(ctx, s.dispatcher, event.NewEvent(event.TypeAttachmentAdded, req.Kind, req.RecordID, actor.UserID, map[string]interface{}{
		event.PayloadAttachmentID: att.ID,
	}))
	return att, nil
}

// maxKeyAttempts bounds how many millisecond slots Upload tries when the
// same file name lands on a record more than once in the same instant
const maxKeyAttempts = 8

// store writes the blob under a key no other upload holds. A taken key is
// never overwritten; the next millisecond stamp is tried instead.
func (s *attachmentServiceImpl) store(ctx context.Context, req UploadRequest) (blobpath.Path, error) {
	stamp := s.now()
	for attempt := 0; ; attempt++ {
		path, err := blobpath.New(req.Kind, req.RecordID, req.Category, stamp.Add(time.Duration(attempt)*time.Millisecond), req.FileName)
		if err != nil {
			return blobpath.Path{}, fmt.Errorf("%w: %w", entity.ErrValidation, err)
		}

		err = s.storage.Create(ctx, path.String(), req.Content)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, port.ErrConflict) || attempt+1 == maxKeyAttempts {
			s.logger.Error("Failed to store attachment", "path", path.String(), "error", err)
			return blobpath.Path{}, fmt.Errorf("store attachment: %w", err)
		}
	}
}

// Download returns an attachment the actor may read
func (s *attachmentServiceImpl) Download(ctx context.Context, actor entity.Actor, attachmentID string) (*entity.Attachment, []byte, error) {
	att, err := s.attachmentRepo.GetByID(ctx, attachmentID)
	if err != nil {
		return nil, nil, err
	}
	source, ok := s.sources[att.RecordKind]
	if !ok {
		return nil, nil, fmt.Errorf("attachment %s: %w", attachmentID, port.ErrNotFound)
	}
	rec, err := source.Lookup(ctx, att.RecordID)
	if err != nil {
		return nil, nil, err
	}
	if err := source.Table.CheckRead(actor.Role, rec.SubmitterID() == actor.UserID); err != nil {
		return nil, nil, err
	}

	content, err := s.storage.Read(ctx, att.Path)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return nil, nil, err
		}
		s.logger.Error("Failed to read attachment", "path", att.Path, "error", err)
		return nil, nil, fmt.Errorf("read attachment: %w", err)
	}
	return att, content, nil
}
