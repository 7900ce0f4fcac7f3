package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/blobpath"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
)

// MigrationItem moves one attachment blob from a legacy key to a v1 key
type MigrationItem struct {
	AttachmentID string      `json:"attachment_id"`
	RecordKind   entity.Kind `json:"record_kind"`
	From         string      `json:"from"`
	To           string      `json:"to"`
}

// SkippedBlob is a legacy key that cannot be migrated automatically
type SkippedBlob struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// MigrationPlan lists the moves a migration would perform
type MigrationPlan struct {
	Items     []MigrationItem `json:"items"`
	Skipped   []SkippedBlob   `json:"skipped"`
	Versioned int             `json:"versioned"`
}

// MigrationReport is the outcome of applying a plan
type MigrationReport struct {
	DryRun   bool            `json:"dry_run"`
	Migrated []MigrationItem `json:"migrated"`
	Failed   []SkippedBlob   `json:"failed"`
}

// FileMigrationService moves attachment blobs onto the versioned path schema
type FileMigrationService interface {
	Plan(ctx context.Context) (*MigrationPlan, error)
	Apply(ctx context.Context, plan *MigrationPlan, dryRun bool) (*MigrationReport, error)
}

type fileMigrationServiceImpl struct {
	attachmentRepo port.AttachmentRepository
	storage        port.FileStorage
	txManager      port.TransactionManager
	logger         Logger
}

// NewFileMigrationService creates a new FileMigrationService
func NewFileMigrationService(
	attachmentRepo port.AttachmentRepository,
	storage port.FileStorage,
	txManager port.TransactionManager,
	logger Logger,
) FileMigrationService {
	return &fileMigrationServiceImpl{
		attachmentRepo: attachmentRepo,
		storage:        storage,
		txManager:      txManager,
		logger:         logger,
	}
}

// Plan classifies every attachment row and every stored blob
func (s *fileMigrationServiceImpl) Plan(ctx context.Context) (*MigrationPlan, error) {
	attachments, err := s.attachmentRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	blobs, err := s.storage.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}

	plan := &MigrationPlan{Items: []MigrationItem{}, Skipped: []SkippedBlob{}}
	referenced := make(map[string]bool, len(attachments))

	for _, att := range attachments {
		referenced[att.Path] = true
		if blobpath.IsVersioned(att.Path) {
			plan.Versioned++
			continue
		}

		legacy, err := blobpath.ParseLegacy(att.Path)
		if err != nil {
			plan.Skipped = append(plan.Skipped, SkippedBlob{Path: att.Path, Reason: err.Error()})
			continue
		}
		if legacy.RecordID != att.RecordID {
			plan.Skipped = append(plan.Skipped, SkippedBlob{
				Path:   att.Path,
				Reason: fmt.Sprintf("key names record %s but attachment belongs to %s", legacy.RecordID, att.RecordID),
			})
			continue
		}
		target, err := legacy.Upgrade(att.RecordKind)
		if err != nil {
			plan.Skipped = append(plan.Skipped, SkippedBlob{Path: att.Path, Reason: err.Error()})
			continue
		}

		plan.Items = append(plan.Items, MigrationItem{
			AttachmentID: att.ID,
			RecordKind:   att.RecordKind,
			From:         att.Path,
			To:           target.String(),
		})
	}

	for _, blob := range blobs {
		if referenced[blob.Path] || blobpath.IsVersioned(blob.Path) {
			continue
		}
		plan.Skipped = append(plan.Skipped, SkippedBlob{Path: blob.Path, Reason: "no attachment references this blob"})
	}

	s.logger.Info("File migration planned",
		"items", len(plan.Items),
		"skipped", len(plan.Skipped),
		"versioned", plan.Versioned)
	return plan, nil
}

// Apply copies each blob to its new key, repoints the attachment row and
// removes the legacy key. Items fail independently.
func (s *fileMigrationServiceImpl) Apply(ctx context.Context, plan *MigrationPlan, dryRun bool) (*MigrationReport, error) {
	report := &MigrationReport{DryRun: dryRun, Migrated: []MigrationItem{}, Failed: []SkippedBlob{}}
	if dryRun {
		report.Migrated = append(report.Migrated, plan.Items...)
		return report, nil
	}

	for _, item := range plan.Items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.migrate(ctx, item); err != nil {
			s.logger.Error("Failed to migrate blob", "from", item.From, "to", item.To, "error", err)
			report.Failed = append(report.Failed, SkippedBlob{Path: item.From, Reason: err.Error()})
			continue
		}
		report.Migrated = append(report.Migrated, item)
	}

	s.logger.Info("File migration applied", "migrated", len(report.Migrated), "failed", len(report.Failed))
	return report, nil
}

func (s *fileMigrationServiceImpl) migrate(ctx context.Context, item MigrationItem) error {
	content, err := s.storage.Read(ctx, item.From)
	if err != nil {
		return fmt.Errorf("read %s: %w", item.From, err)
	}
	if err := s.storage.Save(ctx, item.To, content); err != nil {
		return fmt.Errorf("write %s: %w", item.To, err)
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.attachmentRepo.UpdatePath(txCtx, item.AttachmentID, item.To, s.storage.URL(item.To))
	})
	if err != nil {
		if delErr := s.storage.Delete(ctx, item.To); delErr != nil && !errors.Is(delErr, port.ErrNotFound) {
			s.logger.Error("Failed to remove copied blob", "path", item.To, "error", delErr)
		}
		return fmt.Errorf("repoint attachment %s: %w", item.AttachmentID, err)
	}

	if err := s.storage.Delete(ctx, item.From); err != nil {
		// the row already points at the new key; the next Plan lists the leftover
		// as unreferenced, the sweeper only covers versioned keys
		s.logger.Error("Failed to delete legacy blob", "path", item.From, "error", err)
	}
	return nil
}
