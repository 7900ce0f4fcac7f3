package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/blobpath"
)

// OrphanSweeper deletes versioned blobs no attachment row points at. Blobs
// younger than the grace period are left alone since an upload writes its
// blob before the row commits.
type OrphanSweeper struct {
	attachmentRepo port.AttachmentRepository
	storage        port.FileStorage
	grace          time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

// NewOrphanSweeper creates a sweeper
func NewOrphanSweeper(attachmentRepo port.AttachmentRepository, storage port.FileStorage, grace time.Duration, logger *zap.Logger) *OrphanSweeper {
	return &OrphanSweeper{
		attachmentRepo: attachmentRepo,
		storage:        storage,
		grace:          grace,
		now:            time.Now,
		logger:         logger,
	}
}

// Sweep removes orphaned blobs and returns their keys
func (s *OrphanSweeper) Sweep(ctx context.Context) ([]string, error) {
	blobs, err := s.storage.List(ctx, blobpath.Version+"/")
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	if len(blobs) == 0 {
		return nil, nil
	}

	attachments, err := s.attachmentRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	referenced := make(map[string]bool, len(attachments))
	for _, att := range attachments {
		referenced[att.Path] = true
	}

	cutoff := s.now().Add(-s.grace)
	var removed []string
	for _, blob := range blobs {
		if referenced[blob.Path] || blob.ModTime.After(cutoff) {
			continue
		}
		if err := s.storage.Delete(ctx, blob.Path); err != nil {
			s.logger.Warn("Failed to delete orphaned blob", zap.String("path", blob.Path), zap.Error(err))
			continue
		}
		removed = append(removed, blob.Path)
	}

	if len(removed) > 0 {
		s.logger.Info("Orphaned blobs removed", zap.Int("count", len(removed)))
	}
	return removed, nil
}

// Task adapts Sweep for a PeriodicWorker
func (s *OrphanSweeper) Task() Task {
	return func(ctx context.Context) error {
		_, err := s.Sweep(ctx)
		return err
	}
}
