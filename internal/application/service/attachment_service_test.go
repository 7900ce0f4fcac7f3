package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/event"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/workflow"
)

// failingAttachmentRepo rejects every insert
type failingAttachmentRepo struct {
	port.AttachmentRepository
}

func (r failingAttachmentRepo) Create(ctx context.Context, att *entity.Attachment) error {
	return errors.New("disk full")
}

func receiptUpload(recordID string) UploadRequest {
	return UploadRequest{
		Kind:     entity.KindReimbursement,
		RecordID: recordID,
		Category: entity.AttachmentCategoryReceipt,
		FileName: "../My Receipt (1).pdf",
		Content:  []byte("%PDF-1.4 lunch receipt"),
	}
}

func TestAttachmentService_Upload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.attachments.(*attachmentServiceImpl).now = func() time.Time {
		return time.Date(2026, 10, 15, 12, 30, 0, 123000000, time.UTC)
	}

	rec, err := f.reimbursements.Submit(ctx, member, newLunch())
	require.NoError(t, err)

	att, err := f.attachments.Upload(ctx, member, receiptUpload(rec.ID))
	require.NoError(t, err)

	assert.NotEmpty(t, att.ID)
	assert.Equal(t, "v1/reimbursements/"+rec.ID+"/receipts/1792067400123_My_Receipt_1_.pdf", att.Path)
	assert.Equal(t, "My_Receipt_1_.pdf", att.FileName)
	assert.Equal(t, "application/pdf", att.MimeType)
	assert.True(t, f.storage.Exists(ctx, att.Path))

	got, err := f.reimbursements.Get(ctx, member, rec.ID)
	require.NoError(t, err)
	require.Len(t, got.Attachments, 1)
	require.Len(t, got.AuditLog, 2)
	assert.Equal(t, entity.ActionAttachmentAdded, got.AuditLog[1].Action)

	downloaded, content, err := f.attachments.Download(ctx, treasurer, att.ID)
	require.NoError(t, err)
	assert.Equal(t, att.Path, downloaded.Path)
	assert.Equal(t, []byte("%PDF-1.4 lunch receipt"), content)

	_, _, err = f.attachments.Download(ctx, member2, att.ID)
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)

	f.drain(t)
	assert.Contains(t, f.events.types(), event.TypeAttachmentAdded)
}

func TestAttachmentService_UploadRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.reimbursements.Submit(ctx, member, newLunch())
	require.NoError(t, err)

	t.Run("empty content", func(t *testing.T) {
		req := receiptUpload(rec.ID)
		req.Content = nil
		_, err := f.attachments.Upload(ctx, member, req)
		assert.ErrorIs(t, err, entity.ErrValidation)
	})

	t.Run("too large", func(t *testing.T) {
		req := receiptUpload(rec.ID)
		req.Content = make([]byte, 1<<20+1)
		_, err := f.attachments.Upload(ctx, member, req)
		assert.ErrorIs(t, err, entity.ErrValidation)
	})

	t.Run("unknown category", func(t *testing.T) {
		req := receiptUpload(rec.ID)
		req.Category = "avatars"
		_, err := f.attachments.Upload(ctx, member, req)
		assert.ErrorIs(t, err, entity.ErrValidation)
	})

	t.Run("unknown record", func(t *testing.T) {
		_, err := f.attachments.Upload(ctx, member, receiptUpload("missing"))
		assert.ErrorIs(t, err, port.ErrNotFound)
	})

	t.Run("not the submitter", func(t *testing.T) {
		_, err := f.attachments.Upload(ctx, member2, receiptUpload(rec.ID))
		assert.ErrorIs(t, err, workflow.ErrPermissionDenied)
	})

	blobs, err := f.storage.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, blobs)
}

func TestAttachmentService_UploadRemovesBlobWhenRecordingFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.reimbursements.Submit(ctx, member, newLunch())
	require.NoError(t, err)

	svc := NewAttachmentService(f.sources, failingAttachmentRepo{f.attachmentRepo}, f.auditRepo, f.storage, f.db, f.dispatcher, 0, &mockLogger{})
	_, err = svc.Upload(ctx, member, receiptUpload(rec.ID))
	require.Error(t, err)

	blobs, err := f.storage.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, blobs, "aborted upload must not leave an orphaned blob")

	entries, err := f.auditRepo.ListByRecord(ctx, entity.KindReimbursement, rec.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAttachmentService_SameNameSameInstantKeepsBoth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.attachments.(*attachmentServiceImpl).now = func() time.Time {
		return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	}

	rec, err := f.reimbursements.Submit(ctx, member, newLunch())
	require.NoError(t, err)

	first, err := f.attachments.Upload(ctx, member, receiptUpload(rec.ID))
	require.NoError(t, err)

	again := receiptUpload(rec.ID)
	again.Content = []byte("%PDF-1.4 second copy")
	second, err := f.attachments.Upload(ctx, member, again)
	require.NoError(t, err)
	assert.NotEqual(t, first.Path, second.Path)

	_, content, err := f.attachments.Download(ctx, member, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 lunch receipt"), content)

	_, content, err = f.attachments.Download(ctx, member, second.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 second copy"), content)
}

func TestAttachmentService_UploadRechecksEditInTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.reimbursements.Submit(ctx, member, newLunch())
	require.NoError(t, err)

	// the record is approved between the first check and the write
	reimb := f.sources[entity.KindReimbursement]
	calls := 0
	racing := map[entity.Kind]RecordSource{
		entity.KindReimbursement: {Table: reimb.Table, Lookup: func(ctx context.Context, id string) (entity.Record, error) {
			r, err := reimb.Lookup(ctx, id)
			calls++
			if calls == 1 {
				_, terr := f.reimbursements.Transition(context.Background(), treasurer, id, TransitionRequest{To: entity.StatusApproved})
				require.NoError(t, terr)
			}
			return r, err
		}},
	}
	svc := NewAttachmentService(racing, f.attachmentRepo, f.auditRepo, f.storage, f.db, f.dispatcher, 0, &mockLogger{})

	_, err = svc.Upload(ctx, member, receiptUpload(rec.ID))
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)

	atts, err := f.attachmentRepo.ListByRecord(ctx, entity.KindReimbursement, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, atts)

	blobs, err := f.storage.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, blobs)
}
