package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/event"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/projection"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/workflow"
)

func TestRecordService_Submit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := newLunch()
	rec.Status = entity.StatusPaid // ignored
	got, err := f.reimbursements.Submit(ctx, member, rec)

	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, entity.StatusSubmitted, got.Status)
	assert.Equal(t, member.UserID, got.SubmittedBy)
	assert.Equal(t, member.DisplayName, got.SubmitterName)
	require.Len(t, got.AuditLog, 1)
	assert.Equal(t, entity.ActionCreated, got.AuditLog[0].Action)
	assert.False(t, got.AuditLog[0].Timestamp.IsZero())

	f.drain(t)
	assert.Equal(t, []event.Type{event.TypeRecordCreated}, f.events.types())
}

func TestRecordService_SubmitRejectsInvalidRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(r *entity.Reimbursement)
	}{
		{"zero amount", func(r *entity.Reimbursement) { r.Amount = decimal.Zero; r.LineItems = nil }},
		{"negative amount", func(r *entity.Reimbursement) { r.Amount = decimal.RequireFromString("-1"); r.LineItems = nil }},
		{"missing title", func(r *entity.Reimbursement) { r.Title = " " }},
		{"line items do not add up", func(r *entity.Reimbursement) { r.Amount = decimal.RequireFromString("50") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newLunch()
			tt.mutate(rec)

			_, err := f.reimbursements.Submit(ctx, member, rec)

			assert.ErrorIs(t, err, entity.ErrValidation)
		})
	}

	all, err := f.reimbRepo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "rejected submissions must not be stored")
}

func TestRecordService_ApproveThenPay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.reimbursements.Submit(ctx, member, newLunch())
	require.NoError(t, err)

	allowed, err := f.reimbursements.Allowed(ctx, treasurer, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []entity.Status{entity.StatusApproved, entity.StatusDeclined, entity.StatusPaid}, allowed)

	approved, err := f.reimbursements.Transition(ctx, treasurer, rec.ID, TransitionRequest{To: entity.StatusApproved, Note: "looks good"})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, approved.Status)
	require.Len(t, approved.AuditLog, 2)
	assert.Equal(t, "approved", approved.AuditLog[1].Action)
	assert.Equal(t, "looks good", approved.AuditLog[1].Note)
	assert.Equal(t, "status: submitted → approved", approved.AuditLog[1].Summary())

	paid, err := f.reimbursements.Transition(ctx, treasurer, rec.ID, TransitionRequest{To: entity.StatusPaid, ExpectedStatus: entity.StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPaid, paid.Status)
	require.Len(t, paid.AuditLog, 3)
	assert.Equal(t, "paid", paid.AuditLog[2].Action)
	for i := 1; i < len(paid.AuditLog); i++ {
		assert.Greater(t, paid.AuditLog[i].Seq, paid.AuditLog[i-1].Seq)
		assert.False(t, paid.AuditLog[i].Timestamp.Before(paid.AuditLog[i-1].Timestamp))
	}

	all, err := f.reimbursements.List(ctx, treasurer)
	require.NoError(t, err)
	stats := projection.Compute(all, projection.Filter{})
	assert.Equal(t, 1, stats.Count(entity.StatusPaid))
	assert.True(t, decimal.RequireFromString("42.50").Equal(stats.SumFor(entity.StatusPaid)))

	_, err = f.reimbursements.Transition(ctx, treasurer, rec.ID, TransitionRequest{To: entity.StatusDeclined})
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	assert.ErrorIs(t, err, workflow.ErrTerminalStatus)

	f.drain(t)
	assert.Equal(t, []event.Type{
		event.TypeRecordCreated,
		event.TypeRecordStatusChanged,
		event.TypeRecordStatusChanged,
	}, f.events.types())
}

func TestRecordService_SubmitterCannotReviewOwnRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.reimbursements.Submit(ctx, treasurer, newLunch())
	require.NoError(t, err)

	_, err = f.reimbursements.Transition(ctx, treasurer, rec.ID, TransitionRequest{To: entity.StatusApproved})
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)

	allowed, err := f.reimbursements.Allowed(ctx, treasurer, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, allowed)

	got, err := f.reimbursements.Get(ctx, treasurer, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSubmitted, got.Status)
	assert.Len(t, got.AuditLog, 1, "rejected transitions leave no audit entry")
}

func TestRecordService_MembersCannotReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.reimbursements.Submit(ctx, member, newLunch())
	require.NoError(t, err)

	_, err = f.reimbursements.Transition(ctx, member2, rec.ID, TransitionRequest{To: entity.StatusApproved})

	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)
}

func TestRecordService_DepositSelfVerificationRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dep, err := f.deposits.Submit(ctx, treasurer, newDeposit())
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, dep.Status)

	_, err = f.deposits.Transition(ctx, treasurer, dep.ID, TransitionRequest{To: entity.StatusVerified})
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)

	got, err := f.deposits.Get(ctx, treasurer, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, got.Status)
	assert.Len(t, got.AuditLog, 1)
}

func TestRecordService_DepositVerificationRecordsReviewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dep, err := f.deposits.Submit(ctx, member, newDeposit())
	require.NoError(t, err)

	verified, err := f.deposits.Transition(ctx, treasurer, dep.ID, TransitionRequest{To: entity.StatusVerified})
	require.NoError(t, err)

	assert.Equal(t, entity.StatusVerified, verified.Status)
	assert.Equal(t, treasurer.UserID, verified.VerifiedBy)
	require.NotNil(t, verified.VerifiedAt)

	_, err = f.deposits.Transition(ctx, chair, dep.ID, TransitionRequest{To: entity.StatusRejected})
	assert.ErrorIs(t, err, workflow.ErrTerminalStatus)
}

func TestRecordService_ExpectedStatusMismatchConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.reimbursements.Submit(ctx, member, newLunch())
	require.NoError(t, err)
	_, err = f.reimbursements.Transition(ctx, treasurer, rec.ID, TransitionRequest{To: entity.StatusApproved})
	require.NoError(t, err)

	_, err = f.reimbursements.Transition(ctx, chair, rec.ID, TransitionRequest{To: entity.StatusPaid, ExpectedStatus: entity.StatusSubmitted})

	assert.ErrorIs(t, err, port.ErrConflict)
}

func TestRecordService_ConcurrentApprovalsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.reimbursements.Submit(ctx, member, newLunch())
	require.NoError(t, err)

	reviewers := []entity.Actor{treasurer, chair, admin}
	targets := []entity.Status{entity.StatusApproved, entity.StatusDeclined, entity.StatusApproved}
	errs := make([]error, len(reviewers))

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range reviewers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.reimbursements.Transition(ctx, reviewers[i], rec.ID, TransitionRequest{
				To:             targets[i],
				ExpectedStatus: entity.StatusSubmitted,
			})
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.True(t, errors.Is(err, port.ErrConflict), "loser got %v", err)
	}
	assert.Equal(t, 1, winners)

	got, err := f.reimbursements.Get(ctx, admin, rec.ID)
	require.NoError(t, err)
	assert.Len(t, got.AuditLog, 2, "exactly one status entry after the created entry")
}

func TestRecordService_Edit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.reimbursements.Submit(ctx, member, newLunch())
	require.NoError(t, err)

	t.Run("submitter edits while submitted", func(t *testing.T) {
		got, err := f.reimbursements.Edit(ctx, member, rec.ID, entity.StatusSubmitted, func(r *entity.Reimbursement) error {
			r.Title = "Team lunch"
			r.Status = entity.StatusPaid
			r.SubmittedBy = "someone-else"
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "Team lunch", got.Title)
		assert.Equal(t, entity.StatusSubmitted, got.Status)
		assert.Equal(t, member.UserID, got.SubmittedBy)
		require.Len(t, got.AuditLog, 2)
		assert.Equal(t, entity.ActionUpdated, got.AuditLog[1].Action)
		assert.Equal(t, "title: Lunch → Team lunch", got.AuditLog[1].Summary())
	})

	t.Run("no-op edit writes nothing", func(t *testing.T) {
		got, err := f.reimbursements.Edit(ctx, member, rec.ID, "", func(r *entity.Reimbursement) error { return nil })
		require.NoError(t, err)
		assert.Len(t, got.AuditLog, 2)
	})

	t.Run("invalid edit is rejected", func(t *testing.T) {
		_, err := f.reimbursements.Edit(ctx, member, rec.ID, "", func(r *entity.Reimbursement) error {
			r.Amount = decimal.Zero
			return nil
		})
		assert.ErrorIs(t, err, entity.ErrValidation)
	})

	t.Run("receipt reference alone is persisted", func(t *testing.T) {
		got, err := f.reimbursements.Edit(ctx, member, rec.ID, "", func(r *entity.Reimbursement) error {
			r.LineItems[0].ReceiptRef = "att-123"
			return nil
		})
		require.NoError(t, err)
		require.Len(t, got.LineItems, 1)
		assert.Equal(t, "att-123", got.LineItems[0].ReceiptRef)
		require.Len(t, got.AuditLog, 3)
		assert.Equal(t, "line_items", got.AuditLog[2].Changes[0].Field)

		stored, err := f.reimbRepo.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "att-123", stored.LineItems[0].ReceiptRef)
	})

	t.Run("sub-cent amount is rejected", func(t *testing.T) {
		_, err := f.reimbursements.Edit(ctx, member, rec.ID, "", func(r *entity.Reimbursement) error {
			r.Amount = decimal.RequireFromString("42.504")
			r.LineItems[0].Amount = decimal.RequireFromString("42.504")
			return nil
		})
		assert.ErrorIs(t, err, entity.ErrValidation)

		stored, err := f.reimbRepo.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("42.50").Equal(stored.Amount))
	})

	t.Run("other members cannot edit", func(t *testing.T) {
		_, err := f.reimbursements.Edit(ctx, member2, rec.ID, "", func(r *entity.Reimbursement) error {
			r.Title = "mine now"
			return nil
		})
		assert.ErrorIs(t, err, workflow.ErrPermissionDenied)
	})

	_, err = f.reimbursements.Transition(ctx, treasurer, rec.ID, TransitionRequest{To: entity.StatusApproved})
	require.NoError(t, err)

	t.Run("submitter cannot edit after approval", func(t *testing.T) {
		_, err := f.reimbursements.Edit(ctx, member, rec.ID, "", func(r *entity.Reimbursement) error {
			r.Title = "too late"
			return nil
		})
		assert.ErrorIs(t, err, workflow.ErrPermissionDenied)
	})

	t.Run("reviewer edits in any status", func(t *testing.T) {
		got, err := f.reimbursements.Edit(ctx, treasurer, rec.ID, entity.StatusApproved, func(r *entity.Reimbursement) error {
			r.AdditionalInfo = "receipt checked"
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, entity.StatusApproved, got.Status)
		assert.Len(t, got.AuditLog, 5)
	})

	t.Run("stale expected status conflicts", func(t *testing.T) {
		_, err := f.reimbursements.Edit(ctx, treasurer, rec.ID, entity.StatusSubmitted, func(r *entity.Reimbursement) error {
			r.Title = "x"
			return nil
		})
		assert.ErrorIs(t, err, port.ErrConflict)
	})
}

func TestRecordService_ReadPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine, err := f.reimbursements.Submit(ctx, member, newLunch())
	require.NoError(t, err)
	_, err = f.reimbursements.Submit(ctx, member2, newLunch())
	require.NoError(t, err)

	_, err = f.reimbursements.Get(ctx, member2, mine.ID)
	assert.ErrorIs(t, err, workflow.ErrPermissionDenied)

	visible, err := f.reimbursements.List(ctx, member)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, mine.ID, visible[0].ID)

	all, err := f.reimbursements.List(ctx, treasurer)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.reimbursements.Get(ctx, treasurer, "missing")
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func TestRecordService_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.reimbursements.Submit(ctx, member, newLunch())
	require.NoError(t, err)
	att, err := f.attachments.Upload(ctx, member, UploadRequest{
		Kind:     entity.KindReimbursement,
		RecordID: rec.ID,
		Category: entity.AttachmentCategoryReceipt,
		FileName: "receipt.pdf",
		Content:  []byte("%PDF-1.4 receipt"),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.reimbursements.Delete(ctx, member, rec.ID), workflow.ErrPermissionDenied)

	require.NoError(t, f.reimbursements.Delete(ctx, admin, rec.ID))

	_, err = f.reimbursements.Get(ctx, admin, rec.ID)
	assert.ErrorIs(t, err, port.ErrNotFound)
	assert.False(t, f.storage.Exists(ctx, att.Path))
	entries, err := f.auditRepo.ListByRecord(ctx, entity.KindReimbursement, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.ErrorIs(t, f.reimbursements.Delete(ctx, admin, rec.ID), port.ErrNotFound)
}
