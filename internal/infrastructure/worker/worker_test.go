package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/storage"
)

type stubWorker struct {
	name     string
	startErr error
	started  atomic.Bool
	stopped  atomic.Bool
}

func (w *stubWorker) Start(ctx context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	w.started.Store(true)
	return nil
}

func (w *stubWorker) Stop() error {
	w.stopped.Store(true)
	return nil
}

func (w *stubWorker) Name() string { return w.name }

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager(zap.NewNop())
	ok := &stubWorker{name: "ok"}
	broken := &stubWorker{name: "broken", startErr: errors.New("no disk")}
	m.Register(ok)
	m.Register(broken)
	assert.Equal(t, 2, m.Count())

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.True(t, ok.started.Load())
	assert.Equal(t, []string{"ok"}, m.Running())
	assert.Error(t, m.StartAll(context.Background()))

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.True(t, ok.stopped.Load())
	assert.False(t, broken.stopped.Load(), "a worker that never started is not stopped")
	assert.NoError(t, m.StopAll(), "stopping twice is a no-op")
}

func TestPeriodicWorker_RunsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	w := NewPeriodicWorker("counter", 5*time.Millisecond, func(ctx context.Context) error {
		if calls.Add(1) == 2 {
			return errors.New("transient")
		}
		return nil
	}, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))

	assert.Eventually(t, func() bool { return w.Runs() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())
	assert.EqualError(t, w.LastError(), "transient")

	runs := w.Runs()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, runs, w.Runs(), "no runs after Stop")
}

func TestPeriodicWorker_RejectsZeroInterval(t *testing.T) {
	w := NewPeriodicWorker("bad", 0, func(ctx context.Context) error { return nil }, zap.NewNop())
	assert.Error(t, w.Start(context.Background()))
}

type fixedAttachments struct {
	port.AttachmentRepository
	paths []string
}

func (r fixedAttachments) ListAll(ctx context.Context) ([]entity.Attachment, error) {
	out := make([]entity.Attachment, 0, len(r.paths))
	for _, p := range r.paths {
		out = append(out, entity.Attachment{Path: p})
	}
	return out, nil
}

func TestOrphanSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalFileStorage(t.TempDir(), "/files", zap.NewNop())

	kept := "v1/reimbursements/rec-1/receipts/1792067400123_kept.pdf"
	orphan := "v1/reimbursements/rec-1/receipts/1792067400124_orphan.pdf"
	legacy := "rec-1/receipts/1700000000000_old.pdf"
	for _, key := range []string{kept, orphan, legacy} {
		require.NoError(t, store.Save(ctx, key, []byte("x")))
	}

	sweeper := NewOrphanSweeper(fixedAttachments{paths: []string{kept}}, store, time.Hour, zap.NewNop())

	removed, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, removed, "fresh blobs are within the grace period")

	sweeper.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	removed, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{orphan}, removed)

	assert.True(t, store.Exists(ctx, kept))
	assert.False(t, store.Exists(ctx, orphan))
	assert.True(t, store.Exists(ctx, legacy), "legacy keys are left for the migration tool")
}
