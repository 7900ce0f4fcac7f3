// Package readmodel keeps an in-memory copy of every record for the
// dashboard summary views. The store stays authoritative: the view is
// rebuilt from it on start and each change event reloads the affected record.
package readmodel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ieeeucsd/dashboard-finance/internal/application/dispatcher"
	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/event"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/projection"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// View is the read model of one record kind
type View[T entity.Record] struct {
	kind   entity.Kind
	repo   port.RecordRepository[T]
	logger Logger

	// reload serializes store reads with the writes they feed, so a slower
	// handler can never overwrite a newer copy with an older one
	reload sync.Mutex

	mu      sync.RWMutex
	records map[string]T
	order   []string // newest first
}

// NewView creates an empty view; call Rebuild before serving from it
func NewView[T entity.Record](kind entity.Kind, repo port.RecordRepository[T], logger Logger) *View[T] {
	return &View[T]{
		kind:    kind,
		repo:    repo,
		logger:  logger,
		records: make(map[string]T),
	}
}

// Register subscribes the view to every change event
func (v *View[T]) Register(d dispatcher.Dispatcher) {
	d.SubscribeAll("readmodel."+string(v.kind), v.HandleEvent)
}

// Rebuild replaces the view with the current contents of the store
func (v *View[T]) Rebuild(ctx context.Context) error {
	v.reload.Lock()
	defer v.reload.Unlock()

	recs, err := v.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("rebuild %s view: %w", v.kind, err)
	}

	records := make(map[string]T, len(recs))
	order := make([]string, 0, len(recs))
	for _, rec := range recs {
		records[rec.RecordID()] = rec
		order = append(order, rec.RecordID())
	}

	v.mu.Lock()
	v.records = records
	v.order = order
	v.mu.Unlock()

	v.logger.Info("Read model rebuilt", "kind", v.kind, "records", len(records))
	return nil
}

// HandleEvent applies a change event. Applying the same event twice leaves
// the view unchanged.
func (v *View[T]) HandleEvent(ctx context.Context, evt *event.Event) error {
	if evt.RecordKind != v.kind || evt.RecordID == "" {
		return nil
	}

	v.reload.Lock()
	defer v.reload.Unlock()

	if evt.Type == event.TypeRecordDeleted {
		v.remove(evt.RecordID)
		return nil
	}

	rec, err := v.repo.GetByID(ctx, evt.RecordID)
	if errors.Is(err, port.ErrNotFound) {
		v.remove(evt.RecordID)
		return nil
	}
	if err != nil {
		v.logger.Error("Failed to refresh read model", "kind", v.kind, "record_id", evt.RecordID, "error", err)
		return err
	}

	v.put(rec)
	return nil
}

// Snapshot returns the records newest first
func (v *View[T]) Snapshot() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]T, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, v.records[id])
	}
	return out
}

// Len returns the number of records in the view
func (v *View[T]) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.records)
}

// Stats folds the filtered snapshot
func (v *View[T]) Stats(filter projection.Filter) projection.Stats {
	return projection.Compute(v.Snapshot(), filter)
}

func (v *View[T]) put(rec T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := rec.RecordID()
	if _, ok := v.records[id]; !ok {
		v.order = append([]string{id}, v.order...)
	}
	v.records[id] = rec
}

func (v *View[T]) remove(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.records[id]; !ok {
		return
	}
	delete(v.records, id)
	for i, existing := range v.order {
		if existing == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
}

// ReadModel groups the views the dashboard serves from
type ReadModel struct {
	Reimbursements *View[*entity.Reimbursement]
	Deposits       *View[*entity.Deposit]
}

// New creates views for both record kinds
func New(reimbursements port.ReimbursementRepository, deposits port.DepositRepository, logger Logger) *ReadModel {
	return &ReadModel{
		Reimbursements: NewView[*entity.Reimbursement](entity.KindReimbursement, reimbursements, logger),
		Deposits:       NewView[*entity.Deposit](entity.KindDeposit, deposits, logger),
	}
}

// Register subscribes both views
func (m *ReadModel) Register(d dispatcher.Dispatcher) {
	m.Reimbursements.Register(d)
	m.Deposits.Register(d)
}

// Rebuild reloads both views from the store
func (m *ReadModel) Rebuild(ctx context.Context) error {
	if err := m.Reimbursements.Rebuild(ctx); err != nil {
		return err
	}
	return m.Deposits.Rebuild(ctx)
}
