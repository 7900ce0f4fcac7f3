package workflow

import (
	"fmt"

	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
)

// Table is the fixed mapping from (current status, role, is-submitter) to
// the set of allowed next statuses for one record kind. It is safe for
// concurrent use.
type Table struct {
	kind        entity.Kind
	initial     entity.Status
	states      []entity.Status
	valid       map[entity.Status]bool
	transitions map[entity.Status][]transition
	policy      *RolePolicy
}

// Kind returns the record kind the table governs
func (t *Table) Kind() entity.Kind {
	return t.kind
}

// Initial returns the status new records are created in
func (t *Table) Initial() entity.Status {
	return t.initial
}

// Statuses returns all statuses in declaration order
func (t *Table) Statuses() []entity.Status {
	return append([]entity.Status(nil), t.states...)
}

// IsValid returns true if the status belongs to this table
func (t *Table) IsValid(s entity.Status) bool {
	return t.valid[s]
}

// IsTerminal returns true if no transition leaves the status
func (t *Table) IsTerminal(s entity.Status) bool {
	return t.valid[s] && len(t.transitions[s]) == 0
}

// IsReviewer reports whether role may review records
func (t *Table) IsReviewer(role entity.Role) bool {
	return t.policy.IsReviewer(role)
}

func (t *Table) subject(role entity.Role, isOwner bool) Subject {
	return Subject{Role: role, IsReviewer: t.policy.IsReviewer(role), IsOwner: isOwner}
}

// Allowed returns the statuses the caller may move a record to from the
// given status, in declaration order
func (t *Table) Allowed(from entity.Status, role entity.Role, isOwner bool) []entity.Status {
	s := t.subject(role, isOwner)
	allowed := make([]entity.Status, 0, len(t.transitions[from]))
	for _, tr := range t.transitions[from] {
		if tr.guard == nil || tr.guard(s) {
			allowed = append(allowed, tr.toState)
		}
	}
	return allowed
}

// CheckTransition validates a requested status change. It returns nil when
// the transition is legal for the caller.
func (t *Table) CheckTransition(from, to entity.Status, role entity.Role, isOwner bool) error {
	if !t.valid[from] {
		return fmt.Errorf("%w: %s is not a %s status", ErrInvalidState, from, t.kind)
	}
	if !t.valid[to] {
		return fmt.Errorf("%w: %s is not a %s status", ErrInvalidState, to, t.kind)
	}
	if t.IsTerminal(from) {
		return fmt.Errorf("%w: %w: %s is final", ErrInvalidTransition, ErrTerminalStatus, from)
	}

	for _, tr := range t.transitions[from] {
		if tr.toState != to {
			continue
		}
		if tr.guard == nil || tr.guard(t.subject(role, isOwner)) {
			return nil
		}
		if isOwner {
			return fmt.Errorf("%w: submitters cannot change the status of their own %s", ErrPermissionDenied, t.kind)
		}
		return fmt.Errorf("%w: role %s cannot move a %s from %s to %s", ErrPermissionDenied, role, t.kind, from, to)
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// CheckEdit validates a field edit. Submitters may edit while the record is
// still in its initial status; reviewers may edit in any status.
func (t *Table) CheckEdit(status entity.Status, role entity.Role, isOwner bool) error {
	if t.policy.IsReviewer(role) {
		return nil
	}
	if !isOwner {
		return fmt.Errorf("%w: only the submitter or a reviewer may edit this %s", ErrPermissionDenied, t.kind)
	}
	if status != t.initial {
		return fmt.Errorf("%w: %s can no longer be edited once it is %s", ErrPermissionDenied, t.kind, status)
	}
	return nil
}

// CheckDelete validates an administrative delete
func (t *Table) CheckDelete(role entity.Role) error {
	if !t.policy.IsReviewer(role) {
		return fmt.Errorf("%w: role %s cannot delete a %s", ErrPermissionDenied, role, t.kind)
	}
	return nil
}

// CheckRead validates read access to a single record. Reviewers may read any
// record, everybody else only their own.
func (t *Table) CheckRead(role entity.Role, isOwner bool) error {
	if isOwner || t.policy.IsReviewer(role) {
		return nil
	}
	return fmt.Errorf("%w: %s belongs to another member", ErrPermissionDenied, t.kind)
}
