package workflow

import (
	"fmt"

	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
)

// ReimbursementTable builds the reimbursement lifecycle:
//
//	submitted -> approved | declined | paid
//	approved  -> paid
func ReimbursementTable(policy *RolePolicy) *Table {
	builder := NewBuilder(entity.KindReimbursement, entity.StatusSubmitted)

	builder.Configure(entity.StatusSubmitted).
		Permit(entity.StatusApproved, ReviewerNotOwner).
		Permit(entity.StatusDeclined, ReviewerNotOwner).
		Permit(entity.StatusPaid, ReviewerNotOwner)

	builder.Configure(entity.StatusApproved).
		Permit(entity.StatusPaid, ReviewerNotOwner)

	builder.Terminal(entity.StatusDeclined, entity.StatusPaid)

	return builder.Build(policy)
}

// DepositTable builds the deposit lifecycle:
//
//	pending -> verified | rejected
func DepositTable(policy *RolePolicy) *Table {
	builder := NewBuilder(entity.KindDeposit, entity.StatusPending)

	builder.Configure(entity.StatusPending).
		Permit(entity.StatusVerified, ReviewerNotOwner).
		Permit(entity.StatusRejected, ReviewerNotOwner)

	builder.Terminal(entity.StatusVerified, entity.StatusRejected)

	return builder.Build(policy)
}

// ForKind returns the table for a record kind
func ForKind(kind entity.Kind, policy *RolePolicy) (*Table, error) {
	switch kind {
	case entity.KindReimbursement:
		return ReimbursementTable(policy), nil
	case entity.KindDeposit:
		return DepositTable(policy), nil
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
}
