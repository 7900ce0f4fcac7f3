package http

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
)

const dateLayout = "2006-01-02"

// recordInput is a decoded create or patch body. Nil fields are left
// unchanged.
type recordInput[T entity.Record] interface {
	Apply(rec T) error
	Expected() entity.Status
}

// ReimbursementInput is the body of reimbursement create and patch requests
type ReimbursementInput struct {
	ExpectedStatus entity.Status      `json:"expected_status,omitempty"`
	Title          *string            `json:"title"`
	Amount         *decimal.Decimal   `json:"amount"`
	Department     *string            `json:"department"`
	PaymentMethod  *string            `json:"payment_method"`
	DateOfPurchase *string            `json:"date_of_purchase"`
	AdditionalInfo *string            `json:"additional_info"`
	LineItems      *[]entity.LineItem `json:"line_items"`
}

// Expected implements recordInput
func (in *ReimbursementInput) Expected() entity.Status { return in.ExpectedStatus }

// Apply implements recordInput
func (in *ReimbursementInput) Apply(r *entity.Reimbursement) error {
	if in.Title != nil {
		r.Title = *in.Title
	}
	if in.Amount != nil {
		r.Amount = *in.Amount
	}
	if in.Department != nil {
		r.Department = *in.Department
	}
	if in.PaymentMethod != nil {
		r.PaymentMethod = *in.PaymentMethod
	}
	if in.DateOfPurchase != nil {
		d, err := parseDate("date_of_purchase", *in.DateOfPurchase)
		if err != nil {
			return err
		}
		r.DateOfPurchase = d
	}
	if in.AdditionalInfo != nil {
		r.AdditionalInfo = *in.AdditionalInfo
	}
	if in.LineItems != nil {
		r.LineItems = append([]entity.LineItem(nil), (*in.LineItems)...)
		r.NormalizeLineItems()
	}
	return nil
}

// DepositInput is the body of deposit create and patch requests
type DepositInput struct {
	ExpectedStatus  entity.Status    `json:"expected_status,omitempty"`
	Title           *string          `json:"title"`
	Amount          *decimal.Decimal `json:"amount"`
	DepositDate     *string          `json:"deposit_date"`
	DepositMethod   *string          `json:"deposit_method"`
	Purpose         *string          `json:"purpose"`
	ReferenceNumber *string          `json:"reference_number"`
	Notes           *string          `json:"notes"`
}

// Expected implements recordInput
func (in *DepositInput) Expected() entity.Status { return in.ExpectedStatus }

// Apply implements recordInput
func (in *DepositInput) Apply(d *entity.Deposit) error {
	if in.Title != nil {
		d.Title = *in.Title
	}
	if in.Amount != nil {
		d.Amount = *in.Amount
	}
	if in.DepositDate != nil {
		date, err := parseDate("deposit_date", *in.DepositDate)
		if err != nil {
			return err
		}
		d.DepositDate = date
	}
	if in.DepositMethod != nil {
		d.DepositMethod = *in.DepositMethod
	}
	if in.Purpose != nil {
		d.Purpose = *in.Purpose
	}
	if in.ReferenceNumber != nil {
		d.ReferenceNumber = *in.ReferenceNumber
	}
	if in.Notes != nil {
		d.Notes = *in.Notes
	}
	return nil
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", entity.ErrValidation, field)
	}
	return t, nil
}
