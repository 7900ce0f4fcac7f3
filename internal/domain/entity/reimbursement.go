package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Reimbursement is a member's request to be paid back for club expenses
type Reimbursement struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Amount         decimal.Decimal `json:"amount"`
	Status         Status          `json:"status"`
	SubmittedBy    string          `json:"submitted_by"`
	SubmitterName  string          `json:"submitter_name"`
	Department     string          `json:"department"`
	PaymentMethod  string          `json:"payment_method"`
	DateOfPurchase time.Time       `json:"date_of_purchase"`
	AdditionalInfo string          `json:"additional_info,omitempty"`
	LineItems      []LineItem      `json:"line_items"`
	Attachments    []Attachment    `json:"attachments,omitempty"`
	AuditLog       []AuditLogEntry `json:"audit_log,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// LineItem is a single expense within a reimbursement
type LineItem struct {
	Position    int             `json:"position"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	ReceiptRef  string          `json:"receipt_ref,omitempty"`
}

// Kind implements Record
func (r *Reimbursement) Kind() Kind { return KindReimbursement }

// RecordID implements Record
func (r *Reimbursement) RecordID() string { return r.ID }

// SetRecordID implements Record
func (r *Reimbursement) SetRecordID(id string) { r.ID = id }

// CurrentStatus implements Record
func (r *Reimbursement) CurrentStatus() Status { return r.Status }

// SetStatus implements Record
func (r *Reimbursement) SetStatus(status Status) { r.Status = status }

// TotalAmount implements Record
func (r *Reimbursement) TotalAmount() decimal.Decimal { return r.Amount }

// SubmitterID implements Record
func (r *Reimbursement) SubmitterID() string { return r.SubmittedBy }

// Submitter implements Record
func (r *Reimbursement) Submitter() Actor {
	return Actor{UserID: r.SubmittedBy, DisplayName: r.SubmitterName}
}

// SetSubmitter implements Record
func (r *Reimbursement) SetSubmitter(actor Actor) {
	r.SubmittedBy = actor.UserID
	r.SubmitterName = actor.DisplayName
}

// SetTimestamps implements Record
func (r *Reimbursement) SetTimestamps(created, updated time.Time) {
	r.CreatedAt = created
	r.UpdatedAt = updated
}

// SetAuditLog implements Record
func (r *Reimbursement) SetAuditLog(entries []AuditLogEntry) { r.AuditLog = entries }

// SetAttachments implements Record
func (r *Reimbursement) SetAttachments(attachments []Attachment) { r.Attachments = attachments }

// SearchText implements Record
func (r *Reimbursement) SearchText() string {
	parts := []string{r.ID, r.Title, r.SubmitterName, r.Department, r.AdditionalInfo}
	for _, item := range r.LineItems {
		parts = append(parts, item.Description)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// LineItemTotal sums the line item amounts
func (r *Reimbursement) LineItemTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range r.LineItems {
		total = total.Add(item.Amount)
	}
	return total
}

// TrackedFields implements Record
func (r *Reimbursement) TrackedFields() []Field {
	items := make([]string, 0, len(r.LineItems))
	for _, item := range r.LineItems {
		text := item.Description + " (" + item.Category + ") " + item.Amount.String()
		if item.ReceiptRef != "" {
			text += " receipt=" + item.ReceiptRef
		}
		items = append(items, text)
	}
	return []Field{
		{Name: "title", Value: r.Title},
		{Name: "amount", Value: r.Amount.String()},
		{Name: "department", Value: r.Department},
		{Name: "payment_method", Value: r.PaymentMethod},
		{Name: "date_of_purchase", Value: formatDate(r.DateOfPurchase)},
		{Name: "additional_info", Value: r.AdditionalInfo},
		{Name: "line_items", Value: strings.Join(items, "; ")},
	}
}

// Validate checks required fields and amounts
func (r *Reimbursement) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return validationError("title is required")
	}
	if err := checkAmount("amount", r.Amount); err != nil {
		return err
	}
	if strings.TrimSpace(r.PaymentMethod) == "" {
		return validationError("payment method is required")
	}
	if r.DateOfPurchase.IsZero() {
		return validationError("date of purchase is required")
	}

	for i, item := range r.LineItems {
		if strings.TrimSpace(item.Description) == "" {
			return validationError("line item %d: description is required", i+1)
		}
		if !IsValidCategory(item.Category) {
			return validationError("line item %d: unknown category %q", i+1, item.Category)
		}
		if err := checkAmount(fmt.Sprintf("line item %d: amount", i+1), item.Amount); err != nil {
			return err
		}
	}

	if len(r.LineItems) > 0 && !r.LineItemTotal().Equal(r.Amount) {
		return validationError("line items total %s does not match amount %s",
			r.LineItemTotal().StringFixed(2), r.Amount.StringFixed(2))
	}

	return nil
}

// Clone implements Record
func (r *Reimbursement) Clone() Record {
	c := *r
	c.LineItems = append([]LineItem(nil), r.LineItems...)
	c.Attachments = append([]Attachment(nil), r.Attachments...)
	c.AuditLog = append([]AuditLogEntry(nil), r.AuditLog...)
	return &c
}

// NormalizeLineItems assigns positions in slice order
func (r *Reimbursement) NormalizeLineItems() {
	for i := range r.LineItems {
		r.LineItems[i].Position = i
	}
}
