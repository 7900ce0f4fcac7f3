package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Deposit tracks club funds handed in by a member for the treasurer to verify
type Deposit struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Amount          decimal.Decimal `json:"amount"`
	Status          Status          `json:"status"`
	SubmittedBy     string          `json:"submitted_by"`
	SubmitterName   string          `json:"submitter_name"`
	DepositDate     time.Time       `json:"deposit_date"`
	DepositMethod   string          `json:"deposit_method"`
	Purpose         string          `json:"purpose"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	VerifiedBy      string          `json:"verified_by,omitempty"`
	VerifiedAt      *time.Time      `json:"verified_at,omitempty"`
	Attachments     []Attachment    `json:"attachments,omitempty"`
	AuditLog        []AuditLogEntry `json:"audit_log,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

var validDepositMethods = map[string]bool{
	DepositMethodCash:  true,
	DepositMethodCheck: true,
	DepositMethodVenmo: true,
	DepositMethodOther: true,
}

// Kind implements Record
func (d *Deposit) Kind() Kind { return KindDeposit }

// RecordID implements Record
func (d *Deposit) RecordID() string { return d.ID }

// SetRecordID implements Record
func (d *Deposit) SetRecordID(id string) { d.ID = id }

// CurrentStatus implements Record
func (d *Deposit) CurrentStatus() Status { return d.Status }

// SetStatus implements Record
func (d *Deposit) SetStatus(status Status) { d.Status = status }

// TotalAmount implements Record
func (d *Deposit) TotalAmount() decimal.Decimal { return d.Amount }

// SubmitterID implements Record
func (d *Deposit) SubmitterID() string { return d.SubmittedBy }

// Submitter implements Record
func (d *Deposit) Submitter() Actor {
	return Actor{UserID: d.SubmittedBy, DisplayName: d.SubmitterName}
}

// SetSubmitter implements Record
func (d *Deposit) SetSubmitter(actor Actor) {
	d.SubmittedBy = actor.UserID
	d.SubmitterName = actor.DisplayName
}

// SetTimestamps implements Record
func (d *Deposit) SetTimestamps(created, updated time.Time) {
	d.CreatedAt = created
	d.UpdatedAt = updated
}

// SetAuditLog implements Record
func (d *Deposit) SetAuditLog(entries []AuditLogEntry) { d.AuditLog = entries }

// SetAttachments implements Record
func (d *Deposit) SetAttachments(attachments []Attachment) { d.Attachments = attachments }

// SearchText implements Record
func (d *Deposit) SearchText() string {
	return strings.ToLower(strings.Join([]string{
		d.ID, d.Title, d.SubmitterName, d.Purpose, d.ReferenceNumber, d.Notes,
	}, " "))
}

// TrackedFields implements Record
func (d *Deposit) TrackedFields() []Field {
	return []Field{
		{Name: "title", Value: d.Title},
		{Name: "amount", Value: d.Amount.String()},
		{Name: "deposit_date", Value: formatDate(d.DepositDate)},
		{Name: "deposit_method", Value: d.DepositMethod},
		{Name: "purpose", Value: d.Purpose},
		{Name: "reference_number", Value: d.ReferenceNumber},
		{Name: "notes", Value: d.Notes},
	}
}

// Validate checks required fields and amounts
func (d *Deposit) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return validationError("title is required")
	}
	if err := checkAmount("amount", d.Amount); err != nil {
		return err
	}
	if d.DepositDate.IsZero() {
		return validationError("deposit date is required")
	}
	if !validDepositMethods[d.DepositMethod] {
		return validationError("unknown deposit method %q", d.DepositMethod)
	}
	if strings.TrimSpace(d.Purpose) == "" {
		return validationError("purpose is required")
	}
	return nil
}

// Clone implements Record
func (d *Deposit) Clone() Record {
	c := *d
	if d.VerifiedAt != nil {
		t := *d.VerifiedAt
		c.VerifiedAt = &t
	}
	c.Attachments = append([]Attachment(nil), d.Attachments...)
	c.AuditLog = append([]AuditLogEntry(nil), d.AuditLog...)
	return &c
}

// ApplyReview implements Reviewed. Verification records the reviewer; the
// store stamps VerifiedAt.
func (d *Deposit) ApplyReview(to Status, reviewer Actor) {
	if to == StatusVerified {
		d.VerifiedBy = reviewer.UserID
	}
}
