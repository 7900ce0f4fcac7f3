package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrValidation is wrapped by every field validation failure
var ErrValidation = errors.New("validation failed")

// Record is the common view of reimbursements and deposits used by the
// lifecycle service, the audit appender and the statistics fold.
type Record interface {
	Kind() Kind
	RecordID() string
	SetRecordID(id string)
	CurrentStatus() Status
	SetStatus(status Status)
	TotalAmount() decimal.Decimal
	SubmitterID() string
	Submitter() Actor
	SetSubmitter(actor Actor)
	SetTimestamps(created, updated time.Time)
	SetAuditLog(entries []AuditLogEntry)
	SetAttachments(attachments []Attachment)
	// SearchText is the lowercase text matched by dashboard searches
	SearchText() string
	// TrackedFields lists the editable fields in a stable order for diffing
	TrackedFields() []Field
	Validate() error
	Clone() Record
}

// Field is a named, rendered field value
type Field struct {
	Name  string
	Value string
}

// FieldChange records the before and after value of one edited field
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// String renders the change as a human-readable diff line
func (c FieldChange) String() string {
	return fmt.Sprintf("%s: %s → %s", c.Field, displayValue(c.Before), displayValue(c.After))
}

func displayValue(v string) string {
	if v == "" {
		return "(empty)"
	}
	return v
}

// Diff compares two tracked-field snapshots and returns one change per field
// whose value differs, in the order of before. Fields that only exist in after
// are reported with an empty before value.
func Diff(before, after []Field) []FieldChange {
	afterByName := make(map[string]string, len(after))
	for _, f := range after {
		afterByName[f.Name] = f.Value
	}

	seen := make(map[string]bool, len(before))
	var changes []FieldChange
	for _, f := range before {
		seen[f.Name] = true
		newValue := afterByName[f.Name]
		if f.Value != newValue {
			changes = append(changes, FieldChange{Field: f.Name, Before: f.Value, After: newValue})
		}
	}
	for _, f := range after {
		if !seen[f.Name] && f.Value != "" {
			changes = append(changes, FieldChange{Field: f.Name, After: f.Value})
		}
	}
	return changes
}

// validationError builds an error wrapping ErrValidation
func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// checkAmount requires a positive amount in whole cents
func checkAmount(what string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return validationError("%s must be greater than zero", what)
	}
	if !amount.Equal(amount.Round(2)) {
		return validationError("%s %s has more than two decimal places", what, amount.String())
	}
	return nil
}

// formatDate renders a calendar date field
func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// Reviewed is implemented by records that remember who reviewed them
type Reviewed interface {
	ApplyReview(to Status, reviewer Actor)
}
