package entity

// Kind identifies which record collection a document belongs to
type Kind string

const (
	KindReimbursement Kind = "reimbursement"
	KindDeposit       Kind = "deposit"
)

// String returns the string representation of the kind
func (k Kind) String() string {
	return string(k)
}

// IsValid returns true if the kind is a known record collection
func (k Kind) IsValid() bool {
	return k == KindReimbursement || k == KindDeposit
}

// Status is the lifecycle status of a record
type Status string

// Reimbursement statuses
const (
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusDeclined  Status = "declined"
	StatusPaid      Status = "paid"
)

// Deposit statuses
const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// Audit log action names that are not status names
const (
	ActionCreated         = "created"
	ActionUpdated         = "updated"
	ActionAttachmentAdded = "attachment_added"
)

// Expense categories for reimbursement line items
const (
	CategoryFood          = "food"
	CategoryTravel        = "travel"
	CategoryEquipment     = "equipment"
	CategorySupplies      = "supplies"
	CategoryPrinting      = "printing"
	CategoryRegistration  = "registration"
	CategorySubscriptions = "subscriptions"
	CategoryOther         = "other"
)

var validCategories = map[string]bool{
	CategoryFood:          true,
	CategoryTravel:        true,
	CategoryEquipment:     true,
	CategorySupplies:      true,
	CategoryPrinting:      true,
	CategoryRegistration:  true,
	CategorySubscriptions: true,
	CategoryOther:         true,
}

// IsValidCategory reports whether c is a known line item category
func IsValidCategory(c string) bool {
	return validCategories[c]
}

// Department values for reimbursements
const (
	DepartmentInternal = "internal"
	DepartmentExternal = "external"
	DepartmentProjects = "projects"
	DepartmentEvents   = "events"
	DepartmentOther    = "other"
)

// Deposit methods
const (
	DepositMethodCash  = "cash"
	DepositMethodCheck = "check"
	DepositMethodVenmo = "venmo"
	DepositMethodOther = "other"
)
