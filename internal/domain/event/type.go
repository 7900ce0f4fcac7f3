package event

// Type identifies the type of domain event
type Type string

const (
	TypeRecordCreated       Type = "record.created"
	TypeRecordUpdated       Type = "record.updated"
	TypeRecordStatusChanged Type = "record.status_changed"
	TypeRecordDeleted       Type = "record.deleted"
	TypeAttachmentAdded     Type = "attachment.added"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRecordCreated,
		TypeRecordUpdated,
		TypeRecordStatusChanged,
		TypeRecordDeleted,
		TypeAttachmentAdded:
		return true
	default:
		return false
	}
}

// AllTypes lists every event type in a stable order
func AllTypes() []Type {
	return []Type{
		TypeRecordCreated,
		TypeRecordUpdated,
		TypeRecordStatusChanged,
		TypeRecordDeleted,
		TypeAttachmentAdded,
	}
}
