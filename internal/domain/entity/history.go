package entity

import (
	"strings"
	"time"
)

// AuditLogEntry is one immutable entry of a record's embedded history.
// Seq and Timestamp are assigned by the store when the entry is appended.
type AuditLogEntry struct {
	Seq        int64         `json:"seq"`
	RecordKind Kind          `json:"record_kind"`
	RecordID   string        `json:"record_id"`
	Action     string        `json:"action"`
	ActorID    string        `json:"actor_id"`
	ActorName  string        `json:"actor_name"`
	Timestamp  time.Time     `json:"timestamp"`
	Note       string        `json:"note,omitempty"`
	Changes    []FieldChange `json:"changes,omitempty"`
}

// Summary renders the changes as one line per field
func (e AuditLogEntry) Summary() string {
	lines := make([]string, 0, len(e.Changes))
	for _, c := range e.Changes {
		lines = append(lines, c.String())
	}
	return strings.Join(lines, "\n")
}

// NewAuditEntry builds an entry for rec performed by actor
func NewAuditEntry(rec Record, action string, actor Actor, note string, changes []FieldChange) *AuditLogEntry {
	return &AuditLogEntry{
		RecordKind: rec.Kind(),
		RecordID:   rec.RecordID(),
		Action:     action,
		ActorID:    actor.UserID,
		ActorName:  actor.DisplayName,
		Note:       note,
		Changes:    changes,
	}
}
