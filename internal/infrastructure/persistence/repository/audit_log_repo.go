package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
)

// AuditLogRepository implements port.AuditLogRepository
type AuditLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *sql.DB, logger *zap.Logger) port.AuditLogRepository {
	return &AuditLogRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts the entry and copies back the store-assigned seq and time
func (r *AuditLogRepository) Append(ctx context.Context, entry *entity.AuditLogEntry) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("failed to encode changes: %w", err)
	}
	if entry.Changes == nil {
		changes = []byte("[]")
	}

	exec := executor(ctx, r.db)
	result, err := exec.ExecContext(ctx, `
		INSERT INTO audit_log (
			record_kind, record_id, action, actor_id, actor_name, note, changes
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		entry.RecordKind,
		entry.RecordID,
		entry.Action,
		entry.ActorID,
		entry.ActorName,
		entry.Note,
		string(changes),
	)
	if err != nil {
		r.logger.Error("Failed to append audit entry",
			zap.String("record_id", entry.RecordID),
			zap.String("action", entry.Action),
			zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	var ts string
	if err := exec.QueryRowContext(ctx, `SELECT created_at FROM audit_log WHERE seq = ?`, seq).Scan(&ts); err != nil {
		return fmt.Errorf("failed to read audit timestamp: %w", err)
	}
	if entry.Timestamp, err = parseStoreTime(ts); err != nil {
		return err
	}
	entry.Seq = seq
	return nil
}

// ListByRecord returns the record's history in append order
func (r *AuditLogRepository) ListByRecord(ctx context.Context, kind entity.Kind, recordID string) ([]entity.AuditLogEntry, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, `
		SELECT seq, record_kind, record_id, action, actor_id, actor_name, note, changes, created_at
		FROM audit_log
		WHERE record_kind = ? AND record_id = ?
		ORDER BY seq ASC
	`, kind, recordID)
	if err != nil {
		r.logger.Error("Failed to list audit log", zap.String("record_id", recordID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit log: %w", err)
	}
	defer rows.Close()

	entries := []entity.AuditLogEntry{}
	for rows.Next() {
		var entry entity.AuditLogEntry
		var changes, ts string
		if err := rows.Scan(
			&entry.Seq,
			&entry.RecordKind,
			&entry.RecordID,
			&entry.Action,
			&entry.ActorID,
			&entry.ActorName,
			&entry.Note,
			&changes,
			&ts,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if err := json.Unmarshal([]byte(changes), &entry.Changes); err != nil {
			return nil, fmt.Errorf("failed to decode changes of entry %d: %w", entry.Seq, err)
		}
		if entry.Timestamp, err = parseStoreTime(ts); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteByRecord removes a deleted record's history
func (r *AuditLogRepository) DeleteByRecord(ctx context.Context, kind entity.Kind, recordID string) error {
	_, err := executor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM audit_log WHERE record_kind = ? AND record_id = ?`, kind, recordID)
	if err != nil {
		r.logger.Error("Failed to delete audit log", zap.String("record_id", recordID), zap.Error(err))
		return fmt.Errorf("failed to delete audit log: %w", err)
	}
	return nil
}
