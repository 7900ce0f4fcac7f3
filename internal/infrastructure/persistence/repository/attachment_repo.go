package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
)

const attachmentColumns = `
	id, record_kind, record_id, category, file_name, path, url, size,
	mime_type, uploaded_by, created_at`

// AttachmentRepository implements port.AttachmentRepository
type AttachmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAttachmentRepository creates a new attachment repository
func NewAttachmentRepository(db *sql.DB, logger *zap.Logger) port.AttachmentRepository {
	return &AttachmentRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the attachment row, filling in its ID and store-assigned
// creation time
func (r *AttachmentRepository) Create(ctx context.Context, att *entity.Attachment) error {
	const query = `
		INSERT INTO attachments (
			id, record_kind, record_id, category, file_name, path, url, size,
			mime_type, uploaded_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING created_at`

	id := uuid.NewString()
	var created string
	err := executor(ctx, r.db).QueryRowContext(ctx, query,
		id, att.RecordKind, att.RecordID, att.Category, att.FileName,
		att.Path, att.URL, att.Size, att.MimeType, att.UploadedBy,
	).Scan(&created)
	if err != nil {
		r.logger.Error("Attachment insert failed", zap.String("path", att.Path), zap.Error(err))
		return fmt.Errorf("failed to create attachment: %w", err)
	}

	createdAt, err := parseStoreTime(created)
	if err != nil {
		return err
	}
	att.ID, att.CreatedAt = id, createdAt
	return nil
}

// GetByID retrieves an attachment by ID
func (r *AttachmentRepository) GetByID(ctx context.Context, id string) (*entity.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE id = ?`

	att, err := scanAttachment(executor(ctx, r.db).QueryRowContext(ctx, query, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("attachment %s: %w", id, port.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("failed to get attachment %s: %w", id, err)
	}
	return &att, nil
}

// ListByRecord retrieves a record's attachments in upload order
func (r *AttachmentRepository) ListByRecord(ctx context.Context, kind entity.Kind, recordID string) ([]entity.Attachment, error) {
	query := `SELECT ` + attachmentColumns + `
		FROM attachments
		WHERE record_kind = ? AND record_id = ?
		ORDER BY created_at ASC, id ASC`
	return r.list(ctx, query, kind, recordID)
}

// ListAll retrieves every attachment
func (r *AttachmentRepository) ListAll(ctx context.Context) ([]entity.Attachment, error) {
	return r.list(ctx, `SELECT `+attachmentColumns+` FROM attachments ORDER BY created_at ASC, id ASC`)
}

// UpdatePath points the attachment at a new blob key
func (r *AttachmentRepository) UpdatePath(ctx context.Context, id, path, url string) error {
	result, err := executor(ctx, r.db).ExecContext(ctx,
		`UPDATE attachments SET path = ?, url = ? WHERE id = ?`, path, url, id)
	if err != nil {
		r.logger.Error("Failed to update attachment path", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update attachment path: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("attachment %s: %w", id, port.ErrNotFound)
	}
	return nil
}

// DeleteByRecord removes every attachment row of a record
func (r *AttachmentRepository) DeleteByRecord(ctx context.Context, kind entity.Kind, recordID string) error {
	_, err := executor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM attachments WHERE record_kind = ? AND record_id = ?`, kind, recordID)
	if err != nil {
		r.logger.Error("Failed to delete attachments", zap.String("record_id", recordID), zap.Error(err))
		return fmt.Errorf("failed to delete attachments: %w", err)
	}
	return nil
}

func (r *AttachmentRepository) list(ctx context.Context, query string, args ...interface{}) ([]entity.Attachment, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list attachments", zap.Error(err))
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	atts := []entity.Attachment{}
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		atts = append(atts, att)
	}
	return atts, rows.Err()
}

func scanAttachment(row rowScanner) (entity.Attachment, error) {
	var att entity.Attachment
	var created string
	err := row.Scan(&att.ID, &att.RecordKind, &att.RecordID, &att.Category,
		&att.FileName, &att.Path, &att.URL, &att.Size, &att.MimeType,
		&att.UploadedBy, &created)
	if err != nil {
		return att, err
	}
	att.CreatedAt, err = parseStoreTime(created)
	return att, err
}
