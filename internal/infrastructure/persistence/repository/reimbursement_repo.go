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
	"github.com/ieeeucsd/dashboard-finance/pkg/database"
)

const reimbursementColumns = `
	id, title, amount, status, submitted_by, submitter_name, department,
	payment_method, date_of_purchase, additional_info, created_at, updated_at`

// ReimbursementRepository implements port.ReimbursementRepository
type ReimbursementRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReimbursementRepository creates a new reimbursement repository
func NewReimbursementRepository(db *sql.DB, logger *zap.Logger) port.ReimbursementRepository {
	return &ReimbursementRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the reimbursement and its line items. Must run inside a
// transaction so the line items land atomically with the record.
func (r *ReimbursementRepository) Create(ctx context.Context, rec *entity.Reimbursement) error {
	query := `
		INSERT INTO reimbursements (
			id, title, amount, status, submitted_by, submitter_name, department,
			payment_method, date_of_purchase, additional_info
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	id := uuid.NewString()
	_, err := executor(ctx, r.db).ExecContext(ctx, query,
		id,
		rec.Title,
		rec.Amount.String(),
		rec.Status,
		rec.SubmittedBy,
		rec.SubmitterName,
		rec.Department,
		rec.PaymentMethod,
		formatDate(rec.DateOfPurchase),
		rec.AdditionalInfo,
	)
	if err != nil {
		r.logger.Error("Failed to create reimbursement", zap.Error(err))
		return fmt.Errorf("failed to create reimbursement: %w", err)
	}
	rec.ID = id

	if err := r.replaceLineItems(ctx, rec); err != nil {
		return err
	}
	return r.refreshTimestamps(ctx, rec)
}

// GetByID retrieves a reimbursement with its line items
func (r *ReimbursementRepository) GetByID(ctx context.Context, id string) (*entity.Reimbursement, error) {
	query := `SELECT ` + reimbursementColumns + ` FROM reimbursements WHERE id = ?`

	rec, err := scanReimbursement(executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reimbursement %s: %w", id, port.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get reimbursement", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get reimbursement: %w", err)
	}

	items, err := r.lineItems(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	rec.LineItems = items[id]
	return rec, nil
}

// List returns every reimbursement, newest first
func (r *ReimbursementRepository) List(ctx context.Context) ([]*entity.Reimbursement, error) {
	query := `SELECT ` + reimbursementColumns + ` FROM reimbursements ORDER BY created_at DESC, id`

	rows, err := executor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list reimbursements", zap.Error(err))
		return nil, fmt.Errorf("failed to list reimbursements: %w", err)
	}
	defer rows.Close()

	var recs []*entity.Reimbursement
	var ids []string
	for rows.Next() {
		rec, err := scanReimbursement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reimbursement: %w", err)
		}
		recs = append(recs, rec)
		ids = append(ids, rec.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reimbursements: %w", err)
	}
	rows.Close()

	if len(recs) == 0 {
		return recs, nil
	}
	items, err := r.lineItems(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		rec.LineItems = items[rec.ID]
	}
	return recs, nil
}

// Update writes the mutable columns and line items only if the stored status
// still equals expected
func (r *ReimbursementRepository) Update(ctx context.Context, rec *entity.Reimbursement, expected entity.Status) error {
	query := `
		UPDATE reimbursements SET
			title = ?, amount = ?, status = ?, department = ?, payment_method = ?,
			date_of_purchase = ?, additional_info = ?,
			updated_at = ` + database.NowExpr + `
		WHERE id = ? AND status = ?
	`

	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		rec.Title,
		rec.Amount.String(),
		rec.Status,
		rec.Department,
		rec.PaymentMethod,
		formatDate(rec.DateOfPurchase),
		rec.AdditionalInfo,
		rec.ID,
		expected,
	)
	if err != nil {
		r.logger.Error("Failed to update reimbursement", zap.String("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to update reimbursement: %w", err)
	}
	if err := checkConditionalWrite(result, rec.ID, expected); err != nil {
		return err
	}

	if err := r.replaceLineItems(ctx, rec); err != nil {
		return err
	}
	return r.refreshTimestamps(ctx, rec)
}

// Delete removes the reimbursement; line items cascade
func (r *ReimbursementRepository) Delete(ctx context.Context, id string) error {
	result, err := executor(ctx, r.db).ExecContext(ctx, `DELETE FROM reimbursements WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete reimbursement", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete reimbursement: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("reimbursement %s: %w", id, port.ErrNotFound)
	}
	return nil
}

func (r *ReimbursementRepository) replaceLineItems(ctx context.Context, rec *entity.Reimbursement) error {
	exec := executor(ctx, r.db)
	if _, err := exec.ExecContext(ctx, `DELETE FROM reimbursement_line_items WHERE reimbursement_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("failed to clear line items: %w", err)
	}

	rec.NormalizeLineItems()
	for _, item := range rec.LineItems {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO reimbursement_line_items (
				reimbursement_id, position, description, category, amount, receipt_ref
			) VALUES (?, ?, ?, ?, ?, ?)
		`, rec.ID, item.Position, item.Description, item.Category, item.Amount.String(), item.ReceiptRef)
		if err != nil {
			r.logger.Error("Failed to insert line item",
				zap.String("reimbursement_id", rec.ID),
				zap.Int("position", item.Position),
				zap.Error(err))
			return fmt.Errorf("failed to insert line item: %w", err)
		}
	}
	return nil
}

// lineItems loads line items grouped by reimbursement. A nil ids slice loads all.
func (r *ReimbursementRepository) lineItems(ctx context.Context, ids []string) (map[string][]entity.LineItem, error) {
	query := `
		SELECT reimbursement_id, position, description, category, amount, receipt_ref
		FROM reimbursement_line_items
	`
	var args []interface{}
	if len(ids) == 1 {
		query += ` WHERE reimbursement_id = ?`
		args = append(args, ids[0])
	}
	query += ` ORDER BY reimbursement_id, position`

	rows, err := executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]entity.LineItem)
	for rows.Next() {
		var recID, amount string
		var item entity.LineItem
		if err := rows.Scan(&recID, &item.Position, &item.Description, &item.Category, &amount, &item.ReceiptRef); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		if item.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		items[recID] = append(items[recID], item)
	}
	return items, rows.Err()
}

func (r *ReimbursementRepository) refreshTimestamps(ctx context.Context, rec *entity.Reimbursement) error {
	var created, updated string
	err := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM reimbursements WHERE id = ?`, rec.ID,
	).Scan(&created, &updated)
	if err != nil {
		return fmt.Errorf("failed to read timestamps: %w", err)
	}
	if rec.CreatedAt, err = parseStoreTime(created); err != nil {
		return err
	}
	rec.UpdatedAt, err = parseStoreTime(updated)
	return err
}

func scanReimbursement(row rowScanner) (*entity.Reimbursement, error) {
	var rec entity.Reimbursement
	var amount, purchased, created, updated string
	err := row.Scan(
		&rec.ID,
		&rec.Title,
		&amount,
		&rec.Status,
		&rec.SubmittedBy,
		&rec.SubmitterName,
		&rec.Department,
		&rec.PaymentMethod,
		&purchased,
		&rec.AdditionalInfo,
		&created,
		&updated,
	)
	if err != nil {
		return nil, err
	}

	if rec.Amount, err = parseAmount(amount); err != nil {
		return nil, err
	}
	if rec.DateOfPurchase, err = parseDate(purchased); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseStoreTime(created); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseStoreTime(updated); err != nil {
		return nil, err
	}
	return &rec, nil
}

// checkConditionalWrite maps a zero-row conditional update to ErrConflict
func checkConditionalWrite(result sql.Result, id string, expected entity.Status) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record %s no longer has status %q: %w", id, expected, port.ErrConflict)
	}
	return nil
}
