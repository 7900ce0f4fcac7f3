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

const depositColumns = `
	id, title, amount, status, submitted_by, submitter_name, deposit_date,
	deposit_method, purpose, reference_number, notes, verified_by, verified_at,
	created_at, updated_at`

// DepositRepository implements port.DepositRepository
type DepositRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDepositRepository creates a new deposit repository
func NewDepositRepository(db *sql.DB, logger *zap.Logger) port.DepositRepository {
	return &DepositRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new deposit
func (r *DepositRepository) Create(ctx context.Context, dep *entity.Deposit) error {
	query := `
		INSERT INTO deposits (
			id, title, amount, status, submitted_by, submitter_name, deposit_date,
			deposit_method, purpose, reference_number, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	id := uuid.NewString()
	_, err := executor(ctx, r.db).ExecContext(ctx, query,
		id,
		dep.Title,
		dep.Amount.String(),
		dep.Status,
		dep.SubmittedBy,
		dep.SubmitterName,
		formatDate(dep.DepositDate),
		dep.DepositMethod,
		dep.Purpose,
		dep.ReferenceNumber,
		dep.Notes,
	)
	if err != nil {
		r.logger.Error("Failed to create deposit", zap.Error(err))
		return fmt.Errorf("failed to create deposit: %w", err)
	}
	dep.ID = id

	return r.refresh(ctx, dep)
}

// GetByID retrieves a deposit
func (r *DepositRepository) GetByID(ctx context.Context, id string) (*entity.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE id = ?`

	dep, err := scanDeposit(executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deposit %s: %w", id, port.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get deposit", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	return dep, nil
}

// List returns every deposit, newest first
func (r *DepositRepository) List(ctx context.Context) ([]*entity.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits ORDER BY created_at DESC, id`

	rows, err := executor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list deposits", zap.Error(err))
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}
	defer rows.Close()

	var deps []*entity.Deposit
	for rows.Next() {
		dep, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deposit: %w", err)
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

// Update writes the mutable columns only if the stored status still equals
// expected. verified_at is stamped by the store the first time verified_by
// is set.
func (r *DepositRepository) Update(ctx context.Context, dep *entity.Deposit, expected entity.Status) error {
	query := `
		UPDATE deposits SET
			title = ?, amount = ?, status = ?, deposit_date = ?, deposit_method = ?,
			purpose = ?, reference_number = ?, notes = ?,
			verified_at = CASE
				WHEN ? = '' THEN NULL
				WHEN verified_at IS NULL THEN ` + database.NowExpr + `
				ELSE verified_at
			END,
			verified_by = ?,
			updated_at = ` + database.NowExpr + `
		WHERE id = ? AND status = ?
	`

	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		dep.Title,
		dep.Amount.String(),
		dep.Status,
		formatDate(dep.DepositDate),
		dep.DepositMethod,
		dep.Purpose,
		dep.ReferenceNumber,
		dep.Notes,
		dep.VerifiedBy,
		dep.VerifiedBy,
		dep.ID,
		expected,
	)
	if err != nil {
		r.logger.Error("Failed to update deposit", zap.String("id", dep.ID), zap.Error(err))
		return fmt.Errorf("failed to update deposit: %w", err)
	}
	if err := checkConditionalWrite(result, dep.ID, expected); err != nil {
		return err
	}
	return r.refresh(ctx, dep)
}

// Delete removes the deposit
func (r *DepositRepository) Delete(ctx context.Context, id string) error {
	result, err := executor(ctx, r.db).ExecContext(ctx, `DELETE FROM deposits WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete deposit", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete deposit: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("deposit %s: %w", id, port.ErrNotFound)
	}
	return nil
}

// refresh copies store-assigned columns back onto dep
func (r *DepositRepository) refresh(ctx context.Context, dep *entity.Deposit) error {
	var created, updated string
	var verifiedAt sql.NullString
	err := executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT created_at, updated_at, verified_at FROM deposits WHERE id = ?`, dep.ID,
	).Scan(&created, &updated, &verifiedAt)
	if err != nil {
		return fmt.Errorf("failed to read timestamps: %w", err)
	}
	if dep.CreatedAt, err = parseStoreTime(created); err != nil {
		return err
	}
	if dep.UpdatedAt, err = parseStoreTime(updated); err != nil {
		return err
	}
	dep.VerifiedAt, err = parseNullStoreTime(verifiedAt)
	return err
}

func scanDeposit(row rowScanner) (*entity.Deposit, error) {
	var dep entity.Deposit
	var amount, depositDate, created, updated string
	var verifiedAt sql.NullString
	err := row.Scan(
		&dep.ID,
		&dep.Title,
		&amount,
		&dep.Status,
		&dep.SubmittedBy,
		&dep.SubmitterName,
		&depositDate,
		&dep.DepositMethod,
		&dep.Purpose,
		&dep.ReferenceNumber,
		&dep.Notes,
		&dep.VerifiedBy,
		&verifiedAt,
		&created,
		&updated,
	)
	if err != nil {
		return nil, err
	}

	if dep.Amount, err = parseAmount(amount); err != nil {
		return nil, err
	}
	if dep.DepositDate, err = parseDate(depositDate); err != nil {
		return nil, err
	}
	if dep.VerifiedAt, err = parseNullStoreTime(verifiedAt); err != nil {
		return nil, err
	}
	if dep.CreatedAt, err = parseStoreTime(created); err != nil {
		return nil, err
	}
	if dep.UpdatedAt, err = parseStoreTime(updated); err != nil {
		return nil, err
	}
	return &dep, nil
}
