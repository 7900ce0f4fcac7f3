package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
)

type txKey struct{}

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB is the port.TransactionManager over one SQLite pool. The transaction is
// carried in the context so repositories join it through ExecutorFrom.
type DB struct {
	*sql.DB
	logger *zap.Logger
}

var _ port.TransactionManager = (*DB)(nil)

// NewDB creates a new transaction manager
func NewDB(sqlDB *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: sqlDB, logger: logger}
}

// WithTransaction runs fn inside a transaction, committing when it returns
// nil. Nested calls join the transaction already in ctx. Lock contention and
// unique-constraint failures surface as port.ErrConflict.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTransaction(ctx) {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", translate(err))
	}

	if err := db.run(context.WithValue(ctx, txKey{}, tx), tx, fn); err != nil {
		return translate(err)
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", translate(err))
	}
	return nil
}

// run executes fn and rolls tx back on error or panic
func (db *DB) run(txCtx context.Context, tx *sql.Tx, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()
	return fn(txCtx)
}

// Executor returns the transaction carried by ctx, or the pool
func (db *DB) Executor(ctx context.Context) Executor {
	return ExecutorFrom(ctx, db.DB)
}

// ExecutorFrom returns the transaction carried by ctx, falling back to db
func ExecutorFrom(ctx context.Context, db *sql.DB) Executor {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// InTransaction reports whether ctx carries a transaction
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sql.Tx)
	return ok
}

// IsConflict reports whether err is a SQLite lock or uniqueness failure
func IsConflict(err error) bool {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	switch {
	case sqlErr.Code == sqlite3.ErrBusy, sqlErr.Code == sqlite3.ErrLocked:
		return true
	case sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique, sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return true
	}
	return false
}

func translate(err error) error {
	if err == nil || errors.Is(err, port.ErrConflict) || !IsConflict(err) {
		return err
	}
	return fmt.Errorf("%w: %w", port.ErrConflict, err)
}
