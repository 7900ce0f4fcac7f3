package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ieeeucsd/dashboard-finance/internal/application/port"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
	"github.com/ieeeucsd/dashboard-finance/pkg/database"
)

// ProfileRepository implements port.ProfileRepository
type ProfileRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *sql.DB, logger *zap.Logger) port.ProfileRepository {
	return &ProfileRepository{
		db:     db,
		logger: logger,
	}
}

// GetByUserID returns ErrNotFound when the user has no profile
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*entity.Profile, error) {
	p, err := scanProfile(executor(ctx, r.db).QueryRowContext(ctx, `
		SELECT user_id, display_name, email, role, created_at, updated_at
		FROM profiles WHERE user_id = ?
	`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", userID, port.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get profile", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// Upsert creates or replaces the profile
func (r *ProfileRepository) Upsert(ctx context.Context, p *entity.Profile) error {
	_, err := executor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO profiles (user_id, display_name, email, role)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email,
			role = excluded.role,
			updated_at = `+database.NowExpr+`
	`, p.UserID, p.DisplayName, p.Email, p.Role)
	if err != nil {
		r.logger.Error("Failed to upsert profile", zap.String("user_id", p.UserID), zap.Error(err))
		return fmt.Errorf("failed to upsert profile: %w", err)
	}

	stored, err := r.GetByUserID(ctx, p.UserID)
	if err != nil {
		return err
	}
	*p = *stored
	return nil
}

// List returns every profile ordered by display name
func (r *ProfileRepository) List(ctx context.Context) ([]*entity.Profile, error) {
	rows, err := executor(ctx, r.db).QueryContext(ctx, `
		SELECT user_id, display_name, email, role, created_at, updated_at
		FROM profiles ORDER BY display_name, user_id
	`)
	if err != nil {
		r.logger.Error("Failed to list profiles", zap.Error(err))
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*entity.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func scanProfile(row rowScanner) (*entity.Profile, error) {
	var p entity.Profile
	var created, updated string
	if err := row.Scan(&p.UserID, &p.DisplayName, &p.Email, &p.Role, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if p.CreatedAt, err = parseStoreTime(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseStoreTime(updated); err != nil {
		return nil, err
	}
	return &p, nil
}
