package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"paywatch/internal/types"
)

// UserRepo resolves gateway customers to users. Lookups return (nil, nil)
// when no user matches; only infrastructure failures produce errors.
type UserRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewUserRepo creates a UserRepo backed by the given database connection
// (pool or transaction).
func NewUserRepo(db DBTX, logger *slog.Logger) *UserRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserRepo{db: db, logger: logger}
}

// FindByEmail returns the user with the given email, matched
// case-insensitively because gateways do not normalize customer emails.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*types.User, error) {
	var u types.User
	err := r.db.QueryRow(ctx,
		`SELECT id, email, created_at
		 FROM users
		 WHERE lower(email) = lower($1)`,
		email,
	).Scan(&u.ID, &u.Email, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up user by email", err)
	}
	return &u, nil
}

// FindByCustomerRef returns the user whose plan record carries the given
// gateway customer reference. The reference is written when a subscription is
// created, so this fallback only resolves customers that subscribed at least
// once.
func (r *UserRepo) FindByCustomerRef(ctx context.Context, customerRef string) (*types.User, error) {
	var u types.User
	err := r.db.QueryRow(ctx,
		`SELECT u.id, u.email, u.created_at
		 FROM users u
		 JOIN user_plan_states s ON s.user_id = u.id
		 WHERE s.customer_reference = $1`,
		customerRef,
	).Scan(&u.ID, &u.Email, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up user by customer reference", err)
	}
	return &u, nil
}
