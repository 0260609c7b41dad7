package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"paywatch/internal/types"
)

// PlanStateRepo manages the per-user subscription state rows. One row per
// user; mutations always go through Save so the whole row reflects a single
// state machine transition.
type PlanStateRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewPlanStateRepo creates a PlanStateRepo backed by the given database
// connection (pool or transaction).
func NewPlanStateRepo(db DBTX, logger *slog.Logger) *PlanStateRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlanStateRepo{db: db, logger: logger}
}

// Get returns the plan row for the user, or (nil, nil) when the user has no
// row yet (the implicit free-plan pre-state).
func (r *PlanStateRepo) Get(ctx context.Context, userID string) (*types.UserPlanState, error) {
	var s types.UserPlanState
	err := r.db.QueryRow(ctx,
		`SELECT user_id, plan_type, payment_status, failed_payment_count,
		        grace_period_end, next_payment_date, last_payment_date,
		        subscription_reference, customer_reference, cancelled_at, updated_at
		 FROM user_plan_states
		 WHERE user_id = $1`,
		userID,
	).Scan(
		&s.UserID, &s.PlanType, &s.PaymentStatus, &s.FailedPaymentCount,
		&s.GracePeriodEnd, &s.NextPaymentDate, &s.LastPaymentDate,
		&s.SubscriptionReference, &s.CustomerReference, &s.CancelledAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load plan state", err)
	}
	return &s, nil
}

// Save upserts the plan row. The row is created on a user's first payment
// event and overwritten in full on every later transition.
func (r *PlanStateRepo) Save(ctx context.Context, s *types.UserPlanState) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_plan_states (
		     user_id, plan_type, payment_status, failed_payment_count,
		     grace_period_end, next_payment_date, last_payment_date,
		     subscription_reference, customer_reference, cancelled_at, updated_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
		     plan_type = EXCLUDED.plan_type,
		     payment_status = EXCLUDED.payment_status,
		     failed_payment_count = EXCLUDED.failed_payment_count,
		     grace_period_end = EXCLUDED.grace_period_end,
		     next_payment_date = EXCLUDED.next_payment_date,
		     last_payment_date = EXCLUDED.last_payment_date,
		     subscription_reference = EXCLUDED.subscription_reference,
		     customer_reference = EXCLUDED.customer_reference,
		     cancelled_at = EXCLUDED.cancelled_at,
		     updated_at = NOW()`,
		s.UserID, s.PlanType, s.PaymentStatus, s.FailedPaymentCount,
		s.GracePeriodEnd, s.NextPaymentDate, s.LastPaymentDate,
		s.SubscriptionReference, s.CustomerReference, s.CancelledAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save plan state", err)
	}
	return nil
}
