package db

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"paywatch/internal/types"
)

// Store is the pool-backed facade the payment processor talks to. Reads run
// directly on the pool; ApplyTransaction opens a transaction so the ledger
// append and the plan-state transition commit or roll back together.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store on top of an established connection pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// FindByEmail implements payment.UserDirectory.
func (s *Store) FindByEmail(ctx context.Context, email string) (*types.User, error) {
	return NewUserRepo(s.pool, s.logger).FindByEmail(ctx, email)
}

// FindByCustomerRef implements payment.UserDirectory.
func (s *Store) FindByCustomerRef(ctx context.Context, customerRef string) (*types.User, error) {
	return NewUserRepo(s.pool, s.logger).FindByCustomerRef(ctx, customerRef)
}

// GetPlanState implements payment.PlanStore.
func (s *Store) GetPlanState(ctx context.Context, userID string) (*types.UserPlanState, error) {
	return NewPlanStateRepo(s.pool, s.logger).Get(ctx, userID)
}

// SavePlanState implements payment.PlanStore.
func (s *Store) SavePlanState(ctx context.Context, state *types.UserPlanState) error {
	return NewPlanStateRepo(s.pool, s.logger).Save(ctx, state)
}

// ApplyTransaction implements payment.PlanStore. The ledger insert and the
// plan-state upsert share one database transaction: either both land or
// neither does, so a crash between the two cannot leave a recorded payment
// with an untransitioned plan. A duplicate transaction reference aborts
// before any write and returns (false, nil).
func (s *Store) ApplyTransaction(ctx context.Context, txn *types.PaymentTransaction, state *types.UserPlanState) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	inserted, err := NewLedgerRepo(tx, s.logger).InsertIfAbsent(ctx, txn)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	if err := NewPlanStateRepo(tx, s.logger).Save(ctx, state); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to commit transaction", err)
	}
	return true, nil
}

// Ping verifies database connectivity. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
