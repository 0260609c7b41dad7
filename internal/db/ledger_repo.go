package db

import (
	"context"
	"log/slog"

	"paywatch/internal/types"
)

// LedgerRepo manages the append-only payment transaction ledger. Rows are
// never updated or deleted; the unique transaction reference is the
// idempotency key for gateway redeliveries.
type LedgerRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewLedgerRepo creates a LedgerRepo backed by the given database connection
// (pool or transaction).
func NewLedgerRepo(db DBTX, logger *slog.Logger) *LedgerRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerRepo{db: db, logger: logger}
}

// InsertIfAbsent appends a ledger row unless one with the same transaction
// reference already exists. Returns false when the reference was already
// recorded. ON CONFLICT DO NOTHING makes the duplicate check and the insert a
// single atomic statement, so two concurrent deliveries of the same event
// cannot both insert; the unique-violation fallback covers drivers reporting
// the race as an error instead of a zero row count.
func (r *LedgerRepo) InsertIfAbsent(ctx context.Context, t *types.PaymentTransaction) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO payment_transactions (
		     id, user_id, transaction_reference, amount, currency, status,
		     payment_method, gateway_reference, authorization_token,
		     subscription_reference, failure_reason, metadata, created_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (transaction_reference) DO NOTHING`,
		t.ID, t.UserID, t.Reference, t.Amount, t.Currency, t.Status,
		t.PaymentMethod, t.GatewayReference, t.AuthorizationToken,
		t.SubscriptionReference, t.FailureReason, t.Metadata, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record payment transaction", err)
	}

	return tag.RowsAffected() > 0, nil
}
