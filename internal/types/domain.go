// Package types defines the shared domain model for the paywatch payment
// processor: plan and payment-status enumerations, the persisted transaction
// and plan-state records, the webhook event envelope, and the application
// error type. It has no dependencies on other internal packages so every
// layer can import it freely.
package types

import "time"

// PlanType identifies the subscription tier a user is on.
type PlanType string

const (
	PlanFree    PlanType = "free"
	PlanPremium PlanType = "premium"
)

// PaymentStatus is the recurring-billing state of a user's subscription.
// Transitions between statuses are owned exclusively by the payment state
// machine; nothing else may mutate this field.
type PaymentStatus string

const (
	// PaymentStatusActive means the last payment attempt succeeded and the
	// subscription renews normally.
	PaymentStatusActive PaymentStatus = "active"
	// PaymentStatusGracePeriod means a payment attempt failed; service
	// continues until GracePeriodEnd while the gateway retries the charge.
	PaymentStatusGracePeriod PaymentStatus = "grace_period"
	// PaymentStatusSuspended means repeated payment failures exhausted the
	// grace allowance and service is withheld until a successful payment.
	PaymentStatusSuspended PaymentStatus = "suspended"
	// PaymentStatusCancelled means the subscription was disabled at the
	// gateway. The record is kept; it is never hard-deleted.
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// TransactionStatus is the terminal outcome of a single payment attempt.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionSuccess   TransactionStatus = "success"
	TransactionFailed    TransactionStatus = "failed"
	TransactionCancelled TransactionStatus = "cancelled"
)

// User is the minimal projection of the user directory needed to resolve
// gateway customers to internal identities.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// UserPlanState is the per-user subscription and payment state row. One row
// per user, mutated only by the payment state machine. The absence of a row
// is the implicit free/no-subscription pre-state.
//
// Invariants:
//   - FailedPaymentCount resets to 0 only on a successful-payment transition.
//   - GracePeriodEnd is non-nil iff PaymentStatus == PaymentStatusGracePeriod.
type UserPlanState struct {
	UserID                string
	PlanType              PlanType
	PaymentStatus         PaymentStatus
	FailedPaymentCount    int
	GracePeriodEnd        *time.Time
	NextPaymentDate       *time.Time
	LastPaymentDate       *time.Time
	SubscriptionReference *string
	CustomerReference     *string
	CancelledAt           *time.Time
	UpdatedAt             time.Time
}

// NewFreePlanState returns the implicit pre-subscription state for a user
// that has no persisted plan row yet.
func NewFreePlanState(userID string) *UserPlanState {
	return &UserPlanState{
		UserID:        userID,
		PlanType:      PlanFree,
		PaymentStatus: PaymentStatusActive,
	}
}

// PaymentTransaction is an append-only ledger row recording one payment
// attempt reported by the gateway. Reference is the idempotency key: at most
// one row may exist per reference, and redelivery of the same gateway event
// must not create a duplicate or double-apply side effects.
type PaymentTransaction struct {
	ID                    string
	UserID                string
	Reference             string
	Amount                int64 // minor currency units
	Currency              string
	Status                TransactionStatus
	PaymentMethod         string
	GatewayReference      string
	AuthorizationToken    string // opaque; never interpreted
	SubscriptionReference string
	FailureReason         *string
	Metadata              map[string]any
	CreatedAt             time.Time
}
