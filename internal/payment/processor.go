package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"paywatch/internal/types"
)

// -----------------------------------------------------------------------------
// Dependencies
// -----------------------------------------------------------------------------

// UserDirectory resolves gateway customer identifiers to internal users.
type UserDirectory interface {
	// FindByEmail returns the user with the given email, or (nil, nil) when
	// no such user exists.
	FindByEmail(ctx context.Context, email string) (*types.User, error)
	// FindByCustomerRef returns the user whose plan record carries the given
	// gateway customer reference, or (nil, nil) when none does.
	FindByCustomerRef(ctx context.Context, customerRef string) (*types.User, error)
}

// PlanStore persists plan state and the payment transaction ledger.
type PlanStore interface {
	// GetPlanState returns the plan row for the user, or (nil, nil) when the
	// user has never had a paid plan.
	GetPlanState(ctx context.Context, userID string) (*types.UserPlanState, error)
	// SavePlanState upserts the plan row.
	SavePlanState(ctx context.Context, state *types.UserPlanState) error
	// ApplyTransaction atomically records the ledger row and upserts the new
	// plan state in a single database transaction. It returns false with no
	// side effects when a ledger row with the same reference already exists.
	ApplyTransaction(ctx context.Context, txn *types.PaymentTransaction, state *types.UserPlanState) (bool, error)
}

// -----------------------------------------------------------------------------
// Outcomes
// -----------------------------------------------------------------------------

// Outcome classifies how an event was disposed of. Every outcome maps to a
// 200 response; only errors produce non-200 statuses.
type Outcome string

const (
	// OutcomeProcessed means the event was applied: ledger written (where
	// applicable) and plan state transitioned.
	OutcomeProcessed Outcome = "processed"
	// OutcomeDuplicate means the transaction reference was already in the
	// ledger; nothing was changed.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeUnresolved means no user matched the event's customer
	// identifiers. Acknowledged rather than errored: redelivery cannot
	// resolve a customer we do not know.
	OutcomeUnresolved Outcome = "unresolved"
	// OutcomeIgnored means the event type is not one the processor handles.
	OutcomeIgnored Outcome = "ignored"
)

// -----------------------------------------------------------------------------
// Processor
// -----------------------------------------------------------------------------

// Processor applies gateway webhook events to the ledger and plan state. All
// methods are safe for concurrent use; the ledger's unique transaction
// reference is the serialization point for duplicate deliveries.
type Processor struct {
	users   UserDirectory
	store   PlanStore
	policy  Policy
	breaker *gobreaker.CircuitBreaker[bool]
	logger  *slog.Logger

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewProcessor creates a Processor. The circuit breaker fronts every store
// write: once the database starts failing consistently the breaker opens and
// writes are rejected immediately with a retryable error, instead of every
// webhook delivery holding a connection until timeout.
func NewProcessor(users UserDirectory, store PlanStore, policy Policy, logger *slog.Logger) *Processor {
	breaker := gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
		Name:        "plan-store",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &Processor{
		users:   users,
		store:   store,
		policy:  policy,
		breaker: breaker,
		logger:  logger,
		now:     time.Now,
	}
}

// HandleChargeSuccess applies a successful one-off or initial charge.
func (p *Processor) HandleChargeSuccess(ctx context.Context, data *types.ChargeData) (Outcome, error) {
	user, err := p.resolveUser(ctx, data.Customer)
	if err != nil {
		return "", err
	}
	if user == nil {
		p.logUnresolved(ctx, data.Reference, data.Customer)
		return OutcomeUnresolved, nil
	}

	state, err := p.currentState(ctx, user.ID)
	if err != nil {
		return "", err
	}

	now := p.now()
	next := p.policy.ApplyPaymentSuccess(*state, now)

	txn := &types.PaymentTransaction{
		ID:                    uuid.NewString(),
		UserID:                user.ID,
		Reference:             data.Reference,
		Amount:                data.Amount,
		Currency:              data.Currency,
		Status:                types.TransactionSuccess,
		PaymentMethod:         data.Authorization.Channel,
		GatewayReference:      data.GatewayReference,
		AuthorizationToken:    data.Authorization.AuthorizationCode,
		SubscriptionReference: data.Subscription.SubscriptionCode,
		Metadata:              data.Metadata,
		CreatedAt:             now,
	}

	return p.applyTransaction(ctx, user.ID, txn, &next)
}

// HandleInvoice applies a recurring-billing invoice event. The Paid flag
// selects between the success and failure transitions; both paths write a
// ledger row so every attempt the gateway reports is recorded.
func (p *Processor) HandleInvoice(ctx context.Context, data *types.InvoiceData) (Outcome, error) {
	user, err := p.resolveUser(ctx, data.Customer)
	if err != nil {
		return "", err
	}
	if user == nil {
		p.logUnresolved(ctx, data.Reference, data.Customer)
		return OutcomeUnresolved, nil
	}

	state, err := p.currentState(ctx, user.ID)
	if err != nil {
		return "", err
	}

	now := p.now()
	txn := &types.PaymentTransaction{
		ID:                    uuid.NewString(),
		UserID:                user.ID,
		Reference:             data.Reference,
		Amount:                data.Amount,
		Currency:              data.Currency,
		SubscriptionReference: data.Subscription.SubscriptionCode,
		CreatedAt:             now,
	}

	var next types.UserPlanState
	if data.Paid {
		txn.Status = types.TransactionSuccess
		next = p.policy.ApplyPaymentSuccess(*state, now)
	} else {
		txn.Status = types.TransactionFailed
		reason := data.Description
		if reason == "" {
			reason = data.Status
		}
		if reason != "" {
			txn.FailureReason = &reason
		}
		next = p.policy.ApplyPaymentFailure(*state, now)
	}

	return p.applyTransaction(ctx, user.ID, txn, &next)
}

// HandleSubscriptionCreated activates a premium plan and records the
// gateway's subscription and customer references. Subscription lifecycle
// events carry no transaction reference and therefore write no ledger row.
func (p *Processor) HandleSubscriptionCreated(ctx context.Context, data *types.SubscriptionData) (Outcome, error) {
	user, err := p.resolveUser(ctx, data.Customer)
	if err != nil {
		return "", err
	}
	if user == nil {
		p.logUnresolved(ctx, data.SubscriptionCode, data.Customer)
		return OutcomeUnresolved, nil
	}

	state, err := p.currentState(ctx, user.ID)
	if err != nil {
		return "", err
	}

	next := p.policy.ApplySubscriptionCreated(*state, data.SubscriptionCode, data.Customer.CustomerCode, data.NextPaymentDate, p.now())
	if err := p.savePlanState(ctx, &next); err != nil {
		return "", err
	}

	p.logger.InfoContext(ctx, "subscription activated",
		slog.String("user_id", user.ID),
		slog.String("subscription_reference", data.SubscriptionCode))
	return OutcomeProcessed, nil
}

// HandleSubscriptionCancelled processes subscription.disable and
// subscription.not_renew: the account reverts to the free plan and the row is
// marked cancelled. The row is kept for history.
func (p *Processor) HandleSubscriptionCancelled(ctx context.Context, data *types.SubscriptionData) (Outcome, error) {
	user, err := p.resolveUser(ctx, data.Customer)
	if err != nil {
		return "", err
	}
	if user == nil {
		p.logUnresolved(ctx, data.SubscriptionCode, data.Customer)
		return OutcomeUnresolved, nil
	}

	state, err := p.currentState(ctx, user.ID)
	if err != nil {
		return "", err
	}

	next := p.policy.ApplyCancellation(*state, p.now())
	if err := p.savePlanState(ctx, &next); err != nil {
		return "", err
	}

	p.logger.InfoContext(ctx, "subscription cancelled",
		slog.String("user_id", user.ID),
		slog.String("subscription_reference", data.SubscriptionCode))
	return OutcomeProcessed, nil
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

// resolveUser maps the event's customer identifiers to a user: exact email
// match first, then the customer reference recorded when the subscription was
// created. Returns (nil, nil) when neither resolves.
func (p *Processor) resolveUser(ctx context.Context, customer types.EventCustomer) (*types.User, error) {
	if customer.Email != "" {
		user, err := p.users.FindByEmail(ctx, customer.Email)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}

	if customer.CustomerCode != "" {
		user, err := p.users.FindByCustomerRef(ctx, customer.CustomerCode)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}

	return nil, nil
}

// currentState loads the user's plan row, substituting the implicit free
// state when none exists yet.
func (p *Processor) currentState(ctx context.Context, userID string) (*types.UserPlanState, error) {
	state, err := p.store.GetPlanState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = types.NewFreePlanState(userID)
	}
	return state, nil
}

// applyTransaction commits the ledger row and the new plan state atomically.
// Once this point is reached the write must complete even if the gateway
// hangs up, so the mutation runs detached from request cancellation.
func (p *Processor) applyTransaction(ctx context.Context, userID string, txn *types.PaymentTransaction, state *types.UserPlanState) (Outcome, error) {
	writeCtx := context.WithoutCancel(ctx)

	applied, err := p.breaker.Execute(func() (bool, error) {
		return p.store.ApplyTransaction(writeCtx, txn, state)
	})
	if err != nil {
		return "", p.storeError(err)
	}

	if !applied {
		p.logger.InfoContext(ctx, "duplicate transaction reference, skipping",
			slog.String("user_id", userID),
			slog.String("reference", txn.Reference))
		return OutcomeDuplicate, nil
	}

	p.logger.InfoContext(ctx, "transaction recorded",
		slog.String("user_id", userID),
		slog.String("reference", txn.Reference),
		slog.String("status", string(txn.Status)),
		slog.String("payment_status", string(state.PaymentStatus)),
		slog.Int("failed_payment_count", state.FailedPaymentCount))
	return OutcomeProcessed, nil
}

// savePlanState upserts a plan row through the circuit breaker, detached from
// request cancellation like applyTransaction.
func (p *Processor) savePlanState(ctx context.Context, state *types.UserPlanState) error {
	writeCtx := context.WithoutCancel(ctx)

	_, err := p.breaker.Execute(func() (bool, error) {
		return false, p.store.SavePlanState(writeCtx, state)
	})
	if err != nil {
		return p.storeError(err)
	}
	return nil
}

// storeError normalizes breaker and store failures into retryable AppErrors.
func (p *Processor) storeError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeInternalUnavailable, "payment store temporarily unavailable", err)
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return types.NewAppError(types.ErrCodeInternalDB, "payment store operation failed", err)
}

// logUnresolved records an event that matched no user. Warn rather than
// error: this is expected for customers created outside the product.
func (p *Processor) logUnresolved(ctx context.Context, reference string, customer types.EventCustomer) {
	p.logger.WarnContext(ctx, "no user matched event customer",
		slog.String("reference", reference),
		slog.String("customer_email", customer.Email),
		slog.String("customer_code", customer.CustomerCode))
}
