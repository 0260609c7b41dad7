package payment

import (
	"time"

	"paywatch/internal/types"
)

// ApplyPaymentSuccess transitions a plan state for a confirmed successful
// charge. From any status (including CANCELLED) the account returns to
// ACTIVE, the failure counter resets, and the payment dates advance by the
// renewal cycle.
func (p Policy) ApplyPaymentSuccess(s types.UserPlanState, now time.Time) types.UserPlanState {
	s.PaymentStatus = types.PaymentStatusActive
	s.FailedPaymentCount = 0
	s.GracePeriodEnd = nil
	s.CancelledAt = nil

	last := now
	next := now.Add(p.RenewalCycle)
	s.LastPaymentDate = &last
	s.NextPaymentDate = &next
	s.UpdatedAt = now
	return s
}

// ApplyPaymentFailure transitions a plan state for a failed charge attempt.
//
// The first failure moves an ACTIVE account into GRACE_PERIOD and starts the
// grace clock. Further failures during the grace period increment the counter
// until it reaches MaxFailedPayments, at which point the account is
// SUSPENDED. Failures against an already SUSPENDED account keep counting but
// change nothing else; failures against a CANCELLED account are ignored
// entirely, since there is no service left to degrade.
func (p Policy) ApplyPaymentFailure(s types.UserPlanState, now time.Time) types.UserPlanState {
	switch s.PaymentStatus {
	case types.PaymentStatusCancelled:
		return s

	case types.PaymentStatusSuspended:
		s.FailedPaymentCount++

	case types.PaymentStatusGracePeriod:
		s.FailedPaymentCount++
		if s.FailedPaymentCount >= p.MaxFailedPayments {
			s.PaymentStatus = types.PaymentStatusSuspended
			s.GracePeriodEnd = nil
		}

	default: // ACTIVE, including the implicit free-plan state
		s.FailedPaymentCount = 1
		s.PaymentStatus = types.PaymentStatusGracePeriod
		end := now.Add(p.GracePeriod)
		s.GracePeriodEnd = &end
	}

	s.UpdatedAt = now
	return s
}

// ApplySubscriptionCreated records a newly activated subscription: the plan
// becomes premium, the gateway's subscription and customer references are
// stored for later event resolution, and the next payment date comes from the
// gateway payload when present. The failure counter is left alone; only a
// successful payment clears it.
func (p Policy) ApplySubscriptionCreated(s types.UserPlanState, subscriptionRef, customerRef string, nextPayment *time.Time, now time.Time) types.UserPlanState {
	s.PlanType = types.PlanPremium
	s.PaymentStatus = types.PaymentStatusActive
	s.GracePeriodEnd = nil
	s.CancelledAt = nil

	if subscriptionRef != "" {
		s.SubscriptionReference = &subscriptionRef
	}
	if customerRef != "" {
		s.CustomerReference = &customerRef
	}
	if nextPayment != nil {
		next := *nextPayment
		s.NextPaymentDate = &next
	}
	s.UpdatedAt = now
	return s
}

// ApplyCancellation terminates the subscription: the account reverts to the
// free plan, the status becomes CANCELLED, and the grace clock (if running)
// stops. Cancelling an already cancelled account is a no-op so repeated
// disable notifications do not move the cancellation timestamp.
func (p Policy) ApplyCancellation(s types.UserPlanState, now time.Time) types.UserPlanState {
	if s.PaymentStatus == types.PaymentStatusCancelled {
		return s
	}

	s.PlanType = types.PlanFree
	s.PaymentStatus = types.PaymentStatusCancelled
	s.GracePeriodEnd = nil
	s.NextPaymentDate = nil
	cancelled := now
	s.CancelledAt = &cancelled
	s.UpdatedAt = now
	return s
}
