package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paywatch/internal/types"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func activePremiumState() types.UserPlanState {
	sub := "SUB_123"
	return types.UserPlanState{
		UserID:                "user_1",
		PlanType:              types.PlanPremium,
		PaymentStatus:         types.PaymentStatusActive,
		SubscriptionReference: &sub,
	}
}

func TestApplyPaymentFailure_FirstFailureStartsGrace(t *testing.T) {
	p := DefaultPolicy()

	next := p.ApplyPaymentFailure(activePremiumState(), testNow)

	assert.Equal(t, types.PaymentStatusGracePeriod, next.PaymentStatus)
	assert.Equal(t, 1, next.FailedPaymentCount)
	require.NotNil(t, next.GracePeriodEnd)
	assert.Equal(t, testNow.Add(7*24*time.Hour), *next.GracePeriodEnd)
}

func TestApplyPaymentFailure_ThreeFailuresSuspend(t *testing.T) {
	p := DefaultPolicy()
	s := activePremiumState()

	s = p.ApplyPaymentFailure(s, testNow)
	assert.Equal(t, types.PaymentStatusGracePeriod, s.PaymentStatus)
	assert.Equal(t, 1, s.FailedPaymentCount)

	s = p.ApplyPaymentFailure(s, testNow.Add(24*time.Hour))
	assert.Equal(t, types.PaymentStatusGracePeriod, s.PaymentStatus)
	assert.Equal(t, 2, s.FailedPaymentCount)

	s = p.ApplyPaymentFailure(s, testNow.Add(48*time.Hour))
	assert.Equal(t, types.PaymentStatusSuspended, s.PaymentStatus)
	assert.Equal(t, 3, s.FailedPaymentCount)
	assert.Nil(t, s.GracePeriodEnd, "grace clock must stop on suspension")
}

func TestApplyPaymentFailure_SuspendedKeepsCounting(t *testing.T) {
	p := DefaultPolicy()
	s := activePremiumState()
	s.PaymentStatus = types.PaymentStatusSuspended
	s.FailedPaymentCount = 3

	next := p.ApplyPaymentFailure(s, testNow)

	assert.Equal(t, types.PaymentStatusSuspended, next.PaymentStatus)
	assert.Equal(t, 4, next.FailedPaymentCount)
}

func TestApplyPaymentFailure_CancelledIsNoOp(t *testing.T) {
	p := DefaultPolicy()
	s := activePremiumState()
	s = p.ApplyCancellation(s, testNow)

	next := p.ApplyPaymentFailure(s, testNow.Add(time.Hour))

	assert.Equal(t, s, next, "failures against a cancelled account must change nothing")
}

func TestApplyPaymentFailure_InjectedThreshold(t *testing.T) {
	p := Policy{MaxFailedPayments: 2, GracePeriod: time.Hour, RenewalCycle: time.Hour}
	s := activePremiumState()

	s = p.ApplyPaymentFailure(s, testNow)
	assert.Equal(t, types.PaymentStatusGracePeriod, s.PaymentStatus)

	s = p.ApplyPaymentFailure(s, testNow)
	assert.Equal(t, types.PaymentStatusSuspended, s.PaymentStatus,
		"lowered threshold must suspend on the second failure")
}

func TestApplyPaymentSuccess_ResetsFailureState(t *testing.T) {
	p := DefaultPolicy()
	s := activePremiumState()
	s.PaymentStatus = types.PaymentStatusGracePeriod
	s.FailedPaymentCount = 2
	end := testNow.Add(time.Hour)
	s.GracePeriodEnd = &end

	next := p.ApplyPaymentSuccess(s, testNow)

	assert.Equal(t, types.PaymentStatusActive, next.PaymentStatus)
	assert.Equal(t, 0, next.FailedPaymentCount)
	assert.Nil(t, next.GracePeriodEnd)
	require.NotNil(t, next.LastPaymentDate)
	assert.Equal(t, testNow, *next.LastPaymentDate)
	require.NotNil(t, next.NextPaymentDate)
	assert.Equal(t, testNow.Add(30*24*time.Hour), *next.NextPaymentDate)
}

func TestApplyPaymentSuccess_ReactivatesSuspended(t *testing.T) {
	p := DefaultPolicy()
	s := activePremiumState()
	s.PaymentStatus = types.PaymentStatusSuspended
	s.FailedPaymentCount = 5

	next := p.ApplyPaymentSuccess(s, testNow)

	assert.Equal(t, types.PaymentStatusActive, next.PaymentStatus)
	assert.Equal(t, 0, next.FailedPaymentCount)
}

func TestApplyPaymentSuccess_ReactivatesCancelled(t *testing.T) {
	p := DefaultPolicy()
	s := p.ApplyCancellation(activePremiumState(), testNow)

	next := p.ApplyPaymentSuccess(s, testNow.Add(time.Hour))

	assert.Equal(t, types.PaymentStatusActive, next.PaymentStatus)
	assert.Nil(t, next.CancelledAt)
}

func TestApplySubscriptionCreated(t *testing.T) {
	p := DefaultPolicy()
	nextPayment := testNow.Add(30 * 24 * time.Hour)

	s := *types.NewFreePlanState("user_1")
	next := p.ApplySubscriptionCreated(s, "SUB_9", "CUS_9", &nextPayment, testNow)

	assert.Equal(t, types.PlanPremium, next.PlanType)
	assert.Equal(t, types.PaymentStatusActive, next.PaymentStatus)
	require.NotNil(t, next.SubscriptionReference)
	assert.Equal(t, "SUB_9", *next.SubscriptionReference)
	require.NotNil(t, next.CustomerReference)
	assert.Equal(t, "CUS_9", *next.CustomerReference)
	require.NotNil(t, next.NextPaymentDate)
	assert.Equal(t, nextPayment, *next.NextPaymentDate)
}

func TestApplySubscriptionCreated_KeepsFailureCount(t *testing.T) {
	p := DefaultPolicy()
	s := activePremiumState()
	s = p.ApplyPaymentFailure(s, testNow)

	next := p.ApplySubscriptionCreated(s, "SUB_9", "CUS_9", nil, testNow)

	// Only a successful payment clears the counter.
	assert.Equal(t, 1, next.FailedPaymentCount)
	assert.Nil(t, next.GracePeriodEnd)
}

func TestApplyCancellation(t *testing.T) {
	p := DefaultPolicy()
	s := activePremiumState()
	s.PaymentStatus = types.PaymentStatusGracePeriod
	end := testNow.Add(time.Hour)
	s.GracePeriodEnd = &end

	next := p.ApplyCancellation(s, testNow)

	assert.Equal(t, types.PlanFree, next.PlanType)
	assert.Equal(t, types.PaymentStatusCancelled, next.PaymentStatus)
	assert.Nil(t, next.GracePeriodEnd)
	assert.Nil(t, next.NextPaymentDate)
	require.NotNil(t, next.CancelledAt)
	assert.Equal(t, testNow, *next.CancelledAt)
}

func TestApplyCancellation_RepeatedIsNoOp(t *testing.T) {
	p := DefaultPolicy()
	s := p.ApplyCancellation(activePremiumState(), testNow)

	next := p.ApplyCancellation(s, testNow.Add(time.Hour))

	require.NotNil(t, next.CancelledAt)
	assert.Equal(t, testNow, *next.CancelledAt,
		"a second disable notification must not move the cancellation timestamp")
}
