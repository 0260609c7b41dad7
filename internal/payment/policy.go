// Package payment implements the subscription payment state machine and the
// event processor that applies gateway webhook events to user plan state.
//
// The state machine itself is pure: transitions are functions from (state,
// policy, clock) to state, with no I/O, so the threshold behavior is testable
// without a database or HTTP layer. The Processor wires those transitions to
// the user directory, the transaction ledger, and the plan-state store.
package payment

import "time"

// Policy holds the state machine thresholds. The values are injected from
// configuration rather than hard-coded so they can be tuned per environment
// and exercised directly in tests.
type Policy struct {
	// MaxFailedPayments is the consecutive-failure count at which a
	// subscription in its grace period becomes suspended.
	MaxFailedPayments int
	// GracePeriod is how long service continues after the first failed
	// payment attempt.
	GracePeriod time.Duration
	// RenewalCycle is the interval to the next expected payment after a
	// successful charge.
	RenewalCycle time.Duration
}

// DefaultPolicy returns the production defaults: three failures to
// suspension, a seven-day grace period, and a thirty-day renewal cycle.
func DefaultPolicy() Policy {
	return Policy{
		MaxFailedPayments: 3,
		GracePeriod:       7 * 24 * time.Hour,
		RenewalCycle:      30 * 24 * time.Hour,
	}
}
