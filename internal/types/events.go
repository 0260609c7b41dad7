package types

import (
	"encoding/json"
	"time"
)

// EventType tags an inbound webhook event. The set of recognized types is
// closed: the webhook router dispatches through an explicit handler table
// keyed by these constants, so adding a type is a compile-time change rather
// than a new string branch.
type EventType string

const (
	// EventChargeSuccess reports a successful payment attempt.
	EventChargeSuccess EventType = "charge.success"
	// EventSubscriptionCreate reports a new subscription on the gateway.
	EventSubscriptionCreate EventType = "subscription.create"
	// EventInvoiceCreate and EventInvoiceUpdate report recurring-billing
	// payment attempts. The Paid flag on the payload distinguishes success
	// from failure.
	EventInvoiceCreate EventType = "invoice.create"
	EventInvoiceUpdate EventType = "invoice.update"
	// EventSubscriptionDisable and EventSubscriptionNotRenew report that a
	// subscription was cancelled or will not renew.
	EventSubscriptionDisable  EventType = "subscription.disable"
	EventSubscriptionNotRenew EventType = "subscription.not_renew"
)

// Known reports whether the event type is one the processor understands.
// Unknown types are acknowledged with 200 and logged; the gateway retrying
// an event we will never understand would be wasted work.
func (t EventType) Known() bool {
	switch t {
	case EventChargeSuccess,
		EventSubscriptionCreate,
		EventInvoiceCreate,
		EventInvoiceUpdate,
		EventSubscriptionDisable,
		EventSubscriptionNotRenew:
		return true
	}
	return false
}

// WebhookEvent is the transient envelope of an inbound gateway notification.
// It is constructed per request and discarded after dispatch; it is never
// persisted as-is. Data is kept raw so each handler decodes only the payload
// shape it needs.
type WebhookEvent struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EventCustomer carries the gateway's customer identifiers. Email is the
// primary resolution key; CustomerCode is the fallback matched against the
// customer reference stored on the plan record.
type EventCustomer struct {
	Email        string `json:"email"`
	CustomerCode string `json:"customer_code"`
}

// Empty reports whether the payload carries no usable customer identifier.
func (c EventCustomer) Empty() bool {
	return c.Email == "" && c.CustomerCode == ""
}

// EventAuthorization is the opaque reusable-charge token minted by the
// gateway. The processor stores it verbatim and never interprets it.
type EventAuthorization struct {
	AuthorizationCode string `json:"authorization_code"`
	Channel           string `json:"channel"`
}

// ChargeData is the payload of charge.success events.
type ChargeData struct {
	Reference        string             `json:"reference"`
	Amount           int64              `json:"amount"`
	Currency         string             `json:"currency"`
	GatewayReference string             `json:"gateway_reference"`
	Customer         EventCustomer      `json:"customer"`
	Authorization    EventAuthorization `json:"authorization"`
	Subscription     SubscriptionRef    `json:"subscription"`
	Metadata         map[string]any     `json:"metadata"`
}

// InvoiceData is the payload of invoice.create and invoice.update events.
// Paid=false marks a failed recurring payment attempt; Description carries
// the gateway's failure reason when present.
type InvoiceData struct {
	Reference    string          `json:"reference"`
	Amount       int64           `json:"amount"`
	Currency     string          `json:"currency"`
	Paid         bool            `json:"paid"`
	Status       string          `json:"status"`
	Description  string          `json:"description"`
	Customer     EventCustomer   `json:"customer"`
	Subscription SubscriptionRef `json:"subscription"`
}

// SubscriptionRef is the subscription sub-object embedded in charge and
// invoice payloads.
type SubscriptionRef struct {
	SubscriptionCode string     `json:"subscription_code"`
	NextPaymentDate  *time.Time `json:"next_payment_date"`
}

// SubscriptionData is the payload of subscription.create, subscription.disable
// and subscription.not_renew events. These carry no transaction reference:
// they transition plan state but write no ledger row.
type SubscriptionData struct {
	SubscriptionCode string        `json:"subscription_code"`
	Customer         EventCustomer `json:"customer"`
	NextPaymentDate  *time.Time    `json:"next_payment_date"`
	Plan             struct {
		Name string `json:"name"`
	} `json:"plan"`
}
