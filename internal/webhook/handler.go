// Package webhook implements the gateway notification endpoint: it
// authenticates the raw request body, decodes the event envelope, and routes
// each event through a closed dispatch table to the payment processor.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"paywatch/internal/core"
	"paywatch/internal/gateway"
	"paywatch/internal/payment"
	"paywatch/internal/types"
)

// maxBodySize caps inbound webhook bodies at 64 KB. Gateway event payloads
// are a few KB at most; anything larger is abuse.
const maxBodySize = 64 << 10

// EventProcessor is the subset of the payment processor the handler needs.
type EventProcessor interface {
	HandleChargeSuccess(ctx context.Context, data *types.ChargeData) (payment.Outcome, error)
	HandleInvoice(ctx context.Context, data *types.InvoiceData) (payment.Outcome, error)
	HandleSubscriptionCreated(ctx context.Context, data *types.SubscriptionData) (payment.Outcome, error)
	HandleSubscriptionCancelled(ctx context.Context, data *types.SubscriptionData) (payment.Outcome, error)
}

// EventMetrics records per-event telemetry. Optional; a nil collector
// disables recording.
type EventMetrics interface {
	RecordEvent(eventType, outcome string)
}

// eventHandler decodes one event payload shape and applies it.
type eventHandler func(ctx context.Context, data json.RawMessage) (payment.Outcome, error)

// Handler is the HTTP handler for POST /webhook.
//
// Response semantics, which the gateway's retry logic depends on:
//   - 200: event applied, duplicate, unknown type, or unresolvable user.
//     Redelivery would change nothing.
//   - 400: malformed payload. Permanent; must not be retried.
//   - 401: missing or invalid signature. Permanent; must not be retried.
//   - 500: infrastructure failure. The gateway should redeliver.
type Handler struct {
	verifier  gateway.SignatureVerifier
	sigHeader string
	logger    *slog.Logger
	metrics   EventMetrics

	// routes is the closed event dispatch table, built once at construction.
	// Adding an event type means adding a constant and a row here; there is
	// no string matching at dispatch time.
	routes map[types.EventType]eventHandler
}

// NewHandler builds the webhook handler around a signature verifier and the
// payment processor. sigHeader names the request header carrying the HMAC.
func NewHandler(verifier gateway.SignatureVerifier, sigHeader string, processor EventProcessor, logger *slog.Logger, metrics EventMetrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		verifier:  verifier,
		sigHeader: sigHeader,
		logger:    logger,
		metrics:   metrics,
	}

	h.routes = map[types.EventType]eventHandler{
		types.EventChargeSuccess: func(ctx context.Context, data json.RawMessage) (payment.Outcome, error) {
			var payload types.ChargeData
			if err := decodePayload(data, &payload); err != nil {
				return "", err
			}
			if payload.Reference == "" {
				return "", missingField("data.reference")
			}
			if payload.Customer.Empty() {
				return "", missingField("data.customer")
			}
			return processor.HandleChargeSuccess(ctx, &payload)
		},
		types.EventInvoiceCreate: func(ctx context.Context, data json.RawMessage) (payment.Outcome, error) {
			return handleInvoice(ctx, processor, data)
		},
		types.EventInvoiceUpdate: func(ctx context.Context, data json.RawMessage) (payment.Outcome, error) {
			return handleInvoice(ctx, processor, data)
		},
		types.EventSubscriptionCreate: func(ctx context.Context, data json.RawMessage) (payment.Outcome, error) {
			payload, err := decodeSubscription(data)
			if err != nil {
				return "", err
			}
			return processor.HandleSubscriptionCreated(ctx, payload)
		},
		types.EventSubscriptionDisable: func(ctx context.Context, data json.RawMessage) (payment.Outcome, error) {
			payload, err := decodeSubscription(data)
			if err != nil {
				return "", err
			}
			return processor.HandleSubscriptionCancelled(ctx, payload)
		},
		types.EventSubscriptionNotRenew: func(ctx context.Context, data json.RawMessage) (payment.Outcome, error) {
			payload, err := decodeSubscription(data)
			if err != nil {
				return "", err
			}
			return processor.HandleSubscriptionCancelled(ctx, payload)
		},
	}

	return h
}

// ServeHTTP implements http.Handler for POST /webhook.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// The signature covers the exact bytes on the wire, so the body is read
	// raw before any decoding.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"unable to read request body",
			err,
		))
		return
	}

	if h.verifier == nil {
		// No secret configured: fail closed. Startup validation should make
		// this unreachable, but an unauthenticated processor must never
		// accept events.
		core.Error(w, r, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"webhook verification is not configured",
			nil,
		))
		return
	}

	signature := r.Header.Get(h.sigHeader)
	if signature == "" {
		h.logger.WarnContext(ctx, "webhook rejected: missing signature",
			slog.String("remote_addr", r.RemoteAddr))
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSignatureMissing,
			"missing webhook signature header",
			nil,
		))
		return
	}

	if err := h.verifier.Verify(body, signature); err != nil {
		h.logger.WarnContext(ctx, "webhook rejected: invalid signature",
			slog.String("remote_addr", r.RemoteAddr))
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSignatureInvalid,
			"invalid webhook signature",
			err,
		))
		return
	}

	var event types.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"malformed JSON in webhook body",
			err,
		))
		return
	}
	if event.Event == "" {
		core.Error(w, r, missingField("event"))
		return
	}

	route, known := h.routes[event.Event]
	if !known {
		// Acknowledge unknown types: the gateway retrying an event we will
		// never understand is wasted work on both sides.
		h.logger.InfoContext(ctx, "ignoring unknown event type",
			slog.String("event", string(event.Event)))
		h.recordEvent(event.Event, payment.OutcomeIgnored)
		core.JSON(w, r, http.StatusOK, core.APIResponse{
			Data: ackBody{Status: string(payment.OutcomeIgnored)},
		})
		return
	}

	outcome, err := route(ctx, event.Data)
	if err != nil {
		h.logger.ErrorContext(ctx, "event processing failed",
			slog.String("event", string(event.Event)),
			slog.String("error", err.Error()))
		h.recordEvent(event.Event, "error")
		core.Error(w, r, err)
		return
	}

	h.recordEvent(event.Event, outcome)
	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: ackBody{Status: string(outcome)},
	})
}

// ackBody is the 200 response payload.
type ackBody struct {
	Status string `json:"status"`
}

func (h *Handler) recordEvent(event types.EventType, outcome payment.Outcome) {
	if h.metrics != nil {
		h.metrics.RecordEvent(string(event), string(outcome))
	}
}

func handleInvoice(ctx context.Context, processor EventProcessor, data json.RawMessage) (payment.Outcome, error) {
	var payload types.InvoiceData
	if err := decodePayload(data, &payload); err != nil {
		return "", err
	}
	if payload.Reference == "" {
		return "", missingField("data.reference")
	}
	if payload.Customer.Empty() {
		return "", missingField("data.customer")
	}
	return processor.HandleInvoice(ctx, &payload)
}

func decodeSubscription(data json.RawMessage) (*types.SubscriptionData, error) {
	var payload types.SubscriptionData
	if err := decodePayload(data, &payload); err != nil {
		return nil, err
	}
	if payload.SubscriptionCode == "" {
		return nil, missingField("data.subscription_code")
	}
	if payload.Customer.Empty() {
		return nil, missingField("data.customer")
	}
	return &payload, nil
}

func decodePayload(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return types.NewAppError(
			types.ErrCodeValidationMissingField,
			"event data is required",
			nil,
		)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"malformed event data",
			err,
		)
	}
	return nil
}

func missingField(field string) *types.AppError {
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"missing required field: "+field,
		nil,
		map[string]any{"field": field},
	)
}

// Compile-time assertion that Handler satisfies http.Handler.
var _ http.Handler = (*Handler)(nil)
