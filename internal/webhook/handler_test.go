package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"paywatch/internal/gateway"
	"paywatch/internal/payment"
	"paywatch/internal/types"
)

const (
	testSecret    = "whsec_test"
	testSigHeader = "X-Gateway-Signature"
)

// ---------------------------------------------------------------------------
// Mock Implementations
// ---------------------------------------------------------------------------

// mockProcessor implements EventProcessor, recording calls and returning a
// fixed outcome/error.
type mockProcessor struct {
	outcome payment.Outcome
	err     error

	chargeCalls  []*types.ChargeData
	invoiceCalls []*types.InvoiceData
	createCalls  []*types.SubscriptionData
	cancelCalls  []*types.SubscriptionData
}

func (m *mockProcessor) HandleChargeSuccess(_ context.Context, data *types.ChargeData) (payment.Outcome, error) {
	m.chargeCalls = append(m.chargeCalls, data)
	return m.outcome, m.err
}

func (m *mockProcessor) HandleInvoice(_ context.Context, data *types.InvoiceData) (payment.Outcome, error) {
	m.invoiceCalls = append(m.invoiceCalls, data)
	return m.outcome, m.err
}

func (m *mockProcessor) HandleSubscriptionCreated(_ context.Context, data *types.SubscriptionData) (payment.Outcome, error) {
	m.createCalls = append(m.createCalls, data)
	return m.outcome, m.err
}

func (m *mockProcessor) HandleSubscriptionCancelled(_ context.Context, data *types.SubscriptionData) (payment.Outcome, error) {
	m.cancelCalls = append(m.cancelCalls, data)
	return m.outcome, m.err
}

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func sign(payload []byte) string {
	mac := hmac.New(sha512.New, []byte(testSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestHandler(t *testing.T, processor EventProcessor) *Handler {
	t.Helper()
	verifier, err := gateway.NewHMACVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewHMACVerifier: %v", err)
	}
	return NewHandler(verifier, testSigHeader, processor, nil, nil)
}

func buildEvent(t *testing.T, eventType string, data any) []byte {
	t.Helper()
	dataBytes, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(map[string]any{
		"event": eventType,
		"data":  json.RawMessage(dataBytes),
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func chargePayload() map[string]any {
	return map[string]any{
		"reference": "txn_1",
		"amount":    5000,
		"currency":  "USD",
		"customer":  map[string]any{"email": "jo@example.com"},
	}
}

// post delivers a signed (or unsigned) body and returns the response.
func post(h *Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(testSigHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	return resp.Error.Code
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHandler_ValidChargeSuccess(t *testing.T) {
	processor := &mockProcessor{outcome: payment.OutcomeProcessed}
	h := newTestHandler(t, processor)

	body := buildEvent(t, "charge.success", chargePayload())
	rec := post(h, body, sign(body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	if len(processor.chargeCalls) != 1 {
		t.Fatalf("charge handler called %d times, want 1", len(processor.chargeCalls))
	}
	if got := processor.chargeCalls[0].Reference; got != "txn_1" {
		t.Errorf("reference = %q, want txn_1", got)
	}
}

func TestHandler_MissingSignature(t *testing.T) {
	processor := &mockProcessor{outcome: payment.OutcomeProcessed}
	h := newTestHandler(t, processor)

	body := buildEvent(t, "charge.success", chargePayload())
	rec := post(h, body, "")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != string(types.ErrCodeAuthSignatureMissing) {
		t.Errorf("error code = %q", code)
	}
	if len(processor.chargeCalls) != 0 {
		t.Error("processor invoked despite missing signature")
	}
}

func TestHandler_InvalidSignature(t *testing.T) {
	processor := &mockProcessor{outcome: payment.OutcomeProcessed}
	h := newTestHandler(t, processor)

	body := buildEvent(t, "charge.success", chargePayload())
	// Sign a different body: verification must fail.
	rec := post(h, body, sign([]byte("other")))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != string(types.ErrCodeAuthSignatureInvalid) {
		t.Errorf("error code = %q", code)
	}
	if len(processor.chargeCalls) != 0 {
		t.Error("processor invoked despite invalid signature")
	}
}

func TestHandler_MalformedJSON(t *testing.T) {
	h := newTestHandler(t, &mockProcessor{})

	body := []byte(`{"event": "charge.success", "data":`)
	rec := post(h, body, sign(body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != string(types.ErrCodeValidationInvalidJSON) {
		t.Errorf("error code = %q", code)
	}
}

func TestHandler_MissingEventType(t *testing.T) {
	h := newTestHandler(t, &mockProcessor{})

	body := []byte(`{"data": {}}`)
	rec := post(h, body, sign(body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != string(types.ErrCodeValidationMissingField) {
		t.Errorf("error code = %q", code)
	}
}

func TestHandler_MissingReference(t *testing.T) {
	processor := &mockProcessor{outcome: payment.OutcomeProcessed}
	h := newTestHandler(t, processor)

	payload := chargePayload()
	delete(payload, "reference")
	body := buildEvent(t, "charge.success", payload)
	rec := post(h, body, sign(body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(processor.chargeCalls) != 0 {
		t.Error("processor invoked despite missing reference")
	}
}

func TestHandler_UnknownEventTypeAcknowledged(t *testing.T) {
	processor := &mockProcessor{outcome: payment.OutcomeProcessed}
	h := newTestHandler(t, processor)

	body := buildEvent(t, "transfer.success", map[string]any{"reference": "trf_1"})
	rec := post(h, body, sign(body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (unknown types are acknowledged)", rec.Code)
	}

	var resp struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Status != string(payment.OutcomeIgnored) {
		t.Errorf("status = %q, want %q", resp.Data.Status, payment.OutcomeIgnored)
	}

	total := len(processor.chargeCalls) + len(processor.invoiceCalls) +
		len(processor.createCalls) + len(processor.cancelCalls)
	if total != 0 {
		t.Error("processor invoked for unknown event type")
	}
}

func TestHandler_UnresolvedUserAcknowledged(t *testing.T) {
	processor := &mockProcessor{outcome: payment.OutcomeUnresolved}
	h := newTestHandler(t, processor)

	body := buildEvent(t, "charge.success", chargePayload())
	rec := post(h, body, sign(body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (redelivery cannot resolve an unknown user)", rec.Code)
	}
}

func TestHandler_StoreFailureReturns500(t *testing.T) {
	processor := &mockProcessor{
		err: types.NewAppError(types.ErrCodeInternalDB, "payment store operation failed", nil),
	}
	h := newTestHandler(t, processor)

	body := buildEvent(t, "charge.success", chargePayload())
	rec := post(h, body, sign(body))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 so the gateway redelivers", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != string(types.ErrCodeInternalDB) {
		t.Errorf("error code = %q", code)
	}
}

func TestHandler_SubscriptionEventsRoute(t *testing.T) {
	tests := []struct {
		event   string
		created int
		cancels int
	}{
		{"subscription.create", 1, 0},
		{"subscription.disable", 0, 1},
		{"subscription.not_renew", 0, 1},
	}

	for _, tc := range tests {
		t.Run(tc.event, func(t *testing.T) {
			processor := &mockProcessor{outcome: payment.OutcomeProcessed}
			h := newTestHandler(t, processor)

			body := buildEvent(t, tc.event, map[string]any{
				"subscription_code": "SUB_1",
				"customer":          map[string]any{"customer_code": "CUS_1"},
			})
			rec := post(h, body, sign(body))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
			}
			if len(processor.createCalls) != tc.created || len(processor.cancelCalls) != tc.cancels {
				t.Errorf("created=%d cancelled=%d, want %d/%d",
					len(processor.createCalls), len(processor.cancelCalls), tc.created, tc.cancels)
			}
		})
	}
}

func TestHandler_InvoicePaidFlagRouting(t *testing.T) {
	processor := &mockProcessor{outcome: payment.OutcomeProcessed}
	h := newTestHandler(t, processor)

	body := buildEvent(t, "invoice.update", map[string]any{
		"reference": "inv_1",
		"paid":      false,
		"customer":  map[string]any{"email": "jo@example.com"},
	})
	rec := post(h, body, sign(body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(processor.invoiceCalls) != 1 {
		t.Fatalf("invoice handler called %d times, want 1", len(processor.invoiceCalls))
	}
	if processor.invoiceCalls[0].Paid {
		t.Error("Paid flag not carried through to the processor")
	}
}
