package payments

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ohohohreohpul/onbuuk2025-sub001/pkg/logging"
)

func postWebhook(t *testing.T, h *WebhookHandler, payload []byte, sig string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	if sig != "" {
		req.Header.Set("Stripe-Signature", sig)
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func checkoutPayload(eventID, bookingID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {"object": {
			"id": "cs_1",
			"mode": "payment",
			"payment_intent": "pi_1",
			"amount_total": 5000,
			"currency": "usd",
			"metadata": {"purpose": "booking", "booking_id": %q}
		}}
	}`, eventID, bookingID))
}

// Full path: a signed delivery confirms the booking; redelivery of the
// same event and a differently-keyed retry both leave exactly one
// confirmation behind.
func TestWebhookEndToEnd(t *testing.T) {
	const secret = "whsec_e2e"
	f := newFixture()
	h := NewWebhookHandler(NewStripeProvider(secret), f.rec, logging.Default())

	payload := checkoutPayload("evt_1", "bk-1")
	sig := signStripePayload(secret, payload, time.Now().Unix())

	if rec := postWebhook(t, h, payload, sig); rec.Code != http.StatusOK {
		t.Fatalf("delivery failed: %d %s", rec.Code, rec.Body.String())
	}
	if f.bookings.confirmCalls != 1 {
		t.Fatalf("expected one confirmation, got %d", f.bookings.confirmCalls)
	}

	if rec := postWebhook(t, h, payload, sig); rec.Code != http.StatusOK {
		t.Fatalf("redelivery must ack: %d", rec.Code)
	}
	if f.bookings.confirmCalls != 1 {
		t.Fatalf("redelivery mutated again: %d confirms", f.bookings.confirmCalls)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture()
	h := NewWebhookHandler(NewStripeProvider("whsec_real"), f.rec, logging.Default())

	payload := checkoutPayload("evt_1", "bk-1")
	sig := signStripePayload("whsec_forged", payload, time.Now().Unix())

	if rec := postWebhook(t, h, payload, sig); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if f.bookings.confirmCalls != 0 {
		t.Fatal("unverified payload reached the domain")
	}
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	const secret = "whsec_e2e"
	f := newFixture()
	h := NewWebhookHandler(NewStripeProvider(secret), f.rec, logging.Default())

	payload := []byte(`{"type": "checkout.session.completed"}`)
	sig := signStripePayload(secret, payload, time.Now().Unix())

	if rec := postWebhook(t, h, payload, sig); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWebhookServerErrorTriggersRetry(t *testing.T) {
	const secret = "whsec_e2e"
	f := newFixture()
	f.ledger.markErr = fmt.Errorf("db down")
	h := NewWebhookHandler(NewStripeProvider(secret), f.rec, logging.Default())

	payload := checkoutPayload("evt_1", "bk-1")
	sig := signStripePayload(secret, payload, time.Now().Unix())

	if rec := postWebhook(t, h, payload, sig); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 so the provider retries, got %d", rec.Code)
	}
}

func TestWebhookIgnoredEventAcked(t *testing.T) {
	const secret = "whsec_e2e"
	f := newFixture()
	h := NewWebhookHandler(NewStripeProvider(secret), f.rec, logging.Default())

	payload := []byte(`{"id": "evt_inv", "type": "invoice.paid"}`)
	sig := signStripePayload(secret, payload, time.Now().Unix())

	if rec := postWebhook(t, h, payload, sig); rec.Code != http.StatusOK {
		t.Fatalf("ignored events must 200, got %d", rec.Code)
	}
}
