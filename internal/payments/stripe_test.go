package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func signStripePayload(secret string, payload []byte, ts int64) string {
	signed := fmt.Sprintf("%d.%s", ts, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func stripeHeader(sig string) http.Header {
	h := http.Header{}
	h.Set("Stripe-Signature", sig)
	return h
}

func TestStripeVerifySignature(t *testing.T) {
	p := NewStripeProvider("whsec_test")
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now().Unix()

	if err := p.VerifySignature(context.Background(), payload,
		stripeHeader(signStripePayload("whsec_test", payload, now))); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	if err := p.VerifySignature(context.Background(), payload,
		stripeHeader(signStripePayload("whsec_wrong", payload, now))); err == nil {
		t.Fatal("wrong secret accepted")
	}

	stale := now - int64((signatureTolerance + time.Minute).Seconds())
	if err := p.VerifySignature(context.Background(), payload,
		stripeHeader(signStripePayload("whsec_test", payload, stale))); err == nil {
		t.Fatal("stale timestamp accepted")
	}

	if err := p.VerifySignature(context.Background(), payload, http.Header{}); err == nil {
		t.Fatal("missing header accepted")
	}

	// Tampered payload under a valid header.
	if err := p.VerifySignature(context.Background(), []byte(`{"id":"evt_2"}`),
		stripeHeader(signStripePayload("whsec_test", payload, now))); err == nil {
		t.Fatal("tampered payload accepted")
	}
}

func TestStripeVerifySignatureDevBypass(t *testing.T) {
	p := NewStripeProvider("")
	if err := p.VerifySignature(context.Background(), []byte("{}"), http.Header{}); err != nil {
		t.Fatalf("empty secret should bypass verification: %v", err)
	}
}

func TestStripeParseCheckoutCompleted(t *testing.T) {
	p := NewStripeProvider("whsec_test")
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {"object": {
			"id": "cs_test_1",
			"mode": "payment",
			"payment_intent": "pi_123",
			"amount_total": 5000,
			"currency": "usd",
			"metadata": {"purpose": "booking", "booking_id": "bk-1"}
		}}
	}`)

	evt, err := p.ParseEvent(context.Background(), payload)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if evt.Kind != EventCheckoutCompleted {
		t.Fatalf("expected checkout_completed, got %s", evt.Kind)
	}
	if evt.ID != "evt_1" || evt.ProviderRef != "pi_123" || evt.AmountCents != 5000 {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.Token.Purpose != PurposeBooking || evt.Token.BookingID != "bk-1" {
		t.Fatalf("unexpected token: %+v", evt.Token)
	}
}

func TestStripeParseSubscriptionModeIgnored(t *testing.T) {
	p := NewStripeProvider("whsec_test")
	payload := []byte(`{
		"id": "evt_sub",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_sub", "mode": "subscription"}}
	}`)

	evt, err := p.ParseEvent(context.Background(), payload)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if evt.Kind != EventIgnored {
		t.Fatalf("subscription sessions must be ignored, got %s", evt.Kind)
	}
}

func TestStripeParseAccountUpdated(t *testing.T) {
	p := NewStripeProvider("whsec_test")
	payload := []byte(`{
		"id": "evt_acct",
		"type": "account.updated",
		"data": {"object": {
			"id": "acct_123",
			"charges_enabled": true,
			"payouts_enabled": false
		}}
	}`)

	evt, err := p.ParseEvent(context.Background(), payload)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if evt.Kind != EventAccountUpdated {
		t.Fatalf("expected account_updated, got %s", evt.Kind)
	}
	if evt.Account.AccountID != "acct_123" || !evt.Account.ChargesEnabled || evt.Account.PayoutsEnabled {
		t.Fatalf("unexpected account update: %+v", evt.Account)
	}
}

func TestStripeParseUnknownTypeIgnored(t *testing.T) {
	p := NewStripeProvider("whsec_test")
	evt, err := p.ParseEvent(context.Background(), []byte(`{"id":"evt_x","type":"invoice.paid"}`))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if evt.Kind != EventIgnored {
		t.Fatalf("unknown types must be ignored, got %s", evt.Kind)
	}
}

func TestStripeParseMissingEventID(t *testing.T) {
	p := NewStripeProvider("whsec_test")
	if _, err := p.ParseEvent(context.Background(), []byte(`{"type":"account.updated"}`)); err == nil {
		t.Fatal("expected error for missing event id")
	}
}
