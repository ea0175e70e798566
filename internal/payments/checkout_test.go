package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/business"
	"github.com/ohohohreohpul/onbuuk2025-sub001/pkg/logging"
)

type stubTenantSource struct {
	cfg *business.PaymentConfig
}

func (s *stubTenantSource) Get(_ context.Context, businessID string) (*business.PaymentConfig, error) {
	if s.cfg != nil {
		return s.cfg, nil
	}
	return business.DefaultPaymentConfig(businessID), nil
}

func stripeTestServer(t *testing.T, form *url.Values) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/checkout/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk_test_123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		*form = r.PostForm
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":  "cs_test_1",
			"url": "https://checkout.stripe.com/pay/cs_test_1",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckoutCreate(t *testing.T) {
	var form url.Values
	srv := stripeTestServer(t, &form)

	tenants := &stubTenantSource{cfg: &business.PaymentConfig{
		BusinessID:        "biz-1",
		Provider:          "stripe",
		StripeAccountID:   "acct_123",
		ChargesEnabled:    true,
		ApplicationFeeBps: 250,
	}}
	svc := NewCheckoutService("sk_test_123", "https://app/success", "https://app/cancel", 0, 0, tenants, logging.Default()).
		WithBaseURL(srv.URL)

	session, err := svc.Create(context.Background(), CheckoutParams{
		BusinessID:    "biz-1",
		Token:         Token{Purpose: PurposeBooking, BookingID: "bk-1"},
		AmountCents:   10000,
		CustomerEmail: "jane@example.com",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.SessionID != "cs_test_1" || session.URL == "" {
		t.Fatalf("unexpected session: %+v", session)
	}

	if got := form.Get("metadata[purpose]"); got != "booking" {
		t.Fatalf("token purpose not in metadata: %q", got)
	}
	if got := form.Get("metadata[booking_id]"); got != "bk-1" {
		t.Fatalf("booking id not in metadata: %q", got)
	}
	if got := form.Get("payment_intent_data[transfer_data][destination]"); got != "acct_123" {
		t.Fatalf("connected account missing: %q", got)
	}
	// 250 bps of 10000 cents.
	if got := form.Get("payment_intent_data[application_fee_amount]"); got != "250" {
		t.Fatalf("application fee wrong: %q", got)
	}
	if got := form.Get("customer_email"); got != "jane@example.com" {
		t.Fatalf("customer email missing: %q", got)
	}
}

// A tenant with no connected account still checks out, on the
// platform key: no destination, no application fee.
func TestCheckoutPlatformFallbackForUnconnectedTenant(t *testing.T) {
	var form url.Values
	srv := stripeTestServer(t, &form)

	svc := NewCheckoutService("sk_test_123", "", "", 250, 0, &stubTenantSource{}, logging.Default()).
		WithBaseURL(srv.URL)

	session, err := svc.Create(context.Background(), CheckoutParams{
		BusinessID:  "biz-new",
		Token:       Token{Purpose: PurposeBooking, BookingID: "bk-1"},
		AmountCents: 5000,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.SessionID != "cs_test_1" {
		t.Fatalf("unexpected session: %+v", session)
	}
	if got := form.Get("payment_intent_data[transfer_data][destination]"); got != "" {
		t.Fatalf("platform charge must not carry a destination, got %q", got)
	}
	if got := form.Get("payment_intent_data[application_fee_amount]"); got != "" {
		t.Fatalf("platform charge must not carry an application fee, got %q", got)
	}
}

// A connected account with charges disabled falls back the same way.
func TestCheckoutPlatformFallbackWhenChargesDisabled(t *testing.T) {
	var form url.Values
	srv := stripeTestServer(t, &form)

	tenants := &stubTenantSource{cfg: &business.PaymentConfig{
		BusinessID:      "biz-1",
		Provider:        "stripe",
		StripeAccountID: "acct_123",
		ChargesEnabled:  false,
	}}
	svc := NewCheckoutService("sk_test_123", "", "", 0, 0, tenants, logging.Default()).
		WithBaseURL(srv.URL)

	_, err := svc.Create(context.Background(), CheckoutParams{
		BusinessID:  "biz-1",
		Token:       Token{Purpose: PurposeBooking, BookingID: "bk-1"},
		AmountCents: 5000,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := form.Get("payment_intent_data[transfer_data][destination]"); got != "" {
		t.Fatalf("disabled account must not receive funds, got %q", got)
	}
}

func TestCheckoutRejectsZeroAmount(t *testing.T) {
	svc := NewCheckoutService("sk_test_123", "", "", 0, 0, &stubTenantSource{}, logging.Default())
	if _, err := svc.Create(context.Background(), CheckoutParams{BusinessID: "biz-1"}); err == nil {
		t.Fatal("zero amount must be rejected")
	}
}

func TestCheckoutRequiresSecretKey(t *testing.T) {
	svc := NewCheckoutService("", "", "", 0, 0, &stubTenantSource{}, logging.Default())
	_, err := svc.Create(context.Background(), CheckoutParams{BusinessID: "biz-1", AmountCents: 100})
	if !errors.Is(err, ErrPaymentsNotConfigured) {
		t.Fatalf("expected ErrPaymentsNotConfigured, got %v", err)
	}
}
