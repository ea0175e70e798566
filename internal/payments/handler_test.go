package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/booking"
	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/business"
	"github.com/ohohohreohpul/onbuuk2025-sub001/pkg/logging"
)

type stubBookingSource struct {
	byID map[string]*booking.Booking
	refs map[string]string
}

func (s *stubBookingSource) GetByID(_ context.Context, id string) (*booking.Booking, error) {
	b, ok := s.byID[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return b, nil
}

func (s *stubBookingSource) SetProviderRef(_ context.Context, id, provider, ref string) error {
	if s.refs == nil {
		s.refs = map[string]string{}
	}
	s.refs[id] = provider + ":" + ref
	return nil
}

func newCheckoutHandler(t *testing.T, form *url.Values, bookings *stubBookingSource) *Handler {
	t.Helper()
	srv := stripeTestServer(t, form)
	tenants := &stubTenantSource{cfg: &business.PaymentConfig{
		BusinessID:      "biz-1",
		Provider:        "stripe",
		StripeAccountID: "acct_123",
		ChargesEnabled:  true,
	}}
	checkout := NewCheckoutService("sk_test_123", "https://app/s", "https://app/c", 0, 0, tenants, logging.Default()).
		WithBaseURL(srv.URL)
	return NewHandler(checkout, nil, nil, bookings, logging.Default())
}

func TestHandlerCreateCheckoutForBooking(t *testing.T) {
	var form url.Values
	bookings := &stubBookingSource{byID: map[string]*booking.Booking{
		"bk-1": {ID: "bk-1", Status: booking.StatusPending, AmountCents: 5000, CustomerEmail: "jane@example.com"},
	}}
	h := newCheckoutHandler(t, &form, bookings)

	body := `{"business_id":"biz-1","purpose":"booking","booking_id":"bk-1"}`
	req := httptest.NewRequest(http.MethodPost, "/payments/checkout", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateCheckout(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var session CheckoutSession
	if err := json.NewDecoder(rec.Body).Decode(&session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if session.URL == "" || session.Provider != "stripe" {
		t.Fatalf("unexpected session: %+v", session)
	}
	if got := form.Get("metadata[booking_id]"); got != "bk-1" {
		t.Fatalf("token not carried: %q", got)
	}
	if bookings.refs["bk-1"] != "stripe:cs_test_1" {
		t.Fatalf("session id not recorded on booking: %v", bookings.refs)
	}
}

func TestHandlerCreateCheckoutCancelledBooking(t *testing.T) {
	var form url.Values
	bookings := &stubBookingSource{byID: map[string]*booking.Booking{
		"bk-1": {ID: "bk-1", Status: booking.StatusCancelled, AmountCents: 5000},
	}}
	h := newCheckoutHandler(t, &form, bookings)

	body := `{"business_id":"biz-1","purpose":"booking","booking_id":"bk-1"}`
	req := httptest.NewRequest(http.MethodPost, "/payments/checkout", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateCheckout(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("checkout for a cancelled booking must 409, got %d", rec.Code)
	}
}

func TestHandlerCreateCheckoutUnknownBooking(t *testing.T) {
	var form url.Values
	h := newCheckoutHandler(t, &form, &stubBookingSource{byID: map[string]*booking.Booking{}})

	body := `{"business_id":"biz-1","purpose":"booking","booking_id":"ghost"}`
	req := httptest.NewRequest(http.MethodPost, "/payments/checkout", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateCheckout(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandlerCreateCheckoutGiftCard(t *testing.T) {
	var form url.Values
	h := newCheckoutHandler(t, &form, &stubBookingSource{})

	body := `{"business_id":"biz-1","purpose":"giftcard_new","amount_cents":7500,
		"recipient_email":"kid@example.com","purchaser_email":"mom@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/payments/checkout", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateCheckout(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := form.Get("metadata[purpose]"); got != "giftcard_new" {
		t.Fatalf("purpose not carried: %q", got)
	}
	if form.Get("metadata[gift_card_code]") == "" {
		t.Fatal("a card code should have been minted")
	}
}

func TestHandlerCreateCheckoutUnknownPurpose(t *testing.T) {
	var form url.Values
	h := newCheckoutHandler(t, &form, &stubBookingSource{})

	body := `{"business_id":"biz-1","purpose":"tip_jar"}`
	req := httptest.NewRequest(http.MethodPost, "/payments/checkout", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateCheckout(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandlerCapturePayPalOrder(t *testing.T) {
	srv, _ := paypalTestServer(t, "COMPLETED", "SUCCESS")
	client := NewPayPalClient(srv.URL, "client-id", "client-secret", "wh-1", time.Second, logging.Default())

	f := newFixture()
	h := NewHandler(nil, client, f.rec, &stubBookingSource{}, logging.Default())

	body := `{"order_id":"ord-1"}`
	req := httptest.NewRequest(http.MethodPost, "/payments/paypal/capture", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CapturePayPalOrder(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.bookings.confirmCalls != 1 {
		t.Fatalf("capture should confirm the booking, got %d confirms", f.bookings.confirmCalls)
	}

	// The webhook delivery of the same capture dedups on the capture id.
	whReq := httptest.NewRequest(http.MethodPost, "/payments/paypal/capture", strings.NewReader(body))
	whRec := httptest.NewRecorder()
	h.CapturePayPalOrder(whRec, whReq)
	if whRec.Code != http.StatusOK {
		t.Fatalf("repeat capture must ack: %d", whRec.Code)
	}
	if f.bookings.confirmCalls != 1 {
		t.Fatalf("repeat capture mutated again: %d", f.bookings.confirmCalls)
	}
}

func TestHandlerCaptureMissingOrderID(t *testing.T) {
	h := NewHandler(nil, nil, nil, &stubBookingSource{}, logging.Default())
	req := httptest.NewRequest(http.MethodPost, "/payments/paypal/capture", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.CapturePayPalOrder(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
