package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/booking"
	"github.com/ohohohreohpul/onbuuk2025-sub001/pkg/logging"
)

// bookingSource loads bookings for checkout initiation.
type bookingSource interface {
	GetByID(ctx context.Context, id string) (*booking.Booking, error)
	SetProviderRef(ctx context.Context, id, provider, ref string) error
}

// Handler exposes checkout creation and the direct PayPal capture path.
type Handler struct {
	checkout   *CheckoutService
	paypal     *PayPalClient
	reconciler *Reconciler
	bookings   bookingSource
	logger     *logging.Logger
}

// NewHandler creates the payments HTTP handler.
func NewHandler(checkout *CheckoutService, paypal *PayPalClient, reconciler *Reconciler, bookings bookingSource, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		checkout:   checkout,
		paypal:     paypal,
		reconciler: reconciler,
		bookings:   bookings,
		logger:     logger,
	}
}

type checkoutRequest struct {
	BusinessID string `json:"business_id"`
	// Purpose selects what the payment settles: "booking",
	// "giftcard_new" or "giftcard_existing".
	Purpose   string `json:"purpose"`
	BookingID string `json:"booking_id,omitempty"`

	// Gift card purchases carry the value and recipient directly.
	AmountCents    int64      `json:"amount_cents,omitempty"`
	GiftCardCode   string     `json:"gift_card_code,omitempty"`
	RecipientEmail string     `json:"recipient_email,omitempty"`
	RecipientName  string     `json:"recipient_name,omitempty"`
	PurchaserEmail string     `json:"purchaser_email,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	SuccessURL     string     `json:"success_url,omitempty"`
	CancelURL      string     `json:"cancel_url,omitempty"`
}

// CreateCheckout handles POST /payments/checkout.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.BusinessID == "" {
		http.Error(w, "business_id is required", http.StatusBadRequest)
		return
	}

	params := CheckoutParams{
		BusinessID: req.BusinessID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	}

	switch Purpose(req.Purpose) {
	case PurposeBooking:
		b, err := h.bookings.GetByID(r.Context(), req.BookingID)
		if err != nil {
			if errors.Is(err, booking.ErrNotFound) {
				http.Error(w, "booking not found", http.StatusNotFound)
				return
			}
			h.logger.Error("booking lookup failed", "error", err)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		if b.Status == booking.StatusCancelled {
			http.Error(w, "booking is cancelled", http.StatusConflict)
			return
		}
		params.Token = Token{Purpose: PurposeBooking, BookingID: b.ID}
		params.AmountCents = b.AmountCents
		params.CustomerEmail = b.CustomerEmail
		params.Description = "Booking deposit"

	case PurposeGiftCardNew:
		code := strings.TrimSpace(req.GiftCardCode)
		if code == "" {
			code = newGiftCardCode()
		}
		params.Token = Token{
			Purpose:        PurposeGiftCardNew,
			BusinessID:     req.BusinessID,
			GiftCardCode:   code,
			RecipientEmail: req.RecipientEmail,
			RecipientName:  req.RecipientName,
			PurchaserEmail: req.PurchaserEmail,
			ExpiresAt:      req.ExpiresAt,
		}
		params.AmountCents = req.AmountCents
		params.CustomerEmail = req.PurchaserEmail
		params.Description = "Gift card"

	case PurposeGiftCardExisting:
		if req.GiftCardCode == "" {
			http.Error(w, "gift_card_code is required", http.StatusBadRequest)
			return
		}
		params.Token = Token{
			Purpose:      PurposeGiftCardExisting,
			BusinessID:   req.BusinessID,
			GiftCardCode: req.GiftCardCode,
		}
		params.AmountCents = req.AmountCents
		params.CustomerEmail = req.PurchaserEmail
		params.Description = "Gift card top-up"

	default:
		http.Error(w, "unknown purpose", http.StatusBadRequest)
		return
	}

	session, err := h.checkout.Create(r.Context(), params)
	if err != nil {
		if errors.Is(err, ErrPaymentsNotConfigured) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("checkout creation failed", "error", err)
		http.Error(w, "checkout failed", http.StatusBadGateway)
		return
	}

	if params.Token.Purpose == PurposeBooking {
		if err := h.bookings.SetProviderRef(r.Context(), params.Token.BookingID, session.Provider, session.SessionID); err != nil {
			h.logger.Warn("provider ref not recorded", "error", err, "booking_id", params.Token.BookingID)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(session)
}

type captureRequest struct {
	OrderID string `json:"order_id"`
}

// CapturePayPalOrder handles POST /payments/paypal/capture: the
// client-side approval flow hands us the approved order id and we
// capture and reconcile it synchronously. The webhook delivery of the
// same capture later dedups in the ledger.
func (h *Handler) CapturePayPalOrder(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		http.Error(w, "order_id is required", http.StatusBadRequest)
		return
	}

	cap, err := h.paypal.CaptureOrder(r.Context(), req.OrderID)
	if err != nil {
		h.logger.Error("paypal capture failed", "error", err, "order_id", req.OrderID)
		http.Error(w, "capture failed", http.StatusBadGateway)
		return
	}

	evt, err := EventFromCapture(cap)
	if err != nil {
		h.logger.Error("paypal capture token invalid", "error", err, "capture_id", cap.CaptureID)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := h.reconciler.Process(r.Context(), evt); err != nil {
		h.logger.Error("capture reconciliation failed", "error", err, "capture_id", cap.CaptureID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"capture_id": cap.CaptureID,
		"status":     "completed",
	})
}

// newGiftCardCode mints a human-readable card code.
func newGiftCardCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "GC-" + raw[:10]
}
