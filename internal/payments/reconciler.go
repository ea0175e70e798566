package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/booking"
	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/business"
	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/giftcard"
	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/observability/metrics"
	"github.com/ohohohreohpul/onbuuk2025-sub001/pkg/logging"
)

var tracer = otel.Tracer("booking.internal.payments")

// bookingConfirmer is the slice of the booking repository the
// reconciler consumes.
type bookingConfirmer interface {
	ConfirmPayment(ctx context.Context, id string) (*booking.Booking, error)
	SetProviderRef(ctx context.Context, id, provider, ref string) error
}

// giftCardStore mints and tops up gift cards.
type giftCardStore interface {
	CreateIdempotent(ctx context.Context, card *giftcard.GiftCard) (bool, error)
	Topup(ctx context.Context, businessID, code string, amountCents int64) error
	GetByCode(ctx context.Context, businessID, code string) (*giftcard.GiftCard, error)
}

// capabilityStore resolves and updates tenant payment capabilities.
type capabilityStore interface {
	FindByStripeAccount(ctx context.Context, accountID string) (*business.PaymentConfig, error)
	UpdateCapabilities(ctx context.Context, businessID string, chargesEnabled, payoutsEnabled bool) error
}

// processedTracker is the dedup ledger.
type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// notifier sends best-effort customer notifications after a successful
// reconciliation. Failures are logged, never surfaced to the provider.
type notifier interface {
	BookingConfirmed(ctx context.Context, b *booking.Booking)
	GiftCardPurchased(ctx context.Context, card *giftcard.GiftCard)
}

// Reconciler applies verified provider events to the domain exactly
// once. The order inside Process is load-bearing: domain mutation
// first, ledger mark second. A crash in between causes one retried
// mutation, and every mutation here tolerates a retry.
type Reconciler struct {
	bookings  bookingConfirmer
	giftCards giftCardStore
	tenants   capabilityStore
	processed processedTracker
	notify    notifier
	metrics   *metrics.PaymentMetrics
	logger    *logging.Logger
}

// NewReconciler wires the reconciliation state machine.
func NewReconciler(
	bookings bookingConfirmer,
	giftCards giftCardStore,
	tenants capabilityStore,
	processed processedTracker,
	notify notifier,
	m *metrics.PaymentMetrics,
	logger *logging.Logger,
) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		bookings:  bookings,
		giftCards: giftCards,
		tenants:   tenants,
		processed: processed,
		notify:    notify,
		metrics:   m,
		logger:    logger,
	}
}

// Process applies one event. A nil return acknowledges the delivery; an
// error tells the webhook handler to 500 so the provider retries.
func (r *Reconciler) Process(ctx context.Context, evt Event) error {
	ctx, span := tracer.Start(ctx, "payments.reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("payments.provider", evt.Provider),
		attribute.String("payments.event_kind", string(evt.Kind)),
	)
	start := time.Now()
	defer func() { r.metrics.ObserveReconcileLatency(evt.Provider, time.Since(start).Seconds()) }()

	if evt.Kind == EventIgnored {
		r.metrics.ObserveWebhook(evt.Provider, "ignored")
		return nil
	}

	done, err := r.processed.AlreadyProcessed(ctx, evt.Provider, evt.ID)
	if err != nil {
		return err
	}
	if done {
		r.metrics.ObserveWebhook(evt.Provider, "duplicate")
		r.logger.Info("duplicate delivery acknowledged",
			"provider", evt.Provider, "event_id", evt.ID)
		return nil
	}

	switch evt.Kind {
	case EventCheckoutCompleted:
		if err := r.applyCheckout(ctx, evt); err != nil {
			r.metrics.ObserveWebhook(evt.Provider, "error")
			return err
		}
	case EventAccountUpdated:
		if err := r.applyAccountUpdate(ctx, evt); err != nil {
			r.metrics.ObserveWebhook(evt.Provider, "error")
			return err
		}
	default:
		return fmt.Errorf("payments: unknown event kind %q", evt.Kind)
	}

	if _, err := r.processed.MarkProcessed(ctx, evt.Provider, evt.ID); err != nil {
		// The mutation stuck; the retry will no-op and mark again.
		r.logger.Error("ledger mark failed", "error", err,
			"provider", evt.Provider, "event_id", evt.ID)
		return err
	}
	r.metrics.ObserveWebhook(evt.Provider, "processed")
	return nil
}

func (r *Reconciler) applyCheckout(ctx context.Context, evt Event) error {
	switch evt.Token.Purpose {
	case PurposeBooking:
		return r.confirmBooking(ctx, evt)
	case PurposeGiftCardNew:
		return r.createGiftCard(ctx, evt)
	case PurposeGiftCardExisting:
		return r.topupGiftCard(ctx, evt)
	default:
		return fmt.Errorf("payments: checkout token has unknown purpose %q", evt.Token.Purpose)
	}
}

// confirmBooking moves the paid booking to confirmed. A booking
// cancelled while the payment was in flight stays cancelled: the
// conflict is logged for manual refund review and the event is
// acknowledged so the provider stops retrying a payment we will never
// apply.
func (r *Reconciler) confirmBooking(ctx context.Context, evt Event) error {
	if err := r.bookings.SetProviderRef(ctx, evt.Token.BookingID, evt.Provider, evt.ProviderRef); err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			r.metrics.ObserveConflict("unknown_booking")
			r.logger.Warn("payment for unknown booking",
				"booking_id", evt.Token.BookingID, "provider", evt.Provider,
				"provider_ref", evt.ProviderRef, "event_id", evt.ID)
			return nil
		}
		return err
	}

	b, err := r.bookings.ConfirmPayment(ctx, evt.Token.BookingID)
	if err != nil {
		if errors.Is(err, booking.ErrCancelled) {
			r.metrics.ObserveConflict("cancelled_booking")
			r.logger.Warn("payment arrived for cancelled booking, refund required",
				"booking_id", evt.Token.BookingID, "provider", evt.Provider,
				"provider_ref", evt.ProviderRef, "amount_cents", evt.AmountCents)
			return nil
		}
		return err
	}

	r.logger.Info("booking payment reconciled",
		"booking_id", b.ID, "provider", evt.Provider, "amount_cents", evt.AmountCents)
	if r.notify != nil {
		r.notify.BookingConfirmed(ctx, b)
	}
	return nil
}

func (r *Reconciler) createGiftCard(ctx context.Context, evt Event) error {
	card := &giftcard.GiftCard{
		BusinessID:            evt.Token.BusinessID,
		Code:                  evt.Token.GiftCardCode,
		RecipientEmail:        evt.Token.RecipientEmail,
		RecipientName:         evt.Token.RecipientName,
		PurchaserEmail:        evt.Token.PurchaserEmail,
		InitialBalanceCents:   evt.AmountCents,
		Status:                giftcard.StatusActive,
		ExpiresAt:             evt.Token.ExpiresAt,
		ProviderCorrelationID: evt.ProviderRef,
	}
	created, err := r.giftCards.CreateIdempotent(ctx, card)
	if err != nil {
		return err
	}
	if !created {
		r.metrics.ObserveConflict("duplicate_gift_card")
		r.logger.Info("gift card already exists, creation skipped",
			"business_id", card.BusinessID, "code", card.Code, "event_id", evt.ID)
		return nil
	}

	r.logger.Info("gift card created",
		"business_id", card.BusinessID, "code", card.Code, "amount_cents", evt.AmountCents)
	if r.notify != nil {
		r.notify.GiftCardPurchased(ctx, card)
	}
	return nil
}

func (r *Reconciler) topupGiftCard(ctx context.Context, evt Event) error {
	err := r.giftCards.Topup(ctx, evt.Token.BusinessID, evt.Token.GiftCardCode, evt.AmountCents)
	if err != nil {
		if errors.Is(err, giftcard.ErrNotFound) {
			r.metrics.ObserveConflict("unknown_gift_card")
			r.logger.Warn("topup for unknown gift card",
				"business_id", evt.Token.BusinessID, "code", evt.Token.GiftCardCode,
				"event_id", evt.ID)
			return nil
		}
		return err
	}
	if r.notify != nil {
		if card, err := r.giftCards.GetByCode(ctx, evt.Token.BusinessID, evt.Token.GiftCardCode); err == nil {
			r.notify.GiftCardPurchased(ctx, card)
		}
	}
	return nil
}

// applyAccountUpdate refreshes the tenant capability flags from a
// connected-account event. An account no tenant claims is dropped.
func (r *Reconciler) applyAccountUpdate(ctx context.Context, evt Event) error {
	cfg, err := r.tenants.FindByStripeAccount(ctx, evt.Account.AccountID)
	if err != nil {
		return err
	}
	if cfg == nil {
		r.logger.Warn("account update for unknown tenant",
			"account_id", evt.Account.AccountID, "event_id", evt.ID)
		return nil
	}
	if err := r.tenants.UpdateCapabilities(ctx, cfg.BusinessID,
		evt.Account.ChargesEnabled, evt.Account.PayoutsEnabled); err != nil {
		return err
	}
	r.logger.Info("tenant capabilities refreshed",
		"business_id", cfg.BusinessID,
		"charges_enabled", evt.Account.ChargesEnabled,
		"payouts_enabled", evt.Account.PayoutsEnabled)
	return nil
}
