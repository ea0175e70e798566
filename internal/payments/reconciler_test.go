package payments

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/booking"
	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/business"
	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/giftcard"
	"github.com/ohohohreohpul/onbuuk2025-sub001/pkg/logging"
)

type stubBookings struct {
	cancelled    map[string]bool
	missing      map[string]bool
	confirmCalls int
	refs         map[string]string
}

func newStubBookings() *stubBookings {
	return &stubBookings{
		cancelled: map[string]bool{},
		missing:   map[string]bool{},
		refs:      map[string]string{},
	}
}

func (s *stubBookings) ConfirmPayment(_ context.Context, id string) (*booking.Booking, error) {
	if s.missing[id] {
		return nil, booking.ErrNotFound
	}
	if s.cancelled[id] {
		return nil, fmt.Errorf("%w: booking %s", booking.ErrCancelled, id)
	}
	s.confirmCalls++
	return &booking.Booking{ID: id, Status: booking.StatusConfirmed}, nil
}

func (s *stubBookings) SetProviderRef(_ context.Context, id, provider, ref string) error {
	if s.missing[id] {
		return booking.ErrNotFound
	}
	s.refs[id] = provider + ":" + ref
	return nil
}

type stubGiftCards struct {
	existing    map[string]*giftcard.GiftCard
	createCalls int
	topupCalls  int
}

func newStubGiftCards() *stubGiftCards {
	return &stubGiftCards{existing: map[string]*giftcard.GiftCard{}}
}

func (s *stubGiftCards) key(businessID, code string) string { return businessID + "/" + code }

func (s *stubGiftCards) CreateIdempotent(_ context.Context, card *giftcard.GiftCard) (bool, error) {
	s.createCalls++
	k := s.key(card.BusinessID, card.Code)
	if _, ok := s.existing[k]; ok {
		return false, nil
	}
	s.existing[k] = card
	return true, nil
}

func (s *stubGiftCards) Topup(_ context.Context, businessID, code string, amountCents int64) error {
	card, ok := s.existing[s.key(businessID, code)]
	if !ok {
		return giftcard.ErrNotFound
	}
	s.topupCalls++
	card.RemainingBalanceCents += amountCents
	return nil
}

func (s *stubGiftCards) GetByCode(_ context.Context, businessID, code string) (*giftcard.GiftCard, error) {
	card, ok := s.existing[s.key(businessID, code)]
	if !ok {
		return nil, giftcard.ErrNotFound
	}
	return card, nil
}

type stubTenants struct {
	byAccount map[string]*business.PaymentConfig
	updates   map[string][2]bool
}

func newStubTenants() *stubTenants {
	return &stubTenants{
		byAccount: map[string]*business.PaymentConfig{},
		updates:   map[string][2]bool{},
	}
}

func (s *stubTenants) FindByStripeAccount(_ context.Context, accountID string) (*business.PaymentConfig, error) {
	return s.byAccount[accountID], nil
}

func (s *stubTenants) UpdateCapabilities(_ context.Context, businessID string, charges, payouts bool) error {
	s.updates[businessID] = [2]bool{charges, payouts}
	return nil
}

type memLedger struct {
	seen    map[string]bool
	markErr error
}

func newMemLedger() *memLedger { return &memLedger{seen: map[string]bool{}} }

func (l *memLedger) AlreadyProcessed(_ context.Context, provider, eventID string) (bool, error) {
	return l.seen[provider+"/"+eventID], nil
}

func (l *memLedger) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	if l.markErr != nil {
		return false, l.markErr
	}
	k := provider + "/" + eventID
	if l.seen[k] {
		return false, nil
	}
	l.seen[k] = true
	return true, nil
}

type recordingNotifier struct {
	bookings  []string
	giftCards []string
}

func (n *recordingNotifier) BookingConfirmed(_ context.Context, b *booking.Booking) {
	n.bookings = append(n.bookings, b.ID)
}

func (n *recordingNotifier) GiftCardPurchased(_ context.Context, card *giftcard.GiftCard) {
	n.giftCards = append(n.giftCards, card.Code)
}

type fixture struct {
	bookings  *stubBookings
	giftCards *stubGiftCards
	tenants   *stubTenants
	ledger    *memLedger
	notify    *recordingNotifier
	rec       *Reconciler
}

func newFixture() *fixture {
	f := &fixture{
		bookings:  newStubBookings(),
		giftCards: newStubGiftCards(),
		tenants:   newStubTenants(),
		ledger:    newMemLedger(),
		notify:    &recordingNotifier{},
	}
	f.rec = NewReconciler(f.bookings, f.giftCards, f.tenants, f.ledger, f.notify, nil, logging.Default())
	return f
}

func bookingEvent(id string) Event {
	return Event{
		ID:          "evt_" + id,
		Provider:    "stripe",
		Kind:        EventCheckoutCompleted,
		Token:       Token{Purpose: PurposeBooking, BookingID: id},
		ProviderRef: "pi_" + id,
		AmountCents: 5000,
	}
}

func TestReconcileBookingPayment(t *testing.T) {
	f := newFixture()

	if err := f.rec.Process(context.Background(), bookingEvent("bk-1")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if f.bookings.confirmCalls != 1 {
		t.Fatalf("expected one confirmation, got %d", f.bookings.confirmCalls)
	}
	if f.bookings.refs["bk-1"] != "stripe:pi_bk-1" {
		t.Fatalf("provider ref not recorded: %v", f.bookings.refs)
	}
	if len(f.notify.bookings) != 1 || f.notify.bookings[0] != "bk-1" {
		t.Fatalf("notification not sent: %v", f.notify.bookings)
	}
}

func TestReconcileDuplicateDeliveryIsNoOp(t *testing.T) {
	f := newFixture()
	evt := bookingEvent("bk-1")

	if err := f.rec.Process(context.Background(), evt); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := f.rec.Process(context.Background(), evt); err != nil {
		t.Fatalf("second delivery must ack: %v", err)
	}
	if f.bookings.confirmCalls != 1 {
		t.Fatalf("duplicate delivery mutated again: %d confirms", f.bookings.confirmCalls)
	}
	if len(f.notify.bookings) != 1 {
		t.Fatalf("duplicate delivery notified again: %v", f.notify.bookings)
	}
}

func TestReconcileCancellationWins(t *testing.T) {
	f := newFixture()
	f.bookings.cancelled["bk-1"] = true

	// The payment landing after cancellation is acknowledged, logged as
	// a conflict, and the booking stays cancelled.
	if err := f.rec.Process(context.Background(), bookingEvent("bk-1")); err != nil {
		t.Fatalf("conflicting payment must still ack: %v", err)
	}
	if f.bookings.confirmCalls != 0 {
		t.Fatal("cancelled booking was resurrected")
	}
	if len(f.notify.bookings) != 0 {
		t.Fatal("no notification should go out for a conflicted payment")
	}
	// Marked processed: the provider must not keep retrying.
	done, _ := f.ledger.AlreadyProcessed(context.Background(), "stripe", "evt_bk-1")
	if !done {
		t.Fatal("conflicted event should still be marked processed")
	}
}

func TestReconcileUnknownBookingAcked(t *testing.T) {
	f := newFixture()
	f.bookings.missing["bk-ghost"] = true

	if err := f.rec.Process(context.Background(), bookingEvent("bk-ghost")); err != nil {
		t.Fatalf("unknown booking must ack: %v", err)
	}
	if f.bookings.confirmCalls != 0 {
		t.Fatal("unknown booking should not confirm anything")
	}
}

func TestReconcileGiftCardCreation(t *testing.T) {
	f := newFixture()
	expires := time.Date(2027, 9, 1, 0, 0, 0, 0, time.UTC)
	evt := Event{
		ID:       "evt_gc",
		Provider: "stripe",
		Kind:     EventCheckoutCompleted,
		Token: Token{
			Purpose:        PurposeGiftCardNew,
			BusinessID:     "biz-1",
			GiftCardCode:   "GC-ABC",
			RecipientEmail: "kid@example.com",
			ExpiresAt:      &expires,
		},
		ProviderRef: "pi_gc",
		AmountCents: 7500,
	}

	if err := f.rec.Process(context.Background(), evt); err != nil {
		t.Fatalf("Process: %v", err)
	}
	card := f.giftCards.existing["biz-1/GC-ABC"]
	if card == nil || card.InitialBalanceCents != 7500 {
		t.Fatalf("gift card not created: %+v", card)
	}
	if card.Status != giftcard.StatusActive {
		t.Fatalf("card must be minted active, got %q", card.Status)
	}
	if card.ExpiresAt == nil || !card.ExpiresAt.Equal(expires) {
		t.Fatalf("token expiry not carried onto the card: %v", card.ExpiresAt)
	}
	if len(f.notify.giftCards) != 1 {
		t.Fatalf("purchase notification missing: %v", f.notify.giftCards)
	}

	// A second event for the same code (provider retry with a fresh
	// event id) hits the idempotent create and does not mint again.
	evt.ID = "evt_gc_retry"
	if err := f.rec.Process(context.Background(), evt); err != nil {
		t.Fatalf("retry must ack: %v", err)
	}
	if len(f.notify.giftCards) != 1 {
		t.Fatal("duplicate creation notified again")
	}
}

func TestReconcileGiftCardTopup(t *testing.T) {
	f := newFixture()
	f.giftCards.existing["biz-1/GC-ABC"] = &giftcard.GiftCard{
		BusinessID: "biz-1", Code: "GC-ABC", RemainingBalanceCents: 1000,
	}
	evt := Event{
		ID:          "evt_topup",
		Provider:    "paypal",
		Kind:        EventCheckoutCompleted,
		Token:       Token{Purpose: PurposeGiftCardExisting, BusinessID: "biz-1", GiftCardCode: "GC-ABC"},
		AmountCents: 2500,
	}

	if err := f.rec.Process(context.Background(), evt); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := f.giftCards.existing["biz-1/GC-ABC"].RemainingBalanceCents; got != 3500 {
		t.Fatalf("expected balance 3500, got %d", got)
	}
}

func TestReconcileAccountUpdate(t *testing.T) {
	f := newFixture()
	f.tenants.byAccount["acct_1"] = &business.PaymentConfig{BusinessID: "biz-1"}
	evt := Event{
		ID:       "evt_acct",
		Provider: "stripe",
		Kind:     EventAccountUpdated,
		Account:  AccountUpdate{AccountID: "acct_1", ChargesEnabled: true, PayoutsEnabled: true},
	}

	if err := f.rec.Process(context.Background(), evt); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := f.tenants.updates["biz-1"]; got != [2]bool{true, true} {
		t.Fatalf("capabilities not applied: %v", got)
	}
}

func TestReconcileAccountUpdateUnknownTenantDropped(t *testing.T) {
	f := newFixture()
	evt := Event{
		ID:       "evt_acct",
		Provider: "stripe",
		Kind:     EventAccountUpdated,
		Account:  AccountUpdate{AccountID: "acct_ghost", ChargesEnabled: true},
	}

	if err := f.rec.Process(context.Background(), evt); err != nil {
		t.Fatalf("unknown tenant must ack: %v", err)
	}
	if len(f.tenants.updates) != 0 {
		t.Fatalf("unexpected update: %v", f.tenants.updates)
	}
}

func TestReconcileIgnoredEventSkipsLedger(t *testing.T) {
	f := newFixture()
	if err := f.rec.Process(context.Background(), Event{ID: "evt_x", Provider: "stripe", Kind: EventIgnored}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(f.ledger.seen) != 0 {
		t.Fatal("ignored events must not hit the ledger")
	}
}

func TestReconcileLedgerFailureSurfaces(t *testing.T) {
	f := newFixture()
	f.ledger.markErr = errors.New("db down")

	err := f.rec.Process(context.Background(), bookingEvent("bk-1"))
	if err == nil {
		t.Fatal("ledger failure must surface so the provider retries")
	}
	// The mutation already happened; the retry will dedup inside the
	// domain, not the ledger.
	if f.bookings.confirmCalls != 1 {
		t.Fatalf("expected the mutation to have run once, got %d", f.bookings.confirmCalls)
	}
}
