package notify

import (
	"context"
	"fmt"

	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/booking"
	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/giftcard"
	"github.com/ohohohreohpul/onbuuk2025-sub001/pkg/logging"
)

// Service sends customer notifications after reconciliation. Every send
// is best effort: a delivery failure is logged and never propagated,
// because the payment is already settled.
type Service struct {
	sender EmailSender
	logger *logging.Logger
}

// NewService creates the notification service. A nil sender degrades to
// the logging stub.
func NewService(sender EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if sender == nil {
		sender = NewStubEmailSender(logger)
	}
	return &Service{sender: sender, logger: logger}
}

// BookingConfirmed tells the customer their paid booking is locked in.
func (s *Service) BookingConfirmed(ctx context.Context, b *booking.Booking) {
	if b == nil || b.CustomerEmail == "" {
		return
	}
	msg := EmailMessage{
		To:      b.CustomerEmail,
		ToName:  b.CustomerName,
		Subject: "Your booking is confirmed",
		Body: fmt.Sprintf("Hi %s,\n\nYour appointment on %s at %s is confirmed. See you then!\n",
			b.CustomerName, b.BookingDate.Format("Monday, January 2"), b.StartTime),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Warn("booking confirmation email failed",
			"error", err, "booking_id", b.ID)
	}
}

// GiftCardPurchased tells the recipient about their new or topped-up
// gift card.
func (s *Service) GiftCardPurchased(ctx context.Context, card *giftcard.GiftCard) {
	if card == nil || card.RecipientEmail == "" {
		return
	}
	msg := EmailMessage{
		To:      card.RecipientEmail,
		ToName:  card.RecipientName,
		Subject: "You received a gift card",
		Body: fmt.Sprintf("Hi %s,\n\nYou have a gift card worth $%.2f. Your code is %s.\n",
			card.RecipientName, float64(card.RemainingBalanceCents)/100, card.Code),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Warn("gift card email failed",
			"error", err, "business_id", card.BusinessID, "code", card.Code)
	}
}
