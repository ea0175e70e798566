package payments

import (
	"fmt"
	"strings"
	"time"
)

// Purpose says what a completed payment pays for.
type Purpose string

const (
	PurposeBooking          Purpose = "booking"
	PurposeGiftCardNew      Purpose = "giftcard_new"
	PurposeGiftCardExisting Purpose = "giftcard_existing"
)

// Token travels with a checkout through the provider and comes back on
// the webhook, telling the reconciler what to do with the money. Stripe
// carries it as session metadata; PayPal only gives us a short custom_id
// string, so the same token also round-trips through a compact pipe
// form.
type Token struct {
	Purpose    Purpose
	BookingID  string
	BusinessID string
	// GiftCardCode is the business-scoped card code, for both minting a
	// new card and topping up an existing one.
	GiftCardCode   string
	RecipientEmail string
	RecipientName  string
	PurchaserEmail string
	// ExpiresAt optionally schedules a new card's expiry. Only the
	// long metadata form carries it; nil means the card never expires.
	ExpiresAt *time.Time
}

const (
	shortBooking          = "bk"
	shortGiftCardNew      = "gc"
	shortGiftCardExisting = "gcx"
)

// Metadata encodes the token as provider metadata key/values.
func (t Token) Metadata() map[string]string {
	m := map[string]string{"purpose": string(t.Purpose)}
	switch t.Purpose {
	case PurposeBooking:
		m["booking_id"] = t.BookingID
	case PurposeGiftCardNew, PurposeGiftCardExisting:
		m["business_id"] = t.BusinessID
		m["gift_card_code"] = t.GiftCardCode
		if t.RecipientEmail != "" {
			m["recipient_email"] = t.RecipientEmail
		}
		if t.RecipientName != "" {
			m["recipient_name"] = t.RecipientName
		}
		if t.PurchaserEmail != "" {
			m["purchaser_email"] = t.PurchaserEmail
		}
		if t.Purpose == PurposeGiftCardNew && t.ExpiresAt != nil {
			m["expires_at"] = t.ExpiresAt.UTC().Format(time.RFC3339)
		}
	}
	return m
}

// ParseMetadata decodes a token from provider metadata.
func ParseMetadata(m map[string]string) (Token, error) {
	t := Token{Purpose: Purpose(m["purpose"])}
	switch t.Purpose {
	case PurposeBooking:
		t.BookingID = m["booking_id"]
		if t.BookingID == "" {
			return Token{}, fmt.Errorf("payments: token: booking_id missing")
		}
	case PurposeGiftCardNew, PurposeGiftCardExisting:
		t.BusinessID = m["business_id"]
		t.GiftCardCode = m["gift_card_code"]
		if t.BusinessID == "" || t.GiftCardCode == "" {
			return Token{}, fmt.Errorf("payments: token: gift card fields missing")
		}
		t.RecipientEmail = m["recipient_email"]
		t.RecipientName = m["recipient_name"]
		t.PurchaserEmail = m["purchaser_email"]
		if raw := m["expires_at"]; raw != "" {
			exp, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return Token{}, fmt.Errorf("payments: token: bad expires_at %q: %w", raw, err)
			}
			t.ExpiresAt = &exp
		}
	default:
		return Token{}, fmt.Errorf("payments: token: unknown purpose %q", m["purpose"])
	}
	return t, nil
}

// Short encodes the token in its compact pipe form for carriers that
// only pass a single short string.
func (t Token) Short() (string, error) {
	switch t.Purpose {
	case PurposeBooking:
		if t.BookingID == "" || strings.Contains(t.BookingID, "|") {
			return "", fmt.Errorf("payments: token: invalid booking id %q", t.BookingID)
		}
		return shortBooking + "|" + t.BookingID, nil
	case PurposeGiftCardNew, PurposeGiftCardExisting:
		if t.BusinessID == "" || t.GiftCardCode == "" ||
			strings.ContainsAny(t.BusinessID, "|") || strings.ContainsAny(t.GiftCardCode, "|") {
			return "", fmt.Errorf("payments: token: invalid gift card fields")
		}
		prefix := shortGiftCardNew
		if t.Purpose == PurposeGiftCardExisting {
			prefix = shortGiftCardExisting
		}
		return prefix + "|" + t.BusinessID + "|" + t.GiftCardCode, nil
	default:
		return "", fmt.Errorf("payments: token: unknown purpose %q", t.Purpose)
	}
}

// ParseShort decodes the compact pipe form. Recipient details do not fit
// the short form; gift card tokens parsed from it carry ids only.
func ParseShort(s string) (Token, error) {
	parts := strings.Split(s, "|")
	switch parts[0] {
	case shortBooking:
		if len(parts) != 2 || parts[1] == "" {
			return Token{}, fmt.Errorf("payments: token: malformed %q", s)
		}
		return Token{Purpose: PurposeBooking, BookingID: parts[1]}, nil
	case shortGiftCardNew, shortGiftCardExisting:
		if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
			return Token{}, fmt.Errorf("payments: token: malformed %q", s)
		}
		purpose := PurposeGiftCardNew
		if parts[0] == shortGiftCardExisting {
			purpose = PurposeGiftCardExisting
		}
		return Token{Purpose: purpose, BusinessID: parts[1], GiftCardCode: parts[2]}, nil
	default:
		return Token{}, fmt.Errorf("payments: token: unknown prefix in %q", s)
	}
}
