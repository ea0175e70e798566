package giftcard

import "time"

// StatusActive is the state every card is minted in. Redemption flows
// move cards out of it; this service only ever creates and tops up.
const StatusActive = "active"

// GiftCard is a purchasable stored-value card scoped to one business.
// Code is unique per business; ProviderCorrelationID ties the card back
// to the payment event that created it. ExpiresAt is nil for cards
// that never expire.
type GiftCard struct {
	ID                    string
	BusinessID            string
	Code                  string
	RecipientEmail        string
	RecipientName         string
	PurchaserEmail        string
	InitialBalanceCents   int64
	RemainingBalanceCents int64
	Status                string
	ExpiresAt             *time.Time
	ProviderCorrelationID string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
