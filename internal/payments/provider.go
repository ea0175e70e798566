package payments

import (
	"context"
	"net/http"
	"time"
)

// EventKind classifies a provider webhook event for the reconciler.
type EventKind string

const (
	// EventCheckoutCompleted is a finished payment carrying a token.
	EventCheckoutCompleted EventKind = "checkout_completed"
	// EventAccountUpdated is a connected-account capability change.
	EventAccountUpdated EventKind = "account_updated"
	// EventIgnored is anything the platform does not act on. Ignored
	// events are acknowledged so the provider stops retrying.
	EventIgnored EventKind = "ignored"
)

// AccountUpdate is the capability snapshot from an account event.
type AccountUpdate struct {
	AccountID      string
	ChargesEnabled bool
	PayoutsEnabled bool
}

// Event is a provider webhook event reduced to what reconciliation
// needs.
type Event struct {
	// ID is the provider's event id, the dedup key in the ledger.
	ID       string
	Provider string
	Kind     EventKind
	// Token is set for checkout_completed events.
	Token Token
	// ProviderRef correlates back to the provider object (payment
	// intent, capture id, or session id).
	ProviderRef string
	AmountCents int64
	Currency    string
	OccurredAt  time.Time
	// Account is set for account_updated events.
	Account AccountUpdate
}

// Provider adapts one payment provider's webhook surface. VerifySignature
// must reject before any parsing happens; ParseEvent never trusts the
// payload beyond its shape.
type Provider interface {
	Name() string
	VerifySignature(ctx context.Context, payload []byte, header http.Header) error
	ParseEvent(ctx context.Context, payload []byte) (Event, error)
}
