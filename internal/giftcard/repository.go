package giftcard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no gift card matches the lookup.
var ErrNotFound = errors.New("giftcard: not found")

// DB is the subset of pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists gift cards.
type Repository struct {
	db DB
}

// NewRepository creates a gift card repository.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("giftcard: db required")
	}
	return &Repository{db: db}
}

// CreateIdempotent inserts the card unless one with the same
// (business_id, code) already exists. Duplicate webhook deliveries for
// the same purchase land on the conflict arm and report created=false
// without an error, so retries never mint a second card.
func (r *Repository) CreateIdempotent(ctx context.Context, card *GiftCard) (created bool, err error) {
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if card.RemainingBalanceCents == 0 {
		card.RemainingBalanceCents = card.InitialBalanceCents
	}
	if card.Status == "" {
		card.Status = StatusActive
	}
	now := time.Now().UTC()
	card.CreatedAt = now
	card.UpdatedAt = now

	tag, err := r.db.Exec(ctx, `
		INSERT INTO gift_cards (id, business_id, code, recipient_email, recipient_name,
			purchaser_email, initial_balance_cents, remaining_balance_cents,
			status, expires_at, provider_correlation_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13)
		ON CONFLICT (business_id, code) DO NOTHING`,
		card.ID, card.BusinessID, card.Code, card.RecipientEmail, card.RecipientName,
		card.PurchaserEmail, card.InitialBalanceCents, card.RemainingBalanceCents,
		card.Status, card.ExpiresAt,
		card.ProviderCorrelationID, card.CreatedAt, card.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("giftcard: create: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByCode loads a card by its business-scoped code.
func (r *Repository) GetByCode(ctx context.Context, businessID, code string) (*GiftCard, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, business_id, code, recipient_email, recipient_name,
			purchaser_email, initial_balance_cents, remaining_balance_cents,
			status, expires_at, COALESCE(provider_correlation_id, ''), created_at, updated_at
		FROM gift_cards WHERE business_id = $1 AND code = $2`, businessID, code)

	var c GiftCard
	err := row.Scan(&c.ID, &c.BusinessID, &c.Code, &c.RecipientEmail, &c.RecipientName,
		&c.PurchaserEmail, &c.InitialBalanceCents, &c.RemainingBalanceCents,
		&c.Status, &c.ExpiresAt, &c.ProviderCorrelationID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("giftcard: get by code: %w", err)
	}
	return &c, nil
}

// Topup adds value to an existing card. Used when a purchase references
// an existing code instead of minting a new one.
func (r *Repository) Topup(ctx context.Context, businessID, code string, amountCents int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE gift_cards
		SET remaining_balance_cents = remaining_balance_cents + $1, updated_at = now()
		WHERE business_id = $2 AND code = $3`, amountCents, businessID, code)
	if err != nil {
		return fmt.Errorf("giftcard: topup: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("giftcard: topup: %w", ErrNotFound)
	}
	return nil
}
