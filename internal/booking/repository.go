package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a booking id resolves to no row.
	ErrNotFound = errors.New("booking: not found")
	// ErrCancelled is returned when a payment confirmation reaches a
	// booking the customer already cancelled. Cancellation wins.
	ErrCancelled = errors.New("booking: already cancelled")
	// ErrSlotTaken is returned when the slot uniqueness constraint
	// rejects an insert: another customer booked the same slot first.
	ErrSlotTaken = errors.New("booking: slot already taken")
)

// uniqueViolation is the Postgres error code for duplicate keys.
const uniqueViolation = "23505"

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists bookings.
type Repository struct {
	db DB
}

// NewRepository creates a booking repository.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("booking: db required")
	}
	return &Repository{db: db}
}

// Create inserts a booking. The partial unique index on
// (specialist_id, booking_date, start_time) for non-cancelled rows turns
// a lost race into ErrSlotTaken instead of a double booking.
func (r *Repository) Create(ctx context.Context, b *Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = StatusPending
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = PaymentPending
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := r.db.Exec(ctx, `
		INSERT INTO bookings (id, business_id, service_id, duration_id, specialist_id,
			booking_date, start_time, duration_minutes, amount_cents,
			status, payment_status, no_show, customer_email, customer_name,
			stripe_session_id, paypal_order_id, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9,
			$10, $11, $12, $13, $14, NULLIF($15, ''), NULLIF($16, ''), $17, $18)`,
		b.ID, b.BusinessID, b.ServiceID, b.DurationID, b.SpecialistID,
		b.BookingDate, b.StartTime, b.DurationMinutes, b.AmountCents,
		b.Status, b.PaymentStatus, b.NoShow, b.CustomerEmail, b.CustomerName,
		b.StripeSessionID, b.PayPalOrderID, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrSlotTaken
		}
		return fmt.Errorf("booking: create: %w", err)
	}
	return nil
}

// GetByID loads a booking.
func (r *Repository) GetByID(ctx context.Context, id string) (*Booking, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, business_id, service_id, COALESCE(duration_id::text, ''),
			COALESCE(specialist_id::text, ''), booking_date, start_time,
			duration_minutes, amount_cents, status, payment_status, no_show,
			customer_email, customer_name,
			COALESCE(stripe_session_id, ''), COALESCE(paypal_order_id, ''),
			created_at, updated_at
		FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

// ConfirmPayment transitions pending -> confirmed/completed exactly once.
// The WHERE clause refuses to resurrect a cancelled booking; callers get
// ErrCancelled and resolve it as a reconciliation conflict, not a retry.
func (r *Repository) ConfirmPayment(ctx context.Context, id string) (*Booking, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE bookings
		SET status = 'confirmed', payment_status = 'completed', updated_at = now()
		WHERE id = $1 AND status <> 'cancelled'`, id)
	if err != nil {
		return nil, fmt.Errorf("booking: confirm payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		b, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: booking %s", ErrCancelled, b.ID)
	}
	return r.GetByID(ctx, id)
}

// Cancel sets the booking cancelled. A cancellation racing an in-flight
// payment confirmation wins via ConfirmPayment's condition.
func (r *Repository) Cancel(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE bookings
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status <> 'completed'`, id)
	if err != nil {
		return fmt.Errorf("booking: cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking: cancel: no cancellable booking with id %s", id)
	}
	return nil
}

// MarkCompleted transitions a confirmed booking to completed.
func (r *Repository) MarkCompleted(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE bookings
		SET status = 'completed', updated_at = now()
		WHERE id = $1 AND status = 'confirmed'`, id)
	if err != nil {
		return fmt.Errorf("booking: mark completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking: mark completed: no confirmed booking with id %s", id)
	}
	return nil
}

// MarkNoShow flags a booking the customer missed.
func (r *Repository) MarkNoShow(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE bookings SET no_show = true, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("booking: mark no-show: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking: mark no-show: %w", ErrNotFound)
	}
	return nil
}

// SetProviderRef records the provider correlation id on the booking at
// checkout initiation.
func (r *Repository) SetProviderRef(ctx context.Context, id, provider, ref string) error {
	var column string
	switch provider {
	case "stripe":
		column = "stripe_session_id"
	case "paypal":
		column = "paypal_order_id"
	default:
		return fmt.Errorf("booking: unknown provider %q", provider)
	}
	query := fmt.Sprintf(`UPDATE bookings SET %s = $1, updated_at = now() WHERE id = $2`, column)
	tag, err := r.db.Exec(ctx, query, ref, id)
	if err != nil {
		return fmt.Errorf("booking: set provider ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking: set provider ref: %w", ErrNotFound)
	}
	return nil
}

// ResolveDuration maps a duration option to its minutes and price.
func (r *Repository) ResolveDuration(ctx context.Context, durationID string) (minutes int, priceCents int64, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT minutes, price_cents FROM service_durations WHERE id = $1`, durationID,
	).Scan(&minutes, &priceCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, fmt.Errorf("booking: duration %s not found", durationID)
		}
		return 0, 0, fmt.Errorf("booking: resolve duration: %w", err)
	}
	return minutes, priceCents, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.BusinessID, &b.ServiceID, &b.DurationID,
		&b.SpecialistID, &b.BookingDate, &b.StartTime,
		&b.DurationMinutes, &b.AmountCents, &b.Status, &b.PaymentStatus, &b.NoShow,
		&b.CustomerEmail, &b.CustomerName,
		&b.StripeSessionID, &b.PayPalOrderID,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("booking: scan: %w", err)
	}
	return &b, nil
}
