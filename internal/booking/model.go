package booking

import "time"

// Booking status lifecycle. Confirmed/completed bookings must never
// temporally overlap another non-cancelled booking for the same
// specialist; rows are never physically deleted by this service.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Payment status is a projection of the reconciliation state machine.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
)

// Booking is an appointment row.
type Booking struct {
	ID              string
	BusinessID      string
	ServiceID       string
	DurationID      string
	SpecialistID    string // empty = "any available"
	BookingDate     time.Time
	StartTime       string // "HH:MM" business-local
	DurationMinutes int
	AmountCents     int64
	Status          string
	PaymentStatus   string
	NoShow          bool
	CustomerEmail   string
	CustomerName    string
	StripeSessionID string
	PayPalOrderID   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
