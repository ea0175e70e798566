package booking

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ohohohreohpul/onbuuk2025-sub001/pkg/logging"
)

var tracer = otel.Tracer("booking.internal.booking")

// SlotSource is the availability check consumed before creation.
type SlotSource interface {
	AvailableSlots(ctx context.Context, specialistID string, date time.Time, durationMinutes int, serviceID string) ([]string, error)
}

// CreateRequest describes a booking to create.
type CreateRequest struct {
	BusinessID    string
	ServiceID     string
	DurationID    string
	SpecialistID  string
	Date          time.Time
	StartTime     string // "HH:MM"
	CustomerEmail string
	CustomerName  string
	// InPerson marks pay-at-venue flows: the booking is confirmed
	// immediately instead of waiting for a payment event.
	InPerson bool
}

// Service creates and cancels bookings around the availability check and
// the per-slot lock.
type Service struct {
	repo   *Repository
	slots  SlotSource
	lock   *SlotLock
	logger *logging.Logger
}

// NewService constructs a booking service.
func NewService(repo *Repository, slots SlotSource, lock *SlotLock, logger *logging.Logger) *Service {
	if repo == nil {
		panic("booking: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, slots: slots, lock: lock, logger: logger}
}

// Create books a slot. The requested start time must be in the currently
// available set; the slot lock then guards the insert window and the
// unique index settles any remaining race.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.business_id", req.BusinessID),
		attribute.String("booking.specialist_id", req.SpecialistID),
	)

	if req.BusinessID == "" || req.ServiceID == "" {
		return nil, fmt.Errorf("booking: business and service are required")
	}
	minutes, priceCents, err := s.repo.ResolveDuration(ctx, req.DurationID)
	if err != nil {
		return nil, err
	}

	if req.SpecialistID != "" && s.slots != nil {
		available, err := s.slots.AvailableSlots(ctx, req.SpecialistID, req.Date, minutes, req.ServiceID)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(available, req.StartTime) {
			return nil, ErrSlotTaken
		}
	}

	if req.SpecialistID != "" && s.lock != nil {
		ok, err := s.lock.Acquire(ctx, req.SpecialistID, req.Date, req.StartTime)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrSlotTaken
		}
	}

	b := &Booking{
		BusinessID:      req.BusinessID,
		ServiceID:       req.ServiceID,
		DurationID:      req.DurationID,
		SpecialistID:    req.SpecialistID,
		BookingDate:     req.Date,
		StartTime:       req.StartTime,
		DurationMinutes: minutes,
		AmountCents:     priceCents,
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
	}
	// Free and in-person flows skip checkout entirely and confirm here.
	if req.InPerson || priceCents == 0 {
		b.Status = StatusConfirmed
	}

	if err := s.repo.Create(ctx, b); err != nil {
		if req.SpecialistID != "" && s.lock != nil {
			s.lock.Release(ctx, req.SpecialistID, req.Date, req.StartTime)
		}
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("booking created",
		"booking_id", b.ID,
		"business_id", b.BusinessID,
		"specialist_id", b.SpecialistID,
		"status", b.Status,
	)
	return b, nil
}

// Cancel marks a booking cancelled.
func (s *Service) Cancel(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "booking.cancel")
	defer span.End()

	if err := s.repo.Cancel(ctx, id); err != nil {
		span.RecordError(err)
		return err
	}
	s.logger.Info("booking cancelled", "booking_id", id)
	return nil
}
