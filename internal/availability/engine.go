package availability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/observability/metrics"
	"github.com/ohohohreohpul/onbuuk2025-sub001/pkg/logging"
)

var tracer = otel.Tracer("booking.internal.availability")

const (
	// slotStepMinutes is the candidate grid step. Fixed policy constant,
	// not configurable per call.
	slotStepMinutes = 30

	// defaultBookingDurationMinutes is applied when an existing booking's
	// duration cannot be resolved.
	defaultBookingDurationMinutes = 60
)

// Store is the read contract the engine consumes. Absence of data (no
// working hours row, no specialists) is expressed as empty results, not
// errors.
type Store interface {
	// WorkingHoursFor returns nil when no row exists for the weekday.
	WorkingHoursFor(ctx context.Context, specialistID string, weekday time.Weekday) (*WorkingHours, error)
	TimeBlocksFor(ctx context.Context, specialistID string, date time.Time) ([]TimeBlock, error)
	BookedSlotsFor(ctx context.Context, specialistID string, date time.Time) ([]BookedSlot, error)
	// ServiceBuffers errors when the service does not exist.
	ServiceBuffers(ctx context.Context, serviceID string) (ServiceBuffers, error)
	ActiveSpecialists(ctx context.Context, businessID string) ([]string, error)
}

// Engine computes bookable start times. It is stateless and side-effect
// free; safe for concurrent use.
type Engine struct {
	store   Store
	metrics *metrics.AvailabilityMetrics
	logger  *logging.Logger
}

// NewEngine constructs an availability engine.
func NewEngine(store Store, m *metrics.AvailabilityMetrics, logger *logging.Logger) *Engine {
	if store == nil {
		panic("availability: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{store: store, metrics: m, logger: logger}
}

// AvailableSlots returns the bookable start times ("HH:MM", chronological)
// for a specialist on a date, for a requested duration plus the service's
// buffers. Slots are generated on a 30-minute grid over the working hours
// and survive iff their buffered interval overlaps no time block and no
// existing booking's buffered interval. Intervals are half-open, so a slot
// ending exactly when a booking starts is not a conflict.
func (e *Engine) AvailableSlots(ctx context.Context, specialistID string, date time.Time, durationMinutes int, serviceID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "availability.slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.specialist_id", specialistID),
		attribute.String("booking.date", date.Format("2006-01-02")),
		attribute.Int("booking.duration_minutes", durationMinutes),
	)
	start := time.Now()

	slots, err := e.availableSlots(ctx, specialistID, date, durationMinutes, serviceID)
	if err != nil {
		span.RecordError(err)
		e.metrics.ObserveCompute("error", time.Since(start).Seconds())
		return nil, err
	}
	e.metrics.ObserveCompute("ok", time.Since(start).Seconds())
	return slots, nil
}

func (e *Engine) availableSlots(ctx context.Context, specialistID string, date time.Time, durationMinutes int, serviceID string) ([]string, error) {
	if specialistID == "" {
		return nil, fmt.Errorf("availability: specialist id required")
	}
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("availability: duration must be positive, got %d", durationMinutes)
	}

	buffers, err := e.store.ServiceBuffers(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	totalDuration := durationMinutes + buffers.BeforeMin + buffers.AfterMin

	hours, err := e.store.WorkingHoursFor(ctx, specialistID, date.Weekday())
	if err != nil {
		return nil, err
	}
	if hours == nil || !hours.IsAvailable {
		// No availability is a valid, non-exceptional result.
		return []string{}, nil
	}

	openMin, err := minuteOfDay(hours.OpenTime)
	if err != nil {
		return nil, err
	}
	closeMin, err := minuteOfDay(hours.CloseTime)
	if err != nil {
		return nil, err
	}

	blocks, err := e.store.TimeBlocksFor(ctx, specialistID, date)
	if err != nil {
		return nil, err
	}
	booked, err := e.store.BookedSlotsFor(ctx, specialistID, date)
	if err != nil {
		return nil, err
	}

	busy := make([]TimeBlock, 0, len(blocks)+len(booked))
	busy = append(busy, blocks...)
	for _, b := range booked {
		dur := b.DurationMinutes
		if dur <= 0 {
			dur = defaultBookingDurationMinutes
		}
		busy = append(busy, TimeBlock{
			StartMinute: b.StartMinute,
			EndMinute:   b.StartMinute + dur + b.BufferBeforeMin + b.BufferAfterMin,
		})
	}

	var slots []string
	for slotStart := openMin; slotStart < closeMin; slotStart += slotStepMinutes {
		slotEnd := slotStart + totalDuration
		if slotEnd > closeMin {
			continue
		}
		if overlapsAny(slotStart, slotEnd, busy) {
			continue
		}
		slots = append(slots, formatMinute(slotStart))
	}
	if slots == nil {
		slots = []string{}
	}
	return slots, nil
}

// AvailableSlotsAllSpecialists fans out the single-specialist computation
// across every active specialist of the tenant. Specialists are
// independent, so the lookups run in parallel.
func (e *Engine) AvailableSlotsAllSpecialists(ctx context.Context, businessID string, date time.Time, serviceID string, durationMinutes int) (map[string][]string, error) {
	ctx, span := tracer.Start(ctx, "availability.slots_all")
	defer span.End()
	span.SetAttributes(attribute.String("booking.business_id", businessID))

	specialists, err := e.store.ActiveSpecialists(ctx, businessID)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]string, len(specialists))
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	for _, id := range specialists {
		wg.Add(1)
		go func(specialistID string) {
			defer wg.Done()
			slots, err := e.AvailableSlots(ctx, specialistID, date, durationMinutes, serviceID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			result[specialistID] = slots
		}(id)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

// overlapsAny reports whether [start, end) intersects any busy interval.
func overlapsAny(start, end int, busy []TimeBlock) bool {
	for _, b := range busy {
		if start < b.EndMinute && end > b.StartMinute {
			return true
		}
	}
	return false
}
