package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements Store against Postgres and carries the staff-side
// writes for working hours and time blocks.
type Repository struct {
	db DB
}

// NewRepository creates an availability repository.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("availability: db required")
	}
	return &Repository{db: db}
}

// WorkingHoursFor returns the template row for a weekday, or nil when the
// specialist has no row for that day.
func (r *Repository) WorkingHoursFor(ctx context.Context, specialistID string, weekday time.Weekday) (*WorkingHours, error) {
	var wh WorkingHours
	var day int
	err := r.db.QueryRow(ctx, `
		SELECT specialist_id, weekday, is_available, open_time, close_time
		FROM working_hours
		WHERE specialist_id = $1 AND weekday = $2`,
		specialistID, int(weekday),
	).Scan(&wh.SpecialistID, &day, &wh.IsAvailable, &wh.OpenTime, &wh.CloseTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("availability: load working hours: %w", err)
	}
	wh.Weekday = time.Weekday(day)
	return &wh, nil
}

// TimeBlocksFor returns manual blocks intersecting the date, projected to
// minutes since midnight and clamped to the day.
func (r *Repository) TimeBlocksFor(ctx context.Context, specialistID string, date time.Time) ([]TimeBlock, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := r.db.Query(ctx, `
		SELECT starts_at, ends_at
		FROM time_blocks
		WHERE specialist_id = $1 AND starts_at < $2 AND ends_at > $3
		ORDER BY starts_at`,
		specialistID, dayEnd, dayStart)
	if err != nil {
		return nil, fmt.Errorf("availability: list time blocks: %w", err)
	}
	defer rows.Close()

	var blocks []TimeBlock
	for rows.Next() {
		var start, end time.Time
		if err := rows.Scan(&start, &end); err != nil {
			return nil, fmt.Errorf("availability: scan time block: %w", err)
		}
		blocks = append(blocks, TimeBlock{
			StartMinute: clampToMinutes(start, dayStart, dayEnd),
			EndMinute:   clampToMinutes(end, dayStart, dayEnd),
		})
	}
	return blocks, rows.Err()
}

// BookedSlotsFor returns non-cancelled bookings for the specialist and
// date, joined with their service's buffers.
func (r *Repository) BookedSlotsFor(ctx context.Context, specialistID string, date time.Time) ([]BookedSlot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT b.start_time, b.duration_minutes,
		       COALESCE(s.buffer_before_min, 0), COALESCE(s.buffer_after_min, 0)
		FROM bookings b
		LEFT JOIN services s ON s.id = b.service_id
		WHERE b.specialist_id = $1 AND b.booking_date = $2 AND b.status <> 'cancelled'
		ORDER BY b.start_time`,
		specialistID, date)
	if err != nil {
		return nil, fmt.Errorf("availability: list bookings: %w", err)
	}
	defer rows.Close()

	var booked []BookedSlot
	for rows.Next() {
		var startTime string
		var slot BookedSlot
		if err := rows.Scan(&startTime, &slot.DurationMinutes, &slot.BufferBeforeMin, &slot.BufferAfterMin); err != nil {
			return nil, fmt.Errorf("availability: scan booking: %w", err)
		}
		startMin, err := minuteOfDay(startTime)
		if err != nil {
			return nil, err
		}
		slot.StartMinute = startMin
		booked = append(booked, slot)
	}
	return booked, rows.Err()
}

// ServiceBuffers errors when the service does not exist: a bad service id
// is caller input, not missing data.
func (r *Repository) ServiceBuffers(ctx context.Context, serviceID string) (ServiceBuffers, error) {
	var b ServiceBuffers
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(buffer_before_min, 0), COALESCE(buffer_after_min, 0)
		FROM services WHERE id = $1`, serviceID,
	).Scan(&b.BeforeMin, &b.AfterMin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ServiceBuffers{}, fmt.Errorf("availability: service %s not found", serviceID)
		}
		return ServiceBuffers{}, fmt.Errorf("availability: load service buffers: %w", err)
	}
	return b, nil
}

// ActiveSpecialists lists the tenant's active specialist ids.
func (r *Repository) ActiveSpecialists(ctx context.Context, businessID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM specialists
		WHERE business_id = $1 AND active
		ORDER BY id`, businessID)
	if err != nil {
		return nil, fmt.Errorf("availability: list specialists: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("availability: scan specialist: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertWorkingHours writes the staff-edited weekly template row.
func (r *Repository) UpsertWorkingHours(ctx context.Context, wh WorkingHours) error {
	if _, err := minuteOfDay(wh.OpenTime); err != nil {
		return err
	}
	if _, err := minuteOfDay(wh.CloseTime); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO working_hours (specialist_id, weekday, is_available, open_time, close_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (specialist_id, weekday)
		DO UPDATE SET is_available = $3, open_time = $4, close_time = $5`,
		wh.SpecialistID, int(wh.Weekday), wh.IsAvailable, wh.OpenTime, wh.CloseTime)
	if err != nil {
		return fmt.Errorf("availability: upsert working hours: %w", err)
	}
	return nil
}

// CreateTimeBlock records a manual block interval for a specialist.
func (r *Repository) CreateTimeBlock(ctx context.Context, specialistID string, start, end time.Time) (string, error) {
	if !end.After(start) {
		return "", fmt.Errorf("availability: time block end must be after start")
	}
	id := uuid.NewString()
	_, err := r.db.Exec(ctx, `
		INSERT INTO time_blocks (id, specialist_id, starts_at, ends_at)
		VALUES ($1, $2, $3, $4)`,
		id, specialistID, start, end)
	if err != nil {
		return "", fmt.Errorf("availability: create time block: %w", err)
	}
	return id, nil
}

// DeleteTimeBlock removes a manual block.
func (r *Repository) DeleteTimeBlock(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM time_blocks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("availability: delete time block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("availability: time block %s not found", id)
	}
	return nil
}

func clampToMinutes(t, dayStart, dayEnd time.Time) int {
	if t.Before(dayStart) {
		return 0
	}
	if !t.Before(dayEnd) {
		return 24 * 60
	}
	return t.Hour()*60 + t.Minute()
}
