package availability

import (
	"fmt"
	"time"
)

// WorkingHours is the weekly availability template row for one specialist
// and one weekday. Times are business-local "HH:MM".
type WorkingHours struct {
	SpecialistID string
	Weekday      time.Weekday
	IsAvailable  bool
	OpenTime     string
	CloseTime    string
}

// TimeBlock is a manual block (vacation, break) projected onto a single
// date, expressed in minutes since midnight. The repository clamps blocks
// spanning midnight to the requested date.
type TimeBlock struct {
	StartMinute int
	EndMinute   int
}

// BookedSlot is an existing non-cancelled booking for a specialist on a
// date, with the buffers of its own service. DurationMinutes == 0 means
// the duration could not be resolved and the engine applies its default.
type BookedSlot struct {
	StartMinute     int
	DurationMinutes int
	BufferBeforeMin int
	BufferAfterMin  int
}

// ServiceBuffers is the pre/post padding a service requires around a slot.
type ServiceBuffers struct {
	BeforeMin int
	AfterMin  int
}

// minuteOfDay parses an "HH:MM" time-of-day into minutes since midnight.
func minuteOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("availability: parse time %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// formatMinute renders minutes since midnight as "HH:MM".
func formatMinute(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
