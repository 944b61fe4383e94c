package scheduling

import (
	"testing"
	"time"

	"github.com/wolfman30/practice-concierge/internal/appointment"
	"github.com/wolfman30/practice-concierge/internal/practice"
)

const testZone = "America/New_York"

// 2026-03-02 is a Monday.
var testMonday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// testClock is the Sunday before testMonday.
func testClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func testPractice() *practice.Practice {
	return &practice.Practice{
		ID:        "p1",
		Name:      "Brooklyn Smiles",
		Specialty: "General dentistry",
		Active:    true,
		Calendar: &practice.CalendarConfig{
			CalendarID:          "cal-1",
			SlotDurationMinutes: 30,
			Timezone:            testZone,
			WorkingHours: map[string]practice.WorkingHour{
				"monday":   {Start: "09:00", End: "17:00", Enabled: true},
				"tuesday":  {Start: "09:00", End: "12:00", Enabled: true},
				"saturday": {Start: "10:00", End: "14:00", Enabled: false},
			},
		},
		WhatsApp: practice.WhatsAppConfig{Enabled: true, PhoneNumber: "+12125550100"},
	}
}

func mustZone(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(testZone)
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	return loc
}

func localTime(t *testing.T, day time.Time, hour, minute int) time.Time {
	t.Helper()
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, mustZone(t))
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *practice.MemoryStore, *appointment.MemoryRepository) {
	t.Helper()
	practices := practice.NewMemoryStore(testPractice())
	appts := appointment.NewMemoryRepository()
	opts = append([]ServiceOption{WithClock(testClock)}, opts...)
	return NewService(practices, appts, NewMemoryLocker(), nil, opts...), practices, appts
}
