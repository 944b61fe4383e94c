package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	appbootstrap "github.com/wolfman30/practice-concierge/internal/app/bootstrap"
	"github.com/wolfman30/practice-concierge/internal/appointment"
	appconfig "github.com/wolfman30/practice-concierge/internal/config"
	"github.com/wolfman30/practice-concierge/internal/practice"
	"github.com/wolfman30/practice-concierge/internal/scheduling"
	"github.com/wolfman30/practice-concierge/pkg/logging"
)

var specialties = []string{
	"General dentistry",
	"Orthodontics",
	"Dermatology",
	"Physiotherapy",
	"Family medicine",
	"Pediatrics",
	"Optometry",
}

var timezones = []string{
	"America/New_York",
	"America/Chicago",
	"America/Los_Angeles",
	"Europe/Lisbon",
}

type practiceSaver interface {
	Save(ctx context.Context, p *practice.Practice) error
}

func main() {
	practices := flag.Int("practices", 5, "number of practices to create")
	perPractice := flag.Int("appointments", 10, "appointments to book per practice")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if err := run(context.Background(), cfg, logger, *practices, *perPractice, *seed); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
	logger.Info("seed complete")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, practiceCount, perPractice int, seed uint64) error {
	if cfg.UseMemoryStore || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("seed requires DATABASE_URL")
	}
	stores, err := appbootstrap.BuildStores(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	saver := practice.NewPostgresStore(stores.Pool)
	service := scheduling.NewService(stores.Practices, stores.Appointments, scheduling.NewMemoryLocker(), logger)
	faker := gofakeit.New(seed)

	for i := 0; i < practiceCount; i++ {
		p := fakePractice(faker, i)
		if err := savePractice(ctx, saver, p); err != nil {
			return err
		}
		booked, err := bookAppointments(ctx, service, faker, p, perPractice, time.Now())
		if err != nil {
			return err
		}
		logger.Info("seeded practice", "practice_id", p.ID, "name", p.Name, "whatsapp", p.WhatsApp.PhoneNumber, "appointments", booked)
	}
	return nil
}

func savePractice(ctx context.Context, saver practiceSaver, p *practice.Practice) error {
	if err := saver.Save(ctx, p); err != nil {
		return fmt.Errorf("save practice %s: %w", p.ID, err)
	}
	return nil
}

// fakePractice builds an active practice open weekdays with a WhatsApp number
// in the 555 range.
func fakePractice(f *gofakeit.Faker, index int) *practice.Practice {
	name := f.Company() + " " + []string{"Clinic", "Dental", "Health", "Care"}[f.Number(0, 3)]
	id := fmt.Sprintf("demo-%02d-%s", index+1, strings.ToLower(f.LetterN(4)))

	open := fmt.Sprintf("%02d:00", f.Number(8, 9))
	closeAt := fmt.Sprintf("%02d:00", f.Number(16, 18))
	hours := map[string]practice.WorkingHour{}
	for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		hours[day] = practice.WorkingHour{Start: open, End: closeAt, Enabled: true}
	}
	hours["saturday"] = practice.WorkingHour{Start: "09:00", End: "13:00", Enabled: f.Bool()}

	return &practice.Practice{
		ID:        id,
		Name:      name,
		Specialty: specialties[f.Number(0, len(specialties)-1)],
		Phone:     "+1555" + f.Numerify("#######"),
		Address:   fmt.Sprintf("%s, %s", f.Street(), f.City()),
		Email:     f.Email(),
		Active:    true,
		Calendar: &practice.CalendarConfig{
			SlotDurationMinutes: []int{15, 20, 30, 45}[f.Number(0, 3)],
			Timezone:            timezones[f.Number(0, len(timezones)-1)],
			WorkingHours:        hours,
		},
		WhatsApp: practice.WhatsAppConfig{
			Enabled:     true,
			PhoneNumber: "+1555" + f.Numerify("#######"),
		},
	}
}

// bookAppointments books through the scheduling service so seeded data obeys
// the same overlap rules as live bookings.
func bookAppointments(ctx context.Context, svc *scheduling.Service, f *gofakeit.Faker, p *practice.Practice, count int, now time.Time) (int, error) {
	booked := 0
	for day := 1; day <= 14 && booked < count; day++ {
		slots, err := svc.ComputeSlots(ctx, p.ID, now.AddDate(0, 0, day), 0)
		if err != nil {
			return booked, fmt.Errorf("compute slots for %s: %w", p.ID, err)
		}
		if len(slots) == 0 {
			continue
		}
		slot := slots[f.Number(0, len(slots)-1)]
		_, err = svc.Book(ctx, scheduling.BookingRequest{
			PracticeID:   p.ID,
			PatientName:  f.Name(),
			PatientPhone: "+1555" + f.Numerify("#######"),
			Start:        slot.Start,
			Reason:       f.RandomString([]string{"Check-up", "Cleaning", "Follow-up", "Consultation", ""}),
			Source:       appointment.SourceManual,
		})
		if errors.Is(err, scheduling.ErrSlotUnavailable) {
			continue
		}
		if err != nil {
			return booked, fmt.Errorf("book for %s: %w", p.ID, err)
		}
		booked++
	}
	return booked, nil
}
