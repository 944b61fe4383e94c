package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/practice-concierge/internal/messaging/templates"
	"github.com/wolfman30/practice-concierge/internal/practice"
	"github.com/wolfman30/practice-concierge/internal/scheduling"
)

const (
	maxOfferedSlots = 5

	apologyReply    = "Sorry, something went wrong on our side. Please try again in a few minutes or call the practice directly."
	rescheduleReply = "Happy to move your appointment. What day and time would suit you better? For example: \"Reschedule to Friday at 10am\"."
)

func noAvailabilityReply(day time.Time) string {
	return fmt.Sprintf("Sorry, there's no availability on %s. Would another day work? For example: \"Book Thursday at 2pm\".", templates.Day(day))
}

func slotListReply(day time.Time, slots []scheduling.Slot, taken bool) string {
	var b strings.Builder
	if taken {
		b.WriteString("Sorry, that time was just taken. ")
	}
	fmt.Fprintf(&b, "Here are the next openings on %s:\n", templates.Day(day))
	for i, slot := range slots {
		if i == maxOfferedSlots {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, templates.Clock(slot.Start))
	}
	b.WriteString(`Reply with a number or a time like "Book 2pm".`)
	return b.String()
}

func noAppointmentToCancelReply() string {
	return `We couldn't find an upcoming appointment to cancel. Would you like to book one? Just reply with a day and time, for example "Book tomorrow at 10am".`
}

func cancelledReply(start time.Time) string {
	return fmt.Sprintf("Your appointment on %s at %s has been cancelled. Would you like to reschedule? Reply with a new day and time.",
		templates.Day(start), templates.Clock(start))
}

func nothingToConfirmReply() string {
	return "There's no upcoming appointment waiting for confirmation. Reply with a day and time if you'd like to book one."
}

func confirmedReply(start time.Time) string {
	return fmt.Sprintf("Thanks, your appointment on %s at %s is confirmed. See you then!", templates.Day(start), templates.Clock(start))
}

func infoReply(p *practice.Practice) string {
	var b strings.Builder
	b.WriteString(p.Name)
	if p.Specialty != "" {
		fmt.Fprintf(&b, " (%s)", p.Specialty)
	}
	if p.Address != "" {
		fmt.Fprintf(&b, "\nAddress: %s", p.Address)
	}
	if p.Phone != "" {
		fmt.Fprintf(&b, "\nPhone: %s", p.Phone)
	}
	b.WriteString("\nTo book, reply with a day and time, for example \"Book tomorrow at 2pm\".")
	return b.String()
}
