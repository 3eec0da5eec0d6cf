package ics

import (
	"fmt"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/levensailor/calndr-go/internal/models"
)

// BuildCustodyFeed renders custody days as a subscribable iCalendar.
// Each day becomes an all-day event titled after the custodian, with
// handoff details in the event body so calendar apps show them without
// opening the app.
func BuildCustodyFeed(family *models.Family, days []models.CustodyDay, guardians map[uuid.UUID]models.GuardianResponse) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(family.Name + " custody")

	for i := range days {
		day := days[i]
		event := cal.AddEvent(fmt.Sprintf("custody-%s@calndr", day.ID))
		event.SetDtStampTime(day.UpdatedAt)
		event.SetAllDayStartAt(day.Date)
		// DTEND is exclusive for all-day events.
		event.SetAllDayEndAt(day.Date.AddDate(0, 0, 1))
		event.SetSummary(eventSummary(day, guardians))

		if day.HandoffDay {
			if day.HandoffLocation != nil {
				event.SetLocation(*day.HandoffLocation)
			}
			event.SetDescription(handoffDescription(day))
		}
	}

	return cal.Serialize()
}

func eventSummary(day models.CustodyDay, guardians map[uuid.UUID]models.GuardianResponse) string {
	if g, ok := guardians[day.CustodianID]; ok && g.FirstName != "" {
		return "With " + g.FirstName
	}
	return "Custody day"
}

func handoffDescription(day models.CustodyDay) string {
	switch {
	case day.HandoffTime != nil && day.HandoffLocation != nil:
		return fmt.Sprintf("Handoff at %s (%s)", *day.HandoffTime, *day.HandoffLocation)
	case day.HandoffTime != nil:
		return fmt.Sprintf("Handoff at %s", *day.HandoffTime)
	case day.HandoffLocation != nil:
		return fmt.Sprintf("Handoff (%s)", *day.HandoffLocation)
	default:
		return "Handoff day"
	}
}
