package caldav

import (
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calassist/internal/models"
)

func TestToICal(t *testing.T) {
	start := time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)
	event, err := models.NewEvent(models.Event{
		Title:       "Deep Work",
		Description: "Focus session",
		Start:       start,
		End:         start.Add(time.Hour),
		Timezone:    "UTC",
		Location:    "Home office",
		Attendees:   []models.Attendee{{Email: "a@example.com"}},
		Reminders: []models.Reminder{
			{Method: models.ReminderPopup, MinutesBefore: 15},
			{Method: models.ReminderEmail, MinutesBefore: 5},
		},
		Recurrence: &models.Recurrence{RRule: "RRULE:FREQ=DAILY"},
	})
	require.NoError(t, err)

	ve := toICal("uid-1", event)

	assert.Equal(t, ical.CompEvent, ve.Name)
	assert.Equal(t, "uid-1", ve.Props.Get(ical.PropUID).Value)
	assert.Equal(t, "Deep Work", ve.Props.Get(ical.PropSummary).Value)
	assert.Equal(t, "Home office", ve.Props.Get(ical.PropLocation).Value)
	// The RRULE property carries the rule without its prefix.
	assert.Equal(t, "FREQ=DAILY", ve.Props.Get(ical.PropRecurrenceRule).Value)

	require.Len(t, ve.Children, 2)
	assert.Equal(t, ical.CompAlarm, ve.Children[0].Name)
	assert.Equal(t, "DISPLAY", ve.Children[0].Props.Get(ical.PropAction).Value)
	assert.Equal(t, "-PT15M", ve.Children[0].Props.Get(ical.PropTrigger).Value)
	assert.Equal(t, "EMAIL", ve.Children[1].Props.Get(ical.PropAction).Value)
}
