package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reminder delivery methods accepted by the calendar backends.
const (
	ReminderPopup = "popup"
	ReminderEmail = "email"
)

// DefaultReminderMinutes is the lead time applied when a draft carries no reminders.
const DefaultReminderMinutes = 15

// ValidationError reports an event that violates a structural invariant.
// It is the only error class that escapes normalization.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Attendee is a single invitee on an event.
type Attendee struct {
	Email    string `json:"email"`
	Optional bool   `json:"optional"`
}

// Reminder is a notification attached to an event.
type Reminder struct {
	Method        string `json:"method"`
	MinutesBefore int    `json:"minutes_before"`
}

// DefaultReminder returns the reminder substituted when a draft has none.
func DefaultReminder() Reminder {
	return Reminder{Method: ReminderPopup, MinutesBefore: DefaultReminderMinutes}
}

// Recurrence carries an opaque recurrence rule, e.g.
// "RRULE:FREQ=WEEKLY;BYDAY=MO,WE,FR". It is passed through unmodified.
type Recurrence struct {
	RRule string `json:"rrule,omitempty"`
}

// Event is a validated calendar event, independent of any specific calendar
// provider. Instances are only built through NewEvent, which guarantees a
// non-empty title and end strictly after start.
type Event struct {
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Timezone    string      `json:"timezone"`
	Location    string      `json:"location,omitempty"`
	Attendees   []Attendee  `json:"attendees,omitempty"`
	Reminders   []Reminder  `json:"reminders"`
	Recurrence  *Recurrence `json:"recurrence,omitempty"`
	Source      string      `json:"source,omitempty"`
}

// NewEvent validates the structural invariants and fills the remaining safe
// defaults. A missing reminder list becomes a single popup reminder.
func NewEvent(e Event) (*Event, error) {
	if e.Title == "" {
		return nil, &ValidationError{Msg: "title must not be empty"}
	}
	if !e.End.After(e.Start) {
		return nil, &ValidationError{Msg: "end must be after start"}
	}
	if len(e.Reminders) == 0 {
		e.Reminders = []Reminder{DefaultReminder()}
	}
	return &e, nil
}

// AsDraft converts a validated event back into draft shape so it can be run
// through normalization again, e.g. once busy intervals are known. The result
// shares no mutable state with the event.
func (e *Event) AsDraft() EventDraft {
	d := EventDraft{
		Title:       e.Title,
		Description: e.Description,
		Start:       LooseTime{Time: e.Start, HasOffset: true},
		End:         LooseTime{Time: e.End, HasOffset: true},
		Timezone:    e.Timezone,
		Location:    e.Location,
		Source:      e.Source,
	}
	for _, a := range e.Attendees {
		d.Attendees = append(d.Attendees, AttendeeDraft{Email: a.Email, Optional: a.Optional})
	}
	for _, r := range e.Reminders {
		minutes := r.MinutesBefore
		d.Reminders = append(d.Reminders, ReminderDraft{Method: r.Method, MinutesBefore: &minutes})
	}
	if e.Recurrence != nil {
		d.Recurrence = &Recurrence{RRule: e.Recurrence.RRule}
	}
	return d
}

// BusyInterval is an externally held calendar slot. Intervals are half-open:
// touching boundaries do not conflict.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the interval intersects [start, end).
func (b BusyInterval) Overlaps(start, end time.Time) bool {
	return b.Start.Before(end) && b.End.After(start)
}

// EventDraft is the untrusted event shape produced by the language model.
// Everything except title and the timestamps is optional, the timestamps may
// lack an offset, and end may not be after start. Drafts become events only
// through normalization.
type EventDraft struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Start       LooseTime       `json:"start"`
	End         LooseTime       `json:"end"`
	Timezone    string          `json:"timezone,omitempty"`
	Location    string          `json:"location,omitempty"`
	Attendees   []AttendeeDraft `json:"attendees,omitempty"`
	Reminders   []ReminderDraft `json:"reminders,omitempty"`
	Recurrence  *Recurrence     `json:"recurrence,omitempty"`
	Source      string          `json:"source,omitempty"`
}

// AttendeeDraft mirrors Attendee with no constraints.
type AttendeeDraft struct {
	Email    string `json:"email"`
	Optional bool   `json:"optional,omitempty"`
}

// ReminderDraft mirrors Reminder with every field optional.
type ReminderDraft struct {
	Method        string `json:"method,omitempty"`
	MinutesBefore *int   `json:"minutes_before,omitempty"`
}

// looseTimeLayouts are tried in order after RFC 3339 fails. Model output
// frequently omits the offset, and sometimes the seconds as well.
var looseTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// LooseTime is a timestamp that tolerates a missing UTC offset. HasOffset
// records whether the source carried one, so normalization can decide between
// converting the instant and reinterpreting the wall clock.
type LooseTime struct {
	Time      time.Time
	HasOffset bool
}

// IsZero reports whether the timestamp is unset.
func (t LooseTime) IsZero() bool {
	return t.Time.IsZero()
}

// UnmarshalJSON accepts RFC 3339 timestamps as well as naive ISO ones.
func (t *LooseTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = LooseTime{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		*t = LooseTime{Time: parsed, HasOffset: true}
		return nil
	}
	for _, layout := range looseTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = LooseTime{Time: parsed}
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// MarshalJSON emits RFC 3339 when an offset is known, naive ISO otherwise.
func (t LooseTime) MarshalJSON() ([]byte, error) {
	if t.HasOffset {
		return json.Marshal(t.Time.Format(time.RFC3339))
	}
	return json.Marshal(t.Time.Format("2006-01-02T15:04:05"))
}
