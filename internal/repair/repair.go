// Package repair turns untrusted event drafts into valid events and shifts
// them off busy calendar slots. Malformed drafts are fixed, not rejected:
// the language model routinely emits missing timezones, zero durations and
// duplicated reminders, and none of that may block a suggestion.
package repair

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"calassist/internal/models"
)

const (
	// DefaultDuration replaces a non-positive event duration.
	DefaultDuration = time.Hour
	// ConflictShift is the fixed step used to probe for a free slot.
	ConflictShift = 15 * time.Minute
	// MaxShiftAttempts bounds the probe. After the last shift the event is
	// returned even if it still conflicts.
	MaxShiftAttempts = 8
)

// Normalizer applies the repair policies. The default zone is configured per
// deployment and substitutes any missing or unknown timezone name.
type Normalizer struct {
	logger      *slog.Logger
	defaultZone string
}

// New creates a Normalizer that falls back to defaultZone.
func New(logger *slog.Logger, defaultZone string) *Normalizer {
	return &Normalizer{logger: logger, defaultZone: defaultZone}
}

// DefaultZone returns the configured fallback zone name.
func (n *Normalizer) DefaultZone() string {
	return n.defaultZone
}

// Location resolves an IANA zone name, falling back to the default zone when
// the name is unknown. An unresolvable default zone is a configuration bug.
func (n *Normalizer) Location(name string) (*time.Location, string, error) {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc, name, nil
		}
		n.logger.Warn("Unknown timezone, falling back to default.", "timezone", name, "default", n.defaultZone)
	}
	loc, err := time.LoadLocation(n.defaultZone)
	if err != nil {
		return nil, "", fmt.Errorf("default timezone %q is invalid: %w", n.defaultZone, err)
	}
	return loc, n.defaultZone, nil
}

// Normalize converts a draft into a valid event. The effective timezone is
// the explicit override, else the draft's own, else the default zone. When
// busy intervals are supplied the result is additionally shifted clear of
// them (best effort, see shiftClear).
//
// Normalization is idempotent: running an already-normalized event through
// again with its own timezone and no busy set yields identical timestamps.
func (n *Normalizer) Normalize(draft models.EventDraft, timezone string, busy []models.BusyInterval) (*models.Event, error) {
	tzName := timezone
	if tzName == "" {
		tzName = draft.Timezone
	}
	loc, tzName, err := n.Location(tzName)
	if err != nil {
		return nil, err
	}

	start := inZone(draft.Start, loc)
	end := inZone(draft.End, loc)
	if !end.After(start) {
		end = start.Add(DefaultDuration)
	}

	event, err := models.NewEvent(models.Event{
		Title:       strings.TrimSpace(draft.Title),
		Description: draft.Description,
		Start:       start,
		End:         end,
		Timezone:    tzName,
		Location:    draft.Location,
		Attendees:   coerceAttendees(draft.Attendees),
		Reminders:   coerceReminders(draft.Reminders),
		Recurrence:  copyRecurrence(draft.Recurrence),
		Source:      draft.Source,
	})
	if err != nil {
		return nil, err
	}

	if len(busy) > 0 {
		event = n.shiftClear(event, busy)
	}
	return event, nil
}

// shiftClear probes forward in fixed increments until the event no longer
// overlaps any busy interval or the attempts are exhausted. The final shifted
// position is returned either way; callers must not assume it is free.
func (n *Normalizer) shiftClear(event *models.Event, busy []models.BusyInterval) *models.Event {
	shifted := *event
	for attempt := 0; attempt < MaxShiftAttempts; attempt++ {
		if !overlapsAny(shifted.Start, shifted.End, busy) {
			return &shifted
		}
		shifted.Start = shifted.Start.Add(ConflictShift)
		shifted.End = shifted.End.Add(ConflictShift)
	}
	n.logger.Warn("Conflict still unresolved after max shift attempts.",
		"title", shifted.Title, "start", shifted.Start, "attempts", MaxShiftAttempts)
	return &shifted
}

func overlapsAny(start, end time.Time, busy []models.BusyInterval) bool {
	for _, interval := range busy {
		if interval.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// inZone attaches the resolved zone to a draft timestamp. A timestamp without
// an offset is read as wall-clock time in the zone; one with an offset is
// converted to the zone's representation of the same instant.
func inZone(t models.LooseTime, loc *time.Location) time.Time {
	if t.HasOffset {
		return t.Time.In(loc)
	}
	return time.Date(t.Time.Year(), t.Time.Month(), t.Time.Day(),
		t.Time.Hour(), t.Time.Minute(), t.Time.Second(), t.Time.Nanosecond(), loc)
}

func coerceAttendees(in []models.AttendeeDraft) []models.Attendee {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Attendee, 0, len(in))
	for _, a := range in {
		out = append(out, models.Attendee{Email: a.Email, Optional: a.Optional})
	}
	return out
}

// coerceReminders fills reminder defaults and de-duplicates by
// (method, minutes) pair, keeping first occurrences in order. Coercion never
// fails: unknown methods become popup and negative lead times are clamped.
func coerceReminders(in []models.ReminderDraft) []models.Reminder {
	if len(in) == 0 {
		return []models.Reminder{models.DefaultReminder()}
	}
	seen := make(map[models.Reminder]struct{}, len(in))
	out := make([]models.Reminder, 0, len(in))
	for _, d := range in {
		r := models.Reminder{Method: d.Method, MinutesBefore: models.DefaultReminderMinutes}
		if r.Method != models.ReminderEmail {
			r.Method = models.ReminderPopup
		}
		if d.MinutesBefore != nil {
			r.MinutesBefore = max(*d.MinutesBefore, 0)
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func copyRecurrence(r *models.Recurrence) *models.Recurrence {
	if r == nil {
		return nil
	}
	return &models.Recurrence{RRule: r.RRule}
}
