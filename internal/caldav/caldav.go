// Package caldav implements the calendar capability against a CalDAV server
// (iCloud by default), selected with CALENDAR_BACKEND=caldav.
package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"calassist/internal/models"
)

// Options configures the client. Endpoint defaults to iCloud.
type Options struct {
	Endpoint     string
	Username     string
	Password     string
	CalendarName string
}

// customTransport adds Basic Auth and a User-Agent to every request.
type customTransport struct {
	username  string
	password  string
	transport http.RoundTripper
}

func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	req.Header.Set("User-Agent", "calassist/1.0")
	return t.transport.RoundTrip(req)
}

// Client provides create/update/list against one CalDAV calendar.
type Client struct {
	caldavClient *caldav.Client
	webdavClient *webdav.Client
	logger       *slog.Logger
	endpoint     string
	calendarPath string
}

// NewClient creates the client and discovers the calendar by name.
func NewClient(ctx context.Context, logger *slog.Logger, opts Options) (*Client, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "https://caldav.icloud.com/"
	}
	httpClient := &http.Client{Transport: &customTransport{
		username:  opts.Username,
		password:  opts.Password,
		transport: http.DefaultTransport,
	}}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	webdavClient, err := webdav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}

	c := &Client{
		caldavClient: caldavClient,
		webdavClient: webdavClient,
		logger:       logger,
		endpoint:     endpoint,
	}

	logger.Info("Finding CalDAV calendar.", "calendarName", opts.CalendarName)
	calendarPath, err := c.findCalendar(ctx, opts.CalendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar %q: %w", opts.CalendarName, err)
	}
	c.calendarPath = calendarPath
	logger.Info("Successfully found CalDAV calendar.", "path", calendarPath)
	return c, nil
}

// CreateEvent stores the event under a fresh UID and returns it.
func (c *Client) CreateEvent(ctx context.Context, event *models.Event) (string, error) {
	uid := uuid.New().String()
	if err := c.put(ctx, uid, event); err != nil {
		return "", err
	}
	return uid, nil
}

// UpdateEvent overwrites the event stored under eventID.
func (c *Client) UpdateEvent(ctx context.Context, eventID string, event *models.Event) (string, error) {
	if err := c.put(ctx, eventID, event); err != nil {
		return "", err
	}
	return eventID, nil
}

// ListBetween queries the calendar with a time-range filter. Start and end
// are emitted as plain ISO strings.
func (c *Client) ListBetween(ctx context.Context, timeMinISO, timeMaxISO string) ([]map[string]any, error) {
	timeMin, err := time.Parse(time.RFC3339, timeMinISO)
	if err != nil {
		return nil, fmt.Errorf("invalid time_min: %w", err)
	}
	timeMax, err := time.Parse(time.RFC3339, timeMaxISO)
	if err != nil {
		return nil, fmt.Errorf("invalid time_max: %w", err)
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{Name: "VCALENDAR", AllProps: true, AllComps: true},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: timeMin,
				End:   timeMax,
			}},
		},
	}
	objects, err := c.caldavClient.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("caldav query failed: %w", err)
	}

	var items []map[string]any
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ev := range obj.Data.Events() {
			start, err := ev.DateTimeStart(timeMin.Location())
			if err != nil {
				continue
			}
			end, err := ev.DateTimeEnd(timeMin.Location())
			if err != nil {
				continue
			}
			item := map[string]any{
				"start": start.Format(time.RFC3339),
				"end":   end.Format(time.RFC3339),
			}
			if prop := ev.Props.Get(ical.PropUID); prop != nil {
				item["id"] = prop.Value
			}
			if prop := ev.Props.Get(ical.PropSummary); prop != nil {
				item["summary"] = prop.Value
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// put uploads the event as a single-VEVENT calendar object.
func (c *Client) put(ctx context.Context, uid string, event *models.Event) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//calassist//EN")
	cal.Children = append(cal.Children, toICal(uid, event))

	eventPath := path.Join(c.calendarPath, fmt.Sprintf("%s.ics", uid))
	writer, err := c.webdavClient.Create(ctx, eventPath)
	if err != nil {
		return fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}
	defer writer.Close()

	if err := ical.NewEncoder(writer).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode event to iCal format: %w", err)
	}
	c.logger.Info("Stored event on CalDAV server.", "title", event.Title, "uid", uid)
	return nil
}

// toICal converts the internal event model to a VEVENT with its alarms.
func toICal(uid string, event *models.Event) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, event.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, event.Start)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, event.End)

	if event.Description != "" {
		ve.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		ve.Props.SetText(ical.PropLocation, event.Location)
	}
	if event.Recurrence != nil && event.Recurrence.RRule != "" {
		// The rule may arrive with or without the property prefix.
		ve.Props.SetText(ical.PropRecurrenceRule, strings.TrimPrefix(event.Recurrence.RRule, "RRULE:"))
	}
	for _, attendee := range event.Attendees {
		p := ical.NewProp(ical.PropAttendee)
		p.SetText(fmt.Sprintf("mailto:%s", attendee.Email))
		ve.Props.Add(p)
	}
	for _, reminder := range event.Reminders {
		ve.Children = append(ve.Children, toAlarm(reminder))
	}
	return ve
}

func toAlarm(reminder models.Reminder) *ical.Component {
	alarm := ical.NewComponent(ical.CompAlarm)
	action := "DISPLAY"
	if reminder.Method == models.ReminderEmail {
		action = "EMAIL"
	}
	alarm.Props.SetText(ical.PropAction, action)
	alarm.Props.SetText(ical.PropTrigger, fmt.Sprintf("-PT%dM", reminder.MinutesBefore))
	return alarm
}

// findCalendar discovers the user's calendars and returns the path of the
// one with the matching name.
func (c *Client) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}
	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}
	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}
	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("no calendar found with name %q", name)
}
