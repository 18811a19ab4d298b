// Package google implements the calendar capability on top of the Google
// Calendar API. Without valid credentials the client runs in dry-run mode:
// mutations are mirrored to the local store under synthetic IDs and window
// queries are answered from the mirror.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"calassist/internal/models"
	"calassist/internal/store"
)

// TokenProvider is the key the OAuth token is stored under.
const TokenProvider = "google_calendar"

var scopes = []string{calendar.CalendarScope}

// Options configures the client. CredsJSON and TokenJSON accept either a
// file path or an inline JSON document.
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	CredsJSON    string
	TokenJSON    string
	CalendarID   string
}

// CalendarClient provides create/update/list against one Google calendar.
type CalendarClient struct {
	logger     *slog.Logger
	service    *calendar.Service
	store      *store.Store
	calendarID string
	dryRun     bool
}

// NewClient creates a client. It tries to load a token from the store (or
// the TokenJSON option) and build the API service; if either fails the
// client stays usable in dry-run mode.
func NewClient(ctx context.Context, logger *slog.Logger, st *store.Store, opts Options) (*CalendarClient, error) {
	calendarID := opts.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	c := &CalendarClient{
		logger:     logger,
		store:      st,
		calendarID: calendarID,
		dryRun:     true,
	}

	token, err := loadToken(st, opts)
	if err != nil {
		logger.Warn("Failed to load Google credentials.", "error", err)
	}
	if token != nil {
		config, err := OAuthConfig(opts)
		if err != nil {
			logger.Warn("Google OAuth config unavailable, staying in dry-run mode.", "error", err)
		} else {
			service, err := calendar.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
			if err != nil {
				logger.Error("Failed to create calendar service, staying in dry-run mode.", "error", err)
			} else {
				c.service = service
				c.dryRun = false
			}
		}
	}

	if c.dryRun {
		logger.Info("Google Calendar client in dry-run mode, persisting data locally.", "path", st.Path())
	}
	return c, nil
}

// DryRun reports whether the client operates without a live API service.
func (c *CalendarClient) DryRun() bool { return c.dryRun }

// CreateEvent inserts the event and returns its backend ID. In dry-run mode
// a synthetic ID is manufactured and the event only reaches the mirror.
func (c *CalendarClient) CreateEvent(ctx context.Context, event *models.Event) (string, error) {
	if c.dryRun {
		eventID := fmt.Sprintf("dry-run-%x", uuid.New())
		if err := c.mirror(eventID, event); err != nil {
			return "", err
		}
		c.logger.Info("Dry run: stored event locally.", "id", eventID, "title", event.Title)
		return eventID, nil
	}

	created, err := c.service.Events.Insert(c.calendarID, toGoogleEvent(event)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("google create_event failed: %w", err)
	}
	if err := c.mirror(created.Id, event); err != nil {
		c.logger.Warn("Failed to mirror created event.", "id", created.Id, "error", err)
	}
	return created.Id, nil
}

// UpdateEvent replaces the event stored under eventID.
func (c *CalendarClient) UpdateEvent(ctx context.Context, eventID string, event *models.Event) (string, error) {
	if c.dryRun {
		if err := c.mirror(eventID, event); err != nil {
			return "", err
		}
		c.logger.Info("Dry run: updated event locally.", "id", eventID, "title", event.Title)
		return eventID, nil
	}

	if _, err := c.service.Events.Update(c.calendarID, eventID, toGoogleEvent(event)).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("google update_event failed: %w", err)
	}
	if err := c.mirror(eventID, event); err != nil {
		c.logger.Warn("Failed to mirror updated event.", "id", eventID, "error", err)
	}
	return eventID, nil
}

// ListBetween returns the calendar items overlapping the window. Each item's
// start/end keeps the API's dateTime/date object shape. Dry-run mode answers
// from the mirror instead.
func (c *CalendarClient) ListBetween(ctx context.Context, timeMinISO, timeMaxISO string) ([]map[string]any, error) {
	if c.dryRun {
		return c.store.ListBetween(timeMinISO, timeMaxISO)
	}

	resp, err := c.service.Events.List(c.calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(timeMinISO).
		TimeMax(timeMaxISO).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("google list_between failed: %w", err)
	}

	items := make([]map[string]any, 0, len(resp.Items))
	for _, item := range resp.Items {
		payload := map[string]any{
			"id":      item.Id,
			"summary": item.Summary,
			"start":   timeSlot(item.Start),
			"end":     timeSlot(item.End),
		}
		items = append(items, payload)
		if err := c.store.SavePayload(item.Id, payload); err != nil {
			c.logger.Warn("Failed to mirror listed event.", "id", item.Id, "error", err)
		}
	}
	return items, nil
}

// mirror writes the event to the local store keyed by its backend ID.
func (c *CalendarClient) mirror(eventID string, event *models.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("failed to build event payload: %w", err)
	}
	payload["id"] = eventID
	return c.store.SavePayload(eventID, payload)
}

// toGoogleEvent converts the internal event model into the API body.
func toGoogleEvent(event *models.Event) *calendar.Event {
	overrides := make([]*calendar.EventReminder, 0, len(event.Reminders))
	for _, r := range event.Reminders {
		overrides = append(overrides, &calendar.EventReminder{
			Method:  r.Method,
			Minutes: int64(r.MinutesBefore),
		})
	}

	body := &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
		Start: &calendar.EventDateTime{
			DateTime: event.Start.Format(time.RFC3339),
			TimeZone: event.Timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: event.End.Format(time.RFC3339),
			TimeZone: event.Timezone,
		},
		Reminders: &calendar.EventReminders{
			UseDefault:      false,
			Overrides:       overrides,
			ForceSendFields: []string{"UseDefault"},
		},
	}
	for _, a := range event.Attendees {
		body.Attendees = append(body.Attendees, &calendar.EventAttendee{
			Email:    a.Email,
			Optional: a.Optional,
		})
	}
	if event.Recurrence != nil && event.Recurrence.RRule != "" {
		body.Recurrence = []string{event.Recurrence.RRule}
	}
	if event.Source != "" {
		body.ExtendedProperties = &calendar.EventExtendedProperties{
			Private: map[string]string{"source": event.Source},
		}
	}
	return body
}

func timeSlot(dt *calendar.EventDateTime) any {
	if dt == nil {
		return nil
	}
	slot := map[string]any{}
	if dt.DateTime != "" {
		slot["dateTime"] = dt.DateTime
	}
	if dt.Date != "" {
		slot["date"] = dt.Date
	}
	return slot
}

// OAuthConfig builds the OAuth2 config from explicit client credentials or,
// failing that, from a credentials JSON file or inline document.
func OAuthConfig(opts Options) (*oauth2.Config, error) {
	if opts.ClientID != "" && opts.ClientSecret != "" {
		redirect := opts.RedirectURI
		if redirect == "" {
			redirect = "urn:ietf:wg:oauth:2.0:oob"
		}
		return &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  redirect,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		}, nil
	}

	raw := readPossibleJSON(opts.CredsJSON)
	if raw == "" {
		return nil, fmt.Errorf("no Google OAuth credentials configured; set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET or GOOGLE_CREDS_JSON")
	}
	config, err := google.ConfigFromJSON([]byte(raw), scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse Google credentials: %w", err)
	}
	if config.RedirectURL == "" {
		config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	}
	return config, nil
}

// ExchangeCode trades an authorization code for a token.
func ExchangeCode(ctx context.Context, config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(ctx, authCode)
}

// SaveToken persists a token in the store.
func SaveToken(st *store.Store, token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("unable to encode token: %w", err)
	}
	return st.SaveToken(TokenProvider, string(raw))
}

// loadToken reads the token from the store, seeding it from the TokenJSON
// option on first use.
func loadToken(st *store.Store, opts Options) (*oauth2.Token, error) {
	data, err := st.LoadToken(TokenProvider)
	if err != nil {
		return nil, err
	}
	if data == "" && opts.TokenJSON != "" {
		if data = readPossibleJSON(opts.TokenJSON); data != "" {
			if err := st.SaveToken(TokenProvider, data); err != nil {
				return nil, err
			}
		}
	}
	if data == "" {
		return nil, nil
	}
	token := &oauth2.Token{}
	if err := json.Unmarshal([]byte(data), token); err != nil {
		return nil, fmt.Errorf("stored token is corrupt: %w", err)
	}
	return token, nil
}

// readPossibleJSON treats the value as a file path first, then as an inline
// JSON document.
func readPossibleJSON(source string) string {
	if source == "" {
		return ""
	}
	if data, err := os.ReadFile(source); err == nil {
		return string(data)
	}
	candidate := strings.TrimSpace(source)
	if strings.HasPrefix(candidate, "{") && strings.HasSuffix(candidate, "}") {
		return candidate
	}
	return ""
}
