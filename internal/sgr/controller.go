// Package sgr implements the structured generation & repair loop: ask the
// language model for candidate events, normalize and de-conflict each one,
// then apply an operator-approved commit plan against the calendar backend.
package sgr

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"calassist/internal/models"
	"calassist/internal/repair"
)

// LLM is the provider capability consumed by the controller.
type LLM interface {
	SuggestEvents(ctx context.Context, instruction, nowISO, timezone string) ([]models.EventDraft, error)
}

// Calendar is the backend capability consumed by the controller. ListBetween
// returns loosely-shaped items: each start/end may be a plain ISO-8601 string
// or an object holding a dateTime or date field.
type Calendar interface {
	CreateEvent(ctx context.Context, event *models.Event) (string, error)
	UpdateEvent(ctx context.Context, eventID string, event *models.Event) (string, error)
	ListBetween(ctx context.Context, timeMinISO, timeMaxISO string) ([]map[string]any, error)
}

// Controller orchestrates the loop. It holds no mutable state of its own;
// concurrent Suggest calls are safe, serializing Commit calls against a
// shared calendar is the caller's job.
type Controller struct {
	logger     *slog.Logger
	llm        LLM
	calendar   Calendar
	normalizer *repair.Normalizer
}

// NewController creates a Controller.
func NewController(logger *slog.Logger, llm LLM, calendar Calendar, normalizer *repair.Normalizer) *Controller {
	return &Controller{logger: logger, llm: llm, calendar: calendar, normalizer: normalizer}
}

// Suggest asks the provider for candidates and repairs each one. Provider
// failures degrade to an empty candidate list; a failed busy-interval lookup
// leaves that one candidate unshifted. Candidates that cannot become valid
// events (an empty title, typically) are dropped with a log line.
func (c *Controller) Suggest(ctx context.Context, req models.SuggestRequest) *models.SuggestResponse {
	traceID := uuid.New().String()
	timezone := req.Timezone
	if timezone == "" {
		timezone = c.normalizer.DefaultZone()
	}

	drafts, err := c.llm.SuggestEvents(ctx, req.Instruction, c.nowISO(req.Now, timezone), timezone)
	if err != nil {
		c.logger.Warn("LLM unavailable, returning empty suggestions.", "trace_id", traceID, "error", err)
		drafts = nil
	}

	candidates := make([]*models.Event, 0, len(drafts))
	for _, draft := range drafts {
		event, err := c.repairCandidate(ctx, draft, timezone)
		if err != nil {
			c.logger.Warn("Dropping invalid candidate.", "trace_id", traceID, "title", draft.Title, "error", err)
			continue
		}
		candidates = append(candidates, event)
	}
	return &models.SuggestResponse{Candidates: candidates, TraceID: traceID}
}

// Commit applies each plan item in order. A backend failure is recorded as a
// message and the next item is processed; the batch never aborts and the
// failed item counts toward no bucket.
func (c *Controller) Commit(ctx context.Context, plan models.CommitPlan) *models.CommitResult {
	result := &models.CommitResult{Errors: []string{}, TraceID: plan.TraceID}

	for _, item := range plan.Items {
		switch item.Decision.Kind {
		case models.DecisionCreate:
			if _, err := c.calendar.CreateEvent(ctx, item.Event); err != nil {
				c.logger.Error("Failed to create event.", "trace_id", plan.TraceID, "title", item.Event.Title, "error", err)
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.Created++
		case models.DecisionUpdate:
			eventID := item.Event.Source
			if eventID == "" {
				// Titles are neither unique nor stable; kept for
				// compatibility with plans that carry no provenance ID.
				c.logger.Warn("Update has no source ID, falling back to title.", "trace_id", plan.TraceID, "title", item.Event.Title)
				eventID = item.Event.Title
			}
			if _, err := c.calendar.UpdateEvent(ctx, eventID, item.Event); err != nil {
				c.logger.Error("Failed to update event.", "trace_id", plan.TraceID, "event_id", eventID, "error", err)
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.Updated++
		default:
			result.Skipped++
		}
	}
	return result
}

// repairCandidate normalizes a draft, then re-normalizes against whatever
// busy intervals the calendar reports for the event's window.
func (c *Controller) repairCandidate(ctx context.Context, draft models.EventDraft, timezone string) (*models.Event, error) {
	event, err := c.normalizer.Normalize(draft, timezone, nil)
	if err != nil {
		return nil, err
	}
	busy := c.busyIntervals(ctx, event)
	if len(busy) == 0 {
		return event, nil
	}
	return c.normalizer.Normalize(event.AsDraft(), event.Timezone, busy)
}

// busyIntervals queries the calendar for the event's [start, end) window.
// A failed lookup is treated as no known conflicts for this candidate only.
func (c *Controller) busyIntervals(ctx context.Context, event *models.Event) []models.BusyInterval {
	items, err := c.calendar.ListBetween(ctx,
		event.Start.Format(time.RFC3339), event.End.Format(time.RFC3339))
	if err != nil {
		c.logger.Warn("Failed to fetch busy slots, assuming no conflicts.", "title", event.Title, "error", err)
		return nil
	}

	loc := event.Start.Location()
	var busy []models.BusyInterval
	for _, item := range items {
		start, ok := coerceTime(item["start"], loc)
		if !ok {
			continue
		}
		end, ok := coerceTime(item["end"], loc)
		if !ok {
			continue
		}
		busy = append(busy, models.BusyInterval{Start: start, End: end})
	}
	return busy
}

func (c *Controller) nowISO(now *time.Time, timezone string) string {
	if now != nil {
		return now.Format(time.RFC3339)
	}
	loc, _, err := c.normalizer.Location(timezone)
	if err != nil {
		loc = time.UTC
	}
	return time.Now().In(loc).Format(time.RFC3339)
}

// coerceTime accepts the two slot shapes calendar backends produce: a plain
// ISO-8601 string, or an object with a dateTime or all-day date field.
func coerceTime(value any, loc *time.Location) (time.Time, bool) {
	switch v := value.(type) {
	case string:
		return parseISO(v, loc)
	case map[string]any:
		if s, ok := v["dateTime"].(string); ok {
			return parseISO(s, loc)
		}
		if s, ok := v["date"].(string); ok {
			return parseISO(s, loc)
		}
	}
	return time.Time{}, false
}

func parseISO(s string, loc *time.Location) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
