package sgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calassist/internal/models"
	"calassist/internal/repair"
)

type stubLLM struct {
	drafts []models.EventDraft
	err    error
}

func (s *stubLLM) SuggestEvents(ctx context.Context, instruction, nowISO, timezone string) ([]models.EventDraft, error) {
	return s.drafts, s.err
}

type updateCall struct {
	eventID string
	event   *models.Event
}

type stubCalendar struct {
	busy        []map[string]any
	listErr     error
	failCreates map[int]error // 1-based create call index -> error
	createCalls int
	created     []*models.Event
	updates     []updateCall
	updateErr   error
	listCalls   int
}

func (s *stubCalendar) CreateEvent(ctx context.Context, event *models.Event) (string, error) {
	s.createCalls++
	if err, ok := s.failCreates[s.createCalls]; ok {
		return "", err
	}
	s.created = append(s.created, event)
	return fmt.Sprintf("created-%d", s.createCalls), nil
}

func (s *stubCalendar) UpdateEvent(ctx context.Context, eventID string, event *models.Event) (string, error) {
	if s.updateErr != nil {
		return "", s.updateErr
	}
	s.updates = append(s.updates, updateCall{eventID: eventID, event: event})
	return eventID, nil
}

func (s *stubCalendar) ListBetween(ctx context.Context, timeMinISO, timeMaxISO string) ([]map[string]any, error) {
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.busy, nil
}

func newTestController(llm LLM, calendar Calendar) *Controller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewController(logger, llm, calendar, repair.New(logger, "Europe/Riga"))
}

func rigaBusy(t *testing.T, startHour, endHour int) map[string]any {
	t.Helper()
	riga, err := time.LoadLocation("Europe/Riga")
	require.NoError(t, err)
	return map[string]any{
		"start": map[string]any{"dateTime": time.Date(2025, 5, 20, startHour, 0, 0, 0, riga).Format(time.RFC3339)},
		"end":   map[string]any{"dateTime": time.Date(2025, 5, 20, endHour, 0, 0, 0, riga).Format(time.RFC3339)},
	}
}

// The draft the model typically produces: naive timestamps, no timezone,
// zero duration, no reminders.
func messyDraft() models.EventDraft {
	at := models.LooseTime{Time: time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)}
	return models.EventDraft{
		Title:       "Deep Work",
		Description: "Focus session",
		Start:       at,
		End:         at,
	}
}

func TestSuggestRepairsAndResolvesConflicts(t *testing.T) {
	calendar := &stubCalendar{busy: []map[string]any{rigaBusy(t, 9, 10)}}
	ctrl := newTestController(&stubLLM{drafts: []models.EventDraft{messyDraft()}}, calendar)

	resp := ctrl.Suggest(context.Background(), models.SuggestRequest{
		Instruction: "schedule focus",
		Timezone:    "Europe/Riga",
	})

	assert.NotEmpty(t, resp.TraceID)
	require.Len(t, resp.Candidates, 1)
	event := resp.Candidates[0]
	assert.Equal(t, "Europe/Riga", event.Timezone)
	assert.Equal(t, time.Hour, event.End.Sub(event.Start))
	require.Len(t, event.Reminders, 1)
	assert.Equal(t, models.DefaultReminder(), event.Reminders[0])
	// Shifted off the 09:00-10:00 busy slot.
	assert.Equal(t, 10, event.Start.Hour())
}

func TestSuggestAcceptsPlainStringBusySlots(t *testing.T) {
	riga, err := time.LoadLocation("Europe/Riga")
	require.NoError(t, err)
	calendar := &stubCalendar{busy: []map[string]any{
		{
			"start": time.Date(2025, 5, 20, 9, 0, 0, 0, riga).Format(time.RFC3339),
			"end":   time.Date(2025, 5, 20, 10, 0, 0, 0, riga).Format(time.RFC3339),
		},
		{"start": 42, "end": true}, // unparseable, discarded
	}}
	ctrl := newTestController(&stubLLM{drafts: []models.EventDraft{messyDraft()}}, calendar)

	resp := ctrl.Suggest(context.Background(), models.SuggestRequest{Instruction: "focus", Timezone: "Europe/Riga"})

	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, 10, resp.Candidates[0].Start.Hour())
}

func TestSuggestDegradesWhenProviderUnavailable(t *testing.T) {
	ctrl := newTestController(&stubLLM{err: errors.New("provider down")}, &stubCalendar{})

	resp := ctrl.Suggest(context.Background(), models.SuggestRequest{Instruction: "focus"})

	assert.NotEmpty(t, resp.TraceID)
	assert.Empty(t, resp.Candidates)
}

func TestSuggestTreatsBusyLookupFailureAsNoConflicts(t *testing.T) {
	calendar := &stubCalendar{listErr: errors.New("calendar down")}
	ctrl := newTestController(&stubLLM{drafts: []models.EventDraft{messyDraft()}}, calendar)

	resp := ctrl.Suggest(context.Background(), models.SuggestRequest{Instruction: "focus", Timezone: "Europe/Riga"})

	require.Len(t, resp.Candidates, 1)
	// Unshifted: with calendar state unknown the event keeps its slot.
	assert.Equal(t, 9, resp.Candidates[0].Start.Hour())
}

func TestSuggestDropsInvalidCandidateIndependently(t *testing.T) {
	bad := messyDraft()
	bad.Title = ""
	ctrl := newTestController(&stubLLM{drafts: []models.EventDraft{bad, messyDraft()}}, &stubCalendar{})

	resp := ctrl.Suggest(context.Background(), models.SuggestRequest{Instruction: "focus", Timezone: "Europe/Riga"})

	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, "Deep Work", resp.Candidates[0].Title)
}

func TestCommitCountsAndIsolatesFailures(t *testing.T) {
	calendar := &stubCalendar{failCreates: map[int]error{2: errors.New("quota exceeded")}}
	ctrl := newTestController(&stubLLM{}, calendar)

	event := mustEvent(t, "Deep Work")
	plan := models.CommitPlan{
		TraceID: "trace-1",
		Items: []models.CommitPlanItem{
			{Event: event, Decision: models.CommitDecision{Kind: models.DecisionCreate}},
			{Event: event, Decision: models.CommitDecision{Kind: models.DecisionCreate}},
			{Event: event, Decision: models.CommitDecision{Kind: models.DecisionSkip, Reason: "duplicate"}},
		},
	}

	result := ctrl.Commit(context.Background(), plan)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "quota exceeded")
	assert.Equal(t, "trace-1", result.TraceID)
}

func TestCommitUpdateUsesSourceThenTitle(t *testing.T) {
	calendar := &stubCalendar{}
	ctrl := newTestController(&stubLLM{}, calendar)

	withSource := mustEvent(t, "Deep Work")
	withSource.Source = "ext-123"
	withoutSource := mustEvent(t, "Standup")

	plan := models.CommitPlan{
		TraceID: "trace-2",
		Items: []models.CommitPlanItem{
			{Event: withSource, Decision: models.CommitDecision{Kind: models.DecisionUpdate}},
			{Event: withoutSource, Decision: models.CommitDecision{Kind: models.DecisionUpdate}},
		},
	}

	result := ctrl.Commit(context.Background(), plan)

	assert.Equal(t, 2, result.Updated)
	assert.Empty(t, result.Errors)
	require.Len(t, calendar.updates, 2)
	assert.Equal(t, "ext-123", calendar.updates[0].eventID)
	assert.Equal(t, "Standup", calendar.updates[1].eventID)
}

func TestCommitEmptyPlanEchoesTraceID(t *testing.T) {
	ctrl := newTestController(&stubLLM{}, &stubCalendar{})

	result := ctrl.Commit(context.Background(), models.CommitPlan{TraceID: "trace-3"})

	assert.Equal(t, "trace-3", result.TraceID)
	assert.Equal(t, 0, result.Created+result.Updated+result.Skipped)
	assert.Empty(t, result.Errors)
}

func mustEvent(t *testing.T, title string) *models.Event {
	t.Helper()
	start := time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)
	event, err := models.NewEvent(models.Event{
		Title:    title,
		Start:    start,
		End:      start.Add(time.Hour),
		Timezone: "UTC",
	})
	require.NoError(t, err)
	return event
}
