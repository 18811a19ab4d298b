package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calassist/internal/models"
)

type fakeController struct {
	lastPlan models.CommitPlan
}

func (f *fakeController) Suggest(ctx context.Context, req models.SuggestRequest) *models.SuggestResponse {
	return &models.SuggestResponse{Candidates: []*models.Event{}, TraceID: "trace-api"}
}

func (f *fakeController) Commit(ctx context.Context, plan models.CommitPlan) *models.CommitResult {
	f.lastPlan = plan
	return &models.CommitResult{Skipped: len(plan.Items), Errors: []string{}, TraceID: plan.TraceID}
}

func testRouter(ctrl Controller) http.Handler {
	return NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), ctrl)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(&fakeController{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSuggestReturnsCandidates(t *testing.T) {
	body := `{"instruction":"schedule focus time tomorrow","timezone":"Europe/Riga"}`
	rec := httptest.NewRecorder()
	testRouter(&fakeController{}).ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/events/suggest", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.SuggestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "trace-api", resp.TraceID)
}

func TestSuggestRejectsMissingInstruction(t *testing.T) {
	for _, body := range []string{`{}`, `{"instruction":"  "}`, `not json`} {
		rec := httptest.NewRecorder()
		testRouter(&fakeController{}).ServeHTTP(rec,
			httptest.NewRequest(http.MethodPost, "/events/suggest", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}

func TestSyncAppliesPlan(t *testing.T) {
	ctrl := &fakeController{}
	body := `{
		"trace_id": "trace-9",
		"items": [
			{"event": {"title": "Standup", "start": "2025-05-20T09:00:00+03:00",
			           "end": "2025-05-20T10:00:00+03:00", "timezone": "Europe/Riga",
			           "reminders": [{"method": "popup", "minutes_before": 15}]},
			 "decision": {"kind": "skip"}}
		]
	}`
	rec := httptest.NewRecorder()
	testRouter(ctrl).ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/events/sync", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var result models.CommitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "trace-9", result.TraceID)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "Standup", ctrl.lastPlan.Items[0].Event.Title)
}

func TestSyncRejectsItemWithoutEvent(t *testing.T) {
	body := `{"trace_id":"t","items":[{"decision":{"kind":"create"}}]}`
	rec := httptest.NewRecorder()
	testRouter(&fakeController{}).ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/events/sync", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
