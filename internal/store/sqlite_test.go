package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "calassist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestTokenRoundTrip(t *testing.T) {
	st := testStore(t)

	data, err := st.LoadToken("google_calendar")
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, st.SaveToken("google_calendar", `{"access_token":"a"}`))
	require.NoError(t, st.SaveToken("google_calendar", `{"access_token":"b"}`))

	data, err = st.LoadToken("google_calendar")
	require.NoError(t, err)
	assert.Equal(t, `{"access_token":"b"}`, data)
}

func TestSavePayloadAndListBetween(t *testing.T) {
	st := testStore(t)

	require.NoError(t, st.SavePayload("ev-1", map[string]any{
		"summary": "Standup",
		"start":   map[string]any{"dateTime": "2025-05-20T09:00:00+03:00"},
		"end":     map[string]any{"dateTime": "2025-05-20T10:00:00+03:00"},
	}))
	require.NoError(t, st.SavePayload("ev-2", map[string]any{
		"summary": "Lunch",
		"start":   "2025-05-20T12:00:00+03:00",
		"end":     "2025-05-20T13:00:00+03:00",
	}))

	items, err := st.ListBetween("2025-05-20T08:30:00+03:00", "2025-05-20T09:30:00+03:00")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "ev-1", items[0]["id"])

	// Half-open: a window that merely touches an event excludes it.
	items, err = st.ListBetween("2025-05-20T10:00:00+03:00", "2025-05-20T11:00:00+03:00")
	require.NoError(t, err)
	assert.Empty(t, items)

	all, err := st.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSavePayloadUpserts(t *testing.T) {
	st := testStore(t)

	require.NoError(t, st.SavePayload("ev-1", map[string]any{
		"summary": "Standup",
		"start":   "2025-05-20T09:00:00Z",
		"end":     "2025-05-20T10:00:00Z",
	}))
	require.NoError(t, st.SavePayload("ev-1", map[string]any{
		"summary": "Standup (moved)",
		"start":   "2025-05-20T11:00:00Z",
		"end":     "2025-05-20T12:00:00Z",
	}))

	all, err := st.ListAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Standup (moved)", all[0]["summary"])
}

func TestSavePayloadIgnoresEntriesWithoutTimes(t *testing.T) {
	st := testStore(t)

	require.NoError(t, st.SavePayload("ev-1", map[string]any{"summary": "No times"}))
	require.NoError(t, st.SavePayload("ev-2", map[string]any{
		"summary": "Bad times",
		"start":   "whenever",
		"end":     "later",
	}))

	all, err := st.ListAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}
