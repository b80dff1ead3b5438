package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func window() (time.Time, time.Time) {
	start := time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 4)
}

func TestJurisdictionForDateRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/events", r.URL.Path)
		assert.Equal(t, "2026-03-12", r.URL.Query().Get("from"))
		assert.Equal(t, "2026-03-16", r.URL.Query().Get("to"))
		_, _ = w.Write([]byte(`{"events": [{"name": "Spring Summit", "jurisdiction": "CO"}]}`))
	}))
	defer srv.Close()

	start, end := window()
	got, err := NewClient(srv.URL).JurisdictionForDateRange(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, "CO", got)
}

func TestJurisdictionForDateRangeNoEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"events": []}`))
	}))
	defer srv.Close()

	start, end := window()
	got, err := NewClient(srv.URL).JurisdictionForDateRange(context.Background(), start, end)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestJurisdictionForDateRangeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	start, end := window()
	_, err := NewClient(srv.URL).JurisdictionForDateRange(context.Background(), start, end)
	assert.Error(t, err)
}
