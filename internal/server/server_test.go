package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoportal/internal/daemon"
	"autoportal/internal/models"
	"autoportal/internal/state"
	"autoportal/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *storage.Store, *state.Store) {
	t.Helper()

	dir := t.TempDir()
	status, err := state.NewStore(filepath.Join(dir, "state.json"))
	require.NoError(t, err)

	history, err := storage.New(context.Background(), filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	d := daemon.New(daemon.Options{
		MinInterval: 10 * time.Second,
		MaxInterval: 1800 * time.Second,
	})

	s := New("127.0.0.1:0", status, history, d, NewHub())
	ts := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(ts.Close)
	return s, ts, history, status
}

func TestStatusEndpoint(t *testing.T) {
	_, ts, _, status := newTestServer(t)

	require.NoError(t, status.Update("https://gw/portal", true))

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body struct {
		State struct {
			LastPortal string `json:"last_portal"`
		} `json:"state"`
		Schedule struct {
			IntervalSeconds int64 `json:"interval_seconds"`
			LastOK          bool  `json:"last_ok"`
		} `json:"schedule"`
		GeneratedAt time.Time `json:"generated_at"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "https://gw/portal", body.State.LastPortal)
	assert.Equal(t, int64(10), body.Schedule.IntervalSeconds)
	assert.False(t, body.GeneratedAt.IsZero())
}

func TestHistoryEndpoint(t *testing.T) {
	_, ts, history, _ := newTestServer(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := &models.CycleRecord{
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Trigger:   models.TriggerTimer,
			Success:   true,
		}
		require.NoError(t, history.RecordCycle(context.Background(), rec))
	}

	resp, err := http.Get(ts.URL + "/api/history?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cycles []models.CycleRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cycles))
	require.Len(t, cycles, 2)
	assert.True(t, cycles[0].StartedAt.After(cycles[1].StartedAt))
}

func TestHistoryEndpointEmpty(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cycles []models.CycleRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cycles))
	assert.NotNil(t, cycles)
	assert.Empty(t, cycles)
}

func TestEventsStream(t *testing.T) {
	s, ts, _, _ := newTestServer(t)

	wsURL := strings.Replace(ts.URL, "http://", "ws://", 1) + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		return len(s.hub.clients) == 1
	}, time.Second, 10*time.Millisecond, "client never registered")

	rec := models.CycleRecord{
		ID:       "cycle-1",
		Trigger:  models.TriggerNetChange,
		Success:  true,
		LoggedIn: true,
	}
	s.hub.Publish(rec)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got models.CycleRecord
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "cycle-1", got.ID)
	assert.Equal(t, models.TriggerNetChange, got.Trigger)
	assert.True(t, got.LoggedIn)
}

func TestEventsRejectsForeignOrigin(t *testing.T) {
	_, ts, _, _ := newTestServer(t)

	wsURL := strings.Replace(ts.URL, "http://", "ws://", 1) + "/ws/events"
	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestParseLimit(t *testing.T) {
	req := func(q string) *http.Request {
		return httptest.NewRequest(http.MethodGet, "/api/history"+q, nil)
	}

	assert.Equal(t, 200, parseLimit(req(""), 200))
	assert.Equal(t, 50, parseLimit(req("?limit=50"), 200))
	assert.Equal(t, 200, parseLimit(req("?limit=0"), 200))
	assert.Equal(t, 200, parseLimit(req("?limit=-3"), 200))
	assert.Equal(t, 200, parseLimit(req("?limit=9999"), 200))
	assert.Equal(t, 200, parseLimit(req("?limit=abc"), 200))
}
