package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larkela/chunkline/internal/auth"
	"github.com/larkela/chunkline/internal/storage"
	"github.com/larkela/chunkline/internal/tracker"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestServer(t *testing.T, manager *auth.Manager) (*Server, *httptest.Server) {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"), storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	s := New(Options{
		Addr:        "127.0.0.1:0",
		Store:       store,
		AuthManager: manager,
		Log:         quietLogger(),
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { s.hub.Close() })

	return s, ts
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

type createdSession struct {
	SessionID string           `json:"sessionId"`
	Snapshot  tracker.Snapshot `json:"snapshot"`
}

func createSession(t *testing.T, base, itemID, title string) createdSession {
	t.Helper()
	resp := postJSON(t, base+"/api/sessions", map[string]string{"itemId": itemID, "title": title})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var created createdSession
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.SessionID)
	return created
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	_, ts := newTestServer(t, nil)

	created := createSession(t, ts.URL, "vid-1", "Intro to Treaps")
	base := ts.URL + "/api/sessions/" + created.SessionID

	// 30 minutes of video at the default 5-minute chunk size.
	resp := postJSON(t, base+"/events", map[string]any{"type": "metadata", "duration": 1800.0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, base+"/events", map[string]any{"type": "timeupdate", "position": 310.0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	getResp, err := http.Get(base)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	var snap snapshotResponse
	decodeBody(t, getResp, &snap)

	assert.Equal(t, "vid-1", snap.ItemID)
	assert.Equal(t, 6, snap.TotalChunks)
	assert.Equal(t, 2, snap.CompletedChunks)
	assert.Equal(t, 33, snap.Percentage)
	assert.Equal(t, 1, snap.Estimate.Days)

	req, err := http.NewRequest(http.MethodDelete, base, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	require.Equal(t, http.StatusOK, delResp.StatusCode)

	// Session is gone after delete.
	getResp, err = http.Get(base)
	require.NoError(t, err)
	getResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestSessionEventValidation(t *testing.T) {
	_, ts := newTestServer(t, nil)

	created := createSession(t, ts.URL, "vid-1", "")
	base := ts.URL + "/api/sessions/" + created.SessionID

	resp := postJSON(t, base+"/events", map[string]any{"type": "metadata", "duration": -5.0})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, base+"/events", map[string]any{"type": "rewind"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestChunkSizeEndpoint(t *testing.T) {
	_, ts := newTestServer(t, nil)

	created := createSession(t, ts.URL, "vid-1", "")
	base := ts.URL + "/api/sessions/" + created.SessionID

	resp := postJSON(t, base+"/chunk-size", map[string]int{"minutes": 121})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, base+"/chunk-size", map[string]int{"minutes": 10})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	getResp, err := http.Get(base)
	require.NoError(t, err)
	var snap snapshotResponse
	decodeBody(t, getResp, &snap)
	assert.Equal(t, 10, snap.ChunkSizeMinutes)
}

func TestConfirmationFlow(t *testing.T) {
	s, ts := newTestServer(t, nil)

	events := s.Hub().Subscribe()
	defer s.Hub().Unsubscribe(events)

	created := createSession(t, ts.URL, "vid-1", "")
	base := ts.URL + "/api/sessions/" + created.SessionID

	resp := postJSON(t, base+"/events", map[string]any{"type": "metadata", "duration": 1800.0})
	resp.Body.Close()
	resp = postJSON(t, base+"/events", map[string]any{"type": "timeupdate", "position": 910.0})
	resp.Body.Close()

	// Backward seek into confirmed territory raises a rewatch prompt.
	resp = postJSON(t, base+"/events", map[string]any{"type": "seek", "position": 30.0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var sawPrompt, sawPause bool
	deadline := time.After(2 * time.Second)
	for !sawPrompt || !sawPause {
		select {
		case ev := <-events:
			switch ev.Type {
			case eventConfirmationRequested:
				sawPrompt = true
			case eventPlaybackPause:
				sawPause = true
			}
		case <-deadline:
			t.Fatalf("missing events: prompt=%v pause=%v", sawPrompt, sawPause)
		}
	}

	// Resolving without a matching kind conflicts.
	resp = postJSON(t, base+"/confirmation", map[string]string{"kind": "completion", "resolution": "confirm"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, base+"/confirmation", map[string]string{"kind": "rewatch", "resolution": "decline"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	getResp, err := http.Get(base)
	require.NoError(t, err)
	var snap snapshotResponse
	decodeBody(t, getResp, &snap)
	// Declining keeps the earned progress.
	assert.Equal(t, 4, snap.CompletedChunks)
	assert.False(t, snap.AwaitingConfirmation)
}

func TestItemsEndpoints(t *testing.T) {
	_, ts := newTestServer(t, nil)

	created := createSession(t, ts.URL, "vid-1", "Intro to Treaps")
	base := ts.URL + "/api/sessions/" + created.SessionID

	resp := postJSON(t, base+"/events", map[string]any{"type": "metadata", "duration": 1800.0})
	resp.Body.Close()
	resp = postJSON(t, base+"/events", map[string]any{"type": "timeupdate", "position": 310.0})
	resp.Body.Close()

	// Track the active session's item.
	resp = postJSON(t, ts.URL+"/api/items", map[string]string{"sessionId": created.SessionID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tracked itemResponse
	decodeBody(t, resp, &tracked)
	assert.Equal(t, "vid-1", tracked.ItemID)
	assert.Equal(t, 2, tracked.CompletedChunks)

	listResp, err := http.Get(ts.URL + "/api/items")
	require.NoError(t, err)
	var items []itemResponse
	decodeBody(t, listResp, &items)
	require.Len(t, items, 1)
	assert.Equal(t, "Intro to Treaps", items[0].Title)
	assert.Equal(t, 33, items[0].Percentage)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/items/vid-1", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	require.Equal(t, http.StatusOK, delResp.StatusCode)

	listResp, err = http.Get(ts.URL + "/api/items")
	require.NoError(t, err)
	items = nil
	decodeBody(t, listResp, &items)
	assert.Empty(t, items)
}

func TestTrackUnknownSession(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/api/items", map[string]string{"sessionId": "nope"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSettingsEndpoints(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/settings")
	require.NoError(t, err)
	var settings tracker.Settings
	decodeBody(t, resp, &settings)
	assert.Equal(t, tracker.DefaultSettings(), settings)

	settings.DailyGoalMinutes = 60
	settings.ReminderTime = "21:15"
	settings.DarkMode = true

	body, err := json.Marshal(settings)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/settings", bytes.NewReader(body))
	require.NoError(t, err)
	putResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	putResp.Body.Close()
	require.Equal(t, http.StatusOK, putResp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/settings")
	require.NoError(t, err)
	var got tracker.Settings
	decodeBody(t, resp, &got)
	assert.Equal(t, settings, got)
}

func TestSettingsValidation(t *testing.T) {
	_, ts := newTestServer(t, nil)

	invalid := []tracker.Settings{
		{DefaultChunkSizeMinutes: 0, DailyGoalMinutes: 30, ReminderTime: "09:00"},
		{DefaultChunkSizeMinutes: 121, DailyGoalMinutes: 30, ReminderTime: "09:00"},
		{DefaultChunkSizeMinutes: 5, DailyGoalMinutes: 4, ReminderTime: "09:00"},
		{DefaultChunkSizeMinutes: 5, DailyGoalMinutes: 301, ReminderTime: "09:00"},
		{DefaultChunkSizeMinutes: 5, DailyGoalMinutes: 30, ReminderTime: "9:00"},
		{DefaultChunkSizeMinutes: 5, DailyGoalMinutes: 30, ReminderTime: "25:00"},
	}

	for i, settings := range invalid {
		body, err := json.Marshal(settings)
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/settings", bytes.NewReader(body))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equalf(t, http.StatusBadRequest, resp.StatusCode, "case %d", i)
	}
}

func TestAuthRequired(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"), storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	manager := auth.NewManager(store, time.Hour)
	password, err := manager.InitializePairing()
	require.NoError(t, err)
	require.NotEmpty(t, password)

	s := New(Options{
		Addr:        "127.0.0.1:0",
		Store:       store,
		AuthManager: manager,
		Log:         quietLogger(),
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	// No token.
	resp, err := http.Get(ts.URL + "/api/items")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong password.
	resp = postJSON(t, ts.URL+"/api/pair", map[string]string{"password": "wrong"})
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// The limiter throttles back-to-back attempts.
	resp = postJSON(t, ts.URL+"/api/pair", map[string]string{"password": password})
	resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	s.pairLimiter = NewRateLimiter(0)

	resp = postJSON(t, ts.URL+"/api/pair", map[string]string{"password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pairResp struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &pairResp)
	require.NotEmpty(t, pairResp.Token)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/items", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", pairResp.Token))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHubPublishSubscribe(t *testing.T) {
	hub := NewHub(quietLogger())
	t.Cleanup(hub.Close)

	ch := hub.Subscribe()
	hub.Publish(Event{Type: eventStateChanged, SessionID: "s1"})

	select {
	case ev := <-ch:
		assert.Equal(t, eventStateChanged, ev.Type)
		assert.Equal(t, "s1", ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}

	hub.Unsubscribe(ch)
	// Publishing after unsubscribe must not panic.
	hub.Publish(Event{Type: eventReminder})
}

func TestHubNotify(t *testing.T) {
	hub := NewHub(quietLogger())
	t.Cleanup(hub.Close)

	ch := hub.Subscribe()
	hub.Notify("Study reminder", "Time to continue")

	select {
	case ev := <-ch:
		assert.Equal(t, eventReminder, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("reminder never delivered")
	}
}
