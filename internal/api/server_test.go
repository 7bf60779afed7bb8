package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tracker/internal/config"
	"github.com/banshee-data/tracker/internal/db"
	"github.com/banshee-data/tracker/internal/rpc"
	"github.com/banshee-data/tracker/internal/testutil"
	"github.com/banshee-data/tracker/internal/timeutil"
	"github.com/banshee-data/tracker/internal/track"
)

type fakeForwarder struct{ stats rpc.ForwardStats }

func (f fakeForwarder) Stats() rpc.ForwardStats { return f.stats }

func newManager(t *testing.T) *track.Manager {
	t.Helper()
	m, err := track.NewManager(track.DefaultManagerConfig())
	require.NoError(t, err)
	return m
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.NewDB(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

// seedSession runs three groups through a manager and stores every result
// under one session.
func seedSession(t *testing.T, d *db.DB) *db.Store {
	t.Helper()
	ctx := context.Background()
	store, err := d.StartSession(ctx, "kft", "test", timeutil.NewMockClock(time.Unix(1700000000, 0)))
	require.NoError(t, err)

	m := newManager(t)
	for i := 0; i < 3; i++ {
		ts := float64(i)
		group := track.MeasurementGroup{
			track.NewMeasurement(ts, 2*ts, 3, ts).WithTruth(track.Vector3{X: ts, Y: 2 * ts, Z: 3}),
		}
		tracks, err := m.ProcessMeasurementGroup(group)
		require.NoError(t, err)
		require.NoError(t, store.ProcessTrack(ctx, tracks))
	}
	return store
}

func get(t *testing.T, h http.Handler, path string) *bytes.Buffer {
	t.Helper()
	w := testutil.NewTestRecorder()
	h.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, path))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	return w.Body
}

func TestShowStats(t *testing.T) {
	m := newManager(t)
	_, err := m.ProcessMeasurementGroup(track.MeasurementGroup{track.NewMeasurement(1, 2, 3, 0)})
	require.NoError(t, err)

	s := NewServer(m, nil)
	s.SetForwarder(fakeForwarder{rpc.ForwardStats{Forwarded: 4, Failed: 1}})
	s.AddIngestStats("udp", func() any { return map[string]int{"packets": 7} })

	var resp StatsResponse
	require.NoError(t, json.NewDecoder(get(t, s.ServeMux(), "/api/stats")).Decode(&resp))

	assert.Equal(t, track.FilterKalman, resp.Tracker.FilterType)
	assert.Equal(t, uint64(1), resp.Tracker.Groups)
	assert.Equal(t, uint64(1), resp.Tracker.TracksCreated)
	require.NotNil(t, resp.Forwarding)
	assert.Equal(t, rpc.ForwardStats{Forwarded: 4, Failed: 1}, *resp.Forwarding)
	assert.Equal(t, map[string]any{"packets": 7.0}, resp.Ingest["udp"])
	assert.GreaterOrEqual(t, resp.UptimeSeconds, 0.0)
}

func TestShowStats_NoForwarder(t *testing.T) {
	s := NewServer(newManager(t), nil)
	body := get(t, s.ServeMux(), "/api/stats").String()
	assert.NotContains(t, body, "forwarding")
	assert.NotContains(t, body, "ingest")
}

func TestShowConfig(t *testing.T) {
	s := NewServer(newManager(t), nil)
	cfg := config.EmptyTrackerConfig()
	cfg.SetFilterType("ivt")
	s.SetConfig(cfg)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(get(t, s.ServeMux(), "/api/config")).Decode(&resp))
	assert.Equal(t, "ivt", resp["filter_type"])
	assert.Equal(t, 0.5, resp["initial_covariance"])
	assert.Equal(t, "2s", resp["forward_timeout"])
}

func TestMethodNotAllowed(t *testing.T) {
	mux := NewServer(newManager(t), nil).ServeMux()
	for _, path := range []string{"/api/stats", "/api/config", "/api/sessions", "/api/tracks", "/api/chart"} {
		t.Run(path, func(t *testing.T) {
			w := testutil.NewTestRecorder()
			mux.ServeHTTP(w, testutil.NewTestRequest(http.MethodPost, path))
			testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
		})
	}
}

func TestNoDatabase(t *testing.T) {
	mux := NewServer(newManager(t), nil).ServeMux()
	for _, path := range []string{"/api/sessions", "/api/tracks", "/api/chart"} {
		t.Run(path, func(t *testing.T) {
			w := testutil.NewTestRecorder()
			mux.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, path))
			testutil.AssertStatusCode(t, w.Code, http.StatusServiceUnavailable)
		})
	}
}

func TestListSessions(t *testing.T) {
	d := newTestDB(t)
	mux := NewServer(newManager(t), d).ServeMux()

	assert.JSONEq(t, "[]", get(t, mux, "/api/sessions").String())

	store := seedSession(t, d)
	var sessions []db.Session
	require.NoError(t, json.NewDecoder(get(t, mux, "/api/sessions")).Decode(&sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, store.Session().ID, sessions[0].ID)
	assert.Equal(t, "test", sessions[0].Source)
}

func TestListTracks(t *testing.T) {
	d := newTestDB(t)
	store := seedSession(t, d)
	mux := NewServer(newManager(t), d).ServeMux()

	var recent []db.TrackRecord
	require.NoError(t, json.NewDecoder(get(t, mux, "/api/tracks?limit=2")).Decode(&recent))
	require.Len(t, recent, 2)
	assert.Equal(t, int64(3), recent[0].GroupSeq, "newest first")

	var session []db.TrackRecord
	require.NoError(t, json.NewDecoder(get(t, mux, "/api/tracks?session="+store.Session().ID.String())).Decode(&session))
	require.Len(t, session, 3)
	assert.Equal(t, int64(1), session[0].GroupSeq)
	assert.True(t, session[0].HasTruth)
}

func TestListTracks_Errors(t *testing.T) {
	mux := NewServer(newManager(t), newTestDB(t)).ServeMux()

	tests := []struct {
		path string
		want int
	}{
		{"/api/tracks?limit=0", http.StatusBadRequest},
		{"/api/tracks?limit=abc", http.StatusBadRequest},
		{"/api/tracks?limit=10001", http.StatusBadRequest},
		{"/api/tracks?session=not-a-uuid", http.StatusBadRequest},
		{"/api/tracks?session=" + uuid.NewString(), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := testutil.NewTestRecorder()
			mux.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, tt.path))
			testutil.AssertStatusCode(t, w.Code, tt.want)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestListTracks_EmptyIsArray(t *testing.T) {
	mux := NewServer(newManager(t), newTestDB(t)).ServeMux()
	assert.JSONEq(t, "[]", get(t, mux, "/api/tracks").String())
}

func TestShowChart(t *testing.T) {
	d := newTestDB(t)
	store := seedSession(t, d)
	mux := NewServer(newManager(t), d).ServeMux()

	w := testutil.NewTestRecorder()
	mux.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/api/chart?session="+store.Session().ID.String()))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "Session "+store.Session().ID.String())
	assert.Contains(t, body, "predicted=3 measured=3 truth=3")

	recent := get(t, mux, "/api/chart").String()
	assert.Contains(t, recent, "Recent tracks")
}

func TestShowChart_NoData(t *testing.T) {
	mux := NewServer(newManager(t), newTestDB(t)).ServeMux()
	w := testutil.NewTestRecorder()
	mux.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/api/chart"))
	testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
}

func TestSeriesFromRecords(t *testing.T) {
	records := []db.TrackRecord{
		{Position: track.Vector3{X: 1}, MeasCount: 1, Latest: track.Vector3{X: 1.1}, Truth: track.Vector3{X: 1}, HasTruth: true},
		{Position: track.Vector3{X: 2}, MeasCount: 2, Latest: track.Vector3{X: 2.1}},
		{Position: track.Vector3{X: 3}},
	}
	s := seriesFromRecords("t", records)
	assert.Len(t, s.Predicted, 3)
	assert.Equal(t, []track.Vector3{{X: 1.1}, {X: 2.1}}, s.Measured)
	assert.Equal(t, []track.Vector3{{X: 1}}, s.Truth)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := testutil.NewTestRecorder()
	h.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/api/stats?x=1"))

	testutil.AssertStatusCode(t, w.Code, http.StatusTeapot)
	line := buf.String()
	assert.Contains(t, line, statusCodeColor(http.StatusTeapot))
	assert.Contains(t, line, "GET")
	assert.True(t, strings.Contains(line, "/api/stats?x=1"))
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"302"+colorReset, statusCodeColor(302))
	assert.Equal(t, colorBoldRed+"404"+colorReset, statusCodeColor(404))
	assert.Equal(t, colorBoldRed+"500"+colorReset, statusCodeColor(500))
	assert.Equal(t, "100", statusCodeColor(100))
}
