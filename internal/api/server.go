// Package api serves the tracker's HTTP admin surface: live counters, stored
// tracks and an interactive chart of them.
package api

import (
	"errors"
	"log"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/tracker/internal/chart"
	"github.com/banshee-data/tracker/internal/config"
	"github.com/banshee-data/tracker/internal/db"
	"github.com/banshee-data/tracker/internal/httputil"
	"github.com/banshee-data/tracker/internal/rpc"
	"github.com/banshee-data/tracker/internal/track"
	"github.com/banshee-data/tracker/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultTrackLimit = 100
	maxTrackLimit     = 10000
)

// TrackStatter is satisfied by track.Manager.
type TrackStatter interface {
	Stats() track.Stats
}

// ForwardStatter is satisfied by rpc.TrackerService.
type ForwardStatter interface {
	Stats() rpc.ForwardStats
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Version       string            `json:"version"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Tracker       track.Stats       `json:"tracker"`
	Forwarding    *rpc.ForwardStats `json:"forwarding,omitempty"`
	Ingest        map[string]any    `json:"ingest,omitempty"`
}

type Server struct {
	manager   TrackStatter
	forwarder ForwardStatter
	db        *db.DB
	cfg       *config.TrackerConfig
	ingest    map[string]func() any
	started   time.Time
}

// NewServer builds an admin server over manager. db may be nil, in which
// case the track routes answer 503.
func NewServer(manager TrackStatter, db *db.DB) *Server {
	return &Server{
		manager: manager,
		db:      db,
		ingest:  make(map[string]func() any),
		started: time.Now(),
	}
}

// SetForwarder reports consumer delivery counters alongside the manager's.
func (s *Server) SetForwarder(f ForwardStatter) {
	s.forwarder = f
}

// SetConfig exposes the loaded configuration at /api/config.
func (s *Server) SetConfig(cfg *config.TrackerConfig) {
	s.cfg = cfg
}

// AddIngestStats registers a named ingest source whose counters are included
// in /api/stats. Register sources before serving.
func (s *Server) AddIngestStats(name string, stats func() any) {
	s.ingest[name] = stats
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/tracks", s.listTracks)
	mux.HandleFunc("/api/chart", s.showChart)
	return mux
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := StatsResponse{
		Version:       version.Version,
		UptimeSeconds: time.Since(s.started).Seconds(),
		Tracker:       s.manager.Stats(),
	}
	if s.forwarder != nil {
		fs := s.forwarder.Stats()
		resp.Forwarding = &fs
	}
	if len(s.ingest) > 0 {
		resp.Ingest = make(map[string]any, len(s.ingest))
		for name, stats := range s.ingest {
			resp.Ingest[name] = stats()
		}
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	cfg := s.cfg
	if cfg == nil {
		cfg = config.EmptyTrackerConfig()
	}
	k := cfg.KalmanConfig()
	httputil.WriteJSONOK(w, map[string]any{
		"filter_type":        string(cfg.GetFilterType()),
		"initial_covariance": k.InitialCovariance,
		"measurement_bias":   k.MeasurementBias,
		"measurement_noise":  k.MeasurementNoise,
		"process_noise_pos":  k.ProcessNoisePos,
		"process_noise_vel":  k.ProcessNoiseVel,
		"observation_model":  string(k.Observation),
		"covariance_update":  string(k.CovarianceUpdate),
		"acceleration":       k.Acceleration,
		"forward_timeout":    cfg.GetForwardTimeout().String(),
	})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}
	sessions, err := s.db.Sessions(r.Context())
	if err != nil {
		httputil.InternalServerError(w, "failed to list sessions: "+err.Error())
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) listTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	records, ok := s.queryRecords(w, r)
	if !ok {
		return
	}
	if records == nil {
		records = []db.TrackRecord{}
	}
	httputil.WriteJSONOK(w, records)
}

func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	records, ok := s.queryRecords(w, r)
	if !ok {
		return
	}

	title := "Recent tracks"
	if id := r.URL.Query().Get("session"); id != "" {
		title = "Session " + id
	} else {
		// RecentTracks is newest first; plot in arrival order.
		slices.Reverse(records)
	}

	series := seriesFromRecords(title, records)
	if series.Empty() {
		httputil.WriteJSONError(w, http.StatusNotFound, chart.ErrNoData.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := chart.WriteHTML(w, series, chart.HTMLOptions{}); err != nil {
		log.Printf("failed to render chart: %v", err)
	}
}

// queryRecords resolves ?session=<uuid> or ?limit=<n> into stored track
// snapshots. It writes the error response itself and reports false when the
// handler should stop.
func (s *Server) queryRecords(w http.ResponseWriter, r *http.Request) ([]db.TrackRecord, bool) {
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return nil, false
	}

	q := r.URL.Query()
	if raw := q.Get("session"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httputil.BadRequest(w, "invalid 'session' parameter")
			return nil, false
		}
		records, err := s.db.SessionTracks(r.Context(), id)
		if errors.Is(err, db.ErrSessionNotFound) {
			httputil.WriteJSONError(w, http.StatusNotFound, err.Error())
			return nil, false
		}
		if err != nil {
			httputil.InternalServerError(w, "failed to read tracks: "+err.Error())
			return nil, false
		}
		return records, true
	}

	limit := defaultTrackLimit
	if l := q.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > maxTrackLimit {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return nil, false
		}
		limit = parsed
	}
	records, err := s.db.RecentTracks(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to read tracks: "+err.Error())
		return nil, false
	}
	return records, true
}

func seriesFromRecords(title string, records []db.TrackRecord) chart.Series {
	s := chart.Series{Title: title}
	for _, rec := range records {
		s.Predicted = append(s.Predicted, rec.Position)
		if rec.MeasCount == 0 {
			continue
		}
		s.Measured = append(s.Measured, rec.Latest)
		if rec.HasTruth {
			s.Truth = append(s.Truth, rec.Truth)
		}
	}
	return s
}
